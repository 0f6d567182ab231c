package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/tabsynth/pkg/constants"
	"github.com/inferloop/tabsynth/pkg/errors"
	"github.com/inferloop/tabsynth/pkg/interfaces"
	"github.com/inferloop/tabsynth/pkg/models"
)

// PostgresConfig holds configuration for PostgreSQL storage
type PostgresConfig struct {
	// Driver is the database/sql driver name; "postgres" selects lib/pq.
	Driver string `json:"driver" mapstructure:"driver"`
	// DSN overrides the connection string built from the fields below.
	DSN             string        `json:"dsn" mapstructure:"dsn"`
	Host            string        `json:"host" mapstructure:"host"`
	Port            int           `json:"port" mapstructure:"port"`
	Database        string        `json:"database" mapstructure:"database"`
	Username        string        `json:"username" mapstructure:"username"`
	Password        string        `json:"password" mapstructure:"password"`
	SSLMode         string        `json:"ssl_mode" mapstructure:"ssl_mode"`
	Table           string        `json:"table" mapstructure:"table"`
	ConnectTimeout  time.Duration `json:"connect_timeout" mapstructure:"connect_timeout"`
	QueryTimeout    time.Duration `json:"query_timeout" mapstructure:"query_timeout"`
	MaxConnections  int           `json:"max_connections" mapstructure:"max_connections"`
	MaxIdleConns    int           `json:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
}

// PostgresStorage keeps descriptions as JSONB rows keyed by id.
type PostgresStorage struct {
	config  *PostgresConfig
	db      *sql.DB
	logger  *logrus.Logger
	mu      sync.RWMutex
	closed  bool
	queries queries
}

type queries struct {
	schema, upsert, load, remove, list string
}

var _ interfaces.DescriptionStore = (*PostgresStorage)(nil)

// NewPostgresStorage creates a new PostgreSQL storage instance
func NewPostgresStorage(config *PostgresConfig, logger *logrus.Logger) (*PostgresStorage, error) {
	if config == nil {
		return nil, errors.NewConfigurationError(errors.CodeInvalidConfig, "PostgreSQL config cannot be nil")
	}

	if config.DSN == "" && (config.Host == "" || config.Database == "") {
		return nil, errors.NewConfigurationError(errors.CodeInvalidConfig, "PostgreSQL DSN or host and database are required")
	}

	if config.Driver == "" {
		config.Driver = "postgres"
	}
	if config.Port == 0 {
		config.Port = 5432
	}
	if config.SSLMode == "" {
		config.SSLMode = "prefer"
	}
	if config.Table == "" {
		config.Table = constants.DefaultPostgresTable
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = constants.DefaultStorageTimeout
	}
	if config.QueryTimeout <= 0 {
		config.QueryTimeout = constants.DefaultStorageTimeout
	}

	if logger == nil {
		logger = logrus.New()
	}

	return &PostgresStorage{
		config:  config,
		logger:  logger,
		queries: buildQueries(config.Table),
	}, nil
}

func buildQueries(table string) queries {
	t := pq.QuoteIdentifier(table)
	return queries{
		schema: fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	body JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, t),
		upsert: fmt.Sprintf(`INSERT INTO %s (id, body) VALUES ($1, $2)
ON CONFLICT (id) DO UPDATE SET body = EXCLUDED.body, updated_at = now()`, t),
		load:   fmt.Sprintf("SELECT body FROM %s WHERE id = $1", t),
		remove: fmt.Sprintf("DELETE FROM %s WHERE id = $1", t),
		list:   fmt.Sprintf("SELECT id FROM %s ORDER BY id", t),
	}
}

// connectionString builds a lib/pq key/value DSN.
func (ps *PostgresStorage) connectionString() string {
	if ps.config.DSN != "" {
		return ps.config.DSN
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		ps.config.Host,
		ps.config.Port,
		ps.config.Username,
		ps.config.Password,
		ps.config.Database,
		ps.config.SSLMode,
	)
}

// Connect opens the pool, pings the server and creates the table if needed
func (ps *PostgresStorage) Connect(ctx context.Context) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.db != nil {
		return nil
	}

	db, err := sql.Open(ps.config.Driver, ps.connectionString())
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeConnectionFailed, "failed to open database connection")
	}

	if ps.config.MaxConnections > 0 {
		db.SetMaxOpenConns(ps.config.MaxConnections)
	}
	if ps.config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(ps.config.MaxIdleConns)
	}
	if ps.config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(ps.config.ConnMaxLifetime)
	}

	ctx, cancel := context.WithTimeout(ctx, ps.config.ConnectTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeConnectionFailed, "failed to ping database")
	}

	if _, err := db.ExecContext(ctx, ps.queries.schema); err != nil {
		db.Close()
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeConnectionFailed, "failed to initialize schema")
	}

	ps.db = db
	ps.closed = false

	ps.logger.WithFields(logrus.Fields{
		"host":     ps.config.Host,
		"port":     ps.config.Port,
		"database": ps.config.Database,
		"table":    ps.config.Table,
	}).Info("Connected to PostgreSQL")

	return nil
}

// Close closes the database connection
func (ps *PostgresStorage) Close() error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.closed || ps.db == nil {
		return nil
	}

	err := ps.db.Close()
	ps.db = nil
	ps.closed = true
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeStorageError, "failed to close database connection")
	}

	ps.logger.Info("PostgreSQL connection closed")
	return nil
}

// Ping tests the database connection
func (ps *PostgresStorage) Ping(ctx context.Context) error {
	db, err := ps.conn()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, ps.config.QueryTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeConnectionFailed, "database ping failed")
	}
	return nil
}

// Save upserts the description
func (ps *PostgresStorage) Save(ctx context.Context, id string, desc *models.DatasetDescription) error {
	if err := models.ValidateDescriptionID(id); err != nil {
		return err
	}
	db, err := ps.conn()
	if err != nil {
		return err
	}

	data, err := json.Marshal(desc)
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed, "failed to serialize description")
	}

	ctx, cancel := context.WithTimeout(ctx, ps.config.QueryTimeout)
	defer cancel()

	// lib/pq sends []byte as bytea, so JSONB goes over the wire as text.
	if _, err := db.ExecContext(ctx, ps.queries.upsert, id, string(data)); err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed, "failed to upsert description")
	}

	ps.logger.WithFields(logrus.Fields{
		"id":   id,
		"size": len(data),
	}).Debug("Description upserted")

	return nil
}

// Load reads the description stored under id
func (ps *PostgresStorage) Load(ctx context.Context, id string) (*models.DatasetDescription, error) {
	if err := models.ValidateDescriptionID(id); err != nil {
		return nil, err
	}
	db, err := ps.conn()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, ps.config.QueryTimeout)
	defer cancel()

	var body []byte
	err = db.QueryRowContext(ctx, ps.queries.load, id).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError(fmt.Sprintf("description %q not found", id))
	}
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed, "failed to read description")
	}

	var desc models.DatasetDescription
	if err := json.Unmarshal(body, &desc); err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed,
			fmt.Sprintf("description %q is corrupt", id))
	}
	return &desc, nil
}

// Delete removes the description stored under id
func (ps *PostgresStorage) Delete(ctx context.Context, id string) error {
	if err := models.ValidateDescriptionID(id); err != nil {
		return err
	}
	db, err := ps.conn()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, ps.config.QueryTimeout)
	defer cancel()

	result, err := db.ExecContext(ctx, ps.queries.remove, id)
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed, "failed to delete description")
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return errors.NewNotFoundError(fmt.Sprintf("description %q not found", id))
	}
	return nil
}

// List returns the stored ids in lexical order
func (ps *PostgresStorage) List(ctx context.Context) ([]string, error) {
	db, err := ps.conn()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, ps.config.QueryTimeout)
	defer cancel()

	rows, err := db.QueryContext(ctx, ps.queries.list)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed, "failed to list descriptions")
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed, "failed to scan description id")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed, "failed to list descriptions")
	}
	return ids, nil
}

func (ps *PostgresStorage) conn() (*sql.DB, error) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	if ps.closed || ps.db == nil {
		return nil, errors.NewStorageError(errors.CodeConnectionFailed, "database not connected").
			WithCause(errors.ErrStorageConnectionFailed)
	}
	return ps.db, nil
}
