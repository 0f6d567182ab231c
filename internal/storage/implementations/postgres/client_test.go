package postgres

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/tabsynth/pkg/errors"
	"github.com/inferloop/tabsynth/pkg/models"
)

func sampleDescription() *models.DatasetDescription {
	return &models.DatasetDescription{
		Meta: models.Meta{NumTuples: 4, NumAttributes: 1, AllAttributes: []string{"education"}},
		AttributeDescription: map[string]*models.AttributeDescription{
			"education": {
				Name:                      "education",
				DataType:                  models.DataTypeString,
				IsCategorical:             true,
				DistributionBins:          []models.BinValue{models.StringBin("Bachelors"), models.StringBin("HS-grad")},
				DistributionProbabilities: []float64{0.5, 0.5},
			},
		},
	}
}

// connectMock opens the storage through the sqlmock driver so Connect runs
// its ping and schema statements against the mock.
func connectMock(t *testing.T) (*PostgresStorage, sqlmock.Sqlmock) {
	t.Helper()
	dsn := "postgres_" + t.Name()
	_, mock, err := sqlmock.NewWithDSN(dsn)
	require.NoError(t, err)

	storage, err := NewPostgresStorage(&PostgresConfig{Driver: "sqlmock", DSN: dsn}, logrus.New())
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS "descriptions"`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, storage.Connect(context.Background()))
	return storage, mock
}

func TestNewPostgresStorage(t *testing.T) {
	storage, err := NewPostgresStorage(&PostgresConfig{Host: "localhost", Database: "tabsynth"}, nil)
	require.NoError(t, err)

	assert.Equal(t, "postgres", storage.config.Driver)
	assert.Equal(t, 5432, storage.config.Port)
	assert.Equal(t, "descriptions", storage.config.Table)
	assert.Equal(t, "host=localhost port=5432 user= password= dbname=tabsynth sslmode=prefer", storage.connectionString())
}

func TestNewPostgresStorageInvalidConfig(t *testing.T) {
	_, err := NewPostgresStorage(nil, nil)
	require.Error(t, err)

	_, err = NewPostgresStorage(&PostgresConfig{Host: "localhost"}, nil)
	require.Error(t, err)
	assert.Equal(t, errors.ErrorTypeConfiguration, errors.GetType(err))
}

func TestTableNameIsQuoted(t *testing.T) {
	storage, err := NewPostgresStorage(&PostgresConfig{DSN: "x", Table: `odd"name`}, nil)
	require.NoError(t, err)
	assert.Equal(t, `SELECT body FROM "odd""name" WHERE id = $1`, storage.queries.load)
}

func TestPostgresStorageRoundTrip(t *testing.T) {
	ctx := context.Background()
	storage, mock := connectMock(t)
	desc := sampleDescription()
	body, err := json.Marshal(desc)
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "descriptions" (id, body) VALUES ($1, $2)`)).
		WithArgs("adult", string(body)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, storage.Save(ctx, "adult", desc))

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT body FROM "descriptions" WHERE id = $1`)).
		WithArgs("adult").
		WillReturnRows(sqlmock.NewRows([]string{"body"}).AddRow(body))
	loaded, err := storage.Load(ctx, "adult")
	require.NoError(t, err)
	got, _ := json.Marshal(loaded)
	assert.JSONEq(t, string(body), string(got))

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id FROM "descriptions" ORDER BY id`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("adult").AddRow("census"))
	ids, err := storage.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"adult", "census"}, ids)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "descriptions" WHERE id = $1`)).
		WithArgs("adult").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, storage.Delete(ctx, "adult"))

	mock.ExpectClose()
	require.NoError(t, storage.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStorageNotFound(t *testing.T) {
	ctx := context.Background()
	storage, mock := connectMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT body FROM "descriptions" WHERE id = $1`)).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"body"}))
	_, err := storage.Load(ctx, "missing")
	assert.True(t, errors.IsNotFound(err))

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "descriptions" WHERE id = $1`)).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.True(t, errors.IsNotFound(storage.Delete(ctx, "missing")))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStorageCorruptBody(t *testing.T) {
	storage, mock := connectMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT body FROM "descriptions"`)).
		WithArgs("broken").
		WillReturnRows(sqlmock.NewRows([]string{"body"}).AddRow([]byte("{")))
	_, err := storage.Load(context.Background(), "broken")
	require.Error(t, err)
	assert.False(t, errors.IsNotFound(err))
	assert.Equal(t, errors.ErrorTypeStorage, errors.GetType(err))
}

func TestPostgresStorageDisconnected(t *testing.T) {
	storage, err := NewPostgresStorage(&PostgresConfig{DSN: "unused"}, nil)
	require.NoError(t, err)

	ctx := context.Background()
	assert.Error(t, storage.Ping(ctx))
	assert.Error(t, storage.Save(ctx, "adult", sampleDescription()))
	_, err = storage.List(ctx)
	assert.Error(t, err)

	err = storage.Save(ctx, "../adult", sampleDescription())
	assert.Equal(t, errors.ErrorTypeValidation, errors.GetType(err))
}

func TestPostgresStorageUnknownDriver(t *testing.T) {
	storage, err := NewPostgresStorage(&PostgresConfig{Driver: "nope", DSN: "x"}, nil)
	require.NoError(t, err)

	err = storage.Connect(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.ErrorTypeStorage, errors.GetType(err))
}
