package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/tabsynth/pkg/errors"
	"github.com/inferloop/tabsynth/pkg/interfaces"
	"github.com/inferloop/tabsynth/pkg/models"
)

// RedisConfig holds configuration for Redis storage
type RedisConfig struct {
	Addr          string        `json:"addr" mapstructure:"addr"`
	Password      string        `json:"password" mapstructure:"password"`
	DB            int           `json:"db" mapstructure:"db"`
	DialTimeout   time.Duration `json:"dial_timeout" mapstructure:"dial_timeout"`
	ReadTimeout   time.Duration `json:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `json:"write_timeout" mapstructure:"write_timeout"`
	PoolSize      int           `json:"pool_size" mapstructure:"pool_size"`
	MaxRetries    int           `json:"max_retries" mapstructure:"max_retries"`
	TTL           time.Duration `json:"ttl" mapstructure:"ttl"`
	KeyPrefix     string        `json:"key_prefix" mapstructure:"key_prefix"`
	UseClustering bool          `json:"use_clustering" mapstructure:"use_clustering"`
	ClusterAddrs  []string      `json:"cluster_addrs" mapstructure:"cluster_addrs"`
}

// RedisStorage keeps each description as a JSON string value. A zero TTL keeps
// descriptions until they are deleted.
type RedisStorage struct {
	config *RedisConfig
	client redis.UniversalClient
	logger *logrus.Logger
	mu     sync.RWMutex
	closed bool
}

var _ interfaces.DescriptionStore = (*RedisStorage)(nil)

// NewRedisStorage creates a new Redis storage instance
func NewRedisStorage(config *RedisConfig, logger *logrus.Logger) (*RedisStorage, error) {
	if config == nil {
		return nil, errors.NewConfigurationError(errors.CodeInvalidConfig, "Redis config cannot be nil")
	}

	if config.Addr == "" && len(config.ClusterAddrs) == 0 {
		return nil, errors.NewConfigurationError(errors.CodeInvalidConfig, "Redis address or cluster addresses are required")
	}

	if config.TTL < 0 {
		return nil, errors.NewConfigurationError(errors.CodeInvalidConfig, "Redis TTL cannot be negative")
	}

	if logger == nil {
		logger = logrus.New()
	}

	return &RedisStorage{
		config: config,
		logger: logger,
	}, nil
}

// Connect establishes connection to Redis
func (r *RedisStorage) Connect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client != nil {
		return nil
	}

	var client redis.UniversalClient
	if r.config.UseClustering && len(r.config.ClusterAddrs) > 0 {
		client = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:        r.config.ClusterAddrs,
			Password:     r.config.Password,
			DialTimeout:  r.config.DialTimeout,
			ReadTimeout:  r.config.ReadTimeout,
			WriteTimeout: r.config.WriteTimeout,
			PoolSize:     r.config.PoolSize,
			MaxRetries:   r.config.MaxRetries,
		})
	} else {
		client = redis.NewClient(&redis.Options{
			Addr:         r.config.Addr,
			Password:     r.config.Password,
			DB:           r.config.DB,
			DialTimeout:  r.config.DialTimeout,
			ReadTimeout:  r.config.ReadTimeout,
			WriteTimeout: r.config.WriteTimeout,
			PoolSize:     r.config.PoolSize,
			MaxRetries:   r.config.MaxRetries,
		})
	}

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeConnectionFailed, "failed to connect to Redis")
	}

	r.client = client
	r.closed = false

	r.logger.WithFields(logrus.Fields{
		"addr":       r.config.Addr,
		"db":         r.config.DB,
		"clustering": r.config.UseClustering,
	}).Info("Connected to Redis")

	return nil
}

// Close closes the Redis connection
func (r *RedisStorage) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || r.client == nil {
		return nil
	}

	err := r.client.Close()
	r.client = nil
	r.closed = true
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeStorageError, "failed to close Redis connection")
	}

	r.logger.Info("Redis connection closed")
	return nil
}

// Ping tests the Redis connection
func (r *RedisStorage) Ping(ctx context.Context) error {
	client, err := r.connected()
	if err != nil {
		return err
	}

	if err := client.Ping(ctx).Err(); err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeConnectionFailed, "Redis ping failed")
	}
	return nil
}

// Save stores the description under its key with the configured TTL
func (r *RedisStorage) Save(ctx context.Context, id string, desc *models.DatasetDescription) error {
	if err := models.ValidateDescriptionID(id); err != nil {
		return err
	}
	client, err := r.connected()
	if err != nil {
		return err
	}

	data, err := json.Marshal(desc)
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed, "failed to serialize description")
	}

	if err := client.Set(ctx, r.generateKey(id), data, r.config.TTL).Err(); err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed, "failed to write description to Redis")
	}

	r.logger.WithFields(logrus.Fields{
		"id":   id,
		"size": len(data),
	}).Debug("Description written")

	return nil
}

// Load reads the description stored under id
func (r *RedisStorage) Load(ctx context.Context, id string) (*models.DatasetDescription, error) {
	if err := models.ValidateDescriptionID(id); err != nil {
		return nil, err
	}
	client, err := r.connected()
	if err != nil {
		return nil, err
	}

	data, err := client.Get(ctx, r.generateKey(id)).Bytes()
	if err == redis.Nil {
		return nil, errors.NewNotFoundError(fmt.Sprintf("description %q not found", id))
	}
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed, "failed to read description from Redis")
	}

	var desc models.DatasetDescription
	if err := json.Unmarshal(data, &desc); err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed,
			fmt.Sprintf("description %q is corrupt", id))
	}
	return &desc, nil
}

// Delete removes the description stored under id
func (r *RedisStorage) Delete(ctx context.Context, id string) error {
	if err := models.ValidateDescriptionID(id); err != nil {
		return err
	}
	client, err := r.connected()
	if err != nil {
		return err
	}

	removed, err := client.Del(ctx, r.generateKey(id)).Result()
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed, "failed to delete description from Redis")
	}
	if removed == 0 {
		return errors.NewNotFoundError(fmt.Sprintf("description %q not found", id))
	}
	return nil
}

// List scans the key space under the prefix and returns the ids in lexical order.
// A cluster client scans every master.
func (r *RedisStorage) List(ctx context.Context) ([]string, error) {
	client, err := r.connected()
	if err != nil {
		return nil, err
	}

	prefix := r.generateKey("")
	var keys []string
	if cluster, ok := client.(*redis.ClusterClient); ok {
		var mu sync.Mutex
		err = cluster.ForEachMaster(ctx, func(ctx context.Context, node *redis.Client) error {
			found, err := scanKeys(ctx, node, prefix+"*")
			if err != nil {
				return err
			}
			mu.Lock()
			keys = append(keys, found...)
			mu.Unlock()
			return nil
		})
	} else {
		keys, err = scanKeys(ctx, client, prefix+"*")
	}
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed, "failed to list descriptions in Redis")
	}

	return idsFromKeys(keys, prefix), nil
}

type scanner interface {
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
}

// scanKeys pages through SCAN until the cursor returns to zero.
func scanKeys(ctx context.Context, s scanner, pattern string) ([]string, error) {
	var keys []string
	var cursor uint64
	for {
		page, next, err := s.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, page...)
		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}

// idsFromKeys strips the prefix and returns the distinct ids sorted.
func idsFromKeys(keys []string, prefix string) []string {
	seen := make(map[string]bool, len(keys))
	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		id := strings.TrimPrefix(key, prefix)
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *RedisStorage) connected() (redis.UniversalClient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed || r.client == nil {
		return nil, errors.NewStorageError(errors.CodeConnectionFailed, "Redis not connected").
			WithCause(errors.ErrStorageConnectionFailed)
	}
	return r.client, nil
}

func (r *RedisStorage) generateKey(id string) string {
	if r.config.KeyPrefix != "" {
		return r.config.KeyPrefix + id
	}
	return fmt.Sprintf("description:%s", id)
}
