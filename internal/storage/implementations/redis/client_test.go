package redis

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/tabsynth/pkg/errors"
	"github.com/inferloop/tabsynth/pkg/models"
)

func TestNewRedisStorage(t *testing.T) {
	config := &RedisConfig{
		Addr: "localhost:6379",
		TTL:  time.Hour,
	}

	logger := logrus.New()
	storage, err := NewRedisStorage(config, logger)

	require.NoError(t, err)
	require.NotNil(t, storage)
	assert.Equal(t, config, storage.config)
	assert.Equal(t, logger, storage.logger)
}

func TestNewRedisStorageInvalidConfig(t *testing.T) {
	_, err := NewRedisStorage(nil, logrus.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config cannot be nil")

	_, err = NewRedisStorage(&RedisConfig{}, logrus.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "address or cluster addresses are required")

	_, err = NewRedisStorage(&RedisConfig{Addr: "localhost:6379", TTL: -time.Second}, logrus.New())
	require.Error(t, err)
	assert.Equal(t, errors.ErrorTypeConfiguration, errors.GetType(err))

	storage, err := NewRedisStorage(&RedisConfig{ClusterAddrs: []string{"a:7000", "b:7000"}, UseClustering: true}, nil)
	require.NoError(t, err)
	assert.NotNil(t, storage.logger)
}

func TestRedisStorageGenerateKey(t *testing.T) {
	storage, err := NewRedisStorage(&RedisConfig{
		Addr:      "localhost:6379",
		KeyPrefix: "tabsynth:description:",
	}, logrus.New())
	require.NoError(t, err)
	assert.Equal(t, "tabsynth:description:adult", storage.generateKey("adult"))

	storage, err = NewRedisStorage(&RedisConfig{Addr: "localhost:6379"}, logrus.New())
	require.NoError(t, err)
	assert.Equal(t, "description:adult", storage.generateKey("adult"))
}

func TestRedisStorageNotConnected(t *testing.T) {
	storage, err := NewRedisStorage(&RedisConfig{Addr: "localhost:6379"}, logrus.New())
	require.NoError(t, err)

	ctx := context.Background()
	assert.Error(t, storage.Ping(ctx))
	assert.Error(t, storage.Save(ctx, "adult", &models.DatasetDescription{}))
	_, err = storage.Load(ctx, "adult")
	assert.Error(t, err)
	assert.Error(t, storage.Delete(ctx, "adult"))
	_, err = storage.List(ctx)
	assert.Error(t, err)

	assert.NoError(t, storage.Close())
}

func TestRedisStorageRejectsUnsafeIDs(t *testing.T) {
	storage, err := NewRedisStorage(&RedisConfig{Addr: "localhost:6379"}, logrus.New())
	require.NoError(t, err)

	err = storage.Save(context.Background(), "a*", &models.DatasetDescription{})
	require.Error(t, err)
	assert.Equal(t, errors.ErrorTypeValidation, errors.GetType(err))
}

func TestRedisStorageConnectFailure(t *testing.T) {
	storage, err := NewRedisStorage(&RedisConfig{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	}, logrus.New())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err = storage.Connect(ctx)
	require.Error(t, err)
	assert.Equal(t, errors.ErrorTypeStorage, errors.GetType(err))
	assert.Error(t, storage.Ping(ctx))
}

type pagedScanner struct {
	pages   map[uint64][]string
	next    map[uint64]uint64
	fail    error
	cursors []uint64
}

func (p *pagedScanner) Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd {
	p.cursors = append(p.cursors, cursor)
	if p.fail != nil {
		return redis.NewScanCmdResult(nil, 0, p.fail)
	}
	return redis.NewScanCmdResult(p.pages[cursor], p.next[cursor], nil)
}

func TestScanKeysFollowsCursor(t *testing.T) {
	s := &pagedScanner{
		pages: map[uint64][]string{
			0:  {"description:b"},
			17: {"description:a", "description:c"},
			42: {},
		},
		next: map[uint64]uint64{0: 17, 17: 42, 42: 0},
	}

	keys, err := scanKeys(context.Background(), s, "description:*")
	require.NoError(t, err)
	assert.Equal(t, []uint64{0, 17, 42}, s.cursors)
	assert.Equal(t, []string{"description:b", "description:a", "description:c"}, keys)
}

func TestScanKeysReturnsError(t *testing.T) {
	s := &pagedScanner{fail: stderrors.New("node down")}
	_, err := scanKeys(context.Background(), s, "description:*")
	assert.EqualError(t, err, "node down")
}

func TestIDsFromKeysDeduplicatesAcrossNodes(t *testing.T) {
	// Keys gathered from several masters may repeat during a resharding.
	keys := []string{"tabsynth:census", "tabsynth:adult", "tabsynth:census", "tabsynth:bank"}
	assert.Equal(t, []string{"adult", "bank", "census"}, idsFromKeys(keys, "tabsynth:"))
	assert.Empty(t, idsFromKeys(nil, "tabsynth:"))
}
