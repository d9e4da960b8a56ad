package services

import (
	"context"
	"fmt"
	"time"

	"catalog-sync-service/internal/repository"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RunLockName is shared by push batches and reverse imports
const RunLockName = "catalog-sync"

// RunLock serializes sync runs across processes
type RunLock interface {
	// Acquire takes the named lock for at most ttl. It returns
	// ErrSyncInProgress when another run holds it.
	Acquire(ctx context.Context, name string, ttl time.Duration) (release func(), err error)
}

// releaseScript deletes the key only while it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisRunLock implements RunLock with SET NX and a TTL
type RedisRunLock struct {
	client *redis.Client
	logger *logrus.Entry
}

// NewRedisRunLock creates a redis backed lock
func NewRedisRunLock(client *redis.Client, logger *logrus.Entry) *RedisRunLock {
	return &RedisRunLock{client: client, logger: logger.WithField("component", "run_lock")}
}

// Acquire implements RunLock
func (l *RedisRunLock) Acquire(ctx context.Context, name string, ttl time.Duration) (func(), error) {
	key := "lock:" + name
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire run lock: %w", err)
	}
	if !ok {
		return nil, ErrSyncInProgress
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
			l.logger.WithError(err).Warn("Failed to release run lock")
		}
	}, nil
}

// DBRunLock implements RunLock with a row in the sync_locks table
type DBRunLock struct {
	repo   *repository.LockRepository
	logger *logrus.Entry
}

// NewDBRunLock creates a database backed lock
func NewDBRunLock(repo *repository.LockRepository, logger *logrus.Entry) *DBRunLock {
	return &DBRunLock{repo: repo, logger: logger.WithField("component", "run_lock")}
}

// Acquire implements RunLock
func (l *DBRunLock) Acquire(ctx context.Context, name string, ttl time.Duration) (func(), error) {
	owner := uuid.NewString()

	ok, err := l.repo.TryAcquire(ctx, name, owner, ttl)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire run lock: %w", err)
	}
	if !ok {
		return nil, ErrSyncInProgress
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.repo.Release(ctx, name, owner); err != nil {
			l.logger.WithError(err).Warn("Failed to release run lock")
		}
	}, nil
}
