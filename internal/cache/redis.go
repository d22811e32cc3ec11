package cache

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"dzchess-analyzer/internal/logging"
	"dzchess-analyzer/internal/model"
)

var releaseIfOwnerScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

// RedisConfig holds configuration for the Redis store.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	Retention time.Duration
}

// RedisStore keeps jobs and player locks in Redis so several API instances
// share them.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	retention time.Duration
	log       zerolog.Logger
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     20,
		MinIdleConns: 2,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrap(err, "redis ping")
	}

	keyPrefix := cfg.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = "dzchess"
	}
	retention := cfg.Retention
	if retention <= 0 {
		retention = 24 * time.Hour
	}

	s := &RedisStore{
		client:    client,
		keyPrefix: keyPrefix,
		retention: retention,
		log:       logging.For("cache"),
	}
	s.log.Info().Str("addr", cfg.Addr).Int("db", cfg.DB).Str("prefix", keyPrefix).Msg("redis store connected")
	return s, nil
}

func (s *RedisStore) jobKey(id string) string {
	return s.keyPrefix + ":job:" + id
}

func (s *RedisStore) lockKey(username string) string {
	return s.keyPrefix + ":lock:" + username
}

// SaveJob stores the job as JSON with the retention TTL.
func (s *RedisStore) SaveJob(ctx context.Context, job *model.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return errors.Wrap(err, "encode job")
	}
	return s.client.Set(ctx, s.jobKey(job.ID), data, s.retention).Err()
}

// GetJob loads a job snapshot.
func (s *RedisStore) GetJob(ctx context.Context, id string) (*model.Job, error) {
	data, err := s.client.Get(ctx, s.jobKey(id)).Bytes()
	if err == redis.Nil {
		return nil, errors.Wrapf(model.ErrJobNotFound, "%s", id)
	}
	if err != nil {
		return nil, err
	}

	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, errors.Wrapf(err, "decode job %s", id)
	}
	return &job, nil
}

// TryAcquire sets the lock key only if it does not exist.
func (s *RedisStore) TryAcquire(ctx context.Context, username, owner string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, s.lockKey(username), owner, ttl).Result()
}

// Release deletes the lock key if owner still holds it.
func (s *RedisStore) Release(ctx context.Context, username, owner string) error {
	err := releaseIfOwnerScript.Run(ctx, s.client, []string{s.lockKey(username)}, owner).Err()
	if err == redis.Nil {
		return nil
	}
	return err
}

// Ping checks the connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
