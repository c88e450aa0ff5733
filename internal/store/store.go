// Package store mirrors the schedule catalog into redis. The store is
// the authority only at startup; every write after recovery is best
// effort and failures are reported, not fatal.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/jacobdh/eventmq/internal/protocol"
)

// ScheduleListKey is the redis list holding every persisted schedule
// hash. The name is historical; cron hashes live in it too.
const ScheduleListKey = "interval_jobs"

const callTimeout = 2 * time.Second

// Client is the slice of the redis command surface the store uses.
// *redis.Client satisfies it; tests substitute a fake.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
	LRem(ctx context.Context, key string, count int64, value interface{}) *redis.IntCmd
	Save(ctx context.Context) *redis.StatusCmd
	Close() error
}

// Options carries the redis connection settings.
type Options struct {
	Host     string
	Port     int
	DB       int
	Password string
}

// LoadedJob pairs a schedule hash with its recovered message.
type LoadedJob struct {
	Hash    string
	Message protocol.JobMessage
}

// Store is the persistence adapter for the schedule catalog.
type Store struct {
	client Client
	logger zerolog.Logger
}

// Dial opens a redis-backed store.
func Dial(opts Options, logger zerolog.Logger) *Store {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", opts.Host, opts.Port),
		DB:       opts.DB,
		Password: opts.Password,
	})
	return New(client, logger)
}

// New wraps an existing client.
func New(client Client, logger zerolog.Logger) *Store {
	return &Store{
		client: client,
		logger: logger.With().Str("component", "store").Logger(),
	}
}

// LoadAll reads every persisted schedule. A listed hash whose value is
// missing is logged and skipped; a value that does not deserialize is
// likewise skipped. A transport-level failure aborts the load.
func (s *Store) LoadAll(ctx context.Context) ([]LoadedJob, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	hashes, err := s.client.LRange(ctx, ScheduleListKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read schedule list: %w", err)
	}

	jobs := make([]LoadedJob, 0, len(hashes))
	for _, hash := range hashes {
		value, err := s.client.Get(ctx, hash).Result()
		if errors.Is(err, redis.Nil) {
			s.logger.Warn().Str("hash", hash).Msg("Listed schedule has no stored value, skipping")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read schedule %s: %w", hash, err)
		}

		var m protocol.JobMessage
		if err := json.Unmarshal([]byte(value), &m); err != nil {
			s.logger.Warn().Err(err).Str("hash", hash).Msg("Stored schedule does not deserialize, skipping")
			continue
		}
		jobs = append(jobs, LoadedJob{Hash: hash, Message: m})
	}
	return jobs, nil
}

// Persist writes a schedule: the hash joins the schedule list exactly
// once, the serialized message is stored under the hash, and a
// flush-to-disk hint follows.
func (s *Store) Persist(ctx context.Context, hash string, m protocol.JobMessage) error {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	listed, err := s.client.LRange(ctx, ScheduleListKey, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("read schedule list: %w", err)
	}
	if !contains(listed, hash) {
		if err := s.client.LPush(ctx, ScheduleListKey, hash).Err(); err != nil {
			return fmt.Errorf("register schedule %s: %w", hash, err)
		}
	}

	value, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("serialize schedule %s: %w", hash, err)
	}
	if err := s.client.Set(ctx, hash, value, 0).Err(); err != nil {
		return fmt.Errorf("write schedule %s: %w", hash, err)
	}

	s.flushHint(ctx)
	s.logger.Debug().Str("hash", hash).Msg("Saved schedule")
	return nil
}

// Forget removes a schedule from the store. Both deletes run even if
// the hash was never persisted, so the operation is idempotent.
func (s *Store) Forget(ctx context.Context, hash string) error {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	if err := s.client.Del(ctx, hash).Err(); err != nil {
		return fmt.Errorf("delete schedule %s: %w", hash, err)
	}
	if err := s.client.LRem(ctx, ScheduleListKey, 0, hash).Err(); err != nil {
		return fmt.Errorf("unregister schedule %s: %w", hash, err)
	}
	s.flushHint(ctx)
	return nil
}

// UpdateRunCount rewrites the run_count header inside the stored
// message so a restart resumes with the decremented count.
func (s *Store) UpdateRunCount(ctx context.Context, hash string, runCount int) error {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	value, err := s.client.Get(ctx, hash).Result()
	if err != nil {
		return fmt.Errorf("read schedule %s: %w", hash, err)
	}

	var m protocol.JobMessage
	if err := json.Unmarshal([]byte(value), &m); err != nil {
		return fmt.Errorf("deserialize schedule %s: %w", hash, err)
	}
	m.Headers = protocol.ReplaceRunCount(m.Headers, runCount)

	updated, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("serialize schedule %s: %w", hash, err)
	}
	if err := s.client.Set(ctx, hash, updated, 0).Err(); err != nil {
		return fmt.Errorf("write schedule %s: %w", hash, err)
	}
	return nil
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

// flushHint asks redis to flush to disk. Purely advisory; some
// deployments disable SAVE entirely.
func (s *Store) flushHint(ctx context.Context) {
	if err := s.client.Save(ctx).Err(); err != nil {
		s.logger.Debug().Err(err).Msg("Flush hint not honored")
	}
}

func contains(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}
