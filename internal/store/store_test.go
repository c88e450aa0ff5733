package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacobdh/eventmq/internal/protocol"
)

var errConnRefused = errors.New("connection refused")

// fakeRedis implements Client in memory, with a switch to simulate an
// unreachable server.
type fakeRedis struct {
	values  map[string]string
	list    []string
	saves   int
	failing bool
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: make(map[string]string)}
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	if f.failing {
		return redis.NewStringResult("", errConnRefused)
	}
	v, ok := f.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	if f.failing {
		return redis.NewStatusResult("", errConnRefused)
	}
	f.values[key] = string(value.([]byte))
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	if f.failing {
		return redis.NewIntResult(0, errConnRefused)
	}
	var removed int64
	for _, key := range keys {
		if _, ok := f.values[key]; ok {
			delete(f.values, key)
			removed++
		}
	}
	return redis.NewIntResult(removed, nil)
}

func (f *fakeRedis) LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	if f.failing {
		return redis.NewIntResult(0, errConnRefused)
	}
	for _, v := range values {
		f.list = append([]string{v.(string)}, f.list...)
	}
	return redis.NewIntResult(int64(len(f.list)), nil)
}

func (f *fakeRedis) LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd {
	if f.failing {
		return redis.NewStringSliceResult(nil, errConnRefused)
	}
	return redis.NewStringSliceResult(append([]string(nil), f.list...), nil)
}

func (f *fakeRedis) LRem(ctx context.Context, key string, count int64, value interface{}) *redis.IntCmd {
	if f.failing {
		return redis.NewIntResult(0, errConnRefused)
	}
	var kept []string
	var removed int64
	for _, v := range f.list {
		if v == value.(string) {
			removed++
			continue
		}
		kept = append(kept, v)
	}
	f.list = kept
	return redis.NewIntResult(removed, nil)
}

func (f *fakeRedis) Save(ctx context.Context) *redis.StatusCmd {
	if f.failing {
		return redis.NewStatusResult("", errConnRefused)
	}
	f.saves++
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Close() error { return nil }

func testMessage(queue string) protocol.JobMessage {
	return protocol.JobMessage{
		Queue:        queue,
		Headers:      "run_count:3",
		IntervalSecs: 60,
		Payload:      `["run",{"args":[],"kwargs":{},"class_args":[],"class_kwargs":{},"path":"jobs","callable":"tick"}]`,
	}
}

func TestPersistRegistersHashOnce(t *testing.T) {
	ctx := context.Background()
	client := newFakeRedis()
	s := New(client, zerolog.Nop())

	m := testMessage("q1")
	require.NoError(t, s.Persist(ctx, "h1", m))
	require.NoError(t, s.Persist(ctx, "h1", m))

	assert.Equal(t, []string{"h1"}, client.list)
	assert.Contains(t, client.values, "h1")
	assert.Greater(t, client.saves, 0)
}

func TestLoadAllRoundTrip(t *testing.T) {
	ctx := context.Background()
	client := newFakeRedis()
	s := New(client, zerolog.Nop())

	m1 := testMessage("q1")
	m2 := testMessage("q2")
	require.NoError(t, s.Persist(ctx, "h1", m1))
	require.NoError(t, s.Persist(ctx, "h2", m2))

	jobs, err := s.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	byHash := map[string]protocol.JobMessage{}
	for _, j := range jobs {
		byHash[j.Hash] = j.Message
	}
	assert.Equal(t, m1, byHash["h1"])
	assert.Equal(t, m2, byHash["h2"])
}

func TestLoadAllSkipsBrokenEntries(t *testing.T) {
	ctx := context.Background()
	client := newFakeRedis()
	s := New(client, zerolog.Nop())

	require.NoError(t, s.Persist(ctx, "h1", testMessage("q1")))

	// A listed hash with no value, and one whose value is garbage.
	client.list = append(client.list, "ghost", "broken")
	client.values["broken"] = "not json"

	jobs, err := s.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "h1", jobs[0].Hash)
}

func TestForgetIsIdempotent(t *testing.T) {
	ctx := context.Background()
	client := newFakeRedis()
	s := New(client, zerolog.Nop())

	require.NoError(t, s.Persist(ctx, "h1", testMessage("q1")))
	require.NoError(t, s.Forget(ctx, "h1"))
	assert.Empty(t, client.list)
	assert.NotContains(t, client.values, "h1")

	// Forgetting again is not an error.
	require.NoError(t, s.Forget(ctx, "h1"))
}

func TestUpdateRunCountRewritesHeader(t *testing.T) {
	ctx := context.Background()
	client := newFakeRedis()
	s := New(client, zerolog.Nop())

	require.NoError(t, s.Persist(ctx, "h1", testMessage("q1")))
	require.NoError(t, s.UpdateRunCount(ctx, "h1", 2))

	jobs, err := s.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "run_count:2", jobs[0].Message.Headers)
	assert.Equal(t, 2, protocol.RunCountFromHeaders(jobs[0].Message.Headers))
}

func TestUnreachableStoreSurfacesErrors(t *testing.T) {
	ctx := context.Background()
	client := newFakeRedis()
	client.failing = true
	s := New(client, zerolog.Nop())

	_, err := s.LoadAll(ctx)
	assert.Error(t, err)
	assert.Error(t, s.Persist(ctx, "h1", testMessage("q1")))
	assert.Error(t, s.Forget(ctx, "h1"))
	assert.Error(t, s.UpdateRunCount(ctx, "h1", 1))
}
