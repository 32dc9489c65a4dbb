package jobstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promptman-backend/internal/entity"
	"promptman-backend/internal/jobstore"
	"promptman-backend/internal/logger"
)

func newTestStore(t *testing.T, ttl time.Duration) (*jobstore.RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return jobstore.NewRedisStore(rdb, ttl, logger.NewDefault()), mr
}

func TestRedisStore_CreateAndGet(t *testing.T) {
	store, mr := newTestStore(t, 15*time.Minute)
	ctx := context.Background()

	job, err := store.Create(ctx, entity.TypeRepo)
	require.NoError(t, err)
	require.NotEmpty(t, job.ID)
	assert.Equal(t, entity.StatusPending, job.Status)
	assert.Equal(t, entity.TypeRepo, job.Type)

	got, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.Empty(t, got.Error)
	assert.Empty(t, got.ResultFile)

	// record carries a TTL
	ttl := mr.TTL("job:" + job.ID)
	assert.Greater(t, ttl, time.Duration(0))
}

func TestRedisStore_Get_NotFound(t *testing.T) {
	store, _ := newTestStore(t, 15*time.Minute)

	_, err := store.Get(context.Background(), "no-such-job")
	assert.ErrorIs(t, err, jobstore.ErrNotFound)
}

func TestRedisStore_UpdatePreservesTTL(t *testing.T) {
	store, mr := newTestStore(t, 15*time.Minute)
	ctx := context.Background()

	job, err := store.Create(ctx, entity.TypeWebsite)
	require.NoError(t, err)

	// simulate elapsed time: remaining TTL shrinks
	mr.FastForward(5 * time.Minute)

	require.NoError(t, store.UpdateStatus(ctx, job.ID, entity.StatusCrawling))

	ttl := mr.TTL("job:" + job.ID)
	assert.LessOrEqual(t, ttl, 10*time.Minute)
	assert.Greater(t, ttl, time.Duration(0))

	got, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusCrawling, got.Status)
	assert.True(t, got.UpdatedAt.After(got.CreatedAt))
}

func TestRedisStore_UpdateMissingJobIsNoop(t *testing.T) {
	store, _ := newTestStore(t, 15*time.Minute)

	// expired/missing jobs must not abort the caller
	err := store.UpdateStatus(context.Background(), "expired-job", entity.StatusProcessing)
	assert.NoError(t, err)
}

func TestRedisStore_TerminalStateExclusivity(t *testing.T) {
	store, _ := newTestStore(t, 15*time.Minute)
	ctx := context.Background()

	completed, err := store.Create(ctx, entity.TypeUpload)
	require.NoError(t, err)
	require.NoError(t, store.SetCompleted(ctx, completed.ID, "results/"+completed.ID+".md"))

	got, err := store.Get(ctx, completed.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusCompleted, got.Status)
	assert.NotEmpty(t, got.ResultFile)
	assert.Empty(t, got.Error)

	failed, err := store.Create(ctx, entity.TypeUpload)
	require.NoError(t, err)
	require.NoError(t, store.SetFailed(ctx, failed.ID, "no valid files uploaded"))

	got, err = store.Get(ctx, failed.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusFailed, got.Status)
	assert.NotEmpty(t, got.Error)
	assert.Empty(t, got.ResultFile)
}

func TestRedisStore_StatusReadIdempotentUntilExpiry(t *testing.T) {
	store, mr := newTestStore(t, 10*time.Minute)
	ctx := context.Background()

	job, err := store.Create(ctx, entity.TypeRepo)
	require.NoError(t, err)
	require.NoError(t, store.SetCompleted(ctx, job.ID, "results/"+job.ID+".md"))

	for i := 0; i < 3; i++ {
		got, err := store.Get(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, entity.StatusCompleted, got.Status)
		assert.Equal(t, "results/"+job.ID+".md", got.ResultFile)
	}

	mr.FastForward(11 * time.Minute)

	_, err = store.Get(ctx, job.ID)
	assert.ErrorIs(t, err, jobstore.ErrNotFound)
}
