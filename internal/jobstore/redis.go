package jobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"promptman-backend/internal/entity"
)

// RedisStore keeps job records as JSON values under "job:<id>" with a TTL.
// Each job touches only its own key, so the store's atomic set/get per key
// is all the synchronization in-flight jobs need.
type RedisStore struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl, logger: logger}
}

func jobKey(id string) string { return "job:" + id }

func (s *RedisStore) Create(ctx context.Context, typ entity.JobType) (*entity.Job, error) {
	now := time.Now().UTC()
	job := &entity.Job{
		ID:        uuid.NewString(),
		Type:      typ,
		Status:    entity.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	data, err := json.Marshal(job)
	if err != nil {
		return nil, err
	}
	if err := s.rdb.Set(ctx, jobKey(job.ID), data, s.ttl).Err(); err != nil {
		s.logger.Error("redis error creating job", slog.String("job_id", job.ID), slog.String("error", err.Error()))
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	s.logger.Info("job created", slog.String("job_id", job.ID), slog.String("type", string(typ)))
	return job, nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*entity.Job, error) {
	data, err := s.rdb.Get(ctx, jobKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var job entity.Job
	if err := json.Unmarshal(data, &job); err != nil {
		s.logger.Error("invalid job record in redis", slog.String("job_id", id), slog.String("error", err.Error()))
		return nil, ErrNotFound
	}
	return &job, nil
}

func (s *RedisStore) UpdateStatus(ctx context.Context, id string, status entity.JobStatus) error {
	return s.update(ctx, id, func(j *entity.Job) {
		j.Status = status
	})
}

func (s *RedisStore) SetCompleted(ctx context.Context, id string, resultFile string) error {
	return s.update(ctx, id, func(j *entity.Job) {
		j.Status = entity.StatusCompleted
		j.ResultFile = resultFile
		j.Error = ""
	})
}

func (s *RedisStore) SetFailed(ctx context.Context, id string, errText string) error {
	return s.update(ctx, id, func(j *entity.Job) {
		j.Status = entity.StatusFailed
		j.Error = errText
		j.ResultFile = ""
	})
}

// update applies a read-modify-write on the job record, preserving the
// remaining TTL. A missing record (expired mid-flight) is a no-op: the
// caller's background task continues so staging cleanup still runs.
func (s *RedisStore) update(ctx context.Context, id string, mutate func(*entity.Job)) error {
	key := jobKey(id)

	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			s.logger.Warn("status update for missing/expired job", slog.String("job_id", id))
			return nil
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var job entity.Job
	if err := json.Unmarshal(data, &job); err != nil {
		s.logger.Error("invalid job record in redis", slog.String("job_id", id), slog.String("error", err.Error()))
		return nil
	}

	mutate(&job)
	job.UpdatedAt = time.Now().UTC()

	expiry := s.ttl
	if ttl, err := s.rdb.TTL(ctx, key).Result(); err == nil && ttl > 0 {
		expiry = ttl
	}

	out, err := json.Marshal(&job)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, key, out, expiry).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	s.logger.Info("job status updated",
		slog.String("job_id", id),
		slog.String("status", string(job.Status)),
	)
	if job.Error != "" {
		s.logger.Error("job failed", slog.String("job_id", id), slog.String("error", job.Error))
	}
	return nil
}
