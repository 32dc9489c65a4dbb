package jobstore

import (
	"context"
	"errors"

	"promptman-backend/internal/entity"
)

var (
	ErrNotFound = errors.New("job not found")
	// ErrUnavailable means the backing store cannot be reached. Submission
	// surfaces it as a service-unavailable condition; no job id is issued.
	ErrUnavailable = errors.New("job storage unavailable")
)

// Store keeps job records with automatic expiry.
//
// Status updates on a missing or expired job are a no-op by contract
// (logged, nil error): the background task must keep running so that
// staging cleanup still happens.
type Store interface {
	Create(ctx context.Context, typ entity.JobType) (*entity.Job, error)
	Get(ctx context.Context, id string) (*entity.Job, error)
	UpdateStatus(ctx context.Context, id string, status entity.JobStatus) error
	SetCompleted(ctx context.Context, id string, resultFile string) error
	SetFailed(ctx context.Context, id string, errText string) error
}
