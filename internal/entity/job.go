package entity

import (
	"time"
)

type JobType string

const (
	TypeUpload  JobType = "upload"
	TypeRepo    JobType = "repo"
	TypeWebsite JobType = "website"
)

type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusUploading  JobStatus = "uploading"
	StatusCloning    JobStatus = "cloning"
	StatusCrawling   JobStatus = "crawling"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// Job is the record kept in the job store for one unit of work.
// In a terminal state exactly one of Error/ResultFile is set:
// completed => ResultFile, failed => Error. Neither is set before that.
type Job struct {
	ID         string    `json:"id"`
	Type       JobType   `json:"type"`
	Status     JobStatus `json:"status"`
	Error      string    `json:"error,omitempty"`
	ResultFile string    `json:"result_file,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Terminal reports whether the job has reached a final state.
func (j *Job) Terminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}
