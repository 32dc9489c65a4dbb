package analytics

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Recorder writes per-job analytics rows to a separate Postgres
// database: one row per job, inserted at submission and updated once at
// the terminal state. The whole side-channel is best-effort: every
// failure is logged and swallowed so it can never delay or change a
// job's outcome. A Recorder with no pool (empty DSN) is valid and inert.
type Recorder struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New connects to the analytics database. An empty DSN or a failed
// connection yields a disabled recorder, not an error: analytics must
// degrade silently.
func New(ctx context.Context, dsn string, logger *slog.Logger) *Recorder {
	r := &Recorder{logger: logger}
	if dsn == "" {
		logger.Warn("analytics dsn not set, analytics disabled")
		return r
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		logger.Error("failed to configure analytics db, analytics disabled", slog.String("error", err.Error()))
		return r
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Error("analytics db unreachable, analytics disabled", slog.String("error", err.Error()))
		pool.Close()
		return r
	}

	r.pool = pool
	logger.Info("analytics db connected")
	return r
}

func (r *Recorder) Enabled() bool { return r != nil && r.pool != nil }

// Close releases the connection pool.
func (r *Recorder) Close() {
	if r.Enabled() {
		r.pool.Close()
	}
}

// Outcome captures the shared terminal fields of any job type.
type Outcome struct {
	Status      string
	ErrorText   string
	OutputBytes int64
	Duration    time.Duration
}

func (r *Recorder) exec(ctx context.Context, what, query string, args ...any) {
	if !r.Enabled() {
		return
	}
	if _, err := r.pool.Exec(ctx, query, args...); err != nil {
		r.logger.Warn("analytics write failed",
			slog.String("op", what),
			slog.String("error", err.Error()),
		)
	}
}

// StartUpload records an upload job at submission time.
func (r *Recorder) StartUpload(ctx context.Context, jobID string, declaredCount int) {
	r.exec(ctx, "start_upload", `
INSERT INTO upload_job_analytics (job_uuid, job_start_time, initial_files_selected_count)
VALUES ($1, now(), $2)
ON CONFLICT (job_uuid) DO NOTHING;
`, jobID, declaredCount)
}

// UploadExtras are the upload-specific terminal fields.
type UploadExtras struct {
	FilesProcessed int
	UploadBytes    int64
	UploadDuration time.Duration
	ConvertTime    time.Duration
}

func (r *Recorder) FinishUpload(ctx context.Context, jobID string, out Outcome, extras UploadExtras) {
	r.exec(ctx, "finish_upload", `
UPDATE upload_job_analytics
SET job_end_time = now(),
    final_status = $2,
    error_message = NULLIF($3, ''),
    output_size_bytes = $4,
    total_processing_duration_seconds = $5,
    filtered_files_processed_count = $6,
    upload_folder_size_bytes = $7,
    backend_upload_handling_duration_seconds = $8,
    code_analysis_duration_seconds = $9
WHERE job_uuid = $1;
`, jobID, out.Status, truncateError(out.ErrorText), out.OutputBytes, out.Duration.Seconds(),
		extras.FilesProcessed, extras.UploadBytes, extras.UploadDuration.Seconds(), extras.ConvertTime.Seconds())
}

// StartRepo records a repository job at submission time.
func (r *Recorder) StartRepo(ctx context.Context, jobID, repoURL string) {
	r.exec(ctx, "start_repo", `
INSERT INTO repo_job_analytics (job_uuid, job_start_time, repo_url)
VALUES ($1, now(), $2)
ON CONFLICT (job_uuid) DO NOTHING;
`, jobID, repoURL)
}

// RepoExtras are the clone-specific terminal fields.
type RepoExtras struct {
	RepoName      string
	CloneOK       bool
	RepoBytes     int64
	CloneDuration time.Duration
	ConvertTime   time.Duration
}

func (r *Recorder) FinishRepo(ctx context.Context, jobID string, out Outcome, extras RepoExtras) {
	r.exec(ctx, "finish_repo", `
UPDATE repo_job_analytics
SET job_end_time = now(),
    final_status = $2,
    error_message = NULLIF($3, ''),
    output_size_bytes = $4,
    total_processing_duration_seconds = $5,
    cloned_repo_name = $6,
    clone_successful = $7,
    cloned_repo_size_bytes = $8,
    git_clone_duration_seconds = $9,
    code_analysis_duration_seconds = $10
WHERE job_uuid = $1;
`, jobID, out.Status, truncateError(out.ErrorText), out.OutputBytes, out.Duration.Seconds(),
		extras.RepoName, extras.CloneOK, extras.RepoBytes, extras.CloneDuration.Seconds(), extras.ConvertTime.Seconds())
}

// WebsiteSettings mirror the crawl configuration as submitted.
type WebsiteSettings struct {
	URL          string
	MaxDepth     int
	MaxPages     int
	StayOnDomain bool
	Include      []string
	Exclude      []string
	Keywords     []string
}

// StartWebsite records a website job and its crawl settings at
// submission time.
func (r *Recorder) StartWebsite(ctx context.Context, jobID string, s WebsiteSettings) {
	r.exec(ctx, "start_website", `
INSERT INTO website_job_analytics (
    job_uuid, job_start_time, website_url,
    crawl_max_depth_setting, crawl_max_pages_setting, crawl_stay_on_domain_setting,
    crawl_include_patterns_setting, crawl_exclude_patterns_setting, crawl_keywords_setting)
VALUES ($1, now(), $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''))
ON CONFLICT (job_uuid) DO NOTHING;
`, jobID, s.URL, s.MaxDepth, s.MaxPages, s.StayOnDomain,
		strings.Join(s.Include, ","), strings.Join(s.Exclude, ","), strings.Join(s.Keywords, ","))
}

// WebsiteExtras are the crawl-specific terminal fields.
type WebsiteExtras struct {
	PagesCrawled  int
	CrawlDuration time.Duration
}

func (r *Recorder) FinishWebsite(ctx context.Context, jobID string, out Outcome, extras WebsiteExtras) {
	r.exec(ctx, "finish_website", `
UPDATE website_job_analytics
SET job_end_time = now(),
    final_status = $2,
    error_message = NULLIF($3, ''),
    output_size_bytes = $4,
    total_processing_duration_seconds = $5,
    pages_actually_crawled_count = $6,
    website_crawl_duration_seconds = $7
WHERE job_uuid = $1;
`, jobID, out.Status, truncateError(out.ErrorText), out.OutputBytes, out.Duration.Seconds(),
		extras.PagesCrawled, extras.CrawlDuration.Seconds())
}

func truncateError(s string) string {
	const limit = 2000
	if len(s) > limit {
		return s[:limit]
	}
	return s
}
