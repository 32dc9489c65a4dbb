package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"promptman-backend/internal/analytics"
	"promptman-backend/internal/convert"
	"promptman-backend/internal/entity"
	"promptman-backend/internal/ingest"
	"promptman-backend/internal/jobstore"
	"promptman-backend/internal/storage"
	"promptman-backend/internal/worker"
)

// Cloner fetches a repository into a staging directory.
type Cloner interface {
	Clone(ctx context.Context, url, baseDir, target string) error
}

// Crawler walks a website and renders the visited pages as one document.
type Crawler interface {
	Crawl(ctx context.Context, startURL string, opts ingest.CrawlOptions) (convert.Result, ingest.CrawlStats)
}

// Converter renders a directory of source files as one document.
type Converter interface {
	Convert(ctx context.Context, dir string, include, exclude []string) convert.Result
}

// Submitter schedules background tasks.
type Submitter interface {
	Submit(task worker.Task) bool
}

// Orchestrator owns the job lifecycle: it issues job ids, drives each
// job through its state machine on a background worker, and guarantees
// that every path out of a job, including panics, leaves staging
// cleaned up and the job in a terminal state.
type Orchestrator struct {
	store     jobstore.Store
	roots     storage.Roots
	cloner    Cloner
	crawler   Crawler
	converter Converter
	pool      Submitter
	recorder  *analytics.Recorder
	logger    *slog.Logger
}

func New(store jobstore.Store, roots storage.Roots, cloner Cloner, crawler Crawler, converter Converter, pool Submitter, recorder *analytics.Recorder, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		store:     store,
		roots:     roots,
		cloner:    cloner,
		crawler:   crawler,
		converter: converter,
		pool:      pool,
		recorder:  recorder,
		logger:    logger,
	}
}

// GetJob returns the current job record.
func (o *Orchestrator) GetJob(ctx context.Context, id string) (*entity.Job, error) {
	return o.store.Get(ctx, id)
}

// outcome accumulates what a background run must report once it is
// over, whatever path it took. The job store may have expired by then,
// so the terminal status is tracked locally rather than re-read.
type outcome struct {
	status  entity.JobStatus
	errText string
	bytes   int64
}

func (o *Orchestrator) failJob(ctx context.Context, id, msg string) outcome {
	if err := o.store.SetFailed(ctx, id, msg); err != nil {
		o.logger.Error("failed to mark job failed",
			slog.String("job_id", id),
			slog.String("error", err.Error()),
		)
	}
	return outcome{status: entity.StatusFailed, errText: msg}
}

// completeJob persists the rendered document and marks the job
// completed. Warnings complete like any other result: the document is
// still useful and the caller sees the warning in its first line.
func (o *Orchestrator) completeJob(ctx context.Context, id, content string) outcome {
	path, err := o.roots.WriteResult(id, content)
	if err != nil {
		o.logger.Error("failed to write result", slog.String("job_id", id), slog.String("error", err.Error()))
		return o.failJob(ctx, id, "Failed to save result file.")
	}
	if err := o.store.SetCompleted(ctx, id, filepath.Base(path)); err != nil {
		o.logger.Error("failed to mark job completed",
			slog.String("job_id", id),
			slog.String("error", err.Error()),
		)
	}
	return outcome{status: entity.StatusCompleted, bytes: int64(len(content))}
}

func (o *Orchestrator) finishConvert(ctx context.Context, id string, res convert.Result) outcome {
	if res.Kind == convert.KindError {
		return o.failJob(ctx, id, res.FirstLine())
	}
	return o.completeJob(ctx, id, res.Content)
}

func (o *Orchestrator) setStatus(ctx context.Context, id string, status entity.JobStatus) {
	if err := o.store.UpdateStatus(ctx, id, status); err != nil {
		o.logger.Error("failed to update job status",
			slog.String("job_id", id),
			slog.String("status", string(status)),
			slog.String("error", err.Error()),
		)
	}
}

// guard wraps a background run: a panic becomes a failed job instead of
// a crashed worker, and the caller-supplied finish hook always runs,
// on a context immune to shutdown cancellation so terminal writes land.
func (o *Orchestrator) guard(ctx context.Context, id string, out *outcome, finish func(ctx context.Context)) {
	bg := context.WithoutCancel(ctx)
	if r := recover(); r != nil {
		o.logger.Error("job panicked", slog.String("job_id", id), slog.Any("panic", r))
		*out = o.failJob(bg, id, fmt.Sprintf("Unexpected error: %v", r))
	}
	finish(bg)
}

func (o *Orchestrator) removeStaging(id, dir string) {
	if err := os.RemoveAll(dir); err != nil {
		o.logger.Warn("failed to remove staging directory",
			slog.String("job_id", id),
			slog.String("dir", dir),
			slog.String("error", err.Error()),
		)
	}
}

// SubmitUpload creates an upload job and stages the request's files
// synchronously, so the caller learns immediately when nothing valid
// was sent. Conversion happens in the background.
func (o *Orchestrator) SubmitUpload(ctx context.Context, entries []ingest.FileEntry, declaredCount int) (string, error) {
	job, err := o.store.Create(ctx, entity.TypeUpload)
	if err != nil {
		return "", err
	}
	o.recorder.StartUpload(ctx, job.ID, declaredCount)
	o.setStatus(ctx, job.ID, entity.StatusUploading)

	dir := o.roots.UploadDir(job.ID)
	uploadStart := time.Now()
	saved, err := ingest.SaveFiles(dir, entries, o.logger)
	uploadDur := time.Since(uploadStart)
	if err != nil {
		msg := "Failed to store uploaded files."
		if errors.Is(err, ingest.ErrNoValidFiles) {
			msg = "No valid files uploaded."
		}
		out := o.failJob(ctx, job.ID, msg)
		o.removeStaging(job.ID, dir)
		o.recorder.FinishUpload(ctx, job.ID, analytics.Outcome{
			Status:    string(out.status),
			ErrorText: out.errText,
			Duration:  uploadDur,
		}, analytics.UploadExtras{UploadDuration: uploadDur})
		return job.ID, nil
	}

	o.logger.Info("upload staged",
		slog.String("job_id", job.ID),
		slog.Int("accepted", saved.Accepted),
		slog.Int("skipped", saved.Skipped),
		slog.Int64("bytes", saved.Bytes),
	)

	ok := o.pool.Submit(func(taskCtx context.Context) {
		o.runUpload(taskCtx, job.ID, dir, saved, uploadDur)
	})
	if !ok {
		out := o.failJob(ctx, job.ID, "Server is busy, please try again later.")
		o.removeStaging(job.ID, dir)
		o.recorder.FinishUpload(ctx, job.ID, analytics.Outcome{
			Status:    string(out.status),
			ErrorText: out.errText,
			Duration:  uploadDur,
		}, analytics.UploadExtras{
			FilesProcessed: saved.Accepted,
			UploadBytes:    saved.Bytes,
			UploadDuration: uploadDur,
		})
	}
	return job.ID, nil
}

func (o *Orchestrator) runUpload(ctx context.Context, id, dir string, saved ingest.UploadResult, uploadDur time.Duration) {
	start := time.Now()
	out := outcome{status: entity.StatusFailed}
	var convertDur time.Duration

	defer o.guard(ctx, id, &out, func(bg context.Context) {
		o.removeStaging(id, dir)
		o.recorder.FinishUpload(bg, id, analytics.Outcome{
			Status:      string(out.status),
			ErrorText:   out.errText,
			OutputBytes: out.bytes,
			Duration:    uploadDur + time.Since(start),
		}, analytics.UploadExtras{
			FilesProcessed: saved.Accepted,
			UploadBytes:    saved.Bytes,
			UploadDuration: uploadDur,
			ConvertTime:    convertDur,
		})
	})

	o.setStatus(ctx, id, entity.StatusProcessing)

	root, err := ingest.EffectiveRoot(dir)
	if err != nil {
		out = o.failJob(ctx, id, "No valid files uploaded.")
		return
	}

	convertStart := time.Now()
	res := o.converter.Convert(ctx, root, nil, convert.DefaultExcludes())
	convertDur = time.Since(convertStart)

	out = o.finishConvert(ctx, id, res)
}

// SubmitRepo creates a repository job. The URL is validated up front:
// a malformed URL is a request error, not a failed job.
func (o *Orchestrator) SubmitRepo(ctx context.Context, url string, include, exclude []string) (string, error) {
	if err := ingest.ValidateRepoURL(url); err != nil {
		return "", err
	}

	job, err := o.store.Create(ctx, entity.TypeRepo)
	if err != nil {
		return "", err
	}
	o.recorder.StartRepo(ctx, job.ID, url)

	ok := o.pool.Submit(func(taskCtx context.Context) {
		o.runRepo(taskCtx, job.ID, url, include, exclude)
	})
	if !ok {
		out := o.failJob(ctx, job.ID, "Server is busy, please try again later.")
		o.recorder.FinishRepo(ctx, job.ID, analytics.Outcome{
			Status:    string(out.status),
			ErrorText: out.errText,
		}, analytics.RepoExtras{RepoName: ingest.RepoName(url)})
	}
	return job.ID, nil
}

func (o *Orchestrator) runRepo(ctx context.Context, id, url string, include, exclude []string) {
	start := time.Now()
	out := outcome{status: entity.StatusFailed}
	baseDir := o.roots.CloneDir(id)
	extras := analytics.RepoExtras{RepoName: ingest.RepoName(url)}

	defer o.guard(ctx, id, &out, func(bg context.Context) {
		o.removeStaging(id, baseDir)
		o.recorder.FinishRepo(bg, id, analytics.Outcome{
			Status:      string(out.status),
			ErrorText:   out.errText,
			OutputBytes: out.bytes,
			Duration:    time.Since(start),
		}, extras)
	})

	o.setStatus(ctx, id, entity.StatusCloning)

	cloneStart := time.Now()
	err := o.cloner.Clone(ctx, url, baseDir, extras.RepoName)
	extras.CloneDuration = time.Since(cloneStart)
	if err != nil {
		out = o.failJob(ctx, id, err.Error())
		return
	}
	extras.CloneOK = true
	repoDir := filepath.Join(baseDir, extras.RepoName)
	extras.RepoBytes = ingest.DirSize(repoDir)

	o.setStatus(ctx, id, entity.StatusProcessing)

	convertStart := time.Now()
	res := o.converter.Convert(ctx, repoDir, include, convert.MergeExcludes(exclude))
	extras.ConvertTime = time.Since(convertStart)

	out = o.finishConvert(ctx, id, res)
}

// SubmitWebsite creates a website job. Crawl bounds are assumed to be
// validated by the caller.
func (o *Orchestrator) SubmitWebsite(ctx context.Context, url string, opts ingest.CrawlOptions) (string, error) {
	job, err := o.store.Create(ctx, entity.TypeWebsite)
	if err != nil {
		return "", err
	}
	o.recorder.StartWebsite(ctx, job.ID, analytics.WebsiteSettings{
		URL:          url,
		MaxDepth:     opts.MaxDepth,
		MaxPages:     opts.MaxPages,
		StayOnDomain: opts.StayOnDomain,
		Include:      opts.Include,
		Exclude:      opts.Exclude,
		Keywords:     opts.Keywords,
	})

	ok := o.pool.Submit(func(taskCtx context.Context) {
		o.runWebsite(taskCtx, job.ID, url, opts)
	})
	if !ok {
		out := o.failJob(ctx, job.ID, "Server is busy, please try again later.")
		o.recorder.FinishWebsite(ctx, job.ID, analytics.Outcome{
			Status:    string(out.status),
			ErrorText: out.errText,
		}, analytics.WebsiteExtras{})
	}
	return job.ID, nil
}

func (o *Orchestrator) runWebsite(ctx context.Context, id, url string, opts ingest.CrawlOptions) {
	start := time.Now()
	out := outcome{status: entity.StatusFailed}
	extras := analytics.WebsiteExtras{}

	defer o.guard(ctx, id, &out, func(bg context.Context) {
		o.recorder.FinishWebsite(bg, id, analytics.Outcome{
			Status:      string(out.status),
			ErrorText:   out.errText,
			OutputBytes: out.bytes,
			Duration:    time.Since(start),
		}, extras)
	})

	o.setStatus(ctx, id, entity.StatusCrawling)

	crawlStart := time.Now()
	res, stats := o.crawler.Crawl(ctx, url, opts)
	extras.CrawlDuration = time.Since(crawlStart)
	extras.PagesCrawled = stats.PagesVisited

	if res.Kind == convert.KindError {
		out = o.failJob(ctx, id, res.FirstLine())
		return
	}

	o.setStatus(ctx, id, entity.StatusProcessing)
	out = o.completeJob(ctx, id, res.Content)
}
