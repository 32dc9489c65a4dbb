package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"promptman-backend/internal/config"
	"promptman-backend/internal/entity"
	"promptman-backend/internal/ingest"
	"promptman-backend/internal/jobstore"
	"promptman-backend/internal/storage"
)

const maxUploadMemory = 32 << 20

// Service is what the HTTP layer needs from the orchestrator.
type Service interface {
	SubmitUpload(ctx context.Context, entries []ingest.FileEntry, declaredCount int) (string, error)
	SubmitRepo(ctx context.Context, url string, include, exclude []string) (string, error)
	SubmitWebsite(ctx context.Context, url string, opts ingest.CrawlOptions) (string, error)
	GetJob(ctx context.Context, id string) (*entity.Job, error)
}

type Handler struct {
	svc       Service
	roots     storage.Roots
	crawl     config.CrawlConfig
	retention time.Duration
}

func NewHandler(svc Service, roots storage.Roots, crawl config.CrawlConfig, retention time.Duration) *Handler {
	return &Handler{svc: svc, roots: roots, crawl: crawl, retention: retention}
}

type submitResp struct {
	JobID string `json:"job_id"`
}

type processRepoDTO struct {
	URL             string   `json:"url"`
	IncludePatterns []string `json:"include_patterns,omitempty"`
	ExcludePatterns []string `json:"exclude_patterns,omitempty"`
}

type processWebsiteDTO struct {
	URL             string   `json:"url"`
	MaxDepth        *int     `json:"max_depth,omitempty"`
	MaxPages        *int     `json:"max_pages,omitempty"`
	StayOnDomain    *bool    `json:"stay_on_domain,omitempty"`
	IncludePatterns []string `json:"include_patterns,omitempty"`
	ExcludePatterns []string `json:"exclude_patterns,omitempty"`
	Keywords        []string `json:"keywords,omitempty"`
}

type jobResp struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	ResultFile string `json:"result_file,omitempty"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

func (h *Handler) submitError(w http.ResponseWriter, err error) {
	if errors.Is(err, jobstore.ErrUnavailable) {
		writeErr(w, http.StatusServiceUnavailable, "Job storage is unavailable, please try again later.")
		return
	}
	writeErr(w, http.StatusInternalServerError, "Failed to create job.")
}

// UploadCodebase godoc
// @Summary Upload project files for conversion
// @Description Stages the uploaded files and renders them as one prompt-ready document in the background.
// @Tags jobs
// @Accept multipart/form-data
// @Produce json
// @Param files formData file true "project files (relative paths preserved)"
// @Param file_count formData int false "number of files originally selected by the client"
// @Success 202 {object} submitResp
// @Failure 400 {object} errorResponse
// @Failure 503 {object} errorResponse
// @Router /api/upload-codebase [post]
func (h *Handler) UploadCodebase(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeErr(w, http.StatusBadRequest, "Invalid multipart form.")
		return
	}
	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		writeErr(w, http.StatusBadRequest, "No files provided.")
		return
	}

	declared := len(files)
	if v := r.FormValue("file_count"); v != "" {
		if _, err := fmt.Sscanf(v, "%d", &declared); err != nil {
			declared = len(files)
		}
	}

	entries := make([]ingest.FileEntry, 0, len(files))
	for _, fh := range files {
		fh := fh
		entries = append(entries, ingest.FileEntry{
			Path: fh.Filename,
			Open: func() (io.ReadCloser, error) { return fh.Open() },
		})
	}

	id, err := h.svc.SubmitUpload(r.Context(), entries, declared)
	if err != nil {
		h.submitError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, submitResp{JobID: id})
}

// ProcessRepo godoc
// @Summary Convert a git repository
// @Description Clones the repository (depth 1) and renders it as one prompt-ready document in the background.
// @Tags jobs
// @Accept json
// @Produce json
// @Param request body processRepoDTO true "repository url plus optional include/exclude glob patterns"
// @Success 202 {object} submitResp
// @Failure 400 {object} errorResponse
// @Failure 503 {object} errorResponse
// @Router /api/process-repo [post]
func (h *Handler) ProcessRepo(w http.ResponseWriter, r *http.Request) {
	var dto processRepoDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeErr(w, http.StatusBadRequest, "Invalid JSON body.")
		return
	}
	if dto.URL == "" {
		writeErr(w, http.StatusBadRequest, "Repository URL is required.")
		return
	}

	id, err := h.svc.SubmitRepo(r.Context(), dto.URL, dto.IncludePatterns, dto.ExcludePatterns)
	if err != nil {
		if errors.Is(err, ingest.ErrInvalidRepoURL) {
			writeErr(w, http.StatusBadRequest, "Invalid repository URL.")
			return
		}
		h.submitError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, submitResp{JobID: id})
}

// ProcessWebsite godoc
// @Summary Crawl a website into one document
// @Description Crawls the site within the requested bounds and renders the extracted text as one document.
// @Tags jobs
// @Accept json
// @Produce json
// @Param request body processWebsiteDTO true "start url plus crawl bounds and filters"
// @Success 202 {object} submitResp
// @Failure 400 {object} errorResponse
// @Failure 503 {object} errorResponse
// @Router /api/process-website [post]
func (h *Handler) ProcessWebsite(w http.ResponseWriter, r *http.Request) {
	var dto processWebsiteDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeErr(w, http.StatusBadRequest, "Invalid JSON body.")
		return
	}
	if dto.URL == "" {
		writeErr(w, http.StatusBadRequest, "Website URL is required.")
		return
	}
	if u, err := url.Parse(dto.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
		writeErr(w, http.StatusBadRequest, "Website URL must be a valid http or https URL.")
		return
	}

	opts := ingest.CrawlOptions{
		MaxDepth:     h.crawl.DefaultMaxDepth,
		MaxPages:     h.crawl.DefaultMaxPages,
		StayOnDomain: true,
		Include:      dto.IncludePatterns,
		Exclude:      dto.ExcludePatterns,
		Keywords:     dto.Keywords,
	}
	if dto.MaxDepth != nil {
		opts.MaxDepth = *dto.MaxDepth
	}
	if dto.MaxPages != nil {
		opts.MaxPages = *dto.MaxPages
	}
	if dto.StayOnDomain != nil {
		opts.StayOnDomain = *dto.StayOnDomain
	}
	if opts.MaxDepth < 0 || opts.MaxDepth > h.crawl.MaxDepthLimit {
		writeErr(w, http.StatusBadRequest, fmt.Sprintf("max_depth must be between 0 and %d.", h.crawl.MaxDepthLimit))
		return
	}
	if opts.MaxPages < 1 || opts.MaxPages > h.crawl.MaxPagesLimit {
		writeErr(w, http.StatusBadRequest, fmt.Sprintf("max_pages must be between 1 and %d.", h.crawl.MaxPagesLimit))
		return
	}

	id, err := h.svc.SubmitWebsite(r.Context(), dto.URL, opts)
	if err != nil {
		h.submitError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, submitResp{JobID: id})
}

// JobStatus godoc
// @Summary Get job status
// @Tags jobs
// @Produce json
// @Param id path string true "job id (uuid)"
// @Success 200 {object} jobResp
// @Failure 400 {object} errorResponse
// @Failure 404 {object} errorResponse
// @Router /api/job-status/{id} [get]
func (h *Handler) JobStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		writeErr(w, http.StatusBadRequest, "Invalid job id.")
		return
	}

	job, err := h.svc.GetJob(r.Context(), id)
	if err != nil {
		if errors.Is(err, jobstore.ErrNotFound) {
			writeErr(w, http.StatusNotFound, "Job not found or expired.")
			return
		}
		writeErr(w, http.StatusServiceUnavailable, "Job storage is unavailable.")
		return
	}

	writeJSON(w, http.StatusOK, jobResp{
		ID:         job.ID,
		Type:       string(job.Type),
		Status:     string(job.Status),
		Error:      job.Error,
		ResultFile: job.ResultFile,
		CreatedAt:  job.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  job.UpdatedAt.Format(time.RFC3339),
	})
}

// Download godoc
// @Summary Download the rendered document
// @Description Streams the markdown result of a completed job.
// @Tags jobs
// @Produce text/markdown
// @Param id path string true "job id (uuid)"
// @Success 200 {string} string "markdown document"
// @Failure 400 {object} errorResponse
// @Failure 404 {object} errorResponse
// @Router /api/download/{id} [get]
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		writeErr(w, http.StatusBadRequest, "Invalid job id.")
		return
	}

	job, err := h.svc.GetJob(r.Context(), id)
	if err != nil {
		if errors.Is(err, jobstore.ErrNotFound) {
			writeErr(w, http.StatusNotFound, "Job not found or expired.")
			return
		}
		writeErr(w, http.StatusServiceUnavailable, "Job storage is unavailable.")
		return
	}

	switch {
	case job.Status == entity.StatusFailed:
		writeErr(w, http.StatusBadRequest, "Job failed: "+ingest.Truncate(job.Error, 200))
		return
	case job.Status != entity.StatusCompleted:
		writeErr(w, http.StatusBadRequest, "Job is not completed yet. Current status: "+string(job.Status))
		return
	}

	path := h.roots.ResultPath(id)
	if _, err := os.Stat(path); err != nil {
		msg := "Result file not found."
		if time.Since(job.UpdatedAt) > h.retention {
			msg = "Result file not found. It was likely cleaned up due to age."
		}
		writeErr(w, http.StatusNotFound, msg)
		return
	}

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "promptman_result_"+id+".md"))
	http.ServeFile(w, r, path)
}
