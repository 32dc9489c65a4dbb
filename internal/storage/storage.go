package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

// Roots are the three scratch areas: upload staging, clone staging and
// the result store. Staging entries are namespaced by job id and never
// shared across jobs.
type Roots struct {
	Upload  string
	Clone   string
	Results string
}

// Ensure creates the three directories if they do not exist yet.
func (r Roots) Ensure() error {
	for _, dir := range []string{r.Upload, r.Clone, r.Results} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// UploadDir returns the per-job upload staging directory.
func (r Roots) UploadDir(jobID string) string {
	return filepath.Join(r.Upload, jobID)
}

// CloneDir returns the per-job clone staging directory.
func (r Roots) CloneDir(jobID string) string {
	return filepath.Join(r.Clone, jobID)
}

// ResultPath returns the result artifact path for a job.
func (r Roots) ResultPath(jobID string) string {
	return filepath.Join(r.Results, jobID+".md")
}

// WriteResult persists the rendered document for a job and returns its path.
func (r Roots) WriteResult(jobID, content string) (string, error) {
	if err := os.MkdirAll(r.Results, 0o755); err != nil {
		return "", err
	}
	path := r.ResultPath(jobID)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("failed to write result file: %w", err)
	}
	return path, nil
}
