package storage

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Janitor removes entries older than the retention window from the
// staging and result roots. It only ever deletes entries strictly older
// than the threshold, so running it concurrently with in-flight jobs is
// safe as long as a live job keeps writing into its staging directory.
// The guarantee is time-based, not a lock: an abnormally slow job could
// in theory cross the threshold mid-flight.
type Janitor struct {
	roots     Roots
	retention time.Duration
	logger    *slog.Logger
}

func NewJanitor(roots Roots, retention time.Duration, logger *slog.Logger) *Janitor {
	return &Janitor{roots: roots, retention: retention, logger: logger}
}

// Run sweeps all roots on every tick until the context is canceled.
func (j *Janitor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.Sweep()
		}
	}
}

// Sweep removes expired entries from all three roots once.
func (j *Janitor) Sweep() {
	for _, dir := range []string{j.roots.Upload, j.roots.Results, j.roots.Clone} {
		j.sweepDir(dir)
	}
}

func (j *Janitor) sweepDir(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	now := time.Now()
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())

		info, err := entry.Info()
		if err != nil {
			j.logger.Warn("cleanup stat failed", slog.String("path", path), slog.String("error", err.Error()))
			continue
		}
		if now.Sub(info.ModTime()) <= j.retention {
			continue
		}

		if err := os.RemoveAll(path); err != nil {
			j.logger.Warn("cleanup failed", slog.String("path", path), slog.String("error", err.Error()))
			continue
		}
		j.logger.Info("cleaned up old entry", slog.String("path", path))
	}
}
