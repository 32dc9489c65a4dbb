package ingest

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ErrNoValidFiles means every entry of an upload batch was rejected.
// The job fails immediately and no background work is scheduled.
var ErrNoValidFiles = errors.New("no valid files uploaded")

const copyChunkSize = 1 << 20 // 1 MiB

// FileEntry is one uploaded file: a relative path inside the staging
// root and a way to open its content.
type FileEntry struct {
	Path string
	Open func() (io.ReadCloser, error)
}

// UploadResult summarizes a staged upload batch.
type UploadResult struct {
	Accepted int
	Skipped  int
	Bytes    int64
}

// SaveFiles streams an upload batch into dir. Entries with an empty
// filename or an unsafe relative path are skipped and logged; the rest
// of the batch still lands. Returns ErrNoValidFiles when nothing was
// accepted.
func SaveFiles(dir string, entries []FileEntry, logger *slog.Logger) (UploadResult, error) {
	var res UploadResult

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return res, fmt.Errorf("failed to create upload directory: %w", err)
	}

	buf := make([]byte, copyChunkSize)
	for _, entry := range entries {
		rel, ok := SafeRelPath(entry.Path)
		if !ok {
			logger.Warn("skipping upload entry with unsafe path", slog.String("path", entry.Path))
			res.Skipped++
			continue
		}

		n, err := saveOne(dir, rel, entry, buf)
		if err != nil {
			logger.Error("failed to write uploaded file",
				slog.String("path", entry.Path),
				slog.String("error", err.Error()),
			)
			res.Skipped++
			continue
		}
		res.Accepted++
		res.Bytes += n
	}

	if res.Accepted == 0 {
		return res, ErrNoValidFiles
	}
	return res, nil
}

func saveOne(dir, rel string, entry FileEntry, buf []byte) (int64, error) {
	src, err := entry.Open()
	if err != nil {
		return 0, err
	}
	defer src.Close()

	full := filepath.Join(dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return 0, err
	}

	dst, err := os.Create(full)
	if err != nil {
		return 0, err
	}

	n, err := io.CopyBuffer(dst, src, buf)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(full)
		return 0, err
	}
	return n, nil
}

// SafeRelPath normalizes a client-supplied relative path and reports
// whether it may be written under the staging root. The path must equal
// its own normalization and must not climb out of the root.
func SafeRelPath(p string) (string, bool) {
	if p == "" {
		return "", false
	}

	slashed := filepath.ToSlash(p)
	if strings.HasPrefix(slashed, "/") {
		return "", false
	}

	clean := path.Clean(slashed)
	if clean != slashed {
		return "", false
	}
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", false
	}
	return clean, true
}
