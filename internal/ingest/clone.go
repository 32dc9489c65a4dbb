package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"
	"time"

	giturls "github.com/whilp/git-urls"
)

var (
	// ErrInvalidRepoURL is a validation failure surfaced before any job
	// is created.
	ErrInvalidRepoURL = errors.New("invalid repository URL format")

	// ErrCloneTimeout means the clone subprocess exceeded its hard bound
	// and was killed.
	ErrCloneTimeout = errors.New("repository cloning timed out")
)

const cloneErrDetailLimit = 200

// ValidateRepoURL requires a basic http(s)://host/... shape. SSH and
// scp-style remotes are rejected: the clone runs unauthenticated.
func ValidateRepoURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ErrInvalidRepoURL
	}
	u, err := giturls.Parse(raw)
	if err != nil {
		return ErrInvalidRepoURL
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ErrInvalidRepoURL
	}
	if u.Host == "" {
		return ErrInvalidRepoURL
	}
	return nil
}

// RepoName derives the clone target directory name from the last URL
// path segment, with any .git suffix trimmed.
func RepoName(raw string) string {
	u, err := giturls.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "repo"
	}
	name := path.Base(strings.TrimSuffix(strings.TrimSuffix(u.Path, "/"), ".git"))
	if name == "" || name == "." || name == "/" {
		return "repo"
	}
	return name
}

// Cloner shallow-clones repositories into job-scoped staging
// directories through the git subprocess, under a hard timeout.
type Cloner struct {
	timeout time.Duration
	logger  *slog.Logger

	// newCommand builds the clone command; replaceable in tests.
	newCommand func(ctx context.Context, url, baseDir, target string) *exec.Cmd
}

func NewCloner(timeout time.Duration, logger *slog.Logger) *Cloner {
	c := &Cloner{timeout: timeout, logger: logger}
	c.newCommand = func(ctx context.Context, url, baseDir, target string) *exec.Cmd {
		cmd := exec.CommandContext(ctx, "git", "clone", "--depth", "1", url, target)
		cmd.Dir = baseDir
		return cmd
	}
	return c
}

// Clone performs a depth-1 clone of url into baseDir/target. On timeout
// the subprocess is killed and ErrCloneTimeout is returned; on non-zero
// exit the error carries the first part of the process's stderr.
func (c *Cloner) Clone(ctx context.Context, url, baseDir, target string) error {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return fmt.Errorf("failed to create clone directory: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := c.newCommand(runCtx, url, baseDir, target)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	c.logger.Info("starting clone", slog.String("url", url), slog.String("dir", baseDir))
	err := cmd.Run()
	if err == nil {
		// a clone that finished is a success even if the deadline has
		// just passed; a timeout always surfaces as a Run error
		c.logger.Info("clone finished", slog.String("url", url))
		return nil
	}

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		c.logger.Error("clone timed out",
			slog.String("url", url),
			slog.Duration("timeout", c.timeout),
		)
		return ErrCloneTimeout
	}

	detail := strings.TrimSpace(stderr.String())
	if detail == "" {
		detail = "Unknown clone error"
	}
	c.logger.Error("clone failed", slog.String("url", url), slog.String("stderr", detail))
	return fmt.Errorf("failed to clone repository: %s", Truncate(detail, cloneErrDetailLimit))
}

// DirSize measures a directory tree in bytes, best-effort: unreadable
// subpaths are skipped. For analytics only.
func DirSize(dir string) int64 {
	var total int64
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.Type().IsRegular() {
			if info, err := d.Info(); err == nil {
				total += info.Size()
			}
		}
		return nil
	})
	return total
}

// Truncate limits diagnostic text to n characters.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
