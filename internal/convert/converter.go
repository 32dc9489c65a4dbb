package convert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Converter renders a content directory into one prompt-ready document by
// invoking the external code2prompt tool. The tool's own missing/empty
// directory messages are a fallback only: both conditions are checked
// here before the subprocess runs.
type Converter struct {
	toolPath string
	timeout  time.Duration
	logger   *slog.Logger
}

func NewConverter(toolPath string, timeout time.Duration, logger *slog.Logger) *Converter {
	if toolPath == "" {
		toolPath = "code2prompt"
	}
	return &Converter{toolPath: toolPath, timeout: timeout, logger: logger}
}

// Convert runs the tool on dir and returns the decoded result.
func (c *Converter) Convert(ctx context.Context, dir string, include, exclude []string) Result {
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		c.logger.Error("conversion input path missing", slog.String("dir", dir))
		return Errorf("Input Path Not Found",
			fmt.Sprintf("The specified path `%s` does not exist or is not a directory.", dir))
	}

	if !hasFiles(dir) {
		c.logger.Warn("conversion input directory has no files", slog.String("dir", dir))
		return Warningf("No Files to Analyze",
			fmt.Sprintf("The directory `%s` contains no files to analyze.", dir))
	}

	args := []string{"--path", dir}
	if len(include) > 0 {
		args = append(args, "--include", strings.Join(include, ","))
	}
	if len(exclude) > 0 {
		args = append(args, "--exclude", strings.Join(exclude, ","))
	}

	runCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, c.toolPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	c.logger.Info("running conversion", slog.String("dir", dir), slog.String("tool", c.toolPath))
	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	if runCtx.Err() != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		c.logger.Error("conversion timed out",
			slog.String("dir", dir),
			slog.Duration("timeout", c.timeout),
		)
		return Errorf("Processing Timeout",
			fmt.Sprintf("The analysis of directory `%s` exceeded the time limit of %s.", dir, c.timeout))
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			detail := strings.TrimSpace(stderr.String())
			if detail == "" {
				detail = "No error output."
			}
			c.logger.Error("conversion tool failed",
				slog.Int("exit_code", exitErr.ExitCode()),
				slog.String("stderr", detail),
			)
			return Errorf("Code2Prompt Failed",
				fmt.Sprintf("Exit Code: %d\n\n**Error Output:**\n```\n%s\n```", exitErr.ExitCode(), detail))
		}
		c.logger.Error("conversion tool could not run", slog.String("error", err.Error()))
		return Errorf("Conversion Tool Unavailable",
			fmt.Sprintf("`%s` could not be executed: %v. Ensure it is installed and in PATH.", c.toolPath, err))
	}

	if stderr.Len() > 0 {
		c.logger.Warn("conversion stderr output on success", slog.String("stderr", stderr.String()))
	}
	c.logger.Info("conversion finished",
		slog.String("dir", dir),
		slog.Int("output_bytes", stdout.Len()),
		slog.Duration("duration", duration),
	)

	return Decode(stdout.String())
}

// hasFiles reports whether dir contains at least one regular file anywhere
// beneath it.
func hasFiles(dir string) bool {
	found := false
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.Type().IsRegular() {
			found = true
			return filepath.SkipAll
		}
		return nil
	})
	return found
}
