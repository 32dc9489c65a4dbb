package convert_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promptman-backend/internal/convert"
	"promptman-backend/internal/logger"
)

func TestDecode_Markers(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		wantKind  convert.Kind
		firstLine string
	}{
		{
			name:      "plain content",
			content:   "# Project\n\ncode here",
			wantKind:  convert.KindOK,
			firstLine: "# Project",
		},
		{
			name:      "error marker",
			content:   "# Error: Code2Prompt Failed\n\ndetails",
			wantKind:  convert.KindError,
			firstLine: "# Error: Code2Prompt Failed",
		},
		{
			name:      "warning marker",
			content:   "# Warning: No Content Extracted\n\ndetails",
			wantKind:  convert.KindWarning,
			firstLine: "# Warning: No Content Extracted",
		},
		{
			name:      "marker not on first line is plain content",
			content:   "# Project\n# Error: not really",
			wantKind:  convert.KindOK,
			firstLine: "# Project",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := convert.Decode(tt.content)
			assert.Equal(t, tt.wantKind, res.Kind)
			assert.Equal(t, tt.firstLine, res.FirstLine())
			assert.Equal(t, tt.content, res.Content)
		})
	}
}

func TestMergeExcludes_SupersetWithoutDuplicates(t *testing.T) {
	merged := convert.MergeExcludes([]string{"*.snap", "node_modules", "", "*.snap"})

	for _, def := range convert.DefaultExcludes() {
		assert.Contains(t, merged, def)
	}
	assert.Contains(t, merged, "*.snap")

	seen := map[string]int{}
	for _, p := range merged {
		seen[p]++
	}
	for p, n := range seen {
		assert.Equal(t, 1, n, "pattern %q appears more than once", p)
	}
}

func TestConverter_PreflightMissingDir(t *testing.T) {
	c := convert.NewConverter("code2prompt", time.Minute, logger.NewDefault())

	res := c.Convert(context.Background(), filepath.Join(t.TempDir(), "nope"), nil, nil)
	assert.Equal(t, convert.KindError, res.Kind)
	assert.Contains(t, res.FirstLine(), "Input Path Not Found")
}

func TestConverter_PreflightEmptyDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "empty-subdir"), 0o755))

	c := convert.NewConverter("code2prompt", time.Minute, logger.NewDefault())

	res := c.Convert(context.Background(), dir, nil, nil)
	assert.Equal(t, convert.KindWarning, res.Kind)
	assert.Contains(t, res.FirstLine(), "No Files to Analyze")
}

func TestConverter_ToolOutputDecoded(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main"), 0o644))

	// stand-in tool: echoes a fixed rendered document to stdout
	c := convert.NewConverter("echo", time.Minute, logger.NewDefault())

	res := c.Convert(context.Background(), dir, nil, nil)
	assert.Equal(t, convert.KindOK, res.Kind)
	assert.Contains(t, res.Content, "--path")
}

func TestConverter_ToolMissing(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main"), 0o644))

	c := convert.NewConverter("definitely-not-a-real-tool-9f3a", time.Minute, logger.NewDefault())

	res := c.Convert(context.Background(), dir, nil, nil)
	assert.Equal(t, convert.KindError, res.Kind)
}
