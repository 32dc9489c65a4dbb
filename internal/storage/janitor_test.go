package storage_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promptman-backend/internal/logger"
	"promptman-backend/internal/storage"
)

func testRoots(t *testing.T) storage.Roots {
	t.Helper()
	base := t.TempDir()
	roots := storage.Roots{
		Upload:  filepath.Join(base, "temp"),
		Clone:   filepath.Join(base, "temp_clones"),
		Results: filepath.Join(base, "results"),
	}
	require.NoError(t, roots.Ensure())
	return roots
}

func TestJanitor_SweepRemovesOnlyOldEntries(t *testing.T) {
	roots := testRoots(t)

	oldDir := roots.UploadDir("old-job")
	require.NoError(t, os.MkdirAll(oldDir, 0o755))
	oldTime := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(oldDir, oldTime, oldTime))

	freshDir := roots.UploadDir("fresh-job")
	require.NoError(t, os.MkdirAll(freshDir, 0o755))

	oldResult, err := roots.WriteResult("old-result", "# doc")
	require.NoError(t, err)
	require.NoError(t, os.Chtimes(oldResult, oldTime, oldTime))

	janitor := storage.NewJanitor(roots, 10*time.Minute, logger.NewDefault())
	janitor.Sweep()

	assert.NoDirExists(t, oldDir)
	assert.DirExists(t, freshDir)
	assert.NoFileExists(t, oldResult)
}

func TestRoots_WriteResult(t *testing.T) {
	roots := testRoots(t)

	path, err := roots.WriteResult("job-1", "# Rendered\n\nbody")
	require.NoError(t, err)
	assert.Equal(t, roots.ResultPath("job-1"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "# Rendered\n\nbody", string(data))
}
