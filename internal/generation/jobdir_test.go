package generation

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobDirLifecycle(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	base := t.TempDir()

	job, err := NewJobDir(base, logger)
	require.NoError(t, err)
	assert.DirExists(t, job.Path())

	require.NoError(t, os.WriteFile(filepath.Join(job.Path(), "scratch.wav"), []byte("x"), 0o640))

	job.Remove()
	assert.NoDirExists(t, job.Path())
}

func TestCleanupLeftoverJobs(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	base := t.TempDir()

	j1, err := NewJobDir(base, logger)
	require.NoError(t, err)
	j2, err := NewJobDir(base, logger)
	require.NoError(t, err)

	// Unrelated content survives.
	require.NoError(t, os.MkdirAll(filepath.Join(base, "stream"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(base, "keep.mp4"), []byte("x"), 0o640))

	removed := CleanupLeftoverJobs(base, logger)
	assert.Equal(t, 2, removed)
	assert.NoDirExists(t, j1.Path())
	assert.NoDirExists(t, j2.Path())
	assert.DirExists(t, filepath.Join(base, "stream"))
	assert.FileExists(t, filepath.Join(base, "keep.mp4"))
}
