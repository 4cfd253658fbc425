package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSandboxResolvePath(t *testing.T) {
	dir := t.TempDir()
	sb, err := NewSandbox(dir)
	require.NoError(t, err)

	resolved, err := sb.ResolvePath("clips/idle.mp4")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(sb.BaseDir(), "clips", "idle.mp4"), resolved)

	// Dot segments that stay inside are fine.
	resolved, err = sb.ResolvePath("clips/../other.mp4")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(sb.BaseDir(), "other.mp4"), resolved)
}

func TestSandboxRejectsEscapes(t *testing.T) {
	sb, err := NewSandbox(t.TempDir())
	require.NoError(t, err)

	_, err = sb.ResolvePath("../outside.mp4")
	assert.Error(t, err)

	_, err = sb.ResolvePath("clips/../../outside.mp4")
	assert.Error(t, err)

	_, err = sb.ResolvePath("/etc/passwd")
	assert.Error(t, err)
}

func TestSandboxCreatesBaseDir(t *testing.T) {
	base := filepath.Join(t.TempDir(), "nested", "motions")
	sb, err := NewSandbox(base)
	require.NoError(t, err)

	info, err := os.Stat(sb.BaseDir())
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestSandboxExists(t *testing.T) {
	dir := t.TempDir()
	sb, err := NewSandbox(dir)
	require.NoError(t, err)

	ok, err := sb.Exists("missing.mp4")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "present.mp4"), []byte("x"), 0o644))
	ok, err = sb.Exists("present.mp4")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMoveFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.mp4")
	dst := filepath.Join(dir, "dst.mp4")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0o644))

	require.NoError(t, MoveFile(src, dst))

	_, err := os.Stat(src)
	assert.True(t, os.IsNotExist(err))

	raw, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(raw))
}

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.mp4")
	dst := filepath.Join(dir, "dst.mp4")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0o644))

	require.NoError(t, CopyFile(src, dst))

	// Source survives a copy.
	_, err := os.Stat(src)
	require.NoError(t, err)

	raw, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(raw))
}
