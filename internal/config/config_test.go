package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.NotEmpty(t, cfg.Storage.OutputDir)
	assert.Positive(t, cfg.FFmpeg.ProbeTimeout)
	assert.Positive(t, cfg.Stream.MinIdle)
	assert.Positive(t, cfg.Stream.CleanupMargin)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9090
  api_key: sekrit
storage:
  output_dir: /tmp/out
logging:
  level: debug
stream:
  min_idle: 2s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "sekrit", cfg.Server.APIKey)
	assert.Equal(t, "/tmp/out", cfg.Storage.OutputDir)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 2*time.Second, cfg.Stream.MinIdle)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("SORACAST_SERVER_PORT", "7070")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := func() *Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	cfg := base()
	cfg.Server.Port = 0
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Storage.MotionsDir = ""
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Logging.Level = "verbose"
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Stream.MinIdle = 0
	assert.Error(t, cfg.Validate())
}

func TestAddressAndStreamDir(t *testing.T) {
	s := ServerConfig{Host: "127.0.0.1", Port: 8080}
	assert.Equal(t, "127.0.0.1:8080", s.Address())

	st := StorageConfig{OutputDir: "/data/outputs"}
	assert.Equal(t, filepath.Join("/data/outputs", "stream"), st.StreamDir())
}

func TestRewritePath(t *testing.T) {
	s := ServerConfig{}
	assert.Equal(t, "/data/outputs/a.mp4", s.RewritePath("/data/outputs", "/data/outputs/a.mp4"))

	s.ResponsePathBase = "/media"
	assert.Equal(t, "/media/a.mp4", s.RewritePath("/data/outputs", "/data/outputs/a.mp4"))
	assert.Equal(t, filepath.Join("/media", "stream", "b.mp4"),
		s.RewritePath("/data/outputs", "/data/outputs/stream/b.mp4"))

	// Paths outside the output directory pass through unchanged.
	assert.Equal(t, "/elsewhere/c.mp4", s.RewritePath("/data/outputs", "/elsewhere/c.mp4"))
}

func TestIngestAppKey(t *testing.T) {
	app, key, err := IngestAppKey("rtmp://localhost:1935/live/abc123")
	require.NoError(t, err)
	assert.Equal(t, "live", app)
	assert.Equal(t, "abc123", key)

	_, _, err = IngestAppKey("http://localhost/live/abc")
	assert.Error(t, err)

	_, _, err = IngestAppKey("rtmp://localhost:1935/onlyapp")
	assert.Error(t, err)
}
