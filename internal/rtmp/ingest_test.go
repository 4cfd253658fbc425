package rtmp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soracast/soracast/internal/config"
)

func TestStartDisabled(t *testing.T) {
	ingest := New(config.RTMPConfig{Enabled: false}, nil)

	require.NoError(t, ingest.Start())
	assert.False(t, ingest.Running())
}

func TestStartExplicitMissingBinaryFails(t *testing.T) {
	ingest := New(config.RTMPConfig{
		Enabled:    true,
		BinaryPath: "/definitely/not/a/binary",
	}, nil)

	// An explicitly configured binary must exist; only PATH lookup of the
	// default binary downgrades to a warning.
	require.Error(t, ingest.Start())
	assert.False(t, ingest.Running())
}

func TestStartMissingDefaultBinaryIsNotFatal(t *testing.T) {
	t.Setenv("PATH", t.TempDir())

	ingest := New(config.RTMPConfig{Enabled: true}, nil)
	require.NoError(t, ingest.Start())
	assert.False(t, ingest.Running())
}

func TestStopWithoutStart(t *testing.T) {
	ingest := New(config.RTMPConfig{}, nil)
	ingest.Stop()
	assert.False(t, ingest.Running())
}

func TestEndpoint(t *testing.T) {
	app, key, err := Endpoint("rtmp://127.0.0.1:1935/live/sora-key")
	require.NoError(t, err)
	assert.Equal(t, "live", app)
	assert.Equal(t, "sora-key", key)

	_, _, err = Endpoint("rtsp://127.0.0.1/live/x")
	assert.Error(t, err)
}
