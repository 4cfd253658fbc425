package handlers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soracast/soracast/internal/models"
)

type fakeStatusProvider struct {
	snapshot models.StreamSnapshot
}

func (f *fakeStatusProvider) Status() models.StreamSnapshot {
	return f.snapshot
}

func TestHealthHandlerGetHealth(t *testing.T) {
	handler := NewHealthHandler("1.2.3")

	out, err := handler.GetHealth(context.Background(), nil)
	require.NoError(t, err)
	require.NotNil(t, out)

	assert.Equal(t, "healthy", out.Body.Status)
	assert.Equal(t, "1.2.3", out.Body.Version)
	assert.NotEmpty(t, out.Body.Uptime)
	assert.NotZero(t, out.Body.CPUInfo.Cores)
	assert.Equal(t, "STOPPED", out.Body.Stream.Status)
}

func TestHealthHandlerReportsStreamPhase(t *testing.T) {
	provider := &fakeStatusProvider{snapshot: models.StreamSnapshot{
		Phase:       models.PhaseSpeak,
		PresetID:    "sora",
		QueueLength: 3,
	}}
	handler := NewHealthHandler("dev").WithStreamService(provider)

	out, err := handler.GetHealth(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "SPEAK", out.Body.Stream.Status)
	assert.Equal(t, "sora", out.Body.Stream.PresetID)
	assert.Equal(t, 3, out.Body.Stream.QueueLength)
}
