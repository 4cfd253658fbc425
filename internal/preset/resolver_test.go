package preset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soracast/soracast/internal/models"
	"github.com/soracast/soracast/internal/storage"
)

func writePresetFile(t *testing.T, content string) (string, *storage.Sandbox) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "presets.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	motions, err := storage.NewSandbox(filepath.Join(dir, "motions"))
	require.NoError(t, err)
	return path, motions
}

const validPresets = `
presets:
  - id: sora
    rtmp_output_url: rtmp://localhost:1935/live/sora
    audio:
      engine: voicevox
      voicevox_url: http://localhost:50021
      voice: "1"
      voices_by_emotion:
        Happy: "3"
    motions:
      - id: idle-long
        path: sora/idle-long.mp4
        kind: idle
        size: large
      - id: idle-short
        path: sora/idle-short.mp4
        kind: idle
        size: small
      - id: talk-happy
        path: sora/talk-happy.mp4
        kind: speech
        size: large
        emotion: HAPPY
      - id: enter-neutral
        path: sora/enter.mp4
        kind: transition-enter
      - id: wave
        path: sora/wave.mp4
        kind: custom-action
`

func TestLoadValidPreset(t *testing.T) {
	path, motions := writePresetFile(t, validPresets)

	r, err := Load(path, motions)
	require.NoError(t, err)

	p, err := r.Get("sora")
	require.NoError(t, err)
	assert.Equal(t, "rtmp://localhost:1935/live/sora", p.RTMPOutputURL)

	// Size classes index the idle pool.
	assert.Len(t, p.IdlePool[models.SizeLarge], 1)
	assert.Len(t, p.IdlePool[models.SizeSmall], 1)

	// Emotions are normalized to lowercase.
	require.Contains(t, p.SpeechPool, "happy")
	assert.Len(t, p.SpeechPool["happy"][models.SizeLarge], 1)
	assert.Contains(t, p.Audio.VoicesByEmotion, "happy")

	// Transitions default to neutral.
	assert.Len(t, p.EnterTransitions["neutral"], 1)

	// Custom actions are keyed by lowercase id.
	_, ok := p.ActionsByID["wave"]
	assert.True(t, ok)

	// Clip paths resolve below the motions directory.
	clip := p.IdlePool[models.SizeLarge][0]
	assert.True(t, filepath.IsAbs(clip.Path))
	assert.Contains(t, clip.Path, motions.BaseDir())
}

func TestLoadRejectsEscapingClipPath(t *testing.T) {
	path, motions := writePresetFile(t, `
presets:
  - id: sora
    rtmp_output_url: rtmp://localhost/live/sora
    audio:
      engine: openai
    motions:
      - id: idle-long
        path: ../../etc/passwd
        kind: idle
`)

	_, err := Load(path, motions)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "escapes")
}

func TestLoadRejectsReservedActionNames(t *testing.T) {
	path, motions := writePresetFile(t, `
presets:
  - id: sora
    rtmp_output_url: rtmp://localhost/live/sora
    audio:
      engine: openai
    motions:
      - id: idle-long
        path: idle.mp4
        kind: idle
      - id: speak
        path: speak.mp4
        kind: custom-action
`)

	_, err := Load(path, motions)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrReservedAction)
}

func TestLoadRejectsPresetWithoutIdleClips(t *testing.T) {
	path, motions := writePresetFile(t, `
presets:
  - id: sora
    rtmp_output_url: rtmp://localhost/live/sora
    audio:
      engine: openai
    motions:
      - id: talk-a
        path: talk.mp4
        kind: speech
`)

	_, err := Load(path, motions)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "idle")
}

func TestLoadRejectsDuplicates(t *testing.T) {
	path, motions := writePresetFile(t, `
presets:
  - id: sora
    rtmp_output_url: rtmp://localhost/live/sora
    audio:
      engine: openai
    motions:
      - id: idle-long
        path: idle.mp4
        kind: idle
      - id: idle-long
        path: idle2.mp4
        kind: idle
`)

	_, err := Load(path, motions)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestGetUnknownPreset(t *testing.T) {
	path, motions := writePresetFile(t, validPresets)

	r, err := Load(path, motions)
	require.NoError(t, err)

	_, err = r.Get("nope")
	assert.ErrorIs(t, err, models.ErrPresetNotFound)

	assert.Equal(t, []string{"sora"}, r.IDs())
}
