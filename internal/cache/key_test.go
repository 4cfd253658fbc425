package cache

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soracast/soracast/internal/models"
)

func TestKeyIgnoresInsertionOrder(t *testing.T) {
	a := map[string]any{
		"type":     "speak",
		"presetId": "sora",
		"ttsSettings": map[string]any{
			"defaultVoice": "1",
			"url":          "http://localhost:50021",
		},
	}
	b := map[string]any{
		"ttsSettings": map[string]any{
			"url":          "http://localhost:50021",
			"defaultVoice": "1",
		},
		"presetId": "sora",
		"type":     "speak",
	}

	ka, err := Key(a)
	require.NoError(t, err)
	kb, err := Key(b)
	require.NoError(t, err)
	assert.Equal(t, ka, kb)
}

func TestKeyDiffersOnAnyField(t *testing.T) {
	base := func() map[string]any {
		return SpeakDescriptor("sora", "hello", "neutral", models.AudioProfile{
			Engine:       models.TTSEngineVoicevox,
			DefaultVoice: "1",
			VoicevoxURL:  "http://localhost:50021",
		})
	}

	ref, err := Key(base())
	require.NoError(t, err)

	mutations := []func(map[string]any){
		func(d map[string]any) { d["text"] = "hello!" },
		func(d map[string]any) { d["emotion"] = "happy" },
		func(d map[string]any) { d["presetId"] = "other" },
		func(d map[string]any) { d["ttsSettings"].(map[string]any)["url"] = "http://other:50021" },
	}
	for _, mutate := range mutations {
		d := base()
		mutate(d)
		k, err := Key(d)
		require.NoError(t, err)
		assert.NotEqual(t, ref, k)
	}
}

func TestKeyRoundTrip(t *testing.T) {
	d := IdleDescriptor("sora", 5000, "idle-1", "happy")
	ref, err := Key(d)
	require.NoError(t, err)

	raw, err := json.Marshal(d)
	require.NoError(t, err)
	var restored map[string]any
	require.NoError(t, json.Unmarshal(raw, &restored))

	again, err := Key(restored)
	require.NoError(t, err)
	assert.Equal(t, ref, again)
}

func TestSpeakDescriptorOmitsVoiceMap(t *testing.T) {
	withVoices := SpeakDescriptor("sora", "hi", "happy", models.AudioProfile{
		Engine:          models.TTSEngineVoicevox,
		DefaultVoice:    "1",
		VoicesByEmotion: map[string]string{"happy": "5"},
		VoicevoxURL:     "http://localhost:50021",
	})
	withoutVoices := SpeakDescriptor("sora", "hi", "happy", models.AudioProfile{
		Engine:       models.TTSEngineVoicevox,
		DefaultVoice: "1",
		VoicevoxURL:  "http://localhost:50021",
	})

	ka, err := Key(withVoices)
	require.NoError(t, err)
	kb, err := Key(withoutVoices)
	require.NoError(t, err)
	assert.Equal(t, ka, kb, "voice map must not participate in the key")
}

func TestSpeakAudioDescriptorInputType(t *testing.T) {
	plain := SpeakAudioDescriptor("sora", "abc123", "", false)
	transcribed := SpeakAudioDescriptor("sora", "abc123", "", true)

	assert.Equal(t, InputAudio, plain["inputType"])
	assert.Equal(t, InputAudioTranscribe, transcribed["inputType"])

	ka, err := Key(plain)
	require.NoError(t, err)
	kb, err := Key(transcribed)
	require.NoError(t, err)
	assert.NotEqual(t, ka, kb)
}

func TestCombinedDescriptorOrderSensitive(t *testing.T) {
	ka, err := Key(CombinedDescriptor("sora", []string{"h1", "h2"}))
	require.NoError(t, err)
	kb, err := Key(CombinedDescriptor("sora", []string{"h2", "h1"}))
	require.NoError(t, err)
	assert.NotEqual(t, ka, kb)
}

func TestHashFileMatchesHashBase64(t *testing.T) {
	raw := []byte("pretend this is audio")
	path := filepath.Join(t.TempDir(), "audio.wav")
	require.NoError(t, os.WriteFile(path, raw, 0o640))

	fromFile, err := HashFile(path)
	require.NoError(t, err)

	fromB64, err := HashBase64(base64.StdEncoding.EncodeToString(raw))
	require.NoError(t, err)

	sum := sha256.Sum256(raw)
	assert.Equal(t, hex.EncodeToString(sum[:]), fromFile)
	assert.Equal(t, fromFile, fromB64)
}

func TestHashBase64Invalid(t *testing.T) {
	_, err := HashBase64("not-base64!!!")
	assert.Error(t, err)
}
