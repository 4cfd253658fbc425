// Package cache provides content-addressed reuse of composed outputs: a
// canonical descriptor hash names the output file, and an append-only JSONL
// log records what was produced.
package cache

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/soracast/soracast/internal/models"
)

// Descriptor input types for speak entries.
const (
	InputText            = "text"
	InputAudio           = "audio"
	InputAudioTranscribe = "audio_transcribe"
)

// Key computes the SHA-256 hex digest of the canonical JSON serialization of
// descriptor. Keys are stable across map insertion order at every nesting
// level.
func Key(descriptor map[string]any) (string, error) {
	canonical, err := canonicalJSON(descriptor)
	if err != nil {
		return "", fmt.Errorf("canonicalizing descriptor: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// canonicalJSON serializes v with object keys sorted at every level.
// encoding/json already sorts map keys, but descriptors may nest structs or
// pre-marshaled values, so everything is round-tripped through generic maps
// first.
func canonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return marshalSorted(generic)
}

func marshalSorted(v any) ([]byte, error) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		out := []byte{'{'}
		for i, k := range keys {
			if i > 0 {
				out = append(out, ',')
			}
			kj, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			vj, err := marshalSorted(t[k])
			if err != nil {
				return nil, err
			}
			out = append(out, kj...)
			out = append(out, ':')
			out = append(out, vj...)
		}
		return append(out, '}'), nil
	case []any:
		out := []byte{'['}
		for i, e := range t {
			if i > 0 {
				out = append(out, ',')
			}
			ej, err := marshalSorted(e)
			if err != nil {
				return nil, err
			}
			out = append(out, ej...)
		}
		return append(out, ']'), nil
	default:
		return json.Marshal(v)
	}
}

// SpeakDescriptor builds the descriptor for a speak action driven by text.
func SpeakDescriptor(presetID, text, emotion string, audio models.AudioProfile) map[string]any {
	return map[string]any{
		"type":        "speak",
		"presetId":    presetID,
		"inputType":   InputText,
		"text":        text,
		"emotion":     models.NormalizeEmotion(emotion),
		"ttsEngine":   string(audio.Engine),
		"ttsSettings": audio.SettingsFingerprint(),
	}
}

// SpeakAudioDescriptor builds the descriptor for a speak action driven by
// caller-supplied audio. transcribed selects the input type tag.
func SpeakAudioDescriptor(presetID, audioHash, emotion string, transcribed bool) map[string]any {
	inputType := InputAudio
	if transcribed {
		inputType = InputAudioTranscribe
	}
	return map[string]any{
		"type":      "speak",
		"presetId":  presetID,
		"inputType": inputType,
		"audioHash": audioHash,
		"emotion":   models.NormalizeEmotion(emotion),
	}
}

// IdleDescriptor builds the descriptor for an idle action.
func IdleDescriptor(presetID string, durationMS int64, motionID, emotion string) map[string]any {
	d := map[string]any{
		"type":       "idle",
		"presetId":   presetID,
		"durationMs": durationMS,
		"emotion":    models.NormalizeEmotion(emotion),
	}
	if motionID != "" {
		d["motionId"] = motionID
	}
	return d
}

// ActionDescriptor builds the descriptor for a custom-action output.
func ActionDescriptor(presetID, actionID string) map[string]any {
	return map[string]any{
		"type":     "action",
		"presetId": presetID,
		"actionId": actionID,
	}
}

// CombinedDescriptor builds the descriptor for a combined batch output. The
// per-action hashes are order-sensitive.
func CombinedDescriptor(presetID string, actionHashes []string) map[string]any {
	return map[string]any{
		"type":         "combined",
		"presetId":     presetID,
		"actionHashes": actionHashes,
	}
}

// HashFile returns the SHA-256 hex digest of the file at path, streamed.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening audio file: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing audio file: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashBase64 decodes a base64 audio buffer and returns the SHA-256 hex
// digest of the raw bytes.
func HashBase64(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decoding base64 audio: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}
