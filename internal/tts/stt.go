package tts

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	oai "github.com/openai/openai-go"
)

// DefaultTranscribeModel is used for caller-supplied audio whose text is not
// known.
const DefaultTranscribeModel = "whisper-1"

// Transcriber turns an audio file into text through the OpenAI transcription
// API. The transcript is re-synthesized with the preset voice and feeds the
// cache key, so recognition errors carry through to the audible output.
type Transcriber struct {
	client oai.Client
	model  string
	logger *slog.Logger
}

// NewTranscriber creates a transcriber. The API key comes from the
// OPENAI_API_KEY environment variable.
func NewTranscriber(model string, logger *slog.Logger) *Transcriber {
	if model == "" {
		model = DefaultTranscribeModel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Transcriber{
		client: oai.NewClient(),
		model:  model,
		logger: logger,
	}
}

// Transcribe returns the transcript of the audio file at path.
func (t *Transcriber) Transcribe(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening audio file: %w", err)
	}
	defer f.Close()

	resp, err := t.client.Audio.Transcriptions.New(ctx, oai.AudioTranscriptionNewParams{
		File:  oai.File(f, filepath.Base(path), "application/octet-stream"),
		Model: oai.AudioModel(t.model),
	})
	if err != nil {
		return "", fmt.Errorf("transcribing audio: %w", err)
	}

	t.logger.Debug("transcription complete",
		slog.String("model", t.model),
		slog.Int("chars", len(resp.Text)),
	)
	return resp.Text, nil
}
