package tts

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	oai "github.com/openai/openai-go"
)

// DefaultOpenAIModel is used when the profile does not name one.
const DefaultOpenAIModel = "gpt-4o-mini-tts"

// OpenAI synthesizes speech through the OpenAI audio API. The API key comes
// from the OPENAI_API_KEY environment variable, which the client library
// reads on its own.
type OpenAI struct {
	client oai.Client
	model  string
	logger *slog.Logger
}

// NewOpenAI creates an OpenAI speech client.
func NewOpenAI(model string, logger *slog.Logger) *OpenAI {
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAI{
		client: oai.NewClient(),
		model:  model,
		logger: logger,
	}
}

// Synthesize renders text spoken with voice to a WAV file at outPath.
func (o *OpenAI) Synthesize(ctx context.Context, text, voice, outPath string) error {
	resp, err := o.client.Audio.Speech.New(ctx, oai.AudioSpeechNewParams{
		Model:          oai.SpeechModel(o.model),
		Input:          text,
		Voice:          oai.AudioSpeechNewParamsVoice(voice),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatWAV,
	})
	if err != nil {
		return fmt.Errorf("openai speech: %w", err)
	}
	defer resp.Body.Close()

	out, err := os.OpenFile(outPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0640)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}

	n, err := io.Copy(out, resp.Body)
	if err != nil {
		out.Close()
		return fmt.Errorf("writing synthesized audio: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("closing output file: %w", err)
	}

	o.logger.Debug("openai synthesis complete",
		slog.String("model", o.model),
		slog.String("voice", voice),
		slog.Int64("bytes", n),
	)
	return nil
}
