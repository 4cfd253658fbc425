// Package tts synthesizes speech audio through one of three backends:
// a VOICEVOX server, the OpenAI speech API, or an arbitrary external command.
package tts

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/soracast/soracast/internal/models"
)

// Engine synthesizes text into an audio file at outPath. Implementations are
// selected by the audio profile's engine tag.
type Engine interface {
	// Synthesize writes synthesized speech for text, spoken with voice, to
	// outPath. The output container is whatever the backend produces; callers
	// normalize downstream.
	Synthesize(ctx context.Context, text, voice, outPath string) error
}

// NewEngine builds the engine selected by profile.Engine.
func NewEngine(profile models.AudioProfile, logger *slog.Logger) (Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch profile.Engine {
	case models.TTSEngineVoicevox:
		if profile.VoicevoxURL == "" {
			return nil, fmt.Errorf("voicevox engine requires voicevox_url")
		}
		return NewVoicevox(profile.VoicevoxURL, logger), nil
	case models.TTSEngineOpenAI:
		return NewOpenAI(profile.OpenAIModel, logger), nil
	case models.TTSEngineCommand:
		if len(profile.Command) == 0 {
			return nil, fmt.Errorf("command engine requires a command template")
		}
		return NewCommand(profile.Command, logger), nil
	default:
		return nil, fmt.Errorf("unknown tts engine %q", profile.Engine)
	}
}
