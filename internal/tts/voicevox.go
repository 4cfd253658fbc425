package tts

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"
)

// Voicevox talks to a VOICEVOX engine server. Synthesis is the standard
// two-step flow: POST /audio_query to build the query, then POST /synthesis
// to render it to WAV.
type Voicevox struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewVoicevox creates a VOICEVOX engine client.
func NewVoicevox(baseURL string, logger *slog.Logger) *Voicevox {
	return &Voicevox{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 60 * time.Second},
		logger:  logger,
	}
}

// Synthesize renders text to a WAV file at outPath. Voice is the VOICEVOX
// speaker id.
func (v *Voicevox) Synthesize(ctx context.Context, text, voice, outPath string) error {
	speaker, err := strconv.Atoi(voice)
	if err != nil {
		return fmt.Errorf("voicevox voice must be a numeric speaker id, got %q", voice)
	}

	query, err := v.audioQuery(ctx, text, speaker)
	if err != nil {
		return err
	}

	wav, err := v.synthesis(ctx, query, speaker)
	if err != nil {
		return err
	}

	if err := os.WriteFile(outPath, wav, 0640); err != nil {
		return fmt.Errorf("writing synthesized audio: %w", err)
	}

	v.logger.Debug("voicevox synthesis complete",
		slog.Int("speaker", speaker),
		slog.Int("bytes", len(wav)),
	)
	return nil
}

func (v *Voicevox) audioQuery(ctx context.Context, text string, speaker int) ([]byte, error) {
	u := fmt.Sprintf("%s/audio_query?text=%s&speaker=%d",
		v.baseURL, url.QueryEscape(text), speaker)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building audio_query request: %w", err)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("voicevox audio_query: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("voicevox audio_query returned %d: %s", resp.StatusCode, body)
	}

	return io.ReadAll(resp.Body)
}

func (v *Voicevox) synthesis(ctx context.Context, query []byte, speaker int) ([]byte, error) {
	u := fmt.Sprintf("%s/synthesis?speaker=%d", v.baseURL, speaker)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(query))
	if err != nil {
		return nil, fmt.Errorf("building synthesis request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("voicevox synthesis: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("voicevox synthesis returned %d: %s", resp.StatusCode, body)
	}

	return io.ReadAll(resp.Body)
}
