// Package handlers provides the HTTP API handlers for soracast.
package handlers

import (
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/soracast/soracast/internal/models"
)

// AudioParamsBody mirrors models.AudioParams on the wire.
type AudioParamsBody struct {
	Path       string `json:"path,omitempty" doc:"Server-local audio file path"`
	Base64     string `json:"base64,omitempty" doc:"Inline base64-encoded audio"`
	Transcribe bool   `json:"transcribe,omitempty" doc:"Transcribe and re-synthesize with the preset voice"`
}

// ActionParamsBody mirrors models.ActionParams on the wire.
type ActionParamsBody struct {
	Text       string           `json:"text,omitempty" doc:"Text to synthesize"`
	Audio      *AudioParamsBody `json:"audio,omitempty" doc:"Pre-recorded audio source"`
	Emotion    string           `json:"emotion,omitempty" doc:"Emotion tag, default neutral"`
	DurationMS int64            `json:"durationMs,omitempty" doc:"Idle duration in milliseconds"`
	MotionID   string           `json:"motionId,omitempty" doc:"Specific idle motion to loop"`
}

// ActionRequestBody is one action of a batch.
type ActionRequestBody struct {
	Action string           `json:"action" doc:"speak, idle, or a preset action id"`
	Params ActionParamsBody `json:"params,omitempty"`
}

// BatchDefaultsBody provides batch-wide fallbacks.
type BatchDefaultsBody struct {
	Emotion      string `json:"emotion,omitempty"`
	IdleMotionID string `json:"idleMotionId,omitempty"`
}

// BatchPayloadBody is the request body shared by /api/generate and
// /api/stream/text.
type BatchPayloadBody struct {
	PresetID string              `json:"presetId" doc:"Preset to render against"`
	Stream   bool                `json:"stream,omitempty" doc:"Stream per-action results instead of one combined output"`
	Cache    bool                `json:"cache,omitempty" doc:"Reuse content-addressed outputs"`
	Debug    bool                `json:"debug,omitempty" doc:"Include motion ids in results"`
	Defaults *BatchDefaultsBody  `json:"defaults,omitempty"`
	Requests []ActionRequestBody `json:"requests" minItems:"1"`
}

// ToModel converts the wire payload to the domain type.
func (b *BatchPayloadBody) ToModel() *models.BatchPayload {
	payload := &models.BatchPayload{
		PresetID: b.PresetID,
		Stream:   b.Stream,
		Cache:    b.Cache,
		Debug:    b.Debug,
	}
	if b.Defaults != nil {
		payload.Defaults = &models.BatchDefaults{
			Emotion:      b.Defaults.Emotion,
			IdleMotionID: b.Defaults.IdleMotionID,
		}
	}
	for _, r := range b.Requests {
		req := models.ActionRequest{
			Action: r.Action,
			Params: models.ActionParams{
				Text:       r.Params.Text,
				Emotion:    r.Params.Emotion,
				DurationMS: r.Params.DurationMS,
				MotionID:   r.Params.MotionID,
			},
		}
		if r.Params.Audio != nil {
			req.Params.Audio = &models.AudioParams{
				Path:       r.Params.Audio.Path,
				Base64:     r.Params.Audio.Base64,
				Transcribe: r.Params.Audio.Transcribe,
			}
		}
		payload.Requests = append(payload.Requests, req)
	}
	return payload
}

// SnapshotResponse is the stream state returned by start/stop/status.
type SnapshotResponse struct {
	Status          string `json:"status" doc:"STOPPED, IDLE or SPEAK"`
	SessionID       string `json:"sessionId,omitempty"`
	PresetID        string `json:"presetId,omitempty"`
	QueueLength     int    `json:"queueLength"`
	CurrentMotionID string `json:"currentMotionId,omitempty"`
}

func snapshotResponse(s models.StreamSnapshot) SnapshotResponse {
	return SnapshotResponse{
		Status:          string(s.Phase),
		SessionID:       s.SessionID,
		PresetID:        s.PresetID,
		QueueLength:     s.QueueLength,
		CurrentMotionID: s.CurrentMotionID,
	}
}

// ActionResultResponse is one per-action outcome.
type ActionResultResponse struct {
	RequestID  int      `json:"requestId"`
	Action     string   `json:"action"`
	OutputPath string   `json:"outputPath"`
	DurationMS int64    `json:"durationMs"`
	CacheHit   bool     `json:"cacheHit"`
	MotionIDs  []string `json:"motionIds,omitempty"`
}

// mapServiceError converts domain errors to huma status errors.
func mapServiceError(err error) error {
	var ape *models.ActionProcessingError
	if errors.As(err, &ape) {
		if ape.StatusCode == 400 {
			return huma.Error400BadRequest(ape.Error())
		}
		return huma.Error500InternalServerError(ape.Error())
	}

	switch {
	case errors.Is(err, models.ErrPresetMismatch), errors.Is(err, models.ErrStreamNotRunning):
		return huma.Error409Conflict(err.Error())
	case models.IsValidationError(err):
		return huma.Error400BadRequest(err.Error())
	default:
		return huma.Error500InternalServerError(err.Error())
	}
}
