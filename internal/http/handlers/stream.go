package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/soracast/soracast/internal/models"
)

// StreamService is the stream lifecycle surface the handler needs.
type StreamService interface {
	Start(ctx context.Context, presetID string, debug bool) (models.StreamSnapshot, error)
	Stop() models.StreamSnapshot
	Status() models.StreamSnapshot
	Enqueue(payload *models.BatchPayload) (<-chan error, error)
}

// StreamHandler exposes the live-stream lifecycle endpoints.
type StreamHandler struct {
	svc    StreamService
	logger *slog.Logger
}

// NewStreamHandler creates a stream handler.
func NewStreamHandler(svc StreamService, logger *slog.Logger) *StreamHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamHandler{svc: svc, logger: logger}
}

// StartStreamInput is the input for stream start.
type StartStreamInput struct {
	Body struct {
		PresetID string `json:"presetId" doc:"Preset to stream"`
		Debug    bool   `json:"debug,omitempty" doc:"Keep the working directory between sessions"`
	}
}

// SnapshotOutput wraps a snapshot response body.
type SnapshotOutput struct {
	Body SnapshotResponse
}

// AckOutput acknowledges an accepted request.
type AckOutput struct {
	Body struct {
		OK bool `json:"ok"`
	}
}

// StreamTextInput is the input for text enqueueing.
type StreamTextInput struct {
	Body BatchPayloadBody
}

// Register registers the stream routes with the API.
func (h *StreamHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "startStream",
		Method:      http.MethodPost,
		Path:        "/api/stream/start",
		Summary:     "Start streaming a preset",
		Tags:        []string{"stream"},
	}, h.start)

	huma.Register(api, huma.Operation{
		OperationID: "stopStream",
		Method:      http.MethodPost,
		Path:        "/api/stream/stop",
		Summary:     "Stop the running stream",
		Tags:        []string{"stream"},
	}, h.stop)

	huma.Register(api, huma.Operation{
		OperationID: "getStreamStatus",
		Method:      http.MethodGet,
		Path:        "/api/stream/status",
		Summary:     "Current stream state",
		Tags:        []string{"stream"},
	}, h.status)

	// Legacy alias kept for existing clients.
	huma.Register(api, huma.Operation{
		OperationID: "getStatus",
		Method:      http.MethodGet,
		Path:        "/api/status",
		Summary:     "Current stream state (alias)",
		Tags:        []string{"stream"},
	}, h.status)

	huma.Register(api, huma.Operation{
		OperationID:   "enqueueStreamText",
		Method:        http.MethodPost,
		Path:          "/api/stream/text",
		Summary:       "Queue a text batch for the live stream",
		Tags:          []string{"stream"},
		DefaultStatus: http.StatusAccepted,
	}, h.text)
}

func (h *StreamHandler) start(ctx context.Context, input *StartStreamInput) (*SnapshotOutput, error) {
	if input.Body.PresetID == "" {
		return nil, huma.Error400BadRequest("presetId is required")
	}

	snap, err := h.svc.Start(ctx, input.Body.PresetID, input.Body.Debug)
	if err != nil {
		return nil, mapServiceError(err)
	}
	return &SnapshotOutput{Body: snapshotResponse(snap)}, nil
}

func (h *StreamHandler) stop(_ context.Context, _ *struct{}) (*SnapshotOutput, error) {
	return &SnapshotOutput{Body: snapshotResponse(h.svc.Stop())}, nil
}

func (h *StreamHandler) status(_ context.Context, _ *struct{}) (*SnapshotOutput, error) {
	return &SnapshotOutput{Body: snapshotResponse(h.svc.Status())}, nil
}

func (h *StreamHandler) text(_ context.Context, input *StreamTextInput) (*AckOutput, error) {
	payload := input.Body.ToModel()
	if len(payload.Requests) == 0 {
		return nil, huma.Error400BadRequest(models.ErrEmptyBatch.Error())
	}

	done, err := h.svc.Enqueue(payload)
	if err != nil {
		return nil, mapServiceError(err)
	}

	// The task completes asynchronously; failures surface in the log.
	go func() {
		if err := <-done; err != nil {
			h.logger.Warn("queued stream task failed", slog.String("error", err.Error()))
		}
	}()

	out := &AckOutput{}
	out.Body.OK = true
	return out, nil
}
