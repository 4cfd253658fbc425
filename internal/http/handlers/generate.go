package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/soracast/soracast/internal/generation"
	"github.com/soracast/soracast/internal/models"
)

// PathRewriter maps server-local output paths to client-visible ones.
type PathRewriter func(path string) string

// BatchGenerator runs a generation batch, reporting per-action results
// through onResult.
type BatchGenerator interface {
	Generate(ctx context.Context, payload *models.BatchPayload, onResult func(models.ActionResult)) (*generation.BatchOutcome, error)
}

// GenerateHandler exposes offline batch generation.
type GenerateHandler struct {
	svc     BatchGenerator
	rewrite PathRewriter
	logger  *slog.Logger
}

// NewGenerateHandler creates a generate handler.
func NewGenerateHandler(svc BatchGenerator, rewrite PathRewriter, logger *slog.Logger) *GenerateHandler {
	if rewrite == nil {
		rewrite = func(path string) string { return path }
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GenerateHandler{svc: svc, rewrite: rewrite, logger: logger}
}

// GenerateInput is the input for batch generation.
type GenerateInput struct {
	Body BatchPayloadBody
}

// CombinedResponse describes the single concatenated output of a non-stream
// batch.
type CombinedResponse struct {
	OutputPath string `json:"outputPath"`
	DurationMS int64  `json:"durationMs"`
	CacheHit   bool   `json:"cacheHit"`
}

// streamErrorLine is the terminal NDJSON record of a failed streaming batch.
type streamErrorLine struct {
	Error     string `json:"error"`
	RequestID int    `json:"requestId,omitempty"`
	Status    int    `json:"status,omitempty"`
}

// Register registers the generate route with the API.
func (h *GenerateHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "generate",
		Method:      http.MethodPost,
		Path:        "/api/generate",
		Summary:     "Render a batch of actions to MP4",
		Description: "With stream=true the response is NDJSON, one result per action as it completes; otherwise a single combined output is returned.",
		Tags:        []string{"generate"},
	}, h.generate)
}

func (h *GenerateHandler) generate(ctx context.Context, input *GenerateInput) (*huma.StreamResponse, error) {
	payload := input.Body.ToModel()
	if len(payload.Requests) == 0 {
		return nil, huma.Error400BadRequest(models.ErrEmptyBatch.Error())
	}

	if payload.Stream {
		return h.generateStreaming(ctx, payload), nil
	}
	return h.generateCombined(ctx, payload)
}

// generateCombined runs the batch synchronously and returns one JSON object.
func (h *GenerateHandler) generateCombined(ctx context.Context, payload *models.BatchPayload) (*huma.StreamResponse, error) {
	outcome, err := h.svc.Generate(ctx, payload, nil)
	if err != nil {
		return nil, mapServiceError(err)
	}

	body := CombinedResponse{
		OutputPath: h.rewrite(outcome.CombinedPath),
		DurationMS: outcome.CombinedDurationMS,
		CacheHit:   outcome.CombinedCacheHit,
	}
	return &huma.StreamResponse{Body: func(hctx huma.Context) {
		hctx.SetHeader("Content-Type", "application/json")
		if err := json.NewEncoder(hctx.BodyWriter()).Encode(body); err != nil {
			h.logger.Warn("writing combined response", slog.String("error", err.Error()))
		}
	}}, nil
}

// generateStreaming emits one NDJSON line per finished action. The HTTP
// status is committed at 200 before the first result, so mid-batch failures
// surface as a terminal error record.
func (h *GenerateHandler) generateStreaming(ctx context.Context, payload *models.BatchPayload) *huma.StreamResponse {
	return &huma.StreamResponse{Body: func(hctx huma.Context) {
		hctx.SetHeader("Content-Type", "application/x-ndjson")

		w := hctx.BodyWriter()
		enc := json.NewEncoder(w)
		flusher, _ := w.(http.Flusher)

		_, err := h.svc.Generate(ctx, payload, func(r models.ActionResult) {
			line := ActionResultResponse{
				RequestID:  r.RequestID,
				Action:     r.Action,
				OutputPath: h.rewrite(r.OutputPath),
				DurationMS: r.DurationMS,
				CacheHit:   r.CacheHit,
				MotionIDs:  r.MotionIDs,
			}
			if err := enc.Encode(line); err != nil {
				h.logger.Warn("writing stream result", slog.String("error", err.Error()))
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		})
		if err != nil {
			line := streamErrorLine{Error: err.Error()}
			var ape *models.ActionProcessingError
			if errors.As(err, &ape) {
				line.RequestID = ape.RequestID
				line.Status = ape.StatusCode
			}
			if encErr := enc.Encode(line); encErr != nil {
				h.logger.Warn("writing stream error", slog.String("error", encErr.Error()))
			}
		}
	}}
}
