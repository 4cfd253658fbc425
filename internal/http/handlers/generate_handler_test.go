package handlers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soracast/soracast/internal/generation"
	"github.com/soracast/soracast/internal/models"
)

type fakeBatchGenerator struct {
	results []models.ActionResult
	outcome *generation.BatchOutcome
	err     error

	payload *models.BatchPayload
}

func (f *fakeBatchGenerator) Generate(_ context.Context, payload *models.BatchPayload, onResult func(models.ActionResult)) (*generation.BatchOutcome, error) {
	f.payload = payload
	if onResult != nil {
		for _, r := range f.results {
			onResult(r)
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.outcome != nil {
		return f.outcome, nil
	}
	return &generation.BatchOutcome{Results: f.results}, nil
}

func newGenerateAPI(t *testing.T, gen *fakeBatchGenerator, rewrite PathRewriter) http.Handler {
	t.Helper()
	router := chi.NewRouter()
	api := humachi.New(router, huma.DefaultConfig("test", "0.0.0"))
	NewGenerateHandler(gen, rewrite, nil).Register(api)
	return router
}

func postGenerate(t *testing.T, handler http.Handler, body map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/generate", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func speakBody(stream bool) map[string]any {
	return map[string]any{
		"presetId": "sora",
		"stream":   stream,
		"cache":    true,
		"requests": []map[string]any{
			{"action": "speak", "params": map[string]any{"text": "hello"}},
			{"action": "idle", "params": map[string]any{"durationMs": 3000}},
		},
	}
}

func TestGenerateCombinedResponse(t *testing.T) {
	gen := &fakeBatchGenerator{outcome: &generation.BatchOutcome{
		CombinedPath:       "/data/outputs/abc.mp4",
		CombinedDurationMS: 8000,
		CombinedCacheHit:   true,
	}}
	rewrite := func(path string) string {
		return strings.Replace(path, "/data/outputs", "/media", 1)
	}
	handler := newGenerateAPI(t, gen, rewrite)

	rec := postGenerate(t, handler, speakBody(false))
	require.Equal(t, http.StatusOK, rec.Code)

	var body CombinedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "/media/abc.mp4", body.OutputPath)
	assert.Equal(t, int64(8000), body.DurationMS)
	assert.True(t, body.CacheHit)

	require.NotNil(t, gen.payload)
	assert.False(t, gen.payload.Stream)
	assert.Len(t, gen.payload.Requests, 2)
}

func TestGenerateStreamingNDJSON(t *testing.T) {
	gen := &fakeBatchGenerator{results: []models.ActionResult{
		{RequestID: 1, Action: "speak", OutputPath: "/data/outputs/a.mp4", DurationMS: 5000},
		{RequestID: 2, Action: "idle", OutputPath: "/data/outputs/b.mp4", DurationMS: 3000, CacheHit: true},
	}}
	handler := newGenerateAPI(t, gen, nil)

	rec := postGenerate(t, handler, speakBody(true))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-ndjson", rec.Header().Get("Content-Type"))

	var lines []ActionResultResponse
	scanner := bufio.NewScanner(rec.Body)
	for scanner.Scan() {
		var line ActionResultResponse
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &line))
		lines = append(lines, line)
	}
	require.Len(t, lines, 2)
	assert.Equal(t, 1, lines[0].RequestID)
	assert.Equal(t, "speak", lines[0].Action)
	assert.Equal(t, 2, lines[1].RequestID)
	assert.True(t, lines[1].CacheHit)
}

func TestGenerateStreamingMidBatchError(t *testing.T) {
	gen := &fakeBatchGenerator{
		results: []models.ActionResult{
			{RequestID: 1, Action: "speak", OutputPath: "/data/outputs/a.mp4", DurationMS: 5000},
		},
		err: &models.ActionProcessingError{RequestID: 2, StatusCode: 400, Err: models.ErrTextRequired},
	}
	handler := newGenerateAPI(t, gen, nil)

	rec := postGenerate(t, handler, speakBody(true))
	require.Equal(t, http.StatusOK, rec.Code)

	raw := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, raw, 2)

	var last streamErrorLine
	require.NoError(t, json.Unmarshal([]byte(raw[1]), &last))
	assert.Equal(t, 2, last.RequestID)
	assert.Equal(t, 400, last.Status)
	assert.Contains(t, last.Error, models.ErrTextRequired.Error())
}

func TestGenerateValidationErrorStatus(t *testing.T) {
	gen := &fakeBatchGenerator{
		err: &models.ActionProcessingError{RequestID: 1, StatusCode: 400, Err: models.ErrUnknownAction},
	}
	handler := newGenerateAPI(t, gen, nil)

	rec := postGenerate(t, handler, speakBody(false))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGenerateRejectsEmptyRequests(t *testing.T) {
	handler := newGenerateAPI(t, &fakeBatchGenerator{}, nil)

	rec := postGenerate(t, handler, map[string]any{
		"presetId": "sora",
		"requests": []map[string]any{},
	})
	assert.GreaterOrEqual(t, rec.Code, 400)
	assert.Less(t, rec.Code, 500)
}
