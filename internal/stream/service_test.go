package stream

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soracast/soracast/internal/models"
	"github.com/soracast/soracast/internal/preset"
	"github.com/soracast/soracast/internal/storage"
)

// fakeController records calls without spawning anything.
type fakeController struct {
	mu       sync.Mutex
	started  bool
	stopped  bool
	startErr error
	inserted []TaskClip
	workDir  string
}

func (f *fakeController) Start(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.started = true
	return nil
}

func (f *fakeController) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

func (f *fakeController) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started && !f.stopped
}

func (f *fakeController) CurrentMotionID() string { return "idle-1" }
func (f *fakeController) WorkDir() string         { return f.workDir }

func (f *fakeController) InsertTask(_ context.Context, clips []TaskClip) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserted = append(f.inserted, clips...)
	return nil
}

// fakeGenerator records payload order and emits one result per request.
type fakeGenerator struct {
	mu       sync.Mutex
	batches  []*models.BatchPayload
	failNext bool
	block    chan struct{}
}

func (f *fakeGenerator) GenerateForStream(_ context.Context, payload *models.BatchPayload, destDir string, onResult func(models.ActionResult)) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	f.batches = append(f.batches, payload)
	fail := f.failNext
	f.failNext = false
	f.mu.Unlock()

	if fail {
		return models.NewActionError(1, models.ErrTextRequired)
	}
	for i := range payload.Requests {
		onResult(models.ActionResult{
			RequestID:  i + 1,
			Action:     payload.Requests[i].Action,
			OutputPath: filepath.Join(destDir, fmt.Sprintf("out-%d.mp4", i+1)),
			DurationMS: 1000,
		})
	}
	return nil
}

func newTestService(t *testing.T) (*Service, *fakeController, *fakeGenerator) {
	t.Helper()

	motionsDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(motionsDir, "idle.mp4"), []byte("clip"), 0o640))
	presetYAML := `presets:
  - id: sora
    rtmp_output_url: rtmp://localhost:1935/live/sora
    audio: {engine: command, default_voice: v, command: ["true"]}
    motions:
      - {id: idle-1, path: idle.mp4, kind: idle, size: large}
  - id: kumo
    rtmp_output_url: rtmp://localhost:1935/live/kumo
    audio: {engine: command, default_voice: v, command: ["true"]}
    motions:
      - {id: idle-1, path: idle.mp4, kind: idle, size: large}
`
	presetPath := filepath.Join(t.TempDir(), "presets.yaml")
	require.NoError(t, os.WriteFile(presetPath, []byte(presetYAML), 0o640))
	sandbox, err := storage.NewSandbox(motionsDir)
	require.NoError(t, err)
	resolver, err := preset.Load(presetPath, sandbox)
	require.NoError(t, err)

	controller := &fakeController{workDir: t.TempDir()}
	generator := &fakeGenerator{}
	svc := NewService(resolver, generator, func(*models.Preset, bool) LoopController {
		return controller
	}, discardLogger())
	return svc, controller, generator
}

func textPayload(presetID, text string) *models.BatchPayload {
	return &models.BatchPayload{
		PresetID: presetID,
		Requests: []models.ActionRequest{
			{Action: "speak", Params: models.ActionParams{Text: text}},
		},
	}
}

func TestStartStopLifecycle(t *testing.T) {
	svc, controller, _ := newTestService(t)

	snap, err := svc.Start(context.Background(), "sora", false)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseIdle, snap.Phase)
	assert.Equal(t, "sora", snap.PresetID)
	assert.NotEmpty(t, snap.SessionID)
	assert.Equal(t, "idle-1", snap.CurrentMotionID)
	assert.True(t, controller.Running())

	snap = svc.Stop()
	assert.Equal(t, models.PhaseStopped, snap.Phase)
	assert.Empty(t, snap.PresetID)
	assert.True(t, controller.stopped)
}

func TestStartIdempotentForSamePreset(t *testing.T) {
	svc, _, _ := newTestService(t)

	first, err := svc.Start(context.Background(), "sora", false)
	require.NoError(t, err)
	second, err := svc.Start(context.Background(), "sora", false)
	require.NoError(t, err)
	assert.Equal(t, first.SessionID, second.SessionID)
}

func TestStartConflictsWithOtherPreset(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Start(context.Background(), "sora", false)
	require.NoError(t, err)
	_, err = svc.Start(context.Background(), "kumo", false)
	assert.ErrorIs(t, err, models.ErrPresetMismatch)
}

func TestStartUnknownPreset(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Start(context.Background(), "nope", false)
	assert.ErrorIs(t, err, models.ErrPresetNotFound)
}

func TestStartFailureRevertsToStopped(t *testing.T) {
	svc, controller, _ := newTestService(t)
	controller.startErr = fmt.Errorf("spawn failed")

	_, err := svc.Start(context.Background(), "sora", false)
	require.Error(t, err)
	assert.Equal(t, models.PhaseStopped, svc.Status().Phase)

	// A later start succeeds once the failure cause is gone.
	controller.startErr = nil
	_, err = svc.Start(context.Background(), "sora", false)
	assert.NoError(t, err)
}

func TestEnqueueRequiresRunningStream(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Enqueue(textPayload("sora", "hi"))
	assert.ErrorIs(t, err, models.ErrStreamNotRunning)
}

func TestEnqueueRejectsWrongPreset(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Start(context.Background(), "sora", false)
	require.NoError(t, err)

	_, err = svc.Enqueue(textPayload("kumo", "hi"))
	assert.ErrorIs(t, err, models.ErrPresetMismatch)
}

func TestEnqueueProcessesFIFOAndInserts(t *testing.T) {
	svc, controller, generator := newTestService(t)
	_, err := svc.Start(context.Background(), "sora", false)
	require.NoError(t, err)

	done1, err := svc.Enqueue(textPayload("sora", "first"))
	require.NoError(t, err)
	done2, err := svc.Enqueue(textPayload("sora", "second"))
	require.NoError(t, err)

	require.NoError(t, <-done1)
	require.NoError(t, <-done2)

	require.Len(t, generator.batches, 2)
	assert.Equal(t, "first", generator.batches[0].Requests[0].Params.Text)
	assert.Equal(t, "second", generator.batches[1].Requests[0].Params.Text)
	assert.Len(t, controller.inserted, 2)

	// Queue drained: back to IDLE with an empty queue.
	assert.Eventually(t, func() bool {
		snap := svc.Status()
		return snap.Phase == models.PhaseIdle && snap.QueueLength == 0
	}, time.Second, 10*time.Millisecond)
}

func TestPhaseSpeakWhileQueued(t *testing.T) {
	svc, _, generator := newTestService(t)
	generator.block = make(chan struct{})

	_, err := svc.Start(context.Background(), "sora", false)
	require.NoError(t, err)

	done, err := svc.Enqueue(textPayload("sora", "hi"))
	require.NoError(t, err)

	snap := svc.Status()
	assert.Equal(t, models.PhaseSpeak, snap.Phase)
	assert.Equal(t, 1, snap.QueueLength)

	close(generator.block)
	require.NoError(t, <-done)
}

func TestTaskErrorDoesNotPoisonQueue(t *testing.T) {
	svc, _, generator := newTestService(t)
	_, err := svc.Start(context.Background(), "sora", false)
	require.NoError(t, err)

	generator.failNext = true
	done1, err := svc.Enqueue(textPayload("sora", "bad"))
	require.NoError(t, err)
	done2, err := svc.Enqueue(textPayload("sora", "good"))
	require.NoError(t, err)

	assert.Error(t, <-done1)
	assert.NoError(t, <-done2)
	assert.Equal(t, models.PhaseIdle, svc.Status().Phase)
}

func TestEnqueueEmptyBatch(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Start(context.Background(), "sora", false)
	require.NoError(t, err)

	_, err = svc.Enqueue(&models.BatchPayload{PresetID: "sora"})
	assert.ErrorIs(t, err, models.ErrEmptyBatch)
}
