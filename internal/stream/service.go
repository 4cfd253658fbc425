package stream

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/soracast/soracast/internal/models"
	"github.com/soracast/soracast/internal/observability"
	"github.com/soracast/soracast/internal/preset"
)

// Generator is the generation-service slice the stream pipeline drives.
type Generator interface {
	GenerateForStream(ctx context.Context, payload *models.BatchPayload, destDir string, onResult func(models.ActionResult)) error
}

// LoopController is the controller surface the service depends on. Satisfied
// by *Controller; tests substitute a fake.
type LoopController interface {
	Start(ctx context.Context) error
	Stop()
	Running() bool
	CurrentMotionID() string
	WorkDir() string
	InsertTask(ctx context.Context, clips []TaskClip) error
}

// ControllerFactory builds a loop controller for one session.
type ControllerFactory func(pr *models.Preset, debug bool) LoopController

// task is one queued text batch. done is closed after completion with the
// task's error, if any.
type task struct {
	payload *models.BatchPayload
	done    chan error
}

// Service is the singleton stream state machine. Text batches are serialized
// through a single worker goroutine feeding an unbounded FIFO, so tasks run
// strictly in arrival order no matter how the HTTP layer interleaves.
type Service struct {
	presets   *preset.Resolver
	generator Generator
	factory   ControllerFactory
	logger    *slog.Logger
	metrics   *observability.Metrics

	mu         sync.Mutex
	phase      models.StreamPhase
	sessionID  string
	presetID   string
	controller LoopController
	queueLen   int

	qmu   sync.Mutex
	qcond *sync.Cond
	queue []*task
}

// NewService creates the stream service and starts its worker goroutine.
func NewService(presets *preset.Resolver, generator Generator, factory ControllerFactory, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		presets:   presets,
		generator: generator,
		factory:   factory,
		logger:    logger,
		phase:     models.PhaseStopped,
	}
	s.qcond = sync.NewCond(&s.qmu)
	go s.worker()
	return s
}

// WithMetrics attaches metrics gauges.
func (s *Service) WithMetrics(m *observability.Metrics) *Service {
	s.metrics = m
	return s
}

// Start begins streaming the given preset. Idempotent for the running preset;
// a different preset while running is a conflict.
func (s *Service) Start(ctx context.Context, presetID string, debug bool) (models.StreamSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != models.PhaseStopped {
		if s.presetID == presetID {
			return s.snapshotLocked(), nil
		}
		return models.StreamSnapshot{}, fmt.Errorf("%q is streaming: %w", s.presetID, models.ErrPresetMismatch)
	}

	pr, err := s.presets.Get(presetID)
	if err != nil {
		return models.StreamSnapshot{}, err
	}

	controller := s.factory(pr, debug)
	if err := controller.Start(ctx); err != nil {
		s.phase = models.PhaseStopped
		s.controller = nil
		s.presetID = ""
		return models.StreamSnapshot{}, fmt.Errorf("starting stream loop: %w", err)
	}

	s.controller = controller
	s.presetID = presetID
	s.sessionID = uuid.NewString()
	s.phase = models.PhaseIdle
	s.queueLen = 0
	s.setQueueGauge(0)

	s.logger.Info("stream started",
		slog.String("preset", presetID),
		slog.String("session", s.sessionID),
	)
	return s.snapshotLocked(), nil
}

// Stop tears the stream down. Fire-and-forget on the controller; always
// succeeds.
func (s *Service) Stop() models.StreamSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.controller != nil {
		s.controller.Stop()
	}
	s.controller = nil
	s.phase = models.PhaseStopped
	s.presetID = ""
	s.sessionID = ""
	s.queueLen = 0
	s.setQueueGauge(0)

	s.logger.Info("stream stopped")
	return s.snapshotLocked()
}

// Status returns the current snapshot.
func (s *Service) Status() models.StreamSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Service) snapshotLocked() models.StreamSnapshot {
	snap := models.StreamSnapshot{
		Phase:       s.phase,
		SessionID:   s.sessionID,
		PresetID:    s.presetID,
		QueueLength: s.queueLen,
	}
	if s.controller != nil {
		snap.CurrentMotionID = s.controller.CurrentMotionID()
	}
	return snap
}

// Enqueue validates the payload against the running session and appends it to
// the task queue. The returned channel is closed when the task finishes,
// carrying its error if it failed; callers free to ignore it.
func (s *Service) Enqueue(payload *models.BatchPayload) (<-chan error, error) {
	if len(payload.Requests) == 0 {
		return nil, models.ErrEmptyBatch
	}

	s.mu.Lock()
	if s.phase == models.PhaseStopped {
		s.mu.Unlock()
		return nil, models.ErrStreamNotRunning
	}
	if payload.PresetID != s.presetID {
		s.mu.Unlock()
		return nil, fmt.Errorf("%q is streaming: %w", s.presetID, models.ErrPresetMismatch)
	}
	s.queueLen++
	s.phase = models.PhaseSpeak
	s.setQueueGauge(s.queueLen)
	s.mu.Unlock()

	t := &task{payload: payload, done: make(chan error, 1)}
	s.qmu.Lock()
	s.queue = append(s.queue, t)
	s.qcond.Signal()
	s.qmu.Unlock()

	return t.done, nil
}

// worker drains the queue forever, strictly FIFO. Task errors are logged and
// never poison the pipeline.
func (s *Service) worker() {
	for {
		s.qmu.Lock()
		for len(s.queue) == 0 {
			s.qcond.Wait()
		}
		t := s.queue[0]
		s.queue = s.queue[1:]
		s.qmu.Unlock()

		err := s.runTask(t)
		if err != nil {
			s.logger.Error("stream task failed", slog.String("error", err.Error()))
		}
		s.finishTask()
		t.done <- err
		close(t.done)
	}
}

// runTask generates the batch into the stream directory and splices each
// finished MP4 into the loop as it arrives.
func (s *Service) runTask(t *task) error {
	s.mu.Lock()
	controller := s.controller
	s.mu.Unlock()

	if controller == nil {
		return models.ErrStreamNotRunning
	}

	ctx := context.Background()
	return s.generator.GenerateForStream(ctx, t.payload, controller.WorkDir(), func(r models.ActionResult) {
		err := controller.InsertTask(ctx, []TaskClip{{Path: r.OutputPath, DurationMS: r.DurationMS}})
		if err != nil {
			s.logger.Error("task insertion failed",
				slog.Int("request", r.RequestID),
				slog.String("error", err.Error()),
			)
		}
	})
}

// finishTask decrements the queue and drops back to IDLE when drained.
func (s *Service) finishTask() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.queueLen > 0 {
		s.queueLen--
	}
	s.setQueueGauge(s.queueLen)
	if s.queueLen == 0 && s.phase != models.PhaseStopped {
		s.phase = models.PhaseIdle
	}
}

func (s *Service) setQueueGauge(n int) {
	if s.metrics != nil {
		s.metrics.QueueLength.Set(float64(n))
	}
}
