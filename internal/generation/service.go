// Package generation orchestrates one API batch into composed MP4 outputs:
// audio acquisition (TTS, supplied files, transcription), clip planning,
// composition, cache bookkeeping.
package generation

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/soracast/soracast/internal/cache"
	"github.com/soracast/soracast/internal/ffmpeg"
	"github.com/soracast/soracast/internal/models"
	"github.com/soracast/soracast/internal/observability"
	"github.com/soracast/soracast/internal/preset"
	"github.com/soracast/soracast/internal/storage"
	"github.com/soracast/soracast/internal/tts"
)

// MediaEncoder is the slice of the ffmpeg facade the service drives.
type MediaEncoder interface {
	CreateSilentAudio(ctx context.Context, dir string, ms int64) (string, error)
	NormalizeAudio(ctx context.Context, dir, path string) (string, error)
	TrimAudioSilence(ctx context.Context, dir, path string, thresholdDB int) (string, error)
	FitAudioDuration(ctx context.Context, dir, path string, ms int64) (string, error)
	ConcatAudio(ctx context.Context, dir string, paths []string) (string, int64, error)
	ExtractAudioTrack(ctx context.Context, dir, path string) (string, error)
	Compose(ctx context.Context, dir string, clips []string, audioPath string, durationMS int64) (ffmpeg.ComposeResult, error)
}

// DurationProber resolves media durations, memoized by the implementation.
type DurationProber interface {
	VideoDurationMS(ctx context.Context, path string) (int64, error)
	AudioDurationMS(ctx context.Context, path string) (int64, error)
}

// ClipPlanner builds clip plans for the three action families.
type ClipPlanner interface {
	BuildSpeechPlan(ctx context.Context, presetID, emotion string, requiredMS int64) (*models.ClipPlan, error)
	BuildIdlePlan(ctx context.Context, presetID string, durationMS int64, motionID, emotion string) (*models.ClipPlan, error)
	BuildActionClip(ctx context.Context, presetID, actionID string) (*models.ClipPlan, error)
}

// Transcriber turns caller-supplied audio into text for re-synthesis.
type Transcriber interface {
	Transcribe(ctx context.Context, path string) (string, error)
}

// EngineFactory builds a TTS engine from an audio profile.
type EngineFactory func(profile models.AudioProfile, logger *slog.Logger) (tts.Engine, error)

// Service orchestrates batches. One instance serves all presets; TTS engines
// are constructed lazily per preset and reused.
type Service struct {
	presets     *preset.Resolver
	planner     ClipPlanner
	encoder     MediaEncoder
	prober      DurationProber
	store       *cache.Store
	transcriber Transcriber
	jobsRoot    string
	logger      *slog.Logger
	metrics     *observability.Metrics
	newEngine   EngineFactory

	mu      sync.Mutex
	engines map[string]tts.Engine
}

// NewService creates the generation service. jobsRoot hosts per-request
// scratch directories; keeping it on the same filesystem as the output
// directory makes the final move a rename.
func NewService(
	presets *preset.Resolver,
	planner ClipPlanner,
	encoder MediaEncoder,
	prober DurationProber,
	store *cache.Store,
	transcriber Transcriber,
	jobsRoot string,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		presets:     presets,
		planner:     planner,
		encoder:     encoder,
		prober:      prober,
		store:       store,
		transcriber: transcriber,
		jobsRoot:    jobsRoot,
		logger:      logger,
		newEngine:   tts.NewEngine,
		engines:     make(map[string]tts.Engine),
	}
}

// WithMetrics attaches metrics counters.
func (s *Service) WithMetrics(m *observability.Metrics) *Service {
	s.metrics = m
	return s
}

// WithEngineFactory overrides TTS engine construction. Used by tests.
func (s *Service) WithEngineFactory(f EngineFactory) *Service {
	s.newEngine = f
	return s
}

// BatchOutcome is the result of one batch. Results is populated per action in
// streaming mode; in combined mode the single concatenated output is
// described by the Combined fields.
type BatchOutcome struct {
	Results            []models.ActionResult
	CombinedPath       string
	CombinedDurationMS int64
	CombinedCacheHit   bool
}

// outputSink controls where finished outputs land. The default sink is the
// cache output directory with log entries; the stream pipeline redirects into
// the stream working directory without logging.
type outputSink struct {
	dir string
	log bool
}

// Generate processes payload in order. In streaming mode onResult is invoked
// after every successful action; the first failure aborts the batch with an
// ActionProcessingError and onResult is not called for the failing request.
func (s *Service) Generate(ctx context.Context, payload *models.BatchPayload, onResult func(models.ActionResult)) (*BatchOutcome, error) {
	if len(payload.Requests) == 0 {
		return nil, models.ErrEmptyBatch
	}
	pr, err := s.presets.Get(payload.PresetID)
	if err != nil {
		return nil, err
	}

	snk := outputSink{dir: s.store.OutputDir(), log: true}
	if payload.Stream {
		return s.generateStreaming(ctx, payload, pr, snk, onResult)
	}
	return s.generateCombined(ctx, payload, pr, snk)
}

// GenerateForStream processes payload for the live stream pipeline: streaming
// mode, caching off, outputs moved into destDir so the encoder can pick them
// up. Stream outputs are transient and kept out of the cache log.
func (s *Service) GenerateForStream(ctx context.Context, payload *models.BatchPayload, destDir string, onResult func(models.ActionResult)) error {
	if len(payload.Requests) == 0 {
		return models.ErrEmptyBatch
	}
	pr, err := s.presets.Get(payload.PresetID)
	if err != nil {
		return err
	}

	pipelined := *payload
	pipelined.Stream = true
	pipelined.Cache = false

	_, err = s.generateStreaming(ctx, &pipelined, pr, outputSink{dir: destDir}, onResult)
	return err
}

func (s *Service) generateStreaming(ctx context.Context, payload *models.BatchPayload, pr *models.Preset, snk outputSink, onResult func(models.ActionResult)) (*BatchOutcome, error) {
	outcome := &BatchOutcome{}
	for i, req := range payload.Requests {
		requestID := i + 1
		start := time.Now()
		result, err := s.processAction(ctx, payload, pr, snk, requestID, req)
		if err != nil {
			s.countAction(req.Action, "error")
			return nil, wrapActionError(requestID, err)
		}
		s.countAction(req.Action, "ok")
		s.observeDuration(req.Action, time.Since(start))
		if onResult != nil {
			onResult(result)
		}
		outcome.Results = append(outcome.Results, result)
	}
	return outcome, nil
}

// processAction runs one action inside its own job directory.
func (s *Service) processAction(ctx context.Context, payload *models.BatchPayload, pr *models.Preset, snk outputSink, requestID int, req models.ActionRequest) (models.ActionResult, error) {
	job, err := NewJobDir(s.jobsRoot, s.logger)
	if err != nil {
		return models.ActionResult{}, err
	}
	defer job.Remove()

	switch req.Action {
	case models.ActionSpeak:
		return s.processSpeak(ctx, job, payload, pr, snk, requestID, req)
	case models.ActionIdle:
		return s.processIdle(ctx, job, payload, pr, snk, requestID, req)
	default:
		return s.processCustom(ctx, job, payload, pr, snk, requestID, req)
	}
}

// speakDescriptor computes the cache descriptor for a speak action. For
// supplied audio, the raw bytes are hashed; for text, the TTS settings
// participate.
func (s *Service) speakDescriptor(pr *models.Preset, emotion string, params models.ActionParams) (map[string]any, error) {
	if params.Text != "" {
		return cache.SpeakDescriptor(pr.ID, params.Text, emotion, pr.Audio), nil
	}
	audio := params.Audio
	if audio == nil || (audio.Path == "" && audio.Base64 == "") {
		return nil, models.ErrTextRequired
	}

	var hash string
	var err error
	if audio.Base64 != "" {
		hash, err = cache.HashBase64(audio.Base64)
	} else {
		hash, err = cache.HashFile(audio.Path)
	}
	if err != nil {
		return nil, err
	}
	return cache.SpeakAudioDescriptor(pr.ID, hash, emotion, audio.Transcribe), nil
}

func (s *Service) processSpeak(ctx context.Context, job *JobDir, payload *models.BatchPayload, pr *models.Preset, snk outputSink, requestID int, req models.ActionRequest) (models.ActionResult, error) {
	emotion := payload.EffectiveEmotion(req)

	descriptor, err := s.speakDescriptor(pr, emotion, req.Params)
	if err != nil {
		return models.ActionResult{}, err
	}
	key, err := cache.Key(descriptor)
	if err != nil {
		return models.ActionResult{}, err
	}

	if result, ok, err := s.cachedResult(ctx, payload, requestID, req.Action, key); err != nil {
		return models.ActionResult{}, err
	} else if ok {
		return result, nil
	}

	combinedAudio, plan, err := s.buildSpeakMedia(ctx, job, pr, emotion, req.Params)
	if err != nil {
		return models.ActionResult{}, err
	}

	composed, err := s.encoder.Compose(ctx, job.Path(), plan.Paths(), combinedAudio, plan.TotalDurationMS)
	if err != nil {
		return models.ActionResult{}, err
	}

	outPath, err := s.finalize(composed.Path, key, payload.Cache, snk, models.ActionSpeak, pr.ID, descriptor)
	if err != nil {
		return models.ActionResult{}, err
	}

	return s.result(payload, requestID, req.Action, outPath, composed.DurationMS, false, plan), nil
}

// buildSpeakMedia acquires and shapes the speech audio, plans the clips, and
// returns the final audio track plus the plan. All intermediates live in job.
func (s *Service) buildSpeakMedia(ctx context.Context, job *JobDir, pr *models.Preset, emotion string, params models.ActionParams) (string, *models.ClipPlan, error) {
	raw, err := s.acquireRawAudio(ctx, job, pr, emotion, params)
	if err != nil {
		return "", nil, err
	}

	normalized, err := s.encoder.NormalizeAudio(ctx, job.Path(), raw)
	if err != nil {
		return "", nil, err
	}

	trimmed, err := s.encoder.TrimAudioSilence(ctx, job.Path(), normalized, ffmpeg.DefaultSilenceThresholdDB)
	if err != nil {
		return "", nil, err
	}

	// Fully silent input trims to nothing; keep the normalized take then.
	speech := trimmed
	trimmedMS, err := s.prober.AudioDurationMS(ctx, trimmed)
	if err != nil {
		return "", nil, err
	}
	if trimmedMS == 0 {
		speech = normalized
	}

	effectiveMS, err := s.prober.AudioDurationMS(ctx, speech)
	if err != nil {
		return "", nil, err
	}

	plan, err := s.planner.BuildSpeechPlan(ctx, pr.ID, emotion, effectiveMS)
	if err != nil {
		return "", nil, err
	}

	fitted, err := s.encoder.FitAudioDuration(ctx, job.Path(), speech, plan.TalkDurationMS)
	if err != nil {
		return "", nil, err
	}

	// Transitions are silent: pad the talk audio to line up with the video.
	var segments []string
	if plan.EnterDurationMS > 0 {
		lead, err := s.encoder.CreateSilentAudio(ctx, job.Path(), plan.EnterDurationMS)
		if err != nil {
			return "", nil, err
		}
		segments = append(segments, lead)
	}
	segments = append(segments, fitted)
	if plan.ExitDurationMS > 0 {
		tail, err := s.encoder.CreateSilentAudio(ctx, job.Path(), plan.ExitDurationMS)
		if err != nil {
			return "", nil, err
		}
		segments = append(segments, tail)
	}

	combined, _, err := s.encoder.ConcatAudio(ctx, job.Path(), segments)
	if err != nil {
		return "", nil, err
	}
	return combined, plan, nil
}

// acquireRawAudio produces the raw speech WAV inside job: synthesized from
// text, decoded from base64, or copied from a server-local file. With
// transcribe set, the supplied audio is transcribed and re-synthesized with
// the preset voice.
func (s *Service) acquireRawAudio(ctx context.Context, job *JobDir, pr *models.Preset, emotion string, params models.ActionParams) (string, error) {
	if params.Text != "" {
		return s.synthesize(ctx, job, pr, emotion, params.Text)
	}

	audio := params.Audio
	if audio == nil || (audio.Path == "" && audio.Base64 == "") {
		return "", models.ErrTextRequired
	}

	local := filepath.Join(job.Path(), "input-"+uuid.NewString()[:8]+".audio")
	if audio.Base64 != "" {
		raw, err := base64.StdEncoding.DecodeString(audio.Base64)
		if err != nil {
			return "", fmt.Errorf("decoding base64 audio: %w", err)
		}
		if err := os.WriteFile(local, raw, 0640); err != nil {
			return "", fmt.Errorf("writing supplied audio: %w", err)
		}
	} else {
		if err := storage.CopyFile(audio.Path, local); err != nil {
			return "", fmt.Errorf("copying supplied audio: %w", err)
		}
	}

	if !audio.Transcribe {
		return local, nil
	}

	if s.transcriber == nil {
		return "", fmt.Errorf("transcription requested but no transcriber configured")
	}
	text, err := s.transcriber.Transcribe(ctx, local)
	if err != nil {
		return "", err
	}
	return s.synthesize(ctx, job, pr, emotion, text)
}

func (s *Service) synthesize(ctx context.Context, job *JobDir, pr *models.Preset, emotion, text string) (string, error) {
	engine, err := s.engineFor(pr)
	if err != nil {
		return "", err
	}
	out := filepath.Join(job.Path(), "tts-"+uuid.NewString()[:8]+".wav")
	voice := pr.Audio.VoiceFor(emotion)
	if err := engine.Synthesize(ctx, text, voice, out); err != nil {
		return "", err
	}
	return out, nil
}

func (s *Service) engineFor(pr *models.Preset) (tts.Engine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if engine, ok := s.engines[pr.ID]; ok {
		return engine, nil
	}
	engine, err := s.newEngine(pr.Audio, observability.WithComponent(s.logger, "tts"))
	if err != nil {
		return nil, err
	}
	s.engines[pr.ID] = engine
	return engine, nil
}

func (s *Service) processIdle(ctx context.Context, job *JobDir, payload *models.BatchPayload, pr *models.Preset, snk outputSink, requestID int, req models.ActionRequest) (models.ActionResult, error) {
	durationMS := req.Params.DurationMS
	if durationMS <= 0 {
		return models.ActionResult{}, models.ErrDurationRequired
	}
	motionID := payload.EffectiveMotionID(req)
	emotion := payload.EffectiveEmotion(req)

	descriptor := cache.IdleDescriptor(pr.ID, durationMS, motionID, emotion)
	key, err := cache.Key(descriptor)
	if err != nil {
		return models.ActionResult{}, err
	}

	if result, ok, err := s.cachedResult(ctx, payload, requestID, req.Action, key); err != nil {
		return models.ActionResult{}, err
	} else if ok {
		return result, nil
	}

	plan, err := s.planner.BuildIdlePlan(ctx, pr.ID, durationMS, motionID, emotion)
	if err != nil {
		return models.ActionResult{}, err
	}

	// The plan may overshoot; the requested duration is the compose target.
	silent, err := s.encoder.CreateSilentAudio(ctx, job.Path(), durationMS)
	if err != nil {
		return models.ActionResult{}, err
	}

	composed, err := s.encoder.Compose(ctx, job.Path(), plan.Paths(), silent, durationMS)
	if err != nil {
		return models.ActionResult{}, err
	}

	outPath, err := s.finalize(composed.Path, key, payload.Cache, snk, models.ActionIdle, pr.ID, descriptor)
	if err != nil {
		return models.ActionResult{}, err
	}

	return s.result(payload, requestID, req.Action, outPath, composed.DurationMS, false, plan), nil
}

func (s *Service) processCustom(ctx context.Context, job *JobDir, payload *models.BatchPayload, pr *models.Preset, snk outputSink, requestID int, req models.ActionRequest) (models.ActionResult, error) {
	descriptor := cache.ActionDescriptor(pr.ID, req.Action)
	key, err := cache.Key(descriptor)
	if err != nil {
		return models.ActionResult{}, err
	}

	if result, ok, err := s.cachedResult(ctx, payload, requestID, req.Action, key); err != nil {
		return models.ActionResult{}, err
	} else if ok {
		return result, nil
	}

	plan, err := s.planner.BuildActionClip(ctx, pr.ID, req.Action)
	if err != nil {
		return models.ActionResult{}, err
	}

	audioPath, err := s.customActionAudio(ctx, job, plan)
	if err != nil {
		return models.ActionResult{}, err
	}

	composed, err := s.encoder.Compose(ctx, job.Path(), plan.Paths(), audioPath, plan.TotalDurationMS)
	if err != nil {
		return models.ActionResult{}, err
	}

	outPath, err := s.finalize(composed.Path, key, payload.Cache, snk, "action", pr.ID, descriptor)
	if err != nil {
		return models.ActionResult{}, err
	}

	return s.result(payload, requestID, req.Action, outPath, composed.DurationMS, false, plan), nil
}

// customActionAudio extracts the clip's embedded audio, substituting silence
// when the clip carries none, and fits it to the clip duration.
func (s *Service) customActionAudio(ctx context.Context, job *JobDir, plan *models.ClipPlan) (string, error) {
	clipPath := plan.Entries[0].SourcePath

	extracted, err := s.encoder.ExtractAudioTrack(ctx, job.Path(), clipPath)
	if errors.Is(err, models.ErrNoAudioTrack) {
		extracted, err = s.encoder.CreateSilentAudio(ctx, job.Path(), plan.TotalDurationMS)
	}
	if err != nil {
		return "", err
	}

	return s.encoder.FitAudioDuration(ctx, job.Path(), extracted, plan.TotalDurationMS)
}

// generateCombined plans every action against one job directory and composes
// a single timeline. The cache key hashes the ordered per-action keys.
func (s *Service) generateCombined(ctx context.Context, payload *models.BatchPayload, pr *models.Preset, snk outputSink) (*BatchOutcome, error) {
	// Per-action keys first: a combined cache hit avoids all media work.
	actionKeys := make([]string, len(payload.Requests))
	descriptors := make([]map[string]any, len(payload.Requests))
	for i, req := range payload.Requests {
		descriptor, err := s.actionDescriptor(payload, pr, req)
		if err != nil {
			return nil, wrapActionError(i+1, err)
		}
		key, err := cache.Key(descriptor)
		if err != nil {
			return nil, wrapActionError(i+1, err)
		}
		descriptors[i] = descriptor
		actionKeys[i] = key
	}

	combinedDescriptor := cache.CombinedDescriptor(pr.ID, actionKeys)
	combinedKey, err := cache.Key(combinedDescriptor)
	if err != nil {
		return nil, err
	}

	if payload.Cache {
		if path, ok := s.store.Lookup(combinedKey); ok {
			s.countCache("hit")
			ms, err := s.prober.VideoDurationMS(ctx, path)
			if err != nil {
				return nil, err
			}
			return &BatchOutcome{
				CombinedPath:       path,
				CombinedDurationMS: ms,
				CombinedCacheHit:   true,
			}, nil
		}
		s.countCache("miss")
	}

	job, err := NewJobDir(s.jobsRoot, s.logger)
	if err != nil {
		return nil, err
	}
	defer job.Remove()

	var clips []string
	var audioSegments []string
	var totalMS int64

	for i, req := range payload.Requests {
		requestID := i + 1
		start := time.Now()
		clipPaths, segments, ms, err := s.planCombinedAction(ctx, job, payload, pr, req)
		if err != nil {
			s.countAction(req.Action, "error")
			return nil, wrapActionError(requestID, err)
		}
		s.countAction(req.Action, "ok")
		s.observeDuration(req.Action, time.Since(start))
		clips = append(clips, clipPaths...)
		audioSegments = append(audioSegments, segments...)
		totalMS += ms
	}

	combinedAudio, _, err := s.encoder.ConcatAudio(ctx, job.Path(), audioSegments)
	if err != nil {
		return nil, err
	}

	composed, err := s.encoder.Compose(ctx, job.Path(), clips, combinedAudio, totalMS)
	if err != nil {
		return nil, err
	}

	outPath, err := s.finalize(composed.Path, combinedKey, payload.Cache, snk, "combined", pr.ID, combinedDescriptor)
	if err != nil {
		return nil, err
	}

	return &BatchOutcome{
		CombinedPath:       outPath,
		CombinedDurationMS: composed.DurationMS,
	}, nil
}

// actionDescriptor computes the cache descriptor for one action of a batch.
func (s *Service) actionDescriptor(payload *models.BatchPayload, pr *models.Preset, req models.ActionRequest) (map[string]any, error) {
	switch req.Action {
	case models.ActionSpeak:
		return s.speakDescriptor(pr, payload.EffectiveEmotion(req), req.Params)
	case models.ActionIdle:
		if req.Params.DurationMS <= 0 {
			return nil, models.ErrDurationRequired
		}
		return cache.IdleDescriptor(pr.ID, req.Params.DurationMS, payload.EffectiveMotionID(req), payload.EffectiveEmotion(req)), nil
	default:
		if _, ok := pr.ActionsByID[req.Action]; !ok {
			return nil, fmt.Errorf("action %q in preset %q: %w", req.Action, pr.ID, models.ErrUnknownAction)
		}
		return cache.ActionDescriptor(pr.ID, req.Action), nil
	}
}

// planCombinedAction contributes one action's clips and audio segments to the
// combined timeline. Idle actions contribute their plan duration, not the
// requested target, so later actions stay aligned with the video.
func (s *Service) planCombinedAction(ctx context.Context, job *JobDir, payload *models.BatchPayload, pr *models.Preset, req models.ActionRequest) ([]string, []string, int64, error) {
	switch req.Action {
	case models.ActionSpeak:
		combinedAudio, plan, err := s.buildSpeakMedia(ctx, job, pr, payload.EffectiveEmotion(req), req.Params)
		if err != nil {
			return nil, nil, 0, err
		}
		return plan.Paths(), []string{combinedAudio}, plan.TotalDurationMS, nil

	case models.ActionIdle:
		if req.Params.DurationMS <= 0 {
			return nil, nil, 0, models.ErrDurationRequired
		}
		plan, err := s.planner.BuildIdlePlan(ctx, pr.ID, req.Params.DurationMS, payload.EffectiveMotionID(req), payload.EffectiveEmotion(req))
		if err != nil {
			return nil, nil, 0, err
		}
		silent, err := s.encoder.CreateSilentAudio(ctx, job.Path(), plan.TotalDurationMS)
		if err != nil {
			return nil, nil, 0, err
		}
		return plan.Paths(), []string{silent}, plan.TotalDurationMS, nil

	default:
		plan, err := s.planner.BuildActionClip(ctx, pr.ID, req.Action)
		if err != nil {
			return nil, nil, 0, err
		}
		audioPath, err := s.customActionAudio(ctx, job, plan)
		if err != nil {
			return nil, nil, 0, err
		}
		return plan.Paths(), []string{audioPath}, plan.TotalDurationMS, nil
	}
}

// cachedResult checks the cache and builds a hit result when possible.
func (s *Service) cachedResult(ctx context.Context, payload *models.BatchPayload, requestID int, action, key string) (models.ActionResult, bool, error) {
	if !payload.Cache {
		return models.ActionResult{}, false, nil
	}

	path, ok := s.store.Lookup(key)
	if !ok {
		s.countCache("miss")
		return models.ActionResult{}, false, nil
	}
	s.countCache("hit")

	ms, err := s.prober.VideoDurationMS(ctx, path)
	if err != nil {
		return models.ActionResult{}, false, err
	}
	return models.ActionResult{
		RequestID:  requestID,
		Action:     action,
		OutputPath: path,
		DurationMS: ms,
		CacheHit:   true,
	}, true, nil
}

// finalize moves a composed file to its canonical output location and logs
// it. With caching disabled the name still derives from the key but carries a
// random suffix so repeated requests never collide.
func (s *Service) finalize(composedPath, key string, useCache bool, snk outputSink, entryType, presetID string, descriptor map[string]any) (string, error) {
	base := key
	if !useCache {
		base = key + "-" + uuid.NewString()[:8]
	}

	out := filepath.Join(snk.dir, base+".mp4")
	if err := storage.MoveFile(composedPath, out); err != nil {
		return "", fmt.Errorf("moving output into place: %w", err)
	}

	if !snk.log {
		return out, nil
	}
	if err := s.store.Append(cache.Entry{
		File:       base + ".mp4",
		Type:       entryType,
		PresetID:   presetID,
		Descriptor: descriptor,
	}); err != nil {
		return "", err
	}
	return out, nil
}

func (s *Service) result(payload *models.BatchPayload, requestID int, action, outPath string, durationMS int64, cacheHit bool, plan *models.ClipPlan) models.ActionResult {
	r := models.ActionResult{
		RequestID:  requestID,
		Action:     action,
		OutputPath: outPath,
		DurationMS: durationMS,
		CacheHit:   cacheHit,
	}
	if payload.Debug && plan != nil {
		r.MotionIDs = plan.MotionIDs()
	}
	return r
}

func (s *Service) countAction(action, result string) {
	if s.metrics != nil {
		s.metrics.ActionsTotal.WithLabelValues(action, result).Inc()
	}
}

func (s *Service) countCache(outcome string) {
	if s.metrics != nil {
		s.metrics.CacheHits.WithLabelValues(outcome).Inc()
	}
}

func (s *Service) observeDuration(action string, elapsed time.Duration) {
	if s.metrics != nil {
		s.metrics.EncodeDuration.WithLabelValues(action).Observe(elapsed.Seconds())
	}
}

// wrapActionError attaches the request index unless already attached.
func wrapActionError(requestID int, err error) error {
	var ape *models.ActionProcessingError
	if errors.As(err, &ape) {
		return err
	}
	return models.NewActionError(requestID, err)
}
