// Package planner selects motion clips to cover a requested duration, using
// size-based bin packing over emotion-scoped pools with optional enter/exit
// transitions.
package planner

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"

	"github.com/soracast/soracast/internal/models"
	"github.com/soracast/soracast/internal/preset"
)

// MediaProber is the slice of the ffmpeg prober the planner needs. Durations
// are expected to be memoized by the implementation.
type MediaProber interface {
	VideoDurationMS(ctx context.Context, path string) (int64, error)
	VideoSpec(ctx context.Context, path string) (models.VideoSpec, error)
}

// Planner constants.
const (
	// SlackMS is the tolerance around the target: clips shorter than this are
	// dropped as unusable, and the fill loop stops once within this margin.
	SlackMS = 50
	// MaxFillIterations bounds the fill loop.
	MaxFillIterations = 2000
	// MaxRepeat bounds explicit motion-id repetition in idle plans.
	MaxRepeat = 1000
)

// Planner builds clip plans against the loaded presets. Clip durations come
// from the shared prober and are memoized there.
type Planner struct {
	presets *preset.Resolver
	prober  MediaProber
	logger  *slog.Logger
	rng     *rand.Rand
}

// New creates a planner. The RNG is seeded from the clock; tests inject a
// deterministic source via WithRand.
func New(presets *preset.Resolver, prober MediaProber, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{
		presets: presets,
		prober:  prober,
		logger:  logger,
		rng:     rand.New(rand.NewSource(rand.Int63())),
	}
}

// WithRand replaces the random source. Used by tests for determinism.
func (p *Planner) WithRand(rng *rand.Rand) *Planner {
	p.rng = rng
	return p
}

// candidate pairs a clip with its probed duration.
type candidate struct {
	clip models.MotionClip
	ms   int64
}

// BuildSpeechPlan returns a plan whose core covers requiredMS with speech
// clips, flanked by enter/exit transitions when the preset provides them.
//
// The core may undershoot requiredMS by up to SlackMS but never overshoots by
// more than one clip's duration. When the target is shorter than every
// candidate the plan still contains at least one clip.
func (p *Planner) BuildSpeechPlan(ctx context.Context, presetID, emotion string, requiredMS int64) (*models.ClipPlan, error) {
	pr, err := p.presets.Get(presetID)
	if err != nil {
		return nil, err
	}

	emotion = models.NormalizeEmotion(emotion)
	pool := p.resolveSpeechPool(pr, emotion)
	if len(pool) == 0 {
		return nil, fmt.Errorf("speech pool for preset %q emotion %q: %w", presetID, emotion, models.ErrNoPool)
	}

	large, small, err := p.probeCandidates(ctx, pool)
	if err != nil {
		return nil, err
	}
	if len(large)+len(small) == 0 {
		return nil, fmt.Errorf("speech pool for preset %q emotion %q has no usable clips: %w", presetID, emotion, models.ErrNoPool)
	}

	core := p.fill(requiredMS, large, small)

	plan := &models.ClipPlan{}
	var coreTotal int64
	for _, c := range core {
		plan.Entries = append(plan.Entries, models.PlanEntry{
			ClipID:     c.clip.ID,
			SourcePath: c.clip.Path,
			DurationMS: c.ms,
		})
		coreTotal += c.ms
	}
	plan.TalkDurationMS = coreTotal
	plan.TotalDurationMS = coreTotal

	if enter, ok, err := p.pickTransition(ctx, pr.EnterTransitions, emotion); err != nil {
		return nil, err
	} else if ok {
		plan.Entries = append([]models.PlanEntry{{
			ClipID:     enter.clip.ID,
			SourcePath: enter.clip.Path,
			DurationMS: enter.ms,
		}}, plan.Entries...)
		plan.EnterDurationMS = enter.ms
		plan.TotalDurationMS += enter.ms
	}

	if exit, ok, err := p.pickTransition(ctx, pr.ExitTransitions, emotion); err != nil {
		return nil, err
	} else if ok {
		plan.Entries = append(plan.Entries, models.PlanEntry{
			ClipID:     exit.clip.ID,
			SourcePath: exit.clip.Path,
			DurationMS: exit.ms,
		})
		plan.ExitDurationMS = exit.ms
		plan.TotalDurationMS += exit.ms
	}

	return plan, nil
}

// BuildIdlePlan covers durationMS with idle clips. When motionID is given the
// matching clip is repeated (capped at MaxRepeat); otherwise idle pools are
// filtered by emotion, falling back to the unfiltered pools. The plan always
// contains at least one clip.
func (p *Planner) BuildIdlePlan(ctx context.Context, presetID string, durationMS int64, motionID, emotion string) (*models.ClipPlan, error) {
	pr, err := p.presets.Get(presetID)
	if err != nil {
		return nil, err
	}

	if motionID != "" {
		return p.buildRepeatedIdle(ctx, pr, durationMS, motionID)
	}

	pool := idlePool(pr, models.NormalizeEmotion(emotion))
	if len(pool) == 0 {
		return nil, fmt.Errorf("idle pool for preset %q: %w", presetID, models.ErrNoPool)
	}

	large, small, err := p.probeCandidates(ctx, pool)
	if err != nil {
		return nil, err
	}
	if len(large)+len(small) == 0 {
		return nil, fmt.Errorf("idle pool for preset %q has no usable clips: %w", presetID, models.ErrNoPool)
	}

	selected := p.fill(durationMS, large, small)

	plan := &models.ClipPlan{}
	for _, c := range selected {
		plan.Entries = append(plan.Entries, models.PlanEntry{
			ClipID:     c.clip.ID,
			SourcePath: c.clip.Path,
			DurationMS: c.ms,
		})
		plan.TotalDurationMS += c.ms
	}
	plan.TalkDurationMS = plan.TotalDurationMS
	return plan, nil
}

// buildRepeatedIdle repeats one specific idle clip to cover durationMS.
func (p *Planner) buildRepeatedIdle(ctx context.Context, pr *models.Preset, durationMS int64, motionID string) (*models.ClipPlan, error) {
	var found *models.MotionClip
	for _, pool := range pr.IdlePool {
		for i := range pool {
			if pool[i].ID == motionID {
				found = &pool[i]
				break
			}
		}
		if found != nil {
			break
		}
	}
	if found == nil {
		return nil, fmt.Errorf("idle motion %q in preset %q: %w", motionID, pr.ID, models.ErrUnknownAction)
	}

	ms, err := p.prober.VideoDurationMS(ctx, found.Path)
	if err != nil {
		return nil, err
	}
	if ms <= 0 {
		return nil, fmt.Errorf("idle motion %q has zero duration", motionID)
	}

	plan := &models.ClipPlan{}
	var covered int64
	for covered < durationMS && len(plan.Entries) < MaxRepeat {
		plan.Entries = append(plan.Entries, models.PlanEntry{
			ClipID:     found.ID,
			SourcePath: found.Path,
			DurationMS: ms,
		})
		covered += ms
	}
	if len(plan.Entries) == 0 {
		plan.Entries = append(plan.Entries, models.PlanEntry{
			ClipID:     found.ID,
			SourcePath: found.Path,
			DurationMS: ms,
		})
		covered = ms
	}
	plan.TotalDurationMS = covered
	plan.TalkDurationMS = covered
	return plan, nil
}

// BuildActionClip returns a plan containing exactly the custom-action clip
// with its true duration.
func (p *Planner) BuildActionClip(ctx context.Context, presetID, actionID string) (*models.ClipPlan, error) {
	pr, err := p.presets.Get(presetID)
	if err != nil {
		return nil, err
	}

	clip, ok := pr.ActionsByID[actionID]
	if !ok {
		return nil, fmt.Errorf("action %q in preset %q: %w", actionID, presetID, models.ErrUnknownAction)
	}

	ms, err := p.prober.VideoDurationMS(ctx, clip.Path)
	if err != nil {
		return nil, err
	}

	return &models.ClipPlan{
		Entries: []models.PlanEntry{{
			ClipID:     clip.ID,
			SourcePath: clip.Path,
			DurationMS: ms,
		}},
		TotalDurationMS: ms,
		TalkDurationMS:  ms,
	}, nil
}

// resolveSpeechPool selects the emotion pool, falling back to neutral and
// then to the union of all pools.
func (p *Planner) resolveSpeechPool(pr *models.Preset, emotion string) []models.MotionClip {
	if byEmotion, ok := pr.SpeechPool[emotion]; ok {
		if pool := flatten(byEmotion); len(pool) > 0 {
			return pool
		}
	}
	if byEmotion, ok := pr.SpeechPool[models.DefaultEmotion]; ok {
		if pool := flatten(byEmotion); len(pool) > 0 {
			return pool
		}
	}

	// Any pool: iterate emotions in sorted order so fallback is stable.
	emotions := make([]string, 0, len(pr.SpeechPool))
	for e := range pr.SpeechPool {
		emotions = append(emotions, e)
	}
	sort.Strings(emotions)

	var all []models.MotionClip
	for _, e := range emotions {
		all = append(all, flatten(pr.SpeechPool[e])...)
	}
	return all
}

// flatten joins the large and small halves of a size-classed pool.
func flatten(bySize map[models.SizeClass][]models.MotionClip) []models.MotionClip {
	out := make([]models.MotionClip, 0, len(bySize[models.SizeLarge])+len(bySize[models.SizeSmall]))
	out = append(out, bySize[models.SizeLarge]...)
	out = append(out, bySize[models.SizeSmall]...)
	return out
}

// idlePool returns the idle clips matching emotion, or the full pools when
// the filter matches nothing.
func idlePool(pr *models.Preset, emotion string) []models.MotionClip {
	all := flatten(pr.IdlePool)
	if emotion == "" {
		return all
	}
	var filtered []models.MotionClip
	for _, clip := range all {
		if clip.Emotion == emotion {
			filtered = append(filtered, clip)
		}
	}
	if len(filtered) > 0 {
		return filtered
	}
	return all
}

// probeCandidates probes every clip and partitions usable ones (duration
// above SlackMS) by size class.
func (p *Planner) probeCandidates(ctx context.Context, pool []models.MotionClip) (large, small []candidate, err error) {
	for _, clip := range pool {
		ms, err := p.prober.VideoDurationMS(ctx, clip.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("probing clip %q: %w", clip.ID, err)
		}
		if ms <= SlackMS {
			p.logger.Warn("dropping too-short motion clip",
				slog.String("clip", clip.ID),
				slog.Int64("duration_ms", ms),
			)
			continue
		}
		c := candidate{clip: clip, ms: ms}
		if clip.Size == models.SizeSmall {
			small = append(small, c)
		} else {
			large = append(large, c)
		}
	}
	return large, small, nil
}

// fill covers requiredMS with candidates: large clips that still fit, then
// small clips that still fit, then any small, then any large. Stops within
// SlackMS of the target or after MaxFillIterations. Guarantees at least one
// clip when any candidate exists.
func (p *Planner) fill(requiredMS int64, large, small []candidate) []candidate {
	var selected []candidate
	var covered int64

	for i := 0; i < MaxFillIterations; i++ {
		if covered+SlackMS >= requiredMS {
			break
		}
		remaining := requiredMS - covered

		c, ok := p.pickFitting(large, remaining+SlackMS)
		if !ok {
			c, ok = p.pickFitting(small, remaining+SlackMS)
		}
		if !ok {
			c, ok = p.pickAny(small)
		}
		if !ok {
			c, ok = p.pickAny(large)
		}
		if !ok {
			break
		}

		selected = append(selected, c)
		covered += c.ms
	}

	if len(selected) == 0 {
		if c, ok := p.pickAny(small); ok {
			selected = append(selected, c)
		} else if c, ok := p.pickAny(large); ok {
			selected = append(selected, c)
		}
	}

	return selected
}

// pickFitting picks a random candidate whose duration does not exceed limit.
func (p *Planner) pickFitting(pool []candidate, limit int64) (candidate, bool) {
	var fitting []candidate
	for _, c := range pool {
		if c.ms <= limit {
			fitting = append(fitting, c)
		}
	}
	return p.pickAny(fitting)
}

// pickAny picks a random candidate from pool.
func (p *Planner) pickAny(pool []candidate) (candidate, bool) {
	if len(pool) == 0 {
		return candidate{}, false
	}
	return pool[p.rng.Intn(len(pool))], true
}

// pickTransition selects one transition for emotion, falling back to neutral
// and then to any group (in sorted emotion order for stability).
func (p *Planner) pickTransition(ctx context.Context, groups map[string][]models.MotionClip, emotion string) (candidate, bool, error) {
	pool := groups[emotion]
	if len(pool) == 0 {
		pool = groups[models.DefaultEmotion]
	}
	if len(pool) == 0 {
		emotions := make([]string, 0, len(groups))
		for e := range groups {
			emotions = append(emotions, e)
		}
		sort.Strings(emotions)
		for _, e := range emotions {
			if len(groups[e]) > 0 {
				pool = groups[e]
				break
			}
		}
	}
	if len(pool) == 0 {
		return candidate{}, false, nil
	}

	clip := pool[p.rng.Intn(len(pool))]
	ms, err := p.prober.VideoDurationMS(ctx, clip.Path)
	if err != nil {
		return candidate{}, false, fmt.Errorf("probing transition %q: %w", clip.ID, err)
	}
	return candidate{clip: clip, ms: ms}, true, nil
}
