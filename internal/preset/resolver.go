// Package preset loads avatar preset bundles from YAML and normalizes them
// into immutable in-memory pools indexed by emotion and size class.
package preset

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/soracast/soracast/internal/models"
	"github.com/soracast/soracast/internal/storage"
)

// fileSchema is the on-disk shape of the preset file.
type fileSchema struct {
	Presets []presetSchema `yaml:"presets"`
}

type presetSchema struct {
	ID            string              `yaml:"id"`
	RTMPOutputURL string              `yaml:"rtmp_output_url"`
	Audio         models.AudioProfile `yaml:"audio"`
	Motions       []motionSchema      `yaml:"motions"`
}

type motionSchema struct {
	ID      string `yaml:"id"`
	Path    string `yaml:"path"`
	Kind    string `yaml:"kind"`
	Size    string `yaml:"size"`
	Emotion string `yaml:"emotion"`
}

// Resolver holds the loaded presets, keyed by preset id.
type Resolver struct {
	presets map[string]*models.Preset
}

// Load reads the preset file at path and resolves every clip path below the
// motions sandbox. Relative paths that escape the sandbox are rejected.
func Load(path string, motions *storage.Sandbox) (*Resolver, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading preset file: %w", err)
	}

	var file fileSchema
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing preset file: %w", err)
	}

	if len(file.Presets) == 0 {
		return nil, fmt.Errorf("preset file %s declares no presets", path)
	}

	r := &Resolver{presets: make(map[string]*models.Preset, len(file.Presets))}
	for i := range file.Presets {
		p, err := buildPreset(&file.Presets[i], motions)
		if err != nil {
			return nil, fmt.Errorf("preset %q: %w", file.Presets[i].ID, err)
		}
		if _, exists := r.presets[p.ID]; exists {
			return nil, fmt.Errorf("duplicate preset id %q", p.ID)
		}
		r.presets[p.ID] = p
	}

	return r, nil
}

// buildPreset normalizes one preset declaration into indexed pools.
func buildPreset(s *presetSchema, motions *storage.Sandbox) (*models.Preset, error) {
	if s.ID == "" {
		return nil, fmt.Errorf("id is required")
	}
	if s.RTMPOutputURL == "" {
		return nil, fmt.Errorf("rtmp_output_url is required")
	}
	if s.Audio.Engine == "" {
		return nil, fmt.Errorf("audio.engine is required")
	}

	p := &models.Preset{
		ID:               s.ID,
		ActionsByID:      make(map[string]models.MotionClip),
		IdlePool:         make(map[models.SizeClass][]models.MotionClip),
		SpeechPool:       make(map[string]map[models.SizeClass][]models.MotionClip),
		EnterTransitions: make(map[string][]models.MotionClip),
		ExitTransitions:  make(map[string][]models.MotionClip),
		Audio:            s.Audio,
		RTMPOutputURL:    s.RTMPOutputURL,
	}

	if len(p.Audio.VoicesByEmotion) > 0 {
		normalized := make(map[string]string, len(p.Audio.VoicesByEmotion))
		for emotion, voice := range p.Audio.VoicesByEmotion {
			normalized[models.NormalizeEmotion(emotion)] = voice
		}
		p.Audio.VoicesByEmotion = normalized
	}

	seen := make(map[string]bool, len(s.Motions))
	for _, m := range s.Motions {
		if m.ID == "" {
			return nil, fmt.Errorf("motion with path %q has no id", m.Path)
		}
		if seen[m.ID] {
			return nil, fmt.Errorf("duplicate motion id %q", m.ID)
		}
		seen[m.ID] = true

		abs, err := motions.ResolvePath(m.Path)
		if err != nil {
			return nil, fmt.Errorf("motion %q: %w", m.ID, err)
		}

		clip := models.MotionClip{
			ID:      m.ID,
			Path:    abs,
			Kind:    models.MotionKind(m.Kind),
			Size:    normalizeSize(m.Size),
			Emotion: models.NormalizeEmotion(m.Emotion),
		}

		switch clip.Kind {
		case models.MotionIdle:
			p.IdlePool[clip.Size] = append(p.IdlePool[clip.Size], clip)
		case models.MotionSpeech:
			byEmotion := p.SpeechPool[clip.Emotion]
			if byEmotion == nil {
				byEmotion = make(map[models.SizeClass][]models.MotionClip)
				p.SpeechPool[clip.Emotion] = byEmotion
			}
			byEmotion[clip.Size] = append(byEmotion[clip.Size], clip)
		case models.MotionTransitionEnter:
			p.EnterTransitions[clip.Emotion] = append(p.EnterTransitions[clip.Emotion], clip)
		case models.MotionTransitionExit:
			p.ExitTransitions[clip.Emotion] = append(p.ExitTransitions[clip.Emotion], clip)
		case models.MotionCustomAction:
			actionID := strings.ToLower(strings.TrimSpace(m.ID))
			if actionID == models.ActionSpeak || actionID == models.ActionIdle {
				return nil, fmt.Errorf("motion %q: %w", m.ID, models.ErrReservedAction)
			}
			p.ActionsByID[actionID] = clip
		default:
			return nil, fmt.Errorf("motion %q: unknown kind %q", m.ID, m.Kind)
		}
	}

	if len(p.IdlePool[models.SizeLarge])+len(p.IdlePool[models.SizeSmall]) == 0 {
		return nil, fmt.Errorf("preset has no idle clips")
	}

	return p, nil
}

// normalizeSize defaults unknown or missing size classes to large.
func normalizeSize(s string) models.SizeClass {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "small":
		return models.SizeSmall
	default:
		return models.SizeLarge
	}
}

// Get returns the preset with the given id, or models.ErrPresetNotFound.
func (r *Resolver) Get(id string) (*models.Preset, error) {
	p, ok := r.presets[id]
	if !ok {
		return nil, fmt.Errorf("%q: %w", id, models.ErrPresetNotFound)
	}
	return p, nil
}

// All returns every loaded preset.
func (r *Resolver) All() []*models.Preset {
	out := make([]*models.Preset, 0, len(r.presets))
	for _, p := range r.presets {
		out = append(out, p)
	}
	return out
}

// IDs returns the loaded preset ids.
func (r *Resolver) IDs() []string {
	out := make([]string, 0, len(r.presets))
	for id := range r.presets {
		out = append(out, id)
	}
	return out
}
