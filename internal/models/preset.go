package models

// TTSEngine identifies a speech-synthesis backend.
type TTSEngine string

// Supported TTS engines.
const (
	TTSEngineVoicevox TTSEngine = "voicevox"
	TTSEngineOpenAI   TTSEngine = "openai"
	TTSEngineCommand  TTSEngine = "command"
)

// AudioProfile is a tagged variant selecting one TTS engine with its
// engine-specific settings. Dispatch is by the Engine tag.
type AudioProfile struct {
	Engine TTSEngine `json:"engine" yaml:"engine"`

	// DefaultVoice is used when no emotion-specific voice matches.
	DefaultVoice string `json:"default_voice" yaml:"default_voice"`
	// VoicesByEmotion maps a lowercased emotion to a voice identifier.
	VoicesByEmotion map[string]string `json:"voices_by_emotion,omitempty" yaml:"voices_by_emotion,omitempty"`

	// Voicevox engine fields.
	VoicevoxURL string `json:"voicevox_url,omitempty" yaml:"voicevox_url,omitempty"`

	// OpenAI engine fields.
	OpenAIModel string `json:"openai_model,omitempty" yaml:"openai_model,omitempty"`

	// Command engine fields. The template may reference {{text}}, {{voice}}
	// and {{output}}.
	Command []string `json:"command,omitempty" yaml:"command,omitempty"`
}

// VoiceFor returns the voice configured for the given (normalized) emotion,
// falling back to the default voice.
func (p *AudioProfile) VoiceFor(emotion string) string {
	if v, ok := p.VoicesByEmotion[NormalizeEmotion(emotion)]; ok && v != "" {
		return v
	}
	return p.DefaultVoice
}

// SettingsFingerprint returns the engine settings that participate in cache
// keys. The voice map is excluded: emotion is a top-level descriptor field
// and the effective voice is derived from it.
func (p *AudioProfile) SettingsFingerprint() map[string]any {
	s := map[string]any{
		"defaultVoice": p.DefaultVoice,
	}
	switch p.Engine {
	case TTSEngineVoicevox:
		s["url"] = p.VoicevoxURL
	case TTSEngineOpenAI:
		s["model"] = p.OpenAIModel
	case TTSEngineCommand:
		s["command"] = append([]string(nil), p.Command...)
	}
	return s
}

// Preset is a named bundle of motion assets and an audio profile identifying
// one avatar persona. Presets are immutable after load.
type Preset struct {
	ID string `json:"id" yaml:"id"`

	// ActionsByID maps lowercased action ids to custom-action clips.
	ActionsByID map[string]MotionClip `json:"actions_by_id" yaml:"-"`

	// IdlePool groups idle clips by size class.
	IdlePool map[SizeClass][]MotionClip `json:"idle_pool" yaml:"-"`

	// SpeechPool is nested by emotion then size class.
	SpeechPool map[string]map[SizeClass][]MotionClip `json:"speech_pool" yaml:"-"`

	// EnterTransitions and ExitTransitions are grouped by emotion.
	EnterTransitions map[string][]MotionClip `json:"enter_transitions" yaml:"-"`
	ExitTransitions  map[string][]MotionClip `json:"exit_transitions" yaml:"-"`

	Audio AudioProfile `json:"audio" yaml:"audio"`

	// RTMPOutputURL is the single rtmp://host:port/app/key destination.
	RTMPOutputURL string `json:"rtmp_output_url" yaml:"rtmp_output_url"`
}

// AllClips returns every motion clip in the preset, in no particular order.
func (p *Preset) AllClips() []MotionClip {
	var out []MotionClip
	for _, pool := range p.IdlePool {
		out = append(out, pool...)
	}
	for _, byEmotion := range p.SpeechPool {
		for _, pool := range byEmotion {
			out = append(out, pool...)
		}
	}
	for _, pool := range p.EnterTransitions {
		out = append(out, pool...)
	}
	for _, pool := range p.ExitTransitions {
		out = append(out, pool...)
	}
	for _, clip := range p.ActionsByID {
		out = append(out, clip)
	}
	return out
}
