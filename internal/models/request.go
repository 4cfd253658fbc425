package models

// Reserved action names that cannot be used as custom action ids.
const (
	ActionSpeak = "speak"
	ActionIdle  = "idle"
)

// AudioParams carries a client-supplied audio source for a speak action.
// Exactly one of Path or Base64 must be set.
type AudioParams struct {
	// Path is a server-local audio file path.
	Path string `json:"path,omitempty"`
	// Base64 is an inline base64-encoded audio buffer.
	Base64 string `json:"base64,omitempty"`
	// Transcribe runs STT on the audio and re-synthesizes the transcription
	// with the preset voice instead of using the audio directly.
	Transcribe bool `json:"transcribe,omitempty"`
}

// ActionParams are the per-action parameters of a batch request.
type ActionParams struct {
	Text       string       `json:"text,omitempty"`
	Audio      *AudioParams `json:"audio,omitempty"`
	Emotion    string       `json:"emotion,omitempty"`
	DurationMS int64        `json:"durationMs,omitempty"`
	MotionID   string       `json:"motionId,omitempty"`
}

// ActionRequest is one action inside a batch payload. Action is "speak",
// "idle", or a custom action id registered in the preset.
type ActionRequest struct {
	Action string       `json:"action"`
	Params ActionParams `json:"params,omitempty"`
}

// BatchDefaults provides fallback values applied to every action of a batch.
type BatchDefaults struct {
	Emotion      string `json:"emotion,omitempty"`
	IdleMotionID string `json:"idleMotionId,omitempty"`
}

// BatchPayload bundles several actions against a single preset.
type BatchPayload struct {
	PresetID string          `json:"presetId"`
	Stream   bool            `json:"stream,omitempty"`
	Cache    bool            `json:"cache,omitempty"`
	Debug    bool            `json:"debug,omitempty"`
	Defaults *BatchDefaults  `json:"defaults,omitempty"`
	Requests []ActionRequest `json:"requests"`
}

// EffectiveEmotion resolves an action's emotion against the batch defaults.
func (b *BatchPayload) EffectiveEmotion(a ActionRequest) string {
	if a.Params.Emotion != "" {
		return NormalizeEmotion(a.Params.Emotion)
	}
	if b.Defaults != nil && b.Defaults.Emotion != "" {
		return NormalizeEmotion(b.Defaults.Emotion)
	}
	return DefaultEmotion
}

// EffectiveMotionID resolves an idle action's motion id against the batch defaults.
func (b *BatchPayload) EffectiveMotionID(a ActionRequest) string {
	if a.Params.MotionID != "" {
		return a.Params.MotionID
	}
	if b.Defaults != nil {
		return b.Defaults.IdleMotionID
	}
	return ""
}

// ActionResult is one per-action outcome delivered in streaming mode or
// collected for the combined response.
type ActionResult struct {
	RequestID  int    `json:"requestId"`
	Action     string `json:"action"`
	OutputPath string `json:"outputPath"`
	DurationMS int64  `json:"durationMs"`
	CacheHit   bool   `json:"cacheHit"`
	// MotionIDs is populated only when the batch has debug enabled.
	MotionIDs []string `json:"motionIds,omitempty"`
}
