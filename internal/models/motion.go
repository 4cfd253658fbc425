// Package models defines the core domain types for soracast: motion clips,
// presets, clip plans, action requests, and stream state.
package models

import (
	"fmt"
	"strings"
)

// MotionKind classifies a motion clip within a preset.
type MotionKind string

// Motion clip kinds.
const (
	MotionIdle            MotionKind = "idle"
	MotionSpeech          MotionKind = "speech"
	MotionTransitionEnter MotionKind = "transition-enter"
	MotionTransitionExit  MotionKind = "transition-exit"
	MotionCustomAction    MotionKind = "custom-action"
)

// SizeClass is the bin-packing class of an idle or speech clip. Large clips
// fill bulk duration, small clips fine-tune the tail.
type SizeClass string

// Size classes.
const (
	SizeLarge SizeClass = "large"
	SizeSmall SizeClass = "small"
)

// DefaultEmotion is the universal fallback emotion.
const DefaultEmotion = "neutral"

// NormalizeEmotion trims and lowercases an emotion string, falling back to
// "neutral" when empty.
func NormalizeEmotion(emotion string) string {
	e := strings.ToLower(strings.TrimSpace(emotion))
	if e == "" {
		return DefaultEmotion
	}
	return e
}

// MotionClip is a static asset descriptor for one pre-rendered video file.
// Clips are immutable after preset load.
type MotionClip struct {
	// ID is unique within its preset.
	ID string `json:"id" yaml:"id"`
	// Path is the absolute, motions-dir-resolved path to the video file.
	Path string `json:"path" yaml:"path"`
	// Kind classifies the clip.
	Kind MotionKind `json:"kind" yaml:"kind"`
	// Size applies to idle and speech clips only.
	Size SizeClass `json:"size,omitempty" yaml:"size,omitempty"`
	// Emotion is lowercase; empty means "neutral".
	Emotion string `json:"emotion,omitempty" yaml:"emotion,omitempty"`
}

// VideoSpec describes the video parameters of a motion file. All clips in a
// preset are expected to share one spec; a mismatch is reported but not fatal.
type VideoSpec struct {
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	Framerate float64 `json:"framerate"`
	Codec     string  `json:"codec"`
	PixFmt    string  `json:"pix_fmt"`
}

// Equal reports whether two specs describe the same video parameters.
func (s VideoSpec) Equal(o VideoSpec) bool {
	return s.Width == o.Width && s.Height == o.Height &&
		s.Framerate == o.Framerate && s.Codec == o.Codec && s.PixFmt == o.PixFmt
}

// String renders the spec in ffprobe-like shorthand, e.g. "h264 1920x1080@30 yuv420p".
func (s VideoSpec) String() string {
	return fmt.Sprintf("%s %dx%d@%g %s", s.Codec, s.Width, s.Height, s.Framerate, s.PixFmt)
}
