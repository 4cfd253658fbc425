package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/soracast/soracast/internal/models"
)

// ProbeResult contains the ffprobe output we care about.
type ProbeResult struct {
	Format  ProbeFormat   `json:"format"`
	Streams []ProbeStream `json:"streams"`
}

// ProbeFormat contains container format information.
type ProbeFormat struct {
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
}

// ProbeStream contains stream information.
type ProbeStream struct {
	Index        int    `json:"index"`
	CodecName    string `json:"codec_name"`
	CodecType    string `json:"codec_type"` // video, audio
	Width        int    `json:"width,omitempty"`
	Height       int    `json:"height,omitempty"`
	PixFmt       string `json:"pix_fmt,omitempty"`
	RFrameRate   string `json:"r_frame_rate,omitempty"`
	AvgFrameRate string `json:"avg_frame_rate,omitempty"`
	Duration     string `json:"duration,omitempty"`
}

// DurationMS returns the container duration in milliseconds.
func (r *ProbeResult) DurationMS() int64 {
	return parseSecondsMS(r.Format.Duration)
}

// VideoStream returns the first video stream, or nil.
func (r *ProbeResult) VideoStream() *ProbeStream {
	for i := range r.Streams {
		if r.Streams[i].CodecType == "video" {
			return &r.Streams[i]
		}
	}
	return nil
}

// AudioStream returns the first audio stream, or nil.
func (r *ProbeResult) AudioStream() *ProbeStream {
	for i := range r.Streams {
		if r.Streams[i].CodecType == "audio" {
			return &r.Streams[i]
		}
	}
	return nil
}

// Framerate returns the stream framerate as a float.
func (s *ProbeStream) Framerate() float64 {
	if s.AvgFrameRate != "" {
		if f := parseFramerate(s.AvgFrameRate); f > 0 {
			return f
		}
	}
	return parseFramerate(s.RFrameRate)
}

// parseFramerate parses a framerate string like "30000/1001" or "25/1".
func parseFramerate(fr string) float64 {
	parts := strings.Split(fr, "/")
	if len(parts) != 2 {
		if f, err := strconv.ParseFloat(fr, 64); err == nil {
			return f
		}
		return 0
	}

	num, err1 := strconv.ParseFloat(parts[0], 64)
	den, err2 := strconv.ParseFloat(parts[1], 64)
	if err1 != nil || err2 != nil || den == 0 {
		return 0
	}

	return num / den
}

// parseSecondsMS converts an ffprobe seconds string to milliseconds.
func parseSecondsMS(s string) int64 {
	if s == "" {
		return 0
	}
	if dur, err := strconv.ParseFloat(s, 64); err == nil {
		return int64(dur * 1000)
	}
	return 0
}

// Prober handles ffprobe operations with memoized duration lookups.
//
// Durations are cached by absolute path in two maps (video and audio) and
// never invalidated: motion files are treated as immutable, which is a
// precondition of the whole system. Concurrent probes of the same path are
// deduplicated through singleflight.
type Prober struct {
	ffprobePath string
	timeout     time.Duration
	debug       bool
	logger      *slog.Logger

	mu       sync.RWMutex
	videoDur map[string]int64
	audioDur map[string]int64
	group    singleflight.Group
}

// NewProber creates a new prober.
func NewProber(ffprobePath string, logger *slog.Logger) *Prober {
	if logger == nil {
		logger = slog.Default()
	}
	return &Prober{
		ffprobePath: ffprobePath,
		timeout:     30 * time.Second,
		logger:      logger,
		videoDur:    make(map[string]int64),
		audioDur:    make(map[string]int64),
	}
}

// WithTimeout sets the probe timeout.
func (p *Prober) WithTimeout(timeout time.Duration) *Prober {
	if timeout > 0 {
		p.timeout = timeout
	}
	return p
}

// WithDebug enables logging of every probe invocation.
func (p *Prober) WithDebug(debug bool) *Prober {
	p.debug = debug
	return p
}

// Probe runs ffprobe against path and returns the parsed result.
func (p *Prober) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	}

	if p.debug {
		p.logger.Debug("ffprobe", slog.String("path", path))
	}

	cmd := exec.CommandContext(ctx, p.ffprobePath, args...)
	output, err := cmd.Output()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("probe timeout after %v: %s", p.timeout, path)
		}
		return nil, fmt.Errorf("ffprobe failed for %s: %w", path, err)
	}

	var result ProbeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return nil, fmt.Errorf("parsing ffprobe output: %w", err)
	}

	return &result, nil
}

// VideoDurationMS returns the video duration of path in milliseconds,
// memoized by absolute path.
func (p *Prober) VideoDurationMS(ctx context.Context, path string) (int64, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return 0, fmt.Errorf("resolving path: %w", err)
	}

	p.mu.RLock()
	if ms, ok := p.videoDur[abs]; ok {
		p.mu.RUnlock()
		return ms, nil
	}
	p.mu.RUnlock()

	v, err, _ := p.group.Do("v:"+abs, func() (any, error) {
		result, err := p.Probe(ctx, abs)
		if err != nil {
			return int64(0), err
		}
		ms := result.DurationMS()
		if vs := result.VideoStream(); vs != nil && vs.Duration != "" {
			if d := parseSecondsMS(vs.Duration); d > 0 {
				ms = d
			}
		}
		p.mu.Lock()
		p.videoDur[abs] = ms
		p.mu.Unlock()
		return ms, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

// AudioDurationMS returns the audio duration of path in milliseconds,
// memoized by absolute path.
func (p *Prober) AudioDurationMS(ctx context.Context, path string) (int64, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return 0, fmt.Errorf("resolving path: %w", err)
	}

	p.mu.RLock()
	if ms, ok := p.audioDur[abs]; ok {
		p.mu.RUnlock()
		return ms, nil
	}
	p.mu.RUnlock()

	v, err, _ := p.group.Do("a:"+abs, func() (any, error) {
		result, err := p.Probe(ctx, abs)
		if err != nil {
			return int64(0), err
		}
		ms := result.DurationMS()
		if as := result.AudioStream(); as != nil && as.Duration != "" {
			if d := parseSecondsMS(as.Duration); d > 0 {
				ms = d
			}
		}
		p.mu.Lock()
		p.audioDur[abs] = ms
		p.mu.Unlock()
		return ms, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

// HasAudioStream reports whether path carries at least one audio stream.
func (p *Prober) HasAudioStream(ctx context.Context, path string) (bool, error) {
	result, err := p.Probe(ctx, path)
	if err != nil {
		return false, err
	}
	return result.AudioStream() != nil, nil
}

// VideoSpec returns the video parameters of path.
func (p *Prober) VideoSpec(ctx context.Context, path string) (models.VideoSpec, error) {
	result, err := p.Probe(ctx, path)
	if err != nil {
		return models.VideoSpec{}, err
	}
	vs := result.VideoStream()
	if vs == nil {
		return models.VideoSpec{}, fmt.Errorf("no video stream in %s", path)
	}
	return models.VideoSpec{
		Width:     vs.Width,
		Height:    vs.Height,
		Framerate: vs.Framerate(),
		Codec:     vs.CodecName,
		PixFmt:    vs.PixFmt,
	}, nil
}
