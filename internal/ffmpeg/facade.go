package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/soracast/soracast/internal/models"
)

// Audio parameters enforced on every output: 48 kHz stereo.
const (
	sampleRate = 48000
	channels   = 2
)

// DefaultSilenceThresholdDB is the silence-removal threshold for TrimAudioSilence.
const DefaultSilenceThresholdDB = -70

// Encoder is a stateless facade over the ffmpeg binary. Intermediate files
// are written into caller-provided directories; the encoder never owns file
// lifecycle.
type Encoder struct {
	bins   Binaries
	prober *Prober
	logger *slog.Logger

	// onInvoke, when set, is called once per subprocess invocation with the
	// operation name. Used for metrics.
	onInvoke func(operation string)
}

// NewEncoder creates an encoder facade around the resolved binaries.
func NewEncoder(bins Binaries, prober *Prober, logger *slog.Logger) *Encoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Encoder{bins: bins, prober: prober, logger: logger}
}

// WithInvokeHook registers a per-invocation callback.
func (e *Encoder) WithInvokeHook(hook func(operation string)) *Encoder {
	e.onInvoke = hook
	return e
}

// Prober returns the shared duration prober.
func (e *Encoder) Prober() *Prober {
	return e.prober
}

// FFmpegPath returns the resolved ffmpeg binary path.
func (e *Encoder) FFmpegPath() string {
	return e.bins.FFmpegPath
}

// run executes ffmpeg with the given args, returning a descriptive error
// carrying the stderr tail on failure.
func (e *Encoder) run(ctx context.Context, operation string, args ...string) error {
	if e.onInvoke != nil {
		e.onInvoke(operation)
	}

	full := append([]string{"-hide_banner", "-loglevel", "error", "-y"}, args...)
	cmd := exec.CommandContext(ctx, e.bins.FFmpegPath, full...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	e.logger.Debug("ffmpeg invocation",
		slog.String("operation", operation),
		slog.String("args", strings.Join(full, " ")),
	)

	if err := cmd.Run(); err != nil {
		tail := stderr.String()
		const maxTail = 2048
		if len(tail) > maxTail {
			tail = tail[len(tail)-maxTail:]
		}
		return fmt.Errorf("ffmpeg %s failed: %w: %s", operation, err, strings.TrimSpace(tail))
	}
	return nil
}

// tempName returns a unique file name inside dir with the given prefix and extension.
func tempName(dir, prefix, ext string) string {
	return filepath.Join(dir, prefix+"-"+uuid.NewString()[:8]+ext)
}

// secs renders milliseconds as a fractional-seconds ffmpeg argument.
func secs(ms int64) string {
	return fmt.Sprintf("%d.%03d", ms/1000, ms%1000)
}

// CreateSilentAudio writes a silent WAV of the given duration into dir.
func (e *Encoder) CreateSilentAudio(ctx context.Context, dir string, ms int64) (string, error) {
	out := tempName(dir, "silence", ".wav")
	err := e.run(ctx, "create_silent_audio",
		"-f", "lavfi",
		"-i", fmt.Sprintf("anullsrc=r=%d:cl=stereo", sampleRate),
		"-t", secs(ms),
		"-c:a", "pcm_s16le",
		out,
	)
	if err != nil {
		return "", err
	}
	return out, nil
}

// NormalizeAudio re-encodes path to 48 kHz stereo pcm_s16le WAV.
func (e *Encoder) NormalizeAudio(ctx context.Context, dir, path string) (string, error) {
	out := tempName(dir, "norm", ".wav")
	err := e.run(ctx, "normalize_audio",
		"-i", path,
		"-ar", fmt.Sprint(sampleRate),
		"-ac", fmt.Sprint(channels),
		"-c:a", "pcm_s16le",
		out,
	)
	if err != nil {
		return "", err
	}
	return out, nil
}

// TrimAudioSilence removes leading and trailing silence using a
// forward-and-reverse silenceremove pass.
func (e *Encoder) TrimAudioSilence(ctx context.Context, dir, path string, thresholdDB int) (string, error) {
	if thresholdDB == 0 {
		thresholdDB = DefaultSilenceThresholdDB
	}
	out := tempName(dir, "trim", ".wav")
	filter := fmt.Sprintf(
		"silenceremove=start_periods=1:start_threshold=%[1]ddB,areverse,"+
			"silenceremove=start_periods=1:start_threshold=%[1]ddB,areverse",
		thresholdDB,
	)
	err := e.run(ctx, "trim_audio_silence",
		"-i", path,
		"-af", filter,
		"-c:a", "pcm_s16le",
		out,
	)
	if err != nil {
		return "", err
	}
	return out, nil
}

// FitAudioDuration pads path with trailing silence and truncates the result
// to exactly ms.
func (e *Encoder) FitAudioDuration(ctx context.Context, dir, path string, ms int64) (string, error) {
	out := tempName(dir, "fit", ".wav")
	err := e.run(ctx, "fit_audio_duration",
		"-i", path,
		"-af", "apad",
		"-t", secs(ms),
		"-ar", fmt.Sprint(sampleRate),
		"-ac", fmt.Sprint(channels),
		"-c:a", "pcm_s16le",
		out,
	)
	if err != nil {
		return "", err
	}
	return out, nil
}

// ConcatAudio joins the given audio files in order and returns the result
// path and its duration.
func (e *Encoder) ConcatAudio(ctx context.Context, dir string, paths []string) (string, int64, error) {
	if len(paths) == 0 {
		return "", 0, fmt.Errorf("concat_audio: no inputs")
	}
	if len(paths) == 1 {
		ms, err := e.prober.AudioDurationMS(ctx, paths[0])
		return paths[0], ms, err
	}

	list, err := writeTempPlaylist(dir, "audio-concat-"+uuid.NewString()[:8]+".txt", paths)
	if err != nil {
		return "", 0, err
	}

	out := tempName(dir, "concat", ".wav")
	err = e.run(ctx, "concat_audio",
		"-f", "concat",
		"-safe", "0",
		"-i", list,
		"-ar", fmt.Sprint(sampleRate),
		"-ac", fmt.Sprint(channels),
		"-c:a", "pcm_s16le",
		out,
	)
	if err != nil {
		return "", 0, err
	}

	ms, err := e.prober.AudioDurationMS(ctx, out)
	if err != nil {
		return "", 0, err
	}
	return out, ms, nil
}

// ExtractAudioTrack demuxes the audio stream of a video file into a WAV.
// Returns models.ErrNoAudioTrack when the source has no audio stream.
func (e *Encoder) ExtractAudioTrack(ctx context.Context, dir, path string) (string, error) {
	hasAudio, err := e.prober.HasAudioStream(ctx, path)
	if err != nil {
		return "", err
	}
	if !hasAudio {
		return "", fmt.Errorf("%s: %w", path, models.ErrNoAudioTrack)
	}

	out := tempName(dir, "extract", ".wav")
	err = e.run(ctx, "extract_audio_track",
		"-i", path,
		"-vn",
		"-ar", fmt.Sprint(sampleRate),
		"-ac", fmt.Sprint(channels),
		"-c:a", "pcm_s16le",
		out,
	)
	if err != nil {
		return "", err
	}
	return out, nil
}

// EnsureAudioTrack guarantees the returned file carries an audio track. When
// the source already has audio, the streams are copied unchanged; otherwise a
// silent AAC track matching the video duration is muxed in. The result always
// lives inside dir.
func (e *Encoder) EnsureAudioTrack(ctx context.Context, dir, path string) (string, error) {
	hasAudio, err := e.prober.HasAudioStream(ctx, path)
	if err != nil {
		return "", err
	}

	out := tempName(dir, "ensure", ".mp4")
	if hasAudio {
		err = e.run(ctx, "ensure_audio_track",
			"-i", path,
			"-c", "copy",
			out,
		)
		if err != nil {
			return "", err
		}
		return out, nil
	}

	err = e.run(ctx, "ensure_audio_track",
		"-i", path,
		"-f", "lavfi",
		"-i", fmt.Sprintf("anullsrc=r=%d:cl=stereo", sampleRate),
		"-map", "0:v",
		"-map", "1:a",
		"-c:v", "copy",
		"-c:a", "aac",
		"-ar", fmt.Sprint(sampleRate),
		"-ac", fmt.Sprint(channels),
		"-shortest",
		out,
	)
	if err != nil {
		return "", err
	}
	return out, nil
}

// ConcatVideo joins the given clips without re-encoding the video stream.
func (e *Encoder) ConcatVideo(ctx context.Context, dir string, paths []string) (string, error) {
	if len(paths) == 0 {
		return "", fmt.Errorf("concat_video: no inputs")
	}

	list, err := writeTempPlaylist(dir, "video-concat-"+uuid.NewString()[:8]+".txt", paths)
	if err != nil {
		return "", err
	}

	out := tempName(dir, "vconcat", ".mp4")
	err = e.run(ctx, "concat_video",
		"-f", "concat",
		"-safe", "0",
		"-i", list,
		"-c", "copy",
		out,
	)
	if err != nil {
		return "", err
	}
	return out, nil
}

// MixAudio overlays the given audio files without normalization (levels are
// preserved) and truncates the result to ms.
func (e *Encoder) MixAudio(ctx context.Context, dir string, paths []string, ms int64) (string, error) {
	if len(paths) == 0 {
		return "", fmt.Errorf("mix_audio: no inputs")
	}

	args := make([]string, 0, 2*len(paths)+8)
	for _, p := range paths {
		args = append(args, "-i", p)
	}
	args = append(args,
		"-filter_complex", fmt.Sprintf("amix=inputs=%d:duration=longest:normalize=0", len(paths)),
		"-t", secs(ms),
		"-ar", fmt.Sprint(sampleRate),
		"-ac", fmt.Sprint(channels),
		"-c:a", "pcm_s16le",
	)

	out := tempName(dir, "mix", ".wav")
	args = append(args, out)
	if err := e.run(ctx, "mix_audio", args...); err != nil {
		return "", err
	}
	return out, nil
}

// ExtractSegment copies a [start, start+dur) window out of path without
// re-encoding.
func (e *Encoder) ExtractSegment(ctx context.Context, dir, path string, startMS, durMS int64) (string, error) {
	out := tempName(dir, "segment", ".mp4")
	err := e.run(ctx, "extract_segment",
		"-ss", secs(startMS),
		"-i", path,
		"-t", secs(durMS),
		"-c", "copy",
		out,
	)
	if err != nil {
		return "", err
	}
	return out, nil
}

// ComposeResult is the output of Compose.
type ComposeResult struct {
	Path       string
	DurationMS int64
}

// Compose concatenates the given clips (video stream copied, never
// re-encoded) and lays down an audio track according to the composition rule:
//
//   - motion audio and external audio: amix with normalize=0, shortest-end
//   - external audio only: map the external track, shortest-end
//   - motion audio only: map the source audio, force explicit target duration
//   - neither: generate silence of the target duration
//
// When only some clips carry audio, the silent ones are upgraded via
// EnsureAudioTrack first: the concat demuxer requires every entry to have
// the same stream layout. Output audio is always 48 kHz stereo AAC.
func (e *Encoder) Compose(ctx context.Context, dir string, clips []string, audioPath string, durationMS int64) (ComposeResult, error) {
	if len(clips) == 0 {
		return ComposeResult{}, fmt.Errorf("compose: no clips")
	}

	withAudio := 0
	hasAudio := make([]bool, len(clips))
	for i, clip := range clips {
		ok, err := e.prober.HasAudioStream(ctx, clip)
		if err != nil {
			return ComposeResult{}, err
		}
		hasAudio[i] = ok
		if ok {
			withAudio++
		}
	}

	hasMotionAudio := withAudio > 0
	if hasMotionAudio && withAudio < len(clips) {
		upgraded := make([]string, len(clips))
		for i, clip := range clips {
			if hasAudio[i] {
				upgraded[i] = clip
				continue
			}
			up, err := e.EnsureAudioTrack(ctx, dir, clip)
			if err != nil {
				return ComposeResult{}, err
			}
			upgraded[i] = up
		}
		clips = upgraded
	}

	list, err := writeTempPlaylist(dir, "compose-"+uuid.NewString()[:8]+".txt", clips)
	if err != nil {
		return ComposeResult{}, err
	}

	hasExternalAudio := audioPath != ""
	out := tempName(dir, "compose", ".mp4")

	args := []string{"-f", "concat", "-safe", "0", "-i", list}

	switch {
	case hasMotionAudio && hasExternalAudio:
		args = append(args,
			"-i", audioPath,
			"-filter_complex", "[0:a][1:a]amix=inputs=2:duration=longest:normalize=0[aout]",
			"-map", "0:v",
			"-map", "[aout]",
			"-shortest",
		)
	case hasExternalAudio:
		args = append(args,
			"-i", audioPath,
			"-map", "0:v",
			"-map", "1:a",
			"-shortest",
		)
	case hasMotionAudio:
		args = append(args,
			"-map", "0:v",
			"-map", "0:a",
			"-t", secs(durationMS),
		)
	default:
		args = append(args,
			"-f", "lavfi",
			"-i", fmt.Sprintf("anullsrc=r=%d:cl=stereo", sampleRate),
			"-map", "0:v",
			"-map", "1:a",
			"-t", secs(durationMS),
		)
	}

	args = append(args,
		"-c:v", "copy",
		"-c:a", "aac",
		"-ar", fmt.Sprint(sampleRate),
		"-ac", fmt.Sprint(channels),
		out,
	)

	if err := e.run(ctx, "compose", args...); err != nil {
		return ComposeResult{}, err
	}

	ms, err := e.prober.VideoDurationMS(ctx, out)
	if err != nil {
		return ComposeResult{}, err
	}
	return ComposeResult{Path: out, DurationMS: ms}, nil
}
