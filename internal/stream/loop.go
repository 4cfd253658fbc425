// Package stream keeps a continuous RTMP broadcast fed with motion video.
// A single long-lived ffmpeg subprocess consumes a self-referential concat
// playlist; speech tasks are spliced in by atomically rewriting the playlist.
package stream

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/soracast/soracast/internal/config"
	"github.com/soracast/soracast/internal/ffmpeg"
	"github.com/soracast/soracast/internal/models"
)

// PlaylistName is the loop playlist the encoder consumes. Its last entry
// references itself: at EOF the concat demuxer reopens the file and picks up
// whatever the controller wrote in the meantime. Atomic rename is the only
// synchronization between writer and reader.
const PlaylistName = "idle.txt"

// IdlePlanner builds single-purpose idle plans for the loop.
type IdlePlanner interface {
	BuildIdlePlan(ctx context.Context, presetID string, durationMS int64, motionID, emotion string) (*models.ClipPlan, error)
}

// TrackEnsurer upgrades clips to carry an audio track. Every playlist entry
// must share a stream layout or the concat demuxer stalls.
type TrackEnsurer interface {
	EnsureAudioTrack(ctx context.Context, dir, path string) (string, error)
}

// TaskClip is one finished speech MP4 to splice into the loop.
type TaskClip struct {
	Path       string
	DurationMS int64
}

// Controller owns the encoder subprocess and the loop playlist for one
// streaming session.
type Controller struct {
	cfg        config.StreamConfig
	preset     *models.Preset
	planner    IdlePlanner
	encoder    TrackEnsurer
	ffmpegPath string
	workDir    string
	debug      bool
	logger     *slog.Logger

	// buildCmd is swappable for tests that must not spawn ffmpeg.
	buildCmd func() *exec.Cmd

	mu              sync.Mutex
	cmd             *exec.Cmd
	stopping        bool
	timerGen        uint64
	currentMotionID string
	currentClip     string
	rotation        *time.Timer
	restore         *time.Timer
}

// NewController creates a controller for one preset session. workDir is the
// exclusive working directory (the stream subdirectory of the output dir).
func NewController(
	cfg config.StreamConfig,
	preset *models.Preset,
	planner IdlePlanner,
	encoder TrackEnsurer,
	ffmpegPath, workDir string,
	debug bool,
	logger *slog.Logger,
) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		cfg:        cfg,
		preset:     preset,
		planner:    planner,
		encoder:    encoder,
		ffmpegPath: ffmpegPath,
		workDir:    workDir,
		debug:      debug,
		logger:     logger,
	}
	c.buildCmd = c.encoderCmd
	return c
}

// WithCommandBuilder replaces encoder subprocess construction. Tests use this
// to substitute a harmless long-running process.
func (c *Controller) WithCommandBuilder(build func() *exec.Cmd) *Controller {
	c.buildCmd = build
	return c
}

// Start prepares the working directory, writes the initial loop playlist and
// spawns the encoder.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.debug {
		if err := os.RemoveAll(c.workDir); err != nil {
			return fmt.Errorf("clearing stream directory: %w", err)
		}
	}
	if err := os.MkdirAll(c.workDir, 0750); err != nil {
		return fmt.Errorf("creating stream directory: %w", err)
	}

	clipID, clipPath, clipMS, err := c.nextIdleClip(ctx)
	if err != nil {
		return err
	}
	if err := c.writeLoopPlaylist([]string{clipPath}); err != nil {
		return err
	}
	c.currentMotionID = clipID
	c.currentClip = clipPath
	c.stopping = false

	if err := c.spawnLocked(); err != nil {
		return err
	}

	c.armRotationLocked(time.Duration(clipMS) * time.Millisecond)
	c.logger.Info("stream loop started",
		slog.String("preset", c.preset.ID),
		slog.String("motion", clipID),
	)
	return nil
}

// nextIdleClip plans one idle clip and upgrades it to carry audio.
func (c *Controller) nextIdleClip(ctx context.Context) (id, path string, ms int64, err error) {
	plan, err := c.planner.BuildIdlePlan(ctx, c.preset.ID, c.cfg.MinIdle.Milliseconds(), "", "")
	if err != nil {
		return "", "", 0, err
	}
	entry := plan.Entries[0]

	upgraded, err := c.encoder.EnsureAudioTrack(ctx, c.workDir, entry.SourcePath)
	if err != nil {
		return "", "", 0, err
	}
	return entry.ClipID, upgraded, entry.DurationMS, nil
}

// writeLoopPlaylist atomically rewrites idle.txt with the given entries
// followed by the self-reference.
func (c *Controller) writeLoopPlaylist(entries []string) error {
	all := append(append([]string(nil), entries...), PlaylistName)
	return ffmpeg.WritePlaylist(filepath.Join(c.workDir, PlaylistName), all)
}

// encoderCmd builds the long-lived ffmpeg invocation: concat demuxer over the
// loop playlist, video stream copied, AAC 48 kHz stereo audio, FLV mux to the
// preset's RTMP URL. The working directory anchors the playlist
// self-reference.
func (c *Controller) encoderCmd() *exec.Cmd {
	cmd := exec.Command(c.ffmpegPath,
		"-hide_banner",
		"-re",
		"-f", "concat",
		"-safe", "0",
		"-i", PlaylistName,
		"-c:v", "copy",
		"-c:a", "aac",
		"-ar", "48000",
		"-ac", "2",
		"-f", "flv",
		c.preset.RTMPOutputURL,
	)
	cmd.Dir = c.workDir
	return cmd
}

// spawnLocked starts the encoder subprocess. Caller holds the lock.
func (c *Controller) spawnLocked() error {
	if c.cmd != nil && c.cmd.Process != nil {
		c.cmd.Process.Kill()
		c.cmd = nil
	}

	cmd := c.buildCmd()

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("attaching encoder stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("attaching encoder stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting encoder: %w", err)
	}
	c.cmd = cmd

	go c.forwardLines(stdout, "stdout")
	go c.forwardLines(stderr, "stderr")
	go c.waitForExit(cmd)
	return nil
}

func (c *Controller) forwardLines(r io.Reader, channel string) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		c.logger.Debug("encoder output",
			slog.String("channel", channel),
			slog.String("line", scanner.Text()),
		)
	}
}

// waitForExit applies the self-restart policy: a clean exit while not
// stopping relaunches the loop after a short delay, anything else only logs.
func (c *Controller) waitForExit(cmd *exec.Cmd) {
	err := cmd.Wait()

	c.mu.Lock()
	if c.cmd != cmd {
		c.mu.Unlock()
		return
	}
	c.cmd = nil
	stopping := c.stopping
	c.mu.Unlock()

	if stopping {
		return
	}

	if err == nil {
		c.logger.Warn("encoder exited cleanly, restarting",
			slog.Duration("delay", c.cfg.RestartDelay))
		time.AfterFunc(c.cfg.RestartDelay, func() {
			if err := c.Start(context.Background()); err != nil {
				c.logger.Error("encoder restart failed", slog.String("error", err.Error()))
			}
		})
		return
	}

	c.logger.Error("encoder exited with error", slog.String("error", err.Error()))
}

// armRotationLocked schedules the next idle rotation. Caller holds the lock.
func (c *Controller) armRotationLocked(after time.Duration) {
	if c.rotation != nil {
		c.rotation.Stop()
	}
	c.timerGen++
	gen := c.timerGen
	c.rotation = time.AfterFunc(after, func() { c.rotateIdle(gen) })
}

// rotateIdle swaps the loop onto a fresh idle clip. Called from the rotation
// timer and from the post-task restore timer. Timer.Stop cannot cancel a
// callback that already fired and is waiting on the lock, so each timer
// carries the generation it was armed with; a stale generation means the
// playlist moved on and the callback must not touch it. Failures log and
// leave the encoder looping the current clip.
func (c *Controller) rotateIdle(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.timerGen || c.stopping || c.cmd == nil {
		return
	}

	previous := c.currentClip

	clipID, clipPath, clipMS, err := c.nextIdleClip(context.Background())
	if err != nil {
		c.logger.Error("idle rotation failed", slog.String("error", err.Error()))
		return
	}
	if err := c.writeLoopPlaylist([]string{clipPath}); err != nil {
		c.logger.Error("idle rotation playlist write failed", slog.String("error", err.Error()))
		return
	}
	c.currentMotionID = clipID
	c.currentClip = clipPath

	// The encoder may still be reading the previous clip until its next loop
	// boundary; delete only after the margin.
	c.scheduleRemoval(c.cfg.CleanupMargin, previous)

	c.armRotationLocked(time.Duration(clipMS) * time.Millisecond)
}

// scheduleRemoval deletes paths after the given delay. Only files inside the
// working directory are touched; preset assets are never deleted.
func (c *Controller) scheduleRemoval(after time.Duration, paths ...string) {
	var owned []string
	for _, p := range paths {
		if p != "" && strings.HasPrefix(p, c.workDir+string(filepath.Separator)) {
			owned = append(owned, p)
		}
	}
	if len(owned) == 0 {
		return
	}
	time.AfterFunc(after, func() {
		for _, p := range owned {
			if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
				c.logger.Warn("cleanup failed", slog.String("path", p), slog.String("error", err.Error()))
			}
		}
	})
}

// InsertTask splices finished speech clips into the loop. A short idle pad is
// placed ahead of the task to hide the race with the encoder's EOF re-read of
// the playlist.
func (c *Controller) InsertTask(ctx context.Context, clips []TaskClip) error {
	if len(clips) == 0 {
		return fmt.Errorf("insert task: no clips")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cmd == nil || c.stopping {
		return models.ErrStreamNotRunning
	}

	taskList := filepath.Join(c.workDir, "task-"+uuid.NewString()+".txt")
	taskPaths := make([]string, len(clips))
	var taskMS int64
	for i, clip := range clips {
		taskPaths[i] = clip.Path
		taskMS += clip.DurationMS
	}
	if err := ffmpeg.WritePlaylist(taskList, taskPaths); err != nil {
		return err
	}

	padPlan, err := c.planner.BuildIdlePlan(ctx, c.preset.ID, c.cfg.MinIdle.Milliseconds(), "", "")
	if err != nil {
		return err
	}
	padPaths := make([]string, len(padPlan.Entries))
	for i, entry := range padPlan.Entries {
		upgraded, err := c.encoder.EnsureAudioTrack(ctx, c.workDir, entry.SourcePath)
		if err != nil {
			return err
		}
		padPaths[i] = upgraded
	}

	entries := append(append([]string(nil), padPaths...), taskList)
	if err := c.writeLoopPlaylist(entries); err != nil {
		return err
	}

	// Bumping the generation invalidates a rotation callback that fired
	// while this call held the lock; Stop alone cannot reach it.
	c.timerGen++
	gen := c.timerGen
	if c.rotation != nil {
		c.rotation.Stop()
	}

	total := time.Duration(taskMS+padPlan.TotalDurationMS) * time.Millisecond
	if c.restore != nil {
		c.restore.Stop()
	}
	c.restore = time.AfterFunc(total, func() { c.rotateIdle(gen) })

	cleanup := append(append([]string{taskList}, padPaths...), taskPaths...)
	c.scheduleRemoval(total+c.cfg.CleanupMargin, cleanup...)

	c.logger.Info("task spliced into stream",
		slog.Int("clips", len(clips)),
		slog.Duration("duration", time.Duration(taskMS)*time.Millisecond),
	)
	return nil
}

// Stop tears the session down: cancel timers, SIGTERM the encoder with a
// SIGKILL grace, purge the working directory after a delay. Fire-and-forget.
func (c *Controller) Stop() {
	c.mu.Lock()
	c.stopping = true
	if c.rotation != nil {
		c.rotation.Stop()
	}
	if c.restore != nil {
		c.restore.Stop()
	}
	cmd := c.cmd
	c.mu.Unlock()

	if cmd != nil && cmd.Process != nil {
		proc := cmd.Process
		proc.Signal(syscall.SIGTERM)
		time.AfterFunc(c.cfg.StopGrace, func() {
			proc.Kill()
		})
	}

	if !c.debug {
		workDir := c.workDir
		time.AfterFunc(c.cfg.PurgeDelay, func() {
			if err := os.RemoveAll(workDir); err != nil {
				c.logger.Warn("stream directory purge failed", slog.String("error", err.Error()))
			}
		})
	}

	c.logger.Info("stream loop stopping", slog.String("preset", c.preset.ID))
}

// Running reports whether the encoder subprocess is alive.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cmd != nil && !c.stopping
}

// CurrentMotionID returns the idle clip currently looping.
func (c *Controller) CurrentMotionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentMotionID
}

// WorkDir returns the controller's working directory.
func (c *Controller) WorkDir() string {
	return c.workDir
}
