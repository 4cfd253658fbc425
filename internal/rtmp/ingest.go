// Package rtmp manages the optional local RTMP ingest server subprocess.
// The server is treated as an opaque sidecar: soracast only needs an
// rtmp://host/app/key endpoint that the stream encoder can publish to.
package rtmp

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/soracast/soracast/internal/config"
)

// DefaultBinary is looked up on PATH when no binary path is configured.
const DefaultBinary = "mediamtx"

const stopGrace = 2 * time.Second

// Ingest supervises one ingest server subprocess for the lifetime of the
// process.
type Ingest struct {
	cfg    config.RTMPConfig
	logger *slog.Logger

	mu       sync.Mutex
	cmd      *exec.Cmd
	stopping bool
}

// New creates an ingest supervisor.
func New(cfg config.RTMPConfig, logger *slog.Logger) *Ingest {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingest{cfg: cfg, logger: logger}
}

// Start launches the ingest server. With Enabled off, or the binary missing
// from PATH, startup is skipped with a log line: an external RTMP endpoint
// may be serving instead.
func (i *Ingest) Start() error {
	if !i.cfg.Enabled {
		i.logger.Info("rtmp ingest disabled, expecting an external endpoint")
		return nil
	}

	bin := i.cfg.BinaryPath
	if bin == "" {
		found, err := exec.LookPath(DefaultBinary)
		if err != nil {
			i.logger.Warn("rtmp ingest binary not found on PATH, skipping",
				slog.String("binary", DefaultBinary))
			return nil
		}
		bin = found
	}

	args := []string{}
	if i.cfg.ConfigPath != "" {
		args = append(args, i.cfg.ConfigPath)
	}

	cmd := exec.Command(bin, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("attaching ingest stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("attaching ingest stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting ingest server: %w", err)
	}

	i.mu.Lock()
	i.cmd = cmd
	i.mu.Unlock()

	go i.forwardLines(stdout)
	go i.forwardLines(stderr)
	go i.waitForExit(cmd)

	i.logger.Info("rtmp ingest started", slog.String("binary", bin))
	return nil
}

func (i *Ingest) forwardLines(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		i.logger.Debug("ingest output", slog.String("line", scanner.Text()))
	}
}

func (i *Ingest) waitForExit(cmd *exec.Cmd) {
	err := cmd.Wait()

	i.mu.Lock()
	stopping := i.stopping
	if i.cmd == cmd {
		i.cmd = nil
	}
	i.mu.Unlock()

	if stopping {
		return
	}
	if err != nil {
		i.logger.Error("rtmp ingest exited", slog.String("error", err.Error()))
	} else {
		i.logger.Warn("rtmp ingest exited cleanly")
	}
}

// Stop terminates the ingest server with a SIGKILL grace.
func (i *Ingest) Stop() {
	i.mu.Lock()
	i.stopping = true
	cmd := i.cmd
	i.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return
	}
	proc := cmd.Process
	proc.Signal(syscall.SIGTERM)
	time.AfterFunc(stopGrace, func() {
		proc.Kill()
	})
}

// Running reports whether the subprocess is alive.
func (i *Ingest) Running() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.cmd != nil
}

// Endpoint validates that presetURL targets a well-formed rtmp://host/app/key
// destination and returns its app and key.
func Endpoint(presetURL string) (app, key string, err error) {
	return config.IngestAppKey(presetURL)
}
