package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/soracast/soracast/internal/cache"
	"github.com/soracast/soracast/internal/config"
	"github.com/soracast/soracast/internal/ffmpeg"
	"github.com/soracast/soracast/internal/generation"
	internalhttp "github.com/soracast/soracast/internal/http"
	"github.com/soracast/soracast/internal/http/handlers"
	"github.com/soracast/soracast/internal/models"
	"github.com/soracast/soracast/internal/observability"
	"github.com/soracast/soracast/internal/planner"
	"github.com/soracast/soracast/internal/preset"
	"github.com/soracast/soracast/internal/rtmp"
	"github.com/soracast/soracast/internal/storage"
	"github.com/soracast/soracast/internal/stream"
	"github.com/soracast/soracast/internal/tts"
	"github.com/soracast/soracast/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the soracast server",
	Long: `Start the soracast HTTP server and API.

The server provides:
- REST API for batch rendering and live-stream control
- Health check endpoint
- Prometheus metrics at /metrics
- OpenAPI documentation at /docs`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	applyLogFlags(cfg)

	logger := observability.NewLogger(cfg.Logging)
	observability.SetDefault(logger)

	metrics := observability.NewMetrics()

	motions, err := storage.NewSandbox(cfg.Storage.MotionsDir)
	if err != nil {
		return fmt.Errorf("initializing motions directory: %w", err)
	}

	presets, err := preset.Load(cfg.Presets.Path, motions)
	if err != nil {
		return fmt.Errorf("loading presets: %w", err)
	}
	logger.Info("presets loaded",
		slog.Int("count", len(presets.IDs())),
	)

	bins, err := ffmpeg.ResolveBinaries(cfg.FFmpeg.BinaryPath, cfg.FFmpeg.ProbePath)
	if err != nil {
		return fmt.Errorf("resolving media tools: %w", err)
	}

	prober := ffmpeg.NewProber(bins.FFprobePath, logger).
		WithTimeout(cfg.FFmpeg.ProbeTimeout).
		WithDebug(cfg.FFmpeg.DebugProbe)

	encoder := ffmpeg.NewEncoder(bins, prober, logger).
		WithInvokeHook(func(operation string) {
			metrics.EncoderInvocations.WithLabelValues(operation).Inc()
		})

	store, err := cache.NewStore(cfg.Storage.OutputDir, logger)
	if err != nil {
		return fmt.Errorf("initializing output store: %w", err)
	}
	if err := store.Reconcile(); err != nil {
		return fmt.Errorf("reconciling output log: %w", err)
	}
	if removed := generation.CleanupLeftoverJobs(cfg.Storage.OutputDir, logger); removed > 0 {
		logger.Info("removed leftover job directories", slog.Int("count", removed))
	}
	// Stream ephemera from a crashed session are useless without the
	// session; a fresh start recreates the directory.
	if err := os.RemoveAll(cfg.Storage.StreamDir()); err != nil {
		logger.Warn("purging stale stream directory", slog.String("error", err.Error()))
	}

	clipPlanner := planner.New(presets, prober, logger)

	startupCtx := cmd.Context()
	if startupCtx == nil {
		startupCtx = context.Background()
	}
	if _, err := planner.ValidateMotionSpecs(startupCtx, presets, prober, logger); err != nil {
		return fmt.Errorf("validating motion clips: %w", err)
	}

	transcriber := tts.NewTranscriber("", logger)

	generator := generation.NewService(
		presets,
		clipPlanner,
		encoder,
		prober,
		store,
		transcriber,
		cfg.Storage.OutputDir,
		logger,
	).WithMetrics(metrics)

	controllerFactory := func(pr *models.Preset, debug bool) stream.LoopController {
		return stream.NewController(
			cfg.Stream,
			pr,
			clipPlanner,
			encoder,
			bins.FFmpegPath,
			cfg.Storage.StreamDir(),
			debug,
			logger,
		)
	}

	streams := stream.NewService(presets, generator, controllerFactory, logger).
		WithMetrics(metrics)

	ingest := rtmp.New(cfg.RTMP, observability.WithComponent(logger, "rtmp"))
	if err := ingest.Start(); err != nil {
		return fmt.Errorf("starting RTMP ingest: %w", err)
	}
	for _, pr := range presets.All() {
		app, _, err := rtmp.Endpoint(pr.RTMPOutputURL)
		if err != nil {
			return fmt.Errorf("preset %q: %w", pr.ID, err)
		}
		logger.Debug("rtmp endpoint",
			slog.String("preset", pr.ID),
			slog.String("app", app),
		)
	}

	server := internalhttp.NewServer(cfg.Server, logger, version.Version)
	server.MountMetrics(metrics)

	rewrite := func(path string) string {
		return cfg.Server.RewritePath(cfg.Storage.OutputDir, path)
	}

	handlers.NewHealthHandler(version.Version).
		WithStreamService(streams).
		Register(server.API())
	handlers.NewGenerateHandler(generator, rewrite, logger).Register(server.API())
	handlers.NewStreamHandler(streams, logger).Register(server.API())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		cancel()
	}()

	logger.Info("starting soracast server",
		slog.String("address", cfg.Server.Address()),
		slog.String("version", version.Version),
	)

	err = server.ListenAndServe(ctx)

	// Stop the broadcast before the ingest server so the encoder does not
	// log connection errors during teardown.
	streams.Stop()
	ingest.Stop()

	return err
}
