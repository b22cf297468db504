package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/i474232898/forecast-panels/internal/api/http"
	"github.com/i474232898/forecast-panels/internal/config"
	"github.com/i474232898/forecast-panels/internal/logger"
	"github.com/i474232898/forecast-panels/internal/metrics"
	"github.com/i474232898/forecast-panels/internal/publish"
	"github.com/i474232898/forecast-panels/internal/refresh"
	"github.com/i474232898/forecast-panels/internal/render"
	"github.com/i474232898/forecast-panels/internal/scheduler"
	"github.com/i474232898/forecast-panels/internal/store"
	"github.com/i474232898/forecast-panels/internal/weather/providers"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	shutdownTimeout  = 10 * time.Second
	retryInitial     = time.Second
	retryMaxInterval = 30 * time.Second
)

func main() {
	logger.Init()
	log := logger.Get()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (.env -> defaults -> optional file -> env).
	cfg, err := config.Load(ctx)
	if err != nil {
		log.Error(ctx, "failed to load config", logger.Err(err))
		os.Exit(1)
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Err(err))
		_ = logger.SetLevelString("info")
	}

	// Shared HTTP client for outbound forecast calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	var providerOpts []providers.OpenMeteoOption
	if cfg.ForecastURL != "" {
		providerOpts = append(providerOpts, providers.WithForecastURL(cfg.ForecastURL))
	}
	if cfg.EnsembleURL != "" {
		providerOpts = append(providerOpts, providers.WithEnsembleURL(cfg.EnsembleURL))
	}
	provider := providers.NewOpenMeteoProvider(httpClient, providerOpts...)

	// Every stored artifact goes to disk, and to object storage when configured.
	fileSink, err := publish.NewFileSink(cfg.OutputPath)
	if err != nil {
		log.Error(ctx, "invalid output path", logger.Err(err))
		os.Exit(1)
	}
	sinks := publish.Multi{fileSink}
	if cfg.MirrorEnabled() {
		mirror, err := publish.NewMinioSink(publish.MirrorConfig{
			Endpoint:  cfg.MirrorEndpoint,
			Bucket:    cfg.MirrorBucket,
			AccessKey: cfg.MirrorAccessKey,
			SecretKey: cfg.MirrorSecretKey,
			Secure:    cfg.MirrorSecure,
		})
		if err != nil {
			log.Error(ctx, "invalid mirror config", logger.Err(err))
			os.Exit(1)
		}
		if err := mirror.EnsureBucket(ctx); err != nil {
			log.Error(ctx, "mirror bucket unavailable", logger.String("bucket", cfg.MirrorBucket), logger.Err(err))
			os.Exit(1)
		}
		sinks = append(sinks, mirror)
	}

	renderer := render.New(render.WithPanelSize(cfg.PanelWidth, cfg.PanelHeight))

	memStore := store.NewMemoryStore()
	if prev, err := fileSink.Restore(); err == nil {
		memStore.SaveArtifact(prev)
		log.Info(ctx, "restored previous artifact", logger.String("id", prev.ID))
	} else if errors.Is(err, publish.ErrStaleMetadata) {
		log.Warn(ctx, "ignoring previous artifact", logger.Err(err))
	}

	metricsManager := metrics.NewManager(cfg.MetricsOptions()...)
	metricsManager.Registry().MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	coord := refresh.New(
		provider,
		renderer,
		memStore,
		cfg.PipelineConfig(),
		cfg.PanelLayout(),
		refresh.WithLogger(log.Named("refresh")),
		refresh.WithMetrics(metricsManager),
		refresh.WithPublisher(sinks),
		refresh.WithRetry(refresh.RetryPolicy{
			MaxRetries:      cfg.FetchRetries,
			InitialInterval: retryInitial,
			MaxInterval:     retryMaxInterval,
		}),
	)

	// First render before serving; a failure keeps any restored artifact.
	if _, err := coord.TriggerRefresh(ctx); err != nil {
		log.Warn(ctx, "initial refresh failed", logger.Err(err))
	}

	sched := scheduler.New(cfg.RefreshInterval, log.Named("scheduler"))
	if err := sched.Start(); err != nil {
		log.Error(ctx, "failed to start scheduler", logger.Err(err))
		os.Exit(1)
	}
	defer sched.Stop()

	go func() {
		_ = coord.Run(ctx, sched)
	}()

	app := httpapi.NewApp(log.Named("http"))
	httpapi.RegisterRoutes(app, coord, metricsManager.Handler())

	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := app.Listen(cfg.Addr); err != nil {
			log.Error(ctx, "fiber server stopped", logger.Err(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error(ctx, "error during shutdown", logger.Err(err))
	}
	log.Info(ctx, "server stopped")
}
