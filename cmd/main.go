package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/AsHfIEXE/SigVoid/internal/alerts"
	"github.com/AsHfIEXE/SigVoid/internal/analytics"
	"github.com/AsHfIEXE/SigVoid/internal/cache"
	"github.com/AsHfIEXE/SigVoid/internal/config"
	"github.com/AsHfIEXE/SigVoid/internal/dashboard"
	"github.com/AsHfIEXE/SigVoid/internal/hub"
	"github.com/AsHfIEXE/SigVoid/internal/observability"
	"github.com/AsHfIEXE/SigVoid/internal/serial"
	"github.com/AsHfIEXE/SigVoid/internal/server"
)

func newLogger(development bool) (*zap.Logger, error) {
	if development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := newLogger(cfg.Log.Development)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync()

	redisClient, err := cache.NewRedisClient(cfg.RedisOptions())
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	defer redisClient.Close()

	colors, err := cfg.PaletteColors()
	if err != nil {
		return err
	}
	theme, err := dashboard.ParseTheme(cfg.Dashboard.Theme)
	if err != nil {
		return err
	}

	alertFile, err := os.OpenFile(cfg.Alerts.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open alert log: %w", err)
	}
	defer alertFile.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(reg)

	reducer := analytics.NewReducer(cfg.ReducerConfig(), colors, logger.Named("reducer"))
	reducer.OnStepPanic(func(step string) {
		metrics.ReductionSteps.WithLabelValues(step).Inc()
	})

	controller := dashboard.NewController(dashboard.NewThemeState(theme))
	push := hub.New(logger.Named("hub"), cfg.Server.AllowedOrigins)
	push.OnClientCount(func(n int) { metrics.Clients.Set(float64(n)) })
	controller.AddSink(push)
	defer push.Close()

	deps := server.Deps{
		Store:      redisClient,
		Tracker:    analytics.NewTracker(cfg.TrackerConfig(), redisClient),
		Reducer:    reducer,
		Controller: controller,
		Alerter:    alerts.New(alertFile, cfg.Alerts.Cooldown, logger.Named("alerts")),
		Push:       push,
		Metrics:    metrics,
		Gatherer:   reg,
		Logger:     logger.Named("server"),
	}

	var link *serial.Link
	if cfg.SerialEnabled() {
		link = serial.NewLink(cfg.SerialConfig(), serial.OpenPort, logger.Named("serial"))
		link.OnBadLine(metrics.BadLines.Inc)
		deps.Commander = link
	}

	srv, err := server.NewServer(server.Options{
		ExportDir:   cfg.Export.Dir,
		MaxAge:      cfg.Cleanup.MaxAge,
		BanMaxAge:   cfg.Cleanup.BanMaxAge,
		EventBuffer: cfg.Tracker.EventBuffer,
	}, deps)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if link != nil {
		go func() {
			if err := link.Run(ctx, srv.Events()); err != nil && ctx.Err() == nil {
				logger.Error("serial link stopped", zap.Error(err))
			}
		}()
	}

	return srv.Run(ctx, cfg.Server.Addr)
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
