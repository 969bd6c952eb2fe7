package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"budget/internal/amqp"
	"budget/internal/cache"
	"budget/internal/cli"
	"budget/internal/core"
	apphttp "budget/internal/http"
	"budget/internal/log"
	"budget/internal/metrics"
	"budget/internal/services"
	"budget/internal/settings"
)

const (
	shutdownTimeout      = 30 * time.Second
	cacheCleanupInterval = time.Minute
)

func main() {
	cli.LoadEnvFile()

	bootLogger := cli.SetupLogger(nil)
	cfg := cli.LoadAndValidateConfig(bootLogger)
	logger := cli.SetupLogger(cfg).WithComponent(log.ComponentApp)

	instanceID := uuid.NewString()
	logger.Info("Starting budget server", "port", cfg.Port, log.FieldInstance, instanceID)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)

	settingsSvc := settings.NewService(repo, settings.Options{
		CacheTTL:   cfg.SettingsCacheTTL,
		InstanceID: instanceID,
		Logger:     logger.WithComponent(log.ComponentSettings).Slog(),
	})
	stats := cache.NewLRUCache[core.PeriodStats](cfg.StatsCacheSize, cfg.StatsCacheTTL)
	budget := services.NewBudgetService(repo, settingsSvc, stats, logger)
	defer func() {
		if err := budget.Close(); err != nil {
			logger.Error("Failed to close budget service", log.FieldError, err)
		}
	}()

	caches := cache.NewManager(logger.WithComponent(log.ComponentCache).Slog())
	caches.Register("stats", stats)
	caches.Register("settings", settingsSvc)
	caches.StartCleanup(cacheCleanupInterval)
	defer caches.Stop()

	reg := metrics.New()
	reg.GaugeFunc("stats_cache", "entries", "Period stats results currently cached.", func() float64 {
		return float64(stats.Size())
	})

	checks := []apphttp.ReadinessCheck{{Name: "database", Check: repo.Ping}}

	var bus *amqp.Client
	if cfg.AMQPEnabled() {
		var err error
		bus, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, instanceID, logger.WithComponent(log.ComponentAMQP).Slog())
		if err != nil {
			logger.Error("Failed to initialize AMQP client", log.FieldError, err)
			os.Exit(1)
		}
		defer bus.Close()

		settingsSvc.SetNotifier(bus)
		budget.SetNotifier(bus)
		checks = append(checks, apphttp.ReadinessCheck{
			Name:  "amqp",
			Check: func(context.Context) error { return bus.Ping() },
		})
		logger.Info("AMQP cache invalidation enabled", "exchange", cfg.AMQPExchange)
	} else {
		logger.Info("AMQP disabled, caches are process-local")
	}

	srv := apphttp.NewServer(budget, settingsSvc, apphttp.Options{
		Addr:               ":" + cfg.Port,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Logger:             logger,
		Checks:             checks,
		Metrics:            reg,
	})

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	if bus != nil {
		g.Go(func() error {
			err := bus.Consume(gctx, amqp.Handlers{
				SettingChanged: func(ctx context.Context, msg *amqp.SettingChangedMessage) error {
					return settingsSvc.HandleSettingChanged(ctx, settings.Change{
						Key:    msg.Key,
						Value:  msg.Value,
						Origin: msg.Origin,
					})
				},
				StatsInvalidated: func(ctx context.Context, _ *amqp.StatsInvalidatedMessage) error {
					budget.PurgeStats(ctx)
					return nil
				},
				Reconnected: func(ctx context.Context) {
					settingsSvc.InvalidateCache()
					budget.PurgeStats(ctx)
					logger.InfoContext(ctx, "Caches dropped after AMQP reconnect")
				},
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("Server stopped with error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
