package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/me/gridshift/internal/carbon"
	"github.com/me/gridshift/internal/config"
	"github.com/me/gridshift/internal/logging"
	"github.com/me/gridshift/internal/policy"
	"github.com/me/gridshift/internal/queue"
	"github.com/me/gridshift/internal/scheduler"
	"github.com/me/gridshift/internal/server"
	"github.com/me/gridshift/internal/store"
	"github.com/me/gridshift/internal/worker"
	"github.com/me/gridshift/pkg/model"
)

func main() {
	cfg := config.DefaultServerConfig()

	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "Listen address")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	flag.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format (text, json)")
	flag.StringVar(&cfg.RedisAddr, "redis", cfg.RedisAddr, "Redis address (or REDIS_ADDR env)")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path (standalone mode, default gridshift.db)")
	flag.BoolVar(&cfg.Standalone, "standalone", false, "Run scheduler and workers in-process on SQLite and in-memory queues")
	debug := flag.Bool("debug", false, "Shorthand for --log-level=debug")
	flag.Parse()

	if *debug {
		cfg.LogLevel = "debug"
	}

	logger := logging.NewLogger(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		st    store.Store
		q     queue.Queues
		sched scheduler.Scheduler
	)

	if cfg.Standalone {
		dbPath := cfg.DBPath
		if dbPath == "" {
			dbPath = "gridshift.db"
		}
		sqliteStore, err := store.NewSQLiteStore(dbPath, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open database: %v\n", err)
			os.Exit(1)
		}
		defer sqliteStore.Close()

		if err := sqliteStore.Migrate(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "migrate database: %v\n", err)
			os.Exit(1)
		}
		logger.Info("database ready", "path", dbPath)

		st = sqliteStore
		q = queue.NewMemoryQueues()

		schedCfg := config.DefaultSchedulerConfig()
		rules := policy.Default(schedCfg.LowThreshold, schedCfg.HighThreshold, schedCfg.MaxDeferralSeconds)
		src := carbon.FromConfig(carbon.Config{
			Fixed: schedCfg.CarbonFixed,
			URL:   schedCfg.CarbonURL,
			Token: schedCfg.CarbonToken,
		}, logger)

		sched = scheduler.NewLoop(st, q, rules, src, scheduler.Config{
			TickInterval: schedCfg.TickInterval,
			RetryBackoff: schedCfg.RetryBackoff,
		}, logger)

		// One worker per execution lane.
		for _, mode := range []model.Mode{model.ModeFast, model.ModeEco} {
			w, err := worker.New(st, q, worker.DefaultConfig(mode), logger)
			if err != nil {
				fmt.Fprintf(os.Stderr, "create worker: %v\n", err)
				os.Exit(1)
			}
			go w.Run(ctx)
		}
		logger.Info("standalone mode", "workers", "fast,eco")
	} else {
		client, err := store.DialRedis(ctx, cfg.RedisAddr, store.DefaultBackoff(), logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "connect redis: %v\n", err)
			os.Exit(1)
		}
		defer client.Close()

		st = store.NewRedisStore(client, logger)
		q = queue.NewRedisQueues(client, logger)
	}

	srv := server.New(cfg, st, q, sched, logger)

	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: srv.Handler(),
	}

	// Start scheduler in background (standalone mode only).
	srv.StartScheduler(ctx)

	go func() {
		logger.Info("server starting", "addr", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	if sched != nil {
		if err := sched.Stop(); err != nil {
			logger.Error("scheduler stop error", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown error: %v\n", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
