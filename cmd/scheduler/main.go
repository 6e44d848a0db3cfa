package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/me/gridshift/internal/carbon"
	"github.com/me/gridshift/internal/config"
	"github.com/me/gridshift/internal/logging"
	"github.com/me/gridshift/internal/policy"
	"github.com/me/gridshift/internal/queue"
	"github.com/me/gridshift/internal/scheduler"
	"github.com/me/gridshift/internal/store"
)

func main() {
	cfg := config.DefaultSchedulerConfig()

	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	flag.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format (text, json)")
	flag.StringVar(&cfg.RedisAddr, "redis", cfg.RedisAddr, "Redis address (or REDIS_ADDR env)")
	flag.StringVar(&cfg.PolicyPath, "policy", cfg.PolicyPath, "Policy YAML file (default: built-in three-rule policy)")
	flag.DurationVar(&cfg.TickInterval, "tick", cfg.TickInterval, "Tick interval (or TICK_INTERVAL env)")
	flag.IntVar(&cfg.CarbonFixed, "carbon-fixed", cfg.CarbonFixed, "Pin the carbon reading to a fixed value (or CARBON_FIXED env)")
	debug := flag.Bool("debug", false, "Shorthand for --log-level=debug")
	flag.Parse()

	if *debug {
		cfg.LogLevel = "debug"
	}

	logger := logging.NewLogger(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var rules *policy.RuleSet
	if cfg.PolicyPath != "" {
		var err error
		rules, err = policy.Load(cfg.PolicyPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load policy: %v\n", err)
			os.Exit(1)
		}
		logger.Info("policy loaded", "path", cfg.PolicyPath)
	} else {
		rules = policy.Default(cfg.LowThreshold, cfg.HighThreshold, cfg.MaxDeferralSeconds)
		logger.Info("using built-in policy", "low", cfg.LowThreshold, "high", cfg.HighThreshold)
	}

	src := carbon.FromConfig(carbon.Config{
		Fixed: cfg.CarbonFixed,
		URL:   cfg.CarbonURL,
		Token: cfg.CarbonToken,
	}, logger)

	client, err := store.DialRedis(ctx, cfg.RedisAddr, store.DefaultBackoff(), logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect redis: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	st := store.NewRedisStore(client, logger)
	q := queue.NewRedisQueues(client, logger)

	sched := scheduler.NewLoop(st, q, rules, src, scheduler.Config{
		TickInterval: cfg.TickInterval,
		RetryBackoff: cfg.RetryBackoff,
	}, logger)

	go func() {
		<-ctx.Done()
		if err := sched.Stop(); err != nil {
			logger.Error("scheduler stop error", "error", err)
		}
	}()

	logger.Info("scheduler starting", "tick", cfg.TickInterval)
	if err := sched.Start(ctx); err != nil && err != context.Canceled {
		fmt.Fprintf(os.Stderr, "scheduler: %v\n", err)
		os.Exit(1)
	}
	logger.Info("scheduler stopped")
}
