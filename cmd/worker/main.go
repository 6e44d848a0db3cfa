package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/me/gridshift/internal/config"
	"github.com/me/gridshift/internal/logging"
	"github.com/me/gridshift/internal/queue"
	"github.com/me/gridshift/internal/store"
	"github.com/me/gridshift/internal/worker"
	"github.com/me/gridshift/pkg/model"
)

func main() {
	cfg := config.DefaultWorkerConfig()

	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	flag.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format (text, json)")
	flag.StringVar(&cfg.RedisAddr, "redis", cfg.RedisAddr, "Redis address (or REDIS_ADDR env)")
	flag.StringVar(&cfg.Mode, "mode", cfg.Mode, "Execution lane: fast or eco (or MODE env)")
	flag.DurationVar(&cfg.Poll, "poll", cfg.Poll, "Queue polling interval")
	debug := flag.Bool("debug", false, "Shorthand for --log-level=debug")
	flag.Parse()

	if *debug {
		cfg.LogLevel = "debug"
	}

	logger := logging.NewLogger(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)

	mode := model.Mode(strings.ToUpper(cfg.Mode))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := store.DialRedis(ctx, cfg.RedisAddr, store.DefaultBackoff(), logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect redis: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	st := store.NewRedisStore(client, logger)
	q := queue.NewRedisQueues(client, logger)

	wcfg := worker.DefaultConfig(mode)
	wcfg.Poll = cfg.Poll

	w, err := worker.New(st, q, wcfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create worker: %v\n", err)
		os.Exit(1)
	}

	logger.Info("worker starting", "mode", mode, "poll", cfg.Poll)
	w.Run(ctx)
	logger.Info("worker stopped")
}
