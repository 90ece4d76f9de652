package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/parley-chat/parley/internal/app"
	"github.com/parley-chat/parley/internal/audit"
	"github.com/parley-chat/parley/internal/platform/db"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	srv := asynq.NewServer(asynq.RedisClientOpt{Addr: cfg.RedisAddr}, asynq.Config{
		Concurrency: 5,
		Queues: map[string]int{
			audit.QueueDefault: 1,
		},
	})

	mux := asynq.NewServeMux()
	mux.Handle(audit.TaskTypeRecord, audit.Handler(audit.NewRepository(pool)))

	go func() {
		<-ctx.Done()
		logger.Info("shutting down worker")
		srv.Shutdown()
	}()

	logger.Info("worker started")
	if err := srv.Run(mux); err != nil {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
