package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/parley-chat/parley/internal/app"
	"github.com/parley-chat/parley/internal/audit"
	"github.com/parley-chat/parley/internal/auth"
	"github.com/parley-chat/parley/internal/chat"
	"github.com/parley-chat/parley/internal/platform/broker"
	"github.com/parley-chat/parley/internal/platform/cache"
	"github.com/parley-chat/parley/internal/platform/db"
	"github.com/parley-chat/parley/internal/ws"
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

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Warn("asynq close", slog.Any("error", err))
		}
	}()

	codec := auth.NewCodec(cfg.JWTSecret, cfg.JWTTTL)
	extractor := auth.NewExtractor(codec)
	authService := auth.NewService(auth.NewRepository(pool), codec)
	authHandler := auth.NewHandler(logger, authService)

	recorder := audit.NewRecorder(asynqClient, logger)
	messageBroker := broker.NewRedisBroker(redisClient)

	roomService := chat.NewRoomService(chat.NewRoomRepository(pool), recorder, logger)
	messageService := chat.NewMessageService(roomService, chat.NewMessageRepository(pool), messageBroker, logger)
	chatHandler := chat.NewHandler(logger, roomService, messageService)

	wsHandler := ws.NewHandler(logger, extractor, roomService, messageService, messageBroker)

	router := app.NewRouter(app.RouterParams{
		Logger:      logger,
		Config:      cfg,
		Extractor:   extractor,
		AuthHandler: authHandler,
		ChatHandler: chatHandler,
		WSHandler:   wsHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server listening", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("shutting down")
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
