package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/codebreaker-backend/internal/archive"
	"github.com/DoyleJ11/codebreaker-backend/internal/config"
	"github.com/DoyleJ11/codebreaker-backend/internal/controller"
	"github.com/DoyleJ11/codebreaker-backend/internal/httpapi"
	"github.com/DoyleJ11/codebreaker-backend/internal/hub"
	"github.com/DoyleJ11/codebreaker-backend/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	recorder, closeRecorder, err := openRecorder(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeRecorder(); err != nil {
			logger.Warn("close archive", zap.Error(err))
		}
	}()

	h := hub.NewHub(ctx, hub.Options{Logger: logger, Recorder: recorder})
	defer h.Shutdown()

	// Build the router *with* the hub injected
	handler := httpapi.SetupRoutes(httpapi.Deps{
		Hub:        h,
		Controller: controller.New(h, logger),
		Logger:     logger,
		WS: ws.Options{
			Logger:         logger,
			WriteTimeout:   cfg.WriteTimeout,
			OutboxSize:     cfg.OutboxSize,
			OriginPatterns: cfg.OriginPatterns,
		},
	})
	srv := &http.Server{Addr: cfg.Addr, Handler: handler}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	zc := zap.NewProductionConfig()
	if cfg.Dev() {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

func openRecorder(cfg *config.Config, logger *zap.Logger) (archive.Recorder, func() error, error) {
	if cfg.DatabaseURL == "" {
		logger.Info("DATABASE_URL not set, game results are not archived")
		return archive.Nop{}, func() error { return nil }, nil
	}
	rec, err := archive.Open(cfg.DatabaseURL, logger)
	if err != nil {
		return nil, nil, err
	}
	return rec, rec.Close, nil
}
