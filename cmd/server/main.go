package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/sprintpoker/backend/internal/config"
	"github.com/sprintpoker/backend/internal/httpapi"
	"github.com/sprintpoker/backend/internal/registry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("load config", zap.Error(err))
	}

	log, err := buildLogger(cfg.LogLevel)
	if err != nil {
		zap.NewExample().Fatal("build logger", zap.Error(err))
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := registry.New(ctx, registry.Options{
		Retention:     cfg.RoomRetention,
		SweepInterval: cfg.SweepInterval,
		Logger:        log,
	})

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: httpapi.SetupRoutes(reg, log, httpapi.Options{AllowedOrigins: cfg.AllowedOrigins}),
	}

	// signal.Notify requires a buffered channel
	ctrlc := make(chan os.Signal, 1)
	signal.Notify(ctrlc, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ctrlc
		log.Info("shutting down")
		cancel()
		server.Close()
	}()

	log.Info("listening", zap.String("addr", cfg.ListenAddr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("server closed", zap.Error(err))
	}
}

func buildLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = lvl
	return zcfg.Build()
}
