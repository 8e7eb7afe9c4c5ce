package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"MediDiag/internal/backend"
	"MediDiag/internal/config"
	"MediDiag/internal/gateway"
	"MediDiag/internal/store"
	"MediDiag/internal/telemetry"

	"github.com/gin-gonic/gin"
)

const service = "medidiag-api"

func main() {
	cfg, err := config.LoadGateway()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "Listen address")
	flag.BoolVar(&cfg.Debug, "debug", cfg.Debug, "Enable debug logging")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite exchange log path (empty to disable)")
	flag.Parse()

	logger, logFile, err := telemetry.InitLogger(cfg.LogDir, service, cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logFile.Close()

	ctx := context.Background()

	opts := gateway.Options{Logger: logger}
	tel := telemetry.Noop(service)
	if cfg.Telemetry {
		tel, err = telemetry.Init(ctx, cfg.LogDir, service)
		if err != nil {
			logger.Error("failed to initialize telemetry", "error", err)
			os.Exit(1)
		}
		opts.ServiceName = service
	}

	gen, err := backend.New(cfg)
	if err != nil {
		logger.Error("failed to create backend", "error", err)
		os.Exit(1)
	}

	var rec gateway.Recorder
	if cfg.DBPath != "" {
		st, err := store.Open(cfg.DBPath)
		if err != nil {
			logger.Error("failed to open exchange log", "path", cfg.DBPath, "error", err)
			os.Exit(1)
		}
		defer st.Close()
		rec = st
	}

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           gateway.NewRouter(gen, rec, opts),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.InfoContext(ctx, "http server starting", "addr", cfg.Addr, "backend", gen.Name())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.ErrorContext(ctx, "http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "http server shutdown error", "error", err)
	}
	tel.Shutdown()

	slog.InfoContext(shutdownCtx, "shutdown complete")
}
