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

	"MediDiag/internal/chatbot"
	"MediDiag/internal/config"
	"MediDiag/internal/telemetry"
	"MediDiag/internal/transport"
	"MediDiag/internal/web"

	"github.com/gin-gonic/gin"
)

const service = "medidiag-web"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	flag.StringVar(&cfg.WebAddr, "addr", cfg.WebAddr, "Listen address")
	flag.StringVar(&cfg.Endpoint, "endpoint", cfg.Endpoint, "Generation endpoint URL")
	flag.BoolVar(&cfg.Debug, "debug", cfg.Debug, "Enable debug logging")
	flag.StringVar(&cfg.LogDir, "log-dir", cfg.LogDir, "Directory for log files")
	flag.Parse()

	logger, logFile, err := telemetry.InitLogger(cfg.LogDir, service, cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logFile.Close()

	ctx := context.Background()

	tel := telemetry.Noop(service)
	if cfg.Telemetry {
		tel, err = telemetry.Init(ctx, cfg.LogDir, service)
		if err != nil {
			logger.Error("failed to initialize telemetry", "error", err)
			os.Exit(1)
		}
	}

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	client := transport.NewClient(transport.Config{
		Endpoint: cfg.Endpoint,
		Logger:   logger,
		Tracer:   tel.Tracer,
		Meter:    tel.Meter,
	})

	srv := web.NewServer(web.Config{
		Sender: client,
		Session: chatbot.Options{
			Greeting:    cfg.Greeting,
			ErrorNotice: cfg.ErrorNotice,
			Logger:      logger,
			Tracer:      tel.Tracer,
			Meter:       tel.Meter,
		},
		Logger: logger,
	})

	// No write timeout: websocket connections outlive any single request
	server := &http.Server{
		Addr:              cfg.WebAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.InfoContext(ctx, "web server starting", "addr", cfg.WebAddr, "endpoint", client.Endpoint())
		fmt.Printf("MediDiag AI listening on %s\n", cfg.WebAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.ErrorContext(ctx, "web server error", "error", err)
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
		slog.ErrorContext(shutdownCtx, "web server shutdown error", "error", err)
	}
	tel.Shutdown()

	slog.InfoContext(shutdownCtx, "shutdown complete")
}
