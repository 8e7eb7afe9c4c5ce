package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"MediDiag/internal/chatbot"
	"MediDiag/internal/config"
	"MediDiag/internal/telemetry"
	"MediDiag/internal/terminal"
	"MediDiag/internal/transport"
)

const service = "medidiag"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	flag.StringVar(&cfg.Endpoint, "endpoint", cfg.Endpoint, "Generation endpoint URL")
	flag.StringVar(&cfg.Greeting, "greeting", cfg.Greeting, "Initial assistant message (empty for none)")
	flag.BoolVar(&cfg.Debug, "debug", cfg.Debug, "Enable debug logging")
	flag.BoolVar(&cfg.Telemetry, "telemetry", cfg.Telemetry, "Export traces and metrics to the log directory")
	flag.StringVar(&cfg.LogDir, "log-dir", cfg.LogDir, "Directory for log files")
	flag.Parse()

	logger, logFile, err := telemetry.InitLogger(cfg.LogDir, service, cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logFile.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	tel := telemetry.Noop(service)
	if cfg.Telemetry {
		tel, err = telemetry.Init(ctx, cfg.LogDir, service)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to initialize telemetry: %v\n", err)
			os.Exit(1)
		}
	}
	defer tel.Shutdown()

	client := transport.NewClient(transport.Config{
		Endpoint: cfg.Endpoint,
		Logger:   logger,
		Tracer:   tel.Tracer,
		Meter:    tel.Meter,
	})

	ctrl := chatbot.New(client, chatbot.Options{
		Greeting:    cfg.Greeting,
		ErrorNotice: cfg.ErrorNotice,
		Logger:      logger,
		Tracer:      tel.Tracer,
		Meter:       tel.Meter,
	})

	logger.Info("starting terminal client", "endpoint", client.Endpoint())
	if err := terminal.New(ctrl, os.Stdin, os.Stdout, "MediDiag AI").Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
