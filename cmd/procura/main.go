package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/harunnryd/procura/pkg/app"
	"github.com/harunnryd/procura/pkg/logging"
)

func main() {
	configPath := flag.String("config", "cmd/procura/config.example.yaml", "path to the service config")
	flag.Parse()

	cfg, err := app.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}
	log := logging.InitLogger(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	svc, err := app.New(cfg, app.Options{Logger: log})
	if err != nil {
		log.Error("procura_init_failed", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := svc.Run(ctx); err != nil {
		slog.Error("procura_stopped_with_error", "error", err)
		os.Exit(1)
	}
}
