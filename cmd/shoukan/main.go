package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/bdobrica/Shoukan/common/version"
	"github.com/bdobrica/Shoukan/internal/shoukan/app"
	"github.com/bdobrica/Shoukan/internal/shoukan/config"
	"github.com/bdobrica/Shoukan/internal/shoukan/observability"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (default $"+config.PathEnv+")")
	consoleMode := flag.Bool("console", false, "chat on stdin/stdout instead of Matrix")
	showVersion := flag.Bool("version", false, "print the version and exit")
	flag.Parse()

	fmt.Fprintf(os.Stderr, "Shoukan provisioning assistant\n%s\n\n", version.Info())
	if *showVersion {
		return
	}

	if *consoleMode {
		os.Setenv("CONSOLE", "true")
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	closer, err := observability.Setup(cfg.Log.Level, cfg.Log.Format, cfg.Log.File)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()

	slog.Info("starting", version.Fields()...)
	slog.Info("configuration", cfg.LogValues()...)

	if err := run(cfg); err != nil {
		slog.Error("Shoukan stopped with an error", "err", err)
		closer.Close()
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	shoukan, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize Shoukan: %w", err)
	}
	defer shoukan.Stop()
	return shoukan.Run()
}
