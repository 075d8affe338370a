package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/tjfontaine/webapi-sample/internal/config"
	"github.com/tjfontaine/webapi-sample/internal/telemetry"
	"github.com/tjfontaine/webapi-sample/pkg/webapi"
)

// overrideFlag collects repeated --set key=value flags.
type overrideFlag []string

func (o *overrideFlag) String() string { return strings.Join(*o, ",") }

func (o *overrideFlag) Set(v string) error {
	*o = append(*o, v)
	return nil
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	configPath := flag.String("config", config.DefaultPath, "path to the YAML configuration file")
	var overrides overrideFlag
	flag.Var(&overrides, "set", "configuration override as key=value (repeatable)")
	flag.Parse()

	cfg, err := config.LoadFrom(*configPath, overrides)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		log.Fatalf("Invalid log.level %q: %v", cfg.Log.Level, err)
	}

	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if cfg.Pipeline.Tracing {
		shutdown, err := telemetry.InitTracer(cfg.App.Name, logger)
		if err != nil {
			log.Fatalf("Failed to initialize tracer: %v", err)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
			}
		}()
	}

	app, err := webapi.New(
		webapi.WithConfigFile(*configPath, overrides...),
		webapi.WithConfig(cfg),
		webapi.WithLogger(logger),
	)
	if err != nil {
		log.Fatalf("Failed to create app: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Start(ctx); err != nil {
		log.Fatalf("Failed to start app: %v", err)
	}

	// Wait for shutdown signal
	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := app.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
