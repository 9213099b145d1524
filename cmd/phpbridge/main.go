package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/sadewadee/phpbridge/internal/bridge"
	"github.com/sadewadee/phpbridge/internal/config"
	"github.com/sadewadee/phpbridge/internal/phpengine"
	"github.com/sadewadee/phpbridge/internal/server"
)

var version = "0.1.0-dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve", "start":
		serve()
	case "version":
		fmt.Printf("phpbridge v%s\n", version)
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func serve() {
	cfgPath := "phpbridge.yaml"
	if len(os.Args) > 2 {
		cfgPath = os.Args[2]
	}

	logger := setupLogger("info", "json", os.Stdout)
	logger.Info("phpbridge starting", "version", version)

	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "path", cfgPath, "error", err)
		os.Exit(1)
	}

	out, closer := resolveLogOutput(cfg.Logging.Output)
	if closer != nil {
		defer closer.Close()
	}
	logger = setupLogger(cfg.Logging.Level, cfg.Logging.Format, out)
	phpengine.SetLogger(setupLogger(cfg.PHP.LogLevel, cfg.Logging.Format, out))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("phpbridge failed", "error", err)
		if closer != nil {
			closer.Close()
		}
		os.Exit(1)
	}
	logger.Info("phpbridge stopped")
}

// run starts the interpreter thread and the server and blocks until ctx
// is cancelled or either of them fails.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	phpVersion := phpengine.SelectVersion(cfg.PHP.Root, cfg.PHP.Version)
	engine, err := phpengine.NewEngine(phpVersion, logger.With("component", "engine"))
	if err != nil {
		return err
	}
	engine.SetExtensions(phpengine.NewExtensionManager(phpVersion, &phpengine.ExtensionConfig{
		Required: cfg.PHP.Extensions.Required,
		Optional: cfg.PHP.Extensions.Optional,
	}, logger))

	ch := bridge.NewChannel(phpengine.NewDispatcher(engine),
		bridge.WithLogger(logger.With("component", "bridge")),
		bridge.WithThreadGuard(phpengine.OnThread),
		bridge.WithDrainLimit(cfg.Bridge.DrainLimit),
	)
	engine.SetChannel(ch)
	bridge.SetGlobal(ch)
	defer bridge.SetGlobal(nil)

	// The thread outlives ctx so that it can finish calls the server
	// already accepted; it is stopped after the server.
	thread := phpengine.NewThread(engine, ch, cfg.Bridge.PumpInterval.Duration(), logger.With("component", "thread"))
	if err := thread.Start(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("starting interpreter: %w", err)
	}

	srv, err := server.New(cfg, ch, thread, logger)
	if err != nil {
		thread.Stop()
		return err
	}

	logger.Info("phpbridge ready",
		"address", cfg.Server.Address,
		"php_version", phpVersion,
		"pump_interval", cfg.Bridge.PumpInterval.Duration().String(),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		var err error
		select {
		case <-gctx.Done():
			logger.Info("shutdown signal received")
		case <-thread.Done():
			err = errors.New("interpreter thread exited")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
		defer cancel()
		if serr := srv.Stop(shutdownCtx); serr != nil {
			logger.Error("server shutdown error", "error", serr)
		}
		thread.Stop()
		return err
	})
	return g.Wait()
}

func setupLogger(level, format string, out io.Writer) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	return slog.New(handler)
}

// resolveLogOutput maps logging.output to a writer. Anything other than
// stdout or stderr is a file path opened for append; the closer is nil
// for the standard streams. An unopenable file falls back to stderr.
func resolveLogOutput(output string) (io.Writer, io.Closer) {
	switch output {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}

	f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot open log file %s: %v, logging to stderr\n", output, err)
		return os.Stderr, nil
	}
	return f, f
}

func printUsage() {
	fmt.Println(`phpbridge - call PHP from any goroutine

Usage:
  phpbridge <command> [options]

Commands:
  serve [config]   Start the server (default config: phpbridge.yaml, .toml also accepted)
  start [config]   Alias for serve
  version          Show version
  help             Show this help

Signals:
  SIGINT/SIGTERM   Graceful shutdown

Examples:
  phpbridge serve
  phpbridge serve /etc/phpbridge/phpbridge.toml
  phpbridge version`)
}
