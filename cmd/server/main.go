// Command taskpulse starts the TaskPulse HTTP API and the optional gRPC ops listener.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/and161185/taskpulse/internal/app"
	"github.com/and161185/taskpulse/internal/config"
	"github.com/and161185/taskpulse/internal/migrate"
	grpcserver "github.com/and161185/taskpulse/internal/server/grpc"
	httpserver "github.com/and161185/taskpulse/internal/server/http"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	cfgPath := flag.String("config", os.Getenv("TASKPULSE_CONFIG"), "path to YAML config (env TASKPULSE_* overrides it)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := app.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	_ = logger.Sync()
}

// run migrates, wires services, and serves until SIGINT/SIGTERM or a listener failure.
func run(cfg *config.Config, logger *zap.Logger) error {
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.Server.Addr),
		zap.String("ops_addr", cfg.Server.OpsAddr),
	)

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := migrate.Up(ctx, cfg.Database.DSN); err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("wire services: %w", err)
	}
	defer a.Close()

	api, err := httpserver.New(httpserver.Services{
		Sessions:    a.Sessions,
		Credentials: a.Credentials,
		Descriptors: a.Descriptors,
		Sync:        a.Sync,
		KPIs:        a.KPIs,
	}, a.Registry, logger.Named("http"))
	if err != nil {
		return err
	}

	errCh := make(chan error, 2)
	go func() { errCh <- api.Start(cfg.Server.Addr) }()

	var ops *grpcserver.Ops
	if cfg.Server.OpsAddr != "" {
		lis, err := net.Listen("tcp", cfg.Server.OpsAddr)
		if err != nil {
			_ = api.Shutdown(context.Background())
			return fmt.Errorf("listen ops: %w", err)
		}
		ops = grpcserver.NewOps(logger.Named("ops"))
		go func() { errCh <- ops.Serve(lis) }()
	}

	// Wait for stop
	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if ops != nil {
		ops.Shutdown(shutdownCtx)
	}
	if err := api.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return runErr
}
