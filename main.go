package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/ekaya-inc/nodepool/pkg/adapters/datasource"
	_ "github.com/ekaya-inc/nodepool/pkg/adapters/datasource/postgres"
	_ "github.com/ekaya-inc/nodepool/pkg/adapters/datasource/sqldb"
	"github.com/ekaya-inc/nodepool/pkg/config"
	"github.com/ekaya-inc/nodepool/pkg/logging"
	"github.com/ekaya-inc/nodepool/pkg/retry"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	os.Exit(execute(os.Args[1:]))
}

// execute runs the CLI and returns the process exit code. Deferred cleanup,
// including the logger flush, completes before the caller exits.
func execute(args []string) int {
	fs := flag.NewFlagSet("nodepool", flag.ContinueOnError)
	configPath := fs.String("config", "config.yaml", "path to YAML config file")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	// Load configuration
	cfg, err := config.Load(*configPath, Version)
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		return 1
	}

	logger, err := logging.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Printf("Failed to create logger: %v", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("node check failed", zap.String("error", logging.SanitizeError(err)))
		return 1
	}
	return 0
}

// run opens the data source, probes the node role and prints a summary.
func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("starting nodepool",
		zap.String("version", cfg.Version),
		zap.String("env", cfg.Env),
		zap.String("poolKind", cfg.Node.PoolKind),
	)

	ds, err := datasource.Open(ctx, cfg.Node.PoolKind, optionsFromConfig(cfg), logger)
	if err != nil {
		return fmt.Errorf("open data source: %w", err)
	}
	defer func() {
		if err := ds.Close(); err != nil {
			logger.Warn("failed to close data source", zap.Error(err))
		}
	}()

	if err := ds.SetLoginTimeout(cfg.Node.LoginTimeout); err != nil {
		return err
	}

	var role datasource.Role
	err = retry.DoIfRetryable(ctx, retry.ForDuration(cfg.Node.StartupWait), func() error {
		var probeErr error
		role, probeErr = ds.Role(ctx)
		if probeErr != nil {
			logger.Debug("role probe failed", zap.String("error", logging.SanitizeError(probeErr)))
		}
		return probeErr
	})
	if err != nil {
		return fmt.Errorf("probe %s: %w", ds.NodeID(), err)
	}

	fmt.Println(ds.String())
	fmt.Printf("Role: %s\n", role)
	return nil
}

func optionsFromConfig(cfg *config.Config) datasource.Options {
	return datasource.Options{
		Host:     cfg.Node.Host,
		Port:     cfg.Node.Port,
		BaseName: cfg.Database.BaseName,
		Credentials: datasource.Credentials{
			Username: cfg.Database.Username,
			Password: cfg.Database.Password,
		},
		Pool: datasource.PoolConfig{
			Size:   cfg.Node.PoolSize,
			Driver: cfg.Node.Driver,
		},
		SSLMode: cfg.Node.SSLMode,
	}
}
