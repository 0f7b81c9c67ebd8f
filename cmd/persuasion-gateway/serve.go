package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stoik/persuasion-gateway/internal/adapters/relay"
	"github.com/stoik/persuasion-gateway/internal/adapters/smtpd"
	"github.com/stoik/persuasion-gateway/internal/adapters/storage"
	"github.com/stoik/persuasion-gateway/internal/application"
	"github.com/stoik/persuasion-gateway/internal/catalogue"
	"github.com/stoik/persuasion-gateway/internal/config"
	"github.com/stoik/persuasion-gateway/internal/domain/detection"
	"github.com/stoik/persuasion-gateway/internal/domain/signals"
	"github.com/stoik/persuasion-gateway/internal/logging"
	"github.com/stoik/persuasion-gateway/internal/observability"
	"github.com/stoik/persuasion-gateway/internal/ports"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Accept mail over SMTP, annotate it and relay it downstream",
		Long: `Start the SMTP listener. Each accepted message is archived (when an evidence
store is configured), scored, annotated and relayed to relay.addr.

The command exits non-zero when the configuration or the rule catalogue is
invalid. It stops cleanly on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts)
		},
	}
}

func runServe(ctx context.Context, opts *options) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	if cfg.Source() != "" {
		logger.Infow("Configuration loaded", "file", cfg.Source())
	}
	if cfg.Relay.Addr == "" {
		return fmt.Errorf("%w: relay.addr: required to serve", config.ErrInvalidConfig)
	}

	detector, err := buildDetector(cfg, "")
	if err != nil {
		return err
	}
	logger.Infow("Rule catalogue loaded",
		"rules", detector.Catalogue().Len(),
		"source", catalogueSource(cfg.Catalogue.Path),
	)

	evidence, err := openEvidence(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if evidence != nil {
		defer evidence.Close()
	}

	metrics, err := observability.New(ctx, cfg.Observability(Version), logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = metrics.Shutdown(shutdownCtx)
	}()

	policy, err := cfg.Policy()
	if err != nil {
		return err
	}

	service := application.NewGatewayService(
		detector,
		evidence,
		relay.NewSMTPRelay(cfg.Relay.Addr, cfg.Relay.Helo, cfg.Relay.Timeout),
		signals.DefaultStrategies(),
		metrics,
		logger,
		policy,
	)

	srv := smtpd.NewServer(cfg.Listener(), service, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Infow("Shutting down")
	if err := srv.Close(); err != nil {
		logger.Warnw("Failed to close SMTP listener", "error", err)
	}
	return <-errCh
}

// buildDetector loads the catalogue from override, else from the configured
// path, else the embedded default
func buildDetector(cfg *config.Config, override string) (*detection.Detector, error) {
	path := cfg.Catalogue.Path
	if override != "" {
		path = override
	}
	cat, err := catalogue.Load(path)
	if err != nil {
		return nil, err
	}
	return detection.NewDetector(cat, cfg.Thresholds)
}

func catalogueSource(path string) string {
	if path == "" {
		return catalogue.DefaultSource
	}
	return path
}

// openEvidence returns nil when archiving is disabled
func openEvidence(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) (ports.EvidenceStore, error) {
	switch cfg.Evidence.Driver {
	case config.EvidenceFile:
		store, err := storage.NewFileStore(cfg.Evidence.Dir)
		if err != nil {
			return nil, err
		}
		logger.Infow("Archiving evidence to directory", "dir", cfg.Evidence.Dir)
		return store, nil

	case config.EvidencePostgres:
		store, err := storage.NewPostgresStore(cfg.Evidence.DSN)
		if err != nil {
			return nil, err
		}
		if err := store.InitSchema(ctx); err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to initialize evidence schema: %w", err)
		}
		logger.Infow("Archiving evidence to PostgreSQL")
		return store, nil

	case config.EvidenceNone:
		return nil, nil
	}
	return nil, errors.New("unknown evidence driver " + cfg.Evidence.Driver)
}
