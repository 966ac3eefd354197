package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opensource-finance/kestrel/internal/api"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/pipeline"
	"github.com/opensource-finance/kestrel/internal/worker"
	"github.com/spf13/cobra"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the scoring API",
	Long: `Serve starts the HTTP API, loads (or trains) the model and opens the
readiness gate. /predict answers 503 until the model is ready.

Example:
  KESTREL_AUDIT_SECRET=change-me kestrel serve
  KESTREL_TIER=pro kestrel serve --config kestrel.yaml`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := LoadConfig(cfgFile)
	if err != nil {
		return err
	}
	setupLogging(cfg.Logging, os.Stdout)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	shutdownTracing, err := setupTracing(cfg.Tracing, os.Stderr)
	if err != nil {
		return err
	}
	defer shutdownTracing(context.Background())

	slog.Info("starting kestrel",
		"version", build.Version,
		"commit", build.Commit,
		"build_date", build.BuildDate,
		"tier", cfg.Tier,
		"variant", cfg.Pipeline.Variant,
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cleanup closers
	defer cleanup.closeAll()

	ledger, err := openLedger(cfg, &cleanup)
	if err != nil {
		return err
	}

	eventBus, err := bus.New(cfg.EventBus)
	if err != nil {
		return fmt.Errorf("failed to initialize event bus: %w", err)
	}
	cleanup.add(eventBus.Close)
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	emitter, err := buildEmitter(ctx, cfg.Events, eventBus, &cleanup)
	if err != nil {
		return err
	}

	recorder, err := newRecorder(cfg.Audit, ledger, emitter)
	if err != nil {
		return err
	}

	engine, err := newEngine(cfg.Rules)
	if err != nil {
		return err
	}

	holder := &pipeline.Holder{}
	var asyncWorker *worker.Worker
	if cfg.Worker.Enabled {
		asyncWorker = worker.NewWorker(eventBus, holder, recorder)
	}
	srv := api.NewServer(cfg.Server, api.Dependencies{
		Holder:   holder,
		Recorder: recorder,
		Ledger:   ledger,
		Bus:      eventBus,
		Worker:   asyncWorker,
		Engine:   engine,
	}, build.Version)

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()
	slog.Info("api listening", "host", cfg.Server.Host, "port", cfg.Server.Port)

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server forced to shutdown", "error", err)
		}
	}()

	// Readiness stays closed until the model is loaded or trained
	model, err := loadModel(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to load model: %w", err)
	}
	scorer, err := newScorer(cfg, model, engine)
	if err != nil {
		return err
	}
	holder.Store(scorer)
	slog.Info("kestrel is ready",
		"variant", model.Meta.Variant,
		"features", model.Preprocessor.Width(),
	)

	if asyncWorker != nil {
		if err := asyncWorker.Start(); err != nil {
			return fmt.Errorf("failed to start async worker: %w", err)
		}
		defer asyncWorker.Stop()
	}

	printBanner(cmd, cfg)

	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
		return nil
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	}
}

func printBanner(cmd *cobra.Command, cfg *domain.Config) {
	out := cmd.ErrOrStderr()
	fmt.Fprintln(out)
	fmt.Fprintln(out, "  KESTREL - claim fraud risk scoring")
	fmt.Fprintln(out)
	fmt.Fprintf(out, "  Version:  %s\n", build.Version)
	fmt.Fprintf(out, "  Tier:     %s\n", cfg.Tier)
	fmt.Fprintf(out, "  Variant:  %s\n", cfg.Pipeline.Variant)
	fmt.Fprintf(out, "  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "  Endpoints:")
	fmt.Fprintln(out, "    POST /predict             - Score a claim")
	fmt.Fprintln(out, "    POST /claims              - Queue a claim for async scoring")
	fmt.Fprintln(out, "    GET  /audits              - List audit records")
	fmt.Fprintln(out, "    GET  /audits/{id}         - Get an audit record")
	fmt.Fprintln(out, "    GET  /audits/{id}/verify  - Verify an integrity tag")
	fmt.Fprintln(out, "    GET  /model               - Describe the loaded model")
	fmt.Fprintln(out, "    GET  /rules               - List reason rules")
	fmt.Fprintln(out, "    GET  /health, /ready      - Probes")
	fmt.Fprintln(out)
}
