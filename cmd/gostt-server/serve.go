package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/chaz8081/gostt-server/internal/config"
	"github.com/chaz8081/gostt-server/internal/server"
	"github.com/chaz8081/gostt-server/internal/service"
	"github.com/chaz8081/gostt-server/internal/store"
	"github.com/chaz8081/gostt-server/internal/transcribe"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP transcription service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, ctx)
		},
	}
}

func runServe(cmd *cobra.Command, cc *commandContext) error {
	cfg, err := cc.ensureConfig()
	if err != nil {
		return err
	}
	log := cc.log()

	printBanner(cmd.OutOrStdout(), cfg, cc.source)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, cleanup, err := buildService(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	srv := server.New(cfg, svc, log)
	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	log.Info("goodbye")
	return nil
}

// buildService loads the model and opens the history store. cleanup
// releases both.
func buildService(ctx context.Context, cfg *config.Config, log *zap.Logger) (*service.Service, func(), error) {
	log.Info("loading speech model", zap.String("backend", cfg.Transcribe.Backend))
	start := time.Now()
	tr, err := transcribe.New(cfg, log)
	if err != nil {
		return nil, nil, fmt.Errorf("%w\n\nCheck that the model file exists at: %s\nRun 'gostt-server models download' to fetch it.",
			err, cfg.Transcribe.ModelPath)
	}
	log.Info("model loaded", zap.String("model", tr.Name()), zap.Duration("took", time.Since(start).Round(time.Millisecond)))
	tr = transcribe.Limit(tr, cfg.Transcribe.MaxConcurrent)

	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		_ = tr.Close()
		return nil, nil, err
	}

	cleanup := func() {
		if err := st.Close(); err != nil {
			log.Warn("closing store", zap.Error(err))
		}
		if err := tr.Close(); err != nil {
			log.Warn("closing transcriber", zap.Error(err))
		}
	}
	return service.New(cfg, tr, st, log), cleanup, nil
}

// printBanner displays the startup configuration summary.
func printBanner(w io.Writer, cfg *config.Config, source string) {
	model := cfg.Transcribe.ModelPath
	if cfg.Transcribe.Backend == "openai" {
		model = cfg.OpenAI.Model
	}
	fmt.Fprintln(w, "=== gostt-server ===")
	fmt.Fprintf(w, "  Config:  %s\n", source)
	fmt.Fprintf(w, "  Listen:  http://%s\n", cfg.Server.Addr)
	fmt.Fprintf(w, "  Backend: %s (%s)\n", cfg.Transcribe.Backend, model)
	fmt.Fprintf(w, "  Uploads: %d MB max, %d concurrent\n", cfg.Server.MaxUploadMB, cfg.Transcribe.MaxConcurrent)
	fmt.Fprintf(w, "  Store:   %s\n", cfg.Store.Driver)
	fmt.Fprintf(w, "  Log:     %s\n", cfg.LogLevel)
	fmt.Fprintln(w, "====================")
}
