package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ShayCichocki/finsight/internal/logging"
	"github.com/ShayCichocki/finsight/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the team over HTTP",
	Long: `Start an HTTP server in front of the orchestrator.

Routes:
  POST /v1/ask              {"question": "..."} -> {"answer": "..."}
  GET  /v1/insights         store summary
  GET  /v1/insights/{key}   ?topic=stock|news|industry&max_age=168h
  GET  /healthz`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from config server.addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	// Nobody reads events over HTTP; drain them so the emitter never fills.
	go func() {
		for range a.orch.Events() {
		}
	}()

	fmt.Fprintf(cmd.OutOrStdout(), "%s Listening on http://%s (logs: %s)\n",
		color.GreenString("✓"), cfg.Server.Addr, logging.Path(cfg.ResolveDataDir()))

	srv := server.New(a.orch, a.store, a.logger)
	if err := srv.ListenAndServe(ctx, cfg.Server.Addr); err != nil {
		a.logger.Error("server failed", zap.Error(err))
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}
