package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"vshark/internal/engine"
	"vshark/internal/handlers"
	vlog "vshark/internal/log"
)

const (
	shutdownTimeout = 5 * time.Second
	commandBuffer   = 64
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the live view over HTTP and WebSocket",
	Long: `Run the capture pipeline headless and publish every rendered snapshot to remote
viewers.

Routes:
  GET  /api/snapshot   latest snapshot as JSON
  GET  /api/flows      conversation listing
  POST /api/commands   {"command":"move_down"} drives selection and search
  GET  /healthz        liveness
  /ws                  snapshot stream, accepts command messages

Examples:
  vshark serve --listen :9000
  vshark serve -r trace.pcap`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("listen", "", "HTTP listen address (default \":8080\")")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := vlog.Init(cfg.Log, os.Stderr); err != nil {
		return err
	}
	defer vlog.Close()
	logger := vlog.GetLogger()

	eng, label, err := newEngine(cfg, logger)
	if err != nil {
		return err
	}
	closeExport := attachExport(eng, cfg, logger)
	defer closeExport()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	commands := make(chan engine.Command, commandBuffer)
	hub := handlers.NewHub(commands, logger.WithField("component", "handlers"))
	srv := &http.Server{
		Addr:    cfg.Server.Listen,
		Handler: handlers.NewRouter(hub),
	}

	if err := eng.Start(ctx); err != nil {
		return err
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	serveErr := make(chan error, 1)
	go func() {
		logger.WithField("addr", srv.Addr).Info("remote view listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			cancelRun()
		}
	}()

	logger.WithField("source", label).Info("serving live view")
	if err := eng.Run(runCtx, commands, hub.Publish); err != nil {
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("http server shutdown")
	}
	logger.Info("remote view stopped")

	select {
	case err := <-serveErr:
		return fmt.Errorf("remote view: %w", err)
	default:
		return nil
	}
}
