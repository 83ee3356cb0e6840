package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/notifyhub/whatsapp-dispatcher/internal/api"
)

var serveDryRun bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP control surface",
	Long:  `Serve accepts spreadsheet uploads, runs them one at a time and streams their progress.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveDryRun, "dry-run", false, "accept runs without sending any message")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx, serveDryRun)
	if err != nil {
		return err
	}
	defer a.close()
	logger := a.logger

	// ---- HTTP server ----
	srv := api.NewServer(api.ServerConfig{
		Addr:         ":" + a.cfg.HTTPPort,
		ReadTimeout:  a.cfg.ReadTimeout,
		WriteTimeout: a.cfg.WriteTimeout,
		Template:     a.tmpl,
	}, a.svc, a.reg, logger)

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr), zap.String("gateway", a.cfg.Gateway))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// ---- graceful shutdown ----
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		logger.Error("server error", zap.Error(err))
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.ShutdownTimeout)
	defer cancel()

	// 1. Stop accepting new HTTP requests. The server's shutdown hook
	// cancels the active run, so open event streams end with it.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// 2. Wait for the run's current message.
	if err := a.svc.Shutdown(shutdownCtx); err != nil {
		logger.Warn("active run aborted", zap.Error(err))
	}

	logger.Info("server stopped cleanly")
	return nil
}
