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

	"court-booking/internal/usecase"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveNoSweep bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and the expired checkout sweeper",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveNoSweep, "no-sweep", false, "do not run the background sweeper in this process")
}

func runServe(cmd *cobra.Command, args []string) error {
	rt, err := bootstrap()
	if err != nil {
		return err
	}
	defer rt.Close()

	rt.logger.Info("Starting application",
		zap.String("app", rt.config.App.Name),
		zap.String("port", rt.config.App.Port),
		zap.String("env", rt.config.App.Environment),
		zap.Bool("debug", rt.config.App.Debug),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !serveNoSweep {
		go runSweeper(ctx, rt.app.Service.Reconcile, rt.config.Payment.SweepInterval, rt.logger)
	}

	return APIServer(ctx, rt.app.Router, rt.config.App.Port, rt.logger)
}

// APIServer serves route until ctx is cancelled, then drains in-flight requests
func APIServer(ctx context.Context, route http.Handler, port string, logger *zap.Logger) error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", port),
		Handler:           route,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("Server exited")
	return nil
}

// runSweeper expires or reconciles stale pending checkouts on every tick
func runSweeper(ctx context.Context, reconcile usecase.ReconcileService, interval time.Duration, logger *zap.Logger) {
	if interval <= 0 {
		logger.Info("Sweeper disabled", zap.Duration("interval", interval))
		return
	}

	log := logger.With(zap.String("job", "sweeper"))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result, err := reconcile.ExpireStale(ctx)
			if err != nil {
				log.Error("Sweep failed", zap.Error(err))
				continue
			}
			if result.Expired+result.Reconciled+result.Failed > 0 {
				log.Info("Sweep finished",
					zap.Int("expired", result.Expired),
					zap.Int("reconciled", result.Reconciled),
					zap.Int("cancelled", result.Cancelled),
					zap.Int("failed", result.Failed),
				)
			}
		}
	}
}
