package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"laundry-status-exporter/config"
	"laundry-status-exporter/internal/api"
	"laundry-status-exporter/internal/db"
	"laundry-status-exporter/internal/metrics"
	"laundry-status-exporter/internal/mw"
	"laundry-status-exporter/internal/notification"
	"laundry-status-exporter/internal/pay2wash"
	"laundry-status-exporter/internal/scraper"
	"laundry-status-exporter/internal/store"
	"laundry-status-exporter/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Poll pay2wash and serve metrics until interrupted",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			slog.Warn("failed to flush traces", "err", err)
		}
	}()

	client, err := newClient(cfg)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	sinks := []scraper.Sink{metrics.NewExporter(reg)}

	var appStore store.Store
	webpushOptions := notification.NewWebPushOptions(cfg.Push)
	if cfg.Database.DSN != "" {
		gormDB, err := db.Init(&cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		appStore = store.NewGormStore(gormDB)

		var notify func(int64)
		if cfg.Push.Enabled() {
			workerPool := notification.NewWorkerPool(cfg.WorkerPool.Size, gormDB, webpushOptions)
			workerPool.Start(ctx)
			notify = workerPool.Dispatch
		} else {
			slog.Info("vapid keys are not configured, push notifications disabled")
		}
		sinks = append(sinks, store.NewRecorder(appStore, notify))
	} else {
		slog.Info("no database configured, persistence disabled")
	}

	var responses *mw.ResponseCache
	if appStore != nil {
		responses = mw.NewResponseCache(time.Duration(cfg.Server.CacheTTLSeconds) * time.Second)
		sinks = append(sinks, responses)
	}

	router := api.NewRouter(cfg.Server, reg, appStore, webpushOptions, responses)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("http server starting", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	pollErr := make(chan error, 1)
	go func() {
		pollErr <- scraper.NewService(client, cfg.Pay2Wash.Interval, sinks...).Run(ctx)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received, stopping services")
	case err := <-pollErr:
		if err != nil {
			runErr = fmt.Errorf("poller stopped: %w", err)
		}
	case err := <-serverErr:
		if err != nil {
			runErr = fmt.Errorf("http server: %w", err)
		}
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown", "err", err)
	}

	if runErr != nil {
		return runErr
	}
	slog.Info("server gracefully stopped")
	return nil
}

func newClient(cfg *config.Config) (*pay2wash.Client, error) {
	client, err := pay2wash.NewClient(pay2wash.Options{
		BaseURL:           cfg.Pay2Wash.BaseURL,
		Email:             cfg.Pay2Wash.Email,
		Password:          cfg.Pay2Wash.Password,
		Timeout:           cfg.Pay2Wash.Timeout,
		MaxRequestsPerSec: cfg.Pay2Wash.MaxRequestsPerSec,
		HTTPProxy:         cfg.Pay2Wash.HTTPProxy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create pay2wash client: %w", err)
	}
	return client, nil
}
