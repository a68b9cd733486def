package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/AgamJK/sentinel-final/internal/adapters/smtpd"
	"github.com/AgamJK/sentinel-final/internal/config"
	"github.com/AgamJK/sentinel-final/internal/core"
	"github.com/AgamJK/sentinel-final/internal/di"
	"github.com/AgamJK/sentinel-final/internal/monitor"
)

func main() {
	// Build the dependency injection container
	container, err := di.BuildContainer()
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	// Run the application
	if err := container.Invoke(run); err != nil {
		fmt.Printf("Application error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main application function that gets all dependencies injected
func run(
	logger *zap.Logger,
	cfg *config.Config,
	scheduler *monitor.Scheduler,
	smtpServer *smtpd.Server,
	classifier core.Classifier,
	store core.Store,
) error {
	defer logger.Sync()

	// Start the polling scheduler
	if err := scheduler.Start(); err != nil {
		logger.Fatal("Failed to start scheduler", zap.Error(err))
		return err
	}

	// Start the SMTP listener if enabled
	smtpCfg := cfg.GetSMTP()
	if smtpCfg.Enabled {
		if err := smtpServer.Start(); err != nil {
			logger.Fatal("Failed to start SMTP listener", zap.Error(err))
			return err
		}
	}

	// Expose Prometheus metrics if enabled
	metricsCfg := cfg.GetMetrics()
	var metricsServer *http.Server
	if metricsCfg.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{Addr: metricsCfg.ListenAddress, Handler: mux}
		go func() {
			logger.Info("Metrics listener starting", zap.String("address", metricsCfg.ListenAddress))
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("Metrics server error", zap.Error(err))
			}
		}()
	}

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	logger.Info("Shutting down...")

	if smtpCfg.Enabled {
		if err := smtpServer.Stop(); err != nil {
			logger.Error("Failed to stop SMTP listener", zap.Error(err))
		}
	}

	if err := scheduler.Stop(); err != nil {
		logger.Error("Failed to stop scheduler", zap.Error(err))
	}

	if metricsServer != nil {
		if err := metricsServer.Close(); err != nil {
			logger.Error("Failed to stop metrics server", zap.Error(err))
		}
	}

	// Close any resources that need closing
	if closer, ok := classifier.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logger.Error("Failed to close classifier", zap.Error(err))
		}
	}

	if err := store.Close(); err != nil {
		logger.Error("Failed to close store", zap.Error(err))
	}

	logger.Info("Shutdown complete")
	return nil
}
