package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/m-navaneeth8770/queuectl/config"
	httpx "github.com/m-navaneeth8770/queuectl/internal/http"
)

// DashboardServerConfig contains configuration for the dashboard HTTP server.
type DashboardServerConfig struct {
	Config   config.DashboardConfig
	Services *ServiceContainer
	Logger   *slog.Logger
}

// StartDashboardServer creates and starts the dashboard HTTP server.
// Returns the server instance for graceful shutdown.
func StartDashboardServer(cfg DashboardServerConfig) *http.Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	router := httpx.NewRouter(httpx.RouterServices{
		Queue:     cfg.Services.Queue,
		Snapshots: cfg.Services.Snapshots,
		Logger:    logger,
	})

	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Config.Host, strconv.Itoa(cfg.Config.Port)),
		Handler:      router,
		ReadTimeout:  cfg.Config.ReadTimeout,
		WriteTimeout: cfg.Config.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("starting dashboard server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("dashboard server failed", "error", err)
		}
	}()

	return server
}

// ShutdownDashboardServer gracefully shuts down the dashboard HTTP server.
func ShutdownDashboardServer(ctx context.Context, server *http.Server, logger *slog.Logger) error {
	if server == nil {
		return nil
	}
	if logger != nil {
		logger.Info("shutting down dashboard server")
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if logger != nil {
		logger.Info("dashboard server stopped")
	}
	return nil
}
