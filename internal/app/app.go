package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"roam/relay"
	servernet "roam/relay/internal/net"
)

// Config carries the process-level settings for Run.
type Config struct {
	Addr      string
	LogPath   string
	ClientDir string
	Logger    *zap.SugaredLogger
}

// Run wires the registry and HTTP surface and serves until the context is
// cancelled, then shuts down gracefully.
func Run(ctx context.Context, cfg Config) error {
	logger := cfg.Logger
	if logger == nil {
		logger = relay.NewLogger(cfg.LogPath)
		defer logger.Sync()
	}

	registryCfg := relay.DefaultRegistryConfig()
	if raw := os.Getenv("HEARTBEAT_INTERVAL_MS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil {
			registryCfg.HeartbeatInterval = time.Duration(value) * time.Millisecond
		} else {
			logger.Warnf("invalid HEARTBEAT_INTERVAL_MS=%q: %v", raw, err)
		}
	}
	if raw := os.Getenv("STALE_PEER_TTL_MS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil {
			registryCfg.StalePeerTTL = time.Duration(value) * time.Millisecond
		} else {
			logger.Warnf("invalid STALE_PEER_TTL_MS=%q: %v", raw, err)
		}
	}
	registryCfg = registryCfg.Normalized()

	registry := relay.NewRegistry(registryCfg, logger)
	go registry.Run(ctx)

	handler := servernet.NewHTTPHandler(registry, servernet.HTTPHandlerConfig{
		ClientDir: cfg.ClientDir,
		Logger:    logger,
	})

	srv := &http.Server{Addr: cfg.Addr, Handler: handler}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("relay listening on %s", cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		registry.CloseAll()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	}
}
