// Copyright 2025 James Ross
package adminapi

import (
	"context"
	"fmt"
	"net/http"

	"github.com/filevault/dedup-backend/internal/store"
	"go.uber.org/zap"
)

// Run starts the admin API server and blocks until ctx is cancelled or the
// server fails to start.
func Run(ctx context.Context, cfg *Config, s store.Store, log *zap.Logger) error {
	server := NewServer(cfg, s, log)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down admin API server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("admin api server error: %w", err)
	}
}
