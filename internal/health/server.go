// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ManuGH/mediafit/internal/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 5 * time.Second

// Mount attaches an extra handler below Prefix.
type Mount struct {
	Prefix  string
	Handler http.Handler
}

// NewRouter exposes /healthz, /readyz and /metrics plus any mounts.
func NewRouter(m *Manager, mounts ...Mount) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", m.ServeHealth)
	r.Get("/readyz", m.ServeReady)
	r.Handle("/metrics", promhttp.Handler())
	for _, mt := range mounts {
		r.Mount(mt.Prefix, mt.Handler)
	}
	return r
}

// Serve runs the status listener on addr until ctx ends.
func Serve(ctx context.Context, addr string, h http.Handler) error {
	logger := log.WithComponent("status")
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("status listener started")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		logger.Info().Msg("status listener stopped")
		return nil
	}
}
