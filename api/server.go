// Package api hosts the HTTP surface: the Stripe webhook endpoint, the admin
// reconcile trigger, invoice payment links and the health endpoints.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/homebase-app/homebase-backend/pkg/logger"
)

const shutdownTimeout = 20 * time.Second

// NewServer wraps handler in an http.Server listening on addr.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Admin reconcile runs answer synchronously.
		WriteTimeout: 11 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}
}

// Serve runs srv on ln until ctx is canceled, then drains in-flight
// requests.
func Serve(ctx context.Context, srv *http.Server, ln net.Listener, logg *logger.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	if logg != nil {
		logg.Info(ctx, "api server shutting down")
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
