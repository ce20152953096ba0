package server

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// ShutdownTimeout bounds how long in-flight requests get once ctx is done.
const ShutdownTimeout = 5 * time.Second

// ListenAndServe runs srv until it fails or ctx is cancelled, then shuts it
// down gracefully. A clean shutdown returns nil.
func ListenAndServe(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
