package common

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"
)

// ReadinessCheck reports an error when a dependency is not usable.
type ReadinessCheck func(ctx context.Context) error

const readinessTimeout = 2 * time.Second

func NewHealthCheckHandler(checks map[string]ReadinessCheck) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/livez", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()
		for name, check := range checks {
			if err := check(ctx); err != nil {
				slog.Warn("Readiness check failed", "check", name, "error", err)
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

// StartHealthCheckServer serves /livez and /readyz on addr until ctx is done.
func StartHealthCheckServer(ctx context.Context, addr string, checks map[string]ReadinessCheck) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           NewHealthCheckHandler(checks),
		ReadHeaderTimeout: readinessTimeout,
	}
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), readinessTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-serverErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
