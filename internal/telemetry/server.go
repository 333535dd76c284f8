package telemetry

import (
	"context"
	"encoding/json"
	"net"
	"net/http"

	"codeberg.org/mutker/argus/internal/errors"
	"codeberg.org/mutker/argus/internal/logger"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router serves /metrics from the Service registry, /status from the
// given StatusFunc, and /health.
func (s *Service) Router(status StatusFunc, log logger.Logger) *mux.Router {
	r := mux.NewRouter()

	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"}, log)
	}).Methods(http.MethodGet)

	if status != nil {
		r.HandleFunc("/status", func(w http.ResponseWriter, req *http.Request) {
			writeJSON(w, status(req.Context()), log)
		}).Methods(http.MethodGet)
	}

	return r
}

// Serve runs handler on the configured listen address until ctx is
// cancelled, then shuts down gracefully.
func (s *Service) Serve(ctx context.Context, handler http.Handler, log logger.Logger) error {
	errFactory := errors.New()

	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return errFactory.Wrap(ErrServeFailed, err)
	}

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: defaultReadTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	log.Info().
		Str("addr", ln.Addr().String()).
		Msg("Diagnostics listener started")

	select {
	case err := <-errCh:
		return errFactory.Wrap(ErrServeFailed, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errFactory.Wrap(ErrServiceShutdown, err)
	}

	log.Info().Msg("Diagnostics listener stopped")

	return nil
}

func writeJSON(w http.ResponseWriter, v any, log logger.Logger) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}
