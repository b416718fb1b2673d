package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"astro-referrals/internal/infra/api/apiv1"
	"astro-referrals/internal/infra/metrics"
)

// Pinger reports dependency health for /health.
type Pinger func(ctx context.Context) error

// Server is the internal HTTP surface: activation intake, progress reads,
// health and metrics.
type Server struct {
	server *http.Server
	log    *zerolog.Logger
}

// NewRouter builds the chi router. /health and /metrics are unauthenticated;
// everything under /internal/v1 requires a service token.
func NewRouter(v1 *apiv1.Server, auth *ServiceAuth, requestTimeout time.Duration, checks map[string]Pinger, logger *zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(Recover(logger), TraceID(), RequestLog(logger))

	r.Get("/health", healthHandler(checks))
	r.Handle("/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(Timeout(requestTimeout), auth.Require())
		apiv1.RegisterAPIV1(r, v1)
	})
	return r
}

func NewServer(port int, handler http.Handler, logger *zerolog.Logger) *Server {
	compLog := logger.With().Str("component", "HTTPServer").Logger()
	return &Server{
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: &compLog,
	}
}

// Start blocks until the server stops. A graceful Shutdown is not an error.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP server listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func healthHandler(checks map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		for name, ping := range checks {
			if err := ping(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = fmt.Fprintf(w, "%s unavailable", name)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}
}
