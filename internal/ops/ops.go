package ops

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/weatherdeck/weatherdeck/internal/observability"
)

// Health supplies the live values the health endpoint reports. Fields left
// nil are omitted from the payload.
type Health struct {
	StartTime time.Time
	Session   func() string // current session state
	Breaker   func() string // circuit breaker state
}

// Server is the local observability endpoint: GET /health and GET /metrics.
// It serves the client process itself and binds to a loopback address; it is
// not part of the dashboard backend.
type Server struct {
	srv    *http.Server
	logger *zap.Logger
}

// NewServer builds the ops server on addr.
func NewServer(addr string, logger *zap.Logger, health Health) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	router := mux.NewRouter()
	router.HandleFunc("/health", healthHandler(health)).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler()).Methods("GET")

	return &Server{
		srv: &http.Server{
			Addr:         addr,
			Handler:      router,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Start serves until Shutdown. Call from a goroutine.
func (s *Server) Start() {
	s.logger.Info("ops server starting", zap.String("addr", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.logger.Error("ops server", zap.Error(err))
	}
}

// Shutdown drains the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func healthHandler(h Health) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]any{
			"status": "ok",
		}
		if !h.StartTime.IsZero() {
			payload["uptimeSeconds"] = int64(time.Since(h.StartTime).Seconds())
		}
		if h.Session != nil {
			payload["session"] = h.Session()
		}
		if h.Breaker != nil {
			payload["breaker"] = h.Breaker()
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(payload)
	}
}
