package http

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/seawhisper/alert-monitor/internal/domain"
)

const maxReadingBody = 64 << 10

// AlertService lists and resolves active alerts.
type AlertService interface {
	ListActive(ctx context.Context, limit int) ([]domain.Alert, error)
	Resolve(ctx context.Context, id string) (domain.Alert, error)
}

// ReadingSink stores readings posted to the API.
type ReadingSink interface {
	InsertReadings(ctx context.Context, readings []domain.Reading) error
}

// Server exposes the alert API alongside health, readiness, and metrics endpoints.
type Server struct {
	httpServer *http.Server
	alerts     AlertService
	readings   ReadingSink
	listLimit  int
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics and the /api routes.
func NewServer(addr string, ready sharedobs.ReadinessChecker, alerts AlertService, readings ReadingSink, listLimit int, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		alerts:    alerts,
		readings:  readings,
		listLimit: listLimit,
		logger:    logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/alerts", s.handleListAlerts)
	mux.HandleFunc("POST /api/alerts/{id}/resolve", s.handleResolveAlert)
	mux.HandleFunc("POST /api/readings", s.handleCreateReading)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	limit := s.listLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, s.listLimit)
	}

	alerts, err := s.alerts.ListActive(r.Context(), limit)
	if err != nil {
		s.logger.Error("list active alerts failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to fetch alerts")
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, map[string][]domain.Alert{"alerts": alerts})
}

func (s *Server) handleResolveAlert(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	alert, err := s.alerts.Resolve(r.Context(), id)
	switch {
	case errors.Is(err, domain.ErrAlertNotFound):
		writeError(w, http.StatusNotFound, "alert not found")
		return
	case err != nil:
		s.logger.Error("resolve alert failed", "error", err, "alert_id", id)
		writeError(w, http.StatusInternalServerError, "failed to resolve alert")
		return
	}
	s.logger.Info("alert resolved", "alert_id", alert.ID, "parameter", alert.Parameter)
	sharedobs.WriteJSON(w, http.StatusOK, alert)
}

func (s *Server) handleCreateReading(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxReadingBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	reading, err := domain.ParseReading(body, domain.Now().UTC())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.readings.InsertReadings(r.Context(), []domain.Reading{reading}); err != nil {
		s.logger.Error("insert reading failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store reading")
		return
	}
	sharedobs.WriteJSON(w, http.StatusCreated, reading)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	sharedobs.WriteJSON(w, status, map[string]string{"error": msg})
}
