// Package server exposes the read-only query API over the persisted events,
// plus health and metrics endpoints.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tectonica/quakewatch/internal/logger"
	"github.com/tectonica/quakewatch/internal/models"
)

// RecordLister reads recent records from the durable store.
type RecordLister interface {
	Recent(limit int) ([]models.Record, error)
}

// Server serves the read API.
type Server struct {
	httpServer *http.Server
	store      RecordLister
	pageSize   int
}

// New creates the HTTP server with /events, /healthz, and /metrics routes.
// The root path redirects to /events.
func New(addr string, store RecordLister, pageSize int) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		store:    store,
		pageSize: pageSize,
	}

	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /events", s.handleEvents)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	logger.Info("Read API listening on %s", s.httpServer.Addr)
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

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/events", http.StatusFound)
}

// eventResponse is the wire shape served to clients, matching the persisted
// record layout minus the store-internal fields.
type eventResponse struct {
	Location string  `json:"location"`
	Date     string  `json:"date"`
	Mag      float64 `json:"mag"`
	Source   string  `json:"source"`
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	Depth    float64 `json:"depth"`
}

// handleEvents returns the newest records ordered by event time descending.
// A store failure is a hard 500 with an explanatory message; the endpoint
// never silently serves partial or stale data.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.Recent(s.pageSize)
	if err != nil {
		logger.Error("Read API query failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":   "storage unavailable",
			"details": err.Error(),
		})
		return
	}

	results := make([]eventResponse, 0, len(records))
	for _, rec := range records {
		results = append(results, eventResponse{
			Location: rec.Event.Location,
			Date:     rec.Event.OccurredAt.UTC().Format(time.RFC3339),
			Mag:      rec.Event.Magnitude,
			Source:   rec.Event.Source,
			Lat:      rec.Event.Latitude,
			Lng:      rec.Event.Longitude,
			Depth:    rec.Event.DepthKm,
		})
	}

	// The mobile client fetches from a different origin.
	w.Header().Set("Access-Control-Allow-Origin", "*")
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}
