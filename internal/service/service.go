// Package service exposes the router over HTTP.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/net/netutil"

	"github.com/Ch00k/georouter/internal/api"
	"github.com/Ch00k/georouter/internal/logging"
	"github.com/Ch00k/georouter/internal/metrics"
	"github.com/Ch00k/georouter/internal/router"
)

const (
	shutdownTimeout = 10 * time.Second
	maxBodyBytes    = 1 << 16
)

// Service serves a single router instance
type Service struct {
	router    *router.Router
	collector *metrics.Collector
	hub       *Hub
	logger    *logging.Logger
	lastID    atomic.Int64
}

// Option configures a Service
type Option func(*Service)

// WithCollector exposes the collector on /metrics. The collector must also be registered
// as an observer on the router to receive events.
func WithCollector(c *metrics.Collector) Option {
	return func(s *Service) {
		s.collector = c
	}
}

// WithHub exposes the hub on /ws/decisions
func WithHub(h *Hub) Option {
	return func(s *Service) {
		s.hub = h
	}
}

// WithLogger sets the logger
func WithLogger(l *logging.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// New creates a service around r
func New(r *router.Router, opts ...Option) *Service {
	s := &Service{
		router: r,
		logger: logging.Default(logging.LogLevelError),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Handler returns the HTTP handler with all routes and middleware configured
func (s *Service) Handler() http.Handler {
	r := mux.NewRouter()

	r.Use(RequestID)
	r.Use(Logging(s.logger))

	r.HandleFunc("/servers", s.listServers).Methods(http.MethodGet)
	r.HandleFunc("/servers", s.addServer).Methods(http.MethodPost)
	r.HandleFunc("/route", s.route).Methods(http.MethodPost)
	r.HandleFunc("/summary", s.summary).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.health).Methods(http.MethodGet)

	if s.collector != nil {
		r.Handle("/metrics", s.collector.Handler()).Methods(http.MethodGet)
	}
	if s.hub != nil {
		r.Handle("/ws/decisions", s.hub).Methods(http.MethodGet)
	}

	return r
}

// ListenAndServe listens on addr and serves until ctx is cancelled
func (s *Service) ListenAndServe(ctx context.Context, addr string, maxConns int) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln, maxConns)
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully.
// maxConns > 0 caps the number of simultaneously accepted connections.
func (s *Service) Serve(ctx context.Context, ln net.Listener, maxConns int) error {
	if maxConns > 0 {
		ln = netutil.LimitListener(ln, maxConns)
	}

	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.logger.Infof("Router service listening on %s (max connections: %s)", ln.Addr(), formatMaxConns(maxConns))

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	s.logger.Infof("Shutting down router service...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if s.hub != nil {
		s.hub.Close()
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	<-errCh

	s.logger.Infof("Router service stopped")
	return nil
}

func formatMaxConns(n int) string {
	if n <= 0 {
		return "unlimited"
	}
	return fmt.Sprintf("%d", n)
}

func (s *Service) listServers(w http.ResponseWriter, _ *http.Request) {
	servers := s.router.Servers()
	if servers == nil {
		servers = []router.Server{}
	}
	writeJSON(w, http.StatusOK, servers)
}

func (s *Service) addServer(w http.ResponseWriter, r *http.Request) {
	var req api.AddServerRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, api.CodeBadRequest, err.Error())
		return
	}
	if err := checkCoordinates(req.Latitude, req.Longitude); err != nil {
		writeError(w, http.StatusBadRequest, api.CodeBadRequest, err.Error())
		return
	}

	server := s.router.AddServer(req.Name, *req.Latitude, *req.Longitude)
	writeJSON(w, http.StatusCreated, server)
}

func (s *Service) route(w http.ResponseWriter, r *http.Request) {
	var req api.RouteRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, api.CodeBadRequest, err.Error())
		return
	}
	if err := checkCoordinates(req.Latitude, req.Longitude); err != nil {
		writeError(w, http.StatusBadRequest, api.CodeBadRequest, err.Error())
		return
	}

	id := s.nextID(req.RequestID)

	decision, err := s.router.RouteRequest(id, req.Origin, *req.Latitude, *req.Longitude)
	if errors.Is(err, router.ErrEmptyRegistry) {
		writeError(w, http.StatusServiceUnavailable, api.CodeEmptyRegistry, err.Error())
		return
	}
	if err != nil {
		s.logger.Errorf("Routing request #%d failed: %v", id, err)
		writeError(w, http.StatusInternalServerError, api.CodeInternal, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, decision)
}

// nextID returns the caller's id when given, otherwise the next service-assigned id starting at 1
func (s *Service) nextID(requested *int) int {
	if requested != nil {
		return *requested
	}
	return int(s.lastID.Add(1))
}

func (s *Service) summary(w http.ResponseWriter, _ *http.Request) {
	summary, err := s.router.Summary()
	if errors.Is(err, router.ErrEmptyHistory) {
		writeError(w, http.StatusNotFound, api.CodeEmptyHistory, err.Error())
		return
	}
	if err != nil {
		s.logger.Errorf("Summary failed: %v", err)
		writeError(w, http.StatusInternalServerError, api.CodeInternal, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

func (s *Service) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, api.HealthResponse{Status: "ok", Servers: s.router.Len()})
}

// checkCoordinates requires both coordinates to be present and finite
func checkCoordinates(lat, lon *float64) error {
	if lat == nil || lon == nil {
		return errors.New("latitude and longitude are required")
	}
	for _, v := range []float64{*lat, *lon} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("coordinate %v is not a finite number", v)
		}
	}
	return nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, api.ErrorResponse{Code: code, Error: msg})
}
