// Package router selects the lowest simulated-latency server for geo-tagged requests
// and keeps aggregate statistics over every routed request.
package router

import (
	"errors"
	"log"
	"sync"

	"github.com/Ch00k/georouter/internal/distance"
	"github.com/Ch00k/georouter/internal/logging"
)

var (
	// ErrEmptyRegistry is returned by RouteRequest when no servers are registered
	ErrEmptyRegistry = errors.New("no servers available")
	// ErrEmptyHistory is returned by Summary before any request has been routed
	ErrEmptyHistory = errors.New("no requests processed")
)

// Observer is notified about routing outcomes. Calls happen outside the router lock, one at a
// time and in the order the router processed the events. An observer must not add servers or
// route requests on the router that notifies it.
type Observer interface {
	ServerAdded(server Server, registrySize int)
	RequestRouted(decision Decision)
	RequestFailed(requestID int, err error)
}

// Router owns the server registry and the request statistics.
// A single mutex guards both, so concurrent callers never interleave a scoring pass
// with another request's statistics update.
type Router struct {
	mu        sync.Mutex
	servers   []Server
	stats     Statistics
	observers []Observer
	logLevel  logging.LogLevel

	// nextEvent is guarded by mu; delivered by notifyMu
	nextEvent  uint64
	delivered  uint64
	notifyMu   sync.Mutex
	notifyCond *sync.Cond
}

// Option configures a Router
type Option func(*Router)

// WithObserver registers an observer. May be given more than once.
func WithObserver(o Observer) Option {
	return func(r *Router) {
		r.observers = append(r.observers, o)
	}
}

// WithLogLevel sets the log level for the router
func WithLogLevel(logLevel logging.LogLevel) Option {
	return func(r *Router) {
		r.logLevel = logLevel
	}
}

// New creates an empty router
func New(opts ...Option) *Router {
	r := &Router{
		stats:    newStatistics(),
		logLevel: logging.LogLevelError,
	}

	for _, opt := range opts {
		opt(r)
	}
	r.notifyCond = sync.NewCond(&r.notifyMu)

	return r
}

// reserveEvent takes the next delivery slot. Must be called with mu held.
func (r *Router) reserveEvent() uint64 {
	event := r.nextEvent
	r.nextEvent++
	return event
}

// notify delivers an event to every observer once all earlier events have been delivered
func (r *Router) notify(event uint64, deliver func(Observer)) {
	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()

	for r.delivered != event {
		r.notifyCond.Wait()
	}
	for _, o := range r.observers {
		deliver(o)
	}
	r.delivered++
	r.notifyCond.Broadcast()
}

// AddServer appends a server to the registry. Names and coordinates are not validated.
func (r *Router) AddServer(name string, lat, lon float64) Server {
	server := Server{Name: name, Latitude: lat, Longitude: lon}

	r.mu.Lock()
	r.servers = append(r.servers, server)
	size := len(r.servers)
	event := r.reserveEvent()
	r.mu.Unlock()

	if r.logLevel <= logging.LogLevelInfo {
		log.Printf("Added server %q at (%.4f, %.4f), registry size %d", name, lat, lon, size)
	}

	r.notify(event, func(o Observer) { o.ServerAdded(server, size) })

	return server
}

// Servers returns a copy of the registry in insertion order
func (r *Router) Servers() []Server {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]Server(nil), r.servers...)
}

// Len returns the number of registered servers
func (r *Router) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.servers)
}

// RouteRequest scores every server against the request location and picks the one with
// the lowest simulated latency. Ties go to the server registered first.
func (r *Router) RouteRequest(requestID int, origin string, lat, lon float64) (*Decision, error) {
	r.mu.Lock()

	if len(r.servers) == 0 {
		event := r.reserveEvent()
		r.mu.Unlock()
		if r.logLevel <= logging.LogLevelWarning {
			log.Printf("Request #%d from %s: no servers available", requestID, origin)
		}
		r.notify(event, func(o Observer) { o.RequestFailed(requestID, ErrEmptyRegistry) })
		return nil, ErrEmptyRegistry
	}

	decision := &Decision{
		RequestID:  requestID,
		Origin:     origin,
		Latitude:   lat,
		Longitude:  lon,
		Candidates: make([]ScoredCandidate, len(r.servers)),
	}

	for i, s := range r.servers {
		d := distance.CalculateDistance(lat, lon, s.Latitude, s.Longitude)
		candidate := ScoredCandidate{
			Server:     s,
			DistanceKm: d,
			LatencyMs:  Latency(d),
		}
		decision.Candidates[i] = candidate

		// Strict comparison keeps the earliest registered server on ties
		if i == 0 || candidate.LatencyMs < decision.LatencyMs {
			decision.WinnerIndex = i
			decision.ServerName = s.Name
			decision.LatencyMs = candidate.LatencyMs
			decision.DistanceKm = candidate.DistanceKm
		}
	}

	r.stats.record(decision.LatencyMs)
	event := r.reserveEvent()
	r.mu.Unlock()

	if r.logLevel <= logging.LogLevelDebug {
		log.Printf(
			"Request #%d from %s (%.4f, %.4f): scored %d servers, chose %s at %.2f ms",
			requestID,
			origin,
			lat,
			lon,
			len(decision.Candidates),
			decision.ServerName,
			decision.LatencyMs,
		)
	}

	routed := *decision
	r.notify(event, func(o Observer) { o.RequestRouted(routed) })

	return decision, nil
}

// Summary reports aggregate latency over every routed request
func (r *Router) Summary() (*Summary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stats.RequestCount == 0 {
		return nil, ErrEmptyHistory
	}

	return &Summary{
		RequestCount:   r.stats.RequestCount,
		AverageLatency: r.stats.TotalLatency / float64(r.stats.RequestCount),
		MinLatency:     r.stats.MinLatency,
		MaxLatency:     r.stats.MaxLatency,
	}, nil
}

// Stats returns a snapshot of the raw statistics
func (r *Router) Stats() Statistics {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.stats
}
