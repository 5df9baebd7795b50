package router

import "math"

// Simulated latency model: BaseLatencyMs + distanceKm*LatencyFactor
const (
	BaseLatencyMs = 5.0   // fixed processing cost per request
	LatencyFactor = 0.005 // ms per km
)

// Server is a registered routing target. Identity is by name, which is not required to be unique.
type Server struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Request is a geo-tagged request to be routed. It is never stored.
type Request struct {
	ID        int     `json:"id"`
	Origin    string  `json:"origin"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// ScoredCandidate is a server scored against a single request
type ScoredCandidate struct {
	Server     Server  `json:"server"`
	DistanceKm float64 `json:"distance_km"`
	LatencyMs  float64 `json:"latency_ms"`
}

// Decision is the outcome of routing one request
type Decision struct {
	RequestID   int     `json:"request_id"`
	Origin      string  `json:"origin"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	ServerName  string  `json:"server"`
	LatencyMs   float64 `json:"latency_ms"`
	DistanceKm  float64 `json:"distance_km"`
	WinnerIndex int     `json:"winner_index"`
	// Candidates holds every registered server in registry order
	Candidates []ScoredCandidate `json:"candidates"`
}

// Winner returns the chosen candidate
func (d *Decision) Winner() ScoredCandidate {
	return d.Candidates[d.WinnerIndex]
}

// Statistics aggregates the chosen latency of every routed request
type Statistics struct {
	TotalLatency float64
	MinLatency   float64
	MaxLatency   float64
	RequestCount int
}

func newStatistics() Statistics {
	return Statistics{MinLatency: math.Inf(1)}
}

func (s *Statistics) record(latencyMs float64) {
	s.TotalLatency += latencyMs
	s.MinLatency = math.Min(s.MinLatency, latencyMs)
	s.MaxLatency = math.Max(s.MaxLatency, latencyMs)
	s.RequestCount++
}

// Summary is the aggregate report over all routed requests
type Summary struct {
	RequestCount   int     `json:"request_count"`
	AverageLatency float64 `json:"average_latency_ms"`
	MinLatency     float64 `json:"min_latency_ms"`
	MaxLatency     float64 `json:"max_latency_ms"`
}

// Latency converts a great-circle distance into simulated latency in milliseconds
func Latency(distanceKm float64) float64 {
	return BaseLatencyMs + distanceKm*LatencyFactor
}
