// Package metrics exports routing activity as Prometheus metrics.
package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Ch00k/georouter/internal/router"
)

// Collector records router events. It implements router.Observer.
type Collector struct {
	registry        *prometheus.Registry
	requestsRouted  *prometheus.CounterVec
	requestsFailed  *prometheus.CounterVec
	chosenLatency   prometheus.Histogram
	chosenDistance  prometheus.Histogram
	registeredTotal prometheus.Gauge
}

// NewCollector creates a collector with its own registry
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		requestsRouted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "georouter_requests_routed_total",
				Help: "Total number of requests routed, by chosen server",
			},
			[]string{"server"},
		),
		requestsFailed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "georouter_requests_failed_total",
				Help: "Total number of requests that could not be routed, by reason",
			},
			[]string{"reason"},
		),
		chosenLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "georouter_chosen_latency_ms",
				Help:    "Simulated latency of the chosen server in milliseconds",
				Buckets: []float64{5, 10, 15, 20, 30, 40, 60, 80, 105},
			},
		),
		chosenDistance: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "georouter_chosen_distance_km",
				Help:    "Great-circle distance to the chosen server in kilometers",
				Buckets: []float64{100, 500, 1000, 2500, 5000, 10000, 20016},
			},
		),
		registeredTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "georouter_registered_servers",
				Help: "Number of servers in the registry",
			},
		),
	}

	c.registry.MustRegister(
		c.requestsRouted,
		c.requestsFailed,
		c.chosenLatency,
		c.chosenDistance,
		c.registeredTotal,
	)

	return c
}

// ServerAdded implements router.Observer
func (c *Collector) ServerAdded(_ router.Server, registrySize int) {
	c.registeredTotal.Set(float64(registrySize))
}

// RequestRouted implements router.Observer
func (c *Collector) RequestRouted(d router.Decision) {
	c.requestsRouted.WithLabelValues(d.ServerName).Inc()
	c.chosenLatency.Observe(d.LatencyMs)
	c.chosenDistance.Observe(d.DistanceKm)
}

// RequestFailed implements router.Observer
func (c *Collector) RequestFailed(_ int, err error) {
	reason := "unknown"
	if errors.Is(err, router.ErrEmptyRegistry) {
		reason = "empty_registry"
	}
	c.requestsFailed.WithLabelValues(reason).Inc()
}

// Registry returns the underlying registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector's metrics in the Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

var _ router.Observer = (*Collector)(nil)
