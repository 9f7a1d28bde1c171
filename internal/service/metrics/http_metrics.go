package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	EndpointLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tradecore",
			Subsystem: "api",
			Name:      "latency_seconds",
			Help:      "Latency of API endpoints",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2, 4, 8, 16, 30},
		},
		[]string{"endpoint"},
	)

	EndpointErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tradecore",
			Subsystem: "api",
			Name:      "errors_total",
			Help:      "Errors by API endpoint and kind",
		},
		[]string{"endpoint", "kind"},
	)

	Throttled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tradecore",
			Subsystem: "api",
			Name:      "throttled_total",
			Help:      "Requests rejected by the per-account throttle",
		},
		[]string{"endpoint"},
	)
)

// Register adds the API collectors to the default registry once.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(EndpointLatency, EndpointErrors, Throttled)
	})
}
