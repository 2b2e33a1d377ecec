package metrics

import (
	"net/http"

	"github.com/ethereum/go-ethereum/metrics"
	"github.com/ethereum/go-ethereum/metrics/prometheus"
)

type (
	Counter struct {
		metrics.Counter
	}

	Histogram struct {
		metrics.Histogram
	}

	// Recorder is an isolated metrics registry. Components take a *Recorder so
	// tests can hand each component its own instance and read the counters back
	// deterministically.
	Recorder struct {
		registry metrics.Registry
	}
)

func NewRecorder() *Recorder {
	// the go-ethereum metrics package creates nil meters unless enabled
	metrics.Enabled = true
	return &Recorder{registry: metrics.NewRegistry()}
}

// Counter returns the counter with the given name, registering it on first use.
func (r *Recorder) Counter(name string) *Counter {
	return &Counter{metrics.GetOrRegisterCounter(name, r.registry)}
}

// Histogram returns the histogram with the given name, registering it on first
// use with an exponentially decaying sample.
func (r *Recorder) Histogram(name string) *Histogram {
	return &Histogram{metrics.GetOrRegisterHistogram(name, r.registry, metrics.NewExpDecaySample(1028, 0.015))}
}

// PrometheusHandler exposes the recorder contents in prometheus text format.
func (r *Recorder) PrometheusHandler() http.Handler {
	return prometheus.Handler(r.registry)
}
