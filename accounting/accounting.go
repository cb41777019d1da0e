// Package accounting measures the running quality of each data-server
// source and exports the measurements as prometheus metrics.
//
// A quality score is a non-negative integer where lower is better. Scores
// are comparable by ratio, start at a neutral baseline and relax back
// toward it while a source sits idle.
package accounting

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry collects every metric this package produces. Callers wanting
// the adaptor's metrics on an existing scrape endpoint can register it as
// a Gatherer.
var Registry = prometheus.NewRegistry()

var (
	metricQuality = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "xrdadaptor",
		Name:      "source_quality",
		Help:      "Current quality score per source (lower is better).",
	}, []string{"source"})
	metricBytes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "xrdadaptor",
		Name:      "read_bytes_total",
		Help:      "Bytes read per source.",
	}, []string{"source"})
	metricRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "xrdadaptor",
		Name:      "requests_total",
		Help:      "Completed read requests per source.",
	}, []string{"source"})
	metricErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "xrdadaptor",
		Name:      "request_errors_total",
		Help:      "Read requests completed with an error, per source.",
	}, []string{"source"})
)

func init() {
	Registry.MustRegister(metricQuality, metricBytes, metricRequests, metricErrors)
}
