// Package metrics holds the Prometheus collectors shared by the build pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "iptv_constructor"

// Probe results.
const (
	ProbeAlive   = "alive"
	ProbeDead    = "dead"
	ProbeError   = "error"
	ProbeSkipped = "skipped" // non-http(s) URL or cancelled before sending
	ProbeCached  = "cached"
)

// Channel fates in the rendered playlist.
const (
	FateKept      = "kept"
	FateDropped   = "dropped"
	FateRelocated = "relocated"
)

// Registry is the process registry; collectors below are registered on it.
var Registry = prometheus.NewRegistry()

var (
	ProbesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "probes_total",
		Help:      "Liveness probes by result.",
	}, []string{"result"})

	ProbeDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "probe_duration_seconds",
		Help:      "Wall time of liveness probes that reached the network.",
		Buckets:   []float64{.05, .1, .25, .5, 1, 2, 3, 5},
	})

	MatchScore = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "epg_match_score",
		Help:      "Best token-overlap score per matched channel.",
		Buckets:   prometheus.LinearBuckets(10, 10, 10),
	})

	ChannelsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "channels_total",
		Help:      "Rendered channels by fate.",
	}, []string{"fate"})

	BuildsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "builds_total",
		Help:      "Playlist builds by result.",
	}, []string{"result"})

	LastBuild = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_successful_build_timestamp_seconds",
		Help:      "Unix time of the last successful build.",
	})
)

func init() {
	Registry.MustRegister(
		ProbesTotal,
		ProbeDuration,
		MatchScore,
		ChannelsTotal,
		BuildsTotal,
		LastBuild,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Handler serves Registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// WriteFile dumps Registry to path for node_exporter's textfile collector.
func WriteFile(path string) error {
	return prometheus.WriteToTextfile(path, Registry)
}
