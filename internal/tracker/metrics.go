package tracker

import "github.com/prometheus/client_golang/prometheus"

var (
	cacheRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "arcbot",
		Subsystem: "tracker",
		Name:      "cache_requests_total",
		Help:      "Dataset requests by how they were served (hit, live, derived).",
	}, []string{"served"})

	fallbacks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "arcbot",
		Subsystem: "tracker",
		Name:      "fallbacks_total",
		Help:      "Live fetches that fell back to the derived schedule, by reason.",
	}, []string{"reason"})

	fetchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "arcbot",
		Subsystem: "tracker",
		Name:      "live_fetch_duration_seconds",
		Help:      "Latency of live source fetches.",
		Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
	})

	lastLiveFetch = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "arcbot",
		Subsystem: "tracker",
		Name:      "last_live_fetch_timestamp_seconds",
		Help:      "Unix time of the last successful live fetch.",
	})
)

func init() {
	prometheus.MustRegister(cacheRequests, fallbacks, fetchDuration, lastLiveFetch)
}

func recordServed(how string) { cacheRequests.WithLabelValues(how).Inc() }

func recordFallback(reason string) { fallbacks.WithLabelValues(reason).Inc() }
