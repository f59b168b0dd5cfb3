package live

import "github.com/prometheus/client_golang/prometheus"

var (
	activeSubs = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "arcbot",
		Subsystem: "live",
		Name:      "active_subscriptions",
		Help:      "Live views currently refreshing.",
	})

	ticks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "arcbot",
		Subsystem: "live",
		Name:      "ticks_total",
		Help:      "Live view refreshes by result.",
	}, []string{"result"})

	ended = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "arcbot",
		Subsystem: "live",
		Name:      "ended_total",
		Help:      "Live views that stopped, by reason.",
	}, []string{"reason"})
)

func init() {
	prometheus.MustRegister(activeSubs, ticks, ended)
}
