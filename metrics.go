package searchrunner

import "github.com/prometheus/client_golang/prometheus"

// searchMetrics is the Prometheus instrumentation for one Runner. None of
// this changes the protocol — it is ambient observability that sits
// alongside the runner without affecting its decisions. Every Runner gets
// its own registered collectors so tests can construct throwaway Runners
// without colliding on the default registry.
type searchMetrics struct {
	activeSearches   prometheus.Gauge
	requestsSent     prometheus.Counter
	staleRoutes      prometheus.Counter
	unsplicable      prometheus.Counter
	loopRoutes       prometheus.Counter
	garbageAddresses prometheus.Counter
	terminal         *prometheus.CounterVec
}

func newSearchMetrics(reg prometheus.Registerer) *searchMetrics {
	m := &searchMetrics{
		activeSearches: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "overlaydht",
			Subsystem: "search",
			Name:      "active_searches",
			Help:      "Number of searches currently active on this Runner.",
		}),
		requestsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "overlaydht",
			Subsystem: "search",
			Name:      "requests_sent_total",
			Help:      "Find-node requests dispatched across all searches.",
		}),
		staleRoutes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "overlaydht",
			Subsystem: "search",
			Name:      "stale_routes_total",
			Help:      "Candidates skipped because best-for-path no longer matched.",
		}),
		unsplicable: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "overlaydht",
			Subsystem: "search",
			Name:      "unsplicable_routes_total",
			Help:      "Reply records dropped because their route could not be spliced.",
		}),
		loopRoutes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "overlaydht",
			Subsystem: "search",
			Name:      "loop_routes_total",
			Help:      "Reply records dropped because they looped back through us.",
		}),
		garbageAddresses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "overlaydht",
			Subsystem: "search",
			Name:      "garbage_addresses_total",
			Help:      "Replies abandoned because they contained an invalid address.",
		}),
		terminal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "overlaydht",
			Subsystem: "search",
			Name:      "terminal_total",
			Help:      "Searches finishing, labeled by reason.",
		}, []string{"reason"}),
	}
	if reg != nil {
		reg.MustRegister(m.activeSearches, m.requestsSent, m.staleRoutes,
			m.unsplicable, m.loopRoutes, m.garbageAddresses, m.terminal)
	}
	return m
}
