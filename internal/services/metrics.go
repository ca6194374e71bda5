package services

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics for the cache/fetch/alert pipeline, registered once at startup.
type PipelineMetrics struct {
	CacheHits     prometheus.Counter
	CacheStale    prometheus.Counter
	CacheMisses   prometheus.Counter
	FetchAttempts prometheus.Counter
	FetchFailures *prometheus.CounterVec
	AlertsFired   prometheus.Counter
	EmailsSent    prometheus.Counter
	EmailsFailed  prometheus.Counter
}

var Metrics = newPipelineMetrics()

func newPipelineMetrics() *PipelineMetrics {
	m := &PipelineMetrics{
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "portfolio_tracker",
			Subsystem: "quote_store",
			Name:      "cache_hits",
			Help:      "The total number of fresh cache hits",
		}),
		CacheStale: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "portfolio_tracker",
			Subsystem: "quote_store",
			Name:      "cache_stale",
			Help:      "The total number of reads served a stale snapshot",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "portfolio_tracker",
			Subsystem: "quote_store",
			Name:      "cache_misses",
			Help:      "The total number of cache misses",
		}),
		FetchAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "portfolio_tracker",
			Subsystem: "fetcher",
			Name:      "attempts",
			Help:      "The total number of upstream requests issued",
		}),
		FetchFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "portfolio_tracker",
				Subsystem: "fetcher",
				Name:      "failures",
				Help:      "The total number of fetches that surfaced an error",
			},
			[]string{"kind"},
		),
		AlertsFired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "portfolio_tracker",
			Subsystem: "alerts",
			Name:      "fired",
			Help:      "The total number of alerts that fired",
		}),
		EmailsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "portfolio_tracker",
			Subsystem: "notifier",
			Name:      "emails_sent",
			Help:      "The total number of alert emails delivered",
		}),
		EmailsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "portfolio_tracker",
			Subsystem: "notifier",
			Name:      "emails_failed",
			Help:      "The total number of alert emails that failed to send",
		}),
	}

	prometheus.MustRegister(m.CacheHits)
	prometheus.MustRegister(m.CacheStale)
	prometheus.MustRegister(m.CacheMisses)
	prometheus.MustRegister(m.FetchAttempts)
	prometheus.MustRegister(m.FetchFailures)
	prometheus.MustRegister(m.AlertsFired)
	prometheus.MustRegister(m.EmailsSent)
	prometheus.MustRegister(m.EmailsFailed)

	return m
}
