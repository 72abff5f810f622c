package acls

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the engine's Prometheus metrics.
type Metrics struct {
	ChecksTotal    *prometheus.CounterVec
	CheckDuration  prometheus.Histogram
	CacheHitsTotal prometheus.Counter
	GrantsTotal    prometheus.Counter
	RevokesTotal   prometheus.Counter
}

// NewMetrics creates and registers the engine metrics.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		ChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docvault_access_checks_total",
				Help: "Total number of access checks by result",
			},
			[]string{"result"},
		),
		CheckDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "docvault_access_check_duration_seconds",
				Help:    "Access check duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "docvault_access_check_cache_hits_total",
				Help: "Total number of access checks answered from the decision cache",
			},
		),
		GrantsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "docvault_acl_grants_total",
				Help: "Total number of ACL permission grants",
			},
		),
		RevokesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "docvault_acl_revokes_total",
				Help: "Total number of ACL permission revocations",
			},
		),
	}

	if registry != nil {
		registry.MustRegister(
			m.ChecksTotal,
			m.CheckDuration,
			m.CacheHitsTotal,
			m.GrantsTotal,
			m.RevokesTotal,
		)
	}
	return m
}
