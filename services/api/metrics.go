package api

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"curry2cakes/pkg/invite"
)

type metrics struct {
	requests    *prometheus.CounterVec
	redemptions *prometheus.CounterVec
	invites     *statsCollector
}

func newMetrics(registry *invite.Registry) *metrics {
	return &metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "curry2cakes",
			Name:      "invite_requests_total",
			Help:      "Invite code requests by result.",
		}, []string{"result"}),
		redemptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "curry2cakes",
			Name:      "invite_redemptions_total",
			Help:      "Invite code redemptions by result.",
		}, []string{"result"}),
		invites: &statsCollector{
			registry: registry,
			desc: prometheus.NewDesc(
				"curry2cakes_invites",
				"Invite codes currently held by the registry, by state.",
				[]string{"state"}, nil,
			),
		},
	}
}

func (m *metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.requests, m.redemptions, m.invites}
}

// statsCollector reads registry statistics at scrape time.
type statsCollector struct {
	registry *invite.Registry
	desc     *prometheus.Desc
}

func (c *statsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

func (c *statsCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.registry.Stats()
	for state, v := range map[string]int{
		"total":   s.Total,
		"used":    s.Used,
		"expired": s.Expired,
		"active":  s.Active,
	} {
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, float64(v), state)
	}
}

// resultLabel classifies a registry error for metrics and audit rows.
func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, invite.ErrInvalidEmail):
		return "invalid_email"
	case errors.Is(err, invite.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, invite.ErrDispatchFailed):
		return "dispatch_failed"
	case errors.Is(err, invite.ErrNotFound):
		return "not_found"
	case errors.Is(err, invite.ErrAlreadyUsed):
		return "already_used"
	case errors.Is(err, invite.ErrExpired):
		return "expired"
	default:
		return "internal"
	}
}
