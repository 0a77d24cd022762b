package manager

import "github.com/prometheus/client_golang/prometheus"

// metricsCollector exports the manager's atomic Statistics (and, when a
// bus is configured, its counters) as Prometheus counters, with the
// in-flight key count as a gauge. This is an
// additive observability surface over the required in-process atomics,
// not a replacement for them.
type metricsCollector struct {
	m *Manager

	totalRequests   *prometheus.Desc
	l1Hits          *prometheus.Desc
	l2Hits          *prometheus.Desc
	misses          *prometheus.Desc
	promotions      *prometheus.Desc
	inFlight        *prometheus.Desc
	busMessagesSent *prometheus.Desc
	busMessagesRecv *prometheus.Desc
	busErrors       *prometheus.Desc
}

func newMetricsCollector(m *Manager) *metricsCollector {
	ns := "tiercache"
	return &metricsCollector{
		m:               m,
		totalRequests:   prometheus.NewDesc(ns+"_total_requests", "Total cache requests observed.", nil, nil),
		l1Hits:          prometheus.NewDesc(ns+"_l1_hits", "Top-tier cache hits.", nil, nil),
		l2Hits:          prometheus.NewDesc(ns+"_l2_hits", "Lower-tier cache hits.", nil, nil),
		misses:          prometheus.NewDesc(ns+"_misses", "Cache misses across every tier.", nil, nil),
		promotions:      prometheus.NewDesc(ns+"_promotions", "Values promoted to faster tiers on hit.", nil, nil),
		inFlight:        prometheus.NewDesc(ns+"_in_flight_requests", "Keys currently coalesced behind a miss path.", nil, nil),
		busMessagesSent: prometheus.NewDesc(ns+"_bus_messages_sent", "Invalidation bus messages published.", nil, nil),
		busMessagesRecv: prometheus.NewDesc(ns+"_bus_messages_received", "Invalidation bus messages received.", nil, nil),
		busErrors:       prometheus.NewDesc(ns+"_bus_processing_errors", "Invalidation bus message processing errors.", nil, nil),
	}
}

func (c *metricsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.totalRequests
	ch <- c.l1Hits
	ch <- c.l2Hits
	ch <- c.misses
	ch <- c.promotions
	ch <- c.inFlight
	ch <- c.busMessagesSent
	ch <- c.busMessagesRecv
	ch <- c.busErrors
}

func (c *metricsCollector) Collect(ch chan<- prometheus.Metric) {
	snap := c.m.Stats()

	ch <- prometheus.MustNewConstMetric(c.totalRequests, prometheus.CounterValue, float64(snap.TotalRequests))
	ch <- prometheus.MustNewConstMetric(c.l1Hits, prometheus.CounterValue, float64(snap.L1Hits))
	ch <- prometheus.MustNewConstMetric(c.l2Hits, prometheus.CounterValue, float64(snap.L2Hits))
	ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(snap.Misses))
	ch <- prometheus.MustNewConstMetric(c.promotions, prometheus.CounterValue, float64(snap.Promotions))
	ch <- prometheus.MustNewConstMetric(c.inFlight, prometheus.GaugeValue, float64(snap.InFlightRequests))

	if snap.Bus != nil {
		ch <- prometheus.MustNewConstMetric(c.busMessagesSent, prometheus.CounterValue, float64(snap.Bus.MessagesSent.Load()))
		ch <- prometheus.MustNewConstMetric(c.busMessagesRecv, prometheus.CounterValue, float64(snap.Bus.MessagesReceived.Load()))
		ch <- prometheus.MustNewConstMetric(c.busErrors, prometheus.CounterValue, float64(snap.Bus.ProcessingErrors.Load()))
	}
}

// RegisterMetrics registers m's statistics as a Prometheus collector on
// reg. Calling this is optional; the manager functions fully without it.
func (m *Manager) RegisterMetrics(reg *prometheus.Registry) error {
	return reg.Register(newMetricsCollector(m))
}
