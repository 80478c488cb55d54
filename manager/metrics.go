package manager

import (
	"github.com/oraqon/dp-aero-L2/metric"
	"github.com/prometheus/client_golang/prometheus"
)

const metricsService = "fusion-manager"

// managerMetrics mirrors the manager's counters into Prometheus.
type managerMetrics struct {
	processed  prometheus.Counter
	sent       prometheus.Counter
	dropped    prometheus.Counter
	serdeError prometheus.Counter
	duplicates prometheus.Counter
	queueDepth prometheus.Gauge
	activeNode prometheus.Gauge
}

func newManagerMetrics(registry *metric.MetricsRegistry) (*managerMetrics, error) {
	m := &managerMetrics{
		processed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "l2_messages_processed_total",
			Help: "Messages successfully processed by the algorithm",
		}),
		sent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "l2_messages_sent_total",
			Help: "Messages successfully published to L1",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "l2_messages_dropped_total",
			Help: "Inbound messages dropped by queue overflow",
		}),
		serdeError: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "l2_serialization_errors_total",
			Help: "Inbound payloads dropped as undecodable",
		}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "l2_duplicate_messages_total",
			Help: "Inbound messages dropped as replayed ids",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "l2_inbound_queue_depth",
			Help: "Current inbound queue depth",
		}),
		activeNode: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "l2_active_nodes",
			Help: "L1 nodes seen within the node timeout",
		}),
	}

	for name, c := range map[string]prometheus.Counter{
		"l2_messages_processed_total":   m.processed,
		"l2_messages_sent_total":        m.sent,
		"l2_messages_dropped_total":     m.dropped,
		"l2_serialization_errors_total": m.serdeError,
		"l2_duplicate_messages_total":   m.duplicates,
	} {
		if err := registry.RegisterCounter(metricsService, name, c); err != nil {
			return nil, err
		}
	}
	if err := registry.RegisterGauge(metricsService, "l2_inbound_queue_depth", m.queueDepth); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(metricsService, "l2_active_nodes", m.activeNode); err != nil {
		return nil, err
	}
	return m, nil
}
