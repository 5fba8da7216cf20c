package client

import (
	"netwatch/internal/model"

	"github.com/prometheus/client_golang/prometheus"
)

type PrometheusMetrics struct {
	// Packet metrics
	PacketsTotal   *prometheus.CounterVec
	PacketBytes    *prometheus.CounterVec
	PacketsDropped *prometheus.CounterVec

	// Detection metrics
	AnomaliesTotal *prometheus.CounterVec
	AlertsTotal    *prometheus.CounterVec
	Escalations    *prometheus.CounterVec
	ThreatScore    *prometheus.HistogramVec

	// State metrics
	RulesLoaded     prometheus.Gauge
	RulesRejected   prometheus.Gauge
	IntelIndicators *prometheus.GaugeVec
	AlertHistory    prometheus.Gauge

	// Performance metrics
	PacketProcessingTime *prometheus.HistogramVec

	// Source errors
	SourceErrors *prometheus.CounterVec
}

func NewPrometheusMetrics() *PrometheusMetrics {
	return &PrometheusMetrics{
		PacketsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "netwatch_packets_total",
				Help: "Total number of packets processed by the detection pipeline",
			},
			[]string{"transport"},
		),
		PacketBytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "netwatch_packet_bytes_total",
				Help: "Total bytes observed by the behavioral baseline",
			},
			[]string{"transport"},
		),
		PacketsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "netwatch_packets_dropped_total",
				Help: "Packets dropped by the producer because the pipeline queue was full",
			},
			[]string{"source"},
		),
		AnomaliesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "netwatch_anomalies_total",
				Help: "Behavioral anomalies detected",
			},
			[]string{"type", "severity"},
		),
		AlertsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "netwatch_alerts_total",
				Help: "Alerts emitted by the correlator",
			},
			[]string{"sid", "rule_class"},
		),
		Escalations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "netwatch_alerts_escalated_total",
				Help: "Alerts escalated by sliding window correlation",
			},
			[]string{"sid"},
		),
		ThreatScore: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "netwatch_alert_threat_score",
				Help:    "Threat score assigned to emitted alerts",
				Buckets: []float64{0, 50, 100, 150, 200, 250, 300},
			},
			[]string{"rule_class"},
		),
		RulesLoaded: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "netwatch_rules_loaded",
				Help: "Number of signatures loaded at startup",
			},
		),
		RulesRejected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "netwatch_rules_rejected",
				Help: "Number of rule lines rejected at startup",
			},
		),
		IntelIndicators: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "netwatch_threat_intel_indicators",
				Help: "Number of loaded threat intelligence indicators",
			},
			[]string{"kind"},
		),
		AlertHistory: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "netwatch_alert_history_sids",
				Help: "Signature ids with correlation history",
			},
		),
		PacketProcessingTime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "netwatch_packet_processing_seconds",
				Help:    "Time spent running one packet through the pipeline",
				Buckets: prometheus.ExponentialBuckets(0.00001, 4, 8),
			},
			[]string{"transport"},
		),
		SourceErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "netwatch_source_errors_total",
				Help: "Errors reported by packet sources",
			},
			[]string{"source", "error_type"},
		),
	}
}

// Collectors lists every metric for registration
func (m *PrometheusMetrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.PacketsTotal,
		m.PacketBytes,
		m.PacketsDropped,
		m.AnomaliesTotal,
		m.AlertsTotal,
		m.Escalations,
		m.ThreatScore,
		m.RulesLoaded,
		m.RulesRejected,
		m.IntelIndicators,
		m.AlertHistory,
		m.PacketProcessingTime,
		m.SourceErrors,
	}
}

// RecordPacket records a packet and its anomalies
func (m *PrometheusMetrics) RecordPacket(pkt *model.PacketDescriptor, anomalies []model.Anomaly, seconds float64) {
	transport := pkt.Transport.String()
	m.PacketsTotal.WithLabelValues(transport).Inc()
	m.PacketBytes.WithLabelValues(transport).Add(float64(pkt.Length))
	m.PacketProcessingTime.WithLabelValues(transport).Observe(seconds)

	for _, a := range anomalies {
		m.AnomaliesTotal.WithLabelValues(a.Type, a.Severity).Inc()
	}
}

// RecordAlert records a correlated alert
func (m *PrometheusMetrics) RecordAlert(alert model.Alert) {
	m.AlertsTotal.WithLabelValues(alert.Sid, alert.RuleClass).Inc()
	m.ThreatScore.WithLabelValues(alert.RuleClass).Observe(float64(alert.ThreatScore))
	if alert.Escalated {
		m.Escalations.WithLabelValues(alert.Sid).Inc()
	}
}

func (m *PrometheusMetrics) RecordDrop(source string) {
	m.PacketsDropped.WithLabelValues(source).Inc()
}

func (m *PrometheusMetrics) RecordSourceError(source, errorType string) {
	m.SourceErrors.WithLabelValues(source, errorType).Inc()
}

func (m *PrometheusMetrics) SetRuleCounts(loaded, rejected int) {
	m.RulesLoaded.Set(float64(loaded))
	m.RulesRejected.Set(float64(rejected))
}

func (m *PrometheusMetrics) SetIntelCounts(ips, domains, hashes int) {
	m.IntelIndicators.WithLabelValues("ip").Set(float64(ips))
	m.IntelIndicators.WithLabelValues("domain").Set(float64(domains))
	m.IntelIndicators.WithLabelValues("hash").Set(float64(hashes))
}
