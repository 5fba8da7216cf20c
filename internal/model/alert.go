package model

import "time"

// Anomaly severities and types produced by the behavioral detector
const (
	AnomalyUnusualPort   = "unusual_port"
	AnomalyLargeTransfer = "large_transfer"

	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// Anomaly describes one behavioral deviation observed on a packet
type Anomaly struct {
	Type        string `json:"type"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
}

// Alert is the record produced for every rule match. Until it passes through
// the correlator, Escalated and ThreatScore are zero.
type Alert struct {
	ID          string    `json:"id,omitempty"`
	Msg         string    `json:"msg"`
	Sid         string    `json:"sid"`
	Src         string    `json:"src"`
	Dst         string    `json:"dst"`
	SrcPort     *uint16   `json:"sport"`
	DstPort     *uint16   `json:"dport"`
	Proto       string    `json:"proto"`
	Timestamp   time.Time `json:"timestamp"`
	PacketSize  int       `json:"packet_size"`
	RuleClass   string    `json:"rule_class"`
	Anomalies   []Anomaly `json:"behavioral_anomalies"`
	Escalated   bool      `json:"escalated"`
	ThreatScore int       `json:"threat_score"`
	// Domain is carried from the packet for optional domain correlation
	Domain string `json:"domain,omitempty"`
}

// Severity buckets the threat score the same way the console colors it
func (a Alert) Severity() string {
	switch {
	case a.ThreatScore > 100:
		return "HIGH"
	case a.ThreatScore > 50:
		return "MEDIUM"
	default:
		return "LOW"
	}
}

// Stats is the read-only statistics surface exposed to collaborators
type Stats struct {
	RulesLoaded      int   `json:"rules_loaded"`
	AlertHistorySize int   `json:"alert_history_size"`
	MaliciousIPs     int   `json:"malicious_ips"`
	MaliciousDomains int   `json:"malicious_domains"`
	MaliciousHashes  int   `json:"malicious_hashes"`
	TrafficVolume    int64 `json:"traffic_volume"`
	PacketsProcessed int64 `json:"packets_processed"`
	AlertsEmitted    int64 `json:"alerts_emitted"`
	PacketsDropped   int64 `json:"packets_dropped"`
	TrackedPorts     int   `json:"tracked_ports"`
	ScoredAddresses  int   `json:"scored_addresses"`
}
