package baseline

import (
	"fmt"
	"sync"

	"netwatch/internal/model"
)

const (
	DefaultUnusualPortThreshold = 5
	DefaultLargeTransferBytes   = 1000000
)

// Baseline accumulates the per-port, per-protocol and volume counters that
// define normal traffic. The pipeline consumer is the only writer; the lock
// exists so statistics readers can take snapshots.
type Baseline struct {
	mu            sync.RWMutex
	ports         map[uint16]int64
	protocols     map[string]int64
	trafficVolume int64
	packets       int64
}

// Snapshot is a point-in-time copy of the baseline counters
type Snapshot struct {
	Ports         map[uint16]int64 `json:"ports"`
	Protocols     map[string]int64 `json:"protocols"`
	TrafficVolume int64            `json:"traffic_volume"`
	Packets       int64            `json:"packets"`
}

func New() *Baseline {
	return &Baseline{
		ports:     make(map[uint16]int64),
		protocols: make(map[string]int64),
	}
}

// Update records one packet. It runs for every packet before anomaly
// detection, whether or not any rule matches.
func (b *Baseline) Update(pkt *model.PacketDescriptor) {
	if pkt == nil || !pkt.HasNetwork {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if pkt.SrcPort != nil {
		b.ports[*pkt.SrcPort]++
	}
	if pkt.DstPort != nil {
		b.ports[*pkt.DstPort]++
	}

	switch pkt.Transport {
	case model.Transport_TCP, model.Transport_UDP:
		b.protocols[pkt.Transport.String()]++
	}

	b.trafficVolume += int64(pkt.Length)
	b.packets++
}

// PortCount returns how many times a port was observed as source or destination
func (b *Baseline) PortCount(port uint16) int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.ports[port]
}

func (b *Baseline) ProtocolCount(protocol string) int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.protocols[protocol]
}

func (b *Baseline) TrafficVolume() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.trafficVolume
}

func (b *Baseline) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	s := Snapshot{
		Ports:         make(map[uint16]int64, len(b.ports)),
		Protocols:     make(map[string]int64, len(b.protocols)),
		TrafficVolume: b.trafficVolume,
		Packets:       b.packets,
	}
	for k, v := range b.ports {
		s.Ports[k] = v
	}
	for k, v := range b.protocols {
		s.Protocols[k] = v
	}
	return s
}

// Detector flags packets that deviate from the baseline
type Detector struct {
	baseline             *Baseline
	unusualPortThreshold int64
	largeTransferBytes   int
}

func NewDetector(b *Baseline, unusualPortThreshold, largeTransferBytes int) *Detector {
	if unusualPortThreshold <= 0 {
		unusualPortThreshold = DefaultUnusualPortThreshold
	}
	if largeTransferBytes <= 0 {
		largeTransferBytes = DefaultLargeTransferBytes
	}
	return &Detector{
		baseline:             b,
		unusualPortThreshold: int64(unusualPortThreshold),
		largeTransferBytes:   largeTransferBytes,
	}
}

// Detect reads the current baseline and reports anomalies for pkt.
// A port seen fewer than the threshold number of times is always unusual,
// including the first packets on any port.
func (d *Detector) Detect(pkt *model.PacketDescriptor) []model.Anomaly {
	var anomalies []model.Anomaly
	if pkt == nil || !pkt.HasNetwork {
		return anomalies
	}

	if pkt.DstPort != nil {
		port := *pkt.DstPort
		if d.baseline.PortCount(port) < d.unusualPortThreshold {
			anomalies = append(anomalies, model.Anomaly{
				Type:        model.AnomalyUnusualPort,
				Severity:    model.SeverityMedium,
				Description: fmt.Sprintf("Unusual port %d usage detected", port),
			})
		}
	}

	if pkt.Length > d.largeTransferBytes {
		anomalies = append(anomalies, model.Anomaly{
			Type:        model.AnomalyLargeTransfer,
			Severity:    model.SeverityHigh,
			Description: fmt.Sprintf("Large data transfer detected: %d bytes", pkt.Length),
		})
	}

	return anomalies
}
