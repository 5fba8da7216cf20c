package pipeline

import (
	"context"
	"sync/atomic"
	"time"

	"netwatch/internal/baseline"
	"netwatch/internal/client"
	"netwatch/internal/correlator"
	"netwatch/internal/intel"
	"netwatch/internal/model"
	"netwatch/internal/rules"

	"github.com/sirupsen/logrus"
)

// Processor owns all mutable detection state and runs each packet through
// baseline update, anomaly detection, rule matching and correlation.
// Process must be called from a single goroutine.
type Processor struct {
	engine     *rules.Engine
	baseline   *baseline.Baseline
	detector   *baseline.Detector
	correlator *correlator.Correlator
	intel      *intel.Store
	metrics    *client.PrometheusMetrics
	logger     *logrus.Logger

	// packetTime is the timestamp of the packet in flight when the capture
	// clock is enabled
	packetTime time.Time

	packets atomic.Int64
	alerts  atomic.Int64
	dropped atomic.Int64
}

// NewProcessor creates a new processor instance
func NewProcessor(engine *rules.Engine, b *baseline.Baseline, detector *baseline.Detector, corr *correlator.Correlator, store *intel.Store, logger *logrus.Logger) *Processor {
	return &Processor{
		engine:     engine,
		baseline:   b,
		detector:   detector,
		correlator: corr,
		intel:      store,
		logger:     logger,
	}
}

// SetMetrics attaches Prometheus metrics; nil disables recording
func (p *Processor) SetMetrics(metrics *client.PrometheusMetrics) {
	p.metrics = metrics
}

// UseCaptureClock makes alert timestamps and the correlation window follow
// packet timestamps instead of the wall clock. Packets without a timestamp
// fall back to the wall clock.
func (p *Processor) UseCaptureClock() {
	p.engine.SetClock(p.captureNow)
	p.correlator.SetClock(p.captureNow)
}

func (p *Processor) captureNow() time.Time {
	if p.packetTime.IsZero() {
		return time.Now()
	}
	return p.packetTime
}

// Process runs one packet through the whole pipeline and returns the emitted alerts
func (p *Processor) Process(ctx context.Context, pkt *model.PacketDescriptor) []model.Alert {
	if pkt == nil {
		return nil
	}

	start := time.Now()
	p.packets.Add(1)
	p.packetTime = pkt.Timestamp

	p.baseline.Update(pkt)
	anomalies := p.detector.Detect(pkt)

	candidates := p.engine.Evaluate(ctx, pkt, anomalies)

	var alerts []model.Alert
	for _, candidate := range candidates {
		alert := p.correlator.Correlate(candidate)
		alerts = append(alerts, alert)

		p.alerts.Add(1)
		if p.metrics != nil {
			p.metrics.RecordAlert(alert)
		}
		p.engine.EmitAlert(alert)
	}

	if p.metrics != nil {
		p.metrics.RecordPacket(pkt, anomalies, time.Since(start).Seconds())
		p.metrics.AlertHistory.Set(float64(p.correlator.HistorySize()))
	}

	return alerts
}

// Run is the single pipeline consumer. It blocks waiting for packets and
// returns when in is closed or ctx is cancelled. A packet that has been
// dequeued is always processed to completion before a stop is honored.
func (p *Processor) Run(ctx context.Context, in <-chan *model.PacketDescriptor) error {
	p.logger.Info("Detection pipeline started")
	defer p.logger.Info("Detection pipeline stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case pkt, ok := <-in:
			if !ok {
				return nil
			}
			p.Process(context.WithoutCancel(ctx), pkt)
		}
	}
}

// RecordDrop counts a packet the producer could not enqueue
func (p *Processor) RecordDrop(source string) {
	p.dropped.Add(1)
	if p.metrics != nil {
		p.metrics.RecordDrop(source)
	}
}

// Stats returns a read-only snapshot for collaborators
func (p *Processor) Stats() model.Stats {
	counts := p.intel.Counts()
	snapshot := p.baseline.Snapshot()

	return model.Stats{
		RulesLoaded:      p.engine.Store().Len(),
		AlertHistorySize: p.correlator.HistorySize(),
		MaliciousIPs:     counts.IPs,
		MaliciousDomains: counts.Domains,
		MaliciousHashes:  counts.Hashes,
		TrafficVolume:    snapshot.TrafficVolume,
		PacketsProcessed: p.packets.Load(),
		AlertsEmitted:    p.alerts.Load(),
		PacketsDropped:   p.dropped.Load(),
		TrackedPorts:     len(snapshot.Ports),
		ScoredAddresses:  len(p.correlator.Scores()),
	}
}

func (p *Processor) Baseline() *baseline.Baseline {
	return p.baseline
}

func (p *Processor) Correlator() *correlator.Correlator {
	return p.correlator
}

func (p *Processor) Intel() *intel.Store {
	return p.intel
}

func (p *Processor) Engine() *rules.Engine {
	return p.engine
}
