package rules

import (
	"context"
	"strings"
	"sync"
	"time"

	"netwatch/internal/model"

	"github.com/sirupsen/logrus"
)

type Engine struct {
	store          *Store
	alertNotifiers []NotifierInterface
	logger         *logrus.Logger
	mu             sync.RWMutex
	alertChannel   chan model.Alert
	now            func() time.Time
}

type NotifierInterface interface {
	SendAlert(alert model.Alert) error
}

func NewEngine(store *Store, logger *logrus.Logger) *Engine {
	if store == nil {
		store = NewStore(nil)
	}
	return &Engine{
		store:          store,
		alertNotifiers: make([]NotifierInterface, 0),
		logger:         logger,
		alertChannel:   make(chan model.Alert, 100),
		now:            time.Now,
	}
}

// SetClock replaces the time source used to stamp alert candidates
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

func (e *Engine) Store() *Store {
	return e.store
}

func (e *Engine) RegisterNotifier(notifier NotifierInterface) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.alertNotifiers = append(e.alertNotifiers, notifier)
}

// Evaluate matches one packet against every loaded rule and returns an alert
// candidate per matching rule. All rules are evaluated; there is no first-match
// short circuit.
func (e *Engine) Evaluate(ctx context.Context, pkt *model.PacketDescriptor, anomalies []model.Anomaly) []model.Alert {
	if pkt == nil || !pkt.HasNetwork {
		return nil
	}

	var (
		alerts  []model.Alert
		decoded *string
	)

	rules := e.store.Rules()
	for i := range rules {
		rule := &rules[i]

		if !transportMatches(rule.Protocol, pkt.Transport) {
			continue
		}

		if rule.Options.Content != nil {
			if decoded == nil {
				s := decodePayload(pkt.Payload)
				decoded = &s
			}
			if !strings.Contains(*decoded, *rule.Options.Content) {
				continue
			}
		}

		if rule.Options.Dsize != nil && (pkt.LengthUnknown || !rule.Options.Dsize.Allows(pkt.Length)) {
			continue
		}

		alerts = append(alerts, model.Alert{
			Msg:        rule.MsgOrDefault(),
			Sid:        rule.SidOrDefault(),
			Src:        pkt.SrcIP,
			Dst:        pkt.DstIP,
			SrcPort:    pkt.SrcPort,
			DstPort:    pkt.DstPort,
			Proto:      rule.Protocol,
			Timestamp:  e.now(),
			PacketSize: pkt.Length,
			RuleClass:  rule.ClasstypeOrDefault(),
			Anomalies:  anomalies,
			Domain:     pkt.Domain,
		})
	}

	return alerts
}

// transportMatches applies the protocol gate: tcp and udp rules need that
// transport, anything else is evaluated against all packets.
func transportMatches(protocol string, transport model.Transport) bool {
	switch strings.ToLower(protocol) {
	case "tcp":
		return transport == model.Transport_TCP
	case "udp":
		return transport == model.Transport_UDP
	default:
		return true
	}
}

// decodePayload decodes the payload as UTF-8 and silently drops invalid bytes
func decodePayload(payload []byte) string {
	return strings.ToValidUTF8(string(payload), "")
}

func (e *Engine) EmitAlert(alert model.Alert) {
	select {
	case e.alertChannel <- alert:
	default:
		e.logger.Debug("Alert channel is full, dropping alert from channel")
	}

	e.mu.RLock()
	notifiers := make([]NotifierInterface, len(e.alertNotifiers))
	copy(notifiers, e.alertNotifiers)
	e.mu.RUnlock()

	for _, notifier := range notifiers {
		if err := notifier.SendAlert(alert); err != nil {
			e.logger.Errorf("Failed to send alert: %v", err)
		}
	}
}

func (e *Engine) GetAlertChannel() <-chan model.Alert {
	return e.alertChannel
}
