package alert

import (
	"netwatch/internal/model"

	"github.com/sirupsen/logrus"
)

// LogAlertNotifier sends alerts to local logs
type LogAlertNotifier struct {
	logger *logrus.Logger
}

// NewLogAlertNotifier creates a new log alert notifier
func NewLogAlertNotifier(logger *logrus.Logger) *LogAlertNotifier {
	return &LogAlertNotifier{
		logger: logger,
	}
}

// SendAlert implements Notifier interface - sends alert to logs
func (ln *LogAlertNotifier) SendAlert(alert model.Alert) error {
	entry := ln.logger.WithFields(logrus.Fields{
		"sid":          alert.Sid,
		"src":          endpoint(alert.Src, alert.SrcPort),
		"dst":          endpoint(alert.Dst, alert.DstPort),
		"proto":        alert.Proto,
		"packet_size":  alert.PacketSize,
		"rule_class":   alert.RuleClass,
		"threat_score": alert.ThreatScore,
		"escalated":    alert.Escalated,
		"anomalies":    len(alert.Anomalies),
	})
	entry.Warnf("ALERT [%s] %s", alert.Severity(), alert.Msg)
	return nil
}
