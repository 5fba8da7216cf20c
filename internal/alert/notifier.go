package alert

import "netwatch/internal/model"

// Notifier receives every finalized alert (the on_alert push interface)
type Notifier interface {
	SendAlert(alert model.Alert) error
}
