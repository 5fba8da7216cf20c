package alert

import (
	"context"

	"netwatch/internal/model"

	"github.com/sirupsen/logrus"
)

// AsyncNotifier hands alerts to a slow notifier on its own goroutine so the
// pipeline consumer never waits on network I/O. Alerts are dropped when the
// buffer is full.
type AsyncNotifier struct {
	name   string
	next   Notifier
	queue  chan model.Alert
	logger *logrus.Logger
}

func NewAsyncNotifier(name string, next Notifier, buffer int, logger *logrus.Logger) *AsyncNotifier {
	if buffer <= 0 {
		buffer = 100
	}
	return &AsyncNotifier{
		name:   name,
		next:   next,
		queue:  make(chan model.Alert, buffer),
		logger: logger,
	}
}

// SendAlert implements Notifier interface - enqueues without blocking
func (an *AsyncNotifier) SendAlert(alert model.Alert) error {
	select {
	case an.queue <- alert:
	default:
		an.logger.Warnf("%s notifier queue is full, dropping alert sid=%s", an.name, alert.Sid)
	}
	return nil
}

// Run delivers queued alerts until ctx is cancelled
func (an *AsyncNotifier) Run(ctx context.Context) {
	for {
		select {
		case alert := <-an.queue:
			if err := an.next.SendAlert(alert); err != nil {
				an.logger.Errorf("%s notifier failed: %v", an.name, err)
			}
		case <-ctx.Done():
			return
		}
	}
}
