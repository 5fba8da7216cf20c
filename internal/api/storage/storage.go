package storage

import (
	"strings"
	"sync"
	"time"

	"netwatch/internal/model"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const DefaultMaxAlerts = 10000

// Storage keeps the most recent correlated alerts in memory and fans them out
// to live subscribers. It implements the engine notifier interface.
type Storage struct {
	mu          sync.RWMutex
	alerts      []model.Alert
	maxAlerts   int
	logger      *logrus.Logger
	alertSubs   map[*AlertSubscriber]bool
	alertSubsMu sync.RWMutex
}

type AlertSubscriber struct {
	ID      string
	Channel chan model.Alert
	Filter  AlertFilter
}

type AlertFilter struct {
	Severity  string
	Sid       string
	Escalated bool
}

func (f AlertFilter) matches(alert model.Alert) bool {
	if f.Severity != "" && !strings.EqualFold(alert.Severity(), f.Severity) {
		return false
	}
	if f.Sid != "" && alert.Sid != f.Sid {
		return false
	}
	if f.Escalated && !alert.Escalated {
		return false
	}
	return true
}

func NewStorage(maxAlerts int, logger *logrus.Logger) *Storage {
	if maxAlerts <= 0 {
		maxAlerts = DefaultMaxAlerts
	}
	return &Storage{
		alerts:    make([]model.Alert, 0),
		maxAlerts: maxAlerts,
		logger:    logger,
		alertSubs: make(map[*AlertSubscriber]bool),
	}
}

// SendAlert implements Notifier interface - stores the alert
func (s *Storage) SendAlert(alert model.Alert) error {
	s.AddAlert(alert)
	return nil
}

func (s *Storage) AddAlert(alert model.Alert) model.Alert {
	s.mu.Lock()

	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now()
	}

	s.alerts = append(s.alerts, alert)

	if len(s.alerts) > s.maxAlerts {
		s.alerts = s.alerts[len(s.alerts)-s.maxAlerts:]
	}

	s.mu.Unlock()

	s.notifySubscribers(alert)
	return alert
}

// GetAlerts returns up to limit alerts, newest first
func (s *Storage) GetAlerts(limit int, filter AlertFilter, search string) []model.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.Alert, 0)
	search = strings.ToLower(search)

	for i := len(s.alerts) - 1; i >= 0 && len(result) < limit; i-- {
		alert := s.alerts[i]

		if !filter.matches(alert) {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(alert.Msg), search) {
			continue
		}

		result = append(result, alert)
	}

	return result
}

func (s *Storage) GetAlertByID(id string) *model.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.alerts {
		if s.alerts[i].ID == id {
			alert := s.alerts[i]
			return &alert
		}
	}
	return nil
}

func (s *Storage) GetAlertsTimeline(start, end time.Time) []model.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.Alert, 0)
	for i := range s.alerts {
		alert := s.alerts[i]
		if (start.IsZero() || !alert.Timestamp.Before(start)) &&
			(end.IsZero() || !alert.Timestamp.After(end)) {
			result = append(result, alert)
		}
	}
	return result
}

func (s *Storage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.alerts)
}

// SeverityCounts buckets every stored alert by severity
func (s *Storage) SeverityCounts() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := map[string]int{"HIGH": 0, "MEDIUM": 0, "LOW": 0}
	for i := range s.alerts {
		counts[s.alerts[i].Severity()]++
	}
	return counts
}

// Subscriber methods
func (s *Storage) SubscribeAlerts(sub *AlertSubscriber) {
	s.alertSubsMu.Lock()
	defer s.alertSubsMu.Unlock()
	s.alertSubs[sub] = true
}

func (s *Storage) UnsubscribeAlerts(sub *AlertSubscriber) {
	s.alertSubsMu.Lock()
	defer s.alertSubsMu.Unlock()
	if _, ok := s.alertSubs[sub]; !ok {
		return
	}
	delete(s.alertSubs, sub)
	close(sub.Channel)
}

func (s *Storage) notifySubscribers(alert model.Alert) {
	s.alertSubsMu.RLock()
	defer s.alertSubsMu.RUnlock()

	for sub := range s.alertSubs {
		if !sub.Filter.matches(alert) {
			continue
		}

		select {
		case sub.Channel <- alert:
		default:
			s.logger.Debugf("Subscriber %s channel full, dropping alert %s", sub.ID, alert.ID)
		}
	}
}
