package correlator

import (
	"sort"
	"sync"
	"time"

	"netwatch/internal/intel"
	"netwatch/internal/model"

	"github.com/sirupsen/logrus"
)

const (
	DefaultWindow          = 60 * time.Second
	DefaultEscalationCount = 5
	DefaultEscalationBonus = 50
	EscalationPrefix       = "[ESCALATED] "
)

// Config tunes the escalation rule. A zero EscalationBonus disables the bonus;
// use DefaultConfig for the stock values.
type Config struct {
	Window           time.Duration
	EscalationCount  int
	EscalationBonus  int
	CorrelateDomains bool
}

// Correlator turns alert candidates into final alerts. It owns the per-sid
// alert history and the per-address threat score table. Correlate must only be
// called from the pipeline consumer; the lock serves snapshot readers.
type Correlator struct {
	intel   *intel.Store
	config  Config
	logger  *logrus.Logger
	now     func() time.Time
	mu      sync.RWMutex
	history map[string][]time.Time
	scores  map[string]int
}

// AddressScore is one row of the threat score table
type AddressScore struct {
	IP    string `json:"ip"`
	Score int    `json:"score"`
}

func DefaultConfig() Config {
	return Config{
		Window:          DefaultWindow,
		EscalationCount: DefaultEscalationCount,
		EscalationBonus: DefaultEscalationBonus,
	}
}

func NewCorrelator(store *intel.Store, config Config, logger *logrus.Logger) *Correlator {
	if store == nil {
		store = intel.NewStore(nil, nil, nil)
	}
	if config.Window <= 0 {
		config.Window = DefaultWindow
	}
	if config.EscalationCount <= 0 {
		config.EscalationCount = DefaultEscalationCount
	}
	if config.EscalationBonus < 0 {
		config.EscalationBonus = DefaultEscalationBonus
	}
	return &Correlator{
		intel:   store,
		config:  config,
		logger:  logger,
		now:     time.Now,
		history: make(map[string][]time.Time),
		scores:  make(map[string]int),
	}
}

// SetClock replaces the time source used for the sliding window
func (c *Correlator) SetClock(now func() time.Time) {
	c.now = now
}

// Correlate records the candidate in the sid history, scores both endpoints
// against threat intelligence and decides escalation.
func (c *Correlator) Correlate(candidate model.Alert) model.Alert {
	alert := candidate
	sid := alert.Sid
	if sid == "" {
		sid = model.DefaultSid
		alert.Sid = sid
	}

	now := c.now()

	score := c.intel.Score(alert.Src, "") + c.intel.Score(alert.Dst, "")
	if c.config.CorrelateDomains && alert.Domain != "" && c.intel.IsMaliciousDomain(alert.Domain) {
		score += c.intel.Score("", alert.Domain)
	}

	c.mu.Lock()
	window := c.prune(append(c.history[sid], now), now)
	c.history[sid] = window
	c.scores[alert.Src] += score
	c.scores[alert.Dst] += score
	c.mu.Unlock()

	if len(window) >= c.config.EscalationCount {
		alert.Escalated = true
		alert.Msg = EscalationPrefix + alert.Msg
		alert.ThreatScore = score + c.config.EscalationBonus
		c.logger.WithFields(logrus.Fields{
			"sid":    sid,
			"count":  len(window),
			"window": c.config.Window,
		}).Debug("Alert escalated")
	} else {
		alert.Escalated = false
		alert.ThreatScore = score
	}

	return alert
}

// prune keeps the timestamps strictly younger than the window, reusing the slice
func (c *Correlator) prune(timestamps []time.Time, now time.Time) []time.Time {
	kept := timestamps[:0]
	for _, t := range timestamps {
		if now.Sub(t) < c.config.Window {
			kept = append(kept, t)
		}
	}
	return kept
}

// HistorySize returns the number of signature ids with recorded history
func (c *Correlator) HistorySize() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.history)
}

// WindowCount returns how many alerts for sid are currently in the window
func (c *Correlator) WindowCount(sid string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.history[sid])
}

func (c *Correlator) Score(ip string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.scores[ip]
}

// Scores returns a copy of the threat score table
func (c *Correlator) Scores() map[string]int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]int, len(c.scores))
	for ip, score := range c.scores {
		out[ip] = score
	}
	return out
}

// TopScores returns up to n addresses ordered by descending score
func (c *Correlator) TopScores(n int) []AddressScore {
	scores := c.Scores()

	rows := make([]AddressScore, 0, len(scores))
	for ip, score := range scores {
		rows = append(rows, AddressScore{IP: ip, Score: score})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Score != rows[j].Score {
			return rows[i].Score > rows[j].Score
		}
		return rows[i].IP < rows[j].IP
	})

	if n > 0 && len(rows) > n {
		rows = rows[:n]
	}
	return rows
}
