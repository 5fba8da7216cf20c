package correlator

import (
	"io"
	"strings"
	"testing"
	"time"

	"netwatch/internal/intel"
	"netwatch/internal/model"

	"github.com/sirupsen/logrus"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func newTestCorrelator(store *intel.Store, config Config) (*Correlator, *fakeClock) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewCorrelator(store, config, logger)
	c.SetClock(clock.Now)
	return c, clock
}

func candidate(sid, src, dst string) model.Alert {
	return model.Alert{Msg: "test alert", Sid: sid, Src: src, Dst: dst}
}

func TestEscalation(t *testing.T) {
	c, clock := newTestCorrelator(nil, DefaultConfig())

	for i := 1; i <= 4; i++ {
		a := c.Correlate(candidate("1000", "10.0.0.1", "10.0.0.2"))
		if a.Escalated || a.ThreatScore != 0 || a.Msg != "test alert" {
			t.Fatalf("alert %d escalated early: %+v", i, a)
		}
		clock.Advance(10 * time.Second)
	}

	fifth := c.Correlate(candidate("1000", "10.0.0.1", "10.0.0.2"))
	if !fifth.Escalated {
		t.Fatal("5th alert inside the window must escalate")
	}
	if fifth.ThreatScore != DefaultEscalationBonus {
		t.Errorf("threat_score = %d, want %d", fifth.ThreatScore, DefaultEscalationBonus)
	}
	if !strings.HasPrefix(fifth.Msg, EscalationPrefix) {
		t.Errorf("msg = %q", fifth.Msg)
	}

	// first alert was at t=0; at t=61s the window holds t=10..40 plus the new one
	clock.Advance(21 * time.Second)
	sixth := c.Correlate(candidate("1000", "10.0.0.1", "10.0.0.2"))
	if !sixth.Escalated {
		t.Errorf("window at t=61s still has 5 entries: %d", c.WindowCount("1000"))
	}

	clock.Advance(60 * time.Second)
	late := c.Correlate(candidate("1000", "10.0.0.1", "10.0.0.2"))
	if late.Escalated {
		t.Error("alert after the window aged out must not escalate")
	}
	if c.WindowCount("1000") != 1 {
		t.Errorf("WindowCount = %d, want 1", c.WindowCount("1000"))
	}
}

func TestWindowBoundary(t *testing.T) {
	c, clock := newTestCorrelator(nil, Config{EscalationCount: 2})

	c.Correlate(candidate("7", "a", "b"))
	clock.Advance(DefaultWindow)
	if a := c.Correlate(candidate("7", "a", "b")); a.Escalated {
		t.Error("an entry exactly one window old is pruned")
	}

	clock.Advance(DefaultWindow - time.Second)
	if a := c.Correlate(candidate("7", "a", "b")); !a.Escalated {
		t.Error("entry younger than the window must count")
	}
}

func TestSidsAreIndependent(t *testing.T) {
	c, _ := newTestCorrelator(nil, Config{EscalationCount: 2})

	c.Correlate(candidate("1", "a", "b"))
	if a := c.Correlate(candidate("2", "a", "b")); a.Escalated {
		t.Error("different sids must not share history")
	}
	if a := c.Correlate(candidate("", "a", "b")); a.Sid != model.DefaultSid {
		t.Errorf("empty sid = %q", a.Sid)
	}
	if c.HistorySize() != 3 {
		t.Errorf("HistorySize() = %d, want 3", c.HistorySize())
	}
}

func TestThreatScoring(t *testing.T) {
	store := intel.NewStore([]string{"203.0.113.66", "198.51.100.23"}, []string{"evil.example"}, nil)
	c, _ := newTestCorrelator(store, Config{EscalationCount: 100})

	tests := []struct {
		name string
		src  string
		dst  string
		want int
	}{
		{"clean", "10.0.0.1", "10.0.0.2", 0},
		{"malicious source", "203.0.113.66", "10.0.0.2", 100},
		{"malicious destination", "10.0.0.1", "198.51.100.23", 100},
		{"both malicious", "203.0.113.66", "198.51.100.23", 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := c.Correlate(candidate("1", tt.src, tt.dst))
			if a.ThreatScore != tt.want {
				t.Errorf("threat_score = %d, want %d", a.ThreatScore, tt.want)
			}
		})
	}

	if got := c.Score("203.0.113.66"); got != 300 {
		t.Errorf("Score(203.0.113.66) = %d, want 300", got)
	}
	if got := c.Score("10.0.0.2"); got != 100 {
		t.Errorf("Score(10.0.0.2) = %d, want 100", got)
	}

	top := c.TopScores(2)
	if len(top) != 2 || top[0].IP != "198.51.100.23" || top[1].IP != "203.0.113.66" || top[1].Score != 300 {
		t.Errorf("TopScores(2) = %+v", top)
	}
}

func TestEscalatedScoreIncludesIntel(t *testing.T) {
	store := intel.NewStore([]string{"203.0.113.66"}, nil, nil)
	c, _ := newTestCorrelator(store, Config{EscalationCount: 1, EscalationBonus: DefaultEscalationBonus})

	a := c.Correlate(candidate("1", "203.0.113.66", "10.0.0.2"))
	if !a.Escalated || a.ThreatScore != 150 {
		t.Errorf("alert = %+v, want escalated with score 150", a)
	}
}

func TestEscalationBonusConfig(t *testing.T) {
	tests := []struct {
		name  string
		bonus int
		want  int
	}{
		{"zero disables the bonus", 0, 0},
		{"custom bonus", 25, 25},
		{"negative falls back to default", -1, DefaultEscalationBonus},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestCorrelator(nil, Config{EscalationCount: 1, EscalationBonus: tt.bonus})
			a := c.Correlate(candidate("1", "10.0.0.1", "10.0.0.2"))
			if !a.Escalated || a.ThreatScore != tt.want {
				t.Errorf("alert = %+v, want escalated with score %d", a, tt.want)
			}
		})
	}
}

func TestDomainCorrelation(t *testing.T) {
	store := intel.NewStore(nil, []string{"evil.example"}, nil)

	off, _ := newTestCorrelator(store, Config{EscalationCount: 100})
	a := model.Alert{Sid: "1", Src: "a", Dst: "b", Domain: "evil.example"}
	if got := off.Correlate(a).ThreatScore; got != 0 {
		t.Errorf("domain correlation disabled: score = %d", got)
	}

	on, _ := newTestCorrelator(store, Config{EscalationCount: 100, CorrelateDomains: true})
	if got := on.Correlate(a).ThreatScore; got != 100 {
		t.Errorf("domain correlation enabled: score = %d, want 100", got)
	}
}

func TestScoresAreMonotonic(t *testing.T) {
	store := intel.NewStore([]string{"203.0.113.66"}, nil, nil)
	c, clock := newTestCorrelator(store, Config{})

	pairs := [][2]string{
		{"203.0.113.66", "10.0.0.1"},
		{"10.0.0.1", "10.0.0.9"},
		{"10.0.0.9", "203.0.113.66"},
		{"10.0.0.1", "203.0.113.66"},
	}

	last := map[string]int{}
	for i := 0; i < 20; i++ {
		p := pairs[i%len(pairs)]
		c.Correlate(candidate("5", p[0], p[1]))
		clock.Advance(7 * time.Second)

		for ip, score := range c.Scores() {
			if score < last[ip] {
				t.Fatalf("score for %s decreased from %d to %d", ip, last[ip], score)
			}
			last[ip] = score
		}
	}
}
