package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"netwatch/internal/model"

	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func sampleAlert() model.Alert {
	return model.Alert{
		Msg:         "[ESCALATED] SQL injection attempt",
		Sid:         "1000001",
		Src:         "203.0.113.66",
		Dst:         "10.0.0.2",
		SrcPort:     model.Port(40000),
		DstPort:     model.Port(80),
		Proto:       "tcp",
		Timestamp:   time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		PacketSize:  420,
		RuleClass:   "web-application-attack",
		Escalated:   true,
		ThreatScore: 150,
		Anomalies: []model.Anomaly{
			{Type: model.AnomalyUnusualPort, Severity: model.SeverityMedium, Description: "Unusual port 80 usage detected"},
		},
	}
}

type bufferCloser struct {
	bytes.Buffer
	closed bool
}

func (b *bufferCloser) Close() error {
	b.closed = true
	return nil
}

func TestFileAlertNotifier(t *testing.T) {
	out := &bufferCloser{}
	notifier := NewWriterAlertNotifier(out, testLogger())

	if err := notifier.SendAlert(sampleAlert()); err != nil {
		t.Fatalf("SendAlert() error = %v", err)
	}
	if err := notifier.SendAlert(model.Alert{Sid: "2", Msg: "second"}); err != nil {
		t.Fatalf("SendAlert() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %q", len(lines), out.String())
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &decoded); err != nil {
		t.Fatalf("line is not JSON: %v", err)
	}
	for key, want := range map[string]interface{}{
		"sid":          "1000001",
		"src":          "203.0.113.66",
		"sport":        float64(40000),
		"dport":        float64(80),
		"proto":        "tcp",
		"rule_class":   "web-application-attack",
		"escalated":    true,
		"threat_score": float64(150),
	} {
		if decoded[key] != want {
			t.Errorf("%s = %v, want %v", key, decoded[key], want)
		}
	}
	if anomalies, ok := decoded["behavioral_anomalies"].([]interface{}); !ok || len(anomalies) != 1 {
		t.Errorf("behavioral_anomalies = %v", decoded["behavioral_anomalies"])
	}

	if err := notifier.Close(); err != nil || !out.closed {
		t.Errorf("Close() = %v, closed = %v", err, out.closed)
	}
}

func TestFileAlertNotifierRotatingFile(t *testing.T) {
	path := t.TempDir() + "/alerts.log"
	notifier := NewFileAlertNotifier(path, 0, 0, testLogger())
	defer notifier.Close()

	if err := notifier.SendAlert(sampleAlert()); err != nil {
		t.Fatalf("SendAlert() error = %v", err)
	}
}

func TestLogAlertNotifier(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})

	if err := NewLogAlertNotifier(logger).SendAlert(sampleAlert()); err != nil {
		t.Fatalf("SendAlert() error = %v", err)
	}

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log entry is not JSON: %v", err)
	}
	if entry["level"] != "warning" || entry["sid"] != "1000001" || entry["src"] != "203.0.113.66:40000" {
		t.Errorf("entry = %v", entry)
	}
	if msg, _ := entry["msg"].(string); !strings.Contains(msg, "ALERT [HIGH]") {
		t.Errorf("msg = %q", msg)
	}
}

type telegramServer struct {
	mu       sync.Mutex
	messages []TelegramMessage
	paths    []string
}

func (s *telegramServer) handler(w http.ResponseWriter, r *http.Request) {
	var msg TelegramMessage
	_ = json.NewDecoder(r.Body).Decode(&msg)

	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.paths = append(s.paths, r.URL.Path)
	s.mu.Unlock()

	_ = json.NewEncoder(w).Encode(TelegramResponse{OK: true})
}

func TestTelegramNotifier(t *testing.T) {
	recorder := &telegramServer{}
	srv := httptest.NewServer(http.HandlerFunc(recorder.handler))
	defer srv.Close()

	tn := NewTelegramNotifier("token123", "42", "Markdown", true, testLogger())
	tn.SetAPIURL(srv.URL + "/")

	if err := tn.SendAlert(sampleAlert()); err != nil {
		t.Fatalf("SendAlert() error = %v", err)
	}

	if len(recorder.messages) != 1 {
		t.Fatalf("got %d messages", len(recorder.messages))
	}
	if recorder.paths[0] != "/bottoken123/sendMessage" {
		t.Errorf("path = %q", recorder.paths[0])
	}
	msg := recorder.messages[0]
	if msg.ChatID != "42" || msg.ParseMode != "" {
		t.Errorf("message = %+v", msg)
	}
	for _, want := range []string{"SQL injection attempt", "sid: 1000001", "threat_score: 150", "203.0.113.66:40000 -> 10.0.0.2:80"} {
		if !strings.Contains(msg.Text, want) {
			t.Errorf("text missing %q: %s", want, msg.Text)
		}
	}
}

func TestTelegramNotifierFilterAndTemplate(t *testing.T) {
	recorder := &telegramServer{}
	srv := httptest.NewServer(http.HandlerFunc(recorder.handler))
	defer srv.Close()

	tn := NewTelegramNotifierWithTemplate("t", "1", "HTML", true, `{{.Sid}} {{.Msg}} {{formatTime .Timestamp "2006"}}`, testLogger())
	tn.SetAPIURL(srv.URL)
	tn.SetFilter(100, true)

	low := sampleAlert()
	low.ThreatScore = 50
	notEscalated := sampleAlert()
	notEscalated.Escalated = false

	for _, a := range []model.Alert{low, notEscalated, sampleAlert()} {
		if err := tn.SendAlert(a); err != nil {
			t.Fatalf("SendAlert() error = %v", err)
		}
	}

	if len(recorder.messages) != 1 {
		t.Fatalf("got %d messages, want 1", len(recorder.messages))
	}
	if got := recorder.messages[0].Text; got != "1000001 [ESCALATED] SQL injection attempt 2024" {
		t.Errorf("text = %q", got)
	}
	if recorder.messages[0].ParseMode != "HTML" {
		t.Errorf("parse_mode = %q", recorder.messages[0].ParseMode)
	}
}

func TestTelegramNotifierDisabled(t *testing.T) {
	tn := NewTelegramNotifier("t", "1", "", false, testLogger())
	tn.SetAPIURL("http://127.0.0.1:1")

	if err := tn.SendAlert(sampleAlert()); err != nil {
		t.Errorf("disabled notifier should not fail: %v", err)
	}
	if err := tn.SendTestMessage(); err == nil {
		t.Error("SendTestMessage on a disabled notifier should fail")
	}
}

type chanNotifier chan model.Alert

func (c chanNotifier) SendAlert(alert model.Alert) error {
	c <- alert
	return nil
}

func TestAsyncNotifier(t *testing.T) {
	delivered := make(chanNotifier, 1)
	async := NewAsyncNotifier("test", delivered, 1, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go async.Run(ctx)

	if err := async.SendAlert(sampleAlert()); err != nil {
		t.Fatalf("SendAlert() error = %v", err)
	}

	select {
	case a := <-delivered:
		if a.Sid != "1000001" {
			t.Errorf("sid = %q", a.Sid)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("alert was not delivered")
	}
}

func TestPrometheusExporterHandler(t *testing.T) {
	exporter, err := NewPrometheusExporterWithCustomRegistry("0", testLogger())
	if err != nil {
		t.Fatalf("NewPrometheusExporterWithCustomRegistry() error = %v", err)
	}
	exporter.GetMetrics().SetRuleCounts(12, 3)
	exporter.GetMetrics().RecordAlert(sampleAlert())

	rec := httptest.NewRecorder()
	exporter.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rec.Body.String()
	for _, want := range []string{
		"netwatch_rules_loaded 12",
		"netwatch_rules_rejected 3",
		`netwatch_alerts_escalated_total{sid="1000001"} 1`,
		"go_goroutines",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
