package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"netwatch/internal/api/storage"
	"netwatch/internal/model"
	"netwatch/internal/pipeline"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

type Handlers struct {
	store     *storage.Storage
	processor *pipeline.Processor
	logger    *logrus.Logger
	upgrader  websocket.Upgrader
}

func NewHandlers(store *storage.Storage, processor *pipeline.Processor, logger *logrus.Logger) *Handlers {
	return &Handlers{
		store:     store,
		processor: processor,
		logger:    logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				logger.Debugf("WebSocket origin check: %s", r.Header.Get("Origin"))
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Routes registers every endpoint on router
func (h *Handlers) Routes(router *mux.Router) {
	api := router.PathPrefix("/api/v1").Subrouter()

	// Alerts endpoints
	api.HandleFunc("/alerts/timeline", h.GetAlertsTimeline).Methods("GET")
	api.HandleFunc("/stream/alerts", h.StreamAlerts).Methods("GET")
	api.HandleFunc("/alerts", h.GetAlerts).Methods("GET")
	api.HandleFunc("/alerts/{id}", h.GetAlert).Methods("GET")

	// Rules endpoints
	api.HandleFunc("/rules", h.GetRules).Methods("GET")
	api.HandleFunc("/rules/{sid}", h.GetRule).Methods("GET")

	// Engine state
	api.HandleFunc("/stats", h.GetStats).Methods("GET")
	api.HandleFunc("/baseline", h.GetBaseline).Methods("GET")
	api.HandleFunc("/scores", h.GetScores).Methods("GET")
	api.HandleFunc("/threat-intel", h.GetThreatIntel).Methods("GET")
	api.HandleFunc("/threat-intel/lookup", h.LookupThreatIntel).Methods("GET")

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}).Methods("GET", "OPTIONS")
}

// Alerts handlers
func (h *Handlers) GetAlerts(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 {
		limit = 50
	}
	if limit > 1000 {
		limit = 1000
	}

	filter := alertFilter(r)
	search := r.URL.Query().Get("search")

	alerts := h.store.GetAlerts(limit, filter, search)

	response := map[string]interface{}{
		"items": alerts,
		"total": len(alerts),
	}

	writeJSON(w, http.StatusOK, response)
}

func (h *Handlers) GetAlert(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	alert := h.store.GetAlertByID(id)
	if alert == nil {
		writeError(w, http.StatusNotFound, "Alert not found")
		return
	}

	writeJSON(w, http.StatusOK, alert)
}

func (h *Handlers) GetAlertsTimeline(w http.ResponseWriter, r *http.Request) {
	var start, end time.Time
	var err error

	if s := r.URL.Query().Get("start"); s != "" {
		start, err = time.Parse(time.RFC3339, s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid start time format")
			return
		}
	}

	if s := r.URL.Query().Get("end"); s != "" {
		end, err = time.Parse(time.RFC3339, s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid end time format")
			return
		}
	}

	writeJSON(w, http.StatusOK, h.store.GetAlertsTimeline(start, end))
}

func (h *Handlers) StreamAlerts(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Errorf("WebSocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	sub := &storage.AlertSubscriber{
		ID:      uuid.NewString(),
		Channel: make(chan model.Alert, 100),
		Filter:  alertFilter(r),
	}

	h.store.SubscribeAlerts(sub)
	defer h.store.UnsubscribeAlerts(sub)

	h.logger.Infof("WebSocket alert stream %s opened from %s", sub.ID, r.RemoteAddr)

	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteJSON(map[string]string{"type": "connected", "id": sub.ID}); err != nil {
		h.logger.Errorf("Failed to send initial message: %v", err)
		return
	}

	done := make(chan struct{})
	var once sync.Once
	closeDone := func() { once.Do(func() { close(done) }) }

	// Read messages so pongs and close frames are processed
	go func() {
		defer closeDone()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	pingTicker := time.NewTicker(30 * time.Second)
	defer pingTicker.Stop()

	for {
		select {
		case <-done:
			h.logger.Debugf("WebSocket alert stream %s closed", sub.ID)
			return
		case alert, ok := <-sub.Channel:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(alert); err != nil {
				h.logger.Debugf("WebSocket write error: %v", err)
				return
			}
		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
				h.logger.Debugf("Ping failed: %v", err)
				return
			}
		}
	}
}

// Rules handlers
func (h *Handlers) GetRules(w http.ResponseWriter, r *http.Request) {
	rules := h.processor.Engine().Store().Rules()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": rules,
		"total": len(rules),
	})
}

func (h *Handlers) GetRule(w http.ResponseWriter, r *http.Request) {
	sid := mux.Vars(r)["sid"]

	rule, ok := h.processor.Engine().Store().BySid(sid)
	if !ok {
		writeError(w, http.StatusNotFound, "Rule not found")
		return
	}

	writeJSON(w, http.StatusOK, rule)
}

// Engine state handlers
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"engine":          h.processor.Stats(),
		"stored_alerts":   h.store.Len(),
		"severity_counts": h.store.SeverityCounts(),
	})
}

func (h *Handlers) GetBaseline(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.processor.Baseline().Snapshot())
}

func (h *Handlers) GetScores(w http.ResponseWriter, r *http.Request) {
	top, _ := strconv.Atoi(r.URL.Query().Get("top"))
	if top < 1 {
		top = 20
	}

	if ip := r.URL.Query().Get("ip"); ip != "" {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"ip":    ip,
			"score": h.processor.Correlator().Score(ip),
		})
		return
	}

	writeJSON(w, http.StatusOK, h.processor.Correlator().TopScores(top))
}

func (h *Handlers) GetThreatIntel(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.processor.Intel().Counts())
}

func (h *Handlers) LookupThreatIntel(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ip, domain, hash := q.Get("ip"), q.Get("domain"), q.Get("hash")
	if ip == "" && domain == "" && hash == "" {
		writeError(w, http.StatusBadRequest, "One of ip, domain or hash is required")
		return
	}

	store := h.processor.Intel()
	result := map[string]interface{}{}
	if ip != "" {
		result["ip"] = ip
		result["malicious_ip"] = store.IsMaliciousIP(ip)
	}
	if domain != "" {
		result["domain"] = domain
		result["malicious_domain"] = store.IsMaliciousDomain(domain)
	}
	if hash != "" {
		result["hash"] = hash
		result["malicious_hash"] = store.IsMaliciousHash(hash)
	}
	result["score"] = store.Score(ip, domain)

	writeJSON(w, http.StatusOK, result)
}

func alertFilter(r *http.Request) storage.AlertFilter {
	q := r.URL.Query()
	escalated, _ := strconv.ParseBool(q.Get("escalated"))
	return storage.AlertFilter{
		Severity:  q.Get("severity"),
		Sid:       q.Get("sid"),
		Escalated: escalated,
	}
}

// Helper functions
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}
