// Copyright 2025 James Ross
package livestatus

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/filevault/dedup-backend/internal/config"
	"github.com/filevault/dedup-backend/internal/obs"
	"github.com/filevault/dedup-backend/internal/queue"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// EventType names the terminal-status-shaped message sent alongside every
// job_status_update, so simpler clients can switch on type instead of
// parsing the embedded status.
type EventType string

const (
	EventJobPending    EventType = "job_pending"
	EventJobProcessing EventType = "job_processing"
	EventJobCompleted  EventType = "job_completed"
	EventJobFailed     EventType = "job_failed"
)

// Event is one status transition, both the payload of a job_status_update
// message and, tagged by Type, a standalone message of its own.
type Event struct {
	Type      EventType `json:"type"`
	JobID     string    `json:"job_id"`
	ClusterID *int64    `json:"cluster_id,omitempty"`
	Error     string    `json:"error,omitempty"`
}

type statusUpdateMessage struct {
	Type   string `json:"type"`
	JobID  string `json:"job_id"`
	Status Event  `json:"status"`
}

type errorMessage struct {
	Type  string `json:"type"`
	JobID string `json:"job_id"`
	Error string `json:"error"`
}

type pongMessage struct {
	Type string `json:"type"`
}

type subscriberMessage struct {
	Type  string `json:"type"`
	JobID string `json:"job_id"`
}

// StatusProvider answers "what is job_id's status right now?" for a fresh
// subscribe. It is the queue's transient status map (C2), not the durable
// store, since it is the low-latency source the rest of the system already
// mirrors status into.
type StatusProvider interface {
	GetStatus(ctx context.Context, jobID string) (queue.StatusUpdate, error)
}

// session is one open websocket connection and the set of job IDs it has
// subscribed to. Subscription is advisory (§4.8): it does not gate what a
// session receives, only what a simple client chooses to act on.
type session struct {
	conn   *websocket.Conn
	mu     sync.Mutex // guards writes; gorilla connections are not write-safe
	jobIDs map[string]bool
}

func (s *session) write(v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(v)
}

// Manager is the Live Status Channel (C8): a websocket connection table
// behind a mutex, broadcasting every transition to every session regardless
// of subscription.
type Manager struct {
	upgrader websocket.Upgrader
	cfg      config.LiveStatus
	log      *zap.Logger
	status   StatusProvider

	mu       sync.RWMutex
	sessions map[*session]struct{}
	byJob    map[string]map[*session]bool
}

func NewManager(cfg config.LiveStatus, log *zap.Logger, status StatusProvider) *Manager {
	return &Manager{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		cfg:      cfg,
		log:      log,
		status:   status,
		sessions: make(map[*session]struct{}),
		byJob:    make(map[string]map[*session]bool),
	}
}

// ServeHTTP upgrades the connection and runs its read/heartbeat loops until
// the client disconnects or the session times out.
func (m *Manager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.log.Warn("websocket upgrade failed", obs.Err(err))
		return
	}

	sess := &session{conn: conn, jobIDs: make(map[string]bool)}
	m.addSession(sess)
	obs.LiveStatusSessions.Inc()
	defer func() {
		m.removeSession(sess)
		obs.LiveStatusSessions.Dec()
		conn.Close()
	}()

	conn.SetReadDeadline(time.Now().Add(m.cfg.SessionTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(m.cfg.SessionTimeout))
		return nil
	})

	done := make(chan struct{})
	go m.heartbeat(sess, done)
	defer close(done)

	for {
		msgType, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(m.cfg.SessionTimeout))
		if msgType == websocket.BinaryMessage {
			continue
		}
		var msg subscriberMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		switch msg.Type {
		case "subscribe":
			m.subscribe(r.Context(), sess, msg.JobID)
		case "unsubscribe":
			m.unsubscribe(sess, msg.JobID)
		case "ping":
			_ = sess.write(pongMessage{Type: "pong"})
		}
	}
}

func (m *Manager) heartbeat(sess *session, done chan struct{}) {
	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			sess.mu.Lock()
			err := sess.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			sess.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (m *Manager) addSession(sess *session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sess] = struct{}{}
}

func (m *Manager) removeSession(sess *session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sess)
	for jobID, subs := range m.byJob {
		delete(subs, sess)
		if len(subs) == 0 {
			delete(m.byJob, jobID)
		}
	}
}

// subscribe records jobID in sess's advisory subscription set and replies
// with the job's current transient status, or a job-not-found error.
func (m *Manager) subscribe(ctx context.Context, sess *session, jobID string) {
	m.mu.Lock()
	sess.jobIDs[jobID] = true
	if m.byJob[jobID] == nil {
		m.byJob[jobID] = make(map[*session]bool)
	}
	m.byJob[jobID][sess] = true
	m.mu.Unlock()

	if m.status == nil {
		return
	}
	update, err := m.status.GetStatus(ctx, jobID)
	if err == queue.ErrEmpty {
		_ = sess.write(errorMessage{Type: "error", JobID: jobID, Error: "job not found"})
		return
	}
	if err != nil {
		m.log.Debug("live status lookup failed", obs.Err(err))
		_ = sess.write(errorMessage{Type: "error", JobID: jobID, Error: "status unavailable"})
		return
	}
	_ = sess.write(statusUpdateMessage{
		Type:  "job_status_update",
		JobID: jobID,
		Status: Event{
			Type:  EventType("job_" + update.Status),
			JobID: jobID,
			Error: update.Error,
		},
	})
}

func (m *Manager) unsubscribe(sess *session, jobID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(sess.jobIDs, jobID)
	if subs, ok := m.byJob[jobID]; ok {
		delete(subs, sess)
		if len(subs) == 0 {
			delete(m.byJob, jobID)
		}
	}
}

// Broadcast sends event to every active session, subscribed or not
// (subscription is advisory per §4.8), as both a job_status_update envelope
// and a standalone message typed after event.Type so simple clients can
// switch on type alone. It copies the session list out from under the lock
// before writing so the session table is not locked during network writes.
// Sessions are written to one after another, so a slow client delays
// delivery to the sessions after it.
func (m *Manager) Broadcast(jobID string, event Event) {
	m.mu.RLock()
	targets := make([]*session, 0, len(m.sessions))
	for s := range m.sessions {
		targets = append(targets, s)
	}
	m.mu.RUnlock()

	update := statusUpdateMessage{Type: "job_status_update", JobID: jobID, Status: event}
	for _, s := range targets {
		if err := s.write(update); err != nil {
			m.log.Debug("live status write failed", obs.Err(err))
			continue
		}
		if err := s.write(event); err != nil {
			m.log.Debug("live status write failed", obs.Err(err))
		}
	}
}
