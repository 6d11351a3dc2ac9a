package services

import (
	"encoding/json"
	"sync"

	"socialclient/logger"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// PushMessage is what connected UIs receive on the notice socket.
type PushMessage struct {
	Event  string  `json:"event"`
	Notice *Notice `json:"notice,omitempty"`
	Target string  `json:"target,omitempty"`
	Reason string  `json:"reason,omitempty"`
}

// WSConnManager fans notices and navigation requests out to every
// connected websocket. It is both a Notifier and a Navigator.
type WSConnManager struct {
	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

func NewWSConnManager() *WSConnManager {
	return &WSConnManager{conns: make(map[*websocket.Conn]struct{})}
}

func (m *WSConnManager) Add(conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conns[conn] = struct{}{}
}

func (m *WSConnManager) Remove(conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.conns, conn)
}

func (m *WSConnManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conns)
}

// Send writes msg to one connection. Writes share the manager lock since
// a websocket connection allows a single writer at a time.
func (m *WSConnManager) Send(conn *websocket.Conn, msg PushMessage) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, raw)
}

func (m *WSConnManager) Broadcast(msg PushMessage) {
	raw, err := json.Marshal(msg)
	if err != nil {
		logger.Log.Error("failed to encode push message", zap.Error(err))
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for conn := range m.conns {
		if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
			logger.Log.Debug("dropping websocket", zap.Error(err))
			conn.Close()
			delete(m.conns, conn)
		}
	}
}

func (m *WSConnManager) Notify(n Notice) {
	m.Broadcast(PushMessage{Event: "notice", Notice: &n})
}

func (m *WSConnManager) RedirectToLogin(reason string) {
	m.Broadcast(PushMessage{Event: "navigate", Target: "login", Reason: reason})
}

var (
	_ Notifier  = (*WSConnManager)(nil)
	_ Navigator = (*WSConnManager)(nil)
)
