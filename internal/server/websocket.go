package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/TF-SoftwareEmergentes/livecall/internal/session"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// EventSnapshot is the type of the first message on a new event stream.
const EventSnapshot session.EventType = "snapshot"

// handleEvents streams session events over a websocket. The first message is
// a snapshot of the current state; slow clients lose events rather than
// stalling the recorder.
func (h *HTTPServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("Websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	events, unsubscribe := h.sessions.Subscribe(256)
	defer unsubscribe()

	bus := h.sessions.Events()
	h.metrics.SetEventSubscribers(bus.Subscribers())
	defer func() { h.metrics.SetEventSubscribers(bus.Subscribers() - 1) }()

	h.logger.Debug("Event subscriber connected", slog.String("remote", r.RemoteAddr))

	// reader: handles pongs and notices the client going away
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	st := h.sessions.Snapshot()
	first := session.Event{Type: EventSnapshot, SessionID: st.SessionID, Time: time.Now(), Data: st}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(first); err != nil {
		return
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			h.logger.Debug("Event subscriber disconnected", slog.String("remote", r.RemoteAddr))
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
