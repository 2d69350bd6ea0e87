// Package activity fans committed domain events out to live TCP and
// websocket subscribers.
package activity

import (
	"encoding/json"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/realisereallies/anime/pkg/logger"
)

const writeTimeout = 2 * time.Second

// sendBuffer is how many lines a subscriber may fall behind before it is
// disconnected.
const sendBuffer = 64

const (
	transportTCP = "tcp"
	transportWS  = "websocket"
)

type subscriber struct {
	transport string
	userID    string
	send      chan []byte
	closeConn func() error
}

// Hub keeps one queue per subscriber. Publish never blocks on a
// connection; each queue is drained by its own writer goroutine.
type Hub struct {
	mu        sync.Mutex
	subs      map[any]*subscriber
	published uint64
}

type Stats struct {
	TCPClients int    `json:"tcp_clients"`
	WSClients  int    `json:"ws_clients"`
	Published  uint64 `json:"published"`
}

func NewHub() *Hub {
	return &Hub{subs: make(map[any]*subscriber)}
}

// Add subscribes an anonymous TCP connection. It only sees public events.
func (h *Hub) Add(conn net.Conn) {
	h.subscribe(conn, transportTCP, "", func(b []byte) error {
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		_, err := conn.Write(b)
		return err
	}, conn.Close)
}

func (h *Hub) Remove(conn net.Conn) {
	h.drop(conn)
	_ = conn.Close()
}

// AddWS subscribes a websocket. userID is empty for anonymous clients;
// otherwise the client also receives that user's private events.
func (h *Hub) AddWS(ws *websocket.Conn, userID string) {
	h.subscribe(ws, transportWS, userID, func(b []byte) error {
		_ = ws.SetWriteDeadline(time.Now().Add(writeTimeout))
		return ws.WriteMessage(websocket.TextMessage, b)
	}, ws.Close)
}

func (h *Hub) RemoveWS(ws *websocket.Conn) {
	h.drop(ws)
	_ = ws.Close()
}

func (h *Hub) subscribe(key any, transport, userID string, write func([]byte) error, closeFn func() error) {
	s := &subscriber{
		transport: transport,
		userID:    userID,
		send:      make(chan []byte, sendBuffer),
		closeConn: closeFn,
	}

	h.mu.Lock()
	h.subs[key] = s
	s.send <- welcomeLine(transport, len(h.subs))
	h.mu.Unlock()

	go h.writeLoop(key, s, write)
}

func (h *Hub) writeLoop(key any, s *subscriber, write func([]byte) error) {
	for b := range s.send {
		if err := write(b); err != nil {
			logger.Logger.Debug().Err(err).Str("transport", s.transport).Msg("activity: dropping client")
			h.drop(key)
			return
		}
	}
}

func (h *Hub) drop(key any) {
	h.mu.Lock()
	h.dropLocked(key)
	h.mu.Unlock()
}

// dropLocked is a no-op for keys already gone, so the writer and the
// reader of one connection may both call it.
func (h *Hub) dropLocked(key any) {
	s, ok := h.subs[key]
	if !ok {
		return
	}
	delete(h.subs, key)
	close(s.send)
	_ = s.closeConn()
}

// Publish queues ev for every subscriber allowed to see it. Public
// events go to everyone, the rest only to the acting user's own
// authenticated sockets. A subscriber whose queue is full is dropped.
func (h *Hub) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	b, err := json.Marshal(ev)
	if err != nil {
		logger.Logger.Error().Err(err).Msg("activity: marshal event")
		return
	}
	b = append(b, '\n')
	public := ev.Public()

	h.mu.Lock()
	defer h.mu.Unlock()
	h.published++

	for key, s := range h.subs {
		if !public && (s.userID == "" || s.userID != ev.UserID) {
			continue
		}
		select {
		case s.send <- b:
		default:
			logger.Logger.Warn().Str("transport", s.transport).Msg("activity: client too slow, dropping")
			h.dropLocked(key)
		}
	}
}

func (h *Hub) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	st := Stats{Published: h.published}
	for _, s := range h.subs {
		switch s.transport {
		case transportTCP:
			st.TCPClients++
		case transportWS:
			st.WSClients++
		}
	}
	return st
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for key := range h.subs {
		h.dropLocked(key)
	}
}

type welcome struct {
	Type      string `json:"type"`
	Transport string `json:"transport"`
	Clients   int    `json:"clients"`
}

func welcomeLine(transport string, clients int) []byte {
	b, _ := json.Marshal(welcome{Type: "welcome", Transport: transport, Clients: clients})
	return append(b, '\n')
}
