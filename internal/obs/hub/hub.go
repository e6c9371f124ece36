// Package hub implements the connection hub (C9): a gorilla/websocket
// server accepting bidirectional sessions, fanning out events from a
// bounded central channel to per-session bounded outbound queues with
// drop-on-full and a resync_hint marker. Grounded on
// internal/terminal.CoopStateWatcher's mutex-guarded *websocket.Conn
// field, generalized from one client connection to a many-session
// server-side registry, and carrying the client protocol frame
// vocabulary (initial, timeline:*, alert, presence, subscribe, poll:now).
package hub

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/gastown/gt/internal/obs/model"
)

const (
	defaultQueueSize = 256
	writeWait        = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// eventFrameTypes maps an internal EventType to the wire frame type name a
// client expects, per the client protocol's incremental-event vocabulary.
var eventFrameTypes = map[model.EventType]string{
	model.EventHooksUpdated:      "hooks:updated",
	model.EventAgentStatusChange: "agent_status_change",
	model.EventAgentAdded:        "agent_status_change",
	model.EventAgentRemoved:      "agent_status_change",
	model.EventHookChange:        "hooks:updated",
	model.EventBeadStatusChange:  "bead_status_change",
	model.EventMail:              "mail",
	model.EventError:             "error",
	model.EventLog:                "log",
}

func frameTypeFor(ev model.Event) string {
	if t, ok := eventFrameTypes[ev.Type]; ok {
		return t
	}
	return "event"
}

// Frame is the envelope written to every session's socket. Only the fields
// relevant to Type are populated; the rest are omitted.
type Frame struct {
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp,omitempty"`
	Event     *model.Event    `json:"event,omitempty"`
	Alert     *model.Alert    `json:"alert,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Hint      string          `json:"hint,omitempty"`
}

// InitialData is the payload of the one-time "initial" frame sent on
// connect, per the client protocol.
type InitialData struct {
	Rigs    []string             `json:"rigs"`
	Agents  []model.Agent        `json:"agents"`
	Beads   []model.Bead         `json:"beads"`
	Mail    []model.Mail         `json:"mail"`
	Metrics []model.MetricsSample `json:"metrics"`
}

// PresenceData is the payload of a "presence" frame.
type PresenceData struct {
	Users []model.Presence `json:"users"`
	You   model.Presence   `json:"you"`
}

// clientMessage is the envelope for client → server frames.
type clientMessage struct {
	Type      string  `json:"type"`
	Rig       string  `json:"rig,omitempty"`
	Agent     string  `json:"agent,omitempty"`
	Name      string  `json:"name,omitempty"`
	Timestamp float64 `json:"timestamp,omitempty"`
}

// Session is one connected operator's socket, subscriptions, and outbound
// queue.
type Session struct {
	ID       string
	Presence model.Presence

	hub      *Hub
	conn     *websocket.Conn
	outbound chan Frame
	mu       sync.Mutex // guards subscriptions and Presence
	subs     map[string]bool

	dropCount int64
}

// Subscribed reports whether the session is watching rig (or has no filter
// set, meaning "all rigs").
func (s *Session) Subscribed(rig string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.subs) == 0 {
		return true
	}
	return s.subs[rig]
}

// SetSubscriptions replaces the session's rig subscription filter.
func (s *Session) SetSubscriptions(rigs []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = make(map[string]bool, len(rigs))
	for _, r := range rigs {
		s.subs[r] = true
	}
}

func (s *Session) send(f Frame) {
	select {
	case s.outbound <- f:
	default:
		s.mu.Lock()
		s.dropCount++
		s.mu.Unlock()
	}
}

// Hub is the fan-out registry: one readers-writer guard over the session
// set, one dispatcher goroutine draining the central broadcast channel.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	broadcast chan broadcastMsg
	queueSize int

	onLeave     func(sessionID string)
	onPollNow   func(rig string)
	onGetState  func(rig string, timestamp time.Time) (interface{}, error)
	initialData func() InitialData
}

type broadcastMsg struct {
	rig   string
	frame Frame
}

// New returns a Hub with the given central-channel and per-session queue
// capacity (spec default 256 for both).
func New(centralCap, queueSize int) *Hub {
	if centralCap <= 0 {
		centralCap = 1024
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	h := &Hub{
		sessions:  make(map[string]*Session),
		broadcast: make(chan broadcastMsg, centralCap),
		queueSize: queueSize,
	}
	go h.dispatch()
	return h
}

// OnLeave registers a callback invoked with the session ID whenever a
// session is unregistered, used to emit presence updates.
func (h *Hub) OnLeave(fn func(sessionID string)) {
	h.onLeave = fn
}

// OnPollNow registers the callback invoked when a client sends a
// "poll:now" frame requesting a coalesced immediate refresh.
func (h *Hub) OnPollNow(fn func(rig string)) {
	h.onPollNow = fn
}

// OnGetState registers the callback invoked when a client sends a
// "timeline:getState" frame; fn should reconstruct world state at the
// requested timestamp (see history.Store.StateAt).
func (h *Hub) OnGetState(fn func(rig string, timestamp time.Time) (interface{}, error)) {
	h.onGetState = fn
}

// OnInitial registers the callback producing the payload for the
// one-time "initial" frame sent to each new session.
func (h *Hub) OnInitial(fn func() InitialData) {
	h.initialData = fn
}

// Upgrade accepts a websocket connection, registers a Session, and starts
// its read/write pumps. Blocks until the connection closes.
func (h *Hub) Upgrade(w http.ResponseWriter, r *http.Request, username, color string) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	sess := &Session{
		ID:       uuid.NewString(),
		hub:      h,
		conn:     conn,
		outbound: make(chan Frame, h.queueSize),
		Presence: model.Presence{
			SessionID: "", Username: username, Color: color, LastActivity: time.Now(),
		},
	}
	sess.Presence.SessionID = sess.ID

	h.register(sess)
	defer h.unregister(sess.ID)

	h.sendInitial(sess)
	h.broadcastPresenceLocked()

	done := make(chan struct{})
	go sess.writePump(done)
	sess.readPump(done)
	return nil
}

func (h *Hub) sendInitial(s *Session) {
	if h.initialData == nil {
		return
	}
	data, err := json.Marshal(h.initialData())
	if err != nil {
		log.Printf("hub: marshaling initial data: %v", err)
		return
	}
	s.send(Frame{Type: "initial", Timestamp: time.Now(), Data: data})
}

func (h *Hub) register(s *Session) {
	h.mu.Lock()
	h.sessions[s.ID] = s
	h.mu.Unlock()
}

func (h *Hub) unregister(id string) {
	h.mu.Lock()
	s, ok := h.sessions[id]
	delete(h.sessions, id)
	h.mu.Unlock()
	if !ok {
		return
	}
	close(s.outbound)
	s.conn.Close()
	if h.onLeave != nil {
		h.onLeave(id)
	}
	h.broadcastPresenceLocked()
}

// Publish enqueues an event for broadcast to every subscribed session.
// Non-blocking: if the central channel is full the event is dropped and
// logged, matching the spec's "drop for that session/producer only" intent
// extended to the producer side.
func (h *Hub) Publish(rig string, ev model.Event) {
	frame := Frame{Type: frameTypeFor(ev), Timestamp: ev.Timestamp, Event: &ev}
	select {
	case h.broadcast <- broadcastMsg{rig: rig, frame: frame}:
	default:
		log.Printf("hub: central channel full, dropping event for rig %s", rig)
	}
}

// PublishAlert enqueues an "alert" frame for broadcast to every subscribed
// session.
func (h *Hub) PublishAlert(rig string, a model.Alert) {
	frame := Frame{Type: "alert", Timestamp: a.Timestamp, Alert: &a}
	select {
	case h.broadcast <- broadcastMsg{rig: rig, frame: frame}:
	default:
		log.Printf("hub: central channel full, dropping alert for rig %s", rig)
	}
}

// PublishTimelineBounds enqueues a "timeline:bounds" frame to every session,
// ungated by rig subscription since bounds are fleet-wide.
func (h *Hub) PublishTimelineBounds(start, end time.Time) {
	data, err := json.Marshal(struct {
		Bounds struct {
			Start time.Time `json:"start"`
			End   time.Time `json:"end"`
		} `json:"bounds"`
	}{Bounds: struct {
		Start time.Time `json:"start"`
		End   time.Time `json:"end"`
	}{Start: start, End: end}})
	if err != nil {
		return
	}
	select {
	case h.broadcast <- broadcastMsg{rig: "", frame: Frame{Type: "timeline:bounds", Data: data}}:
	default:
		log.Printf("hub: central channel full, dropping timeline:bounds")
	}
}

func (h *Hub) dispatch() {
	for msg := range h.broadcast {
		h.mu.RLock()
		for _, s := range h.sessions {
			if msg.rig != "" && !s.Subscribed(msg.rig) {
				continue
			}
			select {
			case s.outbound <- msg.frame:
			default:
				s.mu.Lock()
				s.dropCount++
				s.mu.Unlock()
				select {
				case s.outbound <- Frame{Type: "resync_hint", Hint: msg.rig}:
				default:
				}
			}
		}
		h.mu.RUnlock()
	}
}

// Sessions returns every currently registered session's presence.
func (h *Hub) Sessions() []model.Presence {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]model.Presence, 0, len(h.sessions))
	for _, s := range h.sessions {
		out = append(out, s.Presence)
	}
	return out
}

func (h *Hub) broadcastPresenceLocked() {
	users := h.Sessions()
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.sessions {
		data, err := json.Marshal(PresenceData{Users: users, You: s.Presence})
		if err != nil {
			continue
		}
		s.send(Frame{Type: "presence", Data: data})
	}
}

func (h *Hub) handleClientMessage(s *Session, raw []byte) {
	var msg clientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		s.send(Frame{Type: "error", Data: mustJSON(map[string]string{"kind": "bad_request", "message": "malformed frame"})})
		return
	}

	switch msg.Type {
	case "poll:now":
		if h.onPollNow != nil {
			h.onPollNow(msg.Rig)
		}
	case "timeline:getState":
		h.handleGetState(s, msg)
	case "presence:setUsername":
		s.mu.Lock()
		s.Presence.Username = msg.Name
		s.mu.Unlock()
		h.broadcastPresenceLocked()
	case "presence:setView":
		s.mu.Lock()
		s.Presence.ViewRig = msg.Rig
		s.Presence.ViewAgent = msg.Agent
		s.mu.Unlock()
		h.broadcastPresenceLocked()
	case "subscribe":
		if msg.Rig == "" {
			s.SetSubscriptions(nil)
		} else {
			s.SetSubscriptions([]string{msg.Rig})
		}
	}
}

func (h *Hub) handleGetState(s *Session, msg clientMessage) {
	if h.onGetState == nil {
		return
	}
	ts := time.Unix(0, int64(msg.Timestamp*float64(time.Second)))
	state, err := h.onGetState(msg.Rig, ts)
	if err != nil {
		s.send(Frame{Type: "error", Data: mustJSON(map[string]string{"kind": "out_of_history", "message": err.Error()})})
		return
	}
	data, err := json.Marshal(state)
	if err != nil {
		return
	}
	s.send(Frame{Type: "timeline:state", Data: data})
}

func mustJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("{}")
	}
	return data
}

func (s *Session) writePump(done <-chan struct{}) {
	for {
		select {
		case frame, ok := <-s.outbound:
			if !ok {
				return
			}
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			data, err := json.Marshal(frame)
			if err != nil {
				continue
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (s *Session) readPump(done chan<- struct{}) {
	defer close(done)
	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.Presence.LastActivity = time.Now()
		s.mu.Unlock()
		s.hub.handleClientMessage(s, raw)
	}
}
