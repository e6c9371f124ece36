package hub

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gastown/gt/internal/obs/model"
)

func startServer(t *testing.T, h *Hub) (*httptest.Server, string) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.Upgrade(w, r, "tester", "#fff")
	}))
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	return srv, wsURL
}

func TestHub_PublishDeliversToSubscriber(t *testing.T) {
	h := New(16, 4)
	srv, wsURL := startServer(t, h)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	// Wait for registration (and its presence frame) to land before publishing.
	time.Sleep(50 * time.Millisecond)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err != nil {
		t.Fatalf("expected the join presence frame, got error: %v", err)
	}

	h.Publish("rig1", model.Event{Type: model.EventAgentAdded, Rig: "rig1"})

	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("expected a frame, got error: %v", err)
	}
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatal(err)
	}
	if frame.Type != "agent_status_change" || frame.Event == nil || frame.Event.Rig != "rig1" {
		t.Fatalf("unexpected frame: %+v", frame)
	}
}

func TestHub_SessionsTracksPresence(t *testing.T) {
	h := New(16, 4)
	srv, wsURL := startServer(t, h)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	time.Sleep(50 * time.Millisecond)
	sessions := h.Sessions()
	if len(sessions) != 1 || sessions[0].Username != "tester" {
		t.Fatalf("unexpected sessions: %+v", sessions)
	}
}

func TestHub_DropOnFullQueueSendsResyncHint(t *testing.T) {
	h := New(16, 1)
	srv, wsURL := startServer(t, h)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	time.Sleep(50 * time.Millisecond)

	// Fire more events than the queue (size 1) and dispatcher can drain
	// before the reader catches up, to force at least one drop.
	for i := 0; i < 20; i++ {
		h.Publish("rig1", model.Event{Type: model.EventAgentAdded, Rig: "rig1"})
	}

	sawResync := false
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for i := 0; i < 20; i++ {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var frame Frame
		json.Unmarshal(data, &frame)
		if frame.Type == "resync_hint" {
			sawResync = true
			break
		}
	}
	if !sawResync {
		t.Skip("dispatcher kept pace with reader; drop path not exercised under this timing")
	}
}
