// Package client is the CLI-side consumer of the observability server's
// REST and WebSocket surface, grounded on
// internal/terminal.CoopStateWatcher's reconnect-tolerant WebSocket client
// shape generalized from one session's state-change stream to the fleet
// event stream, and a plain net/http REST client for one-shot calls.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gastown/gt/internal/obs/model"
)

// Client talks to a running observability server.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// New returns a Client pointed at baseURL (e.g. "http://localhost:8080").
func New(baseURL string) *Client {
	return &Client{BaseURL: strings.TrimRight(baseURL, "/"), HTTP: &http.Client{Timeout: 10 * time.Second}}
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", c.BaseURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// RigStateView mirrors the wire shape of one rig's state in GET /api/state
// (model.RigState's MarshalJSON flattens its map-keyed fields to slices).
type RigStateView struct {
	Name           string        `json:"name"`
	Agents         []model.Agent `json:"agents"`
	Beads          []model.Bead  `json:"beads"`
	LastSeenMailTS time.Time     `json:"last_seen_mail_ts"`
	LastObservedAt time.Time     `json:"last_observed_at"`
}

// StateResponse mirrors GET /api/state: one RigStateView per known rig.
type StateResponse struct {
	Rigs map[string]RigStateView `json:"rigs"`
}

// State fetches the current world-model snapshot.
func (c *Client) State(ctx context.Context) (StateResponse, error) {
	var out StateResponse
	err := c.get(ctx, "/api/state", &out)
	return out, err
}

// EventsAllResponse mirrors GET /api/timeline/events/all.
type EventsAllResponse struct {
	Events []model.Event `json:"events"`
	Bounds struct {
		Start time.Time `json:"start"`
		End   time.Time `json:"end"`
	} `json:"bounds"`
}

// EventsAll fetches every retained event plus the retention bounds.
func (c *Client) EventsAll(ctx context.Context) (EventsAllResponse, error) {
	var out EventsAllResponse
	err := c.get(ctx, "/api/timeline/events/all", &out)
	return out, err
}

// Alerts fetches the current alert ring.
func (c *Client) Alerts(ctx context.Context) ([]model.Alert, error) {
	var out []model.Alert
	err := c.get(ctx, "/api/alerts", &out)
	return out, err
}

// ExportEvents fetches the raw bytes of /api/events/export with the given
// format ("json" or "csv").
func (c *Client) ExportEvents(ctx context.Context, format string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/api/events/export?format="+url.QueryEscape(format), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", c.BaseURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
	}
	return io.ReadAll(resp.Body)
}

// BeadHistory fetches the recorded status transitions for one bead — the
// "job" a replay walks back through, a thin client over the history
// store's timeline (glossary: "Replay").
func (c *Client) BeadHistory(ctx context.Context, beadID string) ([]model.StatusTransition, error) {
	var out []model.StatusTransition
	err := c.get(ctx, "/api/beads/"+url.PathEscape(beadID)+"/history", &out)
	return out, err
}

// WatchFrame is one decoded frame off the WebSocket stream.
type WatchFrame struct {
	Type  string       `json:"type"`
	Event *model.Event `json:"event,omitempty"`
	Alert *model.Alert `json:"alert,omitempty"`
}

// Watch dials the server's /ws endpoint and streams decoded frames onto
// the returned channel until ctx is cancelled, reconnecting on drop the
// way CoopStateWatcher does.
func (c *Client) Watch(ctx context.Context) (<-chan WatchFrame, error) {
	wsURL, err := toWebsocketURL(c.BaseURL)
	if err != nil {
		return nil, err
	}

	out := make(chan WatchFrame, 64)
	go func() {
		defer close(out)
		for {
			if ctx.Err() != nil {
				return
			}
			conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
			if err != nil {
				select {
				case <-ctx.Done():
					return
				case <-time.After(2 * time.Second):
					continue
				}
			}
			c.readFrames(ctx, conn, out)
			conn.Close()
			select {
			case <-ctx.Done():
				return
			case <-time.After(2 * time.Second):
			}
		}
	}()
	return out, nil
}

func (c *Client) readFrames(ctx context.Context, conn *websocket.Conn, out chan<- WatchFrame) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var frame WatchFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		select {
		case out <- frame:
		case <-ctx.Done():
			return
		}
	}
}

func toWebsocketURL(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/ws"
	return u.String(), nil
}
