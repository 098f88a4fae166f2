package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"chatrelay/pkg/config"
	"chatrelay/pkg/fanout"
	"chatrelay/pkg/gateway"
	"chatrelay/pkg/models"
	"chatrelay/pkg/presence"
	"chatrelay/pkg/registry"
	"chatrelay/pkg/store"
)

type wsFixture struct {
	srv *httptest.Server
	st  *store.Store
	reg *registry.Registry
}

// newWSFixture wires the full live path: pebble store, registry, fanout
// worker, gateway and the upgrade handler, identity in dev mode.
func newWSFixture(t *testing.T) *wsFixture {
	t.Helper()
	config.SetRuntime(nil)

	st, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	reg := registry.New(st)
	disp := fanout.New(reg, 128)
	disp.Start()
	t.Cleanup(disp.Close)
	t.Cleanup(reg.CloseAll)

	gw := gateway.New(st, st, disp, presence.New(4*time.Second))
	srv := httptest.NewServer(NewHandler(reg, gw, nil, 32, nil))
	t.Cleanup(srv.Close)
	return &wsFixture{srv: srv, st: st, reg: reg}
}

func (f *wsFixture) dial(t *testing.T, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http")
	hdr := http.Header{}
	if userID != "" {
		hdr.Set("X-User-ID", userID)
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, hdr)
	if err != nil {
		t.Fatalf("dial as %q: %v", userID, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendEvent(t *testing.T, conn *websocket.Conn, ev models.ClientEvent) {
	t.Helper()
	if err := conn.WriteJSON(ev); err != nil {
		t.Fatalf("write event: %v", err)
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) models.ServerEvent {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev models.ServerEvent
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return ev
}

func waitSubscribers(t *testing.T, f *wsFixture, groupID string, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(f.reg.ConnectionsForGroup(groupID)) == n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("never saw %d subscribers on %s", n, groupID)
}

// TestLiveMessageDelivery runs the end-to-end path: two clients subscribe
// over the socket, one submits a message, both receive the persisted form
// in a server frame.
func TestLiveMessageDelivery(t *testing.T) {
	f := newWSFixture(t)
	g, err := f.st.SaveGroup(context.Background(), models.Group{Name: "eng", CreatorID: "u1", Members: []string{"u1", "u2"}})
	if err != nil {
		t.Fatalf("SaveGroup: %v", err)
	}

	c1 := f.dial(t, "u1")
	c2 := f.dial(t, "u2")
	sendEvent(t, c1, models.ClientEvent{Type: models.EventSubscribe, GroupID: g.ID})
	sendEvent(t, c2, models.ClientEvent{Type: models.EventSubscribe, GroupID: g.ID})
	waitSubscribers(t, f, g.ID, 2)

	payload, _ := json.Marshal(models.MessagePayload{Content: "hello room"})
	sendEvent(t, c1, models.ClientEvent{Type: models.EventMessage, GroupID: g.ID, Payload: payload})

	for _, conn := range []*websocket.Conn{c1, c2} {
		ev := readFrame(t, conn)
		if ev.Type != models.EventMessage || ev.GroupID != g.ID || ev.ServerTS == 0 {
			t.Fatalf("bad envelope: %+v", ev)
		}
		var m models.Message
		if err := json.Unmarshal(ev.Payload, &m); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if m.Content != "hello room" || m.UserID != "u1" || m.ID == "" {
			t.Fatalf("bad message: %+v", m)
		}
	}

	// the message is also in the durable log
	msgs, err := f.st.ListMessages(context.Background(), g.ID, 0)
	if err != nil || len(msgs) != 1 {
		t.Fatalf("persisted log: %v %v", msgs, err)
	}
}

// TestSubscribeForbidden verifies a non-member subscribe comes back as an
// error frame, not a disconnect.
func TestSubscribeForbidden(t *testing.T) {
	f := newWSFixture(t)
	g, _ := f.st.SaveGroup(context.Background(), models.Group{Name: "eng", CreatorID: "u1", Members: []string{"u1"}})

	c := f.dial(t, "intruder")
	sendEvent(t, c, models.ClientEvent{Type: models.EventSubscribe, GroupID: g.ID})

	c.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame struct {
		Type  string `json:"type"`
		Of    string `json:"of"`
		Error string `json:"error"`
	}
	if err := c.ReadJSON(&frame); err != nil {
		t.Fatalf("read error frame: %v", err)
	}
	if frame.Type != "error" || frame.Of != models.EventSubscribe || frame.Error != "forbidden" {
		t.Fatalf("bad error frame: %+v", frame)
	}

	// the socket is still usable
	sendEvent(t, c, models.ClientEvent{Type: models.EventTyping, GroupID: g.ID})
	if err := c.ReadJSON(&frame); err != nil {
		t.Fatalf("read second error frame: %v", err)
	}
	if frame.Error != "forbidden" {
		t.Fatalf("bad second frame: %+v", frame)
	}
}

// TestUserIDMismatchRejected verifies a client cannot speak as another
// user by stamping a different user id on its events.
func TestUserIDMismatchRejected(t *testing.T) {
	f := newWSFixture(t)
	g, _ := f.st.SaveGroup(context.Background(), models.Group{Name: "eng", CreatorID: "u1", Members: []string{"u1", "u2"}})

	c := f.dial(t, "u2")
	payload, _ := json.Marshal(models.MessagePayload{Content: "spoof"})
	sendEvent(t, c, models.ClientEvent{Type: models.EventMessage, GroupID: g.ID, UserID: "u1", Payload: payload})

	c.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame struct {
		Type  string `json:"type"`
		Error string `json:"error"`
	}
	if err := c.ReadJSON(&frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if frame.Type != "error" || frame.Error != "user id mismatch" {
		t.Fatalf("bad frame: %+v", frame)
	}
	msgs, _ := f.st.ListMessages(context.Background(), g.ID, 0)
	if len(msgs) != 0 {
		t.Fatalf("spoofed message must not persist: %v", msgs)
	}
}

// TestTypingFanout verifies typing signals reach other subscribers as
// typing frames.
func TestTypingFanout(t *testing.T) {
	f := newWSFixture(t)
	g, _ := f.st.SaveGroup(context.Background(), models.Group{Name: "eng", CreatorID: "u1", Members: []string{"u1", "u2"}})

	c1 := f.dial(t, "u1")
	c2 := f.dial(t, "u2")
	sendEvent(t, c2, models.ClientEvent{Type: models.EventSubscribe, GroupID: g.ID})
	waitSubscribers(t, f, g.ID, 1)

	payload, _ := json.Marshal(models.TypingPayload{DisplayName: "Alice"})
	sendEvent(t, c1, models.ClientEvent{Type: models.EventTyping, GroupID: g.ID, Payload: payload})

	ev := readFrame(t, c2)
	if ev.Type != models.EventTyping {
		t.Fatalf("expected typing frame; got %+v", ev)
	}
	var sig models.TypingSignal
	if err := json.Unmarshal(ev.Payload, &sig); err != nil {
		t.Fatalf("decode signal: %v", err)
	}
	if sig.UserID != "u1" || sig.DisplayName != "Alice" {
		t.Fatalf("bad signal: %+v", sig)
	}
}

// TestUnsubscribeStopsDelivery verifies frames stop after an unsubscribe
// while other subscribers keep receiving.
func TestUnsubscribeStopsDelivery(t *testing.T) {
	f := newWSFixture(t)
	g, _ := f.st.SaveGroup(context.Background(), models.Group{Name: "eng", CreatorID: "u1", Members: []string{"u1", "u2"}})

	c1 := f.dial(t, "u1")
	c2 := f.dial(t, "u2")
	sendEvent(t, c1, models.ClientEvent{Type: models.EventSubscribe, GroupID: g.ID})
	sendEvent(t, c2, models.ClientEvent{Type: models.EventSubscribe, GroupID: g.ID})
	waitSubscribers(t, f, g.ID, 2)

	sendEvent(t, c2, models.ClientEvent{Type: models.EventUnsubscribe, GroupID: g.ID})
	waitSubscribers(t, f, g.ID, 1)

	payload, _ := json.Marshal(models.MessagePayload{Content: "after leave"})
	sendEvent(t, c1, models.ClientEvent{Type: models.EventMessage, GroupID: g.ID, Payload: payload})

	if ev := readFrame(t, c1); ev.Type != models.EventMessage {
		t.Fatalf("subscriber should still receive; got %+v", ev)
	}
	c2.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	if _, _, err := c2.ReadMessage(); err == nil {
		t.Fatalf("unsubscribed client must not receive")
	}
}

// TestUpgradeRequiresIdentity verifies the upgrade is refused without
// identity headers.
func TestUpgradeRequiresIdentity(t *testing.T) {
	f := newWSFixture(t)
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatalf("dial without identity should fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401; got %+v", resp)
	}
}

// TestNormalizeOrigins covers the origin allow-list parsing.
func TestNormalizeOrigins(t *testing.T) {
	if _, allowAll := normalizeOrigins(nil); !allowAll {
		t.Fatalf("empty list should allow all")
	}
	if _, allowAll := normalizeOrigins([]string{"https://a.example", "*"}); !allowAll {
		t.Fatalf("wildcard should allow all")
	}
	allowed, allowAll := normalizeOrigins([]string{"https://App.Example:443", "garbage"})
	if allowAll {
		t.Fatalf("explicit list should not allow all")
	}
	if _, ok := allowed["https://app.example:443"]; !ok {
		t.Fatalf("origin not normalized: %v", allowed)
	}
	if n, ok := normalizeOrigin("https://App.Example"); !ok || n != "https://app.example" {
		t.Fatalf("normalizeOrigin = (%q, %v)", n, ok)
	}
	if _, ok := normalizeOrigin("not a url"); ok {
		t.Fatalf("invalid origin should be rejected")
	}
}
