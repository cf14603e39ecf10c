package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
)

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + query
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.CloseNow() })
	return c
}

func waitForConns(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for hub.ConnectionCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d connections, got %d", n, hub.ConnectionCount())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestNewHub(t *testing.T) {
	hub := NewHub("tasks-channel", nil)
	if hub.ConnectionCount() != 0 {
		t.Fatalf("expected 0 connections, got %d", hub.ConnectionCount())
	}
}

func TestHubBroadcastNoConnections(t *testing.T) {
	hub := NewHub("tasks-channel", nil)
	hub.Broadcast(context.Background(), Message{
		Channel: "tasks-channel",
		Type:    "test",
		Payload: []byte(`{"key":"value"}`),
	})
}

func TestHubBroadcastEventMarshalError(t *testing.T) {
	hub := NewHub("tasks-channel", nil)
	// A channel cannot be marshaled to JSON; should log, not panic.
	hub.BroadcastEvent(context.Background(), "tasks-channel", "bad", make(chan int))
}

func TestHubRemoveNonexistent(t *testing.T) {
	hub := NewHub("tasks-channel", nil)
	_, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub.remove(&conn{cancel: cancel, channel: "tasks-channel"})
}

func TestHubDeliversToChannelSubscribers(t *testing.T) {
	hub := NewHub("tasks-channel", nil)
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	onDefault := dial(t, srv, "/")
	onOther := dial(t, srv, "/?channel=other")
	waitForConns(t, hub, 2)

	hub.BroadcastEvent(context.Background(), "tasks-channel", "TaskUpdatedEvent", map[string]int{"id": 9})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := onDefault.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Channel != "tasks-channel" || msg.Type != "TaskUpdatedEvent" || string(msg.Payload) != `{"id":9}` {
		t.Fatalf("unexpected message: %+v", msg)
	}

	otherCtx, otherCancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer otherCancel()
	if _, _, err := onOther.Read(otherCtx); err == nil {
		t.Fatal("subscriber of another channel should not receive the event")
	}
}

func TestHubCloseDisconnectsClients(t *testing.T) {
	hub := NewHub("tasks-channel", nil)
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	dial(t, srv, "/")
	waitForConns(t, hub, 1)

	hub.Close()
	if hub.ConnectionCount() != 0 {
		t.Fatalf("expected 0 connections after Close, got %d", hub.ConnectionCount())
	}
}
