package wsproto

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestConn_RoundTripJSONAndBinary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := Upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("server upgrade: %v", err)
			return
		}
		conn := NewConn(ws)
		defer conn.Close()

		if err := conn.WriteJSON(ServerToSender{Type: TypeReady, ID: "abc123"}); err != nil {
			t.Errorf("server WriteJSON: %v", err)
			return
		}
		if err := conn.WriteBinary([]byte("hello")); err != nil {
			t.Errorf("server WriteBinary: %v", err)
		}
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	conn := NewConn(ws)
	defer conn.Close()

	events := conn.ReadLoop()

	select {
	case ev := <-events:
		if ev.Err != nil {
			t.Fatalf("unexpected error event: %v", ev.Err)
		}
		if ev.Type != websocket.TextMessage {
			t.Fatalf("expected text message, got type %d", ev.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for text frame")
	}

	select {
	case ev := <-events:
		if ev.Err != nil {
			t.Fatalf("unexpected error event: %v", ev.Err)
		}
		if ev.Type != websocket.BinaryMessage || string(ev.Data) != "hello" {
			t.Fatalf("expected binary frame %q, got type=%d data=%q", "hello", ev.Type, ev.Data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for binary frame")
	}
}

func TestConn_RejectsOversizedFrame(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := Upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn := NewConn(ws)
		defer conn.Close()
		oversized := make([]byte, MaxFrameBytes+1)
		_ = conn.WriteBinary(oversized)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	conn := NewConn(ws)
	defer conn.Close()

	events := conn.ReadLoop()
	select {
	case ev := <-events:
		if ev.Err == nil {
			t.Fatalf("expected oversized frame to surface as an error event")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for oversized-frame error")
	}
}
