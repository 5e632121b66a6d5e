// Copyright (c) 2025 Dropvault. All rights reserved.
// Use of this source code is governed by the Dropvault License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package integration spins up the full dropvault router — core relay,
// chunk-to-disk staging, and local-share — on one in-process listener and
// drives it the way a real client would, end to end.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/dropvault/dropvault/internal/httpapi"
	"github.com/dropvault/dropvault/internal/localshare"
	"github.com/dropvault/dropvault/internal/registry"
	"github.com/dropvault/dropvault/internal/relay"
	"github.com/dropvault/dropvault/internal/staging"
	"github.com/dropvault/dropvault/internal/wsproto"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastRelayConfig() relay.Config {
	return relay.Config{
		KeepAliveInterval: 30 * time.Millisecond,
		ReconnectWindow:   150 * time.Millisecond,
		CleanerInterval:   time.Second,
		MaxIDRetries:      5,
	}
}

// testServer bundles the full dropvault router (all three collaborator
// modes) along with the state a test needs to poke at directly.
type testServer struct {
	*httptest.Server
	reg           *registry.Registry
	stagingStore  *staging.Store
	localShareSrv *localshare.Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := testLogger()
	r := chi.NewRouter()

	reg := registry.New()
	httpapi.NewServer(reg, fastRelayConfig(), logger).Routes(r)

	stagingDir := t.TempDir()
	store := staging.NewStore(stagingDir, logger)
	gate := staging.NewDiskGate(stagingDir, 0, logger)
	staging.NewServer(store, gate, nil, staging.HTTPConfig{
		ShardLevels:     1,
		PendingMemLimit: 8 << 20,
		Retention:       time.Hour,
	}, logger).Routes(r)

	lsStore := localshare.NewStore()
	lsSrv := localshare.NewServer(lsStore, localshare.Config{ChunkSize: 4}, logger)
	lsSrv.Routes(r)

	return &testServer{
		Server:        httptest.NewServer(r),
		reg:           reg,
		stagingStore:  store,
		localShareSrv: lsSrv,
	}
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func dial(t *testing.T, rawURL string) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(rawURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", rawURL, err)
	}
	return ws
}

func readText(t *testing.T, ws *websocket.Conn, v any) {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	mt, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if mt != websocket.TextMessage {
		t.Fatalf("expected text message, got binary of %d bytes", len(data))
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("unmarshal %s: %v", data, err)
	}
}

// TestEndToEnd_CoreRelayHappyPath mirrors spec.md §8 scenario 1: a sender
// registers, a recipient claims, bytes flow end to end, both sides see the
// session terminate cleanly and the registry ends up empty.
func TestEndToEnd_CoreRelayHappyPath(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	sender := dial(t, wsURL(srv.Server, "/ws/send"))
	defer sender.Close()

	payload := []byte{1, 2, 3, 4, 5}
	if err := sender.WriteJSON(wsproto.SendRequest{Type: "send", Filename: "a.bin", Size: uint64(len(payload))}); err != nil {
		t.Fatalf("writing send request: %v", err)
	}
	var ready wsproto.ServerToSender
	readText(t, sender, &ready)
	if ready.Type != wsproto.TypeReady || ready.ID == "" {
		t.Fatalf("unexpected ready message: %+v", ready)
	}

	resp, err := http.Get(srv.URL + "/api/transfer/" + ready.ID)
	if err != nil {
		t.Fatalf("GET /api/transfer: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 while waiting for a recipient, got %d", resp.StatusCode)
	}

	recipient := dial(t, wsURL(srv.Server, "/ws/recv/"+ready.ID))
	defer recipient.Close()

	var meta wsproto.ServerToRecipient
	readText(t, recipient, &meta)
	if meta.Type != wsproto.TypeMetadata || meta.Filename != "a.bin" || meta.Size != uint64(len(payload)) {
		t.Fatalf("unexpected metadata: %+v", meta)
	}

	var start wsproto.ServerToSender
	readText(t, sender, &start)
	if start.Type != wsproto.TypeStart {
		t.Fatalf("expected start, got %+v", start)
	}

	if err := sender.WriteMessage(websocket.BinaryMessage, payload); err != nil {
		t.Fatalf("writing payload: %v", err)
	}
	if err := sender.WriteJSON(wsproto.DoneRequest{Type: "done"}); err != nil {
		t.Fatalf("writing done: %v", err)
	}

	recipient.SetReadDeadline(time.Now().Add(3 * time.Second))
	mt, data, err := recipient.ReadMessage()
	if err != nil {
		t.Fatalf("reading payload: %v", err)
	}
	if mt != websocket.BinaryMessage || !bytes.Equal(data, payload) {
		t.Fatalf("expected payload %v, got type %d data %v", payload, mt, data)
	}

	var done wsproto.ServerToRecipient
	readText(t, recipient, &done)
	if done.Type != wsproto.TypeDone {
		t.Fatalf("expected done, got %+v", done)
	}

	// Give the sender session a moment to transition to Done and the
	// cleaner a tick to sweep it, per spec.md §8 property 3.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go relay.RunCleaner(ctx, srv.reg, 20*time.Millisecond, testLogger())
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if srv.reg.Len() == 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if srv.reg.Len() != 0 {
		t.Fatalf("expected the registry to be empty after the transfer completed, got %d entries", srv.reg.Len())
	}
}

// TestEndToEnd_DoubleClaim mirrors spec.md §8 scenario 3: two recipients
// race on the same id; exactly one gets the metadata and proceeds.
func TestEndToEnd_DoubleClaim(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	sender := dial(t, wsURL(srv.Server, "/ws/send"))
	defer sender.Close()
	sender.WriteJSON(wsproto.SendRequest{Type: "send", Filename: "x.bin", Size: 1})
	var ready wsproto.ServerToSender
	readText(t, sender, &ready)

	first := dial(t, wsURL(srv.Server, "/ws/recv/"+ready.ID))
	defer first.Close()
	var firstMsg wsproto.ServerToRecipient
	readText(t, first, &firstMsg)
	if firstMsg.Type != wsproto.TypeMetadata {
		t.Fatalf("expected the first recipient to win the claim, got %+v", firstMsg)
	}

	second := dial(t, wsURL(srv.Server, "/ws/recv/"+ready.ID))
	defer second.Close()
	var secondMsg wsproto.ServerToRecipient
	readText(t, second, &secondMsg)
	if secondMsg.Type != wsproto.TypeError {
		t.Fatalf("expected the second recipient to see an error, got %+v", secondMsg)
	}
}

// TestEndToEnd_StagingUploadThenDownload exercises the chunk-to-disk
// staging collaborator (SPEC_FULL.md §10) end to end over plain HTTP.
func TestEndToEnd_StagingUploadThenDownload(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	body, _ := json.Marshal(map[string]any{
		"filename":   "report.pdf",
		"size":       6,
		"mime_type":  "application/pdf",
		"chunk_size": 3,
	})
	resp, err := http.Post(srv.URL+"/api/stage", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("creating staging entry: %v", err)
	}
	var created struct {
		ID string `json:"id"`
	}
	json.NewDecoder(resp.Body).Decode(&created)
	resp.Body.Close()
	if created.ID == "" {
		t.Fatal("expected a staging id")
	}

	postChunk := func(seq int, data []byte) {
		req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/stage/"+created.ID, bytes.NewReader(data))
		req.Header.Set("X-Chunk-Seq", strconv.Itoa(seq))
		r, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("posting chunk %d: %v", seq, err)
		}
		r.Body.Close()
		if r.StatusCode != http.StatusNoContent {
			t.Fatalf("chunk %d: expected 204, got %d", seq, r.StatusCode)
		}
	}
	postChunk(0, []byte("abc"))
	postChunk(1, []byte("def"))

	completeBody, _ := json.Marshal(map[string]any{
		"checksum_sha256": "bef57ec7f53a6d40beb640a780a639c83bc29ac8a9816f1fc6c5c6dcd93c4721",
	})
	resp, err = http.Post(srv.URL+"/api/stage/"+created.ID+"/complete", "application/json", bytes.NewReader(completeBody))
	if err != nil {
		t.Fatalf("completing staging entry: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 completing, got %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/api/stage/" + created.ID + "/download")
	if err != nil {
		t.Fatalf("downloading: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 downloading, got %d", resp.StatusCode)
	}
	got, _ := io.ReadAll(resp.Body)
	if string(got) != "abcdef" {
		t.Fatalf("expected downloaded content 'abcdef', got %q", got)
	}
}

// TestEndToEnd_LocalShareStreamsFile exercises the local-share collaborator
// (SPEC_FULL.md §11): the process owns an on-disk file and streams sealed
// chunks to a single browser over a websocket.
func TestEndToEnd_LocalShareStreamsFile(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	dir := t.TempDir()
	path := filepath.Join(dir, "shared.txt")
	content := []byte("hello from local share")
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	token, err := srv.localShareSrv.CreateShare(path, "shared.txt", uint64(len(content)), "text/plain", time.Minute)
	if err != nil {
		t.Fatalf("CreateShare: %v", err)
	}

	ws := dial(t, wsURL(srv.Server, "/api/localshare/"+token))
	defer ws.Close()

	var ready localshare.ShareReady
	readText(t, ws, &ready)
	if ready.Type != localshare.TypeShareReady || ready.Filename != "shared.txt" {
		t.Fatalf("unexpected share-ready: %+v", ready)
	}

	var gotLen int
	for {
		ws.SetReadDeadline(time.Now().Add(3 * time.Second))
		mt, data, err := ws.ReadMessage()
		if err != nil {
			t.Fatalf("reading frame: %v", err)
		}
		if mt == websocket.TextMessage {
			var done localshare.Done
			if json.Unmarshal(data, &done) == nil && done.Type == localshare.TypeDone {
				break
			}
			t.Fatalf("unexpected text frame: %s", data)
		}
		// Each binary frame is sealed ciphertext: the AEAD tag alone adds a
		// fixed 16 bytes of overhead, so its presence is enough to assert
		// the bytes on the wire are not the plaintext file content.
		if bytes.Contains(content, data) {
			t.Fatal("local-share frame was not sealed: plaintext observed on the wire")
		}
		gotLen += len(data)
	}
	if gotLen == 0 {
		t.Fatal("expected at least one sealed chunk before done")
	}
}
