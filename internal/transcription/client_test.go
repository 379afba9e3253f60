package transcription

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/interviewly/voicekit/internal/shared"
	"github.com/interviewly/voicekit/internal/wire"
)

func TestBuildURL(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
		room     string
		identity string
		expected string
		wantErr  bool
	}{
		{
			name:     "http upgrades to ws",
			endpoint: "http://localhost:8080",
			room:     "room-1",
			identity: "Jane Doe|interviewer",
			expected: "ws://localhost:8080/ws?identity=Jane+Doe%7Cinterviewer&room=room-1",
		},
		{
			name:     "https upgrades to wss",
			endpoint: "https://transcribe.example.com/ws",
			room:     "abc",
			identity: "bob",
			expected: "wss://transcribe.example.com/ws?identity=bob&room=abc",
		},
		{
			name:     "ws passes through",
			endpoint: "ws://localhost:9000/socket",
			room:     "r",
			identity: "i",
			expected: "ws://localhost:9000/socket?identity=i&room=r",
		},
		{
			name:     "unsupported scheme",
			endpoint: "ftp://example.com",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BuildURL(Config{Endpoint: tt.endpoint}, tt.room, tt.identity)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("BuildURL() = %q, want %q", got, tt.expected)
			}
		})
	}
}

type testServer struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns []*websocket.Conn

	gotRoom     string
	gotIdentity string
	binary      [][]byte
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{}
	ts.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.mu.Lock()
		ts.gotRoom = r.URL.Query().Get("room")
		ts.gotIdentity = r.URL.Query().Get("identity")
		ts.mu.Unlock()

		ws, err := ts.upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		ts.mu.Lock()
		ts.conns = append(ts.conns, ws)
		ts.mu.Unlock()

		for {
			msgType, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			if msgType == websocket.BinaryMessage {
				ts.mu.Lock()
				ts.binary = append(ts.binary, data)
				ts.mu.Unlock()
			}
		}
	}))
	t.Cleanup(ts.srv.Close)
	return ts
}

func (ts *testServer) send(t *testing.T, payload string) {
	t.Helper()
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if len(ts.conns) == 0 {
		t.Fatal("no server-side connection")
	}
	if err := ts.conns[0].WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
		t.Fatalf("server write failed: %v", err)
	}
}

func (ts *testServer) closeWithCode(t *testing.T, code int) {
	t.Helper()
	ts.mu.Lock()
	conn := ts.conns[0]
	ts.mu.Unlock()
	deadline := time.Now().Add(time.Second)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, ""), deadline)
	_ = conn.Close()
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestDial_PassesRoomAndIdentity(t *testing.T) {
	ts := newTestServer(t)

	opened := false
	c, err := Dial(context.Background(), Config{Endpoint: ts.srv.URL}, "room-42", "Ana Silva", Callbacks{
		OnOpen: func() { opened = true },
	}, testLogger())
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer c.Close()

	if !opened {
		t.Error("OnOpen should fire during dial")
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.gotRoom != "room-42" {
		t.Errorf("room = %q, want 'room-42'", ts.gotRoom)
	}
	if ts.gotIdentity != "Ana Silva" {
		t.Errorf("identity = %q, want 'Ana Silva'", ts.gotIdentity)
	}
}

func TestClient_DispatchesRecognizedKinds(t *testing.T) {
	ts := newTestServer(t)

	var mu sync.Mutex
	var roomName, clientID string
	micOpen := false
	var lines []wire.TranscriptLine
	var serverErrs []string

	c, err := Dial(context.Background(), Config{Endpoint: ts.srv.URL}, "r", "i", Callbacks{
		OnRoomInfo: func(rn, cid string) {
			mu.Lock()
			roomName, clientID = rn, cid
			mu.Unlock()
		},
		OnMicOpen: func() {
			mu.Lock()
			micOpen = true
			mu.Unlock()
		},
		OnTranscript: func(line wire.TranscriptLine) {
			mu.Lock()
			lines = append(lines, line)
			mu.Unlock()
		},
		OnServerError: func(msg string) {
			mu.Lock()
			serverErrs = append(serverErrs, msg)
			mu.Unlock()
		},
	}, testLogger())
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer c.Close()

	ts.send(t, `{"type":"room-info","roomName":"Interview 1","clientId":"abc"}`)
	ts.send(t, `{"type":"can-open-mic"}`)
	ts.send(t, `{"type":"transcript-result","speaker":"Candidate","text":"hello"}`)
	ts.send(t, `{"type":"error","message":"model overloaded"}`)
	ts.send(t, `{"type":"totally-unknown"}`)
	ts.send(t, `{not json`)
	ts.send(t, `{"type":"transcript-result","speaker":"Candidate","text":"still alive"}`)

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(lines) == 2
	})

	mu.Lock()
	defer mu.Unlock()
	if roomName != "Interview 1" || clientID != "abc" {
		t.Errorf("room-info = (%q, %q)", roomName, clientID)
	}
	if !micOpen {
		t.Error("can-open-mic not dispatched")
	}
	if len(serverErrs) != 1 || serverErrs[0] != "model overloaded" {
		t.Errorf("server errors = %v", serverErrs)
	}
	if lines[1].Text != "still alive" {
		t.Error("malformed and unknown messages should not break the read loop")
	}
}

func TestClient_SendAudio(t *testing.T) {
	ts := newTestServer(t)

	c, err := Dial(context.Background(), Config{Endpoint: ts.srv.URL}, "r", "i", Callbacks{}, testLogger())
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}

	if err := c.SendAudio([]byte{1, 2, 3}); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	waitFor(t, func() bool {
		ts.mu.Lock()
		defer ts.mu.Unlock()
		return len(ts.binary) == 1
	})

	if err := c.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := c.SendAudio([]byte{4}); !errors.Is(err, shared.ErrConnectionClosed) {
		t.Errorf("send after close = %v, want ErrConnectionClosed", err)
	}
	if c.IsOpen() {
		t.Error("client should not report open after close")
	}
}

func TestClient_OnCloseDeliversCode(t *testing.T) {
	ts := newTestServer(t)

	var mu sync.Mutex
	closeCode := 0
	closeCount := 0

	c, err := Dial(context.Background(), Config{Endpoint: ts.srv.URL}, "r", "i", Callbacks{
		OnClose: func(code int, reason string) {
			mu.Lock()
			closeCode = code
			closeCount++
			mu.Unlock()
		},
	}, testLogger())
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer c.Close()

	ts.closeWithCode(t, websocket.CloseGoingAway)

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return closeCount == 1
	})

	mu.Lock()
	defer mu.Unlock()
	if closeCode != websocket.CloseGoingAway {
		t.Errorf("close code = %d, want %d", closeCode, websocket.CloseGoingAway)
	}
	if c.IsOpen() {
		t.Error("client should be closed after server close")
	}
}

func TestDial_RefusedConnection(t *testing.T) {
	_, err := Dial(context.Background(), Config{Endpoint: "http://127.0.0.1:1"}, "r", "i", Callbacks{}, testLogger())
	if !errors.Is(err, shared.ErrConnectionError) {
		t.Errorf("expected ErrConnectionError, got %v", err)
	}
	if err == nil || !strings.Contains(err.Error(), "dial") {
		t.Errorf("error should mention dial: %v", err)
	}
}
