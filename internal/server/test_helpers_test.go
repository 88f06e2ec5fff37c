package server

import (
	"bytes"
	"encoding/json"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"party-rounds/internal/config"
	"party-rounds/internal/oracle"
	"party-rounds/internal/session"
	"party-rounds/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()
	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Skipf("skipping test; listen unavailable: %v", err)
	}
	ts := &httptest.Server{
		Listener: listener,
		Config:   &http.Server{Handler: handler},
	}
	ts.Start()
	return ts
}

type fixture struct {
	srv *Server
	svc *session.Service
	ts  *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := store.NewMemoryStore(store.DefaultTTL, 0)
	svc := session.New(st, oracle.Mock{}, session.Options{})
	srv := New(svc, st, config.Default())
	ts := newTestServer(t, srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.CloseConnections()
		svc.Close()
		_ = st.Close()
	})
	return &fixture{srv: srv, svc: svc, ts: ts}
}

func newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return &http.Client{Jar: jar}
}

func doRequest(t *testing.T, client *http.Client, method, url string, payload any) (*http.Response, map[string]any) {
	t.Helper()
	body := bytes.NewReader(nil)
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil && resp.StatusCode != http.StatusNoContent {
		t.Fatalf("decode body: %v", err)
	}
	return resp, decoded
}

func (f *fixture) createGame(t *testing.T, client *http.Client, nickname, gameType string) (code, hostID string) {
	t.Helper()
	resp, body := doRequest(t, client, http.MethodPost, f.ts.URL+"/api/create-game", map[string]string{
		"hostNickname": nickname,
		"gameType":     gameType,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create game: status %d body %v", resp.StatusCode, body)
	}
	return body["gameCode"].(string), body["hostId"].(string)
}

func (f *fixture) joinGame(t *testing.T, client *http.Client, code, nickname string) string {
	t.Helper()
	resp, body := doRequest(t, client, http.MethodPost, f.ts.URL+"/api/join-game", map[string]string{
		"gameCode": code,
		"nickname": nickname,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("join game: status %d body %v", resp.StatusCode, body)
	}
	return body["playerId"].(string)
}

// dial opens a socket carrying client's cookies; a nil client sends none.
func (f *fixture) dial(t *testing.T, client *http.Client) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(f.ts.URL, "http") + "/ws"
	dialer := *websocket.DefaultDialer
	if client != nil {
		dialer.Jar = client.Jar
	}
	conn, _, err := dialer.Dial(wsURL, nil)
	if err != nil {
		t.Skipf("skipping test; websocket dial unavailable: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func sendFrame(t *testing.T, conn *websocket.Conn, msgType string, payload any) {
	t.Helper()
	if err := conn.WriteJSON(map[string]any{"type": msgType, "payload": payload}); err != nil {
		t.Fatalf("write %s: %v", msgType, err)
	}
}

// waitForFrame reads until a frame of msgType arrives, skipping others.
func waitForFrame(t *testing.T, conn *websocket.Conn, msgType string) frame {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		_ = conn.SetReadDeadline(deadline)
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			t.Fatalf("waiting for %s: %v", msgType, err)
		}
		if f.Type == msgType {
			return f
		}
	}
}
