package server

import (
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"party-rounds/internal/game"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func TestCreateJoinAndGetGame(t *testing.T) {
	f := newFixture(t)
	host := newClient(t)
	code, hostID := f.createGame(t, host, "Zoe", "twotruths")
	if !isGameCode(code) {
		t.Fatalf("unexpected game code %q", code)
	}
	if _, err := uuid.Parse(hostID); err != nil {
		t.Fatalf("host id is not a uuid: %q", hostID)
	}

	playerID := f.joinGame(t, newClient(t), strings.ToLower(code), "Max")
	if playerID == hostID {
		t.Fatalf("separate clients must get separate identities")
	}

	resp, body := doRequest(t, http.DefaultClient, http.MethodGet, f.ts.URL+"/api/game/"+code, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get game: status %d", resp.StatusCode)
	}
	view := body["game"].(map[string]any)
	if view["gameType"] != "twotruths" || len(view["players"].([]any)) != 2 {
		t.Fatalf("unexpected game view %v", view)
	}
}

func TestIdentityCookieIsReused(t *testing.T) {
	f := newFixture(t)
	client := newClient(t)
	code, hostID := f.createGame(t, client, "Zoe", "")
	other, _ := f.createGame(t, newClient(t), "Lee", "guessio")

	if got := f.joinGame(t, client, other, "Zoe"); got != hostID {
		t.Fatalf("expected cookie identity %s, got %s", hostID, got)
	}
	// Rejoining one's own game is idempotent.
	if got := f.joinGame(t, client, code, "Zoe"); got != hostID {
		t.Fatalf("expected rejoin as %s, got %s", hostID, got)
	}
}

func TestCreateGameValidation(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		name    string
		payload map[string]string
		want    string
	}{
		{"missing nickname", map[string]string{"gameType": "guessio"}, "Host nickname is required"},
		{"long nickname", map[string]string{"hostNickname": strings.Repeat("x", 21)}, "Nickname must be 1-20 characters"},
		{"unknown type", map[string]string{"hostNickname": "Zoe", "gameType": "charades"}, "Unknown game type"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := doRequest(t, http.DefaultClient, http.MethodPost, f.ts.URL+"/api/create-game", tc.payload)
			if resp.StatusCode != http.StatusBadRequest || body["error"] != tc.want {
				t.Fatalf("expected 400 %q, got %d %v", tc.want, resp.StatusCode, body)
			}
		})
	}
}

func TestJoinGameErrors(t *testing.T) {
	f := newFixture(t)
	code, _ := f.createGame(t, newClient(t), "Zoe", "guessio")

	resp, body := doRequest(t, newClient(t), http.MethodPost, f.ts.URL+"/api/join-game", map[string]string{"gameCode": "ZZZZZZ", "nickname": "Max"})
	if resp.StatusCode != http.StatusNotFound || body["error"] != game.ErrGameNotFound.Error() {
		t.Fatalf("expected 404, got %d %v", resp.StatusCode, body)
	}

	resp, body = doRequest(t, newClient(t), http.MethodPost, f.ts.URL+"/api/join-game", map[string]string{"gameCode": code, "nickname": "zoe"})
	if resp.StatusCode != http.StatusConflict || body["error"] != game.ErrNicknameTaken.Error() {
		t.Fatalf("expected 409 nickname taken, got %d %v", resp.StatusCode, body)
	}

	resp, _ = doRequest(t, newClient(t), http.MethodPost, f.ts.URL+"/api/join-game", map[string]string{"gameCode": "AB", "nickname": "Max"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed code, got %d", resp.StatusCode)
	}

	resp, _ = doRequest(t, http.DefaultClient, http.MethodGet, f.ts.URL+"/api/game/QQQQQQ", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown game, got %d", resp.StatusCode)
	}
}

func TestCreateRetriesDuplicateCodes(t *testing.T) {
	f := newFixture(t)
	first, _ := f.createGame(t, newClient(t), "Zoe", "guessio")

	codes := []string{first, first, "NEW123"}
	f.srv.newCode = func() (string, error) {
		code := codes[0]
		codes = codes[1:]
		return code, nil
	}
	code, _ := f.createGame(t, newClient(t), "Max", "guessio")
	if code != "NEW123" {
		t.Fatalf("expected retry to land on NEW123, got %s", code)
	}
}

func TestHealthAndCORS(t *testing.T) {
	f := newFixture(t)
	resp, body := doRequest(t, http.DefaultClient, http.MethodGet, f.ts.URL+"/health", nil)
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" || body["store"] != "memory" {
		t.Fatalf("unexpected health %d %v", resp.StatusCode, body)
	}

	req, _ := http.NewRequest(http.MethodOptions, f.ts.URL+"/api/create-game", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	preflight, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("preflight: %v", err)
	}
	preflight.Body.Close()
	if preflight.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204 preflight, got %d", preflight.StatusCode)
	}
	if got := preflight.Header.Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("unexpected allow origin %q", got)
	}

	req, _ = http.NewRequest(http.MethodOptions, f.ts.URL+"/api/create-game", nil)
	req.Header.Set("Origin", "http://evil.example")
	denied, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("preflight: %v", err)
	}
	denied.Body.Close()
	if denied.Header.Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("unknown origin must not be allowed")
	}
}

func TestIdentityTokens(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	ids := identities{secret: []byte("secret"), now: func() time.Time { return now }}
	playerID := uuid.NewString()

	token, err := ids.mint(playerID)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if got, err := ids.parse(token); err != nil || got != playerID {
		t.Fatalf("parse: %q %v", got, err)
	}

	other := identities{secret: []byte("other"), now: ids.now}
	if _, err := other.parse(token); err == nil {
		t.Fatalf("token signed with another secret must not parse")
	}

	later := identities{secret: ids.secret, now: func() time.Time { return now.Add(25 * time.Hour) }}
	if _, err := later.parse(token); !errors.Is(err, jwt.ErrTokenExpired) {
		t.Fatalf("expected expired token, got %v", err)
	}

	notUUID, _ := ids.mint("player-1")
	if _, err := ids.parse(notUUID); err == nil {
		t.Fatalf("non-uuid subject must be rejected")
	}
}

func TestStatusMapping(t *testing.T) {
	cases := map[error]int{
		game.ErrWrongPhase:             http.StatusBadRequest,
		game.ErrGameNotFound:           http.StatusNotFound,
		game.ErrAlreadyStarted:         http.StatusConflict,
		game.Unavailable("redis down"): http.StatusInternalServerError,
		errors.New("boom"):             http.StatusInternalServerError,
	}
	for err, want := range cases {
		if got := statusFor(err); got != want {
			t.Fatalf("statusFor(%v) = %d, want %d", err, got, want)
		}
	}
	if got := clientMessage(game.Unavailable("redis down"), "Failed"); got != "Failed" {
		t.Fatalf("storage errors must not leak, got %q", got)
	}
}

func TestNewGameCode(t *testing.T) {
	seen := make(map[string]bool)
	for range 50 {
		code, err := newGameCode()
		if err != nil {
			t.Fatalf("new code: %v", err)
		}
		if !isGameCode(code) {
			t.Fatalf("malformed code %q", code)
		}
		seen[code] = true
	}
	if len(seen) < 45 {
		t.Fatalf("codes are not random enough: %d distinct of 50", len(seen))
	}
}
