package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"

	"party-rounds/internal/game"
	"party-rounds/internal/session"
	"party-rounds/internal/store"
)

const actionTimeout = 15 * time.Second

// wsSession is what a connection knows about itself after joinGame.
type wsSession struct {
	gameCode string
	playerID string
}

func (s wsSession) joined() bool {
	return s.gameCode != "" && s.playerID != ""
}

type joinGamePayload struct {
	GameCode string `json:"gameCode"`
	PlayerID string `json:"playerId"`
}

type gameStatePayload struct {
	Game     game.View `json:"game"`
	PlayerID string    `json:"playerId"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type ackPayload struct {
	Success bool `json:"success"`
}

// action is one inbound message type that requires a joined session.
type action struct {
	ack     string
	failure string
	run     func(ctx context.Context, sess wsSession, payload json.RawMessage) error
}

func errorMessage(message string) wsMessage {
	return wsMessage{Type: "error", Payload: errorPayload{Message: message}}
}

func decodePayload(raw json.RawMessage, out any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return game.Invalid("payload is required")
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return game.Invalid("malformed payload")
	}
	return nil
}

const errNotYourPlayer = "Not authorized to join as this player"

var errNotStarted = game.Invalid("Failed to start game. Make sure you are the host and have at least 2 players.")

func (s *Server) actions() map[string]action {
	return map[string]action{
		"startGame": {ack: "startGameAccepted", failure: "Failed to start game", run: func(ctx context.Context, sess wsSession, _ json.RawMessage) error {
			started, err := s.svc.StartGame(ctx, sess.gameCode, sess.playerID)
			if err != nil {
				return err
			}
			if !started {
				return errNotStarted
			}
			return nil
		}},
		"chatMessage": {ack: "chatSent", failure: "Failed to send message", run: func(ctx context.Context, sess wsSession, raw json.RawMessage) error {
			var req struct {
				Message string `json:"message"`
			}
			if err := decodePayload(raw, &req); err != nil {
				return err
			}
			return s.svc.SendChat(ctx, sess.gameCode, sess.playerID, req.Message)
		}},
		"submitPrompt": {ack: "promptSubmitted", failure: "Failed to submit prompt", run: func(ctx context.Context, sess wsSession, raw json.RawMessage) error {
			var req struct {
				Prompt string `json:"prompt"`
			}
			if err := decodePayload(raw, &req); err != nil {
				return err
			}
			return s.svc.SubmitPrompt(ctx, sess.gameCode, sess.playerID, req.Prompt)
		}},
		"submitGuess": {ack: "guessSubmitted", failure: "Failed to submit guess", run: func(ctx context.Context, sess wsSession, raw json.RawMessage) error {
			var req struct {
				Guess string `json:"guess"`
			}
			if err := decodePayload(raw, &req); err != nil {
				return err
			}
			return s.svc.SubmitGuess(ctx, sess.gameCode, sess.playerID, req.Guess)
		}},
		"submitEmojis": {ack: "emojisSubmitted", failure: "Failed to submit emojis", run: func(ctx context.Context, sess wsSession, raw json.RawMessage) error {
			var req struct {
				Emojis string `json:"emojis"`
			}
			if err := decodePayload(raw, &req); err != nil {
				return err
			}
			return s.svc.SubmitEmojis(ctx, sess.gameCode, sess.playerID, req.Emojis)
		}},
		"submitStoryInterpretation": {ack: "interpretationSubmitted", failure: "Failed to submit interpretation", run: func(ctx context.Context, sess wsSession, raw json.RawMessage) error {
			var req struct {
				Interpretation string `json:"interpretation"`
			}
			if err := decodePayload(raw, &req); err != nil {
				return err
			}
			return s.svc.SubmitStoryInterpretation(ctx, sess.gameCode, sess.playerID, req.Interpretation)
		}},
		"submitVote": {ack: "voteSubmitted", failure: "Failed to submit vote", run: func(ctx context.Context, sess wsSession, raw json.RawMessage) error {
			var req struct {
				VotedForPlayerID string `json:"votedForPlayerId"`
			}
			if err := decodePayload(raw, &req); err != nil {
				return err
			}
			return s.svc.SubmitVote(ctx, sess.gameCode, sess.playerID, req.VotedForPlayerID)
		}},
		"submitStatements": {ack: "statementsSubmitted", failure: "Failed to submit statements", run: func(ctx context.Context, sess wsSession, raw json.RawMessage) error {
			var req struct {
				Statements []session.StatementInput `json:"statements"`
			}
			if err := decodePayload(raw, &req); err != nil {
				return err
			}
			return s.svc.SubmitStatements(ctx, sess.gameCode, sess.playerID, req.Statements)
		}},
		"submitTwoTruthsVote": {ack: "voteSubmitted", failure: "Failed to submit vote", run: func(ctx context.Context, sess wsSession, raw json.RawMessage) error {
			var req struct {
				StatementID string `json:"statementId"`
			}
			if err := decodePayload(raw, &req); err != nil {
				return err
			}
			return s.svc.SubmitTwoTruthsVote(ctx, sess.gameCode, sess.playerID, req.StatementID)
		}},
	}
}

// dispatch handles one inbound message and returns the connection's session
// as it stands afterwards. Replies go to the sender only.
func (s *Server) dispatch(c *wsClient, sess wsSession, msg inboundMessage) wsSession {
	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	defer cancel()

	switch msg.Type {
	case "joinGame":
		return s.joinSocket(ctx, c, sess, msg.Payload)
	case "leaveGame":
		return s.leaveSocket(ctx, c, sess)
	}
	act, ok := s.handlers[msg.Type]
	if !ok {
		c.Send(errorMessage("Unknown message type"))
		return sess
	}
	if !sess.joined() {
		c.Send(errorMessage("Not connected to a game"))
		return sess
	}
	if err := act.run(ctx, sess, msg.Payload); err != nil {
		if statusFor(err) >= 500 {
			log.Printf("ws action failed type=%s game_code=%s player_id=%s error=%v", msg.Type, sess.gameCode, sess.playerID, err)
		}
		c.Send(errorMessage(clientMessage(err, act.failure)))
		return sess
	}
	c.Send(wsMessage{Type: act.ack, Payload: ackPayload{Success: true}})
	return sess
}

func (s *Server) joinSocket(ctx context.Context, c *wsClient, sess wsSession, raw json.RawMessage) wsSession {
	var req joinGamePayload
	if err := json.Unmarshal(raw, &req); err != nil || strings.TrimSpace(req.GameCode) == "" || req.PlayerID == "" {
		c.Send(errorMessage("Game code and player ID are required"))
		return sess
	}
	// The socket may only act as the player its identity cookie names.
	if c.identity == "" || c.identity != req.PlayerID {
		c.Send(errorMessage(errNotYourPlayer))
		return sess
	}
	code := normalizeCode(req.GameCode)
	g, err := s.svc.GetGame(ctx, code)
	if err != nil {
		c.Send(errorMessage(clientMessage(err, "Failed to join game")))
		return sess
	}
	if _, ok := g.Player(req.PlayerID); !ok {
		c.Send(errorMessage(game.ErrPlayerNotFound.Error()))
		return sess
	}
	if err := s.subscribe(ctx, code); err != nil {
		log.Printf("subscribe failed game_code=%s error=%v", code, err)
		c.Send(errorMessage("Failed to join game"))
		return sess
	}
	if sess.joined() && sess.gameCode != code {
		s.ws.Remove(sess.gameCode, c)
	}
	s.ws.Add(code, c)
	next := wsSession{gameCode: code, playerID: req.PlayerID}

	if err := s.svc.UpdatePlayerOnlineStatus(ctx, code, req.PlayerID, true); err != nil {
		log.Printf("mark online failed game_code=%s player_id=%s error=%v", code, req.PlayerID, err)
	}
	if fresh, err := s.svc.GetGame(ctx, code); err == nil {
		g = fresh
	}
	c.Send(wsMessage{Type: "gameState", Payload: gameStatePayload{Game: game.ViewOf(g), PlayerID: req.PlayerID}})
	log.Printf("ws joined game_code=%s player_id=%s", code, req.PlayerID)
	return next
}

func (s *Server) leaveSocket(ctx context.Context, c *wsClient, sess wsSession) wsSession {
	if !sess.joined() {
		return sess
	}
	if err := s.svc.LeaveGame(ctx, sess.gameCode, sess.playerID); err != nil && !errors.Is(err, game.ErrNotFound) {
		log.Printf("leave failed game_code=%s player_id=%s error=%v", sess.gameCode, sess.playerID, err)
		c.Send(errorMessage("Failed to leave game"))
		return sess
	}
	s.ws.Remove(sess.gameCode, c)
	c.Send(wsMessage{Type: "leftGame"})
	return wsSession{}
}

func (s *Server) disconnect(sess wsSession, c *wsClient) {
	if !sess.joined() {
		return
	}
	s.ws.Remove(sess.gameCode, c)
	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	defer cancel()
	err := s.svc.UpdatePlayerOnlineStatus(ctx, sess.gameCode, sess.playerID, false)
	if err != nil && !errors.Is(err, game.ErrNotFound) {
		log.Printf("mark offline failed game_code=%s player_id=%s error=%v", sess.gameCode, sess.playerID, err)
	}
}

// subscribe attaches the hub to a game's channel once per code.
func (s *Server) subscribe(ctx context.Context, code string) error {
	if !s.ws.claimSubscription(code) {
		return nil
	}
	err := s.store.Subscribe(ctx, code, func(msg store.Message) {
		s.ws.Broadcast(code, wsMessage{Type: msg.Event, Payload: msg.Data})
	})
	if err != nil {
		s.ws.releaseSubscription(code)
	}
	return err
}
