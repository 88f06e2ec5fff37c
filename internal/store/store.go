package store

import (
	"context"
	"encoding/json"
	"time"

	"party-rounds/internal/game"
)

const (
	// DefaultTTL is how long a game document lives after its last write.
	DefaultTTL = 24 * time.Hour
	// SweepInterval is how often the in-memory store evicts expired games.
	SweepInterval = 5 * time.Minute

	keyPrefix = "game:"
)

// Message is one event delivered on a game's channel.
type Message struct {
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

type Handler func(Message)

// UpdateFunc mutates a freshly read game. It may be called more than once
// for a single Update and must not have side effects outside the game.
type UpdateFunc func(g *game.Game) error

// GameStore keeps one document per game code and one pub/sub channel per code.
type GameStore interface {
	Save(ctx context.Context, g *game.Game) error
	// Create stores g only if no game with its code exists.
	Create(ctx context.Context, g *game.Game) error
	Get(ctx context.Context, code string) (*game.Game, error)
	// Update runs fn against the current document and writes the result.
	// Concurrent updates of the same code are serialized.
	Update(ctx context.Context, code string, fn UpdateFunc) (*game.Game, error)
	Delete(ctx context.Context, code string) error
	// DeleteIf removes the game only if cond holds for the current document,
	// atomically with respect to Update. It reports whether it deleted.
	DeleteIf(ctx context.Context, code string, cond func(g *game.Game) bool) (bool, error)
	Exists(ctx context.Context, code string) (bool, error)
	Publish(ctx context.Context, code, event string, payload any) error
	Subscribe(ctx context.Context, code string, handler Handler) error
	Unsubscribe(ctx context.Context, code string) error
	Close() error
}

func gameKey(code string) string {
	return keyPrefix + code
}

func channelName(code string) string {
	return keyPrefix + code
}

func encodeMessage(event string, payload any, now time.Time) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{Event: event, Data: data, Timestamp: now})
}

func decodeMessage(data []byte) (Message, error) {
	var msg Message
	err := json.Unmarshal(data, &msg)
	return msg, err
}
