package store

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"party-rounds/internal/game"
)

// encodeGame flattens a game into hash fields. Nested collections are JSON;
// ordered maps inside them encode as [key, value] pair sequences.
func encodeGame(g *game.Game) (map[string]string, error) {
	players, err := json.Marshal(g.Players)
	if err != nil {
		return nil, fmt.Errorf("encode players: %w", err)
	}
	rounds := g.Rounds
	if rounds == nil {
		rounds = []*game.Round{}
	}
	roundsJSON, err := json.Marshal(rounds)
	if err != nil {
		return nil, fmt.Errorf("encode rounds: %w", err)
	}
	settings, err := json.Marshal(g.Settings)
	if err != nil {
		return nil, fmt.Errorf("encode settings: %w", err)
	}
	return map[string]string{
		"code":         g.Code,
		"gameType":     string(g.Type),
		"players":      string(players),
		"rounds":       string(roundsJSON),
		"currentRound": strconv.Itoa(g.CurrentRound),
		"status":       string(g.Status),
		"maxPlayers":   strconv.Itoa(g.MaxPlayers),
		"settings":     string(settings),
		"createdAt":    g.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updatedAt":    g.UpdatedAt.UTC().Format(time.RFC3339Nano),
		"version":      strconv.FormatInt(g.Version, 10),
	}, nil
}

func decodeGame(fields map[string]string) (*game.Game, error) {
	g := &game.Game{
		Code:   fields["code"],
		Type:   game.Type(fields["gameType"]),
		Status: game.Status(fields["status"]),
	}
	if err := json.Unmarshal([]byte(fields["players"]), &g.Players); err != nil {
		return nil, fmt.Errorf("decode players: %w", err)
	}
	if err := json.Unmarshal([]byte(fields["rounds"]), &g.Rounds); err != nil {
		return nil, fmt.Errorf("decode rounds: %w", err)
	}
	if err := json.Unmarshal([]byte(fields["settings"]), &g.Settings); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	var err error
	if g.CurrentRound, err = strconv.Atoi(fields["currentRound"]); err != nil {
		return nil, fmt.Errorf("decode currentRound: %w", err)
	}
	if g.MaxPlayers, err = strconv.Atoi(fields["maxPlayers"]); err != nil {
		return nil, fmt.Errorf("decode maxPlayers: %w", err)
	}
	if g.CreatedAt, err = time.Parse(time.RFC3339Nano, fields["createdAt"]); err != nil {
		return nil, fmt.Errorf("decode createdAt: %w", err)
	}
	if g.UpdatedAt, err = time.Parse(time.RFC3339Nano, fields["updatedAt"]); err != nil {
		return nil, fmt.Errorf("decode updatedAt: %w", err)
	}
	if raw := fields["version"]; raw != "" {
		if g.Version, err = strconv.ParseInt(raw, 10, 64); err != nil {
			return nil, fmt.Errorf("decode version: %w", err)
		}
	}
	return g, nil
}

func fieldArgs(fields map[string]string) []any {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return args
}
