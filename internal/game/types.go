package game

import (
	"sort"
	"time"

	"golang.org/x/text/cases"
)

type Type string

const (
	TypeGuessio    Type = "guessio"
	TypeEmojiStory Type = "emojistory"
	TypeTwoTruths  Type = "twotruths"
)

func (t Type) Valid() bool {
	switch t {
	case TypeGuessio, TypeEmojiStory, TypeTwoTruths:
		return true
	}
	return false
}

type Status string

const (
	StatusLobby     Status = "lobby"
	StatusPlaying   Status = "playing"
	StatusCompleted Status = "completed"
)

type Player struct {
	ID       string    `json:"id"`
	Nickname string    `json:"nickname"`
	Score    int       `json:"score"`
	IsHost   bool      `json:"isHost"`
	IsOnline bool      `json:"isOnline"`
	JoinedAt time.Time `json:"joinedAt"`
}

// Settings holds per-variant timing in seconds. Fields a variant does not use stay zero.
type Settings struct {
	MaxRounds              int `json:"maxRounds"`
	GuessingTimeLimit      int `json:"guessingTimeLimit,omitempty"`
	TimePerTurn            int `json:"timePerTurn,omitempty"`
	TimeToSubmitStatements int `json:"timeToSubmitStatements,omitempty"`
	TimeToVote             int `json:"timeToVote,omitempty"`
}

// Defaults returns capacity and settings for a new game of type t.
func Defaults(t Type) (int, Settings) {
	switch t {
	case TypeEmojiStory:
		return 20, Settings{MaxRounds: 3, TimePerTurn: 30}
	case TypeTwoTruths:
		return 10, Settings{MaxRounds: 10, TimeToSubmitStatements: 60, TimeToVote: 30}
	default:
		return 50, Settings{MaxRounds: 10, GuessingTimeLimit: 15}
	}
}

type Game struct {
	Code         string              `json:"code"`
	Type         Type                `json:"gameType"`
	Players      OrderedMap[*Player] `json:"players"`
	Rounds       []*Round            `json:"rounds"`
	CurrentRound int                 `json:"currentRound"`
	Status       Status              `json:"status"`
	MaxPlayers   int                 `json:"maxPlayers"`
	Settings     Settings            `json:"settings"`
	CreatedAt    time.Time           `json:"createdAt"`
	UpdatedAt    time.Time           `json:"updatedAt"`

	// Version is bumped by the store on every write.
	Version int64 `json:"-"`
}

// New returns a lobby game with the host as its only player.
func New(code string, t Type, hostID, hostNickname string, now time.Time) *Game {
	maxPlayers, settings := Defaults(t)
	g := &Game{
		Code:       code,
		Type:       t,
		Status:     StatusLobby,
		MaxPlayers: maxPlayers,
		Settings:   settings,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	g.Players.Set(hostID, &Player{
		ID:       hostID,
		Nickname: hostNickname,
		IsHost:   true,
		IsOnline: true,
		JoinedAt: now,
	})
	return g
}

func (g *Game) Player(id string) (*Player, bool) {
	return g.Players.Get(id)
}

// PlayerIDs returns player ids in join order.
func (g *Game) PlayerIDs() []string {
	return g.Players.Keys()
}

func (g *Game) Host() *Player {
	for _, p := range g.Players.All() {
		if p.IsHost {
			return p
		}
	}
	return nil
}

// Current returns the active round, or nil while in the lobby.
func (g *Game) Current() *Round {
	if g.CurrentRound < 1 || g.CurrentRound > len(g.Rounds) {
		return nil
	}
	return g.Rounds[g.CurrentRound-1]
}

// NicknameTaken reports whether nickname collides case-insensitively with a player other than exceptID.
func (g *Game) NicknameTaken(nickname, exceptID string) bool {
	folder := cases.Fold()
	folded := folder.String(nickname)
	for id, p := range g.Players.All() {
		if id == exceptID {
			continue
		}
		if folder.String(p.Nickname) == folded {
			return true
		}
	}
	return false
}

// AddScores merges a round's awards into cumulative player scores.
func (g *Game) AddScores(scores OrderedMap[int]) {
	for id, points := range scores.All() {
		if p, ok := g.Players.Get(id); ok && points > 0 {
			p.Score += points
		}
	}
}

type Standing struct {
	PlayerID   string `json:"playerId"`
	Nickname   string `json:"nickname"`
	TotalScore int    `json:"totalScore"`
}

// Standings lists players by total score, highest first. Ties keep join order.
func (g *Game) Standings() []Standing {
	out := make([]Standing, 0, g.Players.Len())
	for _, p := range g.Players.All() {
		out = append(out, Standing{PlayerID: p.ID, Nickname: p.Nickname, TotalScore: p.Score})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].TotalScore > out[j].TotalScore
	})
	return out
}
