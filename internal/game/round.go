package game

import (
	"fmt"
	"time"
)

// Phase is a round's position in its variant's state machine.
type Phase string

const (
	PhaseWaitingForPrompt     Phase = "waiting_for_prompt"
	PhaseGeneratingImage      Phase = "generating_image"
	PhaseGuessing             Phase = "guessing"
	PhaseStoryBuilding        Phase = "story_building"
	PhaseInterpreting         Phase = "interpreting"
	PhaseWaitingForStatements Phase = "waiting_for_statements"
	PhaseVoting               Phase = "voting"
	PhaseRevealing            Phase = "revealing"
)

// Round is one timed unit of play. Kind selects which variant field is set;
// exactly one of Guessio, EmojiStory and TwoTruths is non-nil.
type Round struct {
	Number    int             `json:"roundNumber"`
	Kind      Type            `json:"kind"`
	Status    Phase           `json:"status"`
	StartedAt time.Time       `json:"startedAt"`
	EndedAt   *time.Time      `json:"endedAt,omitempty"`
	Scores    OrderedMap[int] `json:"scores"`
	Scored    bool            `json:"scored"`

	Guessio    *GuessioRound    `json:"guessio,omitempty"`
	EmojiStory *EmojiStoryRound `json:"emojiStory,omitempty"`
	TwoTruths  *TwoTruthsRound  `json:"twoTruths,omitempty"`
}

type GuessioRound struct {
	PrompterID string             `json:"prompterId"`
	Prompt     string             `json:"prompt,omitempty"`
	ImageURL   string             `json:"imageUrl,omitempty"`
	Guesses    OrderedMap[string] `json:"guesses"`
}

type Contribution struct {
	PlayerID  string `json:"playerId"`
	Emojis    string `json:"emojis"`
	TurnOrder int    `json:"turnOrder"`
}

type EmojiStoryRound struct {
	// TurnOrder is the player order fixed when the round was created.
	TurnOrder           []string           `json:"turnOrder"`
	TurnIndex           int                `json:"turnIndex"`
	CurrentTurnPlayerID string             `json:"currentTurnPlayerId,omitempty"`
	TimePerTurn         int                `json:"timePerTurn"`
	Contributions       []Contribution     `json:"storyContributions"`
	Interpretations     OrderedMap[string] `json:"storyInterpretations"`
	Votes               OrderedMap[string] `json:"votes"`
}

type Statement struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	IsLie bool   `json:"isLie"`
}

type TwoTruthsRound struct {
	PresenterID  string             `json:"currentPresenterPlayerId"`
	Statements   []Statement        `json:"statements"`
	Votes        OrderedMap[string] `json:"votes"`
	TimeToSubmit int                `json:"timeToSubmit"`
	TimeToVote   int                `json:"timeToVote"`
}

// Lie returns the statement flagged as the lie.
func (r *TwoTruthsRound) Lie() (Statement, bool) {
	for _, st := range r.Statements {
		if st.IsLie {
			return st, true
		}
	}
	return Statement{}, false
}

func (r *TwoTruthsRound) Statement(id string) (Statement, bool) {
	for _, st := range r.Statements {
		if st.ID == id {
			return st, true
		}
	}
	return Statement{}, false
}

// StatementID builds the id of a presenter's statement at index.
func StatementID(presenterID string, index int) string {
	return fmt.Sprintf("%s_%d", presenterID, index)
}

// Finish moves the round to revealing and stamps its end time.
func (r *Round) Finish(now time.Time) {
	r.Status = PhaseRevealing
	r.EndedAt = &now
}
