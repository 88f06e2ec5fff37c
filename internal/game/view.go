package game

// View is the client-facing projection of a game. It leaves out what
// players must not see mid-round: the Guessio prompt and the TwoTruths lie.
type View struct {
	Code         string     `json:"code"`
	Type         Type       `json:"gameType"`
	Players      []*Player  `json:"players"`
	Status       Status     `json:"status"`
	CurrentRound int        `json:"currentRound"`
	MaxPlayers   int        `json:"maxPlayers"`
	Settings     Settings   `json:"settings"`
	Round        *RoundView `json:"round,omitempty"`
}

type RoundView struct {
	Number              int               `json:"roundNumber"`
	Status              Phase             `json:"status"`
	PrompterID          string            `json:"prompterId,omitempty"`
	Prompt              string            `json:"prompt,omitempty"`
	ImageURL            string            `json:"imageUrl,omitempty"`
	GuessCount          int               `json:"guessCount,omitempty"`
	CurrentTurnPlayerID string            `json:"currentTurnPlayerId,omitempty"`
	Contributions       []Contribution    `json:"storyContributions,omitempty"`
	PresenterID         string            `json:"currentPresenterPlayerId,omitempty"`
	Interpretations     []Interpretation  `json:"interpretations,omitempty"`
	StoryVotes          []StoryVote       `json:"votes,omitempty"`
	Statements          []PublicStatement `json:"statements,omitempty"`
	VoteCount           int               `json:"voteCount,omitempty"`
}

type Interpretation struct {
	PlayerID       string `json:"playerId"`
	Nickname       string `json:"nickname"`
	Interpretation string `json:"interpretation"`
}

type StoryVote struct {
	VoterPlayerID    string `json:"voterPlayerId"`
	VotedForPlayerID string `json:"votedForPlayerId"`
}

// StoryInterpretations lists a round's interpretations in submission order.
func StoryInterpretations(g *Game, es *EmojiStoryRound) []Interpretation {
	out := make([]Interpretation, 0, es.Interpretations.Len())
	for id, text := range es.Interpretations.All() {
		in := Interpretation{PlayerID: id, Interpretation: text}
		if p, ok := g.Player(id); ok {
			in.Nickname = p.Nickname
		}
		out = append(out, in)
	}
	return out
}

// PublicStatement omits IsLie until the round is revealed.
type PublicStatement struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	IsLie *bool  `json:"isLie,omitempty"`
}

// PublicStatements projects statements for clients, exposing the lie only when reveal is set.
func PublicStatements(statements []Statement, reveal bool) []PublicStatement {
	out := make([]PublicStatement, 0, len(statements))
	for _, st := range statements {
		ps := PublicStatement{ID: st.ID, Text: st.Text}
		if reveal {
			isLie := st.IsLie
			ps.IsLie = &isLie
		}
		out = append(out, ps)
	}
	return out
}

func ViewOf(g *Game) View {
	v := View{
		Code:         g.Code,
		Type:         g.Type,
		Players:      make([]*Player, 0, g.Players.Len()),
		Status:       g.Status,
		CurrentRound: g.CurrentRound,
		MaxPlayers:   g.MaxPlayers,
		Settings:     g.Settings,
	}
	for _, p := range g.Players.All() {
		cp := *p
		v.Players = append(v.Players, &cp)
	}
	r := g.Current()
	if r == nil {
		return v
	}
	revealed := r.Status == PhaseRevealing
	rv := &RoundView{Number: r.Number, Status: r.Status}
	switch {
	case r.Guessio != nil:
		rv.PrompterID = r.Guessio.PrompterID
		rv.ImageURL = r.Guessio.ImageURL
		rv.GuessCount = r.Guessio.Guesses.Len()
		if revealed {
			rv.Prompt = r.Guessio.Prompt
		}
	case r.EmojiStory != nil:
		rv.CurrentTurnPlayerID = r.EmojiStory.CurrentTurnPlayerID
		rv.Contributions = append([]Contribution(nil), r.EmojiStory.Contributions...)
		rv.VoteCount = r.EmojiStory.Votes.Len()
		// Interpretations stay private until every one is in.
		if r.Status == PhaseVoting || revealed {
			rv.Interpretations = StoryInterpretations(g, r.EmojiStory)
		}
		if revealed {
			for voter, target := range r.EmojiStory.Votes.All() {
				rv.StoryVotes = append(rv.StoryVotes, StoryVote{VoterPlayerID: voter, VotedForPlayerID: target})
			}
		}
	case r.TwoTruths != nil:
		rv.PresenterID = r.TwoTruths.PresenterID
		rv.VoteCount = r.TwoTruths.Votes.Len()
		rv.Statements = PublicStatements(r.TwoTruths.Statements, revealed)
	}
	v.Round = rv
	return v
}
