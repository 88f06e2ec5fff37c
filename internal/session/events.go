package session

import (
	"time"

	"party-rounds/internal/game"
)

const (
	EventPlayerJoined           = "playerJoined"
	EventPlayerLeft             = "playerLeft"
	EventPlayerOnline           = "playerOnline"
	EventPlayerOffline          = "playerOffline"
	EventGameStarted            = "gameStarted"
	EventImageGenerating        = "imageGenerating"
	EventImageReady             = "imageReady"
	EventImageGenerationFailed  = "imageGenerationFailed"
	EventGuessReceived          = "guessReceived"
	EventRoundResults           = "roundResults"
	EventNextTurn               = "nextTurn"
	EventStoryComplete          = "storyComplete"
	EventInterpretationReceived = "interpretationReceived"
	EventVotingStarted          = "votingStarted"
	EventVoteReceived           = "voteReceived"
	EventEmojiStoryRoundResults = "emojiStoryRoundResults"
	EventStatementsReady        = "statementsReady"
	EventTwoTruthsRoundResults  = "twoTruthsRoundResults"
	EventNextRound              = "nextRound"
	EventGameEnd                = "gameEnd"
	EventChatMessage            = "chatMessage"

	// eventGameCreated is archived but never broadcast; nobody is subscribed yet.
	eventGameCreated = "gameCreated"
)

type playerJoinedPayload struct {
	Player       game.Player `json:"player"`
	TotalPlayers int         `json:"totalPlayers"`
}

type playerLeftPayload struct {
	PlayerID     string `json:"playerId"`
	Nickname     string `json:"nickname"`
	TotalPlayers int    `json:"totalPlayers"`
}

type presencePayload struct {
	PlayerID string `json:"playerId"`
	Nickname string `json:"nickname"`
}

// roundAnnouncement is the payload of gameStarted and nextRound.
type roundAnnouncement struct {
	Round                    int    `json:"round"`
	TotalRounds              int    `json:"totalRounds"`
	PrompterID               string `json:"prompterId,omitempty"`
	PrompterNickname         string `json:"prompterNickname,omitempty"`
	CurrentTurnPlayerID      string `json:"currentTurnPlayerId,omitempty"`
	CurrentTurnNickname      string `json:"currentTurnNickname,omitempty"`
	TimePerTurn              int    `json:"timePerTurn,omitempty"`
	CurrentPresenterPlayerID string `json:"currentPresenterPlayerId,omitempty"`
	CurrentPresenterNickname string `json:"currentPresenterNickname,omitempty"`
	TimeToSubmit             int    `json:"timeToSubmit,omitempty"`
}

type imageGeneratingPayload struct {
	Round      int    `json:"round"`
	PrompterID string `json:"prompterId"`
}

type imageReadyPayload struct {
	Round             int    `json:"round"`
	ImageURL          string `json:"imageUrl"`
	GuessingTimeLimit int    `json:"guessingTimeLimit"`
}

type imageFailedPayload struct {
	Error string `json:"error"`
	Round int    `json:"round"`
}

type guessReceivedPayload struct {
	PlayerID     string `json:"playerId"`
	GuessCount   int    `json:"guessCount"`
	TotalPlayers int    `json:"totalPlayers"`
}

type guessResult struct {
	PlayerID   string  `json:"playerId"`
	Nickname   string  `json:"nickname"`
	Guess      string  `json:"guess"`
	Similarity float64 `json:"similarity"`
	Points     int     `json:"points"`
}

type roundResultsPayload struct {
	Round    int             `json:"round"`
	Prompt   string          `json:"prompt"`
	ImageURL string          `json:"imageUrl"`
	Guesses  []guessResult   `json:"guesses"`
	Scores   []game.Standing `json:"scores"`
}

type contributionView struct {
	PlayerID  string `json:"playerId"`
	Nickname  string `json:"nickname"`
	Emojis    string `json:"emojis"`
	TurnOrder int    `json:"turnOrder"`
}

type nextTurnPayload struct {
	Round               int                `json:"round"`
	CurrentTurnPlayerID string             `json:"currentTurnPlayerId"`
	CurrentTurnNickname string             `json:"currentTurnNickname"`
	StoryContributions  []contributionView `json:"storyContributions"`
	SkippedPlayerID     string             `json:"skippedPlayerId,omitempty"`
}

type storyCompletePayload struct {
	Round              int                `json:"round"`
	StoryContributions []contributionView `json:"storyContributions"`
	TimeToInterpret    int                `json:"timeToInterpret"`
}

type interpretationReceivedPayload struct {
	PlayerID            string `json:"playerId"`
	InterpretationCount int    `json:"interpretationCount"`
	TotalPlayers        int    `json:"totalPlayers"`
}

type votingStartedPayload struct {
	Round           int                   `json:"round"`
	Interpretations []game.Interpretation `json:"interpretations"`
	TimeToVote      int                   `json:"timeToVote"`
}

type voteReceivedPayload struct {
	PlayerID     string `json:"playerId"`
	VoteCount    int    `json:"voteCount"`
	TotalPlayers int    `json:"totalPlayers,omitempty"`
	TotalVoters  int    `json:"totalVoters,omitempty"`
}

type interpretationResult struct {
	PlayerID       string `json:"playerId"`
	Nickname       string `json:"nickname"`
	Interpretation string `json:"interpretation"`
	Votes          int    `json:"votes"`
	Points         int    `json:"points"`
}

type storyVote struct {
	VoterPlayerID    string `json:"voterPlayerId"`
	VoterNickname    string `json:"voterNickname"`
	VotedForPlayerID string `json:"votedForPlayerId"`
	VotedForNickname string `json:"votedForNickname"`
}

type emojiStoryResultsPayload struct {
	Round              int                    `json:"round"`
	StoryContributions []contributionView     `json:"storyContributions"`
	Interpretations    []interpretationResult `json:"interpretations"`
	Votes              []storyVote            `json:"votes"`
	Scores             []game.Standing        `json:"scores"`
}

type statementsReadyPayload struct {
	Round             int                    `json:"round"`
	PresenterPlayerID string                 `json:"presenterPlayerId"`
	PresenterNickname string                 `json:"presenterNickname"`
	Statements        []game.PublicStatement `json:"statements"`
	TimeToVote        int                    `json:"timeToVote"`
}

type statementResult struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	IsLie bool   `json:"isLie"`
	Votes int    `json:"votes"`
}

type statementVote struct {
	VoterPlayerID    string `json:"voterPlayerId"`
	VoterNickname    string `json:"voterNickname"`
	VotedStatementID string `json:"votedStatementId"`
	WasCorrect       bool   `json:"wasCorrect"`
}

type roundPoints struct {
	PlayerID    string `json:"playerId"`
	Nickname    string `json:"nickname"`
	RoundPoints int    `json:"roundPoints"`
}

type twoTruthsResultsPayload struct {
	Round             int               `json:"round"`
	PresenterPlayerID string            `json:"presenterPlayerId"`
	PresenterNickname string            `json:"presenterNickname"`
	Skipped           bool              `json:"skipped,omitempty"`
	Statements        []statementResult `json:"statements"`
	Votes             []statementVote   `json:"votes"`
	Scores            []roundPoints     `json:"scores"`
	TotalScores       []game.Standing   `json:"totalScores"`
}

type gameEndPayload struct {
	Winner      *game.Player    `json:"winner"`
	FinalScores []game.Standing `json:"finalScores"`
}

type chatPayload struct {
	PlayerID  string    `json:"playerId"`
	Nickname  string    `json:"nickname"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

func nicknameOf(g *game.Game, playerID string) string {
	if p, ok := g.Player(playerID); ok {
		return p.Nickname
	}
	return ""
}

func contributionViews(g *game.Game, contributions []game.Contribution) []contributionView {
	out := make([]contributionView, 0, len(contributions))
	for _, c := range contributions {
		out = append(out, contributionView{
			PlayerID:  c.PlayerID,
			Nickname:  nicknameOf(g, c.PlayerID),
			Emojis:    c.Emojis,
			TurnOrder: c.TurnOrder,
		})
	}
	return out
}
