package session

import (
	"context"

	"party-rounds/internal/game"
)

const (
	correctGuessPoints  = 3
	presenterFoolPoints = 2
)

// StatementInput is one statement as submitted by a presenter.
type StatementInput struct {
	Text  string `json:"text"`
	IsLie bool   `json:"isLie"`
}

func (s *Service) newTwoTruthsRound(g *game.Game, number int) *game.Round {
	return &game.Round{
		Number:    number,
		Kind:      game.TypeTwoTruths,
		Status:    game.PhaseWaitingForStatements,
		StartedAt: s.now(),
		TwoTruths: &game.TwoTruthsRound{
			PresenterID:  rotating(g, number),
			Statements:   []game.Statement{},
			TimeToSubmit: g.Settings.TimeToSubmitStatements,
			TimeToVote:   g.Settings.TimeToVote,
		},
	}
}

func announceTwoTruths(g *game.Game, r *game.Round, a *roundAnnouncement) {
	a.CurrentPresenterPlayerID = r.TwoTruths.PresenterID
	a.CurrentPresenterNickname = nicknameOf(g, r.TwoTruths.PresenterID)
	a.TimeToSubmit = r.TwoTruths.TimeToSubmit
}

func (s *Service) enterTwoTruthsRound(g *game.Game, r *game.Round, fx *effects) {
	s.armPhase(fx, g.Code, r.Number, game.PhaseWaitingForStatements, seconds(r.TwoTruths.TimeToSubmit))
}

func cleanStatements(inputs []StatementInput) ([]StatementInput, error) {
	if len(inputs) != game.StatementCount {
		return nil, game.Invalid("exactly 3 statements are required")
	}
	out := make([]StatementInput, 0, len(inputs))
	lies := 0
	for _, in := range inputs {
		text, err := game.CleanText("statement", in.Text, game.MaxStatementLength)
		if err != nil {
			return nil, err
		}
		if in.IsLie {
			lies++
		}
		out = append(out, StatementInput{Text: text, IsLie: in.IsLie})
	}
	if lies != 1 {
		return nil, game.Invalid("exactly one statement must be the lie")
	}
	return out, nil
}

// SubmitStatements stores the presenter's statements and opens voting.
func (s *Service) SubmitStatements(ctx context.Context, code, playerID string, inputs []StatementInput) (err error) {
	ctx, span := s.startSpan(ctx, "SubmitStatements", code)
	defer func() { endSpan(span, err) }()

	cleaned, err := cleanStatements(inputs)
	if err != nil {
		return err
	}
	_, err = s.mutate(ctx, code, func(g *game.Game, fx *effects) error {
		r, err := activeRound(g, game.TypeTwoTruths)
		if err != nil {
			return err
		}
		if _, err := requirePlayer(g, playerID); err != nil {
			return err
		}
		if r.Status != game.PhaseWaitingForStatements {
			return game.ErrWrongPhase
		}
		tt := r.TwoTruths
		if tt.PresenterID != playerID {
			return game.ErrNotYourTurn
		}
		if len(tt.Statements) > 0 {
			return game.ErrAlreadySubmitted
		}
		for i, in := range cleaned {
			tt.Statements = append(tt.Statements, game.Statement{
				ID:    game.StatementID(playerID, i),
				Text:  in.Text,
				IsLie: in.IsLie,
			})
		}
		fx.cancel(s.phaseKey(code, r.Number, game.PhaseWaitingForStatements))
		r.Status = game.PhaseVoting
		fx.emit(EventStatementsReady, statementsReadyPayload{
			Round:             r.Number,
			PresenterPlayerID: playerID,
			PresenterNickname: nicknameOf(g, playerID),
			Statements:        game.PublicStatements(tt.Statements, false),
			TimeToVote:        tt.TimeToVote,
		})
		s.armPhase(fx, code, r.Number, game.PhaseVoting, seconds(tt.TimeToVote))
		return nil
	})
	return err
}

// skipStatements reveals a round whose presenter never submitted. Nobody scores.
func (s *Service) skipStatements(g *game.Game, r *game.Round, fx *effects) {
	fx.cancel(s.phaseKey(g.Code, r.Number, game.PhaseWaitingForStatements))
	tt := r.TwoTruths
	r.Finish(s.now())
	r.Scored = true
	fx.emit(EventTwoTruthsRoundResults, twoTruthsResultsPayload{
		Round:             r.Number,
		PresenterPlayerID: tt.PresenterID,
		PresenterNickname: nicknameOf(g, tt.PresenterID),
		Skipped:           true,
		Statements:        []statementResult{},
		Votes:             []statementVote{},
		Scores:            []roundPoints{},
		TotalScores:       g.Standings(),
	})
	s.armAdvance(fx, g.Code, r.Number, s.opts.StoryRevealDelay)
}

// SubmitTwoTruthsVote records which statement a non-presenter believes is the lie.
func (s *Service) SubmitTwoTruthsVote(ctx context.Context, code, playerID, statementID string) (err error) {
	ctx, span := s.startSpan(ctx, "SubmitTwoTruthsVote", code)
	defer func() { endSpan(span, err) }()

	_, err = s.mutate(ctx, code, func(g *game.Game, fx *effects) error {
		r, err := activeRound(g, game.TypeTwoTruths)
		if err != nil {
			return err
		}
		if _, err := requirePlayer(g, playerID); err != nil {
			return err
		}
		if r.Status != game.PhaseVoting {
			return game.ErrWrongPhase
		}
		tt := r.TwoTruths
		if tt.PresenterID == playerID {
			return game.Invalid("the presenter cannot vote")
		}
		if _, ok := tt.Statement(statementID); !ok {
			return game.Invalid("unknown statement")
		}
		if tt.Votes.Has(playerID) {
			return game.ErrAlreadySubmitted
		}
		tt.Votes.Set(playerID, statementID)
		voters := g.Players.Len() - 1
		fx.emit(EventVoteReceived, voteReceivedPayload{
			PlayerID:    playerID,
			VoteCount:   tt.Votes.Len(),
			TotalVoters: voters,
		})
		if tt.Votes.Len() >= voters {
			s.endTwoTruthsVoting(g, r, fx)
		}
		return nil
	})
	return err
}

// endTwoTruthsVoting scores the round. Correct voters earn 3 points; the
// presenter earns 2 for every non-presenter who did not pick the lie.
func (s *Service) endTwoTruthsVoting(g *game.Game, r *game.Round, fx *effects) {
	fx.cancel(s.phaseKey(g.Code, r.Number, game.PhaseVoting))
	tt := r.TwoTruths
	lie, _ := tt.Lie()

	perStatement := make(map[string]int, len(tt.Statements))
	votes := make([]statementVote, 0, tt.Votes.Len())
	caught := 0
	for voter, statementID := range tt.Votes.All() {
		perStatement[statementID]++
		correct := statementID == lie.ID
		if correct {
			caught++
		}
		votes = append(votes, statementVote{
			VoterPlayerID:    voter,
			VoterNickname:    nicknameOf(g, voter),
			VotedStatementID: statementID,
			WasCorrect:       correct,
		})
	}
	presenterPoints := presenterFoolPoints * (g.Players.Len() - 1 - caught)

	scores := make([]roundPoints, 0, g.Players.Len())
	for id, p := range g.Players.All() {
		var points int
		switch {
		case id == tt.PresenterID:
			points = presenterPoints
		case tt.Votes.Has(id):
			if voted, _ := tt.Votes.Get(id); voted == lie.ID {
				points = correctGuessPoints
			}
		default:
			continue
		}
		r.Scores.Set(id, points)
		scores = append(scores, roundPoints{PlayerID: id, Nickname: p.Nickname, RoundPoints: points})
	}

	statements := make([]statementResult, 0, len(tt.Statements))
	for _, st := range tt.Statements {
		statements = append(statements, statementResult{ID: st.ID, Text: st.Text, IsLie: st.IsLie, Votes: perStatement[st.ID]})
	}

	r.Finish(s.now())
	r.Scored = true
	g.AddScores(r.Scores)
	fx.emit(EventTwoTruthsRoundResults, twoTruthsResultsPayload{
		Round:             r.Number,
		PresenterPlayerID: tt.PresenterID,
		PresenterNickname: nicknameOf(g, tt.PresenterID),
		Statements:        statements,
		Votes:             votes,
		Scores:            scores,
		TotalScores:       g.Standings(),
	})
	s.armAdvance(fx, g.Code, r.Number, s.opts.StoryRevealDelay)
}
