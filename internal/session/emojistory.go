package session

import (
	"context"
	"errors"

	"party-rounds/internal/game"
)

func (s *Service) newEmojiStoryRound(g *game.Game, number int) *game.Round {
	order := g.PlayerIDs()
	es := &game.EmojiStoryRound{
		TurnOrder:     order,
		TimePerTurn:   g.Settings.TimePerTurn,
		Contributions: []game.Contribution{},
	}
	if len(order) > 0 {
		es.CurrentTurnPlayerID = order[0]
	}
	return &game.Round{
		Number:     number,
		Kind:       game.TypeEmojiStory,
		Status:     game.PhaseStoryBuilding,
		StartedAt:  s.now(),
		EmojiStory: es,
	}
}

func announceEmojiStory(g *game.Game, r *game.Round, a *roundAnnouncement) {
	a.CurrentTurnPlayerID = r.EmojiStory.CurrentTurnPlayerID
	a.CurrentTurnNickname = nicknameOf(g, r.EmojiStory.CurrentTurnPlayerID)
	a.TimePerTurn = r.EmojiStory.TimePerTurn
}

func (s *Service) enterEmojiStoryRound(g *game.Game, r *game.Round, fx *effects) {
	s.armTurn(fx, g.Code, r)
}

func turnKey(code string, r *game.Round) timerKey {
	return timerKey{code: code, round: r.Number, phase: game.PhaseStoryBuilding, turn: r.EmojiStory.TurnIndex}
}

func (s *Service) armTurn(fx *effects, code string, r *game.Round) {
	round, turn := r.Number, r.EmojiStory.TurnIndex
	fx.schedule(turnKey(code, r), seconds(r.EmojiStory.TimePerTurn), func(ctx context.Context) {
		if _, err := s.EndStoryTurn(ctx, code, round, turn); err != nil {
			logTimerError(code, round, game.PhaseStoryBuilding, err)
		}
	})
}

// SubmitEmojis appends the current turn player's contribution and passes the turn.
func (s *Service) SubmitEmojis(ctx context.Context, code, playerID, emojis string) (err error) {
	ctx, span := s.startSpan(ctx, "SubmitEmojis", code)
	defer func() { endSpan(span, err) }()

	emojis, err = game.CleanText("emojis", emojis, game.MaxEmojiLength)
	if err != nil {
		return err
	}
	_, err = s.mutate(ctx, code, func(g *game.Game, fx *effects) error {
		r, err := activeRound(g, game.TypeEmojiStory)
		if err != nil {
			return err
		}
		if _, err := requirePlayer(g, playerID); err != nil {
			return err
		}
		if r.Status != game.PhaseStoryBuilding {
			return game.ErrWrongPhase
		}
		es := r.EmojiStory
		if es.CurrentTurnPlayerID != playerID {
			return game.ErrNotYourTurn
		}
		es.Contributions = append(es.Contributions, game.Contribution{
			PlayerID:  playerID,
			Emojis:    emojis,
			TurnOrder: es.TurnIndex,
		})
		s.passTurn(g, r, fx, "")
		return nil
	})
	return err
}

// EndStoryTurn skips turn of round if that turn is still current.
func (s *Service) EndStoryTurn(ctx context.Context, code string, round, turn int) (ended bool, err error) {
	ctx, span := s.startSpan(ctx, "EndStoryTurn", code)
	defer func() { endSpan(span, err) }()

	_, err = s.mutate(ctx, code, func(g *game.Game, fx *effects) error {
		r := g.Current()
		if g.Status != game.StatusPlaying || r == nil || r.EmojiStory == nil || r.Number != round ||
			r.Status != game.PhaseStoryBuilding || r.EmojiStory.TurnIndex != turn {
			return errStale
		}
		s.passTurn(g, r, fx, r.EmojiStory.CurrentTurnPlayerID)
		return nil
	})
	if errors.Is(err, errStale) || errors.Is(err, game.ErrGameNotFound) {
		return false, nil
	}
	return err == nil, err
}

// passTurn moves the turn pointer on. After the last player the story is
// complete and interpretation opens.
func (s *Service) passTurn(g *game.Game, r *game.Round, fx *effects, skipped string) {
	es := r.EmojiStory
	fx.cancel(turnKey(g.Code, r))
	es.TurnIndex++
	if es.TurnIndex < len(es.TurnOrder) {
		es.CurrentTurnPlayerID = es.TurnOrder[es.TurnIndex]
		fx.emit(EventNextTurn, nextTurnPayload{
			Round:               r.Number,
			CurrentTurnPlayerID: es.CurrentTurnPlayerID,
			CurrentTurnNickname: nicknameOf(g, es.CurrentTurnPlayerID),
			StoryContributions:  contributionViews(g, es.Contributions),
			SkippedPlayerID:     skipped,
		})
		s.armTurn(fx, g.Code, r)
		return
	}
	es.CurrentTurnPlayerID = ""
	r.Status = game.PhaseInterpreting
	fx.emit(EventStoryComplete, storyCompletePayload{
		Round:              r.Number,
		StoryContributions: contributionViews(g, es.Contributions),
		TimeToInterpret:    wholeSeconds(s.opts.InterpretWindow),
	})
	s.armPhase(fx, g.Code, r.Number, game.PhaseInterpreting, s.opts.InterpretWindow)
}

// SubmitStoryInterpretation records one interpretation per player, contributors included.
func (s *Service) SubmitStoryInterpretation(ctx context.Context, code, playerID, text string) (err error) {
	ctx, span := s.startSpan(ctx, "SubmitStoryInterpretation", code)
	defer func() { endSpan(span, err) }()

	text, err = game.CleanText("interpretation", text, game.MaxInterpretationLength)
	if err != nil {
		return err
	}
	_, err = s.mutate(ctx, code, func(g *game.Game, fx *effects) error {
		r, err := activeRound(g, game.TypeEmojiStory)
		if err != nil {
			return err
		}
		if _, err := requirePlayer(g, playerID); err != nil {
			return err
		}
		if r.Status != game.PhaseInterpreting {
			return game.ErrWrongPhase
		}
		es := r.EmojiStory
		if es.Interpretations.Has(playerID) {
			return game.ErrAlreadySubmitted
		}
		es.Interpretations.Set(playerID, text)
		fx.emit(EventInterpretationReceived, interpretationReceivedPayload{
			PlayerID:            playerID,
			InterpretationCount: es.Interpretations.Len(),
			TotalPlayers:        g.Players.Len(),
		})
		if es.Interpretations.Len() >= g.Players.Len() {
			s.endInterpreting(g, r, fx)
		}
		return nil
	})
	return err
}

func (s *Service) endInterpreting(g *game.Game, r *game.Round, fx *effects) {
	fx.cancel(s.phaseKey(g.Code, r.Number, game.PhaseInterpreting))
	es := r.EmojiStory
	if es.Interpretations.Len() == 0 {
		s.finishStory(g, r, fx)
		return
	}
	r.Status = game.PhaseVoting
	fx.emit(EventVotingStarted, votingStartedPayload{
		Round:           r.Number,
		Interpretations: game.StoryInterpretations(g, es),
		TimeToVote:      wholeSeconds(s.opts.StoryVoteWindow),
	})
	s.armPhase(fx, g.Code, r.Number, game.PhaseVoting, s.opts.StoryVoteWindow)
}

// SubmitVote casts playerID's vote for another player's interpretation.
func (s *Service) SubmitVote(ctx context.Context, code, playerID, targetPlayerID string) (err error) {
	ctx, span := s.startSpan(ctx, "SubmitVote", code)
	defer func() { endSpan(span, err) }()

	_, err = s.mutate(ctx, code, func(g *game.Game, fx *effects) error {
		r, err := activeRound(g, game.TypeEmojiStory)
		if err != nil {
			return err
		}
		if _, err := requirePlayer(g, playerID); err != nil {
			return err
		}
		if r.Status != game.PhaseVoting {
			return game.ErrWrongPhase
		}
		es := r.EmojiStory
		if targetPlayerID == playerID {
			return game.Invalid("you cannot vote for your own interpretation")
		}
		if !es.Interpretations.Has(targetPlayerID) {
			return game.Invalid("that player has no interpretation to vote for")
		}
		if es.Votes.Has(playerID) {
			return game.ErrAlreadySubmitted
		}
		es.Votes.Set(playerID, targetPlayerID)
		fx.emit(EventVoteReceived, voteReceivedPayload{
			PlayerID:     playerID,
			VoteCount:    es.Votes.Len(),
			TotalPlayers: g.Players.Len(),
		})
		if es.Votes.Len() >= g.Players.Len() {
			s.endStoryVoting(g, r, fx)
		}
		return nil
	})
	return err
}

func (s *Service) endStoryVoting(g *game.Game, r *game.Round, fx *effects) {
	fx.cancel(s.phaseKey(g.Code, r.Number, game.PhaseVoting))
	s.finishStory(g, r, fx)
}

// finishStory awards 2 points per vote received and reveals the round.
func (s *Service) finishStory(g *game.Game, r *game.Round, fx *effects) {
	es := r.EmojiStory
	received := make(map[string]int, es.Interpretations.Len())
	votes := make([]storyVote, 0, es.Votes.Len())
	for voter, target := range es.Votes.All() {
		received[target]++
		votes = append(votes, storyVote{
			VoterPlayerID:    voter,
			VoterNickname:    nicknameOf(g, voter),
			VotedForPlayerID: target,
			VotedForNickname: nicknameOf(g, target),
		})
	}
	results := make([]interpretationResult, 0, es.Interpretations.Len())
	for author, text := range es.Interpretations.All() {
		points := received[author] * 2
		r.Scores.Set(author, points)
		results = append(results, interpretationResult{
			PlayerID:       author,
			Nickname:       nicknameOf(g, author),
			Interpretation: text,
			Votes:          received[author],
			Points:         points,
		})
	}
	r.Finish(s.now())
	r.Scored = true
	g.AddScores(r.Scores)
	fx.emit(EventEmojiStoryRoundResults, emojiStoryResultsPayload{
		Round:              r.Number,
		StoryContributions: contributionViews(g, es.Contributions),
		Interpretations:    results,
		Votes:              votes,
		Scores:             g.Standings(),
	})
	s.armAdvance(fx, g.Code, r.Number, s.opts.StoryRevealDelay)
}
