package session

import (
	"context"
	"errors"
	"log"
	"time"

	"party-rounds/internal/game"
)

const phasePurge game.Phase = "purge"

type phaseEnd func(g *game.Game, r *game.Round, fx *effects)

// variant is one game type's round strategy.
type variant struct {
	newRound  func(g *game.Game, number int) *game.Round
	announce  func(g *game.Game, r *game.Round, a *roundAnnouncement)
	enter     func(g *game.Game, r *game.Round, fx *effects)
	phaseEnds map[game.Phase]phaseEnd
}

func (s *Service) buildVariants() map[game.Type]variant {
	return map[game.Type]variant{
		game.TypeGuessio: {
			newRound: s.newGuessioRound,
			announce: announceGuessio,
			enter:    func(*game.Game, *game.Round, *effects) {},
			phaseEnds: map[game.Phase]phaseEnd{
				game.PhaseGuessing: s.endGuessing,
			},
		},
		game.TypeEmojiStory: {
			newRound: s.newEmojiStoryRound,
			announce: announceEmojiStory,
			enter:    s.enterEmojiStoryRound,
			phaseEnds: map[game.Phase]phaseEnd{
				game.PhaseInterpreting: s.endInterpreting,
				game.PhaseVoting:       s.endStoryVoting,
			},
		},
		game.TypeTwoTruths: {
			newRound: s.newTwoTruthsRound,
			announce: announceTwoTruths,
			enter:    s.enterTwoTruthsRound,
			phaseEnds: map[game.Phase]phaseEnd{
				game.PhaseWaitingForStatements: s.skipStatements,
				game.PhaseVoting:               s.endTwoTruthsVoting,
			},
		},
	}
}

// rotating picks the round's active player: playerIds[(round-1) % count].
func rotating(g *game.Game, number int) string {
	ids := g.PlayerIDs()
	if len(ids) == 0 {
		return ""
	}
	return ids[(number-1)%len(ids)]
}

// startRound appends round number, makes it current and announces it with event.
func (s *Service) startRound(g *game.Game, number int, fx *effects, event string) {
	v := s.variants[g.Type]
	r := v.newRound(g, number)
	g.Rounds = append(g.Rounds, r)
	g.CurrentRound = number

	a := roundAnnouncement{Round: number, TotalRounds: g.Settings.MaxRounds}
	v.announce(g, r, &a)
	fx.emit(event, a)
	v.enter(g, r, fx)
}

func (s *Service) phaseKey(code string, round int, phase game.Phase) timerKey {
	return timerKey{code: code, round: round, phase: phase}
}

// armPhase schedules the deadline that ends phase of round.
func (s *Service) armPhase(fx *effects, code string, round int, phase game.Phase, delay time.Duration) {
	fx.schedule(s.phaseKey(code, round, phase), delay, func(ctx context.Context) {
		if _, err := s.EndPhase(ctx, code, round, phase); err != nil {
			logTimerError(code, round, phase, err)
		}
	})
}

func logTimerError(code string, round int, phase game.Phase, err error) {
	log.Printf("phase timer failed game_code=%s round=%d phase=%s error=%v", code, round, phase, err)
}

// armAdvance schedules the move from a revealed round to the next one.
func (s *Service) armAdvance(fx *effects, code string, round int, delay time.Duration) {
	fx.schedule(s.phaseKey(code, round, game.PhaseRevealing), delay, func(ctx context.Context) {
		if _, err := s.AdvanceRound(ctx, code, round); err != nil {
			logTimerError(code, round, game.PhaseRevealing, err)
		}
	})
}

// EndPhase closes phase of round if the game still shows it. Timers and the
// last required player action both land here; only the first one applies.
func (s *Service) EndPhase(ctx context.Context, code string, round int, phase game.Phase) (ended bool, err error) {
	ctx, span := s.startSpan(ctx, "EndPhase", code)
	defer func() { endSpan(span, err) }()

	_, err = s.mutate(ctx, code, func(g *game.Game, fx *effects) error {
		r := g.Current()
		if g.Status != game.StatusPlaying || r == nil || r.Number != round || r.Status != phase {
			return errStale
		}
		end, ok := s.variants[g.Type].phaseEnds[phase]
		if !ok {
			return game.ErrWrongPhase
		}
		end(g, r, fx)
		return nil
	})
	if errors.Is(err, errStale) || errors.Is(err, game.ErrGameNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	log.Printf("round phase ended game_code=%s round=%d phase=%s", code, round, phase)
	return true, nil
}

// AdvanceRound starts the round after round, or ends the game when round was
// the last one. It is a no-op unless round is current, revealed and scored.
func (s *Service) AdvanceRound(ctx context.Context, code string, round int) (advanced bool, err error) {
	ctx, span := s.startSpan(ctx, "AdvanceRound", code)
	defer func() { endSpan(span, err) }()

	g, err := s.mutate(ctx, code, func(g *game.Game, fx *effects) error {
		r := g.Current()
		if g.Status != game.StatusPlaying || r == nil || r.Number != round || r.Status != game.PhaseRevealing || !r.Scored {
			return errStale
		}
		fx.cancel(s.phaseKey(code, round, game.PhaseRevealing))
		if g.CurrentRound >= g.Settings.MaxRounds {
			s.endGame(g, fx)
			return nil
		}
		s.startRound(g, round+1, fx, EventNextRound)
		return nil
	})
	if errors.Is(err, errStale) || errors.Is(err, game.ErrGameNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if g.Status == game.StatusCompleted {
		log.Printf("game completed game_code=%s rounds=%d", code, g.CurrentRound)
	} else {
		log.Printf("round started game_code=%s round=%d", code, g.CurrentRound)
	}
	return true, nil
}

func (s *Service) endGame(g *game.Game, fx *effects) {
	g.Status = game.StatusCompleted
	standings := g.Standings()
	var winner *game.Player
	if len(standings) > 0 {
		if p, ok := g.Player(standings[0].PlayerID); ok {
			cp := *p
			winner = &cp
		}
	}
	fx.emit(EventGameEnd, gameEndPayload{Winner: winner, FinalScores: standings})
	fx.completed = true

	code := g.Code
	fx.schedule(timerKey{code: code, phase: phasePurge}, s.opts.Retention, func(ctx context.Context) {
		s.deleteGame(ctx, code)
	})
}
