package session

import (
	"context"
	"errors"
	"log"

	"party-rounds/internal/game"
	"party-rounds/internal/oracle"
)

func (s *Service) newGuessioRound(g *game.Game, number int) *game.Round {
	return &game.Round{
		Number:    number,
		Kind:      game.TypeGuessio,
		Status:    game.PhaseWaitingForPrompt,
		StartedAt: s.now(),
		Guessio:   &game.GuessioRound{PrompterID: rotating(g, number)},
	}
}

func announceGuessio(g *game.Game, r *game.Round, a *roundAnnouncement) {
	a.PrompterID = r.Guessio.PrompterID
	a.PrompterNickname = nicknameOf(g, r.Guessio.PrompterID)
}

// SubmitPrompt records the prompter's prompt and starts image generation.
func (s *Service) SubmitPrompt(ctx context.Context, code, playerID, prompt string) (err error) {
	ctx, span := s.startSpan(ctx, "SubmitPrompt", code)
	defer func() { endSpan(span, err) }()

	prompt, err = game.CleanText("prompt", prompt, game.MaxPromptLength)
	if err != nil {
		return err
	}
	_, err = s.mutate(ctx, code, func(g *game.Game, fx *effects) error {
		r, err := activeRound(g, game.TypeGuessio)
		if err != nil {
			return err
		}
		if _, err := requirePlayer(g, playerID); err != nil {
			return err
		}
		if r.Status != game.PhaseWaitingForPrompt {
			return game.ErrWrongPhase
		}
		if r.Guessio.PrompterID != playerID {
			return game.Invalid("only the prompter can submit a prompt")
		}
		r.Guessio.Prompt = prompt
		r.Status = game.PhaseGeneratingImage
		fx.emit(EventImageGenerating, imageGeneratingPayload{Round: r.Number, PrompterID: playerID})

		number := r.Number
		fx.spawn(func(ctx context.Context) {
			s.generateImage(ctx, code, number, prompt)
		})
		return nil
	})
	return err
}

func (s *Service) generateImage(ctx context.Context, code string, round int, prompt string) {
	url, err := s.oracle.GenerateImage(ctx, prompt)
	if err != nil {
		log.Printf("image generation failed game_code=%s round=%d error=%v", code, round, err)
		reason := "Failed to generate image. Please try again."
		var gameErr *game.Error
		if errors.As(err, &gameErr) {
			reason = gameErr.Error()
		}
		s.publish(ctx, code, EventImageGenerationFailed, imageFailedPayload{Error: reason, Round: round})
		return
	}
	_, err = s.mutate(ctx, code, func(g *game.Game, fx *effects) error {
		r := g.Current()
		if g.Status != game.StatusPlaying || r == nil || r.Number != round || r.Status != game.PhaseGeneratingImage {
			return errStale
		}
		r.Guessio.ImageURL = url
		r.Status = game.PhaseGuessing
		fx.emit(EventImageReady, imageReadyPayload{Round: round, ImageURL: url, GuessingTimeLimit: g.Settings.GuessingTimeLimit})
		s.armPhase(fx, code, round, game.PhaseGuessing, seconds(g.Settings.GuessingTimeLimit))
		return nil
	})
	if err != nil && !errors.Is(err, errStale) {
		log.Printf("store image failed game_code=%s round=%d error=%v", code, round, err)
	}
}

// SubmitGuess records one guess per non-prompter. The last expected guess
// ends the guessing phase without waiting for the timer.
func (s *Service) SubmitGuess(ctx context.Context, code, playerID, guess string) (err error) {
	ctx, span := s.startSpan(ctx, "SubmitGuess", code)
	defer func() { endSpan(span, err) }()

	guess, err = game.CleanText("guess", guess, game.MaxGuessLength)
	if err != nil {
		return err
	}
	_, err = s.mutate(ctx, code, func(g *game.Game, fx *effects) error {
		r, err := activeRound(g, game.TypeGuessio)
		if err != nil {
			return err
		}
		if _, err := requirePlayer(g, playerID); err != nil {
			return err
		}
		if r.Status != game.PhaseGuessing {
			return game.ErrWrongPhase
		}
		if r.Guessio.PrompterID == playerID {
			return game.Invalid("the prompter cannot guess")
		}
		if r.Guessio.Guesses.Has(playerID) {
			return game.ErrAlreadySubmitted
		}
		r.Guessio.Guesses.Set(playerID, guess)
		expected := g.Players.Len() - 1
		fx.emit(EventGuessReceived, guessReceivedPayload{
			PlayerID:     playerID,
			GuessCount:   r.Guessio.Guesses.Len(),
			TotalPlayers: expected,
		})
		if r.Guessio.Guesses.Len() >= expected {
			s.endGuessing(g, r, fx)
		}
		return nil
	})
	return err
}

// endGuessing closes guessing and hands the guesses to the oracle. Scores
// land later through applyGuessScores.
func (s *Service) endGuessing(g *game.Game, r *game.Round, fx *effects) {
	fx.cancel(s.phaseKey(g.Code, r.Number, game.PhaseGuessing))
	r.Finish(s.now())

	guesses := make([]oracle.Guess, 0, r.Guessio.Guesses.Len())
	for id, text := range r.Guessio.Guesses.All() {
		guesses = append(guesses, oracle.Guess{PlayerID: id, Text: text})
	}
	code, round, prompt := g.Code, r.Number, r.Guessio.Prompt
	fx.spawn(func(ctx context.Context) {
		scores, err := s.oracle.ScoreGuesses(ctx, prompt, guesses)
		if err != nil {
			log.Printf("scoring failed game_code=%s round=%d error=%v", code, round, err)
			scores = make([]oracle.Score, 0, len(guesses))
			for _, guess := range guesses {
				scores = append(scores, oracle.Score{PlayerID: guess.PlayerID, Guess: guess.Text})
			}
		}
		s.applyGuessScores(ctx, code, round, scores)
	})
}

func (s *Service) applyGuessScores(ctx context.Context, code string, round int, scores []oracle.Score) {
	_, err := s.mutate(ctx, code, func(g *game.Game, fx *effects) error {
		r := g.Current()
		if g.Status != game.StatusPlaying || r == nil || r.Number != round || r.Status != game.PhaseRevealing || r.Scored {
			return errStale
		}
		results := make([]guessResult, 0, len(scores))
		for _, sc := range scores {
			r.Scores.Set(sc.PlayerID, sc.Points)
			results = append(results, guessResult{
				PlayerID:   sc.PlayerID,
				Nickname:   nicknameOf(g, sc.PlayerID),
				Guess:      sc.Guess,
				Similarity: sc.Similarity,
				Points:     sc.Points,
			})
		}
		r.Scored = true
		g.AddScores(r.Scores)
		fx.emit(EventRoundResults, roundResultsPayload{
			Round:    round,
			Prompt:   r.Guessio.Prompt,
			ImageURL: r.Guessio.ImageURL,
			Guesses:  results,
			Scores:   g.Standings(),
		})
		s.armAdvance(fx, code, round, s.opts.RevealDelay)
		return nil
	})
	if err != nil && !errors.Is(err, errStale) {
		log.Printf("store scores failed game_code=%s round=%d error=%v", code, round, err)
	}
}
