package oracle

import (
	"context"
	"net/url"

	"party-rounds/internal/game"
)

// Mock scores by word overlap and returns placeholder images. It never calls out.
type Mock struct{}

func (Mock) GenerateImage(_ context.Context, prompt string) (string, error) {
	if prompt == "" {
		return "", game.Invalid("prompt cannot be empty")
	}
	return "https://placehold.co/1024x1024/png?text=" + url.QueryEscape(prompt), nil
}

func (Mock) ScoreGuesses(_ context.Context, reference string, guesses []Guess) ([]Score, error) {
	return overlapScores(reference, guesses), nil
}

func overlapScores(reference string, guesses []Guess) []Score {
	scores := make([]Score, 0, len(guesses))
	for _, guess := range guesses {
		similarity := tokenOverlap(reference, guess.Text)
		scores = append(scores, Score{
			PlayerID:   guess.PlayerID,
			Guess:      guess.Text,
			Similarity: similarity,
			Points:     PointsFor(similarity),
		})
	}
	sortScores(scores)
	return scores
}
