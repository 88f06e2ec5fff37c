package oracle

import (
	"context"
	"log"
	"math"
	"sort"
	"strings"
)

// Guess is one player's answer to be scored against a reference text.
type Guess struct {
	PlayerID string
	Text     string
}

type Score struct {
	PlayerID   string  `json:"playerId"`
	Guess      string  `json:"guess"`
	Similarity float64 `json:"similarity"`
	Points     int     `json:"points"`
}

// ScoringOracle generates round images and ranks guesses by similarity.
type ScoringOracle interface {
	GenerateImage(ctx context.Context, prompt string) (string, error)
	// ScoreGuesses returns one score per guess, highest similarity first.
	ScoreGuesses(ctx context.Context, reference string, guesses []Guess) ([]Score, error)
}

// New returns the OpenAI oracle when apiKey is set and the token-overlap mock otherwise.
func New(apiKey string) ScoringOracle {
	if strings.TrimSpace(apiKey) == "" {
		log.Printf("OPENAI_API_KEY not set, using mock scoring oracle")
		return Mock{}
	}
	return NewOpenAI(apiKey)
}

var thresholds = []struct {
	min    float64
	points int
}{
	{0.9, 10},
	{0.8, 9},
	{0.7, 8},
	{0.6, 7},
	{0.5, 6},
	{0.4, 5},
	{0.3, 4},
	{0.2, 3},
	{0.1, 2},
	{0.05, 1},
}

// PointsFor maps a similarity in [0,1] to a 0-10 award.
func PointsFor(similarity float64) int {
	for _, t := range thresholds {
		if similarity >= t.min {
			return t.points
		}
	}
	return 0
}

func cosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// tokenOverlap is the Jaccard index of the lowercased whitespace-separated word sets.
func tokenOverlap(a, b string) float64 {
	left := tokenSet(a)
	right := tokenSet(b)
	if len(left) == 0 && len(right) == 0 {
		return 0
	}
	shared := 0
	for word := range left {
		if _, ok := right[word]; ok {
			shared++
		}
	}
	union := len(left) + len(right) - shared
	return float64(shared) / float64(union)
}

func tokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, word := range strings.Fields(strings.ToLower(text)) {
		set[word] = struct{}{}
	}
	return set
}

func sortScores(scores []Score) {
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].Similarity > scores[j].Similarity
	})
}
