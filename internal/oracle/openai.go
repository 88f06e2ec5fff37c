package oracle

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"party-rounds/internal/game"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"golang.org/x/sync/errgroup"
)

const (
	embeddingConcurrency = 4
	requestTimeout       = 60 * time.Second

	// failedGuessSimilarity is awarded to a guess whose embedding could not be fetched.
	failedGuessSimilarity = 0.1
	failedGuessPoints     = 1
)

// OpenAI generates images with DALL-E and scores guesses by embedding similarity.
type OpenAI struct {
	client         openai.Client
	imageModel     openai.ImageModel
	embeddingModel openai.EmbeddingModel
}

func NewOpenAI(apiKey string, opts ...option.RequestOption) *OpenAI {
	base := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithRequestTimeout(requestTimeout),
	}
	return &OpenAI{
		client:         openai.NewClient(append(base, opts...)...),
		imageModel:     openai.ImageModelDallE3,
		embeddingModel: openai.EmbeddingModelTextEmbedding3Small,
	}
}

func stylizedPrompt(prompt string) string {
	return fmt.Sprintf("An abstract, stylized artwork inspired by %q. Favor mood, symbolism and unusual composition over a literal depiction.", prompt)
}

func (o *OpenAI) GenerateImage(ctx context.Context, prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", game.Invalid("prompt cannot be empty")
	}
	resp, err := o.client.Images.Generate(ctx, openai.ImageGenerateParams{
		Prompt:         stylizedPrompt(prompt),
		Model:          o.imageModel,
		N:              openai.Int(1),
		Size:           openai.ImageGenerateParamsSize1024x1024,
		Quality:        openai.ImageGenerateParamsQualityStandard,
		ResponseFormat: openai.ImageGenerateParamsResponseFormatURL,
	})
	if err != nil {
		log.Printf("openai image generation failed error=%v", err)
		return "", imageError(err)
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return "", game.External("No image was generated. Please try again.")
	}
	return resp.Data[0].URL, nil
}

func imageError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case "content_policy_violation":
			return game.External("Content policy violation. Please try a different prompt.")
		case "rate_limit_exceeded":
			return game.External("Rate limit exceeded. Please try again later.")
		}
	}
	return game.External("Failed to generate image. Please try again.")
}

func (o *OpenAI) embed(ctx context.Context, text string) ([]float64, error) {
	resp, err := o.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input:          openai.EmbeddingNewParamsInputUnion{OfString: openai.String(strings.TrimSpace(text))},
		Model:          o.embeddingModel,
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("no embedding returned")
	}
	return resp.Data[0].Embedding, nil
}

// ScoreGuesses embeds the reference and every guess. A guess whose embedding
// fails gets a fixed minimum award; a failed reference embedding degrades to
// word-overlap scoring.
func (o *OpenAI) ScoreGuesses(ctx context.Context, reference string, guesses []Guess) ([]Score, error) {
	if len(guesses) == 0 {
		return []Score{}, nil
	}
	ref, err := o.embed(ctx, reference)
	if err != nil {
		log.Printf("openai reference embedding failed, using word overlap error=%v", err)
		return overlapScores(reference, guesses), nil
	}

	scores := make([]Score, len(guesses))
	var group errgroup.Group
	group.SetLimit(embeddingConcurrency)
	for i, guess := range guesses {
		group.Go(func() error {
			vec, err := o.embed(ctx, guess.Text)
			if err != nil {
				log.Printf("openai guess embedding failed player_id=%s error=%v", guess.PlayerID, err)
				scores[i] = Score{PlayerID: guess.PlayerID, Guess: guess.Text, Similarity: failedGuessSimilarity, Points: failedGuessPoints}
				return nil
			}
			similarity := cosineSimilarity(ref, vec)
			scores[i] = Score{PlayerID: guess.PlayerID, Guess: guess.Text, Similarity: similarity, Points: PointsFor(similarity)}
			return nil
		})
	}
	_ = group.Wait()
	sortScores(scores)
	return scores, nil
}
