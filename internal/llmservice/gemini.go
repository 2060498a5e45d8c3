package llmservice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"paper-rag/internal/config"

	genai "github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"
)

// ErrUnavailable is returned while the circuit breaker is open.
var ErrUnavailable = errors.New("language model temporarily unavailable")

type GeminiGenerator struct {
	client  *genai.Client
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	call    func(ctx context.Context, prompt string) (string, error)
}

func NewGeminiGenerator(ctx context.Context, cfg *config.LLMConfig) (*GeminiGenerator, error) {
	if cfg.Key == "" {
		return nil, errors.New("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.Key))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	g := newGeminiGenerator(nil)
	g.client = client
	g.call = func(ctx context.Context, prompt string) (string, error) {
		model := client.GenerativeModel(cfg.Model)
		resp, err := model.GenerateContent(ctx, genai.Text(prompt))
		if err != nil {
			return "", err
		}
		return responseText(resp)
	}
	return g, nil
}

func newGeminiGenerator(call func(ctx context.Context, prompt string) (string, error)) *GeminiGenerator {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "GeminiAPI",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state changed")
		},
	})

	return &GeminiGenerator{
		breaker: breaker,
		// free tier allows 15 requests per minute
		limiter: rate.NewLimiter(rate.Every(4*time.Second), 3),
		call:    call,
	}
}

func (g *GeminiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", err
	}

	result, err := g.breaker.Execute(func() (interface{}, error) {
		return g.call(ctx, prompt)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	return StripThinkTags(result.(string)), nil
}

func (g *GeminiGenerator) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	var sb strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				sb.WriteString(string(text))
			}
		}
		// first candidate only
		break
	}
	if sb.Len() == 0 {
		return "", errors.New("gemini returned no text")
	}
	return sb.String(), nil
}
