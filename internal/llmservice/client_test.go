package llmservice

import (
	"context"
	"errors"
	"testing"

	"paper-rag/internal/config"

	genai "github.com/google/generative-ai-go/genai"
	"github.com/tmc/langchaingo/llms"
	"golang.org/x/time/rate"
)

type fakeModel struct {
	answer string
	prompt string
}

func (f *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	if len(messages) > 0 && len(messages[0].Parts) > 0 {
		if text, ok := messages[0].Parts[0].(llms.TextContent); ok {
			f.prompt = text.Text
		}
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.answer}}}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return f.answer, nil
}

func TestStripThinkTags(t *testing.T) {
	in := "<think>\nlet me reason\n</think>\n\nThe answer is 42."
	if got := StripThinkTags(in); got != "The answer is 42." {
		t.Errorf("got %q", got)
	}
	if got := StripThinkTags("plain"); got != "plain" {
		t.Errorf("got %q", got)
	}
}

func TestLangchainGenerator(t *testing.T) {
	model := &fakeModel{answer: "<think>hmm</think>Paris"}
	got, err := NewLangchainGenerator(model).Generate(context.Background(), "capital of France?")
	if err != nil {
		t.Fatal(err)
	}
	if got != "Paris" {
		t.Errorf("got %q", got)
	}
	if model.prompt != "capital of France?" {
		t.Errorf("prompt not forwarded: %q", model.prompt)
	}
}

func TestGeminiGenerator_BreakerOpens(t *testing.T) {
	calls := 0
	boom := errors.New("quota exceeded")
	g := newGeminiGenerator(func(ctx context.Context, prompt string) (string, error) {
		calls++
		return "", boom
	})
	g.limiter = rate.NewLimiter(rate.Inf, 1)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := g.Generate(ctx, "q"); !errors.Is(err, boom) {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	_, err := g.Generate(ctx, "q")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable once the breaker opens, got %v", err)
	}
	if calls != 3 {
		t.Errorf("upstream called %d times", calls)
	}
}

func TestResponseText(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Parts: []genai.Part{genai.Text("Hello "), genai.Text("there")}}},
			{Content: &genai.Content{Parts: []genai.Part{genai.Text("ignored")}}},
		},
	}
	got, err := responseText(resp)
	if err != nil || got != "Hello there" {
		t.Errorf("got %q, %v", got, err)
	}
	if _, err := responseText(&genai.GenerateContentResponse{}); err == nil {
		t.Error("expected error for empty response")
	}
}

func TestNew_UnknownProvider(t *testing.T) {
	if _, err := New(context.Background(), &config.LLMConfig{Provider: "bard"}); err == nil {
		t.Fatal("expected error")
	}
	if _, err := New(context.Background(), &config.LLMConfig{Provider: "gemini"}); err == nil {
		t.Fatal("expected error without an api key")
	}
}
