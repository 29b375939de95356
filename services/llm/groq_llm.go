package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/yggdrasillabs/yggdrasil/pkg/types"
)

const (
	groqBaseURL      = "https://api.groq.com/openai/v1"
	groqDefaultModel = "llama-3.3-70b-versatile"
	groqCallTimeout  = 30 * time.Second
)

// GroqAdapter speaks to Groq's OpenAI-compatible endpoint.
type GroqAdapter struct {
	member types.CouncilMember
	client *openai.Client
	model  string
}

// NewGroqAdapter builds a Groq-backed adapter for the given member. Returns
// nil (no error) when GROQ_API_KEY is unset: the member is simply absent
// from the council.
func NewGroqAdapter(member types.CouncilMember) *GroqAdapter {
	apiKey := os.Getenv("GROQ_API_KEY")
	if apiKey == "" {
		slog.Warn("GROQ_API_KEY not set, Groq-backed member unavailable", "member", member)
		return nil
	}

	model := os.Getenv("GROQ_MODEL")
	if model == "" {
		model = groqDefaultModel
	}

	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = groqBaseURL

	return &GroqAdapter{
		member: member,
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

func (g *GroqAdapter) Member() types.CouncilMember { return g.member }
func (g *GroqAdapter) ModelID() string             { return "groq/" + g.model }
func (g *GroqAdapter) IsAvailable() bool           { return g != nil && g.client != nil }

// Query implements Adapter.
func (g *GroqAdapter) Query(ctx context.Context, prompt string) (*types.MemberResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, groqCallTimeout)
	defer cancel()

	started := time.Now()
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: SystemPrompt(g.member)},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("groq call for %s: %w", g.member, types.ErrAdapterTimeout)
		}
		slog.Warn("Groq request failed", "member", g.member, "error", err)
		return nil, fmt.Errorf("groq call for %s: %w", g.member, types.ErrAdapterUnavailable)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("groq returned no choices for %s: %w", g.member, types.ErrAdapterUnavailable)
	}

	content, confidence, reasoning := parseMemberOutput(resp.Choices[0].Message.Content)
	return &types.MemberResponse{
		Member:     g.member,
		Content:    content,
		Confidence: confidence,
		Reasoning:  reasoning,
		Model:      g.ModelID(),
		DurationMs: time.Since(started).Milliseconds(),
		Timestamp:  time.Now(),
	}, nil
}

var _ Adapter = (*GroqAdapter)(nil)
