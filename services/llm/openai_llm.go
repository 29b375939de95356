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
	openaiDefaultModel = "gpt-4o-mini"
	openaiCallTimeout  = 45 * time.Second
)

// OpenAIAdapter speaks to the OpenAI chat completion API.
type OpenAIAdapter struct {
	member types.CouncilMember
	client *openai.Client
	model  string
}

// NewOpenAIAdapter builds an OpenAI-backed adapter for the given member.
// Returns nil when OPENAI_API_KEY is unset.
func NewOpenAIAdapter(member types.CouncilMember) *OpenAIAdapter {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		slog.Warn("OPENAI_API_KEY not set, OpenAI-backed member unavailable", "member", member)
		return nil
	}

	model := os.Getenv("OPENAI_MODEL")
	if model == "" {
		model = openaiDefaultModel
	}

	return &OpenAIAdapter{
		member: member,
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

func (o *OpenAIAdapter) Member() types.CouncilMember { return o.member }
func (o *OpenAIAdapter) ModelID() string             { return "openai/" + o.model }
func (o *OpenAIAdapter) IsAvailable() bool           { return o != nil && o.client != nil }

// Query implements Adapter.
func (o *OpenAIAdapter) Query(ctx context.Context, prompt string) (*types.MemberResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, openaiCallTimeout)
	defer cancel()

	started := time.Now()
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: SystemPrompt(o.member)},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("openai call for %s: %w", o.member, types.ErrAdapterTimeout)
		}
		slog.Warn("OpenAI request failed", "member", o.member, "error", err)
		return nil, fmt.Errorf("openai call for %s: %w", o.member, types.ErrAdapterUnavailable)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai returned no choices for %s: %w", o.member, types.ErrAdapterUnavailable)
	}

	content, confidence, reasoning := parseMemberOutput(resp.Choices[0].Message.Content)
	return &types.MemberResponse{
		Member:     o.member,
		Content:    content,
		Confidence: confidence,
		Reasoning:  reasoning,
		Model:      o.ModelID(),
		DurationMs: time.Since(started).Milliseconds(),
		Timestamp:  time.Now(),
	}, nil
}

var _ Adapter = (*OpenAIAdapter)(nil)
