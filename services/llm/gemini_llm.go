package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"google.golang.org/genai"

	"github.com/yggdrasillabs/yggdrasil/pkg/types"
)

const (
	geminiDefaultModel = "gemini-2.0-flash"
	geminiCallTimeout  = 45 * time.Second
)

// GeminiAdapter speaks to the Gemini API via the official genai SDK.
type GeminiAdapter struct {
	member types.CouncilMember
	client *genai.Client
	model  string
}

// NewGeminiAdapter builds a Gemini-backed adapter for the given member.
// Returns nil when GEMINI_API_KEY is unset.
func NewGeminiAdapter(member types.CouncilMember) *GeminiAdapter {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		slog.Warn("GEMINI_API_KEY not set, Gemini-backed member unavailable", "member", member)
		return nil
	}

	model := os.Getenv("GEMINI_MODEL")
	if model == "" {
		model = geminiDefaultModel
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		slog.Warn("failed to create Gemini client", "member", member, "error", err)
		return nil
	}

	return &GeminiAdapter{member: member, client: client, model: model}
}

func (g *GeminiAdapter) Member() types.CouncilMember { return g.member }
func (g *GeminiAdapter) ModelID() string             { return "gemini/" + g.model }
func (g *GeminiAdapter) IsAvailable() bool           { return g != nil && g.client != nil }

// Query implements Adapter.
func (g *GeminiAdapter) Query(ctx context.Context, prompt string) (*types.MemberResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, geminiCallTimeout)
	defer cancel()

	started := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)},
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(SystemPrompt(g.member), genai.RoleUser),
		})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("gemini call for %s: %w", g.member, types.ErrAdapterTimeout)
		}
		slog.Warn("Gemini request failed", "member", g.member, "error", err)
		return nil, fmt.Errorf("gemini call for %s: %w", g.member, types.ErrAdapterUnavailable)
	}

	text := resp.Text()
	if text == "" {
		return nil, fmt.Errorf("gemini returned empty content for %s: %w", g.member, types.ErrAdapterUnavailable)
	}

	content, confidence, reasoning := parseMemberOutput(text)
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

var _ Adapter = (*GeminiAdapter)(nil)
