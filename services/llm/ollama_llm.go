package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/yggdrasillabs/yggdrasil/pkg/types"
)

const (
	ollamaDefaultModel = "llama3.1"
	ollamaCallTimeout  = 120 * time.Second
)

// OllamaAdapter speaks to a local Ollama instance over its REST API. It is
// the zero-key fallback: any member can be served locally.
type OllamaAdapter struct {
	member     types.CouncilMember
	httpClient *http.Client
	baseURL    string
	model      string
}

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
}

type ollamaChatResponse struct {
	Message ollamaChatMessage `json:"message"`
	Done    bool              `json:"done"`
}

// NewOllamaAdapter builds an Ollama-backed adapter for the given member.
// Returns nil when OLLAMA_BASE_URL is unset.
func NewOllamaAdapter(member types.CouncilMember) *OllamaAdapter {
	baseURL := os.Getenv("OLLAMA_BASE_URL")
	if baseURL == "" {
		slog.Warn("OLLAMA_BASE_URL not set, Ollama-backed member unavailable", "member", member)
		return nil
	}

	model := os.Getenv("OLLAMA_MODEL")
	if model == "" {
		model = ollamaDefaultModel
	}

	return &OllamaAdapter{
		member:     member,
		httpClient: &http.Client{Timeout: ollamaCallTimeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
	}
}

func (o *OllamaAdapter) Member() types.CouncilMember { return o.member }
func (o *OllamaAdapter) ModelID() string             { return "ollama/" + o.model }
func (o *OllamaAdapter) IsAvailable() bool           { return o != nil && o.baseURL != "" }

// Query implements Adapter.
func (o *OllamaAdapter) Query(ctx context.Context, prompt string) (*types.MemberResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, ollamaCallTimeout)
	defer cancel()

	started := time.Now()
	payload := ollamaChatRequest{
		Model: o.model,
		Messages: []ollamaChatMessage{
			{Role: "system", Content: SystemPrompt(o.member)},
			{Role: "user", Content: prompt},
		},
		Stream: false,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ollama request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/chat", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return nil, fmt.Errorf("ollama call for %s: %w", o.member, types.ErrAdapterTimeout)
		}
		slog.Warn("Ollama request failed", "member", o.member, "error", err)
		return nil, fmt.Errorf("ollama call for %s: %w", o.member, types.ErrAdapterUnavailable)
	}
	defer resp.Body.Close()

	bodyBytes, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama returned status %d for %s: %w",
			resp.StatusCode, o.member, types.ErrAdapterUnavailable)
	}

	var apiResp ollamaChatResponse
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to parse ollama response: %w", err)
	}

	content, confidence, reasoning := parseMemberOutput(apiResp.Message.Content)
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

var _ Adapter = (*OllamaAdapter)(nil)
