package datatypes

import "github.com/yggdrasillabs/yggdrasil/pkg/types"

// QueryRequest is the body of every /yggdrasil/query* endpoint.
type QueryRequest struct {
	Query        string        `json:"query" binding:"required"`
	UserID       string        `json:"userId" binding:"required"`
	SessionID    string        `json:"sessionId"`
	Context      string        `json:"context"`
	IncludeTrace bool          `json:"includeTrace"`
	Options      *QueryOptions `json:"options"`
}

// QueryOptions override the pipeline defaults per request.
type QueryOptions struct {
	RequireMimirAnchor *bool `json:"requireMimirAnchor"`
	RequireConsensus   *bool `json:"requireConsensus"`
	MaxTimeMs          int64 `json:"maxTimeMs"`
	ReturnTrace        *bool `json:"returnTrace"`
}

// ThinkingResponse is the /yggdrasil/query/thinking payload.
type ThinkingResponse struct {
	types.YggdrasilResponse
	Thinking []types.ThinkingStep `json:"thinking"`
}

// TokenRequest asks for a locally issued JWT.
type TokenRequest struct {
	UserID string `json:"userId" binding:"required"`
}

// TokenResponse carries the issued token.
type TokenResponse struct {
	Token string `json:"token"`
}

// HealthResponse reports per-component health.
type HealthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
}

// CheckpointRequest is the admin checkpoint-creation body.
type CheckpointRequest struct {
	Label       string   `json:"label" binding:"required"`
	Description string   `json:"description"`
	NodeIDs     []string `json:"nodeIds" binding:"required"`
}

// ErrorResponse is the uniform transport-error body.
type ErrorResponse struct {
	Error string `json:"error"`
}
