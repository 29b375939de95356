// Package llm wraps the external model providers behind one adapter
// contract. Each council member is backed by exactly one adapter; an adapter
// that cannot serve (missing key, unreachable endpoint) reports unavailable
// and is skipped, never failed.
package llm

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/yggdrasillabs/yggdrasil/pkg/types"
)

// Adapter is the only contract the council has with a model provider.
type Adapter interface {
	// Member returns the council role this adapter speaks for.
	Member() types.CouncilMember

	// ModelID identifies the underlying model, for attribution.
	ModelID() string

	// Query sends one prompt and returns the member's response. The call
	// honors ctx and the adapter's own per-call timeout; a timeout returns
	// types.ErrAdapterTimeout, any other transport failure
	// types.ErrAdapterUnavailable.
	Query(ctx context.Context, prompt string) (*types.MemberResponse, error)

	// IsAvailable reports whether the adapter can currently serve requests.
	IsAvailable() bool
}

// Registry holds the set of capable adapters keyed by member. Availability
// is a capability, not a type discriminator: a member with no available
// adapter simply does not deliberate.
type Registry struct {
	adapters map[types.CouncilMember]Adapter
}

// NewRegistry builds a registry from the given adapters. Later adapters for
// the same member replace earlier ones.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[types.CouncilMember]Adapter, len(adapters))}
	for _, a := range adapters {
		if a != nil {
			r.adapters[a.Member()] = a
		}
	}
	return r
}

// Lookup returns the adapter for a member, if registered.
func (r *Registry) Lookup(member types.CouncilMember) (Adapter, bool) {
	a, ok := r.adapters[member]
	return a, ok
}

// Available returns the members that currently have a serving adapter, in
// canonical council order.
func (r *Registry) Available() []types.CouncilMember {
	var out []types.CouncilMember
	for _, m := range types.MemberOrder {
		if a, ok := r.adapters[m]; ok && a.IsAvailable() {
			out = append(out, m)
		}
	}
	return out
}

// confidenceLine matches the trailing confidence declaration the system
// prompts require from every member.
var confidenceLine = regexp.MustCompile(`(?im)^\s*CONFIDENCE:\s*(\d{1,3})\s*$`)

// defaultConfidence is assumed when a model ignores the format instruction.
const defaultConfidence = 70

// parseMemberOutput splits raw model output into content, confidence, and
// reasoning. The confidence line is stripped from the content; a REASONING:
// section, if present, is captured separately.
func parseMemberOutput(raw string) (content string, confidence int, reasoning string) {
	confidence = defaultConfidence

	if m := confidenceLine.FindStringSubmatch(raw); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil {
			if v < 0 {
				v = 0
			}
			if v > 100 {
				v = 100
			}
			confidence = v
		}
		raw = confidenceLine.ReplaceAllString(raw, "")
	}

	if idx := strings.Index(raw, "REASONING:"); idx >= 0 {
		reasoning = strings.TrimSpace(raw[idx+len("REASONING:"):])
		raw = raw[:idx]
	}

	return strings.TrimSpace(raw), confidence, reasoning
}
