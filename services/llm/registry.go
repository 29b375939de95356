package llm

import (
	"log/slog"

	"github.com/yggdrasillabs/yggdrasil/pkg/types"
)

// NewDefaultRegistry wires the default member-to-provider assignment from
// the environment. Members whose provider has no key configured are left
// out; the council deliberates with whoever showed up.
func NewDefaultRegistry() *Registry {
	var adapters []Adapter

	if a := NewGroqAdapter(types.MemberKvasir); a != nil {
		adapters = append(adapters, a)
	}
	if a := NewGeminiAdapter(types.MemberBragi); a != nil {
		adapters = append(adapters, a)
	}
	if a := NewOpenAIAdapter(types.MemberNornes); a != nil {
		adapters = append(adapters, a)
	}
	if a := NewOllamaAdapter(types.MemberSaga); a != nil {
		adapters = append(adapters, a)
	}
	if a := NewGroqAdapter(types.MemberSyn); a != nil {
		adapters = append(adapters, a)
	}
	if a := NewGeminiAdapter(types.MemberLoki); a != nil {
		adapters = append(adapters, a)
	}
	if a := NewGroqAdapter(types.MemberTyr); a != nil {
		adapters = append(adapters, a)
	}

	registry := NewRegistry(adapters...)
	slog.Info("Council adapter registry initialized", "available", len(registry.Available()))
	return registry
}
