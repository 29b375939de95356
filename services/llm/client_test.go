package llm

import (
	"context"
	"testing"

	"github.com/yggdrasillabs/yggdrasil/pkg/types"
)

// TestParseMemberOutput_FullFormat tests content/confidence/reasoning
// extraction when the model follows the output contract.
func TestParseMemberOutput_FullFormat(t *testing.T) {
	raw := "The speed of light is 299,792,458 m/s.\n" +
		"REASONING: This is the defined SI constant.\n" +
		"CONFIDENCE: 95\n"

	content, confidence, reasoning := parseMemberOutput(raw)

	if content != "The speed of light is 299,792,458 m/s." {
		t.Errorf("content = %q", content)
	}
	if confidence != 95 {
		t.Errorf("confidence = %d, want 95", confidence)
	}
	if reasoning != "This is the defined SI constant." {
		t.Errorf("reasoning = %q", reasoning)
	}
}

// TestParseMemberOutput_MissingConfidence tests the fallback when a model
// ignores the format instruction.
func TestParseMemberOutput_MissingConfidence(t *testing.T) {
	content, confidence, reasoning := parseMemberOutput("Just an answer.")

	if content != "Just an answer." {
		t.Errorf("content = %q", content)
	}
	if confidence != defaultConfidence {
		t.Errorf("confidence = %d, want default %d", confidence, defaultConfidence)
	}
	if reasoning != "" {
		t.Errorf("reasoning = %q, want empty", reasoning)
	}
}

// TestParseMemberOutput_ClampsConfidence tests out-of-range declarations.
func TestParseMemberOutput_ClampsConfidence(t *testing.T) {
	_, confidence, _ := parseMemberOutput("x\nCONFIDENCE: 250")
	if confidence != 100 {
		t.Errorf("confidence = %d, want clamped to 100", confidence)
	}
}

// TestRegistry_Available_CanonicalOrder tests that Available returns members
// in council enum order regardless of registration order.
func TestRegistry_Available_CanonicalOrder(t *testing.T) {
	r := NewRegistry(
		&stubAdapter{member: types.MemberSyn},
		&stubAdapter{member: types.MemberKvasir},
		&stubAdapter{member: types.MemberLoki},
	)

	got := r.Available()
	want := []types.CouncilMember{types.MemberKvasir, types.MemberSyn, types.MemberLoki}
	if len(got) != len(want) {
		t.Fatalf("Available() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Available()[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

// TestRegistry_Available_SkipsUnavailable tests capability filtering.
func TestRegistry_Available_SkipsUnavailable(t *testing.T) {
	r := NewRegistry(
		&stubAdapter{member: types.MemberKvasir},
		&stubAdapter{member: types.MemberBragi, down: true},
	)

	got := r.Available()
	if len(got) != 1 || got[0] != types.MemberKvasir {
		t.Errorf("Available() = %v, want [KVASIR]", got)
	}
}

type stubAdapter struct {
	member types.CouncilMember
	down   bool
}

func (s *stubAdapter) Member() types.CouncilMember { return s.member }
func (s *stubAdapter) ModelID() string             { return "stub" }
func (s *stubAdapter) IsAvailable() bool           { return !s.down }
func (s *stubAdapter) Query(_ context.Context, _ string) (*types.MemberResponse, error) {
	return &types.MemberResponse{Member: s.member, Content: "stub", Confidence: 80}, nil
}
