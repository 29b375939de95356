// Copyright (C) 2025 Yggdrasil Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package validator

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/yggdrasillabs/yggdrasil/pkg/types"
	"github.com/yggdrasillabs/yggdrasil/services/branches"
)

func anchoredInput() Input {
	return Input{
		RequestID:          "req-1",
		Content:            "The speed of light is 299,792,458 m/s.",
		RequireMimirAnchor: true,
		Sources: []types.Source{{
			Type: types.SourceArxiv, Identifier: "x", TrustScore: 100, RetrievedAt: time.Now(),
		}},
		Verdict:   types.Verdict{Kind: types.VerdictConsensus, VoteCounts: types.VoteCounts{Yes: 3}},
		StartedAt: time.Now(),
	}
}

// TestValidate_ApprovesAnchoredConsensus tests the happy path.
func TestValidate_ApprovesAnchoredConsensus(t *testing.T) {
	result := Validate(anchoredInput())

	if !result.IsValid {
		t.Fatalf("expected approval, got refusal %s", result.Refusal)
	}
	if result.Confidence != 100 {
		t.Errorf("confidence = %d, want 100", result.Confidence)
	}
	if result.Trace.FinalDecision != types.DecisionApproved {
		t.Errorf("decision = %s, want APPROVED", result.Trace.FinalDecision)
	}
	if result.Trace.OdinVersion != Version {
		t.Errorf("odin version = %s", result.Trace.OdinVersion)
	}
	if len(result.Trace.Steps) == 0 {
		t.Error("trace must carry steps")
	}
}

// TestValidate_NoSource tests refusal when the anchor is missing.
func TestValidate_NoSource(t *testing.T) {
	in := anchoredInput()
	in.Sources = []types.Source{{Type: types.SourceWeb, Identifier: "w", TrustScore: 60}}

	result := Validate(in)

	if result.IsValid {
		t.Fatal("expected refusal")
	}
	if result.Refusal != types.RefusalNoSource {
		t.Errorf("refusal = %s, want NO_SOURCE", result.Refusal)
	}
	if result.Trace.FinalDecision != types.DecisionRejected {
		t.Errorf("decision = %s, want REJECTED", result.Trace.FinalDecision)
	}
}

// TestValidate_NoConsensus tests refusal on DEADLOCK and SPLIT verdicts.
func TestValidate_NoConsensus(t *testing.T) {
	for _, kind := range []types.VerdictKind{types.VerdictDeadlock, types.VerdictSplit} {
		in := anchoredInput()
		in.Verdict = types.Verdict{Kind: kind}

		result := Validate(in)

		if result.IsValid {
			t.Fatalf("verdict %s: expected refusal", kind)
		}
		if result.Refusal != types.RefusalNoConsensus {
			t.Errorf("verdict %s: refusal = %s, want NO_CONSENSUS", kind, result.Refusal)
		}
	}
}

// TestValidate_BranchViolation tests refusal when branch evidence escapes
// its confidence cell.
func TestValidate_BranchViolation(t *testing.T) {
	in := anchoredInput()
	in.BranchResults = map[types.Branch]*branches.Evidence{
		types.BranchHugin: {Branch: types.BranchHugin, Content: "web stuff", Confidence: 80},
	}

	result := Validate(in)

	if result.IsValid {
		t.Fatal("expected refusal")
	}
	if result.Refusal != types.RefusalBranchViolation {
		t.Errorf("refusal = %s, want BRANCH_VIOLATION", result.Refusal)
	}
}

// TestValidate_SkipAnchorCheck tests the requireMimirAnchor=false path.
func TestValidate_SkipAnchorCheck(t *testing.T) {
	in := anchoredInput()
	in.RequireMimirAnchor = false
	in.Sources = nil

	result := Validate(in)

	if !result.IsValid {
		t.Fatalf("expected approval without anchor requirement, got %s", result.Refusal)
	}
}

// TestValidationTrace_SerializationRoundTrip tests that a trace survives
// JSON round-tripping intact.
func TestValidationTrace_SerializationRoundTrip(t *testing.T) {
	result := Validate(anchoredInput())

	data, err := json.Marshal(result.Trace)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded types.ValidationTrace
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if decoded.RequestID != result.Trace.RequestID ||
		decoded.OdinVersion != result.Trace.OdinVersion ||
		decoded.FinalDecision != result.Trace.FinalDecision ||
		len(decoded.Steps) != len(result.Trace.Steps) {
		t.Errorf("round-trip mismatch:\n got %+v\nwant %+v", decoded, result.Trace)
	}
	for i := range decoded.Steps {
		if decoded.Steps[i].Action != result.Trace.Steps[i].Action ||
			decoded.Steps[i].StepNumber != result.Trace.Steps[i].StepNumber {
			t.Errorf("step %d mismatch", i)
		}
	}
}
