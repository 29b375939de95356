// Copyright (C) 2025 Yggdrasil Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package branches

import (
	"context"
	"testing"
	"time"

	"github.com/yggdrasillabs/yggdrasil/pkg/types"
	"github.com/yggdrasillabs/yggdrasil/services/disinfo"
	"github.com/yggdrasillabs/yggdrasil/services/ledger"
)

func testLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	l, err := ledger.Open(":memory:")
	if err != nil {
		t.Fatalf("ledger open failed: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func arxivSource(trust int) types.Source {
	return types.Source{
		Type:        types.SourceArxiv,
		Identifier:  "1234.5678",
		URL:         "https://arxiv.org/abs/1234.5678",
		TrustScore:  trust,
		RetrievedAt: time.Now(),
	}
}

// TestMimirHandler_OnlyVerifiedFullTrust tests MIMIR's acceptance rule:
// verified nodes with trust-100 validated-provider sources only.
func TestMimirHandler_OnlyVerifiedFullTrust(t *testing.T) {
	l := testLedger(t)
	ctx := context.Background()

	verified, err := l.CreateNode(ctx, "the speed of light in vacuum is 299792458 m/s", ledger.CreateOptions{
		Confidence: 90,
		Sources:    []types.Source{arxivSource(100)},
	})
	if err != nil {
		t.Fatal(err)
	}
	conf := 100
	if _, err := l.TransitionState(ctx, verified.ID, types.StateVerified, ledger.TransitionOptions{
		NewConfidence: &conf, Trigger: "test",
	}); err != nil {
		t.Fatal(err)
	}

	// Same topic, but unverified: must not surface through MIMIR.
	if _, err := l.CreateNode(ctx, "the speed of light might vary in vacuum", ledger.CreateOptions{
		Confidence: 60,
		Sources:    []types.Source{{Type: types.SourceWeb, Identifier: "w1", TrustScore: 40, RetrievedAt: time.Now()}},
	}); err != nil {
		t.Fatal(err)
	}

	h := NewMimirHandler(l)
	evidence, err := h.Fetch(ctx, "speed of light vacuum", []string{"speed", "light", "vacuum"})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if evidence.Empty() {
		t.Fatal("expected MIMIR evidence")
	}
	if evidence.Confidence != 100 {
		t.Errorf("confidence = %d, want 100", evidence.Confidence)
	}
	if len(evidence.Sources) != 1 || evidence.Sources[0].TrustScore != 100 {
		t.Errorf("sources = %+v, want exactly the trust-100 arxiv source", evidence.Sources)
	}
}

// TestVolvaHandler_RequiresSources tests that unsourced VOLVA nodes are
// excluded.
func TestVolvaHandler_RequiresSources(t *testing.T) {
	l := testLedger(t)
	ctx := context.Background()

	if _, err := l.CreateNode(ctx, "dark matter distribution is clumpy", ledger.CreateOptions{
		Confidence: 65,
		Sources:    []types.Source{arxivSource(85)},
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := l.CreateNode(ctx, "dark matter might be clumpy unsourced", ledger.CreateOptions{
		Confidence: 70,
	}); err != nil {
		t.Fatal(err)
	}

	h := NewVolvaHandler(l)
	evidence, err := h.Fetch(ctx, "dark matter clumpy", []string{"dark", "matter", "clumpy"})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if evidence.Empty() {
		t.Fatal("expected VOLVA evidence")
	}
	if evidence.Confidence != 65 {
		t.Errorf("confidence = %d, want 65 from the sourced node only", evidence.Confidence)
	}
}

type stubWebSearcher struct {
	snippets []WebSnippet
}

func (s *stubWebSearcher) Search(_ context.Context, _ string, _ int) ([]WebSnippet, error) {
	return s.snippets, nil
}

// TestHuginHandler_CapsConfidenceAndFilters tests the HUGIN ceiling and the
// disinformation gate.
func TestHuginHandler_CapsConfidenceAndFilters(t *testing.T) {
	filter, err := disinfo.NewFilter()
	if err != nil {
		t.Fatal(err)
	}

	h := NewHuginHandler(&stubWebSearcher{snippets: []WebSnippet{
		{URL: "https://example.org/clean", Title: "Clean", Content: "A sober description of the topic."},
		{URL: "https://infowars.com/bad", Title: "Blocked", Content: "They don't want you to know! The earth is flat!"},
	}}, filter)

	evidence, err := h.Fetch(context.Background(), "topic", nil)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if evidence.Empty() {
		t.Fatal("expected HUGIN evidence from the clean snippet")
	}
	if evidence.Confidence > 49 {
		t.Errorf("confidence = %d, want <= 49", evidence.Confidence)
	}
	if len(evidence.Sources) != 1 {
		t.Fatalf("sources = %d, want only the clean snippet", len(evidence.Sources))
	}
	if evidence.Sources[0].Type != types.SourceWeb {
		t.Errorf("source type = %s, want WEB", evidence.Sources[0].Type)
	}
}

// TestFanOut_JoinsBranchesAndDropsViolations tests the concurrent join and
// the confidence-cell guard.
func TestFanOut_JoinsBranchesAndDropsViolations(t *testing.T) {
	handlers := []Handler{
		&fixedHandler{branch: types.BranchMimir, evidence: &Evidence{
			Branch: types.BranchMimir, Content: "verified", Confidence: 100,
			Sources: []types.Source{arxivSource(100)},
		}},
		&fixedHandler{branch: types.BranchVolva, evidence: &Evidence{
			Branch: types.BranchVolva, Content: "out of cell", Confidence: 30,
		}},
		&fixedHandler{branch: types.BranchHugin, evidence: &Evidence{Branch: types.BranchHugin}},
	}

	out, err := FanOut(context.Background(), handlers, "q", nil)
	if err != nil {
		t.Fatalf("FanOut failed: %v", err)
	}

	if _, ok := out[types.BranchMimir]; !ok {
		t.Error("expected MIMIR evidence in join")
	}
	if _, ok := out[types.BranchVolva]; ok {
		t.Error("out-of-cell VOLVA evidence must be dropped")
	}
	if _, ok := out[types.BranchHugin]; ok {
		t.Error("empty HUGIN evidence must be omitted")
	}
}

type fixedHandler struct {
	branch   types.Branch
	evidence *Evidence
}

func (f *fixedHandler) Branch() types.Branch { return f.branch }
func (f *fixedHandler) Fetch(_ context.Context, _ string, _ []string) (*Evidence, error) {
	return f.evidence, nil
}
