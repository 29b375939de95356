// Copyright (C) 2025 Yggdrasil Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/yggdrasillabs/yggdrasil/pkg/types"
	"github.com/yggdrasillabs/yggdrasil/services/branches"
	"github.com/yggdrasillabs/yggdrasil/services/council"
	"github.com/yggdrasillabs/yggdrasil/services/ledger"
	"github.com/yggdrasillabs/yggdrasil/services/llm"
)

// --- stubs ---

type stubHandler struct {
	branch   types.Branch
	evidence *branches.Evidence
	delay    time.Duration
}

func (s *stubHandler) Branch() types.Branch { return s.branch }
func (s *stubHandler) Fetch(ctx context.Context, _ string, _ []string) (*branches.Evidence, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.evidence, nil
}

type stubAdapter struct {
	member     types.CouncilMember
	confidence int
}

func (s *stubAdapter) Member() types.CouncilMember { return s.member }
func (s *stubAdapter) ModelID() string             { return "stub" }
func (s *stubAdapter) IsAvailable() bool           { return true }
func (s *stubAdapter) Query(_ context.Context, _ string) (*types.MemberResponse, error) {
	return &types.MemberResponse{
		Member:     s.member,
		Content:    "answer from " + string(s.member),
		Confidence: s.confidence,
		Timestamp:  time.Now(),
	}, nil
}

func testPipeline(t *testing.T, handlers []branches.Handler, confidences map[types.CouncilMember]int) (*Pipeline, *ledger.Ledger) {
	t.Helper()
	l, err := ledger.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = l.Close() })

	var adapters []llm.Adapter
	var members []types.CouncilMember
	for member, conf := range confidences {
		adapters = append(adapters, &stubAdapter{member: member, confidence: conf})
		members = append(members, member)
	}
	c := council.New(llm.NewRegistry(adapters...))

	return New(handlers, c, l, members), l
}

func mimirEvidence() *branches.Evidence {
	return &branches.Evidence{
		Branch:     types.BranchMimir,
		Content:    "The speed of light in vacuum is 299,792,458 m/s.",
		Confidence: 100,
		Sources: []types.Source{{
			Type: types.SourceArxiv, Identifier: "c-measure", URL: "https://arxiv.org/abs/c",
			TrustScore: 100, RetrievedAt: time.Now(),
		}},
	}
}

// TestProcess_SourcedFactual tests spec scenario 1: anchored MIMIR evidence
// plus council consensus yields a verified answer.
func TestProcess_SourcedFactual(t *testing.T) {
	p, l := testPipeline(t,
		[]branches.Handler{&stubHandler{branch: types.BranchMimir, evidence: mimirEvidence()}},
		map[types.CouncilMember]int{
			types.MemberKvasir: 95, types.MemberBragi: 92, types.MemberNornes: 88,
		})

	resp, err := p.Process(context.Background(), Request{
		Query:   "What is the speed of light in vacuum?",
		UserID:  "user-1",
		Options: DefaultOptions(),
	}, nil)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if !resp.IsVerified {
		t.Fatalf("expected verified answer, got refusal %s", resp.RefusalReason)
	}
	if resp.Confidence != 100 {
		t.Errorf("confidence = %d, want 100", resp.Confidence)
	}
	if resp.Branch == nil || *resp.Branch != types.BranchMimir {
		t.Errorf("branch = %v, want MIMIR", resp.Branch)
	}
	if resp.Answer == nil || !strings.Contains(*resp.Answer, "299,792,458") {
		t.Errorf("answer = %v, want it to contain 299,792,458", resp.Answer)
	}
	if len(resp.Sources) == 0 {
		t.Error("verified answer must carry sources")
	}
	if resp.Trace == nil || resp.Trace.FinalDecision != types.DecisionApproved {
		t.Error("expected approved trace")
	}

	// Persistence: the answer became a verified ledger node with Shapley
	// attribution, and the deliberation was recorded.
	ids, err := l.SearchStatements(context.Background(), "speed light vacuum", 5)
	if err != nil || len(ids) == 0 {
		t.Fatalf("persisted node not found: %v", err)
	}
	node, err := l.GetNode(context.Background(), ids[0])
	if err != nil {
		t.Fatal(err)
	}
	if node.State != types.StateVerified || node.Branch != types.BranchMimir {
		t.Errorf("persisted node state=%s branch=%s, want VERIFIED MIMIR", node.State, node.Branch)
	}
	if len(node.ShapleyAttribution) == 0 {
		t.Error("persisted node should carry Shapley attribution")
	}
	if resp.DeliberationID == "" {
		t.Fatal("response should reference the deliberation")
	}
	if _, err := l.GetDeliberation(context.Background(), resp.DeliberationID); err != nil {
		t.Errorf("deliberation not persisted: %v", err)
	}
}

// TestProcess_UnsourcedClaim tests spec scenario 2: no anchored source
// refuses with NO_SOURCE.
func TestProcess_UnsourcedClaim(t *testing.T) {
	p, _ := testPipeline(t,
		[]branches.Handler{
			&stubHandler{branch: types.BranchVolva, evidence: &branches.Evidence{
				Branch: types.BranchVolva, Content: "dark matter speculation", Confidence: 65,
				Sources: []types.Source{{Type: types.SourceWeb, Identifier: "blog", TrustScore: 55, RetrievedAt: time.Now()}},
			}},
			&stubHandler{branch: types.BranchHugin, evidence: &branches.Evidence{
				Branch: types.BranchHugin, Content: "forum chatter", Confidence: 20,
				Sources: []types.Source{{Type: types.SourceWeb, Identifier: "forum", TrustScore: 20, RetrievedAt: time.Now()}},
			}},
		},
		map[types.CouncilMember]int{
			types.MemberKvasir: 80, types.MemberBragi: 75,
		})

	resp, err := p.Process(context.Background(), Request{
		Query:   "Is dark matter conscious?",
		Options: DefaultOptions(),
	}, nil)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if resp.IsVerified {
		t.Fatal("expected refusal")
	}
	if resp.RefusalReason != types.RefusalNoSource {
		t.Errorf("refusal = %s, want NO_SOURCE", resp.RefusalReason)
	}
	if resp.Answer != nil {
		t.Error("refusal must not carry an answer")
	}
	if resp.Confidence != 0 {
		t.Errorf("confidence = %d, want 0", resp.Confidence)
	}
}

// TestProcess_CouncilDeadlock tests spec scenario 4: a split council under
// requireConsensus refuses with NO_CONSENSUS.
func TestProcess_CouncilDeadlock(t *testing.T) {
	p, _ := testPipeline(t,
		[]branches.Handler{&stubHandler{branch: types.BranchMimir, evidence: mimirEvidence()}},
		map[types.CouncilMember]int{
			types.MemberKvasir: 80, types.MemberBragi: 75,
			types.MemberNornes: 40, types.MemberSaga: 45,
		})

	opts := DefaultOptions()
	opts.RequireConsensus = true
	resp, err := p.Process(context.Background(), Request{
		Query:   "What is the speed of light in vacuum?",
		Options: opts,
	}, nil)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if resp.IsVerified {
		t.Fatal("expected refusal")
	}
	if resp.RefusalReason != types.RefusalNoConsensus {
		t.Errorf("refusal = %s, want NO_CONSENSUS", resp.RefusalReason)
	}
}

// TestProcess_TimeoutRefusesWithPartialTrace tests deadline expiry inside
// the fan-out phase.
func TestProcess_TimeoutRefusesWithPartialTrace(t *testing.T) {
	p, _ := testPipeline(t,
		[]branches.Handler{&stubHandler{
			branch: types.BranchMimir, evidence: mimirEvidence(), delay: 2 * time.Second,
		}},
		map[types.CouncilMember]int{types.MemberKvasir: 90})

	opts := DefaultOptions()
	opts.MaxTimeMs = 50
	resp, err := p.Process(context.Background(), Request{
		Query:   "What is the speed of light in vacuum?",
		Options: opts,
	}, nil)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if resp.IsVerified {
		t.Fatal("expected timeout refusal")
	}
	if resp.RefusalReason != types.RefusalTimeout {
		t.Errorf("refusal = %s, want TIMEOUT", resp.RefusalReason)
	}
	if resp.Trace == nil || len(resp.Trace.Steps) == 0 {
		t.Error("timeout refusal must carry the partial trace")
	}
	if resp.Answer != nil {
		t.Error("timeout must never emit a partial answer")
	}
}

// TestProcessWithThinking_CollectsSteps tests the thinking variant.
func TestProcessWithThinking_CollectsSteps(t *testing.T) {
	p, _ := testPipeline(t,
		[]branches.Handler{&stubHandler{branch: types.BranchMimir, evidence: mimirEvidence()}},
		map[types.CouncilMember]int{
			types.MemberKvasir: 95, types.MemberBragi: 92, types.MemberNornes: 88,
		})

	resp, steps, err := p.ProcessWithThinking(context.Background(), Request{
		Query:   "What is the speed of light in vacuum?",
		Options: DefaultOptions(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if !resp.IsVerified {
		t.Fatalf("expected verified answer, got %s", resp.RefusalReason)
	}
	if len(steps) == 0 {
		t.Error("expected thinking steps")
	}
	phases := map[string]bool{}
	for _, s := range steps {
		phases[s.Phase] = true
	}
	for _, phase := range []string{"classify", "fan_out_branches", "council_deliberate"} {
		if !phases[phase] {
			t.Errorf("missing thinking phase %s", phase)
		}
	}
}

// TestProcessWithStreaming_TerminatesWithResponse tests the lazy event
// sequence contract: thinking events then exactly one terminal event.
func TestProcessWithStreaming_TerminatesWithResponse(t *testing.T) {
	p, _ := testPipeline(t,
		[]branches.Handler{&stubHandler{branch: types.BranchMimir, evidence: mimirEvidence()}},
		map[types.CouncilMember]int{
			types.MemberKvasir: 95, types.MemberBragi: 92, types.MemberNornes: 88,
		})

	events := p.ProcessWithStreaming(context.Background(), Request{
		Query:   "What is the speed of light in vacuum?",
		Options: DefaultOptions(),
	})

	var thinking, terminal int
	var last Event
	for event := range events {
		switch event.Kind {
		case EventThinking:
			thinking++
			if terminal > 0 {
				t.Error("thinking event after terminal event")
			}
		default:
			terminal++
			last = event
		}
	}

	if thinking == 0 {
		t.Error("expected thinking events")
	}
	if terminal != 1 {
		t.Fatalf("terminal events = %d, want exactly 1", terminal)
	}
	if last.Kind != EventResponse || last.Response == nil || !last.Response.IsVerified {
		t.Errorf("terminal event = %+v, want verified response", last)
	}
}

// TestProcess_ConversationalSkipsBranches tests the classifier short
// circuit: small talk is answered without branch fan-out or anchoring.
func TestProcess_ConversationalSkipsBranches(t *testing.T) {
	p, _ := testPipeline(t,
		[]branches.Handler{&stubHandler{branch: types.BranchMimir, evidence: mimirEvidence()}},
		map[types.CouncilMember]int{
			types.MemberKvasir: 95, types.MemberBragi: 92, types.MemberNornes: 90,
		})

	resp, steps, err := p.ProcessWithThinking(context.Background(), Request{
		Query:   "Hello there!",
		Options: DefaultOptions(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if !resp.IsVerified {
		t.Fatalf("conversational query should be answered, got %s", resp.RefusalReason)
	}

	for _, s := range steps {
		if s.Phase == "fan_out_branches" && !strings.Contains(s.Thought, "skipped") {
			t.Errorf("branch fan-out should be skipped for conversational queries: %q", s.Thought)
		}
	}
}
