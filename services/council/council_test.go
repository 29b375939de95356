// Copyright (C) 2025 Yggdrasil Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package council

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yggdrasillabs/yggdrasil/pkg/types"
	"github.com/yggdrasillabs/yggdrasil/services/llm"
)

func resp(member types.CouncilMember, confidence int) types.MemberResponse {
	return types.MemberResponse{Member: member, Content: "answer from " + string(member), Confidence: confidence}
}

// TestArbitrate_Consensus tests the consensus rule: no dissent and a strong
// yes supermajority.
func TestArbitrate_Consensus(t *testing.T) {
	verdict := Arbitrate([]types.MemberResponse{
		resp(types.MemberKvasir, 95),
		resp(types.MemberBragi, 92),
		resp(types.MemberNornes, 88),
	}, false)

	assert.Equal(t, types.VerdictConsensus, verdict.Kind)
	assert.Equal(t, types.VoteCounts{Yes: 3}, verdict.VoteCounts)
	assert.Empty(t, verdict.Dissent)
}

// TestArbitrate_Majority tests yes > no without consensus.
func TestArbitrate_Majority(t *testing.T) {
	verdict := Arbitrate([]types.MemberResponse{
		resp(types.MemberKvasir, 90),
		resp(types.MemberBragi, 85),
		resp(types.MemberNornes, 30),
	}, false)

	assert.Equal(t, types.VerdictMajority, verdict.Kind)
	assert.Equal(t, types.VoteCounts{Yes: 2, No: 1}, verdict.VoteCounts)
	assert.Equal(t, []types.CouncilMember{types.MemberNornes}, verdict.Dissent)
}

// TestArbitrate_DeadlockScenario tests spec scenario 4: two yes, two no
// with consensus required.
func TestArbitrate_DeadlockScenario(t *testing.T) {
	verdict := Arbitrate([]types.MemberResponse{
		resp(types.MemberKvasir, 80),
		resp(types.MemberBragi, 75),
		resp(types.MemberNornes, 40),
		resp(types.MemberSaga, 45),
	}, true)

	assert.Equal(t, types.VerdictDeadlock, verdict.Kind)
	assert.Equal(t, types.VoteCounts{Yes: 2, No: 2}, verdict.VoteCounts)
}

// TestArbitrate_SplitWithoutConsensusFlag tests that the same tie is a
// SPLIT when consensus is not required.
func TestArbitrate_SplitWithoutConsensusFlag(t *testing.T) {
	verdict := Arbitrate([]types.MemberResponse{
		resp(types.MemberKvasir, 80),
		resp(types.MemberBragi, 75),
		resp(types.MemberNornes, 40),
		resp(types.MemberSaga, 45),
	}, false)

	assert.Equal(t, types.VerdictSplit, verdict.Kind)
}

// TestArbitrate_DeadlockOnNoMajority tests no > yes with requireConsensus.
func TestArbitrate_DeadlockOnNoMajority(t *testing.T) {
	verdict := Arbitrate([]types.MemberResponse{
		resp(types.MemberKvasir, 80),
		resp(types.MemberBragi, 30),
		resp(types.MemberNornes, 20),
	}, true)

	assert.Equal(t, types.VerdictDeadlock, verdict.Kind)
}

// TestArbitrate_EmptyCouncil tests the N=0 boundary: DEADLOCK with empty
// vote counts.
func TestArbitrate_EmptyCouncil(t *testing.T) {
	verdict := Arbitrate(nil, false)

	assert.Equal(t, types.VerdictDeadlock, verdict.Kind)
	assert.Equal(t, types.VoteCounts{}, verdict.VoteCounts)
}

// TestArbitrate_Deterministic tests I5: identical response sets yield
// identical verdicts across repeated runs and input orderings.
func TestArbitrate_Deterministic(t *testing.T) {
	a := []types.MemberResponse{
		resp(types.MemberKvasir, 72),
		resp(types.MemberBragi, 55),
		resp(types.MemberNornes, 44),
	}
	b := []types.MemberResponse{a[2], a[0], a[1]}

	va := Arbitrate(a, true)
	vb := Arbitrate(b, true)

	assert.Equal(t, va.Kind, vb.Kind)
	assert.Equal(t, va.VoteCounts, vb.VoteCounts)

	for i := 0; i < 50; i++ {
		v := Arbitrate(a, true)
		require.Equal(t, va.Kind, v.Kind)
		require.Equal(t, va.VoteCounts, v.VoteCounts)
	}
}

// TestParseChallenges_Format tests LOKI output parsing.
func TestParseChallenges_Format(t *testing.T) {
	raw := "CHALLENGE BRAGI HIGH: cites no primary source\n" +
		"CHALLENGE KVASIR LOW: rounding is imprecise\n" +
		"CHALLENGE UNKNOWNGUY CRITICAL: dropped\n" +
		"some stray commentary\n"

	challenges := parseChallenges(raw)

	require.Len(t, challenges, 2)
	assert.Equal(t, types.MemberBragi, challenges[0].TargetMember)
	assert.Equal(t, types.SeverityHigh, challenges[0].Severity)
	assert.Equal(t, "cites no primary source", challenges[0].Text)
	assert.Equal(t, types.MemberKvasir, challenges[1].TargetMember)
}

// TestParseChallenges_None tests the NONE sentinel.
func TestParseChallenges_None(t *testing.T) {
	assert.Empty(t, parseChallenges("NONE"))
}

// TestDeliberate_FanOutAndStableOrdering tests the full protocol against
// stub adapters, including response ordering by member enum order.
func TestDeliberate_FanOutAndStableOrdering(t *testing.T) {
	registry := llm.NewRegistry(
		&fixedAdapter{member: types.MemberSyn, confidence: 88},
		&fixedAdapter{member: types.MemberKvasir, confidence: 95},
		&fixedAdapter{member: types.MemberBragi, confidence: 91},
	)
	c := New(registry)

	d, err := c.Deliberate(context.Background(), Request{
		RequestID: "req-1",
		Query:     "What is the speed of light?",
		Members:   []types.CouncilMember{types.MemberSyn, types.MemberKvasir, types.MemberBragi},
	})
	require.NoError(t, err)

	require.Len(t, d.Responses, 3)
	assert.Equal(t, types.MemberKvasir, d.Responses[0].Member)
	assert.Equal(t, types.MemberBragi, d.Responses[1].Member)
	assert.Equal(t, types.MemberSyn, d.Responses[2].Member)
	assert.Equal(t, types.VerdictConsensus, d.Verdict.Kind)
	assert.Contains(t, d.FinalProposal, "[KVASIR]")
	assert.NotEmpty(t, d.ID)
}

// TestDeliberate_SkipsUnavailableMembers tests that a down adapter is
// skipped, not failed.
func TestDeliberate_SkipsUnavailableMembers(t *testing.T) {
	registry := llm.NewRegistry(
		&fixedAdapter{member: types.MemberKvasir, confidence: 90},
		&fixedAdapter{member: types.MemberBragi, confidence: 90, down: true},
	)
	c := New(registry)

	d, err := c.Deliberate(context.Background(), Request{
		RequestID: "req-2",
		Query:     "q",
		Members:   []types.CouncilMember{types.MemberKvasir, types.MemberBragi},
	})
	require.NoError(t, err)
	require.Len(t, d.Responses, 1)
	assert.Equal(t, types.MemberKvasir, d.Responses[0].Member)
}

type fixedAdapter struct {
	member     types.CouncilMember
	confidence int
	down       bool
}

func (f *fixedAdapter) Member() types.CouncilMember { return f.member }
func (f *fixedAdapter) ModelID() string             { return "fixed" }
func (f *fixedAdapter) IsAvailable() bool           { return !f.down }
func (f *fixedAdapter) Query(_ context.Context, _ string) (*types.MemberResponse, error) {
	return &types.MemberResponse{
		Member:     f.member,
		Content:    "answer from " + string(f.member),
		Confidence: f.confidence,
	}, nil
}
