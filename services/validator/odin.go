// Copyright (C) 2025 Yggdrasil Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package validator is the final gate of the pipeline. It checks anchoring,
// council consensus, and branch ceilings, and produces the validation trace
// that justifies every accept or refuse decision. It never adjusts content:
// the only outputs are approval at confidence 100 or an explicit refusal.
package validator

import (
	"fmt"
	"time"

	"github.com/yggdrasillabs/yggdrasil/pkg/types"
	"github.com/yggdrasillabs/yggdrasil/services/branches"
)

// Version tags every trace this validator emits.
const Version = "odin/2.1.0"

// Input is everything the validator sees about a candidate answer.
type Input struct {
	RequestID          string
	Content            string
	RequireMimirAnchor bool
	Sources            []types.Source
	Verdict            types.Verdict
	BranchResults      map[types.Branch]*branches.Evidence

	// Steps are the pipeline steps recorded before validation; the
	// validator appends its own and finalizes the trace.
	Steps     []types.TraceStep
	StartedAt time.Time
}

// Result is the validator's decision.
type Result struct {
	IsValid    bool
	Refusal    types.RefusalReason
	Confidence int
	Sources    []types.Source
	Trace      types.ValidationTrace
}

// Validate runs the three checks in order: anchoring, consensus, branch
// ceilings. The first failure refuses; passing all three approves at
// confidence 100.
func Validate(in Input) Result {
	steps := append([]types.TraceStep(nil), in.Steps...)
	now := time.Now

	record := func(action, result string) {
		steps = append(steps, types.TraceStep{
			StepNumber: len(steps) + 1,
			Phase:      "validate",
			Action:     action,
			Result:     result,
			Timestamp:  now(),
		})
	}
	refuse := func(reason types.RefusalReason) Result {
		return Result{
			Refusal: reason,
			Trace:   finalize(in, steps, types.DecisionRejected),
		}
	}

	// Check 1: anchoring.
	if in.RequireMimirAnchor {
		if !hasAnchoredSource(in.Sources) {
			record("anchor_check", "no source at or above trust 80")
			return refuse(types.RefusalNoSource)
		}
		record("anchor_check", "anchored source present")
	} else {
		record("anchor_check", "skipped by request")
	}

	// Check 2: council consensus.
	switch in.Verdict.Kind {
	case types.VerdictDeadlock, types.VerdictSplit:
		record("consensus_check", fmt.Sprintf("verdict %s blocks approval", in.Verdict.Kind))
		return refuse(types.RefusalNoConsensus)
	default:
		record("consensus_check", fmt.Sprintf("verdict %s (%d yes / %d partial / %d no)",
			in.Verdict.Kind, in.Verdict.VoteCounts.Yes, in.Verdict.VoteCounts.Partial, in.Verdict.VoteCounts.No))
	}

	// Check 3: branch ceilings.
	for branch, evidence := range in.BranchResults {
		if evidence == nil || evidence.Empty() {
			continue
		}
		if evidence.Confidence > branch.ConfidenceCeiling() {
			record("branch_check", fmt.Sprintf("%s evidence at confidence %d exceeds ceiling %d",
				branch, evidence.Confidence, branch.ConfidenceCeiling()))
			return refuse(types.RefusalBranchViolation)
		}
	}
	record("branch_check", "all branch results inside their cells")

	record("decision", "approved")
	return Result{
		IsValid:    true,
		Confidence: 100,
		Sources:    in.Sources,
		Trace:      finalize(in, steps, types.DecisionApproved),
	}
}

func finalize(in Input, steps []types.TraceStep, decision string) types.ValidationTrace {
	return types.ValidationTrace{
		RequestID:        in.RequestID,
		OdinVersion:      Version,
		Steps:            steps,
		FinalDecision:    decision,
		ProcessingTimeMs: time.Since(in.StartedAt).Milliseconds(),
	}
}

func hasAnchoredSource(sources []types.Source) bool {
	for _, s := range sources {
		if s.Anchored() {
			return true
		}
	}
	return false
}
