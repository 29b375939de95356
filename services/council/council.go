// Copyright (C) 2025 Yggdrasil Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package council runs multi-model deliberation: concurrent fan-out to the
// member adapters, an adversarial challenge pass by LOKI, deterministic
// arbitration, and a final proposal assembled from the winning responses.
//
// Arbitration is a pure function of the collected responses: identical
// response sets always produce the identical verdict kind and vote counts,
// regardless of arrival order.
package council

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"github.com/yggdrasillabs/yggdrasil/pkg/types"
	"github.com/yggdrasillabs/yggdrasil/services/llm"
)

var tracer = otel.Tracer("yggdrasil.council")

// phaseTimeout bounds each deliberation phase; the slowest adapter inside
// the window bounds the phase.
const phaseTimeout = 60 * time.Second

// Request describes one deliberation.
type Request struct {
	RequestID        string
	Query            string
	Members          []types.CouncilMember
	RequireConsensus bool

	// OnProgress, when set, receives phase notes as the deliberation runs.
	OnProgress func(phase, note string)
}

// Council coordinates deliberations over a fixed adapter registry.
type Council struct {
	registry *llm.Registry
}

// New creates a Council over the given registry.
func New(registry *llm.Registry) *Council {
	return &Council{registry: registry}
}

// vote buckets derived from response confidence.
type vote int

const (
	voteNo vote = iota
	votePartial
	voteYes
)

func voteFor(confidence int) vote {
	switch {
	case confidence >= 70:
		return voteYes
	case confidence >= 50:
		return votePartial
	default:
		return voteNo
	}
}

// Deliberate runs the full protocol and returns the deliberation record.
// Unresponsive or unavailable members contribute no response; they are
// skipped, not failed.
func (c *Council) Deliberate(ctx context.Context, req Request) (*types.CouncilDeliberation, error) {
	ctx, span := tracer.Start(ctx, "council.deliberate")
	defer span.End()

	started := time.Now()
	progress(req, "fan_out", fmt.Sprintf("consulting %d members", len(req.Members)))

	responses := c.fanOut(ctx, req)

	progress(req, "challenge", fmt.Sprintf("collected %d responses", len(responses)))
	challenges := c.challenge(ctx, req.Query, responses)

	progress(req, "arbitrate", fmt.Sprintf("%d challenges raised", len(challenges)))
	verdict := Arbitrate(responses, req.RequireConsensus)

	proposal := buildProposal(responses, verdict)
	progress(req, "propose", string(verdict.Kind))

	deliberation := &types.CouncilDeliberation{
		ID:            uuid.NewString(),
		RequestID:     req.RequestID,
		Query:         req.Query,
		Responses:     responses,
		Challenges:    challenges,
		Verdict:       verdict,
		FinalProposal: proposal,
		TotalDuration: time.Since(started).Milliseconds(),
		Timestamp:     time.Now(),
	}

	slog.Info("Council deliberation complete",
		"request_id", req.RequestID,
		"responses", len(responses),
		"challenges", len(challenges),
		"verdict", verdict.Kind,
		"duration_ms", deliberation.TotalDuration,
	)

	return deliberation, nil
}

// fanOut launches one concurrent request per deliberating member and waits
// for all of them or the phase deadline. The returned slice is sorted by
// member enum order so downstream arbitration sees a stable input.
func (c *Council) fanOut(ctx context.Context, req Request) []types.MemberResponse {
	ctx, cancel := context.WithTimeout(ctx, phaseTimeout)
	defer cancel()

	var (
		mu        sync.Mutex
		responses []types.MemberResponse
		wg        sync.WaitGroup
	)

	for _, member := range req.Members {
		if member == types.MemberLoki || member == types.MemberTyr {
			continue // challenger and arbiter do not contribute answers
		}
		adapter, ok := c.registry.Lookup(member)
		if !ok || !adapter.IsAvailable() {
			slog.Debug("member has no available adapter, skipping", "member", member)
			continue
		}

		wg.Add(1)
		go func(m types.CouncilMember, a llm.Adapter) {
			defer wg.Done()
			resp, err := a.Query(ctx, req.Query)
			if err != nil {
				if errors.Is(err, types.ErrAdapterTimeout) {
					slog.Warn("member timed out, counted as non-response", "member", m)
				} else {
					slog.Warn("member unavailable during fan-out", "member", m, "error", err)
				}
				return
			}
			mu.Lock()
			responses = append(responses, *resp)
			mu.Unlock()
		}(member, adapter)
	}

	wg.Wait()

	sort.SliceStable(responses, func(i, j int) bool {
		return responses[i].Member.OrderIndex() < responses[j].Member.OrderIndex()
	})
	return responses
}

// challenge hands the collected responses to LOKI and parses the returned
// objections. No LOKI adapter, or a LOKI failure, means no challenges.
func (c *Council) challenge(ctx context.Context, query string, responses []types.MemberResponse) []types.LokiChallenge {
	if len(responses) == 0 {
		return nil
	}
	adapter, ok := c.registry.Lookup(types.MemberLoki)
	if !ok || !adapter.IsAvailable() {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, phaseTimeout)
	defer cancel()

	var sb strings.Builder
	fmt.Fprintf(&sb, "Question: %s\n\nCouncil answers:\n", query)
	for _, r := range responses {
		fmt.Fprintf(&sb, "[%s, confidence %d] %s\n", r.Member, r.Confidence, r.Content)
	}

	resp, err := adapter.Query(ctx, sb.String())
	if err != nil {
		slog.Warn("LOKI challenge pass failed, continuing without challenges", "error", err)
		return nil
	}

	return parseChallenges(resp.Content)
}

// Arbitrate derives the verdict from the response set. It is deterministic:
// the vote multiset depends only on response confidences, and the kind only
// on the multiset and requireConsensus.
func Arbitrate(responses []types.MemberResponse, requireConsensus bool) types.Verdict {
	if len(responses) == 0 {
		return types.Verdict{
			Kind:      types.VerdictDeadlock,
			Reasoning: "no members responded",
		}
	}

	var counts types.VoteCounts
	var dissent []types.CouncilMember
	for _, r := range responses {
		switch voteFor(r.Confidence) {
		case voteYes:
			counts.Yes++
		case votePartial:
			counts.Partial++
		default:
			counts.No++
			dissent = append(dissent, r.Member)
		}
	}

	// Consensus demands zero dissent and a strong yes supermajority.
	// When consensus is required, any outcome the yes bucket does not win
	// outright is a deadlock; otherwise a tied or losing yes bucket is a
	// split the validator will refuse anyway.
	n := len(responses)
	kind := types.VerdictSplit
	switch {
	case counts.No == 0 && counts.Yes >= (n+1)/2+1:
		kind = types.VerdictConsensus
	case counts.Yes > counts.No:
		kind = types.VerdictMajority
	case requireConsensus:
		kind = types.VerdictDeadlock
	}

	return types.Verdict{
		Kind:       kind,
		VoteCounts: counts,
		Reasoning: fmt.Sprintf("%d yes, %d partial, %d no of %d responses",
			counts.Yes, counts.Partial, counts.No, n),
		Dissent: dissent,
	}
}

// buildProposal concatenates the top-voted contents with their
// attributions. The yes bucket wins; if nobody voted yes the partial bucket
// is used instead.
func buildProposal(responses []types.MemberResponse, verdict types.Verdict) string {
	want := voteYes
	if verdict.VoteCounts.Yes == 0 {
		want = votePartial
	}

	var parts []string
	for _, r := range responses {
		if voteFor(r.Confidence) == want {
			parts = append(parts, fmt.Sprintf("[%s] %s", r.Member, r.Content))
		}
	}
	return strings.Join(parts, "\n\n")
}

func progress(req Request, phase, note string) {
	if req.OnProgress != nil {
		req.OnProgress(phase, note)
	}
}
