// Copyright (C) 2025 Yggdrasil Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package pipeline orchestrates a query end to end: classification, branch
// fan-out, council deliberation, validation, and persistence, with a
// deadline checked at every phase boundary. The output is always either a
// validated answer or an explicit refusal. Anchored answers carry literal
// source citations; queries the classifier marks as needing no verification
// (conversational, creative) skip the anchor check and may be answered
// without sources. A timeout refuses with the partial trace, never with a
// partial answer.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"github.com/yggdrasillabs/yggdrasil/pkg/types"
	"github.com/yggdrasillabs/yggdrasil/services/branches"
	"github.com/yggdrasillabs/yggdrasil/services/classifier"
	"github.com/yggdrasillabs/yggdrasil/services/council"
	"github.com/yggdrasillabs/yggdrasil/services/ledger"
	"github.com/yggdrasillabs/yggdrasil/services/validator"
)

var tracer = otel.Tracer("yggdrasil.pipeline")

// defaultMaxTime bounds a request that carries no explicit deadline.
const defaultMaxTime = 60 * time.Second

// Options tune one request.
type Options struct {
	RequireMimirAnchor bool
	RequireConsensus   bool
	MaxTimeMs          int64
	ReturnTrace        bool
}

// DefaultOptions returns the strict defaults: anchored answers only.
func DefaultOptions() Options {
	return Options{RequireMimirAnchor: true, ReturnTrace: true}
}

// Request is one pipeline invocation.
type Request struct {
	RequestID string
	Query     string
	UserID    string
	SessionID string
	Options   Options
}

// Indexer receives verified nodes for similarity lookup. Optional.
type Indexer interface {
	IndexNode(ctx context.Context, node *types.KnowledgeNode) error
}

// Pipeline wires the epistemic core together. All dependencies are passed
// explicitly; there is no shared global state.
type Pipeline struct {
	handlers []branches.Handler
	council  *council.Council
	ledger   *ledger.Ledger
	members  []types.CouncilMember
	indexer  Indexer
}

// SetIndexer attaches the optional similarity indexer. Indexing is
// best-effort; failures never block an answer.
func (p *Pipeline) SetIndexer(idx Indexer) { p.indexer = idx }

// New builds a pipeline over the given collaborators. members defaults to
// the full canonical council when empty.
func New(handlers []branches.Handler, c *council.Council, l *ledger.Ledger, members []types.CouncilMember) *Pipeline {
	if len(members) == 0 {
		members = types.MemberOrder
	}
	return &Pipeline{handlers: handlers, council: c, ledger: l, members: members}
}

// Process runs the full pipeline and returns the response. The emit
// callback, when non-nil, receives thinking steps as phases complete.
func (p *Pipeline) Process(ctx context.Context, req Request, emit func(types.ThinkingStep)) (*types.YggdrasilResponse, error) {
	ctx, span := tracer.Start(ctx, "pipeline.process")
	defer span.End()

	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	maxTime := defaultMaxTime
	if req.Options.MaxTimeMs > 0 {
		maxTime = time.Duration(req.Options.MaxTimeMs) * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, maxTime)
	defer cancel()

	run := &runState{req: req, startedAt: time.Now(), emit: emit}

	resp := p.run(ctx, run)
	if !req.Options.ReturnTrace {
		resp.Trace = nil
	}
	return resp, nil
}

// runState carries one request's accumulated trace.
type runState struct {
	req       Request
	startedAt time.Time
	steps     []types.TraceStep
	emit      func(types.ThinkingStep)
}

func (r *runState) record(phase, action, result string) {
	r.steps = append(r.steps, types.TraceStep{
		StepNumber: len(r.steps) + 1,
		Phase:      phase,
		Action:     action,
		Result:     result,
		Timestamp:  time.Now(),
	})
	if r.emit != nil {
		r.emit(types.ThinkingStep{Phase: phase, Thought: result, Timestamp: time.Now()})
	}
}

// partialTrace finalizes the trace collected so far as a rejection.
func (r *runState) partialTrace() *types.ValidationTrace {
	return &types.ValidationTrace{
		RequestID:        r.req.RequestID,
		OdinVersion:      validator.Version,
		Steps:            r.steps,
		FinalDecision:    types.DecisionRejected,
		ProcessingTimeMs: time.Since(r.startedAt).Milliseconds(),
	}
}

func (p *Pipeline) run(ctx context.Context, run *runState) *types.YggdrasilResponse {
	req := run.req

	// Phase 1: classify.
	class := classifier.Classify(req.Query)
	run.record("classify", "classify_query",
		fmt.Sprintf("type=%s domain=%s complexity=%s verification=%t",
			class.Type, class.Domain, class.Complexity, class.RequiresVerification))

	if expired(ctx) {
		return refusal(types.RefusalTimeout, run)
	}

	options := req.Options
	if !class.RequiresVerification {
		// Conversational and creative queries carry no factual claim to
		// anchor; they are answered from the council without a source
		// requirement.
		options.RequireMimirAnchor = false
	}
	if class.Controversial {
		options.RequireConsensus = true
	}

	// Phase 2: branch fan-out.
	var evidence map[types.Branch]*branches.Evidence
	if class.RequiresVerification {
		var err error
		evidence, err = branches.FanOut(ctx, p.handlers, req.Query, class.Keywords)
		if err != nil {
			run.record("fan_out_branches", "fan_out", "cancelled: "+err.Error())
			return refusal(types.RefusalTimeout, run)
		}
		run.record("fan_out_branches", "fan_out",
			fmt.Sprintf("%d branches returned evidence", len(evidence)))
	} else {
		run.record("fan_out_branches", "fan_out", "skipped for non-factual query")
	}

	if expired(ctx) {
		return refusal(types.RefusalTimeout, run)
	}

	// Phase 3: council deliberation.
	deliberation, err := p.council.Deliberate(ctx, council.Request{
		RequestID:        req.RequestID,
		Query:            councilPrompt(req.Query, evidence),
		Members:          p.members,
		RequireConsensus: options.RequireConsensus,
		OnProgress: func(phase, note string) {
			if run.emit != nil {
				run.emit(types.ThinkingStep{Phase: "council_deliberate", Thought: phase + ": " + note, Timestamp: time.Now()})
			}
		},
	})
	if err != nil {
		run.record("council_deliberate", "deliberate", "failed: "+err.Error())
		return refusal(types.RefusalInternal, run)
	}
	run.record("council_deliberate", "deliberate",
		fmt.Sprintf("verdict=%s votes=%d/%d/%d", deliberation.Verdict.Kind,
			deliberation.Verdict.VoteCounts.Yes, deliberation.Verdict.VoteCounts.Partial,
			deliberation.Verdict.VoteCounts.No))

	if expired(ctx) {
		return refusal(types.RefusalTimeout, run)
	}

	// Phase 4: validate.
	content, answerBranch, sources := chooseAnswer(evidence, deliberation)
	result := validator.Validate(validator.Input{
		RequestID:          req.RequestID,
		Content:            content,
		RequireMimirAnchor: options.RequireMimirAnchor,
		Sources:            sources,
		Verdict:            deliberation.Verdict,
		BranchResults:      evidence,
		Steps:              run.steps,
		StartedAt:          run.startedAt,
	})
	if !result.IsValid {
		slog.Info("pipeline refused", "request_id", req.RequestID, "reason", result.Refusal)
		resp := types.Refusal(result.Refusal, &result.Trace)
		resp.DeliberationID = deliberation.ID
		return &resp
	}

	if expired(ctx) {
		return refusal(types.RefusalTimeout, run)
	}

	// Phase 5: persist.
	if err := p.persist(ctx, req, content, sources, deliberation); err != nil {
		if errors.Is(err, types.ErrPersistenceFailure) {
			slog.Error("pipeline persistence failed", "request_id", req.RequestID, "error", err)
			return refusal(types.RefusalInternal, run)
		}
		slog.Warn("pipeline persistence degraded", "request_id", req.RequestID, "error", err)
	}
	result.Trace.Steps = append(result.Trace.Steps, types.TraceStep{
		StepNumber: len(result.Trace.Steps) + 1,
		Phase:      "persist",
		Action:     "persist_answer",
		Result:     "ledger updated",
		Timestamp:  time.Now(),
	})

	answer := content
	return &types.YggdrasilResponse{
		IsVerified:     true,
		Answer:         &answer,
		Sources:        sources,
		Branch:         &answerBranch,
		Confidence:     100,
		Trace:          &result.Trace,
		DeliberationID: deliberation.ID,
	}
}

// chooseAnswer picks the answer content and attribution: MIMIR evidence
// first, then VOLVA, then the council's proposal.
func chooseAnswer(evidence map[types.Branch]*branches.Evidence, d *types.CouncilDeliberation) (string, types.Branch, []types.Source) {
	var sources []types.Source
	for _, b := range []types.Branch{types.BranchMimir, types.BranchVolva, types.BranchHugin} {
		if e, ok := evidence[b]; ok {
			sources = append(sources, e.Sources...)
		}
	}

	if e, ok := evidence[types.BranchMimir]; ok {
		return e.Content, types.BranchMimir, sources
	}
	if e, ok := evidence[types.BranchVolva]; ok {
		return e.Content, types.BranchVolva, sources
	}
	if d.FinalProposal != "" {
		return d.FinalProposal, types.BranchHugin, sources
	}
	if e, ok := evidence[types.BranchHugin]; ok {
		return e.Content, types.BranchHugin, sources
	}
	return "", types.BranchHugin, sources
}

// councilPrompt folds the branch evidence into the question put before the
// council.
func councilPrompt(query string, evidence map[types.Branch]*branches.Evidence) string {
	var sb strings.Builder
	sb.WriteString(query)
	for _, b := range []types.Branch{types.BranchMimir, types.BranchVolva, types.BranchHugin} {
		if e, ok := evidence[b]; ok && e.Content != "" {
			fmt.Fprintf(&sb, "\n\n[%s evidence, confidence %d]\n%s", b, e.Confidence, e.Content)
		}
	}
	return sb.String()
}

// persist writes the approved answer into the ledger: a verified node, the
// deliberation record, and the council's Shapley attribution.
func (p *Pipeline) persist(ctx context.Context, req Request, content string, sources []types.Source, d *types.CouncilDeliberation) error {
	if err := p.ledger.SaveDeliberation(ctx, d); err != nil {
		return err
	}

	// Unanchored answers (conversational, anchor check waived) are not
	// knowledge; only the deliberation record is kept.
	anchored := false
	for _, s := range sources {
		if s.Anchored() {
			anchored = true
			break
		}
	}
	if !anchored {
		return nil
	}

	statement := content
	if len(statement) > types.MaxStatementBytes {
		statement = statement[:types.MaxStatementBytes]
	}

	node, err := p.ledger.CreateNode(ctx, statement, ledger.CreateOptions{
		Confidence: 100,
		Sources:    sources,
		Agent:      "pipeline",
		Trigger:    "request:" + req.RequestID,
	})
	if err != nil {
		return err
	}

	verified, err := p.ledger.TransitionState(ctx, node.ID, types.StateVerified, ledger.TransitionOptions{
		Trigger:    "request:" + req.RequestID,
		Agent:      "odin",
		Reason:     "validated pipeline answer",
		VoteRecord: fmt.Sprintf("%+v", d.Verdict.VoteCounts),
	})
	if err != nil {
		return err
	}

	if p.indexer != nil {
		if err := p.indexer.IndexNode(ctx, verified); err != nil {
			slog.Warn("similarity indexing failed", "node_id", verified.ID, "error", err)
		}
	}

	shapley := council.ComputeShapley(d.Responses, d.Verdict.Kind)
	if len(shapley) > 0 {
		if err := p.ledger.UpdateShapleyAttribution(ctx, node.ID, shapley); err != nil {
			return err
		}
	}
	return nil
}

func refusal(reason types.RefusalReason, run *runState) *types.YggdrasilResponse {
	resp := types.Refusal(reason, run.partialTrace())
	return &resp
}

func expired(ctx context.Context) bool {
	return ctx.Err() != nil
}
