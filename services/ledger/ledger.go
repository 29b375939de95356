// Copyright (C) 2025 Yggdrasil Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yggdrasillabs/yggdrasil/pkg/types"
)

// =============================================================================
// Node Creation
// =============================================================================

// CreateOptions configures node creation.
type CreateOptions struct {
	// Confidence places the node in its branch. Default 0 (HUGIN).
	Confidence int

	// Branch, when set, must agree with Confidence; a mismatch is a
	// BranchViolation (I1).
	Branch types.Branch

	Domain  string
	Tags    []string
	Sources []types.Source

	// Agent and Trigger label the CREATE audit entry.
	Agent   string
	Trigger string
}

// CreateNode creates a node with branch-consistent state and appends the
// CREATE audit entry. The statement is trimmed and must fit in 4 KiB. Nodes
// start at PENDING_PROOF; nodes that arrive with evidence attached start at
// WATCHING.
func (l *Ledger) CreateNode(ctx context.Context, statement string, opts CreateOptions) (*types.KnowledgeNode, error) {
	statement = strings.TrimSpace(statement)
	if statement == "" {
		return nil, fmt.Errorf("statement must not be empty")
	}
	if len(statement) > types.MaxStatementBytes {
		return nil, fmt.Errorf("statement exceeds %d bytes", types.MaxStatementBytes)
	}

	branch, err := types.BranchForConfidence(opts.Confidence)
	if err != nil {
		return nil, err
	}
	if opts.Branch != "" && opts.Branch != branch {
		return nil, fmt.Errorf("confidence %d does not belong to branch %s: %w",
			opts.Confidence, opts.Branch, types.ErrBranchViolation)
	}

	now := l.clock()
	state := types.StatePendingProof
	if len(opts.Sources) > 0 {
		state = types.StateWatching
	}

	node := &types.KnowledgeNode{
		ID:               uuid.NewString(),
		Statement:        statement,
		Domain:           opts.Domain,
		Tags:             opts.Tags,
		Branch:           branch,
		State:            state,
		Confidence:       opts.Confidence,
		Velocity:         0,
		PriorityQueue:    types.QueueWarm,
		IdleCycles:       0,
		CreatedAt:        now,
		UpdatedAt:        now,
		LastTransitionAt: now,
	}
	nextScan := now
	node.NextScan = &nextScan

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin create: %w", types.ErrPersistenceFailure)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO knowledge_nodes
			(id, statement, domain, tags, branch, state, confidence, velocity,
			 priority_queue, last_scan, next_scan, idle_cycles, shapley,
			 created_at, updated_at, last_transition_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		node.ID, node.Statement, node.Domain, marshalJSON(node.Tags),
		node.Branch, node.State, node.Confidence, node.Velocity,
		node.PriorityQueue, nil, formatNullTime(node.NextScan),
		node.IdleCycles, "{}",
		formatTime(now), formatTime(now), formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("insert node: %w", types.ErrPersistenceFailure)
	}

	if _, err := tx.Exec(`INSERT INTO node_statements (node_id, statement) VALUES (?, ?)`,
		node.ID, node.Statement); err != nil {
		return nil, fmt.Errorf("index statement: %w", types.ErrPersistenceFailure)
	}

	for _, src := range opts.Sources {
		if src.ID == "" {
			src.ID = uuid.NewString()
		}
		srcID, err := upsertSource(tx, src)
		if err != nil {
			return nil, fmt.Errorf("attach source: %w", types.ErrPersistenceFailure)
		}
		if _, err := tx.Exec(`INSERT OR IGNORE INTO node_sources (node_id, source_id) VALUES (?, ?)`,
			node.ID, srcID); err != nil {
			return nil, fmt.Errorf("link source: %w", types.ErrPersistenceFailure)
		}
	}

	entry := types.AuditEntry{
		Timestamp: now,
		Action:    types.AuditCreate,
		ToState:   node.State,
		Trigger:   opts.Trigger,
		Agent:     opts.Agent,
		Reason:    "node created",
	}
	if err := appendAudit(tx, node.ID, entry); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit create: %w", types.ErrPersistenceFailure)
	}

	node.AuditTrail = []types.AuditEntry{entry}
	node.Sources = opts.Sources
	slog.Debug("knowledge node created", "node_id", node.ID, "branch", node.Branch, "state", node.State)
	return node, nil
}

// GetNode loads a node with its audit trail and sources.
func (l *Ledger) GetNode(ctx context.Context, id string) (*types.KnowledgeNode, error) {
	row := l.db.QueryRowContext(ctx,
		`SELECT `+nodeColumns+` FROM knowledge_nodes WHERE id = ?`, id)
	node, err := scanNode(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.NotFoundError("node", id)
		}
		return nil, fmt.Errorf("load node: %w", err)
	}

	if node.AuditTrail, err = l.loadAuditTrail(ctx, id); err != nil {
		return nil, err
	}
	if node.Sources, err = l.loadSources(ctx, id); err != nil {
		return nil, err
	}
	return node, nil
}

// =============================================================================
// State Transitions
// =============================================================================

// TransitionOptions parameterize a state transition.
type TransitionOptions struct {
	Trigger       string
	Agent         string
	Reason        string
	NewConfidence *int
	VoteRecord    string

	// Sources are fresh evidence accompanying the transition. They are
	// attached to the node and count toward the verification anchor check.
	Sources []types.Source
}

// TransitionState moves a node to a new state, recomputing velocity and the
// watcher queue when confidence changes, and appends exactly one TRANSITION
// audit entry.
//
// Transitions to VERIFIED enforce I3: the node must hold at least one
// anchored source (trust >= 80), and a node whose current branch is HUGIN
// is refused outright, so it has to reach VOLVA in an earlier transition.
// That earlier move out of HUGIN is not checked for new sources: any
// anchored source already on the node satisfies the anchor check.
func (l *Ledger) TransitionState(ctx context.Context, id string, newState types.NodeState, opts TransitionOptions) (*types.KnowledgeNode, error) {
	unlock := l.lockNode(id)
	defer unlock()

	node, err := l.GetNode(ctx, id)
	if err != nil {
		return nil, err
	}

	newConfidence := node.Confidence
	if opts.NewConfidence != nil {
		newConfidence = *opts.NewConfidence
	}

	newBranch, err := types.BranchForConfidence(newConfidence)
	if err != nil {
		return nil, err
	}

	if newState == types.StateVerified {
		if node.Branch == types.BranchHugin {
			return nil, fmt.Errorf(
				"HUGIN node %s cannot be verified directly, promote through VOLVA first: %w",
				id, types.ErrVerificationUnsupported)
		}
		if !hasAnchor(append(node.Sources, opts.Sources...)) {
			return nil, fmt.Errorf("node %s has no anchored source: %w",
				id, types.ErrVerificationUnsupported)
		}
		if newBranch != types.BranchMimir {
			return nil, fmt.Errorf(
				"verified nodes carry confidence 100, got %d: %w",
				newConfidence, types.ErrBranchViolation)
		}
	}

	now := l.clock()
	velocity := node.Velocity
	queue := node.PriorityQueue
	var deltaPtr *int
	if newConfidence != node.Confidence {
		elapsed := now.Sub(node.LastTransitionAt).Milliseconds()
		if elapsed == 0 {
			elapsed = 1 // sub-millisecond transitions still move
		}
		velocity = types.ComputeVelocity(node.Confidence, newConfidence, elapsed)
		queue = types.QueueForVelocity(velocity)
		delta := newConfidence - node.Confidence
		deltaPtr = &delta
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transition: %w", types.ErrPersistenceFailure)
	}
	defer tx.Rollback()

	nextScan := now.Add(time.Duration(types.QueueInterval(queue)) * time.Millisecond)
	_, err = tx.Exec(`
		UPDATE knowledge_nodes
		SET state = ?, branch = ?, confidence = ?, velocity = ?,
		    priority_queue = ?, next_scan = ?, updated_at = ?, last_transition_at = ?
		WHERE id = ?`,
		newState, newBranch, newConfidence, velocity,
		queue, formatTime(nextScan), formatTime(now), formatTime(now), id)
	if err != nil {
		return nil, fmt.Errorf("update node: %w", types.ErrPersistenceFailure)
	}

	for _, src := range opts.Sources {
		if src.ID == "" {
			src.ID = uuid.NewString()
		}
		srcID, err := upsertSource(tx, src)
		if err != nil {
			return nil, fmt.Errorf("attach source: %w", types.ErrPersistenceFailure)
		}
		if _, err := tx.Exec(`INSERT OR IGNORE INTO node_sources (node_id, source_id) VALUES (?, ?)`,
			id, srcID); err != nil {
			return nil, fmt.Errorf("link source: %w", types.ErrPersistenceFailure)
		}
	}

	if err := appendAudit(tx, id, types.AuditEntry{
		Timestamp:       now,
		Action:          types.AuditTransition,
		FromState:       node.State,
		ToState:         newState,
		Trigger:         opts.Trigger,
		Agent:           opts.Agent,
		Reason:          opts.Reason,
		ConfidenceDelta: deltaPtr,
		VoteRecord:      opts.VoteRecord,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transition: %w", types.ErrPersistenceFailure)
	}

	slog.Debug("node transitioned",
		"node_id", id, "from", node.State, "to", newState,
		"confidence", newConfidence, "velocity", velocity, "queue", queue)

	return l.GetNode(ctx, id)
}

func hasAnchor(sources []types.Source) bool {
	for _, s := range sources {
		if s.Anchored() {
			return true
		}
	}
	return false
}

// =============================================================================
// Dependencies
// =============================================================================

// AddDependency upserts the edge (source -> target). Strength must lie in
// [0,1]; both endpoints must exist.
func (l *Ledger) AddDependency(ctx context.Context, sourceID, targetID string, relation types.Relation, strength float64) error {
	if strength < 0 || strength > 1 {
		return fmt.Errorf("dependency strength %v outside [0,1]", strength)
	}
	for _, id := range []string{sourceID, targetID} {
		var exists int
		err := l.db.QueryRowContext(ctx,
			`SELECT 1 FROM knowledge_nodes WHERE id = ?`, id).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return types.NotFoundError("node", id)
		}
		if err != nil {
			return fmt.Errorf("check node: %w", err)
		}
	}

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO knowledge_dependencies (source_id, target_id, relation, strength)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (source_id, target_id)
		DO UPDATE SET relation = excluded.relation, strength = excluded.strength`,
		sourceID, targetID, relation, strength)
	if err != nil {
		return fmt.Errorf("upsert dependency: %w", types.ErrPersistenceFailure)
	}
	return nil
}

// Dependents returns the outgoing edges of a node (edges whose source is the
// given node), i.e. the nodes that depend on it.
func (l *Ledger) Dependents(ctx context.Context, sourceID string) ([]types.DependencyEdge, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT source_id, target_id, relation, strength
		FROM knowledge_dependencies WHERE source_id = ?`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("load dependents: %w", err)
	}
	defer rows.Close()

	var edges []types.DependencyEdge
	for rows.Next() {
		var e types.DependencyEdge
		if err := rows.Scan(&e.SourceID, &e.TargetID, &e.Relation, &e.Strength); err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// =============================================================================
// Watcher Bookkeeping
// =============================================================================

// ScheduleReview moves a node into the given queue for rescanning, zeroing
// its idle cycles, and appends a QUEUE_CHANGE audit entry. The node becomes
// immediately eligible for the queue's next tick.
func (l *Ledger) ScheduleReview(ctx context.Context, id string, queue types.PriorityQueue, reason string) error {
	unlock := l.lockNode(id)
	defer unlock()

	node, err := l.GetNode(ctx, id)
	if err != nil {
		return err
	}

	now := l.clock()
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schedule review: %w", types.ErrPersistenceFailure)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		UPDATE knowledge_nodes
		SET priority_queue = ?, idle_cycles = 0, next_scan = ?, updated_at = ?
		WHERE id = ?`,
		queue, formatTime(now), formatTime(now), id)
	if err != nil {
		return fmt.Errorf("update queue: %w", types.ErrPersistenceFailure)
	}

	if err := appendAudit(tx, id, types.AuditEntry{
		Timestamp: now,
		Action:    types.AuditQueueChange,
		FromState: node.State,
		ToState:   node.State,
		Trigger:   "schedule_review",
		Agent:     "watcher",
		Reason:    reason,
	}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schedule review: %w", types.ErrPersistenceFailure)
	}
	return nil
}

// ScanUpdate carries the outcome of one watcher scan.
type ScanUpdate struct {
	Changed       bool
	NewConfidence *int
}

// idleDemotionThreshold is the number of consecutive unchanged scans after
// which a node is demoted one queue.
const idleDemotionThreshold = 3

// UpdateScanStatus records a scan outcome. Unchanged scans accumulate idle
// cycles; three in a row demote the queue one step (HOT -> WARM -> COLD) and
// reset the counter. Changed scans reset the counter and, when a new
// confidence is supplied, recompute velocity and re-derive the queue.
// Either way the next scan is scheduled one queue interval out.
func (l *Ledger) UpdateScanStatus(ctx context.Context, id string, update ScanUpdate) (*types.KnowledgeNode, error) {
	unlock := l.lockNode(id)
	defer unlock()

	node, err := l.GetNode(ctx, id)
	if err != nil {
		return nil, err
	}

	now := l.clock()
	queue := node.PriorityQueue
	idle := node.IdleCycles
	velocity := node.Velocity
	confidence := node.Confidence
	branch := node.Branch
	var deltaPtr *int
	demoted := false

	if update.Changed {
		idle = 0
		if update.NewConfidence != nil && *update.NewConfidence != node.Confidence {
			confidence = *update.NewConfidence
			branch, err = types.BranchForConfidence(confidence)
			if err != nil {
				return nil, err
			}
			elapsed := now.Sub(node.LastTransitionAt).Milliseconds()
			if elapsed == 0 {
				elapsed = 1
			}
			velocity = types.ComputeVelocity(node.Confidence, confidence, elapsed)
			queue = types.QueueForVelocity(velocity)
			delta := confidence - node.Confidence
			deltaPtr = &delta
		}
	} else {
		idle++
		if idle >= idleDemotionThreshold {
			queue = queue.Demote()
			idle = 0
			demoted = queue != node.PriorityQueue
		}
	}

	nextScan := now.Add(time.Duration(types.QueueInterval(queue)) * time.Millisecond)

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin scan update: %w", types.ErrPersistenceFailure)
	}
	defer tx.Rollback()

	lastTransition := node.LastTransitionAt
	if deltaPtr != nil {
		lastTransition = now
	}
	_, err = tx.Exec(`
		UPDATE knowledge_nodes
		SET branch = ?, confidence = ?, velocity = ?, priority_queue = ?,
		    idle_cycles = ?, last_scan = ?, next_scan = ?, updated_at = ?,
		    last_transition_at = ?
		WHERE id = ?`,
		branch, confidence, velocity, queue, idle,
		formatTime(now), formatTime(nextScan), formatTime(now),
		formatTime(lastTransition), id)
	if err != nil {
		return nil, fmt.Errorf("update scan status: %w", types.ErrPersistenceFailure)
	}

	if deltaPtr != nil {
		if err := appendAudit(tx, id, types.AuditEntry{
			Timestamp:       now,
			Action:          types.AuditTransition,
			FromState:       node.State,
			ToState:         node.State,
			Trigger:         "watcher_scan",
			Agent:           "watcher",
			Reason:          "confidence adjusted by rescan",
			ConfidenceDelta: deltaPtr,
		}); err != nil {
			return nil, err
		}
	} else if demoted {
		if err := appendAudit(tx, id, types.AuditEntry{
			Timestamp: now,
			Action:    types.AuditQueueChange,
			FromState: node.State,
			ToState:   node.State,
			Trigger:   "idle_demotion",
			Agent:     "watcher",
			Reason:    fmt.Sprintf("demoted %s -> %s after %d idle cycles", node.PriorityQueue, queue, idleDemotionThreshold),
		}); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit scan update: %w", types.ErrPersistenceFailure)
	}

	return l.GetNode(ctx, id)
}

// DueForScan returns up to limit nodes in the given queue whose next scan is
// due, oldest first with never-scanned nodes leading, excluding terminal
// states.
func (l *Ledger) DueForScan(ctx context.Context, queue types.PriorityQueue, now time.Time, limit int) ([]types.KnowledgeNode, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT `+nodeColumns+` FROM knowledge_nodes
		WHERE priority_queue = ?
		  AND state NOT IN (?, ?)
		  AND (next_scan IS NULL OR next_scan <= ?)
		ORDER BY next_scan ASC NULLS FIRST
		LIMIT ?`,
		queue, types.StateDeprecated, types.StateRejected, formatTime(now), limit)
	if err != nil {
		return nil, fmt.Errorf("query due nodes: %w", err)
	}
	defer rows.Close()

	var nodes []types.KnowledgeNode
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, *n)
	}
	return nodes, rows.Err()
}

// =============================================================================
// Shapley Attribution
// =============================================================================

// UpdateShapleyAttribution accumulates per-member contribution onto a node.
func (l *Ledger) UpdateShapleyAttribution(ctx context.Context, id string, contribution map[types.CouncilMember]float64) error {
	unlock := l.lockNode(id)
	defer unlock()

	node, err := l.GetNode(ctx, id)
	if err != nil {
		return err
	}

	merged := node.ShapleyAttribution
	if merged == nil {
		merged = make(map[types.CouncilMember]float64, len(contribution))
	}
	for member, phi := range contribution {
		merged[member] += phi
	}

	_, err = l.db.ExecContext(ctx,
		`UPDATE knowledge_nodes SET shapley = ?, updated_at = ? WHERE id = ?`,
		marshalJSON(merged), formatTime(l.clock()), id)
	if err != nil {
		return fmt.Errorf("update shapley attribution: %w", types.ErrPersistenceFailure)
	}
	return nil
}
