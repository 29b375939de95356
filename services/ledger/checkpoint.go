// Copyright (C) 2025 Yggdrasil Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ledger

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yggdrasillabs/yggdrasil/pkg/types"
)

// CheckpointOptions carries optional checkpoint metadata.
type CheckpointOptions struct {
	Description string
}

// CreateCheckpoint snapshots the given member nodes under a label. The state
// hash is a SHA-256 over the sorted member-id set, so two checkpoints over
// the same node set always hash identically.
func (l *Ledger) CreateCheckpoint(ctx context.Context, userID, label string, memberIDs []string, opts CheckpointOptions) (*types.Checkpoint, error) {
	if len(memberIDs) == 0 {
		return nil, fmt.Errorf("checkpoint needs at least one member node")
	}

	sorted := append([]string(nil), memberIDs...)
	sort.Strings(sorted)

	hash := sha256.Sum256([]byte(strings.Join(sorted, "\n")))

	cp := &types.Checkpoint{
		ID:            uuid.NewString(),
		UserID:        userID,
		Label:         label,
		Description:   opts.Description,
		StateHash:     hex.EncodeToString(hash[:]),
		MemberNodeIDs: sorted,
		CreatedAt:     l.clock(),
	}

	for _, id := range sorted {
		node, err := l.GetNode(ctx, id)
		if err != nil {
			return nil, err
		}
		cp.Snapshots = append(cp.Snapshots, types.CheckpointSnapshot{
			NodeID:           node.ID,
			State:            node.State,
			Branch:           node.Branch,
			Confidence:       node.Confidence,
			Velocity:         node.Velocity,
			PriorityQueue:    node.PriorityQueue,
			AuditTrailLength: len(node.AuditTrail),
		})
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin checkpoint: %w", types.ErrPersistenceFailure)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO checkpoints (id, user_id, label, description, state_hash, member_node_ids, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		cp.ID, cp.UserID, cp.Label, cp.Description, cp.StateHash,
		marshalJSON(cp.MemberNodeIDs), formatTime(cp.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("insert checkpoint: %w", types.ErrPersistenceFailure)
	}

	for _, snap := range cp.Snapshots {
		_, err = tx.Exec(`
			INSERT INTO checkpoint_snapshots
				(checkpoint_id, node_id, state, branch, confidence, velocity, priority_queue, audit_trail_length)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			cp.ID, snap.NodeID, snap.State, snap.Branch, snap.Confidence,
			snap.Velocity, snap.PriorityQueue, snap.AuditTrailLength)
		if err != nil {
			return nil, fmt.Errorf("insert snapshot: %w", types.ErrPersistenceFailure)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit checkpoint: %w", types.ErrPersistenceFailure)
	}

	slog.Info("checkpoint created", "checkpoint_id", cp.ID, "label", label, "members", len(sorted))
	return cp, nil
}

// GetCheckpoint loads one checkpoint with its snapshots.
func (l *Ledger) GetCheckpoint(ctx context.Context, id string) (*types.Checkpoint, error) {
	var (
		cp        types.Checkpoint
		members   string
		createdAt string
	)
	err := l.db.QueryRowContext(ctx, `
		SELECT id, user_id, label, description, state_hash, member_node_ids, created_at
		FROM checkpoints WHERE id = ?`, id).
		Scan(&cp.ID, &cp.UserID, &cp.Label, &cp.Description, &cp.StateHash, &members, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.NotFoundError("checkpoint", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	if err := json.Unmarshal([]byte(members), &cp.MemberNodeIDs); err != nil {
		return nil, fmt.Errorf("corrupt member list for checkpoint %s: %w", id, err)
	}
	cp.CreatedAt = parseTime(createdAt)

	rows, err := l.db.QueryContext(ctx, `
		SELECT node_id, state, branch, confidence, velocity, priority_queue, audit_trail_length
		FROM checkpoint_snapshots WHERE checkpoint_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("load snapshots: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var snap types.CheckpointSnapshot
		if err := rows.Scan(&snap.NodeID, &snap.State, &snap.Branch, &snap.Confidence,
			&snap.Velocity, &snap.PriorityQueue, &snap.AuditTrailLength); err != nil {
			return nil, err
		}
		cp.Snapshots = append(cp.Snapshots, snap)
	}
	return &cp, rows.Err()
}

// Rollback restores a checkpoint. Nodes created after the checkpoint that
// are reachable from its members through dependency edges are deprecated;
// every snapshotted node is re-transitioned to its captured state,
// confidence, and queue. History is never rewritten: each restoration
// appends a ROLLBACK audit entry on top of whatever happened since.
func (l *Ledger) Rollback(ctx context.Context, checkpointID, userID string) (*types.RollbackResult, error) {
	cp, err := l.GetCheckpoint(ctx, checkpointID)
	if err != nil {
		return nil, err
	}

	result := &types.RollbackResult{}

	// Phase 1: deprecate post-checkpoint nodes reachable from the members.
	reachable, err := l.reachableFrom(ctx, cp.MemberNodeIDs)
	if err != nil {
		return nil, err
	}
	memberSet := make(map[string]struct{}, len(cp.MemberNodeIDs))
	for _, id := range cp.MemberNodeIDs {
		memberSet[id] = struct{}{}
	}
	for _, id := range reachable {
		if _, isMember := memberSet[id]; isMember {
			continue
		}
		node, err := l.GetNode(ctx, id)
		if err != nil {
			return nil, err
		}
		if !node.CreatedAt.After(cp.CreatedAt) || node.State == types.StateDeprecated {
			continue
		}
		if err := l.rollbackDeprecate(ctx, id, checkpointID, userID); err != nil {
			return nil, err
		}
		result.InvalidatedCount++
	}

	// Phase 2: restore each snapshot.
	for _, snap := range cp.Snapshots {
		if err := l.restoreSnapshot(ctx, snap, checkpointID, userID); err != nil {
			return nil, err
		}
		result.RestoredCount++
	}

	slog.Info("checkpoint rollback complete",
		"checkpoint_id", checkpointID,
		"invalidated", result.InvalidatedCount,
		"restored", result.RestoredCount,
	)
	return result, nil
}

// reachableFrom walks dependency edges outward from the given roots and
// returns every node reached, roots included. The visited set bounds the
// walk on cyclic graphs.
func (l *Ledger) reachableFrom(ctx context.Context, roots []string) ([]string, error) {
	visited := make(map[string]struct{}, len(roots))
	queue := append([]string(nil), roots...)
	for _, r := range roots {
		visited[r] = struct{}{}
	}

	var order []string
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		order = append(order, current)

		edges, err := l.Dependents(ctx, current)
		if err != nil {
			return nil, err
		}
		for _, e := range edges {
			if _, seen := visited[e.TargetID]; !seen {
				visited[e.TargetID] = struct{}{}
				queue = append(queue, e.TargetID)
			}
		}
	}
	return order, nil
}

func (l *Ledger) rollbackDeprecate(ctx context.Context, id, checkpointID, userID string) error {
	unlock := l.lockNode(id)
	defer unlock()

	node, err := l.GetNode(ctx, id)
	if err != nil {
		return err
	}

	now := l.clock()
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rollback deprecate: %w", types.ErrPersistenceFailure)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		UPDATE knowledge_nodes SET state = ?, updated_at = ?, last_transition_at = ? WHERE id = ?`,
		types.StateDeprecated, formatTime(now), formatTime(now), id)
	if err != nil {
		return fmt.Errorf("rollback deprecate: %w", types.ErrPersistenceFailure)
	}

	if err := appendAudit(tx, id, types.AuditEntry{
		Timestamp: now,
		Action:    types.AuditRollback,
		FromState: node.State,
		ToState:   types.StateDeprecated,
		Trigger:   "rollback:" + checkpointID,
		Agent:     userID,
		Reason:    "node postdates checkpoint",
	}); err != nil {
		return err
	}
	return tx.Commit()
}

func (l *Ledger) restoreSnapshot(ctx context.Context, snap types.CheckpointSnapshot, checkpointID, userID string) error {
	unlock := l.lockNode(snap.NodeID)
	defer unlock()

	node, err := l.GetNode(ctx, snap.NodeID)
	if err != nil {
		return err
	}

	now := l.clock()
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin restore: %w", types.ErrPersistenceFailure)
	}
	defer tx.Rollback()

	nextScan := now.Add(time.Duration(types.QueueInterval(snap.PriorityQueue)) * time.Millisecond)
	_, err = tx.Exec(`
		UPDATE knowledge_nodes
		SET state = ?, branch = ?, confidence = ?, velocity = ?,
		    priority_queue = ?, next_scan = ?, updated_at = ?, last_transition_at = ?
		WHERE id = ?`,
		snap.State, snap.Branch, snap.Confidence, snap.Velocity,
		snap.PriorityQueue, formatTime(nextScan), formatTime(now), formatTime(now),
		snap.NodeID)
	if err != nil {
		return fmt.Errorf("restore snapshot: %w", types.ErrPersistenceFailure)
	}

	delta := snap.Confidence - node.Confidence
	var deltaPtr *int
	if delta != 0 {
		deltaPtr = &delta
	}
	if err := appendAudit(tx, snap.NodeID, types.AuditEntry{
		Timestamp:       now,
		Action:          types.AuditRollback,
		FromState:       node.State,
		ToState:         snap.State,
		Trigger:         "rollback:" + checkpointID,
		Agent:           userID,
		Reason:          "restored to checkpoint snapshot",
		ConfidenceDelta: deltaPtr,
	}); err != nil {
		return err
	}
	return tx.Commit()
}
