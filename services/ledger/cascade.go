// Copyright (C) 2025 Yggdrasil Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/yggdrasillabs/yggdrasil/pkg/types"
)

// CascadeInvalidate deprecates the root node and walks its dependents
// breadth-first. Dependents linked with strength >= 0.8 are deprecated in
// turn and their own dependents enqueued; weaker dependents are scheduled
// for HOT review instead of being invalidated.
//
// The visited set guarantees each node is processed at most once, so cycles
// in the dependency graph terminate (I4). Runs in O(V+E).
func (l *Ledger) CascadeInvalidate(ctx context.Context, rootID, invalidator, reason string) (*types.CascadeResult, error) {
	started := time.Now()

	if _, err := l.GetNode(ctx, rootID); err != nil {
		return nil, err
	}

	visited := map[string]struct{}{rootID: {}}
	queue := []string{rootID}
	reviewSet := make(map[string]struct{})

	result := &types.CascadeResult{RootID: rootID}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if err := l.deprecate(ctx, current, rootID, invalidator, reason); err != nil {
			return nil, fmt.Errorf("cascade from %s: %w", rootID, err)
		}
		result.InvalidatedIDs = append(result.InvalidatedIDs, current)

		edges, err := l.Dependents(ctx, current)
		if err != nil {
			return nil, fmt.Errorf("cascade from %s: %w", rootID, err)
		}
		for _, edge := range edges {
			if _, seen := visited[edge.TargetID]; seen {
				continue
			}
			if edge.Strength >= types.CascadeStrengthThreshold {
				visited[edge.TargetID] = struct{}{}
				queue = append(queue, edge.TargetID)
			} else {
				reviewSet[edge.TargetID] = struct{}{}
			}
		}
	}

	// Weakly-linked dependents that were not themselves invalidated get a
	// HOT review instead.
	for id := range reviewSet {
		if _, invalidated := visited[id]; invalidated {
			continue
		}
		if err := l.ScheduleReview(ctx, id, types.QueueHot,
			fmt.Sprintf("weak dependency on invalidated node %s", rootID)); err != nil {
			return nil, fmt.Errorf("cascade review scheduling: %w", err)
		}
		result.ReviewIDs = append(result.ReviewIDs, id)
	}

	result.InvalidatedCount = len(result.InvalidatedIDs)
	result.ReviewCount = len(result.ReviewIDs)
	result.DurationMs = time.Since(started).Milliseconds()

	slog.Info("cascade invalidation complete",
		"root", rootID,
		"invalidated", result.InvalidatedCount,
		"review", result.ReviewCount,
		"duration_ms", result.DurationMs,
	)
	return result, nil
}

// deprecate transitions one node to DEPRECATED with an audit entry
// referencing the cascade root.
func (l *Ledger) deprecate(ctx context.Context, id, rootID, invalidator, reason string) error {
	unlock := l.lockNode(id)
	defer unlock()

	node, err := l.GetNode(ctx, id)
	if err != nil {
		return err
	}
	if node.State == types.StateDeprecated {
		return nil
	}

	now := l.clock()
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin deprecate: %w", types.ErrPersistenceFailure)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		UPDATE knowledge_nodes
		SET state = ?, updated_at = ?, last_transition_at = ?
		WHERE id = ?`,
		types.StateDeprecated, formatTime(now), formatTime(now), id)
	if err != nil {
		return fmt.Errorf("deprecate node: %w", types.ErrPersistenceFailure)
	}

	if err := appendAudit(tx, id, types.AuditEntry{
		Timestamp: now,
		Action:    types.AuditCascade,
		FromState: node.State,
		ToState:   types.StateDeprecated,
		Trigger:   "cascade:" + rootID,
		Agent:     invalidator,
		Reason:    reason,
	}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit deprecate: %w", types.ErrPersistenceFailure)
	}
	return nil
}
