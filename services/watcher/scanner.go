// Copyright (C) 2025 Yggdrasil Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/yggdrasillabs/yggdrasil/pkg/types"
	"github.com/yggdrasillabs/yggdrasil/services/disinfo"
	"github.com/yggdrasillabs/yggdrasil/services/ledger"
)

// SearchResult is one unverified snippet returned by the search
// collaborator.
type SearchResult struct {
	URL         string
	Content     string
	PublishedAt *time.Time
}

// UnverifiedSearcher fetches fresh web evidence for a statement. The watcher
// treats it as an external collaborator behind a narrow interface.
type UnverifiedSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)
}

// alert thresholds
const (
	velocitySpikeThreshold = 0.1
	confidenceDropPoints   = 30
	contradictionSignals   = 2
	contradictionPenalty   = 20
	searchResultLimit      = 5
)

// ScanOutcome reports one node rescan.
type ScanOutcome struct {
	NodeID        string
	Changed       bool
	OldConfidence int
	NewConfidence int
	Velocity      float64
	Queue         types.PriorityQueue
	Alerts        []types.Alert
	Err           error
}

// scanNode rescans one node: fetch fresh snippets, score them through the
// disinformation filter, derive a bounded confidence adjustment, and record
// the result in the ledger.
//
// The adjustment is additive, (avgTrust - 50) * 0.001 * 100, so at most
// five points per scan, with a further 20-point penalty when two or more
// snippets carry contradiction-grade signals.
func (w *Watcher) scanNode(ctx context.Context, node types.KnowledgeNode) ScanOutcome {
	outcome := ScanOutcome{NodeID: node.ID, OldConfidence: node.Confidence}

	results, err := w.searcher.Search(ctx, node.Statement, searchResultLimit)
	if err != nil {
		outcome.Err = fmt.Errorf("unverified search for node %s: %w", node.ID, err)
		return outcome
	}

	newConfidence, contradictions := w.adjustedConfidence(node, results)
	outcome.Changed = newConfidence != node.Confidence
	outcome.NewConfidence = newConfidence

	update := ledger.ScanUpdate{Changed: outcome.Changed}
	if outcome.Changed {
		nc := newConfidence
		update.NewConfidence = &nc
	}
	updated, err := w.ledger.UpdateScanStatus(ctx, node.ID, update)
	if err != nil {
		outcome.Err = fmt.Errorf("scan status update for node %s: %w", node.ID, err)
		return outcome
	}
	outcome.Velocity = updated.Velocity
	outcome.Queue = updated.PriorityQueue

	outcome.Alerts = w.deriveAlerts(updated, node.Confidence, contradictions)
	for _, alert := range outcome.Alerts {
		w.alerts.Add(alert)
		if err := w.ledger.SaveAlert(ctx, alert); err != nil {
			slog.Warn("failed to persist alert", "node_id", node.ID, "kind", alert.Kind, "error", err)
		}
	}

	return outcome
}

// adjustedConfidence computes the trust-weighted confidence move for a node
// given the scored snippets. No snippets means no movement.
func (w *Watcher) adjustedConfidence(node types.KnowledgeNode, results []SearchResult) (newConfidence, contradictions int) {
	if len(results) == 0 {
		return node.Confidence, 0
	}

	trustSum := 0
	for _, r := range results {
		var meta *disinfo.Metadata
		if r.PublishedAt != nil {
			meta = &disinfo.Metadata{PublishedAt: r.PublishedAt}
		}
		report := w.filter.Analyze(r.URL, r.Content, meta)
		trustSum += 100 - report.RiskScore
		if report.Recommendation == disinfo.RecommendBlock || report.Severity == types.SeverityCritical {
			contradictions++
		}
	}
	avgTrust := float64(trustSum) / float64(len(results))

	adjustment := (avgTrust - 50) * 0.001 * 100
	if contradictions >= contradictionSignals {
		adjustment -= contradictionPenalty
	}

	adjusted := int(math.Round(float64(node.Confidence) + adjustment))
	if adjusted < 0 {
		adjusted = 0
	}
	if adjusted > 100 {
		adjusted = 100
	}
	return adjusted, contradictions
}

// deriveAlerts applies the alert rules to a freshly updated node.
func (w *Watcher) deriveAlerts(node *types.KnowledgeNode, oldConfidence, contradictions int) []types.Alert {
	now := w.clock()
	var alerts []types.Alert

	if math.Abs(node.Velocity) > velocitySpikeThreshold {
		alerts = append(alerts, types.Alert{
			ID:       uuid.NewString(),
			NodeID:   node.ID,
			Kind:     types.AlertVelocitySpike,
			Severity: types.SeverityHigh,
			Message: fmt.Sprintf("epistemic velocity %.4f exceeds %.2f",
				node.Velocity, velocitySpikeThreshold),
			CreatedAt: now,
		})
	}

	if contradictions >= contradictionSignals {
		alerts = append(alerts, types.Alert{
			ID:       uuid.NewString(),
			NodeID:   node.ID,
			Kind:     types.AlertContradiction,
			Severity: types.SeverityCritical,
			Message: fmt.Sprintf("%d contradiction-grade snippets found during rescan",
				contradictions),
			CreatedAt: now,
		})
	}

	if drop := oldConfidence - node.Confidence; drop > confidenceDropPoints {
		alerts = append(alerts, types.Alert{
			ID:       uuid.NewString(),
			NodeID:   node.ID,
			Kind:     types.AlertConfidenceDrop,
			Severity: types.SeverityHigh,
			Message: fmt.Sprintf("confidence fell %d points (%d -> %d)",
				drop, oldConfidence, node.Confidence),
			CreatedAt: now,
		})
	}

	return alerts
}
