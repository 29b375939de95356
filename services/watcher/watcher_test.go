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
	"testing"
	"time"

	"github.com/yggdrasillabs/yggdrasil/pkg/types"
	"github.com/yggdrasillabs/yggdrasil/services/disinfo"
	"github.com/yggdrasillabs/yggdrasil/services/ledger"
)

type stubSearcher struct {
	results []SearchResult
	err     error
}

func (s *stubSearcher) Search(_ context.Context, _ string, _ int) ([]SearchResult, error) {
	return s.results, s.err
}

func newTestWatcher(t *testing.T, searcher UnverifiedSearcher) (*Watcher, *ledger.Ledger) {
	t.Helper()
	l, err := ledger.Open(":memory:")
	if err != nil {
		t.Fatalf("ledger open failed: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })

	filter, err := disinfo.NewFilter()
	if err != nil {
		t.Fatalf("filter init failed: %v", err)
	}

	return New(l, searcher, filter, Config{}), l
}

// TestAlertBuffer_BoundedAtCapacity tests the 1,000-entry ring bound.
func TestAlertBuffer_BoundedAtCapacity(t *testing.T) {
	b := NewAlertBuffer()

	for i := 0; i < alertBufferSize+50; i++ {
		b.Add(types.Alert{ID: fmt.Sprintf("alert-%d", i)})
	}

	if b.Len() != alertBufferSize {
		t.Errorf("buffer length = %d, want %d", b.Len(), alertBufferSize)
	}
	snapshot := b.Snapshot()
	if snapshot[0].ID != "alert-50" {
		t.Errorf("oldest retained = %s, want alert-50", snapshot[0].ID)
	}
}

// TestRunQueueNow_CleanEvidenceNudgesUp tests the bounded positive
// adjustment: trustworthy snippets move confidence at most five points.
func TestRunQueueNow_CleanEvidenceNudgesUp(t *testing.T) {
	searcher := &stubSearcher{results: []SearchResult{
		{URL: "https://example.org/a", Content: "The measurement was confirmed by the laboratory."},
		{URL: "https://example.org/b", Content: "Replication succeeded in 2024."},
	}}
	w, l := newTestWatcher(t, searcher)
	ctx := context.Background()

	node, err := l.CreateNode(ctx, "confirmed measurement", ledger.CreateOptions{Confidence: 60})
	if err != nil {
		t.Fatal(err)
	}

	outcomes, err := w.RunQueueNow(ctx, types.QueueWarm)
	if err != nil {
		t.Fatalf("RunQueueNow failed: %v", err)
	}
	if len(outcomes) != 1 {
		t.Fatalf("outcomes = %d, want 1", len(outcomes))
	}

	updated, _ := l.GetNode(ctx, node.ID)
	if updated.Confidence != 65 {
		t.Errorf("confidence = %d, want 65 (+5 cap)", updated.Confidence)
	}
}

// TestRunQueueNow_ContradictionPenaltyAndAlerts tests the contradiction
// penalty and the resulting CONTRADICTION and VELOCITY_SPIKE alerts.
func TestRunQueueNow_ContradictionPenaltyAndAlerts(t *testing.T) {
	searcher := &stubSearcher{results: []SearchResult{
		{URL: "https://infowars.com/a", Content: "The earth is flat and vaccines cause autism!"},
		{URL: "https://naturalnews.com/b", Content: "Climate change is a hoax, wake up sheeple!"},
	}}
	w, l := newTestWatcher(t, searcher)
	ctx := context.Background()

	node, err := l.CreateNode(ctx, "contested claim", ledger.CreateOptions{Confidence: 80})
	if err != nil {
		t.Fatal(err)
	}

	outcomes, err := w.RunQueueNow(ctx, types.QueueWarm)
	if err != nil {
		t.Fatalf("RunQueueNow failed: %v", err)
	}
	if len(outcomes) != 1 || outcomes[0].Err != nil {
		t.Fatalf("outcomes = %+v", outcomes)
	}

	updated, _ := l.GetNode(ctx, node.ID)
	if updated.Confidence >= 80-contradictionPenalty+1 {
		t.Errorf("confidence = %d, want at least the contradiction penalty below 80", updated.Confidence)
	}

	kinds := map[types.AlertKind]bool{}
	for _, a := range w.Alerts().Snapshot() {
		kinds[a.Kind] = true
	}
	if !kinds[types.AlertContradiction] {
		t.Error("expected CONTRADICTION alert")
	}
	// The drop lands within milliseconds of creation, so the velocity is
	// far past the spike threshold.
	if !kinds[types.AlertVelocitySpike] {
		t.Error("expected VELOCITY_SPIKE alert")
	}

	persisted, err := l.ListAlerts(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(persisted) == 0 {
		t.Error("alerts should be persisted")
	}

	stats := w.Stats()
	if stats.Scans != 1 || stats.Changed != 1 || stats.AlertsRaised == 0 {
		t.Errorf("stats = %+v", stats)
	}
}

// TestRunQueueNow_FailedScanDoesNotAbortBatch tests per-node failure
// isolation.
func TestRunQueueNow_FailedScanDoesNotAbortBatch(t *testing.T) {
	searcher := &stubSearcher{err: fmt.Errorf("search backend down")}
	w, l := newTestWatcher(t, searcher)
	ctx := context.Background()

	if _, err := l.CreateNode(ctx, "node one", ledger.CreateOptions{Confidence: 40}); err != nil {
		t.Fatal(err)
	}
	if _, err := l.CreateNode(ctx, "node two", ledger.CreateOptions{Confidence: 40}); err != nil {
		t.Fatal(err)
	}

	outcomes, err := w.RunQueueNow(ctx, types.QueueWarm)
	if err != nil {
		t.Fatalf("batch must not fail when individual scans fail: %v", err)
	}
	if len(outcomes) != 2 {
		t.Fatalf("outcomes = %d, want 2", len(outcomes))
	}
	for _, o := range outcomes {
		if o.Err == nil {
			t.Error("expected per-node scan error")
		}
	}
	if w.Stats().Failures != 2 {
		t.Errorf("failures = %d, want 2", w.Stats().Failures)
	}
}

// TestRunQueueNow_SkipsTerminalStates tests that a node in a terminal
// state (here REJECTED) is never rescanned.
func TestRunQueueNow_SkipsTerminalStates(t *testing.T) {
	searcher := &stubSearcher{}
	w, l := newTestWatcher(t, searcher)
	ctx := context.Background()

	node, err := l.CreateNode(ctx, "to be deprecated", ledger.CreateOptions{Confidence: 40})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := l.TransitionState(ctx, node.ID, types.StateRejected, ledger.TransitionOptions{Trigger: "test"}); err != nil {
		t.Fatal(err)
	}

	outcomes, err := w.RunQueueNow(ctx, types.QueueWarm)
	if err != nil {
		t.Fatal(err)
	}
	if len(outcomes) != 0 {
		t.Errorf("outcomes = %d, want 0 for terminal-state nodes", len(outcomes))
	}
}

// TestDeriveAlerts_ConfidenceDrop tests the 30-point absolute drop rule.
func TestDeriveAlerts_ConfidenceDrop(t *testing.T) {
	w, _ := newTestWatcher(t, &stubSearcher{})

	node := &types.KnowledgeNode{ID: "n1", Confidence: 40, Velocity: 0.001}
	alerts := w.deriveAlerts(node, 75, 0)

	if len(alerts) != 1 || alerts[0].Kind != types.AlertConfidenceDrop {
		t.Fatalf("alerts = %+v, want one CONFIDENCE_DROP", alerts)
	}
	if alerts[0].Severity != types.SeverityHigh {
		t.Errorf("severity = %s, want HIGH", alerts[0].Severity)
	}

	// A 30-point drop is the boundary: not an alert.
	if got := w.deriveAlerts(&types.KnowledgeNode{ID: "n1", Confidence: 45}, 75, 0); len(got) != 0 {
		t.Errorf("30-point drop should not alert, got %+v", got)
	}
}

// TestDeriveAlerts_SlowDriftIsQuiet tests the scenario where an hour-long
// 30-point slide stays below every alert threshold.
func TestDeriveAlerts_SlowDriftIsQuiet(t *testing.T) {
	w, _ := newTestWatcher(t, &stubSearcher{})

	// 80 -> 50 over one hour: |v| = 30/3_600_000 ms.
	v := types.ComputeVelocity(80, 50, 3_600_000)
	node := &types.KnowledgeNode{ID: "n1", Confidence: 50, Velocity: v}

	if alerts := w.deriveAlerts(node, 80, 0); len(alerts) != 0 {
		t.Errorf("slow drift should not alert, got %+v", alerts)
	}
	if q := types.QueueForVelocity(v); q == types.QueueHot {
		t.Errorf("slow drift should not be HOT, got %s", q)
	}
}

// TestStartStop_Lifecycle tests the daemon lifecycle guards.
func TestStartStop_Lifecycle(t *testing.T) {
	w, _ := newTestWatcher(t, &stubSearcher{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := w.Start(ctx); err == nil {
		t.Error("second Start should fail while running")
	}
	w.Stop()
	w.Stop() // idempotent

	if err := w.Start(ctx); err != nil {
		t.Errorf("restart after Stop failed: %v", err)
	}
	w.Stop()
	time.Sleep(10 * time.Millisecond)
}
