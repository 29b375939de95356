// Copyright (C) 2025 Yggdrasil Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package watcher runs the proactive rescan daemon. Three timers, one per
// priority queue, pull due nodes in batches, rescan them against the
// unverified-search collaborator, and raise alerts when a node's confidence
// moves violently.
//
// A single failed scan is logged and surfaced in the batch result; it never
// aborts the batch.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yggdrasillabs/yggdrasil/pkg/types"
	"github.com/yggdrasillabs/yggdrasil/services/disinfo"
	"github.com/yggdrasillabs/yggdrasil/services/ledger"
)

// Batch limits.
const (
	batchSize           = 50
	maxConcurrentChecks = 10
)

// Store is the slice of the ledger the watcher needs.
type Store interface {
	DueForScan(ctx context.Context, queue types.PriorityQueue, now time.Time, limit int) ([]types.KnowledgeNode, error)
	UpdateScanStatus(ctx context.Context, id string, update ledger.ScanUpdate) (*types.KnowledgeNode, error)
	SaveAlert(ctx context.Context, a types.Alert) error
}

// Config holds the watcher's timer intervals. Zero values take the queue
// defaults (HOT hourly, WARM daily, COLD weekly).
type Config struct {
	HotInterval  time.Duration
	WarmInterval time.Duration
	ColdInterval time.Duration
}

// Stats is a point-in-time snapshot of the daemon's counters.
type Stats struct {
	Scans        uint64 `json:"scans"`
	Changed      uint64 `json:"changed"`
	AlertsRaised uint64 `json:"alertsRaised"`
	Failures     uint64 `json:"failures"`
	Batches      uint64 `json:"batches"`
}

// Watcher is the rescan daemon.
//
// # Thread Safety
//
// All public methods are safe for concurrent use. Counters are updated with
// atomic increments; the alert ring buffer carries its own mutex.
type Watcher struct {
	ledger   Store
	searcher UnverifiedSearcher
	filter   *disinfo.Filter
	alerts   *AlertBuffer
	config   Config
	clock    func() time.Time

	scans        atomic.Uint64
	changed      atomic.Uint64
	alertsRaised atomic.Uint64
	failures     atomic.Uint64
	batches      atomic.Uint64

	mu      sync.Mutex
	running bool
	done    chan struct{}
}

// New creates a watcher over the given collaborators.
func New(store Store, searcher UnverifiedSearcher, filter *disinfo.Filter, cfg Config) *Watcher {
	if cfg.HotInterval == 0 {
		cfg.HotInterval = time.Duration(types.QueueInterval(types.QueueHot)) * time.Millisecond
	}
	if cfg.WarmInterval == 0 {
		cfg.WarmInterval = time.Duration(types.QueueInterval(types.QueueWarm)) * time.Millisecond
	}
	if cfg.ColdInterval == 0 {
		cfg.ColdInterval = time.Duration(types.QueueInterval(types.QueueCold)) * time.Millisecond
	}
	return &Watcher{
		ledger:   store,
		searcher: searcher,
		filter:   filter,
		alerts:   NewAlertBuffer(),
		config:   cfg,
		clock:    time.Now,
		done:     make(chan struct{}),
	}
}

// Alerts exposes the daemon's alert ring buffer for read-only snapshots.
func (w *Watcher) Alerts() *AlertBuffer { return w.alerts }

// Stats returns a consistent snapshot of the daemon counters.
func (w *Watcher) Stats() Stats {
	return Stats{
		Scans:        w.scans.Load(),
		Changed:      w.changed.Load(),
		AlertsRaised: w.alertsRaised.Load(),
		Failures:     w.failures.Load(),
		Batches:      w.batches.Load(),
	}
}

// Start launches the three queue timers. Returns an error if the daemon is
// already running.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher is already running")
	}
	w.running = true
	w.done = make(chan struct{})
	w.mu.Unlock()

	slog.Info("watcher daemon starting",
		"hot_interval", w.config.HotInterval.String(),
		"warm_interval", w.config.WarmInterval.String(),
		"cold_interval", w.config.ColdInterval.String(),
	)

	go w.runQueue(ctx, types.QueueHot, w.config.HotInterval)
	go w.runQueue(ctx, types.QueueWarm, w.config.WarmInterval)
	go w.runQueue(ctx, types.QueueCold, w.config.ColdInterval)
	return nil
}

// Stop signals all queue timers to exit. Safe to call multiple times.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	slog.Info("watcher daemon stopping")
	close(w.done)
	w.running = false
}

func (w *Watcher) runQueue(ctx context.Context, queue types.PriorityQueue, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("watcher queue stopped (context cancelled)", "queue", queue)
			return
		case <-w.done:
			slog.Info("watcher queue stopped", "queue", queue)
			return
		case <-ticker.C:
			if _, err := w.RunQueueNow(ctx, queue); err != nil {
				slog.Error("watcher batch failed", "queue", queue, "error", err)
			}
		}
	}
}

// RunQueueNow performs one batch for the given queue immediately: fetch due
// nodes, rescan them in bounded windows, and update statistics.
func (w *Watcher) RunQueueNow(ctx context.Context, queue types.PriorityQueue) ([]ScanOutcome, error) {
	nodes, err := w.ledger.DueForScan(ctx, queue, w.clock(), batchSize)
	if err != nil {
		return nil, fmt.Errorf("fetch due nodes for %s: %w", queue, err)
	}
	w.batches.Add(1)
	if len(nodes) == 0 {
		slog.Debug("watcher batch empty", "queue", queue)
		return nil, nil
	}

	slog.Info("watcher batch starting", "queue", queue, "nodes", len(nodes))

	outcomes := make([]ScanOutcome, len(nodes))
	sem := make(chan struct{}, maxConcurrentChecks)
	var wg sync.WaitGroup

	for i, node := range nodes {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, node types.KnowledgeNode) {
			defer wg.Done()
			defer func() { <-sem }()
			outcomes[i] = w.scanNode(ctx, node)
		}(i, node)
	}
	wg.Wait()

	for _, outcome := range outcomes {
		w.scans.Add(1)
		if outcome.Err != nil {
			w.failures.Add(1)
			slog.Warn("node scan failed", "node_id", outcome.NodeID, "error", outcome.Err)
			continue
		}
		if outcome.Changed {
			w.changed.Add(1)
		}
		w.alertsRaised.Add(uint64(len(outcome.Alerts)))
	}

	return outcomes, nil
}
