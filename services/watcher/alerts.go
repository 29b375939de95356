// Copyright (C) 2025 Yggdrasil Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package watcher

import (
	"sync"

	"github.com/yggdrasillabs/yggdrasil/pkg/types"
)

// alertBufferSize bounds the in-process alert history.
const alertBufferSize = 1000

// AlertBuffer is a mutex-protected ring of the most recent alerts. The
// watcher owns the buffer; everyone else reads snapshots.
type AlertBuffer struct {
	mu     sync.Mutex
	alerts []types.Alert
}

// NewAlertBuffer returns an empty buffer.
func NewAlertBuffer() *AlertBuffer {
	return &AlertBuffer{}
}

// Add appends an alert, evicting the oldest entry once the buffer is full.
func (b *AlertBuffer) Add(alert types.Alert) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.alerts = append(b.alerts, alert)
	if len(b.alerts) > alertBufferSize {
		b.alerts = b.alerts[len(b.alerts)-alertBufferSize:]
	}
}

// Snapshot returns a copy of the buffered alerts, oldest first.
func (b *AlertBuffer) Snapshot() []types.Alert {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]types.Alert, len(b.alerts))
	copy(out, b.alerts)
	return out
}

// Len returns the number of buffered alerts.
func (b *AlertBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.alerts)
}
