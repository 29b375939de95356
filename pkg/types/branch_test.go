// Copyright (C) 2025 Yggdrasil Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package types

import "testing"

// TestBranchForConfidence_Partition tests the hard partition: 0, 49 HUGIN;
// 50, 99 VOLVA; 100 MIMIR; outside [0,100] fails.
func TestBranchForConfidence_Partition(t *testing.T) {
	tests := []struct {
		confidence int
		want       Branch
	}{
		{0, BranchHugin},
		{49, BranchHugin},
		{50, BranchVolva},
		{99, BranchVolva},
		{100, BranchMimir},
	}
	for _, tt := range tests {
		got, err := BranchForConfidence(tt.confidence)
		if err != nil {
			t.Fatalf("BranchForConfidence(%d) failed: %v", tt.confidence, err)
		}
		if got != tt.want {
			t.Errorf("BranchForConfidence(%d) = %s, want %s", tt.confidence, got, tt.want)
		}
		if !got.Allows(tt.confidence) {
			t.Errorf("%s.Allows(%d) = false, want true", got, tt.confidence)
		}
	}

	for _, invalid := range []int{-1, 101, 500} {
		if _, err := BranchForConfidence(invalid); err == nil {
			t.Errorf("BranchForConfidence(%d) should fail", invalid)
		}
	}
}

// TestBranch_CellsAreDisjoint tests that no confidence belongs to two
// branches.
func TestBranch_CellsAreDisjoint(t *testing.T) {
	for c := 0; c <= 100; c++ {
		owners := 0
		for _, b := range []Branch{BranchMimir, BranchVolva, BranchHugin} {
			if b.Allows(c) {
				owners++
			}
		}
		if owners != 1 {
			t.Errorf("confidence %d has %d owning branches, want exactly 1", c, owners)
		}
	}
}

// TestComputeVelocity_SignAndScale tests the points-per-millisecond math.
func TestComputeVelocity_SignAndScale(t *testing.T) {
	if v := ComputeVelocity(80, 20, 1000); v != -0.06 {
		t.Errorf("80->20 over 1s: v = %v, want -0.06", v)
	}
	if v := ComputeVelocity(80, 50, 3_600_000); v > 0 || v < -0.00001 {
		t.Errorf("80->50 over 1h: v = %v, want tiny negative", v)
	}
	if v := ComputeVelocity(50, 80, 0); v != 0 {
		t.Errorf("zero elapsed must not manufacture movement: v = %v", v)
	}
	if v := ComputeVelocity(50, 80, -5); v != 0 {
		t.Errorf("negative elapsed must not manufacture movement: v = %v", v)
	}
}

// TestQueueForVelocity_Determinism tests that identical velocity inputs
// always land in the same queue, and the documented thresholds hold.
func TestQueueForVelocity_Determinism(t *testing.T) {
	tests := []struct {
		velocity float64
		want     PriorityQueue
	}{
		{0.06, QueueHot},
		{-0.06, QueueHot},
		{0.05, QueueWarm},  // at the boundary: not strictly greater
		{0.03, QueueWarm},  // moving, but not hot
		{-0.03, QueueWarm},
		{0.01, QueueCold},  // stable
		{0, QueueCold},
	}
	for _, tt := range tests {
		for i := 0; i < 10; i++ {
			if got := QueueForVelocity(tt.velocity); got != tt.want {
				t.Fatalf("QueueForVelocity(%v) = %s, want %s", tt.velocity, got, tt.want)
			}
		}
	}
}

// TestTrendForVelocity_Thresholds tests the 0.02 stability band.
func TestTrendForVelocity_Thresholds(t *testing.T) {
	if tr := TrendForVelocity(0.03); tr != TrendIncreasing {
		t.Errorf("0.03 -> %s, want INCREASING", tr)
	}
	if tr := TrendForVelocity(-0.03); tr != TrendDecreasing {
		t.Errorf("-0.03 -> %s, want DECREASING", tr)
	}
	if tr := TrendForVelocity(0.02); tr != TrendStable {
		t.Errorf("0.02 -> %s, want STABLE", tr)
	}
}

// TestQueue_DemoteChain tests HOT -> WARM -> COLD -> COLD.
func TestQueue_DemoteChain(t *testing.T) {
	if q := QueueHot.Demote(); q != QueueWarm {
		t.Errorf("HOT demotes to %s, want WARM", q)
	}
	if q := QueueWarm.Demote(); q != QueueCold {
		t.Errorf("WARM demotes to %s, want COLD", q)
	}
	if q := QueueCold.Demote(); q != QueueCold {
		t.Errorf("COLD demotes to %s, want COLD", q)
	}
}

// TestQueueInterval_Values tests the rescan intervals.
func TestQueueInterval_Values(t *testing.T) {
	if got := QueueInterval(QueueHot); got != 3_600_000 {
		t.Errorf("HOT interval = %d ms, want 1h", got)
	}
	if got := QueueInterval(QueueWarm); got != 86_400_000 {
		t.Errorf("WARM interval = %d ms, want 24h", got)
	}
	if got := QueueInterval(QueueCold); got != 604_800_000 {
		t.Errorf("COLD interval = %d ms, want 7d", got)
	}
}
