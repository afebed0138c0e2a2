package aggregator

import (
	"sync"
	"testing"
)

func TestSetCellAndSnapshot(t *testing.T) {
	agg := New(2, 3)
	agg.SetCell(1, 2, StatusOK, 1.0, 0.01, 0.02, 1e-6, 2e-6)

	snap := agg.Snapshot(false)
	i := 1*3 + 2
	if snap.A[i] != 1.0 || snap.Gx[i] != 0.01 || snap.Gy[i] != 0.02 {
		t.Fatalf("unexpected snapshot values at %d: %+v", i, snap)
	}
	if snap.Status[i] != StatusOK {
		t.Fatalf("expected StatusOK, got %v", snap.Status[i])
	}
	if snap.Phi != nil {
		t.Fatalf("expected nil phase grid when includePhase=false")
	}
}

func TestSnapshotIsDefensiveCopy(t *testing.T) {
	agg := New(1, 1)
	agg.SetCell(0, 0, StatusOK, 1, 2, 3, 4, 5)
	snap := agg.Snapshot(false)
	snap.Gx[0] = 999

	fresh := agg.Snapshot(false)
	if fresh.Gx[0] != 2 {
		t.Fatalf("mutating a snapshot must not affect the aggregator, got %v", fresh.Gx[0])
	}
}

func TestConcurrentSetCellDistinctCellsIsSafe(t *testing.T) {
	rows, cols := 8, 8
	agg := New(rows, cols)

	var wg sync.WaitGroup
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			r, c := r, c
			wg.Add(1)
			go func() {
				defer wg.Done()
				agg.SetCell(r, c, StatusOK, float64(r), float64(c), 0, 0, 0)
			}()
		}
	}
	wg.Wait()

	snap := agg.Snapshot(false)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			i := r*cols + c
			if snap.A[i] != float64(r) || snap.Gx[i] != float64(c) {
				t.Fatalf("cell (%d,%d): unexpected values a=%v gx=%v", r, c, snap.A[i], snap.Gx[i])
			}
		}
	}
}
