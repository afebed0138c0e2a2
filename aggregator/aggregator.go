// Package aggregator owns the per-pixel result grids written by the
// scan orchestrator and read by the phase integrator and any
// live-update sink.
package aggregator

import "sync"

// Status records why a cell holds the value it does: a sentinel float
// alone cannot distinguish a converged zero from a missing frame, so a
// companion status byte rides alongside the float grids.
type Status byte

const (
	// StatusOK marks a cell produced by a normal, converged (or
	// iteration-capped, which is not itself an error) estimation.
	StatusOK Status = iota
	// StatusMissing marks FrameUnavailable/FrameDecodeFailed.
	StatusMissing
	// StatusShapeMismatch marks FrameShapeMismatch.
	StatusShapeMismatch
)

// Aggregator holds the five per-pixel result arrays plus the final
// phase grid, all dense (rows x cols), row-major.
type Aggregator struct {
	rows, cols int

	mu      sync.RWMutex
	a       []float64
	gx, gy  []float64
	rx, ry  []float64
	phi     []float64
	status  []Status
}

// New allocates six zeroed (rows x cols) grids.
func New(rows, cols int) *Aggregator {
	n := rows * cols
	return &Aggregator{
		rows: rows, cols: cols,
		a: make([]float64, n), gx: make([]float64, n), gy: make([]float64, n),
		rx: make([]float64, n), ry: make([]float64, n), phi: make([]float64, n),
		status: make([]Status, n),
	}
}

// SetCell writes the five per-frame results at (row, col) exactly once.
// The orchestrator guarantees single-writer-per-cell, so the lock here
// only needs to publish the write to future readers, not arbitrate
// concurrent writers of the same cell.
func (a *Aggregator) SetCell(row, col int, status Status, amp, gx, gy, rx, ry float64) {
	i := row*a.cols + col
	a.mu.Lock()
	a.status[i] = status
	a.a[i] = amp
	a.gx[i] = gx
	a.gy[i] = gy
	a.rx[i] = rx
	a.ry[i] = ry
	a.mu.Unlock()
}

// SetPhaseGrid writes the integrator's output for the whole grid at
// once.
func (a *Aggregator) SetPhaseGrid(phi []float64) {
	a.mu.Lock()
	copy(a.phi, phi)
	a.mu.Unlock()
}

// Dims returns the grid shape.
func (a *Aggregator) Dims() (rows, cols int) { return a.rows, a.cols }

// Snapshot is a defensive copy of all six grids, safe to hand to a
// live-update callback across a goroutine boundary without tearing.
type Snapshot struct {
	Rows, Cols     int
	A, Gx, Gy      []float64
	Rx, Ry         []float64
	Phi            []float64 // nil until the integrator has run
	Status         []Status
}

// Snapshot copies the current grids. Phi is included only if
// includePhase is true; the orchestrator passes false while workers
// are still running, since phase has not been computed yet, so a
// live-update snapshot mid-run carries a nil phase grid.
func (a *Aggregator) Snapshot(includePhase bool) Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := Snapshot{
		Rows: a.rows, Cols: a.cols,
		A: append([]float64(nil), a.a...),
		Gx: append([]float64(nil), a.gx...),
		Gy: append([]float64(nil), a.gy...),
		Rx: append([]float64(nil), a.rx...),
		Ry: append([]float64(nil), a.ry...),
		Status: append([]Status(nil), a.status...),
	}
	if includePhase {
		out.Phi = append([]float64(nil), a.phi...)
	}
	return out
}

// Gradients returns copies of the gx/gy grids for the integrator,
// which runs only after every cell has been written.
func (a *Aggregator) Gradients() (gx, gy []float64) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]float64(nil), a.gx...), append([]float64(nil), a.gy...)
}
