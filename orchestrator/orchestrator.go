// Package orchestrator drives a full scan reconstruction: it walks the
// (rows x cols) grid tile by tile, dispatches per-frame estimation
// across a worker pool, and assembles the six result grids, invoking
// the phase integrator once every cell has been written.
package orchestrator

import (
	"context"
	"log"
	"math/rand"
	"time"

	"github.com/pkg/errors"

	"github.com/quantphase/dpcrecon/aggregator"
	"github.com/quantphase/dpcrecon/config"
	"github.com/quantphase/dpcrecon/estimator"
	"github.com/quantphase/dpcrecon/frame"
	"github.com/quantphase/dpcrecon/integrator"
	"github.com/quantphase/dpcrecon/pool"
	"github.com/quantphase/dpcrecon/preprocess"
)

// liveUpdateInterval is how often the orchestrator may invoke a
// live-update callback, regardless of how fast cells complete.
const liveUpdateInterval = time.Second

// drainInterval is how often the driver drains completed results off
// the pool. It must be frequent enough that the pool's bounded result
// buffer never backs up and stalls worker goroutines.
const drainInterval = 10 * time.Millisecond

// LiveUpdateFunc previews in-progress results. phi is nil until the
// integrator has run. Implementations must not mutate the slices they
// receive, and any panic is recovered and logged rather than aborting
// the run.
type LiveUpdateFunc func(a, gx, gy, phi, rx, ry []float64)

// Run reconstructs the full grid described by cfg, loading frames
// through loader and reporting progress through live (which may be
// nil). It returns the six result grids, or an error if cfg is invalid,
// the reference frame cannot be loaded, or ctx is cancelled mid-run.
func Run(ctx context.Context, cfg config.RunConfig, loader frame.Loader, live LiveUpdateFunc) (aggregator.Snapshot, error) {
	if err := cfg.Validate(); err != nil {
		return aggregator.Snapshot{}, errors.Wrap(err, "orchestrator: invalid configuration")
	}

	refFrame, err := loader.Load(ctx, cfg.ReferenceFrame)
	if err != nil {
		return aggregator.Snapshot{}, errors.Wrapf(err, "orchestrator: load reference frame %s", cfg.ReferenceFrame)
	}
	ref := preprocess.Process(refFrame, cfg.ROI, cfg.BadPixels)

	estCfg := estimator.Config{
		Tolerance:    1e-6,
		MaxIter:      cfg.MaxIterations,
		InitialPoint: cfg.InitialPoint,
	}
	gxFactor := estimator.UnitFactor(ref.Width, cfg.PixelPitch, cfg.FocusToDetector, cfg.Energy)
	gyFactor := estimator.UnitFactor(ref.Height, cfg.PixelPitch, cfg.FocusToDetector, cfg.Energy)

	agg := aggregator.New(cfg.Rows, cfg.Cols)
	p := pool.New(cfg.Workers)
	defer p.Shutdown()

	liveTicker := time.NewTicker(liveUpdateInterval)
	defer liveTicker.Stop()
	drainTicker := time.NewTicker(drainInterval)
	defer drainTicker.Stop()

	mrows := cfg.Rows / cfg.MosaicY
	mcols := cfg.Cols / cfg.MosaicX

	d := &dispatcher{
		ctx: ctx, cfg: cfg, loader: loader, ref: ref, estCfg: estCfg,
		gxFactor: gxFactor, gyFactor: gyFactor, agg: agg, pool: p,
	}

	for ty := 0; ty < cfg.MosaicY && ctx.Err() == nil; ty++ {
		for tx := 0; tx < cfg.MosaicX && ctx.Err() == nil; tx++ {
			cells := tileCells(mrows, mcols)
			if live != nil && cfg.Random {
				rand.Shuffle(len(cells), func(a, b int) { cells[a], cells[b] = cells[b], cells[a] })
			}
			for _, c := range cells {
				d.submit(ty, tx, c.i, c.j, mrows, mcols)
			}
			if err := drainTile(ctx, p, liveTicker, drainTicker, agg, live, len(cells)); err != nil {
				return agg.Snapshot(false), errors.Wrap(err, "orchestrator: cancelled")
			}
		}
	}
	if ctx.Err() != nil {
		return agg.Snapshot(false), errors.Wrap(ctx.Err(), "orchestrator: cancelled")
	}

	if cfg.Rows > 1 && cfg.Cols > 1 {
		gx, gy := agg.Gradients()
		phi := integrator.Integrate(cfg.Rows, cfg.Cols, gx, gy, cfg.Dx, cfg.Dy, cfg.Pad, cfg.Weight)
		agg.SetPhaseGrid(phi)
		return agg.Snapshot(true), nil
	}
	return agg.Snapshot(false), nil
}

type cellIndex struct{ i, j int }

// tileCells enumerates one tile's cells in row-major order.
func tileCells(mrows, mcols int) []cellIndex {
	out := make([]cellIndex, 0, mrows*mcols)
	for i := 0; i < mrows; i++ {
		for j := 0; j < mcols; j++ {
			out = append(out, cellIndex{i, j})
		}
	}
	return out
}

// dispatcher closes over everything a per-cell estimation task needs
// that does not change across the run.
type dispatcher struct {
	ctx      context.Context
	cfg      config.RunConfig
	loader   frame.Loader
	ref      preprocess.Result
	estCfg   estimator.Config
	gxFactor float64
	gyFactor float64
	agg      *aggregator.Aggregator
	pool     *pool.Pool
}

// submit schedules the estimation task for tile (ty, tx), cell (i, j).
// The frame is always loaded at its raw acquisition coordinate; pyramid
// mode only changes where the result is stored.
func (d *dispatcher) submit(ty, tx, i, j, mrows, mcols int) {
	row := ty*mrows + i
	col := tx*mcols + j
	storeCol := pyramidStoreColumn(d.cfg.Pyramid, tx, i, j, mcols)
	taskID := row*d.cfg.Cols + col
	d.pool.Submit(taskID, func() interface{} {
		d.estimateCell(row, col, storeCol)
		return nil
	})
}

// pyramidStoreColumn returns the column a cell's result is stored at.
// In pyramid mode, odd rows within a tile were scanned back to front,
// so their results are stored mirrored to undo the serpentine path.
func pyramidStoreColumn(pyramid bool, tx, i, j, mcols int) int {
	if pyramid && i%2 == 1 {
		return tx*mcols + (mcols - j - 1)
	}
	return tx*mcols + j
}

// estimateCell loads and estimates the frame at (row, col) and writes
// the result to (row, storeCol).
func (d *dispatcher) estimateCell(row, col, storeCol int) {
	f, err := d.loader.Load(d.ctx, frame.Coord{Row: row, Col: col})
	if err != nil {
		// FrameUnavailable and FrameDecodeFailed share a policy: zero
		// the cell and move on.
		d.agg.SetCell(row, storeCol, aggregator.StatusMissing, 0, 0, 0, 0, 0)
		return
	}

	cur := preprocess.Process(f, d.cfg.ROI, d.cfg.BadPixels)
	if cur.Width != d.ref.Width || cur.Height != d.ref.Height {
		const sentinel = 1e-5
		d.agg.SetCell(row, storeCol, aggregator.StatusShapeMismatch, sentinel, sentinel, sentinel, sentinel, sentinel)
		return
	}

	result := estimator.Estimate(d.ref.Fx, cur.Fx, d.ref.Fy, cur.Fy, d.estCfg, d.cfg.ReverseX, d.cfg.ReverseY)

	rawGx, rawGy := result.Gx, result.Gy
	if d.cfg.Swap {
		rawGx, rawGy = rawGy, rawGx
	}
	gx := rawGx * d.gxFactor
	gy := rawGy * d.gyFactor

	d.agg.SetCell(row, storeCol, aggregator.StatusOK, result.A, gx, gy, result.Rx, result.Ry)
}

// drainTile blocks until `want` results have been collected off the
// pool, periodically invoking the live-update callback and draining
// the pool's result buffer so producer goroutines never stall. It
// returns early with ctx.Err() if ctx is cancelled.
func drainTile(ctx context.Context, p *pool.Pool, liveTicker, drainTicker *time.Ticker, agg *aggregator.Aggregator, live LiveUpdateFunc, want int) error {
	collected := 0
	for collected < want {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-liveTicker.C:
			if live != nil {
				invokeLive(live, agg)
			}
		case <-drainTicker.C:
			collected += len(p.Poll())
		}
	}
	return nil
}

// invokeLive calls live with a defensive snapshot, recovering any
// panic so a faulty callback cannot interrupt the run.
func invokeLive(live LiveUpdateFunc, agg *aggregator.Aggregator) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("orchestrator: live-update callback panicked: %v", r)
		}
	}()
	snap := agg.Snapshot(false)
	live(snap.A, snap.Gx, snap.Gy, snap.Phi, snap.Rx, snap.Ry)
}
