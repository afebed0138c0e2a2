// Package estimator implements the per-frame Fourier-shift estimator:
// a two-parameter nonlinear least-squares fit, solved per axis with a
// derivative-free simplex method, recovering an amplitude-attenuation
// coefficient and a phase gradient relative to a reference frame.
package estimator

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/optimize"
)

// Config bounds the per-axis solver.
type Config struct {
	Tolerance    float64   // default 1e-6
	MaxIter      int       // default 1000
	InitialPoint [2]float64 // default (1, 0)
}

// DefaultConfig returns the reference solver parameters.
func DefaultConfig() Config {
	return Config{Tolerance: 1e-6, MaxIter: 1000, InitialPoint: [2]float64{1, 0}}
}

// Result is the per-frame 5-tuple produced by one estimation.
type Result struct {
	A, Gx, Gy, Rx, Ry float64
}

// Estimate fits refFx/curFx (x-axis) and refFy/curFy (y-axis)
// independently and combines them: amplitude and Rx come from the
// x-axis fit, Gy and Ry from the y-axis fit, both gradients scaled by
// their axis's reverse flag.
func Estimate(refFx, curFx, refFy, curFy []complex128, cfg Config, reverseX, reverseY float64) Result {
	aX, v1X, rssX := fitAxis(refFx, curFx, cfg)
	_, v1Y, rssY := fitAxis(refFy, curFy, cfg)

	return Result{
		A:  aX,
		Gx: reverseX * v1X,
		Gy: reverseY * v1Y,
		Rx: rssX,
		Ry: rssY,
	}
}

// fitAxis solves min_{v0,v1} Σ|y_k − v0·x_k·exp(v1·β_k)|² (β_k is
// already imaginary, so exp is a unit-modulus rotation) and returns
// (v0, v1, RSS-at-optimum).
func fitAxis(ref, cur []complex128, cfg Config) (a, v1 float64, rss float64) {
	b := beta(len(ref))

	objective := func(v []float64) float64 {
		return rssAt(ref, cur, b, v[0], v[1])
	}

	init := []float64{cfg.InitialPoint[0], cfg.InitialPoint[1]}
	problem := optimize.Problem{Func: objective}
	settings := &optimize.Settings{
		MajorIterations: cfg.MaxIter,
		FunctionConverge: &optimize.FunctionConverge{
			Absolute:   cfg.Tolerance,
			Iterations: 50,
		},
	}

	result, err := optimize.Minimize(problem, init, settings, &optimize.NelderMead{})
	if err != nil || result == nil {
		// SolverNonConvergence and similar solver faults: accept the
		// initial point rather than treat this as fatal.
		return init[0], init[1], objective(init)
	}
	// An exhausted iteration cap is not an error: accept
	// the last iterate regardless of result.Status.
	return result.X[0], result.X[1], result.F
}

// rssAt evaluates the complex residual-sum-of-squares at (v0, v1).
func rssAt(ref, cur, b []complex128, v0, v1 float64) float64 {
	var sum float64
	for k := range ref {
		shift := cmplx.Exp(complex(v1, 0) * b[k])
		resid := cur[k] - complex(v0, 0)*ref[k]*shift
		sum += real(resid)*real(resid) + imag(resid)*imag(resid)
	}
	if math.IsNaN(sum) {
		return math.Inf(1)
	}
	return sum
}

// UnitFactor computes the geometric factor that converts a fitted
// gradient from Fourier-bin units to reciprocal micrometers: g_factor = N·pixel_size / (λ·focus_to_det·1e6), λ = 12.4e-4/energy.
func UnitFactor(nAxis int, pixelSize, focusToDetector, energy float64) float64 {
	lambda := 12.4e-4 / energy
	return float64(nAxis) * pixelSize / (lambda * focusToDetector * 1e6)
}
