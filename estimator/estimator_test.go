package estimator

import (
	"math"
	"math/cmplx"
	"testing"
)

func syntheticProjection(n int, seed float64) []complex128 {
	out := make([]complex128, n)
	for k := 0; k < n; k++ {
		out[k] = complex(seed+float64(k)*0.37, seed*0.5-float64(k)*0.11)
	}
	return out
}

func TestEstimateSelfFitIsIdentity(t *testing.T) {
	n := 16
	ref := syntheticProjection(n, 2.0)
	cfg := DefaultConfig()

	res := Estimate(ref, ref, ref, ref, cfg, 1, 1)

	if math.Abs(res.A-1) > 1e-3 {
		t.Fatalf("expected a ≈ 1, got %v", res.A)
	}
	if math.Abs(res.Gx) > 1e-3 {
		t.Fatalf("expected gx ≈ 0, got %v", res.Gx)
	}
	if math.Abs(res.Gy) > 1e-3 {
		t.Fatalf("expected gy ≈ 0, got %v", res.Gy)
	}
	if res.Rx > 1e-4 || res.Ry > 1e-4 {
		t.Fatalf("expected near-zero residuals, got rx=%v ry=%v", res.Rx, res.Ry)
	}
}

func TestEstimateRecoversInjectedShift(t *testing.T) {
	n := 16
	ref := syntheticProjection(n, 3.0)
	shift := 0.6
	b := beta(n)
	cur := make([]complex128, n)
	for k := range ref {
		cur[k] = ref[k] * cmplx.Exp(complex(shift, 0)*b[k])
	}

	cfg := DefaultConfig()
	res := Estimate(ref, cur, ref, cur, cfg, 1, 1)

	if math.Abs(res.Gx-shift) > 5e-3 {
		t.Fatalf("expected gx ≈ %v, got %v", shift, res.Gx)
	}
	if math.Abs(res.Gy-shift) > 5e-3 {
		t.Fatalf("expected gy ≈ %v, got %v", shift, res.Gy)
	}
}

func TestEstimateReverseFlagNegatesGradient(t *testing.T) {
	n := 16
	ref := syntheticProjection(n, 1.5)
	shift := 0.3
	b := beta(n)
	cur := make([]complex128, n)
	for k := range ref {
		cur[k] = ref[k] * cmplx.Exp(complex(shift, 0)*b[k])
	}

	cfg := DefaultConfig()
	res := Estimate(ref, cur, ref, cur, cfg, -1, 1)

	if math.Abs(res.Gx+shift) > 5e-3 {
		t.Fatalf("expected gx ≈ %v with reverse_x=-1, got %v", -shift, res.Gx)
	}
}

func TestUnitFactorClosedForm(t *testing.T) {
	got := UnitFactor(256, 55e-3, 1.0, 10.0)
	lambda := 12.4e-4 / 10.0
	want := 256 * 55e-3 / (lambda * 1.0 * 1e6)
	if math.Abs(got-want) > 1e-12 {
		t.Fatalf("got %v, want %v", got, want)
	}
}
