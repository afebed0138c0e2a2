// Package integrator implements the Fourier-domain Poisson solver that
// turns a differential-phase gradient field into a phase image.
package integrator

import (
	"math"

	"github.com/quantphase/dpcrecon/internal/fftutil"
)

// Integrate solves for the phase grid matching gx, gy (rows x cols,
// reciprocal micrometers) given scan steps dx, dy (micrometers), a
// zero-pad factor pad ∈ {1, 3}, and anisotropic gradient weight w.
// The result has the same shape as gx/gy and is purely real by
// construction. With pad 1 it has mean zero; with pad 3 the zero mean
// holds over the padded grid, and the returned central block need not
// have mean zero.
func Integrate(rows, cols int, gx, gy []float64, dx, dy float64, pad int, weight float64) []float64 {
	prows, pcols := pad*rows, pad*cols
	rowOff, colOff := (pad/2)*rows, (pad/2)*cols

	Gx := make([]complex128, prows*pcols)
	Gy := make([]complex128, prows*pcols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			i := (rowOff+r)*pcols + (colOff + c)
			Gx[i] = complex(gx[r*cols+c], 0)
			Gy[i] = complex(gy[r*cols+c], 0)
		}
	}

	Tx := fftutil.Shift2(prows, pcols, fftutil.FFT2(prows, pcols, Gx))
	Ty := fftutil.Shift2(prows, pcols, fftutil.FFT2(prows, pcols, Gy))

	kx := angularFrequencies(pcols, dx)
	ky := angularFrequencies(prows, dy)

	C := make([]complex128, prows*pcols)
	for n := 0; n < prows; n++ {
		kyn := ky[n]
		for m := 0; m < pcols; m++ {
			i := n*pcols + m
			kxm := kx[m]
			denom := kxm*kxm + weight*kyn*kyn
			if denom == 0 {
				continue // C[i] stays zero: the DC bin is pinned
			}
			numer := complex(kxm, 0)*Tx[i] + complex(weight*kyn, 0)*Ty[i]
			C[i] = complex(0, -1) * numer / complex(denom, 0)
		}
	}

	phiPad := fftutil.IFFT2(prows, pcols, fftutil.Unshift2(prows, pcols, C))

	out := make([]float64, rows*cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			v := phiPad[(rowOff+r)*pcols+(colOff+c)]
			out[r*cols+c] = -real(v)
		}
	}
	return out
}

// angularFrequencies builds the centered angular-frequency grid for an
// axis of length n and spacing d, with the zero frequency at index n/2
// (integer division), where fftutil.Shift places it.
func angularFrequencies(n int, d float64) []float64 {
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = 2 * math.Pi * (float64(i+1) - float64(n/2+1)) / (float64(n) * d)
	}
	return out
}
