// Package fftutil composes gonum's 1-D complex FFT into the centered
// 1-D and separable 2-D transforms the reconstruction core needs:
// fftshift/ifftshift and a row-then-column FFT2, built once here so
// every caller (preprocess, integrator) shares one FFT
// dependency and one shift convention.
package fftutil

import (
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
)

var plans sync.Map // int -> *fourier.CmplxFFT

func plan(n int) *fourier.CmplxFFT {
	if p, ok := plans.Load(n); ok {
		return p.(*fourier.CmplxFFT)
	}
	p := fourier.NewCmplxFFT(n)
	actual, _ := plans.LoadOrStore(n, p)
	return actual.(*fourier.CmplxFFT)
}

// FFT computes the forward (unnormalized) DFT of x.
func FFT(x []complex128) []complex128 {
	return plan(len(x)).Coefficients(nil, x)
}

// IFFT computes the inverse DFT of x, normalized by 1/N so that
// IFFT(FFT(x)) recovers x.
func IFFT(x []complex128) []complex128 {
	out := plan(len(x)).Sequence(nil, x)
	scale := complex(1/float64(len(x)), 0)
	for i := range out {
		out[i] *= scale
	}
	return out
}

// Shift rotates x so that the zero-frequency bin, originally at index
// 0, lands at index N/2 (integer division), the standard FFT-shift of
// a forward or inverse transform.
func Shift(x []complex128) []complex128 {
	n := len(x)
	out := make([]complex128, n)
	mid := n / 2
	copy(out, x[n-mid:])
	copy(out[mid:], x[:n-mid])
	return out
}

// Unshift inverts Shift.
func Unshift(x []complex128) []complex128 {
	n := len(x)
	out := make([]complex128, n)
	mid := n / 2
	copy(out, x[mid:])
	copy(out[n-mid:], x[:mid])
	return out
}

// FFT2 computes a separable 2-D forward DFT of a row-major (rows x
// cols) complex matrix: one FFT per row, then one FFT per column.
func FFT2(rows, cols int, data []complex128) []complex128 {
	return transform2(rows, cols, data, FFT)
}

// IFFT2 computes the separable 2-D inverse DFT, normalized so that
// IFFT2(FFT2(x)) recovers x.
func IFFT2(rows, cols int, data []complex128) []complex128 {
	return transform2(rows, cols, data, IFFT)
}

func transform2(rows, cols int, data []complex128, f func([]complex128) []complex128) []complex128 {
	out := make([]complex128, len(data))
	row := make([]complex128, cols)
	for r := 0; r < rows; r++ {
		copy(row, data[r*cols:(r+1)*cols])
		copy(out[r*cols:(r+1)*cols], f(row))
	}
	col := make([]complex128, rows)
	for c := 0; c < cols; c++ {
		for r := 0; r < rows; r++ {
			col[r] = out[r*cols+c]
		}
		res := f(col)
		for r := 0; r < rows; r++ {
			out[r*cols+c] = res[r]
		}
	}
	return out
}

// Shift2 applies the centered FFT-shift independently along each axis
// of a row-major (rows x cols) matrix.
func Shift2(rows, cols int, data []complex128) []complex128 {
	return shift2(rows, cols, data, Shift)
}

// Unshift2 inverts Shift2.
func Unshift2(rows, cols int, data []complex128) []complex128 {
	return shift2(rows, cols, data, Unshift)
}

func shift2(rows, cols int, data []complex128, f func([]complex128) []complex128) []complex128 {
	tmp := make([]complex128, len(data))
	row := make([]complex128, cols)
	for r := 0; r < rows; r++ {
		copy(row, data[r*cols:(r+1)*cols])
		copy(tmp[r*cols:(r+1)*cols], f(row))
	}
	out := make([]complex128, len(data))
	col := make([]complex128, rows)
	for c := 0; c < cols; c++ {
		for r := 0; r < rows; r++ {
			col[r] = tmp[r*cols+c]
		}
		res := f(col)
		for r := 0; r < rows; r++ {
			out[r*cols+c] = res[r]
		}
	}
	return out
}
