// Package preprocess applies bad-pixel masking and an ROI crop to a
// raw frame, then reduces it to the row/column projections and their
// centered inverse DFTs that the estimator fits against.
package preprocess

import (
	"github.com/quantphase/dpcrecon/frame"
	"github.com/quantphase/dpcrecon/internal/fftutil"
)

// Result holds a preprocessed frame's projections and their centered
// inverse DFTs. Fx has length Width (column sums); Fy has length
// Height (row sums), both post-crop.
type Result struct {
	Width, Height int
	XLine, YLine  []float64
	Fx, Fy        []complex128
}

// Process masks bad pixels, crops to roi (if non-nil), and computes
// projections and their centered inverse DFTs.
func Process(f *frame.Frame, roi *frame.ROI, badPixels []frame.BadPixel) Result {
	masked := applyBadPixels(f, badPixels)
	cropped := crop(masked, roi)

	xline := columnSums(cropped)
	yline := rowSums(cropped)

	return Result{
		Width:  cropped.Width,
		Height: cropped.Height,
		XLine:  xline,
		YLine:  yline,
		Fx:     centeredInverseDFT(xline),
		Fy:     centeredInverseDFT(yline),
	}
}

// applyBadPixels returns a copy of f with every listed coordinate
// forced to zero, leaving f itself untouched. With an empty list it
// returns f itself.
func applyBadPixels(f *frame.Frame, bad []frame.BadPixel) *frame.Frame {
	if len(bad) == 0 {
		return f
	}
	out := frame.NewFrame(f.Width, f.Height)
	copy(out.Pix, f.Pix)
	for _, p := range bad {
		if p.X >= 0 && p.X < out.Width && p.Y >= 0 && p.Y < out.Height {
			out.Set(p.X, p.Y, 0)
		}
	}
	return out
}

// crop returns the sub-frame covering roi, or f unchanged if roi is nil.
func crop(f *frame.Frame, roi *frame.ROI) *frame.Frame {
	if roi == nil {
		return f
	}
	w, h := roi.Width(), roi.Height()
	out := frame.NewFrame(w, h)
	for y := 0; y < h; y++ {
		srcRow := (roi.Y1 + y) * f.Width
		copy(out.Pix[y*w:(y+1)*w], f.Pix[srcRow+roi.X1:srcRow+roi.X1+w])
	}
	return out
}

// columnSums sums over rows, producing a length-Width projection.
func columnSums(f *frame.Frame) []float64 {
	out := make([]float64, f.Width)
	for y := 0; y < f.Height; y++ {
		row := f.Pix[y*f.Width : (y+1)*f.Width]
		for x, v := range row {
			out[x] += float64(v)
		}
	}
	return out
}

// rowSums sums over columns, producing a length-Height projection.
func rowSums(f *frame.Frame) []float64 {
	out := make([]float64, f.Height)
	for y := 0; y < f.Height; y++ {
		row := f.Pix[y*f.Width : (y+1)*f.Width]
		var sum float64
		for _, v := range row {
			sum += float64(v)
		}
		out[y] = sum
	}
	return out
}

// centeredInverseDFT computes fftshift(ifft(line)).
func centeredInverseDFT(line []float64) []complex128 {
	cx := make([]complex128, len(line))
	for i, v := range line {
		cx[i] = complex(v, 0)
	}
	return fftutil.Shift(fftutil.IFFT(cx))
}
