package frame

import (
	"context"
	"fmt"
	"image"
	"os"
	"time"

	"github.com/pkg/errors"
	_ "golang.org/x/image/tiff"
)

// pollInterval is how often a hanging FileLoader re-checks for a frame
// file that has not yet appeared.
const pollInterval = 100 * time.Millisecond

// FileLoader resolves a frame coordinate to a path via a sprintf-style
// format string applied to a linear frame index, then decodes it as a
// single-frame TIFF.
type FileLoader struct {
	// PathFormat is used as fmt.Sprintf(PathFormat, index).
	PathFormat string
	// Index maps a Coord to the linear frame index used in PathFormat.
	// Callers typically supply row*cols+col or a scan-specific mapping.
	Index func(Coord) int
	// Hang, when true, polls every 100ms for the file to appear instead
	// of failing immediately with ErrNotFound.
	Hang bool
	// MaxWait bounds how long Hang polling will run before giving up.
	// Zero means no bound (poll until ctx is cancelled).
	MaxWait time.Duration
}

// Load implements Loader.
func (l *FileLoader) Load(ctx context.Context, coord Coord) (*Frame, error) {
	path := fmt.Sprintf(l.PathFormat, l.Index(coord))

	if !l.Hang {
		return decodeTIFFFile(path)
	}

	deadline := time.Time{}
	if l.MaxWait > 0 {
		deadline = time.Now().Add(l.MaxWait)
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		if _, err := os.Stat(path); err == nil {
			return decodeTIFFFile(path)
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return nil, ErrNotFound
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func decodeTIFFFile(path string) (*Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrapf(err, "fileloader: open %s", path)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "fileloader: decode %s", path)
	}
	return frameFromImage(img), nil
}

// frameFromImage converts a decoded grayscale image into a Frame,
// taking the first (red/gray) channel as the detector count.
func frameFromImage(img image.Image) *Frame {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := NewFrame(w, h)
	switch src := img.(type) {
	case *image.Gray16:
		for y := 0; y < h; y++ {
			row := src.Pix[y*src.Stride : y*src.Stride+w*2]
			for x := 0; x < w; x++ {
				v := uint16(row[x*2])<<8 | uint16(row[x*2+1])
				out.Set(x, y, uint32(v))
			}
		}
	case *image.Gray:
		for y := 0; y < h; y++ {
			row := src.Pix[y*src.Stride : y*src.Stride+w]
			for x := 0; x < w; x++ {
				out.Set(x, y, uint32(row[x]))
			}
		}
	default:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				r, _, _, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
				out.Set(x, y, r)
			}
		}
	}
	return out
}
