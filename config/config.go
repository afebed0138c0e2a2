// Package config defines the immutable run configuration for one
// reconstruction run and its validation policy.
package config

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"github.com/quantphase/dpcrecon/frame"
)

// RunConfig enumerates everything the reconstruction core needs for
// one run. It is constructed once, validated, and never mutated
// afterward.
type RunConfig struct {
	Rows            int     `json:"rows"`
	Cols            int     `json:"cols"`
	MosaicX         int     `json:"mosaic_x"`
	MosaicY         int     `json:"mosaic_y"`
	PixelPitch      float64 `json:"pixel_pitch"`
	FocusToDetector float64 `json:"focus_to_detector"`
	Dx              float64 `json:"dx"`
	Dy              float64 `json:"dy"`
	Energy          float64 `json:"energy"`

	ROI       *frame.ROI       `json:"roi,omitempty"`
	BadPixels []frame.BadPixel `json:"bad_pixels,omitempty"`

	Solver        string     `json:"solver"`
	MaxIterations int        `json:"max_iterations"`
	InitialPoint  [2]float64 `json:"initial_point"`

	ReferenceFrame frame.Coord `json:"reference_frame"`

	ReverseX float64 `json:"reverse_x"`
	ReverseY float64 `json:"reverse_y"`
	Swap     bool    `json:"swap"`
	Pyramid  bool    `json:"pyramid"`
	Random   bool    `json:"random"`

	Workers int     `json:"processes"`
	Pad     int     `json:"pad"`
	Weight  float64 `json:"weight"`
}

// Default returns a RunConfig with the reference solver defaults:
// Nelder-Mead, 1000 iterations, initial point (1, 0), no padding, unit
// weight, one worker.
func Default() RunConfig {
	return RunConfig{
		Solver:        "nelder-mead",
		MaxIterations: 1000,
		InitialPoint:  [2]float64{1, 0},
		ReverseX:      1,
		ReverseY:      1,
		Workers:       1,
		Pad:           1,
		Weight:        1,
	}
}

// LoadJSON decodes path into cfg, overwriting any field present in the
// file and leaving the rest untouched.
func LoadJSON(cfg *RunConfig, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "config: open %s", path)
	}
	defer f.Close()

	return errors.Wrapf(json.NewDecoder(f).Decode(cfg), "config: decode %s", path)
}

// Validate enforces the ConfigInvalid policy: mosaic shape
// must divide grid shape, ROI (if set) must be well-formed, pad must
// be 1 or 3, and worker count must be positive. It does not check that
// the reference frame coordinate lies on the grid, and neither does
// orchestrator.Run, which hands that coordinate straight to the loader.
func (c RunConfig) Validate() error {
	if c.Rows <= 0 || c.Cols <= 0 {
		return errors.New("config: grid shape must be positive")
	}
	if c.MosaicX <= 0 || c.MosaicY <= 0 {
		return errors.New("config: mosaic shape must be positive")
	}
	if c.Rows%c.MosaicY != 0 || c.Cols%c.MosaicX != 0 {
		return errors.Errorf("config: mosaic shape (%d,%d) does not divide grid shape (%d,%d)",
			c.MosaicX, c.MosaicY, c.Cols, c.Rows)
	}
	if c.ROI != nil && !c.ROI.Valid() {
		return errors.Errorf("config: invalid ROI %+v", *c.ROI)
	}
	if c.Pad != 1 && c.Pad != 3 {
		return errors.Errorf("config: pad must be 1 or 3, got %d", c.Pad)
	}
	if c.Weight <= 0 {
		return errors.New("config: weight must be positive")
	}
	if c.Workers <= 0 {
		return errors.New("config: worker count must be positive")
	}
	return nil
}
