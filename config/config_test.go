package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidateRejectsNonDivisorMosaic(t *testing.T) {
	cfg := Default()
	cfg.Rows, cfg.Cols = 4, 6
	cfg.MosaicX, cfg.MosaicY = 1, 3 // 4 % 3 != 0

	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected ConfigInvalid for non-dividing mosaic shape")
	}
}

func TestValidateAcceptsDividingMosaic(t *testing.T) {
	cfg := Default()
	cfg.Rows, cfg.Cols = 4, 6
	cfg.MosaicX, cfg.MosaicY = 2, 2

	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejectsBadPad(t *testing.T) {
	cfg := Default()
	cfg.Rows, cfg.Cols = 2, 2
	cfg.MosaicX, cfg.MosaicY = 1, 1
	cfg.Pad = 2

	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected ConfigInvalid for pad=2")
	}
}

func TestLoadJSONOverwritesOnlyPresentFields(t *testing.T) {
	cfg := Default()
	cfg.Rows, cfg.Cols = 3, 3
	cfg.MosaicX, cfg.MosaicY = 1, 1

	path := filepath.Join(t.TempDir(), "run.json")
	if err := os.WriteFile(path, []byte(`{"swap":true,"pad":3}`), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}

	if err := LoadJSON(&cfg, path); err != nil {
		t.Fatalf("LoadJSON returned error: %v", err)
	}
	if !cfg.Swap || cfg.Pad != 3 {
		t.Fatalf("expected overridden fields, got %+v", cfg)
	}
	if cfg.Rows != 3 || cfg.Cols != 3 {
		t.Fatalf("expected untouched fields preserved, got %+v", cfg)
	}
}
