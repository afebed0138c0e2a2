package main

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/quantphase/dpcrecon/aggregator"
)

func TestParseJSONConfigSuccess(t *testing.T) {
	path := writeTempConfig(t, `{"rows":4,"cols":4,"pixel_pitch":0.055,"data_directory":"/scans/run1","save_txt":true}`)

	var cfg Config
	if err := parseJSONConfig(&cfg, path); err != nil {
		t.Fatalf("parseJSONConfig returned error: %v", err)
	}
	if cfg.Rows != 4 || cfg.Cols != 4 {
		t.Fatalf("unexpected grid dimensions: %+v", cfg.RunConfig)
	}
	if cfg.PixelPitch != 0.055 || cfg.DataDirectory != "/scans/run1" || !cfg.SaveTxt {
		t.Fatalf("unexpected field values: %+v", cfg)
	}
}

func TestParseJSONConfigMissingFile(t *testing.T) {
	var cfg Config
	missing := filepath.Join(t.TempDir(), "missing.json")
	if err := parseJSONConfig(&cfg, missing); err == nil {
		t.Fatalf("parseJSONConfig expected error for missing file")
	}
}

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

func TestBuildLoaderSelectsFileLoaderByDefault(t *testing.T) {
	cfg := Config{DataDirectory: "/scans/run1", FileFormat: "frame_%06d.tiff"}
	loader, err := buildLoader(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := loader.(interface{ Close() error }); ok {
		t.Fatalf("file loader should not expose Close")
	}
}

func TestWriteCSVGridsHeaderAndRowCount(t *testing.T) {
	dir := t.TempDir()
	snap := aggregator.Snapshot{
		Rows: 2, Cols: 2,
		A:      []float64{1, 2, 3, 4},
		Gx:     []float64{0, 0, 0, 0},
		Gy:     []float64{0, 0, 0, 0},
		Rx:     []float64{0, 0, 0, 0},
		Ry:     []float64{0, 0, 0, 0},
		Phi:    nil,
		Status: []aggregator.Status{aggregator.StatusOK, aggregator.StatusOK, aggregator.StatusOK, aggregator.StatusOK},
	}

	if err := writeCSVGrids(dir, "out", snap); err != nil {
		t.Fatalf("writeCSVGrids returned error: %v", err)
	}

	f, err := os.Open(filepath.Join(dir, "out.csv"))
	if err != nil {
		t.Fatalf("expected output file: %v", err)
	}
	defer f.Close()

	lines := 0
	var header string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if lines == 0 {
			header = scanner.Text()
		}
		lines++
	}
	if lines != 5 {
		t.Fatalf("expected 1 header row + 4 data rows, got %d lines", lines)
	}
	if !strings.Contains(header, "amplitude") || !strings.Contains(header, "phi") {
		t.Fatalf("unexpected header: %q", header)
	}
}
