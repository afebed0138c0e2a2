package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/quantphase/dpcrecon/aggregator"
	"github.com/quantphase/dpcrecon/config"
	"github.com/quantphase/dpcrecon/frame"
	"github.com/quantphase/dpcrecon/orchestrator"
)

// VERSION is injected by buildflags.
var VERSION = "SELFBUILD"

// Config is the full CLI-level configuration: the reconstruction
// core's RunConfig plus the I/O surface (frame source, output
// destination) that the core itself has no opinion about.
type Config struct {
	config.RunConfig
	ScanRange               string `json:"scan_range"`
	EveryNthScan            int    `json:"every_nth_scan"`
	GetDataFromDatastore    bool   `json:"get_data_from_datastore"`
	FileStoreKey            string `json:"file_store_key"`
	DataDirectory           string `json:"data_directory"`
	FileFormat              string `json:"file_format"`
	ParameterFile           string `json:"parameter_file"`
	ReadParamsFromDatastore bool   `json:"read_params_from_datastore"`
	SavePath                string `json:"save_path"`
	SaveFilename            string `json:"save_filename"`
	SavePNGs                bool   `json:"save_pngs"`
	SaveTxt                 bool   `json:"save_txt"`
}

func main() {
	if VERSION == "SELFBUILD" {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	app := cli.NewApp()
	app.Name = "dpcrecon"
	app.Usage = "differential phase-contrast reconstruction"
	app.Version = VERSION
	app.Flags = []cli.Flag{
		cli.IntFlag{Name: "rows", Value: 1, Usage: "scan grid rows"},
		cli.IntFlag{Name: "cols", Value: 1, Usage: "scan grid columns"},
		cli.IntFlag{Name: "mosaic-x", Value: 1, Usage: "mosaic tiles along columns"},
		cli.IntFlag{Name: "mosaic-y", Value: 1, Usage: "mosaic tiles along rows"},
		cli.Float64Flag{Name: "pixel-pitch", Value: 55e-3, Usage: "detector pixel pitch, mm"},
		cli.Float64Flag{Name: "focus-to-detector", Value: 1.0, Usage: "focus-to-detector distance, m"},
		cli.Float64Flag{Name: "dx", Value: 1.0, Usage: "scan step along x, um"},
		cli.Float64Flag{Name: "dy", Value: 1.0, Usage: "scan step along y, um"},
		cli.Float64Flag{Name: "energy", Value: 10.0, Usage: "photon energy, keV"},
		cli.StringFlag{Name: "solver", Value: "nelder-mead", Usage: "per-axis solver"},
		cli.IntFlag{Name: "max-iterations", Value: 1000, Usage: "solver iteration cap"},
		cli.Float64Flag{Name: "reverse-x", Value: 1, Usage: "x-axis gradient sign"},
		cli.Float64Flag{Name: "reverse-y", Value: 1, Usage: "y-axis gradient sign"},
		cli.BoolFlag{Name: "swap", Usage: "exchange gx/gy before unit conversion"},
		cli.BoolFlag{Name: "pyramid", Usage: "undo a serpentine scan"},
		cli.BoolFlag{Name: "random", Usage: "shuffle cell order within a tile for the live preview"},
		cli.IntFlag{Name: "processes", Value: 1, Usage: "worker count"},
		cli.IntFlag{Name: "pad", Value: 1, Usage: "integrator zero-pad factor, 1 or 3"},
		cli.Float64Flag{Name: "weight", Value: 1.0, Usage: "anisotropic gradient weight"},
		cli.StringFlag{Name: "scan-range", Usage: "scan_range passthrough for the acquisition front-end"},
		cli.IntFlag{Name: "every-nth-scan", Value: 1, Usage: "front-end compatibility only; the scan is not subsampled"},
		cli.BoolFlag{Name: "get-data-from-datastore", Usage: "load frames from the asset-catalog registry instead of disk"},
		cli.StringFlag{Name: "file-store-key", Usage: "identifier prefix used against the asset-catalog registry"},
		cli.StringFlag{Name: "data-directory", Usage: "directory (or host:port) holding the frame source"},
		cli.StringFlag{Name: "file-format", Value: "frame_%06d.tiff", Usage: "sprintf format for file-per-frame paths, or an .h5/.hdf5 path"},
		cli.StringFlag{Name: "parameter-file", Usage: "optional scan parameter metadata file"},
		cli.BoolFlag{Name: "read-params-from-datastore", Usage: "front-end compatibility only; scan parameters are not read from the registry"},
		cli.StringFlag{Name: "save-path", Value: ".", Usage: "output directory"},
		cli.StringFlag{Name: "save-filename", Value: "dpcrecon", Usage: "output file base name"},
		cli.BoolFlag{Name: "save-pngs", Usage: "front-end compatibility only; PNG rendering is not implemented"},
		cli.BoolFlag{Name: "save-txt", Usage: "write the result grids as CSV"},
		cli.StringFlag{Name: "c", Usage: "config from json file, which will override the command from shell"},
		cli.StringFlag{Name: "log", Usage: "specify a log file to output, default goes to stderr"},
	}
	app.Action = run
	if err := app.Run(os.Args); err != nil {
		log.Fatalf("%+v", err)
	}
}

func run(c *cli.Context) error {
	cfg := Config{RunConfig: config.Default()}
	cfg.Rows = c.Int("rows")
	cfg.Cols = c.Int("cols")
	cfg.MosaicX = c.Int("mosaic-x")
	cfg.MosaicY = c.Int("mosaic-y")
	cfg.PixelPitch = c.Float64("pixel-pitch")
	cfg.FocusToDetector = c.Float64("focus-to-detector")
	cfg.Dx = c.Float64("dx")
	cfg.Dy = c.Float64("dy")
	cfg.Energy = c.Float64("energy")
	cfg.Solver = c.String("solver")
	cfg.MaxIterations = c.Int("max-iterations")
	cfg.ReverseX = c.Float64("reverse-x")
	cfg.ReverseY = c.Float64("reverse-y")
	cfg.Swap = c.Bool("swap")
	cfg.Pyramid = c.Bool("pyramid")
	cfg.Random = c.Bool("random")
	cfg.Workers = c.Int("processes")
	cfg.Pad = c.Int("pad")
	cfg.Weight = c.Float64("weight")
	cfg.ScanRange = c.String("scan-range")
	cfg.EveryNthScan = c.Int("every-nth-scan")
	cfg.GetDataFromDatastore = c.Bool("get-data-from-datastore")
	cfg.FileStoreKey = c.String("file-store-key")
	cfg.DataDirectory = c.String("data-directory")
	cfg.FileFormat = c.String("file-format")
	cfg.ParameterFile = c.String("parameter-file")
	cfg.ReadParamsFromDatastore = c.Bool("read-params-from-datastore")
	cfg.SavePath = c.String("save-path")
	cfg.SaveFilename = c.String("save-filename")
	cfg.SavePNGs = c.Bool("save-pngs")
	cfg.SaveTxt = c.Bool("save-txt")

	if path := c.String("c"); path != "" {
		if err := parseJSONConfig(&cfg, path); err != nil {
			return errors.Wrapf(err, "dpcrecon: load config file %s", path)
		}
	}

	if logPath := c.String("log"); logPath != "" {
		f, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			return errors.Wrapf(err, "dpcrecon: open log file %s", logPath)
		}
		defer f.Close()
		log.SetOutput(f)
	}

	log.Println("version:", VERSION)
	log.Println("grid:", cfg.Rows, "x", cfg.Cols, "mosaic:", cfg.MosaicX, "x", cfg.MosaicY)
	log.Println("processes:", cfg.Workers, "pad:", cfg.Pad, "weight:", cfg.Weight)
	log.Println("swap:", cfg.Swap, "pyramid:", cfg.Pyramid, "random:", cfg.Random)
	log.Println("data directory:", cfg.DataDirectory, "file format:", cfg.FileFormat)

	if cfg.Pad != 1 && cfg.Pad != 3 {
		color.Red("WARNING: pad=%d is not 1 or 3; the run will fail validation.", cfg.Pad)
	}
	if cfg.MaxIterations <= 0 {
		color.Red("WARNING: max-iterations=%d leaves the solver no room to run.", cfg.MaxIterations)
	}

	if err := cfg.RunConfig.Validate(); err != nil {
		return errors.Wrap(err, "dpcrecon: invalid configuration")
	}

	loader, err := buildLoader(cfg)
	if err != nil {
		return err
	}
	if closer, ok := loader.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("interrupt received, cancelling run")
		cancel()
	}()

	var live orchestrator.LiveUpdateFunc
	if cfg.SaveTxt {
		live = func(a, gx, gy, phi, rx, ry []float64) {
			log.Printf("live update: grid has %d cells", len(a))
		}
	}

	snap, err := orchestrator.Run(ctx, cfg.RunConfig, loader, live)
	if err != nil {
		return errors.Wrap(err, "dpcrecon: run failed")
	}

	if cfg.SaveTxt {
		if err := writeCSVGrids(cfg.SavePath, cfg.SaveFilename, snap); err != nil {
			return errors.Wrap(err, "dpcrecon: write result grids")
		}
	}
	if cfg.SavePNGs {
		log.Println("save-pngs requested but PNG rendering is not implemented; skipping")
	}

	log.Println("reconstruction complete")
	return nil
}

// buildLoader selects a frame.Loader backend from the I/O surface of
// cfg: an asset-catalog datastore, a single HDF5 stack, or
// file-per-frame, in that priority order.
func buildLoader(cfg Config) (frame.Loader, error) {
	index := func(c frame.Coord) int { return c.Row*cfg.Cols + c.Col }

	switch {
	case cfg.GetDataFromDatastore:
		l, err := frame.DialDatastoreLoader(cfg.DataDirectory, nil, func(c frame.Coord) string {
			return fmt.Sprintf("%s/%06d", cfg.FileStoreKey, index(c))
		})
		if err != nil {
			return nil, errors.Wrap(err, "dpcrecon: connect to datastore")
		}
		return l, nil
	case filepath.Ext(cfg.FileFormat) == ".h5" || filepath.Ext(cfg.FileFormat) == ".hdf5":
		l, err := frame.OpenHDF5Loader(filepath.Join(cfg.DataDirectory, cfg.FileFormat), index)
		if err != nil {
			return nil, errors.Wrap(err, "dpcrecon: open hdf5 frame source")
		}
		return l, nil
	default:
		return &frame.FileLoader{
			PathFormat: filepath.Join(cfg.DataDirectory, cfg.FileFormat),
			Index:      index,
		}, nil
	}
}

// writeCSVGrids writes the six result grids as one row per cell.
func writeCSVGrids(savePath, saveFilename string, snap aggregator.Snapshot) error {
	if err := os.MkdirAll(savePath, 0o755); err != nil {
		return errors.Wrapf(err, "dpcrecon: create save path %s", savePath)
	}
	path := filepath.Join(savePath, saveFilename+".csv")
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0666)
	if err != nil {
		return errors.Wrapf(err, "dpcrecon: open %s", path)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"row", "col", "amplitude", "gx", "gy", "rx", "ry", "phi"}); err != nil {
		return err
	}
	for row := 0; row < snap.Rows; row++ {
		for col := 0; col < snap.Cols; col++ {
			i := row*snap.Cols + col
			phi := "0"
			if snap.Phi != nil {
				phi = strconv.FormatFloat(snap.Phi[i], 'g', -1, 64)
			}
			record := []string{
				strconv.Itoa(row), strconv.Itoa(col),
				strconv.FormatFloat(snap.A[i], 'g', -1, 64),
				strconv.FormatFloat(snap.Gx[i], 'g', -1, 64),
				strconv.FormatFloat(snap.Gy[i], 'g', -1, 64),
				strconv.FormatFloat(snap.Rx[i], 'g', -1, 64),
				strconv.FormatFloat(snap.Ry[i], 'g', -1, 64),
				phi,
			}
			if err := w.Write(record); err != nil {
				return err
			}
		}
	}
	w.Flush()
	return w.Error()
}

func parseJSONConfig(cfg *Config, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return json.NewDecoder(file).Decode(cfg)
}
