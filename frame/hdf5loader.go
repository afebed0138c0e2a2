package frame

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"gonum.org/v1/hdf5"
)

// hdf5Dataset is the canonical dataset path for detector frames.
const hdf5Dataset = "entry/instrument/detector/data"

// HDF5Loader resolves a frame coordinate to a slice of a single 3-D
// HDF5 dataset, opened once and shared read-only across workers. The
// underlying C library serializes access per file handle, so reads
// take a mutex.
type HDF5Loader struct {
	// Index maps a Coord to the leading index of the 3-D dataset.
	Index func(Coord) int

	mu      sync.Mutex
	file    *hdf5.File
	dataset *hdf5.Dataset
	dims    []uint // [frames, height, width]
}

// OpenHDF5Loader opens path and binds the canonical detector dataset.
func OpenHDF5Loader(path string, index func(Coord) int) (*HDF5Loader, error) {
	file, err := hdf5.OpenFile(path, hdf5.F_ACC_RDONLY)
	if err != nil {
		return nil, errors.Wrapf(err, "hdf5loader: open %s", path)
	}
	dataset, err := file.OpenDataset(hdf5Dataset)
	if err != nil {
		file.Close()
		return nil, errors.Wrapf(err, "hdf5loader: open dataset %s", hdf5Dataset)
	}
	space := dataset.Space()
	dims, _, err := space.SimpleExtentDims()
	if err != nil {
		dataset.Close()
		file.Close()
		return nil, errors.Wrap(err, "hdf5loader: read dataset extents")
	}
	if len(dims) != 3 {
		dataset.Close()
		file.Close()
		return nil, errors.Errorf("hdf5loader: expected a 3-D dataset, got %d dims", len(dims))
	}
	return &HDF5Loader{Index: index, file: file, dataset: dataset, dims: dims}, nil
}

// Close releases the underlying HDF5 handles.
func (l *HDF5Loader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.dataset.Close(); err != nil {
		return err
	}
	return l.file.Close()
}

// Load implements Loader.
func (l *HDF5Loader) Load(ctx context.Context, coord Coord) (*Frame, error) {
	idx := l.Index(coord)

	l.mu.Lock()
	defer l.mu.Unlock()

	if idx < 0 || uint(idx) >= l.dims[0] {
		return nil, ErrNotFound
	}

	h, w := int(l.dims[1]), int(l.dims[2])
	buf := make([]float32, h*w)

	memspace, err := hdf5.CreateSimpleDataspace([]uint{1, l.dims[1], l.dims[2]}, nil)
	if err != nil {
		return nil, errors.Wrap(err, "hdf5loader: create memory dataspace")
	}
	defer memspace.Close()

	filespace := l.dataset.Space()
	defer filespace.Close()
	if err := filespace.SelectHyperslab([]uint{uint(idx), 0, 0}, nil, []uint{1, l.dims[1], l.dims[2]}, nil); err != nil {
		return nil, errors.Wrap(err, "hdf5loader: select hyperslab")
	}

	if err := l.dataset.ReadSubset(&buf, memspace, filespace); err != nil {
		return nil, errors.Wrapf(err, "hdf5loader: read frame %d", idx)
	}

	out := NewFrame(w, h)
	for i, v := range buf {
		out.Pix[i] = uint32(v)
	}
	return out, nil
}
