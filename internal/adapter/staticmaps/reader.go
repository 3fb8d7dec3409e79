// Package staticmaps reads the extent of a model's static-maps grid file.
package staticmaps

import (
	"errors"
	"fmt"

	"github.com/couchcryptid/forcing-downloader/internal/domain"
	"github.com/fhs/go-netcdf/netcdf"
)

// Coordinate variable names tried in order.
var (
	xNames = []string{"x", "lon", "longitude"}
	yNames = []string{"y", "lat", "latitude"}
)

// Reader opens NetCDF static-maps files. It implements pipeline.ExtentReader.
type Reader struct{}

// NewReader returns a static-maps reader.
func NewReader() *Reader {
	return &Reader{}
}

// Bounds returns the outer edges of the grid stored in path, derived from
// its cell-centre coordinate variables.
func (r *Reader) Bounds(path string) (domain.BoundingBox, error) {
	nc, err := netcdf.OpenFile(path, netcdf.NOWRITE)
	if err != nil {
		return domain.BoundingBox{}, fmt.Errorf("open staticmaps %s: %w", path, err)
	}
	defer func() { _ = nc.Close() }()

	xs, err := readAxis(nc, xNames)
	if err != nil {
		return domain.BoundingBox{}, fmt.Errorf("read staticmaps %s: %w", path, err)
	}
	ys, err := readAxis(nc, yNames)
	if err != nil {
		return domain.BoundingBox{}, fmt.Errorf("read staticmaps %s: %w", path, err)
	}

	box, err := domain.BoundsFromCenters(xs, ys)
	if err != nil {
		return domain.BoundingBox{}, fmt.Errorf("read staticmaps %s: %w", path, err)
	}
	return box, nil
}

func readAxis(nc netcdf.Dataset, names []string) ([]float64, error) {
	for _, name := range names {
		v, err := nc.Var(name)
		if err != nil {
			continue
		}
		data, err := readFloat64Var(v)
		if err != nil {
			return nil, fmt.Errorf("variable %q: %w", name, err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("no coordinate variable among %v", names)
}

func readFloat64Var(v netcdf.Var) ([]float64, error) {
	dims, err := v.Dims()
	if err != nil {
		return nil, fmt.Errorf("get dimensions: %w", err)
	}
	if len(dims) != 1 {
		return nil, fmt.Errorf("expected 1D variable, got %dD", len(dims))
	}
	length, err := dims[0].Len()
	if err != nil {
		return nil, err
	}
	if length == 0 {
		return nil, errors.New("empty coordinate variable")
	}

	t, err := v.Type()
	if err != nil {
		return nil, fmt.Errorf("get var type: %w", err)
	}
	switch t {
	case netcdf.DOUBLE:
		data := make([]float64, length)
		if err := v.ReadFloat64s(data); err != nil {
			return nil, err
		}
		return data, nil
	case netcdf.FLOAT:
		tmp := make([]float32, length)
		if err := v.ReadFloat32s(tmp); err != nil {
			return nil, err
		}
		return widen(tmp), nil
	case netcdf.INT:
		tmp := make([]int32, length)
		if err := v.ReadInt32s(tmp); err != nil {
			return nil, err
		}
		return widen(tmp), nil
	default:
		return nil, fmt.Errorf("unsupported var type: %v", t)
	}
}

func widen[T float32 | int32](in []T) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
}
