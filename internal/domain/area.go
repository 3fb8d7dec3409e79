package domain

import (
	"errors"
	"fmt"
	"math"
)

// ErrDegenerateArea is returned when a box has no extent on one of its axes.
var ErrDegenerateArea = errors.New("degenerate area")

// gridStep is the half-degree grid all requested areas are snapped to.
const gridStep = 0.5

// snapTolerance absorbs float noise such as 45.49999999999999 so values that
// already sit on the grid are not pushed out by a whole step.
const snapTolerance = 1e-9

// BoundingBox is the horizontal extent of a raster in its own coordinate
// reference (degrees for the model grids this tool serves).
type BoundingBox struct {
	MinX float64
	MinY float64
	MaxX float64
	MaxY float64
}

// BoundsFromCenters derives the edge bounds of a regular raster from its cell
// centre coordinates: min/max centre extended by half a cell. Axes may be
// ascending or descending. A single-cell axis has no resolution and yields
// its centre on both edges.
func BoundsFromCenters(xs, ys []float64) (BoundingBox, error) {
	if len(xs) == 0 || len(ys) == 0 {
		return BoundingBox{}, errors.New("bounds from centers: empty coordinate axis")
	}
	minX, maxX := axisEdges(xs)
	minY, maxY := axisEdges(ys)
	return BoundingBox{MinX: minX, MinY: minY, MaxX: maxX, MaxY: maxY}, nil
}

func axisEdges(centers []float64) (lo, hi float64) {
	lo, hi = centers[0], centers[0]
	for _, c := range centers[1:] {
		lo = math.Min(lo, c)
		hi = math.Max(hi, c)
	}
	if len(centers) < 2 {
		return lo, hi
	}
	half := math.Abs(centers[1]-centers[0]) / 2
	return lo - half, hi + half
}

// Rounding selects how buffered edges are snapped to the half-degree grid.
type Rounding string

const (
	// RoundOutward floors the minima and ceils the maxima, so the snapped
	// box always contains the buffered domain.
	RoundOutward Rounding = "outward"
	// RoundNearest rounds every edge to the nearest 0.5, ties to even.
	RoundNearest Rounding = "nearest"
)

// ParseRounding validates a rounding mode name.
func ParseRounding(s string) (Rounding, error) {
	switch r := Rounding(s); r {
	case RoundOutward, RoundNearest:
		return r, nil
	default:
		return "", fmt.Errorf("unknown rounding %q (want %q or %q)", s, RoundOutward, RoundNearest)
	}
}

// Area is the request area snapped to the half-degree grid.
type Area struct {
	South float64
	West  float64
	North float64
	East  float64
}

// ResolveArea buffers a bounding box by buffer on every side and snaps the
// result to the 0.5° grid.
func ResolveArea(box BoundingBox, buffer float64, rounding Rounding) (Area, error) {
	if box.MinX >= box.MaxX || box.MinY >= box.MaxY {
		return Area{}, fmt.Errorf("resolve area: %w: bounds %+v", ErrDegenerateArea, box)
	}

	lower, upper := snapFuncs(rounding)
	if lower == nil {
		return Area{}, fmt.Errorf("resolve area: unknown rounding %q", rounding)
	}

	area := Area{
		South: lower(box.MinY - buffer),
		West:  lower(box.MinX - buffer),
		North: upper(box.MaxY + buffer),
		East:  upper(box.MaxX + buffer),
	}
	if area.South >= area.North || area.West >= area.East {
		return Area{}, fmt.Errorf("resolve area: %w: %s after buffer %g", ErrDegenerateArea, area, buffer)
	}
	return area, nil
}

func snapFuncs(rounding Rounding) (lower, upper func(float64) float64) {
	switch rounding {
	case RoundOutward, "":
		return func(v float64) float64 { return snap(v, math.Floor) },
			func(v float64) float64 { return snap(v, math.Ceil) }
	case RoundNearest:
		nearest := func(v float64) float64 { return snap(v, math.RoundToEven) }
		return nearest, nearest
	default:
		return nil, nil
	}
}

func snap(v float64, round func(float64) float64) float64 {
	steps := v / gridStep
	if r := math.Round(steps); math.Abs(steps-r) < snapTolerance {
		steps = r
	}
	out := round(steps) * gridStep
	if out == 0 {
		return 0 // drop negative zero so the area string never reads "-0.00"
	}
	return out
}

// String formats the area as "south/west/north/east" with two decimals.
func (a Area) String() string {
	return fmt.Sprintf("%.2f/%.2f/%.2f/%.2f", a.South, a.West, a.North, a.East)
}

// List returns the area as [south, west, north, east].
func (a Area) List() []float64 {
	return []float64{a.South, a.West, a.North, a.East}
}
