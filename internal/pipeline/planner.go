package pipeline

import (
	"fmt"
	"log/slog"

	"github.com/couchcryptid/forcing-downloader/internal/domain"
)

// DefaultBuffer is the margin in degrees added around the model domain.
const DefaultBuffer = 0.5

// Options describe one monthly run.
type Options struct {
	OutputDir      string
	DateString     string // YYYY_MM
	StaticmapsPath string
	Buffer         float64
	Rounding       domain.Rounding
}

// Planner turns run options into the ordered list of archive requests.
type Planner struct {
	extent ExtentReader
	logger *slog.Logger
}

// NewPlanner creates a Planner reading model extents through extent.
func NewPlanner(extent ExtentReader, logger *slog.Logger) *Planner {
	return &Planner{extent: extent, logger: logger}
}

// Plan resolves the run month and request area and returns the four
// requests in execution order. Nothing is contacted besides the
// static-maps file.
func (p *Planner) Plan(opts Options) ([]domain.Request, error) {
	month, err := domain.ParseMonth(opts.DateString)
	if err != nil {
		return nil, err
	}

	box, err := p.extent.Bounds(opts.StaticmapsPath)
	if err != nil {
		return nil, fmt.Errorf("read model extent: %w", err)
	}

	area, err := domain.ResolveArea(box, opts.Buffer, opts.Rounding)
	if err != nil {
		return nil, err
	}

	p.logger.Info("request area resolved",
		"month", month.String(),
		"bounds", fmt.Sprintf("%g/%g/%g/%g", box.MinY, box.MinX, box.MaxY, box.MaxX),
		"buffer", opts.Buffer,
		"area", area.String(),
	)
	return domain.PlanRequests(month, area), nil
}
