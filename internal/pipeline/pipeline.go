package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/couchcryptid/forcing-downloader/internal/domain"
	"github.com/couchcryptid/forcing-downloader/internal/observability"
)

// ExtentReader reads the bounding box of a model's static-maps file.
type ExtentReader interface {
	Bounds(path string) (domain.BoundingBox, error)
}

// Retriever fetches one archive request into target and returns its size.
type Retriever interface {
	Retrieve(ctx context.Context, dataset string, params domain.Params, target string) (int64, error)
}

// Notifier announces the files of a completed run.
type Notifier interface {
	PublishBatch(ctx context.Context, downloads []domain.Download) error
}

// Progress is told about each finished request.
type Progress interface {
	Begin(total int)
	Advance(req domain.Request)
}

// Downloader runs the monthly retrieval: orography for both archives, then
// ERA5 for the previous month and SEAS5 for the current one.
type Downloader struct {
	planner   *Planner
	retriever Retriever
	notifier  Notifier
	progress  Progress
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// New creates a Downloader. notifier and progress may be nil.
func New(extent ExtentReader, r Retriever, n Notifier, p Progress, logger *slog.Logger, metrics *observability.Metrics) *Downloader {
	return &Downloader{
		planner:   NewPlanner(extent, logger),
		retriever: r,
		notifier:  n,
		progress:  p,
		logger:    logger,
		metrics:   metrics,
	}
}

// Plan returns the requests Run would issue for opts.
func (d *Downloader) Plan(opts Options) ([]domain.Request, error) {
	return d.planner.Plan(opts)
}

// Run executes the plan sequentially and stops at the first failure. Files
// fetched before a failure stay on disk and are returned alongside the error.
func (d *Downloader) Run(ctx context.Context, opts Options) ([]domain.Download, error) {
	d.metrics.RunSuccess.Set(0)

	plan, err := d.planner.Plan(opts)
	if err != nil {
		return nil, err
	}
	if d.progress != nil {
		d.progress.Begin(len(plan))
	}

	downloads := make([]domain.Download, 0, len(plan))
	for _, req := range plan {
		dl, err := d.fetch(ctx, opts.OutputDir, req)
		if err != nil {
			return downloads, err
		}
		downloads = append(downloads, dl)
		if d.progress != nil {
			d.progress.Advance(req)
		}
	}

	d.metrics.RunSuccess.Set(1)
	d.metrics.LastSuccess.SetToCurrentTime()
	d.logger.Info("all files downloaded", "output_dir", opts.OutputDir, "count", len(downloads))

	if d.notifier != nil {
		if err := d.notifier.PublishBatch(ctx, downloads); err != nil {
			return downloads, fmt.Errorf("notify downloads: %w", err)
		}
	}
	return downloads, nil
}

func (d *Downloader) fetch(ctx context.Context, outputDir string, req domain.Request) (domain.Download, error) {
	target := filepath.Join(outputDir, req.Filename)
	log := d.logger.With("dataset", req.Dataset, "kind", req.Kind, "target", target)
	log.Info("retrieving")

	start := time.Now()
	n, err := d.retriever.Retrieve(ctx, req.Dataset, req.Params, target)
	d.metrics.RetrieveDuration.WithLabelValues(req.Dataset).Observe(time.Since(start).Seconds())
	if err != nil {
		d.metrics.RetrieveRequests.WithLabelValues(req.Dataset, "error").Inc()
		log.Error("retrieve failed", "error", err)
		return domain.Download{}, fmt.Errorf("retrieve %s from %s: %w", req.Filename, req.Dataset, err)
	}
	d.metrics.RetrieveRequests.WithLabelValues(req.Dataset, "success").Inc()

	return domain.NewDownload(req, target, n), nil
}
