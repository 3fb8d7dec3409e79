package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/forcing-downloader/internal/adapter/cds"
	kafkaadapter "github.com/couchcryptid/forcing-downloader/internal/adapter/kafka"
	"github.com/couchcryptid/forcing-downloader/internal/adapter/staticmaps"
	"github.com/couchcryptid/forcing-downloader/internal/config"
	"github.com/couchcryptid/forcing-downloader/internal/domain"
	"github.com/couchcryptid/forcing-downloader/internal/observability"
	"github.com/couchcryptid/forcing-downloader/internal/pipeline"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

type flags struct {
	outputDir  string
	dateString string
	staticmaps string
	buffer     float64
	rounding   string
	dryRun     bool
	progress   bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		slog.Error("forcing download failed", "error", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:   "forcing-download",
		Short: "Download the monthly ERA5 and SEAS5 forcing for a model domain",
		Long: `Fetches ERA5 and SEAS5 orography and one month of forcing from the
Climate Data Store for the area covered by a staticmaps grid file.
ERA5 covers the month before --date_string, SEAS5 the forecast issued in it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), f, cmd.OutOrStdout())
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&f.outputDir, "output_dir", "", "directory the files are written to")
	fs.StringVar(&f.dateString, "date_string", "", "model month as YYYY_MM")
	fs.StringVar(&f.staticmaps, "staticmaps_fn", "", "staticmaps NetCDF file of the model")
	fs.Float64Var(&f.buffer, "buffer", pipeline.DefaultBuffer, "margin in degrees around the model domain")
	fs.StringVar(&f.rounding, "rounding", string(domain.RoundOutward), "grid snapping: outward or nearest")
	fs.BoolVar(&f.dryRun, "dry_run", false, "print the request plan as JSON and exit")
	fs.BoolVar(&f.progress, "progress", false, "show a progress bar")
	for _, name := range []string{"output_dir", "date_string", "staticmaps_fn"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func run(ctx context.Context, f flags, stdout io.Writer) error {
	rounding, err := domain.ParseRounding(f.rounding)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := observability.NewLogger(cfg)

	opts := pipeline.Options{
		OutputDir:      f.outputDir,
		DateString:     f.dateString,
		StaticmapsPath: f.staticmaps,
		Buffer:         f.buffer,
		Rounding:       rounding,
	}

	if f.dryRun {
		plan, err := pipeline.NewPlanner(staticmaps.NewReader(), logger).Plan(opts)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(plan)
	}

	if err := cfg.RequireCredentials(); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	if cfg.MetricsTextfile != "" {
		defer func() {
			if err := observability.WriteTextfile(cfg.MetricsTextfile, reg); err != nil {
				logger.Error("metrics textfile", "error", err, "path", cfg.MetricsTextfile)
			}
		}()
	}

	client := cds.NewClient(cfg, logger, metrics)

	// Download notifications (feature-flagged via NOTIFY_ENABLED / KAFKA_BROKERS).
	var notifier pipeline.Notifier
	if cfg.NotifyEnabled {
		writer := kafkaadapter.NewWriter(cfg, logger)
		defer func() {
			if err := writer.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}
		}()
		notifier = writer
		logger.Info("download notifications enabled", "topic", cfg.KafkaTopic)
	}

	var progress pipeline.Progress
	if f.progress {
		bar := newProgressBar(os.Stderr)
		defer bar.Stop()
		progress = bar
	}

	d := pipeline.New(staticmaps.NewReader(), client, notifier, progress, logger, metrics)
	downloads, err := d.Run(ctx, opts)
	if err != nil {
		if len(downloads) > 0 {
			logger.Warn("run stopped with partial output", "completed", len(downloads), "output_dir", opts.OutputDir)
		}
		return err
	}
	logger.Info("forcing download complete", "date_string", opts.DateString, "files", len(downloads))
	return nil
}
