package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/couchcryptid/forcing-downloader/internal/domain"
	"github.com/couchcryptid/forcing-downloader/internal/observability"
	"github.com/couchcryptid/forcing-downloader/internal/pipeline"
	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockExtent struct {
	box  domain.BoundingBox
	err  error
	path string
}

func (m *mockExtent) Bounds(path string) (domain.BoundingBox, error) {
	m.path = path
	return m.box, m.err
}

type retrieveCall struct {
	Dataset string
	Area    any
	Target  string
}

// mockRetriever writes a small file per request and fails on failOn.
type mockRetriever struct {
	failOn string
	calls  []retrieveCall
}

func (m *mockRetriever) Retrieve(_ context.Context, dataset string, params domain.Params, target string) (int64, error) {
	m.calls = append(m.calls, retrieveCall{Dataset: dataset, Area: params["area"], Target: target})
	if filepath.Base(target) == m.failOn {
		return 0, errors.New("archive unavailable")
	}
	data := []byte(filepath.Base(target))
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return 0, err
	}
	return int64(len(data)), nil
}

type mockNotifier struct {
	published []domain.Download
	calls     int
	err       error
}

func (m *mockNotifier) PublishBatch(_ context.Context, downloads []domain.Download) error {
	m.calls++
	m.published = append(m.published, downloads...)
	return m.err
}

type mockProgress struct {
	total    int
	advanced []string
}

func (m *mockProgress) Begin(total int)            { m.total = total }
func (m *mockProgress) Advance(req domain.Request) { m.advanced = append(m.advanced, req.Filename) }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scenarioBox buffers and snaps to 45.5/4.0/53.0/13.0.
var scenarioBox = domain.BoundingBox{MinX: 4.9, MinY: 46.1, MaxX: 12.3, MaxY: 52.4}

func scenarioOptions(t *testing.T) pipeline.Options {
	t.Helper()
	return pipeline.Options{
		OutputDir:      t.TempDir(),
		DateString:     "2022_02",
		StaticmapsPath: "/models/rhine/staticmaps.nc",
		Buffer:         pipeline.DefaultBuffer,
	}
}

// --- tests ---

func TestDownloader_Run_HappyPath(t *testing.T) {
	fixedTime := time.Date(2022, 2, 1, 6, 0, 0, 0, time.UTC)
	domain.SetClock(clockwork.NewFakeClockAt(fixedTime))
	defer domain.SetClock(nil)

	ext := &mockExtent{box: scenarioBox}
	ret := &mockRetriever{}
	ntf := &mockNotifier{}
	prog := &mockProgress{}
	metrics := observability.NewMetricsForTesting()
	opts := scenarioOptions(t)

	d := pipeline.New(ext, ret, ntf, prog, discardLogger(), metrics)
	downloads, err := d.Run(context.Background(), opts)
	require.NoError(t, err)

	assert.Equal(t, "/models/rhine/staticmaps.nc", ext.path)

	wantCalls := []retrieveCall{
		{domain.DatasetERA5, []float64{45.5, 4.0, 53.0, 13.0}, filepath.Join(opts.OutputDir, "orography_era5.grib")},
		{domain.DatasetSEAS5, []float64{45.5, 4.0, 53.0, 13.0}, filepath.Join(opts.OutputDir, "orography_seas5.grib")},
		{domain.DatasetERA5, "45.50/4.00/53.00/13.00", filepath.Join(opts.OutputDir, "ERA5_2022_1.nc")},
		{domain.DatasetSEAS5, "45.50/4.00/53.00/13.00", filepath.Join(opts.OutputDir, "SEAS5_2022_2.nc")},
	}
	if diff := cmp.Diff(wantCalls, ret.calls); diff != "" {
		t.Errorf("retrieve calls mismatch (-want +got):\n%s", diff)
	}

	require.Len(t, downloads, 4)
	assert.Equal(t, "2022_01", downloads[2].Month)
	assert.Equal(t, "2022_02", downloads[3].Month)
	assert.Equal(t, fixedTime, downloads[3].DownloadedAt)
	for _, dl := range downloads {
		assert.FileExists(t, dl.Path)
		assert.Equal(t, int64(len(dl.Filename)), dl.Bytes)
	}

	assert.Equal(t, 1, ntf.calls)
	assert.Equal(t, downloads, ntf.published)
	assert.Equal(t, 4, prog.total)
	assert.Len(t, prog.advanced, 4)

	assert.InDelta(t, 1, testutil.ToFloat64(metrics.RunSuccess), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(metrics.RetrieveRequests.WithLabelValues(domain.DatasetERA5, "success")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(metrics.RetrieveRequests.WithLabelValues(domain.DatasetSEAS5, "success")), 0)
}

func TestDownloader_Run_StopsAtFirstFailure(t *testing.T) {
	ret := &mockRetriever{failOn: "ERA5_2022_1.nc"}
	ntf := &mockNotifier{}
	prog := &mockProgress{}
	metrics := observability.NewMetricsForTesting()
	opts := scenarioOptions(t)

	d := pipeline.New(&mockExtent{box: scenarioBox}, ret, ntf, prog, discardLogger(), metrics)
	downloads, err := d.Run(context.Background(), opts)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "ERA5_2022_1.nc")
	assert.Contains(t, err.Error(), "archive unavailable")

	// SEAS5 forcing is never attempted; orography stays on disk.
	assert.Len(t, ret.calls, 3)
	require.Len(t, downloads, 2)
	assert.FileExists(t, filepath.Join(opts.OutputDir, "orography_era5.grib"))
	assert.FileExists(t, filepath.Join(opts.OutputDir, "orography_seas5.grib"))
	assert.NoFileExists(t, filepath.Join(opts.OutputDir, "SEAS5_2022_2.nc"))

	assert.Zero(t, ntf.calls)
	assert.Len(t, prog.advanced, 2)
	assert.InDelta(t, 0, testutil.ToFloat64(metrics.RunSuccess), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.RetrieveRequests.WithLabelValues(domain.DatasetERA5, "error")), 0)
}

func TestDownloader_Run_FirstRequestFails(t *testing.T) {
	ret := &mockRetriever{failOn: "orography_era5.grib"}
	d := pipeline.New(&mockExtent{box: scenarioBox}, ret, nil, nil, discardLogger(), observability.NewMetricsForTesting())

	downloads, err := d.Run(context.Background(), scenarioOptions(t))
	require.Error(t, err)
	assert.Empty(t, downloads)
	assert.Len(t, ret.calls, 1)
}

func TestDownloader_Run_InvalidDate(t *testing.T) {
	ext := &mockExtent{box: scenarioBox}
	ret := &mockRetriever{}
	opts := scenarioOptions(t)
	opts.DateString = "2022-02"

	d := pipeline.New(ext, ret, nil, nil, discardLogger(), observability.NewMetricsForTesting())
	_, err := d.Run(context.Background(), opts)

	require.ErrorIs(t, err, domain.ErrInvalidMonth)
	assert.Empty(t, ret.calls)
	assert.Empty(t, ext.path, "staticmaps must not be read for an invalid date")
}

func TestDownloader_Run_ExtentError(t *testing.T) {
	ret := &mockRetriever{}
	ext := &mockExtent{err: errors.New("no such file")}

	d := pipeline.New(ext, ret, nil, nil, discardLogger(), observability.NewMetricsForTesting())
	_, err := d.Run(context.Background(), scenarioOptions(t))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "read model extent")
	assert.Empty(t, ret.calls)
}

func TestDownloader_Run_DegenerateArea(t *testing.T) {
	ret := &mockRetriever{}
	ext := &mockExtent{box: domain.BoundingBox{MinX: 5, MinY: 46, MaxX: 5, MaxY: 52}}

	d := pipeline.New(ext, ret, nil, nil, discardLogger(), observability.NewMetricsForTesting())
	_, err := d.Run(context.Background(), scenarioOptions(t))

	require.ErrorIs(t, err, domain.ErrDegenerateArea)
	assert.Empty(t, ret.calls)
}

func TestDownloader_Run_NotifyError(t *testing.T) {
	ntf := &mockNotifier{err: errors.New("broker down")}
	metrics := observability.NewMetricsForTesting()

	d := pipeline.New(&mockExtent{box: scenarioBox}, &mockRetriever{}, ntf, nil, discardLogger(), metrics)
	downloads, err := d.Run(context.Background(), scenarioOptions(t))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "notify downloads")
	assert.Len(t, downloads, 4)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.RunSuccess), 0)
}

func TestDownloader_Plan(t *testing.T) {
	ret := &mockRetriever{}
	d := pipeline.New(&mockExtent{box: scenarioBox}, ret, nil, nil, discardLogger(), observability.NewMetricsForTesting())

	plan, err := d.Plan(scenarioOptions(t))
	require.NoError(t, err)

	area := domain.Area{South: 45.5, West: 4.0, North: 53.0, East: 13.0}
	current := domain.Month{Year: 2022, Month: time.February}
	want := domain.PlanRequests(current, area)
	if diff := cmp.Diff(want, plan); diff != "" {
		t.Errorf("plan mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, ret.calls, "planning must not contact the archive")
}

func TestDownloader_Plan_NearestRounding(t *testing.T) {
	opts := scenarioOptions(t)
	opts.Rounding = domain.RoundNearest

	d := pipeline.New(&mockExtent{box: scenarioBox}, &mockRetriever{}, nil, nil, discardLogger(), observability.NewMetricsForTesting())
	plan, err := d.Plan(opts)
	require.NoError(t, err)

	assert.Equal(t, []float64{45.5, 4.5, 53.0, 13.0}, plan[0].Params["area"])
	assert.Equal(t, "45.50/4.50/53.00/13.00", plan[3].Params["area"])
}

func TestDownloader_Plan_JanuaryRollover(t *testing.T) {
	opts := scenarioOptions(t)
	opts.DateString = "2022_01"

	d := pipeline.New(&mockExtent{box: scenarioBox}, &mockRetriever{}, nil, nil, discardLogger(), observability.NewMetricsForTesting())
	plan, err := d.Plan(opts)
	require.NoError(t, err)

	assert.Equal(t, "ERA5_2021_12.nc", plan[2].Filename)
	assert.Equal(t, "SEAS5_2022_1.nc", plan[3].Filename)
}
