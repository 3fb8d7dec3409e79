package cds

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/forcing-downloader/internal/config"
	"github.com/couchcryptid/forcing-downloader/internal/domain"
	"github.com/couchcryptid/forcing-downloader/internal/observability"
	"github.com/jonboulle/clockwork"
)

// ErrJobFailed is returned when the archive reports a job as failed,
// rejected, or dismissed.
var ErrJobFailed = errors.New("cds job failed")

// Job states reported by the retrieve API.
const (
	statusAccepted   = "accepted"
	statusRunning    = "running"
	statusSuccessful = "successful"
	statusFailed     = "failed"
	statusRejected   = "rejected"
	statusDismissed  = "dismissed"
)

const (
	pollGrowth    = 1.5
	deleteTimeout = 30 * time.Second
)

// Client retrieves files from the Climate Data Store retrieve API.
// It implements pipeline.Retriever.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	key          string
	pollInterval time.Duration
	pollMax      time.Duration
	clock        clockwork.Clock
	logger       *slog.Logger
	metrics      *observability.Metrics
}

// Option customizes a Client.
type Option func(*Client)

// WithClock replaces the clock that paces job polling.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Client) { c.clock = clock }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a CDS client from the archive settings in cfg.
func NewClient(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout: cfg.CDSTimeout,
		},
		baseURL:      cfg.CDSURL,
		key:          cfg.CDSKey,
		pollInterval: cfg.CDSPollInterval,
		pollMax:      cfg.CDSPollMax,
		clock:        clockwork.NewRealClock(),
		logger:       logger,
		metrics:      metrics,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Retrieve submits a request for dataset, waits for the job to finish, and
// downloads the result to target. It returns the number of bytes written.
// The job is deleted on the archive afterwards, whatever the outcome.
func (c *Client) Retrieve(ctx context.Context, dataset string, params domain.Params, target string) (int64, error) {
	job, err := c.submit(ctx, dataset, params)
	if err != nil {
		return 0, err
	}
	log := c.logger.With("dataset", dataset, "job_id", job.JobID)
	log.Info("request queued", "status", job.Status)
	defer c.deleteJob(job.JobID, log)

	if err := c.wait(ctx, job, log); err != nil {
		return 0, err
	}

	asset, err := c.results(ctx, job.JobID)
	if err != nil {
		return 0, err
	}

	n, err := c.download(ctx, asset, target)
	if err != nil {
		return 0, err
	}
	log.Info("download complete", "target", target, "bytes", n)
	return n, nil
}

func (c *Client) submit(ctx context.Context, dataset string, params domain.Params) (jobStatus, error) {
	body, err := json.Marshal(executeRequest{Inputs: params})
	if err != nil {
		return jobStatus{}, fmt.Errorf("encode request: %w", err)
	}

	u := fmt.Sprintf("%s/retrieve/v1/processes/%s/execution", c.baseURL, url.PathEscape(dataset))
	var job jobStatus
	if err := c.doJSON(ctx, http.MethodPost, u, body, &job); err != nil {
		return jobStatus{}, fmt.Errorf("submit %s: %w", dataset, err)
	}
	if job.JobID == "" {
		return jobStatus{}, fmt.Errorf("submit %s: response has no job id", dataset)
	}
	return job, nil
}

// wait polls the job until it succeeds, fails, or ctx is cancelled.
func (c *Client) wait(ctx context.Context, job jobStatus, log *slog.Logger) error {
	interval := c.pollInterval
	last := job.Status

	for {
		switch job.Status {
		case statusSuccessful:
			return nil
		case statusFailed, statusRejected, statusDismissed:
			return c.jobError(ctx, job)
		}

		if !sleepWithContext(ctx, c.clock, interval) {
			return fmt.Errorf("wait for job %s: %w", job.JobID, ctx.Err())
		}
		interval = nextPollInterval(interval, c.pollMax)

		next, err := c.status(ctx, job.JobID)
		if err != nil {
			return err
		}
		c.metrics.JobPolls.Inc()
		job = next

		if job.Status != last {
			log.Info("request state changed", "status", job.Status)
			last = job.Status
		} else {
			log.Debug("request still pending", "status", job.Status, "next_poll", interval)
		}
	}
}

func (c *Client) status(ctx context.Context, jobID string) (jobStatus, error) {
	var job jobStatus
	if err := c.doJSON(ctx, http.MethodGet, c.jobURL(jobID), nil, &job); err != nil {
		return jobStatus{}, fmt.Errorf("poll job %s: %w", jobID, err)
	}
	if job.JobID == "" {
		job.JobID = jobID
	}
	return job, nil
}

// jobError builds the error for a job that did not succeed. The results
// endpoint carries the archive's explanation for failed jobs.
func (c *Client) jobError(ctx context.Context, job jobStatus) error {
	reason := job.reason()
	if reason == "" {
		var detail problem
		if err := c.doJSON(ctx, http.MethodGet, c.jobURL(job.JobID)+"/results", nil, &detail); err != nil {
			var apiErr *apiError
			if errors.As(err, &apiErr) {
				reason = apiErr.problem.String()
			}
		}
	}
	if reason == "" {
		return fmt.Errorf("%w: job %s %s", ErrJobFailed, job.JobID, job.Status)
	}
	return fmt.Errorf("%w: job %s %s: %s", ErrJobFailed, job.JobID, job.Status, reason)
}

func (c *Client) results(ctx context.Context, jobID string) (assetValue, error) {
	var res resultsResponse
	if err := c.doJSON(ctx, http.MethodGet, c.jobURL(jobID)+"/results", nil, &res); err != nil {
		return assetValue{}, fmt.Errorf("fetch results of job %s: %w", jobID, err)
	}
	if res.Asset.Value.Href == "" {
		return assetValue{}, fmt.Errorf("fetch results of job %s: no download location", jobID)
	}
	return res.Asset.Value, nil
}

// download streams the result into target+".part" and renames it onto
// target once the size matches, so target never holds a truncated file.
func (c *Client) download(ctx context.Context, asset assetValue, target string) (int64, error) {
	href, err := c.resolve(asset.Href)
	if err != nil {
		return 0, fmt.Errorf("download result: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, href, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	// Result files can take far longer than one API call to transfer.
	hc := *c.httpClient
	hc.Timeout = 0
	resp, err := hc.Do(req)
	if err != nil {
		return 0, fmt.Errorf("download result: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return 0, fmt.Errorf("download result: status %d: %s", resp.StatusCode, body)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return 0, fmt.Errorf("create output directory: %w", err)
	}
	part := target + ".part"
	f, err := os.Create(part)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", part, err)
	}

	n, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && asset.Size > 0 && n != asset.Size {
		err = fmt.Errorf("size mismatch: got %d bytes, want %d", n, asset.Size)
	}
	if err != nil {
		_ = os.Remove(part)
		return 0, fmt.Errorf("write %s: %w", target, err)
	}

	if err := os.Rename(part, target); err != nil {
		_ = os.Remove(part)
		return 0, fmt.Errorf("rename %s: %w", part, err)
	}
	c.metrics.DownloadedBytes.Add(float64(n))
	return n, nil
}

// deleteJob releases the job on the archive. Failures are only logged.
func (c *Client) deleteJob(jobID string, log *slog.Logger) {
	timeout := c.httpClient.Timeout
	if timeout <= 0 {
		timeout = deleteTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := c.doJSON(ctx, http.MethodDelete, c.jobURL(jobID), nil, nil); err != nil {
		log.Warn("delete job failed", "error", err)
	}
}

func (c *Client) jobURL(jobID string) string {
	return fmt.Sprintf("%s/retrieve/v1/jobs/%s", c.baseURL, url.PathEscape(jobID))
}

// resolve turns a possibly relative asset location into an absolute URL.
func (c *Client) resolve(href string) (string, error) {
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("parse asset href %q: %w", href, err)
	}
	if ref.IsAbs() {
		return href, nil
	}
	base, err := url.Parse(c.baseURL + "/")
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	return base.ResolveReference(ref).String(), nil
}

// doJSON sends an authenticated API call and decodes the JSON reply into out
// when out is non-nil.
func (c *Client) doJSON(ctx context.Context, method, fullURL string, body []byte, out any) error {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, fullURL, rd)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("PRIVATE-TOKEN", c.key)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		e := &apiError{status: resp.StatusCode, body: string(data)}
		_ = json.Unmarshal(data, &e.problem)
		return e
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func nextPollInterval(current, maxInterval time.Duration) time.Duration {
	next := time.Duration(float64(current) * pollGrowth)
	if next > maxInterval {
		return maxInterval
	}
	return next
}

func sleepWithContext(ctx context.Context, clock clockwork.Clock, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}
