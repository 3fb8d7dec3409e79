package domain

import "time"

// Download records a request whose output file has been written.
type Download struct {
	Dataset      string    `json:"dataset"`
	Kind         string    `json:"kind"`
	Filename     string    `json:"filename"`
	Path         string    `json:"path"`
	Bytes        int64     `json:"bytes"`
	Month        string    `json:"month,omitempty"` // YYYY_MM of forcing data; empty for orography
	DownloadedAt time.Time `json:"downloaded_at"`
}

// NewDownload builds the record for a completed request.
func NewDownload(req Request, path string, size int64) Download {
	d := Download{
		Dataset:      req.Dataset,
		Kind:         req.Kind,
		Filename:     req.Filename,
		Path:         path,
		Bytes:        size,
		DownloadedAt: clock.Now().UTC(),
	}
	if req.Month != (Month{}) {
		d.Month = req.Month.String()
	}
	return d
}
