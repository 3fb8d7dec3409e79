package main

import (
	"io"
	"sync"

	"github.com/couchcryptid/forcing-downloader/internal/domain"
	"github.com/gosuri/uiprogress"
)

// progressBar renders one terminal bar over the requests of a run.
type progressBar struct {
	progress *uiprogress.Progress
	bar      *uiprogress.Bar

	mu   sync.Mutex
	last string
}

func newProgressBar(out io.Writer) *progressBar {
	p := uiprogress.New()
	p.Out = out
	return &progressBar{progress: p}
}

func (p *progressBar) Begin(total int) {
	p.bar = p.progress.AddBar(total).AppendCompleted().PrependElapsed()
	p.bar.PrependFunc(func(*uiprogress.Bar) string {
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.last
	})
	p.progress.Start()
}

func (p *progressBar) Advance(req domain.Request) {
	p.mu.Lock()
	p.last = req.Filename
	p.mu.Unlock()
	p.bar.Incr()
}

func (p *progressBar) Stop() {
	if p.bar != nil {
		p.progress.Stop()
	}
}
