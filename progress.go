package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/tonimelisma/drive-migrate/internal/migrate"
)

const progressThrottle = 100 * time.Millisecond

// progressObserver draws a byte-based progress bar for the migrating
// phase. The bar is created once the plan is known.
type progressObserver struct {
	w io.Writer

	mu       sync.Mutex
	bar      *progressbar.ProgressBar
	files    int
	done     int
	failed   int
	sizes    map[string]int64
	uploaded map[string]int64
}

var _ migrate.Observer = (*progressObserver)(nil)

func newProgressObserver(w io.Writer) *progressObserver {
	return &progressObserver{
		w:        w,
		sizes:    make(map[string]int64),
		uploaded: make(map[string]int64),
	}
}

func (p *progressObserver) StateChanged(state migrate.RunState) {
	if state != migrate.StateCompleted && state != migrate.StateAborted {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.bar != nil {
		p.bar.Finish() //nolint:errcheck // display only
	}
}

func (p *progressObserver) EntriesPlanned(files int, bytes int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.files = files
	p.bar = progressbar.NewOptions64(bytes,
		progressbar.OptionSetWriter(p.w),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(progressThrottle),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetDescription(p.describe()),
	)
}

func (p *progressObserver) TransferStarted(path string, size int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.sizes[path] = size
	p.uploaded[path] = 0
}

func (p *progressObserver) UploadProgress(path string, uploaded, _ int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// Retries restart the count, so only forward movement is added.
	if delta := uploaded - p.uploaded[path]; delta > 0 && p.bar != nil {
		p.bar.Add64(delta) //nolint:errcheck // display only
	}

	p.uploaded[path] = max(p.uploaded[path], uploaded)
}

func (p *progressObserver) TransferFinished(rec migrate.TransferRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done++
	if rec.Status == migrate.StatusFailed {
		p.failed++
	}

	// Skipped and failed files still count toward the total.
	if rest := p.sizes[rec.Path] - p.uploaded[rec.Path]; rest > 0 && p.bar != nil {
		p.bar.Add64(rest) //nolint:errcheck // display only
	}

	delete(p.sizes, rec.Path)
	delete(p.uploaded, rec.Path)

	if p.bar != nil {
		p.bar.Describe(p.describe())
	}
}

// describe must be called with mu held.
func (p *progressObserver) describe() string {
	if p.failed > 0 {
		return fmt.Sprintf("[%d/%d, %d failed]", p.done, p.files, p.failed)
	}

	return fmt.Sprintf("[%d/%d]", p.done, p.files)
}
