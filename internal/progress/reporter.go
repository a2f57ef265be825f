package progress

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"sync"
	"time"
)

// Format renders the progress of a phase. total is <= 0 when unknown.
type Format func(processed, total int64) string

// Options configures the progress reporter.
type Options struct {
	// Label names the phase being reported, e.g. "Sorting".
	Label string

	// Total is the number of values the phase will process.
	// Zero or negative means unknown.
	Total int64

	// Processed returns the current count. It is polled from the reporter's
	// goroutine and must be safe for concurrent use.
	Processed func() int64

	// Format renders processed and total.
	// Default: Bar(50, false)
	Format Format

	// Output is where to write progress output.
	// Default: os.Stderr
	Output io.Writer

	// UpdateInterval is how often to update the progress display.
	// Default: 100ms
	UpdateInterval time.Duration
}

// Reporter periodically renders the progress of one phase on its own
// goroutine. It only reads the counter it is given.
type Reporter struct {
	opts Options

	mu        sync.Mutex
	started   bool
	stopped   bool
	startTime time.Time
	stopCh    chan struct{}
	done      chan struct{}

	lastUpdate    time.Time
	lastProcessed int64
}

// NewReporter creates a new progress reporter.
func NewReporter(opts Options) *Reporter {
	if opts.Output == nil {
		opts.Output = os.Stderr
	}
	if opts.UpdateInterval <= 0 {
		opts.UpdateInterval = 100 * time.Millisecond
	}
	if opts.Format == nil {
		opts.Format = Bar(50, false)
	}
	if opts.Processed == nil {
		opts.Processed = func() int64 { return 0 }
	}

	return &Reporter{
		opts:   opts,
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start begins outputting progress information.
func (r *Reporter) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started || r.stopped {
		return
	}
	r.started = true
	r.startTime = time.Now()
	r.lastUpdate = r.startTime

	go r.updateLoop()
}

// Stop stops the reporter, waits for its goroutine and prints the final line.
// It is safe to call more than once.
func (r *Reporter) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	started := r.started
	r.mu.Unlock()

	close(r.stopCh)
	if started {
		<-r.done
	}
}

// updateLoop periodically updates the progress display.
func (r *Reporter) updateLoop() {
	defer close(r.done)

	ticker := time.NewTicker(r.opts.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			r.printFinalStatus()
			return
		case <-ticker.C:
			r.printProgress()
		}
	}
}

// printProgress outputs the current progress.
func (r *Reporter) printProgress() {
	now := time.Now()
	processed := r.opts.Processed()

	elapsed := now.Sub(r.lastUpdate).Seconds()
	if elapsed < 0.1 {
		elapsed = 0.1
	}
	rate := float64(processed-r.lastProcessed) / elapsed
	r.lastUpdate = now
	r.lastProcessed = processed

	eta := "calculating..."
	if r.opts.Total > 0 && rate > 0 {
		remaining := float64(r.opts.Total - processed)
		if remaining < 0 {
			remaining = 0
		}
		eta = FormatDuration(time.Duration(remaining / rate * float64(time.Second)))
	}

	fmt.Fprintf(r.opts.Output, "\r[numsort] %s: %s | %s/s | ETA: %s    ",
		r.opts.Label,
		r.opts.Format(processed, r.opts.Total),
		FormatCount(int64(rate)),
		eta,
	)
}

// printFinalStatus outputs the final status.
func (r *Reporter) printFinalStatus() {
	processed := r.opts.Processed()
	duration := time.Since(r.startTime)
	avg := 0.0
	if duration > 0 {
		avg = float64(processed) / duration.Seconds()
	}

	fmt.Fprintf(r.opts.Output, "\r[numsort] %s: %s | %s/s | done in %s    \n",
		r.opts.Label,
		r.opts.Format(processed, r.opts.Total),
		FormatCount(int64(avg)),
		FormatDuration(duration),
	)
}

// Bar returns a Format drawing a bar of the given width followed by the
// percentage and the raw counts. With logScale the bar and percentage use
// ln(p+1)/ln(101)*100, which moves visibly early in long runs. When the total
// is unknown only the count is shown.
func Bar(width int, logScale bool) Format {
	if width <= 0 {
		width = 50
	}
	return func(processed, total int64) string {
		if total <= 0 {
			return fmt.Sprintf("%d", processed)
		}

		percent := float64(processed) / float64(total) * 100
		percent = max(0, min(percent, 100))
		if logScale {
			percent = math.Log(percent+1) / math.Log(101) * 100
		}

		filled := int(percent / 100 * float64(width))
		var sb strings.Builder
		sb.Grow(width + 32)
		sb.WriteByte('[')
		sb.WriteString(strings.Repeat("#", filled))
		sb.WriteString(strings.Repeat(" ", width-filled))
		sb.WriteByte(']')
		fmt.Fprintf(&sb, " %.2f%% (%d/%d)", percent, processed, total)
		return sb.String()
	}
}
