package progress

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Reporter receives progress for a single upload
type Reporter interface {
	// Start begins tracking a new upload
	Start(name string, totalBytes int64)
	// Update reports bytes sent so far
	Update(bytesTransferred int64)
	// Complete marks the upload as finished
	Complete()
	// Error reports a failed upload
	Error(err error)
}

// Callback is a function that receives progress updates
type Callback func(update Update)

// Update represents a progress update
type Update struct {
	Type           UpdateType
	File           string
	Bytes          int64
	Total          int64
	BytesPerSecond float64
	Elapsed        time.Duration
	Error          error
}

// UpdateType indicates the type of progress update
type UpdateType int

const (
	UpdateStart UpdateType = iota
	UpdateProgress
	UpdateComplete
	UpdateError
)

func (t UpdateType) String() string {
	switch t {
	case UpdateStart:
		return "start"
	case UpdateProgress:
		return "progress"
	case UpdateComplete:
		return "complete"
	case UpdateError:
		return "error"
	default:
		return "unknown"
	}
}

// CallbackReporter implements Reporter with a callback function.
// Uploads run concurrently, so each upload gets its own reporter.
type CallbackReporter struct {
	callback Callback
	interval time.Duration
	now      func() time.Time

	mu         sync.Mutex
	file       string
	total      int64
	bytes      int64
	startTime  time.Time
	lastReport time.Time
}

// NewCallbackReporter creates a new CallbackReporter
func NewCallbackReporter(callback Callback) *CallbackReporter {
	return &CallbackReporter{
		callback: callback,
		now:      time.Now,
	}
}

// WithInterval drops progress updates arriving sooner than d after the
// previous one. Start, Complete and Error are always delivered.
func (r *CallbackReporter) WithInterval(d time.Duration) *CallbackReporter {
	r.mu.Lock()
	r.interval = d
	r.mu.Unlock()
	return r
}

// Start begins tracking a new upload
func (r *CallbackReporter) Start(name string, totalBytes int64) {
	r.mu.Lock()
	r.file = name
	r.total = totalBytes
	r.bytes = 0
	r.startTime = r.now()
	r.lastReport = time.Time{}

	// Capture values for callback outside lock
	update := Update{
		Type:  UpdateStart,
		File:  name,
		Total: totalBytes,
	}
	callback := r.callback
	r.mu.Unlock()

	// Call callback outside lock to prevent deadlock
	if callback != nil {
		callback(update)
	}
}

// Update reports bytes sent so far
func (r *CallbackReporter) Update(bytesTransferred int64) {
	r.mu.Lock()
	r.bytes = bytesTransferred

	now := r.now()
	if r.interval > 0 && !r.lastReport.IsZero() && now.Sub(r.lastReport) < r.interval {
		r.mu.Unlock()
		return
	}
	r.lastReport = now

	update := r.snapshot(UpdateProgress, now)
	callback := r.callback
	r.mu.Unlock()

	if callback != nil {
		callback(update)
	}
}

// Complete marks the upload as finished
func (r *CallbackReporter) Complete() {
	r.mu.Lock()
	if r.bytes < r.total {
		r.bytes = r.total
	}
	update := r.snapshot(UpdateComplete, r.now())
	callback := r.callback
	r.mu.Unlock()

	if callback != nil {
		callback(update)
	}
}

// Error reports a failed upload
func (r *CallbackReporter) Error(err error) {
	r.mu.Lock()
	update := r.snapshot(UpdateError, r.now())
	update.Error = err
	callback := r.callback
	r.mu.Unlock()

	if callback != nil {
		callback(update)
	}
}

// snapshot must be called with mu held
func (r *CallbackReporter) snapshot(typ UpdateType, now time.Time) Update {
	elapsed := now.Sub(r.startTime)
	var bytesPerSecond float64
	if elapsed > 0 {
		bytesPerSecond = float64(r.bytes) / elapsed.Seconds()
	}
	return Update{
		Type:           typ,
		File:           r.file,
		Bytes:          r.bytes,
		Total:          r.total,
		BytesPerSecond: bytesPerSecond,
		Elapsed:        elapsed,
	}
}

// ProgressReader wraps an io.Reader to track read progress
type ProgressReader struct {
	reader      io.Reader
	reporter    Reporter
	transferred int64
}

// NewProgressReader creates a new progress-tracking reader
func NewProgressReader(r io.Reader, reporter Reporter) *ProgressReader {
	return &ProgressReader{
		reader:   r,
		reporter: reporter,
	}
}

// Read implements io.Reader
func (pr *ProgressReader) Read(p []byte) (n int, err error) {
	n, err = pr.reader.Read(p)
	if n > 0 {
		pr.transferred += int64(n)
		if pr.reporter != nil {
			pr.reporter.Update(pr.transferred)
		}
	}
	return n, err
}

// Transferred returns the number of bytes read so far
func (pr *ProgressReader) Transferred() int64 {
	return pr.transferred
}

// NullReporter is a no-op reporter
type NullReporter struct{}

func (NullReporter) Start(name string, totalBytes int64) {}
func (NullReporter) Update(bytesTransferred int64)       {}
func (NullReporter) Complete()                           {}
func (NullReporter) Error(err error)                     {}

// FormatBytes formats bytes into human-readable string
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// FormatSpeed formats bytes per second into human-readable string
func FormatSpeed(bytesPerSecond float64) string {
	return FormatBytes(int64(bytesPerSecond)) + "/s"
}

// FormatProgress returns a progress bar string
func FormatProgress(current, total int64, width int) string {
	if total == 0 {
		return ""
	}

	percent := float64(current) / float64(total)
	filled := int(percent * float64(width))
	if filled > width {
		filled = width
	}

	bar := make([]byte, width)
	for i := 0; i < width; i++ {
		if i < filled {
			bar[i] = '='
		} else if i == filled {
			bar[i] = '>'
		} else {
			bar[i] = ' '
		}
	}

	return fmt.Sprintf("[%s] %5.1f%%", string(bar), percent*100)
}
