package watcher

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/Ning0612/Hotfolder/internal/adapter"
	"github.com/Ning0612/Hotfolder/internal/checksum"
	"github.com/Ning0612/Hotfolder/internal/domain"
	"github.com/Ning0612/Hotfolder/internal/logger"
	"github.com/Ning0612/Hotfolder/internal/metrics"
	"github.com/Ning0612/Hotfolder/internal/progress"
	"github.com/Ning0612/Hotfolder/internal/state"
)

// progressInterval limits how often upload progress is logged
const progressInterval = 2 * time.Second

// HistoryRecorder stores one record per dispatch; *state.Manager implements it
type HistoryRecorder interface {
	SaveUpload(record state.UploadRecord) error
}

// DispatcherConfig controls what happens around an upload
type DispatcherConfig struct {
	Workstation       string
	DeleteAfterUpload bool
	Retry             RetryPolicy
}

// Dispatcher uploads one stable file and cleans up after it
type Dispatcher struct {
	source  adapter.Source
	dest    adapter.Destination
	queue   *QueueState
	history HistoryRecorder
	bus     *Bus
	config  DispatcherConfig
	retries *retryTracker

	now    func() time.Time
	newKey func() string
}

// NewDispatcher wires a dispatcher. history and bus may be nil.
func NewDispatcher(source adapter.Source, dest adapter.Destination, queue *QueueState, history HistoryRecorder, bus *Bus, cfg DispatcherConfig) *Dispatcher {
	return &Dispatcher{
		source:  source,
		dest:    dest,
		queue:   queue,
		history: history,
		bus:     bus,
		config:  cfg,
		retries: newRetryTracker(cfg.Retry),
		now:     time.Now,
		newKey:  uuid.NewString,
	}
}

// Dispatch uploads entry. The caller must have claimed entry.Name with
// QueueState.Claim; the claim is released when Dispatch returns.
//
// A file that cannot be opened is skipped for this tick only: SeenMap,
// history and retry state are left alone so the next tick reconsiders it.
// Once open, the SeenMap entry is written before the upload so a later tick
// never re-sends the same version. It is dropped only after the local file
// was deleted; failures keep it, so a failed file is not sent again until
// it changes (or a retry falls due).
func (d *Dispatcher) Dispatch(ctx context.Context, entry domain.FileEntry) domain.UploadResult {
	defer d.queue.Release(entry.Name)

	result := domain.UploadResult{Filename: entry.Name}

	rc, err := d.source.Read(ctx, entry.Name)
	if err != nil {
		result.Err = fmt.Errorf("%w: %s: %w", domain.ErrFileRead, entry.Name, err)
		logger.Get().Warn("cannot open file, will try next tick", "file", entry.Name, "error", err)
		return result
	}
	defer metrics.UploadStarted()()

	d.queue.MarkSeen(entry.Name, entry.LastModified)

	start := d.now()
	key := d.newKey()
	log := logger.Get().With("file", entry.Name, "upload_key", key)

	payload := domain.UploadPayload{
		Filename:    entry.Name,
		UploadKey:   key,
		Timestamp:   start.UTC(),
		ContentType: contentType(entry.Name),
		Size:        entry.Size,
		Workstation: d.config.Workstation,
	}

	remoteID, hasher, err := d.upload(ctx, rc, entry, payload, log)
	result.Duration = d.now().Sub(start)
	if hasher != nil {
		result.Checksum = hasher.Sum()
		result.Bytes = hasher.BytesRead()
	}

	if err != nil {
		result.Err = err
		d.failed(entry, result, log)
	} else {
		result.RemoteID = remoteID
		d.succeeded(ctx, entry, &result, log)
	}

	metrics.RecordUpload(d.dest.Name(), result.Bytes, result.Duration, result.OK())
	d.record(entry, key, start, result, log)
	return result
}

// upload streams rc and closes it before returning so the file can be
// deleted on every platform
func (d *Dispatcher) upload(ctx context.Context, rc io.ReadCloser, entry domain.FileEntry, payload domain.UploadPayload, log logger.Logger) (string, *checksum.Reader, error) {
	defer rc.Close()

	hasher, err := checksum.NewReader(rc, checksum.SHA256)
	if err != nil {
		return "", nil, err
	}

	reporter := progress.NewCallbackReporter(func(u progress.Update) {
		if u.Type == progress.UpdateProgress {
			log.Debug("upload progress",
				"sent", progress.FormatBytes(u.Bytes),
				"total", progress.FormatBytes(u.Total),
				"speed", progress.FormatSpeed(u.BytesPerSecond))
		}
	}).WithInterval(progressInterval)
	reporter.Start(entry.Name, entry.Size)

	log.Info("uploading", "size", entry.Size, "destination", d.dest.Name())

	var body io.Reader = progress.NewProgressReader(hasher, reporter)
	remoteID, err := d.dest.Upload(ctx, payload, body)
	if err != nil {
		reporter.Error(err)
		return "", hasher, err
	}
	reporter.Complete()
	return remoteID, hasher, nil
}

func (d *Dispatcher) succeeded(ctx context.Context, entry domain.FileEntry, result *domain.UploadResult, log logger.Logger) {
	d.retries.clear(entry.Name)

	if d.config.DeleteAfterUpload {
		if d.changedSince(ctx, entry) {
			// the new version is newer than SeenMap and goes out on a later tick
			log.Warn("file changed during upload, not deleting")
		} else if err := d.source.Delete(ctx, entry.Name); err != nil {
			// SeenMap keeps the timestamp so the file is not sent twice
			metrics.RecordDeleteFailure()
			log.Warn("uploaded but could not delete",
				"error", fmt.Errorf("%w: %w", domain.ErrDelete, err))
		} else {
			result.Deleted = true
			d.queue.Forget(entry.Name)
		}
	}

	log.Info("upload complete",
		"remote_id", result.RemoteID,
		"deleted", result.Deleted,
		"duration", result.Duration.Round(time.Millisecond))

	d.publish(Event{Kind: EventFileUploaded, Filename: entry.Name, Result: *result})
}

func (d *Dispatcher) failed(entry domain.FileEntry, result domain.UploadResult, log logger.Logger) {
	if wait, ok := d.retries.failed(entry.Name, entry.LastModified, d.now()); ok {
		log.Warn("upload failed, will retry", "error", result.Err, "retry_in", wait)
	} else {
		log.Error("upload failed", "error", result.Err)
	}

	d.publish(Event{Kind: EventUploadFailed, Filename: entry.Name, Result: result})
}

// changedSince reports whether the file on disk is no longer the version
// that was uploaded. A failed stat is left for Delete to report.
func (d *Dispatcher) changedSince(ctx context.Context, entry domain.FileEntry) bool {
	info, err := d.source.Stat(ctx, entry.Name)
	if err != nil {
		return false
	}
	return info.ModTime.UnixMilli() != entry.LastModified
}

// RetryDue reports whether a previously failed entry should be sent again
// even though its timestamp has not changed
func (d *Dispatcher) RetryDue(entry domain.FileEntry, now time.Time) bool {
	return d.retries.due(entry.Name, entry.LastModified, now)
}

func (d *Dispatcher) record(entry domain.FileEntry, key string, start time.Time, result domain.UploadResult, log logger.Logger) {
	if d.history == nil {
		return
	}

	rec := state.UploadRecord{
		Filename:     entry.Name,
		UploadKey:    key,
		Destination:  d.dest.Name(),
		RemoteID:     result.RemoteID,
		Status:       state.StatusSuccess,
		Size:         entry.Size,
		Checksum:     result.Checksum,
		Deleted:      result.Deleted,
		LastModified: entry.LastModified,
		StartTime:    start,
		Duration:     result.Duration,
	}
	if result.Err != nil {
		rec.Status = state.StatusFailed
		rec.Error = result.Err.Error()
	}

	if err := d.history.SaveUpload(rec); err != nil {
		log.Warn("failed to record upload history", "error", err)
	}
}

func (d *Dispatcher) publish(e Event) {
	if d.bus != nil {
		d.bus.Publish(e)
	}
}

// contentType guesses the MIME type from the extension
func contentType(name string) string {
	if t := mime.TypeByExtension(filepath.Ext(name)); t != "" {
		return t
	}
	return "application/octet-stream"
}
