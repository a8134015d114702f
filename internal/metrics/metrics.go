// Package metrics provides Prometheus metrics for the hotfolder watcher.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Ning0612/Hotfolder/internal/logger"
)

var (
	// Upload metrics
	uploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hotfolder_uploads_total",
			Help: "Total number of upload attempts",
		},
		[]string{"destination", "status"},
	)

	uploadBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hotfolder_upload_bytes_total",
			Help: "Total bytes sent to the destination by successful uploads",
		},
		[]string{"destination"},
	)

	uploadDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hotfolder_upload_duration_seconds",
			Help:    "Upload duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"destination"},
	)

	uploadsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hotfolder_uploads_in_flight",
			Help: "Number of uploads currently running",
		},
	)

	deleteFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hotfolder_delete_failures_total",
			Help: "Uploaded files that could not be removed locally",
		},
	)

	// Poll loop metrics
	ticksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hotfolder_ticks_total",
			Help: "Total number of poll ticks",
		},
	)

	filesSeen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hotfolder_files_seen",
			Help: "Candidate files found by the last scan",
		},
	)

	scanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hotfolder_scan_duration_seconds",
			Help:    "Time to enumerate the watched folder",
			Buckets: prometheus.DefBuckets,
		},
	)

	watcherState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hotfolder_watcher_state",
			Help: "1 for the current watcher state, 0 otherwise",
		},
		[]string{"state"},
	)

	permissionChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hotfolder_permission_checks_total",
			Help: "Total permission checks",
		},
		[]string{"result"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordUpload records one finished upload.
func RecordUpload(destination string, bytes int64, duration time.Duration, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	uploadsTotal.WithLabelValues(destination, status).Inc()
	uploadDuration.WithLabelValues(destination).Observe(duration.Seconds())
	if success {
		uploadBytes.WithLabelValues(destination).Add(float64(bytes))
	}
}

// UploadStarted increments the in-flight gauge; call the returned func when done.
func UploadStarted() func() {
	uploadsInFlight.Inc()
	return uploadsInFlight.Dec
}

// RecordDeleteFailure records a file left behind after a successful upload.
func RecordDeleteFailure() {
	deleteFailuresTotal.Inc()
}

// RecordTick records a poll tick and the size of its scan.
func RecordTick(files int, duration time.Duration) {
	ticksTotal.Inc()
	filesSeen.Set(float64(files))
	scanDuration.Observe(duration.Seconds())
}

// SetState marks state as the current watcher state.
func SetState(state string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		watcherState.WithLabelValues(s).Set(v)
	}
}

// RecordPermissionCheck records a permission check result.
func RecordPermissionCheck(allowed bool) {
	result := "allowed"
	if !allowed {
		result = "denied"
	}
	permissionChecksTotal.WithLabelValues(result).Inc()
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Get().Info("metrics server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
