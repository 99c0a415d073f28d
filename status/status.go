// Package status tracks the progress of a batch run and serves it over HTTP.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// keep this many recent failures for debugging
const maxRecentFailed = 10

// Tracker tracks the files of a batch run. All methods are safe for concurrent
// use and a nil *Tracker ignores every call.
type Tracker struct {
	startTime    time.Time
	totalFiles   uint32
	completed    uint32
	failed       uint32
	records      uint64
	active       sync.Map // map[string]time.Time - files being processed
	activeCount  uint32
	mu           sync.RWMutex
	recentFailed []string

	registry  *prometheus.Registry
	files     *prometheus.CounterVec
	parsed    prometheus.Counter
	inFlight  prometheus.Gauge
	durations prometheus.Histogram
}

// StatusResponse represents the JSON response for status endpoint
type StatusResponse struct {
	StartTime    time.Time `json:"start_time"`
	Runtime      string    `json:"runtime"`
	TotalFiles   uint32    `json:"total_files"`
	Completed    uint32    `json:"completed"`
	Failed       uint32    `json:"failed"`
	Active       uint32    `json:"active"`
	Remaining    uint32    `json:"remaining"`
	Records      uint64    `json:"records"`
	SuccessRate  float64   `json:"success_rate"`
	FileRate     float64   `json:"files_per_minute"`
	RecentFailed []string  `json:"recent_failed,omitempty"`
}

// HealthResponse represents the JSON response for health endpoint
type HealthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// NewTracker creates a new tracker with its own metrics registry.
func NewTracker() *Tracker {
	t := &Tracker{
		startTime:    time.Now(),
		recentFailed: make([]string, 0),
		registry:     prometheus.NewRegistry(),
		files: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zonediff",
			Name:      "files_total",
			Help:      "Number of zone files processed, by result.",
		}, []string{"result"}),
		parsed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "zonediff",
			Name:      "records_parsed_total",
			Help:      "Number of distinct records parsed.",
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "zonediff",
			Name:      "files_active",
			Help:      "Number of zone files being processed.",
		}),
		durations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "zonediff",
			Name:      "file_duration_seconds",
			Help:      "Time spent processing one zone file.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		}),
	}
	t.registry.MustRegister(t.files, t.parsed, t.inFlight, t.durations)
	return t
}

// AddFiles increments the total file count as files are discovered
func (t *Tracker) AddFiles(n int) {
	if t == nil {
		return
	}
	atomic.AddUint32(&t.totalFiles, uint32(n))
}

// Start marks a file as being processed
func (t *Tracker) Start(file string) {
	if t == nil {
		return
	}
	if _, loaded := t.active.LoadOrStore(file, time.Now()); !loaded {
		atomic.AddUint32(&t.activeCount, 1)
		t.inFlight.Inc()
	}
}

// finish removes file from the active set and reports whether it was active
func (t *Tracker) finish(file string) bool {
	v, exists := t.active.LoadAndDelete(file)
	if !exists {
		return false
	}
	atomic.AddUint32(&t.activeCount, ^uint32(0)) // decrement
	t.inFlight.Dec()
	if started, ok := v.(time.Time); ok {
		t.durations.Observe(time.Since(started).Seconds())
	}
	return true
}

// Complete marks a file as done after records distinct records were read
func (t *Tracker) Complete(file string, records int) {
	if t == nil {
		return
	}
	// Only process if the file is still active (avoid double-counting)
	if t.finish(file) {
		atomic.AddUint32(&t.completed, 1)
		atomic.AddUint64(&t.records, uint64(records))
		t.files.WithLabelValues("ok").Inc()
		t.parsed.Add(float64(records))
	}
}

// Fail marks a file as failed
func (t *Tracker) Fail(file string, reason string) {
	if t == nil {
		return
	}
	if !t.finish(file) {
		return
	}
	atomic.AddUint32(&t.failed, 1)
	t.files.WithLabelValues("failed").Inc()

	t.mu.Lock()
	failureEntry := file
	if reason != "" {
		failureEntry += ": " + reason
	}
	t.recentFailed = append(t.recentFailed, failureEntry)
	if len(t.recentFailed) > maxRecentFailed {
		t.recentFailed = t.recentFailed[1:]
	}
	t.mu.Unlock()
}

// GetStatus returns current status information
func (t *Tracker) GetStatus() StatusResponse {
	t.mu.RLock()
	recentFailed := make([]string, len(t.recentFailed))
	copy(recentFailed, t.recentFailed)
	t.mu.RUnlock()

	completed := atomic.LoadUint32(&t.completed)
	failed := atomic.LoadUint32(&t.failed)
	active := atomic.LoadUint32(&t.activeCount)
	totalFiles := atomic.LoadUint32(&t.totalFiles)

	runtime := time.Since(t.startTime)
	remaining := uint32(0)
	if totalFiles > completed+failed {
		remaining = totalFiles - completed - failed
	}

	var successRate float64
	if completed+failed > 0 {
		successRate = math.Round(float64(completed)/float64(completed+failed)*100*100) / 100
	}

	var fileRate float64
	if runtime.Minutes() > 0 {
		fileRate = math.Round(float64(completed)/runtime.Minutes()*100) / 100
	}

	return StatusResponse{
		StartTime:    t.startTime,
		Runtime:      runtime.Round(time.Second).String(),
		TotalFiles:   totalFiles,
		Completed:    completed,
		Failed:       failed,
		Active:       active,
		Remaining:    remaining,
		Records:      atomic.LoadUint64(&t.records),
		SuccessRate:  successRate,
		FileRate:     fileRate,
		RecentFailed: recentFailed,
	}
}

// HTTP Handlers

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

func (t *Tracker) statusHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, t.GetStatus())
}

func (t *Tracker) healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, HealthResponse{
		Status:  "ok",
		Message: "zonediff is running",
	})
}

func (t *Tracker) progressHandler(w http.ResponseWriter, _ *http.Request) {
	status := t.GetStatus()

	// Simplified progress response
	attempted := status.Completed + status.Failed
	var percentage float64
	if status.TotalFiles > 0 {
		percentage = math.Round(float64(attempted)/float64(status.TotalFiles)*100*100) / 100
	}

	writeJSON(w, map[string]any{
		"completed":  status.Completed,
		"failed":     status.Failed,
		"attempted":  attempted,
		"total":      status.TotalFiles,
		"remaining":  status.Remaining,
		"active":     status.Active,
		"records":    status.Records,
		"percentage": percentage,
	})
}

// Handler returns the status endpoints: /status, /progress, /health and the
// Prometheus /metrics, which also carries the default registry.
func (t *Tracker) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", t.statusHandler)
	mux.HandleFunc("/health", t.healthHandler)
	mux.HandleFunc("/progress", t.progressHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(
		prometheus.Gatherers{t.registry, prometheus.DefaultGatherer},
		promhttp.HandlerOpts{},
	))
	return mux
}

// Serve runs the status server on port until ctx is done.
func (t *Tracker) Serve(ctx context.Context, port int) {
	server := &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(port)),
		Handler:           t.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	go func() {
		log.Info().Int("port", port).Strs("endpoints", []string{"/status", "/progress", "/health", "/metrics"}).
			Msg("status server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("status server error")
		}
	}()
}
