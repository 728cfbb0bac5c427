package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

var (
	optimizeStartedTotal   atomic.Uint64
	optimizeConvergedTotal atomic.Uint64
	optimizeExhaustedTotal atomic.Uint64
	optimizeFailedTotal    atomic.Uint64
	rewriteTotal           atomic.Uint64
	rewriteFailedTotal     atomic.Uint64
	llmCallsTotal          atomic.Uint64
	llmRetriesTotal        atomic.Uint64
	jobsReceivedTotal      atomic.Uint64
	jobsCompletedTotal     atomic.Uint64
	jobsFailedTotal        atomic.Uint64
	jobsDeletedTotal       atomic.Uint64

	optimizeDuration   = newHistogram([]float64{1000, 5000, 15000, 30000, 60000, 120000, 300000, 600000})
	optimizeIterations = newHistogram([]float64{1, 2, 3, 4, 5, 6})
)

// IncOptimizeStarted increments the optimization runs started counter.
func IncOptimizeStarted() {
	optimizeStartedTotal.Add(1)
}

// IncOptimizeConverged counts runs that reached the target score.
func IncOptimizeConverged() {
	optimizeConvergedTotal.Add(1)
}

// IncOptimizeExhausted counts runs that used the whole iteration budget.
func IncOptimizeExhausted() {
	optimizeExhaustedTotal.Add(1)
}

// IncOptimizeFailed increments the failed runs counter.
func IncOptimizeFailed() {
	optimizeFailedTotal.Add(1)
}

// IncRewrite counts section rewrites; failed marks ones that returned an error.
func IncRewrite(failed bool) {
	rewriteTotal.Add(1)
	if failed {
		rewriteFailedTotal.Add(1)
	}
}

// IncLLMCall counts generation calls made through the provider boundary.
func IncLLMCall() {
	llmCallsTotal.Add(1)
}

// IncLLMRetry counts generation calls retried after a transient failure.
func IncLLMRetry() {
	llmRetriesTotal.Add(1)
}

// IncJobsReceived counts queue messages picked up by the worker.
func IncJobsReceived() {
	jobsReceivedTotal.Add(1)
}

// IncJobsCompleted counts queued runs that finished and were deleted.
func IncJobsCompleted() {
	jobsCompletedTotal.Add(1)
}

// IncJobsFailed counts queued runs that failed.
func IncJobsFailed() {
	jobsFailedTotal.Add(1)
}

// IncJobsDeletedUnrecoverable counts messages dropped without a successful run.
func IncJobsDeletedUnrecoverable() {
	jobsDeletedTotal.Add(1)
}

// ObserveOptimizeDurationMs records an optimization run duration in milliseconds.
func ObserveOptimizeDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	optimizeDuration.Observe(value)
}

// ObserveOptimizeIterations records how many write/review rounds a run used.
func ObserveOptimizeIterations(n int) {
	if n < 0 {
		n = 0
	}
	optimizeIterations.Observe(float64(n))
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/plain; version=0.0.4")
		c.String(http.StatusOK, Render())
	}
}

// Render renders metrics in Prometheus text format.
func Render() string {
	var buf bytes.Buffer
	writeCounter(&buf, "optimize_started_total", "Total optimization runs started", optimizeStartedTotal.Load())
	writeCounter(&buf, "optimize_converged_total", "Total optimization runs that reached the target score", optimizeConvergedTotal.Load())
	writeCounter(&buf, "optimize_exhausted_total", "Total optimization runs that used every iteration", optimizeExhaustedTotal.Load())
	writeCounter(&buf, "optimize_failed_total", "Total optimization runs failed", optimizeFailedTotal.Load())
	writeCounter(&buf, "rewrite_section_total", "Total section rewrites", rewriteTotal.Load())
	writeCounter(&buf, "rewrite_section_failed_total", "Total section rewrites failed", rewriteFailedTotal.Load())
	writeCounter(&buf, "llm_calls_total", "Total generation calls", llmCallsTotal.Load())
	writeCounter(&buf, "llm_retries_total", "Total generation calls retried", llmRetriesTotal.Load())
	writeCounter(&buf, "optimize_jobs_received_total", "Total optimization jobs received from the queue", jobsReceivedTotal.Load())
	writeCounter(&buf, "optimize_jobs_completed_total", "Total queued optimization jobs completed", jobsCompletedTotal.Load())
	writeCounter(&buf, "optimize_jobs_failed_total", "Total queued optimization jobs failed", jobsFailedTotal.Load())
	writeCounter(&buf, "optimize_jobs_deleted_unrecoverable_total", "Total queue messages deleted without a successful run", jobsDeletedTotal.Load())
	writeHistogram(&buf, "optimize_duration_ms", "Optimization run duration in milliseconds", optimizeDuration.Snapshot())
	writeHistogram(&buf, "optimize_iterations", "Write and review rounds per optimization run", optimizeIterations.Snapshot())
	return buf.String()
}

type histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type histogramSnapshot struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func newHistogram(buckets []float64) *histogram {
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

func (h *histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
		}
	}
}

func (h *histogram) Snapshot() histogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := histogramSnapshot{
		buckets: append([]float64(nil), h.buckets...),
		counts:  append([]uint64(nil), h.counts...),
		sum:     h.sum,
		count:   h.count,
	}
	return out
}

func writeCounter(buf *bytes.Buffer, name, help string, value uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	fmt.Fprintf(buf, "%s %d\n", name, value)
}

func writeHistogram(buf *bytes.Buffer, name, help string, snap histogramSnapshot) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s histogram\n", name)
	var cumulative uint64
	for i, bound := range snap.buckets {
		cumulative += snap.counts[i]
		fmt.Fprintf(buf, "%s_bucket{le=\"%s\"} %d\n", name, formatFloat(bound), cumulative)
	}
	fmt.Fprintf(buf, "%s_bucket{le=\"+Inf\"} %d\n", name, snap.count)
	fmt.Fprintf(buf, "%s_sum %s\n", name, formatFloat(snap.sum))
	fmt.Fprintf(buf, "%s_count %d\n", name, snap.count)
}

func formatFloat(value float64) string {
	if value == float64(int64(value)) {
		return strconv.FormatInt(int64(value), 10)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}
