package pipeline

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"course-report/internal/model"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

var detailBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10}

// RunTracker collects stage timings, anomalies and export results of one run
// and mirrors them into a per-run Prometheus registry.
type RunTracker struct {
	RunID string

	logger   *slog.Logger
	mu       sync.Mutex
	summary  model.RunSummary
	registry *prometheus.Registry

	courses        prometheus.Gauge
	detailResults  *prometheus.CounterVec
	detailDuration prometheus.Histogram
	anomalies      *prometheus.CounterVec
	throttled      prometheus.Counter
	stageDuration  *prometheus.GaugeVec
	reportRows     *prometheus.GaugeVec
}

// NewRunTracker starts tracking a run for term. The returned tracker's logger
// carries the run id on every record.
func NewRunTracker(term string, logger *slog.Logger) *RunTracker {
	if logger == nil {
		logger = slog.Default()
	}
	runID := uuid.New().String()

	t := &RunTracker{
		RunID:    runID,
		logger:   logger.With("run_id", runID, "term", term),
		registry: prometheus.NewRegistry(),
		summary: model.RunSummary{
			RunID:        runID,
			Term:         term,
			StartTime:    time.Now(),
			Anomalies:    make([]model.Anomaly, 0),
			StageMetrics: make(map[string]model.StageMetrics),
		},
	}
	t.initMetrics()
	return t
}

func (t *RunTracker) initMetrics() {
	t.courses = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "course_report",
		Name:      "courses",
		Help:      "Courses listed for the term",
	})
	t.detailResults = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "course_report",
		Name:      "detail_requests_total",
		Help:      "Per-course detail lookups by outcome",
	}, []string{"outcome"})
	t.detailDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "course_report",
		Name:      "detail_request_duration_seconds",
		Help:      "Latency distribution of per-course detail lookups",
		Buckets:   detailBuckets,
	})
	t.anomalies = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "course_report",
		Name:      "anomalies_total",
		Help:      "Data anomalies that did not abort the run",
	}, []string{"kind"})
	t.throttled = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "course_report",
		Name:      "throttled_responses_total",
		Help:      "Rate-limited responses received from Canvas",
	})
	t.stageDuration = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "course_report",
		Name:      "stage_duration_seconds",
		Help:      "Wall time spent per run stage",
	}, []string{"stage"})
	t.reportRows = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "course_report",
		Name:      "report_rows",
		Help:      "Rows written per report type",
	}, []string{"report"})

	t.registry.MustRegister(t.courses, t.detailResults, t.detailDuration, t.anomalies, t.throttled, t.stageDuration, t.reportRows)
}

// Logger returns the run-scoped logger.
func (t *RunTracker) Logger() *slog.Logger {
	return t.logger
}

// Registry exposes the run's metrics.
func (t *RunTracker) Registry() *prometheus.Registry {
	return t.registry
}

// StartStage marks the start of a stage
func (t *RunTracker) StartStage(stage string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.summary.StageMetrics[stage] = model.StageMetrics{
		StageName: stage,
		StartTime: time.Now(),
	}
	t.logger.Debug("stage started", "stage", stage)
}

// EndStage marks the end of a stage
func (t *RunTracker) EndStage(stage string, recordsProcessed int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	sm, ok := t.summary.StageMetrics[stage]
	if !ok {
		sm = model.StageMetrics{StageName: stage, StartTime: time.Now()}
	}
	sm.EndTime = time.Now()
	sm.Duration = sm.EndTime.Sub(sm.StartTime)
	sm.RecordsProcessed = recordsProcessed
	t.summary.StageMetrics[stage] = sm

	t.stageDuration.WithLabelValues(stage).Set(sm.Duration.Seconds())
	t.logger.Debug("stage completed", "stage", stage, "records", recordsProcessed, "duration", sm.Duration)
}

// SetCourses records how many courses the term listed.
func (t *RunTracker) SetCourses(n int) {
	t.mu.Lock()
	t.summary.Courses = n
	t.mu.Unlock()
	t.courses.Set(float64(n))
}

// RecordDetail records the outcome and latency of one detail lookup.
func (t *RunTracker) RecordDetail(ok bool, took time.Duration) {
	outcome := "ok"
	if ok {
		t.mu.Lock()
		t.summary.DetailsOK++
		t.mu.Unlock()
	} else {
		outcome = "anomaly"
	}
	t.detailResults.WithLabelValues(outcome).Inc()
	t.detailDuration.Observe(took.Seconds())
}

// RecordThrottle counts a rate-limited response.
func (t *RunTracker) RecordThrottle(remaining string) {
	t.throttled.Inc()
	t.logger.Debug("throttled", "rate_limit_remaining", remaining)
}

// RecordAnomaly stores a data-level problem and logs it.
func (t *RunTracker) RecordAnomaly(a model.Anomaly) {
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now()
	}

	t.mu.Lock()
	t.summary.Anomalies = append(t.summary.Anomalies, a)
	if sm, ok := t.summary.StageMetrics[a.Stage]; ok {
		sm.ErrorCount++
		t.summary.StageMetrics[a.Stage] = sm
	}
	t.mu.Unlock()

	t.anomalies.WithLabelValues(a.Kind).Inc()
	t.logger.Warn("anomaly", "stage", a.Stage, "kind", a.Kind, "course_id", a.CourseID, "account_id", a.AccountID, "message", a.Message)
}

// RecordExport stores the result of writing one report.
func (t *RunTracker) RecordExport(res model.ExportResult) {
	t.mu.Lock()
	t.summary.Exports = append(t.summary.Exports, res)
	t.mu.Unlock()

	if res.Success {
		t.reportRows.WithLabelValues(res.Type).Set(float64(res.RecordCount))
	}
}

// AnomalyCount returns the number of anomalies of kind, or of all kinds when kind is "".
func (t *RunTracker) AnomalyCount(kind string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	if kind == "" {
		return len(t.summary.Anomalies)
	}
	n := 0
	for _, a := range t.summary.Anomalies {
		if a.Kind == kind {
			n++
		}
	}
	return n
}

// Complete stamps the end time and returns the final summary.
func (t *RunTracker) Complete() model.RunSummary {
	t.mu.Lock()
	t.summary.EndTime = time.Now()
	t.mu.Unlock()
	return t.Summary()
}

// Summary returns a copy of the current run summary.
func (t *RunTracker) Summary() model.RunSummary {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := t.summary
	out.Anomalies = append([]model.Anomaly(nil), t.summary.Anomalies...)
	out.Exports = append([]model.ExportResult(nil), t.summary.Exports...)
	out.StageMetrics = make(map[string]model.StageMetrics, len(t.summary.StageMetrics))
	for k, v := range t.summary.StageMetrics {
		out.StageMetrics[k] = v
	}
	return out
}

// WriteMetrics writes the registry in the node-exporter textfile format.
func (t *RunTracker) WriteMetrics(path string) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, t.registry); err != nil {
		return fmt.Errorf("write metrics file: %w", err)
	}
	return nil
}
