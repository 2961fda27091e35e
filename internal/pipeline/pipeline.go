// Package pipeline fetches, enriches, rolls up and exports course data for one term.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"time"

	"course-report/internal/canvas"
	"course-report/internal/config"
	"course-report/internal/model"
	"course-report/internal/store"
	"course-report/pkg/utils"
)

// Runner carries the collaborators of a report run.
type Runner struct {
	Config   config.Config
	API      canvas.API
	Tracker  *RunTracker
	Progress io.Writer
	Now      func() time.Time
}

// LevelFor returns the rollup level of a report type. The courses report has none.
func LevelFor(reportType string, h *model.Hierarchy, enrollmentMin int) (LevelSpec, bool) {
	switch reportType {
	case config.ReportDepartments:
		return DepartmentsLevel(), true
	case config.ReportDivisions:
		return DivisionsLevel(), true
	case config.ReportSubaccounts:
		return SubaccountsLevel(enrollmentMin), true
	case config.ReportInstitution:
		return InstitutionLevel(h, enrollmentMin), true
	default:
		return LevelSpec{}, false
	}
}

// ------------------- Pipeline Runner -------------------

// Run produces every configured report for the term code. Nothing is written
// unless every course was fetched and every rollup computed.
func (r *Runner) Run(ctx context.Context, termCode string) (summary model.RunSummary, err error) {
	cfg := r.Config
	tracker := r.Tracker
	if tracker == nil {
		tracker = NewRunTracker(termCode, nil)
	}
	logger := tracker.Logger()
	now := r.Now
	if now == nil {
		now = time.Now
	}

	start := now()
	fmt.Printf("🚀 Starting course report for %s (run %s)\n", termCode, tracker.RunID)

	defer func() {
		summary = tracker.Complete()
		if werr := tracker.WriteMetrics(cfg.Report.MetricsFile); werr != nil {
			logger.Error("metrics not written", "error", werr)
		}
	}()

	metrics, err := cfg.Metrics()
	if err != nil {
		return summary, err
	}

	if timeout := cfg.RunTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	// --- ACCOUNTS ---
	tracker.StartStage("accounts")
	source := &HierarchySource{
		API:       r.API,
		Cache:     store.NewAccountCache(cfg.Report.AccountCache),
		Instance:  cfg.Canvas.Instance,
		Account:   cfg.Canvas.Account,
		Recursive: cfg.Canvas.SubaccountRecursion,
		Logger:    logger,
	}
	hierarchy, err := source.Load(ctx)
	if err != nil {
		return summary, fmt.Errorf("load accounts: %w", err)
	}
	departments, err := store.LoadDepartments(cfg.Report.Departments)
	if err != nil {
		return summary, err
	}
	tracker.EndStage("accounts", int64(hierarchy.Len()))

	// --- TERM ---
	term, err := ResolveTerm(ctx, r.API, termCode)
	if err != nil {
		return summary, err
	}
	logger.Info("term resolved", "term_id", term.ID, "name", term.Name)

	// --- INGESTION ---
	tracker.StartStage("ingest")
	courses, err := ListCourses(ctx, r.API, term)
	if err != nil {
		return summary, fmt.Errorf("list courses: %w", err)
	}
	tracker.SetCourses(len(courses))
	tracker.EndStage("ingest", int64(len(courses)))

	// --- ENRICHMENT ---
	tracker.StartStage("enrich")
	enricher := &Enricher{
		API:         r.API,
		Metrics:     metrics,
		Interval:    cfg.RequestInterval(),
		MaxInFlight: cfg.Canvas.MaxInFlight,
		Tracker:     tracker,
		Progress:    r.Progress,
	}
	records, err := enricher.EnrichCourses(ctx, courses)
	if err != nil {
		return summary, err
	}
	tracker.EndStage("enrich", int64(len(records)))

	// --- TRANSFORMATION ---
	tracker.StartStage("transform")
	labeler := &Labeler{Hierarchy: hierarchy, Departments: departments, Tracker: tracker}
	records = labeler.TransformRecords(records, termCode)
	tracker.EndStage("transform", int64(len(records)))

	// --- VALIDATION ---
	tracker.StartStage("validate")
	Backfill(records, metrics, tracker)
	if err := ValidateRecords(records, metrics); err != nil {
		return summary, err
	}
	tracker.EndStage("validate", int64(len(records)))

	// --- AGGREGATION ---
	tracker.StartStage("aggregate")
	agg := NewAggregator(termCode, metrics, cfg.Report.PctPrecision)
	rollups := make(map[string][]model.RollupRecord)
	groups := 0
	for _, reportType := range cfg.Report.Output {
		level, ok := LevelFor(reportType, hierarchy, cfg.Report.EnrollmentMin)
		if !ok {
			continue
		}
		rows, err := agg.Group(records, level)
		if err != nil {
			return summary, fmt.Errorf("aggregate %s: %w", reportType, err)
		}
		fmt.Printf("📊 %s: %d groups\n", reportType, len(rows))
		rollups[reportType] = rows
		groups += len(rows)
	}
	tracker.EndStage("aggregate", int64(groups))

	// --- EXPORT ---
	tracker.StartStage("export")
	stamp := time.Time{}
	if cfg.Report.Datestamp {
		stamp = start
	}
	exporter := &Exporter{
		Output:  utils.NewOutputManager(cfg.Report.Dir, stamp),
		Term:    termCode,
		Metrics: metrics,
		Tracker: tracker,
	}
	written := 0
	for _, reportType := range cfg.Report.Output {
		var res model.ExportResult
		if reportType == config.ReportCourses {
			res = exporter.ExportCourses(records)
		} else {
			res = exporter.ExportRollups(reportType, rollups[reportType])
		}
		if !res.Success {
			return summary, fmt.Errorf("write %s report: %s", reportType, res.Error)
		}
		written += res.RecordCount
	}
	tracker.EndStage("export", int64(written))

	fmt.Printf("🏁 Course report for %s completed in %v (%d anomalies)\n", termCode, now().Sub(start).Round(time.Millisecond), tracker.AnomalyCount(""))
	return summary, nil
}
