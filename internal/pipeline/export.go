package pipeline

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"course-report/internal/config"
	"course-report/internal/model"
	"course-report/pkg/utils"
)

// ------------------- Ordering -------------------

// SortCourses returns the records ordered by owning org-unit label, then division.
func SortCourses(records []model.CourseRecord) []model.CourseRecord {
	out := append([]model.CourseRecord(nil), records...)
	sort.SliceStable(out, func(i, j int) bool {
		if a, b := out[i].OrgLabel(), out[j].OrgLabel(); a != b {
			return a < b
		}
		return out[i].Division < out[j].Division
	})
	return out
}

// SortRollups returns the rows in the order of their report type.
func SortRollups(reportType string, rows []model.RollupRecord) []model.RollupRecord {
	out := append([]model.RollupRecord(nil), rows...)
	var less func(a, b model.RollupRecord) bool

	switch reportType {
	case config.ReportDepartments:
		less = func(a, b model.RollupRecord) bool {
			if a.Key(1).Label != b.Key(1).Label {
				return a.Key(1).Label < b.Key(1).Label
			}
			return a.Key(0).Label < b.Key(0).Label
		}
	case config.ReportDivisions:
		less = func(a, b model.RollupRecord) bool {
			return a.Key(0).Label < b.Key(0).Label
		}
	default:
		less = func(a, b model.RollupRecord) bool {
			if a.Last().Label != b.Last().Label {
				return a.Last().Label < b.Last().Label
			}
			return a.Last().ID < b.Last().ID
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

// ------------------- Formatting -------------------

// ReportFields returns the ordered CSV header of a report type.
func ReportFields(reportType string, metrics []model.MetricSpec) []string {
	var fields []string
	switch reportType {
	case config.ReportCourses:
		fields = []string{"account_id", "term", "id", "division", "program", "course_code", "name"}
	case config.ReportDepartments:
		fields = []string{"term", "division", "program", "course_count"}
	case config.ReportDivisions:
		fields = []string{"term", "division", "course_count"}
	default:
		fields = []string{"term", "account_id", "account_name", "course_count", "course_count_enrollment_min"}
	}

	for _, m := range metrics {
		fields = append(fields, m.Name)
		if reportType != config.ReportCourses && m.HasPercent() {
			fields = append(fields, m.PercentLabel())
		}
	}
	return fields
}

// CourseRow formats one course in ReportFields order.
func CourseRow(rec model.CourseRecord, metrics []model.MetricSpec) ([]string, error) {
	row := []string{
		strconv.FormatInt(rec.AccountID, 10),
		rec.Term,
		strconv.FormatInt(rec.ID, 10),
		rec.Division,
		rec.Program,
		rec.CourseCode,
		rec.Name,
	}
	for _, m := range metrics {
		v, err := rec.Value(m.Name)
		if err != nil {
			return nil, err
		}
		row = append(row, strconv.Itoa(v))
	}
	return row, nil
}

// RollupRow formats one rollup in ReportFields order.
func RollupRow(reportType string, r model.RollupRecord, metrics []model.MetricSpec) ([]string, error) {
	var row []string
	switch reportType {
	case config.ReportDepartments:
		row = []string{r.Term, r.Key(0).Label, r.Key(1).Label, strconv.Itoa(r.Count)}
	case config.ReportDivisions:
		row = []string{r.Term, r.Key(0).Label, strconv.Itoa(r.Count)}
	default:
		last := r.Last()
		row = []string{r.Term, strconv.FormatInt(last.ID, 10), last.Label, strconv.Itoa(r.Count), strconv.Itoa(r.EligibleCount)}
	}

	for _, m := range metrics {
		res, ok := r.Metrics[m.Name]
		if !ok {
			return nil, fmt.Errorf("%s row %v: %w: %s", reportType, r.Keys, model.ErrMissingMetric, m.Name)
		}
		row = append(row, strconv.Itoa(res.Sum))
		if m.HasPercent() {
			row = append(row, res.Percent.String())
		}
	}
	return row, nil
}

// ------------------- Writing -------------------

// WriteCSV writes the header and rows to path and returns the row count.
func WriteCSV(path string, fields []string, rows [][]string) (int, error) {
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(fields); err != nil {
		return 0, fmt.Errorf("failed to write header: %w", err)
	}
	if err := writer.WriteAll(rows); err != nil {
		return 0, fmt.Errorf("failed to write rows: %w", err)
	}
	if err := file.Sync(); err != nil {
		return 0, fmt.Errorf("failed to sync %s: %w", path, err)
	}
	return len(rows), nil
}

// Exporter writes report files for one term.
type Exporter struct {
	Output  *utils.OutputManager
	Term    string
	Metrics []model.MetricSpec
	Tracker *RunTracker
}

// ExportCourses sorts and writes the courses report.
func (e *Exporter) ExportCourses(records []model.CourseRecord) model.ExportResult {
	sorted := SortCourses(records)
	rows := make([][]string, 0, len(sorted))
	for _, rec := range sorted {
		row, err := CourseRow(rec, e.Metrics)
		if err != nil {
			return e.finish(config.ReportCourses, "", 0, err)
		}
		rows = append(rows, row)
	}
	return e.write(config.ReportCourses, rows)
}

// ExportRollups sorts and writes one rollup report.
func (e *Exporter) ExportRollups(reportType string, rollups []model.RollupRecord) model.ExportResult {
	sorted := SortRollups(reportType, rollups)
	rows := make([][]string, 0, len(sorted))
	for _, r := range sorted {
		row, err := RollupRow(reportType, r, e.Metrics)
		if err != nil {
			return e.finish(reportType, "", 0, err)
		}
		rows = append(rows, row)
	}
	return e.write(reportType, rows)
}

func (e *Exporter) write(reportType string, rows [][]string) model.ExportResult {
	if err := e.Output.EnsureOutputDirExists(); err != nil {
		return e.finish(reportType, "", 0, err)
	}
	path := e.Output.ReportPath(reportType, e.Term)
	n, err := WriteCSV(path, ReportFields(reportType, e.Metrics), rows)
	return e.finish(reportType, path, n, err)
}

func (e *Exporter) finish(reportType, path string, n int, err error) model.ExportResult {
	result := model.ExportResult{
		Type:        reportType,
		Path:        path,
		RecordCount: n,
		Success:     err == nil,
		Timestamp:   time.Now(),
	}
	if err != nil {
		result.Error = err.Error()
		fmt.Printf("❌ Export of %s report failed: %v\n", reportType, err)
	} else {
		size, _ := e.Output.GetFileSize(path)
		fmt.Printf("✅ %s report: %d rows written to %s (%d bytes)\n", reportType, n, path, size)
	}
	if e.Tracker != nil {
		e.Tracker.RecordExport(result)
	}
	return result
}
