package model

import (
	"strconv"
	"time"

	"course-report/pkg/utils"
)

// GroupValue identifies one level of a rollup: an org-unit label and, for
// id-keyed levels, the account id.
type GroupValue struct {
	ID    int64  `json:"id,omitempty"`
	Label string `json:"label"`
}

// Percent is a ratio rounded to significant figures. The zero value is the
// empty percent emitted when a denominator is 0.
type Percent struct {
	Value     float64 `json:"value"`
	Valid     bool    `json:"valid"`
	Precision int     `json:"precision,omitempty"` // 0 renders Value as a plain number
}

func (p Percent) String() string {
	if !p.Valid {
		return ""
	}
	if p.Precision <= 0 {
		return strconv.FormatFloat(p.Value, 'f', -1, 64)
	}
	return utils.FormatPrecision(p.Value, p.Precision)
}

// MetricResult is the accumulated sum and percent of one metric in one group.
type MetricResult struct {
	Sum     int     `json:"sum"`
	Percent Percent `json:"percent"`
}

// RollupRecord is one aggregated row at some hierarchy level.
type RollupRecord struct {
	Term           string                  `json:"term"`
	Level          string                  `json:"level"`
	Keys           []GroupValue            `json:"keys"`
	Count          int                     `json:"course_count"`
	EligibleCount  int                     `json:"course_count_enrollment_min"`
	HasEligibility bool                    `json:"-"`
	Metrics        map[string]MetricResult `json:"metrics"`
}

// Key returns the i-th group value of the row, or the zero value.
func (r RollupRecord) Key(i int) GroupValue {
	if i < 0 || i >= len(r.Keys) {
		return GroupValue{}
	}
	return r.Keys[i]
}

// Last returns the innermost group value of the row.
func (r RollupRecord) Last() GroupValue {
	return r.Key(len(r.Keys) - 1)
}

// ExportResult represents the result of writing one report file
type ExportResult struct {
	Type        string    `json:"type"` // courses, departments, divisions, subaccounts, institution
	Path        string    `json:"path"`
	RecordCount int       `json:"record_count"`
	Success     bool      `json:"success"`
	Error       string    `json:"error,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}
