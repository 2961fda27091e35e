package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMissingMetric is returned when a record lacks a configured metric or tab value.
var ErrMissingMetric = errors.New("missing metric value")

// MetricKind tells how a metric is derived and whether it gets a percent column.
type MetricKind string

const (
	KindFlag  MetricKind = "flag"  // 0/1 per course
	KindCount MetricKind = "count" // raw total, never a percent
	KindTab   MetricKind = "tab"   // 0/1 navigation tab visibility
)

// Known report options.
const (
	OptionPublished  = "published"
	OptionHomepage   = "homepage"
	OptionSyllabus   = "syllabus"
	OptionEnrollment = "enrollment"
)

// MetricSpec is one configured column: a report option or a navigation tab.
type MetricSpec struct {
	Name   string     `json:"name"`   // column label
	Source string     `json:"source"` // option name or tab label as configured
	Kind   MetricKind `json:"kind"`
}

// HasPercent reports whether rollups carry a <name>_pct column for this metric.
func (m MetricSpec) HasPercent() bool {
	return m.Kind != KindCount
}

// PercentLabel is the column name of the metric's percent.
func (m MetricSpec) PercentLabel() string {
	return m.Name + "_pct"
}

// TabLabel turns a tab label like "Course Evaluations" into "course_evaluations".
func TabLabel(tab string) string {
	return strings.Join(strings.Fields(strings.ToLower(tab)), "_")
}

// BuildMetricSpecs builds the ordered metric list: options first, then tabs.
func BuildMetricSpecs(options, tabs []string) ([]MetricSpec, error) {
	specs := make([]MetricSpec, 0, len(options)+len(tabs))
	seen := make(map[string]bool)

	add := func(spec MetricSpec) error {
		if spec.Name == "" {
			return fmt.Errorf("empty metric name for %q", spec.Source)
		}
		if seen[spec.Name] {
			return fmt.Errorf("duplicate metric column %q", spec.Name)
		}
		seen[spec.Name] = true
		specs = append(specs, spec)
		return nil
	}

	for _, opt := range options {
		kind := KindFlag
		switch opt {
		case OptionPublished, OptionHomepage, OptionSyllabus:
		case OptionEnrollment:
			kind = KindCount
		default:
			return nil, fmt.Errorf("unknown report option %q", opt)
		}
		if err := add(MetricSpec{Name: opt, Source: opt, Kind: kind}); err != nil {
			return nil, err
		}
	}
	for _, tab := range tabs {
		if err := add(MetricSpec{Name: TabLabel(tab), Source: tab, Kind: KindTab}); err != nil {
			return nil, err
		}
	}
	return specs, nil
}

// HasMetric reports whether a metric with the given name is configured.
func HasMetric(specs []MetricSpec, name string) bool {
	for _, s := range specs {
		if s.Name == name {
			return true
		}
	}
	return false
}

// CourseRecord is one fetched course after enrichment.
type CourseRecord struct {
	ID              int64          `json:"id"`
	AccountID       int64          `json:"account_id"`
	AccountName     string         `json:"account_name"`
	ParentAccountID int64          `json:"parent_account_id,omitempty"`
	Division        string         `json:"division"`
	Program         string         `json:"program"`
	Name            string         `json:"name"`
	CourseCode      string         `json:"course_code"`
	Term            string         `json:"term"`
	Values          map[string]int `json:"values"`
}

// Value returns the named metric or tab value. A missing key is an error, never 0.
func (c CourseRecord) Value(name string) (int, error) {
	v, ok := c.Values[name]
	if !ok {
		return 0, fmt.Errorf("course %d: %w: %s", c.ID, ErrMissingMetric, name)
	}
	return v, nil
}

// OrgLabel is the owning org-unit label used for ordering course rows.
func (c CourseRecord) OrgLabel() string {
	if c.Program != "" {
		return c.Program
	}
	return c.AccountName
}

// Clone copies the record including its value map.
func (c CourseRecord) Clone() CourseRecord {
	out := c
	out.Values = make(map[string]int, len(c.Values))
	for k, v := range c.Values {
		out.Values[k] = v
	}
	return out
}
