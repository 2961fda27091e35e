package model

import (
	"time"
)

// Anomaly kinds recorded during a run.
const (
	AnomalyDetailFetch = "detail_fetch"
	AnomalyBackfill    = "backfill"
	AnomalyUnresolved  = "unresolved_account"
	AnomalyThrottled   = "throttled"
)

// StageMetrics represents metrics for a specific run stage
type StageMetrics struct {
	StageName        string        `json:"stage_name"`
	StartTime        time.Time     `json:"start_time"`
	EndTime          time.Time     `json:"end_time"`
	Duration         time.Duration `json:"duration"`
	RecordsProcessed int64         `json:"records_processed"`
	ErrorCount       int64         `json:"error_count"`
}

// Anomaly is a data-level problem that did not abort the run.
type Anomaly struct {
	Stage     string    `json:"stage"`
	Kind      string    `json:"kind"`
	CourseID  int64     `json:"course_id,omitempty"`
	AccountID int64     `json:"account_id,omitempty"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// RunSummary is the snapshot of a finished run.
type RunSummary struct {
	RunID        string                  `json:"run_id"`
	Term         string                  `json:"term"`
	StartTime    time.Time               `json:"start_time"`
	EndTime      time.Time               `json:"end_time"`
	Courses      int                     `json:"courses"`
	DetailsOK    int                     `json:"details_ok"`
	Anomalies    []Anomaly               `json:"anomalies"`
	StageMetrics map[string]StageMetrics `json:"stage_metrics"`
	Exports      []ExportResult          `json:"exports"`
}
