// Package config loads the report configuration from a JSON or YAML file,
// applies environment overrides, and validates the result.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"course-report/internal/model"
	"course-report/pkg/utils"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Report types that can be listed under report.output.
const (
	ReportCourses     = "courses"
	ReportDepartments = "departments"
	ReportDivisions   = "divisions"
	ReportSubaccounts = "subaccounts"
	ReportInstitution = "institution"
)

// DefaultPath is used when neither --config nor COURSE_REPORT_CONFIG is set.
const DefaultPath = "config.json"

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config defines the report run configuration.
type Config struct {
	Canvas CanvasConfig `json:"canvas" yaml:"canvas"`
	Report ReportConfig `json:"report" yaml:"report"`
	Log    LogConfig    `json:"log" yaml:"log"`
}

// CanvasConfig describes the upstream API.
type CanvasConfig struct {
	Instance            string `json:"instance" yaml:"instance" validate:"required,url"`
	Account             string `json:"account" yaml:"account" validate:"required"`
	Token               string `json:"token" yaml:"token" validate:"required"`
	PerPage             int    `json:"perPage" yaml:"perPage" validate:"min=1,max=100"`
	RequestInterval     int    `json:"requestInterval" yaml:"requestInterval" validate:"min=0"` // milliseconds between detail requests
	SubaccountRecursion bool   `json:"subaccountRecursion" yaml:"subaccountRecursion"`
	Timeout             string `json:"timeout" yaml:"timeout"` // optional whole-run deadline, e.g. "6h"; empty means none
	MaxInFlight         int    `json:"maxInFlight" yaml:"maxInFlight" validate:"min=1"`
}

// ReportConfig describes which metrics to compute and where reports go.
type ReportConfig struct {
	Options       []string `json:"options" yaml:"options" validate:"dive,oneof=published homepage syllabus enrollment"`
	Tabs          []string `json:"tabs" yaml:"tabs" validate:"dive,required"`
	PctPrecision  int      `json:"pctPrecision" yaml:"pctPrecision" validate:"min=1,max=21"`
	EnrollmentMin int      `json:"enrollmentMin" yaml:"enrollmentMin" validate:"min=0"`
	Output        []string `json:"output" yaml:"output" validate:"min=1,dive,oneof=courses departments divisions subaccounts institution"`
	Dir           string   `json:"dir" yaml:"dir" validate:"required"`
	Datestamp     bool     `json:"datestamp" yaml:"datestamp"`
	Departments   string   `json:"departments" yaml:"departments"`
	AccountCache  string   `json:"accountCache" yaml:"accountCache" validate:"required"`
	MetricsFile   string   `json:"metricsFile" yaml:"metricsFile"`
}

// LogConfig sets the slog level.
type LogConfig struct {
	Level string `json:"level" yaml:"level" validate:"omitempty,oneof=debug info warn error"`
}

// Default returns a Config holding the default values.
func Default() Config {
	return Config{
		Canvas: CanvasConfig{
			PerPage:         100,
			RequestInterval: 250,
			MaxInFlight:     8,
		},
		Report: ReportConfig{
			Options:      []string{model.OptionPublished, model.OptionHomepage, model.OptionSyllabus, model.OptionEnrollment},
			PctPrecision: 3,
			Output:       []string{ReportCourses, ReportDepartments, ReportDivisions},
			Dir:          "reports",
			AccountCache: ".cache/accounts.json",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from path (or COURSE_REPORT_CONFIG, or config.json),
// a .env file when one exists, and environment variables.
func Load(path string) (Config, error) {
	// A missing .env is the normal case.
	_ = godotenv.Load()

	cfg := Default()

	if path == "" {
		path = os.Getenv("COURSE_REPORT_CONFIG")
	}
	if path == "" {
		path = DefaultPath
	}
	if err := loadFromFile(path, &cfg); err != nil {
		return Config{}, err
	}

	if v := os.Getenv("CANVAS_TOKEN"); v != "" {
		cfg.Canvas.Token = v
	}
	if v := os.Getenv("CANVAS_INSTANCE"); v != "" {
		cfg.Canvas.Instance = v
	}
	if v := os.Getenv("CANVAS_ACCOUNT"); v != "" {
		cfg.Canvas.Account = v
	}
	if v := os.Getenv("COURSE_REPORT_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}

	cfg.Canvas.Instance = strings.TrimRight(strings.TrimSpace(cfg.Canvas.Instance), "/")
	return cfg, nil
}

// loadFromFile decodes a .json file with encoding/json and anything else as YAML.
func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

// Validate checks field constraints and the cross-field rules the rollup
// engine depends on.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	if _, err := c.Metrics(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	if c.Report.EnrollmentMin > 0 && c.WantsEligibilityReports() && !c.HasOption(model.OptionEnrollment) {
		return fmt.Errorf("%w: report.enrollmentMin requires %q in report.options", ErrInvalid, model.OptionEnrollment)
	}
	return nil
}

// Metrics returns the ordered metric specs for the configured options and tabs.
func (c Config) Metrics() ([]model.MetricSpec, error) {
	return model.BuildMetricSpecs(c.Report.Options, c.Report.Tabs)
}

// HasOption reports whether a report option is configured.
func (c Config) HasOption(name string) bool {
	for _, opt := range c.Report.Options {
		if opt == name {
			return true
		}
	}
	return false
}

// WantsReport reports whether a report type is listed in report.output.
func (c Config) WantsReport(reportType string) bool {
	for _, out := range c.Report.Output {
		if out == reportType {
			return true
		}
	}
	return false
}

// WantsEligibilityReports reports whether any id-keyed rollup is requested.
func (c Config) WantsEligibilityReports() bool {
	return c.WantsReport(ReportSubaccounts) || c.WantsReport(ReportInstitution)
}

// RequestInterval is the spacing between per-course detail requests.
func (c Config) RequestInterval() time.Duration {
	return utils.Milliseconds(c.Canvas.RequestInterval)
}

// RunTimeout is the upper bound for one run. 0 means the run has no deadline.
func (c Config) RunTimeout() time.Duration {
	return utils.ParseDuration(c.Canvas.Timeout, 0)
}
