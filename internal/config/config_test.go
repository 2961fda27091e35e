package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadJSON(t *testing.T) {
	t.Setenv("CANVAS_TOKEN", "")
	path := writeFile(t, "config.json", `{
	"canvas": {
		"instance": "https://canvas.example.edu/",
		"account": "1",
		"token": "abc",
		"requestInterval": 100
	},
	"report": {
		"options": ["published", "enrollment"],
		"tabs": ["Course Evaluations"],
		"pctPrecision": 4,
		"enrollmentMin": 3,
		"output": ["courses", "subaccounts"],
		"datestamp": true
	}
}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "https://canvas.example.edu", cfg.Canvas.Instance)
	assert.Equal(t, 100, cfg.Canvas.PerPage)
	assert.Equal(t, 100*time.Millisecond, cfg.RequestInterval())
	assert.Zero(t, cfg.RunTimeout(), "no deadline unless configured")
	assert.Equal(t, []string{"published", "enrollment"}, cfg.Report.Options)
	assert.Equal(t, 4, cfg.Report.PctPrecision)
	assert.True(t, cfg.Report.Datestamp)
	assert.Equal(t, "reports", cfg.Report.Dir)
	assert.True(t, cfg.WantsReport(ReportSubaccounts))
	assert.False(t, cfg.WantsReport(ReportDivisions))
	assert.True(t, cfg.WantsEligibilityReports())

	metrics, err := cfg.Metrics()
	require.NoError(t, err)
	require.Len(t, metrics, 3)
	assert.Equal(t, "course_evaluations", metrics[2].Name)
}

func TestLoadYAMLWithEnvOverrides(t *testing.T) {
	t.Setenv("CANVAS_TOKEN", "from-env")
	t.Setenv("CANVAS_ACCOUNT", "7")
	path := writeFile(t, "config.yaml", `
canvas:
  instance: https://canvas.example.edu
  account: "1"
  token: from-file
report:
  tabs: [Files]
log:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "from-env", cfg.Canvas.Token)
	assert.Equal(t, "7", cfg.Canvas.Account)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Len(t, cfg.Report.Options, 4)
}

func TestRunTimeout(t *testing.T) {
	cfg := Default()
	assert.Empty(t, cfg.Canvas.Timeout)
	assert.Zero(t, cfg.RunTimeout())

	cfg.Canvas.Timeout = "6h"
	assert.Equal(t, 6*time.Hour, cfg.RunTimeout())

	cfg.Canvas.Timeout = "later"
	assert.Zero(t, cfg.RunTimeout())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := Default()
		cfg.Canvas.Instance = "https://canvas.example.edu"
		cfg.Canvas.Account = "1"
		cfg.Canvas.Token = "abc"
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{name: "defaults", mutate: func(*Config) {}, ok: true},
		{name: "missing token", mutate: func(c *Config) { c.Canvas.Token = "" }},
		{name: "unknown option", mutate: func(c *Config) { c.Report.Options = []string{"published", "grades"} }},
		{name: "tab collides with option", mutate: func(c *Config) { c.Report.Tabs = []string{"Syllabus"} }},
		{name: "duplicate tab", mutate: func(c *Config) { c.Report.Tabs = []string{"Files", "files"} }},
		{name: "precision out of range", mutate: func(c *Config) { c.Report.PctPrecision = 0 }},
		{name: "unknown output", mutate: func(c *Config) { c.Report.Output = []string{"programs"} }},
		{name: "per page too large", mutate: func(c *Config) { c.Canvas.PerPage = 500 }},
		{
			name: "enrollment min without enrollment",
			mutate: func(c *Config) {
				c.Report.Options = []string{"published"}
				c.Report.EnrollmentMin = 5
				c.Report.Output = []string{ReportSubaccounts}
			},
		},
		{
			name: "enrollment min ignored without eligibility reports",
			mutate: func(c *Config) {
				c.Report.Options = []string{"published"}
				c.Report.EnrollmentMin = 5
			},
			ok: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}
