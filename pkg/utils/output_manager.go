package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DatestampLayout is appended to report names when datestamps are enabled.
const DatestampLayout = "20060102"

// OutputManager handles report file organization and path management
type OutputManager struct {
	BaseOutputDir string
	Datestamp     string
}

// NewOutputManager creates a new output manager. A zero now disables datestamps.
func NewOutputManager(baseOutputDir string, now time.Time) *OutputManager {
	om := &OutputManager{BaseOutputDir: baseOutputDir}
	if !now.IsZero() {
		om.Datestamp = now.Format(DatestampLayout)
	}
	return om
}

// ReportFileName builds "{type}_report_{term}[_{datestamp}].csv".
func (om *OutputManager) ReportFileName(reportType, term string) string {
	name := fmt.Sprintf("%s_report_%s", reportType, term)
	if om.Datestamp != "" {
		name += "_" + om.Datestamp
	}
	return name + ".csv"
}

// ReportPath generates the full path for a report file
func (om *OutputManager) ReportPath(reportType, term string) string {
	return filepath.Join(om.BaseOutputDir, om.ReportFileName(reportType, term))
}

// GetFileSize returns the size of a file in bytes
func (om *OutputManager) GetFileSize(filePath string) (int64, error) {
	fileInfo, err := os.Stat(filePath)
	if err != nil {
		return 0, err
	}
	return fileInfo.Size(), nil
}

// EnsureOutputDirExists ensures the base output directory exists
func (om *OutputManager) EnsureOutputDirExists() error {
	if err := os.MkdirAll(om.BaseOutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	return nil
}
