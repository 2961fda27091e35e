package store

import (
	"encoding/json"
	"fmt"
	"os"

	"course-report/internal/model"
)

type departmentFile struct {
	Departments []model.Department `json:"departments"`
}

// LoadDepartments reads the department mapping file keyed by account id.
// An empty path yields an empty directory.
func LoadDepartments(path string) (map[int64]model.Department, error) {
	out := make(map[int64]model.Department)
	if path == "" {
		return out, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read departments file: %w", err)
	}
	var file departmentFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode departments file %s: %w", path, err)
	}
	for _, d := range file.Departments {
		if d.ID == 0 {
			return nil, fmt.Errorf("departments file %s: entry %q has no id", path, d.Code)
		}
		// First entry wins, like a lookup over the list would.
		if _, ok := out[d.ID]; !ok {
			out[d.ID] = d
		}
	}
	return out, nil
}
