package pipeline

import (
	"errors"
	"fmt"

	"course-report/internal/model"
)

// ErrInvalidRecord is returned when a record breaks a value invariant.
var ErrInvalidRecord = errors.New("invalid course record")

// Backfill sets every configured metric missing from a record to 0 and
// returns how many values were filled in.
func Backfill(records []model.CourseRecord, metrics []model.MetricSpec, tracker *RunTracker) int {
	filled := 0
	for i := range records {
		if records[i].Values == nil {
			records[i].Values = make(map[string]int, len(metrics))
		}
		var missing []string
		for _, m := range metrics {
			if _, ok := records[i].Values[m.Name]; !ok {
				records[i].Values[m.Name] = 0
				missing = append(missing, m.Name)
			}
		}
		if len(missing) == 0 {
			continue
		}
		filled += len(missing)
		if tracker != nil {
			tracker.Logger().Debug("backfilled course values", "course_id", records[i].ID, "metrics", missing)
		}
	}
	if filled > 0 && tracker != nil {
		tracker.RecordAnomaly(model.Anomaly{
			Stage:   "validate",
			Kind:    model.AnomalyBackfill,
			Message: fmt.Sprintf("%d missing values set to 0", filled),
		})
	}
	return filled
}

// ValidateRecords checks that every record carries every configured metric,
// that flags are 0 or 1 and that counts are not negative.
func ValidateRecords(records []model.CourseRecord, metrics []model.MetricSpec) error {
	for _, rec := range records {
		for _, m := range metrics {
			v, err := rec.Value(m.Name)
			if err != nil {
				return err
			}
			switch m.Kind {
			case model.KindCount:
				if v < 0 {
					return fmt.Errorf("%w: course %d: %s is negative (%d)", ErrInvalidRecord, rec.ID, m.Name, v)
				}
			default:
				if v != 0 && v != 1 {
					return fmt.Errorf("%w: course %d: %s is not a flag (%d)", ErrInvalidRecord, rec.ID, m.Name, v)
				}
			}
		}
	}
	return nil
}
