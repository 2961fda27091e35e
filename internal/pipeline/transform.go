package pipeline

import (
	"fmt"

	"course-report/internal/model"
)

// Labeler resolves the org-unit labels of course records, from the
// department mapping when one is loaded and from the account hierarchy
// otherwise.
type Labeler struct {
	Hierarchy   *model.Hierarchy
	Departments map[int64]model.Department
	Tracker     *RunTracker
}

// Labels returns the program and division of an account. ok is false when
// either label cannot be resolved; whatever was found is still returned.
// Accounts owned by the root, and the root itself, have no division.
func (l *Labeler) Labels(accountID int64) (program, division string, ok bool) {
	if len(l.Departments) > 0 {
		d, found := l.Departments[accountID]
		if !found {
			return "", "", false
		}
		return d.Code, d.Division, d.Code != "" && d.Division != ""
	}

	acct, found := l.Hierarchy.Get(accountID)
	if !found {
		return "", "", false
	}
	if parent, hasParent := l.Hierarchy.Parent(accountID); hasParent && parent.ID != l.Hierarchy.RootID {
		division = parent.Name
	}
	return acct.Name, division, acct.Name != "" && division != ""
}

// TransformRecords stamps term, account and label fields on every record.
// Accounts without both labels are reported once per account; such records
// stay out of the label-keyed rollups.
func (l *Labeler) TransformRecords(records []model.CourseRecord, term string) []model.CourseRecord {
	out := make([]model.CourseRecord, len(records))
	reported := make(map[int64]bool)

	for i, rec := range records {
		rec = rec.Clone()
		rec.Term = term
		if acct, ok := l.Hierarchy.Get(rec.AccountID); ok {
			rec.AccountName = acct.Name
			rec.ParentAccountID = acct.ParentID
		}

		program, division, ok := l.Labels(rec.AccountID)
		rec.Program = program
		rec.Division = division
		if !ok && !reported[rec.AccountID] {
			reported[rec.AccountID] = true
			if l.Tracker != nil {
				l.Tracker.RecordAnomaly(model.Anomaly{
					Stage:     "transform",
					Kind:      model.AnomalyUnresolved,
					CourseID:  rec.ID,
					AccountID: rec.AccountID,
					Message:   fmt.Sprintf("account %d: program %q division %q", rec.AccountID, program, division),
				})
			}
		}
		out[i] = rec
	}
	return out
}
