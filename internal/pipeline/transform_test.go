package pipeline

import (
	"testing"

	"course-report/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLabelerFromHierarchy(t *testing.T) {
	tracker := quietTracker()
	labeler := &Labeler{Hierarchy: institutionHierarchy(), Tracker: tracker}

	records := []model.CourseRecord{
		{ID: 1, AccountID: 3, Values: map[string]int{"published": 1}},
		{ID: 2, AccountID: 2},
		{ID: 3, AccountID: 42},
		{ID: 4, AccountID: 42},
	}
	out := labeler.TransformRecords(records, "F16")
	require.Len(t, out, 4)

	assert.Equal(t, "F16", out[0].Term)
	assert.Equal(t, "Biology", out[0].AccountName)
	assert.Equal(t, int64(2), out[0].ParentAccountID)
	assert.Equal(t, "Biology", out[0].Program)
	assert.Equal(t, "Sciences", out[0].Division)

	// Parent is the root: no division.
	assert.Equal(t, "Sciences", out[1].Program)
	assert.Equal(t, "", out[1].Division)

	assert.Equal(t, "", out[2].Program)
	assert.Equal(t, "", out[2].AccountName)
	// Accounts 2 and 42, once each.
	assert.Equal(t, 2, tracker.AnomalyCount(model.AnomalyUnresolved))

	out[0].Values["published"] = 0
	assert.Equal(t, 1, records[0].Values["published"], "input records must not be mutated")
}

func TestLabelerFromDepartments(t *testing.T) {
	labeler := &Labeler{
		Hierarchy: institutionHierarchy(),
		Departments: map[int64]model.Department{
			3: {ID: 3, Code: "BIO", Division: "Life Sciences"},
			4: {ID: 4, Code: "MAR"},
		},
	}

	program, division, ok := labeler.Labels(3)
	assert.True(t, ok)
	assert.Equal(t, "BIO", program)
	assert.Equal(t, "Life Sciences", division)

	_, _, ok = labeler.Labels(2)
	assert.False(t, ok)

	program, _, ok = labeler.Labels(4)
	assert.False(t, ok, "mapping without a division")
	assert.Equal(t, "MAR", program)

	out := labeler.TransformRecords([]model.CourseRecord{{ID: 1, AccountID: 2}}, "F16")
	assert.Equal(t, "Sciences", out[0].AccountName)
	assert.Equal(t, "", out[0].Program)
	assert.Equal(t, "Sciences", out[0].OrgLabel())
}

func TestRootOwnedCoursesAreReportedUnresolved(t *testing.T) {
	tracker := quietTracker()
	labeler := &Labeler{Hierarchy: institutionHierarchy(), Tracker: tracker}
	values := map[string]int{"published": 1}

	records := labeler.TransformRecords([]model.CourseRecord{
		{ID: 100, AccountID: 2, Values: values},
		{ID: 101, AccountID: 3, Values: values},
		{ID: 102, AccountID: 1, Values: values},
		{ID: 103, AccountID: 2, Values: values},
	}, "F16")

	assert.Equal(t, "Sciences", records[0].Program)
	assert.Equal(t, "", records[0].Division)
	assert.Equal(t, "University", records[2].Program)
	assert.Equal(t, 2, tracker.AnomalyCount(model.AnomalyUnresolved))

	accounts := map[int64]bool{}
	for _, a := range tracker.Summary().Anomalies {
		accounts[a.AccountID] = true
	}
	assert.Equal(t, map[int64]bool{1: true, 2: true}, accounts)

	agg := NewAggregator("F16", mustMetrics(t, []string{"published"}, nil), 3)
	for _, level := range []LevelSpec{DepartmentsLevel(), DivisionsLevel()} {
		rows, err := agg.Group(records, level)
		require.NoError(t, err)
		require.Len(t, rows, 1, level.Name)
		assert.Equal(t, 1, rows[0].Count, level.Name)
	}
}

func TestBackfillAndValidate(t *testing.T) {
	metrics := mustMetrics(t, []string{"published", "enrollment"}, []string{"Files"})
	tracker := quietTracker()
	records := []model.CourseRecord{
		{ID: 1, Values: map[string]int{"published": 1, "enrollment": 3, "files": 1}},
		{ID: 2, Values: map[string]int{"published": 0}},
		{ID: 3},
	}

	assert.Error(t, ValidateRecords(records, metrics))

	filled := Backfill(records, metrics, tracker)
	assert.Equal(t, 5, filled)
	assert.Equal(t, map[string]int{"published": 0, "enrollment": 0, "files": 0}, records[2].Values)
	assert.Equal(t, 1, tracker.AnomalyCount(model.AnomalyBackfill))
	require.NoError(t, ValidateRecords(records, metrics))

	records[0].Values["files"] = 2
	assert.ErrorIs(t, ValidateRecords(records, metrics), ErrInvalidRecord)
	records[0].Values["files"] = 1
	records[0].Values["enrollment"] = -1
	assert.ErrorIs(t, ValidateRecords(records, metrics), ErrInvalidRecord)
}
