package pipeline

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"course-report/internal/canvas"
	"course-report/internal/canvas/mocks"
	"course-report/internal/config"
	"course-report/internal/model"
	"course-report/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func int64Ptr(n int64) *int64 { return &n }

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Canvas.Instance = "https://canvas.example.edu"
	cfg.Canvas.Account = "1"
	cfg.Canvas.Token = "secret"
	cfg.Canvas.RequestInterval = 0
	cfg.Canvas.MaxInFlight = 4
	cfg.Canvas.SubaccountRecursion = true
	cfg.Report.Tabs = []string{"Files"}
	cfg.Report.EnrollmentMin = 10
	cfg.Report.Output = []string{"courses", "departments", "divisions", "subaccounts", "institution"}
	cfg.Report.Dir = filepath.Join(dir, "reports")
	cfg.Report.AccountCache = filepath.Join(dir, "cache", "accounts.json")
	cfg.Report.MetricsFile = filepath.Join(dir, "metrics.prom")
	require.NoError(t, cfg.Validate())
	return cfg
}

var allIncludes = canvas.Includes{SyllabusBody: true, TotalStudents: true, Tabs: true}

func expectAccounts(api *mocks.API) {
	api.On("RootAccount", mock.Anything).Return(canvas.Account{ID: 1, Name: "University"}, nil).Once()
	api.On("SubAccounts", mock.Anything, int64(1), true).Return([]canvas.Account{
		{ID: 2, Name: "Sciences", ParentAccountID: int64Ptr(1)},
		{ID: 3, Name: "Biology", ParentAccountID: int64Ptr(2)},
		{ID: 5, Name: "Arts", ParentAccountID: int64Ptr(1)},
	}, nil).Once()
}

func expectTermAndCourses(api *mocks.API) {
	api.On("Terms", mock.Anything).Return([]canvas.Term{
		{ID: 6, Name: "Summer 2016", SISTermID: "SU16"},
		{ID: 7, Name: "Fall 2016", SISTermID: "F16"},
	}, nil)
	api.On("Courses", mock.Anything, int64(7)).Return([]canvas.Course{
		{ID: 1, AccountID: 3, Name: "Cells", CourseCode: "BIO 101", WorkflowState: "available", DefaultView: "wiki"},
		{ID: 2, AccountID: 3, Name: "Genes", CourseCode: "BIO 201", WorkflowState: "unpublished"},
		{ID: 3, AccountID: 5, Name: "Drawing", CourseCode: "ART 101", WorkflowState: "available"},
		{ID: 4, AccountID: 1, Name: "Orientation", CourseCode: "UNI 100", WorkflowState: "available"},
	}, nil)

	api.On("CourseDetail", mock.Anything, int64(1), allIncludes).Return(canvas.CourseDetail{
		ID: 1, SyllabusBody: strPtr("<p>syllabus</p>"), TotalStudents: intPtr(20),
		Tabs: []canvas.Tab{{ID: "files", Label: "Files", Visibility: "public"}},
	}, nil)
	api.On("CourseDetail", mock.Anything, int64(2), allIncludes).Return(canvas.CourseDetail{ID: 2, TotalStudents: intPtr(5)}, nil)
	api.On("CourseDetail", mock.Anything, int64(3), allIncludes).Return(canvas.CourseDetail{}, canvas.APIError{Status: http.StatusNotFound})
	api.On("CourseDetail", mock.Anything, int64(4), allIncludes).Return(canvas.CourseDetail{ID: 4, TotalStudents: intPtr(50)}, nil)
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestRunWritesAllReports(t *testing.T) {
	cfg := testConfig(t)
	api := &mocks.API{}
	expectAccounts(api)
	expectTermAndCourses(api)

	runner := &Runner{Config: cfg, API: api, Tracker: quietTracker(), Progress: io.Discard}
	summary, err := runner.Run(context.Background(), "F16")
	require.NoError(t, err)
	api.AssertExpectations(t)

	assert.Equal(t, 4, summary.Courses)
	assert.Equal(t, 3, summary.DetailsOK)
	assert.Len(t, summary.Exports, 5)
	assert.False(t, summary.EndTime.IsZero())

	courses := readCSV(t, filepath.Join(cfg.Report.Dir, "courses_report_F16.csv"))
	require.Len(t, courses, 5)
	assert.Equal(t, []string{"account_id", "term", "id", "division", "program", "course_code", "name", "published", "homepage", "syllabus", "enrollment", "files"}, courses[0])
	assert.Equal(t, []string{"5", "F16", "3", "", "Arts", "ART 101", "Drawing", "1", "0", "0", "0", "0"}, courses[1])
	assert.Equal(t, []string{"3", "F16", "1", "Sciences", "Biology", "BIO 101", "Cells", "1", "1", "1", "20", "1"}, courses[2])

	departments := readCSV(t, filepath.Join(cfg.Report.Dir, "departments_report_F16.csv"))
	assert.Equal(t, [][]string{
		{"term", "division", "program", "course_count", "published", "published_pct", "homepage", "homepage_pct", "syllabus", "syllabus_pct", "enrollment", "files", "files_pct"},
		{"F16", "Sciences", "Biology", "2", "1", "0.500", "1", "0.500", "1", "0.500", "25", "1", "0.500"},
	}, departments)

	divisions := readCSV(t, filepath.Join(cfg.Report.Dir, "divisions_report_F16.csv"))
	assert.Equal(t, []string{"F16", "Sciences", "2", "1", "0.500", "1", "0.500", "1", "0.500", "25", "1", "0.500"}, divisions[1])

	subaccounts := readCSV(t, filepath.Join(cfg.Report.Dir, "subaccounts_report_F16.csv"))
	assert.Equal(t, [][]string{
		{"term", "account_id", "account_name", "course_count", "course_count_enrollment_min", "published", "published_pct", "homepage", "homepage_pct", "syllabus", "syllabus_pct", "enrollment", "files", "files_pct"},
		{"F16", "5", "Arts", "1", "0", "0", "", "0", "", "0", "", "0", "0", ""},
		{"F16", "3", "Biology", "2", "1", "1", "1.00", "1", "1.00", "1", "1.00", "20", "1", "1.00"},
		{"F16", "1", "University", "1", "1", "1", "1.00", "0", "0.00", "0", "0.00", "50", "0", "0.00"},
	}, subaccounts)

	institution := readCSV(t, filepath.Join(cfg.Report.Dir, "institution_report_F16.csv"))
	assert.Equal(t, [][]string{
		institution[0],
		{"F16", "5", "Arts", "1", "0", "0", "", "0", "", "0", "", "0", "0", ""},
		{"F16", "2", "Sciences", "2", "1", "1", "1.00", "1", "1.00", "1", "1.00", "20", "1", "1.00"},
	}, institution)

	metricsText, err := os.ReadFile(cfg.Report.MetricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(metricsText), "course_report_courses 4")
	assert.Contains(t, string(metricsText), `course_report_anomalies_total{kind="detail_fetch"} 1`)
	// Arts hangs off the root and Orientation is owned by it: neither has a division.
	assert.Contains(t, string(metricsText), `course_report_anomalies_total{kind="unresolved_account"} 2`)

	_, err = os.Stat(cfg.Report.AccountCache)
	assert.NoError(t, err)
}

func TestRunReusesAccountCache(t *testing.T) {
	cfg := testConfig(t)
	cache := store.NewAccountCache(cfg.Report.AccountCache)
	require.NoError(t, cache.Save(store.AccountSnapshot{
		Instance: cfg.Canvas.Instance,
		Account:  cfg.Canvas.Account,
		RootID:   1,
		Accounts: []model.Account{
			{ID: 1, Name: "University"},
			{ID: 2, Name: "Sciences", ParentID: 1},
			{ID: 3, Name: "Biology", ParentID: 2},
			{ID: 5, Name: "Arts", ParentID: 1},
		},
	}))

	api := &mocks.API{}
	expectTermAndCourses(api)

	runner := &Runner{Config: cfg, API: api, Tracker: quietTracker(), Progress: io.Discard}
	_, err := runner.Run(context.Background(), "F16")
	require.NoError(t, err)
	api.AssertNotCalled(t, "RootAccount", mock.Anything)
	api.AssertNotCalled(t, "SubAccounts", mock.Anything, mock.Anything, mock.Anything)
}

func TestRunUnknownTermWritesNothing(t *testing.T) {
	cfg := testConfig(t)
	api := &mocks.API{}
	expectAccounts(api)
	api.On("Terms", mock.Anything).Return([]canvas.Term{{ID: 6, SISTermID: "SU16"}}, nil)

	runner := &Runner{Config: cfg, API: api, Tracker: quietTracker(), Progress: io.Discard}
	_, err := runner.Run(context.Background(), "W17")
	assert.ErrorIs(t, err, ErrTermNotFound)

	_, statErr := os.Stat(cfg.Report.Dir)
	assert.True(t, errors.Is(statErr, os.ErrNotExist))
	api.AssertNotCalled(t, "Courses", mock.Anything, mock.Anything)
}

func TestRunTransportErrorWritesNothing(t *testing.T) {
	cfg := testConfig(t)
	api := &mocks.API{}
	expectAccounts(api)
	api.On("Terms", mock.Anything).Return([]canvas.Term{{ID: 7, SISTermID: "F16"}}, nil)
	api.On("Courses", mock.Anything, int64(7)).Return([]canvas.Course{{ID: 1, AccountID: 3}}, nil)
	api.On("CourseDetail", mock.Anything, int64(1), allIncludes).Return(canvas.CourseDetail{}, errors.New("perform request: EOF"))

	runner := &Runner{Config: cfg, API: api, Tracker: quietTracker(), Progress: io.Discard}
	_, err := runner.Run(context.Background(), "F16")
	require.Error(t, err)

	_, statErr := os.Stat(cfg.Report.Dir)
	assert.True(t, errors.Is(statErr, os.ErrNotExist))
}

func TestLevelFor(t *testing.T) {
	_, ok := LevelFor("courses", nil, 0)
	assert.False(t, ok)

	level, ok := LevelFor("institution", institutionHierarchy(), 3)
	require.True(t, ok)
	assert.Equal(t, EligiblePublished, level.Policy)
	assert.Equal(t, 1, level.Depth)
	assert.Len(t, level.Keys, 1)

	level, ok = LevelFor("departments", nil, 3)
	require.True(t, ok)
	assert.Equal(t, GroupSize, level.Policy)
	assert.Nil(t, level.Eligible)
}
