package mocks

import (
	"context"

	"course-report/internal/canvas"

	"github.com/stretchr/testify/mock"
)

// API is a mock for canvas.API.
type API struct {
	mock.Mock
}

func (m *API) RootAccount(ctx context.Context) (canvas.Account, error) {
	args := m.Called(ctx)
	return args.Get(0).(canvas.Account), args.Error(1)
}

func (m *API) SubAccounts(ctx context.Context, accountID int64, recursive bool) ([]canvas.Account, error) {
	args := m.Called(ctx, accountID, recursive)
	if list, ok := args.Get(0).([]canvas.Account); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *API) Terms(ctx context.Context) ([]canvas.Term, error) {
	args := m.Called(ctx)
	if list, ok := args.Get(0).([]canvas.Term); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *API) Courses(ctx context.Context, termID int64) ([]canvas.Course, error) {
	args := m.Called(ctx, termID)
	if list, ok := args.Get(0).([]canvas.Course); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *API) CourseDetail(ctx context.Context, courseID int64, inc canvas.Includes) (canvas.CourseDetail, error) {
	args := m.Called(ctx, courseID, inc)
	return args.Get(0).(canvas.CourseDetail), args.Error(1)
}
