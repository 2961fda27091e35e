package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"course-report/internal/canvas"
	"course-report/internal/model"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// progressEvery is how often the enrich loop reports the time remaining.
const progressEvery = 250

// Enrich builds the record of a listed course. Listing fields always
// contribute; detail fields only when detail is non-nil.
func Enrich(course canvas.Course, detail *canvas.CourseDetail, metrics []model.MetricSpec) model.CourseRecord {
	rec := model.CourseRecord{
		ID:         course.ID,
		AccountID:  course.AccountID,
		Name:       course.Name,
		CourseCode: course.CourseCode,
		Values:     make(map[string]int, len(metrics)),
	}

	for _, m := range metrics {
		switch {
		case m.Name == model.OptionPublished:
			rec.Values[m.Name] = flag(course.WorkflowState == "available")
		case m.Name == model.OptionHomepage:
			rec.Values[m.Name] = flag(course.DefaultView == "wiki")
		case detail == nil:
			// left for backfill
		case m.Name == model.OptionSyllabus:
			rec.Values[m.Name] = flag(detail.SyllabusBody != nil && *detail.SyllabusBody != "")
		case m.Name == model.OptionEnrollment:
			if detail.TotalStudents != nil {
				rec.Values[m.Name] = *detail.TotalStudents
			}
		case m.Kind == model.KindTab:
			rec.Values[m.Name] = flag(tabVisible(detail.Tabs, m.Source))
		}
	}
	return rec
}

// tabVisible reports whether the first tab labelled label is public and carries no hidden key.
func tabVisible(tabs []canvas.Tab, label string) bool {
	for _, tab := range tabs {
		if tab.Label == label {
			return tab.Visibility == "public" && !tab.HasHidden()
		}
	}
	return false
}

func flag(b bool) int {
	if b {
		return 1
	}
	return 0
}

// DetailIncludes returns the include[] set the configured metrics need.
func DetailIncludes(metrics []model.MetricSpec) canvas.Includes {
	var inc canvas.Includes
	for _, m := range metrics {
		switch {
		case m.Name == model.OptionSyllabus:
			inc.SyllabusBody = true
		case m.Name == model.OptionEnrollment:
			inc.TotalStudents = true
		case m.Kind == model.KindTab:
			inc.Tabs = true
		}
	}
	return inc
}

// IsDetailAnomaly reports whether a detail fetch error is recoverable: the
// course is kept with backfilled values instead of aborting the run.
func IsDetailAnomaly(err error) bool {
	var apiErr canvas.APIError
	return errors.Is(err, canvas.ErrThrottled) || errors.Is(err, canvas.ErrDecode) || errors.As(err, &apiErr)
}

// Enricher drives the per-course detail lookups.
type Enricher struct {
	API         canvas.API
	Metrics     []model.MetricSpec
	Interval    time.Duration // spacing between request starts
	MaxInFlight int
	Tracker     *RunTracker
	Progress    io.Writer
}

// EnrichCourses fetches every course's detail and returns one record per
// course in listing order. Each fetch writes only its own index; the result is
// read after all fetches have returned.
func (e *Enricher) EnrichCourses(ctx context.Context, courses []canvas.Course) ([]model.CourseRecord, error) {
	records := make([]model.CourseRecord, len(courses))
	inc := DetailIncludes(e.Metrics)
	if inc.Values() == nil {
		for i, c := range courses {
			records[i] = Enrich(c, nil, e.Metrics)
		}
		return records, nil
	}

	out := e.Progress
	if out == nil {
		out = os.Stdout
	}
	limit := rate.Inf
	if e.Interval > 0 {
		limit = rate.Every(e.Interval)
	}
	limiter := rate.NewLimiter(limit, 1)

	g, gctx := errgroup.WithContext(ctx)
	if e.MaxInFlight > 0 {
		g.SetLimit(e.MaxInFlight)
	}

	var waitErr error
	for i, c := range courses {
		if waitErr = limiter.Wait(gctx); waitErr != nil {
			break
		}
		if i > 0 && i%progressEvery == 0 {
			printTimeRemaining(out, len(courses)-i, e.Interval)
		}

		g.Go(func() error {
			start := time.Now()
			detail, err := e.API.CourseDetail(gctx, c.ID, inc)
			if err != nil {
				if !IsDetailAnomaly(err) {
					return err
				}
				e.recordDetail(false, time.Since(start))
				kind := model.AnomalyDetailFetch
				if errors.Is(err, canvas.ErrThrottled) {
					kind = model.AnomalyThrottled
				}
				e.recordAnomaly(model.Anomaly{
					Stage:     "enrich",
					Kind:      kind,
					CourseID:  c.ID,
					AccountID: c.AccountID,
					Message:   err.Error(),
				})
				records[i] = Enrich(c, nil, e.Metrics)
				return nil
			}
			e.recordDetail(true, time.Since(start))
			records[i] = Enrich(c, &detail, e.Metrics)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("enrich courses: %w", err)
	}
	if waitErr != nil {
		return nil, fmt.Errorf("enrich courses: %w", waitErr)
	}
	return records, nil
}

func (e *Enricher) recordDetail(ok bool, took time.Duration) {
	if e.Tracker != nil {
		e.Tracker.RecordDetail(ok, took)
	}
}

func (e *Enricher) recordAnomaly(a model.Anomaly) {
	if e.Tracker != nil {
		e.Tracker.RecordAnomaly(a)
	}
}

// printTimeRemaining estimates the wait for the remaining requests and prints
// it when it is at least ten seconds.
func printTimeRemaining(w io.Writer, remaining int, interval time.Duration) {
	seconds := int(math.Round(float64(remaining) * interval.Seconds()))
	if seconds < 10 {
		return
	}
	if seconds > 60 {
		fmt.Fprintf(w, "⏳  %d minute(s) remaining...\n", int(math.Round(float64(seconds)/60)))
		return
	}
	fmt.Fprintf(w, "⏳  %d seconds remaining...\n", seconds)
}
