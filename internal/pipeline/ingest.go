package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"course-report/internal/canvas"
	"course-report/internal/model"
	"course-report/internal/store"
)

// ErrTermNotFound is returned when no enrollment term has the requested SIS id.
var ErrTermNotFound = errors.New("term not found")

// ------------------- Term -------------------

// ResolveTerm finds the enrollment term whose sis_term_id equals code.
func ResolveTerm(ctx context.Context, api canvas.API, code string) (canvas.Term, error) {
	terms, err := api.Terms(ctx)
	if err != nil {
		return canvas.Term{}, err
	}
	for _, t := range terms {
		if t.SISTermID == code {
			return t, nil
		}
	}
	return canvas.Term{}, fmt.Errorf("%w: %s (%d terms listed)", ErrTermNotFound, code, len(terms))
}

// ------------------- Courses -------------------

// ListCourses fetches every course of the term, following pagination.
func ListCourses(ctx context.Context, api canvas.API, term canvas.Term) ([]canvas.Course, error) {
	fmt.Printf("➡️ Fetching courses for %s (term id %d)\n", term.SISTermID, term.ID)
	courses, err := api.Courses(ctx, term.ID)
	if err != nil {
		return nil, err
	}
	fmt.Printf("📄 %d courses listed for %s\n", len(courses), term.SISTermID)
	return courses, nil
}

// ------------------- Accounts -------------------

// HierarchySource loads the account hierarchy from the cache, or from Canvas
// when there is no usable cache, saving what it fetched.
type HierarchySource struct {
	API       canvas.API
	Cache     *store.AccountCache
	Instance  string
	Account   string
	Recursive bool
	Logger    *slog.Logger
}

// Load returns the hierarchy under the configured account.
func (s *HierarchySource) Load(ctx context.Context) (*model.Hierarchy, error) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if s.Cache != nil {
		snap, found, err := s.Cache.Load(s.Instance, s.Account)
		switch {
		case err != nil && errors.Is(err, store.ErrCacheMismatch):
			logger.Warn("ignoring account cache", "path", s.Cache.Path, "error", err)
		case err != nil:
			return nil, err
		case found:
			logger.Debug("using cached account hierarchy", "path", s.Cache.Path, "accounts", len(snap.Accounts), "fetched_at", snap.FetchedAt)
			return snap.Hierarchy(), nil
		}
	}

	root, err := s.API.RootAccount(ctx)
	if err != nil {
		return nil, err
	}
	subs, err := s.API.SubAccounts(ctx, root.ID, s.Recursive)
	if err != nil {
		return nil, err
	}

	snap := store.AccountSnapshot{
		Instance:  s.Instance,
		Account:   s.Account,
		RootID:    root.ID,
		FetchedAt: time.Now().UTC(),
		Accounts:  make([]model.Account, 0, len(subs)+1),
	}
	snap.Accounts = append(snap.Accounts, model.Account{ID: root.ID, Name: root.Name})
	for _, a := range subs {
		snap.Accounts = append(snap.Accounts, toAccount(a, root.ID))
	}
	fmt.Printf("🌐 %d accounts fetched under %s\n", len(snap.Accounts), root.Name)

	if s.Cache != nil {
		if err := s.Cache.Save(snap); err != nil {
			return nil, err
		}
	}
	return snap.Hierarchy(), nil
}

// toAccount converts an API account. Sub-accounts without a parent id hang off fallbackParent.
func toAccount(a canvas.Account, fallbackParent int64) model.Account {
	parent := fallbackParent
	if a.ParentAccountID != nil {
		parent = *a.ParentAccountID
	}
	return model.Account{ID: a.ID, Name: a.Name, ParentID: parent}
}
