// Package store persists the flat files the report reads between runs.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"course-report/internal/model"
)

// ErrCacheMismatch is returned when a cached hierarchy belongs to another instance or account.
var ErrCacheMismatch = errors.New("account cache belongs to a different account")

// AccountSnapshot is the on-disk form of the account hierarchy.
type AccountSnapshot struct {
	Instance  string          `json:"instance"`
	Account   string          `json:"account"`
	RootID    int64           `json:"root_id"`
	FetchedAt time.Time       `json:"fetched_at"`
	Accounts  []model.Account `json:"accounts"`
}

// Hierarchy builds the in-memory index of the snapshot.
func (s AccountSnapshot) Hierarchy() *model.Hierarchy {
	return model.NewHierarchy(s.RootID, s.Accounts)
}

// AccountCache reads and writes the account hierarchy at a fixed path.
type AccountCache struct {
	Path string
}

// NewAccountCache creates a cache rooted at path.
func NewAccountCache(path string) *AccountCache {
	return &AccountCache{Path: path}
}

// Load returns the cached snapshot for instance/account. found is false when
// there is no cache file yet.
func (c *AccountCache) Load(instance, account string) (snap AccountSnapshot, found bool, err error) {
	data, err := os.ReadFile(c.Path)
	if errors.Is(err, os.ErrNotExist) {
		return AccountSnapshot{}, false, nil
	}
	if err != nil {
		return AccountSnapshot{}, false, fmt.Errorf("read account cache: %w", err)
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return AccountSnapshot{}, false, fmt.Errorf("decode account cache %s: %w", c.Path, err)
	}
	if snap.Instance != instance || snap.Account != account {
		return AccountSnapshot{}, false, fmt.Errorf("%w: %s has %s/%s", ErrCacheMismatch, c.Path, snap.Instance, snap.Account)
	}
	return snap, true, nil
}

// Save writes the snapshot, replacing any previous cache file atomically.
func (c *AccountCache) Save(snap AccountSnapshot) error {
	if err := os.MkdirAll(filepath.Dir(c.Path), 0755); err != nil {
		return fmt.Errorf("create account cache directory: %w", err)
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode account cache: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(c.Path), ".accounts-*.json")
	if err != nil {
		return fmt.Errorf("create account cache: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write account cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write account cache: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.Path); err != nil {
		return fmt.Errorf("replace account cache: %w", err)
	}
	return nil
}
