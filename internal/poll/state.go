// Package poll implements the polling-and-notify engine: the durable
// poll state, the merge/dedup engine, and the scheduler that drives
// periodic checks against the issue tracker.
package poll

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/issueping/issueping/internal/models"
)

const (
	statePerm    = 0o600
	stateDirPerm = 0o700
)

// State is the durable poll snapshot: the ordered history of notified
// issues, the caching validator from the last fresh fetch, and the
// bookkeeping the UI displays.
type State struct {
	LastCheckedAt time.Time      `json:"last_checked_at"`
	LastError     string         `json:"last_error,omitempty"`
	ETag          string         `json:"etag,omitempty"`
	History       []models.Issue `json:"history"`
	IsRunning     bool           `json:"is_running"`
	Loading       bool           `json:"loading"`
}

// clone returns a deep copy so transition functions can mutate freely.
func (s State) clone() State {
	c := s
	c.History = make([]models.Issue, len(s.History))
	copy(c.History, s.History)
	return c
}

// Store owns the poll state and persists every mutation to a JSON
// snapshot. All writers go through Update, which applies a transition
// function to the previous state under the store lock: overlapping ticks
// therefore compute from fresh state and can never lose updates.
type Store struct {
	mu    sync.Mutex
	path  string
	state State
}

// NewStore creates a store persisting to the given path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load reads the snapshot from disk. A missing file yields an empty
// state. Loading and IsRunning are forced false: a previous process that
// died mid-tick is not still running.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.state = State{}
			return nil
		}
		return fmt.Errorf("read state: %w", err)
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("parse state: %w", err)
	}
	st.Loading = false
	st.IsRunning = false
	s.state = st
	slog.Info("[STATE] Loaded snapshot", "history", len(st.History), "last_checked", st.LastCheckedAt)
	return nil
}

// State returns a copy of the current state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Update applies fn to the current state and persists the result. fn
// receives a private copy and must return the next state; it must not
// capture state from outside the closure (stale reads are how lost
// updates happen).
func (s *Store) Update(fn func(State) State) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = fn(s.state.clone())
	s.persistLocked()
	return s.state.clone()
}

// ClearHistory removes every history entry and resets the caching
// validator so the next fetch is unconditional: a 304 must not mask
// content the user just asked to forget.
func (s *Store) ClearHistory() {
	s.Update(func(st State) State {
		st.History = nil
		st.ETag = ""
		return st
	})
	slog.Info("[STATE] History cleared")
}

// DeleteNotification removes one history entry by issue id and resets
// the caching validator. A deleted issue may re-notify on a later fetch;
// history membership is the only suppression mechanism.
func (s *Store) DeleteNotification(id int64) bool {
	deleted := false
	s.Update(func(st State) State {
		kept := st.History[:0]
		for _, issue := range st.History {
			if issue.ID == id {
				deleted = true
				continue
			}
			kept = append(kept, issue)
		}
		st.History = kept
		if deleted {
			st.ETag = ""
		}
		return st
	})
	if deleted {
		slog.Info("[STATE] Notification deleted", "id", id)
	}
	return deleted
}

// persistLocked writes the snapshot; the store lock must be held.
// Persistence failures are logged, not fatal: the in-memory state stays
// authoritative for this session.
func (s *Store) persistLocked() {
	if err := os.MkdirAll(filepath.Dir(s.path), stateDirPerm); err != nil {
		slog.Error("[STATE] Failed to create state dir", "error", err)
		return
	}
	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		slog.Error("[STATE] Failed to marshal state", "error", err)
		return
	}
	if err := os.WriteFile(s.path, data, statePerm); err != nil {
		slog.Error("[STATE] Failed to write state", "path", s.path, "error", err)
	}
}
