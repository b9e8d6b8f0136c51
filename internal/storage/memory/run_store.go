// Package memory provides store implementations for development/testing.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jobsonar/jobsonar/internal/clock/system"
	"github.com/jobsonar/jobsonar/internal/discovery"
)

// RunStore is an in-memory discovery.RunStore.
type RunStore struct {
	mu    sync.RWMutex
	runs  map[string]discovery.Run
	clock discovery.Clock
}

// NewRunStore constructs a RunStore. A nil clock falls back to the
// system clock.
func NewRunStore(clk discovery.Clock) *RunStore {
	if clk == nil {
		clk = system.New()
	}
	return &RunStore{runs: make(map[string]discovery.Run), clock: clk}
}

// CreateRun stores a new run.
func (s *RunStore) CreateRun(_ context.Context, run discovery.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; exists {
		return fmt.Errorf("run %s already exists", run.ID)
	}
	s.runs[run.ID] = cloneRun(run)
	return nil
}

// UpdateRunStatus updates status and error text, stamping started/finished
// times on the relevant transitions.
func (s *RunStore) UpdateRunStatus(
	_ context.Context,
	runID string,
	status discovery.RunStatus,
	errText string,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return discovery.ErrNotFound
	}
	run.Status = status
	run.ErrorText = errText
	now := s.clock.Now()
	if status == discovery.RunStatusRunning && run.StartedAt == nil {
		run.StartedAt = pointerTime(now)
	}
	if status.Terminal() && run.FinishedAt == nil {
		run.FinishedAt = pointerTime(now)
	}
	s.runs[runID] = run
	return nil
}

// UpdateRunProgress replaces the progress snapshot for a run.
func (s *RunStore) UpdateRunProgress(
	_ context.Context,
	runID string,
	progress discovery.RunProgress,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return discovery.ErrNotFound
	}
	run.Progress = progress
	s.runs[runID] = run
	return nil
}

// AppendRunError appends one per-source error entry.
func (s *RunStore) AppendRunError(_ context.Context, runID string, runErr discovery.RunError) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return discovery.ErrNotFound
	}
	run.Errors = append(run.Errors, runErr)
	s.runs[runID] = run
	return nil
}

// GetRun fetches a run by ID.
func (s *RunStore) GetRun(_ context.Context, runID string) (discovery.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return discovery.Run{}, discovery.ErrNotFound
	}
	return cloneRun(run), nil
}

// ListRuns returns a user's runs, newest first, optionally filtered by
// status and capped at limit.
func (s *RunStore) ListRuns(
	_ context.Context,
	userID string,
	status discovery.RunStatus,
	limit int,
) ([]discovery.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []discovery.Run
	for _, run := range s.runs {
		if run.UserID != userID {
			continue
		}
		if status != "" && run.Status != status {
			continue
		}
		out = append(out, cloneRun(run))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// LatestRun returns the most recently created run for a user.
func (s *RunStore) LatestRun(ctx context.Context, userID string) (discovery.Run, error) {
	runs, err := s.ListRuns(ctx, userID, "", 1)
	if err != nil {
		return discovery.Run{}, err
	}
	if len(runs) == 0 {
		return discovery.Run{}, discovery.ErrNotFound
	}
	return runs[0], nil
}

func cloneRun(run discovery.Run) discovery.Run {
	cp := run
	cp.SourceIDs = append([]string(nil), run.SourceIDs...)
	cp.Errors = append([]discovery.RunError(nil), run.Errors...)
	return cp
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}
