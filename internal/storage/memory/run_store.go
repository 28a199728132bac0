package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/adtechlab/newswire/internal/pipeline"
)

// RunStore keeps run history in memory. It implements pipeline.RunStore.
type RunStore struct {
	mu   sync.RWMutex
	runs map[string]pipeline.Run
}

// NewRunStore creates an empty RunStore.
func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[string]pipeline.Run)}
}

// StartRun records a new run.
func (s *RunStore) StartRun(_ context.Context, run pipeline.Run) error {
	if run.ID == "" {
		return fmt.Errorf("run id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; exists {
		return fmt.Errorf("run %s already exists", run.ID)
	}
	s.runs[run.ID] = run
	return nil
}

// CompleteRun replaces the stored run with its terminal state.
func (s *RunStore) CompleteRun(_ context.Context, run pipeline.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, exists := s.runs[run.ID]
	if !exists {
		return pipeline.ErrRunNotFound
	}
	stored.Status = run.Status
	stored.FinishedAt = run.FinishedAt
	stored.ErrorText = run.ErrorText
	stored.ArticleCount = run.ArticleCount
	stored.RemovedCount = run.RemovedCount
	stored.Cursor = run.Cursor
	stored.Metadata = run.Metadata
	s.runs[run.ID] = stored
	return nil
}

// GetRun retrieves a run by ID.
func (s *RunStore) GetRun(_ context.Context, runID string) (pipeline.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return pipeline.Run{}, pipeline.ErrRunNotFound
	}
	return run, nil
}

// ListRuns returns runs started after the given time, newest first.
func (s *RunStore) ListRuns(_ context.Context, status *pipeline.RunStatus, after time.Time, limit int) ([]pipeline.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []pipeline.Run
	for _, run := range s.runs {
		if status != nil && run.Status != *status {
			continue
		}
		if !run.StartedAt.After(after) {
			continue
		}
		out = append(out, run)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// LastRun returns the most recent run of a stage with the given status.
func (s *RunStore) LastRun(_ context.Context, stage pipeline.StageName, status pipeline.RunStatus) (pipeline.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best pipeline.Run
	found := false
	for _, run := range s.runs {
		if run.Stage != stage || run.Status != status {
			continue
		}
		if !found || run.StartedAt.After(best.StartedAt) {
			best = run
			found = true
		}
	}
	if !found {
		return pipeline.Run{}, pipeline.ErrRunNotFound
	}
	return best, nil
}
