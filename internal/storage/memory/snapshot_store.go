// Package memory provides in-memory store implementations for development
// and tests.
package memory

import (
	"context"
	"sync"

	"github.com/adtechlab/newswire/internal/pipeline"
)

// SnapshotStore keeps run-versioned snapshots in memory. It implements
// pipeline.SnapshotStore.
type SnapshotStore struct {
	mu        sync.RWMutex
	snapshots map[pipeline.Namespace]map[string][]pipeline.Article
}

// NewSnapshotStore creates an empty SnapshotStore.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{
		snapshots: make(map[pipeline.Namespace]map[string][]pipeline.Article),
	}
}

// WriteSnapshot stores a copy of the articles under (namespace, runID).
// The copy is installed in one step so readers never observe a partial
// snapshot.
func (s *SnapshotStore) WriteSnapshot(_ context.Context, ns pipeline.Namespace, runID string, articles []pipeline.Article) error {
	cp := append([]pipeline.Article(nil), articles...)

	s.mu.Lock()
	defer s.mu.Unlock()
	byRun, ok := s.snapshots[ns]
	if !ok {
		byRun = make(map[string][]pipeline.Article)
		s.snapshots[ns] = byRun
	}
	byRun[runID] = cp
	return nil
}

// ReadSnapshot returns a copy of the snapshot a run wrote.
func (s *SnapshotStore) ReadSnapshot(_ context.Context, ns pipeline.Namespace, runID string) ([]pipeline.Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byRun, ok := s.snapshots[ns]
	if !ok {
		return nil, pipeline.ErrSnapshotNotFound
	}
	articles, ok := byRun[runID]
	if !ok {
		return nil, pipeline.ErrSnapshotNotFound
	}
	return append([]pipeline.Article(nil), articles...), nil
}
