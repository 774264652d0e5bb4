package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"BarFeed/internal/domain/models"
	"BarFeed/internal/domain/repository"
)

// MemoryBarStore is an in-memory BarStore for tests and the memory storage backend.
type MemoryBarStore struct {
	mu   sync.RWMutex
	bars map[int64]models.Bar
}

var _ repository.BarStore = (*MemoryBarStore)(nil)

func NewMemoryBarStore() *MemoryBarStore {
	return &MemoryBarStore{bars: make(map[int64]models.Bar)}
}

func (s *MemoryBarStore) Latest(_ context.Context) (*models.Bar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		latest models.Bar
		found  bool
	)
	for _, b := range s.bars {
		if !found || b.Timestamp.After(latest.Timestamp) {
			latest, found = b, true
		}
	}
	if !found {
		return nil, repository.ErrNotFound
	}
	return &latest, nil
}

func (s *MemoryBarStore) Since(_ context.Context, from time.Time) ([]models.Bar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []models.Bar{}
	for _, b := range s.bars {
		if !b.Timestamp.Before(from) {
			out = append(out, b)
		}
	}
	models.SortBars(out)
	return out, nil
}

func (s *MemoryBarStore) Recent(_ context.Context, limit int) ([]models.Bar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Bar, 0, len(s.bars))
	for _, b := range s.bars {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit < 0 {
		limit = 0
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryBarStore) CountSince(_ context.Context, from time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, b := range s.bars {
		if !b.Timestamp.Before(from) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryBarStore) InsertIgnoringConflicts(_ context.Context, bars []models.Bar) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := 0
	for _, b := range bars {
		b.Timestamp = b.Minute()
		key := b.Timestamp.Unix()
		if _, exists := s.bars[key]; exists {
			continue
		}
		s.bars[key] = b
		inserted++
	}
	return inserted, nil
}

func (s *MemoryBarStore) Health(context.Context) error { return nil }

// Len returns the number of stored bars.
func (s *MemoryBarStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.bars)
}

// MemoryRunStore keeps run audits in insertion order.
type MemoryRunStore struct {
	mu   sync.RWMutex
	runs []models.RunAudit
	ids  map[string]bool
}

var _ repository.RunAuditStore = (*MemoryRunStore)(nil)

func NewMemoryRunStore() *MemoryRunStore {
	return &MemoryRunStore{ids: make(map[string]bool)}
}

func (s *MemoryRunStore) Save(_ context.Context, run *models.RunAudit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ids[run.ID] {
		return nil
	}
	s.ids[run.ID] = true
	s.runs = append(s.runs, *run)
	return nil
}

func (s *MemoryRunStore) Last(_ context.Context) (*models.RunAudit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.runs) == 0 {
		return nil, repository.ErrNotFound
	}
	last := s.runs[0]
	for _, r := range s.runs[1:] {
		if !r.StartedAt.Before(last.StartedAt) {
			last = r
		}
	}
	return &last, nil
}

// All returns a copy of every saved run, oldest first.
func (s *MemoryRunStore) All() []models.RunAudit {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.RunAudit, len(s.runs))
	copy(out, s.runs)
	return out
}
