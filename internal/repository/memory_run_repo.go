package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/notifyhub/whatsapp-dispatcher/internal/domain"
)

// MemoryRunRepository keeps runs in a map. It is used in unit tests and when
// no DATABASE_URL is configured; history is lost on restart.
type MemoryRunRepository struct {
	mu   sync.RWMutex
	runs map[string]*domain.Run

	// Optional error overrides, set in tests to simulate failure paths.
	CreateErr error
	UpdateErr error
}

func NewMemoryRunRepository() *MemoryRunRepository {
	return &MemoryRunRepository{runs: make(map[string]*domain.Run)}
}

func (m *MemoryRunRepository) Create(_ context.Context, run *domain.Run) error {
	if m.CreateErr != nil {
		return m.CreateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = cloneRun(run)
	return nil
}

func (m *MemoryRunRepository) Update(_ context.Context, run *domain.Run) error {
	if m.UpdateErr != nil {
		return m.UpdateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[run.ID]; !ok {
		return domain.ErrNotFound
	}
	m.runs[run.ID] = cloneRun(run)
	return nil
}

func (m *MemoryRunRepository) GetByID(_ context.Context, id string) (*domain.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneRun(run), nil
}

func (m *MemoryRunRepository) List(_ context.Context, limit int) ([]*domain.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*domain.Run, 0, len(m.runs))
	for _, run := range m.runs {
		result = append(result, cloneRun(run))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// cloneRun copies the pointer fields too so callers never share state with
// the stored record.
func cloneRun(run *domain.Run) *domain.Run {
	c := *run
	if run.Error != nil {
		e := *run.Error
		c.Error = &e
	}
	if run.FinishedAt != nil {
		f := *run.FinishedAt
		c.FinishedAt = &f
	}
	return &c
}
