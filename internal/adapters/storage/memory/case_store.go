package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/PabloGalante/suma-triage/internal/domain"
)

// CaseStore is an in-memory domain.CaseStore.
// It is NOT persistent and is only suitable for development / tests.
type CaseStore struct {
	mu     sync.RWMutex
	nextID domain.CaseID
	cases  map[domain.CaseID]*domain.Case
	order  []domain.CaseID
}

func NewCaseStore() *CaseStore {
	return &CaseStore{
		nextID: 1,
		cases:  make(map[domain.CaseID]*domain.Case),
	}
}

func (s *CaseStore) AddCase(_ context.Context, c *domain.Case) (domain.CaseID, error) {
	if c == nil {
		return 0, errors.New("nil case")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++

	stored := c.Clone()
	stored.ID = id
	s.cases[id] = stored
	s.order = append(s.order, id)
	return id, nil
}

// PutCase upserts, the way an object store "put" does.
func (s *CaseStore) PutCase(_ context.Context, c *domain.Case) (domain.CaseID, error) {
	if c == nil || c.ID == 0 {
		return 0, errors.New("put requires a case with an id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.cases[c.ID]; !exists {
		s.order = append(s.order, c.ID)
		if c.ID >= s.nextID {
			s.nextID = c.ID + 1
		}
	}
	s.cases[c.ID] = c.Clone()
	return c.ID, nil
}

func (s *CaseStore) GetCase(_ context.Context, id domain.CaseID) (*domain.Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.cases[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return c.Clone(), nil
}

// ListCases returns cases in key order.
func (s *CaseStore) ListCases(_ context.Context) ([]*domain.Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Case, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.cases[id].Clone())
	}
	return out, nil
}
