package engine

import (
	"errors"
	"fmt"
	"sync"

	"github.com/floegence/docplanner/internal/plan"
)

var ErrEvidenceExists = errors.New("evidence already recorded")

// EvidenceStore maps evidence ids to step results. Ids are written at most once.
type EvidenceStore struct {
	mu     sync.RWMutex
	order  []string
	values map[string]string
}

func NewEvidenceStore() *EvidenceStore {
	return &EvidenceStore{values: make(map[string]string)}
}

func (s *EvidenceStore) Put(id string, value string) error {
	if !plan.IsEvidenceID(id) {
		return fmt.Errorf("invalid evidence id %q", id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[id]; ok {
		return fmt.Errorf("%w: %s", ErrEvidenceExists, id)
	}
	s.values[id] = value
	s.order = append(s.order, id)
	return nil
}

func (s *EvidenceStore) Get(id string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[id]
	return v, ok
}

func (s *EvidenceStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// IDs returns ids in write order.
func (s *EvidenceStore) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

// Snapshot returns a copy safe to hand to the resolver.
func (s *EvidenceStore) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}
