// Package memstore is a process-local domain.StateStore, backing the CLI's
// one-shot commands and the engine's own test suite. It never touches disk.
package memstore

import (
	"context"
	"sync"

	"github.com/tutu-network/tutu/internal/domain"
)

// Store is a concurrency-safe, in-memory domain.StateStore.
type Store struct {
	mu    sync.RWMutex
	users map[string]domain.PersistedState
}

// New returns an empty Store.
func New() *Store {
	return &Store{users: make(map[string]domain.PersistedState)}
}

// Load returns a deep-enough copy of the stored state for userID.
func (s *Store) Load(_ context.Context, userID string) (*domain.PersistedState, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.users[userID]
	if !ok {
		return nil, false, nil
	}
	clone := cloneState(state)
	return &clone, true, nil
}

// Save stores a copy of state for userID, overwriting any prior value.
func (s *Store) Save(_ context.Context, userID string, state *domain.PersistedState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[userID] = cloneState(*state)
	return nil
}

func cloneState(s domain.PersistedState) domain.PersistedState {
	out := s
	out.Mdm = make(map[string]domain.MdmItemState, len(s.Mdm))
	for k, v := range s.Mdm {
		out.Mdm[k] = v
	}
	out.Bandit.A = cloneMatrix(s.Bandit.A)
	out.Bandit.L = cloneMatrix(s.Bandit.L)
	out.Bandit.B = append([]float64(nil), s.Bandit.B...)
	out.Mastery.Attempts = append([]domain.MasteryAttempt(nil), s.Mastery.Attempts...)
	out.Vark.Visual.Weights = append([]float64(nil), s.Vark.Visual.Weights...)
	out.Vark.Auditory.Weights = append([]float64(nil), s.Vark.Auditory.Weights...)
	out.Vark.Reading.Weights = append([]float64(nil), s.Vark.Reading.Weights...)
	out.Vark.Kinesthetic.Weights = append([]float64(nil), s.Vark.Kinesthetic.Weights...)
	if s.State.ColdStart.ClassificationScores != nil {
		out.State.ColdStart.ClassificationScores = make(map[string]float64, len(s.State.ColdStart.ClassificationScores))
		for k, v := range s.State.ColdStart.ClassificationScores {
			out.State.ColdStart.ClassificationScores[k] = v
		}
	}
	return out
}

func cloneMatrix(m [][]float64) [][]float64 {
	if m == nil {
		return nil
	}
	out := make([][]float64, len(m))
	for i, row := range m {
		out[i] = append([]float64(nil), row...)
	}
	return out
}
