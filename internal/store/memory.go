package store

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/schollaertel/clocksynk/internal/models"
)

// Memory is an in-process GameStateStore with subscriber fan-out. It backs
// demo mode and tests; it honours the same last-write-wins contract as the
// persistent backends.
type Memory struct {
	mu     sync.RWMutex
	games  map[string]models.GameState
	subs   map[string]map[int]func(models.GameState)
	nextID int
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		games: make(map[string]models.GameState),
		subs:  make(map[string]map[int]func(models.GameState)),
	}
}

func (m *Memory) Get(ctx context.Context, gameID string) (models.GameState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.games[gameID]
	if !ok {
		return models.GameState{}, ErrNotFound
	}
	return state.Clone(), nil
}

func (m *Memory) Create(ctx context.Context, gameID string, initial models.GameState) (models.GameState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.games[gameID]; ok {
		return existing.Clone(), nil
	}
	m.games[gameID] = initial.Clone()
	return initial.Clone(), nil
}

func (m *Memory) Update(ctx context.Context, gameID string, state models.GameState) (models.GameState, error) {
	m.mu.Lock()
	if existing, ok := m.games[gameID]; ok && existing.LastUpdated.After(state.LastUpdated) {
		// A newer write already landed; last-write-wins keeps it.
		m.mu.Unlock()
		return existing.Clone(), nil
	}
	m.games[gameID] = state.Clone()
	fns := make([]func(models.GameState), 0, len(m.subs[gameID]))
	for _, fn := range m.subs[gameID] {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(state.Clone())
	}
	return state.Clone(), nil
}

func (m *Memory) Subscribe(ctx context.Context, gameID string, fn func(models.GameState)) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subs[gameID] == nil {
		m.subs[gameID] = make(map[int]func(models.GameState))
	}
	id := m.nextID
	m.nextID++
	m.subs[gameID][id] = fn

	log.Debug().Str("game_id", gameID).Int("subscriber", id).Msg("memory store subscription added")
	return &memorySubscription{store: m, gameID: gameID, id: id}, nil
}

type memorySubscription struct {
	store  *Memory
	gameID string
	id     int
	once   sync.Once
}

func (s *memorySubscription) Cancel() {
	s.once.Do(func() {
		s.store.mu.Lock()
		defer s.store.mu.Unlock()
		if subs, ok := s.store.subs[s.gameID]; ok {
			delete(subs, s.id)
			if len(subs) == 0 {
				delete(s.store.subs, s.gameID)
			}
		}
	})
}
