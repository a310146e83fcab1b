package storage

import (
	"codewords/codenames"
	"codewords/domain"
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MemorySessionStore keeps serialized sessions in a map, so every load hands
// out a fresh copy. State is lost on restart.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string][]byte
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string][]byte)}
}

func (m *MemorySessionStore) GetSession(ctx context.Context, id string) (*codenames.Session, error) {
	m.mu.RLock()
	state, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return decodeSession(state)
}

func (m *MemorySessionStore) SetSession(ctx context.Context, session *codenames.Session) error {
	state, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.UnexpectedDatabaseError, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.Id] = state
	return nil
}

func (m *MemorySessionStore) DeleteSession(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// MemoryGameRecords is the in-process stand-in for the games table.
type MemoryGameRecords struct {
	mu    sync.RWMutex
	games map[string]string
}

func NewMemoryGameRecords() *MemoryGameRecords {
	return &MemoryGameRecords{games: make(map[string]string)}
}

func (m *MemoryGameRecords) CreateGame(ctx context.Context, gameId, hostId string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.games[gameId] = hostId
	return nil
}

func (m *MemoryGameRecords) GameExists(ctx context.Context, gameId string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.games[gameId]
	return ok, nil
}
