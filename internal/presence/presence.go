// Package presence tracks which users are currently connected to a lobby's
// real-time channel. Presence is advisory UI state derived from channel
// subscribe/unsubscribe events; it is never consulted for membership decisions
// and it is acceptable to lose it on restart.
package presence

import (
	"context"
	"sync"
)

// Tracker records connection-level presence per lobby code. Add and Remove are
// idempotent: adding a present user or removing an absent one is a no-op, so
// out-of-order subscribe/unsubscribe events are harmless.
type Tracker interface {
	Add(ctx context.Context, code string, userID uint) error
	Remove(ctx context.Context, code string, userID uint) error
	Online(ctx context.Context, code string) ([]uint, error)
}

// Memory is the process-local tracker used in single-process deployments and
// tests.
type Memory struct {
	mu     sync.RWMutex
	online map[string]map[uint]struct{}
}

func NewMemory() *Memory {
	return &Memory{online: make(map[string]map[uint]struct{})}
}

func (m *Memory) Add(_ context.Context, code string, userID uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.online[code]; !ok {
		m.online[code] = make(map[uint]struct{})
	}
	m.online[code][userID] = struct{}{}
	return nil
}

func (m *Memory) Remove(_ context.Context, code string, userID uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if users, ok := m.online[code]; ok {
		delete(users, userID)
		if len(users) == 0 {
			delete(m.online, code)
		}
	}
	return nil
}

func (m *Memory) Online(_ context.Context, code string) ([]uint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]uint, 0, len(m.online[code]))
	for id := range m.online[code] {
		ids = append(ids, id)
	}
	return ids, nil
}
