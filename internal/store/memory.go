package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Memory is the default in-process backend.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]Entry

	notify *notifier
}

func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]Entry),
		notify:  newNotifier(),
	}
}

func (m *Memory) Get(ctx context.Context, accountID string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[accountID]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (m *Memory) List(ctx context.Context) ([]Entry, error) {
	m.mu.RLock()
	out := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out, nil
}

func (m *Memory) Put(ctx context.Context, accountID string, res PollResult) error {
	m.mu.Lock()
	var prev *Entry
	if p, ok := m.entries[accountID]; ok {
		prev = &p
	}
	e := apply(prev, accountID, res)
	m.entries[accountID] = e
	m.mu.Unlock()

	m.notify.publish(e)
	return nil
}

func (m *Memory) Delete(ctx context.Context, accountID string) error {
	m.mu.Lock()
	delete(m.entries, accountID)
	m.mu.Unlock()

	m.notify.dropAccount(accountID)
	return nil
}

func (m *Memory) Subscribe(accountID string, fn func(Entry)) uuid.UUID {
	return m.notify.subscribe(accountID, fn)
}

func (m *Memory) Unsubscribe(id uuid.UUID) {
	m.notify.unsubscribe(id)
}

func (m *Memory) Close() error {
	m.notify.close()
	return nil
}
