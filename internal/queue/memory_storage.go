package queue

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStorage keeps queues in process memory. It honours the same
// contract as SQLiteStorage and backs tests and memory:// DSNs.
type MemoryStorage struct {
	schema Schema

	mu         sync.RWMutex
	containers map[string]map[string]Entry
	opens      int
}

func NewMemoryStorage(schema Schema) *MemoryStorage {
	return &MemoryStorage{schema: schema}
}

func (m *MemoryStorage) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.containers == nil {
		m.containers = make(map[string]map[string]Entry, len(m.schema.Categories))
	}
	for _, c := range m.schema.Categories {
		if _, ok := m.containers[c]; !ok {
			m.containers[c] = map[string]Entry{}
		}
	}
	m.opens++
	return nil
}

func (m *MemoryStorage) GetAll(ctx context.Context, category string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	container, err := m.containerLocked(category)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(container))
	for _, e := range container {
		out = append(out, cloneEntry(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStorage) Put(ctx context.Context, entry Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	container, err := m.containerLocked(entry.Category)
	if err != nil {
		return err
	}
	if _, exists := container[entry.ID]; exists {
		return nil
	}
	container[entry.ID] = cloneEntry(entry)
	return nil
}

func (m *MemoryStorage) Delete(ctx context.Context, category, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	container, err := m.containerLocked(category)
	if err != nil {
		return err
	}
	delete(container, id)
	return nil
}

func (m *MemoryStorage) Close() error {
	return nil
}

// Opens reports how many times Open ran, for tests asserting lazy opening.
func (m *MemoryStorage) Opens() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.opens
}

func (m *MemoryStorage) containerLocked(category string) (map[string]Entry, error) {
	if m.containers == nil {
		return nil, ErrNotOpen
	}
	container, ok := m.containers[category]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCategory, category)
	}
	return container, nil
}

func cloneEntry(e Entry) Entry {
	if e.Payload != nil {
		e.Payload = append([]byte(nil), e.Payload...)
	}
	return e
}
