package store

import (
	"context"
	"sync"
)

// Memory keeps tables in process memory. Used by tests and the dev server.
type Memory struct {
	mu     sync.RWMutex
	tables map[string][]Row
}

// NewMemory returns an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{tables: make(map[string][]Row)}
}

func (m *Memory) Ensure(_ context.Context, t Table) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tables[t.Name]; !ok {
		m.tables[t.Name] = []Row{}
	}
	return nil
}

func (m *Memory) LoadAll(_ context.Context, t Table) ([]Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rows := m.tables[t.Name]
	out := make([]Row, len(rows))
	for i, r := range rows {
		out[i] = r.Clone()
	}
	return out, nil
}

func (m *Memory) SaveAll(_ context.Context, t Table, rows []Row) error {
	out := make([]Row, len(rows))
	for i, r := range rows {
		out[i] = project(t, r)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[t.Name] = out
	return nil
}

func (m *Memory) Close() error { return nil }

// project keeps only the table's columns, filling missing ones with "".
func project(t Table, r Row) Row {
	out := make(Row, len(t.Columns))
	for _, c := range t.Columns {
		out[c] = r[c]
	}
	return out
}
