package mocks

import (
	"context"
	"sync"

	"github.com/edgestack/logcenter/internal/domain"
)

// MockEventSink records every event it receives, for asserting on logger
// behavior in tests.
type MockEventSink struct {
	mu         sync.Mutex
	Entries    []domain.EntryEvent
	Errors     []domain.ErrorEvent
	Lifecycles []domain.LifecycleEvent
}

func (m *MockEventSink) OnEntry(ev domain.EntryEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Entries = append(m.Entries, ev)
}

func (m *MockEventSink) OnError(ev domain.ErrorEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Errors = append(m.Errors, ev)
}

func (m *MockEventSink) OnLifecycle(ev domain.LifecycleEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Lifecycles = append(m.Lifecycles, ev)
}

// EntryCount returns the number of entry events seen so far.
func (m *MockEventSink) EntryCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Entries)
}

// ErrorCount returns the number of error events seen so far.
func (m *MockEventSink) ErrorCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Errors)
}

// MockKeyPersistence is an in-memory implementation of domain.KeyPersistence.
type MockKeyPersistence struct {
	mu      sync.Mutex
	Keys    map[string]domain.APIKey
	LoadErr error
	SaveErr error
}

func NewMockKeyPersistence() *MockKeyPersistence {
	return &MockKeyPersistence{Keys: make(map[string]domain.APIKey)}
}

func (m *MockKeyPersistence) LoadAll(ctx context.Context) ([]domain.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LoadErr != nil {
		return nil, m.LoadErr
	}
	out := make([]domain.APIKey, 0, len(m.Keys))
	for _, k := range m.Keys {
		out = append(out, k)
	}
	return out, nil
}

func (m *MockKeyPersistence) Save(ctx context.Context, key domain.APIKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.Keys[key.Key] = key
	return nil
}

func (m *MockKeyPersistence) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Keys, key)
	return nil
}

// MockAuditSink records every audit record batch.
type MockAuditSink struct {
	mu       sync.Mutex
	Records  []domain.AuditRecord
	WriteErr error
}

func (m *MockAuditSink) WriteAuditBatch(ctx context.Context, records []domain.AuditRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return m.WriteErr
	}
	m.Records = append(m.Records, records...)
	return nil
}

// RecordCount returns the number of audit records written so far.
func (m *MockAuditSink) RecordCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Records)
}
