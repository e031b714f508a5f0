package manager

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/edgestack/logcenter/internal/domain"
)

// KeyPrefixLength is the number of leading characters exposed when listing
// keys. The full value is returned exactly once, at creation.
const KeyPrefixLength = 8

type keyStore struct {
	mu   sync.RWMutex
	keys map[string]domain.APIKey
}

func newKeyStore() *keyStore {
	return &keyStore{keys: make(map[string]domain.APIKey)}
}

// generateKey produces a 64-character hex key from a cryptographically strong
// random source. Uniqueness is assumed, not verified.
func generateKey() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate api key: %w", err)
	}
	return hex.EncodeToString(raw), nil
}

// Authenticate validates a presented key against the store and the required
// permission.
func (m *Manager) Authenticate(key string, required domain.Permission) (domain.AuthResult, error) {
	m.keys.mu.RLock()
	k, ok := m.keys.keys[key]
	m.keys.mu.RUnlock()

	if !ok {
		return domain.AuthResult{}, domain.ErrInvalidKey
	}
	if !k.Has(required) {
		return domain.AuthResult{}, domain.ErrInsufficientPermission
	}
	return domain.AuthResult{Name: k.Name, Permissions: k.Permissions}, nil
}

// CreateAPIKey mints a new key with the given permission set. The returned key
// carries the full value; it is never exposed again.
func (m *Manager) CreateAPIKey(ctx context.Context, name string, perms []domain.Permission) (domain.APIKey, error) {
	if name == "" {
		return domain.APIKey{}, &domain.ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if len(perms) == 0 {
		return domain.APIKey{}, &domain.ValidationError{Field: "permissions", Reason: "must not be empty"}
	}
	for _, p := range perms {
		if !domain.ValidPermission(p) {
			return domain.APIKey{}, &domain.ValidationError{Field: "permissions", Reason: fmt.Sprintf("unknown permission %q", p)}
		}
	}

	value, err := generateKey()
	if err != nil {
		return domain.APIKey{}, err
	}
	key := domain.APIKey{
		Key:         value,
		Name:        name,
		Permissions: perms,
		CreatedAt:   time.Now().UTC(),
	}

	m.keys.mu.Lock()
	m.keys.keys[value] = key
	m.keys.mu.Unlock()

	m.persistKey(ctx, key)
	m.recordAudit(ctx, "api_key_created", map[string]any{
		"name":        name,
		"prefix":      value[:KeyPrefixLength],
		"permissions": perms,
	})
	return key, nil
}

// RevokeAPIKey removes a key by its full value.
func (m *Manager) RevokeAPIKey(ctx context.Context, key string) error {
	m.keys.mu.Lock()
	k, ok := m.keys.keys[key]
	if ok {
		delete(m.keys.keys, key)
	}
	m.keys.mu.Unlock()

	if !ok {
		return domain.ErrNotFound
	}

	m.unpersistKey(ctx, key)
	m.recordAudit(ctx, "api_key_revoked", map[string]any{
		"name":   k.Name,
		"prefix": key[:KeyPrefixLength],
	})
	return nil
}

// RevokeAPIKeyByPrefix resolves a prefix to a full key and revokes it. On a
// prefix collision the first match in iteration order wins; ambiguity is not
// detected.
func (m *Manager) RevokeAPIKeyByPrefix(ctx context.Context, prefix string) error {
	if prefix == "" {
		return &domain.ValidationError{Field: "prefix", Reason: "must not be empty"}
	}

	m.keys.mu.RLock()
	full := ""
	for value := range m.keys.keys {
		if strings.HasPrefix(value, prefix) {
			full = value
			break
		}
	}
	m.keys.mu.RUnlock()

	if full == "" {
		return domain.ErrNotFound
	}
	return m.RevokeAPIKey(ctx, full)
}

// ListAPIKeys returns every key with its value masked to the exposed prefix,
// sorted by creation time.
func (m *Manager) ListAPIKeys() []domain.APIKey {
	m.keys.mu.RLock()
	out := make([]domain.APIKey, 0, len(m.keys.keys))
	for _, k := range m.keys.keys {
		masked := k
		if len(masked.Key) > KeyPrefixLength {
			masked.Key = masked.Key[:KeyPrefixLength]
		}
		out = append(out, masked)
	}
	m.keys.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// KeyCount returns the number of stored keys.
func (m *Manager) KeyCount() int {
	m.keys.mu.RLock()
	defer m.keys.mu.RUnlock()
	return len(m.keys.keys)
}

// loadPersistedKeys seeds the store from the persistence adapter, then mints
// the default admin key if the store is still empty.
func (m *Manager) loadPersistedKeys(ctx context.Context) {
	if m.keyPersist != nil {
		keys, err := m.keyPersist.LoadAll(ctx)
		if err != nil {
			m.log.Warn("failed to load persisted api keys", "error", err)
		} else {
			m.keys.mu.Lock()
			for _, k := range keys {
				m.keys.keys[k.Key] = k
			}
			m.keys.mu.Unlock()
			if len(keys) > 0 {
				m.log.Info("loaded persisted api keys", "count", len(keys))
			}
		}
	}

	if m.KeyCount() > 0 {
		return
	}

	value, err := generateKey()
	if err != nil {
		m.log.Error("failed to mint default api key", "error", err)
		return
	}
	key := domain.APIKey{
		Key:         value,
		Name:        "default-admin",
		Permissions: []domain.Permission{domain.PermissionRead, domain.PermissionWrite, domain.PermissionDelete},
		CreatedAt:   time.Now().UTC(),
	}
	m.keys.mu.Lock()
	m.keys.keys[value] = key
	m.keys.mu.Unlock()
	m.persistKey(ctx, key)

	// Logged exactly once; there is no other way to retrieve it.
	m.log.Info("minted default admin api key", "key", value)
	m.recordAudit(ctx, "default_key_minted", map[string]any{"prefix": value[:KeyPrefixLength]})
}

func (m *Manager) persistKey(ctx context.Context, key domain.APIKey) {
	if m.keyPersist == nil {
		return
	}
	if err := m.keyPersist.Save(ctx, key); err != nil {
		m.log.Warn("failed to persist api key", "name", key.Name, "error", err)
	}
}

func (m *Manager) unpersistKey(ctx context.Context, key string) {
	if m.keyPersist == nil {
		return
	}
	if err := m.keyPersist.Delete(ctx, key); err != nil {
		m.log.Warn("failed to delete persisted api key", "error", err)
	}
}
