// Package keystore persists per-user provider API keys. Keys are write-only
// from the API's point of view: readers get presence flags, never the key
// material itself.
package keystore

import (
	"context"
	"errors"
	"sync"

	"github.com/taskboard-ai/chat-gateway/internal/provider"
)

// ErrNotFound is returned when no key is stored for a user/provider pair.
var ErrNotFound = errors.New("key not found")

// Store persists provider API keys keyed by user identity.
type Store interface {
	// Set stores a key for a user/provider pair, replacing any existing one.
	Set(ctx context.Context, userID, providerName, apiKey string) error

	// Get returns the stored key, or ErrNotFound.
	Get(ctx context.Context, userID, providerName string) (string, error)

	// Providers reports which supported providers have a stored key for the
	// user. Every supported provider appears in the result.
	Providers(ctx context.Context, userID string) (map[string]bool, error)
}

// Memory is a mutex-guarded in-memory store, used when no NATS backend is
// configured and in tests.
type Memory struct {
	mu   sync.RWMutex
	keys map[string]string // userID/provider → key
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{keys: make(map[string]string)}
}

// Set stores a key.
func (m *Memory) Set(ctx context.Context, userID, providerName, apiKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[userID+"/"+providerName] = apiKey
	return nil
}

// Get returns the stored key, or ErrNotFound.
func (m *Memory) Get(ctx context.Context, userID, providerName string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	key, ok := m.keys[userID+"/"+providerName]
	if !ok {
		return "", ErrNotFound
	}
	return key, nil
}

// Providers reports key presence per supported provider.
func (m *Memory) Providers(ctx context.Context, userID string) (map[string]bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]bool, len(provider.Names()))
	for _, name := range provider.Names() {
		_, ok := m.keys[userID+"/"+string(name)]
		out[string(name)] = ok
	}
	return out, nil
}
