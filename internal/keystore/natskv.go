package keystore

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/taskboard-ai/chat-gateway/internal/provider"
)

// BucketName is the JetStream KV bucket holding provider API keys.
const BucketName = "ai_keys"

// NATSKV is a Store backed by a NATS JetStream key-value bucket, so every
// gateway instance sees the same keys.
type NATSKV struct {
	kv jetstream.KeyValue
}

// NewNATSKV creates (or binds to) the key bucket.
func NewNATSKV(ctx context.Context, js jetstream.JetStream) (*NATSKV, error) {
	kv, err := js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      BucketName,
		Description: "Per-user LLM provider API keys",
	})
	if err != nil {
		if !errors.Is(err, jetstream.ErrBucketExists) {
			return nil, fmt.Errorf("failed to create key bucket: %w", err)
		}
		kv, err = js.KeyValue(ctx, BucketName)
		if err != nil {
			return nil, fmt.Errorf("failed to bind key bucket: %w", err)
		}
	}
	return &NATSKV{kv: kv}, nil
}

func kvKey(userID, providerName string) string {
	return fmt.Sprintf("%s.%s", userID, providerName)
}

// Set stores a key.
func (s *NATSKV) Set(ctx context.Context, userID, providerName, apiKey string) error {
	if _, err := s.kv.PutString(ctx, kvKey(userID, providerName), apiKey); err != nil {
		return fmt.Errorf("failed to store key: %w", err)
	}
	return nil
}

// Get returns the stored key, or ErrNotFound.
func (s *NATSKV) Get(ctx context.Context, userID, providerName string) (string, error) {
	entry, err := s.kv.Get(ctx, kvKey(userID, providerName))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to read key: %w", err)
	}
	return string(entry.Value()), nil
}

// Providers reports key presence per supported provider.
func (s *NATSKV) Providers(ctx context.Context, userID string) (map[string]bool, error) {
	out := make(map[string]bool, len(provider.Names()))
	for _, name := range provider.Names() {
		_, err := s.kv.Get(ctx, kvKey(userID, string(name)))
		switch {
		case err == nil:
			out[string(name)] = true
		case errors.Is(err, jetstream.ErrKeyNotFound):
			out[string(name)] = false
		default:
			return nil, fmt.Errorf("failed to read key: %w", err)
		}
	}
	return out, nil
}
