package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/edgestack/logcenter/internal/domain"
)

const keyHash = "logcenter:apikeys"

// KeyRepository persists the API key store in a Redis hash so keys survive
// restarts. It implements domain.KeyPersistence.
type KeyRepository struct {
	client *redis.Client
	logger *slog.Logger
}

// NewKeyRepository creates the repository and verifies connectivity.
func NewKeyRepository(ctx context.Context, client *redis.Client, logger *slog.Logger) (*KeyRepository, error) {
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &KeyRepository{
		client: client,
		logger: logger.With("component", "redis_key_repository"),
	}, nil
}

// LoadAll returns every persisted key. Corrupt hash fields are skipped.
func (r *KeyRepository) LoadAll(ctx context.Context) ([]domain.APIKey, error) {
	fields, err := r.client.HGetAll(ctx, keyHash).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load api keys from redis: %w", err)
	}

	keys := make([]domain.APIKey, 0, len(fields))
	for field, raw := range fields {
		var k domain.APIKey
		if err := json.Unmarshal([]byte(raw), &k); err != nil {
			r.logger.Warn("skipping corrupt persisted api key", "field", field, "error", err)
			continue
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// Save upserts one key.
func (r *KeyRepository) Save(ctx context.Context, key domain.APIKey) error {
	data, err := json.Marshal(key)
	if err != nil {
		return fmt.Errorf("failed to marshal api key: %w", err)
	}
	if err := r.client.HSet(ctx, keyHash, key.Key, data).Err(); err != nil {
		return fmt.Errorf("failed to persist api key: %w", err)
	}
	return nil
}

// Delete removes one key by its full value.
func (r *KeyRepository) Delete(ctx context.Context, key string) error {
	if err := r.client.HDel(ctx, keyHash, key).Err(); err != nil {
		return fmt.Errorf("failed to delete persisted api key: %w", err)
	}
	return nil
}
