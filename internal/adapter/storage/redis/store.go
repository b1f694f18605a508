package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"fuelcard-client/config"
	"fuelcard-client/internal/core/domain"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	tokenKey = "fuelcard:user_token"
	cardKey  = "fuelcard:selected_card"
)

// NewClient creates a Redis client and verifies connectivity.
func NewClient(ctx context.Context, cfg config.RedisConfig, log zerolog.Logger) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	log.Info().
		Str("addr", cfg.Addr()).
		Int("db", cfg.DB).
		Msg("Redis connection established")

	return client, nil
}

// Store is the redis-backed durable key-value store, for setups where the
// client state should live off-host (kiosk terminals, shared machines).
type Store struct {
	client *goredis.Client
}

// NewStore creates a redis-backed store.
func NewStore(client *goredis.Client) *Store {
	return &Store{client: client}
}

// Save implements ports.TokenStore.
func (s *Store) Save(ctx context.Context, token string) error {
	if err := s.client.Set(ctx, tokenKey, token, 0).Err(); err != nil {
		return fmt.Errorf("redis set token: %w", err)
	}
	return nil
}

// Load implements ports.TokenStore. A missing key is an absent token.
func (s *Store) Load(ctx context.Context) (string, error) {
	val, err := s.client.Get(ctx, tokenKey).Result()
	if err != nil {
		if err == goredis.Nil {
			return "", nil
		}
		return "", fmt.Errorf("redis get token: %w", err)
	}
	return val, nil
}

// Clear implements ports.TokenStore.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, tokenKey).Err(); err != nil {
		return fmt.Errorf("redis del token: %w", err)
	}
	return nil
}

// SaveCard implements ports.SnapshotStore.
func (s *Store) SaveCard(ctx context.Context, card domain.Card) error {
	data, err := json.Marshal(card)
	if err != nil {
		return fmt.Errorf("marshal card snapshot: %w", err)
	}
	if err := s.client.Set(ctx, cardKey, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set card snapshot: %w", err)
	}
	return nil
}

// LoadCard implements ports.SnapshotStore. Returns nil when nothing is stored.
func (s *Store) LoadCard(ctx context.Context) (*domain.Card, error) {
	data, err := s.client.Get(ctx, cardKey).Bytes()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get card snapshot: %w", err)
	}
	var card domain.Card
	if err := json.Unmarshal(data, &card); err != nil {
		return nil, fmt.Errorf("unmarshal card snapshot: %w", err)
	}
	return &card, nil
}

// ClearCard implements ports.SnapshotStore.
func (s *Store) ClearCard(ctx context.Context) error {
	if err := s.client.Del(ctx, cardKey).Err(); err != nil {
		return fmt.Errorf("redis del card snapshot: %w", err)
	}
	return nil
}
