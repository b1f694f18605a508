package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"fuelcard-client/internal/core/domain"
)

const (
	tokenFile = "user_token"
	cardFile  = "selected_card.json"
)

// Store is the default durable key-value store: one small file per key under
// a state directory. It backs both the session token and the selected-card
// snapshot.
type Store struct {
	dir string
}

// New creates a file store rooted at dir, creating it if needed. An empty dir
// resolves to <UserConfigDir>/fuelcard.
func New(dir string) (*Store, error) {
	if dir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("resolve config dir: %w", err)
		}
		dir = filepath.Join(base, "fuelcard")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Save implements ports.TokenStore.
func (s *Store) Save(_ context.Context, token string) error {
	if err := os.WriteFile(filepath.Join(s.dir, tokenFile), []byte(token), 0o600); err != nil {
		return fmt.Errorf("write token: %w", err)
	}
	return nil
}

// Load implements ports.TokenStore. A missing file is an absent token, not an
// error.
func (s *Store) Load(_ context.Context) (string, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, tokenFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("read token: %w", err)
	}
	return string(data), nil
}

// Clear implements ports.TokenStore.
func (s *Store) Clear(_ context.Context) error {
	if err := os.Remove(filepath.Join(s.dir, tokenFile)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove token: %w", err)
	}
	return nil
}

// SaveCard implements ports.SnapshotStore.
func (s *Store) SaveCard(_ context.Context, card domain.Card) error {
	data, err := json.Marshal(card)
	if err != nil {
		return fmt.Errorf("marshal card snapshot: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, cardFile), data, 0o600); err != nil {
		return fmt.Errorf("write card snapshot: %w", err)
	}
	return nil
}

// LoadCard implements ports.SnapshotStore. Returns nil when nothing is stored.
func (s *Store) LoadCard(_ context.Context) (*domain.Card, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, cardFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read card snapshot: %w", err)
	}
	var card domain.Card
	if err := json.Unmarshal(data, &card); err != nil {
		return nil, fmt.Errorf("unmarshal card snapshot: %w", err)
	}
	return &card, nil
}

// ClearCard implements ports.SnapshotStore.
func (s *Store) ClearCard(_ context.Context) error {
	if err := os.Remove(filepath.Join(s.dir, cardFile)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove card snapshot: %w", err)
	}
	return nil
}
