// Package devserver is a self-contained stand-in for the remote ledger
// authority, useful for local development and end-to-end tests. It serves
// the same wire format the real authority does, including decimal-string
// monetary values and the split "message"/"error" failure bodies.
package devserver

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

var (
	// ErrNotFound means the entity does not exist or belongs to another user.
	ErrNotFound = errors.New("not found")
	// ErrEmailTaken means an account with that email already exists.
	ErrEmailTaken = errors.New("email already in use")
	// ErrInsufficientFunds means a spend exceeds the card's balance.
	ErrInsufficientFunds = errors.New("insufficient balance")
)

// User is a registered account.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Card is one prepaid fuel card.
type Card struct {
	ID        int64
	UserID    int64
	Name      string
	Balance   float64
	CreatedAt time.Time
}

// Transaction is one confirmed ledger entry. Amount is unsigned; Type
// ("topup" or "spend") carries the direction. Fuel fields are zero for
// top-ups.
type Transaction struct {
	ID         int64
	CardID     int64
	Type       string
	Amount     float64
	NewBalance float64
	FuelPrice  float64
	Liters     float64
	FuelType   string
	Date       time.Time
}

// Store persists users, cards and transactions. Balance mutations are atomic:
// TopUp and Spend check, update and record in one step.
type Store interface {
	CreateUser(ctx context.Context, email, passwordHash string) (*User, error)
	UserByEmail(ctx context.Context, email string) (*User, error)
	UserByID(ctx context.Context, id int64) (*User, error)
	SetPassword(ctx context.Context, userID int64, passwordHash string) error
	CountCards(ctx context.Context, userID int64) (int, error)

	CreateCard(ctx context.Context, userID int64, name string, balance float64) (*Card, error)
	CardsByUser(ctx context.Context, userID int64) ([]Card, error)
	CardByID(ctx context.Context, userID, cardID int64) (*Card, error)
	DeleteCard(ctx context.Context, userID, cardID int64) error

	TopUp(ctx context.Context, userID, cardID int64, amount float64) (*Card, error)
	Spend(ctx context.Context, userID, cardID int64, amount, fuelPrice float64, fuelType string) (*Transaction, *Card, error)
	TransactionsByCard(ctx context.Context, userID, cardID int64) ([]Transaction, error)
	Summary(ctx context.Context, userID, cardID int64, from, to *time.Time) (spent, liters float64, err error)
}

// MemoryStore is the in-process Store used by default. All state is lost on
// restart, which is exactly what a development stub wants.
type MemoryStore struct {
	mu           sync.Mutex
	users        map[int64]*User
	cards        map[int64]*Card
	transactions map[int64][]Transaction // keyed by card ID, newest first
	nextUserID   int64
	nextCardID   int64
	nextTxID     int64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:        make(map[int64]*User),
		cards:        make(map[int64]*Card),
		transactions: make(map[int64][]Transaction),
	}
}

func (s *MemoryStore) CreateUser(_ context.Context, email, passwordHash string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Email == email {
			return nil, ErrEmailTaken
		}
	}

	s.nextUserID++
	u := &User{
		ID:           s.nextUserID,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	s.users[u.ID] = u
	out := *u
	return &out, nil
}

func (s *MemoryStore) UserByEmail(_ context.Context, email string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			out := *u
			return &out, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) UserByID(_ context.Context, id int64) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	out := *u
	return &out, nil
}

func (s *MemoryStore) SetPassword(_ context.Context, userID int64, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

func (s *MemoryStore) CountCards(_ context.Context, userID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.cards {
		if c.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) CreateCard(_ context.Context, userID int64, name string, balance float64) (*Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextCardID++
	c := &Card{
		ID:        s.nextCardID,
		UserID:    userID,
		Name:      name,
		Balance:   balance,
		CreatedAt: time.Now().UTC(),
	}
	s.cards[c.ID] = c

	if balance > 0 {
		s.nextTxID++
		s.transactions[c.ID] = []Transaction{{
			ID:         s.nextTxID,
			CardID:     c.ID,
			Type:       "topup",
			Amount:     balance,
			NewBalance: balance,
			Date:       time.Now().UTC(),
		}}
	}

	out := *c
	return &out, nil
}

func (s *MemoryStore) CardsByUser(_ context.Context, userID int64) ([]Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Card
	for _, c := range s.cards {
		if c.UserID == userID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) CardByID(_ context.Context, userID, cardID int64) (*Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.ownedCard(userID, cardID)
	if c == nil {
		return nil, nil
	}
	out := *c
	return &out, nil
}

func (s *MemoryStore) DeleteCard(_ context.Context, userID, cardID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ownedCard(userID, cardID) == nil {
		return ErrNotFound
	}
	delete(s.cards, cardID)
	delete(s.transactions, cardID)
	return nil
}

func (s *MemoryStore) TopUp(_ context.Context, userID, cardID int64, amount float64) (*Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.ownedCard(userID, cardID)
	if c == nil {
		return nil, ErrNotFound
	}

	c.Balance += amount
	s.nextTxID++
	s.prepend(cardID, Transaction{
		ID:         s.nextTxID,
		CardID:     cardID,
		Type:       "topup",
		Amount:     amount,
		NewBalance: c.Balance,
		Date:       time.Now().UTC(),
	})

	out := *c
	return &out, nil
}

func (s *MemoryStore) Spend(_ context.Context, userID, cardID int64, amount, fuelPrice float64, fuelType string) (*Transaction, *Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.ownedCard(userID, cardID)
	if c == nil {
		return nil, nil, ErrNotFound
	}
	if amount > c.Balance {
		return nil, nil, ErrInsufficientFunds
	}

	var liters float64
	if fuelPrice > 0 {
		liters = amount / fuelPrice
	}

	c.Balance -= amount
	s.nextTxID++
	tx := Transaction{
		ID:         s.nextTxID,
		CardID:     cardID,
		Type:       "spend",
		Amount:     amount,
		NewBalance: c.Balance,
		FuelPrice:  fuelPrice,
		Liters:     liters,
		FuelType:   fuelType,
		Date:       time.Now().UTC(),
	}
	s.prepend(cardID, tx)

	card := *c
	return &tx, &card, nil
}

func (s *MemoryStore) TransactionsByCard(_ context.Context, userID, cardID int64) ([]Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ownedCard(userID, cardID) == nil {
		return nil, ErrNotFound
	}
	txs := s.transactions[cardID]
	out := make([]Transaction, len(txs))
	copy(out, txs)
	return out, nil
}

func (s *MemoryStore) Summary(_ context.Context, userID, cardID int64, from, to *time.Time) (float64, float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ownedCard(userID, cardID) == nil {
		return 0, 0, ErrNotFound
	}

	var spent, liters float64
	for _, tx := range s.transactions[cardID] {
		if tx.Type != "spend" {
			continue
		}
		if from != nil && tx.Date.Before(*from) {
			continue
		}
		if to != nil && tx.Date.After(*to) {
			continue
		}
		spent += tx.Amount
		liters += tx.Liters
	}
	return spent, liters, nil
}

// ownedCard must be called with the lock held.
func (s *MemoryStore) ownedCard(userID, cardID int64) *Card {
	c, ok := s.cards[cardID]
	if !ok || c.UserID != userID {
		return nil
	}
	return c
}

func (s *MemoryStore) prepend(cardID int64, tx Transaction) {
	s.transactions[cardID] = append([]Transaction{tx}, s.transactions[cardID]...)
}
