// Package postgres backs the devserver with a real database, for setups
// where state must survive restarts.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fuelcard-client/config"
	"fuelcard-client/internal/devserver"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Pool is the subset of pgxpool.Pool the store needs. pgxmock implements it
// for unit tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

// NewPool creates a PostgreSQL connection pool using pgx.
func NewPool(ctx context.Context, cfg config.DatabaseConfig, log zerolog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	log.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("dbname", cfg.DBName).
		Msg("PostgreSQL connection pool established")

	return pool, nil
}

// Migrate creates the devserver schema if it does not exist yet.
func Migrate(ctx context.Context, pool Pool) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id BIGSERIAL PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS cards (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			card_name TEXT NOT NULL,
			balance DOUBLE PRECISION NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS transactions (
			id BIGSERIAL PRIMARY KEY,
			card_id BIGINT NOT NULL REFERENCES cards(id) ON DELETE CASCADE,
			transaction_type TEXT NOT NULL,
			amount DOUBLE PRECISION NOT NULL,
			new_balance DOUBLE PRECISION NOT NULL,
			fuel_price DOUBLE PRECISION NOT NULL DEFAULT 0,
			liters DOUBLE PRECISION NOT NULL DEFAULT 0,
			fuel_type TEXT NOT NULL DEFAULT '',
			transaction_date TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_card_date
			ON transactions(card_id, transaction_date DESC)`,
	}
	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("applying schema: %w", err)
		}
	}
	return nil
}

// Store implements devserver.Store on PostgreSQL.
type Store struct {
	pool Pool
}

// NewStore creates a Store over the given pool.
func NewStore(pool Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) CreateUser(ctx context.Context, email, passwordHash string) (*devserver.User, error) {
	query := `INSERT INTO users (email, password_hash) VALUES ($1, $2)
		RETURNING id, email, password_hash, created_at`

	u := &devserver.User{}
	err := s.pool.QueryRow(ctx, query, email, passwordHash).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, devserver.ErrEmailTaken
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

func (s *Store) UserByEmail(ctx context.Context, email string) (*devserver.User, error) {
	query := `SELECT id, email, password_hash, created_at FROM users WHERE email = $1`
	return s.scanUser(s.pool.QueryRow(ctx, query, email))
}

func (s *Store) UserByID(ctx context.Context, id int64) (*devserver.User, error) {
	query := `SELECT id, email, password_hash, created_at FROM users WHERE id = $1`
	return s.scanUser(s.pool.QueryRow(ctx, query, id))
}

func (s *Store) scanUser(row pgx.Row) (*devserver.User, error) {
	u := &devserver.User{}
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *Store) SetPassword(ctx context.Context, userID int64, passwordHash string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET password_hash = $1 WHERE id = $2`, passwordHash, userID)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return devserver.ErrNotFound
	}
	return nil
}

func (s *Store) CountCards(ctx context.Context, userID int64) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM cards WHERE user_id = $1`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count cards: %w", err)
	}
	return n, nil
}

func (s *Store) CreateCard(ctx context.Context, userID int64, name string, balance float64) (*devserver.Card, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	c := &devserver.Card{}
	err = tx.QueryRow(ctx,
		`INSERT INTO cards (user_id, card_name, balance) VALUES ($1, $2, $3)
			RETURNING id, user_id, card_name, balance, created_at`,
		userID, name, balance).
		Scan(&c.ID, &c.UserID, &c.Name, &c.Balance, &c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert card: %w", err)
	}

	if balance > 0 {
		_, err = tx.Exec(ctx,
			`INSERT INTO transactions (card_id, transaction_type, amount, new_balance)
				VALUES ($1, 'topup', $2, $2)`,
			c.ID, balance)
		if err != nil {
			return nil, fmt.Errorf("record initial balance: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return c, nil
}

func (s *Store) CardsByUser(ctx context.Context, userID int64) ([]devserver.Card, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, card_name, balance, created_at FROM cards
			WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}
	defer rows.Close()

	var out []devserver.Card
	for rows.Next() {
		var c devserver.Card
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &c.Balance, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan card: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) CardByID(ctx context.Context, userID, cardID int64) (*devserver.Card, error) {
	c := &devserver.Card{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, card_name, balance, created_at FROM cards
			WHERE id = $1 AND user_id = $2`, cardID, userID).
		Scan(&c.ID, &c.UserID, &c.Name, &c.Balance, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get card: %w", err)
	}
	return c, nil
}

func (s *Store) DeleteCard(ctx context.Context, userID, cardID int64) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM cards WHERE id = $1 AND user_id = $2`, cardID, userID)
	if err != nil {
		return fmt.Errorf("delete card: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return devserver.ErrNotFound
	}
	return nil
}

func (s *Store) TopUp(ctx context.Context, userID, cardID int64, amount float64) (*devserver.Card, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	c, err := s.lockCard(ctx, tx, userID, cardID)
	if err != nil {
		return nil, err
	}

	c.Balance += amount
	if _, err := tx.Exec(ctx,
		`UPDATE cards SET balance = $1 WHERE id = $2`, c.Balance, cardID); err != nil {
		return nil, fmt.Errorf("update balance: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO transactions (card_id, transaction_type, amount, new_balance)
			VALUES ($1, 'topup', $2, $3)`,
		cardID, amount, c.Balance); err != nil {
		return nil, fmt.Errorf("record top-up: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return c, nil
}

func (s *Store) Spend(ctx context.Context, userID, cardID int64, amount, fuelPrice float64, fuelType string) (*devserver.Transaction, *devserver.Card, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	c, err := s.lockCard(ctx, tx, userID, cardID)
	if err != nil {
		return nil, nil, err
	}
	if amount > c.Balance {
		return nil, nil, devserver.ErrInsufficientFunds
	}

	var liters float64
	if fuelPrice > 0 {
		liters = amount / fuelPrice
	}
	c.Balance -= amount

	if _, err := tx.Exec(ctx,
		`UPDATE cards SET balance = $1 WHERE id = $2`, c.Balance, cardID); err != nil {
		return nil, nil, fmt.Errorf("update balance: %w", err)
	}

	entry := &devserver.Transaction{
		CardID:     cardID,
		Type:       "spend",
		Amount:     amount,
		NewBalance: c.Balance,
		FuelPrice:  fuelPrice,
		Liters:     liters,
		FuelType:   fuelType,
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO transactions (card_id, transaction_type, amount, new_balance, fuel_price, liters, fuel_type)
			VALUES ($1, 'spend', $2, $3, $4, $5, $6)
			RETURNING id, transaction_date`,
		cardID, amount, c.Balance, fuelPrice, liters, fuelType).
		Scan(&entry.ID, &entry.Date)
	if err != nil {
		return nil, nil, fmt.Errorf("record spend: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("commit: %w", err)
	}
	return entry, c, nil
}

// lockCard fetches a card with FOR UPDATE inside tx. Missing or foreign cards
// report ErrNotFound.
func (s *Store) lockCard(ctx context.Context, tx pgx.Tx, userID, cardID int64) (*devserver.Card, error) {
	c := &devserver.Card{}
	err := tx.QueryRow(ctx,
		`SELECT id, user_id, card_name, balance, created_at FROM cards
			WHERE id = $1 AND user_id = $2 FOR UPDATE`, cardID, userID).
		Scan(&c.ID, &c.UserID, &c.Name, &c.Balance, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, devserver.ErrNotFound
		}
		return nil, fmt.Errorf("lock card: %w", err)
	}
	return c, nil
}

func (s *Store) TransactionsByCard(ctx context.Context, userID, cardID int64) ([]devserver.Transaction, error) {
	if c, err := s.CardByID(ctx, userID, cardID); err != nil {
		return nil, err
	} else if c == nil {
		return nil, devserver.ErrNotFound
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, card_id, transaction_type, amount, new_balance, fuel_price, liters, fuel_type, transaction_date
			FROM transactions WHERE card_id = $1 ORDER BY transaction_date DESC, id DESC`, cardID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []devserver.Transaction
	for rows.Next() {
		var t devserver.Transaction
		if err := rows.Scan(&t.ID, &t.CardID, &t.Type, &t.Amount, &t.NewBalance,
			&t.FuelPrice, &t.Liters, &t.FuelType, &t.Date); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) Summary(ctx context.Context, userID, cardID int64, from, to *time.Time) (float64, float64, error) {
	if c, err := s.CardByID(ctx, userID, cardID); err != nil {
		return 0, 0, err
	} else if c == nil {
		return 0, 0, devserver.ErrNotFound
	}

	query := `SELECT COALESCE(SUM(amount), 0), COALESCE(SUM(liters), 0)
		FROM transactions WHERE card_id = $1 AND transaction_type = 'spend'`
	args := []any{cardID}
	if from != nil {
		args = append(args, *from)
		query += fmt.Sprintf(" AND transaction_date >= $%d", len(args))
	}
	if to != nil {
		args = append(args, *to)
		query += fmt.Sprintf(" AND transaction_date <= $%d", len(args))
	}

	var spent, liters float64
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&spent, &liters); err != nil {
		return 0, 0, fmt.Errorf("summarize spending: %w", err)
	}
	return spent, liters, nil
}
