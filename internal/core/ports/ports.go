package ports

import (
	"context"
	"time"

	"fuelcard-client/internal/core/domain"
)

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks

// TokenStore persists the opaque session token across process restarts.
// Load returns "" when no token is stored.
type TokenStore interface {
	Save(ctx context.Context, token string) error
	Load(ctx context.Context) (string, error)
	Clear(ctx context.Context) error
}

// SnapshotStore persists the currently selected card so detail operations do
// not have to re-fetch card identity. Load returns nil when nothing is stored.
type SnapshotStore interface {
	SaveCard(ctx context.Context, card domain.Card) error
	LoadCard(ctx context.Context) (*domain.Card, error)
	ClearCard(ctx context.Context) error
}

// SpendResult is the authority's confirmation of a fuel purchase. All fields
// are authoritative and adopted verbatim; the request's price and type were
// only hints.
type SpendResult struct {
	NewBalance float64
	Liters     float64
	FuelPrice  float64
	FuelType   domain.FuelType
}

// HistoryPage is the authority's full transaction view for one card.
type HistoryPage struct {
	Card            domain.Card
	Transactions    []domain.Transaction // reverse-chronological
	LatestFuelPrice float64              // 0 when the card has no fuel purchases yet
}

// SummaryTotals holds aggregate spend figures for a card over a date range.
type SummaryTotals struct {
	CardName    string
	TotalSpent  float64
	TotalLiters float64
}

// Profile is the account overview returned by the authority.
type Profile struct {
	Email     string
	CardCount int
}

// Authority is the client's view of the Remote Ledger Authority. It is the
// single source of truth for balances and transaction history.
//
// Implementations translate failures into apperror values: authorization
// rejections (401/403) carry KindAuthorization, other non-2xx responses carry
// the server's message, and network failures carry KindTransport.
type Authority interface {
	// Login exchanges credentials for an access token.
	Login(ctx context.Context, email, password string) (string, error)
	// Register creates an account. The caller signs in separately.
	Register(ctx context.Context, email, password, repeatPassword string) error
	// CheckSession performs the lightweight authenticated request used for
	// silent re-validation. A nil error means the token is accepted.
	CheckSession(ctx context.Context, token string) error
	// Profile returns the account's email and card count.
	Profile(ctx context.Context, token string) (*Profile, error)
	// ChangePassword rotates the account password.
	ChangePassword(ctx context.Context, token, current, newPassword, confirm string) error

	ListCards(ctx context.Context, token string) ([]domain.Card, error)
	CreateCard(ctx context.Context, token, name string, balance float64) (*domain.Card, error)
	DeleteCard(ctx context.Context, token string, cardID int64) error

	// TopUp credits the card and returns the authoritative new balance.
	TopUp(ctx context.Context, token string, cardID int64, amount float64) (float64, error)
	// Spend debits the card for a fuel purchase. Price and fuel type are
	// request hints; the result carries the authoritative values.
	Spend(ctx context.Context, token string, cardID int64, amount, fuelPrice float64, fuelType domain.FuelType) (*SpendResult, error)
	// Transactions returns the card's full history and current state.
	Transactions(ctx context.Context, token string, cardID int64) (*HistoryPage, error)
	// Summary aggregates spend totals, optionally bounded by a day-level
	// range already normalized by the caller.
	Summary(ctx context.Context, token string, cardID int64, from, to *time.Time) (*SummaryTotals, error)
}
