package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"fuelcard-client/internal/core/domain"
	"fuelcard-client/internal/core/ports"
	"fuelcard-client/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// historyLimit bounds the in-memory transaction view. The authority keeps the
// full ledger; the client only ever displays the most recent entries.
const historyLimit = 100

// defaultFuelPrice seeds the spend form before any history is known.
const defaultFuelPrice = 2.40

// SummaryRange is an inclusive day-level date range.
type SummaryRange struct {
	From time.Time
	To   time.Time
}

// LedgerService performs top-up and spend operations against the selected
// card. It never computes the authoritative balance itself: local arithmetic
// is used only for the pre-flight insufficient-balance guard, and every
// successful mutation adopts the authority's returned balance verbatim,
// because other sessions may be spending against the same card concurrently.
type LedgerService struct {
	authority ports.Authority
	tokens    ports.TokenStore
	snapshots ports.SnapshotStore
	log       zerolog.Logger

	mu              sync.Mutex
	card            *domain.Card
	history         []domain.Transaction
	latestFuelPrice float64
	lastRange       *SummaryRange
}

// NewLedgerService creates a LedgerService with no card selected.
func NewLedgerService(
	authority ports.Authority,
	tokens ports.TokenStore,
	snapshots ports.SnapshotStore,
	log zerolog.Logger,
) *LedgerService {
	return &LedgerService{
		authority: authority,
		tokens:    tokens,
		snapshots: snapshots,
		log:       log,
	}
}

// Select makes card the current card and persists the snapshot so detail
// operations after a restart do not need to re-fetch identity. The cached
// history resets; call LoadHistory to fill it.
func (l *LedgerService) Select(ctx context.Context, card domain.Card) error {
	if err := l.snapshots.SaveCard(ctx, card); err != nil {
		return apperror.Internal(fmt.Errorf("persist card snapshot: %w", err))
	}

	l.mu.Lock()
	c := card
	l.card = &c
	l.history = nil
	l.latestFuelPrice = 0
	l.mu.Unlock()

	l.log.Debug().Int64("card_id", card.ID).Msg("card selected")
	return nil
}

// Restore loads the persisted selected-card snapshot into the cache, e.g.
// when entering the detail screen after a restart.
func (l *LedgerService) Restore(ctx context.Context) error {
	card, err := l.snapshots.LoadCard(ctx)
	if err != nil {
		return apperror.Internal(fmt.Errorf("load card snapshot: %w", err))
	}
	if card == nil {
		return apperror.ErrNoCardSelected()
	}

	l.mu.Lock()
	l.card = card
	l.history = nil
	l.latestFuelPrice = 0
	l.mu.Unlock()
	return nil
}

// Card returns a copy of the selected card, if any.
func (l *LedgerService) Card() (domain.Card, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.card == nil {
		return domain.Card{}, false
	}
	return *l.card, true
}

// History returns a copy of the cached transaction view, newest first.
func (l *LedgerService) History() []domain.Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.Transaction, len(l.history))
	copy(out, l.history)
	return out
}

// SuggestedFuel returns the price and type to pre-fill the next spend with,
// derived from the latest known fuel price. The type uses the fallback
// classifier; it is a form hint, not business truth.
func (l *LedgerService) SuggestedFuel() (float64, domain.FuelType) {
	l.mu.Lock()
	defer l.mu.Unlock()
	price := l.latestFuelPrice
	if price <= 0 {
		price = defaultFuelPrice
	}
	return price, domain.ClassifyFuelPrice(price)
}

// ListCards fetches all cards owned by the signed-in user.
func (l *LedgerService) ListCards(ctx context.Context) ([]domain.Card, error) {
	token, err := l.bearer(ctx)
	if err != nil {
		return nil, err
	}
	return l.authority.ListCards(ctx, token)
}

// CreateCard creates a card with an initial balance. The name is trimmed and
// must be non-empty; the balance must be zero or greater.
func (l *LedgerService) CreateCard(ctx context.Context, name string, balance float64) (*domain.Card, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperror.ErrInvalidCardName()
	}
	if math.IsNaN(balance) || math.IsInf(balance, 0) || balance < 0 {
		return nil, apperror.ErrInvalidInitialBalance()
	}

	token, err := l.bearer(ctx)
	if err != nil {
		return nil, err
	}
	return l.authority.CreateCard(ctx, token, name, balance)
}

// DeleteCard removes a card. Deleting the selected card also clears the
// snapshot and cached state.
func (l *LedgerService) DeleteCard(ctx context.Context, cardID int64) error {
	token, err := l.bearer(ctx)
	if err != nil {
		return err
	}
	if err := l.authority.DeleteCard(ctx, token, cardID); err != nil {
		return err
	}

	l.mu.Lock()
	selected := l.card != nil && l.card.ID == cardID
	if selected {
		l.card = nil
		l.history = nil
		l.latestFuelPrice = 0
	}
	l.mu.Unlock()

	if selected {
		if err := l.snapshots.ClearCard(ctx); err != nil {
			l.log.Warn().Err(err).Msg("failed to clear card snapshot")
		}
	}
	return nil
}

// TopUp credits the selected card. No optimistic mutation happens before the
// authority confirms, so a failure leaves balance and history untouched.
func (l *LedgerService) TopUp(ctx context.Context, amount float64) (*domain.Transaction, error) {
	if !positiveFinite(amount) {
		return nil, apperror.ErrInvalidAmount()
	}

	card, ok := l.Card()
	if !ok {
		return nil, apperror.ErrNoCardSelected()
	}
	token, err := l.bearer(ctx)
	if err != nil {
		return nil, err
	}

	newBalance, err := l.authority.TopUp(ctx, token, card.ID, amount)
	if err != nil {
		return nil, err
	}

	tx := domain.Transaction{
		ID:               uuid.NewString(),
		Kind:             domain.KindTopUp,
		Amount:           amount,
		ResultingBalance: newBalance,
		Timestamp:        time.Now(),
	}
	l.apply(ctx, newBalance, tx)

	l.log.Info().
		Int64("card_id", card.ID).
		Float64("amount", amount).
		Float64("balance", newBalance).
		Msg("top-up confirmed")
	return &tx, nil
}

// Spend debits the selected card for a fuel purchase. The amount must be
// positive and within the cached balance; the balance guard rejects locally
// and never issues a network call. fuelPrice and fuelType are request hints:
// on success the authority's returned balance, liters, price and type are
// adopted verbatim.
func (l *LedgerService) Spend(ctx context.Context, amount, fuelPrice float64, fuelType domain.FuelType) (*domain.Transaction, error) {
	if !positiveFinite(amount) {
		return nil, apperror.ErrInvalidAmount()
	}

	card, ok := l.Card()
	if !ok {
		return nil, apperror.ErrNoCardSelected()
	}
	if amount > card.Balance {
		return nil, apperror.ErrInsufficientBalance()
	}
	token, err := l.bearer(ctx)
	if err != nil {
		return nil, err
	}

	res, err := l.authority.Spend(ctx, token, card.ID, amount, fuelPrice, fuelType)
	if err != nil {
		return nil, err
	}

	tx := domain.Transaction{
		ID:               uuid.NewString(),
		Kind:             domain.KindSpend,
		Amount:           -amount,
		ResultingBalance: res.NewBalance,
		Timestamp:        time.Now(),
		Fuel: &domain.FuelInfo{
			Liters:        res.Liters,
			PricePerLiter: res.FuelPrice,
			Type:          res.FuelType,
		},
	}
	l.apply(ctx, res.NewBalance, tx)

	l.log.Info().
		Int64("card_id", card.ID).
		Float64("amount", amount).
		Float64("liters", res.Liters).
		Str("fuel_type", string(res.FuelType)).
		Float64("balance", res.NewBalance).
		Msg("fuel purchase confirmed")
	return &tx, nil
}

// LoadHistory replaces the cached card and transaction view wholesale with
// the authority's current state.
func (l *LedgerService) LoadHistory(ctx context.Context) error {
	card, ok := l.Card()
	if !ok {
		return apperror.ErrNoCardSelected()
	}
	token, err := l.bearer(ctx)
	if err != nil {
		return err
	}

	page, err := l.authority.Transactions(ctx, token, card.ID)
	if err != nil {
		return err
	}

	// Diagnostic only: the authority's per-entry balances win regardless.
	if i := domain.ReplayBalances(page.Transactions); i >= 0 {
		l.log.Warn().
			Int64("card_id", card.ID).
			Str("tx_id", page.Transactions[i].ID).
			Msg("ledger replay diverges from authority balances")
	}

	history := page.Transactions
	if len(history) > historyLimit {
		history = history[:historyLimit]
	}

	l.mu.Lock()
	c := page.Card
	l.card = &c
	l.history = history
	l.latestFuelPrice = page.LatestFuelPrice
	l.mu.Unlock()

	if err := l.snapshots.SaveCard(ctx, page.Card); err != nil {
		l.log.Warn().Err(err).Msg("failed to refresh card snapshot")
	}
	return nil
}

// Summary fetches aggregate totals for the selected card. Pass both bounds
// for a day-level range (normalized by the transport) or neither for the
// all-time totals. The last-used range is cached for display.
func (l *LedgerService) Summary(ctx context.Context, bounds *SummaryRange) (*ports.SummaryTotals, error) {
	card, ok := l.Card()
	if !ok {
		return nil, apperror.ErrNoCardSelected()
	}
	token, err := l.bearer(ctx)
	if err != nil {
		return nil, err
	}

	var from, to *time.Time
	if bounds != nil {
		if bounds.To.Before(bounds.From) {
			return nil, apperror.Validation("end date is before start date")
		}
		from, to = &bounds.From, &bounds.To
	}

	totals, err := l.authority.Summary(ctx, token, card.ID, from, to)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.lastRange = bounds
	l.mu.Unlock()
	return totals, nil
}

// LastSummaryRange returns the range used by the most recent Summary call,
// or nil for all-time.
func (l *LedgerService) LastSummaryRange() *SummaryRange {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.lastRange == nil {
		return nil
	}
	r := *l.lastRange
	return &r
}

// apply adopts an authority-confirmed mutation: new balance, refreshed
// snapshot, transaction prepended to the bounded history.
func (l *LedgerService) apply(ctx context.Context, newBalance float64, tx domain.Transaction) {
	l.mu.Lock()
	var snap *domain.Card
	if l.card != nil {
		l.card.Balance = newBalance
		c := *l.card
		snap = &c
	}
	l.history = append([]domain.Transaction{tx}, l.history...)
	if len(l.history) > historyLimit {
		l.history = l.history[:historyLimit]
	}
	l.mu.Unlock()

	if snap != nil {
		if err := l.snapshots.SaveCard(ctx, *snap); err != nil {
			l.log.Warn().Err(err).Msg("failed to refresh card snapshot")
		}
	}
}

func (l *LedgerService) bearer(ctx context.Context) (string, error) {
	token, err := l.tokens.Load(ctx)
	if err != nil {
		return "", apperror.Internal(fmt.Errorf("read stored token: %w", err))
	}
	if token == "" {
		return "", apperror.ErrNoSession()
	}
	return token, nil
}

func positiveFinite(v float64) bool {
	return v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}
