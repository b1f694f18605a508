package postgres

import (
	"context"
	"testing"
	"time"

	"fuelcard-client/internal/devserver"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cardColumns() []string {
	return []string{"id", "user_id", "card_name", "balance", "created_at"}
}

func cardRow(id, userID int64, name string, balance float64) *pgxmock.Rows {
	return pgxmock.NewRows(cardColumns()).
		AddRow(id, userID, name, balance, time.Now().UTC())
}

func TestUserByEmail_Found(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewStore(mock)
	created := time.Now().UTC()

	mock.ExpectQuery("SELECT .+ FROM users WHERE email").
		WithArgs("user@example.com").
		WillReturnRows(pgxmock.NewRows([]string{"id", "email", "password_hash", "created_at"}).
			AddRow(int64(1), "user@example.com", "$argon2id$...", created))

	u, err := store.UserByEmail(context.Background(), "user@example.com")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, int64(1), u.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserByEmail_Missing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewStore(mock)

	mock.ExpectQuery("SELECT .+ FROM users WHERE email").
		WithArgs("ghost@example.com").
		WillReturnRows(pgxmock.NewRows([]string{"id", "email", "password_hash", "created_at"}))

	u, err := store.UserByEmail(context.Background(), "ghost@example.com")
	require.NoError(t, err)
	assert.Nil(t, u)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSpend_LocksUpdatesAndRecords(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewStore(mock)
	txDate := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM cards .+ FOR UPDATE").
		WithArgs(int64(7), int64(1)).
		WillReturnRows(cardRow(7, 1, "Volvo", 100))
	mock.ExpectExec("UPDATE cards SET balance").
		WithArgs(70.0, int64(7)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery("INSERT INTO transactions").
		WithArgs(int64(7), 30.0, 70.0, 5.60, 30.0/5.60, "petrol").
		WillReturnRows(pgxmock.NewRows([]string{"id", "transaction_date"}).AddRow(int64(99), txDate))
	mock.ExpectCommit()
	mock.ExpectRollback()

	entry, card, err := store.Spend(context.Background(), 1, 7, 30, 5.60, "petrol")
	require.NoError(t, err)
	assert.Equal(t, int64(99), entry.ID)
	assert.Equal(t, 70.0, entry.NewBalance)
	assert.Equal(t, 70.0, card.Balance)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSpend_InsufficientFunds_RollsBack(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewStore(mock)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM cards .+ FOR UPDATE").
		WithArgs(int64(7), int64(1)).
		WillReturnRows(cardRow(7, 1, "Volvo", 20))
	mock.ExpectRollback()

	_, _, err = store.Spend(context.Background(), 1, 7, 30, 5.60, "petrol")
	assert.ErrorIs(t, err, devserver.ErrInsufficientFunds)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTopUp_UpdatesBalance(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewStore(mock)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM cards .+ FOR UPDATE").
		WithArgs(int64(7), int64(1)).
		WillReturnRows(cardRow(7, 1, "Volvo", 100))
	mock.ExpectExec("UPDATE cards SET balance").
		WithArgs(125.0, int64(7)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("INSERT INTO transactions").
		WithArgs(int64(7), 25.0, 125.0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()
	mock.ExpectRollback()

	card, err := store.TopUp(context.Background(), 1, 7, 25)
	require.NoError(t, err)
	assert.Equal(t, 125.0, card.Balance)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteCard_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewStore(mock)

	mock.ExpectExec("DELETE FROM cards").
		WithArgs(int64(99), int64(1)).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	err = store.DeleteCard(context.Background(), 1, 99)
	assert.ErrorIs(t, err, devserver.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSummary_RangeBoundsAppended(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewStore(mock)
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 31, 23, 59, 59, 999_000_000, time.UTC)

	mock.ExpectQuery("SELECT .+ FROM cards WHERE id").
		WithArgs(int64(7), int64(1)).
		WillReturnRows(cardRow(7, 1, "Volvo", 100))
	mock.ExpectQuery("SELECT COALESCE.+ FROM transactions").
		WithArgs(int64(7), from, to).
		WillReturnRows(pgxmock.NewRows([]string{"sum", "sum"}).AddRow(86.0, 15.36))

	spent, liters, err := store.Summary(context.Background(), 1, 7, &from, &to)
	require.NoError(t, err)
	assert.Equal(t, 86.0, spent)
	assert.Equal(t, 15.36, liters)
	assert.NoError(t, mock.ExpectationsWereMet())
}
