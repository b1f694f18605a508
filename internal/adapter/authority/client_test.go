package authority

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fuelcard-client/internal/core/domain"
	"fuelcard-client/pkg/apperror"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(handler http.Handler) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	return New(srv.URL, 5*time.Second, zerolog.Nop()), srv
}

func TestLogin_Success(t *testing.T) {
	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/auth/login", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "user@example.com", body["email"])
		assert.Equal(t, "hunter22", body["password"])

		json.NewEncoder(w).Encode(map[string]string{"accessToken": "tok1"})
	}))
	defer srv.Close()

	token, err := client.Login(context.Background(), "user@example.com", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, "tok1", token)
}

func TestLogin_InvalidCredentials_KeepsServerMessage(t *testing.T) {
	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"message": "Invalid credentials"})
	}))
	defer srv.Close()

	_, err := client.Login(context.Background(), "user@example.com", "wrong")
	require.Error(t, err)
	assert.Equal(t, apperror.KindAuthorization, apperror.KindOf(err))
	assert.Contains(t, err.Error(), "Invalid credentials")
}

func TestCheckSession(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/cards", r.URL.Path)
			require.Equal(t, "Bearer tok1", r.Header.Get("Authorization"))
			w.Write([]byte(`[]`))
		}))
		defer srv.Close()

		assert.NoError(t, client.CheckSession(context.Background(), "tok1"))
	})

	t.Run("rejected", func(t *testing.T) {
		client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer srv.Close()

		err := client.CheckSession(context.Background(), "stale")
		assert.Equal(t, apperror.KindAuthorization, apperror.KindOf(err))
	})

	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		client := New(srv.URL, time.Second, zerolog.Nop())
		srv.Close() // shut down before the request

		err := client.CheckSession(context.Background(), "tok1")
		assert.Equal(t, apperror.KindTransport, apperror.KindOf(err))
	})
}

func TestListCards_ParsesDecimalStrings(t *testing.T) {
	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"id": 1, "card_name": "Main Fuel Card", "balance": "100.00"},
			{"id": 2, "card_name": "Backup", "balance": 42.5}
		]`))
	}))
	defer srv.Close()

	cards, err := client.ListCards(context.Background(), "tok1")
	require.NoError(t, err)
	require.Len(t, cards, 2)
	assert.Equal(t, domain.Card{ID: 1, Name: "Main Fuel Card", Balance: 100.00}, cards[0])
	assert.Equal(t, domain.Card{ID: 2, Name: "Backup", Balance: 42.5}, cards[1])
}

func TestCreateCard(t *testing.T) {
	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Main Fuel Card", body["card_name"])
		assert.Equal(t, 50.0, body["balance"])

		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id": 7, "card_name": "Main Fuel Card", "balance": "50.00"}`))
	}))
	defer srv.Close()

	card, err := client.CreateCard(context.Background(), "tok1", "Main Fuel Card", 50)
	require.NoError(t, err)
	assert.Equal(t, int64(7), card.ID)
	assert.Equal(t, 50.0, card.Balance)
}

func TestDeleteCard(t *testing.T) {
	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		require.Equal(t, "/cards/7", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	assert.NoError(t, client.DeleteCard(context.Background(), "tok1", 7))
}

func TestTopUp(t *testing.T) {
	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/cards/7/topup", r.URL.Path)
		var body map[string]float64
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, 25.0, body["amount"])

		w.Write([]byte(`{"balance": "125.00"}`))
	}))
	defer srv.Close()

	balance, err := client.TopUp(context.Background(), "tok1", 7, 25)
	require.NoError(t, err)
	assert.Equal(t, 125.00, balance)
}

func TestSpend_AdoptsAuthorityValuesVerbatim(t *testing.T) {
	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/cards/7/spend", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, 30.0, body["amount"])
		assert.Equal(t, 5.6, body["fuel_price"])
		assert.Equal(t, "petrol", body["fuel_type"])

		// The authority answers with its own figures; they win over the hints.
		w.Write([]byte(`{"new_balance": "70.00", "liters": "5.36", "fuel_price": "5.60", "fuel_type": "petrol"}`))
	}))
	defer srv.Close()

	res, err := client.Spend(context.Background(), "tok1", 7, 30, 5.6, domain.FuelTypePetrol)
	require.NoError(t, err)
	assert.Equal(t, 70.00, res.NewBalance)
	assert.Equal(t, 5.36, res.Liters)
	assert.Equal(t, 5.60, res.FuelPrice)
	assert.Equal(t, domain.FuelTypePetrol, res.FuelType)
}

func TestSpend_MissingFuelTypeFallsBackToClassifier(t *testing.T) {
	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"new_balance": "70.00", "liters": "12.00", "fuel_price": "2.50"}`))
	}))
	defer srv.Close()

	res, err := client.Spend(context.Background(), "tok1", 7, 30, 2.5, domain.FuelTypeLPG)
	require.NoError(t, err)
	assert.Equal(t, domain.FuelTypeLPG, res.FuelType)
}

func TestSpend_RejectedKeepsServerMessage(t *testing.T) {
	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "Insufficient balance"})
	}))
	defer srv.Close()

	_, err := client.Spend(context.Background(), "tok1", 7, 999, 5.6, domain.FuelTypePetrol)
	require.Error(t, err)
	assert.Equal(t, apperror.KindRejected, apperror.KindOf(err))
	assert.Contains(t, err.Error(), "Insufficient balance")
}

func TestTransactions_MapsRemoteTags(t *testing.T) {
	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/cards/7/transactions", r.URL.Path)
		w.Write([]byte(`{
			"card": {"id": 7, "card_name": "Main", "balance": "70.00"},
			"transactions": [
				{"id": 3, "amount": "30.00", "new_balance": "70.00", "transaction_date": "2024-02-01T10:30:00Z",
				 "transaction_type": "spend", "liters": "5.36", "fuel_price": "5.60", "fuel_type": "petrol"},
				{"id": 2, "amount": "50.00", "new_balance": "100.00", "transaction_date": "2024-01-15T08:00:00Z",
				 "transaction_type": "topup"},
				{"id": 1, "amount": "50.00", "new_balance": "50.00", "transaction_date": "2024-01-01T00:00:00Z",
				 "transaction_type": "initial_grant"}
			],
			"latestFuelPrice": "5.60"
		}`))
	}))
	defer srv.Close()

	page, err := client.Transactions(context.Background(), "tok1", 7)
	require.NoError(t, err)

	assert.Equal(t, int64(7), page.Card.ID)
	assert.Equal(t, 5.60, page.LatestFuelPrice)
	require.Len(t, page.Transactions, 3)

	spend := page.Transactions[0]
	assert.Equal(t, domain.KindSpend, spend.Kind)
	assert.Equal(t, -30.00, spend.Amount)
	assert.Equal(t, 70.00, spend.ResultingBalance)
	require.NotNil(t, spend.Fuel)
	assert.Equal(t, 5.36, spend.Fuel.Liters)
	assert.Equal(t, domain.FuelTypePetrol, spend.Fuel.Type)

	topup := page.Transactions[1]
	assert.Equal(t, domain.KindTopUp, topup.Kind)
	assert.Equal(t, 50.00, topup.Amount)
	assert.Nil(t, topup.Fuel)

	// Unrecognized tag maps to the catch-all kind instead of failing the page.
	other := page.Transactions[2]
	assert.Equal(t, domain.KindAdjustment, other.Kind)
	assert.Equal(t, 50.00, other.Amount)
}

func TestSummary_NormalizesDayRange(t *testing.T) {
	var gotStart, gotEnd string
	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotStart = r.URL.Query().Get("start")
		gotEnd = r.URL.Query().Get("end")
		w.Write([]byte(`{"cardInfo": {"id": 7, "card_name": "Main", "balance": "70.00"},
			"totalSpent": "130.00", "totalLiters": "24.50"}`))
	}))
	defer srv.Close()

	from := time.Date(2024, 1, 1, 14, 22, 5, 0, time.UTC)
	to := time.Date(2024, 1, 31, 9, 0, 0, 0, time.UTC)
	totals, err := client.Summary(context.Background(), "tok1", 7, &from, &to)
	require.NoError(t, err)

	assert.Equal(t, "2024-01-01T00:00:00.000Z", gotStart)
	assert.Equal(t, "2024-01-31T23:59:59.999Z", gotEnd)
	assert.Equal(t, "Main", totals.CardName)
	assert.Equal(t, 130.00, totals.TotalSpent)
	assert.Equal(t, 24.50, totals.TotalLiters)
}

func TestSummary_NoRangeOmitsQuery(t *testing.T) {
	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.RawQuery)
		w.Write([]byte(`{"cardInfo": {"id": 7, "card_name": "Main", "balance": "70.00"},
			"totalSpent": "0", "totalLiters": "0"}`))
	}))
	defer srv.Close()

	_, err := client.Summary(context.Background(), "tok1", 7, nil, nil)
	require.NoError(t, err)
}

func TestRegister_ValidationMessageArray(t *testing.T) {
	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message": ["email must be an email", "password too short"]}`))
	}))
	defer srv.Close()

	err := client.Register(context.Background(), "nope", "x", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "email must be an email")
	assert.Contains(t, err.Error(), "password too short")
}

func TestNormalizeDayRange(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Warsaw")
	require.NoError(t, err)

	from := time.Date(2024, 3, 10, 18, 45, 12, 0, loc)
	to := time.Date(2024, 3, 12, 6, 1, 0, 0, loc)
	start, end := NormalizeDayRange(from, to)

	assert.Equal(t, time.Date(2024, 3, 10, 0, 0, 0, 0, loc), start)
	assert.Equal(t, time.Date(2024, 3, 12, 23, 59, 59, 999_000_000, loc), end)
}
