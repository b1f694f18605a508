package authority

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"fuelcard-client/internal/core/domain"
)

// decimal decodes JSON numbers that the authority serializes either as plain
// numbers or as decimal strings ("70.00"). Null and empty string decode to 0.
type decimal float64

func (d *decimal) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*d = 0
		return nil
	}
	if data[0] == '"' {
		unquoted, err := strconv.Unquote(string(data))
		if err != nil {
			return err
		}
		if unquoted == "" {
			*d = 0
			return nil
		}
		f, err := strconv.ParseFloat(unquoted, 64)
		if err != nil {
			return err
		}
		*d = decimal(f)
		return nil
	}
	f, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return err
	}
	*d = decimal(f)
	return nil
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string `json:"accessToken"`
}

type registerRequest struct {
	Email          string `json:"email"`
	Password       string `json:"password"`
	RepeatPassword string `json:"repeatPassword"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

type profileResponse struct {
	Email string `json:"email"`
	Count struct {
		Cards int `json:"cards"`
	} `json:"_count"`
}

type cardPayload struct {
	ID      int64   `json:"id"`
	Name    string  `json:"card_name"`
	Balance decimal `json:"balance"`
}

func (c cardPayload) toDomain() domain.Card {
	return domain.Card{ID: c.ID, Name: c.Name, Balance: float64(c.Balance)}
}

type createCardRequest struct {
	Name    string  `json:"card_name"`
	Balance float64 `json:"balance"`
}

type topUpRequest struct {
	Amount float64 `json:"amount"`
}

type topUpResponse struct {
	Balance decimal `json:"balance"`
}

type spendRequest struct {
	Amount    float64         `json:"amount"`
	FuelPrice float64         `json:"fuel_price"`
	FuelType  domain.FuelType `json:"fuel_type"`
}

type spendResponse struct {
	NewBalance decimal `json:"new_balance"`
	Liters     decimal `json:"liters"`
	FuelPrice  decimal `json:"fuel_price"`
	FuelType   string  `json:"fuel_type"`
}

type transactionPayload struct {
	ID              int64   `json:"id"`
	Amount          decimal `json:"amount"`
	NewBalance      decimal `json:"new_balance"`
	TransactionDate string  `json:"transaction_date"`
	TransactionType string  `json:"transaction_type"`
	Liters          decimal `json:"liters"`
	FuelPrice       decimal `json:"fuel_price"`
	FuelType        string  `json:"fuel_type"`
}

// toDomain maps a remote record to the client model. The remote amount is
// unsigned; the sign comes from the type tag. Unrecognized tags become the
// catch-all adjustment kind rather than failing the whole page.
func (p transactionPayload) toDomain() domain.Transaction {
	ts, err := time.Parse(time.RFC3339, p.TransactionDate)
	if err != nil {
		ts = time.Time{}
	}

	tx := domain.Transaction{
		ID:               strconv.FormatInt(p.ID, 10),
		ResultingBalance: float64(p.NewBalance),
		Timestamp:        ts,
	}

	switch p.TransactionType {
	case "spend":
		tx.Kind = domain.KindSpend
		tx.Amount = -float64(p.Amount)
		fuelType := domain.FuelType(p.FuelType)
		if p.FuelType == "" {
			fuelType = domain.ClassifyFuelPrice(float64(p.FuelPrice))
		}
		tx.Fuel = &domain.FuelInfo{
			Liters:        float64(p.Liters),
			PricePerLiter: float64(p.FuelPrice),
			Type:          fuelType,
		}
	case "topup":
		tx.Kind = domain.KindTopUp
		tx.Amount = float64(p.Amount)
	default:
		tx.Kind = domain.KindAdjustment
		tx.Amount = float64(p.Amount)
	}
	return tx
}

type transactionsResponse struct {
	Card            cardPayload          `json:"card"`
	Transactions    []transactionPayload `json:"transactions"`
	LatestFuelPrice decimal              `json:"latestFuelPrice"`
}

type summaryResponse struct {
	CardInfo    cardPayload `json:"cardInfo"`
	TotalSpent  decimal     `json:"totalSpent"`
	TotalLiters decimal     `json:"totalLiters"`
}

// flexText decodes a string or an array of strings (validation errors come
// back as arrays); arrays are joined with newlines.
type flexText string

func (t *flexText) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var parts []string
		if err := json.Unmarshal(data, &parts); err != nil {
			return err
		}
		*t = flexText(strings.Join(parts, "\n"))
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*t = flexText(s)
	return nil
}

// errorPayload covers both error body shapes the authority uses: auth routes
// respond with "message", card routes with "error".
type errorPayload struct {
	Message flexText `json:"message"`
	Error   string   `json:"error"`
}

func (e errorPayload) text() string {
	if e.Error != "" {
		return e.Error
	}
	return string(e.Message)
}
