package authority

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"fuelcard-client/internal/core/domain"
	"fuelcard-client/internal/core/ports"
	"fuelcard-client/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// wireTimeFormat is the millisecond-precision RFC 3339 variant the authority
// expects for summary range bounds.
const wireTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Client implements ports.Authority over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

// New creates an authority client. timeout applies to every request; it is the
// only timeout the client has, so a slow authority surfaces as a transport
// failure rather than an authorization decision.
func New(baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

// Login implements ports.Authority.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	var out loginResponse
	err := c.do(ctx, http.MethodPost, "/auth/login", "", loginRequest{Email: email, Password: password}, &out)
	if err != nil {
		if apperror.KindOf(err) == apperror.KindRejected || apperror.KindOf(err) == apperror.KindAuthorization {
			return "", apperror.ErrLoginFailed(messageOf(err))
		}
		return "", err
	}
	return out.AccessToken, nil
}

// Register implements ports.Authority.
func (c *Client) Register(ctx context.Context, email, password, repeatPassword string) error {
	req := registerRequest{Email: email, Password: password, RepeatPassword: repeatPassword}
	return c.do(ctx, http.MethodPost, "/auth/register", "", req, nil)
}

// CheckSession implements ports.Authority. It reuses the card listing as the
// lightweight authenticated probe and discards the body.
func (c *Client) CheckSession(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodGet, "/cards", token, nil, nil)
}

// Profile implements ports.Authority.
func (c *Client) Profile(ctx context.Context, token string) (*ports.Profile, error) {
	var out profileResponse
	if err := c.do(ctx, http.MethodGet, "/auth/profile", token, nil, &out); err != nil {
		return nil, err
	}
	return &ports.Profile{Email: out.Email, CardCount: out.Count.Cards}, nil
}

// ChangePassword implements ports.Authority.
func (c *Client) ChangePassword(ctx context.Context, token, current, newPassword, confirm string) error {
	req := changePasswordRequest{
		CurrentPassword: current,
		NewPassword:     newPassword,
		ConfirmPassword: confirm,
	}
	return c.do(ctx, http.MethodPost, "/auth/changePassword", token, req, nil)
}

// ListCards implements ports.Authority.
func (c *Client) ListCards(ctx context.Context, token string) ([]domain.Card, error) {
	var out []cardPayload
	if err := c.do(ctx, http.MethodGet, "/cards", token, nil, &out); err != nil {
		return nil, err
	}
	cards := make([]domain.Card, 0, len(out))
	for _, p := range out {
		cards = append(cards, p.toDomain())
	}
	return cards, nil
}

// CreateCard implements ports.Authority.
func (c *Client) CreateCard(ctx context.Context, token, name string, balance float64) (*domain.Card, error) {
	var out cardPayload
	req := createCardRequest{Name: name, Balance: balance}
	if err := c.do(ctx, http.MethodPost, "/cards", token, req, &out); err != nil {
		return nil, err
	}
	card := out.toDomain()
	return &card, nil
}

// DeleteCard implements ports.Authority.
func (c *Client) DeleteCard(ctx context.Context, token string, cardID int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/cards/%d", cardID), token, nil, nil)
}

// TopUp implements ports.Authority.
func (c *Client) TopUp(ctx context.Context, token string, cardID int64, amount float64) (float64, error) {
	var out topUpResponse
	path := fmt.Sprintf("/cards/%d/topup", cardID)
	if err := c.do(ctx, http.MethodPost, path, token, topUpRequest{Amount: amount}, &out); err != nil {
		return 0, err
	}
	return float64(out.Balance), nil
}

// Spend implements ports.Authority.
func (c *Client) Spend(ctx context.Context, token string, cardID int64, amount, fuelPrice float64, fuelType domain.FuelType) (*ports.SpendResult, error) {
	var out spendResponse
	path := fmt.Sprintf("/cards/%d/spend", cardID)
	req := spendRequest{Amount: amount, FuelPrice: fuelPrice, FuelType: fuelType}
	if err := c.do(ctx, http.MethodPost, path, token, req, &out); err != nil {
		return nil, err
	}

	resultType := domain.FuelType(out.FuelType)
	if out.FuelType == "" {
		resultType = domain.ClassifyFuelPrice(float64(out.FuelPrice))
	}
	return &ports.SpendResult{
		NewBalance: float64(out.NewBalance),
		Liters:     float64(out.Liters),
		FuelPrice:  float64(out.FuelPrice),
		FuelType:   resultType,
	}, nil
}

// Transactions implements ports.Authority.
func (c *Client) Transactions(ctx context.Context, token string, cardID int64) (*ports.HistoryPage, error) {
	var out transactionsResponse
	path := fmt.Sprintf("/cards/%d/transactions", cardID)
	if err := c.do(ctx, http.MethodGet, path, token, nil, &out); err != nil {
		return nil, err
	}

	txs := make([]domain.Transaction, 0, len(out.Transactions))
	for _, p := range out.Transactions {
		txs = append(txs, p.toDomain())
	}
	return &ports.HistoryPage{
		Card:            out.Card.toDomain(),
		Transactions:    txs,
		LatestFuelPrice: float64(out.LatestFuelPrice),
	}, nil
}

// Summary implements ports.Authority. When both bounds are set the range is
// widened to whole days: the start bound to 00:00:00.000 and the end bound to
// 23:59:59.999, matching what the authority indexes on.
func (c *Client) Summary(ctx context.Context, token string, cardID int64, from, to *time.Time) (*ports.SummaryTotals, error) {
	path := fmt.Sprintf("/cards/%d/summary", cardID)
	if from != nil && to != nil {
		start, end := NormalizeDayRange(*from, *to)
		q := url.Values{}
		q.Set("start", start.Format(wireTimeFormat))
		q.Set("end", end.Format(wireTimeFormat))
		path += "?" + q.Encode()
	}

	var out summaryResponse
	if err := c.do(ctx, http.MethodGet, path, token, nil, &out); err != nil {
		return nil, err
	}
	return &ports.SummaryTotals{
		CardName:    out.CardInfo.Name,
		TotalSpent:  float64(out.TotalSpent),
		TotalLiters: float64(out.TotalLiters),
	}, nil
}

// NormalizeDayRange expands an inclusive day-level range to its first and last
// instants (millisecond resolution) in each bound's own location.
func NormalizeDayRange(from, to time.Time) (time.Time, time.Time) {
	start := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, from.Location())
	end := time.Date(to.Year(), to.Month(), to.Day(), 23, 59, 59, 999_000_000, to.Location())
	return start, end
}

// do performs one JSON request/response round trip. A nil out discards the
// response body. Failures map onto the client error taxonomy: request
// transport problems become KindTransport, 401/403 becomes KindAuthorization,
// 404 KindNotFound, and any other non-2xx carries the server's message.
func (c *Client) do(ctx context.Context, method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return apperror.Internal(fmt.Errorf("marshal request: %w", err))
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return apperror.Internal(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug().Err(err).Str("method", method).Str("path", path).Msg("authority request failed")
		return apperror.Transport(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.statusError(resp, method, path)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperror.Internal(fmt.Errorf("decode %s %s response: %w", method, path, err))
	}
	return nil
}

func (c *Client) statusError(resp *http.Response, method, path string) error {
	var payload errorPayload
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = json.Unmarshal(raw, &payload)

	c.log.Debug().
		Int("status", resp.StatusCode).
		Str("method", method).
		Str("path", path).
		Str("server_message", payload.text()).
		Msg("authority rejected request")

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		if msg := payload.text(); msg != "" {
			return apperror.New(apperror.KindAuthorization, "AUTH_001", msg)
		}
		return apperror.ErrUnauthorized()
	case http.StatusNotFound:
		return apperror.ErrCardNotFound()
	default:
		return apperror.Rejected(payload.text())
	}
}

func messageOf(err error) string {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return ""
}
