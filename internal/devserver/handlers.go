package devserver

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"fuelcard-client/pkg/apperror"
	"fuelcard-client/pkg/response"

	"github.com/gin-gonic/gin"
)

// wireTime is the timestamp layout used in responses and accepted in the
// summary query: millisecond precision, RFC3339-compatible.
const wireTime = "2006-01-02T15:04:05.000Z07:00"

type cardBody struct {
	ID      int64  `json:"id"`
	Name    string `json:"card_name"`
	Balance string `json:"balance"`
}

func cardToWire(c Card) cardBody {
	return cardBody{ID: c.ID, Name: c.Name, Balance: response.Decimal(c.Balance)}
}

type transactionBody struct {
	ID              int64  `json:"id"`
	Amount          string `json:"amount"`
	NewBalance      string `json:"new_balance"`
	TransactionDate string `json:"transaction_date"`
	TransactionType string `json:"transaction_type"`
	Liters          string `json:"liters,omitempty"`
	FuelPrice       string `json:"fuel_price,omitempty"`
	FuelType        string `json:"fuel_type,omitempty"`
}

func transactionToWire(tx Transaction) transactionBody {
	body := transactionBody{
		ID:              tx.ID,
		Amount:          response.Decimal(tx.Amount),
		NewBalance:      response.Decimal(tx.NewBalance),
		TransactionDate: tx.Date.UTC().Format(wireTime),
		TransactionType: tx.Type,
	}
	if tx.Type == "spend" {
		body.Liters = response.Decimal(tx.Liters)
		body.FuelPrice = response.Decimal(tx.FuelPrice)
		body.FuelType = tx.FuelType
	}
	return body
}

// ---- Auth routes ----

func (s *Server) register(c *gin.Context) {
	var req struct {
		Email          string `json:"email"`
		Password       string `json:"password"`
		RepeatPassword string `json:"repeatPassword"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.AuthError(c, apperror.Validation("malformed request body"))
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if !strings.Contains(req.Email, "@") {
		response.AuthError(c, apperror.Validation("email must be a valid email address"))
		return
	}
	if len(req.Password) < 6 {
		response.AuthError(c, apperror.Validation("password must be at least 6 characters"))
		return
	}
	if req.Password != req.RepeatPassword {
		response.AuthError(c, apperror.ErrPasswordMismatch())
		return
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		response.AuthError(c, apperror.Internal(err))
		return
	}

	user, err := s.store.CreateUser(c.Request.Context(), req.Email, hash)
	if err == ErrEmailTaken {
		response.AuthError(c, apperror.Validation("Email already in use"))
		return
	}
	if err != nil {
		response.AuthError(c, apperror.Internal(err))
		return
	}

	s.log.Info().Int64("user_id", user.ID).Msg("account registered")
	c.JSON(http.StatusCreated, gin.H{"id": user.ID, "email": user.Email})
}

func (s *Server) login(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.AuthError(c, apperror.Validation("malformed request body"))
		return
	}

	user, err := s.store.UserByEmail(c.Request.Context(), strings.TrimSpace(req.Email))
	if err != nil {
		response.AuthError(c, apperror.Internal(err))
		return
	}
	if user == nil {
		response.AuthError(c, apperror.ErrLoginFailed("Invalid credentials"))
		return
	}

	ok, err := VerifyPassword(req.Password, user.PasswordHash)
	if err != nil {
		response.AuthError(c, apperror.Internal(err))
		return
	}
	if !ok {
		response.AuthError(c, apperror.ErrLoginFailed("Invalid credentials"))
		return
	}

	token, _, err := s.tokens.Generate(user.ID, user.Email)
	if err != nil {
		response.AuthError(c, apperror.Internal(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"accessToken": token})
}

func (s *Server) profile(c *gin.Context) {
	user, err := s.store.UserByID(c.Request.Context(), userID(c))
	if err != nil {
		response.AuthError(c, apperror.Internal(err))
		return
	}
	if user == nil {
		response.AuthError(c, apperror.ErrUnauthorized())
		return
	}

	count, err := s.store.CountCards(c.Request.Context(), user.ID)
	if err != nil {
		response.AuthError(c, apperror.Internal(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"email":  user.Email,
		"_count": gin.H{"cards": count},
	})
}

func (s *Server) changePassword(c *gin.Context) {
	var req struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
		ConfirmPassword string `json:"confirmPassword"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.AuthError(c, apperror.Validation("malformed request body"))
		return
	}

	if len(req.NewPassword) < 6 {
		response.AuthError(c, apperror.Validation("password must be at least 6 characters"))
		return
	}
	if req.NewPassword != req.ConfirmPassword {
		response.AuthError(c, apperror.ErrPasswordMismatch())
		return
	}

	user, err := s.store.UserByID(c.Request.Context(), userID(c))
	if err != nil {
		response.AuthError(c, apperror.Internal(err))
		return
	}
	if user == nil {
		response.AuthError(c, apperror.ErrUnauthorized())
		return
	}

	ok, err := VerifyPassword(req.CurrentPassword, user.PasswordHash)
	if err != nil {
		response.AuthError(c, apperror.Internal(err))
		return
	}
	if !ok {
		response.AuthError(c, apperror.Validation("Current password is incorrect"))
		return
	}

	hash, err := HashPassword(req.NewPassword)
	if err != nil {
		response.AuthError(c, apperror.Internal(err))
		return
	}
	if err := s.store.SetPassword(c.Request.Context(), user.ID, hash); err != nil {
		response.AuthError(c, apperror.Internal(err))
		return
	}

	s.log.Info().Int64("user_id", user.ID).Msg("password changed")
	c.JSON(http.StatusOK, gin.H{"message": "Password changed"})
}

// ---- Card routes ----

func (s *Server) listCards(c *gin.Context) {
	cards, err := s.store.CardsByUser(c.Request.Context(), userID(c))
	if err != nil {
		response.CardError(c, apperror.Internal(err))
		return
	}

	out := make([]cardBody, 0, len(cards))
	for _, card := range cards {
		out = append(out, cardToWire(card))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) createCard(c *gin.Context) {
	var req struct {
		Name    string  `json:"card_name"`
		Balance float64 `json:"balance"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.CardError(c, apperror.Validation("malformed request body"))
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		response.CardError(c, apperror.Validation("card_name is required"))
		return
	}
	if req.Balance < 0 || math.IsNaN(req.Balance) || math.IsInf(req.Balance, 0) {
		response.CardError(c, apperror.Validation("balance must be 0 or greater"))
		return
	}

	card, err := s.store.CreateCard(c.Request.Context(), userID(c), req.Name, req.Balance)
	if err != nil {
		response.CardError(c, apperror.Internal(err))
		return
	}

	s.log.Info().Int64("card_id", card.ID).Str("name", card.Name).Msg("card created")
	c.JSON(http.StatusCreated, cardToWire(*card))
}

func (s *Server) deleteCard(c *gin.Context) {
	cardID, ok := s.cardParam(c)
	if !ok {
		return
	}

	err := s.store.DeleteCard(c.Request.Context(), userID(c), cardID)
	if err == ErrNotFound {
		response.CardError(c, apperror.ErrCardNotFound())
		return
	}
	if err != nil {
		response.CardError(c, apperror.Internal(err))
		return
	}

	s.log.Info().Int64("card_id", cardID).Msg("card deleted")
	c.JSON(http.StatusOK, gin.H{"message": "Card deleted"})
}

func (s *Server) topUp(c *gin.Context) {
	cardID, ok := s.cardParam(c)
	if !ok {
		return
	}

	var req struct {
		Amount float64 `json:"amount"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.CardError(c, apperror.Validation("malformed request body"))
		return
	}
	if req.Amount <= 0 || math.IsNaN(req.Amount) || math.IsInf(req.Amount, 0) {
		response.CardError(c, apperror.Validation("amount must be greater than 0"))
		return
	}

	card, err := s.store.TopUp(c.Request.Context(), userID(c), cardID, req.Amount)
	if err == ErrNotFound {
		response.CardError(c, apperror.ErrCardNotFound())
		return
	}
	if err != nil {
		response.CardError(c, apperror.Internal(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"balance": response.Decimal(card.Balance)})
}

func (s *Server) spend(c *gin.Context) {
	cardID, ok := s.cardParam(c)
	if !ok {
		return
	}

	var req struct {
		Amount    float64 `json:"amount"`
		FuelPrice float64 `json:"fuel_price"`
		FuelType  string  `json:"fuel_type"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.CardError(c, apperror.Validation("malformed request body"))
		return
	}
	if req.Amount <= 0 || math.IsNaN(req.Amount) || math.IsInf(req.Amount, 0) {
		response.CardError(c, apperror.Validation("amount must be greater than 0"))
		return
	}
	if req.FuelPrice <= 0 || math.IsNaN(req.FuelPrice) || math.IsInf(req.FuelPrice, 0) {
		response.CardError(c, apperror.Validation("fuel_price must be greater than 0"))
		return
	}

	tx, _, err := s.store.Spend(c.Request.Context(), userID(c), cardID, req.Amount, req.FuelPrice, req.FuelType)
	if err == ErrNotFound {
		response.CardError(c, apperror.ErrCardNotFound())
		return
	}
	if err == ErrInsufficientFunds {
		response.CardError(c, apperror.Rejected("Insufficient balance"))
		return
	}
	if err != nil {
		response.CardError(c, apperror.Internal(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"new_balance": response.Decimal(tx.NewBalance),
		"liters":      response.Decimal(tx.Liters),
		"fuel_price":  response.Decimal(tx.FuelPrice),
		"fuel_type":   tx.FuelType,
	})
}

func (s *Server) transactions(c *gin.Context) {
	cardID, ok := s.cardParam(c)
	if !ok {
		return
	}

	card, err := s.store.CardByID(c.Request.Context(), userID(c), cardID)
	if err != nil {
		response.CardError(c, apperror.Internal(err))
		return
	}
	if card == nil {
		response.CardError(c, apperror.ErrCardNotFound())
		return
	}

	txs, err := s.store.TransactionsByCard(c.Request.Context(), userID(c), cardID)
	if err != nil {
		response.CardError(c, apperror.Internal(err))
		return
	}

	out := make([]transactionBody, 0, len(txs))
	var latestFuelPrice float64
	for _, tx := range txs {
		if latestFuelPrice == 0 && tx.Type == "spend" && tx.FuelPrice > 0 {
			latestFuelPrice = tx.FuelPrice
		}
		out = append(out, transactionToWire(tx))
	}

	body := gin.H{
		"card":         cardToWire(*card),
		"transactions": out,
	}
	if latestFuelPrice > 0 {
		body["latestFuelPrice"] = response.Decimal(latestFuelPrice)
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) summary(c *gin.Context) {
	cardID, ok := s.cardParam(c)
	if !ok {
		return
	}

	card, err := s.store.CardByID(c.Request.Context(), userID(c), cardID)
	if err != nil {
		response.CardError(c, apperror.Internal(err))
		return
	}
	if card == nil {
		response.CardError(c, apperror.ErrCardNotFound())
		return
	}

	var from, to *time.Time
	if startStr := c.Query("start"); startStr != "" {
		t, err := time.Parse(wireTime, startStr)
		if err != nil {
			response.CardError(c, apperror.Validation("start must be a valid timestamp"))
			return
		}
		from = &t
	}
	if endStr := c.Query("end"); endStr != "" {
		t, err := time.Parse(wireTime, endStr)
		if err != nil {
			response.CardError(c, apperror.Validation("end must be a valid timestamp"))
			return
		}
		to = &t
	}

	spent, liters, err := s.store.Summary(c.Request.Context(), userID(c), cardID, from, to)
	if err != nil {
		response.CardError(c, apperror.Internal(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"cardInfo":    cardToWire(*card),
		"totalSpent":  response.Decimal(spent),
		"totalLiters": response.Decimal(liters),
	})
}

// cardParam parses the :id path segment; a non-numeric ID is a 404, matching
// how the authority treats unroutable card paths.
func (s *Server) cardParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.CardError(c, apperror.ErrCardNotFound())
		return 0, false
	}
	return id, true
}
