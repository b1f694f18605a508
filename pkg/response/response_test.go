package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"fuelcard-client/pkg/apperror"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestDecimal(t *testing.T) {
	assert.Equal(t, "70.00", Decimal(70))
	assert.Equal(t, "5.36", Decimal(5.36))
	assert.Equal(t, "0.00", Decimal(0))
	assert.Equal(t, "-12.50", Decimal(-12.5))
}

func TestAuthError_UsesMessageKey(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	AuthError(c, apperror.ErrLoginFailed("Invalid credentials"))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Invalid credentials", body["message"])
	assert.NotContains(t, body, "error")
}

func TestCardError_UsesErrorKey(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	CardError(c, apperror.Rejected("Insufficient balance"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Insufficient balance", body["error"])
	assert.NotContains(t, body, "message")
}

func TestCardError_StatusByKind(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{apperror.ErrCardNotFound(), http.StatusNotFound},
		{apperror.ErrUnauthorized(), http.StatusUnauthorized},
		{apperror.Validation("bad input"), http.StatusBadRequest},
		{apperror.Internal(errors.New("db down")), http.StatusInternalServerError},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		CardError(c, tc.err)
		assert.Equal(t, tc.status, w.Code)
	}
}

func TestInternalErrors_NeverLeakCause(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	CardError(c, apperror.Internal(errors.New("pq: connection refused")))

	assert.NotContains(t, w.Body.String(), "connection refused")
	assert.Contains(t, w.Body.String(), "Internal server error")
}
