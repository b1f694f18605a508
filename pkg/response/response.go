// Package response renders the fuel-card authority's wire format: flat JSON
// bodies, monetary values as decimal strings with two fraction digits, and
// two error body shapes. Auth routes report failures under "message", card
// routes under "error".
package response

import (
	"errors"
	"net/http"
	"strconv"

	"fuelcard-client/pkg/apperror"

	"github.com/gin-gonic/gin"
)

// Decimal formats a monetary value the way the authority serializes it,
// e.g. 70 -> "70.00".
func Decimal(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// AuthError writes an auth-route error body: {"message": "..."}.
func AuthError(c *gin.Context, err error) {
	c.JSON(statusOf(err), gin.H{"message": messageOf(err)})
}

// CardError writes a card-route error body: {"error": "..."}.
func CardError(c *gin.Context, err error) {
	c.JSON(statusOf(err), gin.H{"error": messageOf(err)})
}

func statusOf(err error) int {
	switch apperror.KindOf(err) {
	case apperror.KindValidation, apperror.KindRejected:
		return http.StatusBadRequest
	case apperror.KindAuthorization:
		return http.StatusUnauthorized
	case apperror.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func messageOf(err error) string {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) && appErr.Kind != apperror.KindInternal {
		return appErr.Message
	}
	// Never leak internals to the client.
	return "Internal server error"
}
