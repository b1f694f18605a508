package devserver

import (
	"net/http"
	"time"

	"fuelcard-client/pkg/apperror"
	"fuelcard-client/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// ctxUserID is the gin context key carrying the authenticated user's ID.
const ctxUserID = "user_id"

// BearerAuth validates the Authorization header and stores the user ID in
// the request context. Failures use the auth-route error body.
func BearerAuth(tokens *TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if len(authHeader) < 8 || authHeader[:7] != "Bearer " {
			response.AuthError(c, apperror.ErrUnauthorized())
			c.Abort()
			return
		}

		claims, err := tokens.Validate(authHeader[7:])
		if err != nil {
			response.AuthError(c, apperror.ErrUnauthorized())
			c.Abort()
			return
		}

		c.Set(ctxUserID, claims.UserID)
		c.Next()
	}
}

// RequestLogger logs every HTTP request with method, path, status and latency.
func RequestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()

		event := log.Info()
		if status >= http.StatusInternalServerError {
			event = log.Error()
		} else if status >= http.StatusBadRequest {
			event = log.Warn()
		}

		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", latency).
			Str("client_ip", c.ClientIP()).
			Msg("http request")
	}
}

// Recovery converts panics into a 500 response.
func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("path", c.Request.URL.Path).Msg("panic recovered")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"message": "Internal server error",
				})
			}
		}()
		c.Next()
	}
}

// MaxBodySize limits the request body size. Once the limit is exceeded the
// reader returns an error and the request is rejected.
func MaxBodySize(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}

// userID reads the authenticated user ID set by BearerAuth.
func userID(c *gin.Context) int64 {
	id, _ := c.Get(ctxUserID)
	v, _ := id.(int64)
	return v
}
