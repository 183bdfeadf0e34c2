package middleware

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Uscout07/casaway-speedtest/pkg/models"
)

// ErrInvalidToken is returned by verifiers for tokens that do not
// match.
var ErrInvalidToken = errors.New("invalid token")

// TokenVerifier checks bearer tokens presented to protected routes.
type TokenVerifier interface {
	Verify(token string) error
}

// StaticTokenVerifier accepts exactly one preconfigured token.
type StaticTokenVerifier struct {
	token string
}

// NewStaticTokenVerifier creates a verifier for the given token. An
// empty token rejects every request.
func NewStaticTokenVerifier(token string) StaticTokenVerifier {
	return StaticTokenVerifier{token: token}
}

// Verify compares the presented token in constant time.
func (v StaticTokenVerifier) Verify(token string) error {
	if v.token == "" || token == "" {
		return ErrInvalidToken
	}
	if subtle.ConstantTimeCompare([]byte(v.token), []byte(token)) != 1 {
		return ErrInvalidToken
	}
	return nil
}

// BearerAuth rejects requests without a valid Authorization bearer
// token.
func BearerAuth(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{
				Message: "authorization required",
				Error:   "missing bearer token",
			})
			return
		}

		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{
				Message: "authorization required",
				Error:   "malformed authorization header",
			})
			return
		}

		if err := verifier.Verify(token); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{
				Message: "authorization required",
				Error:   err.Error(),
			})
			return
		}

		c.Next()
	}
}
