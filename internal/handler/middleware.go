package handler

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"google.golang.org/api/idtoken"

	"github.com/akozyrev/fitcoach-service/internal/dto"
)

// telegramSecretHeader is echoed back by Telegram on every webhook delivery.
const telegramSecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// IdentityVerifier validates a caller's identity token
type IdentityVerifier interface {
	Verify(ctx context.Context, token string) error
}

// googleIdentityVerifier validates Google-signed OIDC tokens, the identity the
// scheduler attaches to its invocations.
type googleIdentityVerifier struct {
	audience string
}

// NewIdentityVerifier creates a verifier for the given audience
func NewIdentityVerifier(audience string) IdentityVerifier {
	return &googleIdentityVerifier{audience: audience}
}

func (v *googleIdentityVerifier) Verify(ctx context.Context, token string) error {
	_, err := idtoken.Validate(ctx, token, v.audience)
	return err
}

// SchedulerAuthMiddleware requires a valid OIDC identity token on scheduled
// trigger endpoints. Nothing downstream runs for an unauthenticated caller.
func SchedulerAuthMiddleware(verifier IdentityVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, dto.ErrorResponse{
				Error:   "Unauthorized",
				Message: "Authorization header is required",
			})
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, dto.ErrorResponse{
				Error:   "Unauthorized",
				Message: "Invalid authorization header format",
			})
			c.Abort()
			return
		}

		if err := verifier.Verify(c.Request.Context(), parts[1]); err != nil {
			c.JSON(http.StatusForbidden, dto.ErrorResponse{
				Error:   "Forbidden",
				Message: "Invalid identity token",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// TelegramSecretMiddleware checks the webhook secret token header against the
// value registered with setWebhook.
func TelegramSecretMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader(telegramSecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			c.JSON(http.StatusUnauthorized, dto.ErrorResponse{
				Error:   "Unauthorized",
				Message: "Invalid webhook secret",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// BudgetMiddleware caps the request's wall clock below the scheduler's
// attempt deadline, so work fails fast instead of being killed mid-write.
func BudgetMiddleware(budget time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), budget)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
