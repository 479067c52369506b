package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"vouch/internal/auth"
)

const identityKey = "vouch.identity"

// identityFrom returns the verified caller identity set by RequireAccess or
// RequireRefresh. Handlers behind those middlewares can rely on it being set.
func identityFrom(c *gin.Context) auth.Identity {
	v, _ := c.Get(identityKey)
	id, _ := v.(auth.Identity)
	return id
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// RequireAccess rejects requests without a valid access token and injects
// the token's identity into the request context. Expiry is reported with a
// distinct code so clients know to refresh instead of re-authenticating.
func RequireAccess(tokens *auth.Tokens) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			abortUnauthorized(c, "UNAUTHORIZED", "authentication required")
			return
		}

		claims, err := tokens.VerifyAccess(token)
		if err != nil {
			if errors.Is(err, auth.ErrTokenExpired) {
				abortUnauthorized(c, "TOKEN_EXPIRED", "access token expired")
				return
			}
			abortUnauthorized(c, "UNAUTHORIZED", "invalid access token")
			return
		}

		c.Set(identityKey, auth.Identity{
			UserID: claims.UserID,
			Email:  claims.Email,
			Name:   claims.Name,
		})
		c.Next()
	}
}

// RequireRefresh gates the token refresh endpoint. Refresh tokens carry only
// the user id, so the injected identity is partial.
func RequireRefresh(tokens *auth.Tokens) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			abortUnauthorized(c, "UNAUTHORIZED", "authentication required")
			return
		}

		claims, err := tokens.VerifyRefresh(token)
		if err != nil {
			if errors.Is(err, auth.ErrTokenExpired) {
				abortUnauthorized(c, "TOKEN_EXPIRED", "refresh token expired")
				return
			}
			abortUnauthorized(c, "UNAUTHORIZED", "invalid refresh token")
			return
		}

		c.Set(identityKey, auth.Identity{UserID: claims.UserID})
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, code, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": code, "message": message})
}
