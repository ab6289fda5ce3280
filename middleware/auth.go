package middleware

import (
	"context"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tobylas-w/ThaiTable-sub000/apperr"
	"github.com/tobylas-w/ThaiTable-sub000/auth"
	"github.com/tobylas-w/ThaiTable-sub000/models"
)

const identityKey = "identity"

// Authenticator resolves a bearer token to a user. *auth.Service is one.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*models.User, error)
}

func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

// Authenticate requires a valid access token and attaches the user's identity.
func Authenticate(a Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			_ = c.Error(apperr.Unauthenticated("TOKEN_REQUIRED", "token required"))
			c.Abort()
			return
		}
		user, err := a.Authenticate(c.Request.Context(), token)
		if err != nil {
			_ = c.Error(err)
			c.Abort()
			return
		}
		c.Set(identityKey, auth.Authenticated(user))
		c.Next()
	}
}

// OptionalAuth attaches the identity when the token is good and Anonymous
// otherwise. It never rejects.
func OptionalAuth(a Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := auth.Anonymous()
		if token := bearerToken(c); token != "" {
			if user, err := a.Authenticate(c.Request.Context(), token); err == nil {
				id = auth.Authenticated(user)
			}
		}
		c.Set(identityKey, id)
		c.Next()
	}
}

// CurrentIdentity returns the identity attached by Authenticate or
// OptionalAuth, or Anonymous.
func CurrentIdentity(c *gin.Context) auth.Identity {
	if v, ok := c.Get(identityKey); ok {
		if id, ok := v.(auth.Identity); ok {
			return id
		}
	}
	return auth.Anonymous()
}

// RequireRoles enforces that caller has one of the allowed roles
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := CurrentIdentity(c)
		if !id.IsAuthenticated() {
			_ = c.Error(apperr.Unauthenticated("TOKEN_REQUIRED", "token required"))
			c.Abort()
			return
		}
		if !id.HasRole(roles...) {
			_ = c.Error(apperr.Forbidden("access denied, required role(s): " + rolesString(roles)))
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireRestaurantParam rejects callers whose restaurant differs from the
// :param path value. It runs before any lookup so a foreign id is a 403,
// never a 404.
func RequireRestaurantParam(param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param(param), 10, 64)
		if err != nil || id == 0 {
			_ = c.Error(apperr.Validationf("invalid %s", param))
			c.Abort()
			return
		}
		if !CurrentIdentity(c).CanAccessRestaurant(uint(id)) {
			_ = c.Error(apperr.Forbidden("you do not have access to this restaurant"))
			c.Abort()
			return
		}
		c.Next()
	}
}

func rolesString(roles []models.UserRole) string {
	s := make([]string, len(roles))
	for i, r := range roles {
		s[i] = string(r)
	}
	return strings.Join(s, ", ")
}
