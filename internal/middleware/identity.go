package middleware

import (
	"errors"
	"log"

	"github.com/labstack/echo/v4"
	"github.com/marianozunino/gatedrop/internal/apperr"
	"github.com/marianozunino/gatedrop/internal/identity"
	"github.com/marianozunino/gatedrop/internal/model"
)

const (
	identityKey  = "identity"
	claimsKey    = "claims"
	authErrorKey = "authError"
)

// TokenResolver turns an Authorization header value into verified claims
type TokenResolver interface {
	Resolve(header string) (*identity.Claims, error)
}

// Authenticate resolves the bearer token, if any, into a requester identity.
// Requests without a valid token continue anonymously.
func Authenticate(resolver TokenResolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, err := resolver.Resolve(c.Request().Header.Get(echo.HeaderAuthorization))
			switch {
			case err == nil:
				c.Set(claimsKey, claims)
				c.Set(identityKey, claims.Identity())
			case errors.Is(err, identity.ErrNoCredentials):
			default:
				log.Printf("Warning: Rejected bearer token from %s: %v", c.RealIP(), err)
				c.Set(authErrorKey, err)
			}
			return next(c)
		}
	}
}

// RequireAuth rejects anonymous requests
func RequireAuth() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if Identity(c) == nil {
				if err, ok := c.Get(authErrorKey).(error); ok {
					return err
				}
				return apperr.New(apperr.Unauthorized, "Authentication required")
			}
			return next(c)
		}
	}
}

// RequireAdmin rejects requests that are not made by an administrator
func RequireAdmin() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return RequireAuth()(func(c echo.Context) error {
			if !Identity(c).IsAdmin() {
				return apperr.New(apperr.Forbidden, "Admin access required")
			}
			return next(c)
		})
	}
}

// Identity returns the authenticated requester, or nil for anonymous requests
func Identity(c echo.Context) *model.Identity {
	id, _ := c.Get(identityKey).(*model.Identity)
	return id
}

// Claims returns the verified token claims of the request
func Claims(c echo.Context) *identity.Claims {
	claims, _ := c.Get(claimsKey).(*identity.Claims)
	return claims
}
