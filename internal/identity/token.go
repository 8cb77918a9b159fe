package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/marianozunino/gatedrop/internal/apperr"
	"github.com/marianozunino/gatedrop/internal/clock"
	"github.com/marianozunino/gatedrop/internal/model"
)

// Claims are the JWT claims of a session
type Claims struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Identity converts the claims back into a requester
func (c *Claims) Identity() *model.Identity {
	return &model.Identity{
		ID:       c.Subject,
		Username: c.Username,
		Email:    c.Email,
		Role:     model.Role(c.Role),
	}
}

// Sessions issues, verifies and revokes bearer tokens
type Sessions struct {
	secret    []byte
	ttl       time.Duration
	clock     clock.Clock
	directory *Directory
	revoked   *expirable.LRU[string, struct{}]
}

// NewSessions creates a session manager. Revoked token ids are remembered for ttl,
// after which the tokens have expired anyway.
func NewSessions(secret string, ttl time.Duration, revocationCacheSize int, c clock.Clock, directory *Directory) *Sessions {
	if revocationCacheSize <= 0 {
		revocationCacheSize = 10000
	}
	if c == nil {
		c = clock.System{}
	}
	return &Sessions{
		secret:    []byte(secret),
		ttl:       ttl,
		clock:     c,
		directory: directory,
		revoked:   expirable.NewLRU[string, struct{}](revocationCacheSize, nil, ttl),
	}
}

// Issue signs a token for id
func (s *Sessions) Issue(id model.Identity) (string, time.Time, error) {
	now := s.clock.Now()
	expiresAt := now.Add(s.ttl)

	claims := &Claims{
		Username: id.Username,
		Email:    id.Email,
		Role:     string(id.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   id.ID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, apperr.Wrap(apperr.Internal, err, "failed to sign token")
	}
	return signed, expiresAt, nil
}

// Login authenticates credentials and issues a token
func (s *Sessions) Login(ctx context.Context, email, password string) (string, model.Identity, error) {
	id, err := s.directory.Authenticate(ctx, email, password)
	if err != nil {
		return "", model.Identity{}, err
	}
	token, _, err := s.Issue(id)
	if err != nil {
		return "", model.Identity{}, err
	}
	return token, id, nil
}

// Verify parses a token and rejects expired or revoked ones
func (s *Sessions) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.clock.Now))
	if err != nil {
		return nil, apperr.Wrap(apperr.Unauthorized, err, "Invalid or expired token")
	}
	if !token.Valid {
		return nil, apperr.New(apperr.Unauthorized, "Invalid or expired token")
	}
	if _, revoked := s.revoked.Get(claims.ID); revoked {
		return nil, apperr.New(apperr.Unauthorized, "Token has been revoked")
	}
	return claims, nil
}

// Revoke invalidates the token until it expires
func (s *Sessions) Revoke(claims *Claims) {
	if claims == nil || claims.ID == "" {
		return
	}
	s.revoked.Add(claims.ID, struct{}{})
}

// ErrNoCredentials is returned by Resolve when no bearer token is present
var ErrNoCredentials = errors.New("no bearer token")

// Resolve extracts and verifies the bearer token of an Authorization header value
func (s *Sessions) Resolve(header string) (*Claims, error) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return nil, ErrNoCredentials
	}
	token := strings.TrimSpace(header[len(prefix):])
	if token == "" {
		return nil, ErrNoCredentials
	}
	return s.Verify(token)
}
