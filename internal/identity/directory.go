// Package identity resolves requesters: a user directory with bcrypt passwords
// and stateless JWT sessions with revocation.
package identity

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/marianozunino/gatedrop/internal/apperr"
	"github.com/marianozunino/gatedrop/internal/model"
	"golang.org/x/crypto/bcrypt"
)

// SeedUser is a user created at startup
type SeedUser struct {
	Username string `mapstructure:"username"`
	Email    string `mapstructure:"email"`
	Password string `mapstructure:"password"`
	Role     string `mapstructure:"role"`
}

type account struct {
	identity model.Identity
	hash     []byte
}

// Directory is an in-memory user store keyed by email
type Directory struct {
	mu       sync.RWMutex
	accounts map[string]*account
	cost     int
}

// NewDirectory creates an empty directory
func NewDirectory() *Directory {
	return &Directory{
		accounts: make(map[string]*account),
		cost:     bcrypt.DefaultCost,
	}
}

// Seed registers the given users, keeping their roles
func (d *Directory) Seed(ctx context.Context, users []SeedUser) error {
	for _, u := range users {
		role := model.Role(strings.ToLower(u.Role))
		if role != model.RoleAdmin {
			role = model.RoleUser
		}
		if _, err := d.create(u.Username, u.Email, u.Password, role); err != nil {
			return err
		}
	}
	return nil
}

// Register creates a user with the user role
func (d *Directory) Register(ctx context.Context, username, email, password string) (model.Identity, error) {
	return d.create(username, email, password, model.RoleUser)
}

func (d *Directory) create(username, email, password string, role model.Role) (model.Identity, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" || email == "" || password == "" {
		return model.Identity{}, apperr.New(apperr.Validation, "username, email and password are required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), d.cost)
	if err != nil {
		return model.Identity{}, apperr.Wrap(apperr.Validation, err, "password cannot be used")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.accounts[email]; exists {
		return model.Identity{}, apperr.New(apperr.Conflict, "Email already exists")
	}
	for _, a := range d.accounts {
		if a.identity.Username == username {
			return model.Identity{}, apperr.New(apperr.Conflict, "Username already exists")
		}
	}

	id := model.Identity{
		ID:       uuid.NewString(),
		Username: username,
		Email:    email,
		Role:     role,
	}
	d.accounts[email] = &account{identity: id, hash: hash}
	return id, nil
}

// Authenticate checks an email and password pair
func (d *Directory) Authenticate(ctx context.Context, email, password string) (model.Identity, error) {
	d.mu.RLock()
	a, ok := d.accounts[strings.TrimSpace(email)]
	d.mu.RUnlock()

	if !ok || bcrypt.CompareHashAndPassword(a.hash, []byte(password)) != nil {
		return model.Identity{}, apperr.New(apperr.Unauthorized, "Invalid email or password")
	}
	return a.identity, nil
}

// Lookup returns the identity registered under email
func (d *Directory) Lookup(ctx context.Context, email string) (model.Identity, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	a, ok := d.accounts[email]
	if !ok {
		return model.Identity{}, false
	}
	return a.identity, true
}
