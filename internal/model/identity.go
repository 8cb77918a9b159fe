package model

// Role of an identity
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Identity is an authenticated requester. Files refer to identities by email.
type Identity struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     Role   `json:"role"`
}

// IsAdmin reports whether the identity has the admin role
func (i *Identity) IsAdmin() bool {
	return i != nil && i.Role == RoleAdmin
}

// Downloader returns the history form of the identity, nil for anonymous requesters
func (i *Identity) Downloader() *Downloader {
	if i == nil {
		return nil
	}
	return &Downloader{Username: i.Username, Email: i.Email}
}
