// Package access decides whether a requester may read a file.
package access

import (
	"crypto/subtle"
	"time"

	"github.com/marianozunino/gatedrop/internal/apperr"
	"github.com/marianozunino/gatedrop/internal/clock"
	"github.com/marianozunino/gatedrop/internal/lifecycle"
	"github.com/marianozunino/gatedrop/internal/model"
)

const (
	msgExpired           = "File has expired"
	msgNotYetAvailable   = "File not yet available"
	msgAuthRequired      = "Authentication required for private file"
	msgNotShared         = "You are not in the shared list"
	msgPrivate           = "Private file"
	msgPasswordRequired  = "This file is password-protected. Please provide the password parameter"
	msgIncorrectPassword = "The file password is incorrect"
)

// Decision is the outcome of an access check. A zero Reason means access is granted.
type Decision struct {
	Reason              apperr.Kind
	Message             string
	ExpiredAt           time.Time
	AvailableFrom       time.Time
	HoursUntilAvailable float64
}

// Allowed reports whether access is granted
func (d Decision) Allowed() bool {
	return d.Reason == ""
}

// Label is the reason as used in logs and metrics
func (d Decision) Label() string {
	if d.Allowed() {
		return "allowed"
	}
	return string(d.Reason)
}

// Status is the HTTP status hint of the decision
func (d Decision) Status() int {
	if d.Allowed() {
		return 200
	}
	return apperr.Status(d.Reason)
}

// Err converts a denial into an error carrying its structured payload. It returns nil for an allow.
func (d Decision) Err() error {
	if d.Allowed() {
		return nil
	}
	err := apperr.New(d.Reason, d.Message)
	switch d.Reason {
	case apperr.Expired:
		err.With("expiredAt", d.ExpiredAt)
	case apperr.NotYetAvailable:
		err.With("availableFrom", d.AvailableFrom).With("hoursUntilAvailable", d.HoursUntilAvailable)
	}
	return err
}

// Engine evaluates access rules against an injected clock
type Engine struct {
	clock clock.Clock
}

// NewEngine creates an engine reading time from c
func NewEngine(c clock.Clock) *Engine {
	if c == nil {
		c = clock.System{}
	}
	return &Engine{clock: c}
}

// Decide evaluates access at the engine's current time
func (e *Engine) Decide(file model.FileRecord, requester *model.Identity, credential string) Decision {
	return Decide(file, requester, credential, e.clock.Now())
}

// Decide applies the access rules in order; the first failing rule wins.
// Expiry applies to the owner too. Pending applies to everyone but the owner.
func Decide(file model.FileRecord, requester *model.Identity, credential string, now time.Time) Decision {
	state := lifecycle.Evaluate(file.AvailableFrom, file.AvailableTo, now)
	owner := file.IsOwnedBy(requester)

	if state == lifecycle.Expired {
		return Decision{Reason: apperr.Expired, Message: msgExpired, ExpiredAt: file.AvailableTo}
	}

	if state == lifecycle.Pending && !owner {
		return Decision{
			Reason:              apperr.NotYetAvailable,
			Message:             msgNotYetAvailable,
			AvailableFrom:       file.AvailableFrom,
			HoursUntilAvailable: lifecycle.HoursUntil(file.AvailableFrom, now),
		}
	}

	if !file.IsPublic || file.IsShared() {
		if requester == nil {
			return deny(apperr.Unauthorized, msgAuthRequired)
		}
		if file.IsShared() {
			if !owner && !file.HasWhitelisted(requester.Email) {
				return deny(apperr.Forbidden, msgNotShared)
			}
		} else if !owner {
			return deny(apperr.Forbidden, msgPrivate)
		}
	}

	if file.PasswordProtected {
		if credential == "" {
			return deny(apperr.PasswordRequired, msgPasswordRequired)
		}
		if subtle.ConstantTimeCompare([]byte(credential), []byte(file.Password)) != 1 {
			return deny(apperr.IncorrectPassword, msgIncorrectPassword)
		}
	}

	return Decision{}
}

func deny(kind apperr.Kind, msg string) Decision {
	return Decision{Reason: kind, Message: msg}
}
