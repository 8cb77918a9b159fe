// Package upload validates upload requests against the current policy.
package upload

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/marianozunino/gatedrop/internal/apperr"
	"github.com/marianozunino/gatedrop/internal/model"
	"github.com/marianozunino/gatedrop/internal/policy"
)

// Candidate is an upload as submitted. Nil bounds are filled from the policy.
type Candidate struct {
	Size          int64
	Password      string
	AvailableFrom *time.Time
	AvailableTo   *time.Time
	IsPublic      bool
	SharedWith    []string
	Requester     *model.Identity
}

// Resolved is a validated candidate with its window and whitelist settled
type Resolved struct {
	AvailableFrom     time.Time
	AvailableTo       time.Time
	IsPublic          bool
	PasswordProtected bool
	Password          string
	SharedWith        []string
}

// Validator checks candidates. The zero value applies the size, password and window rules only.
type Validator struct {
	// EnforceValidityBounds also rejects windows outside [MinValidityHours, MaxValidityDays]
	EnforceValidityBounds bool
}

// Validate runs the default validator
func Validate(c Candidate, p policy.Policy, now time.Time) (Resolved, error) {
	return Validator{}.Validate(c, p, now)
}

// Validate checks c against p at now. Rules run in order and the first failure is returned.
func (v Validator) Validate(c Candidate, p policy.Policy, now time.Time) (Resolved, error) {
	if c.Size > p.MaxFileSizeBytes() {
		return Resolved{}, apperr.New(apperr.PayloadTooLarge, "File size exceeds the system limit").
			With("maxFileSizeMB", p.MaxFileSizeMB)
	}

	if c.Password != "" && utf8.RuneCountInString(c.Password) < p.RequirePasswordMinLength {
		return Resolved{}, apperr.New(apperr.Validation, "Password too short").
			With("minLength", p.RequirePasswordMinLength)
	}

	from := now
	if c.AvailableFrom != nil {
		from = *c.AvailableFrom
	}
	to := from.AddDate(0, 0, p.DefaultValidityDays)
	if c.AvailableTo != nil {
		to = *c.AvailableTo
	}

	if !from.Before(to) {
		return Resolved{}, apperr.New(apperr.Validation,
			"availableFrom must be before availableTo and within allowed policy window")
	}

	if v.EnforceValidityBounds {
		window := to.Sub(from)
		if window < time.Duration(p.MinValidityHours)*time.Hour {
			return Resolved{}, apperr.New(apperr.Validation, "Availability window is shorter than the policy minimum").
				With("minValidityHours", p.MinValidityHours)
		}
		if window > time.Duration(p.MaxValidityDays)*24*time.Hour {
			return Resolved{}, apperr.New(apperr.Validation, "Availability window is longer than the policy maximum").
				With("maxValidityDays", p.MaxValidityDays)
		}
	}

	if !c.IsPublic && c.Requester == nil {
		return Resolved{}, apperr.New(apperr.Unauthorized,
			"Private uploads (isPublic=false/sharedWith) require authentication")
	}

	return Resolved{
		AvailableFrom:     from,
		AvailableTo:       to,
		IsPublic:          c.IsPublic,
		PasswordProtected: c.Password != "",
		Password:          c.Password,
		SharedWith:        NormalizeWhitelist(c.SharedWith),
	}, nil
}

// NormalizeWhitelist trims entries, splits comma separated values, drops empties and duplicates.
// The result is never nil.
func NormalizeWhitelist(entries []string) []string {
	out := make([]string, 0, len(entries))
	seen := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		for _, part := range strings.Split(entry, ",") {
			email := strings.TrimSpace(part)
			if email == "" {
				continue
			}
			if _, ok := seen[email]; ok {
				continue
			}
			seen[email] = struct{}{}
			out = append(out, email)
		}
	}
	return out
}
