// Package policy holds the process-wide upload policy.
package policy

import (
	"context"
	"sync"

	"github.com/marianozunino/gatedrop/internal/apperr"
)

// Policy is the admin-mutable upload policy
type Policy struct {
	ID                       int `json:"id" mapstructure:"-"`
	MaxFileSizeMB            int `json:"maxFileSizeMB" mapstructure:"max_file_size_mb"`
	MinValidityHours         int `json:"minValidityHours" mapstructure:"min_validity_hours"`
	MaxValidityDays          int `json:"maxValidityDays" mapstructure:"max_validity_days"`
	DefaultValidityDays      int `json:"defaultValidityDays" mapstructure:"default_validity_days"`
	RequirePasswordMinLength int `json:"requirePasswordMinLength" mapstructure:"require_password_min_length"`
}

// Default returns the policy used when nothing is configured
func Default() Policy {
	return Policy{
		ID:                       1,
		MaxFileSizeMB:            50,
		MinValidityHours:         1,
		MaxValidityDays:          30,
		DefaultValidityDays:      7,
		RequirePasswordMinLength: 6,
	}
}

// Upper bounds keep byte and duration arithmetic within int64
const (
	MaxFileSizeMBLimit   = 1 << 20
	MaxValidityDaysLimit = 36500
)

// MaxFileSizeBytes is the upload size limit in bytes
func (p Policy) MaxFileSizeBytes() int64 {
	return int64(p.MaxFileSizeMB) * 1024 * 1024
}

// Validate checks that every field is positive and bounded, and the default validity fits the maximum
func (p Policy) Validate() error {
	fields := []struct {
		name  string
		value int
	}{
		{"maxFileSizeMB", p.MaxFileSizeMB},
		{"minValidityHours", p.MinValidityHours},
		{"maxValidityDays", p.MaxValidityDays},
		{"defaultValidityDays", p.DefaultValidityDays},
		{"requirePasswordMinLength", p.RequirePasswordMinLength},
	}
	for _, f := range fields {
		if f.value <= 0 {
			return apperr.Newf(apperr.Validation, "%s must be a positive integer", f.name).With("field", f.name)
		}
	}
	if p.MaxFileSizeMB > MaxFileSizeMBLimit {
		return apperr.Newf(apperr.Validation, "maxFileSizeMB must not exceed %d", MaxFileSizeMBLimit).
			With("field", "maxFileSizeMB")
	}
	if p.MaxValidityDays > MaxValidityDaysLimit {
		return apperr.Newf(apperr.Validation, "maxValidityDays must not exceed %d", MaxValidityDaysLimit).
			With("field", "maxValidityDays")
	}
	if p.DefaultValidityDays > p.MaxValidityDays {
		return apperr.New(apperr.Validation, "defaultValidityDays must not exceed maxValidityDays").
			With("field", "defaultValidityDays")
	}
	if p.MinValidityHours > p.MaxValidityDays*24 {
		return apperr.New(apperr.Validation, "minValidityHours must not exceed maxValidityDays").
			With("field", "minValidityHours")
	}
	return nil
}

// Patch is a partial policy update. Nil fields are left unchanged.
type Patch struct {
	MaxFileSizeMB            *int `json:"maxFileSizeMB,omitempty"`
	MinValidityHours         *int `json:"minValidityHours,omitempty"`
	MaxValidityDays          *int `json:"maxValidityDays,omitempty"`
	DefaultValidityDays      *int `json:"defaultValidityDays,omitempty"`
	RequirePasswordMinLength *int `json:"requirePasswordMinLength,omitempty"`
}

// Empty reports whether the patch changes nothing
func (p Patch) Empty() bool {
	return p.MaxFileSizeMB == nil && p.MinValidityHours == nil && p.MaxValidityDays == nil &&
		p.DefaultValidityDays == nil && p.RequirePasswordMinLength == nil
}

// Apply returns base with the patch applied, validated
func (p Patch) Apply(base Policy) (Policy, error) {
	out := base
	if p.MaxFileSizeMB != nil {
		out.MaxFileSizeMB = *p.MaxFileSizeMB
	}
	if p.MinValidityHours != nil {
		out.MinValidityHours = *p.MinValidityHours
	}
	if p.MaxValidityDays != nil {
		out.MaxValidityDays = *p.MaxValidityDays
	}
	if p.DefaultValidityDays != nil {
		out.DefaultValidityDays = *p.DefaultValidityDays
	}
	if p.RequirePasswordMinLength != nil {
		out.RequirePasswordMinLength = *p.RequirePasswordMinLength
	}
	if err := out.Validate(); err != nil {
		return base, err
	}
	return out, nil
}

// Store persists the current policy
type Store interface {
	Get(ctx context.Context) (Policy, error)
	Update(ctx context.Context, patch Patch) (Policy, error)
}

// MemoryStore keeps the policy in process memory
type MemoryStore struct {
	mu     sync.RWMutex
	policy Policy
}

// NewMemoryStore creates a store holding initial
func NewMemoryStore(initial Policy) *MemoryStore {
	if initial.ID == 0 {
		initial.ID = 1
	}
	return &MemoryStore{policy: initial}
}

// Get returns the current policy
func (s *MemoryStore) Get(ctx context.Context) (Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.policy, nil
}

// Update applies patch atomically
func (s *MemoryStore) Update(ctx context.Context, patch Patch) (Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updated, err := patch.Apply(s.policy)
	if err != nil {
		return s.policy, err
	}
	s.policy = updated
	return updated, nil
}
