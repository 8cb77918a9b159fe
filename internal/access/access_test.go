package access

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/marianozunino/gatedrop/internal/apperr"
	"github.com/marianozunino/gatedrop/internal/clock"
	"github.com/marianozunino/gatedrop/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	t0    = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	alice = &model.Identity{ID: "1", Username: "alice", Email: "alice@example.com", Role: model.RoleUser}
	bob   = &model.Identity{ID: "2", Username: "bob", Email: "bob@example.com", Role: model.RoleUser}
	carol = &model.Identity{ID: "3", Username: "carol", Email: "carol@example.com", Role: model.RoleUser}
	root  = &model.Identity{ID: "4", Username: "root", Email: "root@example.com", Role: model.RoleAdmin}
)

func activeFile() model.FileRecord {
	return model.FileRecord{
		ID:            "f1",
		Filename:      "report.pdf",
		OwnerEmail:    alice.Email,
		IsPublic:      true,
		AvailableFrom: t0.Add(-time.Hour),
		AvailableTo:   t0.Add(24 * time.Hour),
		CreatedAt:     t0.Add(-time.Hour),
	}
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(f *model.FileRecord)
		requester  *model.Identity
		credential string
		want       apperr.Kind
	}{
		{
			name:      "public active file anonymous",
			requester: nil,
			want:      "",
		},
		{
			name:      "expired denies owner",
			mutate:    func(f *model.FileRecord) { f.AvailableTo = t0.Add(-time.Minute) },
			requester: alice,
			want:      apperr.Expired,
		},
		{
			name:      "pending denies non-owner",
			mutate:    func(f *model.FileRecord) { f.AvailableFrom = t0.Add(time.Hour) },
			requester: bob,
			want:      apperr.NotYetAvailable,
		},
		{
			name:      "pending allows owner",
			mutate:    func(f *model.FileRecord) { f.AvailableFrom = t0.Add(time.Hour) },
			requester: alice,
			want:      "",
		},
		{
			name:      "private anonymous",
			mutate:    func(f *model.FileRecord) { f.IsPublic = false },
			requester: nil,
			want:      apperr.Unauthorized,
		},
		{
			name:      "private non-owner",
			mutate:    func(f *model.FileRecord) { f.IsPublic = false },
			requester: bob,
			want:      apperr.Forbidden,
		},
		{
			name:      "private admin is not owner",
			mutate:    func(f *model.FileRecord) { f.IsPublic = false },
			requester: root,
			want:      apperr.Forbidden,
		},
		{
			name:      "private owner",
			mutate:    func(f *model.FileRecord) { f.IsPublic = false },
			requester: alice,
			want:      "",
		},
		{
			name:      "public whitelist requires identity",
			mutate:    func(f *model.FileRecord) { f.SharedWith = []string{bob.Email} },
			requester: nil,
			want:      apperr.Unauthorized,
		},
		{
			name:      "whitelisted identity",
			mutate:    func(f *model.FileRecord) { f.SharedWith = []string{bob.Email} },
			requester: bob,
			want:      "",
		},
		{
			name:      "owner not in whitelist",
			mutate:    func(f *model.FileRecord) { f.SharedWith = []string{bob.Email} },
			requester: alice,
			want:      "",
		},
		{
			name:      "password required",
			mutate:    func(f *model.FileRecord) { f.PasswordProtected, f.Password = true, "hunter22" },
			requester: nil,
			want:      apperr.PasswordRequired,
		},
		{
			name:       "password incorrect",
			mutate:     func(f *model.FileRecord) { f.PasswordProtected, f.Password = true, "hunter22" },
			credential: "hunter23",
			want:       apperr.IncorrectPassword,
		},
		{
			name:       "password correct",
			mutate:     func(f *model.FileRecord) { f.PasswordProtected, f.Password = true, "hunter22" },
			credential: "hunter22",
			want:       "",
		},
		{
			name:      "owner still needs the password",
			mutate:    func(f *model.FileRecord) { f.PasswordProtected, f.Password = true, "hunter22" },
			requester: alice,
			want:      apperr.PasswordRequired,
		},
		{
			name:      "anonymous upload is owned by nobody",
			mutate:    func(f *model.FileRecord) { f.OwnerEmail = ""; f.IsPublic = false },
			requester: &model.Identity{Email: ""},
			want:      apperr.Forbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := activeFile()
			if tt.mutate != nil {
				tt.mutate(&f)
			}
			d := Decide(f, tt.requester, tt.credential, t0)
			assert.Equal(t, tt.want, d.Reason, "decision: %s", spew.Sdump(d))
			assert.Equal(t, tt.want == "", d.Allowed())
		})
	}
}

// A private file whitelisting one identity.
func TestPrivateWhitelistScenario(t *testing.T) {
	f := activeFile()
	f.IsPublic = false
	f.SharedWith = []string{bob.Email}

	assert.True(t, Decide(f, bob, "", t0).Allowed())

	d := Decide(f, carol, "", t0)
	assert.Equal(t, apperr.Forbidden, d.Reason)
	assert.Equal(t, msgNotShared, d.Message)

	d = Decide(f, nil, "", t0)
	assert.Equal(t, apperr.Unauthorized, d.Reason)
	assert.Equal(t, http.StatusUnauthorized, d.Status())
}

// The owner of a pending file may access it early, others get a countdown.
func TestPendingCountdown(t *testing.T) {
	f := activeFile()
	f.AvailableFrom = t0.Add(2*time.Hour + 30*time.Minute)

	assert.True(t, Decide(f, alice, "", t0).Allowed())

	d := Decide(f, bob, "", t0)
	require.Equal(t, apperr.NotYetAvailable, d.Reason)
	assert.Equal(t, 423, d.Status())
	assert.Equal(t, f.AvailableFrom, d.AvailableFrom)
	assert.InDelta(t, 2.5, d.HoursUntilAvailable, 1e-9)
}

// Expiry is absolute, even for the owner.
func TestExpiredDeniesEveryone(t *testing.T) {
	f := activeFile()
	f.AvailableTo = t0.Add(-time.Second)

	for _, r := range []*model.Identity{nil, alice, bob, root} {
		d := Decide(f, r, "", t0)
		assert.Equal(t, apperr.Expired, d.Reason)
		assert.Equal(t, http.StatusGone, d.Status())
		assert.Equal(t, f.AvailableTo, d.ExpiredAt)
	}
}

// Password checks come after visibility.
func TestPasswordAfterVisibility(t *testing.T) {
	f := activeFile()
	f.IsPublic = false
	f.PasswordProtected = true
	f.Password = "letmein"

	assert.Equal(t, apperr.Unauthorized, Decide(f, nil, "letmein", t0).Reason)
	assert.Equal(t, apperr.Forbidden, Decide(f, bob, "letmein", t0).Reason)
	assert.Equal(t, apperr.PasswordRequired, Decide(f, alice, "", t0).Reason)
	assert.Equal(t, apperr.IncorrectPassword, Decide(f, alice, "nope", t0).Reason)
	assert.True(t, Decide(f, alice, "letmein", t0).Allowed())
}

// A file moves through pending, active and expired as time passes.
func TestEngineFollowsClock(t *testing.T) {
	clk := clock.NewFixed(t0)
	engine := NewEngine(clk)

	f := activeFile()
	f.AvailableFrom = t0.Add(time.Hour)
	f.AvailableTo = t0.Add(2 * time.Hour)

	assert.Equal(t, apperr.NotYetAvailable, engine.Decide(f, nil, "").Reason)

	clk.Advance(90 * time.Minute)
	assert.True(t, engine.Decide(f, nil, "").Allowed())

	clk.Set(f.AvailableTo)
	assert.True(t, engine.Decide(f, nil, "").Allowed(), "the end bound is inclusive")

	clk.Advance(time.Nanosecond)
	assert.Equal(t, apperr.Expired, engine.Decide(f, nil, "").Reason)
}

func TestExpiredWinsOverPending(t *testing.T) {
	f := activeFile()
	f.AvailableFrom = t0.Add(time.Hour)
	f.AvailableTo = t0.Add(-time.Hour)

	// inverted windows are pending first
	assert.Equal(t, apperr.NotYetAvailable, Decide(f, bob, "", t0).Reason)
}

func TestDecisionErr(t *testing.T) {
	assert.NoError(t, Decision{}.Err())

	f := activeFile()
	f.AvailableFrom = t0.Add(time.Hour)
	err := Decide(f, nil, "", t0).Err()

	var appErr *apperr.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperr.NotYetAvailable, appErr.Kind)
	assert.Equal(t, f.AvailableFrom, appErr.Details["availableFrom"])
	assert.InDelta(t, 1.0, appErr.Details["hoursUntilAvailable"], 1e-9)

	f = activeFile()
	f.AvailableTo = t0.Add(-time.Hour)
	err = Decide(f, nil, "", t0).Err()
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, f.AvailableTo, appErr.Details["expiredAt"])
}

func TestDecideIsPure(t *testing.T) {
	f := activeFile()
	f.SharedWith = []string{bob.Email}
	before := spew.Sdump(f)

	first := Decide(f, carol, "x", t0)
	second := Decide(f, carol, "x", t0)

	assert.Equal(t, first, second)
	assert.Equal(t, before, spew.Sdump(f))
}

func TestDecisionLabel(t *testing.T) {
	assert.Equal(t, "allowed", Decision{}.Label())
	assert.Equal(t, "EXPIRED", Decision{Reason: apperr.Expired}.Label())
	assert.Equal(t, http.StatusOK, Decision{}.Status())
}
