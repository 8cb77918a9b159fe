// Package registrytest holds the behaviour suite every registry backend must pass.
package registrytest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/marianozunino/gatedrop/internal/apperr"
	"github.com/marianozunino/gatedrop/internal/lifecycle"
	"github.com/marianozunino/gatedrop/internal/model"
	"github.com/marianozunino/gatedrop/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// Factory returns a fresh, empty registry and a cleanup func
type Factory func(t *testing.T) (registry.Registry, func())

// Now is the reference time used by every fixture
var Now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// NewFile builds an active public file owned by owner
func NewFile(name, owner string, createdAt time.Time) model.FileRecord {
	return model.FileRecord{
		ID:            uuid.NewString(),
		Filename:      name,
		Size:          42,
		MimeType:      "text/plain",
		OwnerEmail:    owner,
		IsPublic:      true,
		SharedWith:    []string{},
		AvailableFrom: Now.Add(-time.Hour),
		AvailableTo:   Now.Add(24 * time.Hour),
		CreatedAt:     createdAt,
	}
}

// Run executes the suite against backends built by factory
func Run(t *testing.T, factory Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, r registry.Registry)
	}{
		{"CreateAndGet", testCreateAndGet},
		{"CreateDuplicate", testCreateDuplicate},
		{"GetMissing", testGetMissing},
		{"DeleteRemovesStatsAndHistory", testDelete},
		{"RecordDownload", testRecordDownload},
		{"HistoryPagination", testHistoryPagination},
		{"ListByOwner", testListByOwner},
		{"ListByOwnerSortAndFilter", testListByOwnerSortAndFilter},
		{"ListPublicActive", testListPublicActive},
		{"ListRequiresReferenceTime", testListRequiresReferenceTime},
		{"DeleteMatching", testDeleteMatching},
		{"ConcurrentDownloads", testConcurrentDownloads},
		{"ConcurrentDeleteAndDownload", testConcurrentDeleteAndDownload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, cleanup := factory(t)
			defer cleanup()
			tt.fn(t, r)
		})
	}
}

func testCreateAndGet(t *testing.T, r registry.Registry) {
	ctx := context.Background()
	f := NewFile("a.txt", "alice@example.com", Now)
	f.IsPublic = false
	f.SharedWith = []string{"bob@example.com", "carol@example.com"}
	f.PasswordProtected = true
	f.Password = "secret1"

	require.NoError(t, r.Create(ctx, f))

	got, err := r.Get(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, f.ID, got.ID)
	assert.Equal(t, f.Filename, got.Filename)
	assert.Equal(t, f.OwnerEmail, got.OwnerEmail)
	assert.False(t, got.IsPublic)
	assert.ElementsMatch(t, f.SharedWith, got.SharedWith)
	assert.True(t, got.PasswordProtected)
	assert.Equal(t, "secret1", got.Password)
	assert.True(t, f.AvailableFrom.Equal(got.AvailableFrom))
	assert.True(t, f.AvailableTo.Equal(got.AvailableTo))
	assert.True(t, f.CreatedAt.Equal(got.CreatedAt))

	stats, err := r.Stats(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.DownloadCount)
	assert.Equal(t, 0, stats.UniqueCount())
	assert.Nil(t, stats.LastDownloadedAt)

	history, total, err := r.History(ctx, f.ID, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, history)
	assert.Equal(t, 0, total)
}

func testCreateDuplicate(t *testing.T, r registry.Registry) {
	ctx := context.Background()
	f := NewFile("a.txt", "", Now)
	require.NoError(t, r.Create(ctx, f))

	err := r.Create(ctx, f)
	assert.Equal(t, apperr.Conflict, apperr.KindOf(err))
}

func testGetMissing(t *testing.T, r registry.Registry) {
	ctx := context.Background()

	_, err := r.Get(ctx, "missing")
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
	assert.Equal(t, apperr.NotFound, apperr.KindOf(r.Delete(ctx, "missing")))
	_, err = r.Stats(ctx, "missing")
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
	_, _, err = r.History(ctx, "missing", 0, 10)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
	_, err = r.RecordDownload(ctx, "missing", nil, Now)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func testDelete(t *testing.T, r registry.Registry) {
	ctx := context.Background()
	f := NewFile("a.txt", "alice@example.com", Now)
	require.NoError(t, r.Create(ctx, f))
	_, err := r.RecordDownload(ctx, f.ID, nil, Now)
	require.NoError(t, err)

	require.NoError(t, r.Delete(ctx, f.ID))

	_, err = r.Get(ctx, f.ID)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
	_, err = r.Stats(ctx, f.ID)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
	_, _, err = r.History(ctx, f.ID, 0, 0)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))

	// the id is free again
	require.NoError(t, r.Create(ctx, f))
	stats, err := r.Stats(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.DownloadCount)
}

func testRecordDownload(t *testing.T, r registry.Registry) {
	ctx := context.Background()
	f := NewFile("a.txt", "alice@example.com", Now)
	require.NoError(t, r.Create(ctx, f))

	bob := &model.Identity{Username: "bob", Email: "bob@example.com"}
	first, err := r.RecordDownload(ctx, f.ID, bob, Now)
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	assert.True(t, first.DownloadCompleted)
	assert.Equal(t, &model.Downloader{Username: "bob", Email: "bob@example.com"}, first.Downloader)

	_, err = r.RecordDownload(ctx, f.ID, bob, Now.Add(time.Minute))
	require.NoError(t, err)
	last, err := r.RecordDownload(ctx, f.ID, nil, Now.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Nil(t, last.Downloader)

	stats, err := r.Stats(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.DownloadCount)
	assert.Equal(t, 1, stats.UniqueCount())
	require.NotNil(t, stats.LastDownloadedAt)
	assert.True(t, Now.Add(2*time.Minute).Equal(*stats.LastDownloadedAt))

	history, total, err := r.History(ctx, f.ID, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, history, 3)
	assert.Equal(t, last.ID, history[0].ID, "most recent first")
	assert.Equal(t, first.ID, history[2].ID)
}

func testHistoryPagination(t *testing.T, r registry.Registry) {
	ctx := context.Background()
	f := NewFile("a.txt", "alice@example.com", Now)
	require.NoError(t, r.Create(ctx, f))

	for i := 0; i < 5; i++ {
		_, err := r.RecordDownload(ctx, f.ID, nil, Now.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
	}

	page, total, err := r.History(ctx, f.ID, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, page, 2)
	assert.True(t, Now.Add(3*time.Minute).Equal(page[0].DownloadedAt))
	assert.True(t, Now.Add(2*time.Minute).Equal(page[1].DownloadedAt))

	page, _, err = r.History(ctx, f.ID, 10, 2)
	require.NoError(t, err)
	assert.Empty(t, page)

	page, _, err = r.History(ctx, f.ID, -3, -1)
	require.NoError(t, err)
	assert.Len(t, page, 5)
}

func testListByOwner(t *testing.T, r registry.Registry) {
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, r.Create(ctx, NewFile(fmt.Sprintf("a%d.txt", i), "alice@example.com", Now.Add(time.Duration(i)*time.Minute))))
	}
	require.NoError(t, r.Create(ctx, NewFile("b.txt", "bob@example.com", Now)))
	require.NoError(t, r.Create(ctx, NewFile("anon.txt", "", Now)))

	page, err := r.ListByOwner(ctx, "alice@example.com", registry.ListOptions{Now: Now})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	require.Len(t, page.Items, 3)
	assert.Equal(t, "a2.txt", page.Items[0].File.Filename, "newest first by default")
	assert.Equal(t, 3, page.Summary.ActiveFiles)

	page, err = r.ListByOwner(ctx, "alice@example.com", registry.ListOptions{Now: Now, Offset: 2, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "a0.txt", page.Items[0].File.Filename)

	page, err = r.ListByOwner(ctx, "", registry.ListOptions{Now: Now})
	require.NoError(t, err)
	assert.Equal(t, 0, page.Total)
}

func testListRequiresReferenceTime(t *testing.T, r registry.Registry) {
	ctx := context.Background()
	require.NoError(t, r.Create(ctx, NewFile("a.txt", "alice@example.com", Now)))

	_, err := r.ListByOwner(ctx, "alice@example.com", registry.ListOptions{})
	assert.Equal(t, apperr.Internal, apperr.KindOf(err))

	_, err = r.ListPublicActive(ctx, registry.ListOptions{Limit: 10})
	assert.Equal(t, apperr.Internal, apperr.KindOf(err))
}

func testListByOwnerSortAndFilter(t *testing.T, r registry.Registry) {
	ctx := context.Background()
	owner := "alice@example.com"

	active := NewFile("beta.txt", owner, Now)
	pending := NewFile("Alpha.txt", owner, Now.Add(time.Minute))
	pending.AvailableFrom = Now.Add(time.Hour)
	pending.AvailableTo = Now.Add(2 * time.Hour)
	expired := NewFile("gamma.txt", owner, Now.Add(2*time.Minute))
	expired.AvailableFrom = Now.Add(-2 * time.Hour)
	expired.AvailableTo = Now.Add(-time.Hour)

	for _, f := range []model.FileRecord{active, pending, expired} {
		require.NoError(t, r.Create(ctx, f))
	}

	page, err := r.ListByOwner(ctx, owner, registry.ListOptions{Now: Now, SortBy: registry.SortFileName, Order: registry.OrderAsc})
	require.NoError(t, err)
	require.Len(t, page.Items, 3)
	assert.Equal(t, "Alpha.txt", page.Items[0].File.Filename, "case-insensitive name sort")
	assert.Equal(t, "beta.txt", page.Items[1].File.Filename)
	assert.Equal(t, "gamma.txt", page.Items[2].File.Filename)
	assert.Equal(t, lifecycle.Pending, page.Items[0].State)
	assert.Equal(t, lifecycle.Expired, page.Items[2].State)
	assert.Equal(t, model.Summary{ActiveFiles: 1, PendingFiles: 1, ExpiredFiles: 1}, page.Summary)

	page, err = r.ListByOwner(ctx, owner, registry.ListOptions{Now: Now, State: lifecycle.Expired})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, expired.ID, page.Items[0].File.ID)
	assert.Equal(t, model.Summary{ExpiredFiles: 1}, page.Summary)
}

func testListPublicActive(t *testing.T, r registry.Registry) {
	ctx := context.Background()

	older := NewFile("older.txt", "alice@example.com", Now.Add(-time.Hour))
	newer := NewFile("newer.txt", "", Now)
	private := NewFile("private.txt", "alice@example.com", Now)
	private.IsPublic = false
	expired := NewFile("expired.txt", "alice@example.com", Now)
	expired.AvailableTo = Now.Add(-time.Minute)
	pending := NewFile("pending.txt", "alice@example.com", Now)
	pending.AvailableFrom = Now.Add(time.Minute)

	for _, f := range []model.FileRecord{older, newer, private, expired, pending} {
		require.NoError(t, r.Create(ctx, f))
	}

	page, err := r.ListPublicActive(ctx, registry.ListOptions{Now: Now})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	require.Len(t, page.Items, 2)
	assert.Equal(t, newer.ID, page.Items[0].File.ID)
	assert.Equal(t, older.ID, page.Items[1].File.ID)

	page, err = r.ListPublicActive(ctx, registry.ListOptions{Now: Now, Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, older.ID, page.Items[0].File.ID)
}

func testDeleteMatching(t *testing.T, r registry.Registry) {
	ctx := context.Background()

	keep := NewFile("keep.txt", "alice@example.com", Now)
	gone := NewFile("gone.txt", "alice@example.com", Now)
	gone.AvailableTo = Now.Add(-time.Minute)
	require.NoError(t, r.Create(ctx, keep))
	require.NoError(t, r.Create(ctx, gone))
	_, err := r.RecordDownload(ctx, gone.ID, nil, Now.Add(-2*time.Minute))
	require.NoError(t, err)

	removed, err := r.DeleteMatching(ctx, func(f model.FileRecord) bool {
		return lifecycle.Evaluate(f.AvailableFrom, f.AvailableTo, Now) == lifecycle.Expired
	})
	require.NoError(t, err)
	require.Len(t, removed, 1)
	assert.Equal(t, gone.ID, removed[0].ID)

	_, err = r.Get(ctx, gone.ID)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
	_, err = r.Stats(ctx, gone.ID)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
	_, err = r.Get(ctx, keep.ID)
	assert.NoError(t, err)

	removed, err = r.DeleteMatching(ctx, func(model.FileRecord) bool { return false })
	require.NoError(t, err)
	assert.Empty(t, removed)
}

func testConcurrentDownloads(t *testing.T, r registry.Registry) {
	ctx := context.Background()
	files := []model.FileRecord{
		NewFile("one.txt", "alice@example.com", Now),
		NewFile("two.txt", "alice@example.com", Now),
	}
	for _, f := range files {
		require.NoError(t, r.Create(ctx, f))
	}

	const perFile = 25
	g, gctx := errgroup.WithContext(ctx)
	for _, f := range files {
		for i := 0; i < perFile; i++ {
			id := f.ID
			who := &model.Identity{Username: fmt.Sprintf("u%d", i%5), Email: fmt.Sprintf("u%d@example.com", i%5)}
			g.Go(func() error {
				_, err := r.RecordDownload(gctx, id, who, Now)
				return err
			})
		}
	}
	require.NoError(t, g.Wait())

	for _, f := range files {
		stats, err := r.Stats(ctx, f.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(perFile), stats.DownloadCount)
		assert.Equal(t, 5, stats.UniqueCount())

		history, total, err := r.History(ctx, f.ID, 0, 0)
		require.NoError(t, err)
		assert.Equal(t, perFile, total)
		assert.Len(t, history, perFile)
	}
}

func testConcurrentDeleteAndDownload(t *testing.T, r registry.Registry) {
	ctx := context.Background()
	f := NewFile("race.txt", "alice@example.com", Now)
	require.NoError(t, r.Create(ctx, f))

	var g errgroup.Group
	for i := 0; i < 20; i++ {
		g.Go(func() error {
			_, err := r.RecordDownload(ctx, f.ID, nil, Now)
			if err != nil && !apperr.IsKind(err, apperr.NotFound) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		return r.Delete(ctx, f.ID)
	})
	require.NoError(t, g.Wait())

	_, err := r.Stats(ctx, f.ID)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}
