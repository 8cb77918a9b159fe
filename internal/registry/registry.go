// Package registry stores file records together with their download statistics and history.
package registry

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/marianozunino/gatedrop/internal/apperr"
	"github.com/marianozunino/gatedrop/internal/lifecycle"
	"github.com/marianozunino/gatedrop/internal/model"
)

const (
	SortCreatedAt = "createdAt"
	SortFileName  = "fileName"

	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// Registry is the storage contract for file records. Every mutation is atomic per file:
// a concurrent reader never sees a record without its stats, or a half-applied download.
type Registry interface {
	Create(ctx context.Context, file model.FileRecord) error
	Get(ctx context.Context, id string) (model.FileRecord, error)
	Delete(ctx context.Context, id string) error
	ListByOwner(ctx context.Context, owner string, opts ListOptions) (Page, error)
	ListPublicActive(ctx context.Context, opts ListOptions) (Page, error)
	RecordDownload(ctx context.Context, id string, downloader *model.Identity, at time.Time) (model.DownloadHistoryEntry, error)
	Stats(ctx context.Context, id string) (model.FileStats, error)
	History(ctx context.Context, id string, offset, limit int) ([]model.DownloadHistoryEntry, int, error)
	DeleteMatching(ctx context.Context, match func(model.FileRecord) bool) ([]model.FileRecord, error)
}

// ListOptions filters, sorts and paginates a listing. A zero Limit means no limit.
type ListOptions struct {
	State  lifecycle.State
	SortBy string
	Order  string
	Offset int
	Limit  int
	Now    time.Time
}

// Validate rejects options without a reference time. Lifecycle states are always
// evaluated against the caller's clock.
func (o ListOptions) Validate() error {
	if o.Now.IsZero() {
		return apperr.New(apperr.Internal, "listing requires a reference time")
	}
	return nil
}

// Item is a listed file with its state at listing time
type Item struct {
	File  model.FileRecord
	State lifecycle.State
}

// Page is one page of a listing. Total and Summary cover the filtered set, not just the page.
type Page struct {
	Items   []Item
	Total   int
	Summary model.Summary
}

// ErrNotFound builds the error returned for unknown ids
func ErrNotFound(id string) error {
	return apperr.New(apperr.NotFound, "File not found").With("fileId", id)
}

// ErrConflict builds the error returned for duplicate ids
func ErrConflict(id string) error {
	return apperr.New(apperr.Conflict, "File already exists").With("fileId", id)
}

// Query filters, sorts and paginates records. Both backends list through it so they order identically.
// opts must pass Validate.
func Query(records []model.FileRecord, opts ListOptions) Page {
	now := opts.Now
	items := make([]Item, 0, len(records))
	var summary model.Summary
	for _, r := range records {
		state := lifecycle.Evaluate(r.AvailableFrom, r.AvailableTo, now)
		if opts.State != "" && state != opts.State {
			continue
		}
		summary.Add(state)
		items = append(items, Item{File: r, State: state})
	}

	desc := !strings.EqualFold(opts.Order, OrderAsc)
	byName := opts.SortBy == SortFileName
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i].File, items[j].File
		var less bool
		switch {
		case byName && !strings.EqualFold(a.Filename, b.Filename):
			less = strings.ToLower(a.Filename) < strings.ToLower(b.Filename)
		case !a.CreatedAt.Equal(b.CreatedAt):
			less = a.CreatedAt.Before(b.CreatedAt)
		default:
			less = a.ID < b.ID
		}
		if desc {
			return !less
		}
		return less
	})

	total := len(items)
	return Page{Items: paginate(items, opts.Offset, opts.Limit), Total: total, Summary: summary}
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if limit < 0 {
		limit = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}

// Paginate applies offset and limit with the same clamping as listings
func Paginate[T any](items []T, offset, limit int) []T {
	return paginate(items, offset, limit)
}
