package registry

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/marianozunino/gatedrop/internal/lifecycle"
	"github.com/marianozunino/gatedrop/internal/model"
)

type entry struct {
	mu      sync.Mutex
	file    model.FileRecord
	stats   model.FileStats
	history []model.DownloadHistoryEntry
}

// Memory is an in-process Registry. The map lock is held for reading by lookups,
// listings and downloads, and for writing by create and delete. Each entry has its
// own lock for statistics, so downloads of different files do not wait on each other.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// NewMemory creates an empty in-memory registry
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]*entry)}
}

func (m *Memory) Create(ctx context.Context, file model.FileRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entries[file.ID]; exists {
		return ErrConflict(file.ID)
	}
	m.entries[file.ID] = &entry{
		file:    file.Clone(),
		stats:   model.NewFileStats(),
		history: []model.DownloadHistoryEntry{},
	}
	return nil
}

func (m *Memory) Get(ctx context.Context, id string) (model.FileRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[id]
	if !ok {
		return model.FileRecord{}, ErrNotFound(id)
	}
	return e.file.Clone(), nil
}

func (m *Memory) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[id]; !ok {
		return ErrNotFound(id)
	}
	delete(m.entries, id)
	return nil
}

func (m *Memory) ListByOwner(ctx context.Context, owner string, opts ListOptions) (Page, error) {
	if err := opts.Validate(); err != nil {
		return Page{}, err
	}
	return m.list(opts, func(f *model.FileRecord) bool {
		return owner != "" && f.OwnerEmail == owner
	}), nil
}

func (m *Memory) ListPublicActive(ctx context.Context, opts ListOptions) (Page, error) {
	if err := opts.Validate(); err != nil {
		return Page{}, err
	}
	opts.State = lifecycle.Active
	return m.list(opts, func(f *model.FileRecord) bool {
		return f.IsPublic
	}), nil
}

func (m *Memory) list(opts ListOptions, keep func(*model.FileRecord) bool) Page {
	m.mu.RLock()
	records := make([]model.FileRecord, 0, len(m.entries))
	for _, e := range m.entries {
		if keep(&e.file) {
			records = append(records, e.file.Clone())
		}
	}
	m.mu.RUnlock()

	return Query(records, opts)
}

func (m *Memory) RecordDownload(ctx context.Context, id string, downloader *model.Identity, at time.Time) (model.DownloadHistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[id]
	if !ok {
		return model.DownloadHistoryEntry{}, ErrNotFound(id)
	}

	h := model.DownloadHistoryEntry{
		ID:                uuid.NewString(),
		Downloader:        downloader.Downloader(),
		DownloadedAt:      at,
		DownloadCompleted: true,
	}

	e.mu.Lock()
	e.stats.DownloadCount++
	if downloader != nil && downloader.Email != "" {
		e.stats.UniqueDownloaders[downloader.Email] = struct{}{}
	}
	last := at
	e.stats.LastDownloadedAt = &last
	e.history = slices.Insert(e.history, 0, h)
	e.mu.Unlock()

	return h, nil
}

func (m *Memory) Stats(ctx context.Context, id string) (model.FileStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[id]
	if !ok {
		return model.FileStats{}, ErrNotFound(id)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats.Clone(), nil
}

func (m *Memory) History(ctx context.Context, id string, offset, limit int) ([]model.DownloadHistoryEntry, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[id]
	if !ok {
		return nil, 0, ErrNotFound(id)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	page := paginate(e.history, offset, limit)
	return slices.Clone(page), len(e.history), nil
}

func (m *Memory) DeleteMatching(ctx context.Context, match func(model.FileRecord) bool) ([]model.FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed []model.FileRecord
	for id, e := range m.entries {
		if match(e.file.Clone()) {
			removed = append(removed, e.file.Clone())
			delete(m.entries, id)
		}
	}
	return removed, nil
}

// Len returns the number of stored files
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
