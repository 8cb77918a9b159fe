package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/marianozunino/gatedrop/internal/lifecycle"
	"github.com/marianozunino/gatedrop/internal/model"
	"github.com/marianozunino/gatedrop/internal/registry"
)

const fileColumns = `id, filename, size, mime_type, owner_email, is_public, password_protected,
	password, available_from, available_to, created_at`

// Registry is the SQLite implementation of registry.Registry.
// Each mutation runs in a single transaction.
type Registry struct {
	db *DB
}

var _ registry.Registry = (*Registry)(nil)

// NewRegistry creates a registry on a migrated database
func NewRegistry(db *DB) *Registry {
	return &Registry{db: db}
}

func (r *Registry) Create(ctx context.Context, file model.FileRecord) error {
	return r.db.withTx(ctx, func(tx *sql.Tx) error {
		exists, err := fileExists(ctx, tx, file.ID)
		if err != nil {
			return err
		}
		if exists {
			return registry.ErrConflict(file.ID)
		}

		var owner, password sql.NullString
		if file.OwnerEmail != "" {
			owner = sql.NullString{String: file.OwnerEmail, Valid: true}
		}
		if file.PasswordProtected {
			password = sql.NullString{String: file.Password, Valid: true}
		}

		_, err = tx.ExecContext(ctx, `INSERT INTO files (`+fileColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			file.ID, file.Filename, file.Size, file.MimeType, owner,
			boolToInt(file.IsPublic), boolToInt(file.PasswordProtected), password,
			toUnix(file.AvailableFrom), toUnix(file.AvailableTo), toUnix(file.CreatedAt))
		if err != nil {
			return fmt.Errorf("failed to insert file: %w", err)
		}

		for _, email := range file.SharedWith {
			if _, err := tx.ExecContext(ctx,
				"INSERT OR IGNORE INTO file_shared_with (file_id, email) VALUES (?, ?)", file.ID, email); err != nil {
				return fmt.Errorf("failed to insert whitelist entry: %w", err)
			}
		}

		if _, err := tx.ExecContext(ctx, "INSERT INTO file_stats (file_id, download_count) VALUES (?, 0)", file.ID); err != nil {
			return fmt.Errorf("failed to insert file stats: %w", err)
		}
		return nil
	})
}

func (r *Registry) Get(ctx context.Context, id string) (model.FileRecord, error) {
	files, err := loadFiles(ctx, r.db, "id = ?", id)
	if err != nil {
		return model.FileRecord{}, err
	}
	if len(files) == 0 {
		return model.FileRecord{}, registry.ErrNotFound(id)
	}
	return files[0], nil
}

func (r *Registry) Delete(ctx context.Context, id string) error {
	return r.db.withTx(ctx, func(tx *sql.Tx) error {
		exists, err := fileExists(ctx, tx, id)
		if err != nil {
			return err
		}
		if !exists {
			return registry.ErrNotFound(id)
		}
		return deleteFile(ctx, tx, id)
	})
}

func (r *Registry) ListByOwner(ctx context.Context, owner string, opts registry.ListOptions) (registry.Page, error) {
	if err := opts.Validate(); err != nil {
		return registry.Page{}, err
	}
	if owner == "" {
		return registry.Query(nil, opts), nil
	}
	files, err := loadFiles(ctx, r.db, "owner_email = ?", owner)
	if err != nil {
		return registry.Page{}, err
	}
	return registry.Query(files, opts), nil
}

func (r *Registry) ListPublicActive(ctx context.Context, opts registry.ListOptions) (registry.Page, error) {
	if err := opts.Validate(); err != nil {
		return registry.Page{}, err
	}
	opts.State = lifecycle.Active

	now := toUnix(opts.Now)
	files, err := loadFiles(ctx, r.db, "is_public = 1 AND available_from <= ? AND available_to >= ?", now, now)
	if err != nil {
		return registry.Page{}, err
	}
	return registry.Query(files, opts), nil
}

func (r *Registry) RecordDownload(ctx context.Context, id string, downloader *model.Identity, at time.Time) (model.DownloadHistoryEntry, error) {
	entry := model.DownloadHistoryEntry{
		ID:                uuid.NewString(),
		Downloader:        downloader.Downloader(),
		DownloadedAt:      at,
		DownloadCompleted: true,
	}

	err := r.db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"UPDATE file_stats SET download_count = download_count + 1, last_downloaded_at = ? WHERE file_id = ?",
			toUnix(at), id)
		if err != nil {
			return fmt.Errorf("failed to update file stats: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return registry.ErrNotFound(id)
		}

		var username, email sql.NullString
		if entry.Downloader != nil {
			username = sql.NullString{String: entry.Downloader.Username, Valid: true}
			email = sql.NullString{String: entry.Downloader.Email, Valid: true}
			if entry.Downloader.Email != "" {
				if _, err := tx.ExecContext(ctx,
					"INSERT OR IGNORE INTO file_unique_downloaders (file_id, email) VALUES (?, ?)",
					id, entry.Downloader.Email); err != nil {
					return fmt.Errorf("failed to record downloader: %w", err)
				}
			}
		}

		_, err = tx.ExecContext(ctx, `INSERT INTO download_history
			(id, file_id, username, email, downloaded_at, download_completed) VALUES (?, ?, ?, ?, ?, ?)`,
			entry.ID, id, username, email, toUnix(at), boolToInt(entry.DownloadCompleted))
		if err != nil {
			return fmt.Errorf("failed to insert download history: %w", err)
		}
		return nil
	})
	if err != nil {
		return model.DownloadHistoryEntry{}, err
	}
	return entry, nil
}

func (r *Registry) Stats(ctx context.Context, id string) (model.FileStats, error) {
	stats := model.NewFileStats()

	var last sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		"SELECT download_count, last_downloaded_at FROM file_stats WHERE file_id = ?", id).
		Scan(&stats.DownloadCount, &last)
	if errors.Is(err, sql.ErrNoRows) {
		return model.FileStats{}, registry.ErrNotFound(id)
	}
	if err != nil {
		return model.FileStats{}, fmt.Errorf("failed to load file stats: %w", err)
	}
	if last.Valid {
		t := fromUnix(last.Int64)
		stats.LastDownloadedAt = &t
	}

	rows, err := r.db.QueryContext(ctx, "SELECT email FROM file_unique_downloaders WHERE file_id = ?", id)
	if err != nil {
		return model.FileStats{}, fmt.Errorf("failed to load downloaders: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return model.FileStats{}, err
		}
		stats.UniqueDownloaders[email] = struct{}{}
	}
	return stats, rows.Err()
}

func (r *Registry) History(ctx context.Context, id string, offset, limit int) ([]model.DownloadHistoryEntry, int, error) {
	exists, err := fileExists(ctx, r.db, id)
	if err != nil {
		return nil, 0, err
	}
	if !exists {
		return nil, 0, registry.ErrNotFound(id)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM download_history WHERE file_id = ?", id).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count download history: %w", err)
	}

	if offset < 0 {
		offset = 0
	}
	sqlLimit := limit
	if sqlLimit <= 0 {
		sqlLimit = -1
	}

	rows, err := r.db.QueryContext(ctx, `SELECT id, username, email, downloaded_at, download_completed
		FROM download_history WHERE file_id = ? ORDER BY seq DESC LIMIT ? OFFSET ?`, id, sqlLimit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load download history: %w", err)
	}
	defer rows.Close()

	history := []model.DownloadHistoryEntry{}
	for rows.Next() {
		var (
			h               model.DownloadHistoryEntry
			username, email sql.NullString
			downloadedAt    int64
			completed       int
		)
		if err := rows.Scan(&h.ID, &username, &email, &downloadedAt, &completed); err != nil {
			return nil, 0, err
		}
		if username.Valid || email.Valid {
			h.Downloader = &model.Downloader{Username: username.String, Email: email.String}
		}
		h.DownloadedAt = fromUnix(downloadedAt)
		h.DownloadCompleted = completed == 1
		history = append(history, h)
	}
	return history, total, rows.Err()
}

func (r *Registry) DeleteMatching(ctx context.Context, match func(model.FileRecord) bool) ([]model.FileRecord, error) {
	var removed []model.FileRecord
	err := r.db.withTx(ctx, func(tx *sql.Tx) error {
		files, err := loadFiles(ctx, tx, "1 = 1")
		if err != nil {
			return err
		}
		for _, f := range files {
			if !match(f) {
				continue
			}
			if err := deleteFile(ctx, tx, f.ID); err != nil {
				return err
			}
			removed = append(removed, f)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

func fileExists(ctx context.Context, q queryer, id string) (bool, error) {
	var n int
	if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM files WHERE id = ?", id).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to look up file: %w", err)
	}
	return n > 0, nil
}

func deleteFile(ctx context.Context, q queryer, id string) error {
	statements := []string{
		"DELETE FROM download_history WHERE file_id = ?",
		"DELETE FROM file_unique_downloaders WHERE file_id = ?",
		"DELETE FROM file_stats WHERE file_id = ?",
		"DELETE FROM file_shared_with WHERE file_id = ?",
		"DELETE FROM files WHERE id = ?",
	}
	for _, stmt := range statements {
		if _, err := q.ExecContext(ctx, stmt, id); err != nil {
			return fmt.Errorf("failed to delete file %s: %w", id, err)
		}
	}
	return nil
}

// loadFiles reads the files matching where together with their whitelists
func loadFiles(ctx context.Context, q queryer, where string, args ...any) ([]model.FileRecord, error) {
	rows, err := q.QueryContext(ctx, "SELECT "+fileColumns+" FROM files WHERE "+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query files: %w", err)
	}

	var files []model.FileRecord
	index := make(map[string]int)
	for rows.Next() {
		var (
			f                   model.FileRecord
			owner, password     sql.NullString
			isPublic, protected int
			from, to, createdAt int64
		)
		if err := rows.Scan(&f.ID, &f.Filename, &f.Size, &f.MimeType, &owner, &isPublic, &protected,
			&password, &from, &to, &createdAt); err != nil {
			rows.Close()
			return nil, err
		}
		f.OwnerEmail = owner.String
		f.IsPublic = isPublic == 1
		f.PasswordProtected = protected == 1
		f.Password = password.String
		f.AvailableFrom = fromUnix(from)
		f.AvailableTo = fromUnix(to)
		f.CreatedAt = fromUnix(createdAt)
		f.SharedWith = []string{}
		index[f.ID] = len(files)
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if len(files) == 0 {
		return files, nil
	}

	shared, err := q.QueryContext(ctx,
		"SELECT file_id, email FROM file_shared_with WHERE file_id IN (SELECT id FROM files WHERE "+where+") ORDER BY rowid",
		args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query whitelists: %w", err)
	}
	defer shared.Close()

	for shared.Next() {
		var id, email string
		if err := shared.Scan(&id, &email); err != nil {
			return nil, err
		}
		if i, ok := index[id]; ok {
			files[i].SharedWith = append(files[i].SharedWith, email)
		}
	}
	return files, shared.Err()
}
