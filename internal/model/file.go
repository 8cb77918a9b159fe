package model

import (
	"slices"
	"time"
)

// FileRecord stores information about an uploaded file and its access rules
type FileRecord struct {
	ID                string    `json:"id"`
	Filename          string    `json:"filename"`
	Size              int64     `json:"size"`
	MimeType          string    `json:"mimeType"`
	OwnerEmail        string    `json:"ownerEmail,omitempty"`
	IsPublic          bool      `json:"isPublic"`
	SharedWith        []string  `json:"sharedWith"`
	PasswordProtected bool      `json:"passwordProtected"`
	Password          string    `json:"-"`
	AvailableFrom     time.Time `json:"availableFrom"`
	AvailableTo       time.Time `json:"availableTo"`
	CreatedAt         time.Time `json:"createdAt"`
}

// ShareToken is the public handle of the file. It equals the id.
func (f *FileRecord) ShareToken() string {
	return f.ID
}

// IsAnonymous reports whether the file was uploaded without an identity
func (f *FileRecord) IsAnonymous() bool {
	return f.OwnerEmail == ""
}

// IsOwnedBy reports whether the identity owns the file. Anonymous uploads have no owner.
func (f *FileRecord) IsOwnedBy(id *Identity) bool {
	return id != nil && f.OwnerEmail != "" && f.OwnerEmail == id.Email
}

// IsShared reports whether the file carries a whitelist
func (f *FileRecord) IsShared() bool {
	return len(f.SharedWith) > 0
}

// HasWhitelisted reports whether email appears in the whitelist
func (f *FileRecord) HasWhitelisted(email string) bool {
	return email != "" && slices.Contains(f.SharedWith, email)
}

// Clone returns a copy that shares no mutable state with f
func (f FileRecord) Clone() FileRecord {
	f.SharedWith = slices.Clone(f.SharedWith)
	if f.SharedWith == nil {
		f.SharedWith = []string{}
	}
	return f
}

// FileStats holds download statistics of a single file
type FileStats struct {
	DownloadCount     int64
	UniqueDownloaders map[string]struct{}
	LastDownloadedAt  *time.Time
}

// NewFileStats returns empty statistics
func NewFileStats() FileStats {
	return FileStats{UniqueDownloaders: make(map[string]struct{})}
}

// UniqueCount is the number of distinct identified downloaders
func (s FileStats) UniqueCount() int {
	return len(s.UniqueDownloaders)
}

// Clone returns a deep copy
func (s FileStats) Clone() FileStats {
	out := FileStats{
		DownloadCount:     s.DownloadCount,
		UniqueDownloaders: make(map[string]struct{}, len(s.UniqueDownloaders)),
	}
	for k := range s.UniqueDownloaders {
		out.UniqueDownloaders[k] = struct{}{}
	}
	if s.LastDownloadedAt != nil {
		t := *s.LastDownloadedAt
		out.LastDownloadedAt = &t
	}
	return out
}

// Downloader identifies who downloaded a file
type Downloader struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

// DownloadHistoryEntry is a single download event. Downloader is nil for anonymous downloads.
type DownloadHistoryEntry struct {
	ID                string      `json:"id"`
	Downloader        *Downloader `json:"downloader"`
	DownloadedAt      time.Time   `json:"downloadedAt"`
	DownloadCompleted bool        `json:"downloadCompleted"`
}
