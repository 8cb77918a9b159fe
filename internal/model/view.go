package model

import (
	"time"

	"github.com/marianozunino/gatedrop/internal/lifecycle"
)

// FileDetails is the owner-facing representation of a file. The password is never included.
type FileDetails struct {
	FileRecord
	ShareToken     string          `json:"shareToken"`
	ShareLink      string          `json:"shareLink,omitempty"`
	Owner          *Identity       `json:"owner,omitempty"`
	Status         lifecycle.State `json:"status,omitempty"`
	HoursRemaining *float64        `json:"hoursRemaining,omitempty"`
}

// PublicFileInfo is what anyone holding a share token may see
type PublicFileInfo struct {
	ID            string          `json:"id"`
	FileName      string          `json:"fileName"`
	ShareToken    string          `json:"shareToken"`
	Status        lifecycle.State `json:"status"`
	IsPublic      bool            `json:"isPublic"`
	HasPassword   bool            `json:"hasPassword"`
	FileSize      int64           `json:"fileSize"`
	MimeType      string          `json:"mimeType"`
	AvailableFrom time.Time       `json:"availableFrom"`
	AvailableTo   time.Time       `json:"availableTo"`
}

// NewPublicFileInfo builds the share-token view of f in state s
func NewPublicFileInfo(f FileRecord, s lifecycle.State) PublicFileInfo {
	return PublicFileInfo{
		ID:            f.ID,
		FileName:      f.Filename,
		ShareToken:    f.ShareToken(),
		Status:        s,
		IsPublic:      f.IsPublic,
		HasPassword:   f.PasswordProtected,
		FileSize:      f.Size,
		MimeType:      f.MimeType,
		AvailableFrom: f.AvailableFrom,
		AvailableTo:   f.AvailableTo,
	}
}

// FileSummary is one row of the owner's file list
type FileSummary struct {
	ID         string          `json:"id"`
	FileName   string          `json:"fileName"`
	Status     lifecycle.State `json:"status"`
	CreatedAt  time.Time       `json:"createdAt"`
	ShareToken string          `json:"shareToken"`
}

// AvailableFile is one row of the public catalogue. Key names follow the
// existing web client.
type AvailableFile struct {
	FileID      string `json:"fileid"`
	Filename    string `json:"filename"`
	Owner       string `json:"owner"`
	HasPassword bool   `json:"haspassword"`
	ShareToken  string `json:"sharetoken"`
}

// Summary counts files per lifecycle state
type Summary struct {
	ActiveFiles  int `json:"activeFiles"`
	PendingFiles int `json:"pendingFiles"`
	ExpiredFiles int `json:"expiredFiles"`
	DeletedFiles int `json:"deletedFiles"`
}

// Add counts one file in state s
func (s *Summary) Add(state lifecycle.State) {
	switch state {
	case lifecycle.Active:
		s.ActiveFiles++
	case lifecycle.Pending:
		s.PendingFiles++
	case lifecycle.Expired:
		s.ExpiredFiles++
	}
}

// Pagination describes a page of files
type Pagination struct {
	CurrentPage int `json:"currentPage"`
	TotalPages  int `json:"totalPages"`
	TotalFiles  int `json:"totalFiles"`
	Limit       int `json:"limit"`
}

// HistoryPagination describes a page of download history
type HistoryPagination struct {
	CurrentPage  int `json:"currentPage"`
	TotalPages   int `json:"totalPages"`
	TotalRecords int `json:"totalRecords"`
	Limit        int `json:"limit"`
}

// TotalPages returns the number of pages of size limit needed for total items
func TotalPages(total, limit int) int {
	if limit <= 0 {
		return 0
	}
	return (total + limit - 1) / limit
}

// Statistics is the stats payload of a file
type Statistics struct {
	DownloadCount     int64      `json:"downloadCount"`
	UniqueDownloaders int        `json:"uniqueDownloaders"`
	LastDownloadedAt  *time.Time `json:"lastDownloadedAt"`
	CreatedAt         time.Time  `json:"createdAt"`
}

// FileStatsView is the response of the stats endpoint
type FileStatsView struct {
	FileID     string     `json:"fileId"`
	FileName   string     `json:"fileName"`
	Statistics Statistics `json:"statistics"`
}

// NewFileStatsView combines a record and its statistics
func NewFileStatsView(f FileRecord, s FileStats) FileStatsView {
	return FileStatsView{
		FileID:   f.ID,
		FileName: f.Filename,
		Statistics: Statistics{
			DownloadCount:     s.DownloadCount,
			UniqueDownloaders: s.UniqueCount(),
			LastDownloadedAt:  s.LastDownloadedAt,
			CreatedAt:         f.CreatedAt,
		},
	}
}

// MyFilesView is the owner's paginated file list
type MyFilesView struct {
	Files      []FileSummary `json:"files"`
	Pagination Pagination    `json:"pagination"`
	Summary    Summary       `json:"summary"`
}

// AvailableView is the paginated public catalogue
type AvailableView struct {
	Files      []AvailableFile `json:"files"`
	Pagination Pagination      `json:"pagination"`
}

// DownloadHistoryView is a page of a file's download history
type DownloadHistoryView struct {
	FileID     string                 `json:"fileId"`
	FileName   string                 `json:"fileName"`
	History    []DownloadHistoryEntry `json:"history"`
	Pagination HistoryPagination      `json:"pagination"`
}

// CleanupResult reports a sweep of expired files
type CleanupResult struct {
	Message      string    `json:"message"`
	DeletedFiles int       `json:"deletedFiles"`
	Timestamp    time.Time `json:"timestamp"`
}
