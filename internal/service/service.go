// Package service orchestrates the registry, the access engine and blob storage.
// Every read path decides first, then reads, then mutates.
package service

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"io"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/marianozunino/gatedrop/internal/access"
	"github.com/marianozunino/gatedrop/internal/apperr"
	"github.com/marianozunino/gatedrop/internal/clock"
	"github.com/marianozunino/gatedrop/internal/lifecycle"
	"github.com/marianozunino/gatedrop/internal/model"
	"github.com/marianozunino/gatedrop/internal/policy"
	"github.com/marianozunino/gatedrop/internal/registry"
	"github.com/marianozunino/gatedrop/internal/storage"
	"github.com/marianozunino/gatedrop/internal/upload"
)

const sniffLen = 3072

// Options tune the file service
type Options struct {
	// ShareBaseURL prefixes share links, e.g. https://files.example.com/f/
	ShareBaseURL          string
	EnforceValidityBounds bool
	Clock                 clock.Clock
}

// FileService implements the file operations exposed over HTTP and the CLI
type FileService struct {
	registry     registry.Registry
	blobs        storage.BlobStore
	policies     policy.Store
	engine       *access.Engine
	validator    upload.Validator
	clock        clock.Clock
	shareBaseURL string
}

// New creates a file service
func New(reg registry.Registry, blobs storage.BlobStore, policies policy.Store, opts Options) *FileService {
	c := opts.Clock
	if c == nil {
		c = clock.System{}
	}
	return &FileService{
		registry:     reg,
		blobs:        blobs,
		policies:     policies,
		engine:       access.NewEngine(c),
		validator:    upload.Validator{EnforceValidityBounds: opts.EnforceValidityBounds},
		clock:        c,
		shareBaseURL: opts.ShareBaseURL,
	}
}

// UploadRequest is a file submitted for upload
type UploadRequest struct {
	Filename      string
	Content       io.Reader
	Size          int64
	Password      string
	AvailableFrom *time.Time
	AvailableTo   *time.Time
	IsPublic      bool
	SharedWith    []string
	Requester     *model.Identity
}

// Upload validates the request against the current policy, stores the content and registers the file.
// Nothing is written before validation succeeds.
func (s *FileService) Upload(ctx context.Context, req UploadRequest) (model.FileDetails, error) {
	p, err := s.policies.Get(ctx)
	if err != nil {
		return model.FileDetails{}, err
	}

	now := s.clock.Now()
	resolved, err := s.validator.Validate(upload.Candidate{
		Size:          req.Size,
		Password:      req.Password,
		AvailableFrom: req.AvailableFrom,
		AvailableTo:   req.AvailableTo,
		IsPublic:      req.IsPublic,
		SharedWith:    req.SharedWith,
		Requester:     req.Requester,
	}, p, now)
	if err != nil {
		return model.FileDetails{}, err
	}

	content, mimeType, err := sniff(req.Content)
	if err != nil {
		return model.FileDetails{}, apperr.Wrap(apperr.Internal, err, "failed to read upload")
	}

	file := model.FileRecord{
		ID:                uuid.NewString(),
		Filename:          sanitizeFilename(req.Filename),
		Size:              req.Size,
		MimeType:          mimeType,
		IsPublic:          resolved.IsPublic,
		SharedWith:        resolved.SharedWith,
		PasswordProtected: resolved.PasswordProtected,
		Password:          resolved.Password,
		AvailableFrom:     resolved.AvailableFrom,
		AvailableTo:       resolved.AvailableTo,
		CreatedAt:         now,
	}
	if req.Requester != nil {
		file.OwnerEmail = req.Requester.Email
	}

	if err := s.blobs.Put(ctx, file.ID, content, file.Size, file.MimeType); err != nil {
		log.Printf("Error: Failed to store content of %s: %v", file.ID, err)
		return model.FileDetails{}, apperr.Wrap(apperr.Internal, err, "failed to store file")
	}

	if err := s.registry.Create(ctx, file); err != nil {
		log.Printf("Error: Failed to register file %s: %v", file.ID, err)
		if err := s.blobs.Delete(ctx, file.ID); err != nil {
			log.Printf("Warning: Failed to clean up content after registry error: %v", err)
		}
		return model.FileDetails{}, err
	}

	uploadsTotal.Inc()
	log.Printf("Uploaded %s (%s, %d bytes) public=%t protected=%t shared=%d",
		file.ID, file.Filename, file.Size, file.IsPublic, file.PasswordProtected, len(file.SharedWith))

	details := s.details(file, "")
	if req.Requester != nil {
		owner := *req.Requester
		details.Owner = &owner
	}
	return details, nil
}

// Info returns the share-token view of a file. Expired files are reported as gone.
func (s *FileService) Info(ctx context.Context, token string) (model.PublicFileInfo, error) {
	file, err := s.registry.Get(ctx, token)
	if err != nil {
		return model.PublicFileInfo{}, err
	}

	state := lifecycle.Evaluate(file.AvailableFrom, file.AvailableTo, s.clock.Now())
	if state == lifecycle.Expired {
		accessDecisionsTotal.WithLabelValues(string(apperr.Expired)).Inc()
		return model.PublicFileInfo{}, apperr.New(apperr.Expired, "File has expired").
			With("expiredAt", file.AvailableTo)
	}
	return model.NewPublicFileInfo(file, state), nil
}

// Content is an open file body together with its record
type Content struct {
	File model.FileRecord
	Body io.ReadCloser
}

// Download checks access, opens the content and records the download
func (s *FileService) Download(ctx context.Context, token string, requester *model.Identity, credential string) (*Content, error) {
	content, err := s.open(ctx, token, requester, credential)
	if err != nil {
		return nil, err
	}

	if _, err := s.registry.RecordDownload(ctx, content.File.ID, requester, s.clock.Now()); err != nil {
		content.Body.Close()
		return nil, err
	}
	downloadsTotal.Inc()
	return content, nil
}

// Preview checks access and opens the content without touching statistics
func (s *FileService) Preview(ctx context.Context, token string, requester *model.Identity, credential string) (*Content, error) {
	return s.open(ctx, token, requester, credential)
}

func (s *FileService) open(ctx context.Context, token string, requester *model.Identity, credential string) (*Content, error) {
	file, err := s.registry.Get(ctx, token)
	if err != nil {
		return nil, err
	}

	decision := s.engine.Decide(file, requester, credential)
	accessDecisionsTotal.WithLabelValues(decision.Label()).Inc()
	if !decision.Allowed() {
		return nil, decision.Err()
	}

	body, err := s.blobs.Open(ctx, file.ID)
	if err != nil {
		if !apperr.IsKind(err, apperr.NotFound) {
			log.Printf("Error: Failed to open content of %s: %v", file.ID, err)
		}
		return nil, err
	}
	return &Content{File: file, Body: body}, nil
}

// Details returns the owner view of a file
func (s *FileService) Details(ctx context.Context, id string, requester *model.Identity) (model.FileDetails, error) {
	file, err := s.authorize(ctx, id, requester)
	if err != nil {
		return model.FileDetails{}, err
	}

	now := s.clock.Now()
	details := s.details(file, lifecycle.Evaluate(file.AvailableFrom, file.AvailableTo, now))
	hours := lifecycle.HoursUntil(file.AvailableTo, now)
	details.HoursRemaining = &hours
	return details, nil
}

// Delete removes a file record and then its content
func (s *FileService) Delete(ctx context.Context, id string, requester *model.Identity) error {
	if _, err := s.authorize(ctx, id, requester); err != nil {
		return err
	}
	if err := s.registry.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.blobs.Delete(ctx, id); err != nil {
		log.Printf("Warning: Failed to delete content of %s: %v", id, err)
	}
	log.Printf("Deleted file %s by %s", id, requester.Email)
	return nil
}

// Stats returns download statistics. Anonymous uploads have none.
func (s *FileService) Stats(ctx context.Context, id string, requester *model.Identity) (model.FileStatsView, error) {
	file, err := s.authorize(ctx, id, requester)
	if err != nil {
		return model.FileStatsView{}, err
	}
	if file.IsAnonymous() {
		return model.FileStatsView{}, apperr.New(apperr.NotFound, "Statistics not available for anonymous uploads")
	}

	stats, err := s.registry.Stats(ctx, id)
	if err != nil {
		return model.FileStatsView{}, err
	}
	return model.NewFileStatsView(file, stats), nil
}

// History returns one page of download history, most recent first
func (s *FileService) History(ctx context.Context, id string, requester *model.Identity, page, limit int) (model.DownloadHistoryView, error) {
	file, err := s.authorize(ctx, id, requester)
	if err != nil {
		return model.DownloadHistoryView{}, err
	}

	entries, total, err := s.registry.History(ctx, id, (page-1)*limit, limit)
	if err != nil {
		return model.DownloadHistoryView{}, err
	}
	return model.DownloadHistoryView{
		FileID:   file.ID,
		FileName: file.Filename,
		History:  entries,
		Pagination: model.HistoryPagination{
			CurrentPage:  page,
			TotalPages:   model.TotalPages(total, limit),
			TotalRecords: total,
			Limit:        limit,
		},
	}, nil
}

// ListQuery selects a page of the requester's files
type ListQuery struct {
	Status string
	Page   int
	Limit  int
	SortBy string
	Order  string
}

// MyFiles lists the requester's files with a per-state summary
func (s *FileService) MyFiles(ctx context.Context, requester *model.Identity, q ListQuery) (model.MyFilesView, error) {
	if requester == nil {
		return model.MyFilesView{}, apperr.New(apperr.Unauthorized, "Authentication required")
	}
	state, err := lifecycle.ParseState(q.Status)
	if err != nil {
		return model.MyFilesView{}, apperr.Wrap(apperr.Validation, err, "Invalid status filter").
			With("allowed", []string{"all", "pending", "active", "expired"})
	}

	sortBy := registry.SortCreatedAt
	if q.SortBy == registry.SortFileName {
		sortBy = registry.SortFileName
	}

	result, err := s.registry.ListByOwner(ctx, requester.Email, registry.ListOptions{
		State:  state,
		SortBy: sortBy,
		Order:  q.Order,
		Offset: (q.Page - 1) * q.Limit,
		Limit:  q.Limit,
		Now:    s.clock.Now(),
	})
	if err != nil {
		return model.MyFilesView{}, err
	}

	files := make([]model.FileSummary, 0, len(result.Items))
	for _, item := range result.Items {
		files = append(files, model.FileSummary{
			ID:         item.File.ID,
			FileName:   item.File.Filename,
			Status:     item.State,
			CreatedAt:  item.File.CreatedAt,
			ShareToken: item.File.ShareToken(),
		})
	}

	return model.MyFilesView{
		Files:      files,
		Pagination: pagination(q.Page, q.Limit, result.Total),
		Summary:    result.Summary,
	}, nil
}

// Available lists public active files, newest first
func (s *FileService) Available(ctx context.Context, page, limit int) (model.AvailableView, error) {
	result, err := s.registry.ListPublicActive(ctx, registry.ListOptions{
		SortBy: registry.SortCreatedAt,
		Order:  registry.OrderDesc,
		Offset: (page - 1) * limit,
		Limit:  limit,
		Now:    s.clock.Now(),
	})
	if err != nil {
		return model.AvailableView{}, err
	}

	files := make([]model.AvailableFile, 0, len(result.Items))
	for _, item := range result.Items {
		files = append(files, model.AvailableFile{
			FileID:      item.File.ID,
			Filename:    item.File.Filename,
			Owner:       item.File.OwnerEmail,
			HasPassword: item.File.PasswordProtected,
			ShareToken:  item.File.ShareToken(),
		})
	}
	return model.AvailableView{Files: files, Pagination: pagination(page, limit, result.Total)}, nil
}

// Cleanup removes every expired file, records first and content after
func (s *FileService) Cleanup(ctx context.Context) (model.CleanupResult, error) {
	now := s.clock.Now()
	removed, err := s.registry.DeleteMatching(ctx, func(f model.FileRecord) bool {
		return lifecycle.Evaluate(f.AvailableFrom, f.AvailableTo, now) == lifecycle.Expired
	})
	if err != nil {
		return model.CleanupResult{}, err
	}

	for _, f := range removed {
		if err := s.blobs.Delete(ctx, f.ID); err != nil {
			log.Printf("Warning: Failed to delete content of expired file %s: %v", f.ID, err)
		}
	}
	cleanupRemovedTotal.Add(float64(len(removed)))

	return model.CleanupResult{
		Message:      "Expired files removed",
		DeletedFiles: len(removed),
		Timestamp:    now,
	}, nil
}

// Policy returns the current upload policy
func (s *FileService) Policy(ctx context.Context) (policy.Policy, error) {
	return s.policies.Get(ctx)
}

// UpdatePolicy applies a partial policy update
func (s *FileService) UpdatePolicy(ctx context.Context, patch policy.Patch) (policy.Policy, error) {
	updated, err := s.policies.Update(ctx, patch)
	if err != nil {
		return policy.Policy{}, err
	}
	log.Printf("Policy updated: %+v", updated)
	return updated, nil
}

// authorize loads a file the requester owns, or any file for admins
func (s *FileService) authorize(ctx context.Context, id string, requester *model.Identity) (model.FileRecord, error) {
	if requester == nil {
		return model.FileRecord{}, apperr.New(apperr.Unauthorized, "Authentication required")
	}
	file, err := s.registry.Get(ctx, id)
	if err != nil {
		return model.FileRecord{}, err
	}
	if !file.IsOwnedBy(requester) && !requester.IsAdmin() {
		return model.FileRecord{}, apperr.New(apperr.Forbidden, "You don't have permission to access this file")
	}
	return file, nil
}

func (s *FileService) details(file model.FileRecord, state lifecycle.State) model.FileDetails {
	return model.FileDetails{
		FileRecord: file,
		ShareToken: file.ShareToken(),
		ShareLink:  s.ShareLink(file.ShareToken()),
		Status:     state,
	}
}

// Now returns the service clock time
func (s *FileService) Now() time.Time {
	return s.clock.Now()
}

// ShareLink builds the public link of a share token
func (s *FileService) ShareLink(token string) string {
	if s.shareBaseURL == "" {
		return ""
	}
	return strings.TrimSuffix(s.shareBaseURL, "/") + "/" + token
}

func pagination(page, limit, total int) model.Pagination {
	return model.Pagination{
		CurrentPage: page,
		TotalPages:  model.TotalPages(total, limit),
		TotalFiles:  total,
		Limit:       limit,
	}
}

// sniff detects the content type and returns a reader positioned at the start of the content
func sniff(r io.Reader) (io.Reader, string, error) {
	if rs, ok := r.(io.ReadSeeker); ok {
		mime, err := mimetype.DetectReader(rs)
		if err != nil {
			return nil, "", err
		}
		if _, err := rs.Seek(0, io.SeekStart); err != nil {
			return nil, "", err
		}
		return rs, mime.String(), nil
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, "", err
	}
	head = head[:n]
	return io.MultiReader(bytes.NewReader(head), r), mimetype.Detect(head).String(), nil
}

func sanitizeFilename(name string) string {
	name = strings.TrimSpace(filepath.Base(strings.ReplaceAll(name, `\`, "/")))
	if name == "" || name == "." || name == "/" {
		b := make([]byte, 8)
		rand.Read(b)
		return "upload-" + hex.EncodeToString(b)
	}
	return name
}
