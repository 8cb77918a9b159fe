package handler

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/marianozunino/gatedrop/internal/apperr"
	"github.com/marianozunino/gatedrop/internal/middleware"
	"github.com/marianozunino/gatedrop/internal/service"
	"github.com/marianozunino/gatedrop/internal/utils"
)

const (
	multipartMemory   = 32 << 20
	multipartOverhead = 1 << 20
)

// HandleUpload processes a multipart file upload
func (h *Handler) HandleUpload(c echo.Context) error {
	ctx := c.Request().Context()

	p, err := h.files.Policy(ctx)
	if err != nil {
		return err
	}

	limit := p.MaxFileSizeBytes() + multipartOverhead
	c.Request().Body = http.MaxBytesReader(c.Response(), c.Request().Body, limit)
	if err := c.Request().ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) || c.Request().ContentLength > limit {
			return apperr.New(apperr.PayloadTooLarge, "File size exceeds the system limit").
				With("maxFileSizeMB", p.MaxFileSizeMB)
		}
		return apperr.Wrap(apperr.Validation, err, "Invalid multipart form")
	}
	defer c.Request().MultipartForm.RemoveAll()

	file, header, err := c.Request().FormFile("file")
	if err != nil {
		return apperr.New(apperr.Validation, "No file provided")
	}
	defer file.Close()

	now := h.files.Now()
	from, err := parseTimeField(c, "availableFrom", now)
	if err != nil {
		return err
	}
	to, err := parseTimeField(c, "availableTo", now)
	if err != nil {
		return err
	}

	details, err := h.files.Upload(ctx, service.UploadRequest{
		Filename:      header.Filename,
		Content:       file,
		Size:          header.Size,
		Password:      c.FormValue("password"),
		AvailableFrom: from,
		AvailableTo:   to,
		IsPublic:      utils.ParseBool(c.FormValue("isPublic")),
		SharedWith:    c.Request().MultipartForm.Value["sharedWith"],
		Requester:     middleware.Identity(c),
	})
	if err != nil {
		if apperr.KindOf(err) != apperr.Internal {
			log.Printf("Warning: Upload of %s rejected: %v", header.Filename, err)
		}
		return err
	}

	return c.JSON(http.StatusCreated, map[string]any{
		"success": true,
		"message": "File uploaded successfully",
		"file":    details,
	})
}

// parseTimeField reads an optional timestamp form field. Absent fields yield nil.
func parseTimeField(c echo.Context, name string, now time.Time) (*time.Time, error) {
	raw := c.FormValue(name)
	if raw == "" {
		return nil, nil
	}
	t, err := utils.ParseTimestamp(raw, now)
	if err != nil {
		return nil, apperr.Wrap(apperr.Validation, err, "Invalid datetime format, use ISO format").
			With("field", name)
	}
	return &t, nil
}
