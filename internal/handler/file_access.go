package handler

import (
	"io"
	"log"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/marianozunino/gatedrop/internal/middleware"
	"github.com/marianozunino/gatedrop/internal/service"
	"github.com/marianozunino/gatedrop/internal/utils"
)

// HandleFileInfo returns the public-safe view of a shared file
func (h *Handler) HandleFileInfo(c echo.Context) error {
	info, err := h.files.Info(c.Request().Context(), c.Param("token"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"file": info})
}

// HandleDownload streams a file as an attachment and records the download
func (h *Handler) HandleDownload(c echo.Context) error {
	content, err := h.files.Download(c.Request().Context(), c.Param("token"), middleware.Identity(c), credential(c))
	if err != nil {
		return err
	}
	return h.serveContent(c, content, "attachment")
}

// HandlePreview streams a file inline without touching statistics
func (h *Handler) HandlePreview(c echo.Context) error {
	content, err := h.files.Preview(c.Request().Context(), c.Param("token"), middleware.Identity(c), credential(c))
	if err != nil {
		return err
	}
	return h.serveContent(c, content, "inline")
}

// serveContent writes the headers for the file and streams its body
func (h *Handler) serveContent(c echo.Context, content *service.Content, disposition string) error {
	defer content.Body.Close()
	f := content.File

	contentType := "application/octet-stream"
	if f.MimeType != "" {
		contentType = f.MimeType
	}

	header := c.Response().Header()
	header.Set(echo.HeaderContentType, contentType)
	header.Set(echo.HeaderContentLength, strconv.FormatInt(f.Size, 10))
	header.Set(echo.HeaderContentDisposition, mime.FormatMediaType(disposition, map[string]string{"filename": f.Filename}))
	header.Set("X-Expires", strconv.FormatInt(f.AvailableTo.UnixMilli(), 10))
	// access depends on the requester, so shared caches must not keep the body
	header.Set("Cache-Control", "private, no-store")

	c.Response().WriteHeader(http.StatusOK)

	n, err := io.Copy(c.Response(), content.Body)
	if err != nil {
		log.Printf("Error: Streaming %s to %s stopped after %s: %v", f.ID, c.RealIP(), utils.FormatFileSize(n), err)
		return nil
	}

	log.Printf("File served: %s (%s) to %s", f.Filename, utils.FormatFileSize(n), c.RealIP())
	return nil
}

// shouldDisplayInline determines if the content can be shown in the browser
func shouldDisplayInline(contentType string) bool {
	return strings.HasPrefix(contentType, "video/") ||
		strings.HasPrefix(contentType, "audio/") ||
		strings.HasPrefix(contentType, "image/") ||
		contentType == "application/pdf" ||
		strings.HasPrefix(contentType, "text/")
}
