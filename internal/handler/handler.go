package handler

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/marianozunino/gatedrop/internal/apperr"
	"github.com/marianozunino/gatedrop/internal/config"
	"github.com/marianozunino/gatedrop/internal/identity"
	"github.com/marianozunino/gatedrop/internal/service"
)

const (
	passwordHeader = "X-File-Password"
	maxPageLimit   = 100
)

// Handler handles HTTP requests
type Handler struct {
	files     *service.FileService
	sessions  *identity.Sessions
	directory *identity.Directory
	cfg       *config.Config
}

// NewHandler creates a new handler
func NewHandler(files *service.FileService, sessions *identity.Sessions, directory *identity.Directory, cfg *config.Config) *Handler {
	return &Handler{
		files:     files,
		sessions:  sessions,
		directory: directory,
		cfg:       cfg,
	}
}

// HandleHealth reports liveness
func (h *Handler) HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// ErrorHandler renders every error as {"error", "code", "message", ...details}
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		kind := kindForStatus(he.Code)
		writeError(c, he.Code, apperr.Title(kind), string(kind), fmt.Sprint(he.Message), nil)
		return
	}

	e := apperr.From(err)
	if e.Kind == apperr.Internal {
		log.Printf("Error: %s %s: %v", c.Request().Method, c.Request().URL.Path, err)
	}
	writeError(c, e.Status(), apperr.Title(e.Kind), string(e.Kind), e.Message, e.Details)
}

func writeError(c echo.Context, status int, title, code, message string, details map[string]any) {
	if c.Request().Method == http.MethodHead {
		if err := c.NoContent(status); err != nil {
			log.Printf("Warning: Failed to write error response: %v", err)
		}
		return
	}

	body := map[string]any{
		"error":   title,
		"code":    code,
		"message": message,
	}
	for k, v := range details {
		body[k] = v
	}
	if err := c.JSON(status, body); err != nil {
		log.Printf("Warning: Failed to write error response: %v", err)
	}
}

func kindForStatus(status int) apperr.Kind {
	switch status {
	case http.StatusBadRequest:
		return apperr.Validation
	case http.StatusUnauthorized:
		return apperr.Unauthorized
	case http.StatusForbidden:
		return apperr.Forbidden
	case http.StatusNotFound, http.StatusMethodNotAllowed:
		return apperr.NotFound
	case http.StatusRequestEntityTooLarge:
		return apperr.PayloadTooLarge
	default:
		return apperr.Internal
	}
}

// pageParams reads page and limit query parameters
func pageParams(c echo.Context, defaultLimit int) (int, int, error) {
	page, err := positiveQueryInt(c, "page", 1)
	if err != nil {
		return 0, 0, err
	}
	limit, err := positiveQueryInt(c, "limit", defaultLimit)
	if err != nil {
		return 0, 0, err
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return page, limit, nil
}

func positiveQueryInt(c echo.Context, name string, fallback int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, apperr.Newf(apperr.Validation, "%s must be a positive integer", name)
	}
	return n, nil
}

// credential returns the file password supplied with the request
func credential(c echo.Context) string {
	if p := c.Request().Header.Get(passwordHeader); p != "" {
		return p
	}
	return c.FormValue("password")
}
