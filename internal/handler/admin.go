package handler

import (
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/marianozunino/gatedrop/internal/apperr"
	"github.com/marianozunino/gatedrop/internal/middleware"
	"github.com/marianozunino/gatedrop/internal/policy"
)

// HandleGetPolicy returns the current upload policy
func (h *Handler) HandleGetPolicy(c echo.Context) error {
	p, err := h.files.Policy(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

// HandleUpdatePolicy applies a partial policy update
func (h *Handler) HandleUpdatePolicy(c echo.Context) error {
	var patch policy.Patch
	if err := c.Bind(&patch); err != nil {
		return apperr.Wrap(apperr.Validation, err, "Invalid request body")
	}

	updated, err := h.files.UpdatePolicy(c.Request().Context(), patch)
	if err != nil {
		return err
	}

	log.Printf("Policy updated by %s", middleware.Identity(c).Email)
	return c.JSON(http.StatusOK, map[string]any{
		"message": "Policy updated",
		"policy":  updated,
	})
}

// HandleCleanup removes every expired file
func (h *Handler) HandleCleanup(c echo.Context) error {
	result, err := h.files.Cleanup(c.Request().Context())
	if err != nil {
		return err
	}

	log.Printf("Admin cleanup by %s removed %d files", middleware.Identity(c).Email, result.DeletedFiles)
	return c.JSON(http.StatusOK, result)
}
