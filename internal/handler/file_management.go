package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/marianozunino/gatedrop/internal/middleware"
	"github.com/marianozunino/gatedrop/internal/service"
)

// HandleFileDetails returns the owner view of a file
func (h *Handler) HandleFileDetails(c echo.Context) error {
	details, err := h.files.Details(c.Request().Context(), c.Param("id"), middleware.Identity(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"file": details})
}

// HandleDeleteFile removes a file owned by the requester
func (h *Handler) HandleDeleteFile(c echo.Context) error {
	id := c.Param("id")
	if err := h.files.Delete(c.Request().Context(), id, middleware.Identity(c)); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{
		"message": "File deleted successfully",
		"fileId":  id,
	})
}

// HandleFileStats returns download statistics of a file
func (h *Handler) HandleFileStats(c echo.Context) error {
	stats, err := h.files.Stats(c.Request().Context(), c.Param("id"), middleware.Identity(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stats)
}

// HandleDownloadHistory returns one page of the download history of a file
func (h *Handler) HandleDownloadHistory(c echo.Context) error {
	page, limit, err := pageParams(c, h.cfg.Pagination.HistoryLimit)
	if err != nil {
		return err
	}

	history, err := h.files.History(c.Request().Context(), c.Param("id"), middleware.Identity(c), page, limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, history)
}

// HandleMyFiles lists the files of the requester
func (h *Handler) HandleMyFiles(c echo.Context) error {
	page, limit, err := pageParams(c, h.cfg.Pagination.MyFilesLimit)
	if err != nil {
		return err
	}

	view, err := h.files.MyFiles(c.Request().Context(), middleware.Identity(c), service.ListQuery{
		Status: c.QueryParam("status"),
		Page:   page,
		Limit:  limit,
		SortBy: c.QueryParam("sortBy"),
		Order:  c.QueryParam("order"),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

// HandleAvailableFiles lists public files that are currently available
func (h *Handler) HandleAvailableFiles(c echo.Context) error {
	page, limit, err := pageParams(c, h.cfg.Pagination.AvailableLimit)
	if err != nil {
		return err
	}

	view, err := h.files.Available(c.Request().Context(), page, limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}
