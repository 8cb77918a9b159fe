package handler

import (
	"github.com/labstack/echo/v4"
	middie "github.com/marianozunino/gatedrop/internal/middleware"
)

// RegisterRoutes registers all HTTP routes
func RegisterRoutes(e *echo.Echo, h *Handler) {
	e.GET("/health", h.HandleHealth)
	e.GET("/f/:token", h.HandleSharePage)

	api := e.Group("/api", middie.Authenticate(h.sessions))

	auth := api.Group("/auth")
	auth.POST("/register", h.HandleRegister)
	auth.POST("/login", h.HandleLogin)
	auth.POST("/logout", h.HandleLogout, middie.RequireAuth())

	api.GET("/user", h.HandleUser, middie.RequireAuth())

	files := api.Group("/files")
	files.POST("/upload", h.HandleUpload)
	files.GET("/my", h.HandleMyFiles, middie.RequireAuth())
	files.GET("/available", h.HandleAvailableFiles)
	files.GET("/info/:id", h.HandleFileDetails, middie.RequireAuth())
	files.DELETE("/info/:id", h.HandleDeleteFile, middie.RequireAuth())
	files.GET("/stats/:id", h.HandleFileStats, middie.RequireAuth())
	files.GET("/download-history/:id", h.HandleDownloadHistory, middie.RequireAuth())
	files.GET("/:token", h.HandleFileInfo)
	files.GET("/:token/download", h.HandleDownload)
	files.POST("/:token/download", h.HandleDownload)
	files.GET("/:token/preview", h.HandlePreview)
	files.POST("/:token/preview", h.HandlePreview)

	admin := api.Group("/admin", middie.RequireAdmin())
	admin.GET("/policy", h.HandleGetPolicy)
	admin.PATCH("/policy", h.HandleUpdatePolicy)
	admin.POST("/cleanup", h.HandleCleanup)
}
