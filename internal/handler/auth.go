package handler

import (
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/marianozunino/gatedrop/internal/apperr"
	"github.com/marianozunino/gatedrop/internal/middleware"
)

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleRegister creates a user account
func (h *Handler) HandleRegister(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Wrap(apperr.Validation, err, "Invalid request body")
	}

	id, err := h.directory.Register(c.Request().Context(), req.Username, req.Email, req.Password)
	if err != nil {
		return err
	}

	log.Printf("Registered user %s", id.Email)
	return c.JSON(http.StatusOK, map[string]any{
		"message": "User registered successfully",
		"userId":  id.ID,
	})
}

// HandleLogin exchanges credentials for an access token
func (h *Handler) HandleLogin(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Wrap(apperr.Validation, err, "Invalid request body")
	}

	token, id, err := h.sessions.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{
		"accessToken": token,
		"user":        id,
		"message":     "Login successful",
	})
}

// HandleLogout revokes the presented access token
func (h *Handler) HandleLogout(c echo.Context) error {
	h.sessions.Revoke(middleware.Claims(c))
	return c.JSON(http.StatusOK, map[string]string{"message": "User logged out"})
}

// HandleUser returns the profile of the authenticated user
func (h *Handler) HandleUser(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"user": middleware.Identity(c)})
}
