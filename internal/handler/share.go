package handler

import (
	"net/http"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"
	"github.com/marianozunino/gatedrop/internal/apperr"
	"github.com/marianozunino/gatedrop/templates"
)

// HandleSharePage serves the HTML landing page of a share link
func (h *Handler) HandleSharePage(c echo.Context) error {
	info, err := h.files.Info(c.Request().Context(), c.Param("token"))
	if err != nil {
		e := apperr.From(err)
		if e.Kind == apperr.Internal {
			return err
		}
		return render(c, e.Status(), templates.UnavailablePage(apperr.Title(e.Kind), e.Message))
	}

	return render(c, http.StatusOK, templates.SharePage(templates.SharePageData{
		File:      info,
		CanInline: shouldDisplayInline(info.MimeType),
	}))
}

func render(c echo.Context, status int, component templ.Component) error {
	c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	c.Response().WriteHeader(status)
	return component.Render(c.Request().Context(), c.Response())
}
