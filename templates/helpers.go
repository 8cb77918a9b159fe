package templates

import (
	"fmt"
	"net/url"
	"time"

	"github.com/marianozunino/gatedrop/internal/lifecycle"
	"github.com/marianozunino/gatedrop/internal/utils"
)

// Helper functions for the share page

func FormatBytes(bytes int64) string {
	return utils.FormatFileSize(bytes)
}

func FormatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04 UTC")
}

func StatusLabel(state lifecycle.State) string {
	switch state {
	case lifecycle.Pending:
		return "Not yet available"
	case lifecycle.Active:
		return "Available"
	case lifecycle.Expired:
		return "Expired"
	default:
		return string(state)
	}
}

func DownloadURL(token string) string {
	return fmt.Sprintf("/api/files/%s/download", url.PathEscape(token))
}

func PreviewURL(token string) string {
	return fmt.Sprintf("/api/files/%s/preview", url.PathEscape(token))
}
