package templates

import (
	"html/template"

	"github.com/a-h/templ"
	"github.com/marianozunino/gatedrop/internal/model"
)

// SharePageData is rendered by SharePage
type SharePageData struct {
	File      model.PublicFileInfo
	CanInline bool
}

var funcs = template.FuncMap{
	"formatBytes": FormatBytes,
	"formatTime":  FormatTime,
	"statusLabel": StatusLabel,
	"downloadURL": DownloadURL,
	"previewURL":  PreviewURL,
}

const layout = `{{define "head"}}<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.}} - gatedrop</title>
<style>
body{font-family:system-ui,sans-serif;max-width:40rem;margin:3rem auto;padding:0 1rem;color:#222}
dl{display:grid;grid-template-columns:max-content 1fr;gap:.25rem 1rem}
dt{font-weight:600}
.status{display:inline-block;padding:.1rem .5rem;border-radius:.25rem;background:#eee}
.actions a{margin-right:1rem}
</style>
</head>
<body>{{end}}
{{define "foot"}}</body>
</html>{{end}}`

var sharePage = template.Must(template.New("share").Funcs(funcs).Parse(layout + `
{{template "head" .File.FileName}}
<h1>{{.File.FileName}}</h1>
<p><span class="status">{{statusLabel .File.Status}}</span></p>
<dl>
<dt>Size</dt><dd>{{formatBytes .File.FileSize}}</dd>
<dt>Type</dt><dd>{{.File.MimeType}}</dd>
<dt>Available from</dt><dd>{{formatTime .File.AvailableFrom}}</dd>
<dt>Available until</dt><dd>{{formatTime .File.AvailableTo}}</dd>
</dl>
{{if eq .File.Status "active"}}
{{if .File.HasPassword}}
<form method="post" action="{{downloadURL .File.ShareToken}}">
<label>Password <input type="password" name="password" required></label>
<button type="submit">Download</button>
</form>
{{else}}
<p class="actions">
<a href="{{downloadURL .File.ShareToken}}">Download</a>
{{if .CanInline}}<a href="{{previewURL .File.ShareToken}}">Preview</a>{{end}}
</p>
{{end}}
{{if not .File.IsPublic}}<p>This file is restricted. Sign in with an account it is shared with to download it.</p>{{end}}
{{end}}
{{template "foot"}}`))

var unavailablePage = template.Must(template.New("unavailable").Funcs(funcs).Parse(layout + `
{{template "head" .Title}}
<h1>{{.Title}}</h1>
<p>{{.Message}}</p>
{{template "foot"}}`))

// SharePage renders the landing page of a share link
func SharePage(data SharePageData) templ.Component {
	return templ.FromGoHTML(sharePage, data)
}

// UnavailablePage renders a share link that cannot be served
func UnavailablePage(title, message string) templ.Component {
	return templ.FromGoHTML(unavailablePage, struct {
		Title   string
		Message string
	}{title, message})
}
