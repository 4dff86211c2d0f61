package site

import (
	"embed"
	"html/template"
	"io/fs"
	"net/http"
)

//go:embed static/*
var staticFS embed.FS

var formTemplate = template.Must(template.ParseFS(staticFS, "static/form.html.tmpl"))

// FS returns an http.FileSystem for the embedded assets.
func FS() http.FileSystem {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		// Expose the unrooted FS on error.
		return http.FS(staticFS)
	}
	return http.FS(sub)
}
