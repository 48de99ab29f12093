// Package web embeds the HTML templates and static assets.
package web

import (
	"embed"
	"html/template"
	"io/fs"
	"net/http"

	"resolution-dashboard/format"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// Templates parses every page template with the formatter functions.
func Templates() (*template.Template, error) {
	return template.New("").Funcs(format.FuncMap()).ParseFS(templateFS, "templates/*.html")
}

// Static serves the embedded static directory.
func Static() http.FileSystem {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.FS(sub)
}
