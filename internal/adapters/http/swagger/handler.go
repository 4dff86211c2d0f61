// Package swagger serves the embedded OpenAPI document and a ReDoc page for it.
package swagger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
)

// ErrMethodNotAllowed is the body of the 405 answer; the docs are read-only.
var ErrMethodNotAllowed = errors.New("api docs: method not allowed")

// RedocURL is the ReDoc bundle loaded by the docs page.
const RedocURL = "https://cdn.redoc.ly/redoc/latest/bundles/redoc.standalone.js"

// Register attaches the docs routes to mux:
//
//	GET /api-docs      ReDoc page
//	GET /openapi.yaml  embedded OpenAPI document
func Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}

	mux.Handle("/api-docs", document("text/html; charset=utf-8", []byte(docsPage)))
	mux.Handle("/openapi.yaml", document("application/yaml; charset=utf-8", OpenAPI))
}

// document answers GET and HEAD with body. The ETag is the body's sha256,
// so a client revalidating with If-None-Match gets 304 until the binary changes.
func document(contentType string, body []byte) http.Handler {
	sum := sha256.Sum256(body)
	etag := `"` + hex.EncodeToString(sum[:8]) + `"`

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, ErrMethodNotAllowed.Error(), http.StatusMethodNotAllowed)
			return
		}

		h := w.Header()
		h.Set("ETag", etag)
		h.Set("Cache-Control", "no-cache")
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		h.Set("Content-Type", contentType)
		if r.Method == http.MethodHead {
			return
		}
		_, _ = w.Write(body)
	})
}

const docsPage = `<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <title>Crimecast API</title>
    <style>body{margin:0;padding:0}</style>
  </head>
  <body>
    <redoc id="redoc-container"></redoc>
    <script src="` + RedocURL + `"></script>
    <script>Redoc.init('/openapi.yaml', {suppressWarnings: true, hideDownloadButton: false}, document.getElementById('redoc-container'));</script>
  </body>
</html>`
