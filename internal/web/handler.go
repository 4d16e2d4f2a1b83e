// Package web serves the browser query console.
package web

import (
	"bytes"
	_ "embed"
	"fmt"
	"net/http"
	"strings"
	"time"

	"maragu.dev/gomponents"
)

// IndexPath is where the console page is served.
const IndexPath = "/static/index.html"

var (
	//go:embed assets/console.js
	consoleJS string
	//go:embed assets/console.css
	consoleCSS []byte
)

// Assets serves the console files below /static/.
type Assets struct {
	modTime time.Time
	files   map[string][]byte
}

// NewAssets renders the console page for schema. modTime is reported as
// Last-Modified for every file.
func NewAssets(schema Schema, modTime time.Time) (*Assets, error) {
	var buf bytes.Buffer
	if err := ConsolePage(schema).Render(&buf); err != nil {
		return nil, fmt.Errorf("rendering console page: %w", err)
	}
	return &Assets{
		modTime: modTime.UTC().Truncate(time.Second),
		files: map[string][]byte{
			"index.html":  buf.Bytes(),
			"console.css": consoleCSS,
		},
	}, nil
}

func (a *Assets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/static/")
	data, ok := a.files[name]
	if !ok {
		NotFound(w, r)
		return
	}
	http.ServeContent(w, r, name, a.modTime, bytes.NewReader(data))
}

// NotFound writes the 404 page.
func NotFound(w http.ResponseWriter, r *http.Request) {
	renderHTML(w, http.StatusNotFound, NotFoundPage(r.URL.Path))
}

func renderHTML(w http.ResponseWriter, status int, node gomponents.Node) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = node.Render(w)
}
