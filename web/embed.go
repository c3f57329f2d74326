// Package web embeds the chat widget page and serves it over HTTP.
package web

import (
	"embed"
	"io/fs"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

//go:embed all:static
var staticFS embed.FS

// Handler serves the embedded widget. Unknown paths fall back to index.html.
func Handler(logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	subFS, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic("web: failed to create sub filesystem: " + err.Error())
	}

	fileServer := http.FileServer(http.FS(subFS))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/")
		if path == "" {
			path = "index.html"
		}

		if f, err := subFS.Open(path); err == nil {
			if closeErr := f.Close(); closeErr != nil {
				logger.Debug("close embedded file failed", zap.String("path", path), zap.Error(closeErr))
			}
			fileServer.ServeHTTP(w, r)
			return
		}

		r.URL.Path = "/"
		fileServer.ServeHTTP(w, r)
	})
}
