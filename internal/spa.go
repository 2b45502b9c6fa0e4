package internal

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// SPAHandler serves the front end's static build directory. any path that
// does not match a real file falls back to index.html so client-side routed
// urls like /chat/123 still load the app. api and websocket paths are routed
// before this handler and never reach it.
func SPAHandler(staticDir string) http.Handler {
	fileServer := http.FileServer(http.Dir(staticDir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// unknown api paths are 404s, never the front-end entry artifact.
		if IsAPIPath(r.URL.Path) || staticDir == "" {
			http.NotFound(w, r)
			return
		}
		requested := filepath.Join(staticDir, filepath.Clean("/"+r.URL.Path))
		if info, err := os.Stat(requested); err == nil && !info.IsDir() {
			fileServer.ServeHTTP(w, r)
			return
		}
		index := filepath.Join(staticDir, "index.html")
		if _, err := os.Stat(index); err != nil {
			http.NotFound(w, r)
			return
		}
		http.ServeFile(w, r, index)
	})
}

// IsAPIPath reports whether a request path belongs to the JSON API rather
// than the static front end.
func IsAPIPath(path string) bool {
	return strings.HasPrefix(path, "/api/")
}
