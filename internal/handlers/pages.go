package handlers

import (
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
)

// PageHandler serves the compiled front end. Paths without a matching file fall back to
// index.html so client-side routes such as /videos/{id} render.
type PageHandler struct {
	Dir string
}

func (h PageHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	clean := path.Clean("/" + r.URL.Path)
	full := filepath.Join(h.Dir, filepath.FromSlash(clean))

	info, err := os.Stat(full)
	if err == nil && !info.IsDir() {
		http.ServeFile(w, r, full)
		return
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		respondError(r.Context(), w, http.StatusInternalServerError, "unable to load page")
		return
	}

	index := filepath.Join(h.Dir, "index.html")
	if _, err := os.Stat(index); err != nil {
		respondError(r.Context(), w, http.StatusNotFound, "page not found")
		return
	}
	http.ServeFile(w, r, index)
}
