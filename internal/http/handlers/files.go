package handlers

import (
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
)

// StorageFile serves a generated or uploaded file by its storage-relative
// path. Resolution rejects anything escaping the storage root.
func (a *App) StorageFile(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")
	full, err := a.Store.Resolve(key)
	if err != nil {
		a.error(w, http.StatusForbidden, "access denied")
		return
	}
	if info, err := os.Stat(full); err != nil || info.IsDir() {
		a.error(w, http.StatusNotFound, "file not found: "+key)
		return
	}
	http.ServeFile(w, r, full)
}
