package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
)

const maxUploadBytes = 10 << 20

// UploadImage saves a multipart image upload into the library.
func (a *App) UploadImage(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		a.error(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		a.error(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		a.error(w, http.StatusBadRequest, "failed to read upload")
		return
	}
	if len(data) > maxUploadBytes {
		a.error(w, http.StatusBadRequest, "file exceeds the 10MB limit")
		return
	}

	info, err := a.Library.SaveUpload(data, header.Filename)
	if err != nil {
		a.error(w, http.StatusBadRequest, err.Error())
		return
	}
	a.json(w, http.StatusCreated, map[string]any{
		"filename":      info.Filename,
		"file_size":     info.FileSize,
		"mime_type":     info.MimeType,
		"width":         info.Width,
		"height":        info.Height,
		"uploaded_at":   info.UploadedAt,
		"url":           fmt.Sprintf("/api/images/%s", info.Filename),
		"thumbnail_url": fmt.Sprintf("/api/images/%s/thumbnail", info.Filename),
	})
}

// ListImages returns the upload library, newest first.
func (a *App) ListImages(w http.ResponseWriter, r *http.Request) {
	images, err := a.Library.List()
	if err != nil {
		a.Logger.Error().Err(err).Msg("handlers: list images failed")
		a.error(w, http.StatusInternalServerError, "failed to list images")
		return
	}
	a.json(w, http.StatusOK, images)
}

// GetImage serves an uploaded image by filename.
func (a *App) GetImage(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	p, err := a.Library.Path(filename)
	if err != nil {
		a.error(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := os.Stat(p); err != nil {
		a.error(w, http.StatusNotFound, "image not found")
		return
	}
	http.ServeFile(w, r, p)
}

// GetImageThumbnail serves a cached 200px thumbnail, generating it on first
// request.
func (a *App) GetImageThumbnail(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	p, err := a.Library.Thumbnail(filename)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) || strings.Contains(err.Error(), "not found") {
			a.error(w, http.StatusNotFound, "image not found")
			return
		}
		a.error(w, http.StatusInternalServerError, "failed to build thumbnail")
		return
	}
	http.ServeFile(w, r, p)
}
