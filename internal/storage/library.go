package storage

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
)

const (
	maxUploadBytes = 10 << 20
	thumbnailEdge  = 200
)

var allowedExtensions = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".webp": {},
}

// ImageInfo describes an image held in the upload library.
type ImageInfo struct {
	Filename   string    `json:"filename"`
	FileSize   int64     `json:"file_size"`
	MimeType   string    `json:"mime_type,omitempty"`
	Width      int       `json:"width,omitempty"`
	Height     int       `json:"height,omitempty"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// Library manages uploaded source images that campaigns can reference by bare
// filename.
type Library struct {
	uploadPath string
}

// NewLibrary initializes the upload library rooted at uploadPath.
func NewLibrary(uploadPath string) (*Library, error) {
	uploadPath = strings.TrimSpace(uploadPath)
	if uploadPath == "" {
		return nil, errors.New("storage: upload path is required")
	}
	if err := os.MkdirAll(uploadPath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: ensure upload path: %w", err)
	}
	return &Library{uploadPath: uploadPath}, nil
}

// UploadPath returns the library's root directory.
func (l *Library) UploadPath() string { return l.uploadPath }

// SaveUpload stores an uploaded image under a unique filename and returns its
// metadata. The original base name is kept with a short random suffix so
// repeated uploads never collide.
func (l *Library) SaveUpload(data []byte, originalName string) (*ImageInfo, error) {
	if len(data) == 0 {
		return nil, errors.New("storage: empty upload")
	}
	if len(data) > maxUploadBytes {
		return nil, fmt.Errorf("storage: upload exceeds %d bytes", maxUploadBytes)
	}
	ext := strings.ToLower(filepath.Ext(originalName))
	if _, ok := allowedExtensions[ext]; !ok {
		return nil, fmt.Errorf("storage: unsupported image extension %q", ext)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("storage: decode image: %w", err)
	}

	base := strings.TrimSuffix(filepath.Base(originalName), filepath.Ext(originalName))
	base = sanitizeFilename(base)
	filename := fmt.Sprintf("%s_%s%s", base, uuid.NewString()[:8], ext)

	fullPath := filepath.Join(l.uploadPath, filename)
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return nil, fmt.Errorf("storage: write upload: %w", err)
	}

	return &ImageInfo{
		Filename:   filename,
		FileSize:   int64(len(data)),
		MimeType:   "image/" + format,
		Width:      cfg.Width,
		Height:     cfg.Height,
		UploadedAt: time.Now().UTC(),
	}, nil
}

// List returns metadata for every image in the library, newest first.
func (l *Library) List() ([]ImageInfo, error) {
	entries, err := os.ReadDir(l.uploadPath)
	if err != nil {
		return nil, fmt.Errorf("storage: read upload dir: %w", err)
	}
	var images []ImageInfo
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if _, ok := allowedExtensions[ext]; !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		img := ImageInfo{
			Filename:   entry.Name(),
			FileSize:   info.Size(),
			UploadedAt: info.ModTime().UTC(),
		}
		if f, err := os.Open(filepath.Join(l.uploadPath, entry.Name())); err == nil {
			if cfg, format, err := image.DecodeConfig(f); err == nil {
				img.Width = cfg.Width
				img.Height = cfg.Height
				img.MimeType = "image/" + format
			}
			f.Close()
		}
		images = append(images, img)
	}
	sort.Slice(images, func(i, j int) bool { return images[i].UploadedAt.After(images[j].UploadedAt) })
	return images, nil
}

// Path returns the absolute path of a library image, rejecting names that
// reach outside the upload directory.
func (l *Library) Path(filename string) (string, error) {
	if filename != filepath.Base(filename) || filename == "" || filename == "." {
		return "", errors.New("storage: invalid filename")
	}
	fullPath := filepath.Join(l.uploadPath, filename)
	if _, err := os.Stat(fullPath); err != nil {
		if os.IsNotExist(err) {
			return "", os.ErrNotExist
		}
		return "", fmt.Errorf("storage: stat image: %w", err)
	}
	return fullPath, nil
}

// Thumbnail produces (and caches) a small preview of a library image and
// returns its path.
func (l *Library) Thumbnail(filename string) (string, error) {
	src, err := l.Path(filename)
	if err != nil {
		return "", err
	}
	thumbDir := filepath.Join(l.uploadPath, ".thumbnails")
	thumbPath := filepath.Join(thumbDir, filename)
	if _, err := os.Stat(thumbPath); err == nil {
		return thumbPath, nil
	}
	img, err := imaging.Open(src, imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("storage: open image: %w", err)
	}
	thumb := imaging.Fit(img, thumbnailEdge, thumbnailEdge, imaging.Lanczos)
	if err := os.MkdirAll(thumbDir, 0o755); err != nil {
		return "", fmt.Errorf("storage: ensure thumbnail dir: %w", err)
	}
	if err := imaging.Save(thumb, thumbPath); err != nil {
		return "", fmt.Errorf("storage: save thumbnail: %w", err)
	}
	return thumbPath, nil
}

func sanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	if b.Len() == 0 {
		return "image"
	}
	return b.String()
}
