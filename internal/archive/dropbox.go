// Package archive mirrors completed campaign variants to Dropbox and records
// shareable links for each uploaded file.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"campaignd/internal/domain"
	"campaignd/internal/infra"
	"campaignd/internal/storage"
)

// ErrNotConfigured indicates that no access token is set.
var ErrNotConfigured = errors.New("archive: dropbox access token not configured")

const (
	defaultContentURL = "https://content.dropboxapi.com"
	defaultAPIURL     = "https://api.dropboxapi.com"
)

// Options configures the Dropbox uploader.
type Options struct {
	AccessToken    string
	FolderPath     string
	ContentURL     string
	APIURL         string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Uploader pushes variant files to Dropbox over its HTTP content API.
type Uploader struct {
	accessToken string
	folderPath  string
	contentURL  string
	apiURL      string
	store       *storage.FileStore
	httpClient  *http.Client
	logger      *infra.Logger
}

// NewUploader builds an uploader resolving variant keys through the store.
func NewUploader(store *storage.FileStore, opts Options) *Uploader {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	contentURL := strings.TrimRight(strings.TrimSpace(opts.ContentURL), "/")
	if contentURL == "" {
		contentURL = defaultContentURL
	}
	apiURL := strings.TrimRight(strings.TrimSpace(opts.APIURL), "/")
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	folder := strings.TrimSpace(opts.FolderPath)
	if folder == "" {
		folder = "/campaign-images"
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Uploader{
		accessToken: strings.TrimSpace(opts.AccessToken),
		folderPath:  strings.TrimRight(folder, "/"),
		contentURL:  contentURL,
		apiURL:      apiURL,
		store:       store,
		httpClient:  httpClient,
		logger:      logger,
	}
}

// Configured reports whether an access token is present.
func (u *Uploader) Configured() bool { return u != nil && u.accessToken != "" }

type uploadResponse struct {
	PathDisplay string `json:"path_display"`
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	ID          string `json:"id"`
}

type sharedLinkResponse struct {
	URL string `json:"url"`
}

type listLinksResponse struct {
	Links []struct {
		URL string `json:"url"`
	} `json:"links"`
}

// UploadVariants uploads every variant of a campaign and returns the
// per-variant results. Uploaded is true only when every variant succeeded, so
// a partial failure leaves the archive retryable as a whole.
func (u *Uploader) UploadVariants(ctx context.Context, campaignID string, variants map[string]string) (domain.ArchiveState, error) {
	state := domain.ArchiveState{Requested: true, Links: map[string]domain.ArchiveLink{}}
	if !u.Configured() {
		return state, ErrNotConfigured
	}
	if len(variants) == 0 {
		return state, domain.ErrNoVariants
	}

	campaignFolder := fmt.Sprintf("%s/%s", u.folderPath, campaignID)
	allOK := true
	for ratioKey, storageKey := range variants {
		link := u.uploadOne(ctx, campaignFolder, ratioKey, storageKey)
		state.Links[ratioKey] = link
		if !link.Success {
			allOK = false
		}
	}
	state.Uploaded = allOK
	return state, nil
}

func (u *Uploader) uploadOne(ctx context.Context, campaignFolder, ratioKey, storageKey string) domain.ArchiveLink {
	fullPath, err := u.store.Resolve(storageKey)
	if err != nil {
		return domain.ArchiveLink{Error: err.Error()}
	}
	data, err := os.ReadFile(fullPath)
	if err != nil {
		return domain.ArchiveLink{Error: fmt.Sprintf("read variant: %v", err)}
	}

	filename := filepath.Base(fullPath)
	remotePath := fmt.Sprintf("%s/%s_%s", campaignFolder, strings.TrimPrefix(ratioKey, "ratio_"), filename)

	uploaded, err := u.uploadFile(ctx, remotePath, data)
	if err != nil {
		u.logger.Warn().Err(err).Str("ratio", ratioKey).Msg("archive: upload failed")
		return domain.ArchiveLink{Error: err.Error()}
	}

	shared := u.createSharedLink(ctx, uploaded.PathDisplay)
	u.logger.Info().
		Str("ratio", ratioKey).
		Str("remote_path", uploaded.PathDisplay).
		Int64("size", uploaded.Size).
		Msg("archive: variant uploaded")
	return domain.ArchiveLink{
		Success:    true,
		RemotePath: uploaded.PathDisplay,
		SharedLink: shared,
		Size:       uploaded.Size,
	}
}

func (u *Uploader) uploadFile(ctx context.Context, remotePath string, data []byte) (*uploadResponse, error) {
	arg, err := json.Marshal(map[string]any{
		"path":       remotePath,
		"mode":       "add",
		"autorename": true,
		"mute":       false,
	})
	if err != nil {
		return nil, fmt.Errorf("archive: encode api arg: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.contentURL+"/2/files/upload", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("archive: build upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+u.accessToken)
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Dropbox-API-Arg", string(arg))

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("archive: upload request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("archive: read upload response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var detail struct {
			ErrorSummary string `json:"error_summary"`
		}
		if err := json.Unmarshal(raw, &detail); err == nil && detail.ErrorSummary != "" {
			return nil, fmt.Errorf("archive: upload failed: %s", detail.ErrorSummary)
		}
		return nil, fmt.Errorf("archive: upload status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var decoded uploadResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("archive: decode upload response: %w", err)
	}
	return &decoded, nil
}

// createSharedLink returns a public link for the uploaded file. A 409 means a
// link already exists and the existing one is listed instead. Link failures
// are non-fatal; the upload result stands either way.
func (u *Uploader) createSharedLink(ctx context.Context, remotePath string) string {
	body, _ := json.Marshal(map[string]any{
		"path":     remotePath,
		"settings": map[string]string{"requested_visibility": "public"},
	})
	raw, status, err := u.postJSON(ctx, u.apiURL+"/2/sharing/create_shared_link_with_settings", body)
	if err != nil {
		u.logger.Warn().Err(err).Str("remote_path", remotePath).Msg("archive: shared link failed")
		return ""
	}
	switch status {
	case http.StatusOK:
		var decoded sharedLinkResponse
		if err := json.Unmarshal(raw, &decoded); err == nil {
			return decoded.URL
		}
	case http.StatusConflict:
		return u.existingSharedLink(ctx, remotePath)
	}
	return ""
}

func (u *Uploader) existingSharedLink(ctx context.Context, remotePath string) string {
	body, _ := json.Marshal(map[string]string{"path": remotePath})
	raw, status, err := u.postJSON(ctx, u.apiURL+"/2/sharing/list_shared_links", body)
	if err != nil || status != http.StatusOK {
		return ""
	}
	var decoded listLinksResponse
	if err := json.Unmarshal(raw, &decoded); err != nil || len(decoded.Links) == 0 {
		return ""
	}
	return decoded.Links[0].URL
}

func (u *Uploader) postJSON(ctx context.Context, endpoint string, body []byte) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+u.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return raw, resp.StatusCode, nil
}

// DirectLink rewrites a Dropbox shared link into a direct-download host.
func DirectLink(sharedLink string) string {
	if sharedLink == "" {
		return sharedLink
	}
	out := strings.Replace(sharedLink, "www.dropbox.com", "dl.dropboxusercontent.com", 1)
	return strings.Replace(out, "?dl=0", "", 1)
}
