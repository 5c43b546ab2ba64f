// Package firefly is an HTTP client for the Adobe Firefly text-to-image API.
package firefly

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"campaignd/internal/infra"
)

// ErrMissingCredentials indicates that the client was configured without the
// client id or api key and cannot perform remote calls.
var ErrMissingCredentials = errors.New("firefly: api credentials not configured")

const (
	defaultBaseURL  = "https://firefly-api.adobe.io"
	defaultTokenURL = "https://ims-na1.adobelogin.com/ims/token/v3"
	tokenScope      = "openid,AdobeID,firefly_api"

	// Tokens are refreshed this long before their reported expiry.
	tokenExpiryMargin = 5 * time.Minute
)

// Options configures the Firefly client.
type Options struct {
	ClientID       string
	ClientSecret   string
	APIKey         string
	BaseURL        string
	TokenURL       string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client performs OAuth token exchange and image generation against the
// Firefly API.
type Client struct {
	clientID     string
	clientSecret string
	apiKey       string
	baseURL      string
	tokenURL     string
	httpClient   *http.Client
	logger       *infra.Logger

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// ImageRequest captures the inputs for a single generation call.
type ImageRequest struct {
	Prompt string
	Width  int
	Height int
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

type generateRequest struct {
	Prompt       string         `json:"prompt"`
	N            int            `json:"n"`
	Size         generateSize   `json:"size"`
	ContentClass string         `json:"contentClass"`
	Styles       generateStyles `json:"styles"`
}

type generateSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type generateStyles struct {
	Presets []string `json:"presets"`
}

type generateResponse struct {
	Outputs []struct {
		Image struct {
			PresignedURL string `json:"presignedUrl"`
		} `json:"image"`
	} `json:"outputs"`
}

type errorResponse struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 120 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	tokenURL := strings.TrimSpace(opts.TokenURL)
	if tokenURL == "" {
		tokenURL = defaultTokenURL
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Client{
		clientID:     strings.TrimSpace(opts.ClientID),
		clientSecret: strings.TrimSpace(opts.ClientSecret),
		apiKey:       strings.TrimSpace(opts.APIKey),
		baseURL:      baseURL,
		tokenURL:     tokenURL,
		httpClient:   httpClient,
		logger:       logger,
	}
}

// HasCredentials reports whether the client can perform remote calls.
func (c *Client) HasCredentials() bool {
	return c != nil && c.clientID != "" && c.apiKey != ""
}

// accessTokenFor returns a cached token or exchanges client credentials for a
// fresh one.
func (c *Client) accessTokenFor(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)
	form.Set("scope", tokenScope)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("firefly: build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("firefly: token request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("firefly: read token response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("firefly: token status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var decoded tokenResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("firefly: decode token response: %w", err)
	}
	if decoded.AccessToken == "" {
		return "", errors.New("firefly: empty access token")
	}
	expiresIn := decoded.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 3600
	}
	c.accessToken = decoded.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(expiresIn)*time.Second - tokenExpiryMargin)
	return c.accessToken, nil
}

// GenerateImage invokes the generation endpoint once and returns the raw
// bytes of the first output image.
func (c *Client) GenerateImage(ctx context.Context, req ImageRequest) ([]byte, error) {
	if !c.HasCredentials() {
		return nil, ErrMissingCredentials
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, errors.New("firefly: prompt is required")
	}
	width, height := req.Width, req.Height
	if width <= 0 {
		width = 2048
	}
	if height <= 0 {
		height = 2048
	}

	token, err := c.accessTokenFor(ctx)
	if err != nil {
		return nil, err
	}

	payload := generateRequest{
		Prompt:       prompt,
		N:            1,
		Size:         generateSize{Width: width, Height: height},
		ContentClass: "photo",
		Styles:       generateStyles{Presets: []string{"photo", "professional"}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("firefly: encode request: %w", err)
	}

	endpoint := c.baseURL + "/v2/images/generate"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("firefly: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("firefly: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("firefly: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var detail errorResponse
		if err := json.Unmarshal(raw, &detail); err == nil && detail.Message != "" {
			return nil, fmt.Errorf("firefly: %s (%s)", detail.Message, detail.ErrorCode)
		}
		return nil, fmt.Errorf("firefly: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var decoded generateResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("firefly: decode response: %w", err)
	}
	if len(decoded.Outputs) == 0 || decoded.Outputs[0].Image.PresignedURL == "" {
		return nil, errors.New("firefly: no image in response")
	}

	data, err := c.download(ctx, decoded.Outputs[0].Image.PresignedURL)
	if err != nil {
		return nil, err
	}
	c.logger.Debug().
		Int("width", width).
		Int("height", height).
		Int("bytes", len(data)).
		Msg("firefly: generated image")
	return data, nil
}

func (c *Client) download(ctx context.Context, imageURL string) ([]byte, error) {
	parsed, err := url.Parse(strings.TrimSpace(imageURL))
	if err != nil || parsed.Scheme == "" {
		return nil, fmt.Errorf("firefly: invalid image url: %s", imageURL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("firefly: build download request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("firefly: download image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("firefly: download status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("firefly: read image: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("firefly: empty image payload")
	}
	return data, nil
}
