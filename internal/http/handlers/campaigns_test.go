package handlers

import (
	archivezip "archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"campaignd/internal/content"
	"campaignd/internal/domain"
	"campaignd/internal/infra"
	"campaignd/internal/storage"
)

type memRepo struct {
	campaigns map[string]*domain.Campaign
	createErr error
	listed    []domain.Campaign
}

func newMemRepo() *memRepo { return &memRepo{campaigns: map[string]*domain.Campaign{}} }

func (r *memRepo) Create(ctx context.Context, c *domain.Campaign) error {
	if r.createErr != nil {
		return r.createErr
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	r.campaigns[c.ID] = c
	return nil
}

func (r *memRepo) GetByID(ctx context.Context, id string) (*domain.Campaign, error) {
	c, ok := r.campaigns[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return c, nil
}

func (r *memRepo) List(ctx context.Context, filter domain.ListFilter) ([]domain.Campaign, error) {
	return r.listed, nil
}

func (r *memRepo) SetProcessing(ctx context.Context, id string) error { return nil }
func (r *memRepo) SetImageSource(ctx context.Context, id string, src domain.ImageSource) error {
	return nil
}
func (r *memRepo) SetRetryMessage(ctx context.Context, id, msg string) error { return nil }
func (r *memRepo) SetCompleted(ctx context.Context, id string, variants map[string]string, bv domain.BrandValidation) error {
	return nil
}
func (r *memRepo) SetFailed(ctx context.Context, id, msg string) error { return nil }
func (r *memRepo) SetArchiveResult(ctx context.Context, id string, archive domain.ArchiveState) error {
	return nil
}

type memQueue struct {
	enqueued []string
	err      error
}

func (q *memQueue) Enqueue(ctx context.Context, campaignID string) error {
	if q.err != nil {
		return q.err
	}
	q.enqueued = append(q.enqueued, campaignID)
	return nil
}

type stubArchiver struct {
	state domain.ArchiveState
	err   error
}

func (a *stubArchiver) Archive(ctx context.Context, id string) (domain.ArchiveState, error) {
	return a.state, a.err
}

func newTestApp(t *testing.T) (*App, *memRepo, *memQueue) {
	t.Helper()
	repo := newMemRepo()
	q := &memQueue{}
	store, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	discard := infra.Logger(zerolog.New(io.Discard))
	return &App{
		Repo:   repo,
		Queue:  q,
		Store:  store,
		Logger: &discard,
	}, repo, q
}

func testRouter(app *App) http.Handler {
	r := chi.NewRouter()
	r.Post("/api/campaigns", app.CreateCampaign)
	r.Get("/api/campaigns", app.ListCampaigns)
	r.Get("/api/campaigns/{id}", app.GetCampaign)
	r.Post("/api/campaigns/{id}/archive", app.ArchiveCampaign)
	r.Get("/api/campaigns/{id}/variants.zip", app.DownloadVariants)
	return r
}

func validPayload() map[string]any {
	return map[string]any{
		"description":          "Summer launch for new sneakers",
		"target_market":        "young urban adults",
		"campaign_message":     "Step into summer",
		"products_description": "Lightweight canvas sneakers",
		"marketing_channel":    "social_media",
		"products":             []map[string]any{{"sku": "SNK-001", "price": 59.9}},
		"image_metadata": map[string]any{
			"source_type": "local",
			"source_path": "sneaker.jpg",
		},
	}
}

func postJSON(t *testing.T, h http.Handler, url string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v (%s)", err, rec.Body.String())
	}
	return out
}

func TestCreateCampaignAccepted(t *testing.T) {
	app, repo, q := newTestApp(t)
	h := testRouter(app)

	rec := postJSON(t, h, "/api/campaigns", validPayload())
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	id, _ := body["id"].(string)
	if id == "" {
		t.Fatalf("no id in response: %v", body)
	}
	if body["status"] != "pending" {
		t.Errorf("status = %v", body["status"])
	}
	if len(q.enqueued) != 1 || q.enqueued[0] != id {
		t.Errorf("enqueued = %v", q.enqueued)
	}
	c, ok := repo.campaigns[id]
	if !ok {
		t.Fatal("campaign not persisted")
	}
	if c.ImageSource.Type != domain.ImageSourceLocal || c.ImageSource.SourcePath != "sneaker.jpg" {
		t.Errorf("image source = %+v", c.ImageSource)
	}
	if c.ContentValidation.Status != domain.ValidationSkipped {
		t.Errorf("content validation = %+v (checker disabled)", c.ContentValidation)
	}
}

func TestCreateCampaignProhibitedWords(t *testing.T) {
	app, _, q := newTestApp(t)
	app.Checker = content.NewChecker([]string{"spam", "scam"})
	app.ContentEnabled = true
	h := testRouter(app)

	payload := validPayload()
	payload["description"] = "This spam offer ends soon"
	rec := postJSON(t, h, "/api/campaigns", payload)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	detail, _ := body["detail"].(string)
	if !strings.Contains(detail, "prohibited words found") {
		t.Errorf("detail = %q", detail)
	}
	if body["violations"] == nil {
		t.Error("violations missing from response")
	}
	if len(q.enqueued) != 0 {
		t.Errorf("rejected campaign was enqueued: %v", q.enqueued)
	}
}

func TestCreateCampaignCleanContentPasses(t *testing.T) {
	app, repo, _ := newTestApp(t)
	app.Checker = content.NewChecker([]string{"spam"})
	app.ContentEnabled = true
	h := testRouter(app)

	rec := postJSON(t, h, "/api/campaigns", validPayload())
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	c := repo.campaigns[body["id"].(string)]
	if c.ContentValidation.Status != domain.ValidationPassed {
		t.Errorf("content validation = %+v", c.ContentValidation)
	}
}

func TestCreateCampaignValidationErrors(t *testing.T) {
	app, _, _ := newTestApp(t)
	h := testRouter(app)

	mutate := func(fn func(map[string]any)) map[string]any {
		p := validPayload()
		fn(p)
		return p
	}
	cases := []struct {
		name    string
		payload map[string]any
		detail  string
	}{
		{"missing description", mutate(func(p map[string]any) { p["description"] = " " }), "description is required"},
		{"no products", mutate(func(p map[string]any) { p["products"] = []map[string]any{} }), "at least one product"},
		{"zero price", mutate(func(p map[string]any) {
			p["products"] = []map[string]any{{"sku": "A", "price": 0}}
		}), "price must be greater than 0"},
		{"bad channel", mutate(func(p map[string]any) { p["marketing_channel"] = "telepathy" }), "invalid marketing_channel"},
		{"bad source type", mutate(func(p map[string]any) {
			p["image_metadata"] = map[string]any{"source_type": "url"}
		}), "source_type"},
		{"local without path", mutate(func(p map[string]any) {
			p["image_metadata"] = map[string]any{"source_type": "local"}
		}), "source_path is required"},
		{"ai without prompt", mutate(func(p map[string]any) {
			p["image_metadata"] = map[string]any{"source_type": "ai_generated"}
		}), "ai_prompt is required"},
		{"bad language", mutate(func(p map[string]any) {
			p["item_metadata"] = map[string]any{"languages": []string{"notalang"}}
		}), "languages"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := postJSON(t, h, "/api/campaigns", tc.payload)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
			}
			if detail := decodeBody(t, rec)["detail"].(string); !strings.Contains(detail, tc.detail) {
				t.Errorf("detail = %q, want substring %q", detail, tc.detail)
			}
		})
	}
}

func TestGetCampaign(t *testing.T) {
	app, repo, _ := newTestApp(t)
	h := testRouter(app)
	now := time.Now().UTC()
	repo.campaigns["c1"] = &domain.Campaign{
		ID:          "c1",
		Description: "desc",
		Status:      domain.StatusCompleted,
		Variants:    map[string]string{"ratio_1_1": "generated/c1/1_1/a.jpg"},
		BrandValidation: domain.BrandValidation{
			Status:  domain.ValidationPassed,
			Message: "ok",
			Details: []byte(`{"percentage": 88.5}`),
		},
		CreatedAt:   now,
		UpdatedAt:   now,
		CompletedAt: &now,
	}

	req := httptest.NewRequest(http.MethodGet, "/api/campaigns/c1", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["status"] != "completed" {
		t.Errorf("status = %v", body["status"])
	}
	bv, _ := body["brand_validation"].(map[string]any)
	if bv == nil || bv["status"] != "passed" {
		t.Errorf("brand_validation = %v", body["brand_validation"])
	}
	if details, _ := bv["details"].(map[string]any); details["percentage"] != 88.5 {
		t.Errorf("details = %v", bv["details"])
	}
}

func TestGetCampaignNotFound(t *testing.T) {
	app, _, _ := newTestApp(t)
	h := testRouter(app)

	req := httptest.NewRequest(http.MethodGet, "/api/campaigns/ghost", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestListCampaignsInvalidStatusFilter(t *testing.T) {
	app, _, _ := newTestApp(t)
	h := testRouter(app)

	req := httptest.NewRequest(http.MethodGet, "/api/campaigns?status_filter=bogus", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestArchiveCampaignStatusMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"not found", domain.ErrNotFound, http.StatusNotFound},
		{"not completed", domain.ErrNotCompleted, http.StatusConflict},
		{"no variants", domain.ErrNoVariants, http.StatusConflict},
		{"upstream failure", errors.New("dropbox down"), http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app, _, _ := newTestApp(t)
			app.Archiver = &stubArchiver{err: tc.err}
			h := testRouter(app)

			rec := postJSON(t, h, "/api/campaigns/c1/archive", nil)
			if rec.Code != tc.code {
				t.Fatalf("status = %d, want %d", rec.Code, tc.code)
			}
		})
	}
}

func TestArchiveCampaignSuccess(t *testing.T) {
	app, _, _ := newTestApp(t)
	app.Archiver = &stubArchiver{state: domain.ArchiveState{
		Requested: true,
		Uploaded:  true,
		Links:     map[string]domain.ArchiveLink{"ratio_1_1": {Success: true, SharedLink: "https://dropbox/x"}},
	}}
	h := testRouter(app)

	rec := postJSON(t, h, "/api/campaigns/c1/archive", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["uploaded"] != true {
		t.Errorf("uploaded = %v", body["uploaded"])
	}
}

func TestDownloadVariantsZip(t *testing.T) {
	app, repo, _ := newTestApp(t)
	h := testRouter(app)

	variants := map[string]string{}
	for _, ratio := range []string{"1_1", "9_16", "16_9"} {
		key := "generated/c1/" + ratio + "/c1_" + ratio + ".jpg"
		if _, err := app.Store.Write(context.Background(), key, []byte("jpeg-"+ratio)); err != nil {
			t.Fatalf("seed variant: %v", err)
		}
		variants["ratio_"+ratio] = key
	}
	now := time.Now().UTC()
	repo.campaigns["c1"] = &domain.Campaign{
		ID: "c1", Status: domain.StatusCompleted, Variants: variants,
		CreatedAt: now, UpdatedAt: now,
	}

	req := httptest.NewRequest(http.MethodGet, "/api/campaigns/c1/variants.zip", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/zip" {
		t.Errorf("content type = %q", ct)
	}
	zr, err := archivezip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len()))
	if err != nil {
		t.Fatalf("open zip: %v", err)
	}
	if len(zr.File) != 3 {
		t.Fatalf("zip entries = %d", len(zr.File))
	}
}

func TestDownloadVariantsNotReady(t *testing.T) {
	app, repo, _ := newTestApp(t)
	h := testRouter(app)
	repo.campaigns["c1"] = &domain.Campaign{ID: "c1", Status: domain.StatusProcessing}

	req := httptest.NewRequest(http.MethodGet, "/api/campaigns/c1/variants.zip", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d", rec.Code)
	}
}
