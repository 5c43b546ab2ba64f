package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"campaignd/internal/content"
	"campaignd/internal/domain"
	"campaignd/pkg/zip"
)

var marketingChannels = map[string]struct{}{
	"social_media": {}, "email": {}, "display_ads": {}, "search_ads": {},
	"content_marketing": {}, "video_marketing": {}, "influencer": {},
	"print": {}, "outdoor": {}, "direct_mail": {}, "events": {}, "other": {},
}

type productItem struct {
	SKU   string  `json:"sku"`
	Price float64 `json:"price"`
}

type imageMetadata struct {
	SourceType string `json:"source_type"`
	SourcePath string `json:"source_path,omitempty"`
	AIPrompt   string `json:"ai_prompt,omitempty"`
}

type createCampaignRequest struct {
	Description         string         `json:"description"`
	TargetMarket        string         `json:"target_market"`
	CampaignMessage     string         `json:"campaign_message"`
	ProductsDescription string         `json:"products_description"`
	MarketingChannel    string         `json:"marketing_channel,omitempty"`
	Products            []productItem  `json:"products"`
	ItemMetadata        map[string]any `json:"item_metadata,omitempty"`
	ImageMetadata       imageMetadata  `json:"image_metadata"`
	GenerateByAI        bool           `json:"generate_by_ai,omitempty"`
	AutoUploadToDropbox bool           `json:"auto_upload_to_dropbox,omitempty"`
}

func (req *createCampaignRequest) validate() error {
	required := map[string]string{
		"description":          req.Description,
		"target_market":        req.TargetMarket,
		"campaign_message":     req.CampaignMessage,
		"products_description": req.ProductsDescription,
	}
	for field, value := range required {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("%s is required", field)
		}
	}
	if len(req.Products) == 0 {
		return errors.New("at least one product is required")
	}
	for i, p := range req.Products {
		if strings.TrimSpace(p.SKU) == "" {
			return fmt.Errorf("products[%d].sku is required", i)
		}
		if p.Price <= 0 {
			return fmt.Errorf("products[%d].price must be greater than 0", i)
		}
	}
	if ch := strings.TrimSpace(req.MarketingChannel); ch != "" {
		if _, ok := marketingChannels[ch]; !ok {
			return fmt.Errorf("invalid marketing_channel %q", ch)
		}
	}

	switch domain.ImageSourceType(req.ImageMetadata.SourceType) {
	case domain.ImageSourceLocal:
		if strings.TrimSpace(req.ImageMetadata.SourcePath) == "" {
			return errors.New("image_metadata.source_path is required for local images")
		}
	case domain.ImageSourceAIGenerated:
		if strings.TrimSpace(req.ImageMetadata.AIPrompt) == "" {
			return errors.New("image_metadata.ai_prompt is required for ai_generated images")
		}
	default:
		return fmt.Errorf("image_metadata.source_type must be %q or %q",
			domain.ImageSourceLocal, domain.ImageSourceAIGenerated)
	}

	if langs, ok := req.ItemMetadata["languages"]; ok {
		raw, isList := langs.([]any)
		if !isList {
			return errors.New("item_metadata.languages must be a list of language codes")
		}
		normalized, err := content.NormalizeLanguages(raw)
		if err != nil {
			return fmt.Errorf("item_metadata.languages: %v", err)
		}
		req.ItemMetadata["languages"] = normalized
	}
	return nil
}

// CreateCampaign validates the request, runs the content policy check and
// enqueues the new campaign for processing. Responds 202 on acceptance.
func (a *App) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var req createCampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := req.validate(); err != nil {
		a.error(w, http.StatusBadRequest, err.Error())
		return
	}

	contentVal := domain.ContentValidation{
		Status:  domain.ValidationSkipped,
		Message: "content validation is disabled",
	}
	if a.ContentEnabled && a.Checker != nil {
		report := a.Checker.CheckFields(map[string]string{
			"description":          req.Description,
			"target_market":        req.TargetMarket,
			"campaign_message":     req.CampaignMessage,
			"products_description": req.ProductsDescription,
		})
		if !report.Valid {
			a.json(w, http.StatusBadRequest, map[string]any{
				"detail":     report.Message,
				"violations": report.Violations,
			})
			return
		}
		contentVal = domain.ContentValidation{
			Status:  domain.ValidationPassed,
			Message: "content validation passed - no prohibited words found",
		}
	}

	products := make([]domain.Product, 0, len(req.Products))
	for _, p := range req.Products {
		products = append(products, domain.Product{SKU: strings.TrimSpace(p.SKU), Price: p.Price})
	}

	c := &domain.Campaign{
		ID:                  uuid.NewString(),
		Description:         req.Description,
		TargetMarket:        req.TargetMarket,
		Message:             req.CampaignMessage,
		ProductsDescription: req.ProductsDescription,
		MarketingChannel:    strings.TrimSpace(req.MarketingChannel),
		Products:            products,
		Metadata:            req.ItemMetadata,
		ImageSource: domain.ImageSource{
			Type:       domain.ImageSourceType(req.ImageMetadata.SourceType),
			SourcePath: strings.TrimSpace(req.ImageMetadata.SourcePath),
			AIPrompt:   strings.TrimSpace(req.ImageMetadata.AIPrompt),
		},
		Status:            domain.StatusPending,
		ContentValidation: contentVal,
		Archive:           domain.ArchiveState{Requested: req.AutoUploadToDropbox},
	}

	if err := a.Repo.Create(r.Context(), c); err != nil {
		a.Logger.Error().Err(err).Msg("handlers: create campaign failed")
		a.error(w, http.StatusInternalServerError, "failed to create campaign")
		return
	}
	if err := a.Queue.Enqueue(r.Context(), c.ID); err != nil {
		a.Logger.Error().Err(err).Str("campaign_id", c.ID).Msg("handlers: enqueue failed")
		a.error(w, http.StatusInternalServerError, "failed to enqueue campaign for processing")
		return
	}

	a.json(w, http.StatusAccepted, map[string]string{
		"id":      c.ID,
		"status":  string(c.Status),
		"message": "Campaign creation initiated. Processing asynchronously.",
	})
}

// GetCampaign returns one campaign by id.
func (a *App) GetCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	c, err := a.Repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, fmt.Sprintf("campaign %s not found", id))
			return
		}
		a.Logger.Error().Err(err).Str("campaign_id", id).Msg("handlers: get campaign failed")
		a.error(w, http.StatusInternalServerError, "failed to load campaign")
		return
	}
	a.json(w, http.StatusOK, campaignResponse(c))
}

// ListCampaigns returns campaigns newest first with optional status filter
// and skip/limit pagination.
func (a *App) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	filter := domain.ListFilter{Limit: 100}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			a.error(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = n
	}
	if v := r.URL.Query().Get("skip"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			a.error(w, http.StatusBadRequest, "invalid skip")
			return
		}
		filter.Offset = n
	}
	if v := r.URL.Query().Get("status_filter"); v != "" {
		status, ok := domain.ParseStatus(v)
		if !ok {
			a.error(w, http.StatusBadRequest, fmt.Sprintf("invalid status filter: %s", v))
			return
		}
		filter.Status = &status
	}

	campaigns, err := a.Repo.List(r.Context(), filter)
	if err != nil {
		a.Logger.Error().Err(err).Msg("handlers: list campaigns failed")
		a.error(w, http.StatusInternalServerError, "failed to list campaigns")
		return
	}
	out := make([]map[string]any, 0, len(campaigns))
	for i := range campaigns {
		out = append(out, campaignResponse(&campaigns[i]))
	}
	a.json(w, http.StatusOK, out)
}

// ArchiveCampaign triggers the on-demand Dropbox upload for a completed
// campaign. Idempotent: an already fully uploaded campaign returns its links.
func (a *App) ArchiveCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	state, err := a.Archiver.Archive(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			a.error(w, http.StatusNotFound, fmt.Sprintf("campaign %s not found", id))
		case errors.Is(err, domain.ErrNotCompleted):
			a.error(w, http.StatusConflict, "campaign is not completed yet")
		case errors.Is(err, domain.ErrNoVariants):
			a.error(w, http.StatusConflict, "campaign has no processed variants")
		default:
			a.Logger.Error().Err(err).Str("campaign_id", id).Msg("handlers: archive failed")
			a.error(w, http.StatusBadGateway, "archive upload failed: "+err.Error())
		}
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"campaign_id": id,
		"uploaded":    state.Uploaded,
		"links":       state.Links,
	})
}

// DownloadVariants streams all processed variants as one zip archive.
func (a *App) DownloadVariants(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	c, err := a.Repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, fmt.Sprintf("campaign %s not found", id))
			return
		}
		a.error(w, http.StatusInternalServerError, "failed to load campaign")
		return
	}
	if c.Status != domain.StatusCompleted || len(c.Variants) == 0 {
		a.error(w, http.StatusConflict, "campaign has no processed variants")
		return
	}

	keys := make([]string, 0, len(c.Variants))
	for k := range c.Variants {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	assets := make([]zip.Asset, 0, len(keys))
	for _, ratioKey := range keys {
		f, err := a.Store.Open(c.Variants[ratioKey])
		if err != nil {
			a.error(w, http.StatusInternalServerError, "variant file missing: "+ratioKey)
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			a.error(w, http.StatusInternalServerError, "failed to read variant: "+ratioKey)
			return
		}
		assets = append(assets, zip.Asset{
			Filename: path.Base(c.Variants[ratioKey]),
			MIME:     "image/jpeg",
			Data:     data,
		})
	}

	payload, err := zip.ArchiveAssets(assets)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "failed to build archive")
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", id+"_variants.zip"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

func campaignResponse(c *domain.Campaign) map[string]any {
	resp := map[string]any{
		"id":                         c.ID,
		"description":                c.Description,
		"target_market":              c.TargetMarket,
		"campaign_message":           c.Message,
		"products_description":       c.ProductsDescription,
		"marketing_channel":          c.MarketingChannel,
		"products":                   c.Products,
		"item_metadata":              c.Metadata,
		"image_metadata":             c.ImageSource,
		"status":                     string(c.Status),
		"processed_images":           c.Variants,
		"error_message":              c.ErrorMessage,
		"content_validation_status":  string(c.ContentValidation.Status),
		"content_validation_message": c.ContentValidation.Message,
		"created_at":                 c.CreatedAt.Format(time.RFC3339),
		"updated_at":                 c.UpdatedAt.Format(time.RFC3339),
	}
	if c.CompletedAt != nil {
		resp["completed_at"] = c.CompletedAt.Format(time.RFC3339)
	}
	if c.BrandValidation.Status != "" {
		brand := map[string]any{
			"status":  string(c.BrandValidation.Status),
			"message": c.BrandValidation.Message,
		}
		if len(c.BrandValidation.Details) > 0 {
			var details any
			if err := json.Unmarshal(c.BrandValidation.Details, &details); err == nil {
				brand["details"] = details
			}
		}
		resp["brand_validation"] = brand
	}
	if c.Archive.Requested || c.Archive.Uploaded {
		resp["dropbox_uploaded"] = c.Archive.Uploaded
		resp["dropbox_links"] = c.Archive.Links
	}
	return resp
}
