package handlers

import (
	"net/http"

	"campaignd/internal/domain"
)

type statusBucket struct {
	Count        int `json:"count"`
	AIGenerated  int `json:"ai_generated"`
	LocalUploads int `json:"local_uploads"`
}

// AssetReport aggregates campaign counts by status and image source type.
func (a *App) AssetReport(w http.ResponseWriter, r *http.Request) {
	const page = 200
	var campaigns []domain.Campaign
	for offset := 0; ; offset += page {
		batch, err := a.Repo.List(r.Context(), domain.ListFilter{Offset: offset, Limit: page})
		if err != nil {
			a.Logger.Error().Err(err).Msg("handlers: asset report failed")
			a.error(w, http.StatusInternalServerError, "failed to generate asset report")
			return
		}
		campaigns = append(campaigns, batch...)
		if len(batch) < page {
			break
		}
	}

	var aiGenerated, localUploads int
	byStatus := map[string]*statusBucket{}
	for i := range campaigns {
		c := &campaigns[i]
		bucket := byStatus[string(c.Status)]
		if bucket == nil {
			bucket = &statusBucket{}
			byStatus[string(c.Status)] = bucket
		}
		bucket.Count++
		switch c.ImageSource.Type {
		case domain.ImageSourceAIGenerated:
			aiGenerated++
			bucket.AIGenerated++
		case domain.ImageSourceLocal:
			localUploads++
			bucket.LocalUploads++
		}
	}

	a.json(w, http.StatusOK, map[string]any{
		"total_campaigns": len(campaigns),
		"ai_generated":    aiGenerated,
		"local_uploads":   localUploads,
		"by_status":       byStatus,
	})
}
