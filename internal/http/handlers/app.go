// Package handlers contains the HTTP request handlers for the campaign API.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"campaignd/internal/content"
	"campaignd/internal/domain"
	"campaignd/internal/infra"
	"campaignd/internal/queue"
	"campaignd/internal/storage"
)

// Archiver triggers the on-demand archive upload for a completed campaign.
// *pipeline.Orchestrator satisfies it.
type Archiver interface {
	Archive(ctx context.Context, id string) (domain.ArchiveState, error)
}

// App bundles the handlers' dependencies.
type App struct {
	Repo           domain.CampaignRepository
	Queue          queue.Enqueuer
	Store          *storage.FileStore
	Library        *storage.Library
	Checker        *content.Checker
	ContentEnabled bool
	Archiver       Archiver
	Logger         *infra.Logger
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, msg string) {
	a.json(w, code, map[string]string{"detail": msg})
}

// Health reports liveness.
func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]string{"status": "healthy", "service": "campaignd"})
}

// Root names the service.
func (a *App) Root(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]string{
		"service": "Marketing Campaign API",
		"version": "1.0.0",
	})
}
