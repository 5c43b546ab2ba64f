// Package httpapi assembles the chi router for the campaign API.
package httpapi

import (
	stdhttp "net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"campaignd/internal/http/handlers"
	"campaignd/internal/middleware"
	"campaignd/internal/obs"
)

// Options tunes router-level policies.
type Options struct {
	BasicAuthUsername string
	BasicAuthPassword string
	AllowedOrigins    []string
}

// NewRouter wires middleware and routes around the handler set.
func NewRouter(app *handlers.App, opts Options) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP, chimw.Recoverer)
	r.Use(middleware.RequestID)
	if app.Logger != nil {
		r.Use(middleware.Logger(*app.Logger))
	}
	r.Use(obs.MetricsMiddleware)
	if len(opts.AllowedOrigins) > 0 {
		r.Use(middleware.CORS(opts.AllowedOrigins))
	}

	r.Get("/", app.Root)
	r.Get("/health", app.Health)
	r.Handle("/metrics", obs.Handler())

	// Generated and uploaded files, read-only.
	r.Get("/storage/*", app.StorageFile)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.BasicAuth(opts.BasicAuthUsername, opts.BasicAuthPassword))

		r.Route("/campaigns", func(r chi.Router) {
			r.With(middleware.RateLimit(30, time.Minute)).Post("/", app.CreateCampaign)
			r.Get("/", app.ListCampaigns)
			r.Get("/{id}", app.GetCampaign)
			r.Post("/{id}/archive", app.ArchiveCampaign)
			r.Get("/{id}/variants.zip", app.DownloadVariants)
		})

		r.Route("/images", func(r chi.Router) {
			r.Post("/", app.UploadImage)
			r.Get("/", app.ListImages)
			r.Get("/{filename}", app.GetImage)
			r.Get("/{filename}/thumbnail", app.GetImageThumbnail)
		})

		r.Get("/reports/assets", app.AssetReport)
	})

	return r
}
