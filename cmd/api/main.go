package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"campaignd/internal/adapter/repo"
	"campaignd/internal/archive"
	"campaignd/internal/content"
	"campaignd/internal/http/handlers"
	"campaignd/internal/http/httpapi"
	"campaignd/internal/infra"
	"campaignd/internal/obs"
	"campaignd/internal/pipeline"
	"campaignd/internal/queue"
	"campaignd/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)
	obs.SetAppInfo("campaignd-api")

	ctx := context.Background()
	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: db connection failed")
	}
	defer pool.Close()
	if err := repo.EnsureSchema(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("api: schema bootstrap failed")
	}

	rdb, err := infra.NewRedisClient(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: redis connection failed")
	}
	defer rdb.Close()

	store, err := storage.NewFileStore(cfg.StoragePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: storage init failed")
	}
	library, err := storage.NewLibrary(cfg.UploadPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: upload library init failed")
	}

	q := queue.NewStreamQueue(rdb, cfg.QueueStream, cfg.QueueGroup)
	if err := q.EnsureGroup(ctx); err != nil {
		logger.Fatal().Err(err).Msg("api: queue group init failed")
	}

	campaigns := repo.NewCampaignRepository(pool)
	uploader := archive.NewUploader(store, archive.Options{
		AccessToken: cfg.DropboxAccessToken,
		FolderPath:  cfg.DropboxFolderPath,
		Logger:      &logger,
	})
	// The API only needs the on-demand archive trigger from the orchestrator.
	archiver := pipeline.New(pipeline.Config{
		Repo:     campaigns,
		Store:    store,
		Uploader: uploader,
		Logger:   &logger,
	})

	var checker *content.Checker
	if cfg.EnableContentValidation {
		checker = content.NewChecker(cfg.ProhibitedWords)
	}

	app := &handlers.App{
		Repo:           campaigns,
		Queue:          q,
		Store:          store,
		Library:        library,
		Checker:        checker,
		ContentEnabled: cfg.EnableContentValidation,
		Archiver:       archiver,
		Logger:         &logger,
	}
	router := httpapi.NewRouter(app, httpapi.Options{
		BasicAuthUsername: cfg.BasicAuthUsername,
		BasicAuthPassword: cfg.BasicAuthPassword,
		AllowedOrigins:    cfg.AllowedOrigins,
	})
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("api: http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api: shutdown failed")
	}
	logger.Info().Msg("api: stopped")
}
