package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"campaignd/internal/adapter/repo"
	"campaignd/internal/archive"
	"campaignd/internal/brand"
	"campaignd/internal/domain"
	"campaignd/internal/imaging"
	"campaignd/internal/infra"
	"campaignd/internal/obs"
	"campaignd/internal/pipeline"
	"campaignd/internal/providers/firefly"
	"campaignd/internal/queue"
	"campaignd/internal/storage"
)

const cleanupInterval = 24 * time.Hour

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)
	obs.SetAppInfo("campaignd-worker")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()
	if err := repo.EnsureSchema(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("worker: schema bootstrap failed")
	}

	rdb, err := infra.NewRedisClient(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: redis connection failed")
	}
	defer rdb.Close()

	store, err := storage.NewFileStore(cfg.StoragePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: storage init failed")
	}
	if _, err := storage.NewLibrary(cfg.UploadPath); err != nil {
		logger.Fatal().Err(err).Msg("worker: upload library init failed")
	}

	fireflyClient := firefly.NewClient(firefly.Options{
		ClientID:     cfg.FireflyClientID,
		ClientSecret: cfg.FireflyClientSecret,
		APIKey:       cfg.FireflyAPIKey,
		BaseURL:      cfg.FireflyBaseURL,
		TokenURL:     cfg.FireflyTokenURL,
		Logger:       &logger,
	})
	if !fireflyClient.HasCredentials() {
		logger.Warn().Msg("worker: firefly credentials missing, AI requests will use placeholders")
	}

	var analyzer *brand.Analyzer
	if cfg.EnableBrandValidation {
		analyzer, err = brand.NewAnalyzer(cfg.BrandColors, cfg.BrandColorTolerance, cfg.BrandComplianceThreshold)
		if err != nil {
			logger.Fatal().Err(err).Msg("worker: invalid brand palette")
		}
	}

	campaigns := repo.NewCampaignRepository(pool)
	uploader := archive.NewUploader(store, archive.Options{
		AccessToken: cfg.DropboxAccessToken,
		FolderPath:  cfg.DropboxFolderPath,
		Logger:      &logger,
	})
	orchestrator := pipeline.New(pipeline.Config{
		Repo:       campaigns,
		Store:      store,
		Acquirer:   pipeline.NewSourceResolver(store, cfg.UploadPath, fireflyClient, &logger),
		Engine:     imaging.NewEngine(store),
		Analyzer:   analyzer,
		Uploader:   uploader,
		Logger:     &logger,
		MaxRetries: cfg.MaxRetries,
		BackoffCap: cfg.RetryBackoffCap,
	})

	q := queue.NewStreamQueue(rdb, cfg.QueueStream, cfg.QueueGroup)
	if err := q.EnsureGroup(ctx); err != nil {
		logger.Fatal().Err(err).Msg("worker: queue group init failed")
	}
	consumer := queue.NewConsumer(rdb, logger, cfg.QueueStream, cfg.QueueGroup, cfg.QueueConsumer)
	consumer.SetConcurrency(4)

	go serveMetrics(cfg.WorkerMetricsPort, logger)
	go cleanupLoop(ctx, cfg, logger)

	// ACK policy: a handled outcome (completed or failed campaign, or a
	// message that cannot ever succeed) acknowledges; infrastructure errors
	// leave the message pending for redelivery.
	handler := func(ctx context.Context, campaignID string) error {
		start := time.Now()
		err := orchestrator.Process(ctx, campaignID)
		obs.RecordCampaign(start, err)
		if err == nil {
			return nil
		}
		if errors.Is(err, domain.ErrAlreadyTerminal) || errors.Is(err, domain.ErrNotFound) {
			logger.Warn().Err(err).Str("campaign_id", campaignID).Msg("worker: dropping unprocessable message")
			return queue.Terminal(err)
		}
		return err
	}

	logger.Info().
		Str("stream", cfg.QueueStream).
		Str("group", cfg.QueueGroup).
		Msg("worker: consuming campaign stream")
	if err := consumer.ConsumeLoop(ctx, handler); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
	logger.Info().Msg("worker: stopped")
}

func serveMetrics(port string, logger infra.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", obs.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if err := http.ListenAndServe(":"+port, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("worker: metrics server failed")
	}
}

func cleanupLoop(ctx context.Context, cfg *infra.Config, logger infra.Logger) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := storage.CleanupOld([]string{cfg.UploadPath, cfg.GeneratedPath}, cfg.CleanupMaxAge)
			if err != nil {
				logger.Warn().Err(err).Msg("worker: cleanup failed")
				continue
			}
			if removed > 0 {
				logger.Info().Int("removed", removed).Msg("worker: cleaned up old files")
			}
		}
	}
}
