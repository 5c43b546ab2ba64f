package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"campaignd/internal/brand"
	"campaignd/internal/domain"
	"campaignd/internal/infra"
	"campaignd/internal/obs"
	"campaignd/internal/storage"
)

// Acquirer resolves a campaign's source image. *SourceResolver satisfies it.
type Acquirer interface {
	Acquire(ctx context.Context, c *domain.Campaign) (*Acquired, error)
}

// VariantEngine derives the ratio variants from a source image.
type VariantEngine interface {
	CreateVariants(ctx context.Context, srcPath, campaignID, skuKey string) (map[string]string, error)
}

// BrandAnalyzer scores an image against the brand palette.
type BrandAnalyzer interface {
	Enabled() bool
	AnalyzeFile(path string) (*brand.Result, error)
}

// ArchiveUploader mirrors variants to the backup backend.
type ArchiveUploader interface {
	Configured() bool
	UploadVariants(ctx context.Context, campaignID string, variants map[string]string) (domain.ArchiveState, error)
}

// Config wires the orchestrator's collaborators.
type Config struct {
	Repo     domain.CampaignRepository
	Store    *storage.FileStore
	Acquirer Acquirer
	Engine   VariantEngine
	Analyzer BrandAnalyzer
	Uploader ArchiveUploader
	Logger   *infra.Logger

	// MaxRetries bounds additional attempts after the first; only transient
	// failures consume them.
	MaxRetries int
	// BackoffCap limits the exponential backoff between attempts.
	BackoffCap time.Duration
}

// Orchestrator owns the campaign state machine. Process drives one campaign
// from pending to a terminal state, retrying transient failures in place.
type Orchestrator struct {
	repo     domain.CampaignRepository
	store    *storage.FileStore
	acquirer Acquirer
	engine   VariantEngine
	analyzer BrandAnalyzer
	uploader ArchiveUploader
	logger   *infra.Logger

	maxRetries int
	backoffCap time.Duration

	// sleep is injectable so retry tests do not wait out real backoff.
	sleep func(ctx context.Context, d time.Duration) error
}

// New builds an orchestrator with defaults applied.
func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	backoffCap := cfg.BackoffCap
	if backoffCap <= 0 {
		backoffCap = 600 * time.Second
	}
	return &Orchestrator{
		repo:       cfg.Repo,
		store:      cfg.Store,
		acquirer:   cfg.Acquirer,
		engine:     cfg.Engine,
		analyzer:   cfg.Analyzer,
		uploader:   cfg.Uploader,
		logger:     logger,
		maxRetries: maxRetries,
		backoffCap: backoffCap,
		sleep:      ctxSleep,
	}
}

// Process runs one campaign to a terminal state. It returns nil when the
// campaign reached completed or failed (both are handled outcomes),
// domain.ErrAlreadyTerminal when asked to re-run a finished campaign, and a
// plain error only when infrastructure prevented reaching any outcome, in
// which case redelivery is the right response.
func (o *Orchestrator) Process(ctx context.Context, id string) error {
	c, err := o.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			o.logger.Error().Str("campaign_id", id).Msg("pipeline: campaign not found")
			return domain.ErrNotFound
		}
		return fmt.Errorf("pipeline: load campaign: %w", err)
	}
	if c.Status.Terminal() {
		return domain.ErrAlreadyTerminal
	}

	attempts := o.maxRetries + 1
	for attempt := 0; ; attempt++ {
		err := o.runAttempt(ctx, id, attempt)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if KindOf(err) == KindNonRetryable {
			o.logger.Error().Err(err).Str("campaign_id", id).Msg("pipeline: permanent failure")
			return o.fail(ctx, id, fmt.Sprintf("permanent error: %v", err))
		}

		if attempt+1 >= attempts {
			o.logger.Error().Err(err).Str("campaign_id", id).Int("attempts", attempts).
				Msg("pipeline: retries exhausted")
			return o.fail(ctx, id, fmt.Sprintf("failed after %d attempts: %v", attempts, err))
		}

		// The campaign stays in processing; the attempt counter lives in the
		// error message.
		obs.RecordRetry()
		retryMsg := fmt.Sprintf("Retry %d/%d: %v", attempt+1, attempts, err)
		if msgErr := o.repo.SetRetryMessage(ctx, id, retryMsg); msgErr != nil {
			o.logger.Error().Err(msgErr).Str("campaign_id", id).Msg("pipeline: record retry message failed")
		}
		delay := backoffDelay(attempt, o.backoffCap)
		o.logger.Warn().Err(err).Str("campaign_id", id).
			Int("attempt", attempt+1).Dur("backoff", delay).
			Msg("pipeline: transient failure, retrying")
		if sleepErr := o.sleep(ctx, delay); sleepErr != nil {
			return sleepErr
		}
	}
}

func (o *Orchestrator) runAttempt(ctx context.Context, id string, attempt int) error {
	c, err := o.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return NonRetryablef("campaign %s not found", id)
		}
		return Retryable(fmt.Errorf("load campaign: %w", err))
	}
	if c.Status.Terminal() {
		// Another worker finished it between attempts.
		return nil
	}
	if err := o.repo.SetProcessing(ctx, id); err != nil {
		return Retryable(fmt.Errorf("mark processing: %w", err))
	}
	if attempt > 0 {
		o.logger.Info().Str("campaign_id", id).Int("attempt", attempt+1).Msg("pipeline: reprocessing campaign")
	} else {
		o.logger.Info().Str("campaign_id", id).Msg("pipeline: processing campaign")
	}

	acq, err := o.acquirer.Acquire(ctx, c)
	if err != nil {
		return err
	}
	// Persist the generated image location before transforming so a later
	// retry reuses it instead of regenerating.
	if acq.GeneratedKey != "" && acq.GeneratedKey != c.ImageSource.GeneratedPath {
		src := c.ImageSource
		src.GeneratedPath = acq.GeneratedKey
		if err := o.repo.SetImageSource(ctx, id, src); err != nil {
			return Retryable(fmt.Errorf("record generated image: %w", err))
		}
		c.ImageSource = src
	}

	variants, err := o.engine.CreateVariants(ctx, acq.Path, c.ID, acq.SKUKey)
	if err != nil {
		return err
	}

	brandVal := o.analyzeBrand(id, variants)

	if err := o.repo.SetCompleted(ctx, id, variants, brandVal); err != nil {
		return Retryable(fmt.Errorf("mark completed: %w", err))
	}
	o.logger.Info().Str("campaign_id", id).Int("variants", len(variants)).Msg("pipeline: campaign completed")

	if c.Archive.Requested {
		o.autoArchive(ctx, id, variants)
	}
	return nil
}

// analyzeBrand runs the advisory color analysis on the square variant. It
// never returns an error; any failure is recorded as an error status on the
// campaign and processing continues.
func (o *Orchestrator) analyzeBrand(id string, variants map[string]string) domain.BrandValidation {
	if o.analyzer == nil || !o.analyzer.Enabled() {
		return domain.BrandValidation{Status: domain.ValidationSkipped, Message: "brand validation is disabled"}
	}
	key, ok := variants["ratio_1_1"]
	if !ok || key == "" {
		return domain.BrandValidation{Status: domain.ValidationError, Message: "no resized images available for validation"}
	}
	full, err := o.store.Resolve(key)
	if err != nil {
		return domain.BrandValidation{Status: domain.ValidationError, Message: fmt.Sprintf("brand validation error: %v", err)}
	}
	res, err := o.analyzer.AnalyzeFile(full)
	if err != nil {
		o.logger.Warn().Err(err).Str("campaign_id", id).Msg("pipeline: brand validation error")
		return domain.BrandValidation{Status: domain.ValidationError, Message: fmt.Sprintf("brand validation error: %v", err)}
	}

	details, _ := json.Marshal(res)
	status := domain.ValidationWarning
	switch {
	case res.Skipped:
		status = domain.ValidationSkipped
	case res.Compliant:
		status = domain.ValidationPassed
	}
	return domain.BrandValidation{Status: status, Message: res.Message, Details: details}
}

// autoArchive mirrors the finished variants when the campaign asked for it.
// Archive failure is advisory and never reverts completion.
func (o *Orchestrator) autoArchive(ctx context.Context, id string, variants map[string]string) {
	if o.uploader == nil || !o.uploader.Configured() {
		o.logger.Warn().Str("campaign_id", id).Msg("pipeline: archive requested but uploader not configured")
		return
	}
	state, err := o.uploader.UploadVariants(ctx, id, variants)
	state.Requested = true
	if err != nil {
		o.logger.Warn().Err(err).Str("campaign_id", id).Msg("pipeline: archive upload failed")
	}
	obs.RecordArchiveUpload(state.Uploaded)
	if err := o.repo.SetArchiveResult(ctx, id, state); err != nil {
		o.logger.Error().Err(err).Str("campaign_id", id).Msg("pipeline: record archive result failed")
	}
}

// Archive is the on-demand upload trigger. It requires a completed campaign
// with variants and short-circuits with the stored links when everything is
// already uploaded.
func (o *Orchestrator) Archive(ctx context.Context, id string) (domain.ArchiveState, error) {
	c, err := o.repo.GetByID(ctx, id)
	if err != nil {
		return domain.ArchiveState{}, err
	}
	if c.Status != domain.StatusCompleted {
		return c.Archive, domain.ErrNotCompleted
	}
	if len(c.Variants) == 0 {
		return c.Archive, domain.ErrNoVariants
	}
	if c.Archive.Uploaded && len(c.Archive.Links) > 0 {
		return c.Archive, nil
	}
	if o.uploader == nil {
		return c.Archive, errors.New("pipeline: archive uploader not configured")
	}

	state, err := o.uploader.UploadVariants(ctx, id, c.Variants)
	state.Requested = true
	if err != nil {
		return state, err
	}
	if err := o.repo.SetArchiveResult(ctx, id, state); err != nil {
		return state, fmt.Errorf("pipeline: record archive result: %w", err)
	}
	return state, nil
}

func (o *Orchestrator) fail(ctx context.Context, id, msg string) error {
	if err := o.repo.SetFailed(ctx, id, msg); err != nil {
		return fmt.Errorf("pipeline: mark failed: %w", err)
	}
	return nil
}

// backoffDelay is exponential with full jitter: a random duration up to
// min(2^attempt seconds, cap).
func backoffDelay(attempt int, cap time.Duration) time.Duration {
	base := time.Second
	for i := 0; i < attempt && base < cap; i++ {
		base *= 2
	}
	if base > cap {
		base = cap
	}
	return time.Duration(rand.Int63n(int64(base)) + int64(time.Millisecond))
}

func ctxSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
