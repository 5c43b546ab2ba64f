package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"campaignd/internal/domain"
	"campaignd/internal/infra"
	"campaignd/internal/providers/firefly"
	"campaignd/internal/storage"
)

// ImageGenerator produces source image bytes from a prompt. *firefly.Client
// satisfies it.
type ImageGenerator interface {
	HasCredentials() bool
	GenerateImage(ctx context.Context, req firefly.ImageRequest) ([]byte, error)
}

// Acquired is the output of source resolution: one image on disk plus the
// organizational key used to namespace everything derived from it.
type Acquired struct {
	// Path is the absolute path of the working copy.
	Path string
	// SKUKey is the sanitized join of product SKUs, empty when none.
	SKUKey string
	// GeneratedKey is the storage key of a freshly generated or reused AI
	// image; empty on the local path.
	GeneratedKey string
	// Placeholder marks that the generation backend failed and a synthetic
	// stand-in was rendered instead.
	Placeholder bool
}

// SourceResolver locates or generates the campaign's source image.
type SourceResolver struct {
	store      *storage.FileStore
	uploadPath string
	gen        ImageGenerator
	logger     *infra.Logger
}

// NewSourceResolver builds the resolver. gen may be nil, in which case every
// AI request degrades to a placeholder.
func NewSourceResolver(store *storage.FileStore, uploadPath string, gen ImageGenerator, logger *infra.Logger) *SourceResolver {
	if logger == nil {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &SourceResolver{store: store, uploadPath: uploadPath, gen: gen, logger: logger}
}

// Acquire resolves the campaign's source image. Local references that do not
// exist are permanent failures; a failing generation backend is not, it falls
// back to a placeholder so the campaign still completes.
func (r *SourceResolver) Acquire(ctx context.Context, c *domain.Campaign) (*Acquired, error) {
	skuKey := SanitizeSKUKey(c.SKUs())
	switch c.ImageSource.Type {
	case domain.ImageSourceLocal:
		return r.acquireLocal(c, skuKey)
	case domain.ImageSourceAIGenerated:
		return r.acquireGenerated(ctx, c, skuKey)
	default:
		return nil, NonRetryablef("unknown image source type %q", c.ImageSource.Type)
	}
}

func (r *SourceResolver) acquireLocal(c *domain.Campaign, skuKey string) (*Acquired, error) {
	src := strings.TrimSpace(c.ImageSource.SourcePath)
	if src == "" {
		return nil, NonRetryablef("source_path is required for local images")
	}
	// A bare filename refers to the upload library.
	if !strings.ContainsAny(src, `/\`) {
		src = filepath.Join(r.uploadPath, src)
	}
	if _, err := os.Stat(src); err != nil {
		if os.IsNotExist(err) {
			return nil, NonRetryablef("source image not found: %s", c.ImageSource.SourcePath)
		}
		return nil, NonRetryable(fmt.Errorf("stat source image: %w", err))
	}

	workPath := filepath.Join(r.uploadPath, fmt.Sprintf("%s_source_%s.jpg", c.ID, shortID()))
	if err := storage.CopyFile(src, workPath); err != nil {
		return nil, NonRetryable(fmt.Errorf("load local image: %w", err))
	}
	return &Acquired{Path: workPath, SKUKey: skuKey}, nil
}

func (r *SourceResolver) acquireGenerated(ctx context.Context, c *domain.Campaign, skuKey string) (*Acquired, error) {
	prompt := strings.TrimSpace(c.ImageSource.AIPrompt)
	if prompt == "" {
		return nil, NonRetryablef("ai_prompt is required for ai_generated images")
	}

	// A previous attempt may already have produced the image; reuse it so a
	// retry does not regenerate.
	if key := strings.TrimSpace(c.ImageSource.GeneratedPath); key != "" {
		if full, err := r.store.Resolve(key); err == nil {
			if _, statErr := os.Stat(full); statErr == nil {
				return &Acquired{Path: full, SKUKey: skuKey, GeneratedKey: key}, nil
			}
		}
	}

	placeholder := false
	var data []byte
	if r.gen != nil && r.gen.HasCredentials() {
		generated, err := r.gen.GenerateImage(ctx, firefly.ImageRequest{Prompt: prompt, Width: 2048, Height: 2048})
		if err != nil {
			r.logger.Warn().Err(err).Str("campaign_id", c.ID).Msg("pipeline: generation failed, using placeholder")
			placeholder = true
		} else {
			data = generated
		}
	} else {
		r.logger.Warn().Str("campaign_id", c.ID).Msg("pipeline: generation backend not configured, using placeholder")
		placeholder = true
	}
	if placeholder {
		data = RenderPlaceholder(prompt, 2048, 2048)
	}
	if len(data) == 0 {
		return nil, NonRetryablef("generated image is empty")
	}

	key, err := r.store.Write(ctx, generatedKey(c.ID, skuKey, placeholder), data)
	if err != nil {
		return nil, Retryable(fmt.Errorf("persist generated image: %w", err))
	}
	full, err := r.store.Resolve(key)
	if err != nil {
		return nil, NonRetryable(err)
	}
	return &Acquired{Path: full, SKUKey: skuKey, GeneratedKey: key, Placeholder: placeholder}, nil
}

func generatedKey(campaignID, skuKey string, placeholder bool) string {
	kind := "ai_generated"
	if placeholder {
		kind = "placeholder"
	}
	if skuKey != "" {
		return fmt.Sprintf("generated/%s/%s/%s_%s_%s_%s.jpg", campaignID, skuKey, campaignID, skuKey, kind, shortID())
	}
	return fmt.Sprintf("generated/%s/%s_%s_%s.jpg", campaignID, campaignID, kind, shortID())
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// SanitizeSKUKey joins product SKUs into a filesystem-safe key. Only
// alphanumerics, hyphen and underscore survive; SKUs reduced to nothing are
// dropped.
func SanitizeSKUKey(skus []string) string {
	parts := make([]string, 0, len(skus))
	for _, sku := range skus {
		var b strings.Builder
		for _, r := range sku {
			switch {
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
				b.WriteRune(r)
			}
		}
		if b.Len() > 0 {
			parts = append(parts, b.String())
		}
	}
	return strings.Join(parts, "_")
}
