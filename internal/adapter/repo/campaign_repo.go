// Package repo contains the PostgreSQL persistence adapters.
package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"campaignd/internal/domain"
)

// CampaignRepositoryPG implements domain.CampaignRepository.
type CampaignRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewCampaignRepository creates a campaign repository backed by PostgreSQL.
func NewCampaignRepository(pool *pgxpool.Pool) *CampaignRepositoryPG {
	return &CampaignRepositoryPG{pool: pool}
}

// EnsureSchema creates the campaigns table when it does not exist yet.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS campaigns (
    id                  TEXT PRIMARY KEY,
    description         TEXT NOT NULL,
    target_market       TEXT NOT NULL DEFAULT '',
    message             TEXT NOT NULL DEFAULT '',
    products_description TEXT NOT NULL DEFAULT '',
    marketing_channel   TEXT NOT NULL DEFAULT '',
    products            JSONB NOT NULL DEFAULT '[]',
    metadata            JSONB NOT NULL DEFAULT '{}',
    image_source        JSONB NOT NULL DEFAULT '{}',
    status              TEXT NOT NULL DEFAULT 'pending',
    variants            JSONB,
    error_message       TEXT NOT NULL DEFAULT '',
    content_validation  JSONB NOT NULL DEFAULT '{}',
    brand_validation    JSONB NOT NULL DEFAULT '{}',
    archive             JSONB NOT NULL DEFAULT '{}',
    created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    completed_at        TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_campaigns_status ON campaigns (status);
CREATE INDEX IF NOT EXISTS idx_campaigns_created_at ON campaigns (created_at DESC);
`)
	return err
}

const campaignColumns = `id, description, target_market, message, products_description, marketing_channel,
products, metadata, image_source, status, variants, error_message,
content_validation, brand_validation, archive, created_at, updated_at, completed_at`

// Create inserts a new campaign record.
func (r *CampaignRepositoryPG) Create(ctx context.Context, c *domain.Campaign) error {
	products, err := json.Marshal(c.Products)
	if err != nil {
		return fmt.Errorf("repo: encode products: %w", err)
	}
	metadata, err := json.Marshal(c.Metadata)
	if err != nil {
		return fmt.Errorf("repo: encode metadata: %w", err)
	}
	imageSource, err := json.Marshal(c.ImageSource)
	if err != nil {
		return fmt.Errorf("repo: encode image source: %w", err)
	}
	contentVal, err := json.Marshal(c.ContentValidation)
	if err != nil {
		return fmt.Errorf("repo: encode content validation: %w", err)
	}
	archive, err := json.Marshal(c.Archive)
	if err != nil {
		return fmt.Errorf("repo: encode archive: %w", err)
	}

	query := `
INSERT INTO campaigns (id, description, target_market, message, products_description, marketing_channel,
                       products, metadata, image_source, status, error_message, content_validation, archive)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13);
`
	_, err = r.pool.Exec(ctx, query,
		c.ID,
		c.Description,
		c.TargetMarket,
		c.Message,
		c.ProductsDescription,
		c.MarketingChannel,
		products,
		metadata,
		imageSource,
		c.Status,
		c.ErrorMessage,
		contentVal,
		archive,
	)
	return err
}

// GetByID fetches a campaign by its identifier.
func (r *CampaignRepositoryPG) GetByID(ctx context.Context, id string) (*domain.Campaign, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+campaignColumns+` FROM campaigns WHERE id = $1;`, id)
	c, err := scanCampaign(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return c, nil
}

// List returns campaigns newest first, optionally filtered by status.
func (r *CampaignRepositoryPG) List(ctx context.Context, filter domain.ListFilter) ([]domain.Campaign, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	var (
		rows pgx.Rows
		err  error
	)
	if filter.Status != nil {
		rows, err = r.pool.Query(ctx, `
SELECT `+campaignColumns+`
FROM campaigns
WHERE status = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3;
`, *filter.Status, limit, offset)
	} else {
		rows, err = r.pool.Query(ctx, `
SELECT `+campaignColumns+`
FROM campaigns
ORDER BY created_at DESC
LIMIT $1 OFFSET $2;
`, limit, offset)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Campaign, 0, limit)
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// SetProcessing marks pickup by a worker.
func (r *CampaignRepositoryPG) SetProcessing(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `
UPDATE campaigns
SET status = $2, updated_at = NOW()
WHERE id = $1;
`, id, domain.StatusProcessing)
	return err
}

// SetImageSource persists the mutated source record.
func (r *CampaignRepositoryPG) SetImageSource(ctx context.Context, id string, src domain.ImageSource) error {
	payload, err := json.Marshal(src)
	if err != nil {
		return fmt.Errorf("repo: encode image source: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
UPDATE campaigns
SET image_source = $2, updated_at = NOW()
WHERE id = $1;
`, id, payload)
	return err
}

// SetRetryMessage records an attempt failure without leaving processing.
func (r *CampaignRepositoryPG) SetRetryMessage(ctx context.Context, id, msg string) error {
	_, err := r.pool.Exec(ctx, `
UPDATE campaigns
SET error_message = $2, updated_at = NOW()
WHERE id = $1;
`, id, msg)
	return err
}

// SetCompleted stores the full variant set, the brand validation outcome and
// the completion timestamp, clearing any retry message.
func (r *CampaignRepositoryPG) SetCompleted(ctx context.Context, id string, variants map[string]string, brand domain.BrandValidation) error {
	variantsJSON, err := json.Marshal(variants)
	if err != nil {
		return fmt.Errorf("repo: encode variants: %w", err)
	}
	brandJSON, err := json.Marshal(brand)
	if err != nil {
		return fmt.Errorf("repo: encode brand validation: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
UPDATE campaigns
SET status = $2,
    variants = $3,
    brand_validation = $4,
    error_message = '',
    completed_at = NOW(),
    updated_at = NOW()
WHERE id = $1;
`, id, domain.StatusCompleted, variantsJSON, brandJSON)
	return err
}

// SetFailed transitions to the terminal failed state.
func (r *CampaignRepositoryPG) SetFailed(ctx context.Context, id, msg string) error {
	_, err := r.pool.Exec(ctx, `
UPDATE campaigns
SET status = $2, error_message = $3, completed_at = NOW(), updated_at = NOW()
WHERE id = $1;
`, id, domain.StatusFailed, msg)
	return err
}

// SetArchiveResult stores archive upload bookkeeping.
func (r *CampaignRepositoryPG) SetArchiveResult(ctx context.Context, id string, archive domain.ArchiveState) error {
	payload, err := json.Marshal(archive)
	if err != nil {
		return fmt.Errorf("repo: encode archive: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
UPDATE campaigns
SET archive = $2, updated_at = NOW()
WHERE id = $1;
`, id, payload)
	return err
}

func scanCampaign(row pgx.Row) (*domain.Campaign, error) {
	var (
		c           domain.Campaign
		products    []byte
		metadata    []byte
		imageSource []byte
		variants    []byte
		contentVal  []byte
		brandVal    []byte
		archive     []byte
	)
	if err := row.Scan(
		&c.ID,
		&c.Description,
		&c.TargetMarket,
		&c.Message,
		&c.ProductsDescription,
		&c.MarketingChannel,
		&products,
		&metadata,
		&imageSource,
		&c.Status,
		&variants,
		&c.ErrorMessage,
		&contentVal,
		&brandVal,
		&archive,
		&c.CreatedAt,
		&c.UpdatedAt,
		&c.CompletedAt,
	); err != nil {
		return nil, err
	}

	if len(products) > 0 {
		if err := json.Unmarshal(products, &c.Products); err != nil {
			return nil, fmt.Errorf("repo: decode products: %w", err)
		}
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &c.Metadata); err != nil {
			return nil, fmt.Errorf("repo: decode metadata: %w", err)
		}
	}
	if len(imageSource) > 0 {
		if err := json.Unmarshal(imageSource, &c.ImageSource); err != nil {
			return nil, fmt.Errorf("repo: decode image source: %w", err)
		}
	}
	if len(variants) > 0 {
		if err := json.Unmarshal(variants, &c.Variants); err != nil {
			return nil, fmt.Errorf("repo: decode variants: %w", err)
		}
	}
	if len(contentVal) > 0 {
		if err := json.Unmarshal(contentVal, &c.ContentValidation); err != nil {
			return nil, fmt.Errorf("repo: decode content validation: %w", err)
		}
	}
	if len(brandVal) > 0 {
		if err := json.Unmarshal(brandVal, &c.BrandValidation); err != nil {
			return nil, fmt.Errorf("repo: decode brand validation: %w", err)
		}
	}
	if len(archive) > 0 {
		if err := json.Unmarshal(archive, &c.Archive); err != nil {
			return nil, fmt.Errorf("repo: decode archive: %w", err)
		}
	}
	return &c, nil
}
