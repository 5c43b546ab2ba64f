package domain

import "context"

// ListFilter narrows List results. A nil Status matches every campaign.
type ListFilter struct {
	Status *Status
	Offset int
	Limit  int
}

// CampaignRepository defines persistence for campaign records. The worker is
// the single writer for a given campaign while it owns it, so updates are
// plain last-write operations.
type CampaignRepository interface {
	Create(ctx context.Context, c *Campaign) error
	GetByID(ctx context.Context, id string) (*Campaign, error)
	List(ctx context.Context, filter ListFilter) ([]Campaign, error)

	// SetProcessing marks pickup by a worker.
	SetProcessing(ctx context.Context, id string) error
	// SetImageSource persists the mutated source, e.g. the generated path
	// recorded after AI generation.
	SetImageSource(ctx context.Context, id string, src ImageSource) error
	// SetRetryMessage records an attempt failure without leaving processing.
	SetRetryMessage(ctx context.Context, id, msg string) error
	// SetCompleted stores the variant paths and brand validation outcome and
	// stamps completion. Variant paths are written only as a complete set.
	SetCompleted(ctx context.Context, id string, variants map[string]string, brand BrandValidation) error
	// SetFailed transitions to the terminal failed state.
	SetFailed(ctx context.Context, id, msg string) error
	// SetArchiveResult stores archive upload bookkeeping.
	SetArchiveResult(ctx context.Context, id string, archive ArchiveState) error
}
