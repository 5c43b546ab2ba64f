package domain

import (
	"strings"
	"time"
)

// Status enumerates campaign lifecycle states. Transitions are monotonic:
// pending -> processing -> completed|failed. A campaign under retry stays in
// processing; the attempt counter lives in ErrorMessage.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// ParseStatus validates a status string, typically from a list filter.
func ParseStatus(s string) (Status, bool) {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case StatusPending:
		return StatusPending, true
	case StatusProcessing:
		return StatusProcessing, true
	case StatusCompleted:
		return StatusCompleted, true
	case StatusFailed:
		return StatusFailed, true
	}
	return "", false
}

// Terminal reports whether no further transition may leave the status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ImageSourceType discriminates the image source union.
type ImageSourceType string

const (
	ImageSourceLocal       ImageSourceType = "local"
	ImageSourceAIGenerated ImageSourceType = "ai_generated"
)

// ImageSource describes where the campaign's source image comes from.
// Exactly one of SourcePath (local) or AIPrompt (ai_generated) is populated.
// GeneratedPath is filled in by the worker once an AI image has been produced
// so a retry does not regenerate it.
type ImageSource struct {
	Type          ImageSourceType `json:"source_type"`
	SourcePath    string          `json:"source_path,omitempty"`
	AIPrompt      string          `json:"ai_prompt,omitempty"`
	GeneratedPath string          `json:"generated_path,omitempty"`
}

// Product is a single sellable item attached to a campaign.
type Product struct {
	SKU   string  `json:"sku"`
	Price float64 `json:"price"`
}

// ValidationStatus captures the outcome of an advisory validation step.
type ValidationStatus string

const (
	ValidationPassed  ValidationStatus = "passed"
	ValidationWarning ValidationStatus = "warning"
	ValidationSkipped ValidationStatus = "skipped"
	ValidationError   ValidationStatus = "error"
)

// ContentValidation records the prohibited-word check performed at creation.
type ContentValidation struct {
	Status  ValidationStatus `json:"status"`
	Message string           `json:"message,omitempty"`
}

// BrandValidation records the advisory brand color analysis. Details holds the
// analyzer's full result as JSON.
type BrandValidation struct {
	Status  ValidationStatus `json:"status"`
	Message string           `json:"message,omitempty"`
	Details []byte           `json:"details,omitempty"`
}

// ArchiveLink is the per-variant result of an archive upload.
type ArchiveLink struct {
	Success    bool   `json:"success"`
	RemotePath string `json:"remote_path,omitempty"`
	SharedLink string `json:"shared_link,omitempty"`
	Size       int64  `json:"size,omitempty"`
	Error      string `json:"error,omitempty"`
}

// ArchiveState tracks the optional backup of finished variants.
type ArchiveState struct {
	Requested bool                   `json:"requested"`
	Uploaded  bool                   `json:"uploaded"`
	Links     map[string]ArchiveLink `json:"links,omitempty"`
}

// Campaign is the unit of work tracked through the state machine.
type Campaign struct {
	ID                  string
	Description         string
	TargetMarket        string
	Message             string
	ProductsDescription string
	MarketingChannel    string
	Products            []Product
	Metadata            map[string]any
	ImageSource         ImageSource
	Status              Status
	Variants            map[string]string
	ErrorMessage        string
	ContentValidation   ContentValidation
	BrandValidation     BrandValidation
	Archive             ArchiveState
	CreatedAt           time.Time
	UpdatedAt           time.Time
	CompletedAt         *time.Time
}

// SKUs returns the campaign's product SKUs in declaration order.
func (c *Campaign) SKUs() []string {
	if len(c.Products) == 0 {
		return nil
	}
	skus := make([]string, 0, len(c.Products))
	for _, p := range c.Products {
		skus = append(skus, p.SKU)
	}
	return skus
}
