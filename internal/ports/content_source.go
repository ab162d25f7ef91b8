package ports

import (
	"context"
	"time"

	"contentgate/internal/domain/quality"
)

// ExternalDraft is a draft produced outside the system. ExternalRef must be
// stable across fetches so repeated ingestion is idempotent.
type ExternalDraft struct {
	ExternalRef string
	Draft       quality.Draft
	Inputs      quality.SignalInputs
	PublishAt   time.Time
	SubmittedBy string
}

type ContentSource interface {
	Name() string
	Fetch(ctx context.Context) ([]ExternalDraft, error)
	// Ack is called after a fetched draft is stored or found to be a duplicate.
	Ack(ctx context.Context, externalRef string) error
}
