package storage

import (
	"context"

	"github.com/diasbot/insta-consultant/internal/models"
)

// LeadStorage persists lead records keyed by Instagram user id.
type LeadStorage interface {
	// GetLead returns the stored lead, or nil when none exists.
	GetLead(ctx context.Context, instagramID string) (*models.Lead, error)

	// UpsertLead merges the update into the stored lead, creating the
	// record on first contact. Empty update fields never clobber
	// previously stored values.
	UpsertLead(ctx context.Context, instagramID string, update models.LeadUpdate) (*models.Lead, error)

	// LeadsNeedingReminder returns leads whose decision is still open
	// (unset, "not sure", "I will think about it") or who have not paid.
	LeadsNeedingReminder(ctx context.Context) ([]*models.Lead, error)

	Close() error
}
