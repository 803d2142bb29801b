package repository

import (
	"context"

	"donorhub/backend/internal/password/domain"
)

// Repository defines persistence for password history entries.
type Repository interface {
	// ListRecent returns at most limit entries for userID, newest first.
	ListRecent(ctx context.Context, userID string, limit int) ([]*domain.HistoryEntry, error)
	Create(ctx context.Context, e *domain.HistoryEntry) error
	// PruneKeepNewest deletes all but the keep newest entries for userID and returns how many were deleted.
	PruneKeepNewest(ctx context.Context, userID string, keep int) (int, error)
}
