package repository

import (
	"context"

	"donorhub/backend/internal/audit/domain"
)

// Repository defines persistence for audit entries.
type Repository interface {
	Create(ctx context.Context, e *domain.Entry) error
	// ListByUser returns at most limit entries for userID, newest first.
	ListByUser(ctx context.Context, userID string, limit int) ([]*domain.Entry, error)
}
