package repository

import (
	"context"
	"database/sql"

	"donorhub/backend/internal/password/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a password history repository backed by db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) ListRecent(ctx context.Context, userID string, limit int) ([]*domain.HistoryEntry, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, password_hash, created_at FROM password_history
		 WHERE user_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.HistoryEntry
	for rows.Next() {
		var e domain.HistoryEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Hash, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) Create(ctx context.Context, e *domain.HistoryEntry) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO password_history (id, user_id, password_hash, created_at) VALUES ($1, $2, $3, $4)`,
		e.ID, e.UserID, e.Hash, e.CreatedAt,
	)
	return err
}

func (r *PostgresRepository) PruneKeepNewest(ctx context.Context, userID string, keep int) (int, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM password_history WHERE user_id = $1 AND id NOT IN (
			SELECT id FROM password_history WHERE user_id = $1
			ORDER BY created_at DESC, id DESC LIMIT $2
		)`,
		userID, keep,
	)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
