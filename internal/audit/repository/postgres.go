package repository

import (
	"context"
	"database/sql"

	"donorhub/backend/internal/audit/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an audit repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create persists the entry. The entry must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, e *domain.Entry) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_logs (id, user_id, session_id, action, outcome, ip, user_agent, error, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, nullString(e.UserID), nullString(e.SessionID), string(e.Action), string(e.Outcome),
		e.IP, e.UserAgent, nullString(e.Error), e.CreatedAt,
	)
	return err
}

// ListByUser returns the newest entries for userID. Returns (nil, error) only on database errors.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*domain.Entry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, session_id, action, outcome, ip, user_agent, error, created_at
		 FROM audit_logs WHERE user_id = $1 ORDER BY id DESC LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Entry
	for rows.Next() {
		var (
			e                      domain.Entry
			uid, sid, action, outc sql.NullString
			errMsg                 sql.NullString
		)
		if err := rows.Scan(&e.ID, &uid, &sid, &action, &outc, &e.IP, &e.UserAgent, &errMsg, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.UserID = uid.String
		e.SessionID = sid.String
		e.Action = domain.Action(action.String)
		e.Outcome = domain.Outcome(outc.String)
		e.Error = errMsg.String
		out = append(out, &e)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
