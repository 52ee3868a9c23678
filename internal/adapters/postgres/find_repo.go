package postgres

import (
	"context"

	"github.com/ShaoKhan/finder-sub000/internal/core/domain"
)

// FindRepo implements ports.FindRepository with pgx.
type FindRepo struct {
	q Querier
}

// NewFindRepo creates a new FindRepo.
func NewFindRepo(q Querier) *FindRepo {
	return &FindRepo{q: q}
}

// ListBySession returns the finds recorded during a session.
func (r *FindRepo) ListBySession(ctx context.Context, sessionID string) ([]domain.Find, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, owner_id, session_id, name, lat, lon, created_at
		FROM finds
		WHERE session_id = $1
		ORDER BY created_at
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var finds []domain.Find
	for rows.Next() {
		var f domain.Find
		if err := rows.Scan(&f.ID, &f.OwnerID, &f.SessionID, &f.Name,
			&f.Location.Lat, &f.Location.Lon, &f.CreatedAt); err != nil {
			return nil, err
		}
		finds = append(finds, f)
	}
	return finds, rows.Err()
}

// DetachSession clears session_id on every find of the session.
func (r *FindRepo) DetachSession(ctx context.Context, sessionID string) ([]string, error) {
	rows, err := r.q.Query(ctx, `
		UPDATE finds SET session_id = NULL
		WHERE session_id = $1
		RETURNING id
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Reattach restores session_id on finds that are still detached.
func (r *FindRepo) Reattach(ctx context.Context, findIDs []string, sessionID string) error {
	if len(findIDs) == 0 {
		return nil
	}
	_, err := r.q.Exec(ctx, `
		UPDATE finds SET session_id = $2
		WHERE id = ANY($1) AND session_id IS NULL
	`, findIDs, sessionID)
	return translate(err)
}
