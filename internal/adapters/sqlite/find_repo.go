package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/ShaoKhan/finder-sub000/internal/core/domain"
)

// FindRepo implements ports.FindRepository on SQLite.
type FindRepo struct {
	db *DB
}

// NewFindRepo creates a new FindRepo.
func NewFindRepo(db *DB) *FindRepo {
	return &FindRepo{db: db}
}

// Create stores a find.
func (r *FindRepo) Create(ctx context.Context, f *domain.Find) error {
	_, err := r.db.SQL.ExecContext(ctx, `
		INSERT INTO finds (id, owner_id, session_id, name, lat, lon, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, f.ID, f.OwnerID, f.SessionID, f.Name, f.Location.Lat, f.Location.Lon, formatTime(f.CreatedAt))
	return translate(err)
}

// ListBySession returns the finds recorded during a session.
func (r *FindRepo) ListBySession(ctx context.Context, sessionID string) ([]domain.Find, error) {
	rows, err := r.db.SQL.QueryContext(ctx, `
		SELECT id, owner_id, session_id, name, lat, lon, created_at
		FROM finds WHERE session_id = ? ORDER BY created_at
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var finds []domain.Find
	for rows.Next() {
		var (
			f       domain.Find
			session sql.NullString
			created string
		)
		if err := rows.Scan(&f.ID, &f.OwnerID, &session, &f.Name,
			&f.Location.Lat, &f.Location.Lon, &created); err != nil {
			return nil, err
		}
		if session.Valid {
			f.SessionID = &session.String
		}
		if f.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		finds = append(finds, f)
	}
	return finds, rows.Err()
}

// DetachSession clears session_id on every find of the session.
func (r *FindRepo) DetachSession(ctx context.Context, sessionID string) ([]string, error) {
	rows, err := r.db.SQL.QueryContext(ctx,
		`UPDATE finds SET session_id = NULL WHERE session_id = ? RETURNING id`, sessionID)
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
	args := make([]any, 0, len(findIDs)+1)
	args = append(args, sessionID)
	for _, id := range findIDs {
		args = append(args, id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(findIDs)), ",")
	_, err := r.db.SQL.ExecContext(ctx,
		`UPDATE finds SET session_id = ? WHERE session_id IS NULL AND id IN (`+placeholders+`)`, args...)
	return translate(err)
}
