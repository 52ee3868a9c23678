package postgres

import (
	"context"
	"fmt"

	"github.com/ShaoKhan/finder-sub000/internal/core/codec"
	"github.com/ShaoKhan/finder-sub000/internal/core/domain"
)

const sessionColumns = `id, owner_id, state, start_lat, start_lon, end_lat, end_lon,
	start_time, end_time, duration_seconds, track_data`

// SessionRepo implements ports.SessionRepository with pgx.
type SessionRepo struct {
	q Querier
}

// NewSessionRepo creates a new SessionRepo.
func NewSessionRepo(q Querier) *SessionRepo {
	return &SessionRepo{q: q}
}

// FindActiveByOwner returns the owner's active session.
func (r *SessionRepo) FindActiveByOwner(ctx context.Context, ownerID string) (*domain.Session, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM survey_sessions
		WHERE owner_id = $1 AND state = 'active'
	`, ownerID)
	return scanSession(row)
}

// FindByOwner returns every session of the owner, newest first.
func (r *SessionRepo) FindByOwner(ctx context.Context, ownerID string) ([]domain.Session, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM survey_sessions
		WHERE owner_id = $1
		ORDER BY start_time DESC
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

// GetByID returns a session by id.
func (r *SessionRepo) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM survey_sessions
		WHERE id = $1
	`, id)
	return scanSession(row)
}

// Persist inserts a session or records its completion. The partial unique
// index on (owner_id) WHERE state = 'active' rejects a second active
// session. An existing row is only updated while it is active, and its track
// is left to AppendSample.
func (r *SessionRepo) Persist(ctx context.Context, s *domain.Session) error {
	track, err := codec.Encode(s.Track)
	if err != nil {
		return err
	}
	var endLat, endLon *float64
	if s.EndLocation != nil {
		endLat, endLon = &s.EndLocation.Lat, &s.EndLocation.Lon
	}

	tag, err := r.q.Exec(ctx, `
		INSERT INTO survey_sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE
		SET state = EXCLUDED.state,
		    end_lat = EXCLUDED.end_lat, end_lon = EXCLUDED.end_lon,
		    end_time = EXCLUDED.end_time,
		    duration_seconds = EXCLUDED.duration_seconds
		WHERE survey_sessions.state = 'active'
	`, s.ID, s.OwnerID, string(s.State), s.StartLocation.Lat, s.StartLocation.Lon,
		endLat, endLon, s.StartTime, s.EndTime, s.DurationSeconds, track)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSessionClosed
	}
	return nil
}

// AppendSample adds sample to the end of an active session's track. The
// UPDATE takes the row lock and re-reads track_data, so concurrent appends
// serialize and an append racing a stop sees the completed state.
func (r *SessionRepo) AppendSample(ctx context.Context, sessionID string, sample domain.Sample) error {
	elem, err := codec.Encode([]domain.Sample{sample})
	if err != nil {
		return err
	}
	tag, err := r.q.Exec(ctx, `
		UPDATE survey_sessions
		SET track_data = (COALESCE(NULLIF(track_data, ''), '[]')::jsonb || $2::jsonb)::text
		WHERE id = $1 AND state = 'active'
	`, sessionID, elem)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSessionClosed
	}
	return nil
}

// Remove deletes a session. Finds must have been detached first.
func (r *SessionRepo) Remove(ctx context.Context, id string) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM survey_sessions WHERE id = $1`, id)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*domain.Session, error) {
	var (
		s              domain.Session
		state          string
		endLat, endLon *float64
		track          string
	)
	err := row.Scan(
		&s.ID, &s.OwnerID, &state,
		&s.StartLocation.Lat, &s.StartLocation.Lon,
		&endLat, &endLon,
		&s.StartTime, &s.EndTime, &s.DurationSeconds, &track,
	)
	if err != nil {
		return nil, translate(err)
	}

	s.State = domain.SessionState(state)
	if !s.State.Valid() {
		return nil, fmt.Errorf("session %s: unknown state %q", s.ID, state)
	}
	if endLat != nil && endLon != nil {
		s.EndLocation = &domain.GeoPoint{Lat: *endLat, Lon: *endLon}
	}
	if s.Track, err = codec.Decode(track); err != nil {
		return nil, fmt.Errorf("session %s: %w", s.ID, err)
	}
	return &s, nil
}
