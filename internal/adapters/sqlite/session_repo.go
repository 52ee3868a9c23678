package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ShaoKhan/finder-sub000/internal/core/codec"
	"github.com/ShaoKhan/finder-sub000/internal/core/domain"
)

const sessionColumns = `id, owner_id, state, start_lat, start_lon, end_lat, end_lon,
	start_time, end_time, duration_seconds, track_data`

// SessionRepo implements ports.SessionRepository on SQLite.
type SessionRepo struct {
	db *DB
}

// NewSessionRepo creates a new SessionRepo.
func NewSessionRepo(db *DB) *SessionRepo {
	return &SessionRepo{db: db}
}

// FindActiveByOwner returns the owner's active session.
func (r *SessionRepo) FindActiveByOwner(ctx context.Context, ownerID string) (*domain.Session, error) {
	row := r.db.SQL.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM survey_sessions WHERE owner_id = ? AND state = 'active'`, ownerID)
	return scanSession(row)
}

// FindByOwner returns every session of the owner, newest first.
func (r *SessionRepo) FindByOwner(ctx context.Context, ownerID string) ([]domain.Session, error) {
	rows, err := r.db.SQL.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM survey_sessions WHERE owner_id = ? ORDER BY start_time DESC`, ownerID)
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
	row := r.db.SQL.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM survey_sessions WHERE id = ?`, id)
	return scanSession(row)
}

// Persist inserts a session or records its completion. An existing row is
// only updated while it is active, and its track is left to AppendSample.
func (r *SessionRepo) Persist(ctx context.Context, s *domain.Session) error {
	track, err := codec.Encode(s.Track)
	if err != nil {
		return err
	}
	var (
		endLat, endLon sql.NullFloat64
		endTime        sql.NullString
		duration       sql.NullInt64
	)
	if s.EndLocation != nil {
		endLat = sql.NullFloat64{Float64: s.EndLocation.Lat, Valid: true}
		endLon = sql.NullFloat64{Float64: s.EndLocation.Lon, Valid: true}
	}
	if s.EndTime != nil {
		endTime = sql.NullString{String: formatTime(*s.EndTime), Valid: true}
	}
	if s.DurationSeconds != nil {
		duration = sql.NullInt64{Int64: *s.DurationSeconds, Valid: true}
	}

	res, err := r.db.SQL.ExecContext(ctx, `
		INSERT INTO survey_sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE
		SET state = excluded.state,
		    end_lat = excluded.end_lat, end_lon = excluded.end_lon,
		    end_time = excluded.end_time,
		    duration_seconds = excluded.duration_seconds
		WHERE survey_sessions.state = 'active'
	`, s.ID, s.OwnerID, string(s.State), s.StartLocation.Lat, s.StartLocation.Lon,
		endLat, endLon, formatTime(s.StartTime), endTime, duration, track)
	if err != nil {
		return translate(err)
	}
	return closedIfUnchanged(res)
}

// AppendSample adds sample to the end of an active session's track in a
// single statement, so concurrent writers never lose samples.
func (r *SessionRepo) AppendSample(ctx context.Context, sessionID string, sample domain.Sample) error {
	elem, err := codec.EncodeSample(sample)
	if err != nil {
		return err
	}
	res, err := r.db.SQL.ExecContext(ctx, `
		UPDATE survey_sessions
		SET track_data = json_insert(COALESCE(NULLIF(track_data, ''), '[]'), '$[#]', json(?))
		WHERE id = ? AND state = 'active'
	`, elem, sessionID)
	if err != nil {
		return translate(err)
	}
	return closedIfUnchanged(res)
}

func closedIfUnchanged(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrSessionClosed
	}
	return nil
}

// Remove deletes a session.
func (r *SessionRepo) Remove(ctx context.Context, id string) error {
	res, err := r.db.SQL.ExecContext(ctx, `DELETE FROM survey_sessions WHERE id = ?`, id)
	if err != nil {
		return translate(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
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
		state, start   string
		track          string
		endLat, endLon sql.NullFloat64
		endTime        sql.NullString
		duration       sql.NullInt64
	)
	err := row.Scan(&s.ID, &s.OwnerID, &state, &s.StartLocation.Lat, &s.StartLocation.Lon,
		&endLat, &endLon, &start, &endTime, &duration, &track)
	if err != nil {
		return nil, translate(err)
	}

	s.State = domain.SessionState(state)
	if !s.State.Valid() {
		return nil, fmt.Errorf("session %s: unknown state %q", s.ID, state)
	}
	if s.StartTime, err = parseTime(start); err != nil {
		return nil, fmt.Errorf("session %s: %w", s.ID, err)
	}
	if endLat.Valid && endLon.Valid {
		s.EndLocation = &domain.GeoPoint{Lat: endLat.Float64, Lon: endLon.Float64}
	}
	if endTime.Valid {
		t, err := parseTime(endTime.String)
		if err != nil {
			return nil, fmt.Errorf("session %s: %w", s.ID, err)
		}
		s.EndTime = &t
	}
	if duration.Valid {
		d := duration.Int64
		s.DurationSeconds = &d
	}
	if s.Track, err = codec.Decode(track); err != nil {
		return nil, fmt.Errorf("session %s: %w", s.ID, err)
	}
	return &s, nil
}

// Times are stored as fixed-width UTC text so that they sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
