package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"

	"github.com/ShaoKhan/finder-sub000/internal/adapters/postgres"
	"github.com/ShaoKhan/finder-sub000/internal/core/domain"
)

var sessionCols = []string{"id", "owner_id", "state", "start_lat", "start_lon", "end_lat", "end_lon",
	"start_time", "end_time", "duration_seconds", "track_data"}

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		mock.Close()
	})
	return mock
}

func TestSessionRepo_FindActiveByOwner(t *testing.T) {
	mock := newMock(t)
	repo := postgres.NewSessionRepo(mock)
	started := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM survey_sessions\s+WHERE owner_id = \$1 AND state = 'active'`).
		WithArgs("owner-1").
		WillReturnRows(pgxmock.NewRows(sessionCols).AddRow(
			"s-1", "owner-1", "active", 48.1, 11.5, (*float64)(nil), (*float64)(nil),
			started, (*time.Time)(nil), (*int64)(nil),
			`[{"latitude":48.1,"longitude":11.5,"timestamp":"2024-03-01T09:00:30Z"}]`,
		))

	s, err := repo.FindActiveByOwner(context.Background(), "owner-1")
	if err != nil {
		t.Fatalf("find active: %v", err)
	}
	if s.ID != "s-1" || !s.Active() || s.EndLocation != nil || s.EndTime != nil {
		t.Errorf("unexpected session %+v", s)
	}
	if len(s.Track) != 1 || s.Track[0].Latitude != 48.1 {
		t.Errorf("unexpected track %+v", s.Track)
	}
}

func TestSessionRepo_FindActiveByOwner_None(t *testing.T) {
	mock := newMock(t)
	repo := postgres.NewSessionRepo(mock)

	mock.ExpectQuery(`FROM survey_sessions`).
		WithArgs("owner-1").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.FindActiveByOwner(context.Background(), "owner-1")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSessionRepo_FindByOwner(t *testing.T) {
	mock := newMock(t)
	repo := postgres.NewSessionRepo(mock)
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	endLat, endLon, dur := 48.2, 11.6, int64(3600)

	mock.ExpectQuery(`ORDER BY start_time DESC`).
		WithArgs("owner-1").
		WillReturnRows(pgxmock.NewRows(sessionCols).
			AddRow("s-2", "owner-1", "active", 48.1, 11.5, (*float64)(nil), (*float64)(nil),
				end, (*time.Time)(nil), (*int64)(nil), "").
			AddRow("s-1", "owner-1", "completed", 48.1, 11.5, &endLat, &endLon,
				start, &end, &dur, "[]"))

	sessions, err := repo.FindByOwner(context.Background(), "owner-1")
	if err != nil {
		t.Fatalf("find by owner: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	done := sessions[1]
	if done.State != domain.SessionCompleted || done.Duration() != 3600 || done.EndLocation.Lat != 48.2 {
		t.Errorf("unexpected completed session %+v", done)
	}
	if sessions[0].Track == nil {
		t.Error("blank track_data should decode to an empty track")
	}
}

func TestSessionRepo_Persist(t *testing.T) {
	mock := newMock(t)
	repo := postgres.NewSessionRepo(mock)
	s := domain.NewSession("s-1", "owner-1", domain.GeoPoint{Lat: 1, Lon: 2}, time.Unix(1700000000, 0).UTC())

	mock.ExpectExec(`INSERT INTO survey_sessions .* ON CONFLICT \(id\) DO UPDATE`).
		WithArgs("s-1", "owner-1", "active", 1.0, 2.0, (*float64)(nil), (*float64)(nil),
			s.StartTime, (*time.Time)(nil), (*int64)(nil), "[]").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := repo.Persist(context.Background(), s); err != nil {
		t.Fatalf("persist: %v", err)
	}
}

func TestSessionRepo_Persist_CompletedRowIsTerminal(t *testing.T) {
	mock := newMock(t)
	repo := postgres.NewSessionRepo(mock)
	// A snapshot loaded before a concurrent stop still reads as active.
	stale := domain.NewSession("s-1", "owner-1", domain.GeoPoint{}, time.Now())

	mock.ExpectExec(`ON CONFLICT \(id\) DO UPDATE .* WHERE survey_sessions.state = 'active'`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	if err := repo.Persist(context.Background(), stale); !errors.Is(err, domain.ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
}

func TestSessionRepo_AppendSample(t *testing.T) {
	mock := newMock(t)
	repo := postgres.NewSessionRepo(mock)
	sample := domain.Sample{Latitude: 48.1, Longitude: 11.5, Timestamp: time.Date(2024, 3, 1, 9, 0, 30, 0, time.UTC)}
	elem := `[{"latitude":48.1,"longitude":11.5,"timestamp":"2024-03-01T09:00:30Z"}]`

	mock.ExpectExec(`UPDATE survey_sessions\s+SET track_data = .*::jsonb \|\| \$2::jsonb.*WHERE id = \$1 AND state = 'active'`).
		WithArgs("s-1", elem).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE survey_sessions`).
		WithArgs("s-1", elem).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	if err := repo.AppendSample(context.Background(), "s-1", sample); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := repo.AppendSample(context.Background(), "s-1", sample); !errors.Is(err, domain.ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed after stop, got %v", err)
	}
}

func TestSessionRepo_Persist_Conflict(t *testing.T) {
	mock := newMock(t)
	repo := postgres.NewSessionRepo(mock)
	s := domain.NewSession("s-2", "owner-1", domain.GeoPoint{}, time.Now())

	mock.ExpectExec(`INSERT INTO survey_sessions`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "survey_sessions_one_active_per_owner"})

	err := repo.Persist(context.Background(), s)
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestSessionRepo_Remove(t *testing.T) {
	mock := newMock(t)
	repo := postgres.NewSessionRepo(mock)

	mock.ExpectExec(`DELETE FROM survey_sessions`).
		WithArgs("s-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(`DELETE FROM survey_sessions`).
		WithArgs("missing").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	if err := repo.Remove(context.Background(), "s-1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := repo.Remove(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFindRepo_DetachAndReattach(t *testing.T) {
	mock := newMock(t)
	repo := postgres.NewFindRepo(mock)

	mock.ExpectQuery(`UPDATE finds SET session_id = NULL\s+WHERE session_id = \$1\s+RETURNING id`).
		WithArgs("s-1").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("f-1").AddRow("f-2"))

	ids, err := repo.DetachSession(context.Background(), "s-1")
	if err != nil {
		t.Fatalf("detach: %v", err)
	}
	if len(ids) != 2 || ids[0] != "f-1" {
		t.Fatalf("unexpected ids %v", ids)
	}

	mock.ExpectExec(`UPDATE finds SET session_id = \$2`).
		WithArgs([]string{"f-1", "f-2"}, "s-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))

	if err := repo.Reattach(context.Background(), ids, "s-1"); err != nil {
		t.Fatalf("reattach: %v", err)
	}
	if err := repo.Reattach(context.Background(), nil, "s-1"); err != nil {
		t.Fatalf("reattach with no ids should be a no-op: %v", err)
	}
}

func TestFindRepo_ListBySession(t *testing.T) {
	mock := newMock(t)
	repo := postgres.NewFindRepo(mock)
	sid := "s-1"
	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM finds\s+WHERE session_id = \$1`).
		WithArgs("s-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "owner_id", "session_id", "name", "lat", "lon", "created_at"}).
			AddRow("f-1", "owner-1", &sid, "Roman coin", 48.1, 11.5, created))

	finds, err := repo.ListBySession(context.Background(), "s-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(finds) != 1 || finds[0].SessionID == nil || *finds[0].SessionID != "s-1" {
		t.Errorf("unexpected finds %+v", finds)
	}
}
