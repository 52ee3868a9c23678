package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb/geojson"
	"go.opentelemetry.io/otel/trace"

	"github.com/ShaoKhan/finder-sub000/internal/core/domain"
	"github.com/ShaoKhan/finder-sub000/internal/core/export"
	"github.com/ShaoKhan/finder-sub000/internal/core/geometry"
	"github.com/ShaoKhan/finder-sub000/internal/core/ports"
	"github.com/ShaoKhan/finder-sub000/internal/pkg/metrics"
	"github.com/ShaoKhan/finder-sub000/internal/pkg/telemetry"
)

// Completed sessions never change, so their derived data can live long.
const derivedTTL = 3600

var tracer = telemetry.Tracer("github.com/ShaoKhan/finder-sub000/internal/core/usecases")

// SessionGeoJSON is the map view of one session.
type SessionGeoJSON struct {
	Track   *geojson.Feature    `json:"track"`
	Polygon *geojson.Feature    `json:"polygon"`
	Stats   domain.SessionStats `json:"stats"`
}

// SessionService enforces the one-active-session-per-owner rule and
// derives metrics from recorded tracks.
type SessionService struct {
	sessions  ports.SessionRepository
	finds     ports.FindRepository
	publisher ports.EventPublisher
	cache     ports.CacheService
	purger    ports.PurgeScheduler
	engine    *geometry.Engine
	exporter  *export.Exporter
	now       func() time.Time
	newID     func() string
}

// SessionOption configures a SessionService.
type SessionOption func(*SessionService)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) SessionOption {
	return func(s *SessionService) { s.now = now }
}

// WithIDGenerator overrides the UUID session id generator.
func WithIDGenerator(newID func() string) SessionOption {
	return func(s *SessionService) { s.newID = newID }
}

// WithPurgeScheduler enables SchedulePurge.
func WithPurgeScheduler(p ports.PurgeScheduler) SessionOption {
	return func(s *SessionService) { s.purger = p }
}

// NewSessionService creates a new SessionService. publisher and cache may
// be nil; engine defaults to geometry.NewEngine().
func NewSessionService(
	sessions ports.SessionRepository,
	finds ports.FindRepository,
	publisher ports.EventPublisher,
	cache ports.CacheService,
	engine *geometry.Engine,
	opts ...SessionOption,
) *SessionService {
	if engine == nil {
		engine = geometry.NewEngine()
	}
	s := &SessionService{
		sessions:  sessions,
		finds:     finds,
		publisher: publisher,
		cache:     cache,
		engine:    engine,
		exporter:  export.NewExporter(engine),
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens a new session for owner at the given position.
func (s *SessionService) Start(ctx context.Context, ownerID string, lat, lon float64) (*domain.Session, error) {
	ctx, span := startSpan(ctx, "SessionService.Start", ownerID)
	session, err := s.start(ctx, ownerID, lat, lon)
	telemetry.End(span, err)
	return session, err
}

func (s *SessionService) start(ctx context.Context, ownerID string, lat, lon float64) (*domain.Session, error) {
	if err := domain.ValidateCoordinates(lat, lon); err != nil {
		return nil, err
	}

	active, err := s.active(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		metrics.SessionConflicts.Inc()
		return nil, domain.ErrConflict
	}

	session := domain.NewSession(s.newID(), ownerID, domain.GeoPoint{Lat: lat, Lon: lon}, s.now())
	if err := s.sessions.Persist(ctx, session); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			metrics.SessionConflicts.Inc()
			return nil, domain.ErrConflict
		}
		return nil, fmt.Errorf("persist session: %w", err)
	}
	metrics.SessionsStarted.Inc()

	s.publish(ctx, "session.started", func(p ports.EventPublisher) error {
		return p.PublishSessionStarted(ctx, session)
	})
	return session, nil
}

// Stop completes the owner's active session at the given position. It
// returns nil without error when there is nothing to stop.
func (s *SessionService) Stop(ctx context.Context, ownerID string, lat, lon float64) (*domain.Session, error) {
	ctx, span := startSpan(ctx, "SessionService.Stop", ownerID)
	session, err := s.stop(ctx, ownerID, lat, lon)
	telemetry.End(span, err)
	return session, err
}

func (s *SessionService) stop(ctx context.Context, ownerID string, lat, lon float64) (*domain.Session, error) {
	if err := domain.ValidateCoordinates(lat, lon); err != nil {
		return nil, err
	}

	session, err := s.active(ctx, ownerID)
	if err != nil || session == nil {
		return nil, err
	}

	if err := session.Finish(domain.GeoPoint{Lat: lat, Lon: lon}, s.now()); err != nil {
		return nil, err
	}
	if err := s.sessions.Persist(ctx, session); err != nil {
		if errors.Is(err, domain.ErrSessionClosed) {
			// Completed by a concurrent stop.
			return nil, nil
		}
		return nil, fmt.Errorf("persist session: %w", err)
	}
	metrics.SessionsStopped.Inc()

	// Samples appended after the session was loaded are only in the store.
	if stored, err := s.sessions.GetByID(ctx, session.ID); err == nil {
		session = stored
	}

	s.publish(ctx, "session.stopped", func(p ports.EventPublisher) error {
		return p.PublishSessionStopped(ctx, session)
	})
	return session, nil
}

// AddPoint appends a sample to the owner's active session. It reports false
// without error when the owner has no active session. A zero timestamp is
// replaced by the current time.
func (s *SessionService) AddPoint(ctx context.Context, ownerID string, lat, lon float64, ts time.Time) (bool, error) {
	ctx, span := startSpan(ctx, "SessionService.AddPoint", ownerID)
	recorded, err := s.addPoint(ctx, ownerID, lat, lon, ts)
	telemetry.End(span, err)
	return recorded, err
}

func (s *SessionService) addPoint(ctx context.Context, ownerID string, lat, lon float64, ts time.Time) (bool, error) {
	session, err := s.active(ctx, ownerID)
	if err != nil {
		return false, err
	}
	if session == nil {
		metrics.TrackPointsRejected.WithLabelValues("no_active_session").Inc()
		return false, nil
	}
	if err := domain.ValidateCoordinates(lat, lon); err != nil {
		metrics.TrackPointsRejected.WithLabelValues("invalid_coordinate").Inc()
		return false, err
	}

	if ts.IsZero() {
		ts = s.now()
	}
	sample := domain.Sample{Latitude: lat, Longitude: lon, Timestamp: ts}
	if err := s.sessions.AppendSample(ctx, session.ID, sample); err != nil {
		if errors.Is(err, domain.ErrSessionClosed) {
			metrics.TrackPointsRejected.WithLabelValues("no_active_session").Inc()
			return false, nil
		}
		return false, fmt.Errorf("append sample: %w", err)
	}
	metrics.TrackPointsRecorded.Inc()

	s.publish(ctx, "session.point", func(p ports.EventPublisher) error {
		return p.PublishTrackPoint(ctx, session.ID, sample)
	})
	return true, nil
}

// GetActive returns the owner's active session or nil.
func (s *SessionService) GetActive(ctx context.Context, ownerID string) (*domain.Session, error) {
	ctx, span := startSpan(ctx, "SessionService.GetActive", ownerID)
	session, err := s.active(ctx, ownerID)
	telemetry.End(span, err)
	return session, err
}

// Delete removes a session after clearing the session reference of its
// finds. Finds themselves are never deleted.
func (s *SessionService) Delete(ctx context.Context, session *domain.Session) error {
	ctx, span := startSpan(ctx, "SessionService.Delete", session.OwnerID)
	span.SetAttributes(telemetry.AttrSessionID.String(session.ID))
	err := s.delete(ctx, session.ID)
	telemetry.End(span, err)
	return err
}

func (s *SessionService) delete(ctx context.Context, sessionID string) error {
	detached, err := s.DetachFinds(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := s.RemoveDetached(ctx, sessionID); err != nil {
		if len(detached) > 0 {
			if rerr := s.ReattachFinds(ctx, detached, sessionID); rerr != nil {
				slog.ErrorContext(ctx, "reattach finds after failed delete",
					"session_id", sessionID, "finds", len(detached), "error", rerr)
			}
		}
		return err
	}
	return nil
}

// DeleteByID deletes one of the owner's sessions.
func (s *SessionService) DeleteByID(ctx context.Context, ownerID, sessionID string) error {
	session, err := s.owned(ctx, ownerID, sessionID)
	if err != nil {
		return err
	}
	return s.Delete(ctx, session)
}

// DetachFinds clears the session reference of all linked finds and returns
// their ids.
func (s *SessionService) DetachFinds(ctx context.Context, sessionID string) ([]string, error) {
	ids, err := s.finds.DetachSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("detach finds: %w", err)
	}
	return ids, nil
}

// ReattachFinds restores the session reference of findIDs.
func (s *SessionService) ReattachFinds(ctx context.Context, findIDs []string, sessionID string) error {
	if err := s.finds.Reattach(ctx, findIDs, sessionID); err != nil {
		return fmt.Errorf("reattach finds: %w", err)
	}
	return nil
}

// RemoveDetached removes a session whose finds were already detached and
// drops its cached derived data.
func (s *SessionService) RemoveDetached(ctx context.Context, sessionID string) error {
	if err := s.sessions.Remove(ctx, sessionID); err != nil {
		return fmt.Errorf("remove session: %w", err)
	}
	metrics.SessionsDeleted.Inc()

	if s.cache != nil {
		for _, key := range []string{summaryKey(sessionID), geoJSONKey(sessionID)} {
			if err := s.cache.Delete(ctx, key); err != nil {
				slog.WarnContext(ctx, "cache invalidation failed", "key", key, "error", err)
			}
		}
	}
	s.publish(ctx, "session.deleted", func(p ports.EventPublisher) error {
		return p.PublishSessionDeleted(ctx, sessionID)
	})
	return nil
}

// Finds lists the finds recorded during one of the owner's sessions.
func (s *SessionService) Finds(ctx context.Context, ownerID, sessionID string) ([]domain.Find, error) {
	if _, err := s.owned(ctx, ownerID, sessionID); err != nil {
		return nil, err
	}
	finds, err := s.finds.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list finds: %w", err)
	}
	return finds, nil
}

// OwnerSessionIDs lists the ids of every session of an owner.
func (s *SessionService) OwnerSessionIDs(ctx context.Context, ownerID string) ([]string, error) {
	sessions, err := s.sessions.FindByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	ids := make([]string, len(sessions))
	for i := range sessions {
		ids[i] = sessions[i].ID
	}
	return ids, nil
}

// History returns summaries of the owner's completed sessions, newest first.
func (s *SessionService) History(ctx context.Context, ownerID string) ([]domain.SessionSummary, error) {
	ctx, span := startSpan(ctx, "SessionService.History", ownerID)
	summaries, err := s.history(ctx, ownerID)
	telemetry.End(span, err)
	return summaries, err
}

func (s *SessionService) history(ctx context.Context, ownerID string) ([]domain.SessionSummary, error) {
	sessions, err := s.sessions.FindByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	summaries := make([]domain.SessionSummary, 0, len(sessions))
	for i := range sessions {
		session := &sessions[i]
		if session.Active() {
			continue
		}
		var summary domain.SessionSummary
		if !s.cached(ctx, "summary", summaryKey(session.ID), &summary) {
			summary = s.Summarize(session)
			s.store(ctx, summaryKey(session.ID), summary)
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// Summarize derives the history row of a session.
func (s *SessionService) Summarize(session *domain.Session) domain.SessionSummary {
	stats := s.Stats(session)
	return domain.SessionSummary{
		ID:         session.ID,
		StartTime:  session.StartTime,
		EndTime:    session.EndTime,
		Distance:   stats.Distance,
		Area:       stats.Area,
		Duration:   stats.Duration,
		PointCount: len(session.Track),
		TrackData:  session.Samples(),
	}
}

// Stats derives distance, area and duration of a session.
func (s *SessionService) Stats(session *domain.Session) domain.SessionStats {
	start := time.Now()
	defer func() {
		metrics.GeometryDuration.WithLabelValues("stats").Observe(time.Since(start).Seconds())
	}()
	return s.engine.Stats(session.Track, session.Duration())
}

// GeoJSON renders one of the owner's sessions for map display.
func (s *SessionService) GeoJSON(ctx context.Context, ownerID, sessionID string) (*SessionGeoJSON, error) {
	ctx, span := startSpan(ctx, "SessionService.GeoJSON", ownerID)
	span.SetAttributes(telemetry.AttrSessionID.String(sessionID))
	out, err := s.geoJSON(ctx, span, ownerID, sessionID)
	telemetry.End(span, err)
	return out, err
}

func (s *SessionService) geoJSON(ctx context.Context, span trace.Span, ownerID, sessionID string) (*SessionGeoJSON, error) {
	session, err := s.owned(ctx, ownerID, sessionID)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(
		telemetry.AttrTrackSize.Int(len(session.Track)),
		telemetry.AttrHullKind.String(s.engine.HullName()),
	)

	completed := !session.Active()
	var out SessionGeoJSON
	if completed && s.cached(ctx, "geojson", geoJSONKey(session.ID), &out) {
		setHullPoints(span, out.Polygon)
		return &out, nil
	}

	start := time.Now()
	out = SessionGeoJSON{
		Track:   s.exporter.TrackFeature(session.Track),
		Polygon: s.exporter.PolygonFeature(session.Track),
		Stats:   s.engine.Stats(session.Track, session.Duration()),
	}
	metrics.GeometryDuration.WithLabelValues("geojson").Observe(time.Since(start).Seconds())
	setHullPoints(span, out.Polygon)

	if completed {
		s.store(ctx, geoJSONKey(session.ID), out)
	}
	return &out, nil
}

// setHullPoints records the polygon's "points" property. Features decoded
// from the cache carry it as float64.
func setHullPoints(span trace.Span, polygon *geojson.Feature) {
	if polygon == nil {
		return
	}
	switch n := polygon.Properties["points"].(type) {
	case int:
		span.SetAttributes(telemetry.AttrHullPoints.Int(n))
	case float64:
		span.SetAttributes(telemetry.AttrHullPoints.Int(int(n)))
	}
}

// FeatureCollection renders one of the owner's sessions as a standalone
// GeoJSON FeatureCollection with a bounding box.
func (s *SessionService) FeatureCollection(ctx context.Context, ownerID, sessionID string) (*geojson.FeatureCollection, error) {
	ctx, span := startSpan(ctx, "SessionService.FeatureCollection", ownerID)
	span.SetAttributes(telemetry.AttrSessionID.String(sessionID))
	session, err := s.owned(ctx, ownerID, sessionID)
	telemetry.End(span, err)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	fc := s.exporter.Collection(session.Track)
	metrics.GeometryDuration.WithLabelValues("collection").Observe(time.Since(start).Seconds())
	return fc, nil
}

// SchedulePurge starts the background removal of all the owner's sessions.
func (s *SessionService) SchedulePurge(ctx context.Context, ownerID string) (string, error) {
	if s.purger == nil {
		return "", domain.ErrPurgeUnavailable
	}
	ctx, span := startSpan(ctx, "SessionService.SchedulePurge", ownerID)
	id, err := s.purger.SchedulePurge(ctx, ownerID)
	if err == nil {
		metrics.PurgesScheduled.Inc()
	}
	telemetry.End(span, err)
	return id, err
}

// active returns the owner's active session, or nil if there is none.
func (s *SessionService) active(ctx context.Context, ownerID string) (*domain.Session, error) {
	session, err := s.sessions.FindActiveByOwner(ctx, ownerID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find active session: %w", err)
	}
	return session, nil
}

// owned loads a session and hides sessions of other owners as not found.
func (s *SessionService) owned(ctx context.Context, ownerID, sessionID string) (*domain.Session, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	if session.OwnerID != ownerID {
		return nil, domain.ErrNotFound
	}
	return session, nil
}

func (s *SessionService) publish(ctx context.Context, event string, fn func(ports.EventPublisher) error) {
	if s.publisher == nil {
		return
	}
	if err := fn(s.publisher); err != nil {
		slog.WarnContext(ctx, "publish event failed", "event", event, "error", err)
	}
}

func (s *SessionService) cached(ctx context.Context, op, key string, dst any) bool {
	if s.cache == nil {
		return false
	}
	data, err := s.cache.Get(ctx, key)
	if err != nil {
		metrics.CacheMisses.WithLabelValues(op).Inc()
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		metrics.CacheMisses.WithLabelValues(op).Inc()
		return false
	}
	metrics.CacheHits.WithLabelValues(op).Inc()
	return true
}

func (s *SessionService) store(ctx context.Context, key string, v any) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, data, derivedTTL); err != nil {
		slog.WarnContext(ctx, "cache write failed", "key", key, "error", err)
	}
}

func summaryKey(sessionID string) string { return "sessions:summary:" + sessionID }
func geoJSONKey(sessionID string) string { return "sessions:geojson:" + sessionID }

func startSpan(ctx context.Context, name, ownerID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(telemetry.AttrOwnerID.String(ownerID)))
}
