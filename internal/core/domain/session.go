package domain

import "time"

// SessionState is the lifecycle state of a survey session.
type SessionState string

const (
	SessionActive    SessionState = "active"
	SessionCompleted SessionState = "completed"
)

// Valid reports whether s is a known state.
func (s SessionState) Valid() bool {
	return s == SessionActive || s == SessionCompleted
}

// Sample is a single timestamped GPS fix.
type Sample struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Timestamp time.Time `json:"timestamp"`
}

// Point returns the sample position.
func (s Sample) Point() GeoPoint {
	return GeoPoint{Lat: s.Latitude, Lon: s.Longitude}
}

// Session is one continuous field-survey walk (Begehung) and the samples
// recorded along it. A session owns its track; callers get copies.
type Session struct {
	ID              string       `json:"id"`
	OwnerID         string       `json:"owner_id"`
	State           SessionState `json:"state"`
	StartLocation   GeoPoint     `json:"start_location"`
	EndLocation     *GeoPoint    `json:"end_location,omitempty"`
	StartTime       time.Time    `json:"start_time"`
	EndTime         *time.Time   `json:"end_time,omitempty"`
	DurationSeconds *int64       `json:"duration_seconds,omitempty"`
	Track           []Sample     `json:"track"`
}

// NewSession returns an active session with an empty track.
func NewSession(id, ownerID string, start GeoPoint, now time.Time) *Session {
	return &Session{
		ID:            id,
		OwnerID:       ownerID,
		State:         SessionActive,
		StartLocation: start,
		StartTime:     now,
		Track:         []Sample{},
	}
}

// Active reports whether the session still accepts samples.
func (s *Session) Active() bool {
	return s.State == SessionActive
}

// Append adds a sample to the end of the track.
func (s *Session) Append(sample Sample) error {
	if !s.Active() {
		return ErrSessionClosed
	}
	s.Track = append(s.Track, sample)
	return nil
}

// Finish completes the session at end. The end time never precedes the
// start time, and the duration is whole seconds between the two.
func (s *Session) Finish(end GeoPoint, now time.Time) error {
	if !s.Active() {
		return ErrSessionClosed
	}
	if now.Before(s.StartTime) {
		now = s.StartTime
	}
	duration := now.Unix() - s.StartTime.Unix()

	s.EndLocation = &end
	s.EndTime = &now
	s.DurationSeconds = &duration
	s.State = SessionCompleted
	return nil
}

// Samples returns a copy of the track.
func (s *Session) Samples() []Sample {
	out := make([]Sample, len(s.Track))
	copy(out, s.Track)
	return out
}

// Duration returns the recorded duration in seconds, or 0 while active.
func (s *Session) Duration() int64 {
	if s.DurationSeconds == nil {
		return 0
	}
	return *s.DurationSeconds
}

// SessionStats are the metrics derived from a session's track.
type SessionStats struct {
	Distance float64 `json:"distance"`
	Area     float64 `json:"area"`
	Duration int64   `json:"duration"`
}

// SessionSummary is one row of an owner's session history.
type SessionSummary struct {
	ID         string     `json:"id"`
	StartTime  time.Time  `json:"start_time"`
	EndTime    *time.Time `json:"end_time,omitempty"`
	Distance   float64    `json:"distance"`
	Area       float64    `json:"area"`
	Duration   int64      `json:"duration"`
	PointCount int        `json:"point_count"`
	TrackData  []Sample   `json:"track_data"`
}
