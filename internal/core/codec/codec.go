// Package codec converts a session track to and from the JSON text stored in
// the track_data column.
package codec

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ShaoKhan/finder-sub000/internal/core/domain"
)

// Accepted timestamp layouts, most precise first. Older clients wrote
// second-precision timestamps without a zone; those are read as UTC.
var layouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

type sampleJSON struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timestamp string  `json:"timestamp"`
}

// Encode renders samples as a JSON array of {latitude, longitude, timestamp}.
func Encode(samples []domain.Sample) (string, error) {
	out := make([]sampleJSON, len(samples))
	for i, s := range samples {
		out[i] = toJSON(s)
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("encode track: %w", err)
	}
	return string(data), nil
}

// EncodeSample renders one track element, for stores that append in place.
func EncodeSample(s domain.Sample) (string, error) {
	data, err := json.Marshal(toJSON(s))
	if err != nil {
		return "", fmt.Errorf("encode sample: %w", err)
	}
	return string(data), nil
}

func toJSON(s domain.Sample) sampleJSON {
	return sampleJSON{
		Latitude:  s.Latitude,
		Longitude: s.Longitude,
		Timestamp: s.Timestamp.Format(time.RFC3339Nano),
	}
}

// Decode parses text produced by Encode. Blank text is an empty track.
func Decode(text string) ([]domain.Sample, error) {
	if strings.TrimSpace(text) == "" {
		return []domain.Sample{}, nil
	}
	var raw []sampleJSON
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("decode track: %w", err)
	}
	samples := make([]domain.Sample, len(raw))
	for i, r := range raw {
		ts, err := parseTimestamp(r.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("decode track: sample %d: %w", i, err)
		}
		samples[i] = domain.Sample{Latitude: r.Latitude, Longitude: r.Longitude, Timestamp: ts}
	}
	return samples, nil
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range layouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}
