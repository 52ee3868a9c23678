package domain

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrInvalidCoordinate = errors.New("invalid coordinate")
	ErrConflict          = errors.New("an active session already exists")
	ErrNotFound          = errors.New("not found")
	ErrSessionClosed     = errors.New("session is closed")
	ErrPurgeUnavailable  = errors.New("purge scheduling is not configured")
)

// CoordinateError describes a latitude or longitude outside its valid range.
type CoordinateError struct {
	Field string
	Value float64
}

func (e *CoordinateError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Value)
}

func (e *CoordinateError) Unwrap() error { return ErrInvalidCoordinate }

// ValidateCoordinates checks lat ∈ [-90,90] and lon ∈ [-180,180].
func ValidateCoordinates(lat, lon float64) error {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return &CoordinateError{Field: "latitude", Value: lat}
	}
	if math.IsNaN(lon) || lon < -180 || lon > 180 {
		return &CoordinateError{Field: "longitude", Value: lon}
	}
	return nil
}
