package geometry

import (
	"slices"

	"github.com/ShaoKhan/finder-sub000/internal/core/domain"
)

// Engine applies the hull and area policies with a configurable hull
// construction and noise threshold.
type Engine struct {
	hull        HullBuilder
	minDistance float64
}

// Option configures an Engine.
type Option func(*Engine)

// WithHullBuilder replaces the default LegacyChainHull.
func WithHullBuilder(h HullBuilder) Option {
	return func(e *Engine) {
		if h != nil {
			e.hull = h
		}
	}
}

// WithMinDistance sets the noise filter threshold in meters.
func WithMinDistance(meters float64) Option {
	return func(e *Engine) {
		if meters > 0 {
			e.minDistance = meters
		}
	}
}

// NewEngine creates an Engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{hull: LegacyChainHull{}, minDistance: DefaultMinDistanceMeters}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// HullName reports the configured hull construction.
func (e *Engine) HullName() string { return e.hull.Name() }

// Filter applies the configured noise threshold.
func (e *Engine) Filter(points []domain.Sample) []domain.Sample {
	return Filter(points, e.minDistance)
}

// Hull returns the hull boundary of points. Fewer than three points are
// returned unchanged. If noise filtering leaves fewer than three points the
// unfiltered input is used instead.
func (e *Engine) Hull(points []domain.Sample) []domain.Sample {
	if len(points) < 3 {
		return slices.Clone(points)
	}
	candidates := e.Filter(points)
	if len(candidates) < 3 {
		candidates = points
	}
	return e.hull.Build(candidates)
}

// Area returns the surveyed area in square meters: 0 for fewer than two
// points, a stadium around the segment for two, otherwise the hull polygon.
func (e *Engine) Area(points []domain.Sample) float64 {
	switch len(points) {
	case 0, 1:
		return 0
	case 2:
		return StadiumArea(points[0], points[1])
	}
	return PolygonArea(e.Hull(points))
}

// Stats derives distance and area for a track.
func (e *Engine) Stats(points []domain.Sample, duration int64) domain.SessionStats {
	return domain.SessionStats{
		Distance: TrackDistance(points),
		Area:     e.Area(points),
		Duration: duration,
	}
}
