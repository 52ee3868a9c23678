// Package geometry derives distance, hull and area metrics from GPS tracks.
//
// All functions are pure and safe for concurrent use. Areas are computed in
// degree space and scaled by a fixed degree²→m² factor, which is only a
// small-area approximation: it ignores the narrowing of longitude degrees
// away from the equator and is not geodesically exact.
package geometry

import (
	"math"

	"github.com/ShaoKhan/finder-sub000/internal/core/domain"
	"github.com/ShaoKhan/finder-sub000/internal/pkg/geospatial"
)

const (
	// DefaultMinDistanceMeters is the noise filter threshold.
	DefaultMinDistanceMeters = 1.0

	// BufferRadiusMeters is the half-width of the stadium used for 2-point tracks.
	BufferRadiusMeters = 2.0

	// SquareMetersPerDegree2 converts degree² to m² (≈ 111,320²).
	SquareMetersPerDegree2 = 12_393_742_400.0
)

// Distance returns the great-circle distance between two samples in meters.
func Distance(a, b domain.Sample) float64 {
	return geospatial.Haversine(a.Latitude, a.Longitude, b.Latitude, b.Longitude)
}

// TrackDistance sums the distances between consecutive raw samples.
func TrackDistance(points []domain.Sample) float64 {
	total := 0.0
	for i := 1; i < len(points); i++ {
		total += Distance(points[i-1], points[i])
	}
	return total
}

// Filter drops samples closer than minDistance meters to the last kept
// sample. The first sample is always kept.
func Filter(points []domain.Sample, minDistance float64) []domain.Sample {
	if len(points) == 0 {
		return []domain.Sample{}
	}
	kept := make([]domain.Sample, 0, len(points))
	kept = append(kept, points[0])
	for _, p := range points[1:] {
		if Distance(kept[len(kept)-1], p) >= minDistance {
			kept = append(kept, p)
		}
	}
	return kept
}

// Cross returns the z component of OA × OB with longitude as x and latitude
// as y. Positive values mean B lies to the left of O→A.
func Cross(o, a, b domain.Sample) float64 {
	return (a.Longitude-o.Longitude)*(b.Latitude-o.Latitude) -
		(a.Latitude-o.Latitude)*(b.Longitude-o.Longitude)
}

// PolygonArea applies the shoelace formula to ring in degree space and
// converts the result to square meters. The ring need not be closed.
func PolygonArea(ring []domain.Sample) float64 {
	n := len(ring)
	if n < 3 {
		return 0
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += ring[i].Longitude*ring[j].Latitude - ring[j].Longitude*ring[i].Latitude
	}
	return math.Abs(sum) / 2 * SquareMetersPerDegree2
}

// StadiumArea is the area of a rectangle of length d and width 2b capped by
// two semicircles of radius b, with b = BufferRadiusMeters.
func StadiumArea(a, b domain.Sample) float64 {
	d := Distance(a, b)
	r := BufferRadiusMeters
	return d*(2*r) + math.Pi*r*r
}

// Envelope returns the bounding box of points.
func Envelope(points []domain.Sample) domain.Bounds {
	if len(points) == 0 {
		return domain.Bounds{}
	}
	b := domain.Bounds{
		MinLat: points[0].Latitude, MaxLat: points[0].Latitude,
		MinLon: points[0].Longitude, MaxLon: points[0].Longitude,
	}
	for _, p := range points[1:] {
		b.MinLat = math.Min(b.MinLat, p.Latitude)
		b.MaxLat = math.Max(b.MaxLat, p.Latitude)
		b.MinLon = math.Min(b.MinLon, p.Longitude)
		b.MaxLon = math.Max(b.MaxLon, p.Longitude)
	}
	return b
}
