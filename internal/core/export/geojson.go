// Package export renders session tracks as GeoJSON features for map display.
package export

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/ShaoKhan/finder-sub000/internal/core/domain"
	"github.com/ShaoKhan/finder-sub000/internal/core/geometry"
)

// BufferDegrees is the half-width of the two-point buffer rectangle. It
// stands for roughly two meters of latitude; the east-west extent it
// represents shrinks away from the equator.
const BufferDegrees = 0.00002

const (
	NameTrack  = "GPS Track"
	NameHull   = "Survey Area (Convex Hull)"
	NameBuffer = "Survey Area (2m Buffer Zone)"
)

// Exporter builds track and area features using a geometry engine.
type Exporter struct {
	engine *geometry.Engine
}

// NewExporter creates an Exporter.
func NewExporter(engine *geometry.Engine) *Exporter {
	return &Exporter{engine: engine}
}

// TrackFeature returns the raw track as a LineString in recorded order.
func (x *Exporter) TrackFeature(points []domain.Sample) *geojson.Feature {
	line := make(orb.LineString, len(points))
	for i, p := range points {
		line[i] = toPoint(p)
	}
	f := geojson.NewFeature(line)
	f.Properties["name"] = NameTrack
	f.Properties["distance"] = geometry.TrackDistance(points)
	f.Properties["area"] = x.engine.Area(points)
	return f
}

// PolygonFeature returns the surveyed area, or nil for fewer than two
// points. A hull of three or more points becomes a closed ring; otherwise a
// rectangle is buffered around the segment.
func (x *Exporter) PolygonFeature(points []domain.Sample) *geojson.Feature {
	if len(points) < 2 {
		return nil
	}
	area := x.engine.Area(points)
	hull := x.engine.Hull(points)

	if len(hull) >= 3 {
		ring := make(orb.Ring, 0, len(hull)+1)
		for _, p := range hull {
			ring = append(ring, toPoint(p))
		}
		ring = append(ring, ring[0])

		f := geojson.NewFeature(orb.Polygon{ring})
		f.Properties["name"] = NameHull
		f.Properties["area"] = area
		f.Properties["points"] = len(hull)
		return f
	}

	f := geojson.NewFeature(orb.Polygon{bufferRing(hull[0], hull[len(hull)-1])})
	f.Properties["name"] = NameBuffer
	f.Properties["area"] = area
	f.Properties["points"] = 2
	return f
}

// Collection bundles the track and area features with a bounding box.
func (x *Exporter) Collection(points []domain.Sample) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	fc.Append(x.TrackFeature(points))
	if poly := x.PolygonFeature(points); poly != nil {
		fc.Append(poly)
	}
	if len(points) > 0 {
		b := geometry.Envelope(points)
		fc.BBox = geojson.NewBBox(orb.Bound{
			Min: orb.Point{b.MinLon, b.MinLat},
			Max: orb.Point{b.MaxLon, b.MaxLat},
		})
	}
	return fc
}

// bufferRing offsets the segment a→b to both sides by BufferDegrees,
// perpendicular to its direction in degree space.
func bufferRing(a, b domain.Sample) orb.Ring {
	angle := math.Atan2(b.Latitude-a.Latitude, b.Longitude-a.Longitude)
	dx := -math.Sin(angle) * BufferDegrees
	dy := math.Cos(angle) * BufferDegrees

	first := orb.Point{a.Longitude + dx, a.Latitude + dy}
	return orb.Ring{
		first,
		{b.Longitude + dx, b.Latitude + dy},
		{b.Longitude - dx, b.Latitude - dy},
		{a.Longitude - dx, a.Latitude - dy},
		first,
	}
}

func toPoint(s domain.Sample) orb.Point {
	return orb.Point{s.Longitude, s.Latitude}
}
