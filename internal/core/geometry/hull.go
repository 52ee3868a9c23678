package geometry

import (
	"fmt"
	"slices"

	"github.com/ShaoKhan/finder-sub000/internal/core/domain"
)

// HullBuilder constructs a hull boundary from at least three samples.
type HullBuilder interface {
	Name() string
	Build(points []domain.Sample) []domain.Sample
}

const (
	HullLegacy   = "legacy"
	HullMonotone = "monotone"
)

// NewHullBuilder returns the builder registered under name.
func NewHullBuilder(name string) (HullBuilder, error) {
	switch name {
	case "", HullLegacy:
		return LegacyChainHull{}, nil
	case HullMonotone:
		return MonotoneChainHull{}, nil
	default:
		return nil, fmt.Errorf("unknown hull builder %q", name)
	}
}

// LegacyChainHull is the single-chain scan that existing stored areas were
// computed with. It orders samples by latitude then longitude using a
// comparator that truncates coordinate differences to whole degrees, so
// samples less than a degree apart keep their recorded order. It then builds
// one chain only, which can yield a partial boundary instead of the full
// convex hull.
type LegacyChainHull struct{}

func (LegacyChainHull) Name() string { return HullLegacy }

func (LegacyChainHull) Build(points []domain.Sample) []domain.Sample {
	sorted := slices.Clone(points)
	slices.SortStableFunc(sorted, legacyCompare)

	hull := make([]domain.Sample, 0, len(sorted))
	hull = append(hull, sorted[0], sorted[1])
	for _, c := range sorted[2:] {
		for len(hull) > 1 && Cross(hull[len(hull)-2], hull[len(hull)-1], c) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, c)
	}
	return hull
}

// legacyCompare truncates differences toward zero, so it is not a strict
// weak ordering once samples span a degree or more: latitudes 0, 0.6 and 1.2
// compare 0≈0.6 and 0.6≈1.2 yet 0<1.2. The resulting order is whatever the
// sort algorithm makes of it, currently insertion order within blocks of
// slices.SortStableFunc.
func legacyCompare(a, b domain.Sample) int {
	if a.Latitude == b.Latitude {
		return int(a.Longitude - b.Longitude)
	}
	return int(a.Latitude - b.Latitude)
}

// MonotoneChainHull is Andrew's monotone chain: lower and upper chains over
// an exact (longitude, latitude) ordering, merged counter-clockwise without
// collinear points.
type MonotoneChainHull struct{}

func (MonotoneChainHull) Name() string { return HullMonotone }

func (MonotoneChainHull) Build(points []domain.Sample) []domain.Sample {
	sorted := slices.Clone(points)
	slices.SortStableFunc(sorted, func(a, b domain.Sample) int {
		if a.Longitude != b.Longitude {
			return cmpFloat(a.Longitude, b.Longitude)
		}
		return cmpFloat(a.Latitude, b.Latitude)
	})
	sorted = slices.CompactFunc(sorted, func(a, b domain.Sample) bool {
		return a.Latitude == b.Latitude && a.Longitude == b.Longitude
	})
	if len(sorted) < 3 {
		return sorted
	}

	hull := make([]domain.Sample, 0, 2*len(sorted))
	for _, p := range sorted {
		for len(hull) >= 2 && Cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(sorted) - 2; i >= 0; i-- {
		p := sorted[i]
		for len(hull) >= lower && Cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	return hull[:len(hull)-1]
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
