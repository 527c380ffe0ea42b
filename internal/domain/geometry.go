package domain

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

const (
	// maxRepairDepth bounds how many crossings one ring is split at.
	maxRepairDepth = 16
	intersectEps   = 1e-9
	areaEps        = 1e-12
)

// ExteriorRings flattens a GeoJSON geometry into the exterior ring of every
// polygon it contains. Holes and non-areal geometries are dropped.
func ExteriorRings(g orb.Geometry) []orb.Ring {
	switch geom := g.(type) {
	case orb.Polygon:
		if len(geom) == 0 {
			return nil
		}
		return []orb.Ring{geom[0]}
	case orb.MultiPolygon:
		rings := make([]orb.Ring, 0, len(geom))
		for _, p := range geom {
			if len(p) > 0 {
				rings = append(rings, p[0])
			}
		}
		return rings
	case orb.Ring:
		return []orb.Ring{geom}
	case orb.Collection:
		var rings []orb.Ring
		for _, child := range geom {
			rings = append(rings, ExteriorRings(child)...)
		}
		return rings
	default:
		return nil
	}
}

// RepairRing turns a possibly open, duplicated or self-intersecting ring into
// one or more simple closed rings. A ring with fewer than three distinct
// vertices, or with no area left after repair, returns ErrGeometry.
func RepairRing(r orb.Ring) ([]orb.Ring, error) {
	pts := distinctVertices(r)
	if len(pts) < 3 {
		return nil, fmt.Errorf("%w: ring has %d distinct vertices", ErrGeometry, len(pts))
	}

	parts := splitAtCrossings(pts, 0)
	rings := make([]orb.Ring, 0, len(parts))
	for _, p := range parts {
		if len(p) < 3 || math.Abs(signedArea(p)) < areaEps {
			continue
		}
		rings = append(rings, closeRing(p))
	}
	if len(rings) == 0 {
		return nil, fmt.Errorf("%w: ring has no area", ErrGeometry)
	}
	return rings, nil
}

// RepairShape repairs every ring of a shape and drops the ones that cannot
// be repaired. Shapes are repaired once when loaded from a feed; ShapeContains
// expects repaired rings.
func RepairShape(shape []orb.Ring) []orb.Ring {
	if len(shape) == 0 {
		return nil
	}
	out := make([]orb.Ring, 0, len(shape))
	for _, ring := range shape {
		parts, err := RepairRing(ring)
		if err != nil {
			continue
		}
		out = append(out, parts...)
	}
	return out
}

// ShapeContains reports whether p lies inside or on the boundary of any ring
// of a repaired shape.
func ShapeContains(shape []orb.Ring, p orb.Point) bool {
	for _, ring := range shape {
		if len(ring) < 4 || !ring.Bound().Contains(p) {
			continue
		}
		if planar.RingContains(ring, p) {
			return true
		}
	}
	return false
}

// ValidateCoordinate rejects missing (zero) and out-of-range coordinates.
func ValidateCoordinate(c Coordinate) error {
	if c.Latitude == 0 || c.Longitude == 0 {
		return Validationf("coordinate (%v, %v) is missing a component", c.Latitude, c.Longitude)
	}
	if c.Latitude < -90 || c.Latitude > 90 || c.Longitude < -180 || c.Longitude > 180 {
		return Validationf("coordinate (%v, %v) is out of range", c.Latitude, c.Longitude)
	}
	return nil
}

// WesternLongitude forces the longitude negative. Report text usually gives
// "97.45W" as a bare positive number.
func WesternLongitude(c Coordinate) Coordinate {
	if c.Longitude > 0 {
		c.Longitude = -c.Longitude
	}
	return c
}

// distinctVertices drops consecutive duplicates and the closing vertex.
func distinctVertices(r orb.Ring) []orb.Point {
	pts := make([]orb.Point, 0, len(r))
	for _, p := range r {
		if len(pts) > 0 && pts[len(pts)-1].Equal(p) {
			continue
		}
		pts = append(pts, p)
	}
	for len(pts) > 1 && pts[0].Equal(pts[len(pts)-1]) {
		pts = pts[:len(pts)-1]
	}
	return pts
}

// splitAtCrossings splits an open vertex loop at a pair of non-adjacent
// edges that cross, recursing on both halves.
func splitAtCrossings(pts []orb.Point, depth int) [][]orb.Point {
	n := len(pts)
	if depth >= maxRepairDepth || n < 4 {
		return [][]orb.Point{pts}
	}
	i, j, x, ok := findCrossing(pts)
	if !ok {
		return [][]orb.Point{pts}
	}
	inner := append([]orb.Point{x}, pts[i+1:j+1]...)
	outer := make([]orb.Point, 0, n-(j-i)+1)
	outer = append(outer, pts[:i+1]...)
	outer = append(outer, x)
	outer = append(outer, pts[j+1:]...)
	return append(splitAtCrossings(inner, depth+1), splitAtCrossings(outer, depth+1)...)
}

// findCrossing sweeps the edges of a vertex loop in order of their minimum x
// and only tests pairs whose x ranges overlap. Edge k joins pts[k] and
// pts[k+1]; the returned edge indexes satisfy i < j.
func findCrossing(pts []orb.Point) (int, int, orb.Point, bool) {
	n := len(pts)
	lo := make([]float64, n)
	hi := make([]float64, n)
	order := make([]int, n)
	for k := range n {
		a, b := pts[k][0], pts[(k+1)%n][0]
		lo[k], hi[k] = min(a, b), max(a, b)
		order[k] = k
	}
	slices.SortFunc(order, func(a, b int) int { return cmp.Compare(lo[a], lo[b]) })

	active := make([]int, 0, 16)
	for _, k := range order {
		kept := active[:0]
		for _, a := range active {
			if hi[a] >= lo[k] {
				kept = append(kept, a)
			}
		}
		active = kept

		for _, a := range active {
			i, j := min(a, k), max(a, k)
			if j-i < 2 || (i == 0 && j == n-1) {
				continue
			}
			if x, ok := crossing(pts[i], pts[(i+1)%n], pts[j], pts[(j+1)%n]); ok {
				return i, j, x, true
			}
		}
		active = append(active, k)
	}
	return 0, 0, orb.Point{}, false
}

// crossing returns the point where segments a and b cross in their interiors.
func crossing(a1, a2, b1, b2 orb.Point) (orb.Point, bool) {
	rx, ry := a2[0]-a1[0], a2[1]-a1[1]
	sx, sy := b2[0]-b1[0], b2[1]-b1[1]
	den := rx*sy - ry*sx
	if math.Abs(den) < areaEps {
		return orb.Point{}, false
	}
	qx, qy := b1[0]-a1[0], b1[1]-a1[1]
	t := (qx*sy - qy*sx) / den
	u := (qx*ry - qy*rx) / den
	if t <= intersectEps || t >= 1-intersectEps || u <= intersectEps || u >= 1-intersectEps {
		return orb.Point{}, false
	}
	return orb.Point{a1[0] + t*rx, a1[1] + t*ry}, true
}

func signedArea(pts []orb.Point) float64 {
	var sum float64
	for i := range pts {
		j := (i + 1) % len(pts)
		sum += pts[i][0]*pts[j][1] - pts[j][0]*pts[i][1]
	}
	return sum / 2
}

func closeRing(pts []orb.Point) orb.Ring {
	ring := make(orb.Ring, 0, len(pts)+1)
	ring = append(ring, pts...)
	return append(ring, pts[0])
}
