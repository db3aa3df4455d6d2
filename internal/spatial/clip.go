package spatial

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// Clipping of geometries against a convex ring. H3 cell boundaries are
// convex hexagons (pentagons at worst), which keeps both the polygon and
// the segment case simple: Sutherland-Hodgman for rings, Cyrus-Beck for
// segments. Coordinates are treated as planar, which is accurate at
// city-scale cell sizes; areas and lengths of the clipped pieces are then
// measured on the sphere.

func cross(o, a, b orb.Point) float64 {
	return (a[0]-o[0])*(b[1]-o[1]) - (a[1]-o[1])*(b[0]-o[0])
}

// signedArea is the planar shoelace area of a ring in degree units. Only
// its sign is used, to detect orientation.
func signedArea(r orb.Ring) float64 {
	var sum float64
	for i := 0; i < len(r)-1; i++ {
		sum += r[i][0]*r[i+1][1] - r[i+1][0]*r[i][1]
	}
	return sum / 2
}

// open drops the closing point of a closed ring.
func open(r orb.Ring) []orb.Point {
	if len(r) > 1 && r[0] == r[len(r)-1] {
		return r[:len(r)-1]
	}
	return r
}

func segmentLineIntersection(p1, p2, a, b orb.Point) orb.Point {
	d := orb.Point{p2[0] - p1[0], p2[1] - p1[1]}
	e := orb.Point{b[0] - a[0], b[1] - a[1]}
	denom := e[0]*d[1] - e[1]*d[0]
	if denom == 0 {
		return p2
	}
	t := (e[0]*(a[1]-p1[1]) - e[1]*(a[0]-p1[0])) / denom
	return orb.Point{p1[0] + t*d[0], p1[1] + t*d[1]}
}

// ClipRing clips a ring against a convex clip ring using
// Sutherland-Hodgman. Returns nil when the intersection is empty. The
// result is closed.
func ClipRing(subject, clip orb.Ring) orb.Ring {
	if len(subject) < 4 || len(clip) < 4 {
		return nil
	}

	orient := 1.0
	if signedArea(clip) < 0 {
		orient = -1.0
	}

	input := open(subject)
	edges := open(clip)
	for i := 0; i < len(edges) && len(input) > 0; i++ {
		a := edges[i]
		b := edges[(i+1)%len(edges)]

		var out []orb.Point
		for j, cur := range input {
			prev := input[(j+len(input)-1)%len(input)]
			curIn := orient*cross(a, b, cur) >= 0
			prevIn := orient*cross(a, b, prev) >= 0

			switch {
			case curIn && prevIn:
				out = append(out, cur)
			case curIn && !prevIn:
				out = append(out, segmentLineIntersection(prev, cur, a, b), cur)
			case !curIn && prevIn:
				out = append(out, segmentLineIntersection(prev, cur, a, b))
			}
		}
		input = out
	}

	if len(input) < 3 {
		return nil
	}
	ring := make(orb.Ring, 0, len(input)+1)
	ring = append(ring, input...)
	ring = append(ring, input[0])
	return ring
}

// IntersectionAreaM2 measures, in square meters on the sphere, the part of
// a polygon that falls inside a convex clip ring. Holes are clipped
// separately and subtracted.
func IntersectionAreaM2(p orb.Polygon, clip orb.Ring) float64 {
	if len(p) == 0 {
		return 0
	}
	outer := ClipRing(p[0], clip)
	if outer == nil {
		return 0
	}
	area := geo.Area(orb.Polygon{outer})
	for _, hole := range p[1:] {
		if clipped := ClipRing(hole, clip); clipped != nil {
			area -= geo.Area(orb.Polygon{clipped})
		}
	}
	if area < 0 {
		return 0
	}
	return area
}

// ClipSegment clips the segment p0-p1 to a convex ring using Cyrus-Beck.
// The boolean is false when the segment lies entirely outside.
func ClipSegment(p0, p1 orb.Point, clip orb.Ring) (orb.Point, orb.Point, bool) {
	orient := 1.0
	if signedArea(clip) < 0 {
		orient = -1.0
	}

	d := orb.Point{p1[0] - p0[0], p1[1] - p0[1]}
	t0, t1 := 0.0, 1.0

	edges := open(clip)
	for i := 0; i < len(edges); i++ {
		a := edges[i]
		b := edges[(i+1)%len(edges)]

		num := orient * cross(a, b, p0)
		den := orient * ((b[0]-a[0])*d[1] - (b[1]-a[1])*d[0])

		switch {
		case den == 0:
			if num < 0 {
				return orb.Point{}, orb.Point{}, false
			}
		case den > 0:
			if t := -num / den; t > t0 {
				t0 = t
			}
		default:
			if t := -num / den; t < t1 {
				t1 = t
			}
		}
		if t0 > t1 {
			return orb.Point{}, orb.Point{}, false
		}
	}

	c0 := orb.Point{p0[0] + t0*d[0], p0[1] + t0*d[1]}
	c1 := orb.Point{p0[0] + t1*d[0], p0[1] + t1*d[1]}
	return c0, c1, true
}

// ClippedLength sums, in meters, the parts of a line string that fall
// inside a convex ring.
func ClippedLength(ls orb.LineString, clip orb.Ring) float64 {
	var total float64
	for i := 1; i < len(ls); i++ {
		if c0, c1, ok := ClipSegment(ls[i-1], ls[i], clip); ok {
			total += Distance(c0, c1)
		}
	}
	return total
}

// Intersects reports whether a polygon overlaps a convex ring with
// non-zero area.
func Intersects(p orb.Polygon, clip orb.Ring) bool {
	return IntersectionAreaM2(p, clip) > 0
}
