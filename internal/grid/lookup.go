package grid

import (
	"fmt"

	"github.com/paulmach/orb"
	h3 "github.com/uber/h3-go/v4"

	"github.com/urbanform/hexpipe/internal/spatial"
)

// Candidate-cell lookups used by the aggregation stage to find the grid
// cells a feature geometry may intersect. These over-approximate (one
// extra neighbor ring); callers follow up with an exact geometric test.

// CellForPoint returns the H3 index containing a point.
func CellForPoint(pt orb.Point, res int) (string, error) {
	c, err := h3.LatLngToCell(h3.LatLng{Lat: pt[1], Lng: pt[0]}, res)
	if err != nil {
		return "", fmt.Errorf("failed to index point %v: %w", pt, err)
	}
	return c.String(), nil
}

// CoveringCells returns the H3 indexes a polygon may intersect: the
// polyfill of its interior, the cells of points sampled at sub-cell
// spacing along every ring, and one neighbor ring around all of them. The
// edge sampling matters for long thin polygons with sparse vertices,
// where neither the polyfill nor the vertices reach the mid-span cells.
func CoveringCells(p orb.Polygon, res int) ([]string, error) {
	set := make(map[h3.Cell]struct{})

	cells, err := h3.PolygonToCells(toGeoPolygon(p), res)
	if err != nil {
		return nil, fmt.Errorf("failed to polyfill feature: %w", err)
	}
	for _, c := range cells {
		set[c] = struct{}{}
	}
	for _, ring := range p {
		if err := addPathCells(set, []orb.Point(ring), res); err != nil {
			return nil, err
		}
	}
	return expandOneRing(set)
}

// CellsAlongLine returns the H3 indexes a line may pass through: the
// cells of points sampled at sub-cell spacing along each segment, plus
// one neighbor ring.
func CellsAlongLine(ls orb.LineString, res int) ([]string, error) {
	set := make(map[h3.Cell]struct{})
	if err := addPathCells(set, []orb.Point(ls), res); err != nil {
		return nil, err
	}
	return expandOneRing(set)
}

// addPathCells indexes every vertex of a point path plus samples spaced
// at roughly one cell edge length along each segment.
func addPathCells(set map[h3.Cell]struct{}, pts []orb.Point, res int) error {
	var edgeM float64
	for i, pt := range pts {
		c, err := h3.LatLngToCell(h3.LatLng{Lat: pt[1], Lng: pt[0]}, res)
		if err != nil {
			return fmt.Errorf("failed to index vertex %v: %w", pt, err)
		}
		set[c] = struct{}{}

		if edgeM == 0 {
			ring, err := cellRing(c)
			if err != nil {
				return err
			}
			edgeM = spatial.Distance(ring[0], ring[1])
		}

		if i == 0 {
			continue
		}
		segM := spatial.Distance(pts[i-1], pt)
		steps := int(segM / edgeM)
		for s := 1; s <= steps; s++ {
			t := float64(s) / float64(steps+1)
			sample := orb.Point{
				pts[i-1][0] + t*(pt[0]-pts[i-1][0]),
				pts[i-1][1] + t*(pt[1]-pts[i-1][1]),
			}
			sc, err := h3.LatLngToCell(h3.LatLng{Lat: sample[1], Lng: sample[0]}, res)
			if err != nil {
				return fmt.Errorf("failed to index sample point %v: %w", sample, err)
			}
			set[sc] = struct{}{}
		}
	}
	return nil
}

func expandOneRing(set map[h3.Cell]struct{}) ([]string, error) {
	seed := make([]h3.Cell, 0, len(set))
	for c := range set {
		seed = append(seed, c)
	}
	for _, c := range seed {
		neighbors, err := h3.GridDisk(c, 1)
		if err != nil {
			return nil, fmt.Errorf("failed to expand candidate cells: %w", err)
		}
		for _, nb := range neighbors {
			set[nb] = struct{}{}
		}
	}

	ids := make([]string, 0, len(set))
	for c := range set {
		ids = append(ids, c.String())
	}
	return ids, nil
}
