// Package grid tessellates AOI polygons with H3 hexagons.
package grid

import (
	"fmt"
	"sort"

	"github.com/paulmach/orb"
	h3 "github.com/uber/h3-go/v4"

	"github.com/urbanform/hexpipe/internal/models"
	"github.com/urbanform/hexpipe/internal/spatial"
)

// Generate returns every H3 cell at the given resolution whose hexagon
// intersects the AOI polygon. H3's polyfill keeps only cells whose center
// is inside, which leaves gaps at the AOI edge; the polyfill seed is
// therefore expanded outward ring by ring, keeping neighbors that still
// intersect the boundary. Polygon vertices are seeded too, so an AOI
// smaller than a single cell still yields its covering cells.
func Generate(mp orb.MultiPolygon, res int, slug string) ([]models.HexCell, error) {
	if len(mp) == 0 {
		return nil, fmt.Errorf("empty AOI polygon for %s", slug)
	}

	accepted := make(map[h3.Cell]orb.Ring)
	var queue []h3.Cell

	accept := func(c h3.Cell, ring orb.Ring) {
		accepted[c] = ring
		queue = append(queue, c)
	}

	for _, poly := range mp {
		cells, err := h3.PolygonToCells(toGeoPolygon(poly), res)
		if err != nil {
			return nil, fmt.Errorf("failed to polyfill %s: %w", slug, err)
		}
		for _, c := range cells {
			if _, ok := accepted[c]; ok {
				continue
			}
			ring, err := cellRing(c)
			if err != nil {
				return nil, err
			}
			accept(c, ring)
		}

		for _, ring := range poly {
			for _, pt := range ring {
				c, err := h3.LatLngToCell(h3.LatLng{Lat: pt[1], Lng: pt[0]}, res)
				if err != nil {
					return nil, fmt.Errorf("failed to index vertex of %s: %w", slug, err)
				}
				if _, ok := accepted[c]; ok {
					continue
				}
				cr, err := cellRing(c)
				if err != nil {
					return nil, err
				}
				if intersectsAOI(cr, mp) {
					accept(c, cr)
				}
			}
		}
	}

	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]

		neighbors, err := h3.GridDisk(c, 1)
		if err != nil {
			return nil, fmt.Errorf("failed to expand grid for %s: %w", slug, err)
		}
		for _, nb := range neighbors {
			if _, ok := accepted[nb]; ok {
				continue
			}
			ring, err := cellRing(nb)
			if err != nil {
				return nil, err
			}
			if intersectsAOI(ring, mp) {
				accept(nb, ring)
			}
		}
	}

	cells := make([]models.HexCell, 0, len(accepted))
	for c, ring := range accepted {
		cells = append(cells, models.HexCell{
			ID:         c.String(),
			Resolution: res,
			AOISlug:    slug,
			Geometry:   orb.Polygon{ring},
		})
	}
	sort.Slice(cells, func(i, j int) bool { return cells[i].ID < cells[j].ID })
	return cells, nil
}

func intersectsAOI(cellRing orb.Ring, mp orb.MultiPolygon) bool {
	for _, poly := range mp {
		if spatial.Intersects(poly, cellRing) {
			return true
		}
	}
	return false
}

func toGeoPolygon(poly orb.Polygon) h3.GeoPolygon {
	gp := h3.GeoPolygon{}
	for i, ring := range poly {
		loop := make([]h3.LatLng, 0, len(ring))
		for _, pt := range ring {
			loop = append(loop, h3.LatLng{Lat: pt[1], Lng: pt[0]})
		}
		if i == 0 {
			gp.GeoLoop = loop
		} else {
			gp.Holes = append(gp.Holes, loop)
		}
	}
	return gp
}

func cellRing(c h3.Cell) (orb.Ring, error) {
	boundary, err := c.Boundary()
	if err != nil {
		return nil, fmt.Errorf("failed to compute cell boundary for %s: %w", c, err)
	}
	ring := make(orb.Ring, 0, len(boundary)+1)
	for _, ll := range boundary {
		ring = append(ring, orb.Point{ll.Lng, ll.Lat})
	}
	ring = append(ring, ring[0])
	return ring, nil
}

// CellRing exposes the boundary ring of an H3 index in hex-string form,
// for callers that hold cell IDs without geometry.
func CellRing(id string) (orb.Ring, error) {
	return cellRing(h3.Cell(h3.IndexFromString(id)))
}
