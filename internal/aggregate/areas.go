package aggregate

import (
	"github.com/urbanform/hexpipe/internal/grid"
	"github.com/urbanform/hexpipe/internal/models"
	"github.com/urbanform/hexpipe/internal/spatial"
)

type areaLayer int

const (
	landuseLayer areaLayer = iota
	naturalLayer
)

// addAreas accumulates, per cell and category, the fraction of the cell
// covered by landuse or natural polygons. Overlapping polygons of the same
// category can push the running sum past 1; the final record clamps it.
func (a *aggregator) addAreas(features []models.AreaFeature, layer areaLayer) error {
	for _, f := range features {
		if f.Category == "" {
			continue
		}
		ids, err := grid.CoveringCells(f.Geometry, a.res)
		if err != nil {
			return wrapAggregate(a.slug, err)
		}
		for _, cs := range a.candidates(ids) {
			if cs.areaM2 <= 0 {
				continue
			}
			frac := spatial.IntersectionAreaM2(f.Geometry, cs.cell.Ring()) / cs.areaM2
			if frac <= 0 {
				continue
			}
			cover := &cs.rec.LanduseCover
			count := &cs.rec.LanduseCount
			if layer == naturalLayer {
				cover = &cs.rec.NaturalCover
				count = &cs.rec.NaturalCount
			}
			if *cover == nil {
				*cover = make(map[string]float64)
			}
			(*cover)[f.Category] += frac
			*count++
		}
	}
	return nil
}
