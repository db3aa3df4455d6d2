package aggregate

import (
	"github.com/urbanform/hexpipe/internal/grid"
	"github.com/urbanform/hexpipe/internal/models"
)

// addPOIs assigns each point of interest to the single cell containing
// it. Points outside the grid are ignored.
func (a *aggregator) addPOIs(pois []models.POI) error {
	for _, p := range pois {
		id, err := grid.CellForPoint(p.Point, a.res)
		if err != nil {
			return wrapAggregate(a.slug, err)
		}
		cs, ok := a.cells[id]
		if !ok {
			continue
		}
		cs.rec.POIsCount++
		if p.Type != "" {
			if cs.rec.POITypeCounts == nil {
				cs.rec.POITypeCounts = make(map[string]int)
			}
			cs.rec.POITypeCounts[p.Type]++
		}
	}
	return nil
}
