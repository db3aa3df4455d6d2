package aggregate

import (
	"github.com/urbanform/hexpipe/internal/grid"
	"github.com/urbanform/hexpipe/internal/models"
	"github.com/urbanform/hexpipe/internal/spatial"
)

// addBuildings attributes each building footprint to every cell it
// intersects. The area credited to a cell is the footprint area inside
// that cell, so a building split across cells is never double-counted in
// full; height and level samples go to every intersected cell.
func (a *aggregator) addBuildings(buildings []models.Building) error {
	for _, b := range buildings {
		ids, err := grid.CoveringCells(b.Geometry, a.res)
		if err != nil {
			return wrapAggregate(a.slug, err)
		}
		for _, cs := range a.candidates(ids) {
			area := spatial.IntersectionAreaM2(b.Geometry, cs.cell.Ring())
			if area <= 0 {
				continue
			}
			cs.rec.BuildingsCount++
			cs.rec.TotalBuildingAreaM2 += area
			if b.HeightM != nil {
				cs.heights = append(cs.heights, *b.HeightM)
			}
			if b.Levels != nil {
				cs.levels = append(cs.levels, *b.Levels)
			}
			if b.Type != "" {
				if cs.rec.BuildingTypeCounts == nil {
					cs.rec.BuildingTypeCounts = make(map[string]int)
				}
				cs.rec.BuildingTypeCounts[b.Type]++
			}
		}
	}
	return nil
}
