package aggregate

import (
	"github.com/urbanform/hexpipe/internal/grid"
	"github.com/urbanform/hexpipe/internal/models"
	"github.com/urbanform/hexpipe/internal/spatial"
)

// addRoads attributes each drivable way to every cell it passes through.
// Length is the portion of the way inside the cell, so total road length
// across the grid never exceeds the way's true length.
func (a *aggregator) addRoads(roads []models.Road) error {
	for _, r := range roads {
		if len(r.Geometry) < 2 {
			continue
		}
		ids, err := grid.CellsAlongLine(r.Geometry, a.res)
		if err != nil {
			return wrapAggregate(a.slug, err)
		}
		for _, cs := range a.candidates(ids) {
			length := spatial.ClippedLength(r.Geometry, cs.cell.Ring())
			if length <= 0 {
				continue
			}
			cs.rec.RoadsCount++
			cs.rec.RoadsLengthM += length
			if r.Highway != "" {
				if cs.rec.RoadTypeCounts == nil {
					cs.rec.RoadTypeCounts = make(map[string]int)
				}
				cs.rec.RoadTypeCounts[r.Highway]++
			}
			if r.Lanes != nil {
				cs.lanes = append(cs.lanes, *r.Lanes)
			}
			if r.MaxSpeed != nil {
				cs.speeds = append(cs.speeds, *r.MaxSpeed)
			}
		}
	}
	return nil
}
