// Package aggregate joins extracted OSM feature layers onto an AOI's hex
// grid and computes per-cell statistics. Candidate cells for each feature
// are found through H3 index lookups; membership is then decided by exact
// geometric tests against the cell boundary, so a feature contributes to
// every cell it actually intersects.
package aggregate

import (
	"fmt"
	"sort"

	"github.com/hauke96/sigolo/v2"
	"github.com/paulmach/orb/geo"

	"github.com/urbanform/hexpipe/internal/models"
	"github.com/urbanform/hexpipe/internal/osm"
	"github.com/urbanform/hexpipe/internal/stats"
)

// cellState accumulates contributions to one grid cell while the feature
// layers are being processed. Means over optional tags are computed at the
// end from the collected samples.
type cellState struct {
	cell   models.HexCell
	areaM2 float64
	rec    models.HexRecord

	heights []float64
	levels  []float64
	lanes   []float64
	speeds  []float64
}

type aggregator struct {
	res   int
	slug  string
	cells map[string]*cellState
}

// Aggregate computes one HexRecord per grid cell that at least one feature
// contributes to. Cells no feature touches are dropped; the result is
// sorted by H3 index.
func Aggregate(layers *osm.Layers, cells []models.HexCell, slug string) ([]models.HexRecord, error) {
	if len(cells) == 0 {
		return nil, &models.MissingGridError{AOISlug: slug}
	}

	a := &aggregator{
		res:   cells[0].Resolution,
		slug:  slug,
		cells: make(map[string]*cellState, len(cells)),
	}
	for _, c := range cells {
		a.cells[c.ID] = &cellState{
			cell:   c,
			areaM2: geo.Area(c.Geometry),
			rec: models.HexRecord{
				H3ID:    c.ID,
				AOISlug: slug,
			},
		}
	}

	if err := a.addBuildings(layers.Buildings); err != nil {
		return nil, err
	}
	if err := a.addRoads(layers.Roads); err != nil {
		return nil, err
	}
	if err := a.addPOIs(layers.POIs); err != nil {
		return nil, err
	}
	if err := a.addAreas(layers.Landuse, landuseLayer); err != nil {
		return nil, err
	}
	if err := a.addAreas(layers.Natural, naturalLayer); err != nil {
		return nil, err
	}

	records := a.finish()
	sigolo.Infof("Aggregated %s: %d of %d cells non-empty", slug, len(records), len(cells))
	return records, nil
}

// finish derives the mean statistics and drops empty cells.
func (a *aggregator) finish() []models.HexRecord {
	ids := make([]string, 0, len(a.cells))
	for id := range a.cells {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	records := make([]models.HexRecord, 0, len(ids))
	for _, id := range ids {
		cs := a.cells[id]
		if cs.rec.Empty() {
			continue
		}
		rec := cs.rec
		if rec.BuildingsCount > 0 {
			rec.AvgBuildingAreaM2 = rec.TotalBuildingAreaM2 / float64(rec.BuildingsCount)
		}
		rec.AvgBuildingHeightM = stats.Mean(cs.heights)
		rec.AvgBuildingLevels = stats.Mean(cs.levels)
		rec.AvgLanes = stats.Mean(cs.lanes)
		rec.AvgMaxSpeed = stats.Mean(cs.speeds)
		rec.POITypeCount = len(rec.POITypeCounts)
		rec.LanduseTypeCount = len(rec.LanduseCover)
		rec.NaturalTypeCount = len(rec.NaturalCover)
		for cat, frac := range rec.LanduseCover {
			rec.LanduseCover[cat] = stats.Clamp(frac, 0, 1)
		}
		for cat, frac := range rec.NaturalCover {
			rec.NaturalCover[cat] = stats.Clamp(frac, 0, 1)
		}
		records = append(records, rec)
	}
	return records
}

// candidates resolves a list of H3 indexes to the grid cells present in
// this AOI's grid. Indexes outside the grid are ignored.
func (a *aggregator) candidates(ids []string) []*cellState {
	out := make([]*cellState, 0, len(ids))
	for _, id := range ids {
		if cs, ok := a.cells[id]; ok {
			out = append(out, cs)
		}
	}
	return out
}

func wrapAggregate(slug string, err error) error {
	return fmt.Errorf("failed to aggregate features for %s: %w", slug, err)
}
