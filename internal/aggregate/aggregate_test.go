package aggregate

import (
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	h3 "github.com/uber/h3-go/v4"

	"github.com/urbanform/hexpipe/internal/geopackage"
	"github.com/urbanform/hexpipe/internal/grid"
	"github.com/urbanform/hexpipe/internal/models"
	"github.com/urbanform/hexpipe/internal/osm"
)

const testRes = 9

// fourCellGrid returns a res-9 cell over inner Melbourne and three of its
// neighbors.
func fourCellGrid(t *testing.T) []models.HexCell {
	t.Helper()
	center, err := h3.LatLngToCell(h3.LatLng{Lat: -37.81, Lng: 144.96}, testRes)
	if err != nil {
		t.Fatal(err)
	}
	disk, err := h3.GridDisk(center, 1)
	if err != nil {
		t.Fatal(err)
	}

	ids := []string{center.String()}
	for _, c := range disk {
		if c == center {
			continue
		}
		ids = append(ids, c.String())
		if len(ids) == 4 {
			break
		}
	}

	cells := make([]models.HexCell, 0, len(ids))
	for _, id := range ids {
		ring, err := grid.CellRing(id)
		if err != nil {
			t.Fatal(err)
		}
		cells = append(cells, models.HexCell{
			ID:         id,
			Resolution: testRes,
			AOISlug:    "melbourne_test",
			Geometry:   orb.Polygon{ring},
		})
	}
	return cells
}

func cellCenter(t *testing.T, id string) orb.Point {
	t.Helper()
	ll, err := h3.Cell(h3.IndexFromString(id)).LatLng()
	if err != nil {
		t.Fatal(err)
	}
	return orb.Point{ll.Lng, ll.Lat}
}

// squareAround builds a square footprint of half-width d degrees centered
// on pt.
func squareAround(pt orb.Point, d float64) orb.Polygon {
	return orb.Polygon{{
		{pt[0] - d, pt[1] - d},
		{pt[0] + d, pt[1] - d},
		{pt[0] + d, pt[1] + d},
		{pt[0] - d, pt[1] + d},
		{pt[0] - d, pt[1] - d},
	}}
}

func fptr(v float64) *float64 { return &v }

// scenarioLayers places three buildings well inside the first cell and two
// short road segments well inside the second, leaving the remaining cells
// empty.
func scenarioLayers(t *testing.T, cells []models.HexCell) *osm.Layers {
	t.Helper()
	c0 := cellCenter(t, cells[0].ID)
	c1 := cellCenter(t, cells[1].ID)

	return &osm.Layers{
		Buildings: []models.Building{
			{ID: 1, Geometry: squareAround(c0, 0.0002), Type: "house", HeightM: fptr(10), Levels: fptr(2)},
			{ID: 2, Geometry: squareAround(orb.Point{c0[0] + 0.0005, c0[1]}, 0.0001), Type: "house", HeightM: fptr(20), Levels: fptr(4)},
			{ID: 3, Geometry: squareAround(orb.Point{c0[0] - 0.0005, c0[1]}, 0.0001), Type: "apartments"},
		},
		Roads: []models.Road{
			{ID: 4, Geometry: orb.LineString{{c1[0] - 0.0004, c1[1]}, {c1[0] + 0.0004, c1[1]}}, Highway: "residential", Lanes: fptr(2), MaxSpeed: fptr(50)},
			{ID: 5, Geometry: orb.LineString{{c1[0], c1[1] - 0.0004}, {c1[0], c1[1] + 0.0004}}, Highway: "tertiary", Lanes: fptr(4), MaxSpeed: fptr(60)},
		},
	}
}

func findRecord(t *testing.T, records []models.HexRecord, id string) models.HexRecord {
	t.Helper()
	for _, r := range records {
		if r.H3ID == id {
			return r
		}
	}
	t.Fatalf("no record for cell %s", id)
	return models.HexRecord{}
}

func TestAggregateScenario(t *testing.T) {
	cells := fourCellGrid(t)
	layers := scenarioLayers(t, cells)

	records, err := Aggregate(layers, cells, "melbourne_test")
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2 (empty cells must be dropped)", len(records))
	}

	b := findRecord(t, records, cells[0].ID)
	if b.BuildingsCount != 3 {
		t.Errorf("buildings_count = %d, want 3", b.BuildingsCount)
	}
	if b.TotalBuildingAreaM2 <= 0 {
		t.Errorf("total building area = %f, want > 0", b.TotalBuildingAreaM2)
	}
	if math.Abs(b.AvgBuildingHeightM-15) > 1e-9 {
		t.Errorf("avg height = %f, want 15 (missing heights excluded)", b.AvgBuildingHeightM)
	}
	if math.Abs(b.AvgBuildingLevels-3) > 1e-9 {
		t.Errorf("avg levels = %f, want 3", b.AvgBuildingLevels)
	}
	if b.BuildingTypeCounts["house"] != 2 || b.BuildingTypeCounts["apartments"] != 1 {
		t.Errorf("building type counts = %v", b.BuildingTypeCounts)
	}
	if b.RoadsCount != 0 {
		t.Errorf("building cell has %d roads, want 0", b.RoadsCount)
	}

	r := findRecord(t, records, cells[1].ID)
	if r.RoadsCount != 2 {
		t.Errorf("roads_count = %d, want 2", r.RoadsCount)
	}
	if r.RoadsLengthM <= 0 {
		t.Errorf("roads length = %f, want > 0", r.RoadsLengthM)
	}
	if math.Abs(r.AvgLanes-3) > 1e-9 {
		t.Errorf("avg lanes = %f, want 3", r.AvgLanes)
	}
	if math.Abs(r.AvgMaxSpeed-55) > 1e-9 {
		t.Errorf("avg maxspeed = %f, want 55", r.AvgMaxSpeed)
	}
	if r.RoadTypeCounts["residential"] != 1 || r.RoadTypeCounts["tertiary"] != 1 {
		t.Errorf("road type counts = %v, want one residential and one tertiary", r.RoadTypeCounts)
	}
	if r.BuildingsCount != 0 {
		t.Errorf("road cell has %d buildings, want 0", r.BuildingsCount)
	}

	gridIDs := make(map[string]bool)
	for _, c := range cells {
		gridIDs[c.ID] = true
	}
	for _, rec := range records {
		if !gridIDs[rec.H3ID] {
			t.Errorf("record cell %s not in the grid", rec.H3ID)
		}
		if rec.AOISlug != "melbourne_test" {
			t.Errorf("record slug = %q", rec.AOISlug)
		}
		if rec.TotalBuildingAreaM2 < 0 || rec.RoadsLengthM < 0 {
			t.Errorf("negative aggregate in %+v", rec)
		}
	}
}

func TestAggregateSplitBuilding(t *testing.T) {
	cells := fourCellGrid(t)
	c0 := cellCenter(t, cells[0].ID)
	c1 := cellCenter(t, cells[1].ID)

	// Centered on the shared edge of the first two cells, so the footprint
	// straddles the boundary.
	mid := orb.Point{(c0[0] + c1[0]) / 2, (c0[1] + c1[1]) / 2}
	building := models.Building{ID: 1, Geometry: squareAround(mid, 0.0003), Type: "house"}

	records, err := Aggregate(&osm.Layers{Buildings: []models.Building{building}}, cells, "melbourne_test")
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2 (building straddles two cells)", len(records))
	}

	var attributed float64
	for _, r := range records {
		if r.BuildingsCount != 1 {
			t.Errorf("cell %s buildings_count = %d, want 1", r.H3ID, r.BuildingsCount)
		}
		attributed += r.TotalBuildingAreaM2
	}
	full := geo.Area(building.Geometry)
	if math.Abs(attributed-full)/full > 0.02 {
		t.Errorf("clipped parts sum to %f m2, footprint is %f m2", attributed, full)
	}
}

func TestAggregateLanduseCoverage(t *testing.T) {
	cells := fourCellGrid(t)

	// Two copies of the full cell polygon: the accumulated fraction must be
	// clamped back to 1.
	cover := orb.Polygon{cells[0].Ring()}
	layers := &osm.Layers{
		Landuse: []models.AreaFeature{
			{ID: 1, Geometry: cover, Category: "grass"},
			{ID: 2, Geometry: cover, Category: "grass"},
		},
		Natural: []models.AreaFeature{
			{ID: 3, Geometry: squareAround(cellCenter(t, cells[0].ID), 0.0003), Category: "water"},
		},
	}

	records, err := Aggregate(layers, cells, "melbourne_test")
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	rec := findRecord(t, records, cells[0].ID)

	frac := rec.LanduseCover["grass"]
	if frac < 0.99 || frac > 1 {
		t.Errorf("grass cover = %f, want clamped to [0.99, 1]", frac)
	}
	if rec.LanduseCount != 2 || rec.LanduseTypeCount != 1 {
		t.Errorf("landuse count = %d, type count = %d, want 2 and 1", rec.LanduseCount, rec.LanduseTypeCount)
	}
	if rec.NaturalCount != 1 || rec.NaturalTypeCount != 1 {
		t.Errorf("natural count = %d, type count = %d, want 1 and 1", rec.NaturalCount, rec.NaturalTypeCount)
	}
	water := rec.NaturalCover["water"]
	if water <= 0 || water >= 0.5 {
		t.Errorf("water cover = %f, want a small positive fraction", water)
	}
}

func TestAggregateCorridorLanduse(t *testing.T) {
	// A corridor-shaped polygon far longer than one cell but with vertices
	// only at its corners: roughly 8 km by 20 m. Every grid cell it
	// crosses must receive coverage, including the mid-span cells.
	corridor := orb.Polygon{{
		{144.90, -37.810},
		{144.99, -37.810},
		{144.99, -37.8102},
		{144.90, -37.8102},
		{144.90, -37.810},
	}}
	cells, err := grid.Generate(orb.MultiPolygon{corridor}, testRes, "corridor_test")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(cells) < 20 {
		t.Fatalf("corridor grid has only %d cells", len(cells))
	}

	layers := &osm.Layers{
		Landuse: []models.AreaFeature{{ID: 1, Geometry: corridor, Category: "railway"}},
	}
	records, err := Aggregate(layers, cells, "corridor_test")
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if len(records) != len(cells) {
		t.Fatalf("got %d records for %d intersecting cells; mid-span cells were missed", len(records), len(cells))
	}
	for _, r := range records {
		if r.LanduseCover["railway"] <= 0 {
			t.Errorf("cell %s has no railway coverage", r.H3ID)
		}
	}
}

func TestAggregatePOIs(t *testing.T) {
	cells := fourCellGrid(t)
	c0 := cellCenter(t, cells[0].ID)

	layers := &osm.Layers{
		POIs: []models.POI{
			{ID: 1, Point: c0, Type: "cafe"},
			{ID: 2, Point: orb.Point{c0[0] + 0.0001, c0[1]}, Type: "cafe"},
			{ID: 3, Point: orb.Point{c0[0] - 0.0001, c0[1]}, Type: "pharmacy"},
			// Far outside the grid; must be ignored.
			{ID: 4, Point: orb.Point{151.21, -33.87}, Type: "cafe"},
		},
	}

	records, err := Aggregate(layers, cells, "melbourne_test")
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	rec := records[0]
	if rec.POIsCount != 3 {
		t.Errorf("pois_count = %d, want 3", rec.POIsCount)
	}
	if rec.POITypeCount != 2 {
		t.Errorf("poi_type_count = %d, want 2", rec.POITypeCount)
	}
	if rec.POITypeCounts["cafe"] != 2 || rec.POITypeCounts["pharmacy"] != 1 {
		t.Errorf("poi type counts = %v", rec.POITypeCounts)
	}
}

func TestAggregateNoFeatures(t *testing.T) {
	cells := fourCellGrid(t)
	records, err := Aggregate(&osm.Layers{}, cells, "melbourne_test")
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("got %d records for empty layers, want 0", len(records))
	}
}

func TestAggregateEmptyGrid(t *testing.T) {
	_, err := Aggregate(&osm.Layers{}, nil, "melbourne_test")
	var gridErr *models.MissingGridError
	if !errors.As(err, &gridErr) {
		t.Fatalf("expected MissingGridError, got %v", err)
	}
}

func TestWriteRecords(t *testing.T) {
	cells := fourCellGrid(t)
	layers := scenarioLayers(t, cells)
	records, err := Aggregate(layers, cells, "melbourne_test")
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}

	path := filepath.Join(t.TempDir(), "out.gpkg")
	if err := WriteRecords(path, cells, records); err != nil {
		t.Fatalf("WriteRecords: %v", err)
	}

	f, err := geopackage.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	var n int
	if err := f.DB().QueryRow(`SELECT COUNT(*) FROM hex_features`).Scan(&n); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if n != len(records) {
		t.Errorf("output has %d rows, want %d", n, len(records))
	}

	// Dynamic per-type columns share the AOI-wide schema; a cell without
	// houses reads as zero.
	var houses int
	row := f.DB().QueryRow(`SELECT building_house FROM hex_features WHERE h3_id = ?`, cells[1].ID)
	if err := row.Scan(&houses); err != nil {
		t.Fatalf("read dynamic column: %v", err)
	}
	if houses != 0 {
		t.Errorf("road cell building_house = %d, want 0", houses)
	}

	var residential int
	row = f.DB().QueryRow(`SELECT road_residential FROM hex_features WHERE h3_id = ?`, cells[1].ID)
	if err := row.Scan(&residential); err != nil {
		t.Fatalf("read dynamic column: %v", err)
	}
	if residential != 1 {
		t.Errorf("road cell road_residential = %d, want 1", residential)
	}
}
