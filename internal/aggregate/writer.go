package aggregate

import (
	"fmt"
	"sort"

	"github.com/urbanform/hexpipe/internal/geopackage"
	"github.com/urbanform/hexpipe/internal/models"
)

const outputTable = "hex_features"

// fixedColumns are present in every output regardless of which feature
// types occur in the AOI. Dynamic per-type columns follow them.
var fixedColumns = []geopackage.Column{
	{Name: "h3_id", Type: "TEXT"},
	{Name: "aoi_slug", Type: "TEXT"},
	{Name: "buildings_count", Type: "INTEGER"},
	{Name: "total_building_area_m2", Type: "REAL"},
	{Name: "avg_building_area_m2", Type: "REAL"},
	{Name: "avg_building_height_m", Type: "REAL"},
	{Name: "avg_building_levels", Type: "REAL"},
	{Name: "roads_count", Type: "INTEGER"},
	{Name: "roads_length_m", Type: "REAL"},
	{Name: "avg_lanes", Type: "REAL"},
	{Name: "avg_maxspeed", Type: "REAL"},
	{Name: "pois_count", Type: "INTEGER"},
	{Name: "poi_type_count", Type: "INTEGER"},
	{Name: "landuse_count", Type: "INTEGER"},
	{Name: "landuse_type_count", Type: "INTEGER"},
	{Name: "natural_count", Type: "INTEGER"},
	{Name: "natural_type_count", Type: "INTEGER"},
}

// WriteRecords writes the aggregation output to a GeoPackage at path. The
// schema is derived from the records: every building type, POI type and
// landuse / natural category occurring anywhere in the AOI gets its own
// column, so all rows share one schema and absent types read as zero.
func WriteRecords(path string, cells []models.HexCell, records []models.HexRecord) error {
	geoms := make(map[string]models.HexCell, len(cells))
	for _, c := range cells {
		geoms[c.ID] = c
	}

	buildingTypes := collectKeys(records, func(r *models.HexRecord) map[string]int { return r.BuildingTypeCounts })
	roadTypes := collectKeys(records, func(r *models.HexRecord) map[string]int { return r.RoadTypeCounts })
	poiTypes := collectKeys(records, func(r *models.HexRecord) map[string]int { return r.POITypeCounts })
	landuseCats := collectFloatKeys(records, func(r *models.HexRecord) map[string]float64 { return r.LanduseCover })
	naturalCats := collectFloatKeys(records, func(r *models.HexRecord) map[string]float64 { return r.NaturalCover })

	cols := make([]geopackage.Column, 0, len(fixedColumns)+len(buildingTypes)+len(roadTypes)+len(poiTypes)+len(landuseCats)+len(naturalCats))
	cols = append(cols, fixedColumns...)
	names := make([]string, 0, cap(cols))
	for _, c := range cols {
		names = append(names, c.Name)
	}
	for _, t := range buildingTypes {
		names = append(names, "building_"+t)
		cols = append(cols, geopackage.Column{Type: "INTEGER"})
	}
	for _, t := range roadTypes {
		names = append(names, "road_"+t)
		cols = append(cols, geopackage.Column{Type: "INTEGER"})
	}
	for _, t := range poiTypes {
		names = append(names, "poi_"+t)
		cols = append(cols, geopackage.Column{Type: "INTEGER"})
	}
	for _, c := range landuseCats {
		names = append(names, "landuse_"+c)
		cols = append(cols, geopackage.Column{Type: "REAL"})
	}
	for _, c := range naturalCats {
		names = append(names, "natural_"+c)
		cols = append(cols, geopackage.Column{Type: "REAL"})
	}
	for i, n := range geopackage.SanitizeColumnNames(names) {
		cols[i].Name = n
	}

	gpkg, err := geopackage.Create(path)
	if err != nil {
		return err
	}

	w, err := gpkg.CreateFeatureTable(outputTable, "POLYGON", cols)
	if err != nil {
		gpkg.Close()
		return err
	}

	for _, r := range records {
		cell, ok := geoms[r.H3ID]
		if !ok {
			gpkg.Close()
			return &models.WriteError{Path: path, Err: fmt.Errorf("record %s has no grid cell", r.H3ID)}
		}
		vals := make([]any, 0, len(cols))
		vals = append(vals,
			r.H3ID, r.AOISlug,
			r.BuildingsCount, r.TotalBuildingAreaM2, r.AvgBuildingAreaM2,
			r.AvgBuildingHeightM, r.AvgBuildingLevels,
			r.RoadsCount, r.RoadsLengthM, r.AvgLanes, r.AvgMaxSpeed,
			r.POIsCount, r.POITypeCount,
			r.LanduseCount, r.LanduseTypeCount,
			r.NaturalCount, r.NaturalTypeCount,
		)
		for _, t := range buildingTypes {
			vals = append(vals, r.BuildingTypeCounts[t])
		}
		for _, t := range roadTypes {
			vals = append(vals, r.RoadTypeCounts[t])
		}
		for _, t := range poiTypes {
			vals = append(vals, r.POITypeCounts[t])
		}
		for _, c := range landuseCats {
			vals = append(vals, r.LanduseCover[c])
		}
		for _, c := range naturalCats {
			vals = append(vals, r.NaturalCover[c])
		}
		if err := w.Insert(cell.Geometry, vals...); err != nil {
			gpkg.Close()
			return err
		}
	}
	return gpkg.Close()
}

func collectKeys(records []models.HexRecord, get func(*models.HexRecord) map[string]int) []string {
	set := make(map[string]struct{})
	for i := range records {
		for k := range get(&records[i]) {
			set[k] = struct{}{}
		}
	}
	return sortedKeys(set)
}

func collectFloatKeys(records []models.HexRecord, get func(*models.HexRecord) map[string]float64) []string {
	set := make(map[string]struct{})
	for i := range records {
		for k := range get(&records[i]) {
			set[k] = struct{}{}
		}
	}
	return sortedKeys(set)
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
