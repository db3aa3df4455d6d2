package models

// HexRecord is the aggregation output: one row per non-empty hex cell per
// AOI. All numeric aggregates are non-negative; counts are integers.
// Records are computed fresh each aggregation run and never mutated in
// place.
type HexRecord struct {
	H3ID    string `json:"h3_id"`
	AOISlug string `json:"aoi_slug"`

	// Buildings
	BuildingsCount      int            `json:"buildings_count"`
	TotalBuildingAreaM2 float64        `json:"total_building_area_m2"`
	AvgBuildingAreaM2   float64        `json:"avg_building_area_m2"`
	AvgBuildingHeightM  float64        `json:"avg_building_height_m"`
	AvgBuildingLevels   float64        `json:"avg_building_levels"`
	BuildingTypeCounts  map[string]int `json:"building_type_counts,omitempty"`

	// Roads
	RoadsCount     int            `json:"roads_count"`
	RoadsLengthM   float64        `json:"roads_length_m"`
	AvgLanes       float64        `json:"avg_lanes"`
	AvgMaxSpeed    float64        `json:"avg_maxspeed"`
	RoadTypeCounts map[string]int `json:"road_type_counts,omitempty"`

	// POIs
	POIsCount     int            `json:"pois_count"`
	POITypeCount  int            `json:"poi_type_count"`
	POITypeCounts map[string]int `json:"poi_type_counts,omitempty"`

	// Landuse / natural: feature counts, category diversity and the
	// area-weighted fraction of the cell covered by each category, in [0, 1]
	LanduseCount     int                `json:"landuse_count"`
	LanduseTypeCount int                `json:"landuse_type_count"`
	LanduseCover     map[string]float64 `json:"landuse_cover,omitempty"`
	NaturalCount     int                `json:"natural_count"`
	NaturalTypeCount int                `json:"natural_type_count"`
	NaturalCover     map[string]float64 `json:"natural_cover,omitempty"`
}

// Empty reports whether no feature of any category contributed to the cell.
// Empty records are dropped from the output.
func (r *HexRecord) Empty() bool {
	return r.BuildingsCount == 0 &&
		r.RoadsCount == 0 &&
		r.POIsCount == 0 &&
		len(r.LanduseCover) == 0 &&
		len(r.NaturalCover) == 0
}
