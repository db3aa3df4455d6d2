package osm

import (
	"strconv"
	"strings"

	"github.com/paulmach/osm"
)

// Tag-based feature classification, mirroring the layer split the
// aggregation stage expects: buildings, drivable roads, POIs, landuse and
// natural areas.

// Building values that mark infrastructure mapped with a building tag
// rather than actual buildings.
var excludedBuildingValues = map[string]bool{
	"bridge":   true,
	"road":     true,
	"footway":  true,
	"service":  true,
	"steps":    true,
	"path":     true,
	"cycleway": true,
	"corridor": true,
}

// Highway values that make up the drivable network.
var drivingHighwayValues = map[string]bool{
	"motorway":       true,
	"motorway_link":  true,
	"trunk":          true,
	"trunk_link":     true,
	"primary":        true,
	"primary_link":   true,
	"secondary":      true,
	"secondary_link": true,
	"tertiary":       true,
	"tertiary_link":  true,
	"unclassified":   true,
	"residential":    true,
	"living_street":  true,
	"service":        true,
	"road":           true,
}

func isBuilding(tags osm.Tags) bool {
	v := tags.Find("building")
	return v != "" && v != "no" && !excludedBuildingValues[v]
}

func isDrivableRoad(tags osm.Tags) bool {
	return drivingHighwayValues[tags.Find("highway")]
}

// poiType returns the POI category: the amenity tag, falling back to the
// shop tag, or "" for non-POI elements.
func poiType(tags osm.Tags) string {
	if v := tags.Find("amenity"); v != "" {
		return v
	}
	return tags.Find("shop")
}

func landuseCategory(tags osm.Tags) string {
	return tags.Find("landuse")
}

func naturalCategory(tags osm.Tags) string {
	return tags.Find("natural")
}

// parseNumeric parses tag values like "3", "2.5", "12 m" or "60 km/h",
// returning nil for anything without a leading number.
func parseNumeric(v string) *float64 {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	end := 0
	for end < len(v) && (v[end] == '.' || v[end] == '-' || (v[end] >= '0' && v[end] <= '9')) {
		end++
	}
	f, err := strconv.ParseFloat(v[:end], 64)
	if err != nil {
		return nil
	}
	return &f
}
