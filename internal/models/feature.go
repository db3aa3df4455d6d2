package models

import "github.com/paulmach/orb"

// Building is a building footprint extracted from an AOI's OSM clip.
type Building struct {
	ID       int64
	Geometry orb.Polygon

	// Value of the building tag, e.g. "house", "apartments"
	Type string

	// Parsed from the height / building:levels tags; nil when missing or
	// unparseable. Missing values are excluded from means, not zeroed.
	HeightM *float64
	Levels  *float64
}

// Road is one drivable way segment.
type Road struct {
	ID       int64
	Geometry orb.LineString

	// Value of the highway tag, e.g. "residential"
	Highway string

	// nil when the tag is missing or not numeric
	Lanes    *float64
	MaxSpeed *float64
}

// POI is a point of interest, keyed by its amenity tag with the shop tag as
// fallback.
type POI struct {
	ID    int64
	Point orb.Point
	Type  string
}

// AreaFeature is a landuse or natural polygon.
type AreaFeature struct {
	ID       int64
	Geometry orb.Polygon

	// Value of the landuse or natural tag, e.g. "residential", "water"
	Category string
}
