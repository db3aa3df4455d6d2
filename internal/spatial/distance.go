package spatial

import (
	"github.com/golang/geo/s2"
	"github.com/paulmach/orb"
)

// EarthRadiusMeters is the mean Earth radius used for great-circle math.
const EarthRadiusMeters = 6371000.0

// Distance calculates the great-circle distance between two points in
// meters. Points are orb-style (lon, lat).
func Distance(a, b orb.Point) float64 {
	p1 := s2.LatLngFromDegrees(a[1], a[0])
	p2 := s2.LatLngFromDegrees(b[1], b[0])
	return p1.Distance(p2).Radians() * EarthRadiusMeters
}

// Length calculates the total great-circle length of a line string in
// meters.
func Length(ls orb.LineString) float64 {
	var total float64
	for i := 1; i < len(ls); i++ {
		total += Distance(ls[i-1], ls[i])
	}
	return total
}
