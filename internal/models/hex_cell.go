package models

import "github.com/paulmach/orb"

// HexCell is one cell of the H3 grid covering an AOI. Cells are generated
// once per AOI at run time and read-only thereafter. A cell belongs to the
// grid of the AOI it was generated for; the same H3 index may appear in two
// adjacent AOIs' grids.
type HexCell struct {
	// H3 index in hex-string form, e.g. "89be63562a3ffff"
	ID string `json:"h3_id"`

	// H3 resolution the cell was generated at; fixed per run
	Resolution int `json:"resolution"`

	// Slug of the AOI whose grid this cell belongs to
	AOISlug string `json:"aoi_slug"`

	// Cell boundary as a closed polygon in EPSG:4326
	Geometry orb.Polygon `json:"-"`
}

// Ring returns the cell's outer boundary ring.
func (c *HexCell) Ring() orb.Ring {
	if len(c.Geometry) == 0 {
		return nil
	}
	return c.Geometry[0]
}
