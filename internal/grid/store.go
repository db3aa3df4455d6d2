package grid

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hauke96/sigolo/v2"
	"github.com/jszwec/csvutil"
	"github.com/paulmach/orb"
	h3 "github.com/uber/h3-go/v4"

	"github.com/urbanform/hexpipe/internal/geopackage"
	"github.com/urbanform/hexpipe/internal/models"
)

const tableName = "grid"

// Write persists one grid (per-AOI or merged) as a GeoPackage feature
// table.
func Write(path string, cells []models.HexCell) error {
	f, err := geopackage.Create(path)
	if err != nil {
		return err
	}

	w, err := f.CreateFeatureTable(tableName, "POLYGON", []geopackage.Column{
		{Name: "h3_id", Type: "TEXT"},
		{Name: "aoi_slug", Type: "TEXT"},
		{Name: "resolution", Type: "INTEGER"},
	})
	if err != nil {
		f.Close()
		return err
	}

	for _, c := range cells {
		if err := w.Insert(c.Geometry, c.ID, c.AOISlug, c.Resolution); err != nil {
			f.Close()
			return err
		}
	}
	if err := f.Close(); err != nil {
		return err
	}
	sigolo.Infof("wrote %d cells to %s", len(cells), path)
	return nil
}

// Read loads a grid file. A missing file or a grid with zero cells is a
// MissingGridError.
func Read(path string) ([]models.HexCell, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, &models.MissingGridError{Path: path}
	}
	f, err := geopackage.Open(path)
	if err != nil {
		return nil, &models.MissingGridError{Path: path}
	}
	defer f.Close()

	rows, err := f.DB().Query(fmt.Sprintf(`SELECT geom, h3_id, aoi_slug, resolution FROM %q`, tableName))
	if err != nil {
		return nil, &models.MissingGridError{Path: path}
	}
	defer rows.Close()

	var cells []models.HexCell
	for rows.Next() {
		var blob []byte
		var cell models.HexCell
		if err := rows.Scan(&blob, &cell.ID, &cell.AOISlug, &cell.Resolution); err != nil {
			return nil, fmt.Errorf("failed to scan grid row: %w", err)
		}
		g, err := geopackage.DecodeGeometry(blob)
		if err != nil {
			return nil, fmt.Errorf("failed to decode cell %s: %w", cell.ID, err)
		}
		poly, ok := g.(orb.Polygon)
		if !ok {
			return nil, fmt.Errorf("cell %s has geometry %T, want polygon", cell.ID, g)
		}
		cell.Geometry = poly
		cells = append(cells, cell)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read grid rows: %w", err)
	}
	if len(cells) == 0 {
		return nil, &models.MissingGridError{Path: path}
	}
	return cells, nil
}

// Merge concatenates per-AOI grids into one combined grid. Cells shared by
// adjacent AOIs are kept once per AOI unless dedupe is set, in which case
// the first AOI to declare a cell wins.
func Merge(outPath string, gridPaths []string, dedupe bool) error {
	var merged []models.HexCell
	seen := make(map[string]bool)
	for _, p := range gridPaths {
		cells, err := Read(p)
		if err != nil {
			return err
		}
		for _, c := range cells {
			if dedupe {
				if seen[c.ID] {
					continue
				}
				seen[c.ID] = true
			}
			merged = append(merged, c)
		}
	}
	return Write(outPath, merged)
}

type csvCell struct {
	ID      string  `csv:"id"`
	AOISlug string  `csv:"aoi_slug"`
	Lat     float64 `csv:"lat"`
	Lng     float64 `csv:"lng"`
}

// ExportCSV writes cell centers as CSV for quick inspection and
// lightweight downstream joins.
func ExportCSV(path string, cells []models.HexCell) error {
	rows := make([]csvCell, 0, len(cells))
	for _, c := range cells {
		ll, err := h3.Cell(h3.IndexFromString(c.ID)).LatLng()
		if err != nil {
			return fmt.Errorf("failed to compute center of %s: %w", c.ID, err)
		}
		rows = append(rows, csvCell{ID: c.ID, AOISlug: c.AOISlug, Lat: ll.Lat, Lng: ll.Lng})
	}

	data, err := csvutil.Marshal(rows)
	if err != nil {
		return &models.WriteError{Path: path, Err: err}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &models.WriteError{Path: path, Err: err}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return &models.WriteError{Path: path, Err: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		return &models.WriteError{Path: path, Err: err}
	}
	return nil
}
