package geopackage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
)

func TestCreateWriteRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "test.gpkg")

	f, err := Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	w, err := f.CreateFeatureTable("grid", "POLYGON", []Column{
		{Name: "h3_id", Type: "TEXT"},
		{Name: "count", Type: "INTEGER"},
	})
	if err != nil {
		t.Fatalf("CreateFeatureTable: %v", err)
	}

	poly := orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}}
	if err := w.Insert(poly, "89be63562a3ffff", 3); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	// File must not exist at the final path before Close.
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("file visible at final path before Close")
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("file missing after Close: %v", err)
	}

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	var blob []byte
	var id string
	var count int
	row := r.DB().QueryRow(`SELECT geom, h3_id, count FROM grid`)
	if err := row.Scan(&blob, &id, &count); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if id != "89be63562a3ffff" || count != 3 {
		t.Errorf("attributes = (%q, %d)", id, count)
	}

	g, err := DecodeGeometry(blob)
	if err != nil {
		t.Fatalf("DecodeGeometry: %v", err)
	}
	got, ok := g.(orb.Polygon)
	if !ok {
		t.Fatalf("decoded geometry is %T, want orb.Polygon", g)
	}
	if len(got) != 1 || len(got[0]) != 5 {
		t.Errorf("decoded polygon has wrong shape: %v", got)
	}

	// Registry rows must exist for GDAL compatibility.
	var n int
	if err := r.DB().QueryRow(`SELECT count(*) FROM gpkg_contents WHERE table_name = 'grid'`).Scan(&n); err != nil || n != 1 {
		t.Errorf("gpkg_contents entry missing (n=%d, err=%v)", n, err)
	}
	if err := r.DB().QueryRow(`SELECT count(*) FROM gpkg_geometry_columns WHERE table_name = 'grid'`).Scan(&n); err != nil || n != 1 {
		t.Errorf("gpkg_geometry_columns entry missing (n=%d, err=%v)", n, err)
	}
}

func TestOpenMissing(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "missing.gpkg")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestGeometryRoundTrip(t *testing.T) {
	geoms := []orb.Geometry{
		orb.Point{144.96, -37.81},
		orb.LineString{{0, 0}, {1, 1}},
		orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}},
	}
	for _, g := range geoms {
		blob, err := EncodeGeometry(g)
		if err != nil {
			t.Fatalf("EncodeGeometry(%T): %v", g, err)
		}
		back, err := DecodeGeometry(blob)
		if err != nil {
			t.Fatalf("DecodeGeometry(%T): %v", g, err)
		}
		if back.GeoJSONType() != g.GeoJSONType() {
			t.Errorf("round trip changed type: %s -> %s", g.GeoJSONType(), back.GeoJSONType())
		}
	}
}
