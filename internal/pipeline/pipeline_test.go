package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/urbanform/hexpipe/internal/aoi"
	"github.com/urbanform/hexpipe/internal/config"
	"github.com/urbanform/hexpipe/internal/models"
	"github.com/urbanform/hexpipe/internal/osm"
)

// fakeGeocoder answers every query with a small square over inner
// Melbourne, except for places listed in unknown, which get an empty
// result.
func fakeGeocoder(t *testing.T, unknown ...string) *httptest.Server {
	t.Helper()
	fc := geojson.NewFeatureCollection()
	f := geojson.NewFeature(orb.Polygon{{
		{144.95, -37.82}, {144.97, -37.82}, {144.97, -37.80}, {144.95, -37.80}, {144.95, -37.82},
	}})
	f.Properties = geojson.Properties{"importance": 0.9}
	fc.Append(f)
	body, err := json.Marshal(fc)
	if err != nil {
		t.Fatal(err)
	}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		q, _ := url.QueryUnescape(req.URL.Query().Get("q"))
		for _, u := range unknown {
			if strings.Contains(q, u) {
				w.Write([]byte(`{"type":"FeatureCollection","features":[]}`))
				return
			}
		}
		w.Write(body)
	}))
}

func testConfig(t *testing.T, geocoderURL string) *config.Config {
	t.Helper()
	return &config.Config{
		Resolution: 9,
		Workers:    2,
		Country:    "Australia",
		DataDir:    t.TempDir(),
		OsmiumBin:  "osmium",
		Geocoder: config.GeocoderConfig{
			URL:       geocoderURL,
			UserAgent: "hexpipe-test",
			Retries:   1,
		},
	}
}

func TestGridAOI(t *testing.T) {
	srv := fakeGeocoder(t)
	defer srv.Close()
	p := New(testConfig(t, srv.URL))

	out, err := p.GridAOI(context.Background(), "Melbourne", false)
	if err != nil {
		t.Fatalf("GridAOI: %v", err)
	}
	if _, err := os.Stat(out); err != nil {
		t.Fatalf("grid file not written: %v", err)
	}

	// A second run must reuse the existing grid file.
	before, _ := os.Stat(out)
	again, err := p.GridAOI(context.Background(), "Melbourne", false)
	if err != nil {
		t.Fatalf("second GridAOI: %v", err)
	}
	if again != out {
		t.Errorf("paths differ across runs: %q vs %q", out, again)
	}
	after, _ := os.Stat(again)
	if !after.ModTime().Equal(before.ModTime()) {
		t.Errorf("grid regenerated despite existing file")
	}
}

func TestClipAOIWithoutSource(t *testing.T) {
	srv := fakeGeocoder(t)
	defer srv.Close()
	p := New(testConfig(t, srv.URL))

	_, err := p.ClipAOI(context.Background(), "Melbourne", false)
	var cfgErr *models.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError for missing source_pbf, got %v", err)
	}
}

func TestClipAOIReusesExtract(t *testing.T) {
	srv := fakeGeocoder(t)
	defer srv.Close()
	cfg := testConfig(t, srv.URL)
	cfg.SourcePBF = "australia.osm.pbf"
	p := New(cfg)

	slug := aoi.Slugify(aoi.EnsureCountry("Melbourne", cfg.Country))
	if err := os.MkdirAll(cfg.PBFDir(), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(cfg.ExtractPath(slug), []byte("stub"), 0o644); err != nil {
		t.Fatal(err)
	}

	// The clip tool is never invoked when the extract is present, so the
	// nonexistent source file does not matter.
	out, err := p.ClipAOI(context.Background(), "Melbourne", false)
	if err != nil {
		t.Fatalf("ClipAOI: %v", err)
	}
	if out != cfg.ExtractPath(slug) {
		t.Errorf("ClipAOI returned %q, want cached extract", out)
	}
}

func TestAggregateAOIMissingGrid(t *testing.T) {
	srv := fakeGeocoder(t)
	defer srv.Close()
	p := New(testConfig(t, srv.URL))

	_, err := p.AggregateAOI(context.Background(), "Melbourne")
	var gridErr *models.MissingGridError
	if !errors.As(err, &gridErr) {
		t.Fatalf("expected MissingGridError, got %v", err)
	}
}

func TestMergeGridsRequiresAllGrids(t *testing.T) {
	srv := fakeGeocoder(t)
	defer srv.Close()
	p := New(testConfig(t, srv.URL))

	if _, err := p.GridAOI(context.Background(), "Melbourne", false); err != nil {
		t.Fatal(err)
	}

	_, err := p.MergeGrids(context.Background(), []string{"Melbourne", "Geelong"})
	var gridErr *models.MissingGridError
	if !errors.As(err, &gridErr) {
		t.Fatalf("expected MissingGridError for ungridded AOI, got %v", err)
	}

	out, err := p.MergeGrids(context.Background(), []string{"Melbourne"})
	if err != nil {
		t.Fatalf("MergeGrids: %v", err)
	}
	if _, err := os.Stat(out); err != nil {
		t.Fatalf("merged grid not written: %v", err)
	}
}

func TestRunBatchIsolatesFailures(t *testing.T) {
	// "Atlantis" cannot be resolved; the other AOIs must still be carried
	// as far as their inputs allow. With a nonexistent source snapshot
	// every chain eventually fails, but each with its own error and in
	// input order.
	srv := fakeGeocoder(t, "Atlantis")
	defer srv.Close()
	cfg := testConfig(t, srv.URL)
	cfg.SourcePBF = "nonexistent.osm.pbf"
	p := New(cfg)

	names := []string{"Melbourne", "Atlantis", "Geelong"}
	results := p.RunBatch(context.Background(), names)

	if len(results) != len(names) {
		t.Fatalf("got %d results, want %d", len(results), len(names))
	}
	for i, r := range results {
		if r.Name != names[i] {
			t.Errorf("result %d is %q, want %q (order must be preserved)", i, r.Name, names[i])
		}
	}

	var resErr *models.ResolutionError
	if !errors.As(results[1].Err, &resErr) {
		t.Errorf("Atlantis error = %v, want ResolutionError", results[1].Err)
	}
	var extErr *models.ExtractionError
	if !errors.As(results[0].Err, &extErr) {
		t.Errorf("Melbourne error = %v, want ExtractionError for missing source", results[0].Err)
	}

	failed := Failed(results)
	if len(failed) != 3 {
		t.Errorf("Failed() = %v", failed)
	}
}

func TestRunBatchPartialExtracts(t *testing.T) {
	// Extracts prepared out of band: two AOIs have theirs, the third does
	// not. The two must be carried all the way to an output file while the
	// third fails on the missing extract without poisoning the batch.
	srv := fakeGeocoder(t)
	defer srv.Close()
	cfg := testConfig(t, srv.URL)
	p := New(cfg)
	p.reader = func(ctx context.Context, path string) (*osm.Layers, error) {
		if err := osm.Validate(path); err != nil {
			return nil, err
		}
		return &osm.Layers{
			Buildings: []models.Building{{
				ID:   1,
				Type: "house",
				Geometry: orb.Polygon{{
					{144.9600, -37.8100}, {144.9602, -37.8100},
					{144.9602, -37.8098}, {144.9600, -37.8098},
					{144.9600, -37.8100},
				}},
			}},
		}, nil
	}

	if err := os.MkdirAll(cfg.PBFDir(), 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"Melbourne", "Geelong"} {
		slug := aoi.Slugify(aoi.EnsureCountry(name, cfg.Country))
		if err := os.WriteFile(cfg.ExtractPath(slug), []byte("stub"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	names := []string{"Melbourne", "Ballarat", "Geelong"}
	results := p.RunBatch(context.Background(), names)

	if len(results) != len(names) {
		t.Fatalf("got %d results, want %d", len(results), len(names))
	}
	for _, i := range []int{0, 2} {
		if results[i].Err != nil {
			t.Fatalf("%s failed: %v", results[i].Name, results[i].Err)
		}
		if _, err := os.Stat(results[i].Output); err != nil {
			t.Errorf("%s output not written: %v", results[i].Name, err)
		}
	}
	var readErr *models.ExtractReadError
	if !errors.As(results[1].Err, &readErr) {
		t.Errorf("Ballarat error = %v, want ExtractReadError", results[1].Err)
	}
	if failed := Failed(results); len(failed) != 1 || failed[0] != "Ballarat" {
		t.Errorf("Failed() = %v, want only Ballarat", failed)
	}
}
