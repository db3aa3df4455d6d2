// Package geocode resolves place names to boundary polygons via a
// Nominatim-compatible geocoding service.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/hauke96/sigolo/v2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/urbanform/hexpipe/internal/aoi"
	"github.com/urbanform/hexpipe/internal/config"
	"github.com/urbanform/hexpipe/internal/models"
)

// Resolver maps place display names to cached boundary polygon files. The
// cache is keyed by slug and treated as permanent: a second resolution for
// the same slug reuses the file instead of re-querying.
type Resolver struct {
	baseURL   string
	userAgent string
	retries   int
	backoff   time.Duration
	client    *http.Client
	cacheDir  string
}

// NewResolver creates a resolver writing polygon files under cacheDir.
func NewResolver(cfg config.GeocoderConfig, cacheDir string) *Resolver {
	return &Resolver{
		baseURL:   cfg.URL,
		userAgent: cfg.UserAgent,
		retries:   cfg.Retries,
		backoff:   time.Second,
		client:    &http.Client{Timeout: cfg.Timeout},
		cacheDir:  cacheDir,
	}
}

// Resolve returns the polygon file path and slug for a place name,
// querying the geocoder only on a cache miss.
//
// Candidate selection: among returned features with polygonal geometry,
// the one with the highest Nominatim importance score wins. Features
// without a polygon (points, bare bounding boxes) are ignored.
func (r *Resolver) Resolve(ctx context.Context, place string) (string, string, error) {
	slug := aoi.Slugify(place)
	if slug == "" {
		return "", "", &models.ResolutionError{Place: place, Err: fmt.Errorf("name normalizes to an empty slug")}
	}

	path := filepath.Join(r.cacheDir, slug+".geojson")
	if _, err := os.Stat(path); err == nil {
		sigolo.Debugf("polygon cache hit for %s", slug)
		return path, slug, nil
	}

	fc, err := r.search(ctx, place)
	if err != nil {
		return "", "", err
	}

	best := pickBest(fc)
	if best == nil {
		return "", "", &models.ResolutionError{Place: place}
	}

	if err := r.writePolygon(path, place, best); err != nil {
		return "", "", err
	}
	sigolo.Infof("resolved %q -> %s", place, slug)
	return path, slug, nil
}

func (r *Resolver) search(ctx context.Context, place string) (*geojson.FeatureCollection, error) {
	endpoint := fmt.Sprintf("%s/search?q=%s&format=geojson&polygon_geojson=1&limit=10",
		r.baseURL, url.QueryEscape(place))

	var lastErr error
	for attempt := 0; attempt < r.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, &models.ResolutionError{Place: place, Err: ctx.Err()}
			case <-time.After(r.backoff << (attempt - 1)):
			}
		}

		fc, err := r.fetch(ctx, endpoint)
		if err == nil {
			return fc, nil
		}
		lastErr = err
		sigolo.Warnf("geocoder attempt %d/%d for %q failed: %v", attempt+1, r.retries, place, err)
	}
	return nil, &models.ResolutionError{Place: place, Err: lastErr}
}

func (r *Resolver) fetch(ctx context.Context, endpoint string) (*geojson.FeatureCollection, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geocoder returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return geojson.UnmarshalFeatureCollection(body)
}

func pickBest(fc *geojson.FeatureCollection) *geojson.Feature {
	var best *geojson.Feature
	var bestScore float64
	for _, f := range fc.Features {
		switch f.Geometry.(type) {
		case orb.Polygon, orb.MultiPolygon:
		default:
			continue
		}
		score := importance(f.Properties)
		if best == nil || score > bestScore {
			best = f
			bestScore = score
		}
	}
	return best
}

func importance(p geojson.Properties) float64 {
	if v, ok := p["importance"].(float64); ok {
		return v
	}
	return 0
}

func (r *Resolver) writePolygon(path, place string, f *geojson.Feature) error {
	out := geojson.NewFeatureCollection()
	feature := geojson.NewFeature(f.Geometry)
	feature.Properties = geojson.Properties{"name": place}
	out.Append(feature)

	data, err := json.Marshal(out)
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

// LoadPolygon reads a cached polygon file back as a multipolygon.
func LoadPolygon(path string) (orb.MultiPolygon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read polygon %s: %w", path, err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse polygon %s: %w", path, err)
	}

	var mp orb.MultiPolygon
	for _, f := range fc.Features {
		switch g := f.Geometry.(type) {
		case orb.Polygon:
			mp = append(mp, g)
		case orb.MultiPolygon:
			mp = append(mp, g...)
		}
	}
	if len(mp) == 0 {
		return nil, fmt.Errorf("no polygon geometry in %s", path)
	}
	return mp, nil
}
