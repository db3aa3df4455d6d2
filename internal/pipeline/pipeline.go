// Package pipeline wires the stages together: boundary resolution, OSM
// clipping, grid generation and feature aggregation, per AOI and in
// worker-pooled batches.
package pipeline

import (
	"context"
	"fmt"
	"os"

	"github.com/hauke96/sigolo/v2"

	"github.com/urbanform/hexpipe/internal/aggregate"
	"github.com/urbanform/hexpipe/internal/aoi"
	"github.com/urbanform/hexpipe/internal/config"
	"github.com/urbanform/hexpipe/internal/geocode"
	"github.com/urbanform/hexpipe/internal/grid"
	"github.com/urbanform/hexpipe/internal/models"
	"github.com/urbanform/hexpipe/internal/osm"
)

// Pipeline holds the stage dependencies. Stages communicate only through
// files on disk, so any stage can be re-run on its own and completed work
// survives a failed batch.
type Pipeline struct {
	cfg      *config.Config
	registry *aoi.Registry
	resolver *geocode.Resolver
	clipper  *osm.Clipper
	reader   func(ctx context.Context, path string) (*osm.Layers, error)
}

func New(cfg *config.Config) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		registry: aoi.NewRegistry(cfg.Groups),
		resolver: geocode.NewResolver(cfg.Geocoder, cfg.PolygonDir()),
		clipper:  osm.NewClipper(cfg.OsmiumBin),
		reader:   osm.ReadExtract,
	}
}

// Registry exposes the AOI group lookup.
func (p *Pipeline) Registry() *aoi.Registry { return p.registry }

// ResolveAOI resolves a city display name to a cached boundary polygon,
// returning the polygon path and the AOI slug.
func (p *Pipeline) ResolveAOI(ctx context.Context, name string) (string, string, error) {
	if err := os.MkdirAll(p.cfg.PolygonDir(), 0o755); err != nil {
		return "", "", fmt.Errorf("failed to create polygon dir: %w", err)
	}
	place := aoi.EnsureCountry(name, p.cfg.Country)
	return p.resolver.Resolve(ctx, place)
}

// ClipAOI cuts the AOI's extract out of the country-wide source snapshot.
// The existing extract is reused unless force is set.
func (p *Pipeline) ClipAOI(ctx context.Context, name string, force bool) (string, error) {
	if p.cfg.SourcePBF == "" {
		return "", &models.ConfigurationError{Reason: "source_pbf is not configured"}
	}
	polygonPath, slug, err := p.ResolveAOI(ctx, name)
	if err != nil {
		return "", err
	}

	out := p.cfg.ExtractPath(slug)
	if !force {
		if err := osm.Validate(out); err == nil {
			sigolo.Debugf("extract for %s already present, skipping clip", slug)
			return out, nil
		}
	}
	if err := os.MkdirAll(p.cfg.PBFDir(), 0o755); err != nil {
		return "", fmt.Errorf("failed to create pbf dir: %w", err)
	}
	if err := p.clipper.Clip(ctx, p.cfg.SourcePBF, polygonPath, out); err != nil {
		return "", err
	}
	if err := osm.Validate(out); err != nil {
		return "", err
	}
	return out, nil
}

// GridAOI generates and persists the AOI's hex grid. The existing grid is
// reused unless force is set.
func (p *Pipeline) GridAOI(ctx context.Context, name string, force bool) (string, error) {
	polygonPath, slug, err := p.ResolveAOI(ctx, name)
	if err != nil {
		return "", err
	}

	out := p.cfg.GridPath(slug)
	if !force {
		if _, err := os.Stat(out); err == nil {
			sigolo.Debugf("grid for %s already present, skipping generation", slug)
			return out, nil
		}
	}

	mp, err := geocode.LoadPolygon(polygonPath)
	if err != nil {
		return "", err
	}
	cells, err := grid.Generate(mp, p.cfg.Resolution, slug)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(p.cfg.GridDir(), 0o755); err != nil {
		return "", fmt.Errorf("failed to create grid dir: %w", err)
	}
	if err := grid.Write(out, cells); err != nil {
		return "", err
	}
	return out, nil
}

// AggregateAOI joins the AOI's extracted features onto its grid and writes
// the per-cell feature table. The grid and the extract must already exist;
// a missing grid is reported as such rather than regenerated, so a stale
// resolution cannot silently mix into the output.
func (p *Pipeline) AggregateAOI(ctx context.Context, name string) (string, error) {
	_, slug, err := p.ResolveAOI(ctx, name)
	if err != nil {
		return "", err
	}

	cells, err := grid.Read(p.cfg.GridPath(slug))
	if err != nil {
		return "", err
	}
	layers, err := p.reader(ctx, p.cfg.ExtractPath(slug))
	if err != nil {
		return "", err
	}
	records, err := aggregate.Aggregate(layers, cells, slug)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(p.cfg.OutputDir(), 0o755); err != nil {
		return "", fmt.Errorf("failed to create output dir: %w", err)
	}
	out := p.cfg.OutputPath(slug)
	if err := aggregate.WriteRecords(out, cells, records); err != nil {
		return "", err
	}
	sigolo.Infof("wrote %d hex records to %s", len(records), out)
	return out, nil
}

// ProcessAOI runs the full chain for one AOI: resolve, clip, grid,
// aggregate. Cached intermediates are reused. Without a configured source
// snapshot the clip stage is skipped and extracts prepared out of band are
// used as-is; an AOI whose extract is missing then fails in aggregation.
func (p *Pipeline) ProcessAOI(ctx context.Context, name string) (string, error) {
	if p.cfg.SourcePBF != "" {
		if _, err := p.ClipAOI(ctx, name, false); err != nil {
			return "", err
		}
	}
	if _, err := p.GridAOI(ctx, name, false); err != nil {
		return "", err
	}
	return p.AggregateAOI(ctx, name)
}

// MergeGrids combines the per-AOI grids of the named AOIs into the single
// merged grid file. AOIs without a grid are an error; merging a partial
// run would produce a silently incomplete coverage.
func (p *Pipeline) MergeGrids(ctx context.Context, names []string) (string, error) {
	paths := make([]string, 0, len(names))
	for _, name := range names {
		_, slug, err := p.ResolveAOI(ctx, name)
		if err != nil {
			return "", err
		}
		gp := p.cfg.GridPath(slug)
		if _, err := os.Stat(gp); err != nil {
			return "", &models.MissingGridError{AOISlug: slug, Path: gp}
		}
		paths = append(paths, gp)
	}

	out := p.cfg.MergedGridPath()
	if err := grid.Merge(out, paths, p.cfg.DedupeMergedGrid); err != nil {
		return "", err
	}
	return out, nil
}
