// Package osm owns the boundary to the OSM toolchain: shelling out to
// osmium for clipping, and reading the resulting .osm.pbf extracts.
package osm

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/hauke96/sigolo/v2"

	"github.com/urbanform/hexpipe/internal/models"
)

// Clipper clips a country-wide OSM snapshot to an AOI polygon by invoking
// the external osmium tool. The pipeline owns nothing of the extraction
// logic itself; the boundary is this single call.
type Clipper struct {
	// Path to the osmium binary
	Binary string
}

// NewClipper creates a clipper using the given osmium binary.
func NewClipper(binary string) *Clipper {
	if binary == "" {
		binary = "osmium"
	}
	return &Clipper{Binary: binary}
}

// Clip produces outPath from sourcePath clipped to the polygon file. The
// output is written to a temporary name and renamed into place on success.
func (c *Clipper) Clip(ctx context.Context, sourcePath, polygonPath, outPath string) error {
	slug := strings.TrimSuffix(filepath.Base(outPath), ".osm.pbf")
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return &models.ExtractionError{Slug: slug, Err: err}
	}

	tmp := outPath + ".tmp.osm.pbf"
	defer os.Remove(tmp)

	cmd := exec.CommandContext(ctx, c.Binary,
		"extract",
		"--polygon", polygonPath,
		"--overwrite",
		"--output", tmp,
		"--output-format", "pbf",
		sourcePath,
	)
	sigolo.Debugf("running %s", strings.Join(cmd.Args, " "))

	out, err := cmd.CombinedOutput()
	if err != nil {
		return &models.ExtractionError{
			Slug:   slug,
			Output: strings.TrimSpace(string(out)),
			Err:    err,
		}
	}

	if err := os.Rename(tmp, outPath); err != nil {
		return &models.ExtractionError{Slug: slug, Err: err}
	}
	sigolo.Infof("clipped %s -> %s", filepath.Base(sourcePath), outPath)
	return nil
}
