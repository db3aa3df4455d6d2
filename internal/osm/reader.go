package osm

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/hauke96/sigolo/v2"
	"github.com/paulmach/orb"
	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"

	"github.com/urbanform/hexpipe/internal/models"
)

// Layers holds one AOI's extract grouped by category. A category missing
// from the extract is an empty slice, never an error.
type Layers struct {
	Buildings []models.Building
	Roads     []models.Road
	POIs      []models.POI
	Landuse   []models.AreaFeature
	Natural   []models.AreaFeature
}

// ReadExtract loads the category layers from a .osm.pbf extract. Ways are
// assembled from a node-location cache built in a first pass over the
// file. Multipolygon relations are not assembled; see the repository
// design notes.
func ReadExtract(ctx context.Context, path string) (*Layers, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &models.ExtractReadError{Path: path, Err: err}
	}
	defer f.Close()

	layers := &Layers{}
	coords := make(map[osm.NodeID]orb.Point)

	// Pass 1: node locations, plus node POIs.
	scanner := osmpbf.New(ctx, f, 1)
	scanner.SkipWays = true
	scanner.SkipRelations = true
	for scanner.Scan() {
		n, ok := scanner.Object().(*osm.Node)
		if !ok {
			continue
		}
		coords[n.ID] = orb.Point{n.Lon, n.Lat}
		if t := poiType(n.Tags); t != "" {
			layers.POIs = append(layers.POIs, models.POI{
				ID:    int64(n.ID),
				Point: orb.Point{n.Lon, n.Lat},
				Type:  t,
			})
		}
	}
	if err := scanner.Err(); err != nil {
		scanner.Close()
		return nil, &models.ExtractReadError{Path: path, Err: err}
	}
	scanner.Close()

	// Pass 2: ways.
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, &models.ExtractReadError{Path: path, Err: err}
	}
	scanner = osmpbf.New(ctx, f, 1)
	scanner.SkipNodes = true
	scanner.SkipRelations = true
	for scanner.Scan() {
		w, ok := scanner.Object().(*osm.Way)
		if !ok {
			continue
		}
		classifyWay(w, coords, layers)
	}
	if err := scanner.Err(); err != nil {
		scanner.Close()
		return nil, &models.ExtractReadError{Path: path, Err: err}
	}
	scanner.Close()

	sigolo.Infof("extract %s: %d buildings, %d roads, %d pois, %d landuse, %d natural",
		path, len(layers.Buildings), len(layers.Roads), len(layers.POIs), len(layers.Landuse), len(layers.Natural))
	return layers, nil
}

func classifyWay(w *osm.Way, coords map[osm.NodeID]orb.Point, layers *Layers) {
	line := make(orb.LineString, 0, len(w.Nodes))
	for _, wn := range w.Nodes {
		if pt, ok := coords[wn.ID]; ok {
			line = append(line, pt)
		}
	}
	if len(line) < 2 {
		return
	}
	closed := len(line) >= 4 && line[0] == line[len(line)-1]

	if closed && isBuilding(w.Tags) {
		layers.Buildings = append(layers.Buildings, models.Building{
			ID:       int64(w.ID),
			Geometry: orb.Polygon{orb.Ring(line)},
			Type:     w.Tags.Find("building"),
			HeightM:  parseNumeric(w.Tags.Find("height")),
			Levels:   parseNumeric(w.Tags.Find("building:levels")),
		})
	}

	if isDrivableRoad(w.Tags) {
		layers.Roads = append(layers.Roads, models.Road{
			ID:       int64(w.ID),
			Geometry: line,
			Highway:  w.Tags.Find("highway"),
			Lanes:    parseNumeric(w.Tags.Find("lanes")),
			MaxSpeed: parseNumeric(w.Tags.Find("maxspeed")),
		})
	}

	if t := poiType(w.Tags); t != "" {
		layers.POIs = append(layers.POIs, models.POI{
			ID:    int64(w.ID),
			Point: centroid(line),
			Type:  t,
		})
	}

	if closed {
		if c := landuseCategory(w.Tags); c != "" {
			layers.Landuse = append(layers.Landuse, models.AreaFeature{
				ID:       int64(w.ID),
				Geometry: orb.Polygon{orb.Ring(line)},
				Category: c,
			})
		}
		if c := naturalCategory(w.Tags); c != "" {
			layers.Natural = append(layers.Natural, models.AreaFeature{
				ID:       int64(w.ID),
				Geometry: orb.Polygon{orb.Ring(line)},
				Category: c,
			})
		}
	}
}

func centroid(line orb.LineString) orb.Point {
	var sx, sy float64
	n := len(line)
	if n > 1 && line[0] == line[n-1] {
		n--
	}
	if n == 0 {
		return orb.Point{}
	}
	for i := 0; i < n; i++ {
		sx += line[i][0]
		sy += line[i][1]
	}
	return orb.Point{sx / float64(n), sy / float64(n)}
}

// Validate checks the extract file exists and is non-trivial before a full
// read is attempted.
func Validate(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return &models.ExtractReadError{Path: path, Err: err}
	}
	if info.Size() == 0 {
		return &models.ExtractReadError{Path: path, Err: fmt.Errorf("empty file")}
	}
	return nil
}
