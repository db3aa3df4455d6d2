// Package geopackage reads and writes GeoPackage feature tables. A
// GeoPackage is a SQLite database with a small registry (gpkg_contents,
// gpkg_geometry_columns, gpkg_spatial_ref_sys) and WKB geometry blobs, so
// the pure-Go sqlite driver is all that is needed.
package geopackage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/paulmach/orb"
	_ "modernc.org/sqlite"

	"github.com/urbanform/hexpipe/internal/models"
)

const srsID = 4326

// File is an open GeoPackage. Files opened with Create are written to a
// temporary path and renamed into place on Close, so a crashed worker
// never leaves a partially-written file for downstream stages to read.
type File struct {
	db      *sql.DB
	path    string
	tmp     string // non-empty while writing
	writers []*TableWriter
}

// Create opens a new GeoPackage for writing, replacing any existing file
// at path once Close succeeds.
func Create(path string) (*File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, &models.WriteError{Path: path, Err: err}
	}
	tmp := path + ".tmp"
	_ = os.Remove(tmp)

	db, err := sql.Open("sqlite", tmp)
	if err != nil {
		return nil, &models.WriteError{Path: path, Err: err}
	}

	f := &File{db: db, path: path, tmp: tmp}
	if err := f.bootstrap(); err != nil {
		db.Close()
		os.Remove(tmp)
		return nil, err
	}
	return f, nil
}

// Open opens an existing GeoPackage read-only.
func Open(path string) (*File, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to open geopackage: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open geopackage %s: %w", path, err)
	}
	return &File{db: db, path: path}, nil
}

// DB exposes the underlying connection for callers that own their queries.
func (f *File) DB() *sql.DB { return f.db }

// Path returns the final path of the file.
func (f *File) Path() string { return f.path }

func (f *File) bootstrap() error {
	stmts := []string{
		`PRAGMA application_id = 0x47504B47`,
		`PRAGMA user_version = 10300`,
		`CREATE TABLE gpkg_spatial_ref_sys (
			srs_name TEXT NOT NULL,
			srs_id INTEGER NOT NULL PRIMARY KEY,
			organization TEXT NOT NULL,
			organization_coordsys_id INTEGER NOT NULL,
			definition TEXT NOT NULL,
			description TEXT
		)`,
		`INSERT INTO gpkg_spatial_ref_sys VALUES
			('Undefined Cartesian', -1, 'NONE', -1, 'undefined', NULL),
			('Undefined Geographic', 0, 'NONE', 0, 'undefined', NULL),
			('WGS 84', 4326, 'EPSG', 4326,
			 'GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563]],PRIMEM["Greenwich",0],UNIT["degree",0.0174532925199433]]',
			 NULL)`,
		`CREATE TABLE gpkg_contents (
			table_name TEXT NOT NULL PRIMARY KEY,
			data_type TEXT NOT NULL,
			identifier TEXT UNIQUE,
			description TEXT DEFAULT '',
			last_change DATETIME NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
			min_x DOUBLE, min_y DOUBLE, max_x DOUBLE, max_y DOUBLE,
			srs_id INTEGER,
			CONSTRAINT fk_gc_r_srs_id FOREIGN KEY (srs_id) REFERENCES gpkg_spatial_ref_sys(srs_id)
		)`,
		`CREATE TABLE gpkg_geometry_columns (
			table_name TEXT NOT NULL,
			column_name TEXT NOT NULL,
			geometry_type_name TEXT NOT NULL,
			srs_id INTEGER NOT NULL,
			z TINYINT NOT NULL,
			m TINYINT NOT NULL,
			CONSTRAINT pk_geom_cols PRIMARY KEY (table_name, column_name)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := f.db.Exec(stmt); err != nil {
			return &models.WriteError{Path: f.path, Err: err}
		}
	}
	return nil
}

// Column describes one non-geometry attribute column.
type Column struct {
	Name string
	Type string // INTEGER, REAL or TEXT
}

// TableWriter inserts features into one table of a GeoPackage being
// written.
type TableWriter struct {
	path  string
	table string
	stmt  *sql.Stmt
	bound orb.Bound
	empty bool
}

// CreateFeatureTable registers a feature table and returns a writer for
// it. Column names must already be sanitized; geometryType is a GeoPackage
// geometry type name such as POLYGON or LINESTRING.
func (f *File) CreateFeatureTable(name, geometryType string, cols []Column) (*TableWriter, error) {
	defs := make([]string, 0, len(cols)+2)
	defs = append(defs, "fid INTEGER PRIMARY KEY AUTOINCREMENT", "geom BLOB NOT NULL")
	placeholders := make([]string, 0, len(cols)+1)
	placeholders = append(placeholders, "?")
	names := make([]string, 0, len(cols)+1)
	names = append(names, "geom")
	for _, c := range cols {
		defs = append(defs, fmt.Sprintf("%q %s", c.Name, c.Type))
		names = append(names, fmt.Sprintf("%q", c.Name))
		placeholders = append(placeholders, "?")
	}

	create := fmt.Sprintf("CREATE TABLE %q (%s)", name, strings.Join(defs, ", "))
	if _, err := f.db.Exec(create); err != nil {
		return nil, &models.WriteError{Path: f.path, Err: err}
	}
	if _, err := f.db.Exec(
		`INSERT INTO gpkg_contents (table_name, data_type, identifier, srs_id) VALUES (?, 'features', ?, ?)`,
		name, name, srsID,
	); err != nil {
		return nil, &models.WriteError{Path: f.path, Err: err}
	}
	if _, err := f.db.Exec(
		`INSERT INTO gpkg_geometry_columns VALUES (?, 'geom', ?, ?, 0, 0)`,
		name, geometryType, srsID,
	); err != nil {
		return nil, &models.WriteError{Path: f.path, Err: err}
	}

	insert := fmt.Sprintf("INSERT INTO %q (%s) VALUES (%s)",
		name, strings.Join(names, ", "), strings.Join(placeholders, ", "))
	stmt, err := f.db.Prepare(insert)
	if err != nil {
		return nil, &models.WriteError{Path: f.path, Err: err}
	}

	w := &TableWriter{path: f.path, table: name, stmt: stmt, empty: true}
	f.writers = append(f.writers, w)
	return w, nil
}

// Insert writes one feature row. vals must match the columns the table was
// created with, in order.
func (w *TableWriter) Insert(g orb.Geometry, vals ...any) error {
	blob, err := EncodeGeometry(g)
	if err != nil {
		return &models.WriteError{Path: w.path, Err: err}
	}
	args := make([]any, 0, len(vals)+1)
	args = append(args, blob)
	args = append(args, vals...)
	if _, err := w.stmt.Exec(args...); err != nil {
		return &models.WriteError{Path: w.path, Err: err}
	}

	b := g.Bound()
	if w.empty {
		w.bound = b
		w.empty = false
	} else {
		w.bound = w.bound.Union(b)
	}
	return nil
}

// Close finalizes the file. For files opened with Create, the content
// bounds are recorded and the temporary file is renamed into place.
func (f *File) Close() error {
	if f.tmp == "" {
		return f.db.Close()
	}

	for _, w := range f.writers {
		if !w.empty {
			if _, err := f.db.Exec(
				`UPDATE gpkg_contents SET min_x = ?, min_y = ?, max_x = ?, max_y = ? WHERE table_name = ?`,
				w.bound.Min[0], w.bound.Min[1], w.bound.Max[0], w.bound.Max[1], w.table,
			); err != nil {
				f.db.Close()
				return &models.WriteError{Path: f.path, Err: err}
			}
		}
		w.stmt.Close()
	}

	if err := f.db.Close(); err != nil {
		return &models.WriteError{Path: f.path, Err: err}
	}
	if err := os.Rename(f.tmp, f.path); err != nil {
		return &models.WriteError{Path: f.path, Err: err}
	}
	return nil
}
