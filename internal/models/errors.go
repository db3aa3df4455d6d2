package models

import "fmt"

// ConfigurationError indicates a bad or unknown group, or a malformed
// configuration file. It is fatal and aborts the run before any work starts.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s", e.Reason)
}

// ResolutionError indicates a place name that could not be mapped to a
// boundary polygon. The affected AOI is skipped and the run continues.
type ResolutionError struct {
	Place string
	Err   error
}

func (e *ResolutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to resolve boundary for %q: %v", e.Place, e.Err)
	}
	return fmt.Sprintf("no boundary found for %q", e.Place)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// ExtractionError indicates that the external PBF clipping tool failed for
// one AOI.
type ExtractionError struct {
	Slug   string
	Output string
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("pbf extraction failed for %s: %v: %s", e.Slug, e.Err, e.Output)
	}
	return fmt.Sprintf("pbf extraction failed for %s: %v", e.Slug, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// ExtractReadError indicates a missing, malformed or unreadable OSM extract.
// Aggregation aborts for that AOI only.
type ExtractReadError struct {
	Path string
	Err  error
}

func (e *ExtractReadError) Error() string {
	return fmt.Sprintf("failed to read extract %s: %v", e.Path, e.Err)
}

func (e *ExtractReadError) Unwrap() error { return e.Err }

// MissingGridError indicates a hex grid that is missing or empty.
type MissingGridError struct {
	AOISlug string
	Path    string
}

func (e *MissingGridError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("hex grid missing or empty for %s", e.AOISlug)
	}
	return fmt.Sprintf("hex grid missing or empty: %s", e.Path)
}

// WriteError indicates an output path that could not be written. It is fatal
// for that AOI's output; the run continues for the others.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("failed to write %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }
