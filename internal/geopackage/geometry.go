package geopackage

import (
	"encoding/binary"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
)

// GeoPackage geometry blobs are a fixed header (magic, version, flags,
// srs_id, optional envelope) followed by standard WKB.

const (
	gpMagic1 = 0x47 // 'G'
	gpMagic2 = 0x50 // 'P'

	// flags: envelope absent, little-endian header
	gpFlagsLE = 0x01
)

// EncodeGeometry wraps a geometry in a GeoPackage binary header.
func EncodeGeometry(g orb.Geometry) ([]byte, error) {
	body, err := wkb.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("failed to encode geometry: %w", err)
	}

	blob := make([]byte, 8, 8+len(body))
	blob[0] = gpMagic1
	blob[1] = gpMagic2
	blob[2] = 0 // version 1
	blob[3] = gpFlagsLE
	binary.LittleEndian.PutUint32(blob[4:8], srsID)
	return append(blob, body...), nil
}

// DecodeGeometry strips the GeoPackage binary header and decodes the WKB
// payload.
func DecodeGeometry(blob []byte) (orb.Geometry, error) {
	if len(blob) < 8 || blob[0] != gpMagic1 || blob[1] != gpMagic2 {
		return nil, fmt.Errorf("not a geopackage geometry blob")
	}

	flags := blob[3]
	var envLen int
	switch (flags >> 1) & 0x07 {
	case 0:
		envLen = 0
	case 1:
		envLen = 32
	case 2, 3:
		envLen = 48
	case 4:
		envLen = 64
	default:
		return nil, fmt.Errorf("invalid geometry envelope indicator %d", (flags>>1)&0x07)
	}

	offset := 8 + envLen
	if len(blob) < offset {
		return nil, fmt.Errorf("truncated geometry blob")
	}
	g, err := wkb.Unmarshal(blob[offset:])
	if err != nil {
		return nil, fmt.Errorf("failed to decode geometry: %w", err)
	}
	return g, nil
}
