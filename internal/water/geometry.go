package water

import (
	"fmt"

	"github.com/airbusgeo/godal"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
)

// Bridges between the in-memory orb geometries and GDAL/GEOS. The boolean
// operations (dissolve, repair, buffer, difference) run on godal geometries;
// everything numeric (area, distance, simplification) stays on the orb side.

const bufferSegments = 30

func toGodal(mp orb.MultiPolygon, epsg int) (*godal.Geometry, error) {
	data, err := wkb.Marshal(mp)
	if err != nil {
		return nil, fmt.Errorf("failed to encode geometry to wkb: %w", err)
	}
	sr, err := godal.NewSpatialRefFromEPSG(epsg)
	if err != nil {
		return nil, fmt.Errorf("failed to create spatial ref EPSG:%d: %w", epsg, err)
	}
	defer sr.Close()
	geom, err := godal.NewGeometryFromWKB(data, sr)
	if err != nil {
		return nil, fmt.Errorf("failed to build geometry from wkb: %w", err)
	}
	return geom, nil
}

func fromGodal(geom *godal.Geometry) (orb.MultiPolygon, error) {
	if geom.Empty() {
		return nil, nil
	}
	data, err := geom.WKB()
	if err != nil {
		return nil, fmt.Errorf("failed to export geometry to wkb: %w", err)
	}
	decoded, err := wkb.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode wkb geometry: %w", err)
	}
	switch g := decoded.(type) {
	case orb.Polygon:
		return orb.MultiPolygon{g}, nil
	case orb.MultiPolygon:
		return g, nil
	default:
		return nil, fmt.Errorf("unexpected geometry type %s after geometry op", decoded.GeoJSONType())
	}
}

// Dissolve merges a set of polygons into one (multi)geometry in the given
// CRS. A zero distance buffer is the union trick: GEOS rebuilds the
// coverage, merging touching and overlapping parts.
func Dissolve(polys []orb.Polygon, epsg int) (orb.MultiPolygon, error) {
	geom, err := toGodal(orb.MultiPolygon(polys), epsg)
	if err != nil {
		return nil, err
	}
	defer geom.Close()
	merged, err := geom.Buffer(0, bufferSegments)
	if err != nil {
		return nil, fmt.Errorf("failed to dissolve polygons: %w", err)
	}
	defer merged.Close()
	return fromGodal(merged)
}

// Repair fixes invalid geometry through a zero distance buffer; anything
// GEOS still rejects afterwards is dropped as an empty result.
func Repair(mp orb.MultiPolygon, epsg int) (orb.MultiPolygon, error) {
	geom, err := toGodal(mp, epsg)
	if err != nil {
		return nil, err
	}
	defer geom.Close()
	if geom.Valid() {
		return mp, nil
	}
	fixed, err := geom.Buffer(0, bufferSegments)
	if err != nil {
		return nil, fmt.Errorf("failed to repair geometry: %w", err)
	}
	defer fixed.Close()
	if !fixed.Valid() {
		return nil, nil
	}
	return fromGodal(fixed)
}

// BufferUnbuffer offsets the geometry outward then inward by the same
// distance, a closing at geometry level: near-touching fragments merge and
// concavities narrower than the radius smooth out with no net size change.
func BufferUnbuffer(mp orb.MultiPolygon, epsg int, distance float64) (orb.MultiPolygon, error) {
	geom, err := toGodal(mp, epsg)
	if err != nil {
		return nil, err
	}
	defer geom.Close()
	grown, err := geom.Buffer(distance, bufferSegments)
	if err != nil {
		return nil, fmt.Errorf("failed to buffer geometry by %f: %w", distance, err)
	}
	defer grown.Close()
	shrunk, err := grown.Buffer(-distance, bufferSegments)
	if err != nil {
		return nil, fmt.Errorf("failed to unbuffer geometry by %f: %w", -distance, err)
	}
	defer shrunk.Close()
	return fromGodal(shrunk)
}

// Difference returns a minus b in the CRS both are expressed in.
func Difference(a, b orb.MultiPolygon, epsg int) (orb.MultiPolygon, error) {
	ga, err := toGodal(a, epsg)
	if err != nil {
		return nil, err
	}
	defer ga.Close()
	gb, err := toGodal(b, epsg)
	if err != nil {
		return nil, err
	}
	defer gb.Close()
	diff, err := ga.Difference(gb)
	if err != nil {
		return nil, fmt.Errorf("failed to compute geometry difference: %w", err)
	}
	defer diff.Close()
	return fromGodal(diff)
}

// Reproject transforms a multipolygon between coordinate systems.
func Reproject(mp orb.MultiPolygon, fromEPSG, toEPSG int) (orb.MultiPolygon, error) {
	if fromEPSG == toEPSG {
		return mp, nil
	}
	geom, err := toGodal(mp, fromEPSG)
	if err != nil {
		return nil, err
	}
	defer geom.Close()
	dst, err := godal.NewSpatialRefFromEPSG(toEPSG)
	if err != nil {
		return nil, fmt.Errorf("failed to create spatial ref EPSG:%d: %w", toEPSG, err)
	}
	defer dst.Close()
	if err := geom.Reproject(dst); err != nil {
		return nil, fmt.Errorf("failed to reproject geometry from EPSG:%d to EPSG:%d: %w",
			fromEPSG, toEPSG, err)
	}
	return fromGodal(geom)
}
