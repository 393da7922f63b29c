// Package geometry derives bounding boxes, centers and extents of sites.
package geometry

import (
	"errors"
	"fmt"

	"github.com/twpayne/go-geom"

	"github.com/mohammed-shakir/site-viewer/internal/core/model"
)

// ErrNoGeometry is returned when a site has nothing to reduce a box from.
var ErrNoGeometry = errors.New("no geometry available")

// Footprint converts the site footprint into a MultiPolygon. Points with
// fewer than two coordinates are skipped; extra coordinates are ignored.
func Footprint(site model.Site) (*geom.MultiPolygon, error) {
	coords := make([][][]geom.Coord, 0, len(site.Footprint))
	for _, polygon := range site.Footprint {
		rings := make([][]geom.Coord, 0, len(polygon))
		for _, ring := range polygon {
			pts := make([]geom.Coord, 0, len(ring))
			for _, p := range ring {
				if len(p) < 2 {
					continue
				}
				pts = append(pts, geom.Coord{p[0], p[1]})
			}
			rings = append(rings, pts)
		}
		coords = append(coords, rings)
	}
	mp, err := geom.NewMultiPolygon(geom.XY).SetCoords(coords)
	if err != nil {
		return nil, fmt.Errorf("site %d footprint: %w", site.ID, err)
	}
	return mp, nil
}

// BoundingBoxOfFootprint reduces the footprint to a box; altitudes come from
// footprint_altitude since footprints are 2D.
func BoundingBoxOfFootprint(site model.Site) (model.Box, error) {
	if len(site.FootprintAltitude) != 2 {
		return model.Box{}, fmt.Errorf("site %d: footprint_altitude has %d values: %w",
			site.ID, len(site.FootprintAltitude), ErrNoGeometry)
	}
	mp, err := Footprint(site)
	if err != nil {
		return model.Box{}, err
	}
	b := mp.Bounds()
	if len(mp.FlatCoords()) == 0 || b.IsEmpty() {
		return model.Box{}, fmt.Errorf("site %d: empty footprint: %w", site.ID, ErrNoGeometry)
	}
	return model.Box{
		b.Min(0), b.Min(1), site.FootprintAltitude[0],
		b.Max(0), b.Max(1), site.FootprintAltitude[1],
	}, nil
}

// BoundingBox prefers the precomputed box of the first point cloud and falls
// back to the footprint. The two are never merged.
func BoundingBox(site model.Site) (model.Box, error) {
	if len(site.PointClouds) > 0 && site.PointClouds[0].BBox != nil {
		return *site.PointClouds[0].BBox, nil
	}
	return BoundingBoxOfFootprint(site)
}

// CenterOfSite returns [lon, lat, alt] at the middle of the bounding box.
func CenterOfSite(site model.Site) ([3]float64, error) {
	b, err := BoundingBox(site)
	if err != nil {
		return [3]float64{}, err
	}
	return [3]float64{
		(b[3]-b[0])/2 + b[0],
		(b[4]-b[1])/2 + b[1],
		(b[5]-b[2])/2 + b[2],
	}, nil
}

// BoundingBoxSize returns half the box dimensions per axis.
func BoundingBoxSize(site model.Site) ([3]float64, error) {
	b, err := BoundingBox(site)
	if err != nil {
		return [3]float64{}, err
	}
	return [3]float64{
		(b[3] - b[0]) / 2,
		(b[4] - b[1]) / 2,
		(b[5] - b[2]) / 2,
	}, nil
}

// LabelPosition anchors a site label at the center of its box, on top.
func LabelPosition(site model.Site) ([3]float64, error) {
	c, err := CenterOfSite(site)
	if err != nil {
		return [3]float64{}, err
	}
	b, err := BoundingBox(site)
	if err != nil {
		return [3]float64{}, err
	}
	return [3]float64{c[0], c[1], b.MaxAlt()}, nil
}
