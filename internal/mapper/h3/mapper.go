package h3mapper

import (
	"errors"
	"fmt"
	"sort"

	"github.com/twpayne/go-geom"
	h3 "github.com/uber/h3-go/v4"
)

type Mapper struct{}

func New() *Mapper { return &Mapper{} }

// CellForPoint returns the cell at res containing lon,lat (EPSG:4326).
func (m *Mapper) CellForPoint(lon, lat float64, res int) (string, error) {
	if err := validateRes(res); err != nil {
		return "", err
	}
	if err := validatePoint(lon, lat); err != nil {
		return "", err
	}
	c, err := h3.LatLngToCell(h3.LatLng{Lat: lat, Lng: lon}, res)
	if err != nil {
		return "", fmt.Errorf("h3 cell: %w", err)
	}
	return c.String(), nil
}

// CellsForFootprint polyfills every polygon of the footprint. The result is
// sorted and unique. Footprints smaller than a cell can yield no cells.
func (m *Mapper) CellsForFootprint(mp *geom.MultiPolygon, res int) ([]string, error) {
	if err := validateRes(res); err != nil {
		return nil, err
	}
	if mp == nil || mp.NumPolygons() == 0 {
		return nil, errors.New("empty footprint")
	}

	seen := make(map[string]struct{})
	var out []string
	for pi := 0; pi < mp.NumPolygons(); pi++ {
		p := mp.Polygon(pi)
		if p.NumLinearRings() == 0 {
			return nil, fmt.Errorf("polygon %d is empty", pi)
		}
		outer := toLoop(p.LinearRing(0).Coords())
		if len(outer) < 3 {
			return nil, fmt.Errorf("polygon %d outer ring has < 3 vertices", pi)
		}
		var holes []h3.GeoLoop
		for i := 1; i < p.NumLinearRings(); i++ {
			h := toLoop(p.LinearRing(i).Coords())
			if len(h) < 3 {
				return nil, fmt.Errorf("polygon %d hole %d has < 3 vertices", pi, i-1)
			}
			holes = append(holes, h)
		}
		cells, err := h3.PolygonToCells(h3.GeoPolygon{GeoLoop: outer, Holes: holes}, res)
		if err != nil {
			return nil, fmt.Errorf("h3 polyfill: %w", err)
		}
		for _, c := range cells {
			s := c.String()
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Contains reports whether lon,lat falls inside cell.
func (m *Mapper) Contains(cell string, lon, lat float64) (bool, error) {
	var c h3.Cell
	if err := c.UnmarshalText([]byte(cell)); err != nil {
		return false, fmt.Errorf("parse cell: %w", err)
	}
	if !c.IsValid() {
		return false, fmt.Errorf("invalid h3 cell %q", cell)
	}
	if err := validatePoint(lon, lat); err != nil {
		return false, err
	}
	got, err := h3.LatLngToCell(h3.LatLng{Lat: lat, Lng: lon}, c.Resolution())
	if err != nil {
		return false, fmt.Errorf("h3 cell: %w", err)
	}
	return got == c, nil
}

// --- helpers ---

func validateRes(res int) error {
	if res < 0 || res > 15 {
		return fmt.Errorf("invalid H3 resolution %d (must be 0..15)", res)
	}
	return nil
}

func validatePoint(lon, lat float64) error {
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return fmt.Errorf("point %.6f,%.6f out of range", lon, lat)
	}
	return nil
}

// toLoop converts a ring to an h3.GeoLoop, dropping the closing vertex.
func toLoop(coords []geom.Coord) h3.GeoLoop {
	loop := make(h3.GeoLoop, 0, len(coords))
	for _, xy := range coords {
		loop = append(loop, h3.LatLng{Lat: xy.Y(), Lng: xy.X()})
	}
	if len(loop) >= 2 {
		last := loop[len(loop)-1]
		first := loop[0]
		if last.Lat == first.Lat && last.Lng == first.Lng {
			loop = loop[:len(loop)-1]
		}
	}
	return loop
}
