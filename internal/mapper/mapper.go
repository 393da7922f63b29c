// Package mapper converts site coordinates into H3 cells.
package mapper

import (
	"github.com/twpayne/go-geom"
)

type Interface interface {
	CellForPoint(lon, lat float64, res int) (string, error)
	CellsForFootprint(mp *geom.MultiPolygon, res int) ([]string, error)
	Contains(cell string, lon, lat float64) (bool, error)
}
