// Package model defines core domain types shared across the service.
package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
)

// Site is one archaeological location as served by the sites document.
type Site struct {
	ID                int          `json:"id"`
	Description       Text         `json:"description_site"`
	Interpretation    Text         `json:"site_interpretation"`
	Context           Text         `json:"site_context"`
	Footprint         Footprint    `json:"footprint"`
	FootprintAltitude []float64    `json:"footprint_altitude"`
	Objects           []Object     `json:"objects"`
	PointClouds       []PointCloud `json:"pointcloud,omitempty"`
}

// Object is a find attached to a site.
type Object struct {
	RestorationDescription Text       `json:"description_restorations"`
	Interpretation         Text       `json:"object_interpretation"`
	Type                   Text       `json:"object_type"`
	Description            Text       `json:"description_object"`
	DateSpecific           Text       `json:"date_specific"`
	Period                 Text       `json:"period"`
	Condition              Text       `json:"condition"`
	Materials              []Material `json:"object_material"`
}

type Material struct {
	Subtype   Text `json:"material_subtype"`
	Type      Text `json:"material_type"`
	Technique Text `json:"material_technique"`
}

// PointCloud references a point-cloud dataset of a site. BBox is nil when the
// dataset carries no precomputed box or the box is malformed, so the
// footprint is used instead.
type PointCloud struct {
	DataLocation string `json:"data_location,omitempty"`
	BBox         *Box   `json:"bbox,omitempty"`
}

func (p *PointCloud) UnmarshalJSON(b []byte) error {
	var raw struct {
		DataLocation string          `json:"data_location"`
		BBox         json.RawMessage `json:"bbox"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("pointcloud: %w", err)
	}
	*p = PointCloud{DataLocation: raw.DataLocation}
	if len(raw.BBox) == 0 || bytes.Equal(bytes.TrimSpace(raw.BBox), []byte("null")) {
		return nil
	}
	var box Box
	if err := json.Unmarshal(raw.BBox, &box); err != nil {
		if errors.Is(err, ErrInvalidBox) {
			return nil
		}
		return fmt.Errorf("pointcloud bbox: %w", err)
	}
	p.BBox = &box
	return nil
}

// Footprint is [polygon][ring][point][lon,lat].
type Footprint [][][][]float64

// Box is [minLon, minLat, minAlt, maxLon, maxLat, maxAlt].
type Box [6]float64

// ErrInvalidBox is returned when a box is not exactly six finite numbers.
var ErrInvalidBox = errors.New("box must be 6 finite numbers")

func (b *Box) UnmarshalJSON(data []byte) error {
	var vals []float64
	if err := json.Unmarshal(data, &vals); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidBox, err)
	}
	if len(vals) != len(b) {
		return fmt.Errorf("%w: got %d values", ErrInvalidBox, len(vals))
	}
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return ErrInvalidBox
		}
	}
	copy(b[:], vals)
	return nil
}

func (b Box) MinLon() float64 { return b[0] }
func (b Box) MinLat() float64 { return b[1] }
func (b Box) MinAlt() float64 { return b[2] }
func (b Box) MaxLon() float64 { return b[3] }
func (b Box) MaxLat() float64 { return b[4] }
func (b Box) MaxAlt() float64 { return b[5] }

// Intersects reports whether the 2D extent of b overlaps the viewport.
func (b Box) Intersects(v BBox) bool {
	return b.MinLon() <= v.X2 && b.MaxLon() >= v.X1 &&
		b.MinLat() <= v.Y2 && b.MaxLat() >= v.Y1
}

// Text is a free-text field. The sites document is not strict about types,
// so numbers and booleans are kept as their literal text and null is empty.
type Text string

func (t *Text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*t = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("text: %w", err)
		}
		*t = Text(s)
		return nil
	}
	switch {
	case bytes.Equal(b, []byte("true")), bytes.Equal(b, []byte("false")):
		*t = Text(b)
		return nil
	}
	if _, err := strconv.ParseFloat(string(b), 64); err != nil {
		return fmt.Errorf("text: unsupported value %s", b)
	}
	*t = Text(b)
	return nil
}

func (t Text) String() string { return string(t) }

// BBox is a 2D viewport in EPSG:4326.
type BBox struct {
	X1, Y1 float64
	X2, Y2 float64
	SRID   string
}

// String formats the box as x1,y1,x2,y2,srid.
func (b BBox) String() string {
	return fmt.Sprintf("%.6f,%.6f,%.6f,%.6f,%s", b.X1, b.Y1, b.X2, b.Y2, b.SRID)
}

// SitesRequest is a validated /sites request.
type SitesRequest struct {
	Query    string
	Viewport *BBox
	// Cell keeps only sites whose center lies in this H3 cell.
	Cell string
}
