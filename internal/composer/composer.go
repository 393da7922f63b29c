// Package composer shapes a list of sites into a response: content
// negotiation between the JSON view and GeoJSON, ordering and paging.
package composer

import (
	"cmp"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/mohammed-shakir/site-viewer/internal/core/model"
	"github.com/mohammed-shakir/site-viewer/internal/core/observability"
	"github.com/mohammed-shakir/site-viewer/internal/geometry"
)

type Format int

const (
	FormatJSON Format = iota
	FormatGeoJSON
)

const (
	ContentTypeJSON    = "application/json"
	ContentTypeGeoJSON = "application/geo+json"
)

func (f Format) String() string {
	if f == FormatGeoJSON {
		return "geojson"
	}
	return "json"
}

type NegotiationInput struct {
	AcceptHeader  string
	OutputFormat  string
	DefaultFormat Format
}

type Negotiation struct {
	Format      Format
	ContentType string
}

func negotiation(f Format) Negotiation {
	if f == FormatGeoJSON {
		return Negotiation{Format: FormatGeoJSON, ContentType: ContentTypeGeoJSON}
	}
	return Negotiation{Format: FormatJSON, ContentType: ContentTypeJSON}
}

// NegotiateFormat picks the output format. An explicit output format wins
// over the Accept header; among Accept entries the highest q wins.
func NegotiateFormat(in NegotiationInput) Negotiation {
	of := strings.ToLower(strings.TrimSpace(in.OutputFormat))
	switch {
	case of == "geojson", strings.HasPrefix(of, ContentTypeGeoJSON):
		return negotiation(FormatGeoJSON)
	case of == "json", strings.HasPrefix(of, ContentTypeJSON):
		return negotiation(FormatJSON)
	}

	bestQ := -1.0
	best := Negotiation{}
	for part := range strings.SplitSeq(strings.ToLower(in.AcceptHeader), ",") {
		token := strings.TrimSpace(part)
		if token == "" {
			continue
		}
		mt := token
		params := ""
		if i := strings.Index(token, ";"); i >= 0 {
			mt = strings.TrimSpace(token[:i])
			params = token[i+1:]
		}
		q := 1.0
		for p := range strings.SplitSeq(params, ";") {
			p = strings.TrimSpace(p)
			if after, ok := strings.CutPrefix(p, "q="); ok {
				if v, err := strconv.ParseFloat(after, 64); err == nil {
					q = v
				}
			}
		}
		var cand Negotiation
		switch {
		case mt == "*/*" || mt == "application/*":
			cand = negotiation(in.DefaultFormat)
		case strings.Contains(mt, "geo+json"):
			cand = negotiation(FormatGeoJSON)
		case mt == ContentTypeJSON:
			cand = negotiation(FormatJSON)
		default:
			continue
		}
		if q > bestQ {
			bestQ = q
			best = cand
		}
	}
	if bestQ >= 0 {
		return best
	}
	return negotiation(in.DefaultFormat)
}

type SortKey struct {
	Property string
	Desc     bool
}

// ParseSort reads a comma separated key list such as "-description,id";
// a leading '-' sorts descending.
func ParseSort(raw string) ([]SortKey, error) {
	var keys []SortKey
	for part := range strings.SplitSeq(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k := SortKey{Property: part}
		if after, ok := strings.CutPrefix(part, "-"); ok {
			k = SortKey{Property: after, Desc: true}
		}
		switch k.Property {
		case "id", "description":
		default:
			return nil, fmt.Errorf("unsupported sort property %q", k.Property)
		}
		keys = append(keys, k)
	}
	return keys, nil
}

type QueryParams struct {
	Sort   []SortKey
	Limit  int // 0 means no limit
	Offset int
}

// Apply orders and pages sites without modifying the input. Without sort
// keys the dataset order is kept.
func Apply(sites []model.Site, q QueryParams) []model.Site {
	out := slices.Clone(sites)
	if len(q.Sort) > 0 {
		slices.SortStableFunc(out, func(a, b model.Site) int {
			for _, k := range q.Sort {
				var c int
				switch k.Property {
				case "id":
					c = cmp.Compare(a.ID, b.ID)
				case "description":
					c = strings.Compare(a.Description.String(), b.Description.String())
				}
				if k.Desc {
					c = -c
				}
				if c != 0 {
					return c
				}
			}
			return 0
		})
	}
	if q.Offset > 0 {
		if q.Offset >= len(out) {
			return out[:0]
		}
		out = out[q.Offset:]
	}
	if q.Limit > 0 && q.Limit < len(out) {
		out = out[:q.Limit]
	}
	return out
}

// FeatureCollection encodes the footprints of sites as GeoJSON. Sites
// without a footprint are left out.
func FeatureCollection(sites []model.Site) ([]byte, error) {
	t0 := time.Now()
	fc := &geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(sites))}
	for _, s := range sites {
		mp, err := geometry.Footprint(s)
		if err != nil {
			return nil, err
		}
		if len(mp.FlatCoords()) == 0 {
			continue
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:       strconv.Itoa(s.ID),
			Geometry: mp,
			Properties: map[string]any{
				"id":                 s.ID,
				"description":        s.Description.String(),
				"footprint_altitude": s.FootprintAltitude,
			},
		})
	}
	b, err := json.Marshal(fc)
	if err != nil {
		return nil, fmt.Errorf("marshal FeatureCollection: %w", err)
	}
	observability.ObserveRender(FormatGeoJSON.String(), len(fc.Features), time.Since(t0).Seconds())
	return b, nil
}
