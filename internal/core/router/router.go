package router

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mohammed-shakir/site-viewer/internal/composer"
	"github.com/mohammed-shakir/site-viewer/internal/core/model"
	"github.com/mohammed-shakir/site-viewer/internal/core/observability"
)

const maxQueryLen = 500

// instrument records request metrics under the route pattern.
func instrument(route string, fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		fn(sw, r)
		observability.ObserveHTTP(r.Method, route, sw.code, time.Since(start).Seconds())
	}
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func ParseSitesRequest(r *http.Request) (model.SitesRequest, error) {
	v := r.URL.Query()

	q := v.Get("q")
	if len(q) > maxQueryLen {
		return model.SitesRequest{}, fmt.Errorf("query longer than %d bytes", maxQueryLen)
	}

	var viewport *model.BBox
	if raw := strings.TrimSpace(v.Get("bbox")); raw != "" {
		bb, err := parseBBOX(raw)
		if err != nil {
			return model.SitesRequest{}, fmt.Errorf("invalid bbox: %w", err)
		}
		viewport = &bb
	}

	return model.SitesRequest{
		Query:    q,
		Viewport: viewport,
		Cell:     strings.TrimSpace(v.Get("cell")),
	}, nil
}

const maxPageLimit = 1000

// parsePage reads sort, limit and offset; limit 0 keeps every site.
func parsePage(r *http.Request) (composer.QueryParams, error) {
	v := r.URL.Query()
	var out composer.QueryParams
	keys, err := composer.ParseSort(v.Get("sort"))
	if err != nil {
		return out, err
	}
	out.Sort = keys
	if raw := strings.TrimSpace(v.Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 || n > maxPageLimit {
			return out, fmt.Errorf("limit must be in [0,%d]", maxPageLimit)
		}
		out.Limit = n
	}
	if raw := strings.TrimSpace(v.Get("offset")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return out, errors.New("offset must be a non-negative integer")
		}
		out.Offset = n
	}
	return out, nil
}

// parseBBOX accepts x1,y1,x2,y2 with an optional trailing EPSG:4326.
func parseBBOX(bboxParam string) (model.BBox, error) {
	parts := strings.Split(bboxParam, ",")
	if len(parts) != 4 && len(parts) != 5 {
		return model.BBox{}, errors.New("expected 4 or 5 comma-separated values: x1,y1,x2,y2[,EPSG:4326]")
	}
	xMin, err := parseFloat(parts[0])
	if err != nil {
		return model.BBox{}, fmt.Errorf("x1: %w", err)
	}
	yMin, err := parseFloat(parts[1])
	if err != nil {
		return model.BBox{}, fmt.Errorf("y1: %w", err)
	}
	xMax, err := parseFloat(parts[2])
	if err != nil {
		return model.BBox{}, fmt.Errorf("x2: %w", err)
	}
	yMax, err := parseFloat(parts[3])
	if err != nil {
		return model.BBox{}, fmt.Errorf("y2: %w", err)
	}

	srid := "EPSG:4326"
	if len(parts) == 5 {
		srid = strings.ToUpper(strings.TrimSpace(parts[4]))
	}
	if srid != "EPSG:4326" {
		return model.BBox{}, fmt.Errorf("only EPSG:4326 is supported (got %q)", srid)
	}

	if !(xMin >= -180 && xMin <= 180 && xMax >= -180 && xMax <= 180) {
		return model.BBox{}, errors.New("longitude must be in [-180,180]")
	}
	if !(yMin >= -90 && yMin <= 90 && yMax >= -90 && yMax <= 90) {
		return model.BBox{}, errors.New("latitude must be in [-90,90]")
	}
	if xMax <= xMin || yMax <= yMin {
		return model.BBox{}, errors.New("coordinates must satisfy x2>x1 and y2>y1")
	}
	return model.BBox{X1: xMin, Y1: yMin, X2: xMax, Y2: yMax, SRID: srid}, nil
}

func parseFloat(v string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, fmt.Errorf("parse float: %w", err)
	}
	return f, nil
}

func parseID(raw string) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid site id %q", raw)
	}
	return id, nil
}
