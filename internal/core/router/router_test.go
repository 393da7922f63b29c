package router

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/site-viewer/internal/core/model"
	"github.com/mohammed-shakir/site-viewer/internal/hotness/expdecay"
	h3mapper "github.com/mohammed-shakir/site-viewer/internal/mapper/h3"
	"github.com/mohammed-shakir/site-viewer/internal/sites"
)

func TestParseBBOX_Valid(t *testing.T) {
	bb, err := parseBBOX("11.0,55.0,12.0,56.0,EPSG:4326")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	want := model.BBox{X1: 11, Y1: 55, X2: 12, Y2: 56, SRID: "EPSG:4326"}
	if bb != want {
		t.Fatalf("got %+v want %+v", bb, want)
	}

	bb, err = parseBBOX("11,55,12,56")
	if err != nil || bb != want {
		t.Fatalf("without SRID: got %+v, %v", bb, err)
	}
}

func TestParseBBOX_Invalid(t *testing.T) {
	for _, raw := range []string{
		"11,55,12,56,EPSG:3857",
		"11,55,11,56",
		"11,55,12",
		"x,55,12,56",
		"11,95,12,96",
	} {
		if _, err := parseBBOX(raw); err == nil {
			t.Fatalf("%q: expected error", raw)
		}
	}
}

type fakeSource struct {
	sites []model.Site
	err   error
}

func (f fakeSource) Fetch(context.Context) ([]model.Site, error) { return f.sites, f.err }

func box(x1, y1, z1, x2, y2, z2 float64) *model.Box {
	return &model.Box{x1, y1, z1, x2, y2, z2}
}

func fixture() []model.Site {
	return []model.Site{
		{
			ID:          1,
			Description: "Roman villa",
			Objects:     []model.Object{{Period: "100 AD"}},
			PointClouds: []model.PointCloud{{BBox: box(12.48, 41.88, 10, 12.50, 41.90, 30)}},
		},
		{
			ID:                2,
			Description:       "Medieval tower",
			Objects:           []model.Object{{Period: "1200 AD"}},
			Footprint:         model.Footprint{{{{11.0, 55.0}, {11.2, 55.0}, {11.2, 55.2}, {11.0, 55.2}, {11.0, 55.0}}}},
			FootprintAltitude: []float64{0, 20},
		},
		{ID: 3, Description: "Unplaced find"},
	}
}

func newServer(t *testing.T, src fakeSource, load bool) (*httptest.Server, *sites.Collection) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	coll := sites.New(src, nil, logger, sites.Options{QueryCacheSize: 16})
	if load {
		_ = coll.Load(context.Background())
	}
	r := chi.NewRouter()
	NewAPI(logger, coll, h3mapper.New(), 7).WithPopularity(expdecay.New(time.Hour)).Routes(r)
	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return ts, coll
}

func do(t *testing.T, method, url, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp, b
}

func decodeView(t *testing.T, b []byte) viewResponse {
	t.Helper()
	var v viewResponse
	if err := json.Unmarshal(b, &v); err != nil {
		t.Fatalf("decode: %v body=%s", err, b)
	}
	return v
}

func summaryIDs(xs []SiteSummary) []int {
	out := []int{}
	for _, s := range xs {
		out = append(out, s.ID)
	}
	return out
}

func TestListSites_Evaluate(t *testing.T) {
	ts, coll := newServer(t, fakeSource{sites: fixture()}, true)

	resp, b := do(t, http.MethodGet, ts.URL+"/sites", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d body=%s", resp.StatusCode, b)
	}
	v := decodeView(t, b)
	if len(v.Filtered) != 3 || len(v.Searched) != 0 {
		t.Fatalf("empty query: filtered=%v searched=%v", summaryIDs(v.Filtered), summaryIDs(v.Searched))
	}

	_, b = do(t, http.MethodGet, ts.URL+"/sites?q=time:1200", "")
	v = decodeView(t, b)
	if got := summaryIDs(v.Searched); len(got) != 1 || got[0] != 2 {
		t.Fatalf("time:1200 searched=%v want [2]", got)
	}
	// stateless
	if coll.Snapshot().Query != "" {
		t.Fatalf("GET /sites must not change the selection")
	}
}

func TestListSites_GeometrySummary(t *testing.T) {
	ts, _ := newServer(t, fakeSource{sites: fixture()}, true)
	_, b := do(t, http.MethodGet, ts.URL+"/sites?q=villa", "")
	v := decodeView(t, b)
	if len(v.Searched) != 1 {
		t.Fatalf("searched=%v", summaryIDs(v.Searched))
	}
	s := v.Searched[0]
	if s.Center == nil || s.Size == nil || s.Label == nil || s.Cell == "" {
		t.Fatalf("incomplete summary %+v", s)
	}
	if s.Center[2] != 20 || s.Label[2] != 30 || s.Size[2] != 10 {
		t.Fatalf("center=%v label=%v size=%v", *s.Center, *s.Label, *s.Size)
	}

	_, b = do(t, http.MethodGet, ts.URL+"/sites?q=Unplaced", "")
	v = decodeView(t, b)
	if len(v.Searched) != 1 || v.Searched[0].Box != nil || v.Searched[0].Cell != "" {
		t.Fatalf("site without geometry must omit geometry: %+v", v.Searched)
	}
}

func TestListSites_ViewportAndCell(t *testing.T) {
	ts, _ := newServer(t, fakeSource{sites: fixture()}, true)

	_, b := do(t, http.MethodGet, ts.URL+"/sites?bbox=10,54,12,56", "")
	v := decodeView(t, b)
	if got := summaryIDs(v.Filtered); len(got) != 1 || got[0] != 2 {
		t.Fatalf("viewport filtered=%v want [2]", got)
	}

	cell, err := h3mapper.New().CellForPoint(11.1, 55.1, 7)
	if err != nil {
		t.Fatalf("CellForPoint: %v", err)
	}
	_, b = do(t, http.MethodGet, ts.URL+"/sites?cell="+cell, "")
	v = decodeView(t, b)
	if got := summaryIDs(v.Filtered); len(got) != 1 || got[0] != 2 {
		t.Fatalf("cell filtered=%v want [2]", got)
	}

	resp, _ := do(t, http.MethodGet, ts.URL+"/sites?bbox=1,2,3", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad bbox status=%d want 400", resp.StatusCode)
	}
	resp, _ = do(t, http.MethodGet, ts.URL+"/sites?cell=nope", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad cell status=%d want 400", resp.StatusCode)
	}
}

func TestListSites_SortAndPage(t *testing.T) {
	ts, _ := newServer(t, fakeSource{sites: fixture()}, true)

	_, b := do(t, http.MethodGet, ts.URL+"/sites?sort=-id&limit=2", "")
	v := decodeView(t, b)
	if got := summaryIDs(v.Filtered); len(got) != 2 || got[0] != 3 || got[1] != 2 || v.Total != 3 {
		t.Fatalf("sorted page=%v total=%d", got, v.Total)
	}
	_, b = do(t, http.MethodGet, ts.URL+"/sites?sort=description&offset=2", "")
	v = decodeView(t, b)
	if got := summaryIDs(v.Filtered); len(got) != 1 || got[0] != 3 {
		t.Fatalf("offset page=%v", got)
	}

	for _, q := range []string{"sort=period", "limit=-1", "offset=x"} {
		if resp, _ := do(t, http.MethodGet, ts.URL+"/sites?"+q, ""); resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s status=%d want 400", q, resp.StatusCode)
		}
	}
}

func TestListSites_GeoJSON(t *testing.T) {
	ts, _ := newServer(t, fakeSource{sites: fixture()}, true)

	check := func(resp *http.Response, b []byte) {
		t.Helper()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status=%d body=%s", resp.StatusCode, b)
		}
		if ct := resp.Header.Get("Content-Type"); ct != "application/geo+json" {
			t.Fatalf("content-type=%q", ct)
		}
		var fc struct {
			Type     string `json:"type"`
			Features []struct {
				ID string `json:"id"`
			} `json:"features"`
		}
		if err := json.Unmarshal(b, &fc); err != nil {
			t.Fatalf("decode: %v", err)
		}
		// only site 2 has a footprint
		if fc.Type != "FeatureCollection" || len(fc.Features) != 1 || fc.Features[0].ID != "2" {
			t.Fatalf("unexpected collection %s", b)
		}
	}

	resp, b := do(t, http.MethodGet, ts.URL+"/sites?f=geojson", "")
	check(resp, b)

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/sites", nil)
	req.Header.Set("Accept", "application/geo+json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	b, _ = io.ReadAll(resp.Body)
	check(resp, b)
}

func TestNotReadyAndFailedLoad(t *testing.T) {
	ts, _ := newServer(t, fakeSource{sites: fixture()}, false)
	resp, _ := do(t, http.MethodGet, ts.URL+"/sites", "")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("not loaded status=%d want 503", resp.StatusCode)
	}

	ts, _ = newServer(t, fakeSource{err: errors.New("upstream 502")}, true)
	resp, b := do(t, http.MethodGet, ts.URL+"/selection", "")
	if resp.StatusCode != http.StatusServiceUnavailable || !strings.Contains(string(b), "upstream 502") {
		t.Fatalf("failed load status=%d body=%s", resp.StatusCode, b)
	}
}

func TestGetSite(t *testing.T) {
	ts, _ := newServer(t, fakeSource{sites: fixture()}, true)

	resp, b := do(t, http.MethodGet, ts.URL+"/sites/2", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d body=%s", resp.StatusCode, b)
	}
	var out struct {
		Site struct {
			ID          int    `json:"id"`
			Description string `json:"description_site"`
		} `json:"site"`
		Geometry SiteSummary `json:"geometry"`
	}
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Site.ID != 2 || out.Site.Description != "Medieval tower" || out.Geometry.Box == nil {
		t.Fatalf("unexpected body %s", b)
	}

	if resp, _ := do(t, http.MethodGet, ts.URL+"/sites/99", ""); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("miss status=%d want 404", resp.StatusCode)
	}
	if resp, _ := do(t, http.MethodGet, ts.URL+"/sites/abc", ""); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad id status=%d want 400", resp.StatusCode)
	}
}

func TestGetFootprint(t *testing.T) {
	ts, _ := newServer(t, fakeSource{sites: fixture()}, true)

	resp, b := do(t, http.MethodGet, ts.URL+"/sites/2/footprint", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d body=%s", resp.StatusCode, b)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/geo+json" {
		t.Fatalf("content-type=%q", ct)
	}
	var f struct {
		Type     string `json:"type"`
		ID       string `json:"id"`
		Geometry struct {
			Type string `json:"type"`
		} `json:"geometry"`
	}
	if err := json.Unmarshal(b, &f); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if f.Type != "Feature" || f.ID != "2" || f.Geometry.Type != "MultiPolygon" {
		t.Fatalf("unexpected feature %s", b)
	}

	// point-cloud-only and geometry-less sites have no footprint
	for _, id := range []string{"1", "3"} {
		if resp, _ := do(t, http.MethodGet, ts.URL+"/sites/"+id+"/footprint", ""); resp.StatusCode != http.StatusUnprocessableEntity {
			t.Fatalf("site %s status=%d want 422", id, resp.StatusCode)
		}
	}
}

func TestGetCells(t *testing.T) {
	ts, _ := newServer(t, fakeSource{sites: fixture()}, true)
	resp, b := do(t, http.MethodGet, ts.URL+"/sites/2/cells", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d body=%s", resp.StatusCode, b)
	}
	var out struct {
		Resolution int      `json:"resolution"`
		Cells      []string `json:"cells"`
	}
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Resolution != 7 || len(out.Cells) == 0 {
		t.Fatalf("unexpected coverage %s", b)
	}
}

func TestSelectionLifecycle(t *testing.T) {
	ts, coll := newServer(t, fakeSource{sites: fixture()}, true)

	resp, b := do(t, http.MethodPut, ts.URL+"/selection", `{"query":"villa"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("put status=%d body=%s", resp.StatusCode, b)
	}
	v := decodeView(t, b)
	if v.Query != "villa" || len(v.Searched) != 1 || v.Searched[0].ID != 1 {
		t.Fatalf("after put: %+v", v)
	}
	if coll.Snapshot().Query != "villa" {
		t.Fatalf("collection query=%q", coll.Snapshot().Query)
	}

	_, b = do(t, http.MethodPut, ts.URL+"/selection/site/3", "")
	v = decodeView(t, b)
	if v.Query != "site:3" || len(v.Searched) != 1 || v.Searched[0].ID != 3 {
		t.Fatalf("after select: %+v", v)
	}

	_, b = do(t, http.MethodDelete, ts.URL+"/selection", "")
	v = decodeView(t, b)
	if v.Query != "" || len(v.Searched) != 0 || len(v.Filtered) != 3 {
		t.Fatalf("after clear: %+v", v)
	}

	if resp, _ := do(t, http.MethodPut, ts.URL+"/selection", `{"q":"x"}`); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("malformed body status=%d want 400", resp.StatusCode)
	}
	if resp, _ := do(t, http.MethodPut, ts.URL+"/selection/site/42", ""); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown site status=%d want 404", resp.StatusCode)
	}
}

func TestPopularSites(t *testing.T) {
	ts, _ := newServer(t, fakeSource{sites: fixture()}, true)

	for _, id := range []string{"2", "2", "1", "99"} {
		do(t, http.MethodGet, ts.URL+"/sites/"+id, "")
	}
	resp, b := do(t, http.MethodGet, ts.URL+"/sites/popular?limit=5", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d body=%s", resp.StatusCode, b)
	}
	var out []popularEntry
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 2 || out[0].ID != 2 || out[1].ID != 1 || out[0].Description != "Medieval tower" {
		t.Fatalf("unexpected ranking %s", b)
	}

	if resp, _ := do(t, http.MethodGet, ts.URL+"/sites/popular?limit=0", ""); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("limit=0 status=%d want 400", resp.StatusCode)
	}
}
