// Package router exposes the site collection over HTTP.
package router

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/mohammed-shakir/site-viewer/internal/composer"
	"github.com/mohammed-shakir/site-viewer/internal/core/model"
	"github.com/mohammed-shakir/site-viewer/internal/geometry"
	"github.com/mohammed-shakir/site-viewer/internal/hotness"
	"github.com/mohammed-shakir/site-viewer/internal/mapper"
	"github.com/mohammed-shakir/site-viewer/internal/sites"
)

// Sites is the collection as seen by the HTTP layer.
type Sites interface {
	Readiness() (bool, error)
	Evaluate(q string) sites.View
	Snapshot() sites.View
	GetByID(id int) (model.Site, bool)
	SetQuery(q string)
	SelectSite(site model.Site)
	ClearSiteSelection()
}

type API struct {
	logger *slog.Logger
	sites  Sites
	cells  mapper.Interface
	res    int
	hot    hotness.Interface
}

func NewAPI(logger *slog.Logger, s Sites, cells mapper.Interface, res int) *API {
	return &API{logger: logger, sites: s, cells: cells, res: res}
}

// WithPopularity counts site lookups in hot and serves /sites/popular.
func (a *API) WithPopularity(hot hotness.Interface) *API {
	a.hot = hot
	return a
}

// Routes mounts the site and selection endpoints on r.
func (a *API) Routes(r chi.Router) {
	r.Get("/sites", instrument("/sites", a.listSites))
	r.Get("/sites/popular", instrument("/sites/popular", a.popularSites))
	r.Get("/sites/{id}", instrument("/sites/{id}", a.getSite))
	r.Get("/sites/{id}/footprint", instrument("/sites/{id}/footprint", a.getFootprint))
	r.Get("/sites/{id}/cells", instrument("/sites/{id}/cells", a.getCells))

	r.Get("/selection", instrument("/selection", a.getSelection))
	r.Put("/selection", instrument("/selection", a.putSelection))
	r.Delete("/selection", instrument("/selection", a.clearSelection))
	r.Put("/selection/site/{id}", instrument("/selection/site/{id}", a.selectSite))
}

// SiteSummary is a site with its derived geometry. Geometry fields are
// omitted for sites without any.
type SiteSummary struct {
	ID          int         `json:"id"`
	Description string      `json:"description"`
	Box         *model.Box  `json:"box,omitempty"`
	Center      *[3]float64 `json:"center,omitempty"`
	Size        *[3]float64 `json:"size,omitempty"`
	Label       *[3]float64 `json:"label,omitempty"`
	Cell        string      `json:"cell,omitempty"`
}

type viewResponse struct {
	Query string `json:"query"`
	// Total counts filtered sites before paging.
	Total    int           `json:"total"`
	Filtered []SiteSummary `json:"filtered"`
	Searched []SiteSummary `json:"searched"`
}

type siteResponse struct {
	Site     model.Site  `json:"site"`
	Geometry SiteSummary `json:"geometry"`
}

func (a *API) summarize(s model.Site) SiteSummary {
	out := SiteSummary{ID: s.ID, Description: s.Description.String()}
	box, err := geometry.BoundingBox(s)
	if err != nil {
		return out
	}
	center, _ := geometry.CenterOfSite(s)
	size, _ := geometry.BoundingBoxSize(s)
	label, _ := geometry.LabelPosition(s)
	out.Box, out.Center, out.Size, out.Label = &box, &center, &size, &label
	if a.cells != nil {
		if cell, err := a.cells.CellForPoint(center[0], center[1], a.res); err == nil {
			out.Cell = cell
		}
	}
	return out
}

// keep applies the viewport and cell filters; a site without geometry never
// passes a filter.
func (a *API) keep(req model.SitesRequest, s model.Site) (bool, error) {
	box, err := geometry.BoundingBox(s)
	if err != nil {
		return false, nil
	}
	if req.Viewport != nil && !box.Intersects(*req.Viewport) {
		return false, nil
	}
	if req.Cell != "" {
		center, _ := geometry.CenterOfSite(s)
		return a.cells.Contains(req.Cell, center[0], center[1])
	}
	return true, nil
}

func (a *API) filter(req model.SitesRequest, list []model.Site) ([]model.Site, error) {
	if req.Viewport == nil && req.Cell == "" {
		return list, nil
	}
	out := make([]model.Site, 0, len(list))
	for _, s := range list {
		ok, err := a.keep(req, s)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func (a *API) render(v sites.View, total int) viewResponse {
	out := viewResponse{
		Query:    v.Query,
		Total:    total,
		Filtered: make([]SiteSummary, 0, len(v.Filtered)),
		Searched: make([]SiteSummary, 0, len(v.Searched)),
	}
	for _, s := range v.Filtered {
		out.Filtered = append(out.Filtered, a.summarize(s))
	}
	for _, s := range v.Searched {
		out.Searched = append(out.Searched, a.summarize(s))
	}
	return out
}

func (a *API) ready(w http.ResponseWriter) bool {
	ok, err := a.sites.Readiness()
	if ok {
		return true
	}
	msg := "sites not loaded yet"
	if err != nil {
		msg = "sites unavailable: " + err.Error()
	}
	http.Error(w, msg, http.StatusServiceUnavailable)
	return false
}

func (a *API) listSites(w http.ResponseWriter, r *http.Request) {
	req, err := ParseSitesRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	page, err := parsePage(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Cell != "" && a.cells == nil {
		http.Error(w, "cell filter not available", http.StatusBadRequest)
		return
	}
	neg := composer.NegotiateFormat(composer.NegotiationInput{
		AcceptHeader:  r.Header.Get("Accept"),
		OutputFormat:  r.URL.Query().Get("f"),
		DefaultFormat: composer.FormatJSON,
	})
	if !a.ready(w) {
		return
	}

	v := a.sites.Evaluate(req.Query)
	filtered, err := a.filter(req, v.Filtered)
	if err != nil {
		http.Error(w, "invalid cell: "+err.Error(), http.StatusBadRequest)
		return
	}
	searched, err := a.filter(req, v.Searched)
	if err != nil {
		http.Error(w, "invalid cell: "+err.Error(), http.StatusBadRequest)
		return
	}
	total := len(filtered)
	v.Filtered = composer.Apply(filtered, page)
	v.Searched = composer.Apply(searched, page)

	if neg.Format == composer.FormatGeoJSON {
		b, err := composer.FeatureCollection(v.Filtered)
		if err != nil {
			a.logger.ErrorContext(r.Context(), "encode sites", "err", err)
			http.Error(w, "encode sites: "+err.Error(), http.StatusUnprocessableEntity)
			return
		}
		w.Header().Set("Content-Type", neg.ContentType)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(b)
		return
	}
	writeJSON(w, http.StatusOK, a.render(v, total))
}

// site resolves {id}; it writes the error response and returns false on miss.
func (a *API) site(w http.ResponseWriter, r *http.Request) (model.Site, bool) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return model.Site{}, false
	}
	if !a.ready(w) {
		return model.Site{}, false
	}
	s, ok := a.sites.GetByID(id)
	if !ok {
		http.Error(w, "site "+strconv.Itoa(id)+" not found", http.StatusNotFound)
		return model.Site{}, false
	}
	return s, true
}

func (a *API) getSite(w http.ResponseWriter, r *http.Request) {
	s, ok := a.site(w, r)
	if !ok {
		return
	}
	if a.hot != nil {
		a.hot.Inc(s.ID)
	}
	writeJSON(w, http.StatusOK, siteResponse{Site: s, Geometry: a.summarize(s)})
}

type popularEntry struct {
	ID          int     `json:"id"`
	Description string  `json:"description"`
	Score       float64 `json:"score"`
}

func (a *API) popularSites(w http.ResponseWriter, r *http.Request) {
	if a.hot == nil {
		http.Error(w, "popularity tracking not enabled", http.StatusNotFound)
		return
	}
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			http.Error(w, "limit must be in [1,100]", http.StatusBadRequest)
			return
		}
		limit = n
	}
	if !a.ready(w) {
		return
	}
	out := make([]popularEntry, 0, limit)
	for _, e := range a.hot.Top(limit) {
		s, ok := a.sites.GetByID(e.ID)
		if !ok {
			continue
		}
		out = append(out, popularEntry{ID: e.ID, Description: s.Description.String(), Score: e.Score})
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) getFootprint(w http.ResponseWriter, r *http.Request) {
	s, ok := a.site(w, r)
	if !ok {
		return
	}
	mp, err := geometry.Footprint(s)
	if err == nil && len(mp.FlatCoords()) == 0 {
		err = geometry.ErrNoGeometry
	}
	if err != nil {
		a.geometryError(w, r, s, err)
		return
	}
	f := &geojson.Feature{
		ID:       strconv.Itoa(s.ID),
		Geometry: mp,
		Properties: map[string]any{
			"description":        s.Description.String(),
			"footprint_altitude": s.FootprintAltitude,
		},
	}
	b, err := json.Marshal(f)
	if err != nil {
		a.logger.ErrorContext(r.Context(), "encode footprint", "site", s.ID, "err", err)
		http.Error(w, "encode footprint", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

func (a *API) getCells(w http.ResponseWriter, r *http.Request) {
	if a.cells == nil {
		http.Error(w, "cell mapping not available", http.StatusNotFound)
		return
	}
	s, ok := a.site(w, r)
	if !ok {
		return
	}
	mp, err := geometry.Footprint(s)
	if err == nil && len(mp.FlatCoords()) == 0 {
		err = geometry.ErrNoGeometry
	}
	if err != nil {
		a.geometryError(w, r, s, err)
		return
	}
	cells, err := a.cells.CellsForFootprint(mp, a.res)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	if cells == nil {
		cells = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": s.ID, "resolution": a.res, "cells": cells})
}

func (a *API) geometryError(w http.ResponseWriter, r *http.Request, s model.Site, err error) {
	if errors.Is(err, geometry.ErrNoGeometry) {
		http.Error(w, "site "+strconv.Itoa(s.ID)+" has no footprint", http.StatusUnprocessableEntity)
		return
	}
	a.logger.WarnContext(r.Context(), "footprint conversion failed", "site", s.ID, "err", err)
	http.Error(w, err.Error(), http.StatusUnprocessableEntity)
}

func (a *API) getSelection(w http.ResponseWriter, r *http.Request) {
	if !a.ready(w) {
		return
	}
	v := a.sites.Snapshot()
	writeJSON(w, http.StatusOK, a.render(v, len(v.Filtered)))
}

func (a *API) putSelection(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Query *string `json:"query"`
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, 4096))
	if err := dec.Decode(&body); err != nil || body.Query == nil {
		http.Error(w, `expected body {"query": "..."}`, http.StatusBadRequest)
		return
	}
	if len(*body.Query) > maxQueryLen {
		http.Error(w, "query too long", http.StatusBadRequest)
		return
	}
	if !a.ready(w) {
		return
	}
	a.sites.SetQuery(*body.Query)
	a.getSelection(w, r)
}

func (a *API) selectSite(w http.ResponseWriter, r *http.Request) {
	s, ok := a.site(w, r)
	if !ok {
		return
	}
	a.sites.SelectSite(s)
	a.getSelection(w, r)
}

func (a *API) clearSelection(w http.ResponseWriter, r *http.Request) {
	if !a.ready(w) {
		return
	}
	a.sites.ClearSiteSelection()
	a.getSelection(w, r)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
