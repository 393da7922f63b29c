// Package sitesource fetches and decodes the remote site dataset.
package sitesource

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/mohammed-shakir/site-viewer/internal/core/model"
	"github.com/mohammed-shakir/site-viewer/internal/core/observability"
)

// maxDocumentBytes bounds the size of the sites document.
const maxDocumentBytes = 256 << 20

// RawSource yields the undecoded sites document.
type RawSource interface {
	FetchRaw(ctx context.Context) ([]byte, error)
	// Name identifies the document, e.g. its URL.
	Name() string
}

// HTTP fetches the sites document with a single GET.
type HTTP struct {
	logger   *slog.Logger
	client   *http.Client
	url      *url.URL
	startNow func() time.Time // for tests
}

func NewHTTP(logger *slog.Logger, client *http.Client, rawURL string) (*HTTP, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse sites url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("sites url %q: scheme must be http or https", rawURL)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTP{
		logger:   logger,
		client:   client,
		url:      u,
		startNow: time.Now,
	}, nil
}

func (s *HTTP) Name() string { return s.url.String() }

func (s *HTTP) FetchRaw(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := s.startNow()
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	dur := time.Since(start)
	observability.ObserveUpstreamLatency("sites", dur.Seconds())
	s.logger.DebugContext(ctx, "sites fetch done",
		"status", resp.StatusCode,
		"duration", dur,
		"url", s.url.String())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return nil, &StatusError{Code: resp.StatusCode, Body: string(b)}
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(b) > maxDocumentBytes {
		return nil, fmt.Errorf("sites document exceeds %d bytes", maxDocumentBytes)
	}
	return b, nil
}

// Fetch downloads and decodes the dataset.
func (s *HTTP) Fetch(ctx context.Context) ([]model.Site, error) {
	return Fetch(ctx, s)
}

// Fetch downloads the document from any RawSource and decodes it.
func Fetch(ctx context.Context, src RawSource) ([]model.Site, error) {
	b, err := src.FetchRaw(ctx)
	if err != nil {
		return nil, err
	}
	return Decode(b)
}

// StatusError is returned for non-2xx upstream responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.Code, e.Body)
}

var ErrNotArray = errors.New("sites document must be a JSON array")

// Decode parses the sites document, a JSON array of sites.
func Decode(b []byte) ([]model.Site, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] != '[' {
		return nil, ErrNotArray
	}
	var sites []model.Site
	if err := json.Unmarshal(b, &sites); err != nil {
		return nil, fmt.Errorf("decode sites: %w", err)
	}
	if sites == nil {
		sites = []model.Site{}
	}
	return sites, nil
}
