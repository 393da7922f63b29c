// Package snapshot keeps a copy of the sites document in Redis in front of
// the origin fetch.
package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/mohammed-shakir/site-viewer/internal/cache/keys"
	"github.com/mohammed-shakir/site-viewer/internal/cache/redisstore"
	"github.com/mohammed-shakir/site-viewer/internal/core/model"
	"github.com/mohammed-shakir/site-viewer/internal/core/observability"
	"github.com/mohammed-shakir/site-viewer/internal/sitesource"
)

// Store is the subset of redisstore.Client used here.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
}

const cacheName = "snapshot"

// Source is a read-through cache over an origin RawSource. Redis failures
// are logged and bypassed; only origin failures are returned.
type Source struct {
	origin    sitesource.RawSource
	store     Store
	key       string
	ttl       time.Duration
	opTimeout time.Duration
	logger    *slog.Logger
}

func New(origin sitesource.RawSource, store Store, ttl, opTimeout time.Duration, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	if opTimeout <= 0 {
		opTimeout = 250 * time.Millisecond
	}
	return &Source{
		origin:    origin,
		store:     store,
		key:       keys.Snapshot(origin.Name()),
		ttl:       ttl,
		opTimeout: opTimeout,
		logger:    logger,
	}
}

func (s *Source) Name() string { return s.origin.Name() }

func (s *Source) Key() string { return s.key }

// FetchRaw returns the cached document or the origin's. An origin
// document is stored only when it is a well-formed JSON array.
func (s *Source) FetchRaw(ctx context.Context) ([]byte, error) {
	if b, ok := s.lookup(ctx); ok && wellFormed(b) {
		return b, nil
	}

	b, err := s.origin.FetchRaw(ctx)
	if err != nil {
		return nil, err
	}
	if wellFormed(b) {
		s.save(ctx, b)
	}
	return b, nil
}

// Fetch decodes the document once per call, whether it came from Redis or
// from the origin. A cached copy that no longer decodes is refetched.
func (s *Source) Fetch(ctx context.Context) ([]model.Site, error) {
	if b, ok := s.lookup(ctx); ok {
		sites, err := sitesource.Decode(b)
		if err == nil {
			return sites, nil
		}
		observability.IncCacheError(cacheName)
		s.logger.WarnContext(ctx, "snapshot undecodable; refetching", "key", s.key, "err", err)
	}

	b, err := s.origin.FetchRaw(ctx)
	if err != nil {
		return nil, err
	}
	sites, err := sitesource.Decode(b)
	if err != nil {
		return nil, err
	}
	s.save(ctx, b)
	return sites, nil
}

func wellFormed(b []byte) bool {
	b = bytes.TrimSpace(b)
	return len(b) > 0 && b[0] == '[' && json.Valid(b)
}

func (s *Source) lookup(ctx context.Context) ([]byte, bool) {
	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	b, err := s.store.Get(opCtx, s.key)
	switch {
	case err == nil:
		observability.IncCacheHit(cacheName)
		s.logger.DebugContext(ctx, "snapshot hit", "key", s.key, "bytes", len(b))
		return b, true
	case errors.Is(err, redisstore.ErrMiss):
		observability.IncCacheMiss(cacheName)
	default:
		observability.IncCacheError(cacheName)
		s.logger.WarnContext(ctx, "snapshot lookup failed", "key", s.key, "err", err)
	}
	return nil, false
}

func (s *Source) save(ctx context.Context, b []byte) {
	opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opTimeout)
	defer cancel()
	if err := s.store.Set(opCtx, s.key, b, s.ttl); err != nil {
		observability.IncCacheError(cacheName)
		s.logger.WarnContext(ctx, "snapshot store failed", "key", s.key, "err", err)
	}
}
