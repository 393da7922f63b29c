package invalidation_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/IBM/sarama"
	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/mohammed-shakir/site-viewer/internal/cache/redisstore"
	"github.com/mohammed-shakir/site-viewer/internal/cache/snapshot"
	"github.com/mohammed-shakir/site-viewer/internal/invalidation"
	"github.com/mohammed-shakir/site-viewer/internal/invalidation/kafkaconsumer"
)

type origin struct {
	body  string
	calls int
}

func (o *origin) Name() string { return "https://data.example/sites.json" }

func (o *origin) FetchRaw(context.Context) ([]byte, error) {
	o.calls++
	return []byte(o.body), nil
}

func TestInvalidation_DropsSnapshotSoNextLoadRefetches(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	rc, err := redisstore.New(ctx, mr.Addr())
	if err != nil {
		t.Fatalf("redisstore.New: %v", err)
	}
	defer func() { _ = rc.Close() }()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	o := &origin{body: `[{"id":1,"description_site":"Roman villa"}]`}
	snap := snapshot.New(o, rc, time.Hour, time.Second, logger)

	if _, err := snap.Fetch(ctx); err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	o.body = `[{"id":1,"description_site":"Roman villa"},{"id":2,"description_site":"Medieval tower"}]`
	sites, err := snap.Fetch(ctx)
	if err != nil || len(sites) != 1 || o.calls != 1 {
		t.Fatalf("second fetch should hit the snapshot: sites=%d calls=%d err=%v", len(sites), o.calls, err)
	}

	c := kafkaconsumer.New(kafkaconsumer.Config{Topic: "sites-invalidation"}, logger, nil, rc, snap)
	b, _ := json.Marshal(invalidation.Event{
		Version: 1, Op: "replace", Source: "https://DATA.example/sites.json", TS: time.Now().UTC(),
	})
	if err := c.ProcessOne(ctx, &sarama.ConsumerMessage{Topic: "sites-invalidation", Value: b}); err != nil {
		t.Fatalf("ProcessOne: %v", err)
	}
	if mr.Exists(snap.Key()) {
		t.Fatalf("snapshot key still present after invalidation")
	}

	sites, err = snap.Fetch(ctx)
	if err != nil || len(sites) != 2 || o.calls != 2 {
		t.Fatalf("fetch after invalidation: sites=%d calls=%d err=%v", len(sites), o.calls, err)
	}
}
