package observability

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func scrape(t *testing.T, reg *prometheus.Registry) string {
	t.Helper()
	srv := httptest.NewServer(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("metrics scrape: %v", err)
	}
	t.Cleanup(func() {
		if cerr := resp.Body.Close(); cerr != nil {
			t.Fatalf("close body: %v", cerr)
		}
	})
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read all: %v", err)
	}
	return string(b)
}

func TestQueryAndLoadMetrics_Exported(t *testing.T) {
	reg := prometheus.NewRegistry()
	Init(reg, true)
	// second registration is tolerated
	Init(reg, true)

	ObserveSitesLoad(42, nil)
	ObserveSitesLoad(0, errors.New("boom"))
	ObserveQuery("filter", 1, 0.001)
	IncCacheHit("query")

	out := scrape(t, reg)
	for _, want := range []string{
		`sites_load_total{outcome="ok"}`,
		`sites_load_total{outcome="error"}`,
		`sites_loaded 42`,
		`site_query_total{kind="filter"}`,
		`cache_results_total{cache="query",outcome="hit"}`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in metrics; got:\n%s", want, out)
		}
	}
}

func TestInit_DisabledRegistersNothing(t *testing.T) {
	reg := prometheus.NewRegistry()
	Init(reg, false)
	ObserveHTTP("GET", "/sites", 200, 0.01)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(mfs) != 0 {
		t.Fatalf("expected empty registry, got %d families", len(mfs))
	}
}
