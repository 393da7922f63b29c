package health

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestLiveness_Handler(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()

	Liveness()(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d want 200", rr.Code)
	}
	ct := rr.Header().Get("Content-Type")
	if !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("content-type=%q want text/plain", ct)
	}
	if got := strings.TrimSpace(rr.Body.String()); got != "ok" {
		t.Fatalf("body=%q want ok", got)
	}
}

type fakeReporter struct {
	ready bool
	err   error
}

func (f fakeReporter) Readiness() (bool, error) { return f.ready, f.err }

func TestReadiness_States(t *testing.T) {
	cases := []struct {
		name   string
		rep    fakeReporter
		code   int
		status string
	}{
		{"loading", fakeReporter{}, http.StatusServiceUnavailable, `"status":"loading"`},
		{"ready", fakeReporter{ready: true}, http.StatusOK, `"status":"ready"`},
		{"failed", fakeReporter{err: errors.New("upstream 502")}, http.StatusServiceUnavailable, `"error":"upstream 502"`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			Readiness(tc.rep)(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			if rr.Code != tc.code {
				t.Fatalf("status=%d want %d", rr.Code, tc.code)
			}
			if !strings.Contains(rr.Body.String(), tc.status) {
				t.Fatalf("body=%s want %s", rr.Body.String(), tc.status)
			}
		})
	}
}
