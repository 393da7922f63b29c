package health

import (
	"encoding/json"
	"net/http"
)

// ReadinessReporter reports whether the dataset is served and, after a failed
// load, the reason.
type ReadinessReporter interface {
	Readiness() (ready bool, err error)
}

func Readiness(rr ReadinessReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		type resp struct {
			Status string `json:"status"`
			Error  string `json:"error,omitempty"`
		}
		ready, err := rr.Readiness()
		out := resp{Status: "ready"}
		switch {
		case err != nil:
			out = resp{Status: "failed", Error: err.Error()}
		case !ready:
			out.Status = "loading"
		}
		w.Header().Set("Content-Type", "application/json")
		if !ready {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(out)
	}
}
