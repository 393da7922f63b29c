// Package invalidation describes dataset change events that make a cached
// sites snapshot stale.
package invalidation

import (
	"fmt"
	"net/url"
	"time"

	"github.com/mohammed-shakir/site-viewer/internal/cache/keys"
)

type Event struct {
	Version int    `json:"version"`
	Op      string `json:"op"`
	// Source is the URL of the changed dataset; empty means every dataset.
	Source  string    `json:"source,omitempty"`
	SiteIDs []int     `json:"site_ids,omitempty"`
	TS      time.Time `json:"ts"`
}

func (e Event) Validate() error {
	if e.Version != 1 {
		return fmt.Errorf("version must be 1")
	}
	switch e.Op {
	case "update", "replace", "delete":
	default:
		return fmt.Errorf("op must be update|replace|delete")
	}
	if e.TS.IsZero() {
		return fmt.Errorf("ts is required")
	}
	if e.Source != "" {
		u, err := url.Parse(e.Source)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("source must be an http(s) URL")
		}
	}
	return nil
}

// Matches reports whether the event concerns the dataset fetched from source.
func (e Event) Matches(source string) bool {
	if e.Source == "" {
		return true
	}
	return keys.Snapshot(e.Source) == keys.Snapshot(source)
}
