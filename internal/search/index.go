package search

import (
	"strings"

	"github.com/mohammed-shakir/site-viewer/internal/core/model"
)

type entry struct {
	id    int
	all   string
	lower Texts
}

// Index keeps the aggregate text of an immutable list of sites so queries
// do not rebuild it per evaluation.
type Index struct {
	entries []entry
}

func NewIndex(sites []model.Site) *Index {
	idx := &Index{entries: make([]entry, len(sites))}
	for i, s := range sites {
		t := Aggregate(s)
		idx.entries[i] = entry{
			id:  s.ID,
			all: t.All,
			lower: Texts{
				Time:      strings.ToLower(t.Time),
				Material:  strings.ToLower(t.Material),
				Condition: strings.ToLower(t.Condition),
			},
		}
	}
	return idx
}

// Match returns the positions of matching sites, in index order. An empty
// query matches nothing; the caller decides what "no filter" shows.
func (idx *Index) Match(q *Query) []int {
	if q == nil || q.Empty() {
		return nil
	}
	out := make([]int, 0)
	for i, e := range idx.entries {
		if q.matchLower(e.id, e.all, e.lower) {
			out = append(out, i)
		}
	}
	return out
}

// Pick returns the sites of all at the positions returned by Match on an
// index built from all.
func Pick(all []model.Site, pos []int) []model.Site {
	out := make([]model.Site, 0, len(pos))
	for _, i := range pos {
		out = append(out, all[i])
	}
	return out
}
