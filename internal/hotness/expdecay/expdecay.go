// Package expdecay implements an exponential decay model for hotness scores.
package expdecay

import (
	"encoding/binary"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/mohammed-shakir/site-viewer/internal/core/observability"
	"github.com/mohammed-shakir/site-viewer/internal/hotness"
)

const numShards = 64

type Tracker struct {
	HalfLife time.Duration

	now func() time.Time

	shards [numShards]shard
}

type shard struct {
	mu sync.RWMutex
	m  map[int]*counter
}

type counter struct {
	score float64
	last  time.Time
}

var _ hotness.Interface = (*Tracker)(nil)

func New(halfLife time.Duration) *Tracker {
	if halfLife <= 0 {
		halfLife = time.Minute
	}
	t := &Tracker{HalfLife: halfLife, now: time.Now}
	for i := range t.shards {
		t.shards[i].m = make(map[int]*counter)
	}
	return t
}

func (t *Tracker) Inc(id int) {
	s := t.pick(id)
	n := t.now()

	s.mu.Lock()
	c := s.m[id]
	if c == nil {
		s.m[id] = &counter{score: 1, last: n}
	} else {
		dt := n.Sub(c.last).Seconds()
		// apply exponential decay to the existing score before incrementing
		c.score = decay(c.score, dt, t.HalfLife.Seconds()) + 1.0
		c.last = n
	}
	s.mu.Unlock()

	observability.SetHotSites(t.Size())
}

func (t *Tracker) Score(id int) float64 {
	s := t.pick(id)
	n := t.now()

	s.mu.RLock()
	c := s.m[id]
	if c == nil {
		s.mu.RUnlock()
		return 0
	}
	score, last := c.score, c.last
	s.mu.RUnlock()

	return decay(score, n.Sub(last).Seconds(), t.HalfLife.Seconds())
}

func (t *Tracker) Reset(ids ...int) {
	for _, id := range ids {
		s := t.pick(id)
		s.mu.Lock()
		delete(s.m, id)
		s.mu.Unlock()
	}
	observability.SetHotSites(t.Size())
}

// Top ranks every tracked site by its decayed score; ties go to the lower id.
func (t *Tracker) Top(n int) []hotness.Entry {
	if n <= 0 {
		return []hotness.Entry{}
	}
	now := t.now()
	hl := t.HalfLife.Seconds()

	var all []hotness.Entry
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.RLock()
		for id, c := range s.m {
			all = append(all, hotness.Entry{ID: id, Score: decay(c.score, now.Sub(c.last).Seconds(), hl)})
		}
		s.mu.RUnlock()
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Score != all[j].Score {
			return all[i].Score > all[j].Score
		}
		return all[i].ID < all[j].ID
	})
	if len(all) > n {
		all = all[:n]
	}
	if all == nil {
		all = []hotness.Entry{}
	}
	return all
}

func decay(score, dt, halfLife float64) float64 {
	if score == 0 || dt <= 0 || halfLife <= 0 {
		return score
	}
	lambda := math.Ln2 / halfLife
	// apply exponential decay (e^(-λt))
	return score * math.Exp(-lambda*dt)
}

func (t *Tracker) pick(id int) *shard {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(id))
	h := xxhash.Sum64(b[:])
	return &t.shards[h&(uint64(len(t.shards))-1)]
}

func (t *Tracker) Size() int {
	total := 0
	for i := range t.shards {
		t.shards[i].mu.RLock()
		total += len(t.shards[i].m)
		t.shards[i].mu.RUnlock()
	}
	return total
}
