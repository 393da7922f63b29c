package expdecay

import (
	"math"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Set(t time.Time) {
	f.mu.Lock()
	f.now = t
	f.mu.Unlock()
}

func (f *fakeClock) Add(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newTrackerForTest(hl time.Duration, fc *fakeClock) *Tracker {
	if fc == nil {
		fc = &fakeClock{}
		fc.Set(time.Unix(0, 0).UTC())
	}
	tr := New(hl)
	tr.now = fc.Now
	return tr
}

func almostEq(t *testing.T, got, want, eps float64) {
	t.Helper()
	if math.Abs(got-want) > eps {
		t.Fatalf("got=%g want=%g (eps=%g)", got, want, eps)
	}
}

func TestIncAndScore_AccumulatesImmediately(t *testing.T) {
	fc := &fakeClock{}
	fc.Set(time.Unix(0, 0).UTC())
	tr := newTrackerForTest(time.Minute, fc)

	site := 17

	tr.Inc(site)
	almostEq(t, tr.Score(site), 1.0, 1e-9)

	tr.Inc(site)
	almostEq(t, tr.Score(site), 2.0, 1e-9)

	tr.Inc(site)
	almostEq(t, tr.Score(site), 3.0, 1e-9)
}

func TestHalfLife_DecaysByHalf(t *testing.T) {
	hl := 2 * time.Second
	fc := &fakeClock{}
	fc.Set(time.Unix(0, 0).UTC())
	tr := newTrackerForTest(hl, fc)

	site := 17

	tr.Inc(site)
	almostEq(t, tr.Score(site), 1.0, 1e-9)

	fc.Add(hl)
	got := tr.Score(site)
	// after one half-life, score should be halved
	almostEq(t, got, 0.5, 1e-6)

	fc.Add(hl)
	got = tr.Score(site)
	almostEq(t, got, 0.25, 1e-6)
}

func TestConcurrency_ManyIncSameSite(t *testing.T) {
	fc := &fakeClock{}
	fc.Set(time.Unix(0, 0).UTC())
	tr := newTrackerForTest(1*time.Minute, fc)

	site := 1
	const N = 256

	var wg sync.WaitGroup
	wg.Add(N)
	for range N {
		go func() {
			tr.Inc(site)
			wg.Done()
		}()
	}
	wg.Wait()

	// ensure thread safety, total score should be N
	got := tr.Score(site)
	almostEq(t, got, N, 1e-9)
}

func TestReset_OnlySelectedSites(t *testing.T) {
	fc := &fakeClock{}
	fc.Set(time.Unix(0, 0).UTC())
	tr := newTrackerForTest(30*time.Second, fc)

	a, b := 1, 2

	tr.Inc(a)
	tr.Inc(b)
	if tr.Score(a) <= 0 || tr.Score(b) <= 0 {
		t.Fatalf("precondition failed: scores must be > 0")
	}

	tr.Reset(a)

	if got := tr.Score(a); got != 0 {
		t.Fatalf("reset failed for %d: got %g want 0", a, got)
	}
	if got := tr.Score(b); got <= 0 {
		t.Fatalf("unexpected reset of %d: got %g want >0", b, got)
	}
}

func TestDecayHelper_Edges(t *testing.T) {
	if got := decay(0, 10, 60); got != 0 {
		t.Fatalf("expected 0, got %g", got)
	}
	if got := decay(5, 0, 60); got != 5 {
		t.Fatalf("expected 5, got %g", got)
	}
	if got := decay(5, 10, 0); got != 5 {
		t.Fatalf("expected 5, got %g", got)
	}
}

func TestTop_RanksByDecayedScore(t *testing.T) {
	fc := &fakeClock{}
	fc.Set(time.Unix(0, 0).UTC())
	tr := newTrackerForTest(time.Minute, fc)

	// site 1 was popular long ago, site 2 recently
	for range 3 {
		tr.Inc(1)
	}
	fc.Add(5 * time.Minute)
	tr.Inc(2)
	tr.Inc(2)
	tr.Inc(3)
	tr.Inc(4)

	top := tr.Top(3)
	if len(top) != 3 {
		t.Fatalf("len=%d want 3", len(top))
	}
	if top[0].ID != 2 || top[1].ID != 3 || top[2].ID != 4 {
		t.Fatalf("order=%+v want 2,3,4", top)
	}
	almostEq(t, top[0].Score, 2, 1e-9)

	if got := tr.Top(0); len(got) != 0 {
		t.Fatalf("Top(0)=%v", got)
	}
	if got := newTrackerForTest(time.Minute, nil).Top(5); got == nil || len(got) != 0 {
		t.Fatalf("empty tracker Top=%v want empty non-nil", got)
	}
}
