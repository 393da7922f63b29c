// Package hotness tracks how often sites are looked at, decaying over time.
package hotness

// Entry is a site and its current score.
type Entry struct {
	ID    int     `json:"id"`
	Score float64 `json:"score"`
}

type Interface interface {
	Inc(id int)
	Score(id int) float64
	Reset(ids ...int)
	// Top returns up to n entries, highest score first.
	Top(n int) []Entry
}
