package search

import (
	"strings"

	"github.com/mohammed-shakir/site-viewer/internal/core/model"
)

// Texts holds the searchable text of one site. Fields are joined with a
// single space, so a pattern may match across field boundaries.
type Texts struct {
	All       string
	Time      string
	Material  string
	Condition string
}

// Aggregate assembles the searchable text of a site, its objects and their
// materials.
func Aggregate(site model.Site) Texts {
	var all, timeText, material, condition strings.Builder

	all.WriteString(string(site.Description))
	all.WriteByte(' ')
	all.WriteString(string(site.Interpretation))
	all.WriteByte(' ')
	all.WriteString(string(site.Context))

	for _, o := range site.Objects {
		for _, f := range []model.Text{o.RestorationDescription, o.Interpretation, o.Type, o.Description} {
			all.WriteByte(' ')
			all.WriteString(string(f))
		}

		timeText.WriteByte(' ')
		timeText.WriteString(string(o.DateSpecific))
		timeText.WriteByte(' ')
		timeText.WriteString(string(o.Period))

		condition.WriteByte(' ')
		condition.WriteString(string(o.Condition))

		for _, m := range o.Materials {
			for _, f := range []model.Text{m.Subtype, m.Type, m.Technique} {
				material.WriteByte(' ')
				material.WriteString(string(f))
			}
		}
	}

	t := Texts{
		Time:      timeText.String(),
		Material:  material.String(),
		Condition: condition.String(),
	}
	all.WriteByte(' ')
	all.WriteString(t.Material)
	all.WriteByte(' ')
	all.WriteString(t.Time)
	all.WriteByte(' ')
	all.WriteString(t.Condition)
	t.All = all.String()
	return t
}
