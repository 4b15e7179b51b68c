package ui

import (
	"fmt"
	"strings"

	"equiscore/internal/feed"
)

// StandingsTable builds the table for one competition: rank, start number,
// rider, organisation, horses, one column per judge, then the total.
func StandingsTable(c feed.Competition) *SimpleTable {
	headers := []string{"Rank", "No.", "Rider", "Org", "Horse"}
	for _, o := range c.Officials {
		headers = append(headers, o.JudgeBy)
	}
	headers = append(headers, "Total", "%")

	t := NewSimpleTable(competitionTitle(c), headers)
	for _, comp := range c.Competitors {
		row := []string{comp.Rank, comp.StartingNumber, comp.FullName, comp.OrgName, horseNames(comp.Gespanne)}
		for _, o := range c.Officials {
			if r, ok := comp.JudgeResult(o.JudgeBy); ok {
				row = append(row, r.Score)
			} else {
				row = append(row, "-")
			}
		}
		if total, ok := comp.Total(); ok {
			row = append(row, total.Score, total.Procent)
		} else {
			row = append(row, "-", "-")
		}
		t.AddRow(row...)
	}
	return t
}

// RenderStandings renders every competition one after another.
func RenderStandings(comps []feed.Competition, styles Styles) string {
	if len(comps) == 0 {
		return styles.Muted.Render("No results available.") + "\n"
	}

	var sb strings.Builder
	for i, c := range comps {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(StandingsTable(c).View(styles))
		if len(c.Officials) > 0 {
			judges := make([]string, 0, len(c.Officials))
			for _, o := range c.Officials {
				judges = append(judges, fmt.Sprintf("%s: %s", o.JudgeBy, o.FullName))
			}
			sb.WriteString(styles.Subtitle.Render("Judges  " + strings.Join(judges, "  ")))
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func competitionTitle(c feed.Competition) string {
	title := c.Name
	if c.ClassNumber != "" {
		title = fmt.Sprintf("%s  %s", c.ClassNumber, title)
	}
	if c.StartTime != "" {
		title = fmt.Sprintf("%s (%s)", title, c.StartTime)
	}
	return title
}

func horseNames(hs []feed.Horse) string {
	names := make([]string, 0, len(hs))
	for _, h := range hs {
		if h.HorseName != "" {
			names = append(names, h.HorseName)
		}
	}
	return strings.Join(names, " / ")
}
