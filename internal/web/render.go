package web

import (
	"embed"
	"fmt"
	"html/template"
	"path/filepath"
	"strings"
	"time"

	"equiscore/internal/feed"
)

//go:embed templates/table.html
var templateFS embed.FS

// pageData is what table.html renders.
type pageData struct {
	Competitions []feed.Competition
	Version      uint64
	LoadedAt     time.Time
	Error        string
}

var templateFuncs = template.FuncMap{
	"horses": func(hs []feed.Horse) string {
		names := make([]string, 0, len(hs))
		for _, h := range hs {
			if h.HorseName != "" {
				names = append(names, h.HorseName)
			}
		}
		return strings.Join(names, " / ")
	},
	"judge": func(c feed.Competitor, judgeBy string) *feed.DressageResult {
		if r, ok := c.JudgeResult(judgeBy); ok {
			return &r
		}
		return nil
	},
	"total": func(c feed.Competitor) *feed.TotalResult {
		if t, ok := c.Total(); ok {
			return &t
		}
		return nil
	},
	"placed": func(rank string) bool {
		return rank != "" && rank != feed.RankNotAvailable && strings.Trim(rank, "0123456789") == ""
	},
}

// loadTemplates parses the embedded table.html, or path when set. An
// override must define the "page" and "results" templates.
func loadTemplates(path string) (*template.Template, error) {
	if path == "" {
		return template.New("table.html").Funcs(templateFuncs).ParseFS(templateFS, "templates/table.html")
	}

	t, err := template.New(filepath.Base(path)).Funcs(templateFuncs).ParseFiles(path)
	if err != nil {
		return nil, fmt.Errorf("parse template %s: %w", path, err)
	}
	for _, name := range []string{"page", "results"} {
		if t.Lookup(name) == nil {
			return nil, fmt.Errorf("template %s does not define %q", path, name)
		}
	}
	return t, nil
}
