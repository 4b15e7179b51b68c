package web

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"equiscore/internal/logging"
)

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.results.Snapshot()
	data := pageData{
		Competitions: snap.Competitions,
		Version:      snap.Version,
		LoadedAt:     snap.LoadedAt,
	}
	if err := s.results.LastError(); err != nil {
		data.Error = err.Error()
	}

	name := "page"
	if r.URL.Query().Get("fragment") != "" {
		name = "results"
	}

	// Render into a buffer so a template error doesn't leave half a page.
	var buf bytes.Buffer
	if err := s.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		logging.Get(logging.CategoryHTTP).Error("render %s: %v", name, err)
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = buf.WriteTo(w)
}

func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	snap := s.results.Snapshot()
	w.Header().Set("X-Results-Version", formatUint(snap.Version))
	writeJSON(w, http.StatusOK, snap.Competitions)
}

type healthResponse struct {
	Status       string      `json:"status"`
	Feed         string      `json:"feed"`
	Version      uint64      `json:"version"`
	LoadedAt     *time.Time  `json:"loaded_at,omitempty"`
	Digest       string      `json:"digest,omitempty"`
	Competitions int         `json:"competitions"`
	Subscribers  int         `json:"subscribers"`
	LastError    string      `json:"last_error,omitempty"`
	Push         interface{} `json:"push"`
	Watcher      interface{} `json:"watcher,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.results.Snapshot()
	resp := healthResponse{
		Status:       "ok",
		Feed:         s.results.Path(),
		Version:      snap.Version,
		Competitions: len(snap.Competitions),
		Subscribers:  s.hub.Count() + s.events.Sessions(),
		Push:         s.hub.Stats(),
	}
	if snap.Version > 0 {
		loaded := snap.LoadedAt
		resp.LoadedAt = &loaded
		resp.Digest = snap.Digest.String()
	}
	if err := s.results.LastError(); err != nil {
		resp.Status = "degraded"
		resp.LastError = err.Error()
	}
	if snap.Version == 0 {
		resp.Status = "no_data"
	}
	if s.watch != nil {
		resp.Watcher = s.watch.Stats()
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		logging.Get(logging.CategoryHTTP).Error("encode response: %v", err)
		http.Error(w, "encoding error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
