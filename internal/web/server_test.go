package web

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"equiscore/internal/config"
	"equiscore/internal/feed"
	"equiscore/internal/push"
	"equiscore/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
	"golang.org/x/net/websocket"
)

func fixtureStore(t *testing.T, load bool) *store.Results {
	t.Helper()
	flags, err := feed.LoadFlags(filepath.Join("..", "feed", "testdata", "flags.json"))
	require.NoError(t, err)
	r := store.New(filepath.Join("..", "feed", "testdata", "equiscore.xml"), flags, store.WithRetry(1, 0))
	if load {
		require.NoError(t, r.Load(context.Background()))
	}
	return r
}

func newTestServer(t *testing.T, mutate func(*config.Config), load bool) (*Server, *push.Hub) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Server.StaticDir = filepath.Join("..", "feed", "testdata")
	cfg.Push.Keepalive = "0s"
	if mutate != nil {
		mutate(cfg)
	}
	hub := push.NewHub()
	s, err := New(cfg, fixtureStore(t, load), hub, nil)
	require.NoError(t, err)
	return s, hub
}

func get(t *testing.T, h http.Handler, target string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// collect walks the tree and returns every element matching pred.
func collect(n *html.Node, pred func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && pred(n) {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

func TestIndex_RendersStandings(t *testing.T) {
	s, _ := newTestServer(t, nil, true)
	rec := get(t, s.Handler(), "/", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))

	doc, err := html.Parse(rec.Body)
	require.NoError(t, err)

	sections := collect(doc, func(n *html.Node) bool {
		_, ok := attr(n, "data-mid")
		return n.Data == "section" && ok
	})
	require.Len(t, sections, 2)

	rows := collect(sections[0], func(n *html.Node) bool {
		_, ok := attr(n, "data-id")
		return n.Data == "tr" && ok
	})
	var ids []string
	for _, r := range rows {
		id, _ := attr(r, "data-id")
		ids = append(ids, id)
	}
	assert.Equal(t, []string{"104", "101", "102", "103", "105"}, ids)

	judgeHeaders := collect(sections[0], func(n *html.Node) bool {
		class, _ := attr(n, "class")
		return n.Data == "th" && class == "judge"
	})
	assert.Len(t, judgeHeaders, 3)

	flags := collect(sections[0], func(n *html.Node) bool { return n.Data == "img" })
	require.NotEmpty(t, flags)
	src, _ := attr(flags[0], "src")
	assert.Equal(t, "/static/flags/de.png", src)

	scripts := collect(doc, func(n *html.Node) bool { return n.Data == "script" })
	require.Len(t, scripts, 1)
	assert.Contains(t, scripts[0].FirstChild.Data, `addEventListener("data_updated"`)
}

func TestIndex_Fragment(t *testing.T) {
	s, _ := newTestServer(t, nil, true)
	rec := get(t, s.Handler(), "/?fragment=1", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.NotContains(t, body, "<html")
	assert.NotContains(t, body, "<script")
	assert.Contains(t, body, "Grand Prix de Dressage")
	assert.Contains(t, body, "Glamourdale / Everglow")
}

func TestIndex_NoData(t *testing.T) {
	s, _ := newTestServer(t, nil, false)
	rec := get(t, s.Handler(), "/", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "No results available yet.")
}

func TestIndex_UnknownPath(t *testing.T) {
	s, _ := newTestServer(t, nil, true)
	assert.Equal(t, http.StatusNotFound, get(t, s.Handler(), "/nope", nil).Code)
}

func TestData_ReturnsSnapshotJSON(t *testing.T) {
	s, _ := newTestServer(t, nil, true)
	rec := get(t, s.Handler(), "/data", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "1", rec.Header().Get("X-Results-Version"))

	var competitions []feed.Competition
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &competitions))
	require.Len(t, competitions, 2)
	assert.Equal(t, "Jessica von Bredow-Werndl", competitions[0].Competitors[0].FullName)
}

func TestData_EmptyIsArray(t *testing.T) {
	s, _ := newTestServer(t, nil, false)
	rec := get(t, s.Handler(), "/data", nil)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
}

func TestData_Gzip(t *testing.T) {
	s, _ := newTestServer(t, nil, true)
	rec := get(t, s.Handler(), "/data", map[string]string{"Accept-Encoding": "gzip"})
	assert.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))

	s, _ = newTestServer(t, func(c *config.Config) { c.Server.Gzip = false }, true)
	rec = get(t, s.Handler(), "/data", map[string]string{"Accept-Encoding": "gzip"})
	assert.Empty(t, rec.Header().Get("Content-Encoding"))
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, nil, true)
	rec := get(t, s.Handler(), "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(1), body["version"])
	assert.Equal(t, float64(2), body["competitions"])
	assert.NotEmpty(t, body["digest"])
	assert.Equal(t, float64(0), body["subscribers"])

	s, _ = newTestServer(t, nil, false)
	rec = get(t, s.Handler(), "/healthz", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "no_data", body["status"])
}

func TestStaticFiles(t *testing.T) {
	s, _ := newTestServer(t, nil, true)
	rec := get(t, s.Handler(), "/static/flags.json", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "GER")
}

func TestCORS(t *testing.T) {
	s, _ := newTestServer(t, nil, true)
	rec := get(t, s.Handler(), "/data", nil)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	s, _ = newTestServer(t, func(c *config.Config) {
		c.Server.CORSAllowedOrigins = "https://arena.example, https://tv.example"
	}, true)
	rec = get(t, s.Handler(), "/data", map[string]string{"Origin": "https://tv.example"})
	assert.Equal(t, "https://tv.example", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = get(t, s.Handler(), "/data", map[string]string{"Origin": "https://evil.example"})
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestEvents_ThroughMiddleware(t *testing.T) {
	s, hub := newTestServer(t, nil, true)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	defer hub.Close()

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Get(srv.URL + "/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "retry: 3000\n", line)

	// The stream is registered once the greeting arrives.
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(get(t, s.Handler(), "/healthz", nil).Body.Bytes(), &body))
	assert.Equal(t, float64(1), body["subscribers"])

	hub.Broadcast(push.EventDataUpdated)
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "event:") {
			assert.Equal(t, "event: data_updated\n", line)
			break
		}
	}
}

func TestWebSocket_ThroughMiddleware(t *testing.T) {
	s, hub := newTestServer(t, nil, true)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	ws, err := websocket.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", "", "http://localhost/")
	require.NoError(t, err)
	defer ws.Close()

	require.Eventually(t, func() bool { return hub.Count() == 1 }, 2*time.Second, 10*time.Millisecond)
	hub.Broadcast(push.EventDataUpdated)

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg string
	require.NoError(t, websocket.Message.Receive(ws, &msg))
	assert.Equal(t, "data_updated", msg)
}

func TestWebSocket_Disabled(t *testing.T) {
	s, _ := newTestServer(t, func(c *config.Config) { c.Push.WebSocket = false }, true)
	assert.Equal(t, http.StatusNotFound, get(t, s.Handler(), "/ws", nil).Code)
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	s, hub := newTestServer(t, nil, true)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	_, err = hub.Subscribe()
	assert.ErrorIs(t, err, push.ErrHubClosed)
}

func TestNew_TemplateOverride(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "good.html")
	require.NoError(t, os.WriteFile(good, []byte(`{{define "page"}}PAGE {{template "results" .}}{{end}}{{define "results"}}{{len .Competitions}} classes{{end}}`), 0644))
	s, _ := newTestServer(t, func(c *config.Config) { c.Server.TemplatePath = good }, true)
	assert.Equal(t, "PAGE 2 classes", get(t, s.Handler(), "/", nil).Body.String())

	bad := filepath.Join(dir, "bad.html")
	require.NoError(t, os.WriteFile(bad, []byte(`{{define "page"}}x{{end}}`), 0644))
	cfg := config.DefaultConfig()
	cfg.Server.TemplatePath = bad
	_, err := New(cfg, fixtureStore(t, false), push.NewHub(), nil)
	assert.Error(t, err)
}

func TestTemplateFuncs(t *testing.T) {
	placed := templateFuncs["placed"].(func(string) bool)
	assert.True(t, placed("3"))
	assert.False(t, placed("N/A"))
	assert.False(t, placed(""))
	assert.False(t, placed("EL"))

	horses := templateFuncs["horses"].(func([]feed.Horse) string)
	assert.Equal(t, "A / B", horses([]feed.Horse{{HorseName: "A"}, {HorseName: ""}, {HorseName: "B"}}))
}
