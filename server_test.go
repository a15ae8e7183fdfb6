package stitch

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server, string) {
	t.Helper()
	dir := newTestProject(t)
	s, err := NewServer(func() (*Project, error) { return Open(dir) }, 0)
	require.NoError(t, err)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts, dir
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	res, err := http.Get(url)
	require.NoError(t, err)
	defer res.Body.Close()
	if v != nil && res.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(res.Body).Decode(v))
	}
	return res.StatusCode
}

func TestServerResources(t *testing.T) {
	_, ts, _ := newTestServer(t)

	var all []resourceSummary
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/resources", &all))
	assert.Len(t, all, 3)

	var sounds []resourceSummary
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/resources?kind=sound", &sounds))
	require.Len(t, sounds, 1)
	assert.Equal(t, resourceSummary{Name: "snd_coin", Kind: "sounds", ID: "sounds/snd_coin/snd_coin.yy", Folder: "Audio"}, sounds[0])

	var modules []resourceSummary
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/resources?folder=modules&recursive=true", &modules))
	assert.Len(t, modules, 2)

	assert.Equal(t, http.StatusUnprocessableEntity, getJSON(t, ts.URL+"/resources?kind=gadgets", nil))

	var detail struct {
		Name       string          `json:"name"`
		Descriptor json.RawMessage `json:"descriptor"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/resources/sounds/snd_coin", &detail))
	assert.Equal(t, "snd_coin", detail.Name)
	assert.Contains(t, string(detail.Descriptor), `"soundFile"`)

	assert.Equal(t, http.StatusNotFound, getJSON(t, ts.URL+"/resources/sounds/nope", nil))
	assert.Equal(t, http.StatusNotFound, getJSON(t, ts.URL+"/resources/gadgets/snd_coin", nil))
}

func TestServerFoldersAndFunctions(t *testing.T) {
	_, ts, _ := newTestServer(t)

	var folders []folderSummary
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/folders?module=inventory", &folders))
	assert.Equal(t, []folderSummary{{Path: "Modules/Inventory", Name: "Inventory"}}, folders)

	var funcs []struct {
		Name     string   `json:"name"`
		Resource string   `json:"resource"`
		Params   []string `json:"params"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/functions", &funcs))
	require.Len(t, funcs, 3)
	assert.Equal(t, "inventory_add", funcs[0].Name)
	assert.Equal(t, []string{"item"}, funcs[0].Params)

	var refs []struct {
		Resource string `json:"resource"`
		Role     string `json:"role"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/functions/inventory_add/references?self=true", &refs))
	require.Len(t, refs, 2)
	assert.Equal(t, "declaration", refs[0].Role)
	assert.Equal(t, "usage", refs[1].Role)

	assert.Equal(t, http.StatusNotFound, getJSON(t, ts.URL+"/functions/nope/references", nil))
}

func TestServerReloadEvents(t *testing.T) {
	s, ts, dir := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/events", nil)
	require.NoError(t, err)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, "text/event-stream", res.Header.Get("Content-Type"))
	require.Eventually(t, func() bool { return s.listeners() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, os.RemoveAll(filepath.Join(dir, "scripts/scr_shop")))
	writeTestFile(t, filepath.Join(dir, "Shopkeeper.yyp"), strings.Replace(testManifest,
		`{"id":{"name":"scr_shop","path":"scripts/scr_shop/scr_shop.yy",},"order":3,},`, "", 1))
	require.NoError(t, s.Reload())

	line, err := bufio.NewReader(res.Body).ReadString('\n')
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(line, "data: "), line)
	var event reloadEvent
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event))
	assert.Equal(t, reloadEvent{Type: "reload", Project: "Shopkeeper"}, event)
	assert.Equal(t, 2, s.Project().Resources().Len())
}

func TestServerReloadKeepsProjectOnFailure(t *testing.T) {
	s, _, dir := newTestServer(t)
	writeTestFile(t, filepath.Join(dir, "Shopkeeper.yyp"), "{ broken")

	require.Error(t, s.Reload())
	assert.Equal(t, 3, s.Project().Resources().Len())
}

func TestServerKeepAliveStopsWhenDone(t *testing.T) {
	s, _, _ := newTestServer(t)
	events := make(chan any, 8)
	s.lock.Lock()
	s.senders[s.nextID] = events
	s.nextID++
	s.lock.Unlock()

	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		s.keepAlive(done, 5*time.Millisecond)
		close(stopped)
	}()

	select {
	case event := <-events:
		assert.Equal(t, pingEvent{Type: "ping"}, event)
	case <-time.After(time.Second):
		t.Fatal("no ping received")
	}
	close(done)
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("keepAlive still running")
	}
}
