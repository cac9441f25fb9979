package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quickseek/internal/query"
	"quickseek/internal/shard"
	"quickseek/internal/volume"
)

type staticStatus []volume.Status

func (s staticStatus) Status() []volume.Status { return s }

func (s staticStatus) Pending() int { return 3 }

func newTestServer(t *testing.T) (*Server, *shard.Store) {
	t.Helper()
	store, err := shard.Open(t.TempDir())
	require.NoError(t, err)
	return NewServer(query.New(store), staticStatus{
		{Volume: volume.Volume{ID: "vol", Root: "/data"}, Indexed: true, Watching: true},
	}), store
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestSearch(t *testing.T) {
	s, store := newTestServer(t)
	report := filepath.Join("/data", "docs", "report.txt")
	require.NoError(t, store.Insert("vol", "report.txt", report))
	require.NoError(t, store.Insert("vol", "readme", filepath.Join("/data", "readme")))

	rec := get(t, s.Handler(), "/search?q=rep")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var results []query.FileResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	require.Len(t, results, 1)
	assert.Equal(t, query.FileResult{
		Name:            "report.txt",
		Path:            report,
		ParentDirectory: filepath.Join("/data", "docs"),
		Extension:       "txt",
	}, results[0])

	var raw []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	keys := make([]string, 0)
	for k := range raw[0] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	assert.Equal(t, []string{"extension", "name", "parentDirectory", "path"}, keys)
}

func TestSearch_EmptyQuery(t *testing.T) {
	s, store := newTestServer(t)
	require.NoError(t, store.Insert("vol", "a", "/a"))

	rec := get(t, s.Handler(), "/search?q=")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestSearch_Limit(t *testing.T) {
	s, store := newTestServer(t)
	for _, n := range []string{"a1", "a2", "a3"} {
		require.NoError(t, store.Insert("vol", n, "/"+n))
	}

	var results []query.FileResult
	rec := get(t, s.Handler(), "/search?q=a&limit=2")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	assert.Len(t, results, 2)

	assert.Equal(t, http.StatusBadRequest, get(t, s.Handler(), "/search?q=a&limit=x").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, s.Handler(), "/search?q=a&limit=-1").Code)
}

func TestOpen(t *testing.T) {
	s, _ := newTestServer(t)
	var revealed []string
	s.Reveal = func(p string) { revealed = append(revealed, p) }
	h := s.Handler()

	post := func(body string) int {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/open", bytes.NewBufferString(body)))
		return rec.Code
	}

	abs, err := filepath.Abs(filepath.Join("some", "file.txt"))
	require.NoError(t, err)
	payload, err := json.Marshal(openRequest{Path: abs})
	require.NoError(t, err)

	assert.Equal(t, http.StatusAccepted, post(string(payload)))
	assert.Equal(t, []string{abs}, revealed)

	assert.Equal(t, http.StatusBadRequest, post(`{"path":"relative/file"}`))
	assert.Equal(t, http.StatusBadRequest, post(`{"path":""}`))
	assert.Equal(t, http.StatusBadRequest, post(`not json`))
	assert.Len(t, revealed, 1)
}

func TestOpen_WrongMethod(t *testing.T) {
	s, _ := newTestServer(t)
	rec := get(t, s.Handler(), "/open")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)
	rec := get(t, s.Handler(), "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Volumes, 1)
	assert.Equal(t, "vol", resp.Volumes[0].ID)
	assert.True(t, resp.Volumes[0].Watching)
	assert.Equal(t, 3, resp.PendingEvents)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()
	get(t, h, "/search?q=x")

	rec := get(t, h, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "quickseek_http_requests_total")
}

func TestListenAndServe_ShutsDownOnCancel(t *testing.T) {
	s, _ := newTestServer(t)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx, addr) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
