package main

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunobiangulo/bibnet"
)

func newTestServer(t *testing.T, apiKey string) *httptest.Server {
	t.Helper()
	cfg := bibnet.DefaultConfig()
	cfg.WindowWidth = 3
	cfg.Statistics = []string{"edges", "best_modularity"}
	e, err := bibnet.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })

	srv := httptest.NewServer(withMiddleware(newHandler(e).routes(), apiKey, "https://example.org"))
	t.Cleanup(srv.Close)
	return srv
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, "secret")
	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	decode(t, resp, &body)
	assert.Equal(t, "ok", body["status"])
}

func TestAuth(t *testing.T) {
	srv := newTestServer(t, "secret")

	resp, err := http.Get(srv.URL + "/stats")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/stats", nil)
	req.Header.Set("Authorization", "Bearer secret")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Statistics []struct {
			Name  string   `json:"name"`
			Views []string `json:"views"`
		} `json:"statistics"`
	}
	decode(t, resp, &body)
	assert.NotEmpty(t, body.Statistics)
}

func TestCORS(t *testing.T) {
	srv := newTestServer(t, "")
	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/analyze", nil)
	req.Header.Set("Origin", "https://example.org")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://example.org", resp.Header.Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "https://elsewhere.org")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestAnalyzeJSON(t *testing.T) {
	srv := newTestServer(t, "")
	body := `{"records": [
		{"id": "1", "authors": ["A", "B"], "year": 2000},
		{"id": "2", "authors": ["A", "C"], "year": 2001},
		{"id": "3", "authors": ["B", "C"], "year": 2002}
	]}`
	resp, err := http.Post(srv.URL+"/analyze", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		RunID   string `json:"run_id"`
		Records int    `json:"records"`
		Spec    struct {
			Start int `json:"start"`
			End   int `json:"end"`
		} `json:"spec"`
		Windows struct {
			Header []string   `json:"header"`
			Rows   [][]string `json:"rows"`
		} `json:"windows"`
	}
	decode(t, resp, &out)
	assert.Empty(t, out.RunID)
	assert.Equal(t, 3, out.Records)
	assert.Equal(t, 2000, out.Spec.Start)
	assert.Equal(t, 2002, out.Spec.End)
	assert.Equal(t, []string{"Window", "edges", "best_modularity_val", "best_modularity_num"}, out.Windows.Header)
	require.Len(t, out.Windows.Rows, 3)
	assert.Equal(t, []string{"2001", "3"}, out.Windows.Rows[1][:2])
}

func TestAnalyzeUpload(t *testing.T) {
	srv := newTestServer(t, "")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "papers.csv")
	require.NoError(t, err)
	_, err = fw.Write([]byte(papersCSV))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(srv.URL+"/analyze", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Records int `json:"records"`
	}
	decode(t, resp, &out)
	assert.Equal(t, 3, out.Records)
}

func TestAnalyzeErrors(t *testing.T) {
	srv := newTestServer(t, "")

	resp, err := http.Post(srv.URL+"/analyze", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/analyze", "application/json",
		strings.NewReader(`{"records": [{"authors": ["A", "B"]}]}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "no dated records")
}

func TestRunsWithoutStore(t *testing.T) {
	srv := newTestServer(t, "")
	resp, err := http.Get(srv.URL + "/runs")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/runs/abc/similar")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRecoveryMiddleware(t *testing.T) {
	h := recoveryMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal server error")
}
