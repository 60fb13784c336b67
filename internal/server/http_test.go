package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/ocr-enricher/internal/common"
	"github.com/joseph-ayodele/ocr-enricher/internal/core"
	"github.com/joseph-ayodele/ocr-enricher/internal/progress"
)

func newTestAPI(t *testing.T, checks ...Check) (*fakeJobs, *fakeExporter, http.Handler) {
	t.Helper()
	fj := &fakeJobs{reports: watchReports()}
	ex := &fakeExporter{}
	api := NewAPI(fj, ex, checks, Options{MaxUploadBytes: 1024, DefaultStrategy: "tesseract", DefaultCacheEnabled: true}, nil)
	return fj, ex, api.Router()
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &m), rr.Body.String())
	return m
}

func TestSubmit_Multipart(t *testing.T) {
	fj, _, router := newTestAPI(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("document", "invoice.pdf")
	require.NoError(t, err)
	_, _ = part.Write([]byte("%PDF-1.4 body"))
	require.NoError(t, mw.WriteField("strategy", "marker"))
	require.NoError(t, mw.WriteField("prompt", "Summarize: "))
	require.NoError(t, mw.WriteField("model", "llama3"))
	require.NoError(t, mw.WriteField("cache", "false"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/jobs", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	assert.Equal(t, "/api/jobs/01HZX", rr.Header().Get("Location"))
	assert.Equal(t, "01HZX", decode(t, rr)["id"])

	got := fj.Last()
	assert.Equal(t, "%PDF-1.4 body", string(got.Document))
	assert.Equal(t, "marker", got.Strategy)
	assert.Equal(t, "Summarize: ", got.Prompt)
	assert.Equal(t, "llama3", got.Model)
	assert.False(t, got.CacheEnabled)
	assert.Equal(t, "invoice.pdf", got.Source)
}

func TestSubmit_RawBodyUsesDefaults(t *testing.T) {
	fj, _, router := newTestAPI(t)

	req := httptest.NewRequest(http.MethodPost, "/api/jobs?source=scan.pdf", strings.NewReader("%PDF-raw"))
	req.Header.Set("Content-Type", "application/pdf")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	got := fj.Last()
	assert.Equal(t, "tesseract", got.Strategy)
	assert.True(t, got.CacheEnabled)
	assert.Equal(t, "scan.pdf", got.Source)
}

func TestSubmit_Errors(t *testing.T) {
	fj, _, router := newTestAPI(t)

	post := func(body, query string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/jobs"+query, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/pdf")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr
	}

	assert.Equal(t, http.StatusRequestEntityTooLarge, post(strings.Repeat("x", 2048), "").Code)
	assert.Equal(t, http.StatusBadRequest, post("", "").Code)
	assert.Equal(t, http.StatusBadRequest, post("%PDF-", "?cache=maybe").Code)

	fj.submitErr = &core.InvalidStrategyError{Strategy: "nope", Available: []string{"marker", "tesseract"}}
	rr := post("%PDF-", "?strategy=nope")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, decode(t, rr)["error"], "available: marker, tesseract")

	fj.submitErr = common.ValidationErrors{{Field: "Model", Message: "must be at most 256 characters"}}
	rr = post("%PDF-", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	fields := decode(t, rr)["fields"].([]any)
	assert.Equal(t, "Model", fields[0].(map[string]any)["field"])

	fj.submitErr = errors.New("disk on fire")
	assert.Equal(t, http.StatusInternalServerError, post("%PDF-", "").Code)
}

func TestProgressAndResult(t *testing.T) {
	_, _, router := newTestAPI(t)
	get := func(path, accept string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if accept != "" {
			req.Header.Set("Accept", accept)
		}
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr
	}

	rr := get("/api/jobs/busy", "")
	require.Equal(t, http.StatusOK, rr.Code)
	m := decode(t, rr)
	assert.Equal(t, "GENERATING", m["phase"])
	assert.EqualValues(t, 75, m["percent"])
	assert.EqualValues(t, 3, m["chunk_index"])

	assert.Equal(t, http.StatusNotFound, get("/api/jobs/missing", "").Code)

	rr = get("/api/jobs/done/result", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "enriched text", decode(t, rr)["result"])

	rr = get("/api/jobs/done/result", "text/plain")
	assert.Equal(t, "enriched text", rr.Body.String())
	assert.Contains(t, rr.Header().Get("Content-Type"), "text/plain")

	assert.Equal(t, http.StatusConflict, get("/api/jobs/busy/result", "").Code)
	rr = get("/api/jobs/bad/result", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Contains(t, decode(t, rr)["error"], "corrupt")
}

func TestList(t *testing.T) {
	_, _, router := newTestAPI(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/jobs?limit=1", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode(t, rr)["jobs"], 1)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/jobs?limit=-2", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestExport(t *testing.T) {
	_, ex, router := newTestAPI(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/jobs/export.xlsx?from=2026-05-01&to=2026-05-02", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "PK-xlsx", rr.Body.String())
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "jobs.xlsx")
	require.NotNil(t, ex.from)
	require.NotNil(t, ex.to)
	assert.Equal(t, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), *ex.from)
	assert.True(t, ex.to.After(time.Date(2026, 5, 2, 23, 59, 0, 0, time.UTC)))

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/jobs/export.xlsx?from=May", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHealth(t *testing.T) {
	ok := Check{Name: "db", Fn: func(context.Context) error { return nil }}
	bad := Check{Name: "llm", Fn: func(context.Context) error { return errors.New("connection refused") }}

	_, _, router := newTestAPI(t, ok)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	_, _, router = newTestAPI(t, ok, bad)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "degraded", decode(t, rr)["status"])
}

func TestWatch_WebSocket(t *testing.T) {
	_, _, router := newTestAPI(t)
	srv := httptest.NewServer(router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/jobs/busy/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var got []progress.Report
	for {
		var r progress.Report
		if err := conn.ReadJSON(&r); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), err)
			break
		}
		got = append(got, r)
	}
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].ChunkIndex)
	assert.True(t, got[1].Terminal())
}

func TestWatch_UnknownJobIsPlainHTTP(t *testing.T) {
	_, _, router := newTestAPI(t)
	srv := httptest.NewServer(router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/jobs/missing/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
