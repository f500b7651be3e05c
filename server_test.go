package main

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bsaid97/go-geojson-cleaner/config"
	"github.com/bsaid97/go-geojson-cleaner/events"
	"github.com/bsaid97/go-geojson-cleaner/history"
	"github.com/bsaid97/go-geojson-cleaner/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	squareFeature = `{"type":"Feature","geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1],[0,0]]]},"properties":{"name":"square"}}`
	bowtieFeature = `{"type":"Feature","geometry":{"type":"Polygon","coordinates":[[[0,0],[2,2],[2,0],[0,2],[0,0]]]},"properties":{"name":"bowtie"}}`
	openFeature   = `{"type":"Feature","geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1]]]},"properties":{}}`
)

func collection(features ...string) string {
	return `{"type":"FeatureCollection","features":[` + strings.Join(features, ",") + `]}`
}

func testApp(t *testing.T) (*app, *events.Recorder) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Workers = 2
	cfg.Events.Backend = "none"

	recorder := &events.Recorder{}
	a, err := newApp(context.Background(), cfg, appOptions{
		Publisher: recorder,
		Publish:   true,
		History:   history.NewMemoryLog(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { a.Close(context.Background()) })
	return a, recorder
}

func TestCleanHandlerJSON(t *testing.T) {
	a, recorder := testApp(t)
	srv := httptest.NewServer(a.routes())
	defer srv.Close()

	body := collection(squareFeature, bowtieFeature, squareFeature)
	resp, err := http.Post(srv.URL+"/v1/clean?name=upload.geojson&session=s1", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got struct {
		RunID   string `json:"runId"`
		Summary struct {
			Total, InvalidInitial, Duplicates, Kept int
		} `json:"summary"`
		Stages            []string `json:"stages"`
		FeatureCollection struct {
			Features []json.RawMessage `json:"features"`
		} `json:"featureCollection"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, 3, got.Summary.Total)
	assert.Equal(t, 1, got.Summary.InvalidInitial)
	assert.Equal(t, 2, got.Summary.Duplicates)
	assert.Equal(t, 3, got.Summary.Kept)
	assert.Equal(t, "reported", got.Stages[len(got.Stages)-1])
	assert.Len(t, got.FeatureCollection.Features, 3)

	require.Len(t, recorder.Events, 1)
	assert.Equal(t, "upload.geojson", recorder.Events[0].Payload["sourceName"])

	entries, err := a.history.List(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, history.KindVersion, entries[0].Kind)
	assert.Equal(t, got.RunID, entries[0].RunID)
}

func TestCleanHandlerMultipartZip(t *testing.T) {
	a, _ := testApp(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "parcels.geojson")
	require.NoError(t, err)
	_, err = fw.Write([]byte(collection(squareFeature)))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/clean?format=zip", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	a.routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/zip", rec.Header().Get("Content-Type"))

	zr, err := zip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len()))
	require.NoError(t, err)
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Contains(t, names, utils.ExportName+".json")
	assert.Contains(t, names, utils.ExportName+".shp")
}

func TestCleanHandlerErrors(t *testing.T) {
	a, recorder := testApp(t)
	handler := a.routes()

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{name: "empty body", body: "", status: http.StatusBadRequest},
		{name: "not geojson", body: `{"type":`, status: http.StatusBadRequest},
		{name: "null geometry", body: collection(`{"type":"Feature","geometry":null,"properties":{}}`), status: http.StatusBadRequest},
		{name: "unclosed ring", body: collection(squareFeature, openFeature), status: http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/clean", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}
	assert.Empty(t, recorder.Events)
}

func TestCheckGeometryHandler(t *testing.T) {
	a, _ := testApp(t)

	req := httptest.NewRequest(http.MethodPost, "/check-geometry", strings.NewReader(collection(squareFeature, bowtieFeature)))
	rec := httptest.NewRecorder()
	a.routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var errs []struct {
		Ref          int    `json:"ref"`
		ErrorMessage string `json:"errorMessage"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errs))
	require.Len(t, errs, 1)
	assert.Equal(t, 1, errs[0].Ref)
	assert.NotEmpty(t, errs[0].ErrorMessage)
}

func TestSessionComments(t *testing.T) {
	a, _ := testApp(t)
	handler := a.routes()

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/s9/comments", strings.NewReader(`{"text":"looks good"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/v1/sessions/s9/comments", strings.NewReader(`{"text":""}`))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/sessions/s9/history", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var entries []history.Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "looks good", entries[0].Text)

	req = httptest.NewRequest(http.MethodGet, "/v1/sessions/unknown/history", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, "[]\n", rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	a, _ := testApp(t)
	handler := a.routes()

	req := httptest.NewRequest(http.MethodPost, "/v1/clean", strings.NewReader(collection(squareFeature)))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "geoclean_runs_total")
}
