package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/buildrelay/internal/config"
	"git.home.luguber.info/inful/buildrelay/internal/content"
	berrors "git.home.luguber.info/inful/buildrelay/internal/errors"
	"git.home.luguber.info/inful/buildrelay/internal/store"
)

type fakeIngestor struct {
	result IngestResult
	err    error

	gotProvider string
	gotBody     []byte
}

func (f *fakeIngestor) IngestWebhook(_ context.Context, provider string, body []byte, _ http.Header) (IngestResult, error) {
	f.gotProvider = provider
	f.gotBody = body
	if f.err != nil {
		return IngestResult{}, f.err
	}
	return f.result, nil
}

type fakeContents struct {
	items     []content.Content
	item      *content.Content
	err       error
	gotFilter store.ContentFilter
}

func (f *fakeContents) ListContents(_ context.Context, filter store.ContentFilter) ([]content.Content, error) {
	f.gotFilter = filter
	return f.items, f.err
}

func (f *fakeContents) GetContent(context.Context, string) (*content.Content, error) {
	return f.item, f.err
}

func newTestServer(ing Ingestor, contents ContentReader) *Server {
	cfg := config.ServerConfig{MaxBodyBytes: 1 << 20}
	return New(cfg, ing, contents, nil, nil)
}

func TestWebhookHandlerReturnsDecision(t *testing.T) {
	ing := &fakeIngestor{result: IngestResult{
		Status:          "processed",
		EventsPublished: 2,
		Strategy:        "batch_created",
		Reason:          "normal_window",
		BatchID:         "b1",
	}}
	srv := newTestServer(ing, &fakeContents{})

	req := httptest.NewRequest(http.MethodPost, "/webhooks/shopify", bytes.NewBufferString(`{"id":1}`))
	rec := httptest.NewRecorder()
	srv.MainMux().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "shopify", ing.gotProvider)
	require.JSONEq(t, `{"status":"processed","eventsPublished":2,"strategy":"batch_created","reason":"normal_window","batchId":"b1"}`, rec.Body.String())
}

func TestWebhookHandlerMapsAuthFailureTo401(t *testing.T) {
	ing := &fakeIngestor{err: berrors.AuthError("signature verification failed").Build()}
	srv := newTestServer(ing, &fakeContents{})

	req := httptest.NewRequest(http.MethodPost, "/webhooks/shopify", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	srv.MainMux().ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWebhookHandlerRejectsOversizedBody(t *testing.T) {
	srv := New(config.ServerConfig{MaxBodyBytes: 16}, &fakeIngestor{}, &fakeContents{}, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/shopify",
		bytes.NewBufferString(`{"way":"too large for sixteen bytes"}`))
	rec := httptest.NewRecorder()
	srv.MainMux().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListContentHandler(t *testing.T) {
	contents := &fakeContents{items: []content.Content{
		{ID: "p1", Type: content.TypeProduct, Status: content.StatusPublished},
	}}
	srv := newTestServer(&fakeIngestor{}, contents)

	req := httptest.NewRequest(http.MethodGet, "/content?content_type=product&limit=25", nil)
	rec := httptest.NewRecorder()
	srv.MainMux().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 1, body.Count)
	require.Equal(t, content.TypeProduct, contents.gotFilter.Type)
	require.Equal(t, 25, contents.gotFilter.Limit)
}

func TestListContentHandlerRejectsBadLimit(t *testing.T) {
	srv := newTestServer(&fakeIngestor{}, &fakeContents{})

	req := httptest.NewRequest(http.MethodGet, "/content?limit=banana", nil)
	rec := httptest.NewRecorder()
	srv.MainMux().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetContentHandlerReturns404WhenMissing(t *testing.T) {
	srv := newTestServer(&fakeIngestor{}, &fakeContents{})

	req := httptest.NewRequest(http.MethodGet, "/content/missing", nil)
	rec := httptest.NewRecorder()
	srv.MainMux().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthHandler(t *testing.T) {
	srv := newTestServer(&fakeIngestor{}, &fakeContents{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.AdminMux().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"ok"`)
}
