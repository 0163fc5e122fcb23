//
// Tencent is pleased to support the open source community by making
// trpc-prefixcache-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-prefixcache-go is licensed under the Apache License Version 2.0.
//
//

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-prefixcache-go/cache"
	"trpc.group/trpc-go/trpc-prefixcache-go/manual"
	"trpc.group/trpc-go/trpc-prefixcache-go/orchestration"
)

type stubHandler struct {
	result *orchestration.Result
	err    error

	gotSessionID string
	gotQuery     string
}

func (h *stubHandler) HandleQuery(_ context.Context, sessionID, query string) (*orchestration.Result, error) {
	h.gotSessionID = sessionID
	h.gotQuery = query
	if h.err != nil {
		return nil, h.err
	}
	return h.result, nil
}

func newTestServer(t *testing.T, h Handler, args ...any) *Server {
	t.Helper()

	var metrics *cache.Metrics
	var opts []Option
	for _, arg := range args {
		switch v := arg.(type) {
		case *cache.Metrics:
			metrics = v
		case Option:
			opts = append(opts, v)
		default:
			t.Fatalf("newTestServer: unsupported argument type %T", arg)
		}
	}
	if metrics == nil {
		metrics = cache.NewMetrics()
	}
	doc := manual.New("# Manual\n## Section 1\nPressure limits.")
	srv, err := New(h, metrics, doc, opts...)
	require.NoError(t, err)
	return srv
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	doc := manual.New("x")
	_, err := New(nil, cache.NewMetrics(), doc)
	require.Error(t, err)
	_, err = New(&stubHandler{}, nil, doc)
	require.Error(t, err)
	_, err = New(&stubHandler{}, cache.NewMetrics(), nil)
	require.Error(t, err)
}

func TestServer_DefaultPaths(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &stubHandler{})
	require.Equal(t, "/v1/query", srv.QueryPath())
	require.Equal(t, "/v1/cache/stats", srv.StatsPath())
	require.Equal(t, "/v1/manual", srv.ManualPath())
	require.Equal(t, "/healthz", srv.HealthPath())
}

func TestHandleQuery_OK(t *testing.T) {
	t.Parallel()

	h := &stubHandler{result: &orchestration.Result{
		SessionID:        "sess-1",
		Response:         "the answer",
		Agents:           []string{"technical_specialist"},
		CompliancePassed: true,
	}}
	srv := newTestServer(t, h)

	body := `{"query": "what is the limit?", "session_id": "sess-1"}`
	req := httptest.NewRequest(http.MethodPost, srv.QueryPath(), strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "sess-1", h.gotSessionID)
	require.Equal(t, "what is the limit?", h.gotQuery)

	var result orchestration.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Equal(t, "the answer", result.Response)
	require.Equal(t, []string{"technical_specialist"}, result.Agents)
}

func TestHandleQuery_MissingQuery(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &stubHandler{})
	req := httptest.NewRequest(http.MethodPost, srv.QueryPath(), strings.NewReader(`{"query": "  "}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	require.Equal(t, errTypeInvalidRequest, resp.Error.Type)
}

func TestHandleQuery_BadJSON(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &stubHandler{})
	req := httptest.NewRequest(http.MethodPost, srv.QueryPath(), strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleQuery_MethodNotAllowed(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &stubHandler{})
	req := httptest.NewRequest(http.MethodGet, srv.QueryPath(), nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	require.Equal(t, http.MethodPost, rec.Header().Get("Allow"))
}

func TestHandleQuery_HandlerError(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &stubHandler{err: errors.New("backend down")})
	req := httptest.NewRequest(http.MethodPost, srv.QueryPath(), strings.NewReader(`{"query": "q"}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, errTypeInternal, resp.Error.Type)
}

func TestHandleStats_NoData(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &stubHandler{})
	req := httptest.NewRequest(http.MethodGet, srv.StatsPath(), nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "no requests recorded", resp["status"])
}

func TestHandleStats_WithData(t *testing.T) {
	t.Parallel()

	metrics := cache.NewMetrics()
	metrics.LogRequestComplete("router", "h1", 10.0)
	metrics.LogRequestComplete("tech", "h1", 3.0)

	srv := newTestServer(t, &stubHandler{}, metrics)
	req := httptest.NewRequest(http.MethodGet, srv.StatsPath(), nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var report cache.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	require.Equal(t, 2, report.TotalRequests)
	require.Equal(t, 10.0, report.ColdBaseline)
	require.Equal(t, 1.0, report.HitRate)
	require.True(t, report.AlignmentOK)
}

func TestHandleManual(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &stubHandler{})
	req := httptest.NewRequest(http.MethodGet, srv.ManualPath(), nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Hash        string `json:"hash"`
		LengthChars int    `json:"length_chars"`
		Sections    []struct {
			Level int    `json:"level"`
			Title string `json:"title"`
		} `json:"sections"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Hash, 16)
	require.NotZero(t, resp.LengthChars)
	require.Len(t, resp.Sections, 2)
	require.Equal(t, "Manual", resp.Sections[0].Title)
}

func TestHandleHealth(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &stubHandler{})
	req := httptest.NewRequest(http.MethodGet, srv.HealthPath(), nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status": "ok"}`, rec.Body.String())
}

func TestServer_CustomBasePath(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &stubHandler{}, WithBasePath("/api/v2"))
	require.Equal(t, "/api/v2/query", srv.QueryPath())
	require.Equal(t, "/api/v2/cache/stats", srv.StatsPath())
}

func TestHandleQuery_BodyTooLarge(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &stubHandler{}, WithMaxBodyBytes(16))
	body := `{"query": "` + strings.Repeat("x", 100) + `"}`
	req := httptest.NewRequest(http.MethodPost, srv.QueryPath(), strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}
