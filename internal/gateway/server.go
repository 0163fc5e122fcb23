//
// Tencent is pleased to support the open source community by making
// trpc-prefixcache-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-prefixcache-go is licensed under the Apache License Version 2.0.
//
//

// Package gateway exposes the query and diagnostics endpoints over HTTP.
//
// It is a thin layer: prompt construction, cache inference and agent
// orchestration all live behind it, and it holds no state of its own.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"trpc.group/trpc-go/trpc-prefixcache-go/cache"
	"trpc.group/trpc-go/trpc-prefixcache-go/log"
	"trpc.group/trpc-go/trpc-prefixcache-go/manual"
	"trpc.group/trpc-go/trpc-prefixcache-go/orchestration"
)

const (
	defaultBasePath = "/v1"

	defaultQueryPath  = "/query"
	defaultStatsPath  = "/cache/stats"
	defaultManualPath = "/manual"
	defaultHealthPath = "/healthz"

	headerAllow       = "Allow"
	headerContentType = "Content-Type"

	contentTypeJSON = "application/json"

	defaultMaxBodyBytes int64 = 1 << 20
)

const (
	errTypeInvalidRequest = "invalid_request"
	errTypeInternal       = "internal_error"
)

// Handler runs one query through the orchestration flow.
type Handler interface {
	HandleQuery(ctx context.Context, sessionID, query string) (*orchestration.Result, error)
}

// Server provides the HTTP gateway.
type Server struct {
	basePath   string
	queryPath  string
	statsPath  string
	manualPath string
	healthPath string

	maxBodyBytes int64

	handlerImpl Handler
	metrics     *cache.Metrics
	doc         *manual.Document

	handler http.Handler
}

// New creates a gateway server.
func New(h Handler, metrics *cache.Metrics, doc *manual.Document, opts ...Option) (*Server, error) {
	if h == nil {
		return nil, errors.New("gateway: handler must not be nil")
	}
	if metrics == nil {
		return nil, errors.New("gateway: metrics must not be nil")
	}
	if doc == nil {
		return nil, errors.New("gateway: document must not be nil")
	}

	options := newOptions(opts...)

	queryPath, err := joinURLPath(options.basePath, options.queryPath)
	if err != nil {
		return nil, fmt.Errorf("gateway: join query path: %w", err)
	}
	statsPath, err := joinURLPath(options.basePath, options.statsPath)
	if err != nil {
		return nil, fmt.Errorf("gateway: join stats path: %w", err)
	}
	manualPath, err := joinURLPath(options.basePath, options.manualPath)
	if err != nil {
		return nil, fmt.Errorf("gateway: join manual path: %w", err)
	}

	s := &Server{
		basePath:     options.basePath,
		queryPath:    queryPath,
		statsPath:    statsPath,
		manualPath:   manualPath,
		healthPath:   options.healthPath,
		maxBodyBytes: options.maxBodyBytes,
		handlerImpl:  h,
		metrics:      metrics,
		doc:          doc,
	}

	mux := http.NewServeMux()
	s.setupRoutes(mux)
	s.handler = mux
	return s, nil
}

// Handler returns the HTTP handler for the gateway server.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// QueryPath returns the full path for the query endpoint.
func (s *Server) QueryPath() string {
	return s.queryPath
}

// StatsPath returns the full path for the cache stats endpoint.
func (s *Server) StatsPath() string {
	return s.statsPath
}

// ManualPath returns the full path for the manual info endpoint.
func (s *Server) ManualPath() string {
	return s.manualPath
}

// HealthPath returns the health check endpoint path.
func (s *Server) HealthPath() string {
	return s.healthPath
}

func (s *Server) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc(s.queryPath, s.handleQuery)
	mux.HandleFunc(s.statsPath, s.handleStats)
	mux.HandleFunc(s.manualPath, s.handleManual)
	mux.HandleFunc(s.healthPath, s.handleHealth)
}

func joinURLPath(basePath, path string) (string, error) {
	return url.JoinPath(basePath, path)
}

type queryRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id,omitempty"`
}

type apiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error *apiError `json:"error"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set(headerAllow, http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req queryRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(w, apiError{
			Type:    errTypeInvalidRequest,
			Message: err.Error(),
		}, http.StatusBadRequest)
		return
	}

	if strings.TrimSpace(req.Query) == "" {
		s.writeError(w, apiError{
			Type:    errTypeInvalidRequest,
			Message: "missing query",
		}, http.StatusBadRequest)
		return
	}

	result, err := s.handlerImpl.HandleQuery(r.Context(), strings.TrimSpace(req.SessionID), req.Query)
	if err != nil {
		log.Warnf("gateway: query failed: %v", err)
		s.writeError(w, apiError{
			Type:    errTypeInternal,
			Message: err.Error(),
		}, http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, result, http.StatusOK)
}

type noDataResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set(headerAllow, http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	report, ok := s.metrics.Report()
	if !ok {
		s.writeJSON(w, noDataResponse{Status: "no requests recorded"}, http.StatusOK)
		return
	}
	s.writeJSON(w, report, http.StatusOK)
}

type manualInfoResponse struct {
	Hash        string           `json:"hash"`
	LengthChars int              `json:"length_chars"`
	Sections    []manual.Section `json:"sections,omitempty"`
}

func (s *Server) handleManual(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set(headerAllow, http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.writeJSON(w, manualInfoResponse{
		Hash:        s.doc.Hash(),
		LengthChars: len(s.doc.Content()),
		Sections:    s.doc.Sections(),
	}, http.StatusOK)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set(headerAllow, http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set(headerContentType, contentTypeJSON)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) decodeJSON(r *http.Request, target any) error {
	if r == nil {
		return errors.New("nil request")
	}
	reader := io.LimitReader(r.Body, s.maxBodyBytes)
	decoder := json.NewDecoder(reader)
	if err := decoder.Decode(target); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, payload any, status int) {
	w.Header().Set(headerContentType, contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) writeError(w http.ResponseWriter, err apiError, status int) {
	s.writeJSON(w, errorResponse{Error: &err}, status)
}
