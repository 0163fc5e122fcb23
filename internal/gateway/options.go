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

import "strings"

type options struct {
	basePath   string
	queryPath  string
	statsPath  string
	manualPath string
	healthPath string

	maxBodyBytes int64
}

// Option is a function that configures a gateway server.
type Option func(*options)

func newOptions(opts ...Option) options {
	o := options{
		basePath:     defaultBasePath,
		queryPath:    defaultQueryPath,
		statsPath:    defaultStatsPath,
		manualPath:   defaultManualPath,
		healthPath:   defaultHealthPath,
		maxBodyBytes: defaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if strings.TrimSpace(o.basePath) == "" {
		o.basePath = defaultBasePath
	}
	if strings.TrimSpace(o.queryPath) == "" {
		o.queryPath = defaultQueryPath
	}
	if strings.TrimSpace(o.statsPath) == "" {
		o.statsPath = defaultStatsPath
	}
	if strings.TrimSpace(o.manualPath) == "" {
		o.manualPath = defaultManualPath
	}
	if strings.TrimSpace(o.healthPath) == "" {
		o.healthPath = defaultHealthPath
	}
	if o.maxBodyBytes <= 0 {
		o.maxBodyBytes = defaultMaxBodyBytes
	}
	return o
}

// WithBasePath sets the base path for all endpoints except health.
func WithBasePath(basePath string) Option {
	return func(o *options) {
		o.basePath = basePath
	}
}

// WithQueryPath sets the relative path for the query endpoint.
func WithQueryPath(path string) Option {
	return func(o *options) {
		o.queryPath = path
	}
}

// WithStatsPath sets the relative path for the cache stats endpoint.
func WithStatsPath(path string) Option {
	return func(o *options) {
		o.statsPath = path
	}
}

// WithManualPath sets the relative path for the manual info endpoint.
func WithManualPath(path string) Option {
	return func(o *options) {
		o.manualPath = path
	}
}

// WithHealthPath sets the health check endpoint path.
func WithHealthPath(path string) Option {
	return func(o *options) {
		o.healthPath = path
	}
}

// WithMaxBodyBytes sets the maximum bytes to read from an HTTP body.
func WithMaxBodyBytes(max int64) Option {
	return func(o *options) {
		o.maxBodyBytes = max
	}
}
