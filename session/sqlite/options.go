//
// Tencent is pleased to support the open source community by making
// trpc-prefixcache-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-prefixcache-go is licensed under the Apache License Version 2.0.
//
//

package sqlite

import "time"

const defaultDBInitTimeout = 30 * time.Second

var defaultOptions = ServiceOpts{
	tableName: defaultTableName,
}

// ServiceOpts is the options for the sqlite session service.
type ServiceOpts struct {
	tableName string

	// historyLimit caps the number of most recent turns returned by
	// GetHistory. Zero means unlimited.
	historyLimit int

	// skipDBInit skips table and index creation.
	skipDBInit bool
}

// ServiceOpt is the option for the sqlite session service.
type ServiceOpt func(*ServiceOpts)

// WithTableName sets the table name for storing conversation turns.
func WithTableName(name string) ServiceOpt {
	return func(o *ServiceOpts) {
		if name != "" {
			o.tableName = name
		}
	}
}

// WithHistoryLimit caps how many recent turns GetHistory returns.
func WithHistoryLimit(limit int) ServiceOpt {
	return func(o *ServiceOpts) {
		if limit > 0 {
			o.historyLimit = limit
		}
	}
}

// WithSkipDBInit skips database initialization.
func WithSkipDBInit(skip bool) ServiceOpt {
	return func(o *ServiceOpts) {
		o.skipDBInit = skip
	}
}
