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

import (
	"context"
	"fmt"
	"strings"
)

const (
	defaultTableName = "turns"

	sqlCreateTurnsTable = `
CREATE TABLE IF NOT EXISTS {{TABLE_NAME}} (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  session_id TEXT NOT NULL,
  turn_data BLOB NOT NULL,
  created_at INTEGER NOT NULL
);`

	sqlCreateTurnsSessionIndex = `
CREATE INDEX IF NOT EXISTS {{INDEX_NAME}}
ON {{TABLE_NAME}}(session_id, id);`
)

const indexSuffixSession = "session"

func (s *Service) initDB(ctx context.Context) error {
	tableSQL := strings.ReplaceAll(
		sqlCreateTurnsTable,
		"{{TABLE_NAME}}",
		s.tableName,
	)
	if _, err := s.db.ExecContext(ctx, tableSQL); err != nil {
		return fmt.Errorf("create table %s: %w", s.tableName, err)
	}

	indexName := fmt.Sprintf("idx_%s_%s", s.tableName, indexSuffixSession)
	indexSQL := strings.ReplaceAll(
		strings.ReplaceAll(sqlCreateTurnsSessionIndex, "{{INDEX_NAME}}", indexName),
		"{{TABLE_NAME}}",
		s.tableName,
	)
	if _, err := s.db.ExecContext(ctx, indexSQL); err != nil {
		return fmt.Errorf("create index %s: %w", indexName, err)
	}
	return nil
}
