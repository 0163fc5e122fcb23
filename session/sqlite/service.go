//
// Tencent is pleased to support the open source community by making
// trpc-prefixcache-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-prefixcache-go is licensed under the Apache License Version 2.0.
//
//

// Package sqlite provides a SQLite-backed session history service.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver

	"trpc.group/trpc-go/trpc-prefixcache-go/model"
	"trpc.group/trpc-go/trpc-prefixcache-go/session"
)

var _ session.Service = (*Service)(nil)

// Service is the sqlite session history service.
type Service struct {
	opts      ServiceOpts
	db        *sql.DB
	tableName string
}

// Open opens (creating if needed) the sqlite database at path.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db %s: %w", path, err)
	}
	return db, nil
}

// NewService creates a new sqlite session service.
//
// The service owns the passed-in db and will close it in Close().
func NewService(db *sql.DB, options ...ServiceOpt) (*Service, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}

	opts := defaultOptions
	for _, option := range options {
		option(&opts)
	}

	s := &Service{
		opts:      opts,
		db:        db,
		tableName: opts.tableName,
	}

	if !opts.skipDBInit {
		ctx, cancel := context.WithTimeout(
			context.Background(),
			defaultDBInitTimeout,
		)
		defer cancel()
		if err := s.initDB(ctx); err != nil {
			return nil, fmt.Errorf("init database: %w", err)
		}
	}

	return s, nil
}

// GetHistory returns the session's turns, oldest first.
func (s *Service) GetHistory(ctx context.Context, sessionID string) ([]model.Message, error) {
	if sessionID == "" {
		return nil, errors.New("session id is empty")
	}

	query := fmt.Sprintf(
		"SELECT turn_data FROM %s WHERE session_id = ? ORDER BY id ASC",
		s.tableName,
	)
	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var history []model.Message
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		var msg model.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("decode turn: %w", err)
		}
		history = append(history, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}

	if s.opts.historyLimit > 0 && len(history) > s.opts.historyLimit {
		history = history[len(history)-s.opts.historyLimit:]
	}
	return history, nil
}

// AppendHistory appends turns in order inside one transaction.
func (s *Service) AppendHistory(ctx context.Context, sessionID string, messages ...model.Message) error {
	if sessionID == "" {
		return errors.New("session id is empty")
	}
	if len(messages) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	insert := fmt.Sprintf(
		"INSERT INTO %s (session_id, turn_data, created_at) VALUES (?, ?, ?)",
		s.tableName,
	)
	now := time.Now().UnixMilli()
	for _, msg := range messages {
		data, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("encode turn: %w", err)
		}
		if _, err := tx.ExecContext(ctx, insert, sessionID, data, now); err != nil {
			return fmt.Errorf("insert turn: %w", err)
		}
	}
	return tx.Commit()
}

// Close closes the underlying database.
func (s *Service) Close() error {
	return s.db.Close()
}
