//
// Tencent is pleased to support the open source community by making
// trpc-prefixcache-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-prefixcache-go is licensed under the Apache License Version 2.0.
//
//

// Package session defines the conversation-history service consumed by
// the orchestration layer for multi-turn prompts.
package session

import (
	"context"

	"trpc.group/trpc-go/trpc-prefixcache-go/model"
)

// Service stores ordered conversation turns per session. Order must be
// preserved exactly: the formatted history is part of the prompt and any
// reordering changes the prompt bytes.
type Service interface {
	// GetHistory returns all turns for the session, oldest first.
	GetHistory(ctx context.Context, sessionID string) ([]model.Message, error)
	// AppendHistory appends turns to the session in the given order.
	AppendHistory(ctx context.Context, sessionID string, messages ...model.Message) error
	// Close releases the underlying storage.
	Close() error
}
