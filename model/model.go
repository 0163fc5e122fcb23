//
// Tencent is pleased to support the open source community by making
// trpc-prefixcache-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-prefixcache-go is licensed under the Apache License Version 2.0.
//
//

// Package model defines the message types and the completion interface
// implemented by concrete LLM backends.
package model

import (
	"context"
	"time"
)

// Standard message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is a single turn in a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// NewUserMessage creates a user message.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewAssistantMessage creates an assistant message.
func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// Response is the result of a completion call.
type Response struct {
	// Text is the full generated output.
	Text string
	// TimeToFirstToken is the wall-clock duration from dispatch to the
	// first streamed chunk. Cache-hit inference is built on this value.
	TimeToFirstToken time.Duration
	// Elapsed is the total wall-clock duration of the call.
	Elapsed time.Duration
}

// Model is an opaque text-completion service.
//
// Implementations own network dispatch, streaming and retry policy. The
// prompt is sent as a single flat string so that the remote prefix cache
// sees exactly the bytes the builder produced.
type Model interface {
	Complete(ctx context.Context, prompt string) (*Response, error)
}
