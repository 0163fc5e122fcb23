//
// Tencent is pleased to support the open source community by making
// trpc-prefixcache-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-prefixcache-go is licensed under the Apache License Version 2.0.
//
//

// Package prompt builds deterministic prompts whose cacheable prefix is
// byte-identical across agents, so the remote KV cache can reuse the
// computed state for the shared reference document.
//
// The constants below are shared with the external cache server
// configuration and must match it exactly, or the chunk and alignment
// diagnostics reported by the cache package become meaningless.
package prompt

import (
	"trpc.group/trpc-go/trpc-prefixcache-go/manual"
	"trpc.group/trpc-go/trpc-prefixcache-go/model"
)

const (
	// ChunkSize is the cache chunk granularity in tokens, matching the
	// remote cache server configuration.
	ChunkSize = 256

	// TurnBoundary separates conversation turns in formatted history.
	// Must match the server's blend separator so multi-turn prefixes
	// stay reusable.
	TurnBoundary = "\n<<< TURN >>>\n"

	// EndMarker terminates the cacheable prefix. Everything that varies
	// per agent, history or query sits strictly after this marker.
	EndMarker = "<<< END OF MANUAL >>>"

	// HistoryPlaceholder stands in for an empty conversation history so
	// the prefix bytes stay stable on the first turn.
	HistoryPlaceholder = "(No previous conversation)"
)

// Inputs are the three named values a template is hydrated with.
type Inputs struct {
	ManualContent string
	History       string
	Query         string
}

// Hydrated is the tagged result of template hydration: either flat text
// or a structured message list, never both.
type Hydrated struct {
	Text     string
	Messages []model.Message
}

// Flatten reduces a Hydrated value to a single canonical string.
func (h Hydrated) Flatten() string {
	if len(h.Messages) > 0 {
		return manual.FlattenMessages(h.Messages)
	}
	return h.Text
}
