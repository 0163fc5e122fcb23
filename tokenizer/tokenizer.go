//
// Tencent is pleased to support the open source community by making
// trpc-prefixcache-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-prefixcache-go is licensed under the Apache License Version 2.0.
//
//

// Package tokenizer provides token-count estimation for prompt text.
//
// Chunk-alignment diagnostics need a token count, but the remote server's
// tokenizer is not available to this client. Callers must not assume
// exactness from any Counter.
package tokenizer

import (
	"fmt"

	"github.com/go-ego/gse"
)

// charsPerToken is the heuristic used when no segmenter is available.
// Conservative for English text and compatible with most tokenizers.
const charsPerToken = 4

// Counter estimates the number of tokens in text.
type Counter interface {
	Count(text string) int
}

// Approximate estimates tokens from character count (len/4).
// This is the default; it never fails and needs no dictionary.
type Approximate struct{}

// Count implements Counter.
func (Approximate) Count(text string) int {
	return len(text) / charsPerToken
}

// Segmenter counts tokens by running gse word segmentation.
// Closer to a real tokenizer than the character heuristic, still not
// guaranteed to match the remote model's vocabulary.
type Segmenter struct {
	seg gse.Segmenter
}

// NewSegmenter loads the default gse dictionary.
func NewSegmenter() (*Segmenter, error) {
	s := &Segmenter{}
	if err := s.seg.LoadDict(); err != nil {
		return nil, fmt.Errorf("load gse dictionary: %w", err)
	}
	return s, nil
}

// Count implements Counter.
func (s *Segmenter) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(s.seg.Cut(text, true))
}

// Default returns the counter used when none is configured.
func Default() Counter {
	return Approximate{}
}
