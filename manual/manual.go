//
// Tencent is pleased to support the open source community by making
// trpc-prefixcache-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-prefixcache-go is licensed under the Apache License Version 2.0.
//
//

// Package manual loads and canonicalizes the reference document that forms
// the shared, cacheable prompt prefix.
//
// The remote prefix cache only applies when the prefix is byte-identical
// across requests, so the document is normalized exactly once at load time
// and never mutated afterwards.
package manual

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"unicode"

	"trpc.group/trpc-go/trpc-prefixcache-go/log"
	"trpc.group/trpc-go/trpc-prefixcache-go/model"
)

const (
	bom = "\uFEFF"

	// hashDisplayLen truncates the sha256 digest for display and
	// equality comparison. Not a security primitive.
	hashDisplayLen = 16
)

// PlaceholderContent is substituted when the configured manual file is
// missing or unreadable, so startup never fails on a bad path.
const PlaceholderContent = "# Placeholder Manual\nSection 1: No data found."

// Document is an immutable, normalized reference document.
type Document struct {
	raw     string
	content string
	hash    string
}

// New normalizes raw text into a Document.
func New(raw string) *Document {
	content := Normalize(raw)
	return &Document{
		raw:     raw,
		content: content,
		hash:    Hash(content),
	}
}

// Load reads the manual from path. A missing or unreadable file is
// recovered with PlaceholderContent, never an error.
func Load(path string) *Document {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Warnf("manual: read %s failed, using placeholder: %v", path, err)
		return New(PlaceholderContent)
	}
	doc := New(string(data))
	log.Infof("manual: loaded %s: len=%d chars, hash=%s", path, len(doc.content), doc.hash)
	return doc
}

// Raw returns the original text as read.
func (d *Document) Raw() string {
	return d.raw
}

// Content returns the normalized text.
func (d *Document) Content() string {
	return d.content
}

// Hash returns the truncated sha256 of the normalized content.
func (d *Document) Hash() string {
	return d.hash
}

// Excerpt returns the first n characters of the normalized content,
// suffixed with an ellipsis when truncated.
func (d *Document) Excerpt(n int) string {
	if n <= 0 || len(d.content) <= n {
		return d.content
	}
	return d.content[:n] + "..."
}

// Normalize canonicalizes text so that equal documents hash equally:
// strips a leading byte-order mark, removes trailing whitespace per line
// and joins with "\n". It is total and idempotent.
func Normalize(text string) string {
	if text == "" {
		return ""
	}

	text = strings.TrimPrefix(text, bom)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	lines := strings.Split(text, "\n")
	for i := range lines {
		lines[i] = strings.TrimRightFunc(lines[i], unicode.IsSpace)
	}
	return strings.Join(lines, "\n")
}

// FlattenMessages deterministically flattens structured conversational
// content to "ROLE: content" lines joined by blank lines, in input order.
// Turns whose content trims to empty are skipped.
func FlattenMessages(messages []model.Message) string {
	parts := make([]string, 0, len(messages))
	for _, msg := range messages {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		role := msg.Role
		if role == "" {
			role = "unknown"
		}
		parts = append(parts, fmt.Sprintf("%s: %s", strings.ToUpper(role), content))
	}
	return strings.Join(parts, "\n\n")
}

// Hash returns the truncated sha256 hex digest of text.
func Hash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])[:hashDisplayLen]
}
