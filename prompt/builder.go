//
// Tencent is pleased to support the open source community by making
// trpc-prefixcache-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-prefixcache-go is licensed under the Apache License Version 2.0.
//
//

package prompt

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"

	"trpc.group/trpc-go/trpc-prefixcache-go/log"
	"trpc.group/trpc-go/trpc-prefixcache-go/manual"
	"trpc.group/trpc-go/trpc-prefixcache-go/model"
	"trpc.group/trpc-go/trpc-prefixcache-go/tokenizer"
)

//go:embed templates/*.prompty
var defaultTemplates embed.FS

const fallbackExcerptLen = 100

// Builder produces deterministic prompts from one normalized reference
// document. Safe for concurrent use; the per-agent template cache is
// read-mostly and a racing first load at worst reloads redundantly.
type Builder struct {
	doc     *manual.Document
	counter tokenizer.Counter
	fsys    fs.FS
	root    string

	mu        sync.RWMutex
	templates map[string]*Template
}

// Option configures a Builder.
type Option func(*Builder)

// WithTemplatesDir loads per-agent templates from dir instead of the
// embedded defaults.
func WithTemplatesDir(dir string) Option {
	return func(b *Builder) {
		b.fsys = os.DirFS(dir)
		b.root = "."
	}
}

// WithTemplateFS loads per-agent templates from the given filesystem.
func WithTemplateFS(fsys fs.FS) Option {
	return func(b *Builder) {
		b.fsys = fsys
		b.root = "."
	}
}

// WithTokenCounter sets the token estimator used for prefix size
// diagnostics. Defaults to the approximate char-count heuristic.
func WithTokenCounter(c tokenizer.Counter) Option {
	return func(b *Builder) {
		b.counter = c
	}
}

// NewBuilder creates a Builder around the given document.
func NewBuilder(doc *manual.Document, opts ...Option) *Builder {
	b := &Builder{
		doc:       doc,
		counter:   tokenizer.Default(),
		fsys:      defaultTemplates,
		root:      "templates",
		templates: make(map[string]*Template),
	}
	for _, opt := range opts {
		opt(b)
	}

	log.Infof("prompt: builder initialized: manual len=%d chars, hash=%s, ~%d prefix tokens",
		len(doc.Content()), doc.Hash(), b.PrefixTokensEstimate())
	return b
}

// ManualHash returns the fingerprint of the normalized manual.
func (b *Builder) ManualHash() string {
	return b.doc.Hash()
}

// PrefixTokensEstimate returns the estimated token count of the manual
// portion of the cacheable prefix.
func (b *Builder) PrefixTokensEstimate() int {
	return b.counter.Count(b.doc.Content())
}

// Build composes the full prompt for an agent. A missing template
// degrades to a minimal deterministic fallback, never an error.
func (b *Builder) Build(agentName string, history []model.Message, query string) string {
	tmpl := b.template(agentName)
	if tmpl == nil {
		return b.fallback(agentName, query)
	}

	hydrated, err := tmpl.Hydrate(Inputs{
		ManualContent: b.doc.Content(),
		History:       FormatHistory(history),
		Query:         strings.TrimSpace(query),
	})
	if err != nil {
		log.Warnf("prompt: hydrate %s failed, using fallback: %v", agentName, err)
		return b.fallback(agentName, query)
	}

	// Hydration output may be flat text or a message list; both pass
	// through the same normalization so the result is one canonical
	// string in all cases.
	return manual.Normalize(hydrated.Flatten())
}

// FormatHistory renders conversation history deterministically: an empty
// history yields the fixed placeholder; otherwise "ROLE: content" lines
// joined by TurnBoundary, exactly once between adjacent turns.
func FormatHistory(history []model.Message) string {
	if len(history) == 0 {
		return HistoryPlaceholder
	}

	turns := make([]string, 0, len(history))
	for _, msg := range history {
		role := msg.Role
		if role == "" {
			role = "unknown"
		}
		turns = append(turns, fmt.Sprintf("%s: %s",
			strings.ToUpper(role), strings.TrimSpace(msg.Content)))
	}
	return strings.Join(turns, TurnBoundary)
}

func (b *Builder) fallback(agentName, query string) string {
	return fmt.Sprintf("Agent: %s\nQuery: %s\n\nManual snippet: %s",
		agentName, strings.TrimSpace(query), b.doc.Excerpt(fallbackExcerptLen))
}

// template returns the cached template for the agent, loading it on
// first use. A nil entry records a known-missing template.
func (b *Builder) template(agentName string) *Template {
	b.mu.RLock()
	tmpl, ok := b.templates[agentName]
	b.mu.RUnlock()
	if ok {
		return tmpl
	}

	tmpl = b.loadTemplate(agentName)

	b.mu.Lock()
	b.templates[agentName] = tmpl
	b.mu.Unlock()
	return tmpl
}

func (b *Builder) loadTemplate(agentName string) *Template {
	path := agentName + templateExt
	if b.root != "" && b.root != "." {
		path = b.root + "/" + path
	}

	data, err := fs.ReadFile(b.fsys, path)
	if err != nil {
		log.Warnf("prompt: template not found for agent %q: %v", agentName, err)
		return nil
	}

	tmpl, err := ParseTemplate(agentName, string(data))
	if err != nil {
		log.Warnf("prompt: %v", err)
		return nil
	}
	return tmpl
}
