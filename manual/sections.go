//
// Tencent is pleased to support the open source community by making
// trpc-prefixcache-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-prefixcache-go is licensed under the Apache License Version 2.0.
//
//

package manual

import (
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Section is one heading in the manual's markdown outline.
type Section struct {
	Level int    `json:"level"`
	Title string `json:"title"`
}

// Sections returns the markdown heading outline of the manual.
// Purely diagnostic; a manual without headings yields an empty slice.
func (d *Document) Sections() []Section {
	source := []byte(d.content)
	parsed := goldmark.New().Parser().Parse(text.NewReader(source))

	var sections []Section
	_ = ast.Walk(parsed, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		heading, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}
		sections = append(sections, Section{
			Level: heading.Level,
			Title: string(heading.Text(source)),
		})
		return ast.WalkSkipChildren, nil
	})
	return sections
}
