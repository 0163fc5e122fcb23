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
	"errors"
	"fmt"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"trpc.group/trpc-go/trpc-prefixcache-go/model"
)

const templateExt = ".prompty"

var errNoFrontMatter = errors.New("no yaml front matter")

// knownRoles are the role section markers a template body may use to
// produce a structured message list instead of flat text.
var knownRoles = map[string]struct{}{
	model.RoleSystem:    {},
	model.RoleUser:      {},
	model.RoleAssistant: {},
}

type frontMatter struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// Template is a parsed per-agent prompt template.
type Template struct {
	Name        string
	Description string

	body *template.Template
}

// ParseTemplate parses a .prompty-style file: optional YAML front matter
// delimited by "---" lines, followed by a template body that references
// {{.ManualContent}}, {{.History}} and {{.Query}}.
func ParseTemplate(name, content string) (*Template, error) {
	fm, body, err := splitFrontMatter(content)
	if err != nil && !errors.Is(err, errNoFrontMatter) {
		return nil, fmt.Errorf("parse template %s: %w", name, err)
	}

	tmpl, err := template.New(name).Option("missingkey=error").Parse(body)
	if err != nil {
		return nil, fmt.Errorf("parse template %s body: %w", name, err)
	}

	t := &Template{
		Name:        fm.Name,
		Description: fm.Description,
		body:        tmpl,
	}
	if t.Name == "" {
		t.Name = name
	}
	return t, nil
}

// Hydrate fills the template with the given inputs. When the body uses
// role section markers ("system:", "user:", "assistant:" on their own
// line) the result is a message list; otherwise flat text.
func (t *Template) Hydrate(in Inputs) (Hydrated, error) {
	var sb strings.Builder
	if err := t.body.Execute(&sb, in); err != nil {
		return Hydrated{}, fmt.Errorf("hydrate template %s: %w", t.Name, err)
	}

	rendered := sb.String()
	if messages := splitRoleSections(rendered); len(messages) > 0 {
		return Hydrated{Messages: messages}, nil
	}
	return Hydrated{Text: rendered}, nil
}

func splitFrontMatter(content string) (frontMatter, string, error) {
	text := strings.ReplaceAll(content, "\r\n", "\n")
	if !strings.HasPrefix(text, "---\n") {
		return frontMatter{}, text, errNoFrontMatter
	}

	idx := strings.Index(text[4:], "\n---\n")
	if idx < 0 {
		return frontMatter{}, text, errNoFrontMatter
	}

	raw := text[4 : 4+idx]
	body := text[4+idx+len("\n---\n"):]

	var fm frontMatter
	if err := yaml.Unmarshal([]byte(raw), &fm); err != nil {
		return frontMatter{}, "", err
	}
	return fm, body, nil
}

// splitRoleSections splits rendered template text on role marker lines.
// Returns nil when the text contains no role markers.
func splitRoleSections(text string) []model.Message {
	lines := strings.Split(text, "\n")

	var (
		messages []model.Message
		role     string
		content  []string
	)

	flush := func() {
		if role == "" {
			return
		}
		messages = append(messages, model.Message{
			Role:    role,
			Content: strings.TrimSpace(strings.Join(content, "\n")),
		})
	}

	for _, line := range lines {
		marker := strings.TrimSuffix(strings.TrimSpace(line), ":")
		if _, ok := knownRoles[marker]; ok && strings.HasSuffix(strings.TrimSpace(line), ":") {
			flush()
			role = marker
			content = content[:0]
			continue
		}
		if role != "" {
			content = append(content, line)
		}
	}
	flush()

	return messages
}
