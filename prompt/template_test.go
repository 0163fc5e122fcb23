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
	"testing"

	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-prefixcache-go/model"
)

func TestParseTemplate_FrontMatter(t *testing.T) {
	t.Parallel()

	content := "---\nname: demo\ndescription: a demo template\n---\nBody {{.Query}}\n"
	tmpl, err := ParseTemplate("file_name", content)
	require.NoError(t, err)
	require.Equal(t, "demo", tmpl.Name)
	require.Equal(t, "a demo template", tmpl.Description)

	hydrated, err := tmpl.Hydrate(Inputs{Query: "q"})
	require.NoError(t, err)
	require.Empty(t, hydrated.Messages)
	require.Equal(t, "Body q\n", hydrated.Text)
}

func TestParseTemplate_NoFrontMatter(t *testing.T) {
	t.Parallel()

	tmpl, err := ParseTemplate("bare", "just {{.Query}}")
	require.NoError(t, err)
	require.Equal(t, "bare", tmpl.Name)

	hydrated, err := tmpl.Hydrate(Inputs{Query: "text"})
	require.NoError(t, err)
	require.Equal(t, "just text", hydrated.Text)
}

func TestParseTemplate_BadBody(t *testing.T) {
	t.Parallel()

	_, err := ParseTemplate("bad", "{{.Query")
	require.Error(t, err)
}

func TestHydrate_RoleSections(t *testing.T) {
	t.Parallel()

	content := "system:\nYou answer from the manual.\n\n{{.ManualContent}}\n\nuser:\n{{.Query}}\n"
	tmpl, err := ParseTemplate("roles", content)
	require.NoError(t, err)

	hydrated, err := tmpl.Hydrate(Inputs{
		ManualContent: "MANUAL BODY",
		Query:         "the question",
	})
	require.NoError(t, err)
	require.Len(t, hydrated.Messages, 2)
	require.Equal(t, model.RoleSystem, hydrated.Messages[0].Role)
	require.Contains(t, hydrated.Messages[0].Content, "MANUAL BODY")
	require.Equal(t, model.RoleUser, hydrated.Messages[1].Role)
	require.Equal(t, "the question", hydrated.Messages[1].Content)
}

func TestHydrate_RoleSectionsFlatten(t *testing.T) {
	t.Parallel()

	content := "system:\nsys text\nuser:\nuser text\n"
	tmpl, err := ParseTemplate("flat", content)
	require.NoError(t, err)

	hydrated, err := tmpl.Hydrate(Inputs{})
	require.NoError(t, err)
	require.Equal(t, "SYSTEM: sys text\n\nUSER: user text", hydrated.Flatten())
}

func TestSplitRoleSections_NoMarkers(t *testing.T) {
	t.Parallel()

	require.Nil(t, splitRoleSections("plain text\nwith lines\n"))
}

func TestSplitRoleSections_IgnoresInlineRoles(t *testing.T) {
	t.Parallel()

	// "USER: hello" style lines carry content after the colon and must
	// not start a new section.
	messages := splitRoleSections("system:\nUSER: hello stays here\n")
	require.Len(t, messages, 1)
	require.Contains(t, messages[0].Content, "USER: hello stays here")
}
