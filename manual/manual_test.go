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
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-prefixcache-go/model"
)

func TestNormalize_Idempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"",
		"plain text",
		"\uFEFFbom prefixed",
		"trailing spaces   \nand tabs\t\t\nkept",
		"windows\r\nline\r\nendings",
		"old mac\rline\rendings",
		"mixed   \r\n\uFEFF inner bom\t\r\n",
		strings.Repeat("long line with trailing   \n", 100),
	}

	for _, input := range inputs {
		once := Normalize(input)
		require.Equal(t, once, Normalize(once), "normalize must be idempotent for %q", input)
	}
}

func TestNormalize_Canonicalizes(t *testing.T) {
	t.Parallel()

	require.Equal(t, "a\nb", Normalize("a  \r\nb\t"))
	require.Equal(t, "bom", Normalize("\uFEFFbom"))
	require.Equal(t, "", Normalize(""))
	require.Equal(t, "a\n\nb", Normalize("a\r\n\r\nb"))
}

func TestNormalize_EqualInputsHashEqual(t *testing.T) {
	t.Parallel()

	a := New("Section 1   \r\nBody text\t\r\n")
	b := New("\uFEFFSection 1\nBody text\n")
	require.Equal(t, a.Content(), b.Content())
	require.Equal(t, a.Hash(), b.Hash())
}

func TestFlattenMessages(t *testing.T) {
	t.Parallel()

	messages := []model.Message{
		{Role: "user", Content: "  hello  "},
		{Role: "assistant", Content: ""},
		{Role: "assistant", Content: "world"},
		{Role: "", Content: "anon"},
	}

	got := FlattenMessages(messages)
	require.Equal(t, "USER: hello\n\nASSISTANT: world\n\nUNKNOWN: anon", got)

	require.Equal(t, "", FlattenMessages(nil))
}

func TestHash_DeterministicAndShort(t *testing.T) {
	t.Parallel()

	h1 := Hash("same input")
	h2 := Hash("same input")
	require.Equal(t, h1, h2)
	require.Len(t, h1, 16)
	require.NotEqual(t, h1, Hash("other input"))
}

func TestLoad_MissingFileUsesPlaceholder(t *testing.T) {
	t.Parallel()

	doc := Load(filepath.Join(t.TempDir(), "nope.txt"))
	require.Equal(t, Normalize(PlaceholderContent), doc.Content())
}

func TestLoad_ReadsAndNormalizes(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "manual.txt")
	require.NoError(t, os.WriteFile(path, []byte("# Manual   \r\nline one\t\r\n"), 0o600))

	doc := Load(path)
	require.Equal(t, "# Manual\nline one\n", doc.Content())
	require.Len(t, doc.Hash(), 16)
}

func TestDocument_Excerpt(t *testing.T) {
	t.Parallel()

	doc := New(strings.Repeat("x", 200))
	require.Equal(t, strings.Repeat("x", 100)+"...", doc.Excerpt(100))

	short := New("short")
	require.Equal(t, "short", short.Excerpt(100))
}

func TestDocument_Sections(t *testing.T) {
	t.Parallel()

	doc := New("# Operations\n\nintro\n\n## Startup\n\nsteps\n\n## Shutdown\n\nmore\n")
	sections := doc.Sections()
	require.Len(t, sections, 3)
	require.Equal(t, Section{Level: 1, Title: "Operations"}, sections[0])
	require.Equal(t, Section{Level: 2, Title: "Startup"}, sections[1])
	require.Equal(t, Section{Level: 2, Title: "Shutdown"}, sections[2])

	require.Empty(t, New("no headings at all").Sections())
}
