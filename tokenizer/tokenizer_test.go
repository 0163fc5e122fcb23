//
// Tencent is pleased to support the open source community by making
// trpc-prefixcache-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-prefixcache-go is licensed under the Apache License Version 2.0.
//
//

package tokenizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestApproximate_Count(t *testing.T) {
	t.Parallel()

	c := Approximate{}
	require.Equal(t, 0, c.Count(""))
	require.Equal(t, 0, c.Count("abc"))
	require.Equal(t, 1, c.Count("abcd"))
	require.Equal(t, 256, c.Count(strings.Repeat("x", 1024)))
	require.Equal(t, 255, c.Count(strings.Repeat("x", 1023)))
}

func TestDefault_IsApproximate(t *testing.T) {
	t.Parallel()

	_, ok := Default().(Approximate)
	require.True(t, ok)
}
