//
// Tencent is pleased to support the open source community by making
// trpc-prefixcache-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-prefixcache-go is licensed under the Apache License Version 2.0.
//
//

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "http://localhost:8000/v1", cfg.VLLMBaseURL)
	require.Equal(t, "Qwen/Qwen3-30B-A3B-Instruct-2507", cfg.VLLMModel)
	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, "0.0.0.0:8080", cfg.Addr)
	require.Equal(t, 0.5, cfg.HitThreshold)
	require.False(t, cfg.UseSegmenter)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `vllm:
  base_url: http://vllm.internal:8000/v1
  model: some/other-model
log_level: debug
hit_threshold: 0.4
use_segmenter: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "http://vllm.internal:8000/v1", cfg.VLLMBaseURL)
	require.Equal(t, "some/other-model", cfg.VLLMModel)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, 0.4, cfg.HitThreshold)
	require.True(t, cfg.UseSegmenter)
	// Keys absent from the file keep their defaults.
	require.Equal(t, "0.0.0.0:8080", cfg.Addr)
	require.Equal(t, "data/sessions.db", cfg.SessionDBPath)
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("addr: 127.0.0.1:9999\n"), 0o644))

	t.Setenv("API_ADDR", "127.0.0.1:7777")
	t.Setenv("HIT_THRESHOLD", "0.35")
	t.Setenv("VLLM_API_KEY", "secret")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:7777", cfg.Addr)
	require.Equal(t, 0.35, cfg.HitThreshold)
	require.Equal(t, "secret", cfg.VLLMAPIKey)
}

func TestLoad_BadEnvValue(t *testing.T) {
	t.Setenv("HIT_THRESHOLD", "not-a-number")

	_, err := Load("")
	require.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "no_such.yaml"))
	require.Error(t, err)
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(":\n  - not yaml"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}
