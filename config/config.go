//
// Tencent is pleased to support the open source community by making
// trpc-prefixcache-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-prefixcache-go is licensed under the Apache License Version 2.0.
//
//

// Package config loads service configuration from a YAML file, a .env
// file and environment variables, in increasing precedence.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the resolved service configuration.
type Config struct {
	// Remote OpenAI-compatible vLLM endpoint. The server side owns the
	// prefix cache; this client only shapes prompts and measures TTFT.
	VLLMBaseURL string
	VLLMAPIKey  string
	VLLMModel   string

	LogLevel string
	Addr     string

	// ManualPath points at the reference document that becomes the
	// shared prefix for all agents.
	ManualPath string
	// TemplatesDir overrides the embedded agent templates when set.
	TemplatesDir string
	// SessionDBPath is the SQLite file for conversation history.
	SessionDBPath string

	// HitThreshold is the TTFT ratio below which a request is inferred
	// to be a cache hit.
	HitThreshold float64
	// UseSegmenter selects the segmenter-based token counter instead of
	// the char-count heuristic.
	UseSegmenter bool

	// OTLPEndpoint enables metric export when set ("host:port").
	OTLPEndpoint string
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		VLLMBaseURL:   "http://localhost:8000/v1",
		VLLMModel:     "Qwen/Qwen3-30B-A3B-Instruct-2507",
		LogLevel:      "info",
		Addr:          "0.0.0.0:8080",
		ManualPath:    "data/operations_manual.txt",
		SessionDBPath: "data/sessions.db",
		HitThreshold:  0.5,
	}
}

// fileConfig mirrors Config with pointer fields so that absent YAML keys
// leave defaults untouched.
type fileConfig struct {
	VLLM *struct {
		BaseURL *string `yaml:"base_url,omitempty"`
		APIKey  *string `yaml:"api_key,omitempty"`
		Model   *string `yaml:"model,omitempty"`
	} `yaml:"vllm,omitempty"`

	LogLevel *string `yaml:"log_level,omitempty"`
	Addr     *string `yaml:"addr,omitempty"`

	ManualPath    *string `yaml:"manual_path,omitempty"`
	TemplatesDir  *string `yaml:"templates_dir,omitempty"`
	SessionDBPath *string `yaml:"session_db_path,omitempty"`

	HitThreshold *float64 `yaml:"hit_threshold,omitempty"`
	UseSegmenter *bool    `yaml:"use_segmenter,omitempty"`

	OTLPEndpoint *string `yaml:"otlp_endpoint,omitempty"`
}

// Load resolves the configuration: defaults, then the YAML file at path
// (skipped when path is empty), then .env, then process environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}

	// Populates os.Environ from .env for the overrides below; a missing
	// .env file is not an error.
	_ = godotenv.Load()

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	if fc.VLLM != nil {
		setString(&cfg.VLLMBaseURL, fc.VLLM.BaseURL)
		setString(&cfg.VLLMAPIKey, fc.VLLM.APIKey)
		setString(&cfg.VLLMModel, fc.VLLM.Model)
	}
	setString(&cfg.LogLevel, fc.LogLevel)
	setString(&cfg.Addr, fc.Addr)
	setString(&cfg.ManualPath, fc.ManualPath)
	setString(&cfg.TemplatesDir, fc.TemplatesDir)
	setString(&cfg.SessionDBPath, fc.SessionDBPath)
	setString(&cfg.OTLPEndpoint, fc.OTLPEndpoint)
	if fc.HitThreshold != nil {
		cfg.HitThreshold = *fc.HitThreshold
	}
	if fc.UseSegmenter != nil {
		cfg.UseSegmenter = *fc.UseSegmenter
	}
	return nil
}

func applyEnv(cfg *Config) error {
	envString(&cfg.VLLMBaseURL, "VLLM_BASE_URL")
	envString(&cfg.VLLMAPIKey, "VLLM_API_KEY")
	envString(&cfg.VLLMModel, "VLLM_MODEL")
	envString(&cfg.LogLevel, "LOG_LEVEL")
	envString(&cfg.Addr, "API_ADDR")
	envString(&cfg.ManualPath, "MANUAL_PATH")
	envString(&cfg.TemplatesDir, "TEMPLATES_DIR")
	envString(&cfg.SessionDBPath, "SESSION_DB_PATH")
	envString(&cfg.OTLPEndpoint, "OTLP_ENDPOINT")

	if v, ok := os.LookupEnv("HIT_THRESHOLD"); ok {
		threshold, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("parse HIT_THRESHOLD: %w", err)
		}
		cfg.HitThreshold = threshold
	}
	if v, ok := os.LookupEnv("USE_SEGMENTER"); ok {
		use, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parse USE_SEGMENTER: %w", err)
		}
		cfg.UseSegmenter = use
	}
	return nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func envString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}
