//
// Tencent is pleased to support the open source community by making
// trpc-prefixcache-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-prefixcache-go is licensed under the Apache License Version 2.0.
//
//

// Package cache infers remote KV-cache hits from client-observed latency.
//
// The client has no access to the remote server's cache state. What it can
// observe is Time-To-First-Token: a request whose prefix was already cached
// starts streaming much sooner than one that forced the server to recompute
// the whole prefix. The Metrics engine classifies each request against the
// first-ever (cold) request's TTFT and verifies that every call site
// presents an identical cacheable prefix, the precondition for any hit.
package cache

import (
	"strings"
	"sync"
	"time"

	"trpc.group/trpc-go/trpc-prefixcache-go/log"
	"trpc.group/trpc-go/trpc-prefixcache-go/manual"
	"trpc.group/trpc-go/trpc-prefixcache-go/prompt"
	"trpc.group/trpc-go/trpc-prefixcache-go/tokenizer"
)

const (
	// defaultHitThreshold classifies a request as a hit when its TTFT is
	// strictly below this fraction of the cold baseline. Coarse on
	// purpose: it trades false negatives for low false-positive risk on
	// a noisy signal.
	defaultHitThreshold = 0.5

	// fallbackPrefixChars bounds the fingerprinted slice when a prompt
	// carries no end marker. Roughly the whole cacheable region.
	fallbackPrefixChars = 100000

	// rollingWindow is the sample count for the display-only rolling
	// average TTFT.
	rollingWindow = 10
)

// Sample is one completed request observation. Immutable once recorded.
type Sample struct {
	Agent      string
	TTFT       float64
	PrefixHash string
	Timestamp  time.Time
}

// PreDispatchReport describes a request about to be sent.
type PreDispatchReport struct {
	Agent                string    `json:"agent"`
	PrefixHash           string    `json:"prefix_hash"`
	PrefixChars          int       `json:"prefix_length_chars"`
	PrefixTokensEstimate int       `json:"prefix_length_tokens_est"`
	ChunkAligned         bool      `json:"is_chunk_aligned"`
	TotalPromptChars     int       `json:"total_prompt_length"`
	Aligned              bool      `json:"cache_aligned"`
	Timestamp            time.Time `json:"timestamp"`
}

// CompletionReport describes a completed request.
type CompletionReport struct {
	Agent         string  `json:"agent"`
	TTFTSeconds   float64 `json:"ttft_seconds"`
	ColdBaseline  float64 `json:"cold_cache_baseline"`
	Ratio         float64 `json:"ttft_ratio"`
	CacheHit      bool    `json:"is_cache_hit_inferred"`
	AvgTTFTLast10 float64 `json:"avg_ttft_last_10"`
	TotalRequests int     `json:"total_requests"`
}

// Report is the aggregate cache-efficiency summary.
type Report struct {
	TotalRequests      int     `json:"total_requests"`
	ColdBaseline       float64 `json:"cold_cache_baseline_seconds"`
	HitRate            float64 `json:"inferred_cache_hit_rate"`
	UniquePrefixHashes int     `json:"unique_prefix_hashes"`
	AlignmentOK        bool    `json:"prefix_alignment_ok"`
	MinTTFT            float64 `json:"min_ttft_seconds"`
	AvgTTFT            float64 `json:"avg_ttft_seconds"`
	MaxTTFT            float64 `json:"max_ttft_seconds"`
	Recommendation     string  `json:"recommendation"`
}

// Observer receives derived values for export to external telemetry.
// Implementations must not block.
type Observer interface {
	ObserveRequest(agent string, ttftSeconds float64, firstSample, hit bool)
	ObservePrefixMismatch(agent string)
	ObserveBaseline(seconds float64)
	ObserveHitRate(rate float64)
}

// Metrics is the process-wide cache-inference engine. All methods are
// safe for concurrent use; one mutex guards the whole aggregate and is
// never held across I/O.
type Metrics struct {
	hitThreshold float64
	counter      tokenizer.Counter
	observer     Observer

	mu                 sync.Mutex
	samples            []Sample
	coldBaseline       float64
	baselineSet        bool
	expectedPrefixHash string
	seenHashes         map[string]struct{}
}

// Option configures a Metrics engine.
type Option func(*Metrics)

// WithHitThreshold overrides the TTFT ratio below which a request counts
// as a cache hit. The comparison is strict.
func WithHitThreshold(threshold float64) Option {
	return func(m *Metrics) {
		if threshold > 0 {
			m.hitThreshold = threshold
		}
	}
}

// WithTokenCounter sets the estimator used for chunk-alignment checks.
func WithTokenCounter(c tokenizer.Counter) Option {
	return func(m *Metrics) {
		m.counter = c
	}
}

// WithObserver attaches a telemetry observer.
func WithObserver(o Observer) Option {
	return func(m *Metrics) {
		m.observer = o
	}
}

// NewMetrics creates an empty engine. State resets only with the process.
func NewMetrics(opts ...Option) *Metrics {
	m := &Metrics{
		hitThreshold: defaultHitThreshold,
		counter:      tokenizer.Default(),
		seenHashes:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// LogRequestStart fingerprints the cacheable prefix of an outgoing prompt
// and checks it against the first-observed fingerprint. A mismatch means
// the remote cache cannot be reused for this request regardless of any
// TTFT evidence.
func (m *Metrics) LogRequestStart(agentName, promptText string) PreDispatchReport {
	prefixEnd := strings.Index(promptText, prompt.EndMarker)
	if prefixEnd == -1 {
		prefixEnd = len(promptText)
		if prefixEnd > fallbackPrefixChars {
			prefixEnd = fallbackPrefixChars
		}
	}
	cacheablePrefix := promptText[:prefixEnd]
	prefixHash := manual.Hash(cacheablePrefix)

	m.mu.Lock()
	var aligned bool
	if m.expectedPrefixHash == "" {
		m.expectedPrefixHash = prefixHash
		aligned = true
	} else {
		aligned = prefixHash == m.expectedPrefixHash
	}
	expected := m.expectedPrefixHash
	m.mu.Unlock()

	if aligned {
		log.Debugf("cache: agent=%s prefix_hash=%s aligned", agentName, prefixHash)
	} else {
		log.Warnf("cache: prefix mismatch for agent=%s: expected=%s got=%s, cache will not be reused",
			agentName, expected, prefixHash)
		if m.observer != nil {
			m.observer.ObservePrefixMismatch(agentName)
		}
	}

	return PreDispatchReport{
		Agent:                agentName,
		PrefixHash:           prefixHash,
		PrefixChars:          len(cacheablePrefix),
		PrefixTokensEstimate: m.counter.Count(cacheablePrefix),
		ChunkAligned:         m.checkChunkAlignment(cacheablePrefix),
		TotalPromptChars:     len(promptText),
		Aligned:              aligned,
		Timestamp:            time.Now().UTC(),
	}
}

// checkChunkAlignment reports whether the prefix ends on a cache chunk
// boundary. Informational only; misalignment never blocks a request.
func (m *Metrics) checkChunkAlignment(text string) bool {
	tokens := m.counter.Count(text)
	aligned := tokens%prompt.ChunkSize == 0
	if !aligned {
		remainder := tokens % prompt.ChunkSize
		log.Debugf("cache: prefix not chunk-aligned: ~%d tokens (remainder=%d, need %d more)",
			tokens, remainder, prompt.ChunkSize-remainder)
	}
	return aligned
}

// LogRequestComplete records the observed TTFT for a dispatched request
// and classifies it. The first-ever sample is axiomatically cold: it sets
// the baseline and is never a hit.
func (m *Metrics) LogRequestComplete(agentName, prefixHash string, ttftSeconds float64) CompletionReport {
	m.mu.Lock()

	m.samples = append(m.samples, Sample{
		Agent:      agentName,
		TTFT:       ttftSeconds,
		PrefixHash: prefixHash,
		Timestamp:  time.Now().UTC(),
	})
	m.seenHashes[prefixHash] = struct{}{}

	var (
		firstSample bool
		hit         bool
		ratio       = 1.0
	)
	if !m.baselineSet {
		m.coldBaseline = ttftSeconds
		m.baselineSet = true
		firstSample = true
	} else if m.coldBaseline > 0 {
		ratio = ttftSeconds / m.coldBaseline
		hit = ratio < m.hitThreshold
	}

	baseline := m.coldBaseline
	total := len(m.samples)
	avg := m.rollingAverageLocked()
	hitRate := m.hitRateLocked()
	m.mu.Unlock()

	if firstSample {
		log.Infof("cache: cold baseline established: %.2fs", ttftSeconds)
	} else {
		status := "MISS"
		if hit {
			status = "HIT"
		}
		log.Infof("cache: agent=%s ttft=%.2fs ratio=%.2f -> %s", agentName, ttftSeconds, ratio, status)
	}

	if m.observer != nil {
		m.observer.ObserveRequest(agentName, ttftSeconds, firstSample, hit)
		if firstSample {
			m.observer.ObserveBaseline(baseline)
		}
		m.observer.ObserveHitRate(hitRate)
	}

	return CompletionReport{
		Agent:         agentName,
		TTFTSeconds:   ttftSeconds,
		ColdBaseline:  baseline,
		Ratio:         ratio,
		CacheHit:      hit,
		AvgTTFTLast10: avg,
		TotalRequests: total,
	}
}

// Report summarizes cache efficiency. ok is false while no samples have
// been recorded; callers must check it before reading the report.
func (m *Metrics) Report() (Report, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.samples) == 0 {
		return Report{}, false
	}

	minTTFT := m.samples[0].TTFT
	maxTTFT := m.samples[0].TTFT
	var sum float64
	for _, s := range m.samples {
		if s.TTFT < minTTFT {
			minTTFT = s.TTFT
		}
		if s.TTFT > maxTTFT {
			maxTTFT = s.TTFT
		}
		sum += s.TTFT
	}

	unique := len(m.seenHashes)
	alignmentOK := unique == 1

	recommendation := "prefix is aligned - cache should be effective"
	if !alignmentOK {
		recommendation = "multiple prefix hashes observed - cache is being busted, check prompt normalization"
	}

	return Report{
		TotalRequests:      len(m.samples),
		ColdBaseline:       m.coldBaseline,
		HitRate:            m.hitRateLocked(),
		UniquePrefixHashes: unique,
		AlignmentOK:        alignmentOK,
		MinTTFT:            minTTFT,
		AvgTTFT:            sum / float64(len(m.samples)),
		MaxTTFT:            maxTTFT,
		Recommendation:     recommendation,
	}, true
}

// hitRateLocked computes hits/(total-1), excluding the always-cold first
// sample. Zero while fewer than two samples exist. Caller holds mu.
func (m *Metrics) hitRateLocked() float64 {
	if len(m.samples) < 2 || !m.baselineSet || m.coldBaseline <= 0 {
		return 0
	}
	hits := 0
	for _, s := range m.samples[1:] {
		if s.TTFT < m.coldBaseline*m.hitThreshold {
			hits++
		}
	}
	return float64(hits) / float64(len(m.samples)-1)
}

// rollingAverageLocked averages the most recent samples. Caller holds mu.
func (m *Metrics) rollingAverageLocked() float64 {
	n := len(m.samples)
	if n == 0 {
		return 0
	}
	start := n - rollingWindow
	if start < 0 {
		start = 0
	}
	var sum float64
	for _, s := range m.samples[start:] {
		sum += s.TTFT
	}
	return sum / float64(n-start)
}
