//
// Tencent is pleased to support the open source community by making
// trpc-prefixcache-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-prefixcache-go is licensed under the Apache License Version 2.0.
//
//

// Package openai implements model.Model against an OpenAI-compatible
// endpoint (a remote vLLM server in the intended deployment).
//
// The call is always streamed so that the time to the first generated
// chunk can be measured: that duration is the cache-inference signal the
// rest of the system runs on.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"trpc.group/trpc-go/trpc-prefixcache-go/log"
	"trpc.group/trpc-go/trpc-prefixcache-go/model"
)

const (
	defaultTemperature = 0.7
	defaultMaxTokens   = 2048

	// Retry policy for transient network failures only. Classified
	// errors from the model (4xx) are never retried.
	defaultMaxAttempts = 3
	retryBaseDelay     = time.Second
	retryMaxDelay      = 10 * time.Second
)

var _ model.Model = (*Model)(nil)

// Model is a streaming chat-completions client.
type Model struct {
	name        string
	client      sdk.Client
	temperature float64
	maxTokens   int64
	maxAttempts int
}

// Option configures a Model.
type Option func(*options)

type options struct {
	baseURL     string
	apiKey      string
	temperature float64
	maxTokens   int64
	maxAttempts int
}

// WithBaseURL sets the endpoint base URL.
func WithBaseURL(url string) Option {
	return func(o *options) { o.baseURL = url }
}

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(o *options) { o.apiKey = key }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(o *options) { o.temperature = t }
}

// WithMaxTokens sets the completion token limit.
func WithMaxTokens(n int64) Option {
	return func(o *options) { o.maxTokens = n }
}

// WithMaxAttempts sets the total attempt count for transient failures.
func WithMaxAttempts(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

// New creates a Model for the named remote model.
func New(name string, opts ...Option) *Model {
	o := options{
		temperature: defaultTemperature,
		maxTokens:   defaultMaxTokens,
		maxAttempts: defaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(&o)
	}

	var reqOpts []option.RequestOption
	if o.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(o.baseURL))
	}
	reqOpts = append(reqOpts, option.WithAPIKey(o.apiKey))

	return &Model{
		name:        name,
		client:      sdk.NewClient(reqOpts...),
		temperature: o.temperature,
		maxTokens:   o.maxTokens,
		maxAttempts: o.maxAttempts,
	}
}

// Complete streams a completion for the prompt, measuring TTFT as the
// wall-clock time from dispatch to the first content chunk.
func (m *Model) Complete(ctx context.Context, promptText string) (*model.Response, error) {
	var lastErr error
	for attempt := 0; attempt < m.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(attempt)
			log.Warnf("model: transient error, retrying in %s (attempt %d/%d): %v",
				delay, attempt+1, m.maxAttempts, lastErr)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		resp, err := m.completeOnce(ctx, promptText)
		if err == nil {
			return resp, nil
		}
		if !isTransient(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("complete after %d attempts: %w", m.maxAttempts, lastErr)
}

func (m *Model) completeOnce(ctx context.Context, promptText string) (*model.Response, error) {
	start := time.Now()

	stream := m.client.Chat.Completions.NewStreaming(ctx, sdk.ChatCompletionNewParams{
		Model: sdk.ChatModel(m.name),
		Messages: []sdk.ChatCompletionMessageParamUnion{
			sdk.UserMessage(promptText),
		},
		Temperature: sdk.Float(m.temperature),
		MaxTokens:   sdk.Int(m.maxTokens),
	})
	defer stream.Close()

	var (
		sb   strings.Builder
		ttft time.Duration
	)
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		if ttft == 0 {
			ttft = time.Since(start)
		}
		sb.WriteString(delta)
	}
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("stream completion: %w", err)
	}

	elapsed := time.Since(start)
	if ttft == 0 {
		// No content chunk arrived; treat the whole call as the first
		// token latency so the sample is still recordable.
		ttft = elapsed
	}

	return &model.Response{
		Text:             sb.String(),
		TimeToFirstToken: ttft,
		Elapsed:          elapsed,
	}, nil
}

func backoffDelay(attempt int) time.Duration {
	delay := retryBaseDelay << uint(attempt-1)
	if delay > retryMaxDelay {
		delay = retryMaxDelay
	}
	return delay
}

// isTransient reports whether the error is worth retrying: network
// failures, timeouts, rate limiting and server-side errors.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var opErr *net.OpError
	return errors.As(err, &opErr)
}
