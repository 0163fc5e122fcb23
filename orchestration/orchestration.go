//
// Tencent is pleased to support the open source community by making
// trpc-prefixcache-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-prefixcache-go is licensed under the Apache License Version 2.0.
//
//

// Package orchestration runs the router -> parallel agents -> aggregator
// flow on top of one shared prompt prefix.
//
// The router call warms the remote prefix cache; the selected agents are
// then dispatched together so the server can reuse the just-computed
// prefix state for all of them.
package orchestration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/panjf2000/ants/v2"

	"trpc.group/trpc-go/trpc-prefixcache-go/cache"
	"trpc.group/trpc-go/trpc-prefixcache-go/log"
	"trpc.group/trpc-go/trpc-prefixcache-go/model"
	"trpc.group/trpc-go/trpc-prefixcache-go/prompt"
	"trpc.group/trpc-go/trpc-prefixcache-go/session"
)

const (
	routerAgent  = "router"
	defaultAgent = "technical_specialist"

	defaultPoolSize = 8
)

var defaultAvailableAgents = []string{"technical_specialist", "compliance_auditor"}

// uncertaintyMarkers flag agent responses that need human review.
var uncertaintyMarkers = []string{
	"i'm not certain",
	"this may require verification",
	"please consult",
	"unclear from the manual",
	"the manual does not explicitly address",
}

// Orchestrator coordinates the multi-agent flow for one process.
type Orchestrator struct {
	builder  *prompt.Builder
	metrics  *cache.Metrics
	llm      model.Model
	sessions session.Service

	pool      *ants.Pool
	available map[string]struct{}
}

// Option configures an Orchestrator.
type Option func(*settings)

type settings struct {
	sessions  session.Service
	poolSize  int
	available []string
}

// WithSessionService enables multi-turn history.
func WithSessionService(s session.Service) Option {
	return func(o *settings) { o.sessions = s }
}

// WithPoolSize bounds concurrent agent dispatches.
func WithPoolSize(n int) Option {
	return func(o *settings) {
		if n > 0 {
			o.poolSize = n
		}
	}
}

// WithAvailableAgents overrides the agent set the router may select.
func WithAvailableAgents(agents []string) Option {
	return func(o *settings) {
		if len(agents) > 0 {
			o.available = agents
		}
	}
}

// New creates an Orchestrator.
func New(builder *prompt.Builder, metrics *cache.Metrics, llm model.Model, opts ...Option) (*Orchestrator, error) {
	if builder == nil || metrics == nil || llm == nil {
		return nil, errors.New("orchestration: builder, metrics and model are required")
	}

	s := settings{
		poolSize:  defaultPoolSize,
		available: defaultAvailableAgents,
	}
	for _, opt := range opts {
		opt(&s)
	}

	pool, err := ants.NewPool(s.poolSize)
	if err != nil {
		return nil, fmt.Errorf("orchestration: create pool: %w", err)
	}

	available := make(map[string]struct{}, len(s.available))
	for _, agent := range s.available {
		available[agent] = struct{}{}
	}

	return &Orchestrator{
		builder:   builder,
		metrics:   metrics,
		llm:       llm,
		sessions:  s.sessions,
		pool:      pool,
		available: available,
	}, nil
}

// Close releases the dispatch pool.
func (o *Orchestrator) Close() error {
	o.pool.Release()
	return nil
}

// Result is the aggregated outcome of one query.
type Result struct {
	SessionID        string            `json:"session_id"`
	Response         string            `json:"response"`
	Agents           []string          `json:"agents"`
	AgentResponses   map[string]string `json:"agent_responses"`
	ComplianceIssues []string          `json:"compliance_issues"`
	CompliancePassed bool              `json:"compliance_passed"`
	AvgTTFTSeconds   float64           `json:"avg_ttft_seconds"`
}

// HandleQuery runs the full flow for one user query. An empty sessionID
// starts a new session.
func (o *Orchestrator) HandleQuery(ctx context.Context, sessionID, query string) (*Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("orchestration: query is empty")
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	history := o.loadHistory(ctx, sessionID)

	agents := o.route(ctx, history, query)
	log.Infof("orchestration: session=%s agents=%v", sessionID, agents)

	responses, avgTTFT, err := o.dispatchAgents(ctx, agents, history, query)
	if err != nil {
		return nil, err
	}

	final, issues := aggregate(responses)

	o.saveHistory(ctx, sessionID, query, final)

	return &Result{
		SessionID:        sessionID,
		Response:         final,
		Agents:           agents,
		AgentResponses:   responses,
		ComplianceIssues: issues,
		CompliancePassed: len(issues) == 0,
		AvgTTFTSeconds:   avgTTFT,
	}, nil
}

// route asks the router agent which specialists to invoke. Any failure
// degrades to the default agent, never an error.
func (o *Orchestrator) route(ctx context.Context, history []model.Message, query string) []string {
	promptText := o.builder.Build(routerAgent, history, query)
	pre := o.metrics.LogRequestStart(routerAgent, promptText)

	resp, err := o.llm.Complete(ctx, promptText)
	if err != nil {
		log.Errorf("orchestration: router call failed, using default agent: %v", err)
		return []string{defaultAgent}
	}
	o.metrics.LogRequestComplete(routerAgent, pre.PrefixHash, resp.TimeToFirstToken.Seconds())

	agents := parseRouteDecision(resp.Text)
	agents = o.filterAvailable(agents)
	if len(agents) == 0 {
		agents = []string{defaultAgent}
	}
	return agents
}

// parseRouteDecision extracts {"agents": [...]} from the router output.
func parseRouteDecision(text string) []string {
	var decision struct {
		Agents []string `json:"agents"`
	}

	trimmed := strings.TrimSpace(text)
	if err := json.Unmarshal([]byte(trimmed), &decision); err != nil {
		// Models often wrap JSON in prose or fences; take the outermost
		// object substring.
		start := strings.Index(trimmed, "{")
		end := strings.LastIndex(trimmed, "}")
		if start == -1 || end <= start {
			log.Warnf("orchestration: router returned no JSON, using default agent")
			return nil
		}
		if err := json.Unmarshal([]byte(trimmed[start:end+1]), &decision); err != nil {
			log.Warnf("orchestration: router JSON parse failed, using default agent: %v", err)
			return nil
		}
	}
	return decision.Agents
}

func (o *Orchestrator) filterAvailable(agents []string) []string {
	filtered := make([]string, 0, len(agents))
	for _, agent := range agents {
		if _, ok := o.available[agent]; ok {
			filtered = append(filtered, agent)
		}
	}
	return filtered
}

// dispatchAgents builds all prompts up front, then fires the calls
// together so the remote server can batch them against the shared
// prefix. Partial failure is tolerated; total failure is not.
func (o *Orchestrator) dispatchAgents(
	ctx context.Context,
	agents []string,
	history []model.Message,
	query string,
) (map[string]string, float64, error) {
	prompts := make(map[string]string, len(agents))
	for _, agent := range agents {
		prompts[agent] = o.builder.Build(agent, history, query)
	}

	var (
		mu        sync.Mutex
		wg        sync.WaitGroup
		responses = make(map[string]string, len(agents))
		totalTTFT float64
		succeeded int
		callErrs  *multierror.Error
	)

	for _, agent := range agents {
		agent := agent
		wg.Add(1)
		submitErr := o.pool.Submit(func() {
			defer wg.Done()

			promptText := prompts[agent]
			pre := o.metrics.LogRequestStart(agent, promptText)

			resp, err := o.llm.Complete(ctx, promptText)
			if err != nil {
				log.Errorf("orchestration: agent %s failed: %v", agent, err)
				mu.Lock()
				callErrs = multierror.Append(callErrs, fmt.Errorf("agent %s: %w", agent, err))
				mu.Unlock()
				return
			}

			ttft := resp.TimeToFirstToken.Seconds()
			o.metrics.LogRequestComplete(agent, pre.PrefixHash, ttft)
			log.Infof("orchestration: agent %s completed, ttft=%.2fs", agent, ttft)

			mu.Lock()
			responses[agent] = resp.Text
			totalTTFT += ttft
			succeeded++
			mu.Unlock()
		})
		if submitErr != nil {
			wg.Done()
			mu.Lock()
			callErrs = multierror.Append(callErrs, fmt.Errorf("submit agent %s: %w", agent, submitErr))
			mu.Unlock()
		}
	}
	wg.Wait()

	if succeeded == 0 {
		return nil, 0, fmt.Errorf("orchestration: all agents failed: %w", callErrs.ErrorOrNil())
	}
	return responses, totalTTFT / float64(succeeded), nil
}

// aggregate merges agent responses and collects compliance issues from
// uncertainty markers.
func aggregate(responses map[string]string) (string, []string) {
	var issues []string
	for agent, response := range responses {
		lower := strings.ToLower(response)
		for _, marker := range uncertaintyMarkers {
			if strings.Contains(lower, marker) {
				issues = append(issues, fmt.Sprintf("%s: contains uncertainty - %q", agent, marker))
				break
			}
		}
	}

	var final string
	if len(responses) == 1 {
		for _, response := range responses {
			final = response
		}
	} else {
		parts := make([]string, 0, len(responses))
		for _, agent := range sortedKeys(responses) {
			parts = append(parts, fmt.Sprintf("## %s\n\n%s", displayName(agent), responses[agent]))
		}
		final = strings.Join(parts, "\n\n---\n\n")
	}

	if len(issues) > 0 {
		final += "\n\n---\n\nNote: this response has been flagged for review.\n\nIssues found:\n"
		lines := make([]string, 0, len(issues))
		for _, issue := range issues {
			lines = append(lines, "- "+issue)
		}
		final += strings.Join(lines, "\n")
	}
	return final, issues
}

func (o *Orchestrator) loadHistory(ctx context.Context, sessionID string) []model.Message {
	if o.sessions == nil {
		return nil
	}
	history, err := o.sessions.GetHistory(ctx, sessionID)
	if err != nil {
		log.Warnf("orchestration: load history for %s failed: %v", sessionID, err)
		return nil
	}
	return history
}

func (o *Orchestrator) saveHistory(ctx context.Context, sessionID, query, response string) {
	if o.sessions == nil {
		return
	}
	err := o.sessions.AppendHistory(ctx, sessionID,
		model.NewUserMessage(query),
		model.NewAssistantMessage(response),
	)
	if err != nil {
		log.Warnf("orchestration: save history for %s failed: %v", sessionID, err)
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func displayName(agent string) string {
	words := strings.Split(strings.ReplaceAll(agent, "_", " "), " ")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
