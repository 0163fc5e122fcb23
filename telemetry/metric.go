//
// Tencent is pleased to support the open source community by making
// trpc-prefixcache-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-prefixcache-go is licensed under the Apache License Version 2.0.
//
//

// Package telemetry exports cache-efficiency metrics through OpenTelemetry.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

const instrumentationName = "trpc.group/trpc-go/trpc-prefixcache-go"

// ttftBuckets cover LLM inference latencies from sub-second warm hits to
// cold multi-ten-second prefix recomputation.
var ttftBuckets = []float64{0.5, 1, 2, 3, 5, 10, 15, 20, 30, 60}

var agentKey = attribute.Key("agent")

// CacheObserver records cache-inference outcomes on OTel instruments.
// It implements the cache package's Observer interface.
type CacheObserver struct {
	requests     metric.Int64Counter
	hits         metric.Int64Counter
	misses       metric.Int64Counter
	mismatches   metric.Int64Counter
	ttft         metric.Float64Histogram
	baseline     metric.Float64Gauge
	hitRate      metric.Float64Gauge
	prefixTokens metric.Int64Gauge
}

// NewCacheObserver creates the instrument set on the global meter
// provider.
func NewCacheObserver() (*CacheObserver, error) {
	meter := otel.Meter(instrumentationName)

	o := &CacheObserver{}
	var err error

	if o.requests, err = meter.Int64Counter("router.requests.total",
		metric.WithDescription("Total requests processed")); err != nil {
		return nil, err
	}
	if o.hits, err = meter.Int64Counter("router.cache.hits.total",
		metric.WithDescription("Cache hits inferred from TTFT")); err != nil {
		return nil, err
	}
	if o.misses, err = meter.Int64Counter("router.cache.misses.total",
		metric.WithDescription("Cache misses inferred from TTFT")); err != nil {
		return nil, err
	}
	if o.mismatches, err = meter.Int64Counter("router.prefix.mismatches.total",
		metric.WithDescription("Prefix hash mismatches (cache busters)")); err != nil {
		return nil, err
	}
	if o.ttft, err = meter.Float64Histogram("router.ttft.seconds",
		metric.WithDescription("Time to first token in seconds"),
		metric.WithExplicitBucketBoundaries(ttftBuckets...)); err != nil {
		return nil, err
	}
	if o.baseline, err = meter.Float64Gauge("router.cold.cache.baseline.seconds",
		metric.WithDescription("TTFT baseline from the first (cold cache) request")); err != nil {
		return nil, err
	}
	if o.hitRate, err = meter.Float64Gauge("router.cache.hit.rate",
		metric.WithDescription("Current inferred cache hit rate (0.0-1.0)")); err != nil {
		return nil, err
	}
	if o.prefixTokens, err = meter.Int64Gauge("router.prefix.tokens.estimated",
		metric.WithDescription("Estimated token count of the shared prefix")); err != nil {
		return nil, err
	}

	return o, nil
}

// ObserveRequest records one completed request.
func (o *CacheObserver) ObserveRequest(agent string, ttftSeconds float64, firstSample, hit bool) {
	ctx := context.Background()
	attrs := metric.WithAttributes(agentKey.String(agent))

	o.requests.Add(ctx, 1, attrs)
	o.ttft.Record(ctx, ttftSeconds, attrs)

	// The first sample is the cold baseline, neither hit nor miss.
	if firstSample {
		return
	}
	if hit {
		o.hits.Add(ctx, 1, attrs)
	} else {
		o.misses.Add(ctx, 1, attrs)
	}
}

// ObservePrefixMismatch records a prefix fingerprint mismatch.
func (o *CacheObserver) ObservePrefixMismatch(agent string) {
	o.mismatches.Add(context.Background(), 1,
		metric.WithAttributes(agentKey.String(agent)))
}

// ObserveBaseline records the cold-cache TTFT baseline.
func (o *CacheObserver) ObserveBaseline(seconds float64) {
	o.baseline.Record(context.Background(), seconds)
}

// ObserveHitRate records the current inferred hit rate.
func (o *CacheObserver) ObserveHitRate(rate float64) {
	o.hitRate.Record(context.Background(), rate)
}

// SetPrefixTokens records the estimated shared-prefix token count.
func (o *CacheObserver) SetPrefixTokens(tokens int) {
	o.prefixTokens.Record(context.Background(), int64(tokens))
}

// Setup installs a global meter provider exporting over OTLP/HTTP to the
// given endpoint ("host:port"). The returned shutdown flushes and stops
// the provider.
func Setup(ctx context.Context, endpoint, serviceName string) (func(context.Context) error, error) {
	exporter, err := otlpmetrichttp.New(ctx,
		otlpmetrichttp.WithEndpoint(endpoint),
		otlpmetrichttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create otlp metric exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
	))
	if err != nil {
		return nil, fmt.Errorf("build resource: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(provider)

	return provider.Shutdown, nil
}
