//
// Tencent is pleased to support the open source community by making
// trpc-prefixcache-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-prefixcache-go is licensed under the Apache License Version 2.0.
//
//

// Package app wires configuration, the prompt builder, the cache engine,
// the orchestrator and the HTTP gateway into a runnable service.
package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"trpc.group/trpc-go/trpc-prefixcache-go/cache"
	"trpc.group/trpc-go/trpc-prefixcache-go/config"
	"trpc.group/trpc-go/trpc-prefixcache-go/internal/gateway"
	"trpc.group/trpc-go/trpc-prefixcache-go/log"
	"trpc.group/trpc-go/trpc-prefixcache-go/manual"
	openaimodel "trpc.group/trpc-go/trpc-prefixcache-go/model/openai"
	"trpc.group/trpc-go/trpc-prefixcache-go/orchestration"
	"trpc.group/trpc-go/trpc-prefixcache-go/prompt"
	"trpc.group/trpc-go/trpc-prefixcache-go/session"
	sqlitesession "trpc.group/trpc-go/trpc-prefixcache-go/session/sqlite"
	"trpc.group/trpc-go/trpc-prefixcache-go/telemetry"
	"trpc.group/trpc-go/trpc-prefixcache-go/tokenizer"
)

const (
	serviceName     = "prefixrouter"
	shutdownTimeout = 5 * time.Second
)

// Main runs the service until interrupted and returns the exit code.
func Main(args []string) int {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	if err := run(ctx, args); err != nil {
		log.Errorf("%v", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet(serviceName, flag.ContinueOnError)
	configPath := fs.String("config", "", "path to the YAML config file")
	addr := fs.String("addr", "", "listen address override")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	log.SetLevel(cfg.LogLevel)

	doc := manual.Load(cfg.ManualPath)

	counter := tokenizer.Default()
	if cfg.UseSegmenter {
		seg, err := tokenizer.NewSegmenter()
		if err != nil {
			log.Warnf("segmenter unavailable, using approximate counter: %v", err)
		} else {
			counter = seg
		}
	}

	builderOpts := []prompt.Option{prompt.WithTokenCounter(counter)}
	if cfg.TemplatesDir != "" {
		builderOpts = append(builderOpts, prompt.WithTemplatesDir(cfg.TemplatesDir))
	}
	builder := prompt.NewBuilder(doc, builderOpts...)

	metricOpts := []cache.Option{
		cache.WithHitThreshold(cfg.HitThreshold),
		cache.WithTokenCounter(counter),
	}

	var telemetryShutdown func(context.Context) error
	if cfg.OTLPEndpoint != "" {
		shutdown, err := telemetry.Setup(ctx, cfg.OTLPEndpoint, serviceName)
		if err != nil {
			return fmt.Errorf("setup telemetry: %w", err)
		}
		telemetryShutdown = shutdown

		observer, err := telemetry.NewCacheObserver()
		if err != nil {
			return fmt.Errorf("create cache observer: %w", err)
		}
		observer.SetPrefixTokens(builder.PrefixTokensEstimate())
		metricOpts = append(metricOpts, cache.WithObserver(observer))
	}

	metrics := cache.NewMetrics(metricOpts...)

	llm := openaimodel.New(cfg.VLLMModel,
		openaimodel.WithBaseURL(cfg.VLLMBaseURL),
		openaimodel.WithAPIKey(cfg.VLLMAPIKey),
	)

	var sessions session.Service
	if cfg.SessionDBPath != "" {
		db, err := sqlitesession.Open(cfg.SessionDBPath)
		if err != nil {
			return err
		}
		svc, err := sqlitesession.NewService(db)
		if err != nil {
			return err
		}
		sessions = svc
	}

	orchOpts := []orchestration.Option{}
	if sessions != nil {
		orchOpts = append(orchOpts, orchestration.WithSessionService(sessions))
	}
	orch, err := orchestration.New(builder, metrics, llm, orchOpts...)
	if err != nil {
		return err
	}

	gw, err := gateway.New(orch, metrics, doc)
	if err != nil {
		return err
	}

	httpSrv := &http.Server{
		Addr:    cfg.Addr,
		Handler: gw.Handler(),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Infof("Gateway listening on %s", httpSrv.Addr)
		log.Infof("Health: GET  %s", gw.HealthPath())
		log.Infof("Query:  POST %s", gw.QueryPath())
		log.Infof("Stats:  GET  %s", gw.StatsPath())
		log.Infof("Manual: GET  %s", gw.ManualPath())
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			shutdownTimeout,
		)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	runErr := g.Wait()

	var closeErr *multierror.Error
	if err := orch.Close(); err != nil {
		closeErr = multierror.Append(closeErr, fmt.Errorf("close orchestrator: %w", err))
	}
	if sessions != nil {
		if err := sessions.Close(); err != nil {
			closeErr = multierror.Append(closeErr, fmt.Errorf("close session service: %w", err))
		}
	}
	if telemetryShutdown != nil {
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			shutdownTimeout,
		)
		if err := telemetryShutdown(shutdownCtx); err != nil {
			closeErr = multierror.Append(closeErr, fmt.Errorf("shutdown telemetry: %w", err))
		}
		cancel()
	}

	if runErr != nil {
		closeErr = multierror.Append(closeErr, runErr)
	}
	return closeErr.ErrorOrNil()
}
