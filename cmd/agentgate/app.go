package main

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/Divas-Gupta30/agentgate/internal/config"
	"github.com/Divas-Gupta30/agentgate/internal/evaluation"
	"github.com/Divas-Gupta30/agentgate/internal/generation"
	"github.com/Divas-Gupta30/agentgate/internal/graph"
	"github.com/Divas-Gupta30/agentgate/internal/ingestion"
	"github.com/Divas-Gupta30/agentgate/internal/processing"
	"github.com/Divas-Gupta30/agentgate/internal/server"
	"github.com/Divas-Gupta30/agentgate/internal/storage"
	"github.com/Divas-Gupta30/agentgate/internal/tasks"
)

// app holds everything built from one Config.
type app struct {
	service *graph.Service
	sink    *storage.AsyncSink
	cache   *storage.RedisCache
	reports *storage.ReportStore
	logger  *zap.Logger
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{logger: logger}

	policy := generation.RetryPolicy{MaxAttempts: cfg.Generation.MaxAttempts, BaseDelay: cfg.Generation.BaseDelay}
	gen, err := newGenerationClient(ctx, cfg, cfg.Generation.Model, policy, logger.Named("generation"))
	if err != nil {
		return nil, err
	}
	judgeGen, err := newGenerationClient(ctx, cfg, cfg.Generation.JudgeModel, policy, logger.Named("judge"))
	if err != nil {
		return nil, err
	}

	embedder, err := processing.NewEmbedder(cfg.Embedding.Provider, cfg.Embedding.URL, cfg.Embedding.Model, cfg.Generation.APIKey)
	if err != nil {
		return nil, err
	}
	scorer, err := evaluation.NewSimilarityScorer(embedder, cfg.Validation.SimilarityThreshold, cfg.Embedding.Timeout)
	if err != nil {
		return nil, err
	}
	judge, err := evaluation.NewHallucinationJudge(judgeGen, logger.Named("judge"))
	if err != nil {
		return nil, err
	}
	gate := evaluation.NewGate(cfg.Validation.HighConfidence)

	fetchClient := &http.Client{Timeout: cfg.Tasks.FetchTimeout}
	fetcherOpts := []tasks.APIFetcherOption{tasks.WithHTTPClient(fetchClient), tasks.WithAPILogger(logger.Named("api_fetching"))}
	if cfg.Redis.Addr != "" {
		a.cache = storage.NewRedisCache(ctx, storage.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.TTL,
		}, logger)
		fetcherOpts = append(fetcherOpts, tasks.WithCache(a.cache))
	}
	fetcher, err := tasks.NewAPIFetcher(gen, fetcherOpts...)
	if err != nil {
		return nil, err
	}
	summarizer, err := tasks.NewSummarizer(gen,
		ingestion.NewExtractor(ingestion.NewDownloader(nil, 0)),
		tasks.SummarizerConfig{
			Temperature:      cfg.Generation.SummaryTemperature,
			ChunkConcurrency: cfg.Tasks.ChunkConcurrency,
			Model:            gen.Model(),
		},
		logger.Named("summarization"))
	if err != nil {
		return nil, err
	}

	sinks := storage.MultiSink{storage.NewLogSink(logger.Named("reports"))}
	if cfg.DatabaseURL != "" {
		a.reports, err = storage.OpenReportStore(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, a.reports)
	}
	a.sink = storage.NewAsyncSink(sinks, 256, logger)

	router := graph.NewRouter()
	bound := map[string]graph.Task{
		graph.WorkflowAPIFetching:   fetcher,
		graph.WorkflowSummarization: summarizer,
	}
	var executors []*graph.Executor
	for name, task := range bound {
		def, ok := router.Workflow(name)
		if !ok {
			return nil, fmt.Errorf("router has no workflow %s", name)
		}
		e, err := graph.NewExecutor(def, task, scorer, judge, gate,
			graph.WithSink(a.sink),
			graph.WithExecutorLogger(logger.Named("executor")))
		if err != nil {
			return nil, err
		}
		executors = append(executors, e)
	}

	a.service, err = graph.NewService(router, executors, logger)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func newGenerationClient(ctx context.Context, cfg *config.Config, model string, policy generation.RetryPolicy, logger *zap.Logger) (*generation.Client, error) {
	backend, err := generation.NewBackend(ctx, generation.BackendConfig{
		Provider:             cfg.Generation.Provider,
		BaseURL:              cfg.Generation.BaseURL,
		APIKey:               cfg.Generation.APIKey,
		Model:                model,
		UseGoogleCredentials: cfg.Generation.UseGoogleCredentials,
	})
	if err != nil {
		return nil, err
	}
	return generation.NewClient(backend, policy,
		generation.WithTimeout(cfg.Generation.Timeout),
		generation.WithLogger(logger))
}

func (a *app) serverOptions() []server.Option {
	var opts []server.Option
	if a.cache != nil {
		opts = append(opts, server.WithHealthCheck("redis", a.cache))
	}
	if a.reports != nil {
		opts = append(opts, server.WithHealthCheck("database", a.reports))
	}
	return opts
}

// Close flushes pending reports, then releases connections.
func (a *app) Close() {
	a.sink.Close()
	if a.cache != nil {
		a.cache.Close()
	}
	if a.reports != nil {
		a.reports.Close()
	}
}
