package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"concierge/internal/adapter/behavior"
	"concierge/internal/adapter/embedding"
	"concierge/internal/adapter/llm"
	"concierge/internal/adapter/state"
	"concierge/internal/domain"
	"concierge/internal/infra/config"
	"concierge/internal/usecase"
)

// Runtime holds the wired application components.
type Runtime struct {
	Orchestrator *usecase.Orchestrator
	Provider     domain.LLMProvider

	backend *state.SQLiteBackend
}

// Close releases runtime resources.
func (rt *Runtime) Close() error {
	return rt.backend.Close()
}

// initRuntime constructs the full pipeline from configuration: provider,
// catalog, embedding index, routing cascade, executor, guardrails, state
// store, orchestrator. Everything is wired once here; no component
// reaches for globals.
func initRuntime(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Runtime, error) {
	provider, err := initProvider(cfg, log)
	if err != nil {
		return nil, err
	}

	catalog, err := usecase.NewCatalog(cfg.Agents, func(def config.AgentDef) (domain.Behavior, error) {
		return behavior.FromDef(def, provider, log)
	}, log)
	if err != nil {
		return nil, fmt.Errorf("build catalog: %w", err)
	}

	semantic, err := initSemantic(ctx, cfg, catalog, provider, log)
	if err != nil {
		return nil, err
	}

	router := usecase.NewRouter(usecase.RouterDeps{
		Catalog:  catalog,
		Patterns: usecase.NewPatternMatcher(log),
		Semantic: semantic,
		Continuity: usecase.NewContinuityDetector(
			provider, cfg.Routing.ContinuityFloor, cfg.Routing.ContinuityWindow, log),
		Special: usecase.NewSpecialCaseDetector(
			provider, cfg.Routing.SpecialCaseFloor, nil, log),
		Config: usecase.RouterConfig{
			PatternFirst:              cfg.Routing.PatternFirst,
			GeneralAgentName:          cfg.Routing.GeneralAgentName,
			FallbackGeneralConfidence: cfg.Routing.FallbackGeneralConfidence,
			FallbackFirstConfidence:   cfg.Routing.FallbackFirstConfidence,
		},
		Logger: log,
	})

	backend, err := state.New(cfg.State.Path)
	if err != nil {
		return nil, fmt.Errorf("open state backend: %w", err)
	}
	states := usecase.NewStateStore(backend, usecase.RetryPolicy{
		MaxAttempts: cfg.State.Retry.MaxAttempts,
		BaseDelay:   cfg.State.Retry.BaseDelay,
		MaxDelay:    cfg.State.Retry.MaxDelay,
	}, log)

	orch := usecase.NewOrchestrator(usecase.OrchestratorDeps{
		Catalog:  catalog,
		Router:   router,
		Executor: usecase.NewExecutor(cfg.Execution.DefaultTimeout, log),
		Guardrails: usecase.NewGuardrails(
			provider, catalog, cfg.Execution.GuardrailsAgent, cfg.Execution.GuardrailsEnabled, log),
		States: states,
		Logger: log,
	})

	return &Runtime{Orchestrator: orch, Provider: provider, backend: backend}, nil
}

// initProvider builds the configured LLM provider wrapped with the
// circuit breaker and rate limiter.
func initProvider(cfg *config.Config, log *slog.Logger) (domain.LLMProvider, error) {
	var provider domain.LLMProvider
	switch cfg.LLM.Provider {
	case "openai":
		if os.Getenv("OPENAI_API_KEY") == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is not set")
		}
		provider = llm.NewOpenAIProvider(cfg.LLM.Model, cfg.LLM.Temperature, cfg.LLM.MaxTokens)
	case "anthropic":
		if os.Getenv("ANTHROPIC_API_KEY") == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY is not set")
		}
		provider = llm.NewAnthropicProvider(cfg.LLM.Model, cfg.LLM.Temperature, cfg.LLM.MaxTokens)
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.LLM.Provider)
	}

	provider = llm.NewCircuitBreakerProvider(provider, cfg.LLM.Breaker, log)
	provider = llm.NewRateLimitedProvider(provider, cfg.LLM.RateLimit)

	registry := llm.NewRegistry()
	if err := registry.Register(provider); err != nil {
		return nil, err
	}
	return registry.Get(provider.Name())
}

// initSemantic builds the semantic selector. The embedding index is only
// built when the vector strategy is enabled; the LLM strategy needs no
// upfront work.
func initSemantic(ctx context.Context, cfg *config.Config, catalog *usecase.Catalog, provider domain.LLMProvider, log *slog.Logger) (*usecase.SemanticSelector, error) {
	deps := usecase.SemanticSelectorDeps{
		LLM:       provider,
		Strategy:  usecase.SemanticStrategy(cfg.Routing.SemanticStrategy),
		Threshold: cfg.Routing.SemanticThreshold,
		SimFloor:  cfg.Routing.SimilarityFloor,
		Logger:    log,
	}

	if deps.Strategy == usecase.StrategyVector {
		if !cfg.Embedding.Enabled {
			return nil, fmt.Errorf("routing.semantic_strategy is vector but embedding is disabled")
		}
		embedder := embedding.NewCachedEmbedder(
			embedding.NewOpenAIEmbedder(cfg.Embedding.Model, os.Getenv("OPENAI_API_KEY")),
			cfg.Embedding.CacheSize)

		index := embedding.NewIndex()
		if err := index.Build(ctx, embedder, catalog.SemanticCorpora()); err != nil {
			return nil, fmt.Errorf("build embedding index: %w", err)
		}
		deps.Embedder = embedder
		deps.Index = index
		log.Info("embedding index built", "agents", catalog.Len())
	}

	return usecase.NewSemanticSelector(deps), nil
}
