package pipeline

import (
	"fmt"
	"log/slog"

	"github.com/Lowy-zhangtian/-audit-tool/internal/analysis"
	"github.com/Lowy-zhangtian/-audit-tool/internal/cache"
	"github.com/Lowy-zhangtian/-audit-tool/internal/integrate"
	"github.com/Lowy-zhangtian/-audit-tool/internal/llm"
	"github.com/Lowy-zhangtian/-audit-tool/internal/metrics"
	"github.com/Lowy-zhangtian/-audit-tool/internal/model"
	"github.com/Lowy-zhangtian/-audit-tool/internal/rules"
	"github.com/Lowy-zhangtian/-audit-tool/internal/worker"
)

// NewModel builds the model client described by cfg.LLM: provider, response
// cache, per-provider rate limit and retry. It returns nil when no provider
// is configured.
func NewModel(cfg *model.Config, logger *slog.Logger) (*llm.Client, error) {
	provider, err := llm.NewProvider(llm.ConfigFromModel(cfg.LLM))
	if err != nil {
		return nil, fmt.Errorf("create LLM provider: %w", err)
	}
	if provider == nil {
		return nil, nil
	}

	opts := llm.ClientOptions{
		Model:         cfg.LLM.Model,
		Limiter:       worker.NewLimiter(cfg.LLM.RequestsPerSecond, cfg.LLM.Burst),
		RetryAttempts: cfg.LLM.RetryAttempts,
		Logger:        logger,
	}
	if cfg.Cache.Enabled {
		opts.Cache = cache.NewLayeredCache(cfg.Cache.MemoryTTL, cfg.Cache.Dir, cfg.Cache.DiskTTL)
		opts.CacheTTL = cfg.Cache.DiskTTL
	}

	return llm.NewClient(provider, opts), nil
}

// NewFromConfig assembles a pipeline from configuration. A nil m disables
// narratives, as does analysis.enabled=false; rec may be nil.
func NewFromConfig(cfg *model.Config, m analysis.Model, rec *metrics.Recorder, logger *slog.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}

	set, err := rules.FromConfig(cfg.Rules)
	if err != nil {
		return nil, fmt.Errorf("build rule set: %w", err)
	}

	engineOpts := []rules.EngineOption{
		rules.WithWorkers(cfg.Concurrency.RuleWorkers),
		rules.WithLogger(logger),
	}
	if rec != nil {
		engineOpts = append(engineOpts, rules.WithObserver(rec))
	}

	opts := Options{
		Integrator: integrate.New(cfg.Integration, logger),
		Engine:     rules.NewEngine(set, engineOpts...),
		Logger:     logger,
	}
	if rec != nil {
		opts.Metrics = rec
	}

	if m != nil && cfg.Analysis.Enabled {
		analyzerOpts := analysis.Options{
			Concurrency: cfg.Analysis.Concurrency,
			CallTimeout: cfg.Analysis.CallTimeout,
			Logger:      logger,
		}
		if rec != nil {
			analyzerOpts.Observer = rec
		}
		if cfg.Analysis.Template != "" {
			tpl, err := analysis.LoadTemplate(cfg.Analysis.Template)
			if err != nil {
				return nil, fmt.Errorf("load prompt template: %w", err)
			}
			analyzerOpts.Template = &tpl
		}
		opts.Analyzer = analysis.NewAnalyzer(m, analyzerOpts)
	}

	return New(opts)
}
