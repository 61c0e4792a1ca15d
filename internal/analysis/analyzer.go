package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Lowy-zhangtian/-audit-tool/internal/model"
)

// Model answers a prompt with raw text
type Model interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// ModelFunc adapts a function to Model
type ModelFunc func(ctx context.Context, prompt string) (string, error)

// Complete calls f
func (f ModelFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Observer receives one call per model call
type Observer interface {
	ObserveNarrative(duration time.Duration, failed bool)
}

// Options configures an Analyzer
type Options struct {
	Template    *Template     // nil = DefaultTemplate
	Concurrency int           // concurrent model calls in AnalyzeBatch
	CallTimeout time.Duration // per-call budget; 0 = no timeout
	Logger      *slog.Logger
	Observer    Observer
}

// Analyzer turns records into narratives through a Model
type Analyzer struct {
	model       Model
	builder     *PromptBuilder
	concurrency int
	callTimeout time.Duration
	logger      *slog.Logger
	observer    Observer
}

// NewAnalyzer creates an analyzer over m
func NewAnalyzer(m Model, opts Options) *Analyzer {
	tpl := DefaultTemplate()
	if opts.Template != nil {
		tpl = *opts.Template
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Analyzer{
		model:       m,
		builder:     NewPromptBuilder(tpl),
		concurrency: opts.Concurrency,
		callTimeout: opts.CallTimeout,
		logger:      opts.Logger,
		observer:    opts.Observer,
	}
}

// Prompt returns the prompt Analyze would send for rec
func (a *Analyzer) Prompt(rec model.Record, knowledge []string) string {
	return a.builder.Build(rec, knowledge)
}

// Analyze builds the prompt, calls the model and parses the answer.
// A model failure yields an Unparsed narrative with Error set. A record
// without an identity is reported as Report_1.
func (a *Analyzer) Analyze(ctx context.Context, rec model.Record, knowledge []string) model.Narrative {
	return a.analyze(ctx, rec, model.ResolveID(rec, 0), knowledge)
}

func (a *Analyzer) analyze(ctx context.Context, rec model.Record, reportID string, knowledge []string) model.Narrative {
	prompt := a.builder.Build(rec, knowledge)

	callCtx := ctx
	if a.callTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, a.callTimeout)
		defer cancel()
	}

	start := time.Now()
	raw, err := a.model.Complete(callCtx, prompt)
	if err == nil && callCtx.Err() != nil {
		err = fmt.Errorf("model call: %w", callCtx.Err())
	}
	a.observe(time.Since(start), err != nil)

	if err != nil {
		a.logger.Warn("model call failed",
			"report_id", reportID,
			"error", err)
		return model.Narrative{
			ReportID:         reportID,
			Assessment:       model.AssessmentUnparsed,
			IdentifiedRisks:  []string{},
			SuggestedActions: []string{},
			Error:            err.Error(),
		}
	}

	n := ParseResponse(reportID, raw)
	if n.Assessment == model.AssessmentUnparsed {
		a.logger.Warn("model response has no numbered sections", "report_id", reportID)
	}
	return n
}

func (a *Analyzer) observe(d time.Duration, failed bool) {
	if a.observer != nil {
		a.observer.ObserveNarrative(d, failed)
	}
}

// AnalyzeBatch analyzes records with at most Concurrency model calls in
// flight and returns narratives in input order. Records without an identity
// get their positional fallback.
//
// Cancelling ctx stops new calls from being issued. Calls already running
// finish under their own timeout, and the narratives completed so far are
// returned in input order together with ctx.Err().
func (a *Analyzer) AnalyzeBatch(ctx context.Context, records []model.Record, knowledge []string) ([]model.Narrative, error) {
	if len(records) == 0 {
		return []model.Narrative{}, ctx.Err()
	}

	results := make([]*model.Narrative, len(records))
	var wg sync.WaitGroup

	// Create semaphore to limit concurrent model calls
	semaphore := make(chan struct{}, a.concurrency)

	// In-flight calls outlive a batch cancellation
	callCtx := context.WithoutCancel(ctx)

issue:
	for i, rec := range records {
		select {
		case <-ctx.Done():
			break issue
		case semaphore <- struct{}{}:
		}
		if ctx.Err() != nil {
			<-semaphore
			break issue
		}

		wg.Add(1)
		go func(idx int, r model.Record) {
			defer wg.Done()
			defer func() { <-semaphore }()

			n := a.analyze(callCtx, r, model.ResolveID(r, idx), knowledge)
			results[idx] = &n
		}(i, rec)
	}

	wg.Wait()

	narratives := make([]model.Narrative, 0, len(records))
	for _, n := range results {
		if n != nil {
			narratives = append(narratives, *n)
		}
	}

	if err := ctx.Err(); err != nil {
		a.logger.Warn("narrative generation cancelled",
			"completed", len(narratives),
			"total", len(records),
			"error", err)
		return narratives, err
	}
	return narratives, nil
}
