package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Lowy-zhangtian/-audit-tool/internal/analysis"
	"github.com/Lowy-zhangtian/-audit-tool/internal/integrate"
	"github.com/Lowy-zhangtian/-audit-tool/internal/metrics"
	"github.com/Lowy-zhangtian/-audit-tool/internal/model"
	"github.com/Lowy-zhangtian/-audit-tool/internal/rules"
)

// Options wires the pipeline's components
type Options struct {
	Integrator *integrate.Integrator
	Engine     *rules.Engine
	Analyzer   *analysis.Analyzer // nil disables narratives
	Metrics    *metrics.Recorder  // optional
	Logger     *slog.Logger
}

// Pipeline reviews a batch of audit reports: integrate, evaluate rules and
// generate narratives on the same records, then join the two
type Pipeline struct {
	integrator *integrate.Integrator
	engine     *rules.Engine
	analyzer   *analysis.Analyzer
	metrics    *metrics.Recorder
	logger     *slog.Logger
}

// New creates a pipeline. Integrator and Engine are required.
func New(opts Options) (*Pipeline, error) {
	if opts.Integrator == nil {
		return nil, errors.New("pipeline: integrator is required")
	}
	if opts.Engine == nil {
		return nil, errors.New("pipeline: rule engine is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Pipeline{
		integrator: opts.Integrator,
		engine:     opts.Engine,
		analyzer:   opts.Analyzer,
		metrics:    opts.Metrics,
		logger:     opts.Logger,
	}, nil
}

// NarrativesEnabled reports whether a model is wired in
func (p *Pipeline) NarrativesEnabled() bool {
	return p.analyzer != nil
}

// Input is one batch of review input
type Input struct {
	Structured []model.Row
	Extracted  []model.Row
	Knowledge  []string
}

// Timings breaks a run's wall time down by stage
type Timings struct {
	Integrate time.Duration `json:"integrate"`
	Rules     time.Duration `json:"rules"`
	Analysis  time.Duration `json:"analysis"`
	Total     time.Duration `json:"total"`
}

// Run is the outcome of one pipeline run
type Run struct {
	ID        string
	StartedAt time.Time
	Records   []model.Record
	Results   []model.ReviewResult
	Warnings  []error
	Partial   bool // cancelled before every record was reviewed
	Timings   Timings
}

// Summary counts results by compliance status
func (r *Run) Summary() (compliant, nonCompliant int) {
	for _, res := range r.Results {
		if res.ComplianceStatus() == model.StatusCompliant {
			compliant++
		} else {
			nonCompliant++
		}
	}
	return compliant, nonCompliant
}

// MarshalJSON renders warnings as messages and omits raw records
func (r *Run) MarshalJSON() ([]byte, error) {
	warnings := make([]string, len(r.Warnings))
	for i, w := range r.Warnings {
		warnings[i] = w.Error()
	}

	results := r.Results
	if results == nil {
		results = []model.ReviewResult{}
	}

	return json.Marshal(struct {
		ID        string               `json:"id"`
		StartedAt time.Time            `json:"started_at"`
		Partial   bool                 `json:"partial"`
		Records   int                  `json:"records"`
		Warnings  []string             `json:"warnings"`
		Timings   Timings              `json:"timings_ns"`
		Results   []model.ReviewResult `json:"results"`
	}{r.ID, r.StartedAt, r.Partial, len(r.Records), warnings, r.Timings, results})
}

// Run reviews one batch. Structural input errors are returned with a nil Run.
// When ctx is cancelled mid-run the completed results are returned with
// Partial set, together with ctx.Err().
func (p *Pipeline) Run(ctx context.Context, in Input) (*Run, error) {
	run := &Run{
		ID:        uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}
	logger := p.logger.With("run_id", run.ID)

	start := time.Now()
	integrated, err := p.integrator.Integrate(in.Structured, in.Extracted)
	if err != nil {
		p.observeRun("failed", time.Since(start))
		return nil, fmt.Errorf("integrate: %w", err)
	}
	run.Records = integrated.Records
	run.Warnings = integrated.Warnings
	run.Timings.Integrate = time.Since(start)

	for _, w := range run.Warnings {
		logger.Warn("integration warning", "error", w)
	}
	logger.Info("review started", "records", len(run.Records), "narratives", p.analyzer != nil)

	var (
		verdicts    []model.RuleVerdict
		narratives  []model.Narrative
		rulesErr    error
		analysisErr error
		wg          sync.WaitGroup
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.Now()
		verdicts, rulesErr = p.engine.EvaluateBatch(ctx, run.Records)
		run.Timings.Rules = time.Since(t)
	}()

	if p.analyzer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			t := time.Now()
			narratives, analysisErr = p.analyzer.AnalyzeBatch(ctx, run.Records, in.Knowledge)
			run.Timings.Analysis = time.Since(t)
		}()
	}

	wg.Wait()

	run.Results = analysis.Merge(verdicts, narratives)
	run.Timings.Total = time.Since(start)

	runErr := errors.Join(rulesErr, analysisErr)
	run.Partial = runErr != nil || len(run.Results) < len(run.Records)

	p.record(run)

	compliant, nonCompliant := run.Summary()
	logger.Info("review finished",
		"results", len(run.Results),
		"compliant", compliant,
		"non_compliant", nonCompliant,
		"partial", run.Partial,
		"duration", run.Timings.Total,
	)

	if runErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return run, ctxErr
		}
		return run, runErr
	}
	return run, nil
}

func (p *Pipeline) record(run *Run) {
	if p.metrics == nil {
		return
	}
	for _, r := range run.Results {
		p.metrics.ObserveReport(r.ComplianceStatus())
	}
	p.metrics.ObserveWarnings(len(run.Warnings))

	status := "complete"
	if run.Partial {
		status = "partial"
	}
	p.observeRun(status, run.Timings.Total)
}

func (p *Pipeline) observeRun(status string, d time.Duration) {
	if p.metrics != nil {
		p.metrics.ObserveRun(status, d)
	}
}
