package rules

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Lowy-zhangtian/-audit-tool/internal/model"
	"github.com/Lowy-zhangtian/-audit-tool/internal/worker"
)

// Outcome of evaluating one rule against one record
type Outcome string

const (
	OutcomePass  Outcome = "pass"
	OutcomeFail  Outcome = "fail"
	OutcomeError Outcome = "error"
)

// Observer receives one call per rule evaluation
type Observer interface {
	ObserveRule(rule string, outcome Outcome)
}

// RuleEvaluationError is a condition that failed or panicked on a record
type RuleEvaluationError struct {
	Rule     string
	ReportID string
	Err      error
}

func (e *RuleEvaluationError) Error() string {
	return fmt.Sprintf("rule %q on report %s: %v", e.Rule, e.ReportID, e.Err)
}

func (e *RuleEvaluationError) Unwrap() error {
	return e.Err
}

// Engine evaluates a fixed snapshot of a rule set against records
type Engine struct {
	rules    []Rule
	workers  int
	logger   *slog.Logger
	observer Observer
}

// EngineOption configures an Engine
type EngineOption func(*Engine)

// WithWorkers bounds parallel record evaluation in EvaluateBatch
func WithWorkers(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithLogger sets the engine logger
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithObserver registers an evaluation observer (metrics)
func WithObserver(o Observer) EngineOption {
	return func(e *Engine) {
		e.observer = o
	}
}

// NewEngine creates an engine over the rules currently in set
func NewEngine(set *RuleSet, opts ...EngineOption) *Engine {
	e := &Engine{
		workers: 4,
		logger:  slog.Default(),
	}
	if set != nil {
		e.rules = set.Rules()
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Rules returns the rules this engine evaluates, in order
func (e *Engine) Rules() []Rule {
	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// Evaluate checks every rule against rec in registration order.
// Condition errors and panics become Critical violations; evaluation
// always continues with the next rule. A record without an identity is
// treated as the first of a batch (Report_1).
func (e *Engine) Evaluate(rec model.Record) model.RuleVerdict {
	return e.evaluate(rec, model.ResolveID(rec, 0))
}

func (e *Engine) evaluate(rec model.Record, reportID string) model.RuleVerdict {
	verdict := model.RuleVerdict{
		ReportID:   reportID,
		Violations: []model.Violation{},
	}

	for _, rule := range e.rules {
		ok, err := e.check(rule, rec, reportID)
		switch {
		case err != nil:
			e.observe(rule.Name, OutcomeError)
			e.logger.Warn("rule execution failed",
				"report_id", reportID,
				"rule", rule.Name,
				"error", err)
			verdict.Violations = append(verdict.Violations, model.Violation{
				RuleName:    rule.Name,
				Description: "rule execution failed: " + err.Err.Error(),
				Severity:    model.SeverityCritical,
				Details:     "Error on report " + reportID,
			})

		case !ok:
			e.observe(rule.Name, OutcomeFail)
			e.logger.Info("rule violated",
				"report_id", reportID,
				"rule", rule.Name,
				"severity", rule.Severity)
			verdict.Violations = append(verdict.Violations, model.Violation{
				RuleName:    rule.Name,
				Description: rule.Description,
				Severity:    rule.Severity,
				Details:     "Failed on report " + reportID,
			})

		default:
			e.observe(rule.Name, OutcomePass)
		}
	}

	return verdict
}

// check runs one condition, converting errors and panics into a RuleEvaluationError
func (e *Engine) check(rule Rule, rec model.Record, reportID string) (ok bool, evalErr *RuleEvaluationError) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			evalErr = &RuleEvaluationError{Rule: rule.Name, ReportID: reportID, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	if rule.cond == nil {
		return false, &RuleEvaluationError{Rule: rule.Name, ReportID: reportID, Err: fmt.Errorf("rule has no compiled condition")}
	}

	ok, err := rule.cond.Evaluate(rec)
	if err != nil {
		return false, &RuleEvaluationError{Rule: rule.Name, ReportID: reportID, Err: err}
	}
	return ok, nil
}

func (e *Engine) observe(rule string, outcome Outcome) {
	if e.observer != nil {
		e.observer.ObserveRule(rule, outcome)
	}
}

// evalJob evaluates one record on the worker pool
type evalJob struct {
	engine   *Engine
	rec      model.Record
	reportID string
}

func (j *evalJob) Execute(ctx context.Context) worker.Result {
	return &evalResult{verdict: j.engine.evaluate(j.rec, j.reportID)}
}

type evalResult struct {
	verdict model.RuleVerdict
}

func (r *evalResult) GetError() error {
	return nil
}

// EvaluateBatch evaluates records concurrently and returns verdicts in input order.
// Records without an identity get their positional fallback. On cancellation the
// verdicts finished so far are returned, still in input order, with ctx.Err().
func (e *Engine) EvaluateBatch(ctx context.Context, records []model.Record) ([]model.RuleVerdict, error) {
	if len(records) == 0 {
		return []model.RuleVerdict{}, ctx.Err()
	}

	jobs := make([]worker.Job, len(records))
	for i, rec := range records {
		jobs[i] = &evalJob{engine: e, rec: rec, reportID: model.ResolveID(rec, i)}
	}

	results, err := worker.NewOrderedBatch(e.workers).Run(ctx, jobs)

	verdicts := make([]model.RuleVerdict, 0, len(results))
	for _, r := range results {
		verdicts = append(verdicts, r.Result.(*evalResult).verdict)
	}

	if err != nil {
		e.logger.Warn("rule evaluation cancelled",
			"completed", len(verdicts),
			"total", len(records),
			"error", err)
		return verdicts, err
	}
	return verdicts, nil
}
