package rules

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lowy-zhangtian/-audit-tool/internal/model"
)

func f(key string, value any) model.Field {
	return model.Field{Key: key, Value: value}
}

func compliantReport(id string) model.Record {
	return model.NewRecord(id,
		f("report_id", id),
		f(FieldReportedRevenue, 1000000.0),
		f(FieldLedgerRevenue, 1005000.0),
		f(FieldHasAdjustments, false),
		f(FieldAdjustmentsDisclosed, false),
		f(FieldIsFinancialAudit, true),
		f(FieldProceduresDescribed, []string{"函证", "监盘", "分析性复核"}),
		f(FieldHasKAM, true),
		f(FieldKAMDescription, "该事项为何对审计重要：存货跌价准备对财务报表影响重大。"),
	)
}

func defaultEngine(t *testing.T, opts ...EngineOption) *Engine {
	t.Helper()
	set, err := DefaultRuleSet(DefaultPolicy())
	require.NoError(t, err)
	return NewEngine(set, opts...)
}

func violationNames(v model.RuleVerdict) []string {
	names := make([]string, len(v.Violations))
	for i, vi := range v.Violations {
		names[i] = vi.RuleName
	}
	return names
}

func TestEngine_DefaultRules(t *testing.T) {
	engine := defaultEngine(t)

	tests := []struct {
		name   string
		rec    model.Record
		expect []string
	}{
		{
			name:   "compliant",
			rec:    compliantReport("AR202501"),
			expect: []string{},
		},
		{
			name: "revenue mismatch",
			rec: model.NewRecord("AR202502",
				f(FieldReportedRevenue, 900000.0),
				f(FieldLedgerRevenue, 1000000.0),
			),
			expect: []string{RuleRevenueConsistency},
		},
		{
			name: "missing disclosure",
			rec: model.NewRecord("AR202503",
				f(FieldHasAdjustments, true),
				f(FieldAdjustmentsDisclosed, false),
			),
			expect: []string{RuleAdjustmentDisclosure},
		},
		{
			name: "missing procedure",
			rec: model.NewRecord("AR202504",
				f(FieldIsFinancialAudit, true),
				f(FieldProceduresDescribed, "分析性复核"),
			),
			expect: []string{RuleProcedureCompleteness},
		},
		{
			name: "KAM without rationale",
			rec: model.NewRecord("AR202505",
				f(FieldHasKAM, true),
				f(FieldKAMDescription, "存货跌价准备。"),
			),
			expect: []string{RuleKAMAnalysis},
		},
		{
			name:   "empty record passes every conditional rule",
			rec:    model.NewRecord("AR202506"),
			expect: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict := engine.Evaluate(tt.rec)
			assert.Equal(t, tt.rec.ID(), verdict.ReportID)
			assert.Equal(t, tt.expect, violationNames(verdict))
		})
	}
}

func TestEngine_RevenueBoundary(t *testing.T) {
	engine := defaultEngine(t)

	exact := engine.Evaluate(model.NewRecord("R1",
		f(FieldReportedRevenue, 990000),
		f(FieldLedgerRevenue, 1000000),
	))
	require.Len(t, exact.Violations, 1, "a difference of exactly one percent is not below the tolerance")
	assert.Equal(t, RuleRevenueConsistency, exact.Violations[0].RuleName)
	assert.Equal(t, model.SeverityHigh, exact.Violations[0].Severity)
	assert.Equal(t, "Failed on report R1", exact.Violations[0].Details)

	within := engine.Evaluate(model.NewRecord("R2",
		f(FieldReportedRevenue, 995000),
		f(FieldLedgerRevenue, 1000000),
	))
	assert.Empty(t, within.Violations)
}

func TestEngine_RevenueZeroLedger(t *testing.T) {
	engine := defaultEngine(t)

	both := engine.Evaluate(model.NewRecord("R1",
		f(FieldReportedRevenue, 0),
		f(FieldLedgerRevenue, 0),
	))
	assert.Empty(t, both.Violations)

	reportedOnly := engine.Evaluate(model.NewRecord("R2",
		f(FieldReportedRevenue, 10),
		f(FieldLedgerRevenue, 0),
	))
	assert.Equal(t, []string{RuleRevenueConsistency}, violationNames(reportedOnly))
}

func TestEngine_ErrorIsContained(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("explode", func(model.Record) (bool, error) {
		return false, errors.New("boom")
	}))
	require.NoError(t, reg.Register("always", func(model.Record) (bool, error) {
		return true, nil
	}))

	set := NewRuleSet(reg)
	require.NoError(t, set.Add(Rule{Name: "raising", Description: "raises", Severity: model.SeverityLow, When: Func("explode")}))
	require.NoError(t, set.Add(Rule{Name: "passing", Description: "passes", Severity: model.SeverityLow, When: Func("always")}))

	verdict := NewEngine(set).Evaluate(model.NewRecord("R1"))

	require.Len(t, verdict.Violations, 1)
	v := verdict.Violations[0]
	assert.Equal(t, "raising", v.RuleName)
	assert.Equal(t, model.SeverityCritical, v.Severity)
	assert.Equal(t, "rule execution failed: boom", v.Description)
	assert.Equal(t, "Error on report R1", v.Details)
}

func TestEngine_PanicIsContained(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("panics", func(model.Record) (bool, error) {
		panic("nil map")
	}))

	set := NewRuleSet(reg)
	require.NoError(t, set.Add(Rule{Name: "panicking", Severity: model.SeverityMedium, When: Func("panics")}))
	require.NoError(t, set.Add(Rule{Name: "kam", Severity: model.SeverityMedium, When: Implies(IsTrue(FieldHasKAM), Contains(FieldKAMDescription, "x"))}))

	verdict := NewEngine(set).Evaluate(model.NewRecord("R1", f(FieldHasKAM, true)))

	assert.Equal(t, []string{"panicking", "kam"}, violationNames(verdict))
	assert.Equal(t, model.SeverityCritical, verdict.Violations[0].Severity)
	assert.Contains(t, verdict.Violations[0].Description, "panic: nil map")
	assert.Equal(t, model.SeverityMedium, verdict.Violations[1].Severity)
}

func TestEngine_UnparseableValueIsCritical(t *testing.T) {
	engine := defaultEngine(t)

	verdict := engine.Evaluate(model.NewRecord("R1",
		f(FieldReportedRevenue, "n/a"),
		f(FieldLedgerRevenue, 100),
	))

	require.Len(t, verdict.Violations, 1)
	assert.Equal(t, model.SeverityCritical, verdict.Violations[0].Severity)
	assert.Contains(t, verdict.Violations[0].Description, "rule execution failed")
}

func TestEngine_Deterministic(t *testing.T) {
	engine := defaultEngine(t)
	rec := model.NewRecord("R1",
		f(FieldReportedRevenue, 900000),
		f(FieldLedgerRevenue, 1000000),
		f(FieldHasKAM, true),
	)

	first := engine.Evaluate(rec)
	second := engine.Evaluate(rec)
	assert.Equal(t, first, second)
}

func TestEngine_SnapshotIgnoresLaterAdds(t *testing.T) {
	set, err := DefaultRuleSet(DefaultPolicy())
	require.NoError(t, err)
	engine := NewEngine(set)

	require.NoError(t, set.Add(Rule{Name: "late", Severity: model.SeverityLow, When: Present("anything")}))

	assert.Len(t, engine.Rules(), 4)
	assert.Empty(t, engine.Evaluate(model.NewRecord("R1")).Violations)
}

type countingObserver struct {
	counts map[Outcome]int
}

func (o *countingObserver) ObserveRule(rule string, outcome Outcome) {
	o.counts[outcome]++
}

func TestEngine_Observer(t *testing.T) {
	obs := &countingObserver{counts: map[Outcome]int{}}
	engine := defaultEngine(t, WithObserver(obs))

	engine.Evaluate(model.NewRecord("R1",
		f(FieldReportedRevenue, 900000),
		f(FieldLedgerRevenue, 1000000),
	))

	assert.Equal(t, 3, obs.counts[OutcomePass])
	assert.Equal(t, 1, obs.counts[OutcomeFail])
	assert.Equal(t, 0, obs.counts[OutcomeError])
}

func TestEngine_EvaluateBatch(t *testing.T) {
	engine := defaultEngine(t, WithWorkers(3))

	records := make([]model.Record, 20)
	for i := range records {
		ledger := 1000000.0
		reported := ledger
		if i%2 == 1 {
			reported = 900000
		}
		records[i] = model.NewRecord("", f(FieldReportedRevenue, reported), f(FieldLedgerRevenue, ledger))
	}

	verdicts, err := engine.EvaluateBatch(context.Background(), records)
	require.NoError(t, err)
	require.Len(t, verdicts, len(records))

	for i, v := range verdicts {
		assert.Equal(t, model.FallbackID(i), v.ReportID)
		assert.Equal(t, i%2 == 1, !v.Compliant(), "record %d", i)
	}
}

func TestEngine_EvaluateBatchCancelled(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("slow", func(model.Record) (bool, error) {
		time.Sleep(20 * time.Millisecond)
		return true, nil
	}))
	set := NewRuleSet(reg)
	require.NoError(t, set.Add(Rule{Name: "slow", Severity: model.SeverityLow, When: Func("slow")}))
	engine := NewEngine(set, WithWorkers(1))

	records := make([]model.Record, 50)
	for i := range records {
		records[i] = model.NewRecord(fmt.Sprintf("R%03d", i))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	verdicts, err := engine.EvaluateBatch(ctx, records)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, len(verdicts), len(records))

	for i := 1; i < len(verdicts); i++ {
		assert.Less(t, verdicts[i-1].ReportID, verdicts[i].ReportID)
	}
}

func TestEngine_EvaluateBatchEmpty(t *testing.T) {
	verdicts, err := defaultEngine(t).EvaluateBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, verdicts)
}

func TestEngine_EvaluateWithoutIdentity(t *testing.T) {
	set := NewRuleSet(nil)
	require.NoError(t, set.Add(Rule{Name: "needs field", Description: "field required", Severity: model.SeverityLow, When: Present("x")}))

	verdict := NewEngine(set).Evaluate(model.NewRecord(""))

	assert.Equal(t, "Report_1", verdict.ReportID)
	require.Len(t, verdict.Violations, 1)
	assert.Equal(t, "Failed on report Report_1", verdict.Violations[0].Details)
}
