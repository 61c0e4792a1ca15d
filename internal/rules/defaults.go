package rules

import (
	"fmt"

	"github.com/Lowy-zhangtian/-audit-tool/internal/model"
)

// Names of the reference rules
const (
	RuleRevenueConsistency    = "Revenue Data Consistency Check (within 1%)"
	RuleAdjustmentDisclosure  = "Audit Adjustment Disclosure Check"
	RuleProcedureCompleteness = "Audit Procedure Completeness Check"
	RuleKAMAnalysis           = "Key Audit Matters Analysis Check"
)

// Record fields read by the reference rules
const (
	FieldReportedRevenue      = "reported_revenue"
	FieldLedgerRevenue        = "ledger_revenue"
	FieldHasAdjustments       = "has_audit_adjustments"
	FieldAdjustmentsDisclosed = "audit_adjustments_disclosed"
	FieldIsFinancialAudit     = "is_financial_audit"
	FieldProceduresDescribed  = "audit_procedures_described"
	FieldHasKAM               = "has_kam"
	FieldKAMDescription       = "kam_description"
)

// Policy holds the constants baked into the reference rules
type Policy struct {
	RevenueTolerance   float64
	Epsilon            float64
	RequiredProcedures []string
	KAMMarker          string
}

// DefaultPolicy returns the reference policy
func DefaultPolicy() Policy {
	return Policy{
		RevenueTolerance:   0.01,
		Epsilon:            DefaultEpsilon,
		RequiredProcedures: []string{"函证", "监盘"},
		KAMMarker:          "为何对审计重要",
	}
}

// PolicyFromConfig builds a policy from configuration, keeping reference
// values for anything left unset
func PolicyFromConfig(cfg model.RulesConfig) Policy {
	p := DefaultPolicy()
	if cfg.RevenueTolerance > 0 {
		p.RevenueTolerance = cfg.RevenueTolerance
	}
	if cfg.Epsilon > 0 {
		p.Epsilon = cfg.Epsilon
	}
	if len(cfg.RequiredProcedures) > 0 {
		p.RequiredProcedures = append([]string(nil), cfg.RequiredProcedures...)
	}
	if cfg.KAMMarker != "" {
		p.KAMMarker = cfg.KAMMarker
	}
	return p
}

// DefaultRuleSet builds the four reference rules for p in a fresh rule set
func DefaultRuleSet(p Policy) (*RuleSet, error) {
	set := NewRuleSet(nil)

	defs := []struct {
		name, description string
		severity          model.Severity
		when              Expr
	}{
		{
			name:        RuleRevenueConsistency,
			description: "检查报告中披露的营业收入与账面数据差异是否小于1%。",
			severity:    model.SeverityHigh,
			when:        RelativeDiffBelow(FieldReportedRevenue, FieldLedgerRevenue, p.RevenueTolerance, p.Epsilon),
		},
		{
			name:        RuleAdjustmentDisclosure,
			description: "检查若存在审计调整事项，是否在报表附注中详细披露。",
			severity:    model.SeverityHigh,
			when:        Implies(IsTrue(FieldHasAdjustments), IsTrue(FieldAdjustmentsDisclosed)),
		},
		{
			name:        RuleProcedureCompleteness,
			description: "检查金融行业审计报告是否提及了必要的审计程序（函证、监盘）。",
			severity:    model.SeverityMedium,
			when:        Implies(IsTrue(FieldIsFinancialAudit), Superset(FieldProceduresDescribed, p.RequiredProcedures...)),
		},
		{
			name:        RuleKAMAnalysis,
			description: "检查关键审计事项段落是否包含‘为何对审计重要’的分析。",
			severity:    model.SeverityMedium,
			when:        Implies(IsTrue(FieldHasKAM), Contains(FieldKAMDescription, p.KAMMarker)),
		},
	}

	for _, d := range defs {
		r, err := NewRule(d.name, d.description, d.severity, d.when, set.Registry())
		if err != nil {
			return nil, fmt.Errorf("default rules: %w", err)
		}
		if err := set.Add(r); err != nil {
			return nil, fmt.Errorf("default rules: %w", err)
		}
	}
	return set, nil
}
