package rules

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lowy-zhangtian/-audit-tool/internal/model"
)

const samplePack = `rules:
  - name: Invoice Amount Limit
    description: 单张发票金额不得超过五万元
    severity: high
    when:
      op: compare
      field: amount
      cmp: le
      value: 50000
  - name: Supplier Present
    description: Extracted invoices must name a supplier
    severity: Low
    when:
      op: implies
      if:
        op: present
        field: invoice_number
      then:
        op: present
        field: supplier
`

func TestReadPack(t *testing.T) {
	set, err := DefaultRuleSet(DefaultPolicy())
	require.NoError(t, err)

	n, err := ReadPack(set, strings.NewReader(samplePack))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 6, set.Len())

	rule, ok := set.Get("Invoice Amount Limit")
	require.True(t, ok)
	assert.Equal(t, model.SeverityHigh, rule.Severity)

	verdict := NewEngine(set).Evaluate(model.NewRecord("INV-1",
		f("amount", 62000.0),
		f("invoice_number", "No.00123"),
	))
	assert.Equal(t, []string{"Invoice Amount Limit", "Supplier Present"}, violationNames(verdict))
}

func TestReadPack_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown field", "rules:\n  - name: x\n    severity: low\n    colour: red\n"},
		{"bad severity", "rules:\n  - name: x\n    severity: extreme\n    when: {op: present, field: a}\n"},
		{"bad op", "rules:\n  - name: x\n    severity: low\n    when: {op: matches, field: a}\n"},
		{"duplicate of default", "rules:\n  - name: Audit Adjustment Disclosure Check\n    severity: low\n    when: {op: present, field: a}\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set, err := DefaultRuleSet(DefaultPolicy())
			require.NoError(t, err)

			_, err = ReadPack(set, strings.NewReader(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestReadPack_Empty(t *testing.T) {
	n, err := ReadPack(NewRuleSet(nil), strings.NewReader(""))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestWritePack_RoundTrip(t *testing.T) {
	set, err := DefaultRuleSet(DefaultPolicy())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WritePack(&buf, set.Rules()))
	assert.Contains(t, buf.String(), "op: relative_diff_below")
	assert.Contains(t, buf.String(), "severity: High")

	reloaded := NewRuleSet(nil)
	n, err := ReadPack(reloaded, &buf)
	require.NoError(t, err)
	assert.Equal(t, set.Names(), reloaded.Names())
	assert.Equal(t, 4, n)

	rec := model.NewRecord("R1",
		f(FieldReportedRevenue, 990000),
		f(FieldLedgerRevenue, 1000000),
		f(FieldHasKAM, true),
	)
	assert.Equal(t, NewEngine(set).Evaluate(rec), NewEngine(reloaded).Evaluate(rec))
}

func TestFromConfig(t *testing.T) {
	dir := t.TempDir()
	packPath := filepath.Join(dir, "extra.yaml")
	require.NoError(t, os.WriteFile(packPath, []byte(samplePack), 0644))

	cfg := model.DefaultConfig().Rules
	cfg.RequiredProcedures = []string{"函证"}
	cfg.Packs = []string{packPath}
	cfg.Disabled = []string{RuleKAMAnalysis, "Supplier Present"}

	set, err := FromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{
		RuleRevenueConsistency,
		RuleAdjustmentDisclosure,
		RuleProcedureCompleteness,
		"Invoice Amount Limit",
	}, set.Names())

	verdict := NewEngine(set).Evaluate(model.NewRecord("R1",
		f(FieldIsFinancialAudit, true),
		f(FieldProceduresDescribed, []string{"函证"}),
	))
	assert.True(t, verdict.Compliant())
}

func TestFromConfig_MissingPack(t *testing.T) {
	cfg := model.DefaultConfig().Rules
	cfg.Packs = []string{filepath.Join(t.TempDir(), "absent.yaml")}

	_, err := FromConfig(cfg)
	assert.ErrorContains(t, err, "read rules pack")
}
