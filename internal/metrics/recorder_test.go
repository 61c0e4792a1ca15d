package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lowy-zhangtian/-audit-tool/internal/analysis"
	"github.com/Lowy-zhangtian/-audit-tool/internal/rules"
)

var (
	_ rules.Observer    = (*Recorder)(nil)
	_ analysis.Observer = (*Recorder)(nil)
)

func TestRecorder_Rules(t *testing.T) {
	r := NewRecorder()
	r.ObserveRule("revenue", rules.OutcomePass)
	r.ObserveRule("revenue", rules.OutcomeFail)
	r.ObserveRule("revenue", rules.OutcomeFail)
	r.ObserveRule("kam", rules.OutcomeError)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.ruleEvaluations.WithLabelValues("revenue", "pass")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.ruleEvaluations.WithLabelValues("revenue", "fail")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.ruleEvaluations.WithLabelValues("kam", "error")))
}

func TestRecorder_NarrativesAndRuns(t *testing.T) {
	r := NewRecorder()
	r.ObserveNarrative(2*time.Second, false)
	r.ObserveNarrative(time.Second, true)
	r.ObserveReport("compliant")
	r.ObserveWarnings(2)
	r.ObserveRun("partial", 3*time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.narratives.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.narratives.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.reports.WithLabelValues("compliant")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.warnings))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.runs.WithLabelValues("partial")))

	expected := `
# HELP auditreview_runs_total Pipeline runs by status (complete, partial, failed).
# TYPE auditreview_runs_total counter
auditreview_runs_total{status="partial"} 1
`
	require.NoError(t, testutil.GatherAndCompare(r.Registry(), strings.NewReader(expected), "auditreview_runs_total"))
}

func TestRecorder_WriteTextfile(t *testing.T) {
	r := NewRecorder()
	r.ObserveRule("revenue", rules.OutcomeFail)

	path := filepath.Join(t.TempDir(), "auditreview.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `auditreview_rule_evaluations_total{outcome="fail",rule="revenue"} 1`)
}
