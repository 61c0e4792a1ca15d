package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lowy-zhangtian/-audit-tool/internal/logging"
	"github.com/Lowy-zhangtian/-audit-tool/internal/model"
)

func sampleResults() []model.ReviewResult {
	return []model.ReviewResult{
		{
			ReportID: "AR2025-001",
			Violations: []model.Violation{
				{
					RuleName:    "Revenue Data Consistency Check (within 1%)",
					Description: "报告收入与总账收入差异超过1%",
					Severity:    model.SeverityHigh,
					Details:     "Failed on report AR2025-001",
				},
				{
					RuleName:    "Key Audit Matters Analysis Check",
					Description: "关键审计事项未说明为何对审计重要",
					Severity:    model.SeverityMedium,
					Details:     "Failed on report AR2025-001",
				},
			},
			Narrative: &model.Narrative{
				ReportID:         "AR2025-001",
				Assessment:       "可疑",
				AnalysisDetails:  "收入与账面差异较大。",
				IdentifiedRisks:  []string{"收入虚增", "调整未披露"},
				SuggestedActions: []string{"核对总账"},
			},
		},
		{ReportID: "AR2025-002", Violations: []model.Violation{}},
	}
}

func TestRows(t *testing.T) {
	rows := Rows(sampleResults())

	require.Len(t, rows, 2)
	assert.Equal(t, []string{
		"AR2025-001",
		model.StatusNonCompliant,
		"报告收入与总账收入差异超过1%; 关键审计事项未说明为何对审计重要",
		"可疑",
		"收入与账面差异较大。",
		"收入虚增; 调整未披露",
		"核对总账",
	}, rows[0])
	assert.Equal(t, []string{"AR2025-002", model.StatusCompliant, "", "", "", "", ""}, rows[1])
}

func TestWriteCSV_BOM(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleResults(), Options{BOM: true}))

	out := buf.Bytes()
	require.True(t, bytes.HasPrefix(out, []byte{0xEF, 0xBB, 0xBF}), "expected UTF-8 BOM")

	records, err := csv.NewReader(bytes.NewReader(out[3:])).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, Header, records[0])
	assert.Equal(t, "可疑", records[1][3])
}

func TestWriteCSV_Delimiter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleResults()[1:], Options{Comma: '\t'}))

	assert.Equal(t, strings.Join(Header, "\t")+"\nAR2025-002\tcompliant\t\t\t\t\t\n", buf.String())
}

func TestOptionsFromConfig(t *testing.T) {
	opts, err := OptionsFromConfig(model.ExportConfig{BOM: true, Delimiter: `\t`})
	require.NoError(t, err)
	assert.Equal(t, Options{BOM: true, Comma: '\t'}, opts)

	opts, err = OptionsFromConfig(model.ExportConfig{Delimiter: ";"})
	require.NoError(t, err)
	assert.Equal(t, ';', opts.Comma)

	_, err = OptionsFromConfig(model.ExportConfig{Delimiter: ";;"})
	assert.Error(t, err)
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, sampleResults()))

	assert.Contains(t, buf.String(), `"report_id": "AR2025-001"`)
	assert.Contains(t, buf.String(), "Revenue Data Consistency Check (within 1%)")

	var decoded []model.ReviewResult
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, sampleResults(), decoded)
}

type fakeConn struct {
	subjects []string
	payloads [][]byte
	failAt   int
	flushed  bool
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	if f.failAt > 0 && len(f.payloads)+1 == f.failAt {
		return errors.New("nats: connection closed")
	}
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, data)
	return nil
}

func (f *fakeConn) FlushWithContext(ctx context.Context) error {
	f.flushed = true
	return nil
}

func TestNATSPublisher_Publish(t *testing.T) {
	conn := &fakeConn{}
	p := NewNATSPublisher(conn, "", logging.Discard())

	require.NoError(t, p.Publish(context.Background(), "run-1", sampleResults()))

	assert.Equal(t, []string{DefaultSubject, DefaultSubject}, conn.subjects)
	assert.True(t, conn.flushed)

	var msg ResultMessage
	require.NoError(t, json.Unmarshal(conn.payloads[0], &msg))
	assert.Equal(t, "run-1", msg.RunID)
	assert.Equal(t, model.StatusNonCompliant, msg.ComplianceStatus)
	assert.Equal(t, "AR2025-001", msg.Result.ReportID)
	assert.Len(t, msg.Result.Violations, 2)
}

func TestNATSPublisher_StopsOnFailure(t *testing.T) {
	conn := &fakeConn{failAt: 2}
	p := NewNATSPublisher(conn, "audit.out", logging.Discard())

	err := p.Publish(context.Background(), "run-1", sampleResults())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "AR2025-002")
	assert.Len(t, conn.payloads, 1)
	assert.False(t, conn.flushed)
}

func TestNATSPublisher_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	conn := &fakeConn{}
	err := NewNATSPublisher(conn, "audit.out", logging.Discard()).Publish(ctx, "run-1", sampleResults())

	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, conn.payloads)
}
