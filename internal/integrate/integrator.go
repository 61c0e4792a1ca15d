package integrate

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Lowy-zhangtian/-audit-tool/internal/model"
)

// ErrDuplicateReportID is returned when two records in one batch share an identity
var ErrDuplicateReportID = errors.New("duplicate report id")

// MergeKeyMismatch signals that structured and extracted rows could not be
// aligned by position; the extracted rows were used alone
type MergeKeyMismatch struct {
	Structured int
	Extracted  int
}

func (m *MergeKeyMismatch) Error() string {
	return fmt.Sprintf("merge key mismatch: %d structured rows vs %d extracted records, using extracted records only",
		m.Structured, m.Extracted)
}

// Result is the outcome of one integration
type Result struct {
	Records  []model.Record
	Warnings []error
}

// Integrator unifies structured rows with extracted-field records
type Integrator struct {
	idFields      []string
	numericFields map[string]bool
	logger        *slog.Logger
}

// New creates an integrator from configuration. Empty settings fall back to defaults.
func New(cfg model.IntegrationConfig, logger *slog.Logger) *Integrator {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := model.DefaultConfig().Integration

	idFields := cfg.IDFields
	if len(idFields) == 0 {
		idFields = defaults.IDFields
	}
	numeric := cfg.NumericFields
	if len(numeric) == 0 {
		numeric = defaults.NumericFields
	}

	in := &Integrator{
		idFields:      append([]string(nil), idFields...),
		numericFields: make(map[string]bool, len(numeric)),
		logger:        logger,
	}
	for _, name := range numeric {
		in.numericFields[name] = true
	}
	return in
}

// Integrate builds one record per report.
//
// With both inputs of equal length, record i is the union of structured row i
// and extracted row i, extracted values winning on collision. With unequal
// lengths the extracted rows are used alone and a *MergeKeyMismatch warning is
// returned in the result. Amount-like fields of extracted rows are coerced to
// numbers; values that fail coercion become absent.
func (in *Integrator) Integrate(structured, extracted []model.Row) (*Result, error) {
	res := &Result{Records: []model.Record{}}

	var rows []model.Row
	switch {
	case len(structured) == 0 && len(extracted) == 0:
		return res, nil

	case len(structured) == 0:
		rows = in.coerceAll(extracted)

	case len(extracted) == 0:
		rows = structured

	case len(structured) == len(extracted):
		coerced := in.coerceAll(extracted)
		rows = make([]model.Row, len(structured))
		for i := range structured {
			rows[i] = union(structured[i], coerced[i])
		}

	default:
		mismatch := &MergeKeyMismatch{Structured: len(structured), Extracted: len(extracted)}
		in.logger.Warn("integration fell back to extracted records",
			"structured", mismatch.Structured,
			"extracted", mismatch.Extracted)
		res.Warnings = append(res.Warnings, mismatch)
		rows = in.coerceAll(extracted)
	}

	seen := make(map[string]int, len(rows))
	for i, row := range rows {
		id := in.identity(row, i)
		if prev, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: %q at rows %d and %d", ErrDuplicateReportID, id, prev+1, i+1)
		}
		seen[id] = i

		res.Records = append(res.Records, model.NewRecord(id, row...))
	}

	return res, nil
}

// identity returns the first non-empty id field, or the positional fallback
func (in *Integrator) identity(row model.Row, index int) string {
	for _, key := range in.idFields {
		v, ok := row.Get(key)
		if !ok || v == nil {
			continue
		}
		if id := strings.TrimSpace(model.FormatValue(v)); id != "" {
			return id
		}
	}
	return model.FallbackID(index)
}

func (in *Integrator) coerceAll(rows []model.Row) []model.Row {
	out := make([]model.Row, len(rows))
	for i, row := range rows {
		out[i] = in.coerce(row)
	}
	return out
}

// coerce converts configured amount fields to float64 on a copy of row
func (in *Integrator) coerce(row model.Row) model.Row {
	out := make(model.Row, len(row))
	for i, field := range row {
		if in.numericFields[field.Key] && field.Value != nil {
			n, err := toNumber(field.Value)
			if err != nil {
				in.logger.Debug("numeric coercion failed",
					"field", field.Key,
					"value", field.Value,
					"error", err)
				field.Value = nil
			} else {
				field.Value = n
			}
		}
		out[i] = field
	}
	return out
}

func toNumber(v any) (float64, error) {
	rec := model.NewRecord("", model.Field{Key: "v", Value: v})
	return rec.Float("v", 0)
}

// union overlays extracted on structured. Keys keep the position of their
// first appearance; extracted values replace structured ones unless absent.
func union(structured, extracted model.Row) model.Row {
	out := make(model.Row, 0, len(structured)+len(extracted))
	pos := make(map[string]int, len(structured)+len(extracted))

	for _, fields := range []model.Row{structured, extracted} {
		for _, field := range fields {
			if i, ok := pos[field.Key]; ok {
				if field.Value != nil {
					out[i].Value = field.Value
				}
				continue
			}
			pos[field.Key] = len(out)
			out = append(out, field)
		}
	}
	return out
}
