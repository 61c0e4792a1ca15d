package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/Lowy-zhangtian/-audit-tool/internal/model"
)

// Header is the column layout of the result table
var Header = []string{
	"report_id",
	"compliance_status",
	"violation_details",
	"assessment",
	"analysis_details",
	"identified_risks",
	"suggested_actions",
}

const listSeparator = "; "

// Options controls the delimited output
type Options struct {
	BOM   bool // Prefix a UTF-8 byte order mark for spreadsheet tools
	Comma rune // Field delimiter; ',' when zero
}

// OptionsFromConfig converts model.ExportConfig to Options
func OptionsFromConfig(cfg model.ExportConfig) (Options, error) {
	opts := Options{BOM: cfg.BOM}
	if cfg.Delimiter == "" {
		return opts, nil
	}

	delim := cfg.Delimiter
	if delim == `\t` {
		delim = "\t"
	}
	r, size := utf8.DecodeRuneInString(delim)
	if size != len(delim) || r == utf8.RuneError || r == '"' || r == '\r' || r == '\n' {
		return opts, fmt.Errorf("invalid export delimiter %q", cfg.Delimiter)
	}
	opts.Comma = r
	return opts, nil
}

// Rows flattens results into table rows, one per report, in input order
func Rows(results []model.ReviewResult) [][]string {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		row := []string{r.ReportID, r.ComplianceStatus(), violationDetails(r.Violations), "", "", "", ""}
		if n := r.Narrative; n != nil {
			row[3] = n.Assessment
			row[4] = n.AnalysisDetails
			row[5] = strings.Join(n.IdentifiedRisks, listSeparator)
			row[6] = strings.Join(n.SuggestedActions, listSeparator)
		}
		rows = append(rows, row)
	}
	return rows
}

// violationDetails joins the violated rules' descriptions
func violationDetails(violations []model.Violation) string {
	parts := make([]string, len(violations))
	for i, v := range violations {
		parts[i] = v.Description
	}
	return strings.Join(parts, listSeparator)
}

// WriteCSV writes the header and one row per result as UTF-8
func WriteCSV(w io.Writer, results []model.ReviewResult, opts Options) error {
	var tw *transform.Writer
	if opts.BOM {
		tw = transform.NewWriter(w, unicode.UTF8BOM.NewEncoder())
		w = tw
	}

	cw := csv.NewWriter(w)
	if opts.Comma != 0 {
		cw.Comma = opts.Comma
	}

	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := cw.WriteAll(Rows(results)); err != nil {
		return fmt.Errorf("write rows: %w", err)
	}

	if tw != nil {
		if err := tw.Close(); err != nil {
			return fmt.Errorf("flush: %w", err)
		}
	}
	return nil
}
