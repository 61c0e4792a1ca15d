package model

import (
	"fmt"
	"strings"
)

// Severity indicates how serious a rule violation is
type Severity string

const (
	SeverityLow      Severity = "Low"
	SeverityMedium   Severity = "Medium"
	SeverityHigh     Severity = "High"
	SeverityCritical Severity = "Critical"
)

// ParseSeverity parses a severity name case-insensitively
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return SeverityLow, nil
	case "medium":
		return SeverityMedium, nil
	case "high":
		return SeverityHigh, nil
	case "critical":
		return SeverityCritical, nil
	}
	return "", fmt.Errorf("unknown severity %q (supported: Low, Medium, High, Critical)", s)
}

// Rank returns a numeric rank for sorting (higher = more severe)
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// MarshalText implements encoding.TextMarshaler
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *Severity) UnmarshalText(b []byte) error {
	parsed, err := ParseSeverity(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Violation is a failed-rule outcome attached to one report
type Violation struct {
	RuleName    string   `json:"rule_name"`
	Description string   `json:"description"`
	Severity    Severity `json:"severity"`
	Details     string   `json:"details"`
}

// RuleVerdict holds every violation found for one report, in rule registration order
type RuleVerdict struct {
	ReportID   string      `json:"report_id"`
	Violations []Violation `json:"violations"`
}

// Compliant reports whether no rule was violated
func (v RuleVerdict) Compliant() bool {
	return len(v.Violations) == 0
}

// HighestSeverity returns the most severe violation level, or "" when compliant
func (v RuleVerdict) HighestSeverity() Severity {
	var highest Severity
	for _, vi := range v.Violations {
		if vi.Severity.Rank() > highest.Rank() {
			highest = vi.Severity
		}
	}
	return highest
}

// AssessmentUnparsed marks a narrative whose model response had no usable structure
const AssessmentUnparsed = "Unparsed"

// Narrative is the model-derived assessment for one report
type Narrative struct {
	ReportID         string   `json:"report_id"`
	Assessment       string   `json:"assessment"`
	AnalysisDetails  string   `json:"analysis_details"`
	IdentifiedRisks  []string `json:"identified_risks"`
	SuggestedActions []string `json:"suggested_actions"`
	RawResponse      string   `json:"raw_response"`
	Error            string   `json:"error,omitempty"` // Set when the model call itself failed
}

// Failed reports whether the narrative was degraded by a model failure
func (n Narrative) Failed() bool {
	return n.Error != ""
}

// Compliance status labels used in exports
const (
	StatusCompliant    = "compliant"
	StatusNonCompliant = "non-compliant"
)

// ReviewResult joins a rule verdict with the narrative for the same report.
// Narrative is nil when no narrative matched.
type ReviewResult struct {
	ReportID   string      `json:"report_id"`
	Violations []Violation `json:"violations"`
	Narrative  *Narrative  `json:"narrative,omitempty"`
}

// ComplianceStatus derives the export status from the violations
func (r ReviewResult) ComplianceStatus() string {
	if len(r.Violations) == 0 {
		return StatusCompliant
	}
	return StatusNonCompliant
}
