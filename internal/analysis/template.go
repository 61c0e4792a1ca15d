package analysis

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Template holds the literal wording of the review prompt. The four
// instructions must stay numbered 1-4 in this order for ParseResponse
// to read the model's answer.
type Template struct {
	Preamble          string    `yaml:"preamble"`
	RecordHeader      string    `yaml:"record_header"`
	KnowledgeHeader   string    `yaml:"knowledge_header"`
	InstructionHeader string    `yaml:"instruction_header"`
	Instructions      [4]string `yaml:"instructions"`
	Closing           string    `yaml:"closing"`
	MissingValue      string    `yaml:"missing_value"`
}

// DefaultTemplate returns the reference auditor prompt wording
func DefaultTemplate() Template {
	return Template{
		Preamble: "You are an expert financial auditor. Review the following audit report information " +
			"and assess its compliance, reasonableness, and identify any potential risks or anomalies.",
		RecordHeader:      "Audit Report Information:",
		KnowledgeHeader:   "Relevant Audit Knowledge (Policies, Regulations, Past Issues):",
		InstructionHeader: "Based on the above, please provide:",
		Instructions: [4]string{
			"Overall Assessment (e.g., Compliant, Non-Compliant, Suspicious, Reasonable, Unreasonable).",
			"Detailed Analysis: Explain your reasoning. Identify specific elements from the report that support " +
				"your assessment. Mention any inconsistencies, missing information, or unusual patterns.",
			"Risk Identification: List any potential risks (e.g., fraud, error, non-compliance with policy XYZ, " +
				"operational inefficiency).",
			"Suggested Actions (if any): Recommend further steps if issues are found (e.g., request additional " +
				"documentation, verify with manager, flag for manual review).",
		},
		Closing:      "Your Response:",
		MissingValue: "N/A",
	}
}

// LoadTemplate reads a YAML template file. Fields it leaves empty keep
// the default wording.
func LoadTemplate(path string) (Template, error) {
	tpl := DefaultTemplate()

	data, err := os.ReadFile(path)
	if err != nil {
		return tpl, fmt.Errorf("read prompt template: %w", err)
	}

	var override Template
	if err := yaml.Unmarshal(data, &override); err != nil {
		return tpl, fmt.Errorf("parse prompt template: %w", err)
	}

	tpl.merge(override)
	return tpl, nil
}

func (t *Template) merge(o Template) {
	set := func(dst *string, src string) {
		if src != "" {
			*dst = src
		}
	}
	set(&t.Preamble, o.Preamble)
	set(&t.RecordHeader, o.RecordHeader)
	set(&t.KnowledgeHeader, o.KnowledgeHeader)
	set(&t.InstructionHeader, o.InstructionHeader)
	set(&t.Closing, o.Closing)
	set(&t.MissingValue, o.MissingValue)
	for i := range t.Instructions {
		set(&t.Instructions[i], o.Instructions[i])
	}
}
