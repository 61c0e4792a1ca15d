package analysis

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/Lowy-zhangtian/-audit-tool/internal/model"
)

// PromptBuilder renders records into model prompts
type PromptBuilder struct {
	tpl Template
}

// NewPromptBuilder creates a builder for tpl
func NewPromptBuilder(tpl Template) *PromptBuilder {
	return &PromptBuilder{tpl: tpl}
}

// Build renders every field of rec as "- Title Case Key: value", then the
// knowledge snippets when there are any, then the instruction block.
// The output depends only on rec, knowledge and the template.
func (b *PromptBuilder) Build(rec model.Record, knowledge []string) string {
	// Casers keep state and are not shared across goroutines
	title := cases.Title(language.Und)

	var sb strings.Builder
	sb.WriteString(b.tpl.Preamble)
	sb.WriteString("\n\n")

	sb.WriteString(b.tpl.RecordHeader)
	sb.WriteString("\n")
	for _, field := range rec.Fields() {
		value := b.tpl.MissingValue
		if field.Value != nil {
			value = model.FormatValue(field.Value)
		}
		fmt.Fprintf(&sb, "- %s: %s\n", title.String(strings.ReplaceAll(field.Key, "_", " ")), value)
	}

	if len(knowledge) > 0 {
		sb.WriteString("\n")
		sb.WriteString(b.tpl.KnowledgeHeader)
		sb.WriteString("\n")
		for _, item := range knowledge {
			fmt.Fprintf(&sb, "- %s\n", item)
		}
	}

	sb.WriteString("\n")
	sb.WriteString(b.tpl.InstructionHeader)
	sb.WriteString("\n")
	for i, instruction := range b.tpl.Instructions {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, instruction)
	}

	sb.WriteString("\n")
	sb.WriteString(b.tpl.Closing)
	return sb.String()
}
