package ingest

import (
	"regexp"
	"strings"

	"github.com/Lowy-zhangtian/-audit-tool/internal/model"
)

// Extracted field names
const (
	FieldInvoiceCode    = "invoice_code"
	FieldInvoiceNumber  = "invoice_number"
	FieldContractNumber = "contract_number"
	FieldAmount         = "amount"
	FieldTaxAmount      = "tax_amount"
	FieldTotalAmount    = "total_amount"
	FieldSupplierName   = "supplier_name"
	FieldItemName       = "item_name"
	FieldQuantity       = "quantity"
	FieldDate           = "date"
)

const (
	codeValue   = `([A-Za-z0-9][A-Za-z0-9-]*)`
	moneyValue  = `([¥￥$]?\s?-?[0-9][0-9,]*(?:\.[0-9]+)?)`
	numberValue = `([0-9]+(?:\.[0-9]+)?)`
	dateValue   = `([0-9]{4}[-/.年][0-9]{1,2}[-/.月][0-9]{1,2}日?)`
	// Free text runs until a separator or the next "Label:"
	textValue = `([^,，;；:：\n]+?)\s*(?:[,，;；\n]|\s+[^\s,，;；:：]+\s*[:：]|$)`
)

type fieldPattern struct {
	key     string
	re      *regexp.Regexp
	numeric bool
	exclude []string // label prefixes that belong to another field
}

func pattern(key, labels, value string, numeric bool, exclude ...string) fieldPattern {
	return fieldPattern{
		key:     key,
		re:      regexp.MustCompile(`(?i)(?:` + labels + `)\s*[:：]\s*` + value),
		numeric: numeric,
		exclude: exclude,
	}
}

var defaultPatterns = []fieldPattern{
	pattern(FieldInvoiceCode, `发票代码|invoice\s*code`, codeValue, false),
	pattern(FieldInvoiceNumber, `发票号码|invoice\s*(?:number|no\.?)`, codeValue, false),
	pattern(FieldContractNumber, `合同编号|contract\s*(?:number|no\.?)`, codeValue, false),
	pattern(FieldAmount, `金额|amount`, moneyValue, true, "总", "含税", "tax", "total"),
	pattern(FieldTaxAmount, `税额|tax\s*amount`, moneyValue, true),
	pattern(FieldTotalAmount, `总金额|价税合计|total\s*amount|total`, moneyValue, true),
	pattern(FieldSupplierName, `供应商名称|销售方名称|供应商|supplier(?:\s*name)?|vendor`, textValue, false),
	pattern(FieldItemName, `商品名称|货物名称|项目名称|item(?:\s*name)?`, textValue, false),
	pattern(FieldQuantity, `数量|quantity|qty`, numberValue, true),
	pattern(FieldDate, `开票日期|签订日期|日期|date`, dateValue, false),
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// CleanText collapses runs of whitespace into single spaces
func CleanText(text string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(text, " "))
}

// StandardizeSupplierName upper-cases a supplier name and expands common
// company suffix abbreviations
func StandardizeSupplierName(name string) string {
	s := strings.ToUpper(strings.TrimSpace(name))
	s = strings.ReplaceAll(s, "CO.", "COMPANY")
	s = strings.ReplaceAll(s, "LTD.", "LIMITED")
	return s
}

// FieldExtractor pulls key financial fields out of document text
type FieldExtractor struct {
	patterns []fieldPattern
}

// NewFieldExtractor creates an extractor with the built-in invoice and
// contract field patterns
func NewFieldExtractor() *FieldExtractor {
	return &FieldExtractor{patterns: defaultPatterns}
}

// Extract returns the fields found in text, in a fixed field order.
// Numeric fields are parsed; values that fail to parse stay as text.
func (e *FieldExtractor) Extract(text string) model.Row {
	clean := CleanText(text)
	row := model.Row{}

	for _, p := range e.patterns {
		raw, ok := p.find(clean)
		if !ok {
			continue
		}

		var value any = raw
		switch {
		case p.numeric:
			if f, err := model.ParseNumber(strings.TrimRight(raw, ",")); err == nil {
				value = f
			}
		case p.key == FieldSupplierName:
			value = StandardizeSupplierName(raw)
		}
		row = append(row, model.Field{Key: p.key, Value: value})
	}
	return row
}

func (p fieldPattern) find(text string) (string, bool) {
	for _, m := range p.re.FindAllStringSubmatchIndex(text, -1) {
		if p.excluded(text[:m[0]]) {
			continue
		}
		value := strings.TrimSpace(text[m[2]:m[3]])
		if value != "" {
			return value, true
		}
	}
	return "", false
}

func (p fieldPattern) excluded(before string) bool {
	before = strings.ToLower(strings.TrimRight(before, " "))
	for _, prefix := range p.exclude {
		if strings.HasSuffix(before, prefix) {
			return true
		}
	}
	return false
}
