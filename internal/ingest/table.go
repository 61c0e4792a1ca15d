package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
	"gopkg.in/yaml.v3"

	"github.com/Lowy-zhangtian/-audit-tool/internal/model"
)

// DataFormatError reports input that is unreadable as a table
type DataFormatError struct {
	Path   string
	Reason string
}

func (e *DataFormatError) Error() string {
	if e.Path == "" {
		return "invalid data format: " + e.Reason
	}
	return fmt.Sprintf("invalid data format in %s: %s", e.Path, e.Reason)
}

// LoadTable reads structured report rows from a .csv, .xlsx/.xlsm, .json or .yaml file
func LoadTable(path string) ([]model.Row, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".csv", ".json", ".yaml", ".yml":
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open table: %w", err)
		}
		defer func() { _ = f.Close() }()

		var rows []model.Row
		if ext == ".csv" {
			rows, err = ReadCSV(f)
		} else {
			rows, err = ReadRecords(f)
		}
		return rows, withPath(err, path)

	case ".xlsx", ".xlsm":
		rows, err := readWorkbook(path)
		return rows, withPath(err, path)

	default:
		return nil, &DataFormatError{Path: path, Reason: fmt.Sprintf("unsupported file extension %q", ext)}
	}
}

func withPath(err error, path string) error {
	var dfe *DataFormatError
	if errors.As(err, &dfe) && dfe.Path == "" {
		dfe.Path = path
	}
	return err
}

// ReadCSV reads a header row followed by data rows. A UTF-8 byte order
// mark is tolerated; empty cells become absent (nil) values.
func ReadCSV(r io.Reader) ([]model.Row, error) {
	decoded := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))

	cr := csv.NewReader(decoded)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, &DataFormatError{Reason: err.Error()}
	}

	var rows []model.Row
	for {
		cells, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &DataFormatError{Reason: err.Error()}
		}
		if row := tableRow(header, cells); row != nil {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func readWorkbook(path string) ([]model.Row, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, &DataFormatError{Reason: fmt.Sprintf("open workbook: %v", err)}
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}

	cells, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, &DataFormatError{Reason: fmt.Sprintf("read sheet %s: %v", sheets[0], err)}
	}
	if len(cells) == 0 {
		return nil, nil
	}

	var rows []model.Row
	for _, line := range cells[1:] {
		if row := tableRow(cells[0], line); row != nil {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// tableRow pairs header names with cells; nil for a fully blank line
func tableRow(header, cells []string) model.Row {
	row := make(model.Row, 0, len(header))
	blank := true
	for i, name := range header {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		var value any
		if i < len(cells) {
			if cell := strings.TrimSpace(cells[i]); cell != "" {
				value = cell
				blank = false
			}
		}
		row = append(row, model.Field{Key: name, Value: value})
	}
	if blank {
		return nil
	}
	return row
}

// ReadRecords reads a JSON or YAML sequence of mappings (or a single mapping),
// keeping each mapping's key order
func ReadRecords(r io.Reader) ([]model.Row, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, &DataFormatError{Reason: err.Error()}
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, nil
	}

	root := doc.Content[0]
	switch root.Kind {
	case yaml.MappingNode:
		row, err := mappingRow(root)
		if err != nil {
			return nil, err
		}
		return []model.Row{row}, nil

	case yaml.SequenceNode:
		rows := make([]model.Row, 0, len(root.Content))
		for i, item := range root.Content {
			if item.Kind != yaml.MappingNode {
				return nil, &DataFormatError{Reason: fmt.Sprintf("item %d is not a mapping", i+1)}
			}
			row, err := mappingRow(item)
			if err != nil {
				return nil, err
			}
			rows = append(rows, row)
		}
		return rows, nil

	default:
		return nil, &DataFormatError{Reason: "expected a list of records"}
	}
}

func mappingRow(node *yaml.Node) (model.Row, error) {
	row := make(model.Row, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]

		value, err := nodeValue(val)
		if err != nil {
			return nil, &DataFormatError{Reason: fmt.Sprintf("line %d: field %q: %v", val.Line, key.Value, err)}
		}
		row = append(row, model.Field{Key: key.Value, Value: value})
	}
	return row, nil
}

// nodeValue decodes a scalar into its natural Go type; sequences of
// scalars become []string
func nodeValue(n *yaml.Node) (any, error) {
	switch n.Kind {
	case yaml.ScalarNode:
		if n.Tag == "!!null" {
			return nil, nil
		}
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, err
		}
		return v, nil

	case yaml.SequenceNode:
		var items []string
		if err := n.Decode(&items); err == nil {
			return items, nil
		}
		var v []any
		err := n.Decode(&v)
		return v, err

	case yaml.AliasNode:
		return nodeValue(n.Alias)

	default:
		var v any
		err := n.Decode(&v)
		return v, err
	}
}
