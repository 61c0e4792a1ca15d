package rules

import (
	"fmt"
	"math"
	"strings"

	"github.com/Lowy-zhangtian/-audit-tool/internal/model"
)

// Condition is a compiled, side-effect free check over one record.
// It returns true when the record satisfies it.
type Condition interface {
	Evaluate(rec model.Record) (bool, error)
	String() string
}

// Operators understood by Expr
const (
	OpRelativeDiffBelow = "relative_diff_below"
	OpIsTrue            = "is_true"
	OpPresent           = "present"
	OpSuperset          = "superset"
	OpContains          = "contains"
	OpCompare           = "compare"
	OpImplies           = "implies"
	OpAll               = "all"
	OpAny               = "any"
	OpNot               = "not"
	OpFunc              = "func"
)

// DefaultEpsilon replaces a zero denominator in relative differences
const DefaultEpsilon = 1e-9

// Expr is the serializable form of a condition. Only the parameters
// relevant to Op are set; Compile validates and builds the Condition.
type Expr struct {
	Op        string   `yaml:"op"`
	Field     string   `yaml:"field,omitempty"`
	Left      string   `yaml:"left,omitempty"`
	Right     string   `yaml:"right,omitempty"`
	Threshold float64  `yaml:"threshold,omitempty"`
	Epsilon   float64  `yaml:"epsilon,omitempty"`
	Values    []string `yaml:"values,omitempty"`
	Text      string   `yaml:"text,omitempty"`
	Cmp       string   `yaml:"cmp,omitempty"` // lt, le, gt, ge, eq, ne
	Value     *float64 `yaml:"value,omitempty"`
	If        *Expr    `yaml:"if,omitempty"`
	Then      *Expr    `yaml:"then,omitempty"`
	Of        []Expr   `yaml:"of,omitempty"`
	Arg       *Expr    `yaml:"arg,omitempty"`
	Name      string   `yaml:"name,omitempty"`
}

// RelativeDiffBelow holds when |left-right| / |right| < threshold
func RelativeDiffBelow(left, right string, threshold, epsilon float64) Expr {
	return Expr{Op: OpRelativeDiffBelow, Left: left, Right: right, Threshold: threshold, Epsilon: epsilon}
}

// IsTrue holds when field is a true flag (absent = false)
func IsTrue(field string) Expr {
	return Expr{Op: OpIsTrue, Field: field}
}

// Present holds when field exists with a non-empty value
func Present(field string) Expr {
	return Expr{Op: OpPresent, Field: field}
}

// Superset holds when the collection in field contains every value
func Superset(field string, values ...string) Expr {
	return Expr{Op: OpSuperset, Field: field, Values: values}
}

// Contains holds when the text in field contains text
func Contains(field, text string) Expr {
	return Expr{Op: OpContains, Field: field, Text: text}
}

// Compare holds when the numeric field compares to value with cmp, or when the field is absent
func Compare(field, cmp string, value float64) Expr {
	return Expr{Op: OpCompare, Field: field, Cmp: cmp, Value: &value}
}

// Implies holds when cond is false or then holds
func Implies(cond, then Expr) Expr {
	return Expr{Op: OpImplies, If: &cond, Then: &then}
}

// All holds when every sub-expression holds
func All(of ...Expr) Expr {
	return Expr{Op: OpAll, Of: of}
}

// Any holds when at least one sub-expression holds
func Any(of ...Expr) Expr {
	return Expr{Op: OpAny, Of: of}
}

// Not negates an expression
func Not(arg Expr) Expr {
	return Expr{Op: OpNot, Arg: &arg}
}

// Func refers to a predicate registered by name
func Func(name string) Expr {
	return Expr{Op: OpFunc, Name: name}
}

// Compile validates the expression and builds its Condition.
// reg resolves func references and may be nil when none are used.
func (e Expr) Compile(reg *Registry) (Condition, error) {
	switch strings.ToLower(strings.TrimSpace(e.Op)) {
	case OpRelativeDiffBelow:
		if e.Left == "" || e.Right == "" {
			return nil, fmt.Errorf("%s: left and right fields are required", OpRelativeDiffBelow)
		}
		if e.Threshold <= 0 {
			return nil, fmt.Errorf("%s: threshold must be positive", OpRelativeDiffBelow)
		}
		eps := e.Epsilon
		if eps <= 0 {
			eps = DefaultEpsilon
		}
		return relativeDiff{left: e.Left, right: e.Right, threshold: e.Threshold, epsilon: eps}, nil

	case OpIsTrue:
		if e.Field == "" {
			return nil, fmt.Errorf("%s: field is required", OpIsTrue)
		}
		return isTrue{field: e.Field}, nil

	case OpPresent:
		if e.Field == "" {
			return nil, fmt.Errorf("%s: field is required", OpPresent)
		}
		return present{field: e.Field}, nil

	case OpSuperset:
		if e.Field == "" || len(e.Values) == 0 {
			return nil, fmt.Errorf("%s: field and values are required", OpSuperset)
		}
		return superset{field: e.Field, values: append([]string(nil), e.Values...)}, nil

	case OpContains:
		if e.Field == "" || e.Text == "" {
			return nil, fmt.Errorf("%s: field and text are required", OpContains)
		}
		return contains{field: e.Field, text: e.Text}, nil

	case OpCompare:
		if e.Field == "" || e.Value == nil {
			return nil, fmt.Errorf("%s: field and value are required", OpCompare)
		}
		cmp := strings.ToLower(e.Cmp)
		if _, ok := comparators[cmp]; !ok {
			return nil, fmt.Errorf("%s: unknown comparator %q", OpCompare, e.Cmp)
		}
		return compare{field: e.Field, cmp: cmp, value: *e.Value}, nil

	case OpImplies:
		if e.If == nil || e.Then == nil {
			return nil, fmt.Errorf("%s: if and then are required", OpImplies)
		}
		cond, err := e.If.Compile(reg)
		if err != nil {
			return nil, fmt.Errorf("%s.if: %w", OpImplies, err)
		}
		then, err := e.Then.Compile(reg)
		if err != nil {
			return nil, fmt.Errorf("%s.then: %w", OpImplies, err)
		}
		return implies{cond: cond, then: then}, nil

	case OpAll, OpAny:
		if len(e.Of) == 0 {
			return nil, fmt.Errorf("%s: at least one sub-expression is required", e.Op)
		}
		subs := make([]Condition, 0, len(e.Of))
		for i, sub := range e.Of {
			c, err := sub.Compile(reg)
			if err != nil {
				return nil, fmt.Errorf("%s[%d]: %w", e.Op, i, err)
			}
			subs = append(subs, c)
		}
		return junction{any: strings.EqualFold(e.Op, OpAny), subs: subs}, nil

	case OpNot:
		if e.Arg == nil {
			return nil, fmt.Errorf("%s: arg is required", OpNot)
		}
		c, err := e.Arg.Compile(reg)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", OpNot, err)
		}
		return not{arg: c}, nil

	case OpFunc:
		if e.Name == "" {
			return nil, fmt.Errorf("%s: name is required", OpFunc)
		}
		if reg == nil {
			return nil, fmt.Errorf("%s %q: no predicate registry", OpFunc, e.Name)
		}
		pred, ok := reg.Lookup(e.Name)
		if !ok {
			return nil, fmt.Errorf("%s: unknown predicate %q", OpFunc, e.Name)
		}
		return funcCondition{name: e.Name, pred: pred}, nil

	case "":
		return nil, fmt.Errorf("op is required")
	default:
		return nil, fmt.Errorf("unknown op %q", e.Op)
	}
}

type relativeDiff struct {
	left, right        string
	threshold, epsilon float64
}

func (c relativeDiff) Evaluate(rec model.Record) (bool, error) {
	reported, err := rec.Float(c.left, 0)
	if err != nil {
		return false, err
	}
	ledger, err := rec.Float(c.right, 0)
	if err != nil {
		return false, err
	}

	denom := math.Abs(ledger)
	if denom == 0 {
		denom = c.epsilon
	}
	return math.Abs(reported-ledger)/denom < c.threshold, nil
}

func (c relativeDiff) String() string {
	return fmt.Sprintf("|%s - %s| / |%s| < %g", c.left, c.right, c.right, c.threshold)
}

type isTrue struct{ field string }

func (c isTrue) Evaluate(rec model.Record) (bool, error) {
	return rec.Bool(c.field, false)
}

func (c isTrue) String() string {
	return c.field + " is true"
}

type present struct{ field string }

func (c present) Evaluate(rec model.Record) (bool, error) {
	return strings.TrimSpace(rec.String(c.field, "")) != "", nil
}

func (c present) String() string {
	return c.field + " is present"
}

type superset struct {
	field  string
	values []string
}

func (c superset) Evaluate(rec model.Record) (bool, error) {
	have := make(map[string]struct{})
	for _, s := range rec.Strings(c.field) {
		have[s] = struct{}{}
	}
	for _, want := range c.values {
		if _, ok := have[want]; !ok {
			return false, nil
		}
	}
	return true, nil
}

func (c superset) String() string {
	return fmt.Sprintf("%s includes [%s]", c.field, strings.Join(c.values, ", "))
}

type contains struct{ field, text string }

func (c contains) Evaluate(rec model.Record) (bool, error) {
	return strings.Contains(rec.String(c.field, ""), c.text), nil
}

func (c contains) String() string {
	return fmt.Sprintf("%s contains %q", c.field, c.text)
}

var comparators = map[string]struct {
	symbol string
	fn     func(a, b float64) bool
}{
	"lt": {"<", func(a, b float64) bool { return a < b }},
	"le": {"<=", func(a, b float64) bool { return a <= b }},
	"gt": {">", func(a, b float64) bool { return a > b }},
	"ge": {">=", func(a, b float64) bool { return a >= b }},
	"eq": {"==", func(a, b float64) bool { return a == b }},
	"ne": {"!=", func(a, b float64) bool { return a != b }},
}

type compare struct {
	field string
	cmp   string
	value float64
}

func (c compare) Evaluate(rec model.Record) (bool, error) {
	if !rec.Has(c.field) {
		return true, nil
	}
	v, err := rec.Float(c.field, 0)
	if err != nil {
		return false, err
	}
	return comparators[c.cmp].fn(v, c.value), nil
}

func (c compare) String() string {
	return fmt.Sprintf("%s %s %g (when present)", c.field, comparators[c.cmp].symbol, c.value)
}

type implies struct{ cond, then Condition }

func (c implies) Evaluate(rec model.Record) (bool, error) {
	ok, err := c.cond.Evaluate(rec)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	return c.then.Evaluate(rec)
}

func (c implies) String() string {
	return fmt.Sprintf("if %s then %s", c.cond, c.then)
}

type junction struct {
	any  bool
	subs []Condition
}

func (c junction) Evaluate(rec model.Record) (bool, error) {
	for _, sub := range c.subs {
		ok, err := sub.Evaluate(rec)
		if err != nil {
			return false, err
		}
		if ok == c.any {
			return c.any, nil
		}
	}
	return !c.any, nil
}

func (c junction) String() string {
	parts := make([]string, len(c.subs))
	for i, sub := range c.subs {
		parts[i] = "(" + sub.String() + ")"
	}
	sep := " and "
	if c.any {
		sep = " or "
	}
	return strings.Join(parts, sep)
}

type not struct{ arg Condition }

func (c not) Evaluate(rec model.Record) (bool, error) {
	ok, err := c.arg.Evaluate(rec)
	if err != nil {
		return false, err
	}
	return !ok, nil
}

func (c not) String() string {
	return "not (" + c.arg.String() + ")"
}

type funcCondition struct {
	name string
	pred Predicate
}

func (c funcCondition) Evaluate(rec model.Record) (bool, error) {
	return c.pred(rec)
}

func (c funcCondition) String() string {
	return c.name + "()"
}
