package rules

import (
	"fmt"
	"strings"
	"sync"

	"github.com/Lowy-zhangtian/-audit-tool/internal/model"
)

// Predicate is a named check registered in a Registry and referenced by func expressions
type Predicate func(rec model.Record) (bool, error)

// Registry maps predicate names to implementations
type Registry struct {
	mu    sync.RWMutex
	preds map[string]Predicate
}

// NewRegistry creates an empty predicate registry
func NewRegistry() *Registry {
	return &Registry{preds: make(map[string]Predicate)}
}

// Register adds a predicate. Names are unique.
func (r *Registry) Register(name string, pred Predicate) error {
	name = strings.TrimSpace(name)
	if name == "" || pred == nil {
		return fmt.Errorf("predicate name and function are required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.preds[name]; exists {
		return fmt.Errorf("predicate %q already registered", name)
	}
	r.preds[name] = pred
	return nil
}

// Lookup returns the predicate registered under name
func (r *Registry) Lookup(name string) (Predicate, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pred, ok := r.preds[name]
	return pred, ok
}

// Rule is a named condition with severity metadata. When is the
// serializable form; the compiled condition is evaluated by the Engine.
type Rule struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Severity    model.Severity `yaml:"severity"`
	When        Expr           `yaml:"when"`

	cond Condition
}

// NewRule compiles when into a rule
func NewRule(name, description string, severity model.Severity, when Expr, reg *Registry) (Rule, error) {
	r := Rule{Name: name, Description: description, Severity: severity, When: when}
	if err := r.compile(reg); err != nil {
		return Rule{}, err
	}
	return r, nil
}

// Condition returns the compiled condition (nil until the rule is compiled)
func (r Rule) Condition() Condition {
	return r.cond
}

func (r *Rule) compile(reg *Registry) error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("rule name is required")
	}
	if r.Severity.Rank() == 0 {
		return fmt.Errorf("rule %q: invalid severity %q", r.Name, r.Severity)
	}
	cond, err := r.When.Compile(reg)
	if err != nil {
		return fmt.Errorf("rule %q: %w", r.Name, err)
	}
	r.cond = cond
	return nil
}

// RuleSet is an ordered, append-only collection of rules with unique names.
// An Engine takes a snapshot at construction, so later additions do not
// affect a batch in progress.
type RuleSet struct {
	mu       sync.RWMutex
	rules    []Rule
	index    map[string]int
	registry *Registry
}

// NewRuleSet creates an empty rule set. reg resolves func expressions and may be nil.
func NewRuleSet(reg *Registry) *RuleSet {
	if reg == nil {
		reg = NewRegistry()
	}
	return &RuleSet{
		index:    make(map[string]int),
		registry: reg,
	}
}

// Registry returns the predicate registry used to compile rules
func (s *RuleSet) Registry() *Registry {
	return s.registry
}

// Add appends a rule, compiling it first if needed
func (s *RuleSet) Add(r Rule) error {
	if r.cond == nil {
		if err := r.compile(s.registry); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.index[r.Name]; exists {
		return fmt.Errorf("rule %q already registered", r.Name)
	}
	s.index[r.Name] = len(s.rules)
	s.rules = append(s.rules, r)
	return nil
}

// Rules returns the rules in registration order
func (s *RuleSet) Rules() []Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Rule, len(s.rules))
	copy(out, s.rules)
	return out
}

// Get returns a rule by name
func (s *RuleSet) Get(name string) (Rule, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[name]
	if !ok {
		return Rule{}, false
	}
	return s.rules[i], true
}

// Names returns rule names in registration order
func (s *RuleSet) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.rules))
	for i, r := range s.rules {
		out[i] = r.Name
	}
	return out
}

// Len returns the number of rules
func (s *RuleSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rules)
}

// Without returns a new rule set without the named rules, keeping order.
// Unknown names are ignored.
func (s *RuleSet) Without(names ...string) *RuleSet {
	skip := make(map[string]bool, len(names))
	for _, n := range names {
		skip[strings.TrimSpace(n)] = true
	}

	out := NewRuleSet(s.registry)
	for _, r := range s.Rules() {
		if skip[r.Name] {
			continue
		}
		out.index[r.Name] = len(out.rules)
		out.rules = append(out.rules, r)
	}
	return out
}
