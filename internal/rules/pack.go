package rules

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Lowy-zhangtian/-audit-tool/internal/model"
)

// pack is the YAML layout of a rule pack file
type pack struct {
	Rules []Rule `yaml:"rules"`
}

// LoadPack reads a YAML rule pack from path and appends its rules to set.
// It returns the number of rules added before any error.
func LoadPack(set *RuleSet, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("read rules pack: %w", err)
	}
	defer f.Close()

	n, err := ReadPack(set, f)
	if err != nil {
		return n, fmt.Errorf("rules pack %s: %w", path, err)
	}
	return n, nil
}

// ReadPack decodes a YAML rule pack and appends its rules to set
func ReadPack(set *RuleSet, r io.Reader) (int, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var p pack
	if err := dec.Decode(&p); err != nil {
		if errors.Is(err, io.EOF) {
			return 0, nil
		}
		return 0, fmt.Errorf("parse yaml: %w", err)
	}

	var n int
	for _, rule := range p.Rules {
		if err := set.Add(rule); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// WritePack encodes rules as a YAML rule pack
func WritePack(w io.Writer, rules []Rule) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(pack{Rules: rules}); err != nil {
		return fmt.Errorf("encode rules pack: %w", err)
	}
	return enc.Close()
}

// FromConfig builds the rule set a deployment runs: the reference rules for
// the configured policy, then each configured pack in order, minus disabled rules
func FromConfig(cfg model.RulesConfig) (*RuleSet, error) {
	set, err := DefaultRuleSet(PolicyFromConfig(cfg))
	if err != nil {
		return nil, err
	}

	for _, path := range cfg.Packs {
		if _, err := LoadPack(set, path); err != nil {
			return nil, err
		}
	}

	if len(cfg.Disabled) > 0 {
		set = set.Without(cfg.Disabled...)
	}
	return set, nil
}
