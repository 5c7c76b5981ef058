package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/alem-hub/student-insights/internal/domain/insight"
)

type ruleFile struct {
	Rules []insight.Rule `yaml:"rules"`
}

// ParseRules decodes a rule table document. Unknown keys are rejected.
func ParseRules(data []byte) ([]insight.Rule, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f ruleFile
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("rule file is empty")
		}
		return nil, fmt.Errorf("decode rules: %w", err)
	}
	if len(f.Rules) == 0 {
		return nil, errors.New("rule file defines no rules")
	}
	return f.Rules, nil
}

// LoadRules reads and compiles the rule table at path. An empty path yields
// the built-in table.
func LoadRules(path string) (*insight.RuleSet, error) {
	if path == "" {
		return insight.Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules %s: %w", path, err)
	}
	rules, err := ParseRules(data)
	if err != nil {
		return nil, fmt.Errorf("rules %s: %w", path, err)
	}
	rs, err := insight.NewRuleSet(rules)
	if err != nil {
		return nil, fmt.Errorf("rules %s: %w", path, err)
	}
	return rs, nil
}
