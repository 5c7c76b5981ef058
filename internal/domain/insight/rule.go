// Package insight contains the declarative rule table that turns domain
// snapshots into insight strings and alert specifications.
//
// A rule belongs to one domain, fires when all of its conditions hold and
// renders its insight (and optional alert message) from the domain facts
// with text/template. Rules never look at other domains.
package insight

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/alem-hub/student-insights/internal/domain/alert"
	"github.com/alem-hub/student-insights/internal/domain/metrics"
	"github.com/alem-hub/student-insights/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// RULE MODEL
// ══════════════════════════════════════════════════════════════════════════════

// Operator compares a fact against a condition operand.
type Operator string

const (
	OpLess         Operator = "lt"
	OpLessEqual    Operator = "lte"
	OpGreater      Operator = "gt"
	OpGreaterEqual Operator = "gte"
	OpEqual        Operator = "eq"
	OpNotEqual     Operator = "ne"
)

func (o Operator) isValid() bool {
	switch o {
	case OpLess, OpLessEqual, OpGreater, OpGreaterEqual, OpEqual, OpNotEqual:
		return true
	}
	return false
}

// Condition is one predicate over a named fact. Label facts (such as the
// trend) are compared with Label and only support eq/ne; numeric facts are
// compared with Value.
type Condition struct {
	Fact  Fact     `yaml:"fact" json:"fact"`
	Op    Operator `yaml:"op" json:"op"`
	Value float64  `yaml:"value,omitempty" json:"value,omitempty"`
	Label string   `yaml:"label,omitempty" json:"label,omitempty"`
}

// AlertSpec describes the alert raised when a rule fires. Message is a
// text/template rendered against the domain facts.
type AlertSpec struct {
	Type     alert.Type     `yaml:"type" json:"type"`
	Severity alert.Severity `yaml:"severity" json:"severity"`
	Message  string         `yaml:"message" json:"message"`
}

// Rule is one row of the rule table.
type Rule struct {
	Name    string         `yaml:"name" json:"name"`
	Domain  metrics.Domain `yaml:"domain" json:"domain"`
	When    []Condition    `yaml:"when" json:"when"`
	Insight string         `yaml:"insight" json:"insight"`
	Alert   *AlertSpec     `yaml:"alert,omitempty" json:"alert,omitempty"`
}

// Validate checks the static shape of the rule.
func (r Rule) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return invalidRule(r.Name, "name is required")
	}
	if err := r.Domain.Validate(); err != nil {
		return invalidRule(r.Name, fmt.Sprintf("unknown domain %q", r.Domain))
	}
	if len(r.When) == 0 {
		return invalidRule(r.Name, "at least one condition is required")
	}
	for _, c := range r.When {
		if !c.Op.isValid() {
			return invalidRule(r.Name, fmt.Sprintf("invalid operator %q", c.Op))
		}
		if c.Label != "" && c.Op != OpEqual && c.Op != OpNotEqual {
			return invalidRule(r.Name, fmt.Sprintf("label condition on %q only supports eq/ne", c.Fact))
		}
	}
	if r.Insight == "" {
		return invalidRule(r.Name, "insight text is required")
	}
	if r.Alert != nil {
		if !r.Alert.Type.IsValid() {
			return invalidRule(r.Name, fmt.Sprintf("invalid alert type %q", r.Alert.Type))
		}
		if !r.Alert.Severity.IsValid() {
			return invalidRule(r.Name, fmt.Sprintf("invalid alert severity %q", r.Alert.Severity))
		}
		if r.Alert.Message == "" {
			return invalidRule(r.Name, "alert message is required")
		}
	}
	return nil
}

func invalidRule(name, msg string) error {
	return shared.WrapError("insight", "Validate", shared.ErrValidation,
		fmt.Sprintf("rule %q", name), fmt.Errorf("%w: %s", shared.ErrInvalidRule, msg))
}

// ══════════════════════════════════════════════════════════════════════════════
// COMPILED RULE SET
// ══════════════════════════════════════════════════════════════════════════════

// Finding is the rendered output of one fired rule.
type Finding struct {
	Rule    string
	Insight string
	Alert   *FiredAlert
}

// FiredAlert is a rendered alert specification.
type FiredAlert struct {
	Type     alert.Type     `json:"type"`
	Severity alert.Severity `json:"severity"`
	Message  string         `json:"message"`
}

type compiledRule struct {
	Rule
	insight *template.Template
	message *template.Template
}

// RuleSet is a validated, compiled rule table. It is safe for concurrent use.
type RuleSet struct {
	rules []compiledRule
}

var templateFuncs = template.FuncMap{
	// pct renders a percentage with one decimal, e.g. 68.3%.
	"pct": func(v float64) string { return fmt.Sprintf("%.1f%%", v) },
	// int renders a count without decimals.
	"int": func(v float64) string { return fmt.Sprintf("%d", int64(v)) },
}

// NewRuleSet validates and compiles rules, keeping their order.
func NewRuleSet(rules []Rule) (*RuleSet, error) {
	rs := &RuleSet{rules: make([]compiledRule, 0, len(rules))}
	seen := make(map[string]struct{}, len(rules))
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[r.Name]; dup {
			return nil, invalidRule(r.Name, "duplicate rule name")
		}
		seen[r.Name] = struct{}{}

		catalog, err := CatalogFor(r.Domain)
		if err != nil {
			return nil, invalidRule(r.Name, err.Error())
		}
		for _, c := range r.When {
			if err := c.check(r.Domain, catalog); err != nil {
				return nil, invalidRule(r.Name, err.Error())
			}
		}

		cr := compiledRule{Rule: r}
		if cr.insight, err = compileTemplate(r.Name+".insight", r.Insight, catalog); err != nil {
			return nil, invalidRule(r.Name, err.Error())
		}
		if r.Alert != nil {
			if cr.message, err = compileTemplate(r.Name+".alert", r.Alert.Message, catalog); err != nil {
				return nil, invalidRule(r.Name, err.Error())
			}
		}
		rs.rules = append(rs.rules, cr)
	}
	return rs, nil
}

// check resolves the condition's fact in the domain catalog. Label facts
// take Label, numeric facts take Value.
func (c Condition) check(domain metrics.Domain, catalog Facts) error {
	_, isNumber := catalog.Number(c.Fact)
	_, isLabel := catalog.Label(c.Fact)
	switch {
	case !isNumber && !isLabel:
		return fmt.Errorf("%w: %q is not a %s fact", shared.ErrUnknownFact, c.Fact, domain)
	case isLabel && c.Label == "":
		return fmt.Errorf("fact %q is a label and needs label, not value", c.Fact)
	case isNumber && c.Label != "":
		return fmt.Errorf("fact %q is numeric and needs value, not label", c.Fact)
	case c.Fact == FactTrend && !metrics.Trend(c.Label).IsValid():
		return fmt.Errorf("unknown trend %q", c.Label)
	}
	return nil
}

// compileTemplate parses text and renders it once against the zero facts of
// the rule's domain, so unknown fields and mistyped helper arguments fail
// here rather than on every run.
func compileTemplate(name, text string, catalog Facts) (*template.Template, error) {
	t, err := template.New(name).Funcs(templateFuncs).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, err
	}
	if _, err := render(t, catalog); err != nil {
		return nil, err
	}
	return t, nil
}

// Rules returns a copy of the underlying rule definitions.
func (rs *RuleSet) Rules() []Rule {
	out := make([]Rule, len(rs.rules))
	for i, r := range rs.rules {
		out[i] = r.Rule
	}
	return out
}

// Evaluate fires every rule of domain whose conditions hold against facts,
// in table order.
func (rs *RuleSet) Evaluate(domain metrics.Domain, facts Facts) ([]Finding, error) {
	var findings []Finding
	for _, r := range rs.rules {
		if r.Domain != domain {
			continue
		}
		ok, err := r.matches(facts)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		f := Finding{Rule: r.Name}
		if f.Insight, err = render(r.insight, facts); err != nil {
			return nil, fmt.Errorf("rule %q insight: %w", r.Name, err)
		}
		if r.Alert != nil {
			msg, err := render(r.message, facts)
			if err != nil {
				return nil, fmt.Errorf("rule %q alert: %w", r.Name, err)
			}
			f.Alert = &FiredAlert{Type: r.Alert.Type, Severity: r.Alert.Severity, Message: msg}
		}
		findings = append(findings, f)
	}
	return findings, nil
}

func (r compiledRule) matches(facts Facts) (bool, error) {
	for _, c := range r.When {
		ok, err := c.holds(facts)
		if err != nil {
			return false, fmt.Errorf("rule %q: %w", r.Name, err)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (c Condition) holds(facts Facts) (bool, error) {
	if c.Label != "" {
		got, ok := facts.Label(c.Fact)
		if !ok {
			return false, fmt.Errorf("%w: %s", shared.ErrUnknownFact, c.Fact)
		}
		if c.Op == OpEqual {
			return got == c.Label, nil
		}
		return got != c.Label, nil
	}

	got, ok := facts.Number(c.Fact)
	if !ok {
		return false, fmt.Errorf("%w: %s", shared.ErrUnknownFact, c.Fact)
	}
	switch c.Op {
	case OpLess:
		return got < c.Value, nil
	case OpLessEqual:
		return got <= c.Value, nil
	case OpGreater:
		return got > c.Value, nil
	case OpGreaterEqual:
		return got >= c.Value, nil
	case OpEqual:
		return got == c.Value, nil
	case OpNotEqual:
		return got != c.Value, nil
	}
	return false, shared.ErrInvalidOperator
}

func render(t *template.Template, facts Facts) (string, error) {
	var sb strings.Builder
	if err := t.Execute(&sb, facts.templateData()); err != nil {
		return "", err
	}
	return sb.String(), nil
}
