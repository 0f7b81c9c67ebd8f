package domain

import (
	"fmt"
	"strings"
)

// MaxRuleWeight is the largest weight a rule may carry
const MaxRuleWeight = 5

// Catalogue is the immutable, ordered collection of detection rules.
//
// A Catalogue is built once by NewCatalogue and passed explicitly to the
// components that need it. Accessors return copies so callers can never
// mutate the rules after validation.
type Catalogue struct {
	rules   []Rule
	byID    map[string]int
	tactics []Tactic
}

// NewCatalogue validates rules and returns the catalogue.
// Any malformed rule rejects the whole catalogue with a *ConfigurationError.
func NewCatalogue(rules []Rule) (*Catalogue, error) {
	c := &Catalogue{
		rules: make([]Rule, 0, len(rules)),
		byID:  make(map[string]int, len(rules)),
	}

	present := make(map[Tactic]bool)
	for i, r := range rules {
		if err := validateRule(i, r); err != nil {
			return nil, err
		}
		if prev, dup := c.byID[r.ID]; dup {
			return nil, &ConfigurationError{
				Index:  i,
				RuleID: r.ID,
				Field:  "id",
				Reason: fmt.Sprintf("duplicate identifier (first defined at rule #%d)", prev+1),
			}
		}
		c.byID[r.ID] = i
		c.rules = append(c.rules, cloneRule(r))
		present[r.Tactic] = true
	}

	for _, t := range Tactics {
		if present[t] {
			c.tactics = append(c.tactics, t)
		}
	}

	return c, nil
}

func validateRule(i int, r Rule) error {
	fail := func(field, reason string) error {
		return &ConfigurationError{Index: i, RuleID: r.ID, Field: field, Reason: reason}
	}

	if strings.TrimSpace(r.ID) == "" {
		return fail("id", "identifier is required")
	}
	if !r.Tactic.Valid() {
		return fail("tactic", fmt.Sprintf("unknown tactic %q", r.Tactic))
	}
	if r.Weight < 0 || r.Weight > MaxRuleWeight {
		return fail("weight", fmt.Sprintf("weight %d out of range [0,%d]", r.Weight, MaxRuleWeight))
	}
	if len(r.Patterns) == 0 {
		return fail("patterns", "pattern list is empty")
	}
	for j, p := range r.Patterns {
		if strings.TrimSpace(p) == "" {
			return fail("patterns", fmt.Sprintf("pattern #%d is blank", j+1))
		}
		if normalized, err := Normalize(p); err != nil || normalized == "" {
			return fail("patterns", fmt.Sprintf("pattern %q is empty after normalization", p))
		}
	}
	for _, f := range r.Fields {
		if f != FieldSubject && f != FieldBody {
			return fail("fields", fmt.Sprintf("unknown field %q", f))
		}
	}
	return nil
}

func cloneRule(r Rule) Rule {
	r.Patterns = append([]string(nil), r.Patterns...)
	if r.Fields != nil {
		r.Fields = append([]Field(nil), r.Fields...)
	}
	return r
}

// Len returns the number of rules
func (c *Catalogue) Len() int {
	return len(c.rules)
}

// Rules returns a copy of the rules in catalogue order
func (c *Catalogue) Rules() []Rule {
	out := make([]Rule, len(c.rules))
	for i, r := range c.rules {
		out[i] = cloneRule(r)
	}
	return out
}

// Rule looks up a rule by identifier
func (c *Catalogue) Rule(id string) (Rule, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Rule{}, false
	}
	return cloneRule(c.rules[i]), true
}

// Tactics returns the tactics that have at least one rule, in canonical order
func (c *Catalogue) Tactics() []Tactic {
	return append([]Tactic(nil), c.tactics...)
}
