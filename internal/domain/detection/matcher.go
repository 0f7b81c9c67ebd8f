package detection

import (
	"strings"
	"unicode/utf8"

	"github.com/stoik/persuasion-gateway/internal/domain"
)

// Matcher scans normalized message text for catalogue rules.
//
// Matching is table driven: each rule is a record of normalized patterns
// built once from the catalogue, and every rule is evaluated independently.
type Matcher struct {
	rules []compiledRule
}

type compiledRule struct {
	rule     domain.Rule
	patterns []string // normalized, catalogue order
	raw      []string // as written in the catalogue
}

// NormalizedText is a message whose fields already went through Normalize
type NormalizedText struct {
	Subject string
	Body    string
}

func (t NormalizedText) field(f domain.Field) string {
	if f == domain.FieldSubject {
		return t.Subject
	}
	return t.Body
}

// NewMatcher compiles the catalogue patterns
func NewMatcher(catalogue *domain.Catalogue) (*Matcher, error) {
	rules := catalogue.Rules()
	m := &Matcher{rules: make([]compiledRule, 0, len(rules))}

	for _, r := range rules {
		cr := compiledRule{rule: r, raw: r.Patterns}
		for _, p := range r.Patterns {
			// NewCatalogue guarantees every pattern normalizes to a non-empty string
			normalized, err := domain.Normalize(p)
			if err != nil {
				return nil, err
			}
			cr.patterns = append(cr.patterns, normalized)
		}
		m.rules = append(m.rules, cr)
	}

	return m, nil
}

// Match returns one Match per rule that fired, in catalogue order.
//
// Fields are scanned in order subject then body; the first field in which
// any pattern of the rule occurs yields the match, using the earliest
// occurrence (ties go to the pattern listed first). A rule never produces
// more than one match however often its patterns recur.
func (m *Matcher) Match(text NormalizedText) []domain.Match {
	matches := make([]domain.Match, 0)

	for _, cr := range m.rules {
		if match, ok := cr.match(text); ok {
			matches = append(matches, match)
		}
	}

	return matches
}

func (cr compiledRule) match(text NormalizedText) (domain.Match, bool) {
	for _, f := range domain.Fields {
		if !cr.rule.AppliesTo(f) {
			continue
		}
		haystack := text.field(f)
		if haystack == "" {
			continue
		}

		best, bestAt := -1, -1
		for i, p := range cr.patterns {
			at := strings.Index(haystack, p)
			if at >= 0 && (bestAt < 0 || at < bestAt) {
				best, bestAt = i, at
			}
		}
		if best < 0 {
			continue
		}

		return domain.Match{
			RuleID:      cr.rule.ID,
			Tactic:      cr.rule.Tactic,
			Weight:      cr.rule.Weight,
			Description: cr.rule.Rationale,
			Field:       f,
			Pattern:     cr.raw[best],
			Offset:      utf8.RuneCountInString(haystack[:bestAt]),
		}, true
	}
	return domain.Match{}, false
}
