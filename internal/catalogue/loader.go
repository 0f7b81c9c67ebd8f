// Package catalogue loads the persuasion rule catalogue from its YAML document.
//
// The document is decoded strictly: unknown keys, missing weights, unknown
// tactics and duplicate identifiers all abort loading. There is no partial
// catalogue.
package catalogue

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/stoik/persuasion-gateway/internal/domain"
)

//go:embed default.yaml
var defaultDocument []byte

// DefaultSource names the embedded catalogue in error messages
const DefaultSource = "<embedded default>"

type document struct {
	Version int        `yaml:"version"`
	Rules   []ruleSpec `yaml:"rules"`
}

type ruleSpec struct {
	ID        string   `yaml:"id"`
	Tactic    string   `yaml:"tactic"`
	Patterns  []string `yaml:"patterns"`
	Weight    *int     `yaml:"weight"`
	Rationale string   `yaml:"rationale"`
	Fields    []string `yaml:"fields"`
}

// Load reads the catalogue at path, or the embedded default when path is empty
func Load(path string) (*domain.Catalogue, error) {
	if path == "" {
		return Default()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalogue: %w", err)
	}
	return Parse(data, path)
}

// Default returns the embedded catalogue
func Default() (*domain.Catalogue, error) {
	return Parse(defaultDocument, DefaultSource)
}

// DefaultDocument returns a copy of the embedded YAML document
func DefaultDocument() []byte {
	return append([]byte(nil), defaultDocument...)
}

// Parse decodes and validates a catalogue document.
// source is only used to label errors.
func Parse(data []byte, source string) (*domain.Catalogue, error) {
	var doc document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &domain.ConfigurationError{Source: source, Index: -1, Reason: "document is empty"}
		}
		return nil, &domain.ConfigurationError{Source: source, Index: -1, Reason: fmt.Sprintf("parse yaml: %v", err)}
	}
	if len(doc.Rules) == 0 {
		return nil, &domain.ConfigurationError{Source: source, Index: -1, Field: "rules", Reason: "catalogue has no rules"}
	}

	rules := make([]domain.Rule, 0, len(doc.Rules))
	for i, spec := range doc.Rules {
		rule, err := spec.toRule(i)
		if err != nil {
			return nil, withSource(err, source)
		}
		rules = append(rules, rule)
	}

	c, err := domain.NewCatalogue(rules)
	if err != nil {
		return nil, withSource(err, source)
	}
	return c, nil
}

func (s ruleSpec) toRule(i int) (domain.Rule, error) {
	fail := func(field, reason string) error {
		return &domain.ConfigurationError{Index: i, RuleID: s.ID, Field: field, Reason: reason}
	}

	tactic, err := domain.ParseTactic(s.Tactic)
	if err != nil {
		return domain.Rule{}, fail("tactic", err.Error())
	}
	if s.Weight == nil {
		return domain.Rule{}, fail("weight", "weight is required")
	}

	var fields []domain.Field
	for _, name := range s.Fields {
		f, err := domain.ParseField(name)
		if err != nil {
			return domain.Rule{}, fail("fields", err.Error())
		}
		fields = append(fields, f)
	}

	return domain.Rule{
		ID:        s.ID,
		Tactic:    tactic,
		Patterns:  s.Patterns,
		Weight:    *s.Weight,
		Rationale: s.Rationale,
		Fields:    fields,
	}, nil
}

func withSource(err error, source string) error {
	var cfgErr *domain.ConfigurationError
	if errors.As(err, &cfgErr) {
		cfgErr.Source = source
	}
	return err
}
