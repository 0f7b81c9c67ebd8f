package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCatalogue is the target of every ConfigurationError
	ErrInvalidCatalogue = errors.New("invalid catalogue configuration")

	// ErrAnalysisDegraded is the target of every AnalysisDegradedError
	ErrAnalysisDegraded = errors.New("analysis degraded")
)

// ConfigurationError reports a malformed catalogue or threshold table.
// It is fatal: the gateway must not start with an invalid configuration.
type ConfigurationError struct {
	Source string // file the catalogue came from, if any
	Index  int    // rule position, -1 when not rule specific
	RuleID string
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	msg := "invalid catalogue"
	if e.Source != "" {
		msg += " " + e.Source
	}
	switch {
	case e.RuleID != "":
		msg += fmt.Sprintf(": rule %q", e.RuleID)
	case e.Index >= 0:
		msg += fmt.Sprintf(": rule #%d", e.Index+1)
	}
	if e.Field != "" {
		msg += fmt.Sprintf(": %s", e.Field)
	}
	return msg + ": " + e.Reason
}

func (e *ConfigurationError) Unwrap() error {
	return ErrInvalidCatalogue
}

// AnalysisDegradedError reports that a message could not be normalized or decoded
type AnalysisDegradedError struct {
	Reason string
	Err    error
}

func (e *AnalysisDegradedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("analysis degraded: %s: %v", e.Reason, e.Err)
	}
	return "analysis degraded: " + e.Reason
}

// Is lets errors.Is match the sentinel as well as the wrapped cause
func (e *AnalysisDegradedError) Is(target error) bool {
	return target == ErrAnalysisDegraded
}

func (e *AnalysisDegradedError) Unwrap() error {
	return e.Err
}
