package detection

import (
	"github.com/stoik/persuasion-gateway/internal/domain"
)

// Detector evaluates messages against a rule catalogue
//
// The Detector wires the pipeline stages together:
//   - Normalize: subject and body text
//   - Matcher: one match per fired rule
//   - Aggregate: per-tactic sums
//   - Classify: combined score and risk level
//
// A Detector holds only immutable data, so one instance is shared by every
// SMTP session and may evaluate any number of messages concurrently.
type Detector struct {
	catalogue  *domain.Catalogue
	matcher    *Matcher
	thresholds domain.Thresholds
}

// NewDetector creates a detector for the given catalogue and threshold table.
// An invalid threshold table is a *domain.ConfigurationError.
func NewDetector(catalogue *domain.Catalogue, thresholds domain.Thresholds) (*Detector, error) {
	if err := thresholds.Validate(); err != nil {
		return nil, err
	}

	matcher, err := NewMatcher(catalogue)
	if err != nil {
		return nil, err
	}

	return &Detector{
		catalogue:  catalogue,
		matcher:    matcher,
		thresholds: thresholds,
	}, nil
}

// Catalogue returns the catalogue the detector was built from
func (d *Detector) Catalogue() *domain.Catalogue {
	return d.catalogue
}

// Thresholds returns the threshold table used for classification
func (d *Detector) Thresholds() domain.Thresholds {
	return d.thresholds
}

// Evaluate scores a message subject and body.
//
// It is pure: identical inputs always produce an identical verdict. The only
// error is *domain.AnalysisDegradedError, returned when the text cannot be
// normalized; callers turn it into a degraded verdict.
func (d *Detector) Evaluate(subject, body string) (domain.Verdict, error) {
	s, err := domain.Normalize(subject)
	if err != nil {
		return domain.Verdict{}, &domain.AnalysisDegradedError{Reason: "subject could not be normalized", Err: err}
	}
	b, err := domain.Normalize(body)
	if err != nil {
		return domain.Verdict{}, &domain.AnalysisDegradedError{Reason: "body could not be normalized", Err: err}
	}

	matches := d.matcher.Match(NormalizedText{Subject: s, Body: b})
	scores := Aggregate(d.catalogue, matches)

	return Classify(scores, matches, d.thresholds), nil
}
