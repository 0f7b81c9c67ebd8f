package domain

import (
	"fmt"
	"strings"
)

// RiskLevel is the ordered risk scale a combined score maps to
type RiskLevel int

const (
	RiskNone RiskLevel = iota
	RiskLow
	RiskMedium
	RiskHigh
	RiskCritical
)

var riskNames = [...]string{"None", "Low", "Medium", "High", "Critical"}

func (l RiskLevel) String() string {
	if l < RiskNone || l > RiskCritical {
		return fmt.Sprintf("RiskLevel(%d)", int(l))
	}
	return riskNames[l]
}

// ParseRiskLevel resolves a level name case-insensitively
func ParseRiskLevel(s string) (RiskLevel, error) {
	for i, name := range riskNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return RiskLevel(i), nil
		}
	}
	return RiskNone, fmt.Errorf("unknown risk level %q", s)
}

// MarshalText encodes the level by name
func (l RiskLevel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText decodes a level name
func (l *RiskLevel) UnmarshalText(text []byte) error {
	parsed, err := ParseRiskLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// Thresholds holds the inclusive lower bound of the combined score for each level.
// A score below Low is None.
type Thresholds struct {
	Low      int `json:"low" mapstructure:"low"`
	Medium   int `json:"medium" mapstructure:"medium"`
	High     int `json:"high" mapstructure:"high"`
	Critical int `json:"critical" mapstructure:"critical"`
}

// DefaultThresholds: 0 None, 1-4 Low, 5-9 Medium, 10-14 High, 15+ Critical
func DefaultThresholds() Thresholds {
	return Thresholds{Low: 1, Medium: 5, High: 10, Critical: 15}
}

// Validate checks that bounds are strictly increasing and that a zero score stays None
func (t Thresholds) Validate() error {
	if t.Low < 1 {
		return &ConfigurationError{Index: -1, Field: "thresholds.low", Reason: fmt.Sprintf("must be at least 1, got %d", t.Low)}
	}
	bounds := t.bounds()
	for i := 1; i < len(bounds); i++ {
		if bounds[i] <= bounds[i-1] {
			return &ConfigurationError{
				Index:  -1,
				Field:  "thresholds",
				Reason: fmt.Sprintf("%s bound %d must be greater than %s bound %d",
					RiskLevel(i+1), bounds[i], RiskLevel(i), bounds[i-1]),
			}
		}
	}
	return nil
}

// Level maps a combined score to a risk level.
// A score equal to a bound belongs to the higher level.
func (t Thresholds) Level(score int) RiskLevel {
	bounds := t.bounds()
	for i := len(bounds) - 1; i >= 0; i-- {
		if score >= bounds[i] {
			return RiskLevel(i + 1)
		}
	}
	return RiskNone
}

// LowerBound returns the smallest score classified at level l
func (t Thresholds) LowerBound(l RiskLevel) int {
	if l <= RiskNone {
		return 0
	}
	return t.bounds()[l-1]
}

func (t Thresholds) bounds() []int {
	return []int{t.Low, t.Medium, t.High, t.Critical}
}
