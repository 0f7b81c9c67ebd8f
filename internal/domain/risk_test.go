package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThresholds_Level(t *testing.T) {
	th := DefaultThresholds()

	tests := []struct {
		score    int
		expected RiskLevel
	}{
		{0, RiskNone},
		{1, RiskLow},
		{4, RiskLow},
		{5, RiskMedium},
		{7, RiskMedium},
		{9, RiskMedium},
		{10, RiskHigh},
		{14, RiskHigh},
		{15, RiskCritical},
		{40, RiskCritical},
	}

	for _, tt := range tests {
		t.Run(tt.expected.String(), func(t *testing.T) {
			assert.Equal(t, tt.expected, th.Level(tt.score), "score %d", tt.score)
		})
	}
}

func TestThresholds_LowerBound(t *testing.T) {
	th := DefaultThresholds()
	assert.Equal(t, 0, th.LowerBound(RiskNone))
	assert.Equal(t, 5, th.LowerBound(RiskMedium))
	assert.Equal(t, 15, th.LowerBound(RiskCritical))

	for l := RiskLow; l <= RiskCritical; l++ {
		assert.Equal(t, l, th.Level(th.LowerBound(l)), "a score on the bound rounds up to %s", l)
	}
}

func TestThresholds_Validate(t *testing.T) {
	require.NoError(t, DefaultThresholds().Validate())

	bad := []Thresholds{
		{Low: 0, Medium: 5, High: 10, Critical: 15},
		{Low: 1, Medium: 1, High: 10, Critical: 15},
		{Low: 1, Medium: 5, High: 4, Critical: 15},
		{Low: 1, Medium: 5, High: 10, Critical: 10},
	}
	for _, th := range bad {
		err := th.Validate()
		require.Error(t, err, "%+v", th)
		assert.True(t, errors.Is(err, ErrInvalidCatalogue))
	}
}

func TestRiskLevel_Text(t *testing.T) {
	for l := RiskNone; l <= RiskCritical; l++ {
		text, err := l.MarshalText()
		require.NoError(t, err)

		var decoded RiskLevel
		require.NoError(t, decoded.UnmarshalText(text))
		assert.Equal(t, l, decoded)
	}

	level, err := ParseRiskLevel(" medium ")
	require.NoError(t, err)
	assert.Equal(t, RiskMedium, level)

	_, err = ParseRiskLevel("severe")
	assert.Error(t, err)
}

func TestVerdict_PrimaryTactic(t *testing.T) {
	tests := []struct {
		name     string
		tactics  []TacticScore
		expected Tactic
		ok       bool
	}{
		{
			name: "highest non-trust tactic wins",
			tactics: []TacticScore{
				{Tactic: TacticUrgency, Score: 4},
				{Tactic: TacticFear, Score: 5},
				{Tactic: TacticTrust, Score: 7},
			},
			expected: TacticFear,
			ok:       true,
		},
		{
			name: "tie keeps canonical order",
			tactics: []TacticScore{
				{Tactic: TacticUrgency, Score: 4},
				{Tactic: TacticAuthority, Score: 4},
			},
			expected: TacticUrgency,
			ok:       true,
		},
		{
			name:     "trust only",
			tactics:  []TacticScore{{Tactic: TacticUrgency, Score: 0}, {Tactic: TacticTrust, Score: 2}},
			expected: TacticTrust,
			ok:       true,
		},
		{
			name:    "nothing detected",
			tactics: []TacticScore{{Tactic: TacticUrgency, Score: 0}},
			ok:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Verdict{Tactics: tt.tactics}.PrimaryTactic()
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestParseTactic(t *testing.T) {
	tactic, err := ParseTactic("Authority")
	require.NoError(t, err)
	assert.Equal(t, TacticAuthority, tactic)
	assert.Equal(t, "Authority", tactic.Label())
	assert.NotEmpty(t, tactic.Tip())

	_, err = ParseTactic("greed")
	assert.Error(t, err)
}
