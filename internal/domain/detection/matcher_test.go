package detection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stoik/persuasion-gateway/internal/domain"
)

func testCatalogue(t *testing.T) *domain.Catalogue {
	t.Helper()
	c, err := domain.NewCatalogue([]domain.Rule{
		{ID: "U1", Tactic: domain.TacticUrgency, Weight: 4, Patterns: []string{"act now", "Hurry!"}, Rationale: "pressure"},
		{ID: "S1", Tactic: domain.TacticReward, Weight: 5, Patterns: []string{"winner"}, Fields: []domain.Field{domain.FieldSubject}},
		{ID: "B1", Tactic: domain.TacticFear, Weight: 3, Patterns: []string{"locked"}, Fields: []domain.Field{domain.FieldBody}},
		{ID: "Z0", Tactic: domain.TacticTrust, Weight: 0, Patterns: []string{"hello"}},
	})
	require.NoError(t, err)
	return c
}

func TestMatcher_Match(t *testing.T) {
	m, err := NewMatcher(testCatalogue(t))
	require.NoError(t, err)

	tests := []struct {
		name     string
		text     NormalizedText
		expected []domain.Match
	}{
		{
			name:     "no match",
			text:     NormalizedText{Subject: "weekly report", Body: "see attached"},
			expected: []domain.Match{},
		},
		{
			name: "earliest occurrence wins",
			text: NormalizedText{Body: "please hurry and act now hurry"},
			expected: []domain.Match{
				{RuleID: "U1", Tactic: domain.TacticUrgency, Weight: 4, Description: "pressure", Field: domain.FieldBody, Pattern: "Hurry!", Offset: 7},
			},
		},
		{
			name: "subject scanned before body",
			text: NormalizedText{Subject: "act now", Body: "act now"},
			expected: []domain.Match{
				{RuleID: "U1", Tactic: domain.TacticUrgency, Weight: 4, Description: "pressure", Field: domain.FieldSubject, Pattern: "act now", Offset: 0},
			},
		},
		{
			name:     "field scope is honoured",
			text:     NormalizedText{Subject: "locked", Body: "winner"},
			expected: []domain.Match{},
		},
		{
			name: "scoped rules in their field",
			text: NormalizedText{Subject: "you are a winner", Body: "account locked"},
			expected: []domain.Match{
				{RuleID: "S1", Tactic: domain.TacticReward, Weight: 5, Field: domain.FieldSubject, Pattern: "winner", Offset: 10},
				{RuleID: "B1", Tactic: domain.TacticFear, Weight: 3, Field: domain.FieldBody, Pattern: "locked", Offset: 8},
			},
		},
		{
			name: "zero weight rules still match",
			text: NormalizedText{Body: "hello"},
			expected: []domain.Match{
				{RuleID: "Z0", Tactic: domain.TacticTrust, Weight: 0, Field: domain.FieldBody, Pattern: "hello", Offset: 0},
			},
		},
		{
			name: "offset counts runes",
			text: NormalizedText{Body: "déjà vu act now"},
			expected: []domain.Match{
				{RuleID: "U1", Tactic: domain.TacticUrgency, Weight: 4, Description: "pressure", Field: domain.FieldBody, Pattern: "act now", Offset: 8},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, m.Match(tt.text))
		})
	}
}

func TestAggregate(t *testing.T) {
	c := testCatalogue(t)

	matches := []domain.Match{
		{RuleID: "U1", Tactic: domain.TacticUrgency, Weight: 4},
		{RuleID: "U1", Tactic: domain.TacticUrgency, Weight: 4},
		{RuleID: "B1", Tactic: domain.TacticFear, Weight: 3},
		{RuleID: "X9", Tactic: domain.TacticAuthority, Weight: 5},
	}

	scores := Aggregate(c, matches)

	assert.Equal(t, []domain.TacticScore{
		{Tactic: domain.TacticUrgency, Score: 4, Rules: []string{"U1"}},
		{Tactic: domain.TacticFear, Score: 3, Rules: []string{"B1"}},
		{Tactic: domain.TacticTrust, Score: 0},
		{Tactic: domain.TacticReward, Score: 0},
	}, scores, "duplicates count once and absent tactics never appear")
}

func TestClassify(t *testing.T) {
	th := domain.DefaultThresholds()

	tests := []struct {
		name          string
		scores        []domain.TacticScore
		expectedScore int
		expectedLevel domain.RiskLevel
	}{
		{"empty", nil, 0, domain.RiskNone},
		{"single low", []domain.TacticScore{{Tactic: domain.TacticTrust, Score: 2}}, 2, domain.RiskLow},
		{"boundary rounds up", []domain.TacticScore{{Tactic: domain.TacticFear, Score: 5}}, 5, domain.RiskMedium},
		{
			name: "many trust rules outrank one fear rule",
			scores: []domain.TacticScore{
				{Tactic: domain.TacticFear, Score: 5},
				{Tactic: domain.TacticTrust, Score: 6},
			},
			expectedScore: 11,
			expectedLevel: domain.RiskHigh,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Classify(tt.scores, nil, th)
			assert.Equal(t, tt.expectedScore, v.Score)
			assert.Equal(t, tt.expectedLevel, v.Level)
			assert.NotNil(t, v.Matches)
			assert.Empty(t, v.Matches)
		})
	}
}

func TestClassify_SortsMatches(t *testing.T) {
	matches := []domain.Match{
		{RuleID: "T2", Tactic: domain.TacticTrust, Weight: 2},
		{RuleID: "U3", Tactic: domain.TacticUrgency, Weight: 3},
		{RuleID: "A3", Tactic: domain.TacticAuthority, Weight: 3},
		{RuleID: "F5", Tactic: domain.TacticFear, Weight: 5},
		{RuleID: "A1", Tactic: domain.TacticAuthority, Weight: 3},
	}

	v := Classify(nil, matches, domain.DefaultThresholds())

	assert.Equal(t, []string{"F5", "A1", "A3", "U3", "T2"}, ruleIDs(v))
	assert.Equal(t, "T2", matches[0].RuleID, "input slice is not reordered")
}
