package banner

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stoik/persuasion-gateway/internal/catalogue"
	"github.com/stoik/persuasion-gateway/internal/domain"
	"github.com/stoik/persuasion-gateway/internal/domain/detection"
)

func evaluate(t *testing.T, subject, body string) domain.Verdict {
	t.Helper()
	c, err := catalogue.Default()
	require.NoError(t, err)
	d, err := detection.NewDetector(c, domain.DefaultThresholds())
	require.NoError(t, err)
	v, err := d.Evaluate(subject, body)
	require.NoError(t, err)
	return v
}

func TestRenderText(t *testing.T) {
	tests := []struct {
		name     string
		verdict  domain.Verdict
		contains []string
		excludes []string
	}{
		{
			name:     "no cues",
			verdict:  evaluate(t, "", ""),
			contains: []string{NoCuesText, "Risk level: None (score 0)"},
			excludes: []string{"Detected tactics"},
		},
		{
			name:    "urgency only",
			verdict: evaluate(t, "", "URGENT. Reply immediately."),
			contains: []string{
				"Risk level: Medium (score 7)",
				"- Urgency (score 7)",
				"- URG_01 (Urgency, weight 4):",
				"- URG_02 (Urgency, weight 3):",
				"- Urgency: " + domain.TacticUrgency.Tip(),
			},
			excludes: []string{NoCuesText, "Fear"},
		},
		{
			name:     "degraded",
			verdict:  domain.DegradedVerdict("body could not be normalized"),
			contains: []string{NotAnalyzedText, "Reason: body could not be normalized"},
		},
		{
			name:     "degraded without reason",
			verdict:  domain.DegradedVerdict(""),
			contains: []string{"Reason: unknown"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := RenderText(tt.verdict)
			assert.NotEmpty(t, out)
			assert.True(t, strings.HasSuffix(out, footer+"\n"))
			assert.NotContains(t, out, "\r")
			for _, s := range tt.contains {
				assert.Contains(t, out, s)
			}
			for _, s := range tt.excludes {
				assert.NotContains(t, out, s)
			}
		})
	}
}

func TestRenderText_TacticsInCanonicalOrder(t *testing.T) {
	v := evaluate(t, "", "Congratulations, you have been selected. Act now or your account will be locked.")

	out := RenderText(v)

	urgency := strings.Index(out, "- Urgency (score")
	fear := strings.Index(out, "- Fear (score")
	reward := strings.Index(out, "- Reward (score")
	require.True(t, urgency >= 0 && fear >= 0 && reward >= 0, out)
	assert.Less(t, urgency, fear)
	assert.Less(t, fear, reward)
}

func TestRender_SanitizesCatalogueText(t *testing.T) {
	v := domain.Verdict{
		Level: domain.RiskLow,
		Score: 2,
		Matches: []domain.Match{{
			RuleID:      "X\r\nBcc: victim@example.com",
			Tactic:      domain.TacticTrust,
			Weight:      2,
			Description: "<script>alert(1)</script>\x00 résumé",
		}},
		Tactics: []domain.TacticScore{{Tactic: domain.TacticTrust, Score: 2, Rules: []string{"X"}}},
	}

	text := RenderText(v)
	assert.NotContains(t, text, "\r")
	assert.NotContains(t, text, "\x00")
	assert.Contains(t, text, "- X Bcc: victim@example.com (Trust, weight 2)")

	htmlOut := RenderHTML(v)
	assert.NotContains(t, htmlOut, "<script>")
	assert.Contains(t, htmlOut, "&lt;script&gt;alert(1)&lt;/script&gt;")

	header := RenderHeader(v)
	assert.NotContains(t, header, "\r")
	assert.NotContains(t, header, "\n")
}

func TestRenderHTML(t *testing.T) {
	out := RenderHTML(evaluate(t, "Final notice", "Failure to do so may result in suspension."))

	assert.True(t, strings.HasPrefix(out, "<div "))
	assert.True(t, strings.HasSuffix(out, "</div>"))
	assert.Contains(t, out, "Persuasion cues detected")
	assert.Contains(t, out, "Detected tactics: Urgency, Fear")
	assert.Contains(t, out, "URG_03 (Urgency, weight 5)")
	assert.NotContains(t, out, "\n")

	none := RenderHTML(evaluate(t, "", ""))
	assert.Contains(t, none, NoCuesText)
}

func TestRenderHeader(t *testing.T) {
	tests := []struct {
		name     string
		verdict  domain.Verdict
		expected string
	}{
		{
			name:     "no cues",
			verdict:  evaluate(t, "", ""),
			expected: "None (score 0); no persuasion cues detected",
		},
		{
			name:     "urgency",
			verdict:  evaluate(t, "", "URGENT. Reply immediately."),
			expected: "Medium (score 7); tactics: Urgency; rules: URG_01, URG_02",
		},
		{
			name:     "degraded",
			verdict:  domain.DegradedVerdict("message could not be parsed"),
			expected: "not analyzed: message could not be parsed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, RenderHeader(tt.verdict))
		})
	}
}

func TestRenderHeader_EncodesNonASCII(t *testing.T) {
	out := RenderHeader(domain.DegradedVerdict("caractère invalide"))
	assert.True(t, strings.HasPrefix(out, "=?utf-8?q?"), out)
	for _, r := range out {
		assert.Less(t, r, rune(128))
	}
}

func TestRender_DoesNotChangeVerdict(t *testing.T) {
	c, err := catalogue.Default()
	require.NoError(t, err)
	d, err := detection.NewDetector(c, domain.DefaultThresholds())
	require.NoError(t, err)

	subject, body := "Action required", "Your account will be suspended. Thank you."
	before, err := d.Evaluate(subject, body)
	require.NoError(t, err)
	require.NotEmpty(t, before.Matches)
	snapshot, err := d.Evaluate(subject, body)
	require.NoError(t, err)

	text, markup, header := RenderText(before), RenderHTML(before), RenderHeader(before)
	for i := 0; i < 3; i++ {
		assert.Equal(t, text, RenderText(before))
		assert.Equal(t, markup, RenderHTML(before))
		assert.Equal(t, header, RenderHeader(before))
	}

	// rendering leaves the verdict untouched and evaluation is unaffected by it
	assert.Equal(t, snapshot, before)
	after, err := d.Evaluate(subject, body)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestRender_TotalOverRiskLevels(t *testing.T) {
	for _, level := range []domain.RiskLevel{domain.RiskNone, domain.RiskLow, domain.RiskMedium, domain.RiskHigh, domain.RiskCritical} {
		v := domain.Verdict{
			Level:   level,
			Matches: []domain.Match{{RuleID: "R", Tactic: domain.TacticFear}},
		}
		assert.NotEmpty(t, RenderText(v), level.String())
		assert.NotEmpty(t, RenderHTML(v), level.String())
		assert.NotEmpty(t, RenderHeader(v), level.String())
	}
}
