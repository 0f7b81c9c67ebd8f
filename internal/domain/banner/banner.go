// Package banner renders the educational annotation attached to every
// forwarded message.
//
// Rendering is pure and total: every Verdict, including the lowest risk level
// and degraded verdicts, produces a non-empty banner. Catalogue text is
// sanitized before it is embedded so the output cannot break the MIME
// structure of the message it is inserted into.
package banner

import (
	"fmt"
	"mime"
	"strings"
	"unicode"

	"golang.org/x/net/html"

	"github.com/stoik/persuasion-gateway/internal/domain"
)

const (
	NoCuesText      = "No persuasion cues were detected in this email."
	NotAnalyzedText = "This email could not be analyzed for persuasion cues."

	headerTitle = "=== PERSUASION CUES DETECTED ==="
	checkTitle  = "=== PERSUASION CUE CHECK ==="
	footer      = "=== END PERSUASION BANNER ==="
)

// RenderText renders the plain-text banner, lines separated by "\n"
func RenderText(v domain.Verdict) string {
	var lines []string

	switch {
	case v.Degraded:
		lines = append(lines,
			checkTitle,
			NotAnalyzedText,
			"Reason: "+clean(v.DegradedReason, "unknown"),
			"Treat unexpected requests with care and verify the sender via a trusted channel.",
		)

	case len(v.Matches) == 0:
		lines = append(lines,
			checkTitle,
			fmt.Sprintf("Risk level: %s (score %d)", v.Level, v.Score),
			NoCuesText,
			"Phishing can still slip through: stay alert to unexpected requests.",
		)

	default:
		lines = append(lines,
			headerTitle,
			fmt.Sprintf("Risk level: %s (score %d)", v.Level, v.Score),
			"This email contains persuasion techniques commonly used in phishing.",
			"Pause before acting. Verify the sender via a trusted channel.",
		)

		detected := v.DetectedTactics()
		if len(detected) > 0 {
			lines = append(lines, "", "Detected tactics:")
			for _, ts := range detected {
				lines = append(lines, fmt.Sprintf("- %s (score %d)", ts.Tactic.Label(), ts.Score))
			}
		}

		lines = append(lines, "", "Triggered rules:")
		for _, m := range v.Matches {
			lines = append(lines, fmt.Sprintf("- %s (%s, weight %d): %s",
				clean(m.RuleID, "?"), m.Tactic.Label(), m.Weight, clean(m.Description, "no description")))
		}

		if len(detected) > 0 {
			lines = append(lines, "", "What to look for:")
			for _, ts := range detected {
				lines = append(lines, fmt.Sprintf("- %s: %s", ts.Tactic.Label(), ts.Tactic.Tip()))
			}
		}
	}

	lines = append(lines, footer, "")
	return strings.Join(lines, "\n")
}

// RenderHTML renders the banner as an HTML fragment meant to be inserted
// right after the opening <body> tag
func RenderHTML(v domain.Verdict) string {
	var b strings.Builder

	b.WriteString(`<div style="margin: 0 0 16px 0; padding: 12px 14px; border: 1px solid #e6d9a8; ` +
		`background: #fff9db; color: #2b2b2b; border-radius: 6px; ` +
		`font-family: Arial, Helvetica, sans-serif; font-size: 13px; line-height: 1.35;">`)

	switch {
	case v.Degraded:
		div(&b, "font-weight: 700; margin-bottom: 6px;", "Persuasion cue check")
		div(&b, "margin-bottom: 8px;", NotAnalyzedText+" Reason: "+clean(v.DegradedReason, "unknown")+".")

	case len(v.Matches) == 0:
		div(&b, "font-weight: 700; margin-bottom: 6px;", "Persuasion cue check")
		div(&b, "margin-bottom: 8px;", NoCuesText)

	default:
		div(&b, "font-weight: 700; margin-bottom: 6px;", "Persuasion cues detected")
		div(&b, "margin-bottom: 8px;",
			"This email contains persuasion techniques commonly used in phishing. "+
				"Pause before acting and verify the sender via a trusted channel.")
		div(&b, "margin-bottom: 6px;", fmt.Sprintf("Risk level: %s (score %d)", v.Level, v.Score))

		detected := v.DetectedTactics()
		if len(detected) > 0 {
			labels := make([]string, 0, len(detected))
			for _, ts := range detected {
				labels = append(labels, ts.Tactic.Label())
			}
			div(&b, "margin-bottom: 6px;", "Detected tactics: "+strings.Join(labels, ", "))
		}

		b.WriteString(`<ul style="margin: 6px 0 0 18px; padding: 0;">`)
		for _, m := range v.Matches {
			item(&b, fmt.Sprintf("%s (%s, weight %d): %s",
				clean(m.RuleID, "?"), m.Tactic.Label(), m.Weight, clean(m.Description, "no description")))
		}
		b.WriteString(`</ul>`)

		if len(detected) > 0 {
			b.WriteString(`<div style="margin-top: 8px;"><strong>What to look for:</strong>`)
			b.WriteString(`<ul style="margin: 6px 0 0 18px; padding: 0;">`)
			for _, ts := range detected {
				item(&b, ts.Tactic.Label()+": "+ts.Tactic.Tip())
			}
			b.WriteString(`</ul></div>`)
		}
	}

	b.WriteString(`</div>`)
	return b.String()
}

// RenderHeader renders a one-line summary suitable for a header field value.
// Non-ASCII text is RFC 2047 encoded.
func RenderHeader(v domain.Verdict) string {
	var s string

	switch {
	case v.Degraded:
		s = "not analyzed: " + clean(v.DegradedReason, "unknown")
	case len(v.Matches) == 0:
		s = fmt.Sprintf("%s (score %d); no persuasion cues detected", v.Level, v.Score)
	default:
		detected := v.DetectedTactics()
		labels := make([]string, 0, len(detected))
		for _, ts := range detected {
			labels = append(labels, ts.Tactic.Label())
		}
		ids := make([]string, 0, len(v.Matches))
		for _, m := range v.Matches {
			ids = append(ids, clean(m.RuleID, "?"))
		}
		s = fmt.Sprintf("%s (score %d); tactics: %s; rules: %s",
			v.Level, v.Score, orNone(labels), strings.Join(ids, ", "))
	}

	return mime.QEncoding.Encode("utf-8", s)
}

func div(b *strings.Builder, style, text string) {
	b.WriteString(`<div style="`)
	b.WriteString(style)
	b.WriteString(`">`)
	b.WriteString(html.EscapeString(text))
	b.WriteString(`</div>`)
}

func item(b *strings.Builder, text string) {
	b.WriteString(`<li>`)
	b.WriteString(html.EscapeString(text))
	b.WriteString(`</li>`)
}

// clean makes catalogue or error text safe to embed: control and format
// characters become spaces, runs of whitespace collapse
func clean(s, fallback string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || unicode.Is(unicode.Cf, r) {
			return ' '
		}
		return r
	}, s)
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return fallback
	}
	return s
}

func orNone(labels []string) string {
	if len(labels) == 0 {
		return "none"
	}
	return strings.Join(labels, ", ")
}
