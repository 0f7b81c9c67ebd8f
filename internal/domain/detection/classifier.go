package detection

import (
	"github.com/stoik/persuasion-gateway/internal/domain"
)

// Classify combines per-tactic scores into a verdict.
//
// The combined score is the plain sum of tactic scores, so messages mixing
// several tactics score higher than any single tactic alone. The level comes
// from the threshold table only. Classify never fails.
func Classify(scores []domain.TacticScore, matches []domain.Match, thresholds domain.Thresholds) domain.Verdict {
	combined := 0
	for _, ts := range scores {
		combined += ts.Score
	}

	tactics := make([]domain.TacticScore, len(scores))
	for i, ts := range scores {
		ts.Rules = append([]string(nil), ts.Rules...)
		tactics[i] = ts
	}

	return domain.Verdict{
		Level:   thresholds.Level(combined),
		Score:   combined,
		Matches: sortMatches(matches),
		Tactics: tactics,
	}
}
