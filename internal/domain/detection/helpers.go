package detection

import (
	"sort"

	"github.com/stoik/persuasion-gateway/internal/domain"
)

// sortMatches orders matches by weight descending, then tactic name, then rule id
func sortMatches(matches []domain.Match) []domain.Match {
	sorted := append(make([]domain.Match, 0, len(matches)), matches...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Weight != b.Weight {
			return a.Weight > b.Weight
		}
		if a.Tactic.Label() != b.Tactic.Label() {
			return a.Tactic.Label() < b.Tactic.Label()
		}
		return a.RuleID < b.RuleID
	})
	return sorted
}
