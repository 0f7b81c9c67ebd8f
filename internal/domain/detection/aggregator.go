package detection

import (
	"github.com/stoik/persuasion-gateway/internal/domain"
)

// Aggregate reduces matches to one score per tactic present in the catalogue.
//
// A tactic's score is the sum of the weights of the distinct rules of that
// tactic that matched. Tactics do not interact here.
func Aggregate(catalogue *domain.Catalogue, matches []domain.Match) []domain.TacticScore {
	tactics := catalogue.Tactics()
	index := make(map[domain.Tactic]int, len(tactics))
	scores := make([]domain.TacticScore, len(tactics))
	for i, t := range tactics {
		index[t] = i
		scores[i] = domain.TacticScore{Tactic: t}
	}

	seen := make(map[string]bool, len(matches))
	for _, m := range matches {
		i, ok := index[m.Tactic]
		if !ok || seen[m.RuleID] {
			continue
		}
		seen[m.RuleID] = true
		scores[i].Score += m.Weight
		scores[i].Rules = append(scores[i].Rules, m.RuleID)
	}

	return scores
}
