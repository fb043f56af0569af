package scorer

import (
	"sort"

	"github.com/sells-group/acquire-pipeline/internal/faults"
	"github.com/sells-group/acquire-pipeline/internal/model"
)

// Scorer combines component scores into a total and tier. It holds validated
// tables only; identical inputs always produce identical output.
type Scorer struct {
	weights   Weights
	penalties TrustPenalties
}

// New builds a Scorer, failing fast on an invalid weight or penalty table.
func New(weights Weights, penalties TrustPenalties) (*Scorer, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	if err := penalties.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{weights: weights, penalties: penalties}, nil
}

// Input is one scoring request: the seven component scores produced by the
// evaluation capability and the confidence flags of the record version they
// describe.
type Input struct {
	BusinessID    string
	RecordVersion int
	Scores        model.ComponentScores
	Confidence    model.ConfidenceFlags
}

// ScoresFromMap converts a component-name keyed map, as returned by the
// evaluation capability, into ComponentScores. Unknown names and incomplete
// tables are validation errors.
func ScoresFromMap(values map[string]float64) (model.ComponentScores, error) {
	var scores model.ComponentScores
	if len(values) != len(model.Components) {
		return scores, faults.NewValidation("scores", "expected %d component scores, got %d", len(model.Components), len(values))
	}
	for name, value := range values {
		component := model.Component(name)
		if !component.Valid() {
			return scores, faults.NewValidation("scores", "unknown component %q", name)
		}
		scores.Set(component, value)
	}
	return scores, nil
}

// Score validates the component scores, applies trust penalties, and
// computes the weighted total and tier.
func (s *Scorer) Score(in Input) (*model.ScoringRecord, error) {
	for _, component := range model.Components {
		value := in.Scores.Get(component)
		if value < 0 || value > 100 {
			return nil, faults.NewValidation(string(component), "score %v outside [0,100]", value)
		}
	}

	rawTrust := in.Scores.Trust
	penalty := s.trustPenalty(in.Confidence)
	adjusted := in.Scores
	adjustedTrust := rawTrust - penalty
	if adjustedTrust < 0 {
		adjustedTrust = 0
	}
	adjusted.Trust = adjustedTrust

	total := 0.0
	for _, component := range model.Components {
		total += s.weights[component] * adjusted.Get(component)
	}
	if total < 0 {
		total = 0
	}
	if total > 100 {
		total = 100
	}

	return &model.ScoringRecord{
		BusinessID:    in.BusinessID,
		RecordVersion: in.RecordVersion,
		Scores:        adjusted,
		RawTrust:      rawTrust,
		TrustPenalty:  penalty,
		Total:         total,
		Tier:          TierFor(total),
		TopBuyReasons: s.topBuyReasons(adjusted),
		TopRisks:      topRisks(adjusted),
	}, nil
}

// trustPenalty sums the decrements for each confidence-flag category present.
func (s *Scorer) trustPenalty(flags model.ConfidenceFlags) float64 {
	penalty := 0.0
	if flags.MissingFinancials() {
		penalty += s.penalties.MissingFinancials
	}
	if len(flags.Assumptions) > 0 {
		penalty += s.penalties.Assumptions
	}
	if len(flags.Contradictions) > 0 {
		penalty += s.penalties.Contradictions
	}
	if len(flags.RequiresFollowUp) > 0 {
		penalty += s.penalties.RequiresFollowUp
	}
	return penalty
}

// TierFor maps a total score to its tier. Boundaries are half-open on the
// low side: 85.00 is an A, 84.99 a B.
func TierFor(total float64) model.Tier {
	switch {
	case total >= 85:
		return model.TierA
	case total >= 70:
		return model.TierB
	case total >= 55:
		return model.TierC
	default:
		return model.TierD
	}
}

// topBuyReasons names the three components contributing the largest weighted
// share of the total, ties resolved by the canonical component order.
func (s *Scorer) topBuyReasons(scores model.ComponentScores) []string {
	ranked := make([]model.Component, len(model.Components))
	copy(ranked, model.Components)
	sort.SliceStable(ranked, func(i, j int) bool {
		return s.weights[ranked[i]]*scores.Get(ranked[i]) > s.weights[ranked[j]]*scores.Get(ranked[j])
	})
	return componentNames(ranked[:3])
}

// topRisks names the three weakest components by unweighted value, ties
// resolved by the canonical component order.
func topRisks(scores model.ComponentScores) []string {
	ranked := make([]model.Component, len(model.Components))
	copy(ranked, model.Components)
	sort.SliceStable(ranked, func(i, j int) bool {
		return scores.Get(ranked[i]) < scores.Get(ranked[j])
	})
	return componentNames(ranked[:3])
}

func componentNames(components []model.Component) []string {
	names := make([]string, len(components))
	for i, c := range components {
		names[i] = string(c)
	}
	return names
}
