// Package scorer deterministically combines externally-evaluated component
// scores into a total score and acquisition tier.
package scorer

import (
	"math"

	"github.com/sells-group/acquire-pipeline/internal/config"
	"github.com/sells-group/acquire-pipeline/internal/faults"
	"github.com/sells-group/acquire-pipeline/internal/model"
)

// Weights maps each component to its share of the total score. A weight
// table must cover exactly the seven components and sum to 1.
type Weights map[model.Component]float64

// DefaultWeights returns the standard weight table.
func DefaultWeights() Weights {
	return Weights{
		model.ComponentPriceEfficiency: 0.20,
		model.ComponentRevenueQuality:  0.15,
		model.ComponentMoat:            0.20,
		model.ComponentAILeverage:      0.15,
		model.ComponentOperations:      0.10,
		model.ComponentRisk:            0.10,
		model.ComponentTrust:           0.10,
	}
}

// weightSumTolerance absorbs floating-point accumulation when checking that
// weights sum to 1.
const weightSumTolerance = 1e-9

// Validate checks the weight table: exactly the seven known components, no
// negative weights, sum equal to 1.
func (w Weights) Validate() error {
	if len(w) != len(model.Components) {
		return faults.NewConfig("scoring", "weight table must contain exactly %d components, got %d", len(model.Components), len(w))
	}
	sum := 0.0
	for _, component := range model.Components {
		value, ok := w[component]
		if !ok {
			return faults.NewConfig("scoring", "weight table missing component %q", component)
		}
		if value < 0 {
			return faults.NewConfig("scoring", "weight for %q must be >= 0, got %v", component, value)
		}
		sum += value
	}
	if math.Abs(sum-1) > weightSumTolerance {
		return faults.NewConfig("scoring", "weights must sum to 1.0, got %v", sum)
	}
	return nil
}

// TrustPenalties are the fixed decrements applied to the raw trust component
// per confidence-flag category present on the record being scored.
type TrustPenalties struct {
	MissingFinancials float64
	Assumptions       float64
	Contradictions    float64
	RequiresFollowUp  float64
}

// DefaultTrustPenalties returns the standard penalty table.
func DefaultTrustPenalties() TrustPenalties {
	return TrustPenalties{
		MissingFinancials: 25,
		Assumptions:       10,
		Contradictions:    10,
		RequiresFollowUp:  15,
	}
}

// Validate checks that every penalty stays on the trust scale.
func (p TrustPenalties) Validate() error {
	penalties := map[string]float64{
		"missing_financials": p.MissingFinancials,
		"assumptions":        p.Assumptions,
		"contradictions":     p.Contradictions,
		"requires_followup":  p.RequiresFollowUp,
	}
	for name, value := range penalties {
		if value < 0 {
			return faults.NewConfig("scoring", "trust penalty %s must be >= 0, got %v", name, value)
		}
		if value > 100 {
			return faults.NewConfig("scoring", "trust penalty %s must be <= 100, got %v", name, value)
		}
	}
	return nil
}

// FromConfig builds the typed weight and penalty tables from configuration,
// failing fast on unknown keys or an inconsistent table.
func FromConfig(cfg config.ScoringConfig) (Weights, TrustPenalties, error) {
	weights := make(Weights, len(cfg.Weights))
	for name, value := range cfg.Weights {
		component := model.Component(name)
		if !component.Valid() {
			return nil, TrustPenalties{}, faults.NewConfig("scoring", "unknown weight component %q", name)
		}
		weights[component] = value
	}
	if err := weights.Validate(); err != nil {
		return nil, TrustPenalties{}, err
	}

	penalties := DefaultTrustPenalties()
	for name, value := range cfg.TrustPenalties {
		switch name {
		case "missing_financials":
			penalties.MissingFinancials = value
		case "assumptions":
			penalties.Assumptions = value
		case "contradictions":
			penalties.Contradictions = value
		case "requires_followup":
			penalties.RequiresFollowUp = value
		default:
			return nil, TrustPenalties{}, faults.NewConfig("scoring", "unknown trust penalty %q", name)
		}
	}
	if err := penalties.Validate(); err != nil {
		return nil, TrustPenalties{}, err
	}
	return weights, penalties, nil
}
