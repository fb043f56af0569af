package model

import "time"

// Component identifies one of the seven scored dimensions of a target.
type Component string

const (
	ComponentPriceEfficiency Component = "price_efficiency"
	ComponentRevenueQuality  Component = "revenue_quality"
	ComponentMoat            Component = "moat"
	ComponentAILeverage      Component = "ai_leverage"
	ComponentOperations      Component = "operations"
	ComponentRisk            Component = "risk"
	ComponentTrust           Component = "trust"
)

// Components lists the seven components in canonical weighting order.
var Components = []Component{
	ComponentPriceEfficiency,
	ComponentRevenueQuality,
	ComponentMoat,
	ComponentAILeverage,
	ComponentOperations,
	ComponentRisk,
	ComponentTrust,
}

// Valid reports whether c is one of the seven scored components.
func (c Component) Valid() bool {
	switch c {
	case ComponentPriceEfficiency, ComponentRevenueQuality, ComponentMoat,
		ComponentAILeverage, ComponentOperations, ComponentRisk, ComponentTrust:
		return true
	}
	return false
}

// ComponentScores holds one score in [0,100] per component.
type ComponentScores struct {
	PriceEfficiency float64 `json:"price_efficiency"`
	RevenueQuality  float64 `json:"revenue_quality"`
	Moat            float64 `json:"moat"`
	AILeverage      float64 `json:"ai_leverage"`
	Operations      float64 `json:"operations"`
	Risk            float64 `json:"risk"`
	Trust           float64 `json:"trust"`
}

// Get returns the score for the named component.
func (c ComponentScores) Get(component Component) float64 {
	switch component {
	case ComponentPriceEfficiency:
		return c.PriceEfficiency
	case ComponentRevenueQuality:
		return c.RevenueQuality
	case ComponentMoat:
		return c.Moat
	case ComponentAILeverage:
		return c.AILeverage
	case ComponentOperations:
		return c.Operations
	case ComponentRisk:
		return c.Risk
	case ComponentTrust:
		return c.Trust
	}
	return 0
}

// Set assigns the score for the named component.
func (c *ComponentScores) Set(component Component, value float64) {
	switch component {
	case ComponentPriceEfficiency:
		c.PriceEfficiency = value
	case ComponentRevenueQuality:
		c.RevenueQuality = value
	case ComponentMoat:
		c.Moat = value
	case ComponentAILeverage:
		c.AILeverage = value
	case ComponentOperations:
		c.Operations = value
	case ComponentRisk:
		c.Risk = value
	case ComponentTrust:
		c.Trust = value
	}
}

// Tier is the coarse classification derived from a total score.
type Tier string

const (
	TierA Tier = "A"
	TierB Tier = "B"
	TierC Tier = "C"
	TierD Tier = "D"
)

// ScoringRecord is the immutable result of one scoring invocation over a
// canonical record version.
type ScoringRecord struct {
	ID            string          `json:"id"`
	BusinessID    string          `json:"business_id"`
	RecordVersion int             `json:"record_version"`
	Scores        ComponentScores `json:"scores"` // trust already penalty-adjusted
	RawTrust      float64         `json:"raw_trust"`
	TrustPenalty  float64         `json:"trust_penalty"`
	Total         float64         `json:"total"`
	Tier          Tier            `json:"tier"`
	TopBuyReasons []string        `json:"top_buy_reasons,omitempty"`
	TopRisks      []string        `json:"top_risks,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}
