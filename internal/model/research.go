package model

import "time"

// AgentType identifies one sector-research analysis domain.
type AgentType string

const (
	AgentMarketStructure AgentType = "market_structure"
	AgentPlatformRisk    AgentType = "platform_risk"
	AgentMonetization    AgentType = "monetization"
	AgentCompetition     AgentType = "competition"
	AgentBuyerExit       AgentType = "buyer_exit"
	AgentSynthesis       AgentType = "synthesis"
)

// ResearchAgents lists the five fan-out agents in canonical order.
// Synthesis is not a fan-out agent; it runs after the join.
var ResearchAgents = []AgentType{
	AgentMarketStructure,
	AgentPlatformRisk,
	AgentMonetization,
	AgentCompetition,
	AgentBuyerExit,
}

// Valid reports whether a is a known agent type, including synthesis.
func (a AgentType) Valid() bool {
	switch a {
	case AgentMarketStructure, AgentPlatformRisk, AgentMonetization,
		AgentCompetition, AgentBuyerExit, AgentSynthesis:
		return true
	}
	return false
}

// ConfidenceLevel grades how much an analysis output can be trusted.
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "high"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceLow    ConfidenceLevel = "low"
)

// ResearchOutput is the structured result of one research agent call.
// Sources carry the web citations the answer was grounded on.
type ResearchOutput struct {
	Summary       string          `json:"summary"`
	KeyFindings   []string        `json:"key_findings,omitempty"`
	Risks         []string        `json:"risks,omitempty"`
	Opportunities []string        `json:"opportunities,omitempty"`
	Sources       []string        `json:"sources,omitempty"`
	Confidence    ConfidenceLevel `json:"confidence"`
}

// SectorResearchRecord is one immutable version of an agent's output for a
// sector. Versions are per (sector key, agent type); duplicate content
// hashes within that key collapse to the existing version.
type SectorResearchRecord struct {
	ID            string    `json:"id"`
	SectorKey     string    `json:"sector_key"`
	AgentType     AgentType `json:"agent_type"`
	BusinessID    string    `json:"business_id,omitempty"` // optional: sector research is reusable
	Version       int       `json:"version"`
	ContentHash   string    `json:"content_hash"`
	PromptVersion string    `json:"prompt_version"`
	Output        []byte    `json:"output"` // JSON: ResearchOutput or SynthesisResult
	CreatedAt     time.Time `json:"created_at"`
}

// SWOT is the four-quadrant synthesis summary.
type SWOT struct {
	Strengths     []string `json:"strengths"`
	Weaknesses    []string `json:"weaknesses"`
	Opportunities []string `json:"opportunities"`
	Threats       []string `json:"threats"`
}

// Verdict is the sector-fit conclusion of a synthesis.
type Verdict string

const (
	VerdictHigh   Verdict = "High"
	VerdictMedium Verdict = "Medium"
	VerdictLow    Verdict = "Low"
)

// SynthesisResult combines the per-agent analyses into one sector verdict.
type SynthesisResult struct {
	SectorKey        string          `json:"sector_key"`
	SWOT             SWOT            `json:"swot"`
	CrossDomainRisks []string        `json:"cross_domain_risks,omitempty"`
	TimeSensitive    []string        `json:"time_sensitive_opportunities,omitempty"`
	Verdict          Verdict         `json:"sector_fit_verdict"`
	Justification    string          `json:"justification"`
	Confidence       ConfidenceLevel `json:"confidence"`
	MissingDomains   []AgentType     `json:"missing_domains,omitempty"`
}

// ResearchOutcome is the terminal result of one research orchestration:
// every agent's output or failure, plus the synthesis over the successes.
type ResearchOutcome struct {
	SectorKey      string                         `json:"sector_key"`
	Results        map[AgentType]*ResearchOutput  `json:"results"`
	Failures       map[AgentType]string           `json:"failures,omitempty"`
	MissingDomains []AgentType                    `json:"missing_domains,omitempty"`
	Synthesis      *SynthesisResult               `json:"synthesis,omitempty"`
	StartedAt      time.Time                      `json:"started_at"`
	CompletedAt    time.Time                      `json:"completed_at"`
}
