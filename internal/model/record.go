package model

import (
	"strings"
	"time"
)

// CanonicalRecord is one immutable version of a business's structured record.
// Versions per business id are gapless and start at 1; the content hash is
// computed from the normalized raw input and extraction prompt version, so
// re-extracting unchanged input never creates a new version.
type CanonicalRecord struct {
	ID            string          `json:"id"`
	BusinessID    string          `json:"business_id"`
	Version       int             `json:"version"`
	ContentHash   string          `json:"content_hash"`
	PromptVersion string          `json:"prompt_version"`
	Domains       DomainBlocks    `json:"domains"`
	Confidence    ConfidenceFlags `json:"confidence_flags"`
	CreatedAt     time.Time       `json:"created_at"`
}

// DomainBlocks groups the eight structured domains of a canonical record.
// A nil block means the extraction produced nothing for that domain.
type DomainBlocks struct {
	Financials *Financials `json:"financials,omitempty"`
	Product    *Product    `json:"product,omitempty"`
	Customers  *Customers  `json:"customers,omitempty"`
	Operations *Operations `json:"operations,omitempty"`
	Technology *Technology `json:"technology,omitempty"`
	Growth     *Growth     `json:"growth,omitempty"`
	Risks      *Risks      `json:"risks,omitempty"`
	Seller     *Seller     `json:"seller,omitempty"`
}

// Missing returns the names of domains with no extracted block, in the
// canonical domain order.
func (d DomainBlocks) Missing() []string {
	var missing []string
	if d.Financials == nil {
		missing = append(missing, "financials")
	}
	if d.Product == nil {
		missing = append(missing, "product")
	}
	if d.Customers == nil {
		missing = append(missing, "customers")
	}
	if d.Operations == nil {
		missing = append(missing, "operations")
	}
	if d.Technology == nil {
		missing = append(missing, "technology")
	}
	if d.Growth == nil {
		missing = append(missing, "growth")
	}
	if d.Risks == nil {
		missing = append(missing, "risks")
	}
	if d.Seller == nil {
		missing = append(missing, "seller")
	}
	return missing
}

// Financials captures reported money facts. Pointer fields distinguish
// "not reported" from zero.
type Financials struct {
	AskingPrice     *float64 `json:"asking_price,omitempty"`
	AnnualRevenue   *float64 `json:"annual_revenue,omitempty"`
	AnnualProfit    *float64 `json:"annual_profit,omitempty"`
	ProfitMargin    *float64 `json:"profit_margin,omitempty"`
	RevenueTrend    string   `json:"revenue_trend,omitempty"`
	MonthsOfRecords *int     `json:"months_of_records,omitempty"`
	Verified        *bool    `json:"verified,omitempty"`
}

// Product describes what the business sells and how.
type Product struct {
	Description    string   `json:"description,omitempty"`
	BusinessModel  string   `json:"business_model,omitempty"`
	TechStack      []string `json:"tech_stack,omitempty"`
	Differentiator string   `json:"differentiator,omitempty"`
}

// Customers captures the customer base and its concentration.
type Customers struct {
	ChurnRate           *float64 `json:"churn_rate,omitempty"`
	CustomerCount       *int     `json:"customer_count,omitempty"`
	ConcentrationTop1   *float64 `json:"concentration_top1,omitempty"`
	AcquisitionChannels []string `json:"acquisition_channels,omitempty"`
}

// Operations captures owner involvement and support load.
type Operations struct {
	OwnerHoursPerWeek *float64 `json:"owner_hours_per_week,omitempty"`
	SupportBurden     string   `json:"support_burden,omitempty"`
	SOPsDocumented    *bool    `json:"sops_documented,omitempty"`
	Headcount         *int     `json:"headcount,omitempty"`
}

// Technology captures platform and IP posture.
type Technology struct {
	PlatformDependency string `json:"platform_dependency,omitempty"`
	IPOwnership        string `json:"ip_ownership,omitempty"`
	CodebaseAgeYears   *int   `json:"codebase_age_years,omitempty"`
	Infrastructure     string `json:"infrastructure,omitempty"`
}

// Growth captures trajectory and headroom.
type Growth struct {
	GrowthRate    *float64 `json:"growth_rate,omitempty"`
	Opportunities []string `json:"opportunities,omitempty"`
	Constraints   []string `json:"constraints,omitempty"`
}

// Risks captures known threats to the business.
type Risks struct {
	KeyRisks         []string `json:"key_risks,omitempty"`
	PlatformRisk     string   `json:"platform_risk,omitempty"`
	RegulatoryRisk   string   `json:"regulatory_risk,omitempty"`
	CompetitionLevel string   `json:"competition_level,omitempty"`
}

// Seller captures the seller's situation and intent.
type Seller struct {
	ReasonForSale string `json:"reason_for_sale,omitempty"`
	Timeline      string `json:"timeline,omitempty"`
	Flexibility   string `json:"flexibility,omitempty"`
	PostSaleRole  string `json:"post_sale_role,omitempty"`
}

// ConfidenceFlags records where the extraction was uncertain: fields the
// source never stated, values it had to assume, and internally contradictory
// claims. Each entry names the affected field or claim.
type ConfidenceFlags struct {
	MissingData      []string `json:"missing_data,omitempty"`
	Assumptions      []string `json:"assumptions,omitempty"`
	Contradictions   []string `json:"contradictions,omitempty"`
	RequiresFollowUp []string `json:"requires_follow_up,omitempty"`
}

// Empty reports whether no flags were raised.
func (f ConfidenceFlags) Empty() bool {
	return len(f.MissingData) == 0 &&
		len(f.Assumptions) == 0 &&
		len(f.Contradictions) == 0 &&
		len(f.RequiresFollowUp) == 0
}

// MissingFinancials reports whether any missing-data flag names the
// financials domain or one of its fields.
func (f ConfidenceFlags) MissingFinancials() bool {
	for _, field := range f.MissingData {
		if field == "financials" || strings.HasPrefix(field, "financials.") {
			return true
		}
	}
	return false
}
