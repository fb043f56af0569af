package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sells-group/acquire-pipeline/internal/faults"
	"github.com/sells-group/acquire-pipeline/internal/model"
	"github.com/sells-group/acquire-pipeline/pkg/anthropic"
)

// extractSystemPrompt is identical for every listing, so the 1h prompt cache
// amortizes it across a batch.
const extractSystemPrompt = `You extract structured acquisition data from business-for-sale listings.

Read the listing and respond with a single JSON object:

{
  "domains": {
    "financials": {"asking_price": number, "annual_revenue": number, "annual_profit": number, "profit_margin": number, "revenue_trend": "growing|flat|declining", "months_of_records": number, "verified": boolean},
    "product": {"description": string, "business_model": string, "tech_stack": [string], "differentiator": string},
    "customers": {"churn_rate": number, "customer_count": number, "concentration_top1": number, "acquisition_channels": [string]},
    "operations": {"owner_hours_per_week": number, "support_burden": string, "sops_documented": boolean, "headcount": number},
    "technology": {"platform_dependency": string, "ip_ownership": string, "codebase_age_years": number, "infrastructure": string},
    "growth": {"growth_rate": number, "opportunities": [string], "constraints": [string]},
    "risks": {"key_risks": [string], "platform_risk": string, "regulatory_risk": string, "competition_level": string},
    "seller": {"reason_for_sale": string, "timeline": string, "flexibility": string, "post_sale_role": string}
  },
  "confidence_flags": {
    "missing_data": [string],
    "assumptions": [string],
    "contradictions": [string],
    "requires_follow_up": [string]
  }
}

Rules:
- Report only what the listing states or directly implies. Omit fields the listing does not support; never invent values.
- Omit a whole domain object when the listing says nothing about it, and name that domain in missing_data.
- Record every estimate you make in assumptions, and every internal inconsistency in contradictions (for example profit exceeding revenue).
- Name fields a buyer must verify with the seller in requires_follow_up, using dotted paths like "financials.annual_profit".
- Respond with JSON only.`

// Extractor turns raw listing text into the structured domain blocks of a
// canonical record.
type Extractor interface {
	Extract(ctx context.Context, listing model.RawListing) (model.DomainBlocks, model.ConfidenceFlags, error)
}

// llmExtractor implements Extractor on the Anthropic Messages API.
type llmExtractor struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewExtractor returns the production extraction capability.
func NewExtractor(client anthropic.Client, model string, maxTokens int64) Extractor {
	return &llmExtractor{client: client, model: model, maxTokens: maxTokens}
}

type extractPayload struct {
	Domains    model.DomainBlocks    `json:"domains"`
	Confidence model.ConfidenceFlags `json:"confidence_flags"`
}

func (e *llmExtractor) Extract(ctx context.Context, listing model.RawListing) (model.DomainBlocks, model.ConfidenceFlags, error) {
	temp := 0.0
	resp, err := e.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     e.model,
		MaxTokens: e.maxTokens,
		System:    anthropic.BuildCachedSystemBlocks(extractSystemPrompt, "1h"),
		Messages: []anthropic.Message{
			{Role: "user", Content: buildExtractPrompt(listing)},
		},
		Temperature: &temp,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return model.DomainBlocks{}, model.ConfidenceFlags{}, faults.NewCapabilityTimeout("extraction", err)
		}
		return model.DomainBlocks{}, model.ConfidenceFlags{}, faults.NewCapability("extraction", err)
	}
	resp.Usage.LogCost(e.model, "extraction")

	var payload extractPayload
	if err := json.Unmarshal([]byte(cleanJSON(resp.Text())), &payload); err != nil {
		return model.DomainBlocks{}, model.ConfidenceFlags{}, faults.NewCapability("extraction", fmt.Errorf("parse extraction output: %w", err))
	}
	if payload.Domains == (model.DomainBlocks{}) {
		return model.DomainBlocks{}, model.ConfidenceFlags{}, faults.NewCapability("extraction", fmt.Errorf("extraction produced no domain blocks"))
	}
	return payload.Domains, payload.Confidence, nil
}

// buildExtractPrompt carries the listing metadata ahead of the raw text.
// Seller-stated numbers ride along so the model can cross-check the prose
// against them.
func buildExtractPrompt(listing model.RawListing) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Listing: %s\n", listing.Title)
	fmt.Fprintf(&b, "Source: %s (id %s)\n", listing.Source, listing.ExternalID)
	if listing.URL != "" {
		fmt.Fprintf(&b, "URL: %s\n", listing.URL)
	}
	if listing.AskingPrice != nil {
		fmt.Fprintf(&b, "Stated asking price: %.2f\n", *listing.AskingPrice)
	}
	if listing.AnnualRevenue != nil {
		fmt.Fprintf(&b, "Stated annual revenue: %.2f\n", *listing.AnnualRevenue)
	}
	if listing.AnnualProfit != nil {
		fmt.Fprintf(&b, "Stated annual profit: %.2f\n", *listing.AnnualProfit)
	}
	b.WriteString("\nListing text:\n")
	b.WriteString(listing.RawText)
	return b.String()
}

// cleanJSON strips markdown fences and leading or trailing prose so the
// first JSON object in the text can be unmarshalled.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}
