package model

import "time"

// RawListing is a marketplace listing as ingested, before extraction.
// Pointer fields distinguish "not reported by the source" from zero.
type RawListing struct {
	Source        string         `json:"source"`
	ExternalID    string         `json:"external_id"`
	URL           string         `json:"url,omitempty"`
	Title         string         `json:"title"`
	RawText       string         `json:"raw_text"`
	RawHTML       string         `json:"raw_html,omitempty"`
	AskingPrice   *float64       `json:"asking_price,omitempty"`
	AnnualRevenue *float64       `json:"annual_revenue,omitempty"`
	AnnualProfit  *float64       `json:"annual_profit,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	FetchedAt     time.Time      `json:"fetched_at"`
}

// BusinessID derives the canonical business identifier for the listing.
// Canonical record versions are keyed by this value.
func (l RawListing) BusinessID() string {
	return l.Source + ":" + l.ExternalID
}

// Complete reports whether the listing carries the minimum fields required
// for evaluation.
func (l RawListing) Complete() bool {
	return l.Source != "" && l.ExternalID != "" && l.RawText != ""
}
