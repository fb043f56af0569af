package model

import "time"

// Severity classifies how badly a follow-up question's answer is needed.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// severityRank maps severities to numeric ranks for ordering.
// Lower rank means more severe.
var severityRank = map[Severity]int{
	SeverityCritical: 0,
	SeverityHigh:     1,
	SeverityMedium:   2,
	SeverityLow:      3,
}

// Rank returns the ordering rank for the severity. Unknown severities rank
// below low.
func (s Severity) Rank() int {
	if r, ok := severityRank[s]; ok {
		return r
	}
	return len(severityRank)
}

// Valid reports whether s is one of the four known severities.
func (s Severity) Valid() bool {
	_, ok := severityRank[s]
	return ok
}

// ResponseStatus tracks the seller-response state of a follow-up question.
type ResponseStatus string

const (
	ResponsePending    ResponseStatus = "pending"
	ResponseResponded  ResponseStatus = "responded"
	ResponseNoResponse ResponseStatus = "no_response"
	ResponseEscalated  ResponseStatus = "escalated"
)

// Terminal reports whether the status can no longer change.
func (s ResponseStatus) Terminal() bool {
	return s == ResponseResponded || s == ResponseNoResponse || s == ResponseEscalated
}

// CanTransition reports whether moving from s to next is a legal response
// transition. Only pending questions move, and only to a terminal status.
func (s ResponseStatus) CanTransition(next ResponseStatus) bool {
	return s == ResponsePending && next.Terminal()
}

// FollowUpQuestion is one seller question generated for an eligible target.
// Created only by the generator; only the response status and response text
// mutate afterwards, via the response-intake path.
type FollowUpQuestion struct {
	ID             string         `json:"id"`
	BusinessID     string         `json:"business_id"`
	RecordVersion  int            `json:"record_version"`
	Text           string         `json:"text"`
	TriggeredBy    string         `json:"triggered_by"`
	Severity       Severity       `json:"severity"`
	ResponseStatus ResponseStatus `json:"response_status"`
	Response       string         `json:"response,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	RespondedAt    *time.Time     `json:"responded_at,omitempty"`
}
