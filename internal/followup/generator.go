package followup

import (
	"sort"

	"github.com/sells-group/acquire-pipeline/internal/model"
)

// Finding categories, in the order findings are collected.
const (
	CategoryMissingData      = "missing_data"
	CategoryAssumption       = "assumption"
	CategoryContradiction    = "contradiction"
	CategoryRequiresFollowUp = "requires_follow_up"
	CategoryMissingDomain    = "missing_domain"
)

// Finding is one gap in a canonical record worth asking the seller about.
type Finding struct {
	Field    string
	Category string
}

// CollectFindings gathers every gap in a record: each confidence flag in
// flag order, then each absent domain. A field flagged more than once
// yields a single finding; the first category wins.
func CollectFindings(rec *model.CanonicalRecord) []Finding {
	var findings []Finding
	seen := make(map[string]bool)
	add := func(field, category string) {
		if field == "" || seen[field] {
			return
		}
		seen[field] = true
		findings = append(findings, Finding{Field: field, Category: category})
	}

	for _, field := range rec.Confidence.MissingData {
		add(field, CategoryMissingData)
	}
	for _, field := range rec.Confidence.Assumptions {
		add(field, CategoryAssumption)
	}
	for _, field := range rec.Confidence.Contradictions {
		add(field, CategoryContradiction)
	}
	for _, field := range rec.Confidence.RequiresFollowUp {
		add(field, CategoryRequiresFollowUp)
	}
	for _, domain := range rec.Domains.Missing() {
		add(domain, CategoryMissingDomain)
	}
	return findings
}

// Generator turns an eligible record's findings into seller questions.
type Generator struct {
	policy Policy
}

// NewGenerator validates the policy and returns a generator. An invalid
// policy is a configuration error.
func NewGenerator(policy Policy) (*Generator, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &Generator{policy: policy}, nil
}

// Generate produces follow-up questions for a record and its scoring
// result. Ineligible businesses get none. Each distinct finding field
// yields one question; the result is ordered most severe first, ties in
// finding order, and capped at the policy's maximum. The store assigns
// IDs and timestamps on insert.
func (g *Generator) Generate(rec *model.CanonicalRecord, scoring *model.ScoringRecord) []model.FollowUpQuestion {
	if rec == nil || !Eligible(scoring) {
		return nil
	}

	findings := CollectFindings(rec)
	questions := make([]model.FollowUpQuestion, 0, len(findings))
	for _, finding := range findings {
		severity, text := g.policy.Resolve(finding.Field)
		questions = append(questions, model.FollowUpQuestion{
			BusinessID:     rec.BusinessID,
			RecordVersion:  rec.Version,
			Text:           text,
			TriggeredBy:    finding.Field,
			Severity:       severity,
			ResponseStatus: model.ResponsePending,
		})
	}

	sort.SliceStable(questions, func(i, j int) bool {
		return questions[i].Severity.Rank() < questions[j].Severity.Rank()
	})
	if len(questions) > g.policy.MaxQuestions {
		questions = questions[:g.policy.MaxQuestions]
	}
	return questions
}
