// Package followup decides whether an evaluated business earns seller
// follow-up questions and generates them from the record's gaps.
package followup

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/acquire-pipeline/internal/faults"
	"github.com/sells-group/acquire-pipeline/internal/model"
)

// Rule maps findings to a severity and question by matching the triggering
// field path. Rules are checked in order; the first match wins.
type Rule struct {
	Match    string         `yaml:"match"`
	Severity model.Severity `yaml:"severity"`
	Question string         `yaml:"question"`
}

// Policy is the severity rule table and question templates. Question
// templates may reference the triggering field as {field}.
type Policy struct {
	MaxQuestions    int    `yaml:"max_questions"`
	DefaultQuestion string `yaml:"default_question"`
	Rules           []Rule `yaml:"rules"`
}

// DefaultPolicy returns the standard rule table: IP ownership and financials
// gaps are critical; churn, concentration, and platform dependency are high;
// owner hours and support burden are medium; everything else is low.
func DefaultPolicy() Policy {
	return Policy{
		MaxQuestions:    8,
		DefaultQuestion: "Can you provide more detail on {field}?",
		Rules: []Rule{
			{Match: "ip_ownership", Severity: model.SeverityCritical, Question: "Who legally owns the intellectual property, including code written by contractors, and can you provide the assignment agreements?"},
			{Match: "financials", Severity: model.SeverityCritical, Question: "Can you share verifiable financial records (P&L plus bank or payment-processor statements) covering at least the trailing twelve months?"},
			{Match: "churn", Severity: model.SeverityHigh, Question: "What is the monthly customer churn rate over the last twelve months, and how is it measured?"},
			{Match: "concentration", Severity: model.SeverityHigh, Question: "What share of revenue comes from your largest customer, and how is revenue spread across the top five?"},
			{Match: "platform", Severity: model.SeverityHigh, Question: "How dependent is the business on a single platform or channel, and what happens to revenue if its terms change?"},
			{Match: "owner_hours", Severity: model.SeverityMedium, Question: "How many hours per week does the owner spend operating the business, and on which tasks?"},
			{Match: "support_burden", Severity: model.SeverityMedium, Question: "What is the weekly customer support volume, and who handles it today?"},
		},
	}
}

// LoadPolicy reads a policy overrides file. Fields left unset fall back to
// the default policy; an empty path returns the defaults unchanged.
func LoadPolicy(path string) (Policy, error) {
	policy := DefaultPolicy()
	if path == "" {
		return policy, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, eris.Wrapf(err, "followup: read policy %s", path)
	}

	var wrapper struct {
		FollowUp Policy `yaml:"followup"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return Policy{}, eris.Wrapf(err, "followup: parse policy %s", path)
	}

	loaded := wrapper.FollowUp
	if loaded.MaxQuestions == 0 {
		loaded.MaxQuestions = policy.MaxQuestions
	}
	if loaded.DefaultQuestion == "" {
		loaded.DefaultQuestion = policy.DefaultQuestion
	}
	if len(loaded.Rules) == 0 {
		loaded.Rules = policy.Rules
	}

	if err := loaded.Validate(); err != nil {
		return Policy{}, err
	}
	return loaded, nil
}

// Validate checks the policy table. A malformed table is a configuration
// error and fails at startup, not per evaluation.
func (p Policy) Validate() error {
	if p.MaxQuestions < 1 {
		return faults.NewConfig("followup", "max_questions must be at least 1, got %d", p.MaxQuestions)
	}
	if p.DefaultQuestion == "" {
		return faults.NewConfig("followup", "default_question must not be empty")
	}
	if len(p.Rules) == 0 {
		return faults.NewConfig("followup", "rule table must not be empty")
	}
	for i, rule := range p.Rules {
		if rule.Match == "" {
			return faults.NewConfig("followup", "rule %d: match must not be empty", i)
		}
		if !rule.Severity.Valid() {
			return faults.NewConfig("followup", "rule %d: unknown severity %q", i, rule.Severity)
		}
		if rule.Question == "" {
			return faults.NewConfig("followup", "rule %d: question must not be empty", i)
		}
	}
	return nil
}

// Resolve maps a finding's field path to a severity and rendered question.
// Unmatched fields are low severity with the default question.
func (p Policy) Resolve(field string) (model.Severity, string) {
	for _, rule := range p.Rules {
		if strings.Contains(field, rule.Match) {
			return rule.Severity, renderQuestion(rule.Question, field)
		}
	}
	return model.SeverityLow, renderQuestion(p.DefaultQuestion, field)
}

func renderQuestion(template, field string) string {
	return strings.ReplaceAll(template, "{field}", field)
}
