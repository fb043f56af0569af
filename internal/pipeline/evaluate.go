package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/acquire-pipeline/internal/faults"
	"github.com/sells-group/acquire-pipeline/internal/model"
	"github.com/sells-group/acquire-pipeline/internal/scorer"
	"github.com/sells-group/acquire-pipeline/pkg/anthropic"
)

const evaluateSystemPrompt = `You score acquisition targets for a small buy-side fund.

Given the structured record of a business for sale, score each component from 0 to 100:

- price_efficiency: asking price against revenue, profit, and growth. Cheap for what it earns scores high.
- revenue_quality: recurring versus one-off revenue, verification, record depth, churn.
- moat: differentiation, switching costs, IP ownership, competition level.
- ai_leverage: how much of the operation modern automation could absorb.
- operations: owner independence, documented processes, support load.
- risk: inverse of execution and platform risk. Few, manageable risks score high.
- trust: internal consistency and verifiability of the record itself.

Respond with a single JSON object:
{"scores": {"price_efficiency": number, "revenue_quality": number, "moat": number, "ai_leverage": number, "operations": number, "risk": number, "trust": number}}

Score strictly from the record. Missing evidence lowers the relevant score; it never raises one. Respond with JSON only.`

// Evaluator produces the seven component scores for a canonical record.
type Evaluator interface {
	EvaluateComponents(ctx context.Context, rec *model.CanonicalRecord) (model.ComponentScores, error)
}

type llmEvaluator struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewEvaluator returns the production evaluation capability.
func NewEvaluator(client anthropic.Client, model string, maxTokens int64) Evaluator {
	return &llmEvaluator{client: client, model: model, maxTokens: maxTokens}
}

type evaluatePayload struct {
	Scores map[string]float64 `json:"scores"`
}

func (e *llmEvaluator) EvaluateComponents(ctx context.Context, rec *model.CanonicalRecord) (model.ComponentScores, error) {
	temp := 0.0
	resp, err := e.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     e.model,
		MaxTokens: e.maxTokens,
		System:    anthropic.BuildCachedSystemBlocks(evaluateSystemPrompt, "1h"),
		Messages: []anthropic.Message{
			{Role: "user", Content: buildEvaluatePrompt(rec)},
		},
		Temperature: &temp,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return model.ComponentScores{}, faults.NewCapabilityTimeout("evaluation", err)
		}
		return model.ComponentScores{}, faults.NewCapability("evaluation", err)
	}
	resp.Usage.LogCost(e.model, "evaluation")

	var payload evaluatePayload
	if err := json.Unmarshal([]byte(cleanJSON(resp.Text())), &payload); err != nil {
		return model.ComponentScores{}, faults.NewCapability("evaluation", fmt.Errorf("parse evaluation output: %w", err))
	}

	scores, err := scorer.ScoresFromMap(payload.Scores)
	if err != nil {
		// A bad score table is the model misbehaving, not caller input; flatten
		// the validation type so the fault stays retryable.
		return model.ComponentScores{}, faults.NewCapability("evaluation", eris.New(err.Error()))
	}
	return scores, nil
}

// buildEvaluatePrompt serializes the record's domains and confidence flags.
func buildEvaluatePrompt(rec *model.CanonicalRecord) string {
	domains, _ := json.MarshalIndent(rec.Domains, "", "  ")
	flags, _ := json.MarshalIndent(rec.Confidence, "", "  ")

	var b strings.Builder
	fmt.Fprintf(&b, "Business: %s (record version %d)\n\n", rec.BusinessID, rec.Version)
	b.WriteString("Structured record:\n")
	b.Write(domains)
	b.WriteString("\n\nExtraction confidence flags:\n")
	b.Write(flags)
	return b.String()
}
