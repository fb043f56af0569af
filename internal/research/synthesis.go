package research

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

// Synthesizer combines the successful agent outputs into one sector
// verdict. The orchestrator owns confidence and missing-domain stamping;
// implementations fill the SWOT, risks, opportunities, verdict, and
// justification.
type Synthesizer interface {
	Synthesize(ctx context.Context, sectorName string, results map[model.AgentType]*model.ResearchOutput) (*model.SynthesisResult, error)
}

// confidenceFor grades a synthesis by how many of the five research
// domains are absent from its inputs.
func confidenceFor(missing int) model.ConfidenceLevel {
	switch {
	case missing == 0:
		return model.ConfidenceHigh
	case missing <= 2:
		return model.ConfidenceMedium
	default:
		return model.ConfidenceLow
	}
}

const synthesisSystemPrompt = `You are the lead diligence analyst for a micro-acquisition fund. You receive sector research from up to five domain analysts and must synthesize it.
Answer with a single JSON object and nothing else, shaped exactly as:
{"swot": {"strengths": [string], "weaknesses": [string], "opportunities": [string], "threats": [string]}, "cross_domain_risks": [string], "time_sensitive_opportunities": [string], "sector_fit_verdict": "High"|"Medium"|"Low", "justification": string}
cross_domain_risks must only contain risks that emerge from combining two or more analysts' findings. sector_fit_verdict grades how attractive the sector is for sub-$1M acquisitions.`

const synthesisMaxTokens = 4096

type llmSynthesizer struct {
	client anthropic.Client
	model  string
}

// NewLLMSynthesizer returns a Synthesizer backed by the Anthropic API.
func NewLLMSynthesizer(client anthropic.Client, modelID string) Synthesizer {
	return &llmSynthesizer{client: client, model: modelID}
}

func (s *llmSynthesizer) Synthesize(ctx context.Context, sectorName string, results map[model.AgentType]*model.ResearchOutput) (*model.SynthesisResult, error) {
	temp := 0.3
	resp, err := s.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     s.model,
		MaxTokens: synthesisMaxTokens,
		System:    anthropic.BuildCachedSystemBlocks(synthesisSystemPrompt, "5m"),
		Messages: []anthropic.Message{
			{Role: "user", Content: buildSynthesisPrompt(sectorName, results)},
		},
		Temperature: &temp,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, faults.NewCapabilityTimeout("anthropic", err)
		}
		return nil, faults.NewCapability("anthropic", err)
	}
	resp.Usage.LogCost(s.model, "synthesis")

	var result model.SynthesisResult
	if err := json.Unmarshal([]byte(cleanJSON(resp.Text())), &result); err != nil {
		return nil, faults.NewCapability("anthropic", fmt.Errorf("parse synthesis output: %w", err))
	}
	verdict, ok := parseVerdict(string(result.Verdict))
	if !ok {
		return nil, faults.NewCapability("anthropic", fmt.Errorf("unknown sector fit verdict %q", result.Verdict))
	}
	result.Verdict = verdict
	if strings.TrimSpace(result.Justification) == "" {
		return nil, faults.NewCapability("anthropic", fmt.Errorf("synthesis output has no justification"))
	}
	return &result, nil
}

// buildSynthesisPrompt lays the agent outputs into one brief, in canonical
// agent order so identical inputs produce an identical prompt.
func buildSynthesisPrompt(sectorName string, results map[model.AgentType]*model.ResearchOutput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Sector: %s\n", sectorName)
	for _, agent := range model.ResearchAgents {
		output, ok := results[agent]
		if !ok {
			fmt.Fprintf(&b, "\n## %s\nNo analysis available for this domain.\n", agent)
			continue
		}
		fmt.Fprintf(&b, "\n## %s (confidence: %s)\n%s\n", agent, output.Confidence, output.Summary)
		writeList(&b, "Key findings", output.KeyFindings)
		writeList(&b, "Risks", output.Risks)
		writeList(&b, "Opportunities", output.Opportunities)
	}
	return b.String()
}

func writeList(b *strings.Builder, label string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "%s:\n", label)
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
}

func parseVerdict(s string) (model.Verdict, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return model.VerdictHigh, true
	case "medium":
		return model.VerdictMedium, true
	case "low":
		return model.VerdictLow, true
	}
	return "", false
}
