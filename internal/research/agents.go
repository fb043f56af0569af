// Package research fans a sector out to five analysis agents, persists
// each agent's output as a versioned research record, and synthesizes the
// successful outputs into a sector verdict. Agent failures are isolated:
// any subset of agents may fail without failing the run, as long as at
// least one succeeds.
package research

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sells-group/acquire-pipeline/internal/faults"
	"github.com/sells-group/acquire-pipeline/internal/model"
	"github.com/sells-group/acquire-pipeline/pkg/perplexity"
)

// Researcher runs one analysis agent against the web-research capability.
type Researcher interface {
	Research(ctx context.Context, agent model.AgentType, sectorName, sectorDescription string) (*model.ResearchOutput, error)
}

// agentFocus is the research brief injected into each agent's prompt.
var agentFocus = map[model.AgentType]string{
	model.AgentMarketStructure: "market size and growth rate, fragmentation versus consolidation, " +
		"typical acquisition multiples, and where micro-acquisitions fit in this sector",
	model.AgentPlatformRisk: "dependency on platforms, marketplaces, or API providers; recent terms-of-service, " +
		"algorithm, or pricing changes; and regulatory exposure specific to this sector",
	model.AgentMonetization: "dominant revenue models, pricing power, expansion and recurring revenue dynamics, " +
		"and how durable unit economics are for small operators",
	model.AgentCompetition: "competitive intensity, moats available to small businesses, incumbent and " +
		"new-entrant pressure, and substitution threats including AI-driven ones",
	model.AgentBuyerExit: "who buys businesses in this sector, exit multiples and holding periods, " +
		"and how liquid the resale market is for sub-$1M acquisitions",
}

const researchSystemPrompt = `You are a diligence analyst researching business sectors for a micro-acquisition fund.
Answer with a single JSON object and nothing else, shaped exactly as:
{"summary": string, "key_findings": [string], "risks": [string], "opportunities": [string], "confidence": "high"|"medium"|"low"}
Ground every claim in current web sources. Set confidence by how well-sourced your answer is.`

const researchMaxTokens = 2048

type sonarResearcher struct {
	client perplexity.Client
}

// NewSonarResearcher returns a Researcher backed by the Perplexity Sonar
// API.
func NewSonarResearcher(client perplexity.Client) Researcher {
	return &sonarResearcher{client: client}
}

func (r *sonarResearcher) Research(ctx context.Context, agent model.AgentType, sectorName, sectorDescription string) (*model.ResearchOutput, error) {
	focus, ok := agentFocus[agent]
	if !ok {
		return nil, faults.NewValidation("agent_type", "no research brief for agent %q", agent)
	}

	temp := 0.2
	maxTokens := researchMaxTokens
	resp, err := r.client.ChatCompletion(ctx, perplexity.ChatCompletionRequest{
		Messages: []perplexity.Message{
			{Role: "system", Content: researchSystemPrompt},
			{Role: "user", Content: buildAgentPrompt(sectorName, sectorDescription, focus)},
		},
		Temperature:         &temp,
		MaxTokens:           &maxTokens,
		SearchRecencyFilter: "year",
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, faults.NewCapabilityTimeout("sonar", err)
		}
		return nil, faults.NewCapability("sonar", err)
	}

	output, err := parseResearchOutput(resp.Content())
	if err != nil {
		return nil, faults.NewCapability("sonar", err)
	}
	output.Sources = resp.Citations
	return output, nil
}

func buildAgentPrompt(sectorName, sectorDescription, focus string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Sector: %s\n", sectorName)
	if sectorDescription != "" {
		fmt.Fprintf(&b, "Sector description: %s\n", sectorDescription)
	}
	fmt.Fprintf(&b, "\nResearch focus: %s.\n\n", focus)
	b.WriteString("Keep key_findings, risks, and opportunities to the five most load-bearing items each.")
	return b.String()
}

func parseResearchOutput(text string) (*model.ResearchOutput, error) {
	var output model.ResearchOutput
	if err := json.Unmarshal([]byte(cleanJSON(text)), &output); err != nil {
		return nil, fmt.Errorf("parse agent output: %w", err)
	}
	if strings.TrimSpace(output.Summary) == "" {
		return nil, fmt.Errorf("agent output has no summary")
	}
	switch output.Confidence {
	case model.ConfidenceHigh, model.ConfidenceMedium, model.ConfidenceLow:
	default:
		output.Confidence = model.ConfidenceMedium
	}
	return &output, nil
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
