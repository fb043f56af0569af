package research

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/acquire-pipeline/internal/agentlog"
	"github.com/sells-group/acquire-pipeline/internal/config"
	"github.com/sells-group/acquire-pipeline/internal/faults"
	"github.com/sells-group/acquire-pipeline/internal/model"
	"github.com/sells-group/acquire-pipeline/internal/store"
)

// stubResearcher answers from a canned table and records whether each call
// carried a deadline and which description it saw.
type stubResearcher struct {
	mu           sync.Mutex
	outputs      map[model.AgentType]*model.ResearchOutput
	failures     map[model.AgentType]error
	hadDeadline  map[model.AgentType]bool
	descriptions map[model.AgentType]string
}

func (s *stubResearcher) Research(ctx context.Context, agent model.AgentType, _, sectorDescription string) (*model.ResearchOutput, error) {
	s.mu.Lock()
	if s.hadDeadline == nil {
		s.hadDeadline = make(map[model.AgentType]bool)
	}
	if s.descriptions == nil {
		s.descriptions = make(map[model.AgentType]string)
	}
	_, s.hadDeadline[agent] = ctx.Deadline()
	s.descriptions[agent] = sectorDescription
	s.mu.Unlock()

	if err, ok := s.failures[agent]; ok {
		return nil, err
	}
	if out, ok := s.outputs[agent]; ok {
		return out, nil
	}
	return nil, eris.Errorf("no canned output for %s", agent)
}

type stubSynthesizer struct {
	result *model.SynthesisResult
	err    error
	calls  int
}

func (s *stubSynthesizer) Synthesize(_ context.Context, _ string, _ map[model.AgentType]*model.ResearchOutput) (*model.SynthesisResult, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := *s.result
	return &out, nil
}

func allAgentOutputs() map[model.AgentType]*model.ResearchOutput {
	outputs := make(map[model.AgentType]*model.ResearchOutput, len(model.ResearchAgents))
	for _, agent := range model.ResearchAgents {
		outputs[agent] = &model.ResearchOutput{
			Summary:     fmt.Sprintf("%s analysis of dental saas", agent),
			KeyFindings: []string{"fragmented supply"},
			Confidence:  model.ConfidenceHigh,
		}
	}
	return outputs
}

func cannedSynthesis() *model.SynthesisResult {
	return &model.SynthesisResult{
		SWOT: model.SWOT{
			Strengths:  []string{"recurring revenue"},
			Weaknesses: []string{"small TAM per niche"},
		},
		CrossDomainRisks: []string{"platform pricing squeeze compounds churn"},
		Verdict:          model.VerdictHigh,
		Justification:    "strong buyer demand and durable monetization",
	}
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "research.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func newOrchestrator(t *testing.T, st store.Store, r Researcher, s Synthesizer) *Orchestrator {
	t.Helper()
	return NewOrchestrator(st, r, s, agentlog.New(st), config.ResearchConfig{
		PromptVersion:    "rv1",
		AgentTimeoutSecs: 30,
	})
}

func TestRunAllAgentsSucceed(t *testing.T) {
	st := newTestStore(t)
	researcher := &stubResearcher{outputs: allAgentOutputs()}
	synth := &stubSynthesizer{result: cannedSynthesis()}
	orch := newOrchestrator(t, st, researcher, synth)

	outcome, err := orch.Run(context.Background(), "Dental SaaS", "practice management tools for dental clinics")
	require.NoError(t, err)

	assert.Equal(t, "dental_saas", outcome.SectorKey)
	assert.Len(t, outcome.Results, 5)
	assert.Empty(t, outcome.Failures)
	assert.Empty(t, outcome.MissingDomains)
	assert.Equal(t, "practice management tools for dental clinics", researcher.descriptions[model.AgentMarketStructure])

	require.NotNil(t, outcome.Synthesis)
	assert.Equal(t, model.ConfidenceHigh, outcome.Synthesis.Confidence)
	assert.Equal(t, model.VerdictHigh, outcome.Synthesis.Verdict)
	assert.Equal(t, "dental_saas", outcome.Synthesis.SectorKey)

	// Every agent plus the synthesis landed as version 1.
	for _, agent := range model.ResearchAgents {
		rec, err := st.LatestResearch(context.Background(), "dental_saas", agent)
		require.NoError(t, err)
		require.NotNil(t, rec, "missing record for %s", agent)
		assert.Equal(t, 1, rec.Version)
		assert.Equal(t, "rv1", rec.PromptVersion)
	}
	synthRec, err := st.LatestResearch(context.Background(), "dental_saas", model.AgentSynthesis)
	require.NoError(t, err)
	require.NotNil(t, synthRec)

	var stored model.SynthesisResult
	require.NoError(t, json.Unmarshal(synthRec.Output, &stored))
	assert.Equal(t, model.VerdictHigh, stored.Verdict)
	assert.Equal(t, model.ConfidenceHigh, stored.Confidence)
}

func TestRunToleratesPartialFailure(t *testing.T) {
	st := newTestStore(t)
	researcher := &stubResearcher{
		outputs: allAgentOutputs(),
		failures: map[model.AgentType]error{
			model.AgentPlatformRisk: faults.NewCapabilityTimeout("sonar", context.DeadlineExceeded),
			model.AgentCompetition:  eris.New("sonar returned garbage"),
		},
	}
	synth := &stubSynthesizer{result: cannedSynthesis()}
	orch := newOrchestrator(t, st, researcher, synth)

	outcome, err := orch.Run(context.Background(), "dental saas", "")
	require.NoError(t, err, "two failed agents must not fail the run")

	assert.Len(t, outcome.Results, 3)
	assert.Len(t, outcome.Failures, 2)
	assert.Contains(t, outcome.Failures, model.AgentPlatformRisk)
	assert.Contains(t, outcome.Failures, model.AgentCompetition)
	assert.Equal(t, []model.AgentType{model.AgentPlatformRisk, model.AgentCompetition}, outcome.MissingDomains)

	require.NotNil(t, outcome.Synthesis)
	assert.Equal(t, model.ConfidenceMedium, outcome.Synthesis.Confidence)
	assert.Equal(t, outcome.MissingDomains, outcome.Synthesis.MissingDomains)

	// Failed agents left no records.
	rec, err := st.LatestResearch(context.Background(), "dental_saas", model.AgentPlatformRisk)
	require.NoError(t, err)
	assert.Nil(t, rec)

	// Successes and the synthesis did.
	rec, err = st.LatestResearch(context.Background(), "dental_saas", model.AgentMonetization)
	require.NoError(t, err)
	assert.NotNil(t, rec)
	rec, err = st.LatestResearch(context.Background(), "dental_saas", model.AgentSynthesis)
	require.NoError(t, err)
	assert.NotNil(t, rec)
}

func TestRunThreeMissingDomainsDowngradesToLow(t *testing.T) {
	st := newTestStore(t)
	researcher := &stubResearcher{
		outputs: allAgentOutputs(),
		failures: map[model.AgentType]error{
			model.AgentPlatformRisk: eris.New("unavailable"),
			model.AgentCompetition:  eris.New("unavailable"),
			model.AgentBuyerExit:    eris.New("unavailable"),
		},
	}
	synth := &stubSynthesizer{result: cannedSynthesis()}
	orch := newOrchestrator(t, st, researcher, synth)

	outcome, err := orch.Run(context.Background(), "dental saas", "")
	require.NoError(t, err)
	assert.Equal(t, model.ConfidenceLow, outcome.Synthesis.Confidence)
}

func TestRunAllAgentsFail(t *testing.T) {
	st := newTestStore(t)
	failures := make(map[model.AgentType]error, len(model.ResearchAgents))
	for _, agent := range model.ResearchAgents {
		failures[agent] = eris.New("sonar down")
	}
	researcher := &stubResearcher{failures: failures}
	synth := &stubSynthesizer{result: cannedSynthesis()}
	orch := newOrchestrator(t, st, researcher, synth)

	outcome, err := orch.Run(context.Background(), "dental saas", "")
	require.Error(t, err)
	assert.True(t, eris.Is(err, faults.ErrNoResearchResults))
	assert.Zero(t, synth.calls, "nothing to synthesize")

	require.NotNil(t, outcome)
	assert.Len(t, outcome.Failures, 5)
	assert.Nil(t, outcome.Synthesis)

	rec, lookupErr := st.LatestResearch(context.Background(), "dental_saas", model.AgentSynthesis)
	require.NoError(t, lookupErr)
	assert.Nil(t, rec)
}

func TestRunSynthesisFailureSurfaces(t *testing.T) {
	st := newTestStore(t)
	researcher := &stubResearcher{outputs: allAgentOutputs()}
	synth := &stubSynthesizer{err: faults.NewCapability("anthropic", eris.New("over capacity"))}
	orch := newOrchestrator(t, st, researcher, synth)

	outcome, err := orch.Run(context.Background(), "dental saas", "")
	require.Error(t, err)
	assert.True(t, faults.IsCapability(err))

	// Agent outputs persisted even though the synthesis failed.
	require.NotNil(t, outcome)
	assert.Len(t, outcome.Results, 5)
	rec, lookupErr := st.LatestResearch(context.Background(), "dental_saas", model.AgentMarketStructure)
	require.NoError(t, lookupErr)
	assert.NotNil(t, rec)
}

func TestRunAppliesPerAgentDeadline(t *testing.T) {
	st := newTestStore(t)
	researcher := &stubResearcher{outputs: allAgentOutputs()}
	synth := &stubSynthesizer{result: cannedSynthesis()}
	orch := newOrchestrator(t, st, researcher, synth)

	_, err := orch.Run(context.Background(), "dental saas", "")
	require.NoError(t, err)

	for _, agent := range model.ResearchAgents {
		assert.True(t, researcher.hadDeadline[agent], "agent %s ran without a deadline", agent)
	}
}

func TestRunIsIdempotentPerContent(t *testing.T) {
	st := newTestStore(t)
	researcher := &stubResearcher{outputs: allAgentOutputs()}
	synth := &stubSynthesizer{result: cannedSynthesis()}
	orch := newOrchestrator(t, st, researcher, synth)

	_, err := orch.Run(context.Background(), "dental saas", "")
	require.NoError(t, err)
	_, err = orch.Run(context.Background(), "Dental SaaS", "")
	require.NoError(t, err)

	// Same sector, same outputs: the second run reuses version 1 everywhere.
	for _, agent := range model.ResearchAgents {
		rec, err := st.LatestResearch(context.Background(), "dental_saas", agent)
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, 1, rec.Version, "agent %s re-versioned identical output", agent)
	}
}

func TestRunWritesExecutionLogs(t *testing.T) {
	st := newTestStore(t)
	researcher := &stubResearcher{
		outputs: allAgentOutputs(),
		failures: map[model.AgentType]error{
			model.AgentBuyerExit: eris.New("sonar down"),
		},
	}
	synth := &stubSynthesizer{result: cannedSynthesis()}
	orch := newOrchestrator(t, st, researcher, synth)

	_, err := orch.Run(context.Background(), "dental saas", "")
	require.NoError(t, err)

	logs, err := st.ListExecutionLogs(context.Background(), store.ExecutionLogFilter{SectorKey: "dental_saas"})
	require.NoError(t, err)
	require.Len(t, logs, 6)

	byName := make(map[string]model.AgentExecutionLog, len(logs))
	for _, entry := range logs {
		byName[entry.AgentName] = entry
	}
	assert.Equal(t, model.ExecFailure, byName[string(model.AgentBuyerExit)].Status)
	assert.Equal(t, model.ExecSuccess, byName[string(model.AgentMarketStructure)].Status)
	assert.Equal(t, model.ExecPartial, byName[string(model.AgentSynthesis)].Status)
}

func TestRunRejectsUnusableSectorName(t *testing.T) {
	st := newTestStore(t)
	orch := newOrchestrator(t, st, &stubResearcher{}, &stubSynthesizer{result: cannedSynthesis()})

	_, err := orch.Run(context.Background(), "!!!", "")
	require.Error(t, err)
	assert.True(t, faults.IsValidation(err))
}

func TestConfidenceFor(t *testing.T) {
	assert.Equal(t, model.ConfidenceHigh, confidenceFor(0))
	assert.Equal(t, model.ConfidenceMedium, confidenceFor(1))
	assert.Equal(t, model.ConfidenceMedium, confidenceFor(2))
	assert.Equal(t, model.ConfidenceLow, confidenceFor(3))
	assert.Equal(t, model.ConfidenceLow, confidenceFor(4))
}
