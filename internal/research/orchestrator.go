package research

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/acquire-pipeline/internal/agentlog"
	"github.com/sells-group/acquire-pipeline/internal/canon"
	"github.com/sells-group/acquire-pipeline/internal/config"
	"github.com/sells-group/acquire-pipeline/internal/faults"
	"github.com/sells-group/acquire-pipeline/internal/model"
	"github.com/sells-group/acquire-pipeline/internal/store"
)

// Orchestrator runs the five research agents concurrently for a sector,
// persists each success, and synthesizes the survivors.
type Orchestrator struct {
	store      store.Store
	researcher Researcher
	synth      Synthesizer
	audit      *agentlog.Recorder
	cfg        config.ResearchConfig
}

// NewOrchestrator wires an orchestrator. audit may be nil to skip
// execution logging.
func NewOrchestrator(st store.Store, researcher Researcher, synth Synthesizer, audit *agentlog.Recorder, cfg config.ResearchConfig) *Orchestrator {
	return &Orchestrator{
		store:      st,
		researcher: researcher,
		synth:      synth,
		audit:      audit,
		cfg:        cfg,
	}
}

// Run researches a sector. The description is optional extra context fed
// to the agents. Each agent gets its own timeout and failure domain; the
// run fails only when validation rejects the sector, every agent fails, or
// the synthesis itself fails. The returned outcome always carries whatever
// per-agent results and failures accumulated.
func (o *Orchestrator) Run(ctx context.Context, sectorName, sectorDescription string) (*model.ResearchOutcome, error) {
	sectorKey := canon.SectorKey(sectorName)
	if sectorKey == "" {
		return nil, faults.NewValidation("sector", "sector name %q normalizes to an empty key", sectorName)
	}

	outcome := &model.ResearchOutcome{
		SectorKey: sectorKey,
		Results:   make(map[model.AgentType]*model.ResearchOutput),
		Failures:  make(map[model.AgentType]string),
		StartedAt: time.Now().UTC(),
	}

	timeout := time.Duration(o.cfg.AgentTimeoutSecs) * time.Second

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, agent := range model.ResearchAgents {
		g.Go(func() error {
			output, err := o.runAgent(gctx, agent, sectorName, sectorDescription, sectorKey, timeout)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				outcome.Failures[agent] = err.Error()
				zap.L().Warn("research: agent failed",
					zap.String("sector_key", sectorKey),
					zap.String("agent", string(agent)),
					zap.Error(err),
				)
				// Agent failures never cancel sibling agents.
				return nil
			}
			outcome.Results[agent] = output
			return nil
		})
	}
	_ = g.Wait()

	for _, agent := range model.ResearchAgents {
		if _, ok := outcome.Results[agent]; !ok {
			outcome.MissingDomains = append(outcome.MissingDomains, agent)
		}
	}

	if len(outcome.Results) == 0 {
		outcome.CompletedAt = time.Now().UTC()
		return outcome, eris.Wrap(faults.ErrNoResearchResults, sectorKey)
	}

	synthesis, err := o.runSynthesis(ctx, sectorName, sectorKey, outcome)
	outcome.CompletedAt = time.Now().UTC()
	if err != nil {
		return outcome, err
	}
	outcome.Synthesis = synthesis

	zap.L().Info("research: sector complete",
		zap.String("sector_key", sectorKey),
		zap.Int("agents_succeeded", len(outcome.Results)),
		zap.Int("agents_failed", len(outcome.Failures)),
		zap.String("verdict", string(synthesis.Verdict)),
		zap.String("confidence", string(synthesis.Confidence)),
	)
	return outcome, nil
}

func (o *Orchestrator) runAgent(ctx context.Context, agent model.AgentType, sectorName, sectorDescription, sectorKey string, timeout time.Duration) (*model.ResearchOutput, error) {
	agentCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		agentCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	entry := agentlog.Begin(string(agent), "research")
	entry.SectorKey = sectorKey

	output, err := o.researcher.Research(agentCtx, agent, sectorName, sectorDescription)
	o.audit.Finish(ctx, entry, agentlog.StatusFor(err), err)
	if err != nil {
		return nil, err
	}

	if err := o.persistOutput(ctx, sectorKey, agent, output); err != nil {
		return nil, err
	}
	return output, nil
}

func (o *Orchestrator) runSynthesis(ctx context.Context, sectorName, sectorKey string, outcome *model.ResearchOutcome) (*model.SynthesisResult, error) {
	entry := agentlog.Begin(string(model.AgentSynthesis), "synthesis")
	entry.SectorKey = sectorKey
	entry.Metadata = map[string]any{
		"domains_present": len(outcome.Results),
		"domains_missing": len(outcome.MissingDomains),
	}

	synthesis, err := o.synth.Synthesize(ctx, sectorName, outcome.Results)
	status := agentlog.StatusFor(err)
	if err == nil && len(outcome.MissingDomains) > 0 {
		status = model.ExecPartial
	}
	o.audit.Finish(ctx, entry, status, err)
	if err != nil {
		return nil, eris.Wrap(err, "research: synthesize "+sectorKey)
	}

	synthesis.SectorKey = sectorKey
	synthesis.MissingDomains = outcome.MissingDomains
	synthesis.Confidence = confidenceFor(len(outcome.MissingDomains))

	if err := o.persistOutput(ctx, sectorKey, model.AgentSynthesis, synthesis); err != nil {
		return nil, err
	}
	return synthesis, nil
}

// persistOutput appends one agent's output as a versioned research record.
func (o *Orchestrator) persistOutput(ctx context.Context, sectorKey string, agent model.AgentType, output any) error {
	hash, err := canon.ResearchHash(sectorKey, agent, o.cfg.PromptVersion, output)
	if err != nil {
		return eris.Wrap(err, "research: hash output")
	}
	data, err := json.Marshal(output)
	if err != nil {
		return eris.Wrap(err, "research: marshal output")
	}

	rec := &model.SectorResearchRecord{
		SectorKey:     sectorKey,
		AgentType:     agent,
		ContentHash:   hash,
		PromptVersion: o.cfg.PromptVersion,
		Output:        data,
	}
	stored, created, err := o.store.AppendResearch(ctx, rec)
	if err != nil {
		return eris.Wrap(err, "research: persist output")
	}
	if !created {
		zap.L().Info("research: output unchanged, reusing version",
			zap.String("sector_key", sectorKey),
			zap.String("agent", string(agent)),
			zap.Int("version", stored.Version),
		)
	}
	return nil
}
