package main

import (
	"context"
	"os"

	"github.com/k-capehart/go-salesforce/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/acquire-pipeline/internal/agentlog"
	"github.com/sells-group/acquire-pipeline/internal/followup"
	"github.com/sells-group/acquire-pipeline/internal/pipeline"
	"github.com/sells-group/acquire-pipeline/internal/research"
	"github.com/sells-group/acquire-pipeline/internal/scorer"
	"github.com/sells-group/acquire-pipeline/internal/store"
	anthropicpkg "github.com/sells-group/acquire-pipeline/pkg/anthropic"
	"github.com/sells-group/acquire-pipeline/pkg/notion"
	"github.com/sells-group/acquire-pipeline/pkg/perplexity"
	sfpkg "github.com/sells-group/acquire-pipeline/pkg/salesforce"
)

// pipelineEnv holds the initialized store, clients, and engines shared by
// the run/batch/research/serve commands.
type pipelineEnv struct {
	Store        store.Store
	Audit        *agentlog.Recorder
	Pipeline     *pipeline.Pipeline
	Orchestrator *research.Orchestrator
}

// Close releases resources held by the environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initSalesforce() (sfpkg.Client, error) {
	pemData, err := os.ReadFile(cfg.Salesforce.KeyPath)
	if err != nil {
		return nil, eris.Wrap(err, "read salesforce JWT private key")
	}

	sf, err := salesforce.Init(salesforce.Creds{
		Domain:         cfg.Salesforce.LoginURL,
		Username:       cfg.Salesforce.Username,
		ConsumerKey:    cfg.Salesforce.ClientID,
		ConsumerRSAPem: string(pemData),
	})
	if err != nil {
		return nil, eris.Wrap(err, "init salesforce")
	}

	return sfpkg.NewClient(sf), nil
}

// initEnv validates config, opens the store, runs migrations, and builds
// the evaluation pipeline and research orchestrator. Callers should defer
// env.Close().
func initEnv(ctx context.Context) (*pipelineEnv, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	// Weight and penalty tables fail fast here, before any work is accepted.
	weights, penalties, err := scorer.FromConfig(cfg.Scoring)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	sc, err := scorer.New(weights, penalties)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	policy, err := followup.LoadPolicy(cfg.FollowUp.PolicyPath)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	generator, err := followup.NewGenerator(policy)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	anthropicClient := anthropicpkg.NewClient(cfg.Anthropic.Key)
	extractor := pipeline.NewExtractor(anthropicClient, cfg.Anthropic.ExtractModel, int64(cfg.Anthropic.MaxTokens))
	evaluator := pipeline.NewEvaluator(anthropicClient, cfg.Anthropic.EvaluateModel, int64(cfg.Anthropic.MaxTokens))

	// Deal-desk sync needs both sinks; with either unconfigured the sync
	// phase is skipped and results stay queryable through the store.
	var syncer *pipeline.Syncer
	if cfg.Notion.Token != "" && cfg.Notion.DealDB != "" && cfg.Salesforce.ClientID != "" {
		sfClient, sfErr := initSalesforce()
		if sfErr != nil {
			_ = st.Close()
			return nil, sfErr
		}
		dealDesk := notion.NewDealDesk(notion.NewClient(cfg.Notion.Token), cfg.Notion.DealDB)
		syncer = pipeline.NewSyncer(dealDesk, sfClient)
		zap.L().Info("deal-desk sync enabled")
	} else {
		zap.L().Warn("deal-desk sync disabled: notion or salesforce not configured")
	}

	audit := agentlog.New(st)

	perplexityClient := perplexity.NewClient(cfg.Perplexity.Key,
		perplexity.WithBaseURL(cfg.Perplexity.BaseURL),
		perplexity.WithModel(cfg.Perplexity.Model),
		perplexity.WithRateLimit(cfg.Perplexity.RequestsPerSec),
	)
	researcher := research.NewSonarResearcher(perplexityClient)
	synthesizer := research.NewLLMSynthesizer(anthropicClient, cfg.Anthropic.SynthesisModel)

	return &pipelineEnv{
		Store:        st,
		Audit:        audit,
		Pipeline:     pipeline.New(cfg, st, extractor, evaluator, sc, generator, syncer, audit),
		Orchestrator: research.NewOrchestrator(st, researcher, synthesizer, audit, cfg.Research),
	}, nil
}
