// Package pipeline sequences one listing evaluation: dedup check, extraction,
// canonical record write, component scoring, the follow-up gate, question
// generation, and deal-desk sync. Each phase is timed and recorded on the
// run result; a re-run of the same input resumes from whatever the store
// already holds.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/acquire-pipeline/internal/agentlog"
	"github.com/sells-group/acquire-pipeline/internal/canon"
	"github.com/sells-group/acquire-pipeline/internal/config"
	"github.com/sells-group/acquire-pipeline/internal/faults"
	"github.com/sells-group/acquire-pipeline/internal/followup"
	"github.com/sells-group/acquire-pipeline/internal/model"
	"github.com/sells-group/acquire-pipeline/internal/resilience"
	"github.com/sells-group/acquire-pipeline/internal/scorer"
	"github.com/sells-group/acquire-pipeline/internal/store"
)

// Pipeline evaluates marketplace listings end to end.
type Pipeline struct {
	cfg       *config.Config
	store     store.Store
	extractor Extractor
	evaluator Evaluator
	scorer    *scorer.Scorer
	generator *followup.Generator
	syncer    *Syncer
	audit     *agentlog.Recorder
	retry     resilience.RetryConfig
}

// New creates a Pipeline. syncer may be nil when no deal-desk sinks are
// configured; the sync phase is then skipped.
func New(
	cfg *config.Config,
	st store.Store,
	extractor Extractor,
	evaluator Evaluator,
	sc *scorer.Scorer,
	generator *followup.Generator,
	syncer *Syncer,
	audit *agentlog.Recorder,
) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		store:     st,
		extractor: extractor,
		evaluator: evaluator,
		scorer:    sc,
		generator: generator,
		syncer:    syncer,
		audit:     audit,
		retry:     resilience.FromConfig(cfg.Retry.MaxAttempts, cfg.Retry.InitialBackoffMS, cfg.Retry.MaxBackoffMS),
	}
}

// Run evaluates a single listing. The returned result always carries the
// phase trail, even when a phase error aborts the run.
func (p *Pipeline) Run(ctx context.Context, listing model.RawListing) (*model.EvaluationResult, error) {
	businessID := listing.BusinessID()
	log := zap.L().With(
		zap.String("business_id", businessID),
		zap.String("source", listing.Source),
	)
	log.Info("pipeline: starting evaluation")

	result := &model.EvaluationResult{
		RunID:      uuid.NewString(),
		BusinessID: businessID,
		StartedAt:  time.Now().UTC(),
	}

	fail := func(err error) (*model.EvaluationResult, error) {
		result.Error = err.Error()
		result.FinishedAt = time.Now().UTC()
		return result, err
	}

	// Phase tracking helper. Phases run sequentially, so no lock is needed.
	trackPhase := func(name string, fn func() error) error {
		start := time.Now()
		err := fn()
		duration := time.Since(start).Milliseconds()

		phase := model.PhaseResult{Name: name, Duration: duration}
		if err != nil {
			phase.Status = model.PhaseStatusFailed
			phase.Error = err.Error()
			log.Error("pipeline: phase failed",
				zap.String("phase", name),
				zap.Int64("duration_ms", duration),
				zap.Error(err),
			)
		} else {
			phase.Status = model.PhaseStatusComplete
			log.Info("pipeline: phase complete",
				zap.String("phase", name),
				zap.Int64("duration_ms", duration),
			)
		}
		result.Phases = append(result.Phases, phase)
		return err
	}
	skipPhase := func(name string) {
		result.Phases = append(result.Phases, model.PhaseResult{
			Name:   name,
			Status: model.PhaseStatusSkipped,
		})
		log.Info("pipeline: phase skipped", zap.String("phase", name))
	}

	// ===== Phase 1: Dedup check =====
	// The content hash covers the normalized input and the prompt version,
	// never the extraction output, so a duplicate submission is detectable
	// before spending an extraction call.
	var rec *model.CanonicalRecord
	var contentHash string

	if err := trackPhase("1_dedup", func() error {
		if !listing.Complete() {
			return faults.NewValidation("listing", "listing %s is missing source, external id, or raw text", businessID)
		}
		contentHash = canon.ListingHash(listing.RawText, p.cfg.Pipeline.PromptVersion)
		existing, err := p.store.CanonicalByHash(ctx, businessID, contentHash)
		if err != nil {
			return err
		}
		if existing != nil {
			rec = existing
			result.Deduped = true
			log.Info("pipeline: duplicate content, extraction skipped",
				zap.Int("version", existing.Version),
			)
		}
		return nil
	}); err != nil {
		return fail(err)
	}

	// ===== Phases 2-3: Extract and canonicalize =====
	if result.Deduped {
		skipPhase("2_extract")
		skipPhase("3_canonicalize")
	} else {
		var domains model.DomainBlocks
		var flags model.ConfidenceFlags

		if err := trackPhase("2_extract", func() error {
			entry := agentlog.Begin("extraction", "extraction")
			entry.BusinessID = businessID
			var extractErr error
			domains, flags, extractErr = p.runExtract(ctx, listing)
			p.audit.Finish(ctx, entry, agentlog.StatusFor(extractErr), extractErr)
			return extractErr
		}); err != nil {
			return fail(err)
		}

		if err := trackPhase("3_canonicalize", func() error {
			stored, created, err := p.store.AppendCanonical(ctx, &model.CanonicalRecord{
				BusinessID:    businessID,
				ContentHash:   contentHash,
				PromptVersion: p.cfg.Pipeline.PromptVersion,
				Domains:       domains,
				Confidence:    flags,
			})
			if err != nil {
				return err
			}
			rec = stored
			if !created {
				// A concurrent run landed the same content first.
				result.Deduped = true
			}
			return nil
		}); err != nil {
			return fail(err)
		}
	}
	result.Record = rec

	// ===== Phase 4: Score =====
	// A scoring row may already exist for this record version, either from
	// the run that wrote the version or from a crash between scoring and
	// sync. Reuse it rather than re-spending the evaluation call.
	var scoring *model.ScoringRecord

	if err := trackPhase("4_score", func() error {
		existing, err := p.store.ListScoring(ctx, businessID)
		if err != nil {
			return err
		}
		for i := range existing {
			if existing[i].RecordVersion == rec.Version {
				scoring = &existing[i]
				log.Info("pipeline: scoring reused",
					zap.Int("version", rec.Version),
					zap.String("tier", string(scoring.Tier)),
				)
				return nil
			}
		}

		entry := agentlog.Begin("evaluation", "evaluation")
		entry.BusinessID = businessID
		scores, evalErr := p.runEvaluate(ctx, rec)
		p.audit.Finish(ctx, entry, agentlog.StatusFor(evalErr), evalErr)
		if evalErr != nil {
			return evalErr
		}

		fresh, err := p.scorer.Score(scorer.Input{
			BusinessID:    businessID,
			RecordVersion: rec.Version,
			Scores:        scores,
			Confidence:    rec.Confidence,
		})
		if err != nil {
			return err
		}
		if err := p.store.InsertScoring(ctx, fresh); err != nil {
			return err
		}
		scoring = fresh
		return nil
	}); err != nil {
		return fail(err)
	}
	result.Scoring = scoring

	// ===== Phase 5: Gate =====
	_ = trackPhase("5_gate", func() error {
		result.Eligible = followup.Eligible(scoring)
		log.Info("pipeline: gate decision",
			zap.Bool("eligible", result.Eligible),
			zap.String("tier", string(scoring.Tier)),
			zap.Float64("total", scoring.Total),
		)
		return nil
	})

	// ===== Phase 6: Follow-up questions =====
	if !result.Eligible {
		skipPhase("6_questions")
	} else if err := trackPhase("6_questions", func() error {
		existing, err := p.store.ListQuestions(ctx, businessID)
		if err != nil {
			return err
		}
		var current []model.FollowUpQuestion
		for _, q := range existing {
			if q.RecordVersion == rec.Version {
				current = append(current, q)
			}
		}
		if len(current) > 0 {
			result.Questions = current
			log.Info("pipeline: follow-up questions reused", zap.Int("count", len(current)))
			return nil
		}

		questions := p.generator.Generate(rec, scoring)
		if len(questions) == 0 {
			return nil
		}
		if err := p.store.InsertQuestions(ctx, questions); err != nil {
			return err
		}
		result.Questions = questions
		log.Info("pipeline: follow-up questions generated", zap.Int("count", len(questions)))
		return nil
	}); err != nil {
		return fail(err)
	}

	// ===== Phase 7: Deal-desk sync =====
	if p.syncer == nil || !result.Eligible {
		skipPhase("7_sync")
	} else {
		// A degraded sync marks the phase failed but never the run; the
		// status on the result carries which sink missed.
		_ = trackPhase("7_sync", func() error {
			result.Sync = p.syncer.Push(ctx, listing, scoring, len(result.Questions))
			if result.Sync.LastError != "" {
				return eris.New(result.Sync.LastError)
			}
			return nil
		})
	}

	result.FinishedAt = time.Now().UTC()
	log.Info("pipeline: evaluation complete",
		zap.String("run_id", result.RunID),
		zap.Int("version", rec.Version),
		zap.String("tier", string(scoring.Tier)),
		zap.Float64("total", scoring.Total),
		zap.Bool("eligible", result.Eligible),
		zap.Bool("deduped", result.Deduped),
	)
	return result, nil
}

// runExtract runs the extraction capability under the retry budget. Each
// attempt gets its own deadline so one hung call cannot eat the budget.
func (p *Pipeline) runExtract(ctx context.Context, listing model.RawListing) (model.DomainBlocks, model.ConfidenceFlags, error) {
	cfg := p.retry
	cfg.ShouldRetry = retryCapability
	cfg.OnRetry = resilience.RetryLogger("extraction", "extract")

	type extraction struct {
		domains model.DomainBlocks
		flags   model.ConfidenceFlags
	}
	out, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (extraction, error) {
		attemptCtx, cancel := p.attemptContext(ctx, p.cfg.Pipeline.ExtractTimeoutSecs)
		defer cancel()
		domains, flags, err := p.extractor.Extract(attemptCtx, listing)
		return extraction{domains: domains, flags: flags}, err
	})
	return out.domains, out.flags, err
}

// runEvaluate runs the component evaluation capability under the retry budget.
func (p *Pipeline) runEvaluate(ctx context.Context, rec *model.CanonicalRecord) (model.ComponentScores, error) {
	cfg := p.retry
	cfg.ShouldRetry = retryCapability
	cfg.OnRetry = resilience.RetryLogger("evaluation", "evaluate")

	return resilience.DoVal(ctx, cfg, func(ctx context.Context) (model.ComponentScores, error) {
		attemptCtx, cancel := p.attemptContext(ctx, p.cfg.Pipeline.EvaluateTimeoutSecs)
		defer cancel()
		return p.evaluator.EvaluateComponents(attemptCtx, rec)
	})
}

// attemptContext bounds one capability attempt. A non-positive configured
// timeout leaves the caller's deadline in charge.
func (p *Pipeline) attemptContext(ctx context.Context, timeoutSecs int) (context.Context, context.CancelFunc) {
	if timeoutSecs <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, time.Duration(timeoutSecs)*time.Second)
}

// retryCapability retries capability faults, including per-attempt timeouts,
// alongside the default transient set. Validation faults never retry.
func retryCapability(err error) bool {
	if faults.IsValidation(err) {
		return false
	}
	return faults.IsCapability(err) || resilience.Retryable(err)
}
