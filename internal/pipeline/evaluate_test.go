package pipeline

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/acquire-pipeline/internal/faults"
	"github.com/sells-group/acquire-pipeline/internal/model"
)

func scoredRecord() *model.CanonicalRecord {
	asking := 150000.0
	return &model.CanonicalRecord{
		ID:         "rec-1",
		BusinessID: "flippa:12345",
		Version:    3,
		Domains: model.DomainBlocks{
			Financials: &model.Financials{AskingPrice: &asking, RevenueTrend: "growing"},
			Product:    &model.Product{Description: "invoicing saas", BusinessModel: "subscription"},
		},
		Confidence: model.ConfidenceFlags{
			MissingData: []string{"seller"},
		},
	}
}

func TestEvaluatorParsesScores(t *testing.T) {
	llm := &stubLLM{resp: llmTextResponse("```json\n" + `{
		"scores": {
			"price_efficiency": 82,
			"revenue_quality": 75,
			"moat": 60,
			"ai_leverage": 88,
			"operations": 70,
			"risk": 65,
			"trust": 90
		}
	}` + "\n```")}
	e := NewEvaluator(llm, "claude-sonnet-4-5-20250929", 1024)

	scores, err := e.EvaluateComponents(context.Background(), scoredRecord())
	require.NoError(t, err)
	assert.Equal(t, 82.0, scores.PriceEfficiency)
	assert.Equal(t, 75.0, scores.RevenueQuality)
	assert.Equal(t, 60.0, scores.Moat)
	assert.Equal(t, 88.0, scores.AILeverage)
	assert.Equal(t, 70.0, scores.Operations)
	assert.Equal(t, 65.0, scores.Risk)
	assert.Equal(t, 90.0, scores.Trust)
}

func TestEvaluatorPromptCarriesRecord(t *testing.T) {
	llm := &stubLLM{resp: llmTextResponse(`{"scores":{"price_efficiency":50,"revenue_quality":50,"moat":50,"ai_leverage":50,"operations":50,"risk":50,"trust":50}}`)}
	e := NewEvaluator(llm, "claude-sonnet-4-5-20250929", 1024)

	_, err := e.EvaluateComponents(context.Background(), scoredRecord())
	require.NoError(t, err)

	require.Len(t, llm.lastReq.Messages, 1)
	prompt := llm.lastReq.Messages[0].Content
	assert.Contains(t, prompt, "flippa:12345 (record version 3)")
	assert.Contains(t, prompt, "invoicing saas")
	assert.Contains(t, prompt, `"seller"`)

	require.NotNil(t, llm.lastReq.Temperature)
	assert.Zero(t, *llm.lastReq.Temperature)
	require.Len(t, llm.lastReq.System, 1)
	require.NotNil(t, llm.lastReq.System[0].CacheControl)
	assert.Equal(t, "1h", llm.lastReq.System[0].CacheControl.TTL)
}

// An incomplete score table comes from the model, not the caller, so it must
// surface as a retryable capability fault rather than a validation fault.
func TestEvaluatorIncompleteScoreTableIsCapabilityFault(t *testing.T) {
	llm := &stubLLM{resp: llmTextResponse(`{"scores":{"price_efficiency":82,"moat":60}}`)}
	e := NewEvaluator(llm, "claude-sonnet-4-5-20250929", 1024)

	_, err := e.EvaluateComponents(context.Background(), scoredRecord())
	require.Error(t, err)
	assert.True(t, faults.IsCapability(err))
	assert.False(t, faults.IsValidation(err))
}

func TestEvaluatorRejectsUnknownComponent(t *testing.T) {
	llm := &stubLLM{resp: llmTextResponse(`{"scores":{"price_efficiency":82,"revenue_quality":75,"moat":60,"ai_leverage":88,"operations":70,"risk":65,"vibes":90}}`)}
	e := NewEvaluator(llm, "claude-sonnet-4-5-20250929", 1024)

	_, err := e.EvaluateComponents(context.Background(), scoredRecord())
	require.Error(t, err)
	assert.True(t, faults.IsCapability(err))
	assert.Contains(t, err.Error(), "vibes")
}

func TestEvaluatorWrapsAPIFailure(t *testing.T) {
	llm := &stubLLM{err: eris.New("anthropic: create message: 500")}
	e := NewEvaluator(llm, "claude-sonnet-4-5-20250929", 1024)

	_, err := e.EvaluateComponents(context.Background(), scoredRecord())
	require.Error(t, err)
	assert.True(t, faults.IsCapability(err))
	assert.False(t, faults.IsCapabilityTimeout(err))
}

func TestEvaluatorClassifiesTimeout(t *testing.T) {
	llm := &stubLLM{err: eris.Wrap(context.DeadlineExceeded, "anthropic: create message")}
	e := NewEvaluator(llm, "claude-sonnet-4-5-20250929", 1024)

	_, err := e.EvaluateComponents(context.Background(), scoredRecord())
	require.Error(t, err)
	assert.True(t, faults.IsCapabilityTimeout(err))
}

func TestEvaluatorRejectsMalformedOutput(t *testing.T) {
	llm := &stubLLM{resp: llmTextResponse("scores look solid across the board")}
	e := NewEvaluator(llm, "claude-sonnet-4-5-20250929", 1024)

	_, err := e.EvaluateComponents(context.Background(), scoredRecord())
	require.Error(t, err)
	assert.True(t, faults.IsCapability(err))
}
