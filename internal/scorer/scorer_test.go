package scorer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/acquire-pipeline/internal/config"
	"github.com/sells-group/acquire-pipeline/internal/faults"
	"github.com/sells-group/acquire-pipeline/internal/model"
)

func newTestScorer(t *testing.T) *Scorer {
	t.Helper()
	s, err := New(DefaultWeights(), DefaultTrustPenalties())
	require.NoError(t, err)
	return s
}

func strongScores() model.ComponentScores {
	return model.ComponentScores{
		PriceEfficiency: 90,
		RevenueQuality:  85,
		Moat:            80,
		AILeverage:      88,
		Operations:      82,
		Risk:            75,
		Trust:           95,
	}
}

func TestTierBoundaries(t *testing.T) {
	tests := []struct {
		total float64
		want  model.Tier
	}{
		{100, model.TierA},
		{85.00, model.TierA},
		{84.99, model.TierB},
		{70.00, model.TierB},
		{69.99, model.TierC},
		{55.00, model.TierC},
		{54.99, model.TierD},
		{0, model.TierD},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, TierFor(tt.total), "total %.2f", tt.total)
	}
}

func TestScoreWeightedTotal(t *testing.T) {
	s := newTestScorer(t)

	rec, err := s.Score(Input{
		BusinessID:    "biz-1",
		RecordVersion: 1,
		Scores:        strongScores(),
	})
	require.NoError(t, err)

	assert.InDelta(t, 85.15, rec.Total, 1e-9)
	assert.Equal(t, model.TierA, rec.Tier)
	assert.Equal(t, 95.0, rec.RawTrust)
	assert.Equal(t, 0.0, rec.TrustPenalty)
	assert.Equal(t, 95.0, rec.Scores.Trust)
	assert.Equal(t, []string{"price_efficiency", "moat", "ai_leverage"}, rec.TopBuyReasons)
	assert.Equal(t, []string{"risk", "moat", "operations"}, rec.TopRisks)
}

func TestTrustPenaltyCategories(t *testing.T) {
	tests := []struct {
		name  string
		flags model.ConfidenceFlags
		want  float64
	}{
		{"no flags", model.ConfidenceFlags{}, 0},
		{"missing financial field", model.ConfidenceFlags{MissingData: []string{"financials.annual_revenue"}}, 25},
		{"missing financials domain", model.ConfidenceFlags{MissingData: []string{"financials"}}, 25},
		{"missing non-financial field", model.ConfidenceFlags{MissingData: []string{"customers.churn_rate"}}, 0},
		{"assumptions", model.ConfidenceFlags{Assumptions: []string{"growth projected from 3 months of data"}}, 10},
		{"contradictions", model.ConfidenceFlags{Contradictions: []string{"revenue stated as both 400k and 480k"}}, 10},
		{"requires follow-up", model.ConfidenceFlags{RequiresFollowUp: []string{"verify IP assignment"}}, 15},
		{
			"all categories",
			model.ConfidenceFlags{
				MissingData:      []string{"financials.annual_profit"},
				Assumptions:      []string{"margin assumed from sector norm"},
				Contradictions:   []string{"customer count inconsistent"},
				RequiresFollowUp: []string{"confirm contractor agreements"},
			},
			60,
		},
	}

	s := newTestScorer(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := s.Score(Input{BusinessID: "biz-1", Scores: strongScores(), Confidence: tt.flags})
			require.NoError(t, err)
			assert.Equal(t, tt.want, rec.TrustPenalty)
			assert.Equal(t, 95.0, rec.RawTrust)
			assert.InDelta(t, maxFloat(0, 95-tt.want), rec.Scores.Trust, 1e-9)
		})
	}
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func TestTrustFloorsAtZero(t *testing.T) {
	s := newTestScorer(t)

	scores := strongScores()
	scores.Trust = 20
	rec, err := s.Score(Input{
		BusinessID: "biz-1",
		Scores:     scores,
		Confidence: model.ConfidenceFlags{
			MissingData:      []string{"financials.annual_revenue"},
			Assumptions:      []string{"assumed churn"},
			Contradictions:   []string{"conflicting asking price"},
			RequiresFollowUp: []string{"verify licenses"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 60.0, rec.TrustPenalty)
	assert.Equal(t, 0.0, rec.Scores.Trust, "penalties floor trust at zero, never negative")
	assert.InDelta(t, 75.65, rec.Total, 1e-9)
	assert.Equal(t, model.TierB, rec.Tier)
}

func TestScoreRejectsOutOfRangeComponents(t *testing.T) {
	s := newTestScorer(t)

	scores := strongScores()
	scores.Moat = -1
	_, err := s.Score(Input{BusinessID: "biz-1", Scores: scores})
	require.Error(t, err)
	assert.True(t, faults.IsValidation(err))

	scores = strongScores()
	scores.Trust = 100.01
	_, err = s.Score(Input{BusinessID: "biz-1", Scores: scores})
	require.Error(t, err)
	assert.True(t, faults.IsValidation(err))
}

func TestScoreDeterministic(t *testing.T) {
	s := newTestScorer(t)
	in := Input{
		BusinessID:    "biz-1",
		RecordVersion: 3,
		Scores:        strongScores(),
		Confidence:    model.ConfidenceFlags{Assumptions: []string{"projected from partial year"}},
	}

	first, err := s.Score(in)
	require.NoError(t, err)
	second, err := s.Score(in)
	require.NoError(t, err)
	assert.Equal(t, *first, *second)
}

func TestTopRankingsStableOnTies(t *testing.T) {
	s := newTestScorer(t)

	rec, err := s.Score(Input{
		BusinessID: "biz-1",
		Scores: model.ComponentScores{
			PriceEfficiency: 80, RevenueQuality: 80, Moat: 80,
			AILeverage: 80, Operations: 80, Risk: 80, Trust: 80,
		},
	})
	require.NoError(t, err)

	// Equal raw scores: weighted ties resolve by the canonical order.
	assert.Equal(t, []string{"price_efficiency", "moat", "revenue_quality"}, rec.TopBuyReasons)
	assert.Equal(t, []string{"price_efficiency", "revenue_quality", "moat"}, rec.TopRisks)
}

func TestScoresFromMap(t *testing.T) {
	scores, err := ScoresFromMap(map[string]float64{
		"price_efficiency": 90, "revenue_quality": 85, "moat": 80,
		"ai_leverage": 88, "operations": 82, "risk": 75, "trust": 95,
	})
	require.NoError(t, err)
	assert.Equal(t, strongScores(), scores)

	_, err = ScoresFromMap(map[string]float64{"price_efficiency": 90})
	require.Error(t, err)
	assert.True(t, faults.IsValidation(err))

	_, err = ScoresFromMap(map[string]float64{
		"price_efficiency": 90, "revenue_quality": 85, "moat": 80,
		"ai_leverage": 88, "operations": 82, "risk": 75, "charisma": 95,
	})
	require.Error(t, err)
	assert.True(t, faults.IsValidation(err))
}

func TestWeightTableValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(Weights)
	}{
		{"sum below one", func(w Weights) { w[model.ComponentTrust] = 0.05 }},
		{"sum above one", func(w Weights) { w[model.ComponentMoat] = 0.30 }},
		{"negative weight", func(w Weights) {
			w[model.ComponentRisk] = -0.10
			w[model.ComponentMoat] = 0.40
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			weights := DefaultWeights()
			tt.mutate(weights)
			_, err := New(weights, DefaultTrustPenalties())
			require.Error(t, err)
			assert.True(t, faults.IsConfig(err))
		})
	}

	t.Run("missing component", func(t *testing.T) {
		weights := DefaultWeights()
		delete(weights, model.ComponentOperations)
		_, err := New(weights, DefaultTrustPenalties())
		require.Error(t, err)
		assert.True(t, faults.IsConfig(err))
	})

	t.Run("negative penalty", func(t *testing.T) {
		penalties := DefaultTrustPenalties()
		penalties.Contradictions = -5
		_, err := New(DefaultWeights(), penalties)
		require.Error(t, err)
		assert.True(t, faults.IsConfig(err))
	})
}

func TestFromConfig(t *testing.T) {
	weights, penalties, err := FromConfig(config.ScoringConfig{
		Weights: map[string]float64{
			"price_efficiency": 0.20, "revenue_quality": 0.15, "moat": 0.20,
			"ai_leverage": 0.15, "operations": 0.10, "risk": 0.10, "trust": 0.10,
		},
		TrustPenalties: map[string]float64{
			"missing_financials": 25, "assumptions": 10,
			"contradictions": 10, "requires_followup": 15,
		},
	})
	require.NoError(t, err)
	assert.Equal(t, DefaultWeights(), weights)
	assert.Equal(t, DefaultTrustPenalties(), penalties)

	_, _, err = FromConfig(config.ScoringConfig{
		Weights: map[string]float64{"vibes": 1.0},
	})
	require.Error(t, err)
	assert.True(t, faults.IsConfig(err))

	_, _, err = FromConfig(config.ScoringConfig{
		Weights: map[string]float64{
			"price_efficiency": 0.20, "revenue_quality": 0.15, "moat": 0.20,
			"ai_leverage": 0.15, "operations": 0.10, "risk": 0.10, "trust": 0.10,
		},
		TrustPenalties: map[string]float64{"bribes": 40},
	})
	require.Error(t, err)
	assert.True(t, faults.IsConfig(err))
}
