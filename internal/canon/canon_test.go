package canon

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/acquire-pipeline/internal/model"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	t.Run("collapses whitespace and lowercases", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, "saas tool for dentists", Normalize("  SaaS   tool\n\tfor Dentists  "))
	})

	t.Run("folds unicode compatibility forms", func(t *testing.T) {
		t.Parallel()
		// Fullwidth letters fold to ASCII under NFKC.
		assert.Equal(t, Normalize("ＳａａＳ"), Normalize("SaaS"))
	})

	t.Run("empty input", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, "", Normalize("   "))
	})
}

func TestListingHash(t *testing.T) {
	t.Parallel()

	t.Run("stable across formatting differences", func(t *testing.T) {
		t.Parallel()
		a := ListingHash("Profitable   SaaS, 5 years old", "v2")
		b := ListingHash("profitable saas, 5 years old", "v2")
		assert.Equal(t, a, b)
	})

	t.Run("prompt version changes the hash", func(t *testing.T) {
		t.Parallel()
		a := ListingHash("profitable saas", "v2")
		b := ListingHash("profitable saas", "v3")
		assert.NotEqual(t, a, b)
	})

	t.Run("hex sha256 shape", func(t *testing.T) {
		t.Parallel()
		assert.Len(t, ListingHash("x", "v1"), 64)
	})
}

func TestSectorKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"spaces to underscores", "Dental SaaS", "dental_saas"},
		{"punctuation collapses", "B2B -- Invoicing / Billing", "b2b_invoicing_billing"},
		{"equivalent spellings converge", "dental-saas", "dental_saas"},
		{"outer separators trimmed", "  (Home Services)  ", "home_services"},
		{"fullwidth folds to ascii", "ＳａａＳ", "saas"},
		{"empty", "!!!", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, SectorKey(tt.in))
		})
	}

	t.Run("long names truncate at 100", func(t *testing.T) {
		t.Parallel()
		key := SectorKey(strings.Repeat("vertical software ", 20))
		assert.LessOrEqual(t, len(key), 100)
		assert.False(t, strings.HasSuffix(key, "_"))
	})
}

func TestResearchHash(t *testing.T) {
	t.Parallel()

	out := &model.ResearchOutput{Summary: "fragmented market", Confidence: model.ConfidenceHigh}

	t.Run("deterministic", func(t *testing.T) {
		t.Parallel()
		a, err := ResearchHash("dental_saas", model.AgentMarketStructure, "v1", out)
		assert.NoError(t, err)
		b, err := ResearchHash("dental_saas", model.AgentMarketStructure, "v1", out)
		assert.NoError(t, err)
		assert.Equal(t, a, b)
	})

	t.Run("agent type is part of the identity", func(t *testing.T) {
		t.Parallel()
		a, err := ResearchHash("dental_saas", model.AgentMarketStructure, "v1", out)
		assert.NoError(t, err)
		b, err := ResearchHash("dental_saas", model.AgentCompetition, "v1", out)
		assert.NoError(t, err)
		assert.NotEqual(t, a, b)
	})

	t.Run("output changes the hash", func(t *testing.T) {
		t.Parallel()
		a, err := ResearchHash("dental_saas", model.AgentMarketStructure, "v1", out)
		assert.NoError(t, err)
		b, err := ResearchHash("dental_saas", model.AgentMarketStructure, "v1",
			&model.ResearchOutput{Summary: "consolidated market", Confidence: model.ConfidenceHigh})
		assert.NoError(t, err)
		assert.NotEqual(t, a, b)
	})
}
