package similarity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScore_Identical(t *testing.T) {
	assert.InDelta(t, 1.0, Score("OZTURK GIDA", "OZTURK GIDA"), 1e-9)
}

func TestScore_EmptyOrShortTokens(t *testing.T) {
	assert.Zero(t, Score("", "ABC"))
	assert.Zero(t, Score("AB CD", "AB CD"))
}

func TestScore_TruncatedAbbreviation(t *testing.T) {
	// Ledger exports shorten long partner names.
	score := Score("OZTUR GIDA", "OZTURK GIDA PAZARLAMA")
	assert.GreaterOrEqual(t, score, DefaultThresholds().NameStrict)
}

func TestTokenPrefix(t *testing.T) {
	assert.InDelta(t, 1.0, TokenPrefix("OZT GID", "OZTURK GIDA"), 1e-9)
	assert.InDelta(t, 0.5, TokenPrefix("BOLD SPEAKER", "BOLDLY WIRED"), 1e-9)
}

func TestTokenContainment(t *testing.T) {
	assert.InDelta(t, 0.5, TokenContainment("ACME YAPI", "ACME INSAAT"), 1e-9)
	assert.InDelta(t, 1.0, TokenContainment("ACME", "ACME INSAAT"), 1e-9)
	assert.Zero(t, TokenContainment("", "ACME"))
}

func TestEditRatio(t *testing.T) {
	assert.InDelta(t, 0.75, EditRatio("ABCD", "ABXD"), 1e-9)
	assert.Zero(t, EditRatio("", ""))
}

func TestScore_Bounds(t *testing.T) {
	pairs := [][2]string{
		{"KIRMIZI SPEAKER", "MAVI SPEAKER"},
		{"ABC", "XYZ"},
		{"SAMSUNG GALAXY", "APPLE IPHONE"},
	}
	for _, p := range pairs {
		s := Score(p[0], p[1])
		assert.GreaterOrEqual(t, s, 0.0)
		assert.LessOrEqual(t, s, 1.0)
	}
	assert.Zero(t, Score("ABC", "XYZ"))
}

func TestThresholds_Validate(t *testing.T) {
	assert.NoError(t, DefaultThresholds().Validate())
	assert.ErrorIs(t, Thresholds{NameStrict: 0.7, NameSecondary: 0.8, Description: 0.5}.Validate(), ErrInvalidThresholds)
	assert.ErrorIs(t, Thresholds{NameStrict: 1.2, NameSecondary: 0.8, Description: 0.5}.Validate(), ErrInvalidThresholds)
}
