package app

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"logitdash/domain/model"
)

func TestFormatPValue(t *testing.T) {
	tests := []struct {
		p    float64
		want string
	}{
		{0, "< 0.001"},
		{1e-12, "< 0.001"},
		{0.000999, "< 0.001"},
		{0.001, "0.001"},
		{0.0126, "0.013"},
		{0.5, "0.500"},
		{1, "1.000"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatPValue(tt.p), "p=%v", tt.p)
	}
}

func TestFormatCount(t *testing.T) {
	assert.Equal(t, "20,000", FormatCount(20000))
	assert.Equal(t, "1,234,567", FormatCount(1234567))
	assert.Equal(t, "999", FormatCount(999))
	assert.Equal(t, "0", FormatCount(0))
}

func TestOddsRatioTable(t *testing.T) {
	view := OddsRatioTable([]model.OddsRatio{
		{Term: "coupon", OR: 2.5, Lower: 1.8, Upper: 3.4721, PValue: 0.00001, Stars: "***"},
		{Term: "training[T.yes]", OR: 0.9, Lower: 0.7, Upper: 1.15, PValue: 0.42},
	})

	assert.Equal(t, OddsRatioHeader, view.Header)
	require.Len(t, view.Rows, 2)
	assert.Equal(t, []string{"coupon", "2.500", "150.0%", "1.800", "3.472", "< 0.001", "***"}, view.Rows[0])
	assert.Equal(t, []string{"training[T.yes]", "0.900", "-10.0%", "0.700", "1.150", "0.420", ""}, view.Rows[1])
}

func TestFitSummary(t *testing.T) {
	m := model.FitMetrics{
		PseudoR2McF:    0.1234,
		PseudoR2McFAdj: 0.1201,
		AUC:            0.7049,
		LogLikelihood:  -1234.5678,
		AIC:            2477.1356,
		BIC:            2500.9,
		ChiSq:          345.678,
		ChiSqDF:        3,
		ChiSqPValue:    1e-20,
		NObs:           20000,
	}

	view := FitSummaryTable(m)
	assert.Equal(t, FitSummaryHeader, view.Header)
	assert.Equal(t, []string{"0.123", "0.120", "0.705", "-1234.568", "2477.136", "2500.900", "345.678", "3", "< 0.001", "20,000"}, view.Rows[0])

	lines := strings.Split(view.Text, "\n")
	assert.Equal(t, []string{
		"Pseudo R-squared (McFadden): 0.123",
		"Pseudo R-squared (McFadden adjusted): 0.120",
		"Area under the RO Curve (AUC): 0.705",
		"Log-likelihood: -1234.568, AIC: 2477.136, BIC: 2500.900",
		"Chi-squared: 345.678 df(3), p.value < 0.001",
		"Nr obs: 20,000",
	}, lines)

	m.ChiSqPValue = 0.04567
	assert.Contains(t, FitSummaryText(m), "p.value 0.046")
}
