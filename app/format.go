package app

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"logitdash/domain/model"
)

var printer = message.NewPrinter(language.English)

// FormatPValue renders p-values below 0.001 as "< 0.001", else 3 decimals
func FormatPValue(p float64) string {
	if p < 0.001 {
		return "< 0.001"
	}
	return strconv.FormatFloat(p, 'f', 3, 64)
}

// FormatCount renders an integer with thousands separators: 20000 -> "20,000"
func FormatCount(n int) string {
	return printer.Sprintf("%d", n)
}

// FormatFloat rounds to 3 decimals
func FormatFloat(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strconv.FormatFloat(v, 'f', 3, 64)
}

// TableView is a rendered table plus an optional plain-text form
type TableView struct {
	Header []string
	Rows   [][]string
	Text   string
}

// OddsRatioHeader are the odds-ratio table columns
var OddsRatioHeader = []string{"index", "OR", "OR%", "2.5%", "97.5%", "p.values", ""}

// OddsRatioTable formats one row per explanatory design term
func OddsRatioTable(rows []model.OddsRatio) TableView {
	out := TableView{Header: OddsRatioHeader, Rows: make([][]string, len(rows))}
	for i, r := range rows {
		out.Rows[i] = []string{
			r.Term,
			FormatFloat(r.OR),
			strconv.FormatFloat(100*(r.OR-1), 'f', 1, 64) + "%",
			FormatFloat(r.Lower),
			FormatFloat(r.Upper),
			FormatPValue(r.PValue),
			r.Stars,
		}
	}
	return out
}

// FitSummaryHeader are the model-fit table columns
var FitSummaryHeader = []string{
	"pseudo_rsq_mcf", "pseudo_rsq_mcf_adj", "AUC", "log_likelihood",
	"AIC", "BIC", "chisq", "chisq_df", "chisq_pval", "nobs",
}

// FitSummaryTable formats the fit metrics as a one-row table together
// with the multi-line text summary.
func FitSummaryTable(m model.FitMetrics) TableView {
	return TableView{
		Header: FitSummaryHeader,
		Rows: [][]string{{
			FormatFloat(m.PseudoR2McF),
			FormatFloat(m.PseudoR2McFAdj),
			FormatFloat(m.AUC),
			FormatFloat(m.LogLikelihood),
			FormatFloat(m.AIC),
			FormatFloat(m.BIC),
			FormatFloat(m.ChiSq),
			strconv.Itoa(m.ChiSqDF),
			FormatPValue(m.ChiSqPValue),
			FormatCount(m.NObs),
		}},
		Text: FitSummaryText(m),
	}
}

// FitSummaryText is the plain-text model fit block
func FitSummaryText(m model.FitMetrics) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Pseudo R-squared (McFadden): %s\n", FormatFloat(m.PseudoR2McF))
	fmt.Fprintf(&b, "Pseudo R-squared (McFadden adjusted): %s\n", FormatFloat(m.PseudoR2McFAdj))
	fmt.Fprintf(&b, "Area under the RO Curve (AUC): %s\n", FormatFloat(m.AUC))
	fmt.Fprintf(&b, "Log-likelihood: %s, AIC: %s, BIC: %s\n", FormatFloat(m.LogLikelihood), FormatFloat(m.AIC), FormatFloat(m.BIC))
	fmt.Fprintf(&b, "Chi-squared: %s df(%d), p.value %s\n", FormatFloat(m.ChiSq), m.ChiSqDF, FormatPValue(m.ChiSqPValue))
	fmt.Fprintf(&b, "Nr obs: %s", FormatCount(m.NObs))
	return b.String()
}
