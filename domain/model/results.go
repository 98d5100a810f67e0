package model

import "math"

// ConfidenceLevel is the fixed level of the odds-ratio intervals
const ConfidenceLevel = 0.95

// OddsRatio is one row of the odds-ratio table
type OddsRatio struct {
	Term     string  `json:"term"`
	OR       float64 `json:"odds_ratio"`
	Lower    float64 `json:"lower"`
	Upper    float64 `json:"upper"`
	PValue   float64 `json:"p_value"`
	Stars    string  `json:"stars"`
	Estimate float64 `json:"coefficient"`
}

// FitMetrics are the whole-model statistics shown in the summary table
type FitMetrics struct {
	PseudoR2McF    float64 `json:"pseudo_rsq_mcf"`
	PseudoR2McFAdj float64 `json:"pseudo_rsq_mcf_adj"`
	AUC            float64 `json:"auc"`
	LogLikelihood  float64 `json:"log_likelihood"`
	AIC            float64 `json:"aic"`
	BIC            float64 `json:"bic"`
	ChiSq          float64 `json:"chisq"`
	ChiSqDF        int     `json:"chisq_df"`
	ChiSqPValue    float64 `json:"chisq_pval"`
	NObs           int     `json:"nobs"`
}

// Importance is one variable's permutation importance
type Importance struct {
	Variable string  `json:"variable"`
	Mean     float64 `json:"mean"`
	StdDev   float64 `json:"std_dev"`
}

// Logistic is the inverse logit link
func Logistic(eta float64) float64 {
	if eta >= 0 {
		return 1 / (1 + math.Exp(-eta))
	}
	e := math.Exp(eta)
	return e / (1 + e)
}

// Stars returns the conventional significance code for a p-value
func Stars(p float64) string {
	switch {
	case p < 0.001:
		return "***"
	case p < 0.01:
		return "**"
	case p < 0.05:
		return "*"
	case p < 0.1:
		return "."
	default:
		return ""
	}
}
