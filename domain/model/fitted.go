package model

import (
	"logitdash/domain/core"
)

// InterceptTerm is the name of the constant column of the design matrix
const InterceptTerm = "Intercept"

// DesignTerm maps one column of the design matrix back to its source
// variable. Numeric variables contribute one term; categorical variables
// contribute one indicator per non-reference level.
type DesignTerm struct {
	Name     string        `json:"name"`
	Variable core.ColumnID `json:"variable"`
	Level    string        `json:"level,omitempty"`
}

// FittedModel is the read-only result of a binomial GLM fit with logit link
type FittedModel struct {
	Request Request      `json:"request"`
	Formula string       `json:"formula"`
	Terms   []DesignTerm `json:"terms"` // intercept first

	Coefficients []float64 `json:"coefficients"`
	StdErrors    []float64 `json:"std_errors"`
	ZValues      []float64 `json:"z_values"`
	PValues      []float64 `json:"p_values"`

	LogLikelihood     float64 `json:"log_likelihood"`
	NullLogLikelihood float64 `json:"null_log_likelihood"`
	Deviance          float64 `json:"deviance"`
	NullDeviance      float64 `json:"null_deviance"`
	AIC               float64 `json:"aic"`
	BIC               float64 `json:"bic"`

	// Design holds the row-major design matrix used for the fit, so the
	// model can re-predict with permuted columns.
	Design       [][]float64 `json:"-"`
	Observed     []float64   `json:"-"`
	FittedValues []float64   `json:"-"`

	NObs       int    `json:"nobs"`
	Iterations int    `json:"iterations"`
	PositiveAs string `json:"positive_as"`
}

// DFModel is the number of estimated parameters excluding the intercept
func (m *FittedModel) DFModel() int {
	return len(m.Coefficients) - 1
}

// Predict returns fitted probabilities for a row-major design matrix
func (m *FittedModel) Predict(design [][]float64) []float64 {
	out := make([]float64, len(design))
	for i, row := range design {
		eta := 0.0
		for j, x := range row {
			eta += m.Coefficients[j] * x
		}
		out[i] = Logistic(eta)
	}
	return out
}

// TermIndices groups design columns by the source variable, in request order
func (m *FittedModel) TermIndices() map[core.ColumnID][]int {
	idx := make(map[core.ColumnID][]int)
	for j, t := range m.Terms {
		if t.Name == InterceptTerm {
			continue
		}
		idx[t.Variable] = append(idx[t.Variable], j)
	}
	return idx
}
