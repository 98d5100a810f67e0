package glm

import (
	"context"
	"math"
	"sort"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"logitdash/domain/dataset"
	"logitdash/domain/model"
	"logitdash/internal/errors"
)

// Config controls the IRLS solver
type Config struct {
	MaxIterations int
	Tolerance     float64
}

// DefaultConfig mirrors the usual GLM control defaults
func DefaultConfig() Config {
	return Config{
		MaxIterations: 25,
		Tolerance:     1e-8,
	}
}

// Estimator implements ports.StatisticsPort with an in-process IRLS solver
type Estimator struct {
	config Config
}

// NewEstimator creates an estimator, filling unset fields from DefaultConfig
func NewEstimator(config Config) *Estimator {
	def := DefaultConfig()
	if config.MaxIterations <= 0 {
		config.MaxIterations = def.MaxIterations
	}
	if config.Tolerance <= 0 {
		config.Tolerance = def.Tolerance
	}
	return &Estimator{config: config}
}

// FitBinomialGLM fits req against table with a binomial family and logit link
func (e *Estimator) FitBinomialGLM(ctx context.Context, req model.Request, table *dataset.Table) (*model.FittedModel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := req.Validate(table); err != nil {
		return nil, errors.ModelFitError("invalid model request", err)
	}

	d, err := buildDesign(req, table)
	if err != nil {
		return nil, errors.ModelFitError("cannot build design matrix for "+req.Formula(), err)
	}

	res, err := irls(d.X, d.y, e.config.MaxIterations, e.config.Tolerance)
	if err != nil {
		return nil, errors.ModelFitError("cannot fit "+req.Formula(), err)
	}

	n := len(d.y)
	p := len(res.beta)
	m := &model.FittedModel{
		Request:      req,
		Formula:      req.Formula(),
		Terms:        d.terms,
		Coefficients: res.beta,
		StdErrors:    make([]float64, p),
		ZValues:      make([]float64, p),
		PValues:      make([]float64, p),
		Design:       d.X,
		Observed:     d.y,
		FittedValues: res.mu,
		NObs:         n,
		Iterations:   res.iterations,
		PositiveAs:   d.positive,
	}
	for j := 0; j < p; j++ {
		se := math.Sqrt(res.cov.At(j, j))
		m.StdErrors[j] = se
		m.ZValues[j] = res.beta[j] / se
		m.PValues[j] = 2 * distuv.UnitNormal.Survival(math.Abs(m.ZValues[j]))
	}

	m.LogLikelihood = binomialLogLik(d.y, res.mu)
	m.Deviance = -2 * m.LogLikelihood
	m.NullLogLikelihood = nullLogLik(d.y)
	m.NullDeviance = -2 * m.NullLogLikelihood
	m.AIC = -2*m.LogLikelihood + 2*float64(p)
	m.BIC = -2*m.LogLikelihood + float64(p)*math.Log(float64(n))
	return m, nil
}

// OddsRatioTable exponentiates every non-intercept coefficient together
// with its Wald interval at model.ConfidenceLevel.
func (e *Estimator) OddsRatioTable(m *model.FittedModel) []model.OddsRatio {
	z := distuv.UnitNormal.Quantile(1 - (1-model.ConfidenceLevel)/2)
	rows := make([]model.OddsRatio, 0, len(m.Terms)-1)
	for j, term := range m.Terms {
		if term.Name == model.InterceptTerm {
			continue
		}
		b, se := m.Coefficients[j], m.StdErrors[j]
		rows = append(rows, model.OddsRatio{
			Term:     term.Name,
			Estimate: b,
			OR:       math.Exp(b),
			Lower:    math.Exp(b - z*se),
			Upper:    math.Exp(b + z*se),
			PValue:   m.PValues[j],
			Stars:    model.Stars(m.PValues[j]),
		})
	}
	return rows
}

// FitMetrics computes McFadden pseudo R², AUC and the likelihood-ratio
// test against the intercept-only model.
func (e *Estimator) FitMetrics(m *model.FittedModel) model.FitMetrics {
	df := m.DFModel()
	chisq := m.NullDeviance - m.Deviance
	return model.FitMetrics{
		PseudoR2McF:    1 - m.LogLikelihood/m.NullLogLikelihood,
		PseudoR2McFAdj: 1 - (m.LogLikelihood-float64(df))/m.NullLogLikelihood,
		AUC:            AUC(m.FittedValues, m.Observed),
		LogLikelihood:  m.LogLikelihood,
		AIC:            m.AIC,
		BIC:            m.BIC,
		ChiSq:          chisq,
		ChiSqDF:        df,
		ChiSqPValue:    distuv.ChiSquared{K: float64(df)}.Survival(math.Max(chisq, 0)),
		NObs:           m.NObs,
	}
}

// AUC is the area under the ROC curve of scores against 0/1 outcomes
func AUC(scores, observed []float64) float64 {
	y := make([]float64, len(scores))
	copy(y, scores)
	classes := make([]bool, len(observed))
	pos := 0
	for i, o := range observed {
		classes[i] = o == 1
		if classes[i] {
			pos++
		}
	}
	if pos == 0 || pos == len(classes) {
		return math.NaN()
	}

	stat.SortWeightedLabeled(y, classes, nil)
	tpr, fpr, _ := stat.ROC(nil, y, classes, nil)
	if !sort.Float64sAreSorted(fpr) {
		// ROC emits rates for descending cutoffs; integrate over ascending fpr
		reverse(fpr)
		reverse(tpr)
	}
	return integrate.Trapezoidal(fpr, tpr)
}

func reverse(s []float64) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

func nullLogLik(y []float64) float64 {
	mean := stat.Mean(y, nil)
	n := float64(len(y))
	return n * (mean*math.Log(mean) + (1-mean)*math.Log(1-mean))
}
