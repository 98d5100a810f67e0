package ports

import (
	"context"

	"logitdash/domain/dataset"
	"logitdash/domain/model"
)

// StatisticsPort fits and summarizes binomial GLMs
type StatisticsPort interface {
	// FitBinomialGLM fits the request against the table with a logit link.
	// Failures are MODEL_FIT_ERROR AppErrors.
	FitBinomialGLM(ctx context.Context, req model.Request, table *dataset.Table) (*model.FittedModel, error)

	// OddsRatioTable returns one row per explanatory design term, intercept excluded
	OddsRatioTable(m *model.FittedModel) []model.OddsRatio

	// FitMetrics extracts pseudo R², AUC, information criteria and the LR test
	FitMetrics(m *model.FittedModel) model.FitMetrics
}

// ImportancePort ranks explanatory variables by permutation importance
type ImportancePort interface {
	PermutationImportance(ctx context.Context, m *model.FittedModel) ([]model.Importance, error)
}

// PlotPort renders diagnostic plots as PNG bytes
type PlotPort interface {
	OddsRatioPlot(rows []model.OddsRatio, title string) ([]byte, error)
	ImportancePlot(rows []model.Importance, title string) ([]byte, error)
}
