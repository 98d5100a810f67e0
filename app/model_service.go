package app

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"logitdash/domain/core"
	"logitdash/domain/dataset"
	"logitdash/domain/model"
	"logitdash/internal"
	"logitdash/internal/errors"
	"logitdash/internal/tracing"
	"logitdash/ports"
)

// Plot titles
const (
	OddsRatioPlotTitle  = "Odds-Ratios of Model 'lr'"
	ImportancePlotTitle = "Permutation Importance"
)

// ModelServiceDeps are the collaborators of the model service
type ModelServiceDeps struct {
	Stats      ports.StatisticsPort
	Importance ports.ImportancePort
	Plots      ports.PlotPort
	Journal    ports.FitJournalPort // optional
	Logger     *internal.Logger     // optional
	Tracer     oteltrace.Tracer     // optional
}

// ModelService fits validated requests and derives every model output
type ModelService struct {
	stats      ports.StatisticsPort
	importance ports.ImportancePort
	plots      ports.PlotPort
	journal    ports.FitJournalPort
	snippets   *SnippetGenerator
	log        *internal.Logger
	tracer     oteltrace.Tracer
}

// NewModelService creates a model service
func NewModelService(deps ModelServiceDeps) *ModelService {
	s := &ModelService{
		stats:      deps.Stats,
		importance: deps.Importance,
		plots:      deps.Plots,
		journal:    deps.Journal,
		snippets:   NewSnippetGenerator(),
		log:        deps.Logger,
		tracer:     deps.Tracer,
	}
	if s.log == nil {
		s.log = internal.DefaultLogger
	}
	if s.tracer == nil {
		s.tracer = tracing.Tracer()
	}
	return s
}

// Snippets exposes the snippet generator
func (s *ModelService) Snippets() *SnippetGenerator {
	return s.snippets
}

// Fit estimates the model for a validated request. The session is only
// used for the journal entry.
func (s *ModelService) Fit(ctx context.Context, table *dataset.Table, req model.Request, session core.SessionID) (*model.FittedModel, error) {
	ctx, span := s.tracer.Start(ctx, "model.fit", oteltrace.WithAttributes(
		attribute.String("model.formula", req.Formula()),
		attribute.String("dataset.name", table.Name()),
	))
	defer span.End()

	start := time.Now()
	m, err := s.stats.FitBinomialGLM(ctx, req, table)
	if err != nil {
		if !errors.IsAppError(err) {
			err = errors.ModelFitError("cannot fit "+req.Formula(), err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.log.Warn("[ModelService] fit %s failed: %v", req.Formula(), err)
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("model.nobs", m.NObs),
		attribute.Int("model.iterations", m.Iterations),
	)
	s.log.Info("[ModelService] fitted %s on %s (%d obs, %d iterations) in %.2fms",
		m.Formula, table.Name(), m.NObs, m.Iterations, float64(time.Since(start).Nanoseconds())/1e6)

	if s.journal != nil {
		rec := ports.FitRecord{
			ID:        core.NewID(),
			SessionID: session,
			Dataset:   table.Name(),
			Formula:   m.Formula,
			NObs:      m.NObs,
			AIC:       m.AIC,
			CreatedAt: time.Now().UTC(),
		}
		if err := s.journal.Record(ctx, rec); err != nil {
			s.log.Warn("[ModelService] journal write failed: %v", err)
		}
	}
	return m, nil
}

// OddsRatios returns the odds-ratio rows of a fitted model
func (s *ModelService) OddsRatios(m *model.FittedModel) []model.OddsRatio {
	return s.stats.OddsRatioTable(m)
}

// Metrics returns the fit statistics of a fitted model
func (s *ModelService) Metrics(m *model.FittedModel) model.FitMetrics {
	return s.stats.FitMetrics(m)
}

// Importance ranks the model's explanatory variables
func (s *ModelService) Importance(ctx context.Context, m *model.FittedModel) ([]model.Importance, error) {
	ctx, span := s.tracer.Start(ctx, "model.importance")
	defer span.End()

	rows, err := s.importance.PermutationImportance(ctx, m)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if !errors.IsAppError(err) {
			err = errors.ModelFitError("cannot compute permutation importance", err)
		}
		return nil, err
	}
	return rows, nil
}

// OddsRatioPlot renders the odds-ratio PNG
func (s *ModelService) OddsRatioPlot(m *model.FittedModel) ([]byte, error) {
	img, err := s.plots.OddsRatioPlot(s.OddsRatios(m), OddsRatioPlotTitle)
	if err != nil {
		return nil, errors.Wrap(err, "cannot draw odds-ratio plot")
	}
	return img, nil
}

// ImportancePlot renders the permutation-importance PNG
func (s *ModelService) ImportancePlot(rows []model.Importance) ([]byte, error) {
	img, err := s.plots.ImportancePlot(rows, ImportancePlotTitle)
	if err != nil {
		return nil, errors.Wrap(err, "cannot draw importance plot")
	}
	return img, nil
}

// Snippet renders reproduction code for a validated request
func (s *ModelService) Snippet(lang SnippetLang, in SnippetInput) (string, error) {
	return s.snippets.Generate(lang, in)
}

// Report renders the full Markdown report of a fitted model
func (s *ModelService) Report(in ReportInput) (string, error) {
	if in.OddsRatios == nil {
		in.OddsRatios = s.OddsRatios(in.Model)
	}
	if in.Metrics.NObs == 0 {
		in.Metrics = s.Metrics(in.Model)
	}
	md, err := BuildReport(in)
	if err != nil {
		return "", errors.Wrap(err, "cannot build report")
	}
	return md, nil
}
