package app

import (
	"context"
	"html/template"

	"logitdash/domain/core"
	"logitdash/domain/dataset"
	"logitdash/domain/model"
	"logitdash/internal/errors"
	"logitdash/internal/reactive"
)

var errMissingDataset = errors.DataLoadError("no dataset loaded", nil)

// Inputs of the dashboard graph
const (
	InputResponse     reactive.Key = "resp_var"
	InputExplanatory  reactive.Key = "expl_var"
	InputLevel        reactive.Key = "level"
	InputGenerateCode reactive.Key = "generate_code"
	InputSnippetLang  reactive.Key = "snippet_lang"
	InputDataset      reactive.Key = "dataset"
)

// Cached calculations shared by several outputs
const (
	calcRequest    reactive.Key = "request"
	calcModel      reactive.Key = "model"
	calcImportance reactive.Key = "importance"
)

// Outputs of the dashboard graph
const (
	OutputResponseSelect reactive.Key = "resp_var_select"
	OutputExplSelect     reactive.Key = "expl_var_select"
	OutputOddsRatios     reactive.Key = "logit_or_ci"
	OutputModelFit       reactive.Key = "logit_model_fit"
	OutputOddsRatioPlot  reactive.Key = "logit_or_plot"
	OutputImportancePlot reactive.Key = "logit_pi_plot"
	OutputSnippet        reactive.Key = "code_snippet"
	OutputReport         reactive.Key = "model_report"
)

// DatasetHandle is the read-only table a session works on. Version
// changes on every upload so the graph sees a new value.
type DatasetHandle struct {
	Table   *dataset.Table
	Source  string // file the table was loaded from
	Version int
}

// TextView is a plain-text output
type TextView struct {
	Text string
}

// ImageView is a PNG output
type ImageView struct {
	PNG []byte
	Alt string
}

// SnippetView is the generated reproduction code
type SnippetView struct {
	Lang SnippetLang
	Code string
}

// ReportView is the Markdown report and its HTML rendering
type ReportView struct {
	Markdown string
	HTML     template.HTML
}

// Dashboard builds session graphs over a shared model service
type Dashboard struct {
	svc *ModelService
}

// NewDashboard creates a dashboard
func NewDashboard(svc *ModelService) *Dashboard {
	return &Dashboard{svc: svc}
}

// Service returns the underlying model service
func (d *Dashboard) Service() *ModelService {
	return d.svc
}

// NewGraph builds the reactive graph of one session
func (d *Dashboard) NewGraph(session core.SessionID, data *DatasetHandle) (*reactive.Graph, error) {
	g := reactive.New()
	inputs := []struct {
		key     reactive.Key
		initial interface{}
	}{
		{InputResponse, ""},
		{InputExplanatory, []string(nil)},
		{InputLevel, ""},
		{InputGenerateCode, 0},
		{InputSnippetLang, string(SnippetCLI)},
		{InputDataset, data},
	}
	for _, in := range inputs {
		if err := g.Input(in.key, in.initial); err != nil {
			return nil, err
		}
	}

	defs := []struct {
		key    reactive.Key
		output bool
		deps   []reactive.Key
		fn     reactive.ComputeFunc
	}{
		{calcRequest, false, []reactive.Key{InputResponse, InputExplanatory, InputLevel, InputDataset}, d.request},
		{calcModel, false, []reactive.Key{calcRequest}, d.model(session)},
		{calcImportance, false, []reactive.Key{calcModel}, d.importance},

		{OutputResponseSelect, true, []reactive.Key{InputResponse}, func(ctx context.Context, s *reactive.Scope) (interface{}, error) {
			return TextView{Text: ResponseSummary(s.String(InputResponse))}, nil
		}},
		{OutputExplSelect, true, []reactive.Key{InputExplanatory}, func(ctx context.Context, s *reactive.Scope) (interface{}, error) {
			return TextView{Text: ExplanatorySummary(s.Strings(InputExplanatory))}, nil
		}},
		{OutputOddsRatios, true, []reactive.Key{calcModel}, d.oddsRatios},
		{OutputModelFit, true, []reactive.Key{calcModel}, d.modelFit},
		{OutputOddsRatioPlot, true, []reactive.Key{calcModel}, d.oddsRatioPlot},
		{OutputImportancePlot, true, []reactive.Key{calcImportance}, d.importancePlot},
		// the snippet is event driven: it only follows the button
		{OutputSnippet, true, []reactive.Key{InputGenerateCode}, d.snippet},
		{OutputReport, true, []reactive.Key{calcModel, InputSnippetLang}, d.report},
	}
	for _, def := range defs {
		var err error
		if def.output {
			err = g.Output(def.key, def.deps, def.fn)
		} else {
			err = g.Calc(def.key, def.deps, def.fn)
		}
		if err != nil {
			return nil, err
		}
	}
	return g, nil
}

func handleOf(s *reactive.Scope) *DatasetHandle {
	h, _ := s.Get(InputDataset).(*DatasetHandle)
	return h
}

func tableOf(s *reactive.Scope) *dataset.Table {
	if h := handleOf(s); h != nil {
		return h.Table
	}
	return nil
}

func (d *Dashboard) request(ctx context.Context, s *reactive.Scope) (interface{}, error) {
	return BuildRequest(tableOf(s), s.String(InputResponse), s.Strings(InputExplanatory), s.String(InputLevel))
}

func (d *Dashboard) model(session core.SessionID) reactive.ComputeFunc {
	return func(ctx context.Context, s *reactive.Scope) (interface{}, error) {
		v, err := s.Calc(calcRequest)
		if err != nil {
			return nil, err
		}
		table := tableOf(s)
		if table == nil {
			return nil, errMissingDataset
		}
		return d.svc.Fit(ctx, table, v.(model.Request), session)
	}
}

func fitted(s *reactive.Scope) (*model.FittedModel, error) {
	v, err := s.Calc(calcModel)
	if err != nil {
		return nil, err
	}
	return v.(*model.FittedModel), nil
}

func (d *Dashboard) importance(ctx context.Context, s *reactive.Scope) (interface{}, error) {
	m, err := fitted(s)
	if err != nil {
		return nil, err
	}
	return d.svc.Importance(ctx, m)
}

func (d *Dashboard) oddsRatios(ctx context.Context, s *reactive.Scope) (interface{}, error) {
	m, err := fitted(s)
	if err != nil {
		return nil, err
	}
	return OddsRatioTable(d.svc.OddsRatios(m)), nil
}

func (d *Dashboard) modelFit(ctx context.Context, s *reactive.Scope) (interface{}, error) {
	m, err := fitted(s)
	if err != nil {
		return nil, err
	}
	return FitSummaryTable(d.svc.Metrics(m)), nil
}

func (d *Dashboard) oddsRatioPlot(ctx context.Context, s *reactive.Scope) (interface{}, error) {
	m, err := fitted(s)
	if err != nil {
		return nil, err
	}
	img, err := d.svc.OddsRatioPlot(m)
	if err != nil {
		return nil, err
	}
	return ImageView{PNG: img, Alt: OddsRatioPlotTitle}, nil
}

func (d *Dashboard) importancePlot(ctx context.Context, s *reactive.Scope) (interface{}, error) {
	v, err := s.Calc(calcImportance)
	if err != nil {
		return nil, err
	}
	img, err := d.svc.ImportancePlot(v.([]model.Importance))
	if err != nil {
		return nil, err
	}
	return ImageView{PNG: img, Alt: ImportancePlotTitle}, nil
}

func (d *Dashboard) snippetInput(s *reactive.Scope) (SnippetInput, error) {
	v, err := s.Calc(calcRequest)
	if err != nil {
		return SnippetInput{}, err
	}
	in := SnippetInput{Request: v.(model.Request)}
	if h := handleOf(s); h != nil {
		in.Dataset = h.Table.Name()
		in.DataFile = h.Source
	}
	return in, nil
}

func (d *Dashboard) snippet(ctx context.Context, s *reactive.Scope) (interface{}, error) {
	if s.Int(InputGenerateCode) == 0 {
		return TextView{Text: MsgGenerateCode}, nil
	}
	in, err := d.snippetInput(s)
	if err != nil {
		return nil, err
	}
	lang := SnippetLang(s.String(InputSnippetLang))
	if lang == "" {
		lang = SnippetCLI
	}
	code, err := d.svc.Snippet(lang, in)
	if err != nil {
		return nil, err
	}
	return SnippetView{Lang: lang, Code: code}, nil
}

func (d *Dashboard) report(ctx context.Context, s *reactive.Scope) (interface{}, error) {
	m, err := fitted(s)
	if err != nil {
		return nil, err
	}
	in, err := d.snippetInput(s)
	if err != nil {
		return nil, err
	}
	lang := SnippetLang(s.String(InputSnippetLang))
	code, err := d.svc.Snippet(lang, in)
	if err != nil {
		return nil, err
	}
	md, err := d.svc.Report(ReportInput{
		Dataset:     in.Dataset,
		Model:       m,
		Snippet:     code,
		SnippetLang: lang,
	})
	if err != nil {
		return nil, err
	}
	return ReportView{Markdown: md, HTML: ReportHTML(md)}, nil
}
