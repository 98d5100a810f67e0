package app

import (
	"bytes"
	"html/template"
	"strings"

	gomarkdown "github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/nao1215/markdown"

	"logitdash/domain/model"
)

// ReportInput collects the parts of a model report
type ReportInput struct {
	Dataset     string
	Model       *model.FittedModel
	OddsRatios  []model.OddsRatio
	Metrics     model.FitMetrics
	Importance  []model.Importance
	Snippet     string
	SnippetLang SnippetLang
}

// BuildReport renders the fitted model as a Markdown document
func BuildReport(in ReportInput) (string, error) {
	var buf bytes.Buffer
	md := markdown.NewMarkdown(&buf)

	md.H1("Logistic regression: " + in.Model.Formula)
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Dataset", in.Dataset},
			{"Response", "`" + string(in.Model.Request.Response) + "`"},
			{"Level", "`" + in.Model.PositiveAs + "`"},
			{"Explanatory", "`" + strings.Join(columnNames(in.Model.Request), "`, `") + "`"},
			{"Observations", FormatCount(in.Model.NObs)},
			{"Iterations", FormatCount(in.Model.Iterations)},
		},
	})
	md.PlainText("")

	md.H2("Odds ratios")
	md.PlainText("")
	or := OddsRatioTable(in.OddsRatios)
	md.Table(markdown.TableSet{Header: or.Header, Rows: escapeCells(or.Rows)})
	md.PlainText("")
	md.PlainText("Signif. codes: 0 '\\*\\*\\*' 0.001 '\\*\\*' 0.01 '\\*' 0.05 '.' 0.1 ' ' 1")
	md.PlainText("")

	md.H2("Model fit")
	md.PlainText("")
	fit := FitSummaryTable(in.Metrics)
	md.Table(markdown.TableSet{Header: fit.Header, Rows: fit.Rows})
	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlight("text"), fit.Text)
	md.PlainText("")

	if len(in.Importance) > 0 {
		md.H2("Permutation importance")
		md.PlainText("")
		rows := make([][]string, len(in.Importance))
		for i, imp := range in.Importance {
			rows[i] = []string{imp.Variable, FormatFloat(imp.Mean), FormatFloat(imp.StdDev)}
		}
		md.Table(markdown.TableSet{Header: []string{"Variable", "AUC drop (mean)", "AUC drop (sd)"}, Rows: rows})
		md.PlainText("")
	}

	if in.Snippet != "" {
		md.H2("Reproduce")
		md.PlainText("")
		lang := "shell"
		if in.SnippetLang == SnippetPython {
			lang = "python"
		}
		md.CodeBlocks(markdown.SyntaxHighlight(lang), strings.TrimRight(in.Snippet, "\n"))
		md.PlainText("")
	}

	if err := md.Build(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// escapeCells keeps significance stars from being read as emphasis
func escapeCells(rows [][]string) [][]string {
	out := make([][]string, len(rows))
	for i, row := range rows {
		out[i] = make([]string, len(row))
		for j, cell := range row {
			out[i][j] = strings.ReplaceAll(cell, "*", `\*`)
		}
	}
	return out
}

// ReportHTML converts report Markdown to HTML. Raw HTML in the input is
// dropped, so column names cannot inject markup.
func ReportHTML(md string) template.HTML {
	p := parser.NewWithExtensions(parser.CommonExtensions)
	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags | html.SkipHTML})
	return template.HTML(gomarkdown.ToHTML([]byte(md), p, renderer))
}
