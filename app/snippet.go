package app

import (
	"bytes"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"text/template"

	"logitdash/domain/model"
	"logitdash/internal/errors"
)

// SnippetLang selects a code template
type SnippetLang string

const (
	SnippetCLI    SnippetLang = "cli"
	SnippetPython SnippetLang = "python"
)

// SnippetInput is everything a template may reference
type SnippetInput struct {
	Dataset  string // dataset name, used as the Python variable
	DataFile string // path passed to the CLI
	Request  model.Request
}

var snippetTemplates = map[SnippetLang]string{
	SnippetCLI: `# reproduce this fit from a shell
logitdash-cli fit --data {{sh .DataFile}} --response {{sh .Response}} --explanatory {{sh (join .Explanatory ",")}}{{if .Level}} --level {{sh .Level}}{{end}}
`,
	SnippetPython: `import pyrsm as rsm
lr = rsm.logistic_regression(dataset={{ident .Dataset}}, rvar={{py .Response}}, evars={{pylist .Explanatory}})
lr.regress()
`,
}

// SnippetGenerator renders selections into fixed code templates. The
// result is text only; it is never evaluated.
type SnippetGenerator struct {
	templates map[SnippetLang]*template.Template
}

// NewSnippetGenerator parses the built-in templates
func NewSnippetGenerator() *SnippetGenerator {
	funcs := template.FuncMap{
		"sh":     shellQuote,
		"py":     strconv.Quote,
		"pylist": pythonList,
		"ident":  pythonIdent,
		"join":   strings.Join,
	}
	g := &SnippetGenerator{templates: make(map[SnippetLang]*template.Template, len(snippetTemplates))}
	for lang, text := range snippetTemplates {
		g.templates[lang] = template.Must(template.New(string(lang)).Funcs(funcs).Option("missingkey=error").Parse(text))
	}
	return g
}

// Langs lists the available templates, sorted
func (g *SnippetGenerator) Langs() []SnippetLang {
	out := make([]SnippetLang, 0, len(g.templates))
	for lang := range g.templates {
		out = append(out, lang)
	}
	sort.Slice(out, func(a, b int) bool { return out[a] < out[b] })
	return out
}

// Generate renders the snippet. An empty lang means the CLI template.
func (g *SnippetGenerator) Generate(lang SnippetLang, in SnippetInput) (string, error) {
	if lang == "" {
		lang = SnippetCLI
	}
	tmpl, ok := g.templates[lang]
	if !ok {
		return "", errors.CodeGenerationError(fmt.Sprintf("unknown snippet language %q", lang), nil)
	}

	data := struct {
		Dataset     string
		DataFile    string
		Response    string
		Explanatory []string
		Level       string
	}{
		Dataset:     in.Dataset,
		DataFile:    in.DataFile,
		Response:    string(in.Request.Response),
		Explanatory: columnNames(in.Request),
		Level:       in.Request.Level,
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", errors.CodeGenerationError("cannot render "+string(lang)+" snippet", err)
	}
	return buf.String(), nil
}

func columnNames(req model.Request) []string {
	out := make([]string, len(req.Terms))
	for i, t := range req.Terms {
		out[i] = string(t)
	}
	return out
}

var shellSafe = regexp.MustCompile(`^[A-Za-z0-9_./:=@%+,-]+$`)

// shellQuote single-quotes s unless it is made of shell-safe characters
func shellQuote(s string) string {
	if shellSafe.MatchString(s) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func pythonList(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = strconv.Quote(s)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

var nonIdent = regexp.MustCompile(`[^A-Za-z0-9_]`)

// pythonIdent turns a dataset name into a valid Python variable name
func pythonIdent(s string) string {
	id := nonIdent.ReplaceAllString(s, "_")
	if id == "" || (id[0] >= '0' && id[0] <= '9') {
		id = "_" + id
	}
	return id
}
