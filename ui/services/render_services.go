package services

import (
	"fmt"
	"hash/crc32"
	"html/template"
	"strings"

	"logitdash/app"
	"logitdash/internal"
	"logitdash/internal/errors"
	"logitdash/internal/reactive"
)

// Output kinds understood by the output fragment
const (
	KindText   = "text"
	KindTable  = "table"
	KindImage  = "image"
	KindCode   = "code"
	KindReport = "report"
	KindError  = "error"
)

// OutputView is a rendered dashboard output in template-friendly form
type OutputView struct {
	ID       string     `json:"id"`
	Kind     string     `json:"kind"`
	Text     string     `json:"text,omitempty"`
	Header   []string   `json:"header,omitempty"`
	Rows     [][]string `json:"rows,omitempty"`
	ImageURL string     `json:"image_url,omitempty"`
	Alt      string     `json:"alt,omitempty"`
	Code     string     `json:"code,omitempty"`
	Lang     string     `json:"lang,omitempty"`
	Markdown string     `json:"markdown,omitempty"`

	HTML template.HTML `json:"-"`
}

type RenderService struct {
	templates *template.Template
	log       *internal.Logger
}

func NewRenderService(templates *template.Template, log *internal.Logger) *RenderService {
	if log == nil {
		log = internal.DefaultLogger
	}
	return &RenderService{
		templates: templates,
		log:       log,
	}
}

// View converts the value or error of a graph read into an OutputView.
// Errors of any category become the user-facing message.
func (s *RenderService) View(id reactive.Key, value interface{}, err error) OutputView {
	view := OutputView{ID: string(id)}
	if err != nil {
		view.Kind = KindError
		view.Text = errors.UserMessage(err)
		return view
	}

	switch v := value.(type) {
	case app.TextView:
		view.Kind = KindText
		view.Text = v.Text
	case app.TableView:
		view.Kind = KindTable
		view.Header = v.Header
		view.Rows = v.Rows
		view.Text = v.Text
	case app.ImageView:
		view.Kind = KindImage
		view.ImageURL = fmt.Sprintf("/api/plots/%s.png?v=%08x", id, crc32.ChecksumIEEE(v.PNG))
		view.Alt = v.Alt
	case app.SnippetView:
		view.Kind = KindCode
		view.Code = v.Code
		view.Lang = string(v.Lang)
	case app.ReportView:
		view.Kind = KindReport
		view.Markdown = v.Markdown
		view.HTML = v.HTML
	default:
		s.log.Error("[RenderService] output %s has unexpected type %T", id, value)
		view.Kind = KindError
		view.Text = errors.UserMessage(errors.InternalError("output cannot be displayed"))
	}
	return view
}

// RenderOutput executes the output fragment for one view
func (s *RenderService) RenderOutput(view OutputView) string {
	var buf strings.Builder
	if err := s.templates.ExecuteTemplate(&buf, "fragments/output.html", view); err != nil {
		s.log.Error("[RenderService] failed to render output %s: %v", view.ID, err)
		return `<div class="output-error" role="alert">Output could not be rendered</div>`
	}
	return buf.String()
}
