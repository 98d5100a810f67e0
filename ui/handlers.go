package ui

import (
	"bytes"
	"context"
	stderrors "errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"logitdash/app"
	"logitdash/domain/core"
	"logitdash/internal/errors"
	"logitdash/internal/reactive"
)

// outputOrder is the layout order of the dashboard panels
var outputOrder = []reactive.Key{
	app.OutputResponseSelect,
	app.OutputExplSelect,
	app.OutputOddsRatios,
	app.OutputModelFit,
	app.OutputOddsRatioPlot,
	app.OutputImportancePlot,
	app.OutputSnippet,
	app.OutputReport,
}

type indexPage struct {
	SessionID string
	Dataset   string
	Columns   []string
	Langs     []string
	Outputs   []string
	MaxUpload int64
}

func (s *Server) handleIndex(c *gin.Context) {
	sess := currentSession(c)
	page := indexPage{
		SessionID: sess.ID.String(),
		Columns:   sess.Columns(),
		MaxUpload: s.config.UploadMaxBytes,
	}
	if data := sess.Dataset(); data != nil && data.Table != nil {
		page.Dataset = data.Table.Name()
	}
	for _, lang := range s.snippets.Langs() {
		page.Langs = append(page.Langs, string(lang))
	}
	for _, key := range outputOrder {
		page.Outputs = append(page.Outputs, string(key))
	}
	s.renderTemplate(c, "index.html", page)
}

// renderTemplate renders to a buffer first so a failing template does not
// leave a half-written page.
func (s *Server) renderTemplate(c *gin.Context, name string, data interface{}) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		s.log.Error("[Template] %s failed: %v", name, err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Template rendering failed"})
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

// inputsRequest carries the inputs that changed, as JSON or form fields;
// absent fields are kept
type inputsRequest struct {
	Response     *string   `json:"resp_var" form:"resp_var"`
	Explanatory  *[]string `json:"expl_var" form:"expl_var"`
	Level        *string   `json:"level" form:"level"`
	GenerateCode *int      `json:"generate_code" form:"generate_code"`
	SnippetLang  *string   `json:"snippet_lang" form:"snippet_lang"`
}

func (r inputsRequest) changes() map[reactive.Key]interface{} {
	values := make(map[reactive.Key]interface{})
	if r.Response != nil {
		values[app.InputResponse] = strings.TrimSpace(*r.Response)
	}
	if r.Explanatory != nil {
		expl := *r.Explanatory
		if len(expl) == 0 {
			expl = nil
		}
		values[app.InputExplanatory] = expl
	}
	if r.Level != nil {
		values[app.InputLevel] = strings.TrimSpace(*r.Level)
	}
	if r.GenerateCode != nil {
		values[app.InputGenerateCode] = *r.GenerateCode
	}
	if r.SnippetLang != nil {
		values[app.InputSnippetLang] = *r.SnippetLang
	}
	return values
}

func (s *Server) handleInputs(c *gin.Context) {
	var req inputsRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid inputs: " + err.Error()})
		return
	}
	values := req.changes()
	if len(values) == 0 {
		c.JSON(http.StatusOK, gin.H{"dirty": []string{}})
		return
	}

	dirty, err := currentSession(c).Graph.SetMany(values)
	if err != nil {
		s.log.Error("[Inputs] %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"dirty": keyNames(dirty)})
}

func keyNames(keys []reactive.Key) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = string(k)
	}
	return out
}

// outputResult is a graph read: a value or the error rendered in its place
type outputResult struct {
	value interface{}
	err   error
}

// readOutput reads one output of the current session. Calcs and inputs
// are not outputs. ok is false when the response has already been written.
func (s *Server) readOutput(c *gin.Context, id reactive.Key) (outputResult, bool) {
	graph := currentSession(c).Graph
	if !isOutput(graph, id) {
		notFound(c, id, core.ErrUnknownOutput)
		return outputResult{}, false
	}
	value, err := graph.Read(c.Request.Context(), id)
	switch {
	case stderrors.Is(err, reactive.ErrUnknownNode):
		notFound(c, id, err)
		return outputResult{}, false
	case stderrors.Is(err, context.Canceled):
		c.Status(499)
		return outputResult{}, false
	}
	return outputResult{value: value, err: err}, true
}

func isOutput(g *reactive.Graph, id reactive.Key) bool {
	for _, key := range g.Outputs() {
		if key == id {
			return true
		}
	}
	return false
}

func notFound(c *gin.Context, id reactive.Key, cause error) {
	err := errors.NotFound("output "+string(id), cause)
	c.JSON(http.StatusNotFound, gin.H{"error": err.Message, "code": err.Code})
}

// handleOutput renders an output as an HTML fragment, or as JSON with
// ?format=json. Failures render as their message with status 200.
func (s *Server) handleOutput(c *gin.Context) {
	id := reactive.Key(c.Param("id"))
	res, ok := s.readOutput(c, id)
	if !ok {
		return
	}
	if res.err != nil {
		s.log.Debug("[Output] %s: %v", id, res.err)
	}

	view := s.render.View(id, res.value, res.err)
	if c.Query("format") == "json" {
		c.JSON(http.StatusOK, view)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(s.render.RenderOutput(view)))
}

func (s *Server) handlePlot(c *gin.Context) {
	file := c.Param("file")
	if !strings.HasSuffix(file, ".png") {
		c.JSON(http.StatusNotFound, gin.H{"error": "plots are served as .png"})
		return
	}
	id := reactive.Key(strings.TrimSuffix(file, ".png"))
	res, ok := s.readOutput(c, id)
	if !ok {
		return
	}
	if res.err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": errors.UserMessage(res.err)})
		return
	}
	img, isImage := res.value.(app.ImageView)
	if !isImage {
		c.JSON(http.StatusNotFound, gin.H{"error": string(id) + " is not a plot"})
		return
	}
	c.Header("Cache-Control", "no-cache")
	c.Data(http.StatusOK, "image/png", img.PNG)
}

func (s *Server) handleReportDownload(c *gin.Context) {
	res, ok := s.readOutput(c, app.OutputReport)
	if !ok {
		return
	}
	if res.err != nil {
		c.Data(http.StatusConflict, "text/plain; charset=utf-8", []byte(errors.UserMessage(res.err)))
		return
	}
	report := res.value.(app.ReportView)
	c.Header("Content-Disposition", `attachment; filename="logistic-regression.md"`)
	c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(report.Markdown))
}

func (s *Server) handleColumns(c *gin.Context) {
	sess := currentSession(c)
	resp := gin.H{"dataset": "", "columns": sess.Columns(), "version": 0}
	if data := sess.Dataset(); data != nil && data.Table != nil {
		resp["dataset"] = data.Table.Name()
		resp["version"] = data.Version
	}
	c.JSON(http.StatusOK, resp)
}

// handleUpload replaces the session dataset. Load failures are reported
// in the body with status 200 so the page shows them in place.
func (s *Server) handleUpload(c *gin.Context) {
	sess := currentSession(c)
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.config.UploadMaxBytes+(1<<20))

	fail := func(err error) {
		s.log.Warn("[Upload] session %s: %v", sess.ID, err)
		c.JSON(http.StatusOK, gin.H{"ok": false, "message": errors.UserMessage(err)})
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		fail(errors.DataLoadError("no file received", err))
		return
	}
	f, err := fileHeader.Open()
	if err != nil {
		fail(errors.DataLoadError("cannot open "+fileHeader.Filename, err))
		return
	}
	defer f.Close()

	table, err := s.loader.LoadReader(fileHeader.Filename, f)
	if err != nil {
		fail(err)
		return
	}
	dirty, err := s.sessions.ReplaceDataset(sess.ID, table, fileHeader.Filename)
	if err != nil {
		fail(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ok":      true,
		"dataset": table.Name(),
		"columns": sess.Columns(),
		"dirty":   keyNames(dirty),
	})
}

func (s *Server) handleReset(c *gin.Context) {
	sess := currentSession(c)
	dirty, err := s.sessions.ResetDataset(sess.ID)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"ok": false, "message": errors.UserMessage(err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "columns": sess.Columns(), "dirty": keyNames(dirty)})
}

func (s *Server) handleEvents(c *gin.Context) {
	s.hub.Stream(c, currentSession(c).ID.String())
}
