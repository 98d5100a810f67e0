package ui

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"math/rand"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strconv"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"logitdash/adapters/charts"
	"logitdash/adapters/rng"
	"logitdash/adapters/stats/glm"
	"logitdash/adapters/stats/importance"
	"logitdash/adapters/tabular"
	"logitdash/app"
	"logitdash/domain/dataset"
	"logitdash/internal"
	"logitdash/internal/api"
	"logitdash/internal/session"
)

func dvdTable(t *testing.T) *dataset.Table {
	t.Helper()
	src := rand.New(rand.NewSource(7))
	rows := make([][]string, 300)
	for i := range rows {
		coupon := src.Intn(3)
		purchase := src.Intn(10)
		eta := -1.5 + 0.8*float64(coupon) + 0.1*float64(purchase)
		buy := "no"
		if src.Float64() < 1/(1+math.Exp(-eta)) {
			buy = "yes"
		}
		rows[i] = []string{buy, strconv.Itoa(coupon), strconv.Itoa(purchase)}
	}
	tbl, err := dataset.NewTable("dvd", []string{"buy", "coupon", "purchase"}, rows)
	require.NoError(t, err)
	return tbl
}

type client struct {
	t      *testing.T
	server *Server
	cookie *http.Cookie
}

func newTestClient(t *testing.T) *client {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := internal.NewLoggerTo(io.Discard, internal.LogLevelError, "text")

	svc := app.NewModelService(app.ModelServiceDeps{
		Stats:      glm.NewEstimator(glm.DefaultConfig()),
		Importance: importance.NewRanker(rng.New(), importance.Config{Repeats: 2, Seed: 1, Workers: 2}),
		Plots:      charts.NewRenderer(charts.Config{}),
		Logger:     log,
	})
	base := &app.DatasetHandle{Table: dvdTable(t), Source: "data/dvd.csv", Version: 1}
	sessions := session.NewManager(app.NewDashboard(svc), base, session.Config{}, log)
	hub := api.NewSSEHub(log)
	t.Cleanup(hub.Close)
	sessions.OnInvalidate(hub.Notify)

	server, err := NewServer(os.DirFS(".."), Deps{
		Sessions: sessions,
		Loader:   tabular.NewLoader(tabular.Config{MaxBytes: 1 << 20}, log),
		Hub:      hub,
		Snippets: svc.Snippets(),
		Logger:   log,
	}, Config{UploadMaxBytes: 1 << 20})
	require.NoError(t, err)
	return &client{t: t, server: server}
}

func (cl *client) do(req *http.Request) *httptest.ResponseRecorder {
	cl.t.Helper()
	if cl.cookie != nil {
		req.AddCookie(cl.cookie)
	}
	w := httptest.NewRecorder()
	cl.server.Handler().ServeHTTP(w, req)
	for _, ck := range w.Result().Cookies() {
		if ck.Name == "logitdash_session" {
			cl.cookie = ck
		}
	}
	return w
}

func (cl *client) get(path string) *httptest.ResponseRecorder {
	return cl.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (cl *client) postJSON(path string, body interface{}) *httptest.ResponseRecorder {
	cl.t.Helper()
	data, err := json.Marshal(body)
	require.NoError(cl.t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return cl.do(req)
}

func (cl *client) upload(filename, content string) map[string]interface{} {
	cl.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(cl.t, err)
	_, err = part.Write([]byte(content))
	require.NoError(cl.t, err)
	require.NoError(cl.t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := cl.do(req)
	require.Equal(cl.t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(cl.t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestIndex(t *testing.T) {
	cl := newTestClient(t)
	w := cl.get("/")

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, cl.cookie, "session cookie is set")
	assert.True(t, cl.cookie.HttpOnly)
	body := w.Body.String()
	assert.Contains(t, body, `<option value="coupon">coupon</option>`)
	assert.Contains(t, body, `data-output="logit_or_ci"`)
	assert.Contains(t, body, `<option value="python">python</option>`)

	first := cl.cookie.Value
	cl.get("/")
	assert.Equal(t, first, cl.cookie.Value, "existing session is kept")
}

func TestOutputs_EmptySelection(t *testing.T) {
	cl := newTestClient(t)

	w := cl.get("/api/outputs/resp_var_select")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), app.MsgSelectResponse)

	w = cl.get("/api/outputs/logit_or_ci")
	require.Equal(t, http.StatusOK, w.Code, "errors render in place")
	assert.Contains(t, w.Body.String(), `class="output-error"`)
	assert.Contains(t, w.Body.String(), app.MsgSelectResponse)

	w = cl.get("/api/outputs/nope")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestOutputs_OnlyDeclaredOutputsAreServed(t *testing.T) {
	cl := newTestClient(t)
	cl.postJSON("/api/inputs", map[string]interface{}{
		"resp_var": "buy",
		"expl_var": []string{"coupon"},
	})

	for _, path := range []string{
		"/api/outputs/model",
		"/api/outputs/request",
		"/api/outputs/resp_var",
		"/api/plots/importance.png",
		"/api/plots/model.png",
	} {
		w := cl.get(path)
		require.Equal(t, http.StatusNotFound, w.Code, path)
		var body map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), path)
		assert.Equal(t, "NOT_FOUND", body["code"], path)
	}
}

func TestInputs_FormEncoded(t *testing.T) {
	cl := newTestClient(t)
	cl.get("/")

	form := url.Values{"resp_var": {"buy"}, "expl_var": {"coupon", "purchase"}, "generate_code": {"1"}}
	req := httptest.NewRequest(http.MethodPost, "/api/inputs", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := cl.do(req)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Dirty []string `json:"dirty"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.Dirty, "logit_or_ci")
	assert.Contains(t, resp.Dirty, "code_snippet")

	w = cl.get("/api/outputs/code_snippet")
	assert.Contains(t, w.Body.String(), "--response buy --explanatory coupon,purchase")
}

func TestInputsAndOutputs(t *testing.T) {
	cl := newTestClient(t)
	cl.get("/")

	w := cl.postJSON("/api/inputs", map[string]interface{}{
		"resp_var": "buy",
		"expl_var": []string{"coupon", "purchase"},
	})
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Dirty []string `json:"dirty"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.Dirty, "logit_or_ci")
	assert.NotContains(t, resp.Dirty, "code_snippet")

	w = cl.get("/api/outputs/logit_or_ci")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<table")
	assert.Contains(t, w.Body.String(), "<td>coupon</td>")

	w = cl.get("/api/outputs/logit_model_fit?format=json")
	require.Equal(t, http.StatusOK, w.Code)
	var view map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, "table", view["kind"])
	assert.Contains(t, view["text"], "Nr obs: 300")

	w = cl.get("/api/outputs/logit_or_plot")
	assert.Contains(t, w.Body.String(), `src="/api/plots/logit_or_plot.png?v=`)

	w = cl.get("/api/plots/logit_or_plot.png")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")))

	w = cl.get("/api/plots/resp_var_select.png")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = cl.get("/api/report.md")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "# Logistic regression: buy ~ coupon + purchase")
}

func TestInputs_Invalid(t *testing.T) {
	cl := newTestClient(t)
	req := httptest.NewRequest(http.MethodPost, "/api/inputs", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	assert.Equal(t, http.StatusBadRequest, cl.do(req).Code)

	w := cl.postJSON("/api/inputs", map[string]interface{}{"expl_var": "coupon"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSnippetOnClick(t *testing.T) {
	cl := newTestClient(t)
	cl.postJSON("/api/inputs", map[string]interface{}{
		"resp_var": "buy",
		"expl_var": []string{"coupon", "purchase"},
	})

	w := cl.get("/api/outputs/code_snippet")
	assert.Contains(t, w.Body.String(), "Generate code")

	w = cl.postJSON("/api/inputs", map[string]interface{}{"generate_code": 1})
	assert.JSONEq(t, `{"dirty":["code_snippet"]}`, w.Body.String())

	w = cl.get("/api/outputs/code_snippet")
	assert.Contains(t, w.Body.String(), "logitdash-cli fit --data data/dvd.csv --response buy --explanatory coupon,purchase")
}

func TestReportDownload_WithoutModel(t *testing.T) {
	cl := newTestClient(t)
	w := cl.get("/api/report.md")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, app.MsgSelectResponse, w.Body.String())
}

func TestUploadAndReset(t *testing.T) {
	cl := newTestClient(t)
	cl.get("/")

	body := cl.upload("sales.csv", "y,x1,x2\n1,0.5,a\n0,0.1,b\n1,0.9,a\n0,0.3,b\n")
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "sales", body["dataset"])
	assert.Equal(t, []interface{}{"y", "x1", "x2"}, body["columns"])

	w := cl.get("/api/columns")
	assert.JSONEq(t, `{"dataset":"sales","columns":["y","x1","x2"],"version":2}`, w.Body.String())

	w = cl.postJSON("/api/reset", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = cl.get("/api/columns")
	assert.JSONEq(t, `{"dataset":"dvd","columns":["buy","coupon","purchase"],"version":1}`, w.Body.String())
}

func TestUpload_Errors(t *testing.T) {
	cl := newTestClient(t)
	cl.get("/")

	body := cl.upload("notes.txt", "hello")
	assert.Equal(t, false, body["ok"])
	assert.Contains(t, body["message"], "Dataset could not be loaded")

	body = cl.upload("empty.csv", "a,b\n")
	assert.Equal(t, false, body["ok"])

	w := cl.get("/api/columns")
	assert.Contains(t, w.Body.String(), `"dataset":"dvd"`, "failed uploads keep the dataset")
}

func TestStaticFiles(t *testing.T) {
	cl := newTestClient(t)
	w := cl.get("/static/js/dashboard.js")
	assert.Equal(t, http.StatusOK, w.Code)
	w = cl.get("/static/css/dashboard.css")
	assert.Equal(t, http.StatusOK, w.Code)
}
