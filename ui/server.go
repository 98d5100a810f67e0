package ui

import (
	"fmt"
	"html/template"
	"io/fs"
	"net/http"

	"github.com/gin-gonic/gin"

	"logitdash/app"
	"logitdash/internal"
	"logitdash/internal/api"
	"logitdash/internal/session"
	"logitdash/ports"
	"logitdash/ui/services"
)

// Config holds UI server settings
type Config struct {
	CookieName     string
	CookieMaxAge   int // seconds
	UploadMaxBytes int64
	GinMode        string
}

// Deps are the collaborators the handlers call
type Deps struct {
	Sessions *session.Manager
	Loader   ports.DatasetLoaderPort
	Hub      *api.SSEHub
	Snippets *app.SnippetGenerator
	Logger   *internal.Logger
}

// Server is the dashboard web server
type Server struct {
	router    *gin.Engine
	templates *template.Template
	files     fs.FS
	render    *services.RenderService

	sessions *session.Manager
	loader   ports.DatasetLoaderPort
	hub      *api.SSEHub
	snippets *app.SnippetGenerator
	config   Config
	log      *internal.Logger
}

// NewServer parses the embedded templates and sets up routes. files must
// contain ui/templates and ui/static.
func NewServer(files fs.FS, deps Deps, config Config) (*Server, error) {
	if config.CookieName == "" {
		config.CookieName = "logitdash_session"
	}
	if config.UploadMaxBytes <= 0 {
		config.UploadMaxBytes = 50 << 20
	}
	if config.GinMode != "" {
		gin.SetMode(config.GinMode)
	}
	if deps.Logger == nil {
		deps.Logger = internal.DefaultLogger
	}
	if deps.Snippets == nil {
		deps.Snippets = app.NewSnippetGenerator()
	}

	s := &Server{
		router:   gin.New(),
		files:    files,
		sessions: deps.Sessions,
		loader:   deps.Loader,
		hub:      deps.Hub,
		snippets: deps.Snippets,
		config:   config,
		log:      deps.Logger,
	}

	if err := s.parseTemplates(); err != nil {
		return nil, err
	}
	s.render = services.NewRenderService(s.templates, s.log)

	if err := s.setupMiddleware(); err != nil {
		return nil, err
	}
	s.setupRoutes()
	return s, nil
}

func (s *Server) parseTemplates() error {
	templatesFS, err := fs.Sub(s.files, "ui/templates")
	if err != nil {
		return fmt.Errorf("failed to create templates filesystem: %w", err)
	}

	root, err := fs.Glob(templatesFS, "*.html")
	if err != nil {
		return fmt.Errorf("failed to glob root templates: %w", err)
	}
	nested, err := fs.Glob(templatesFS, "*/*.html")
	if err != nil {
		return fmt.Errorf("failed to glob nested templates: %w", err)
	}
	files := append(root, nested...)
	if len(files) == 0 {
		return fmt.Errorf("no templates found under ui/templates")
	}

	s.templates = template.New("").Funcs(templateFuncs())
	for _, file := range files {
		content, err := fs.ReadFile(templatesFS, file)
		if err != nil {
			return fmt.Errorf("failed to read template %s: %w", file, err)
		}
		if _, err := s.templates.New(file).Parse(string(content)); err != nil {
			return fmt.Errorf("failed to parse template %s: %w", file, err)
		}
	}
	s.log.Debug("[TemplateInit] parsed %d templates: %v", len(files), files)
	return nil
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"contains": func(list []string, s string) bool {
			for _, v := range list {
				if v == s {
					return true
				}
			}
			return false
		},
	}
}

// setupMiddleware installs logging, recovery, static files and sessions
func (s *Server) setupMiddleware() error {
	s.router.Use(gin.LoggerWithWriter(s.log.Writer()), gin.Recovery())

	staticFS, err := fs.Sub(s.files, "ui/static")
	if err != nil {
		return fmt.Errorf("failed to create static filesystem: %w", err)
	}
	s.router.StaticFS("/static", http.FS(staticFS))
	return nil
}

// setupRoutes configures the application routes
func (s *Server) setupRoutes() {
	withSession := s.router.Group("/", s.sessionMiddleware())

	withSession.GET("/", s.handleIndex)

	endpoints := withSession.Group("/api")
	endpoints.POST("/inputs", s.handleInputs)
	endpoints.GET("/outputs/:id", s.handleOutput)
	endpoints.GET("/plots/:file", s.handlePlot)
	endpoints.GET("/report.md", s.handleReportDownload)
	endpoints.GET("/columns", s.handleColumns)
	endpoints.POST("/upload", s.handleUpload)
	endpoints.POST("/reset", s.handleReset)
	endpoints.GET("/events", s.handleEvents)
}

// Handler exposes the router for an http.Server
func (s *Server) Handler() http.Handler {
	return s.router
}
