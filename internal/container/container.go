package container

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"logitdash/adapters/charts"
	"logitdash/adapters/postgres"
	"logitdash/adapters/rng"
	"logitdash/adapters/stats/glm"
	"logitdash/adapters/stats/importance"
	"logitdash/adapters/tabular"
	"logitdash/app"
	"logitdash/domain/dataset"
	"logitdash/internal"
	"logitdash/internal/api"
	"logitdash/internal/config"
	"logitdash/internal/migration"
	"logitdash/internal/session"
	"logitdash/ports"
)

// Container holds all application dependencies and manages their lifecycle
type Container struct {
	Config *config.Config
	Logger *internal.Logger

	// Infrastructure
	DB      *sqlx.DB
	Loader  *tabular.Loader
	Journal ports.FitJournalPort

	// Dashboard
	Service   *app.ModelService
	Dashboard *app.Dashboard
	Dataset   *app.DatasetHandle
	Sessions  *session.Manager
	SSEHub    *api.SSEHub
}

// New creates a container without database access. The fit journal is a
// no-op until InitWithDatabase is called.
func New(cfg *config.Config, log *internal.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if log == nil {
		log = internal.DefaultLogger
	}

	c := &Container{
		Config:  cfg,
		Logger:  log,
		Loader:  tabular.NewLoader(tabular.Config{MaxBytes: cfg.Data.UploadMaxBytes}, log),
		Journal: postgres.NopJournal{},
	}
	return c, nil
}

// InitWithDatabase migrates the journal schema and switches the fit
// journal to PostgreSQL.
func (c *Container) InitWithDatabase(ctx context.Context, db *sqlx.DB) error {
	if db == nil {
		return fmt.Errorf("database connection cannot be nil")
	}
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database connection test failed: %w", err)
	}
	if err := migration.NewRunner().Run(ctx, db); err != nil {
		return err
	}
	c.DB = db
	c.Journal = postgres.NewFitJournal(db)
	return nil
}

// LoadDataset reads the configured startup dataset. An empty DATA_FILE
// starts every session without data until it uploads one.
func (c *Container) LoadDataset() error {
	if c.Config.Data.File == "" {
		c.Logger.Warn("[Container] DATA_FILE not set, sessions start without a dataset")
		return nil
	}
	table, err := c.Loader.Load(c.Config.Data.File)
	if err != nil {
		return err
	}
	if name := c.Config.Data.Name; name != "" && name != table.Name() {
		headers, rows := table.Records()
		if table, err = dataset.NewTable(name, headers, rows); err != nil {
			return err
		}
	}
	c.Dataset = &app.DatasetHandle{Table: table, Source: c.Config.Data.File, Version: 1}
	c.Logger.Info("[Container] loaded dataset %s from %s (%d rows, %d columns)",
		table.Name(), c.Config.Data.File, table.Rows(), len(table.Columns()))
	return nil
}

// InitDashboard wires the estimator, ranker, renderer and sessions. Call
// after LoadDataset and, when a database is used, InitWithDatabase.
func (c *Container) InitDashboard() {
	cfg := c.Config
	c.Service = app.NewModelService(app.ModelServiceDeps{
		Stats: glm.NewEstimator(glm.Config{
			MaxIterations: cfg.Model.MaxIterations,
			Tolerance:     cfg.Model.Tolerance,
		}),
		Importance: importance.NewRanker(rng.New(), importance.Config{
			Repeats: cfg.Importance.Repeats,
			Seed:    cfg.Importance.Seed,
			Workers: cfg.Importance.Workers,
		}),
		Plots:   charts.NewRenderer(charts.Config{}),
		Journal: c.Journal,
		Logger:  c.Logger,
	})
	c.Dashboard = app.NewDashboard(c.Service)
	c.SSEHub = api.NewSSEHub(c.Logger)
	c.Sessions = session.NewManager(c.Dashboard, c.Dataset, session.Config{
		TTL:           cfg.Session.TTL,
		SweepInterval: cfg.Session.SweepInterval,
	}, c.Logger)
	c.Sessions.OnInvalidate(c.SSEHub.Notify)
}

// Shutdown releases the hub and the database
func (c *Container) Shutdown(ctx context.Context) error {
	if c.SSEHub != nil {
		c.SSEHub.Close()
	}
	if c.Journal != nil {
		if err := c.Journal.Close(); err != nil {
			return fmt.Errorf("failed to close fit journal: %w", err)
		}
	}
	return nil
}
