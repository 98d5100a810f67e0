package main

import (
	"context"
	"embed"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"logitdash/internal"
	"logitdash/internal/config"
	"logitdash/internal/container"
	"logitdash/internal/ops"
	"logitdash/internal/tracing"
	"logitdash/ui"
)

//go:embed ui/templates/* ui/templates/fragments/* ui/static/css/* ui/static/js/*
var embeddedFiles embed.FS

// initDatabase opens the journal database when DATABASE_URL is set
func initDatabase(ctx context.Context, url string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", url)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return db, nil
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	appConfig, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger := internal.NewLoggerTo(os.Stderr, internal.ParseLogLevel(appConfig.Log.Level), appConfig.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, appConfig.Tracing)
	if err != nil {
		logger.Error("[Main] tracing disabled: %v", err)
		shutdownTracing = func(context.Context) error { return nil }
	}

	appContainer, err := container.New(appConfig, logger)
	if err != nil {
		log.Fatalf("Failed to create application container: %v", err)
	}

	if appConfig.Database.URL != "" {
		db, err := initDatabase(ctx, appConfig.Database.URL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		if err := appContainer.InitWithDatabase(ctx, db); err != nil {
			log.Fatalf("Failed to initialize fit journal: %v", err)
		}
		logger.Info("[Main] fit journal enabled")
	}

	if err := appContainer.LoadDataset(); err != nil {
		log.Fatalf("Failed to load dataset: %v", err)
	}
	appContainer.InitDashboard()

	server, err := ui.NewServer(embeddedFiles, ui.Deps{
		Sessions: appContainer.Sessions,
		Loader:   appContainer.Loader,
		Hub:      appContainer.SSEHub,
		Snippets: appContainer.Service.Snippets(),
		Logger:   logger,
	}, ui.Config{
		CookieName:     appConfig.Session.CookieName,
		CookieMaxAge:   int(appConfig.Session.TTL.Seconds()),
		UploadMaxBytes: appConfig.Data.UploadMaxBytes,
		GinMode:        appConfig.Server.GinMode,
	})
	if err != nil {
		log.Fatalf("Failed to create UI server: %v", err)
	}

	httpServers := []*http.Server{{
		Addr:        ":" + appConfig.Server.Port,
		Handler:     server.Handler(),
		ReadTimeout: appConfig.Server.ReadTimeout,
		// no WriteTimeout: /api/events streams for the life of the page
		IdleTimeout: 2 * appConfig.Server.WriteTimeout,
	}}
	if appConfig.Profiling.Enabled {
		httpServers = append(httpServers, &http.Server{
			Addr:    ":" + appConfig.Profiling.Port,
			Handler: ops.NewRouter(appContainer.Sessions, appContainer.SSEHub, appContainer.Journal, logger),
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range httpServers {
		srv := srv
		g.Go(func() error {
			logger.Info("[Main] listening on http://localhost%s", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		appContainer.Sessions.Run(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		// open SSE streams hold Shutdown until the hub closes them
		appContainer.SSEHub.Close()
		for _, srv := range httpServers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("[Main] shutdown of %s: %v", srv.Addr, err)
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("[Main] server error: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := appContainer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("[Main] %v", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("[Main] tracing shutdown: %v", err)
	}
	logger.Info("[Main] stopped")
}
