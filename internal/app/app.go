// Package app provides application-level wiring for the connector: stores,
// gateways, grid client, scheduler, and the HTTP handler.
package app

import (
	"log/slog"
	"net/http"

	"github.com/plotly/falcon/internal/api"
	"github.com/plotly/falcon/internal/config"
	"github.com/plotly/falcon/internal/datasource"
	"github.com/plotly/falcon/internal/gridstore"
	"github.com/plotly/falcon/internal/scheduler"
	"github.com/plotly/falcon/internal/store"
)

// Deps holds the external dependencies that main() must provide.
type Deps struct {
	Cfg    *config.Config
	Logger *slog.Logger
}

// App is the fully wired application.
type App struct {
	Handler   http.Handler
	Scheduler *scheduler.Scheduler
	SQL       *datasource.SQLGateway
}

// New wires stores, gateways, the grid client, the scheduler, and the HTTP
// handler from the provided deps.
func New(deps Deps) *App {
	cfg := deps.Cfg
	logger := deps.Logger

	queries := store.NewQueryStore(cfg.QueriesPath())
	connections := store.NewConnectionStore(cfg.ConnectionsPath())
	credentials := store.NewCredentialStore(cfg.CredentialsPath())
	tags := store.NewTagStore(cfg.TagsPath())

	sqlGateway := datasource.NewSQLGateway()
	registry := datasource.NewRegistry()
	for _, dialect := range []string{"sqlite", "postgres", "mysql"} {
		registry.Register(dialect, sqlGateway)
	}
	registry.Register("s3", datasource.NewS3Gateway())
	registry.SetFallback(sqlGateway)

	grid := gridstore.NewClient(cfg.PlotlyAPIURL, credentials, cfg.GridHTTPTimeout, logger)

	sched := scheduler.New(scheduler.Deps{
		Queries:            queries,
		Connections:        connections,
		Credentials:        credentials,
		Gateway:            registry,
		Grid:               grid,
		MinRefreshInterval: cfg.MinRefreshInterval,
		Logger:             logger,
	})

	handler := api.New(api.Deps{
		Scheduler:   sched,
		Queries:     queries,
		Connections: connections,
		Tags:        tags,
		Gateway:     registry,
		Grid:        grid,
		Logger:      logger,
	})

	return &App{
		Handler:   handler.Routes(),
		Scheduler: sched,
		SQL:       sqlGateway,
	}
}
