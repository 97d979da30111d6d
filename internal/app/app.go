// Package app wires a workspace into a ready engine: config file, database,
// migrations and logger.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"crewline/internal/config"
	"crewline/internal/db"
	"crewline/internal/engine"
	"crewline/internal/migrate"
	"crewline/internal/repo"
)

type Options struct {
	Workspace string
	// MaxCrew overrides crew.max_per_mission when positive.
	MaxCrew int
	Logger  *slog.Logger
}

// Runtime is an opened workspace. Close releases the database.
type Runtime struct {
	Config *config.Config
	DB     *sql.DB
	Repo   repo.Repo
	Engine engine.Engine
}

func (r *Runtime) Close() error {
	if r == nil || r.DB == nil {
		return nil
	}
	return r.DB.Close()
}

// Open loads the workspace config (defaults when absent), migrates the
// database and builds the engine.
func Open(ctx context.Context, opts Options) (*Runtime, error) {
	cfg, err := config.LoadOptional(opts.Workspace)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if opts.MaxCrew > 0 {
		cfg.Crew.MaxPerMission = opts.MaxCrew
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := db.Open(db.Config{Workspace: opts.Workspace})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := migrate.MigrateContext(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	r := repo.Repo{DB: conn}
	e := engine.New(r, MaxCrew(cfg))
	e.Logger = logger.With("logger", "engine")
	logger.Debug("workspace opened", "workspace", opts.Workspace, "db", db.Path(opts.Workspace), "max_crew", e.MaxCrew)
	return &Runtime{Config: cfg, DB: conn, Repo: r, Engine: e}, nil
}

// MaxCrew is the configured capacity, falling back to engine.DefaultMaxCrew.
func MaxCrew(cfg *config.Config) int {
	if cfg == nil || cfg.Crew.MaxPerMission <= 0 {
		return engine.DefaultMaxCrew
	}
	return cfg.Crew.MaxPerMission
}
