package commands

import (
	"fmt"

	"github.com/qiyuan/conceptrank/backend/internal/batch"
	"github.com/qiyuan/conceptrank/backend/internal/compute"
	"github.com/qiyuan/conceptrank/backend/internal/ingest"
	"github.com/qiyuan/conceptrank/backend/pkg/config"
	"github.com/qiyuan/conceptrank/backend/pkg/database"
	"github.com/qiyuan/conceptrank/backend/pkg/logger"
	"github.com/qiyuan/conceptrank/backend/pkg/redis"
)

// deps bundles the shared wiring used by every command.
type deps struct {
	cfg      *config.Config
	log      *logger.Logger
	db       *database.DB
	rds      *redis.Client
	registry *batch.Registry
	engine   *compute.Engine
	importer *ingest.Importer
}

// setup loads config and wires the import pipeline. Callers must
// defer close().
func setup() (*deps, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	log := logger.New(cfg)

	db, err := database.New(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}

	rds, err := redis.New(cfg)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("connect to redis: %w", err)
	}

	registry := batch.NewRegistry(db.Pool, log)
	engine := compute.NewEngine(db.Pool, registry, log)
	importer := ingest.NewImporter(cfg, db.Pool, registry, engine, log)

	d := &deps{
		cfg:      cfg,
		log:      log,
		db:       db,
		rds:      rds,
		registry: registry,
		engine:   engine,
		importer: importer,
	}

	cleanup := func() {
		rds.Close()
		db.Close()
	}

	return d, cleanup, nil
}
