package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"catalog-graph/backend/internal/catalog"
	"catalog-graph/backend/internal/graph"
	"catalog-graph/backend/pkg/config"
	"catalog-graph/backend/pkg/logger"
)

const (
	migrationVersion     = "catalog_schema_v1"
	migrationDescription = "Unique ids for items, categories and tags; unique category and tag names; item name and createdAt indexes"
)

func main() {
	force := flag.Bool("force", false, "Force migration even if already applied")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}

	// Initialize logger
	if err := logger.Init(cfg.Env, cfg.LogLevel); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting schema migration...", zap.String("backend", cfg.StoreBackend))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if cfg.StoreBackend != config.BackendNeo4j {
		// Embedded stores create their buckets or tables when opened.
		store, err := graph.Open(ctx, cfg, catalog.StoreOptions()...)
		if err != nil {
			log.Fatal("Migration failed", zap.Error(err))
		}
		_ = store.Close(ctx)
		log.Info("Migration completed successfully!")
		return
	}

	store, err := graph.NewNeo4jStore(ctx, graph.Neo4jOptions{
		URI:             cfg.Neo4jURI,
		User:            cfg.Neo4jUser,
		Password:        cfg.Neo4jPassword,
		Database:        cfg.Neo4jDatabase,
		MaxPoolSize:     cfg.Neo4jMaxPoolSize,
		MaxConnLifetime: cfg.Neo4jMaxConnLifetime,
		AcquireTimeout:  cfg.Neo4jAcquireTimeout,
	})
	if err != nil {
		log.Fatal("Failed to connect to Neo4j", zap.Error(err))
	}
	defer store.Close(context.Background())

	m := &migrator{driver: store.Driver(), database: cfg.Neo4jDatabase}

	// Check if migration already applied
	if !*force {
		applied, err := m.applied(ctx)
		if err != nil {
			log.Fatal("Failed to check migration status", zap.Error(err))
		}
		if applied {
			log.Info("Migration already applied. Use -force to reapply.", zap.String("version", migrationVersion))
			os.Exit(0)
		}
	}

	for i, stmt := range graph.SchemaStatements {
		log.Debug("Schema statement", zap.Int("step", i+1), zap.String("cypher", stmt))
	}
	if err := store.InitSchema(ctx); err != nil {
		log.Fatal("Migration failed", zap.Error(err))
	}

	// Mark migration as applied
	if err := m.mark(ctx); err != nil {
		log.Warn("Failed to mark migration as applied", zap.Error(err))
	}

	log.Info("Migration completed successfully!", zap.String("version", migrationVersion))
}

// migrator records applied schema versions as Migration nodes.
type migrator struct {
	driver   neo4j.DriverWithContext
	database string
}

func (m *migrator) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return m.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: mode, DatabaseName: m.database})
}

func (m *migrator) applied(ctx context.Context) (bool, error) {
	session := m.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	query := `
		MATCH (m:Migration {version: $version})
		RETURN m.applied_at as applied_at
	`

	result, err := session.Run(ctx, query, map[string]any{"version": migrationVersion})
	if err != nil {
		return false, fmt.Errorf("failed to query migrations: %w", err)
	}

	return result.Next(ctx), nil
}

func (m *migrator) mark(ctx context.Context) error {
	session := m.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	query := `
		MERGE (m:Migration {version: $version})
		SET m.applied_at = datetime(),
		    m.description = $description
	`

	_, err := session.Run(ctx, query, map[string]any{
		"version":     migrationVersion,
		"description": migrationDescription,
	})
	return err
}
