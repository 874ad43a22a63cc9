package graph

import (
	"context"

	"go.uber.org/zap"

	"catalog-graph/backend/pkg/config"
	apperrors "catalog-graph/backend/pkg/errors"
	"catalog-graph/backend/pkg/logger"
)

// Open builds the Store selected by cfg.StoreBackend and ensures its schema. opts apply
// to the embedded backends; Neo4j takes its uniqueness from SchemaStatements.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (Store, error) {
	log := logger.Named("graph")

	var (
		store Store
		err   error
	)
	switch cfg.StoreBackend {
	case config.BackendNeo4j:
		store, err = NewNeo4jStore(ctx, Neo4jOptions{
			URI:             cfg.Neo4jURI,
			User:            cfg.Neo4jUser,
			Password:        cfg.Neo4jPassword,
			Database:        cfg.Neo4jDatabase,
			MaxPoolSize:     cfg.Neo4jMaxPoolSize,
			MaxConnLifetime: cfg.Neo4jMaxConnLifetime,
			AcquireTimeout:  cfg.Neo4jAcquireTimeout,
		})
	case config.BackendBolt:
		store, err = NewBoltStore(cfg.BoltPath, opts...)
	case config.BackendKuzu:
		store, err = openKuzuBackend(cfg.KuzuPath, opts)
	case config.BackendMemory:
		store = NewMemStore(opts...)
	default:
		err = apperrors.NewConfigValidationFailed("STORE_BACKEND", "unknown backend "+cfg.StoreBackend)
	}
	if err != nil {
		return nil, err
	}

	if err := store.InitSchema(ctx); err != nil {
		_ = store.Close(ctx)
		return nil, err
	}

	log.Info("Graph store ready", zap.String("backend", cfg.StoreBackend))
	return store, nil
}
