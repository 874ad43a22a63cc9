package graph

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/require"
)

// TestNeo4jStore_Contract requires a running Neo4j instance
// Set NEO4J_URI, NEO4J_USER, NEO4J_PASSWORD environment variables
func TestNeo4jStore_Contract(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}
	if os.Getenv("NEO4J_URI") == "" {
		t.Skip("NEO4J_URI not set")
	}

	runStoreContract(t, func(t *testing.T) Store {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		s, err := NewNeo4jStore(ctx, Neo4jOptions{
			URI:      os.Getenv("NEO4J_URI"),
			User:     getEnvOrDefault("NEO4J_USER", "neo4j"),
			Password: os.Getenv("NEO4J_PASSWORD"),
			Database: os.Getenv("NEO4J_DATABASE"),
		})
		require.NoError(t, err)
		require.NoError(t, s.InitSchema(ctx))
		wipe(t, s)
		t.Cleanup(func() {
			wipe(t, s)
			_ = s.Close(context.Background())
		})
		return s
	})
}

// wipe clears the catalog labels so each subtest starts empty.
func wipe(t *testing.T, s *Neo4jStore) {
	t.Helper()
	ctx := context.Background()
	session := s.Driver().NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)
	_, err := session.Run(ctx, "MATCH (n) WHERE n:Item OR n:Category OR n:Tag DETACH DELETE n", nil)
	require.NoError(t, err)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
