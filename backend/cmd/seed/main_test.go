package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"catalog-graph/backend/internal/catalog"
	"catalog-graph/backend/internal/graph"
)

func TestSeed(t *testing.T) {
	ctx := context.Background()
	svc := catalog.NewService(graph.NewMemStore(catalog.StoreOptions()...), catalog.WithLogger(zap.NewNop()))

	require.NoError(t, seed(ctx, svc, sampleItems, 4))

	items, err := svc.ListItems(ctx)
	require.NoError(t, err)
	assert.Len(t, items, len(sampleItems))

	tags, err := svc.ListTags(ctx)
	require.NoError(t, err)
	names := map[string]int{}
	for _, tag := range tags {
		names[tag.Name] = tag.ItemCount
	}
	assert.Equal(t, 4, names["tech"])
	assert.Equal(t, 3, names["coffee"])

	deleted, err := deleteAll(ctx, svc)
	require.NoError(t, err)
	assert.Equal(t, len(sampleItems), deleted)

	items, err = svc.ListItems(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
}
