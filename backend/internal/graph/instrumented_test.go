package graph

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalog-graph/backend/pkg/metrics"
)

func TestInstrumented_RecordsOperations(t *testing.T) {
	m := metrics.NewCollector("test")
	s := NewInstrumented(NewMemStore(), m)
	ctx := context.Background()

	require.NoError(t, s.Update(ctx, func(tx Tx) error {
		return tx.Create(ctx, item("i1", "Laptop", 1))
	}))
	err := s.Update(ctx, func(tx Tx) error {
		return tx.Create(ctx, item("i1", "Laptop", 1))
	})
	require.Error(t, err)
	require.NoError(t, s.View(ctx, func(tx Tx) error {
		_, err := tx.Nodes(ctx, itemRef("i1"))
		return err
	}))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreOperations.WithLabelValues("create", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreOperations.WithLabelValues("create", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreOperations.WithLabelValues("update", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreOperations.WithLabelValues("nodes", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreOperations.WithLabelValues("view", "success")))
}
