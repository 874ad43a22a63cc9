package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"catalog-graph/backend/internal/constants"
	apperrors "catalog-graph/backend/pkg/errors"
)

// runStoreContract exercises the behaviour every Store backend must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("CreateAndFetch", func(t *testing.T) { testCreateAndFetch(t, newStore(t)) })
	t.Run("MergeIsIdempotent", func(t *testing.T) { testMergeIsIdempotent(t, newStore(t)) })
	t.Run("EdgesLifecycle", func(t *testing.T) { testEdgesLifecycle(t, newStore(t)) })
	t.Run("DetachDelete", func(t *testing.T) { testDetachDelete(t, newStore(t)) })
	t.Run("MatchPattern", func(t *testing.T) { testMatchPattern(t, newStore(t)) })
	t.Run("SetProperties", func(t *testing.T) { testSetProperties(t, newStore(t)) })
	t.Run("UpdateRollsBack", func(t *testing.T) { testUpdateRollsBack(t, newStore(t)) })
	t.Run("ViewIsReadOnly", func(t *testing.T) { testViewIsReadOnly(t, newStore(t)) })
	t.Run("RejectsBadIdentifiers", func(t *testing.T) { testRejectsBadIdentifiers(t, newStore(t)) })
	t.Run("ConcurrentMergeEdge", func(t *testing.T) { testConcurrentMergeEdge(t, newStore(t)) })
}

// testNoUniqueKeys checks a store opened without WithUniqueKeys: duplicate names are
// accepted and Merge still finds the lowest id.
func testNoUniqueKeys(t *testing.T, s Store) {
	ctx := context.Background()
	require.NoError(t, s.Update(ctx, func(tx Tx) error {
		if err := tx.Create(ctx, Node{Label: constants.LabelTag, ID: "t2", Props: Props{constants.PropName: "tech"}}); err != nil {
			return err
		}
		return tx.Create(ctx, Node{Label: constants.LabelTag, ID: "t1", Props: Props{constants.PropName: "tech"}})
	}))

	require.NoError(t, s.Update(ctx, func(tx Tx) error {
		n, err := tx.Merge(ctx, constants.LabelTag, constants.PropName, "tech", Props{constants.PropID: "t3"})
		require.NoError(t, err)
		assert.Equal(t, "t1", n.ID)
		tags, err := tx.Match(ctx, Pattern{Label: constants.LabelTag})
		require.NoError(t, err)
		assert.Len(t, tags, 2)
		return nil
	}))
}

// uniqueNames makes tag and category names unique, the way the catalog opens its stores.
var uniqueNames = WithUniqueKeys(UniqueKeys{
	constants.LabelTag:      {constants.PropName},
	constants.LabelCategory: {constants.PropName},
})

func item(id, name string, price float64) Node {
	return Node{Label: constants.LabelItem, ID: id, Props: Props{
		constants.PropName:  name,
		constants.PropPrice: price,
		constants.PropStock: int64(5),
	}}
}

func itemRef(id string) NodeRef { return NodeRef{Label: constants.LabelItem, ID: id} }
func tagRef(id string) NodeRef  { return NodeRef{Label: constants.LabelTag, ID: id} }
func catRef(id string) NodeRef  { return NodeRef{Label: constants.LabelCategory, ID: id} }

// seedCatalog creates two items sharing a tag and a category, plus a third unrelated one.
func seedCatalog(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.Update(ctx, func(tx Tx) error {
		for _, n := range []Node{item("i1", "Laptop", 999.99), item("i2", "Mouse", 25), item("i3", "Desk", 300)} {
			if err := tx.Create(ctx, n); err != nil {
				return err
			}
		}
		if _, err := tx.Merge(ctx, constants.LabelTag, constants.PropName, "tech", Props{constants.PropID: "t1"}); err != nil {
			return err
		}
		if _, err := tx.Merge(ctx, constants.LabelCategory, constants.PropName, "Electronics", Props{constants.PropID: "c1"}); err != nil {
			return err
		}
		for _, e := range []Edge{
			{Type: constants.RelHasTag, From: itemRef("i1"), To: tagRef("t1")},
			{Type: constants.RelHasTag, From: itemRef("i2"), To: tagRef("t1")},
			{Type: constants.RelBelongsTo, From: itemRef("i1"), To: catRef("c1")},
		} {
			if _, err := tx.MergeEdge(ctx, e); err != nil {
				return err
			}
		}
		return nil
	}))
}

func testCreateAndFetch(t *testing.T, s Store) {
	ctx := context.Background()
	require.NoError(t, s.Update(ctx, func(tx Tx) error {
		return tx.Create(ctx, item("i1", "Laptop", 999.99))
	}))

	require.NoError(t, s.View(ctx, func(tx Tx) error {
		nodes, err := tx.Nodes(ctx, itemRef("missing"), itemRef("i1"))
		require.NoError(t, err)
		require.Len(t, nodes, 1, "absent refs are skipped")
		n := nodes[0]
		assert.Equal(t, "i1", n.ID)
		assert.Equal(t, constants.LabelItem, n.Label)
		assert.Equal(t, "Laptop", n.Props.String(constants.PropName))
		assert.InDelta(t, 999.99, n.Props.Float64(constants.PropPrice), 1e-9)
		assert.Equal(t, int64(5), n.Props.Int64(constants.PropStock))
		assert.IsType(t, int64(0), n.Props[constants.PropStock], "numbers are normalized to int64")
		assert.Equal(t, "i1", n.Props.String(constants.PropID))
		return nil
	}))

	err := s.Update(ctx, func(tx Tx) error {
		return tx.Create(ctx, item("i1", "Other", 1))
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsIntegrity(err), "duplicate id should be an integrity violation, got %v", err)
}

func testMergeIsIdempotent(t *testing.T, s Store) {
	ctx := context.Background()
	var first, second Node
	require.NoError(t, s.Update(ctx, func(tx Tx) error {
		var err error
		first, err = tx.Merge(ctx, constants.LabelTag, constants.PropName, "tech", Props{constants.PropID: "t1"})
		if err != nil {
			return err
		}
		second, err = tx.Merge(ctx, constants.LabelTag, constants.PropName, "tech", Props{constants.PropID: "t2"})
		return err
	}))
	assert.Equal(t, "t1", first.ID)
	assert.Equal(t, "t1", second.ID, "an existing name is reused")
	assert.Equal(t, "tech", second.Props.String(constants.PropName))

	err := s.Update(ctx, func(tx Tx) error {
		return tx.Create(ctx, Node{Label: constants.LabelTag, ID: "t3", Props: Props{constants.PropName: "tech"}})
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsIntegrity(err), "duplicate tag name should be rejected, got %v", err)

	require.NoError(t, s.View(ctx, func(tx Tx) error {
		tags, err := tx.Match(ctx, Pattern{Label: constants.LabelTag})
		require.NoError(t, err)
		assert.Len(t, tags, 1)
		return nil
	}))
}

func testEdgesLifecycle(t *testing.T, s Store) {
	ctx := context.Background()
	seedCatalog(t, s)
	e := Edge{Type: constants.RelHasTag, From: itemRef("i3"), To: tagRef("t1")}

	require.NoError(t, s.Update(ctx, func(tx Tx) error {
		created, err := tx.MergeEdge(ctx, e)
		require.NoError(t, err)
		assert.True(t, created)

		created, err = tx.MergeEdge(ctx, e)
		require.NoError(t, err)
		assert.False(t, created, "second merge is a no-op")
		return nil
	}))

	err := s.Update(ctx, func(tx Tx) error {
		_, err := tx.MergeEdge(ctx, Edge{Type: constants.RelHasTag, From: itemRef("i3"), To: tagRef("nope")})
		return err
	})
	assert.True(t, apperrors.IsNotFound(err), "missing endpoint should be not found, got %v", err)

	require.NoError(t, s.View(ctx, func(tx Tx) error {
		in, err := tx.Edges(ctx, []NodeRef{tagRef("t1")}, Incoming, constants.RelHasTag)
		require.NoError(t, err)
		assert.Len(t, in, 3)

		out, err := tx.Edges(ctx, []NodeRef{itemRef("i1")}, Outgoing)
		require.NoError(t, err)
		assert.Equal(t, []Edge{
			{Type: constants.RelBelongsTo, From: itemRef("i1"), To: catRef("c1")},
			{Type: constants.RelHasTag, From: itemRef("i1"), To: tagRef("t1")},
		}, out)

		both, err := tx.Edges(ctx, []NodeRef{itemRef("i1"), tagRef("t1")}, Both)
		require.NoError(t, err)
		assert.Len(t, both, 4, "edges shared by two refs are reported once")
		return nil
	}))

	require.NoError(t, s.Update(ctx, func(tx Tx) error {
		from := itemRef("i3")
		n, err := tx.DeleteEdges(ctx, EdgeFilter{Type: constants.RelHasTag, From: &from})
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		n, err = tx.DeleteEdges(ctx, EdgeFilter{Type: constants.RelHasTag, From: &from})
		require.NoError(t, err)
		assert.Equal(t, 0, n)
		return nil
	}))
}

func testDetachDelete(t *testing.T, s Store) {
	ctx := context.Background()
	seedCatalog(t, s)

	require.NoError(t, s.Update(ctx, func(tx Tx) error {
		ok, err := tx.DetachDelete(ctx, itemRef("i1"))
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = tx.DetachDelete(ctx, itemRef("i1"))
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	}))

	require.NoError(t, s.View(ctx, func(tx Tx) error {
		n, err := GetNode(ctx, tx, tagRef("t1"))
		require.NoError(t, err)
		require.NotNil(t, n, "tags outlive the items that used them")

		in, err := tx.Edges(ctx, []NodeRef{tagRef("t1")}, Incoming)
		require.NoError(t, err)
		assert.Equal(t, []Edge{{Type: constants.RelHasTag, From: itemRef("i2"), To: tagRef("t1")}}, in)

		cat, err := tx.Edges(ctx, []NodeRef{catRef("c1")}, Both)
		require.NoError(t, err)
		assert.Empty(t, cat)
		return nil
	}))
}

func testMatchPattern(t *testing.T, s Store) {
	ctx := context.Background()
	seedCatalog(t, s)

	ids := func(nodes []Node) []string {
		out := make([]string, 0, len(nodes))
		for _, n := range nodes {
			out = append(out, n.ID)
		}
		return out
	}

	require.NoError(t, s.View(ctx, func(tx Tx) error {
		all, err := tx.Match(ctx, Pattern{Label: constants.LabelItem})
		require.NoError(t, err)
		assert.Equal(t, []string{"i1", "i2", "i3"}, ids(all))

		tagged, err := tx.Match(ctx, Pattern{
			Label: constants.LabelItem,
			Rels: []RelPattern{{
				Type: constants.RelHasTag, Direction: Outgoing, Label: constants.LabelTag,
				Props: Props{constants.PropName: "tech"},
			}},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"i1", "i2"}, ids(tagged))

		both, err := tx.Match(ctx, Pattern{
			Label: constants.LabelItem,
			Rels: []RelPattern{
				{Type: constants.RelHasTag, Direction: Outgoing, Label: constants.LabelTag, Props: Props{constants.PropName: "tech"}},
				{Type: constants.RelBelongsTo, Direction: Outgoing, Label: constants.LabelCategory, Props: Props{constants.PropName: "Electronics"}},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"i1"}, ids(both), "every relationship pattern must hold")

		byName, err := tx.Match(ctx, Pattern{Label: constants.LabelItem, Props: Props{constants.PropName: "Mouse"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"i2"}, ids(byName))

		none, err := tx.Match(ctx, Pattern{
			Label: constants.LabelItem,
			Rels:  []RelPattern{{Type: constants.RelHasTag, Direction: Outgoing, Props: Props{constants.PropName: "unknown"}}},
		})
		require.NoError(t, err)
		assert.Empty(t, none)
		return nil
	}))
}

func testSetProperties(t *testing.T, s Store) {
	ctx := context.Background()
	seedCatalog(t, s)

	require.NoError(t, s.Update(ctx, func(tx Tx) error {
		n, err := tx.Set(ctx, itemRef("i2"), Props{constants.PropName: "Trackball", constants.PropStock: int64(0)})
		require.NoError(t, err)
		require.NotNil(t, n)
		assert.Equal(t, "Trackball", n.Props.String(constants.PropName))
		assert.Equal(t, int64(0), n.Props.Int64(constants.PropStock))
		assert.InDelta(t, 25.0, n.Props.Float64(constants.PropPrice), 1e-9, "untouched properties survive")

		missing, err := tx.Set(ctx, itemRef("nope"), Props{constants.PropName: "x"})
		require.NoError(t, err)
		assert.Nil(t, missing)
		return nil
	}))
}

func testUpdateRollsBack(t *testing.T, s Store) {
	ctx := context.Background()
	seedCatalog(t, s)
	boom := errors.New("boom")

	err := s.Update(ctx, func(tx Tx) error {
		if err := tx.Create(ctx, item("i9", "Ghost", 1)); err != nil {
			return err
		}
		if _, err := tx.MergeEdge(ctx, Edge{Type: constants.RelHasTag, From: itemRef("i9"), To: tagRef("t1")}); err != nil {
			return err
		}
		if _, err := tx.DetachDelete(ctx, itemRef("i1")); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	require.NoError(t, s.View(ctx, func(tx Tx) error {
		nodes, err := tx.Nodes(ctx, itemRef("i9"), itemRef("i1"))
		require.NoError(t, err)
		require.Len(t, nodes, 1)
		assert.Equal(t, "i1", nodes[0].ID, "deleted node is restored")

		in, err := tx.Edges(ctx, []NodeRef{tagRef("t1")}, Incoming)
		require.NoError(t, err)
		assert.Len(t, in, 2)
		return nil
	}))
}

func testViewIsReadOnly(t *testing.T, s Store) {
	ctx := context.Background()
	err := s.View(ctx, func(tx Tx) error {
		return tx.Create(ctx, item("i1", "Laptop", 1))
	})
	require.Error(t, err)
}

func testRejectsBadIdentifiers(t *testing.T, s Store) {
	ctx := context.Background()
	err := s.View(ctx, func(tx Tx) error {
		_, err := tx.Match(ctx, Pattern{Label: "Item) DETACH DELETE (x"})
		return err
	})
	assert.True(t, apperrors.IsValidation(err), "got %v", err)

	err = s.View(ctx, func(tx Tx) error {
		_, err := tx.Edges(ctx, []NodeRef{itemRef("i1")}, Both, "HAS TAG")
		return err
	})
	assert.True(t, apperrors.IsValidation(err), "got %v", err)
}

func testConcurrentMergeEdge(t *testing.T, s Store) {
	ctx := context.Background()
	seedCatalog(t, s)

	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			return s.Update(ctx, func(tx Tx) error {
				tag, err := tx.Merge(ctx, constants.LabelTag, constants.PropName, "sale", Props{constants.PropID: "t-sale"})
				if err != nil {
					return err
				}
				_, err = tx.MergeEdge(ctx, Edge{Type: constants.RelHasTag, From: itemRef("i3"), To: tag.Ref()})
				return err
			})
		})
	}
	require.NoError(t, g.Wait())

	require.NoError(t, s.View(ctx, func(tx Tx) error {
		out, err := tx.Edges(ctx, []NodeRef{itemRef("i3")}, Outgoing, constants.RelHasTag)
		require.NoError(t, err)
		assert.Len(t, out, 1)
		return nil
	}))
}
