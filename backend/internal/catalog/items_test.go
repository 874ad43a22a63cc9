package catalog

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"catalog-graph/backend/internal/constants"
	"catalog-graph/backend/internal/graph"
	apperrors "catalog-graph/backend/pkg/errors"
)

func TestCreateItem_RoundTrip(t *testing.T) {
	forEachBackend(t, func(t *testing.T, _ graph.Store, svc *Service) {
		ctx := context.Background()
		created, err := svc.CreateItem(ctx,
			ItemInput{Name: "  Laptop ", Description: "Portable computer", Price: price(999.5), Stock: stock(3)},
			&Ref{Name: "Electronics"},
			[]Ref{{Name: "tech"}, {Name: "sale"}, {Name: "tech"}})
		require.NoError(t, err)

		got, err := svc.GetItem(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, created, got)

		assert.Equal(t, "Laptop", got.Name)
		assert.Equal(t, "Portable computer", got.Description)
		assert.Equal(t, 999.5, got.Price)
		assert.Equal(t, int64(3), got.Stock)
		assert.Equal(t, "2024-01-01T00:00:01.000Z", got.CreatedAt)
		assert.Equal(t, got.CreatedAt, got.UpdatedAt)
		require.NotNil(t, got.Category)
		assert.Equal(t, "Electronics", got.Category.Name)
		assert.Equal(t, []string{"sale", "tech"}, tagNames(got.Tags))
	})
}

func TestCreateItem_DefaultsPriceAndStock(t *testing.T) {
	forEachBackend(t, func(t *testing.T, _ graph.Store, svc *Service) {
		got, err := svc.CreateItem(context.Background(), ItemInput{Name: "Pen"}, nil, nil)
		require.NoError(t, err)
		assert.Zero(t, got.Price)
		assert.Zero(t, got.Stock)
		assert.Nil(t, got.Category)
		assert.Empty(t, got.Tags)
	})
}

func TestCreateItem_Validation(t *testing.T) {
	tests := []struct {
		name     string
		input    ItemInput
		category *Ref
		tags     []Ref
		problems []string
	}{
		{
			name:     "blank name",
			input:    ItemInput{Name: "   "},
			problems: []string{"Name is required"},
		},
		{
			name:     "negative price",
			input:    ItemInput{Name: "Pen", Price: price(-1)},
			problems: []string{"Price must be a positive number"},
		},
		{
			name:     "infinite price",
			input:    ItemInput{Name: "Pen", Price: price(math.Inf(1))},
			problems: []string{"Price must be a positive number"},
		},
		{
			name:     "negative stock",
			input:    ItemInput{Name: "Pen", Stock: stock(-4)},
			problems: []string{"Stock must be a positive integer"},
		},
		{
			name:     "every problem at once",
			input:    ItemInput{Price: price(-1), Stock: stock(-1)},
			problems: []string{"Name is required", "Price must be a positive number", "Stock must be a positive integer"},
		},
		{
			name:     "empty category ref",
			input:    ItemInput{Name: "Pen"},
			category: &Ref{},
			problems: []string{"Category name is required"},
		},
		{
			name:     "empty tag ref",
			input:    ItemInput{Name: "Pen"},
			tags:     []Ref{{Name: "ok"}, {Name: " "}},
			problems: []string{"Tag name is required"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := graph.NewMemStore(StoreOptions()...)
			svc := newTestService(store)

			_, err := svc.CreateItem(context.Background(), tt.input, tt.category, tt.tags)
			require.Error(t, err)
			assert.True(t, apperrors.IsValidation(err))

			var ve *apperrors.ErrValidation
			require.ErrorAs(t, err, &ve)
			assert.ElementsMatch(t, tt.problems, ve.Problems)

			items, err := svc.ListItems(context.Background())
			require.NoError(t, err)
			assert.Empty(t, items, "rejected input must not write anything")
		})
	}
}

func TestCreateItem_RollsBackOnUnknownCategoryID(t *testing.T) {
	forEachBackend(t, func(t *testing.T, _ graph.Store, svc *Service) {
		ctx := context.Background()
		_, err := svc.CreateItem(ctx, ItemInput{Name: "Pen"}, &Ref{ID: "missing"}, []Ref{{Name: "office"}})
		require.Error(t, err)
		assert.True(t, apperrors.IsNotFound(err))

		items, err := svc.ListItems(ctx)
		require.NoError(t, err)
		assert.Empty(t, items)

		tags, err := svc.ListTags(ctx)
		require.NoError(t, err)
		assert.Empty(t, tags)
	})
}

func TestGetItem_NotFound(t *testing.T) {
	forEachBackend(t, func(t *testing.T, _ graph.Store, svc *Service) {
		_, err := svc.GetItem(context.Background(), "missing")
		require.Error(t, err)
		assert.True(t, apperrors.IsNotFound(err))
	})
}

func TestListItems_NewestFirst(t *testing.T) {
	forEachBackend(t, func(t *testing.T, _ graph.Store, svc *Service) {
		seedScenario(t, svc)
		items, err := svc.ListItems(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{"Desk", "Mouse", "Laptop"}, itemNames(items))
	})
}

func TestUpdateItem_KeepsOneCategory(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store graph.Store, svc *Service) {
		ctx := context.Background()
		sc := seedScenario(t, svc)

		categories := []string{"Computers", "Electronics", "Office", "Computers", "Sale"}
		for _, name := range categories {
			updated, err := svc.UpdateItem(ctx, sc.laptop.ID, ItemInput{Name: "Laptop"}, &Ref{Name: name})
			require.NoError(t, err)
			require.NotNil(t, updated.Category)
			assert.Equal(t, name, updated.Category.Name)
		}

		require.NoError(t, store.View(ctx, func(tx graph.Tx) error {
			edges, err := tx.Edges(ctx, []graph.NodeRef{itemRef(sc.laptop.ID)}, graph.Outgoing, constants.RelBelongsTo)
			require.NoError(t, err)
			assert.Len(t, edges, 1)
			return nil
		}))
	})
}

func TestUpdateItem_ReplacesFields(t *testing.T) {
	forEachBackend(t, func(t *testing.T, _ graph.Store, svc *Service) {
		ctx := context.Background()
		sc := seedScenario(t, svc)

		updated, err := svc.UpdateItem(ctx, sc.laptop.ID, ItemInput{Name: "Laptop Pro", Description: "Faster"}, nil)
		require.NoError(t, err)
		assert.Equal(t, "Laptop Pro", updated.Name)
		assert.Equal(t, "Faster", updated.Description)
		assert.Zero(t, updated.Price, "absent price resets to 0")
		assert.Zero(t, updated.Stock, "absent stock resets to 0")
		assert.Equal(t, sc.laptop.CreatedAt, updated.CreatedAt)
		assert.Greater(t, updated.UpdatedAt, sc.laptop.UpdatedAt)
		require.NotNil(t, updated.Category, "category untouched when not supplied")
		assert.Equal(t, "Electronics", updated.Category.Name)
		assert.Equal(t, []string{"sale", "tech"}, tagNames(updated.Tags))
	})
}

func TestUpdateItem_Errors(t *testing.T) {
	forEachBackend(t, func(t *testing.T, _ graph.Store, svc *Service) {
		ctx := context.Background()
		sc := seedScenario(t, svc)

		_, err := svc.UpdateItem(ctx, "missing", ItemInput{Name: "X"}, nil)
		assert.True(t, apperrors.IsNotFound(err))

		_, err = svc.UpdateItem(ctx, sc.laptop.ID, ItemInput{Name: ""}, nil)
		assert.True(t, apperrors.IsValidation(err))

		// An unknown category id must leave the old category and fields in place.
		_, err = svc.UpdateItem(ctx, sc.laptop.ID, ItemInput{Name: "Renamed"}, &Ref{ID: "missing"})
		assert.True(t, apperrors.IsNotFound(err))

		got, err := svc.GetItem(ctx, sc.laptop.ID)
		require.NoError(t, err)
		assert.Equal(t, "Laptop", got.Name)
		require.NotNil(t, got.Category)
		assert.Equal(t, "Electronics", got.Category.Name)
	})
}

func TestDeleteItem_KeepsTags(t *testing.T) {
	forEachBackend(t, func(t *testing.T, _ graph.Store, svc *Service) {
		ctx := context.Background()
		sc := seedScenario(t, svc)

		before, err := svc.ListTags(ctx)
		require.NoError(t, err)
		require.NoError(t, svc.DeleteItem(ctx, sc.laptop.ID))

		_, err = svc.GetItem(ctx, sc.laptop.ID)
		assert.True(t, apperrors.IsNotFound(err))

		after, err := svc.ListTags(ctx)
		require.NoError(t, err)
		require.Len(t, after, len(before), "tags survive item deletion")

		counts := map[string]int{}
		for _, tag := range before {
			counts[tag.Name] = tag.ItemCount
		}
		for _, tag := range after {
			assert.Equal(t, counts[tag.Name]-1, tag.ItemCount, tag.Name)
		}

		err = svc.DeleteItem(ctx, sc.laptop.ID)
		assert.True(t, apperrors.IsNotFound(err))
	})
}

func TestAddTag_Idempotent(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store graph.Store, svc *Service) {
		ctx := context.Background()
		sc := seedScenario(t, svc)

		first, err := svc.AddTag(ctx, sc.desk.ID, Ref{Name: "office"})
		require.NoError(t, err)
		second, err := svc.AddTag(ctx, sc.desk.ID, Ref{Name: "office"})
		require.NoError(t, err)
		assert.Equal(t, first, second)

		byID, err := svc.AddTag(ctx, sc.desk.ID, Ref{ID: first.ID})
		require.NoError(t, err)
		assert.Equal(t, first, byID)

		tags, err := svc.ListTags(ctx)
		require.NoError(t, err)
		for _, tag := range tags {
			if tag.Name == "office" {
				assert.Equal(t, 1, tag.ItemCount)
			}
		}

		require.NoError(t, store.View(ctx, func(tx graph.Tx) error {
			edges, err := tx.Edges(ctx, []graph.NodeRef{itemRef(sc.desk.ID)}, graph.Outgoing, constants.RelHasTag)
			require.NoError(t, err)
			assert.Len(t, edges, 1)
			return nil
		}))
	})
}

func TestAddTag_Errors(t *testing.T) {
	forEachBackend(t, func(t *testing.T, _ graph.Store, svc *Service) {
		ctx := context.Background()
		sc := seedScenario(t, svc)

		_, err := svc.AddTag(ctx, "missing", Ref{Name: "office"})
		assert.True(t, apperrors.IsNotFound(err))

		_, err = svc.AddTag(ctx, sc.desk.ID, Ref{Name: "  "})
		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))
		assert.Contains(t, err.Error(), "Tag name is required")

		_, err = svc.AddTag(ctx, sc.desk.ID, Ref{ID: "missing"})
		assert.True(t, apperrors.IsNotFound(err))
	})
}

func TestAddTag_Concurrent(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store graph.Store, svc *Service) {
		ctx := context.Background()
		sc := seedScenario(t, svc)

		g, gctx := errgroup.WithContext(ctx)
		for i := 0; i < 8; i++ {
			g.Go(func() error {
				_, err := svc.AddTag(gctx, sc.desk.ID, Ref{Name: "office"})
				return err
			})
		}
		require.NoError(t, g.Wait())

		require.NoError(t, store.View(ctx, func(tx graph.Tx) error {
			edges, err := tx.Edges(ctx, []graph.NodeRef{itemRef(sc.desk.ID)}, graph.Outgoing, constants.RelHasTag)
			require.NoError(t, err)
			assert.Len(t, edges, 1)

			tags, err := tx.Match(ctx, graph.Pattern{Label: constants.LabelTag, Props: graph.Props{constants.PropName: "office"}})
			require.NoError(t, err)
			assert.Len(t, tags, 1)
			return nil
		}))
	})
}

func TestRemoveTag(t *testing.T) {
	forEachBackend(t, func(t *testing.T, _ graph.Store, svc *Service) {
		ctx := context.Background()
		sc := seedScenario(t, svc)

		var saleID string
		for _, tag := range sc.laptop.Tags {
			if tag.Name == "sale" {
				saleID = tag.ID
			}
		}
		require.NotEmpty(t, saleID)

		require.NoError(t, svc.RemoveTag(ctx, sc.laptop.ID, saleID))
		require.NoError(t, svc.RemoveTag(ctx, sc.laptop.ID, saleID), "removing an absent link is not an error")
		require.NoError(t, svc.RemoveTag(ctx, "missing", saleID))

		got, err := svc.GetItem(ctx, sc.laptop.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"tech"}, tagNames(got.Tags))
	})
}

func TestListCategoriesAndTags(t *testing.T) {
	forEachBackend(t, func(t *testing.T, _ graph.Store, svc *Service) {
		ctx := context.Background()
		seedScenario(t, svc)

		categories, err := svc.ListCategories(ctx)
		require.NoError(t, err)
		require.Len(t, categories, 1)
		assert.Equal(t, "Electronics", categories[0].Name)
		assert.Equal(t, 2, categories[0].ItemCount)

		tags, err := svc.ListTags(ctx)
		require.NoError(t, err)
		require.Len(t, tags, 2)
		assert.Equal(t, "sale", tags[0].Name)
		assert.Equal(t, 1, tags[0].ItemCount)
		assert.Equal(t, "tech", tags[1].Name)
		assert.Equal(t, 2, tags[1].ItemCount)
	})
}

func TestHydrate_RejectsSecondCategory(t *testing.T) {
	store := graph.NewMemStore(StoreOptions()...)
	svc := newTestService(store)
	ctx := context.Background()
	sc := seedScenario(t, svc)

	require.NoError(t, store.Update(ctx, func(tx graph.Tx) error {
		cat, err := tx.Merge(ctx, constants.LabelCategory, constants.PropName, "Stray", graph.Props{constants.PropID: "stray"})
		if err != nil {
			return err
		}
		_, err = tx.MergeEdge(ctx, graph.Edge{Type: constants.RelBelongsTo, From: itemRef(sc.mouse.ID), To: cat.Ref()})
		return err
	}))

	_, err := svc.GetItem(ctx, sc.mouse.ID)
	require.Error(t, err)
	assert.True(t, apperrors.IsIntegrity(err))
}
