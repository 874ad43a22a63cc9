package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"catalog-graph/backend/internal/catalog"
	"catalog-graph/backend/internal/graph"
	"catalog-graph/backend/pkg/config"
	apperrors "catalog-graph/backend/pkg/errors"
	"catalog-graph/backend/pkg/logger"
)

type sampleItem struct {
	name        string
	description string
	price       float64
	stock       int64
	category    string
	tags        []string
}

var sampleItems = []sampleItem{
	{"Laptop", "14 inch ultrabook with 16GB RAM", 999, 12, "Electronics", []string{"tech", "sale", "portable"}},
	{"Mouse", "Wireless optical mouse", 20, 150, "Electronics", []string{"tech", "accessory"}},
	{"Mechanical Keyboard", "Hot-swappable switches, RGB backlight", 120, 40, "Electronics", []string{"tech", "accessory"}},
	{"Monitor", "27 inch 4K display", 420, 18, "Electronics", []string{"tech", "office"}},
	{"Standing Desk", "Electric height adjustable desk", 550, 7, "Furniture", []string{"office", "ergonomic"}},
	{"Office Chair", "Mesh back with lumbar support", 310, 15, "Furniture", []string{"office", "ergonomic", "sale"}},
	{"Desk Lamp", "LED lamp with dimmer", 45, 60, "Furniture", []string{"office", "home"}},
	{"Coffee Grinder", "Burr grinder with 18 settings", 85, 25, "Kitchen", []string{"home", "coffee"}},
	{"Espresso Machine", "15 bar pump espresso maker", 260, 9, "Kitchen", []string{"home", "coffee", "sale"}},
	{"Travel Mug", "Insulated stainless steel mug", 18, 200, "Kitchen", []string{"coffee", "portable"}},
	{"Backpack", "Water resistant laptop backpack", 75, 35, "Accessories", []string{"portable", "accessory"}},
	{"Notebook", "Dotted A5 notebook", 9, 300, "Stationery", nil},
}

func main() {
	reset := flag.Bool("reset", false, "Delete every item before seeding")
	skipConfirm := flag.Bool("y", false, "Skip confirmation prompt")
	concurrency := flag.Int("concurrency", 4, "Items created in parallel")
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
	log.Info("Starting catalog seeding...", zap.String("backend", cfg.StoreBackend))

	ctx := context.Background()
	store, err := graph.Open(ctx, cfg, catalog.StoreOptions()...)
	if err != nil {
		log.Fatal("Failed to open graph store", zap.Error(err))
	}
	defer store.Close(context.Background())

	svc := catalog.NewService(store)

	if *reset {
		// Warning prompt
		if !*skipConfirm {
			log.Warn("WARNING: This will DELETE ALL ITEMS from the catalog!")
			// Use fmt.Print for user input prompt (needs to go to stdout)
			fmt.Print("Are you sure you want to continue? (yes/no): ")
			var response string
			fmt.Scanln(&response)
			if response != "yes" && response != "y" {
				log.Info("Aborted.")
				os.Exit(0)
			}
		}
		deleted, err := deleteAll(ctx, svc)
		if err != nil {
			log.Fatal("Failed to reset catalog", zap.Error(err))
		}
		log.Info("Catalog reset", zap.Int("deleted", deleted))
	}

	existing, err := svc.ListItems(ctx)
	if err != nil {
		log.Fatal("Failed to list items", zap.Error(err))
	}
	if len(existing) > 0 && !*reset {
		log.Info("Catalog already has items, skipping (use -reset to reseed)", zap.Int("items", len(existing)))
		os.Exit(0)
	}

	if err := seed(ctx, svc, sampleItems, *concurrency); err != nil {
		log.Fatal("Seeding failed", zap.Error(err))
	}

	categories, _ := svc.ListCategories(ctx)
	tags, _ := svc.ListTags(ctx)
	log.Info("Seeding completed successfully!",
		zap.Int("items", len(sampleItems)),
		zap.Int("categories", len(categories)),
		zap.Int("tags", len(tags)),
	)
}

// seed creates items with at most limit in flight.
func seed(ctx context.Context, svc *catalog.Service, items []sampleItem, limit int) error {
	if limit < 1 {
		limit = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for _, item := range items {
		g.Go(func() error {
			return createSample(gctx, svc, item)
		})
	}
	return g.Wait()
}

func createSample(ctx context.Context, svc *catalog.Service, item sampleItem) error {
	price, stock := item.price, item.stock
	in := catalog.ItemInput{Name: item.name, Description: item.description, Price: &price, Stock: &stock}
	category := &catalog.Ref{Name: item.category}
	tags := make([]catalog.Ref, 0, len(item.tags))
	for _, name := range item.tags {
		tags = append(tags, catalog.Ref{Name: name})
	}

	_, err := svc.CreateItem(ctx, in, category, tags)
	if apperrors.IsIntegrity(err) {
		// Two items raced to create the same tag or category; the loser sees it now.
		_, err = svc.CreateItem(ctx, in, category, tags)
	}
	if err != nil {
		return fmt.Errorf("failed to create %q: %w", item.name, err)
	}
	return nil
}

func deleteAll(ctx context.Context, svc *catalog.Service) (int, error) {
	items, err := svc.ListItems(ctx)
	if err != nil {
		return 0, err
	}
	for _, item := range items {
		if err := svc.DeleteItem(ctx, item.ID); err != nil && !apperrors.IsNotFound(err) {
			return 0, err
		}
	}
	return len(items), nil
}
