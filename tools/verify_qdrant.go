package main

import (
	"context"
	"fmt"
	"os"

	"featloc/internal/cache"
	"featloc/internal/config"
	"featloc/internal/logging"
	"featloc/internal/qdrant"
)

// Prints the point count of every persisted embedding collection.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	qc, err := qdrant.NewClient(cfg.Qdrant, logging.NewDiscardLogger())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create qdrant client: %v\n", err)
		os.Exit(1)
	}
	defer qc.Close()

	ctx := context.Background()
	names, err := qc.ListCollections(ctx, cache.CollectionPrefix)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list collections: %v\n", err)
		os.Exit(1)
	}

	var totalPoints uint64
	for _, name := range names {
		n, err := qc.Count(ctx, name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error counting %s: %v\n", name, err)
			continue
		}
		fmt.Printf("  %s: %d points\n", name, n)
		totalPoints += n
	}

	fmt.Printf("\n✓ %d collections, %d points in total\n", len(names), totalPoints)
}
