package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"featloc/internal/analyzer"
	"featloc/internal/cache"
	"featloc/internal/callgraph"
	"featloc/internal/config"
	"featloc/internal/decompose"
	"featloc/internal/embeddings"
	"featloc/internal/indexer"
	"featloc/internal/llm"
	"featloc/internal/locator"
	"featloc/internal/models"
	"featloc/internal/qdrant"
)

// Build wires every collaborator named by cfg. The caller owns Close.
func Build(cfg *config.Config, logger *slog.Logger) (*Engine, error) {
	embedder, err := embeddings.New(cfg, logger)
	if err != nil {
		return nil, err
	}
	llmClient := llm.NewClient(cfg, logger)

	encoder := cache.EncoderFunc(func(ctx context.Context, entities []*models.CodeEntity) ([]models.EmbeddingRecord, error) {
		return embeddings.EncodeCorpus(ctx, embedder, entities, cfg.Embedding.BatchSize, logger)
	})
	cacheOpts := []cache.Option{cache.WithLogger(logger)}

	var closers []io.Closer
	if cfg.Qdrant.Enabled {
		qc, err := qdrant.NewClient(cfg.Qdrant, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
		}
		closers = append(closers, qc)
		cacheOpts = append(cacheOpts, cache.WithPersistentTier(cache.NewQdrantTier(qc)))
	}

	idx := indexer.NewIndexer(llmClient, cfg.OutputDir,
		indexer.WithChainOptions(callgraph.ChainOptions{
			MaxDepth:         cfg.Chains.MaxDepth,
			MaxChainsPerRoot: cfg.Chains.MaxPerRoot,
		}),
		indexer.WithLogger(logger),
	)

	return New(Options{
		OutputDir: cfg.OutputDir,
		Threshold: cfg.Locate.Threshold,
		TopK:      cfg.Locate.TopK,
	}, Deps{
		Indexer:    idx,
		Cache:      cache.New(encoder, cfg.Cache.Capacity, cacheOpts...),
		Locator:    locator.New(embedder),
		Decomposer: decompose.NewEngine(embedder, llmClient, decompose.WithClusters(cfg.Decompose.Clusters), decompose.WithLogger(logger)),
		Analyzer:   analyzer.NewAnalyzer(llmClient, logger),
		Logger:     logger,
		Closers:    closers,
	}), nil
}
