// Package embeddings maps text to vectors through an OpenAI-compatible API or
// a Text Embeddings Inference server, and encodes entity corpora in batches.
package embeddings

import (
	"context"
	"fmt"
	"log/slog"

	"featloc/internal/config"
	"featloc/internal/logging"
	"featloc/internal/models"
)

const DefaultBatchSize = 128

// Embedder returns one vector per input text, in input order.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// New builds the embedder selected by cfg.Embedding.Provider.
func New(cfg *config.Config, logger *slog.Logger) (Embedder, error) {
	switch cfg.Embedding.Provider {
	case "openai":
		return NewOpenAIClient(cfg.OpenAI, cfg.Embedding.Model, logger), nil
	case "tei":
		return NewTEIClient(cfg.Embedding.TEIURL), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Embedding.Provider)
	}
}

// EmbedQuery embeds a single text. Failures wrap models.ErrCollaborator.
func EmbedQuery(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %v", models.ErrCollaborator, err)
	}
	if len(vectors) != 1 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("%w: embed query: got %d vectors", models.ErrCollaborator, len(vectors))
	}
	return vectors[0], nil
}

// EncodeCorpus embeds the code of every entity in batches of batchSize. Any
// batch failure aborts the whole encode so a partial corpus is never returned.
func EncodeCorpus(ctx context.Context, e Embedder, entities []*models.CodeEntity, batchSize int, logger *slog.Logger) ([]models.EmbeddingRecord, error) {
	logger = logging.OrDiscard(logger)
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}

	records := make([]models.EmbeddingRecord, 0, len(entities))
	for start := 0; start < len(entities); start += batchSize {
		end := min(start+batchSize, len(entities))
		batch := entities[start:end]

		texts := make([]string, len(batch))
		for i, ent := range batch {
			texts[i] = ent.Code
		}

		vectors, err := e.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("%w: encode entities %d-%d: %v", models.ErrCollaborator, start, end-1, err)
		}
		if len(vectors) != len(batch) {
			return nil, fmt.Errorf("%w: encode entities %d-%d: got %d vectors for %d texts",
				models.ErrCollaborator, start, end-1, len(vectors), len(batch))
		}
		for i, ent := range batch {
			records = append(records, models.EmbeddingRecord{Embedding: vectors[i], MetaInfo: ent})
		}
		logger.Debug("encoded batch", "from", start, "to", end, "total", len(entities))
	}
	return records, nil
}
