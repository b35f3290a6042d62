// Package locator ranks an encoded corpus against a natural-language query.
package locator

import (
	"context"
	"math"
	"slices"

	"featloc/internal/embeddings"
	"featloc/internal/models"
)

const (
	DefaultThreshold = 0.5
	DefaultTopK      = 5
)

type Locator struct {
	embedder embeddings.Embedder
}

func New(embedder embeddings.Embedder) *Locator {
	return &Locator{embedder: embedder}
}

// Locate embeds query and returns the corpus entries whose cosine similarity
// is at least threshold, best first, at most topK of them (topK <= 0 keeps all).
// An empty corpus returns an empty result without embedding the query. A
// failed query embedding wraps models.ErrCollaborator.
func (l *Locator) Locate(ctx context.Context, query string, corpus []models.EmbeddingRecord, threshold float64, topK int) ([]models.RetrievalHit, error) {
	if len(corpus) == 0 {
		return []models.RetrievalHit{}, nil
	}
	vec, err := embeddings.EmbedQuery(ctx, l.embedder, query)
	if err != nil {
		return nil, err
	}
	return FilterAndSort(Score(vec, corpus), threshold, topK), nil
}

// Score computes the similarity of every corpus entry to vec, in corpus order.
func Score(vec []float32, corpus []models.EmbeddingRecord) []models.RetrievalHit {
	hits := make([]models.RetrievalHit, len(corpus))
	for i, r := range corpus {
		hits[i] = models.RetrievalHit{
			Similarity: CosineSimilarity(vec, r.Embedding),
			MetaInfo:   r.MetaInfo,
		}
	}
	return hits
}

// FilterAndSort keeps hits at or above threshold, sorts them by descending
// similarity with ties in input order, and truncates to topK.
func FilterAndSort(hits []models.RetrievalHit, threshold float64, topK int) []models.RetrievalHit {
	kept := make([]models.RetrievalHit, 0, len(hits))
	for _, h := range hits {
		if h.Similarity >= threshold {
			kept = append(kept, h)
		}
	}
	slices.SortStableFunc(kept, func(a, b models.RetrievalHit) int {
		switch {
		case a.Similarity > b.Similarity:
			return -1
		case a.Similarity < b.Similarity:
			return 1
		default:
			return 0
		}
	})
	if topK > 0 && len(kept) > topK {
		kept = kept[:topK]
	}
	return kept
}

// CosineSimilarity returns 1 - cosine distance. Mismatched lengths or a zero
// vector give 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
