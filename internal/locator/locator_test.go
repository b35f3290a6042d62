package locator

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"featloc/internal/embeddings/embeddingstest"
	"featloc/internal/models"
)

// unitAt returns a 2-d unit vector whose cosine with (1, 0) is sim.
func unitAt(sim float64) []float32 {
	return []float32{float32(sim), float32(math.Sqrt(1 - sim*sim))}
}

func corpusOf(sims ...float64) []models.EmbeddingRecord {
	out := make([]models.EmbeddingRecord, len(sims))
	for i, s := range sims {
		out[i] = models.EmbeddingRecord{
			Embedding: unitAt(s),
			MetaInfo:  &models.CodeEntity{ID: i, Category: models.CategoryFunction},
		}
	}
	return out
}

func ids(hits []models.RetrievalHit) []int {
	out := make([]int, len(hits))
	for i, h := range hits {
		out[i] = h.MetaInfo.ID
	}
	return out
}

func TestFilterAndSortScenario(t *testing.T) {
	hits := []models.RetrievalHit{
		{Similarity: 0.9, MetaInfo: &models.CodeEntity{ID: 0}},
		{Similarity: 0.4, MetaInfo: &models.CodeEntity{ID: 1}},
		{Similarity: 0.95, MetaInfo: &models.CodeEntity{ID: 2}},
	}

	got := FilterAndSort(hits, 0.5, 2)
	require.Len(t, got, 2)
	assert.Equal(t, 0.95, got[0].Similarity)
	assert.Equal(t, 0.9, got[1].Similarity)
}

func TestFilterAndSortStableTiesAndNoLimit(t *testing.T) {
	hits := []models.RetrievalHit{
		{Similarity: 0.7, MetaInfo: &models.CodeEntity{ID: 0}},
		{Similarity: 0.8, MetaInfo: &models.CodeEntity{ID: 1}},
		{Similarity: 0.7, MetaInfo: &models.CodeEntity{ID: 2}},
		{Similarity: 0.5, MetaInfo: &models.CodeEntity{ID: 3}},
	}

	assert.Equal(t, []int{1, 0, 2, 3}, ids(FilterAndSort(hits, 0.5, 0)))
	assert.Equal(t, []int{1, 0, 2}, ids(FilterAndSort(hits, 0.6, 10)))
	assert.Empty(t, FilterAndSort(hits, 0.9, 5))
	assert.NotNil(t, FilterAndSort(nil, 0.5, 5))
}

func TestLocate(t *testing.T) {
	fake := &embeddingstest.Fake{Vectors: map[string][]float32{"init loop": {1, 0}}}
	l := New(fake)

	hits, err := l.Locate(context.Background(), "init loop", corpusOf(0.9, 0.4, 0.95), 0.5, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 0}, ids(hits))
	assert.InDelta(t, 0.95, hits[0].Similarity, 1e-6)
	assert.InDelta(t, 0.9, hits[1].Similarity, 1e-6)
}

func TestLocateEmptyCorpusSkipsEmbedder(t *testing.T) {
	fake := &embeddingstest.Fake{Err: errors.New("should not be called")}
	hits, err := New(fake).Locate(context.Background(), "anything", nil, 0.5, 5)
	require.NoError(t, err)
	assert.NotNil(t, hits)
	assert.Empty(t, hits)
	assert.Equal(t, 0, fake.Calls())
}

func TestLocateQueryEmbeddingFailure(t *testing.T) {
	fake := &embeddingstest.Fake{Err: errors.New("timeout")}
	_, err := New(fake).Locate(context.Background(), "q", corpusOf(0.9), 0.5, 5)
	assert.ErrorIs(t, err, models.ErrCollaborator)
}

func TestLocateProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	fake := &embeddingstest.Fake{Vectors: map[string][]float32{"q": {1, 0}}}
	l := New(fake)

	for round := 0; round < 100; round++ {
		sims := make([]float64, rng.Intn(20))
		for i := range sims {
			sims[i] = rng.Float64()*2 - 1
		}
		threshold := rng.Float64()*2 - 1
		topK := rng.Intn(6)
		corpus := corpusOf(sims...)

		first, err := l.Locate(context.Background(), "q", corpus, threshold, topK)
		require.NoError(t, err)
		again, err := l.Locate(context.Background(), "q", corpus, threshold, topK)
		require.NoError(t, err)
		assert.Equal(t, first, again, "same query over the same corpus is deterministic")

		if topK > 0 {
			assert.LessOrEqual(t, len(first), topK)
		}
		for i, h := range first {
			assert.GreaterOrEqual(t, h.Similarity, threshold)
			if i > 0 {
				assert.GreaterOrEqual(t, first[i-1].Similarity, h.Similarity)
			}
		}
	}
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-3, 0}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 5}), 1e-9)
	assert.Equal(t, 0.0, CosineSimilarity([]float32{1}, []float32{1, 2}))
	assert.Equal(t, 0.0, CosineSimilarity([]float32{0, 0}, []float32{1, 2}))
	assert.Equal(t, 0.0, CosineSimilarity(nil, nil))
}
