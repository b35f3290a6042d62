package relocate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"featloc/internal/embeddings/embeddingstest"
	"featloc/internal/locator"
	"featloc/internal/models"
)

func corpus() []models.EmbeddingRecord {
	return []models.EmbeddingRecord{
		{Embedding: []float32{1, 0}, MetaInfo: &models.CodeEntity{ID: 0, Category: models.CategoryFunction, Code: "void open_file() {}"}},
		{Embedding: []float32{0.8, 0.6}, MetaInfo: &models.CodeEntity{ID: 1, Category: models.CategoryFunction, Code: "void read_path() {}"}},
		{Embedding: []float32{0, 1}, MetaInfo: &models.CodeEntity{ID: 2, Category: models.CategoryStruct, Code: "struct timer {};"}},
	}
}

func TestRelocate(t *testing.T) {
	embedder := &embeddingstest.Fake{Vectors: map[string][]float32{
		"what opens files?":  {1, 0},
		"what runs timers?":  {0, 1},
		"what draws pixels?": {-1, 0},
	}}
	loc := locator.New(embedder)
	descriptors := []models.SubtaskDescriptor{
		{ClusterID: 0, Description: "what opens files?"},
		{ClusterID: 1, Description: "what runs timers?"},
		{ClusterID: 2, Description: "what draws pixels?"},
	}

	out, err := Relocate(context.Background(), loc, corpus(), descriptors, 0.5, 5)
	require.NoError(t, err)
	require.Len(t, out, 3)

	assert.Equal(t, "what opens files?", out[0].Subtask)
	require.Len(t, out[0].Results, 2)
	assert.Equal(t, "void open_file() {}", out[0].Results[0].Code)
	assert.InDelta(t, 1.0, out[0].Results[0].Similarity, 1e-6)
	assert.Equal(t, "void read_path() {}", out[0].Results[1].Code)

	// read_path is shared between the first two sub-tasks
	require.Len(t, out[1].Results, 2)
	assert.Equal(t, models.CategoryStruct, out[1].Results[0].Category)
	assert.Equal(t, "void read_path() {}", out[1].Results[1].Code)

	assert.NotNil(t, out[2].Results)
	assert.Empty(t, out[2].Results)
}

func TestRelocateNoDescriptors(t *testing.T) {
	embedder := &embeddingstest.Fake{Default: []float32{1, 0}}
	out, err := Relocate(context.Background(), locator.New(embedder), corpus(), nil, 0.5, 5)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Zero(t, embedder.Calls())
}

func TestRelocateAbortsOnFailedSubquery(t *testing.T) {
	embedder := &embeddingstest.Fake{
		Default: []float32{1, 0},
		FailOn:  "broken",
		Err:     errors.New("timeout"),
	}
	descriptors := []models.SubtaskDescriptor{
		{ClusterID: 0, Description: "fine"},
		{ClusterID: 1, Description: "broken"},
	}
	_, err := Relocate(context.Background(), locator.New(embedder), corpus(), descriptors, 0.5, 5)
	assert.ErrorIs(t, err, models.ErrCollaborator)
}

func TestTrim(t *testing.T) {
	hits := []models.RetrievalHit{
		{Similarity: 0.7, MetaInfo: &models.CodeEntity{Category: models.CategoryEnum, Code: "enum e {};", Summary: "dropped"}},
		{Similarity: 0.6},
	}
	assert.Equal(t, []models.TrimmedHit{
		{Similarity: 0.7, Category: models.CategoryEnum, Code: "enum e {};"},
		{Similarity: 0.6},
	}, Trim(hits))
}
