// Package relocate runs every sub-task question back through retrieval.
package relocate

import (
	"context"
	"fmt"

	"featloc/internal/models"
)

// Locator is satisfied by *locator.Locator.
type Locator interface {
	Locate(ctx context.Context, query string, corpus []models.EmbeddingRecord, threshold float64, topK int) ([]models.RetrievalHit, error)
}

// Relocate locates each descriptor against the full corpus and keeps only
// similarity, category and code of every hit. Sub-tasks are independent, so an
// entity may show up under several of them. The first failed sub-query aborts
// the loop.
func Relocate(ctx context.Context, loc Locator, corpus []models.EmbeddingRecord, descriptors []models.SubtaskDescriptor, threshold float64, topK int) ([]models.SubtaskResult, error) {
	out := make([]models.SubtaskResult, 0, len(descriptors))
	for _, d := range descriptors {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		hits, err := loc.Locate(ctx, d.Description, corpus, threshold, topK)
		if err != nil {
			return nil, fmt.Errorf("locate subtask %d: %w", d.ClusterID, err)
		}
		out = append(out, models.SubtaskResult{Subtask: d.Description, Results: Trim(hits)})
	}
	return out, nil
}

func Trim(hits []models.RetrievalHit) []models.TrimmedHit {
	out := make([]models.TrimmedHit, 0, len(hits))
	for _, h := range hits {
		t := models.TrimmedHit{Similarity: h.Similarity}
		if h.MetaInfo != nil {
			t.Category = h.MetaInfo.Category
			t.Code = h.MetaInfo.Code
		}
		out = append(out, t)
	}
	return out
}
