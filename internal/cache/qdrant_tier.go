package cache

import (
	"context"
	"fmt"

	qdrantpb "github.com/qdrant/go-client/qdrant"

	"featloc/internal/entity"
	"featloc/internal/models"
	"featloc/internal/qdrant"
)

// CollectionPrefix names every collection owned by the persistent tier.
const CollectionPrefix = "featloc_"

const (
	upsertBatchSize = 256
	scrollPageSize  = 256
)

// pointStore is the subset of *qdrant.Client the tier uses.
type pointStore interface {
	CollectionExists(ctx context.Context, name string) (bool, error)
	EnsureCollection(ctx context.Context, name string, vectorSize uint64) error
	Upsert(ctx context.Context, collectionName string, points []*qdrantpb.PointStruct) error
	Scroll(ctx context.Context, collectionName string, limit uint32, offset *qdrantpb.PointId) ([]*qdrantpb.RetrievedPoint, *qdrantpb.PointId, error)
}

// QdrantTier keeps one collection per corpus fingerprint. Points carry the
// entity id, so loading needs the matching store to rebuild MetaInfo.
type QdrantTier struct {
	client pointStore
}

func NewQdrantTier(client *qdrant.Client) *QdrantTier {
	return &QdrantTier{client: client}
}

func CollectionName(fingerprint string) string {
	if len(fingerprint) > 16 {
		fingerprint = fingerprint[:16]
	}
	return CollectionPrefix + fingerprint
}

// Load returns ok=false when the collection is missing or does not cover
// every entity of store.
func (t *QdrantTier) Load(ctx context.Context, fingerprint string, store *entity.Store) ([]models.EmbeddingRecord, bool, error) {
	name := CollectionName(fingerprint)
	exists, err := t.client.CollectionExists(ctx, name)
	if err != nil {
		return nil, false, fmt.Errorf("check collection %s: %w", name, err)
	}
	if !exists {
		return nil, false, nil
	}

	vectors := make(map[int][]float32, store.Len())
	var offset *qdrantpb.PointId
	for {
		points, next, err := t.client.Scroll(ctx, name, scrollPageSize, offset)
		if err != nil {
			return nil, false, fmt.Errorf("scroll %s: %w", name, err)
		}
		for _, p := range points {
			payload := qdrant.PayloadToMap(p.GetPayload())
			if payload["fingerprint"] != fingerprint {
				continue
			}
			if vec := qdrant.PointVector(p); vec != nil {
				vectors[int(p.GetId().GetNum())] = vec
			}
		}
		if next == nil || len(points) == 0 {
			break
		}
		offset = next
	}

	records := make([]models.EmbeddingRecord, 0, store.Len())
	for _, e := range store.Entities() {
		vec, ok := vectors[e.ID]
		if !ok {
			return nil, false, nil
		}
		records = append(records, models.EmbeddingRecord{Embedding: vec, MetaInfo: e})
	}
	return records, true, nil
}

func (t *QdrantTier) Store(ctx context.Context, fingerprint string, records []models.EmbeddingRecord) error {
	if len(records) == 0 {
		return nil
	}
	name := CollectionName(fingerprint)
	if err := t.client.EnsureCollection(ctx, name, uint64(len(records[0].Embedding))); err != nil {
		return fmt.Errorf("ensure collection %s: %w", name, err)
	}

	for start := 0; start < len(records); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(records))
		points := make([]*qdrantpb.PointStruct, 0, end-start)
		for _, r := range records[start:end] {
			points = append(points, qdrant.NewPoint(uint64(r.MetaInfo.ID), r.Embedding, map[string]any{
				"fingerprint": fingerprint,
				"category":    string(r.MetaInfo.Category),
				"fileName":    r.MetaInfo.FileName,
				"startLine":   r.MetaInfo.StartLine,
			}))
		}
		if err := t.client.Upsert(ctx, name, points); err != nil {
			return fmt.Errorf("upsert into %s: %w", name, err)
		}
	}
	return nil
}
