// Package decompose splits one located query into sub-task questions by
// clustering the descriptions of its hits.
package decompose

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"featloc/internal/embeddings"
	"featloc/internal/locator"
	"featloc/internal/logging"
	"featloc/internal/models"
)

const DefaultClusters = 3

// Describer turns the text of one cluster into a single sub-task question.
// On failure it still returns a usable description, typically
// models.SubtaskFailedMarker.
type Describer interface {
	DescribeCluster(ctx context.Context, clusterText string) (string, error)
}

type Engine struct {
	embedder    embeddings.Embedder
	describer   Describer
	partitioner Partitioner
	clusters    int
	logger      *slog.Logger
}

type Option func(*Engine)

func WithClusters(k int) Option {
	return func(e *Engine) {
		if k > 0 {
			e.clusters = k
		}
	}
}

func WithPartitioner(p Partitioner) Option {
	return func(e *Engine) { e.partitioner = p }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = logging.OrDiscard(l) }
}

func NewEngine(embedder embeddings.Embedder, describer Describer, opts ...Option) *Engine {
	e := &Engine{
		embedder:    embedder,
		describer:   describer,
		partitioner: KMeans{},
		clusters:    DefaultClusters,
		logger:      logging.NewDiscardLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AggregateText joins an entity's summary with the summaries of everything it
// calls, one per line. Empty parts are skipped.
func AggregateText(entity *models.CodeEntity) string {
	if entity == nil {
		return ""
	}
	var parts []string
	if entity.Summary != "" {
		parts = append(parts, entity.Summary)
	}
	for _, rel := range entity.Relations {
		if rel.SummaryTo != "" {
			parts = append(parts, rel.SummaryTo)
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

type cluster struct {
	label int
	score float64
	texts []string
}

// Decompose clusters the aggregated hit descriptions and asks the describer
// for one question per cluster. Clusters closest to the query come first and
// ClusterID is the output position. Hits without any description text are
// ignored; when none remain the result is empty and no collaborator is called.
func (e *Engine) Decompose(ctx context.Context, query string, hits []models.RetrievalHit) ([]models.SubtaskDescriptor, error) {
	blobs := make([]string, 0, len(hits))
	for _, h := range hits {
		if text := AggregateText(h.MetaInfo); text != "" {
			blobs = append(blobs, text)
		}
	}
	if len(blobs) == 0 {
		return []models.SubtaskDescriptor{}, nil
	}

	vectors, err := e.embedder.EmbedBatch(ctx, append(slices.Clone(blobs), query))
	if err != nil {
		return nil, fmt.Errorf("%w: embed descriptions: %v", models.ErrCollaborator, err)
	}
	if len(vectors) != len(blobs)+1 {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts", models.ErrCollaborator, len(vectors), len(blobs)+1)
	}
	queryVec := vectors[len(blobs)]

	labels, centroids := e.partitioner.Partition(vectors[:len(blobs)], e.clusters)
	clusters := make([]*cluster, len(centroids))
	for i, c := range centroids {
		clusters[i] = &cluster{label: i, score: locator.CosineSimilarity(c, queryVec)}
	}
	for i, l := range labels {
		if l >= 0 && l < len(clusters) {
			clusters[l].texts = append(clusters[l].texts, blobs[i])
		}
	}
	clusters = slices.DeleteFunc(clusters, func(c *cluster) bool { return len(c.texts) == 0 })
	slices.SortStableFunc(clusters, func(a, b *cluster) int {
		switch {
		case a.score > b.score:
			return -1
		case a.score < b.score:
			return 1
		default:
			return a.label - b.label
		}
	})

	e.logger.Debug("decomposed query", "query", query, "descriptions", len(blobs), "clusters", len(clusters))

	out := make([]models.SubtaskDescriptor, 0, len(clusters))
	for _, c := range clusters {
		desc, err := e.describer.DescribeCluster(ctx, strings.Join(c.texts, "\n"))
		if err != nil {
			e.logger.Warn("cluster description failed", "cluster", c.label, "error", err)
		}
		if desc == "" {
			desc = models.SubtaskFailedMarker
		}
		out = append(out, models.SubtaskDescriptor{ClusterID: len(out), Description: desc})
	}
	return out, nil
}
