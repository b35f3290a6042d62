package decompose

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKMeansSeparatesIdenticalGroups(t *testing.T) {
	vectors := [][]float32{
		{1, 0, 0},
		{0, 1, 0},
		{1, 0, 0},
		{0, 0, 1},
		{0, 1, 0},
	}
	labels, centroids := KMeans{Seed: 7}.Partition(vectors, 3)

	require.Len(t, labels, 5)
	require.Len(t, centroids, 3)
	assert.Equal(t, labels[0], labels[2])
	assert.Equal(t, labels[1], labels[4])
	assert.NotEqual(t, labels[0], labels[1])
	assert.NotEqual(t, labels[0], labels[3])
	assert.NotEqual(t, labels[1], labels[3])
	assert.Equal(t, []float32{1, 0, 0}, centroids[labels[0]])
	assert.Equal(t, []float32{0, 0, 1}, centroids[labels[3]])
}

func TestKMeansClampsToDistinctPoints(t *testing.T) {
	vectors := [][]float32{{2, 2}, {2, 2}, {2, 2}}
	labels, centroids := KMeans{}.Partition(vectors, 3)

	assert.Equal(t, []int{0, 0, 0}, labels)
	assert.Equal(t, [][]float32{{2, 2}}, centroids)
}

func TestKMeansFewerPointsThanClusters(t *testing.T) {
	labels, centroids := KMeans{Seed: 1}.Partition([][]float32{{0, 1}, {1, 0}}, 5)

	require.Len(t, centroids, 2)
	assert.NotEqual(t, labels[0], labels[1])
}

func TestKMeansEmptyInput(t *testing.T) {
	labels, centroids := KMeans{}.Partition(nil, 3)
	assert.Empty(t, labels)
	assert.Empty(t, centroids)
}

func TestKMeansDeterministic(t *testing.T) {
	vectors := [][]float32{
		{0.1, 0.2}, {0.15, 0.22}, {5, 5}, {5.1, 4.9}, {-3, 1}, {-3.2, 1.1}, {0.3, 0.1},
	}
	a, ca := KMeans{Seed: 42}.Partition(vectors, 3)
	b, cb := KMeans{Seed: 42}.Partition(vectors, 3)
	assert.Equal(t, a, b)
	assert.Equal(t, ca, cb)
}
