package decompose

import (
	"math"
	"math/rand/v2"
)

const defaultMaxIter = 300

// Partitioner splits vectors into at most k groups. labels[i] indexes into
// centroids.
type Partitioner interface {
	Partition(vectors [][]float32, k int) (labels []int, centroids [][]float32)
}

// KMeans is Lloyd's algorithm seeded with k-means++. The same Seed always
// yields the same partition for the same input.
type KMeans struct {
	Seed    uint64
	MaxIter int
}

func (km KMeans) Partition(vectors [][]float32, k int) ([]int, [][]float32) {
	n := len(vectors)
	if n == 0 || k < 1 {
		return []int{}, [][]float32{}
	}
	points := make([][]float64, n)
	for i, v := range vectors {
		points[i] = toFloat64(v)
	}
	if d := distinctCount(points); k > d {
		k = d
	}

	rng := rand.New(rand.NewPCG(km.Seed, km.Seed^0x9e3779b97f4a7c15))
	centers := seedCenters(points, k, rng)

	maxIter := km.MaxIter
	if maxIter <= 0 {
		maxIter = defaultMaxIter
	}

	labels := make([]int, n)
	for i := range labels {
		labels[i] = -1
	}
	for iter := 0; iter < maxIter; iter++ {
		changed := false
		for i, p := range points {
			best := nearest(p, centers)
			if best != labels[i] {
				labels[i] = best
				changed = true
			}
		}
		if !changed {
			break
		}
		recomputeCenters(points, labels, centers)
	}

	out := make([][]float32, len(centers))
	for i, c := range centers {
		out[i] = toFloat32(c)
	}
	return labels, out
}

// seedCenters picks the first center uniformly and each next one with
// probability proportional to its squared distance from the closest center.
func seedCenters(points [][]float64, k int, rng *rand.Rand) [][]float64 {
	centers := make([][]float64, 0, k)
	centers = append(centers, clone(points[rng.IntN(len(points))]))

	dist := make([]float64, len(points))
	for len(centers) < k {
		var total float64
		for i, p := range points {
			dist[i] = sqDist(p, centers[nearest(p, centers)])
			total += dist[i]
		}
		if total == 0 {
			break
		}
		target := rng.Float64() * total
		pick := -1
		for i, d := range dist {
			if d == 0 {
				continue
			}
			pick = i
			target -= d
			if target < 0 {
				break
			}
		}
		centers = append(centers, clone(points[pick]))
	}
	return centers
}

// recomputeCenters moves each center to the mean of its members. A center
// that lost all members stays where it is.
func recomputeCenters(points [][]float64, labels []int, centers [][]float64) {
	dim := len(centers[0])
	sums := make([][]float64, len(centers))
	counts := make([]int, len(centers))
	for i := range sums {
		sums[i] = make([]float64, dim)
	}
	for i, p := range points {
		l := labels[i]
		counts[l]++
		for d := range p {
			sums[l][d] += p[d]
		}
	}
	for c := range centers {
		if counts[c] == 0 {
			continue
		}
		for d := range sums[c] {
			centers[c][d] = sums[c][d] / float64(counts[c])
		}
	}
}

// nearest returns the index of the closest center, lowest index on ties.
func nearest(p []float64, centers [][]float64) int {
	best, bestDist := 0, math.Inf(1)
	for i, c := range centers {
		if d := sqDist(p, c); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

func sqDist(a, b []float64) float64 {
	var s float64
	for i := range a {
		if i >= len(b) {
			break
		}
		d := a[i] - b[i]
		s += d * d
	}
	return s
}

func distinctCount(points [][]float64) int {
	seen := make(map[string]struct{}, len(points))
	buf := make([]byte, 0, 64)
	for _, p := range points {
		buf = buf[:0]
		for _, x := range p {
			bits := math.Float64bits(x)
			for s := 0; s < 64; s += 8 {
				buf = append(buf, byte(bits>>s))
			}
		}
		seen[string(buf)] = struct{}{}
	}
	return len(seen)
}

func clone(v []float64) []float64 {
	return append([]float64(nil), v...)
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}
