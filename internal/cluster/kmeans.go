// Package cluster groups embedded notes with K-means and persists the result.
package cluster

import (
	"math"
	"math/rand"
)

const maxIterations = 100

// kmeans runs K-means with k-means++ seeding over unit-length vectors.
// Returns the centroids and the assignment of each input vector to a centroid.
func kmeans(vectors [][]float32, k int, rng *rand.Rand) (centroids [][]float32, assignments []int) {
	n := len(vectors)
	if n == 0 || k <= 0 {
		return nil, nil
	}
	if k > n {
		k = n
	}

	centroids = seedPlusPlus(vectors, k, rng)
	assignments = make([]int, n)

	for iter := 0; iter < maxIterations; iter++ {
		changed := false
		for i, v := range vectors {
			best := nearestCentroid(v, centroids)
			if best != assignments[i] {
				assignments[i] = best
				changed = true
			}
		}
		if !changed && iter > 0 {
			break
		}
		recomputeCentroids(vectors, assignments, centroids, rng)
	}
	return centroids, assignments
}

// seedPlusPlus picks initial centroids with probability proportional to
// squared distance from the nearest already-chosen centroid.
func seedPlusPlus(vectors [][]float32, k int, rng *rand.Rand) [][]float32 {
	n := len(vectors)
	centroids := make([][]float32, 0, k)
	centroids = append(centroids, cloneVec(vectors[rng.Intn(n)]))

	dists := make([]float64, n)
	for len(centroids) < k {
		total := 0.0
		for i, v := range vectors {
			d := sqDistance(v, centroids[nearestCentroid(v, centroids)])
			dists[i] = d
			total += d
		}
		if total == 0 {
			// All points coincide with a centroid; fill the rest arbitrarily.
			centroids = append(centroids, cloneVec(vectors[rng.Intn(n)]))
			continue
		}
		target := rng.Float64() * total
		acc := 0.0
		picked := n - 1
		for i, d := range dists {
			acc += d
			if acc >= target {
				picked = i
				break
			}
		}
		centroids = append(centroids, cloneVec(vectors[picked]))
	}
	return centroids
}

func recomputeCentroids(vectors [][]float32, assignments []int, centroids [][]float32, rng *rand.Rand) {
	dim := len(vectors[0])
	sums := make([][]float64, len(centroids))
	counts := make([]int, len(centroids))
	for i := range sums {
		sums[i] = make([]float64, dim)
	}
	for i, v := range vectors {
		c := assignments[i]
		counts[c]++
		for j, x := range v {
			sums[c][j] += float64(x)
		}
	}
	for c := range centroids {
		if counts[c] == 0 {
			// Empty cluster: reseed from a random point.
			centroids[c] = cloneVec(vectors[rng.Intn(len(vectors))])
			continue
		}
		for j := range centroids[c] {
			centroids[c][j] = float32(sums[c][j] / float64(counts[c]))
		}
	}
}

func nearestCentroid(v []float32, centroids [][]float32) int {
	best := 0
	bestDist := math.Inf(1)
	for i, c := range centroids {
		d := sqDistance(v, c)
		if d < bestDist {
			bestDist = d
			best = i
		}
	}
	return best
}

func sqDistance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}

func cloneVec(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
