package cluster

import (
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// kMeans runs Lloyd's algorithm with k-means++ seeding on the rows of
// points. All randomness comes from rng, so a fixed seed gives fixed
// labels. Labels are dense from 0.
//
// This is hand-rolled rather than taken from a clustering library because
// reproducibility requires every random draw to come from an injected
// source, which the available library implementations do not offer.
func kMeans(points *mat.Dense, k int, rng *rand.Rand, maxIter int) []int {
	n, _ := points.Dims()
	if k > n {
		k = n
	}

	centroids := plusPlusInit(points, k, rng)
	labels := make([]int, n)
	counts := make([]int, k)

	for iter := 0; iter < maxIter; iter++ {
		changed := false
		for i := 0; i < n; i++ {
			best, bestDist := 0, floats.Distance(points.RawRowView(i), centroids[0], 2)
			for c := 1; c < k; c++ {
				if d := floats.Distance(points.RawRowView(i), centroids[c], 2); d < bestDist {
					best, bestDist = c, d
				}
			}
			if labels[i] != best {
				changed = true
				labels[i] = best
			}
		}
		if iter > 0 && !changed {
			break
		}

		// Recompute centroids.
		for c := range centroids {
			for j := range centroids[c] {
				centroids[c][j] = 0
			}
			counts[c] = 0
		}
		for i := 0; i < n; i++ {
			floats.Add(centroids[labels[i]], points.RawRowView(i))
			counts[labels[i]]++
		}
		for c := 0; c < k; c++ {
			if counts[c] == 0 {
				// Reseed an empty cluster from the point farthest from its
				// current centroid.
				far, farDist := 0, -1.0
				for i := 0; i < n; i++ {
					if d := floats.Distance(points.RawRowView(i), centroids[labels[i]], 2); d > farDist && counts[labels[i]] > 1 {
						far, farDist = i, d
					}
				}
				counts[labels[far]]--
				labels[far] = c
				counts[c] = 1
				copy(centroids[c], points.RawRowView(far))
				continue
			}
			floats.Scale(1/float64(counts[c]), centroids[c])
		}
	}
	return labels
}

// plusPlusInit picks k starting centroids with the k-means++ scheme: the
// first uniformly, the rest weighted by squared distance to the nearest
// already-chosen centroid.
func plusPlusInit(points *mat.Dense, k int, rng *rand.Rand) [][]float64 {
	n, dims := points.Dims()
	centroids := make([][]float64, 0, k)

	first := rng.Intn(n)
	centroids = append(centroids, append([]float64(nil), points.RawRowView(first)...))

	dist2 := make([]float64, n)
	for len(centroids) < k {
		var total float64
		for i := 0; i < n; i++ {
			best := floats.Distance(points.RawRowView(i), centroids[0], 2)
			for _, c := range centroids[1:] {
				if d := floats.Distance(points.RawRowView(i), c, 2); d < best {
					best = d
				}
			}
			dist2[i] = best * best
			total += dist2[i]
		}
		next := 0
		if total > 0 {
			r := rng.Float64() * total
			for i := 0; i < n; i++ {
				r -= dist2[i]
				if r <= 0 {
					next = i
					break
				}
			}
		} else {
			next = rng.Intn(n)
		}
		c := make([]float64, dims)
		copy(c, points.RawRowView(next))
		centroids = append(centroids, c)
	}
	return centroids
}
