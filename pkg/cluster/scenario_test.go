package cluster_test

import (
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/sanonone/citefuse/pkg/affinity"
	"github.com/sanonone/citefuse/pkg/cluster"
	"github.com/sanonone/citefuse/pkg/fusion"
	"github.com/sanonone/citefuse/pkg/matrix"
)

// modality simulates one measurement of 50 cells drawn from four separated
// Gaussian blobs: same group structure, modality-specific centers and noise.
func modality(t *testing.T, features int, noise float64, seed int64, truth []int) *matrix.Expression {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))

	centers := make([][]float64, 4)
	for c := range centers {
		centers[c] = make([]float64, features)
		for f := range centers[c] {
			centers[c][f] = float64(c*15) + rng.NormFloat64()*2
		}
	}

	n := len(truth)
	data := mat.NewDense(features, n, nil)
	ids := make([]string, n)
	for j := 0; j < n; j++ {
		for f := 0; f < features; f++ {
			data.Set(f, j, centers[truth[j]][f]+rng.NormFloat64()*noise)
		}
		ids[j] = cellID(j)
	}
	expr, err := matrix.NewExpression(data, geneIDs(features), ids)
	if err != nil {
		t.Fatal(err)
	}
	return expr
}

func cellID(j int) string {
	return "cell-" + string(rune('a'+j/26)) + string(rune('a'+j%26))
}

func geneIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = "g-" + string(rune('a'+i/26)) + string(rune('a'+i%26))
	}
	return ids
}

// adjustedRandIndex measures agreement between two labelings, corrected
// for chance; 1 is perfect agreement.
func adjustedRandIndex(a, b []int) float64 {
	ka, kb := 0, 0
	for i := range a {
		if a[i] >= ka {
			ka = a[i] + 1
		}
		if b[i] >= kb {
			kb = b[i] + 1
		}
	}
	contingency := make([][]int, ka)
	for i := range contingency {
		contingency[i] = make([]int, kb)
	}
	rowSum := make([]int, ka)
	colSum := make([]int, kb)
	for i := range a {
		contingency[a[i]][b[i]]++
		rowSum[a[i]]++
		colSum[b[i]]++
	}

	comb2 := func(n int) float64 { return float64(n*(n-1)) / 2 }
	var sumNij, sumAi, sumBj float64
	for i := range contingency {
		for j := range contingency[i] {
			sumNij += comb2(contingency[i][j])
		}
	}
	for _, v := range rowSum {
		sumAi += comb2(v)
	}
	for _, v := range colSum {
		sumBj += comb2(v)
	}
	total := comb2(len(a))
	expected := sumAi * sumBj / total
	maxIndex := (sumAi + sumBj) / 2
	if maxIndex == expected {
		return 1
	}
	return (sumNij - expected) / (maxIndex - expected)
}

// TestFourBlobRecovery runs the full core path on two synthetic modalities:
// affinity per modality, fusion, then spectral clustering at K=4. The
// ground-truth groups must be recovered almost exactly.
func TestFourBlobRecovery(t *testing.T) {
	truth := make([]int, 50)
	for j := range truth {
		truth[j] = j % 4
	}

	rnaLike := modality(t, 40, 2.0, 101, truth)
	proteinLike := modality(t, 12, 1.5, 202, truth)

	buildOpts := affinity.Options{KNeighbors: 10, Sigma: affinity.SigmaLocal}
	affRNA, err := affinity.Build(rnaLike, buildOpts)
	if err != nil {
		t.Fatal(err)
	}
	affADT, err := affinity.Build(proteinLike, buildOpts)
	if err != nil {
		t.Fatal(err)
	}

	res, err := fusion.Fuse([]*matrix.Affinity{affRNA, affADT}, fusion.Options{
		KNeighbors: 10, MaxIter: 20, MixFraction: 0.2,
	})
	if err != nil {
		t.Fatal(err)
	}

	assign, _, err := cluster.Spectral(res.Fused, 4, cluster.SpectralOptions{Seed: 7})
	if err != nil {
		t.Fatal(err)
	}

	if ari := adjustedRandIndex(truth, assign.Labels); ari <= 0.9 {
		t.Fatalf("fused spectral clustering ARI %.3f, want > 0.9 (sizes %v)", ari, assign.Sizes())
	}
}

// TestFusionSharpensWeakModality checks that fusing a clean modality with a
// noisy one still recovers the shared structure the noisy one alone blurs.
func TestFusionSharpensWeakModality(t *testing.T) {
	truth := make([]int, 48)
	for j := range truth {
		truth[j] = j % 4
	}

	clean := modality(t, 30, 1.0, 303, truth)
	noisy := modality(t, 30, 6.0, 404, truth)

	buildOpts := affinity.Options{KNeighbors: 10, Sigma: affinity.SigmaLocal}
	affClean, err := affinity.Build(clean, buildOpts)
	if err != nil {
		t.Fatal(err)
	}
	affNoisy, err := affinity.Build(noisy, buildOpts)
	if err != nil {
		t.Fatal(err)
	}

	res, err := fusion.Fuse([]*matrix.Affinity{affClean, affNoisy}, fusion.Options{
		KNeighbors: 10, MaxIter: 20, MixFraction: 0.2,
	})
	if err != nil {
		t.Fatal(err)
	}

	assign, _, err := cluster.Spectral(res.Fused, 4, cluster.SpectralOptions{Seed: 11})
	if err != nil {
		t.Fatal(err)
	}
	if ari := adjustedRandIndex(truth, assign.Labels); ari <= 0.8 {
		t.Fatalf("fusion failed to rescue structure: ARI %.3f", ari)
	}
}
