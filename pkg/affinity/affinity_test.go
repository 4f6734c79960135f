package affinity

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/sanonone/citefuse/pkg/matrix"
)

// blobExpression builds a features x cells matrix with one Gaussian blob
// per center, centers[i] repeated perCell times with noise sigma.
func blobExpression(t *testing.T, centers [][]float64, perCenter int, noise float64, seed int64) *matrix.Expression {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	features := len(centers[0])
	cells := len(centers) * perCenter

	data := mat.NewDense(features, cells, nil)
	ids := make([]string, cells)
	col := 0
	for b, c := range centers {
		for p := 0; p < perCenter; p++ {
			for f := 0; f < features; f++ {
				data.Set(f, col, c[f]+rng.NormFloat64()*noise)
			}
			ids[col] = blobCellID(b, p)
			col++
		}
	}
	expr, err := matrix.NewExpression(data, featureIDs(features), ids)
	if err != nil {
		t.Fatal(err)
	}
	return expr
}

func blobCellID(blob, i int) string {
	return string(rune('A'+blob)) + "-" + string(rune('0'+i/10)) + string(rune('0'+i%10))
}

func featureIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = "f" + string(rune('0'+i/10)) + string(rune('0'+i%10))
	}
	return ids
}

func TestBuildSymmetry(t *testing.T) {
	expr := blobExpression(t, [][]float64{{0, 0, 0}, {10, 10, 10}}, 10, 1.0, 1)
	for _, mode := range []SigmaMode{SigmaLocal, SigmaGlobal} {
		a, err := Build(expr, Options{KNeighbors: 5, Sigma: mode})
		if err != nil {
			t.Fatalf("%s: %v", mode, err)
		}
		n := a.N()
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				if math.Abs(a.At(i, j)-a.At(j, i)) > 1e-12 {
					t.Fatalf("%s: asymmetry at (%d,%d)", mode, i, j)
				}
				if a.At(i, j) < 0 {
					t.Fatalf("%s: negative similarity at (%d,%d)", mode, i, j)
				}
			}
			if a.At(i, i) != 0 {
				t.Fatalf("%s: nonzero diagonal at %d", mode, i)
			}
		}
	}
}

func TestBuildDeterministic(t *testing.T) {
	expr := blobExpression(t, [][]float64{{0, 0}, {5, 5}}, 8, 0.5, 2)

	a1, err := Build(expr, Options{KNeighbors: 4, Workers: 1})
	if err != nil {
		t.Fatal(err)
	}
	a2, err := Build(expr, Options{KNeighbors: 4, Workers: 7})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < a1.N(); i++ {
		for j := 0; j < a1.N(); j++ {
			if a1.At(i, j) != a2.At(i, j) {
				t.Fatalf("worker partitioning changed result at (%d,%d)", i, j)
			}
		}
	}
}

func TestBuildIdenticalCellsMaximalSimilarity(t *testing.T) {
	// Cells 0 and 1 have identical expression; their similarity must be the
	// largest off-diagonal value in their rows.
	data := mat.NewDense(2, 4, []float64{
		1, 1, 8, 3,
		2, 2, 9, 7,
	})
	expr, err := matrix.NewExpression(data, []string{"g1", "g2"}, []string{"c1", "c2", "c3", "c4"})
	if err != nil {
		t.Fatal(err)
	}
	a, err := Build(expr, Options{KNeighbors: 2})
	if err != nil {
		t.Fatal(err)
	}
	for j := 2; j < 4; j++ {
		if a.At(0, 1) < a.At(0, j) {
			t.Fatalf("identical pair less similar than distinct pair: %v < %v", a.At(0, 1), a.At(0, j))
		}
	}
}

func TestBuildDegenerateCell(t *testing.T) {
	data := mat.NewDense(3, 3, []float64{
		1, 4, 4,
		1, 5, 2,
		1, 6, 9,
	})
	expr, err := matrix.NewExpression(data, []string{"g1", "g2", "g3"}, []string{"flat", "c2", "c3"})
	if err != nil {
		t.Fatal(err)
	}
	_, err = Build(expr, Options{KNeighbors: 1, Metric: Correlation})
	if !errors.Is(err, matrix.ErrDegenerateInput) {
		t.Fatalf("expected ErrDegenerateInput, got %v", err)
	}
	var degen *matrix.DegenerateInputError
	if !errors.As(err, &degen) || degen.Cell != "flat" {
		t.Fatalf("expected degenerate cell %q, got %+v", "flat", degen)
	}
}

func TestBuildParameterValidation(t *testing.T) {
	expr := blobExpression(t, [][]float64{{0, 0}}, 5, 0.5, 3)

	if _, err := Build(expr, Options{KNeighbors: 0}); !errors.Is(err, matrix.ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter for k=0, got %v", err)
	}
	if _, err := Build(expr, Options{KNeighbors: 5}); !errors.Is(err, matrix.ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter for k=n, got %v", err)
	}
	if _, err := Build(expr, Options{KNeighbors: 2, Metric: Metric("hamming")}); !errors.Is(err, matrix.ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter for unknown metric, got %v", err)
	}
}

func TestBuildSeparatesBlobs(t *testing.T) {
	expr := blobExpression(t, [][]float64{{0, 0, 0, 0}, {20, 20, 20, 20}}, 10, 1.0, 4)
	a, err := Build(expr, Options{KNeighbors: 5})
	if err != nil {
		t.Fatal(err)
	}

	// Mean within-blob similarity should dominate cross-blob similarity.
	var within, cross float64
	var nw, nc int
	for i := 0; i < 20; i++ {
		for j := i + 1; j < 20; j++ {
			if (i < 10) == (j < 10) {
				within += a.At(i, j)
				nw++
			} else {
				cross += a.At(i, j)
				nc++
			}
		}
	}
	if within/float64(nw) <= cross/float64(nc)*2 {
		t.Fatalf("blobs not separated: within mean %v, cross mean %v", within/float64(nw), cross/float64(nc))
	}
}

func TestDistanceKernelsAgree(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	a := make([]float64, 37)
	b := make([]float64, 37)
	for i := range a {
		a[i] = rng.NormFloat64()
		b[i] = rng.NormFloat64()
	}
	goDist := euclideanGo(a, b)
	blasDist := euclideanBLAS(a, b)
	if math.Abs(goDist-blasDist) > 1e-9 {
		t.Fatalf("BLAS and pure Go kernels disagree: %v vs %v", goDist, blasDist)
	}
}

func TestCorrelationDistance(t *testing.T) {
	a := []float64{1, 2, 3, 4}
	up := []float64{2, 4, 6, 8}
	down := []float64{4, 3, 2, 1}

	if d := correlationDistance(a, up); math.Abs(d) > 1e-12 {
		t.Fatalf("perfectly correlated profiles: distance %v, want 0", d)
	}
	if d := correlationDistance(a, down); math.Abs(d-2) > 1e-12 {
		t.Fatalf("anti-correlated profiles: distance %v, want 2", d)
	}
}
