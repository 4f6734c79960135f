package export

import (
	"bytes"
	"errors"
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/sanonone/citefuse/pkg/matrix"
)

func testAffinity(t *testing.T, n int, seed int64) *matrix.Affinity {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	data := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			v := rng.Float64()
			data.Set(i, j, v)
			data.Set(j, i, v)
		}
	}
	ids := make([]string, n)
	for i := range ids {
		ids[i] = "barcode-" + string(rune('a'+i))
	}
	a, err := matrix.NewAffinity(data, ids)
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func TestAffinityCSVRoundTrip(t *testing.T) {
	a := testAffinity(t, 8, 1)

	var buf bytes.Buffer
	if err := WriteAffinityCSV(&buf, a); err != nil {
		t.Fatal(err)
	}
	back, err := ReadAffinityCSV(&buf)
	if err != nil {
		t.Fatal(err)
	}

	if !a.SameCells(back) {
		t.Fatal("cell axis lost in CSV round trip")
	}
	for i := 0; i < a.N(); i++ {
		for j := 0; j < a.N(); j++ {
			if a.At(i, j) != back.At(i, j) {
				t.Fatalf("value changed at (%d,%d): %v vs %v", i, j, a.At(i, j), back.At(i, j))
			}
		}
	}
}

func TestAffinityFrameRoundTripFull(t *testing.T) {
	a := testAffinity(t, 6, 2)

	var buf bytes.Buffer
	if err := WriteAffinityFrame(&buf, a, false); err != nil {
		t.Fatal(err)
	}
	back, err := ReadAffinityFrame(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if !a.SameCells(back) {
		t.Fatal("cell axis lost in frame round trip")
	}
	for i := 0; i < a.N(); i++ {
		for j := 0; j < a.N(); j++ {
			if a.At(i, j) != back.At(i, j) {
				t.Fatalf("full precision value changed at (%d,%d)", i, j)
			}
		}
	}
}

func TestAffinityFrameRoundTripHalf(t *testing.T) {
	a := testAffinity(t, 6, 3)

	var buf bytes.Buffer
	if err := WriteAffinityFrame(&buf, a, true); err != nil {
		t.Fatal(err)
	}
	back, err := ReadAffinityFrame(&buf)
	if err != nil {
		t.Fatal(err)
	}
	// Half precision keeps ~3 decimal digits for values in [0,1].
	for i := 0; i < a.N(); i++ {
		for j := 0; j < a.N(); j++ {
			if math.Abs(a.At(i, j)-back.At(i, j)) > 1e-3 {
				t.Fatalf("half precision error too large at (%d,%d): %v vs %v",
					i, j, a.At(i, j), back.At(i, j))
			}
		}
	}
}

func TestFrameRejectsBadMagic(t *testing.T) {
	a := testAffinity(t, 4, 4)
	var buf bytes.Buffer
	if err := WriteAffinityFrame(&buf, a, false); err != nil {
		t.Fatal(err)
	}
	raw := buf.Bytes()
	raw[0] = 0x00

	_, err := ReadAffinityFrame(bytes.NewReader(raw))
	if !errors.Is(err, ErrInvalidMagic) {
		t.Fatalf("expected ErrInvalidMagic, got %v", err)
	}
}

func TestFrameDetectsCorruption(t *testing.T) {
	a := testAffinity(t, 4, 5)
	var buf bytes.Buffer
	if err := WriteAffinityFrame(&buf, a, false); err != nil {
		t.Fatal(err)
	}
	raw := buf.Bytes()
	raw[len(raw)-1] ^= 0xFF

	_, err := ReadAffinityFrame(bytes.NewReader(raw))
	if !errors.Is(err, ErrChecksumMismatch) {
		t.Fatalf("expected ErrChecksumMismatch, got %v", err)
	}
}

func TestWriteLabelsCSVShapeCheck(t *testing.T) {
	var buf bytes.Buffer
	err := WriteLabelsCSV(&buf, []string{"c1", "c2"}, []int{0})
	if !errors.Is(err, matrix.ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch, got %v", err)
	}

	if err := WriteLabelsCSV(&buf, []string{"c1", "c2"}, []int{0, 1}); err != nil {
		t.Fatal(err)
	}
	want := "cell_id,cluster\nc1,0\nc2,1\n"
	if buf.String() != want {
		t.Fatalf("unexpected CSV:\n%s", buf.String())
	}
}
