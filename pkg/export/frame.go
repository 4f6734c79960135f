package export

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"math"

	"github.com/x448/float16"
	"gonum.org/v1/gonum/mat"

	"github.com/sanonone/citefuse/pkg/matrix"
)

// Binary affinity frame.
//
// Layout: [Magic(1)][Precision(1)][CellCount(4)][CRC(4)]
//         [len(1..)+cellID ...][payload]
// The CRC covers the cell-ID block and the payload. Similarity values are
// stored row-major; with PrecisionHalf each value is an IEEE 754 half
// float, trading ~3 decimal digits for half the file size, which is the
// usual choice for affinities in [0,1].
const (
	// frameMagic marks the start of a valid affinity frame.
	frameMagic = 0xC7

	// PrecisionFull stores float64 values.
	PrecisionFull = 0x00
	// PrecisionHalf stores float16 values.
	PrecisionHalf = 0x01
)

var (
	// ErrInvalidMagic indicates the stream is not an affinity frame.
	ErrInvalidMagic = errors.New("invalid frame magic")
	// ErrChecksumMismatch indicates payload corruption.
	ErrChecksumMismatch = errors.New("crc32 checksum mismatch")
)

// WriteAffinityFrame serializes an affinity matrix in the binary frame
// format. compact selects the half-precision payload.
func WriteAffinityFrame(w io.Writer, aff *matrix.Affinity, compact bool) error {
	n := aff.N()
	cells := aff.Cells()

	body := make([]byte, 0, n*16)
	var scratch [8]byte
	for _, id := range cells {
		binary.LittleEndian.PutUint32(scratch[:4], uint32(len(id)))
		body = append(body, scratch[:4]...)
		body = append(body, id...)
	}

	precision := byte(PrecisionFull)
	if compact {
		precision = PrecisionHalf
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			v := aff.At(i, j)
			if compact {
				bits := float16.Fromfloat32(float32(v)).Bits()
				binary.LittleEndian.PutUint16(scratch[:2], bits)
				body = append(body, scratch[:2]...)
			} else {
				binary.LittleEndian.PutUint64(scratch[:8], math.Float64bits(v))
				body = append(body, scratch[:8]...)
			}
		}
	}

	header := make([]byte, 10)
	header[0] = frameMagic
	header[1] = precision
	binary.LittleEndian.PutUint32(header[2:6], uint32(n))
	binary.LittleEndian.PutUint32(header[6:10], crc32.ChecksumIEEE(body))

	bw := bufio.NewWriter(w)
	if _, err := bw.Write(header); err != nil {
		return err
	}
	if _, err := bw.Write(body); err != nil {
		return err
	}
	return bw.Flush()
}

// ReadAffinityFrame reads a frame written by WriteAffinityFrame, verifying
// the magic byte and checksum.
func ReadAffinityFrame(r io.Reader) (*matrix.Affinity, error) {
	header := make([]byte, 10)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("export: read frame header: %w", err)
	}
	if header[0] != frameMagic {
		return nil, ErrInvalidMagic
	}
	precision := header[1]
	if precision != PrecisionFull && precision != PrecisionHalf {
		return nil, fmt.Errorf("export: unknown precision byte 0x%02x", precision)
	}
	n := int(binary.LittleEndian.Uint32(header[2:6]))
	wantCRC := binary.LittleEndian.Uint32(header[6:10])

	body, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("export: read frame body: %w", err)
	}
	if crc32.ChecksumIEEE(body) != wantCRC {
		return nil, ErrChecksumMismatch
	}

	cells := make([]string, n)
	off := 0
	for i := 0; i < n; i++ {
		if off+4 > len(body) {
			return nil, fmt.Errorf("export: truncated cell-ID block")
		}
		l := int(binary.LittleEndian.Uint32(body[off : off+4]))
		off += 4
		if off+l > len(body) {
			return nil, fmt.Errorf("export: truncated cell ID %d", i)
		}
		cells[i] = string(body[off : off+l])
		off += l
	}

	valueSize := 8
	if precision == PrecisionHalf {
		valueSize = 2
	}
	if len(body)-off != n*n*valueSize {
		return nil, fmt.Errorf("export: payload size %d does not match %d cells", len(body)-off, n)
	}

	data := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			var v float64
			if precision == PrecisionHalf {
				bits := binary.LittleEndian.Uint16(body[off : off+2])
				v = float64(float16.Frombits(bits).Float32())
				off += 2
			} else {
				v = math.Float64frombits(binary.LittleEndian.Uint64(body[off : off+8]))
				off += 8
			}
			data.Set(i, j, v)
		}
	}
	return matrix.NewAffinity(data, cells)
}
