package index

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

const (
	matrixMagic      = "EVEC"
	matrixVersion    = uint32(1)
	matrixHeaderSize = 16
)

type matrixHeader struct {
	Magic   [4]byte
	Version uint32
	Rows    uint32
	Cols    uint32
}

// writeMatrix writes m to path as a fixed header followed by row-major
// little-endian float32 values.
func writeMatrix(path string, m Matrix) error {
	if len(m.Data) != m.Rows*m.Cols {
		return fmt.Errorf("%w: matrix has %d values, want %d", ErrVectorLengthMismatch, len(m.Data), m.Rows*m.Cols)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("cannot create matrix file %s: %w", path, err)
	}
	h := matrixHeader{Version: matrixVersion, Rows: uint32(m.Rows), Cols: uint32(m.Cols)}
	copy(h.Magic[:], matrixMagic)
	if err := binary.Write(f, binary.LittleEndian, h); err != nil {
		_ = f.Close()
		return fmt.Errorf("cannot write matrix header %s: %w", path, err)
	}
	if err := binary.Write(f, binary.LittleEndian, m.Data); err != nil {
		_ = f.Close()
		return fmt.Errorf("cannot write matrix %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// readMatrix reads a matrix written by writeMatrix. A missing file yields
// ErrStoreNotFound; a malformed one an *IntegrityError.
func readMatrix(path string) (Matrix, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Matrix{}, fmt.Errorf("%w: %s", ErrStoreNotFound, path)
		}
		return Matrix{}, fmt.Errorf("cannot open matrix file %s: %w", path, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return Matrix{}, fmt.Errorf("cannot stat matrix file %s: %w", path, err)
	}
	if st.Size() < matrixHeaderSize {
		return Matrix{}, &IntegrityError{Path: path, Reason: fmt.Sprintf("file too short: %d bytes", st.Size())}
	}

	var h matrixHeader
	if err := binary.Read(f, binary.LittleEndian, &h); err != nil {
		return Matrix{}, &IntegrityError{Path: path, Reason: "cannot read header: " + err.Error()}
	}
	if string(h.Magic[:]) != matrixMagic {
		return Matrix{}, &IntegrityError{Path: path, Reason: fmt.Sprintf("bad magic %q", h.Magic[:])}
	}
	if h.Version != matrixVersion {
		return Matrix{}, &IntegrityError{Path: path, Reason: fmt.Sprintf("unsupported version %d", h.Version)}
	}

	expected := int64(h.Rows) * int64(h.Cols) * 4
	if got := st.Size() - matrixHeaderSize; got != expected {
		return Matrix{}, &IntegrityError{Path: path, Reason: fmt.Sprintf("data size mismatch: got %d want %d (rows=%d cols=%d)", got, expected, h.Rows, h.Cols)}
	}

	m := Matrix{Rows: int(h.Rows), Cols: int(h.Cols), Data: make([]float32, int(h.Rows)*int(h.Cols))}
	if err := binary.Read(io.LimitReader(f, expected), binary.LittleEndian, m.Data); err != nil {
		return Matrix{}, fmt.Errorf("cannot read matrix from %s: %w", path, err)
	}
	return m, nil
}
