package encoding

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
)

var ErrGridSize = errors.New("grid size mismatch")

// EncodeGrid run-length encodes patch cell values (0 empty, type+1
// otherwise) as base64 of (value, run) uvarint pairs.
func EncodeGrid(cells []uint16) string {
	var buf bytes.Buffer
	var tmp [binary.MaxVarintLen64]byte
	for i := 0; i < len(cells); {
		v := cells[i]
		run := 1
		for i+run < len(cells) && cells[i+run] == v {
			run++
		}
		n := binary.PutUvarint(tmp[:], uint64(v))
		buf.Write(tmp[:n])
		n = binary.PutUvarint(tmp[:], uint64(run))
		buf.Write(tmp[:n])
		i += run
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

// DecodeGrid reverses EncodeGrid. The decoded grid must hold exactly size
// cells, which also bounds the work done on hostile input.
func DecodeGrid(b64 string, size int) ([]uint16, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	out := make([]uint16, 0, size)
	for i := 0; i < len(raw); {
		v, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		run, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		if v > 0xFFFF {
			return nil, fmt.Errorf("cell value too large: %d", v)
		}
		if run == 0 || run > uint64(size-len(out)) {
			return nil, fmt.Errorf("%w: run of %d at cell %d, size %d", ErrGridSize, run, len(out), size)
		}
		for k := uint64(0); k < run; k++ {
			out = append(out, uint16(v))
		}
	}
	if len(out) != size {
		return nil, fmt.Errorf("%w: got %d cells, want %d", ErrGridSize, len(out), size)
	}
	return out, nil
}
