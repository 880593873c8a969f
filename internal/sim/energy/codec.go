package energy

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// Wire form of every function: little-endian uint64 tag, uint64 argument
// count, then the arguments as float64 bits.

// maxWireArgs bounds decoding of corrupt input.
const maxWireArgs = 1 << 16

var ErrCorrupt = errors.New("corrupt energy function encoding")

func appendFunction(dst []byte, tag uint64, args []float64) []byte {
	dst = binary.LittleEndian.AppendUint64(dst, tag)
	dst = binary.LittleEndian.AppendUint64(dst, uint64(len(args)))
	for _, a := range args {
		dst = binary.LittleEndian.AppendUint64(dst, math.Float64bits(a))
	}
	return dst
}

func readFunction(r io.Reader) (uint64, []float64, error) {
	var hdr [16]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, nil, err
	}
	tag := binary.LittleEndian.Uint64(hdr[0:8])
	n := binary.LittleEndian.Uint64(hdr[8:16])
	if n > maxWireArgs {
		return 0, nil, fmt.Errorf("%w: %d arguments", ErrCorrupt, n)
	}
	if n == 0 {
		return tag, nil, nil
	}
	raw := make([]byte, 8*n)
	if _, err := io.ReadFull(r, raw); err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	args := make([]float64, n)
	for i := range args {
		args[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[8*i:]))
	}
	return tag, args, nil
}

func decodeExact(b []byte) (uint64, []float64, error) {
	r := bytes.NewReader(b)
	tag, args, err := readFunction(r)
	if err != nil {
		return 0, nil, err
	}
	if r.Len() != 0 {
		return 0, nil, fmt.Errorf("%w: %d trailing bytes", ErrCorrupt, r.Len())
	}
	return tag, args, nil
}

func (f Intensity) MarshalBinary() ([]byte, error) {
	return appendFunction(nil, uint64(f.tag), f.args), nil
}

func (f *Intensity) UnmarshalBinary(b []byte) error {
	tag, args, err := decodeExact(b)
	if err != nil {
		return err
	}
	g, err := NewIntensity(IntensityTag(tag), args)
	if err != nil {
		return err
	}
	*f = g
	return nil
}

func (f Interaction) MarshalBinary() ([]byte, error) {
	return appendFunction(nil, uint64(f.tag), f.args), nil
}

func (f *Interaction) UnmarshalBinary(b []byte) error {
	tag, args, err := decodeExact(b)
	if err != nil {
		return err
	}
	g, err := NewInteraction(InteractionTag(tag), args)
	if err != nil {
		return err
	}
	*f = g
	return nil
}

func (f Regeneration) MarshalBinary() ([]byte, error) {
	return appendFunction(nil, uint64(f.tag), f.args), nil
}

func (f *Regeneration) UnmarshalBinary(b []byte) error {
	tag, args, err := decodeExact(b)
	if err != nil {
		return err
	}
	g, err := NewRegeneration(RegenerationTag(tag), args)
	if err != nil {
		return err
	}
	*f = g
	return nil
}

// WriteIntensity streams f in wire form.
func WriteIntensity(w io.Writer, f Intensity) error {
	_, err := w.Write(appendFunction(nil, uint64(f.tag), f.args))
	return err
}

func ReadIntensity(r io.Reader) (Intensity, error) {
	tag, args, err := readFunction(r)
	if err != nil {
		return Intensity{}, err
	}
	return NewIntensity(IntensityTag(tag), args)
}

func WriteInteraction(w io.Writer, f Interaction) error {
	_, err := w.Write(appendFunction(nil, uint64(f.tag), f.args))
	return err
}

func ReadInteraction(r io.Reader) (Interaction, error) {
	tag, args, err := readFunction(r)
	if err != nil {
		return Interaction{}, err
	}
	return NewInteraction(InteractionTag(tag), args)
}

func WriteRegeneration(w io.Writer, f Regeneration) error {
	_, err := w.Write(appendFunction(nil, uint64(f.tag), f.args))
	return err
}

func ReadRegeneration(r io.Reader) (Regeneration, error) {
	tag, args, err := readFunction(r)
	if err != nil {
		return Regeneration{}, err
	}
	return NewRegeneration(RegenerationTag(tag), args)
}
